package rewrite

import (
	"bufio"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultFrequency is the share of eligible words that get a replacement roll.
const DefaultFrequency = 0.4

// Word list files expected inside the directory given to LoadWords.
const (
	DarkAdjectives = "dark_adjs_list.txt"
	DarkNouns      = "dark_nouns_list.txt"
	DarkVerbs      = "dark_verbs_list.txt"
	TopAdjectives  = "top_english_adjs_lower_10000.txt"
	TopNouns       = "top_english_nouns_lower_10000.txt"
	TopVerbs       = "top_english_verbs_lower_10000.txt"
)

// Class maps common words of one part of speech to their dark replacements.
type Class struct {
	Common map[string]bool
	Dark   []string
}

// Words holds the classes in lookup order: adjectives, nouns, verbs.
type Words struct {
	Classes []Class
}

// LoadWords reads the six list files from dir. Lists hold one word per line.
func LoadWords(dir string) (*Words, error) {
	pairs := [][2]string{
		{TopAdjectives, DarkAdjectives},
		{TopNouns, DarkNouns},
		{TopVerbs, DarkVerbs},
	}
	w := &Words{}
	for _, p := range pairs {
		common, err := readLines(filepath.Join(dir, p[0]))
		if err != nil {
			return nil, err
		}
		dark, err := readLines(filepath.Join(dir, p[1]))
		if err != nil {
			return nil, err
		}
		if len(dark) == 0 {
			return nil, fmt.Errorf("word list %s is empty", p[1])
		}
		set := make(map[string]bool, len(common))
		for _, c := range common {
			set[strings.ToLower(c)] = true
		}
		w.Classes = append(w.Classes, Class{Common: set, Dark: dark})
	}
	return w, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open word list: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

var (
	tokenPattern = regexp.MustCompile(`\w+|\s+|[^\w\s]`)
	wordPattern  = regexp.MustCompile(`^[A-Za-z]+$`)
	hasLetter    = regexp.MustCompile(`[A-Za-z]`)
)

// Mangler swaps common words for dark ones at random.
type Mangler struct {
	words     *Words
	frequency float64
	rng       *rand.Rand
}

// NewMangler builds a Mangler. Each alphabetic word is considered with probability frequency.
func NewMangler(words *Words, frequency float64, rng *rand.Rand) *Mangler {
	return &Mangler{words: words, frequency: frequency, rng: rng}
}

// Text returns text with some words replaced, and how many were.
// Punctuation and whitespace are kept exactly.
func (m *Mangler) Text(text string) (string, int) {
	tokens := tokenPattern.FindAllString(text, -1)
	replaced := 0
	for i, tok := range tokens {
		if !wordPattern.MatchString(tok) {
			continue
		}
		if m.rng.Float64() > m.frequency {
			continue
		}
		lower := strings.ToLower(tok)
		for _, class := range m.words.Classes {
			if class.Common[lower] {
				tokens[i] = MatchCase(tok, class.Dark[m.rng.IntN(len(class.Dark))])
				replaced++
				break
			}
		}
	}
	return strings.Join(tokens, ""), replaced
}

// Document mangles every text node outside <script> and <style>.
func (m *Mangler) Document(doc *html.Node) int {
	total := 0
	walk(doc, func(n *html.Node) bool {
		if n.Type != html.TextNode {
			return true
		}
		if p := n.Parent; p != nil && (p.DataAtom == atom.Script || p.DataAtom == atom.Style) {
			return true
		}
		if !hasLetter.MatchString(n.Data) {
			return true
		}
		var count int
		n.Data, count = m.Text(n.Data)
		total += count
		return true
	})
	return total
}

// MatchCase gives target the casing of source: UPPER, Capitalised or lower as given.
func MatchCase(source, target string) string {
	if source == "" || target == "" {
		return target
	}
	if strings.ToUpper(source) == source && strings.ToLower(source) != source {
		return strings.ToUpper(target)
	}
	if unicode.IsUpper(rune(source[0])) {
		return strings.ToUpper(target[:1]) + strings.ToLower(target[1:])
	}
	return target
}
