package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/uncanny/internal/config"
	"github.com/andresmejia3/uncanny/internal/filter"
	"github.com/andresmejia3/uncanny/internal/landmarks"
	"github.com/andresmejia3/uncanny/internal/pipeline"
	"github.com/andresmejia3/uncanny/internal/raster"
	"github.com/andresmejia3/uncanny/internal/store"
	"github.com/andresmejia3/uncanny/internal/types"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// writeFace saves a 200x200 grey image and a landmarks file matching it.
func writeFace(t *testing.T, dir, name string) (img, marks string) {
	t.Helper()
	img = filepath.Join(dir, name)
	if err := raster.Save(raster.Filled(200, 200, color.Gray{Y: 170}), img); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal([]landmarks.Set{landmarks.Synthetic(image.Point{}, 1)})
	if err != nil {
		t.Fatal(err)
	}
	marks = filepath.Join(dir, "faces.json")
	if err := os.WriteFile(marks, data, 0644); err != nil {
		t.Fatal(err)
	}
	return img, marks
}

func TestValidateFilterFlags(t *testing.T) {
	dir := t.TempDir()
	img, _ := writeFace(t, dir, "face.png")
	txt := filepath.Join(dir, "notes.txt")
	os.WriteFile(txt, []byte("x"), 0644)

	tests := []struct {
		name    string
		opts    Options
		url     string
		wantErr bool
	}{
		{"Valid file", Options{InputPath: img, OutputDir: "out"}, "", false},
		{"Valid url", Options{OutputDir: "out"}, "https://example.com/a.png", false},
		{"Neither input", Options{OutputDir: "out"}, "", true},
		{"Both inputs", Options{InputPath: img, OutputDir: "out"}, "https://example.com/a.png", true},
		{"Missing file", Options{InputPath: filepath.Join(dir, "nope.png"), OutputDir: "out"}, "", true},
		{"Directory", Options{InputPath: dir, OutputDir: "out"}, "", true},
		{"Not an image", Options{InputPath: txt, OutputDir: "out"}, "", true},
		{"Empty output", Options{InputPath: img}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validateFilterFlags(&tt.opts, tt.url); (err != nil) != tt.wantErr {
				t.Errorf("validateFilterFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateBatchFlags(t *testing.T) {
	dir := t.TempDir()
	img, _ := writeFace(t, dir, "face.png")

	opts := Options{InputPath: dir, OutputDir: "out", NumEngines: 0}
	if err := validateBatchFlags(&opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.NumEngines != 1 {
		t.Errorf("expected engines to be raised to 1, got %d", opts.NumEngines)
	}
	if err := validateBatchFlags(&Options{InputPath: img, OutputDir: "out"}); err == nil {
		t.Error("expected error for a file input")
	}
	if err := validateBatchFlags(&Options{InputPath: filepath.Join(dir, "missing"), OutputDir: "out"}); err == nil {
		t.Error("expected error for a missing folder")
	}
}

func TestApplyFlags(t *testing.T) {
	newCmd := func() (*cobra.Command, *Options) {
		opts := &Options{}
		c := &cobra.Command{Use: "test"}
		addFilterFlags(c, opts)
		return c, opts
	}

	c, opts := newCmd()
	if err := c.ParseFlags([]string{"--seed", "9", "--lines", "4", "--worker-timeout", "5s", "--no-gate"}); err != nil {
		t.Fatal(err)
	}
	conf := config.Default()
	conf.Filter.Splits = 77 // from a preset file
	if err := applyFlags(c, opts, &conf); err != nil {
		t.Fatal(err)
	}
	if conf.Filter.Seed != 9 || conf.Filter.LineCount != 4 {
		t.Errorf("flags not applied: %+v", conf.Filter)
	}
	if conf.Filter.Splits != 77 {
		t.Errorf("unset flag overrode the preset: splits = %d", conf.Filter.Splits)
	}
	if conf.Detector.ReadTimeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %s", conf.Detector.ReadTimeout)
	}
	if conf.Filter.MinSide != 0 {
		t.Errorf("expected --no-gate to open the size gate, got min %d", conf.Filter.MinSide)
	}

	c, opts = newCmd()
	c.ParseFlags([]string{"--worker-timeout", "soon"})
	conf = config.Default()
	if err := applyFlags(c, opts, &conf); err == nil {
		t.Error("expected error for a bad duration")
	}

	c, opts = newCmd()
	c.ParseFlags([]string{"--alpha", "1.5"})
	conf = config.Default()
	if err := applyFlags(c, opts, &conf); err == nil {
		t.Error("expected validation error for alpha 1.5")
	}
}

func TestRunFilterWithStaticLandmarks(t *testing.T) {
	dir := t.TempDir()
	img, marks := writeFace(t, dir, "face.png")
	out := filepath.Join(dir, "out")

	cfg = config.Default()
	cfg.Filter.Seed = 3
	opts := Options{InputPath: img, OutputDir: out, Landmarks: marks, KeepOriginal: true}
	if err := runFilter(context.Background(), opts, "", 7); err != nil {
		t.Fatalf("runFilter failed: %v", err)
	}

	for _, name := range []string{"original_7.png", "modified_7.png"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
}

func TestProcessBatch(t *testing.T) {
	dir := t.TempDir()
	writeFace(t, dir, "a.png")
	raster.Save(raster.Filled(50, 50, color.White), filepath.Join(dir, "icon.png"))
	os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("not a jpeg"), 0644)

	paths, err := listImages(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 images (json skipped), got %v", paths)
	}

	pipe := &pipeline.Pipeline{
		Detector: landmarks.Static{landmarks.Synthetic(image.Point{}, 1)},
		Cross:    filter.DefaultCrossOptions(),
		Splits:   50,
		Seed:     1,
		MinSide:  100,
		MaxSide:  3000,
	}
	out := filepath.Join(dir, "out")
	seen := 0
	summary, err := processBatch(context.Background(), pipe, paths, 2, Options{OutputDir: out}, func(types.ImageResult) { seen++ })
	if err != nil {
		t.Fatalf("processBatch failed: %v", err)
	}

	want := batchSummary{Filtered: 1, Gated: 1, Failed: 1, Faces: 1}
	if summary != want {
		t.Errorf("summary = %+v, want %+v", summary, want)
	}
	if seen != 3 {
		t.Errorf("progress called %d times, want 3", seen)
	}
	// a.png sorts first, so it is image 0
	if _, err := os.Stat(filepath.Join(out, "modified_0.png")); err != nil {
		t.Errorf("expected modified_0.png: %v", err)
	}
}

func TestPrintRuns(t *testing.T) {
	var buf bytes.Buffer
	printRuns(&buf, nil)
	if !strings.Contains(buf.String(), "No runs found") {
		t.Errorf("unexpected empty output: %q", buf.String())
	}

	buf.Reset()
	printRuns(&buf, []store.Run{{
		ID:        uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e"),
		Source:    "face.png",
		Width:     640,
		Height:    480,
		Faces:     2,
		Duration:  1500 * time.Millisecond,
		CreatedAt: time.Now(),
	}})
	out := buf.String()
	for _, want := range []string{"SOURCE", "0f8fad5b", "face.png", "640x480", "1.5s"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestConfirm(t *testing.T) {
	tests := map[string]bool{"y\n": true, "YES\n": true, "n\n": false, "\n": false, "": false}
	for input, want := range tests {
		var prompt bytes.Buffer
		if got := confirm(bufio.NewReader(strings.NewReader(input)), &prompt, "sure?"); got != want {
			t.Errorf("confirm(%q) = %v, want %v", input, got, want)
		}
		if !strings.Contains(prompt.String(), "[y/N]") {
			t.Errorf("prompt not written: %q", prompt.String())
		}
	}
}

func TestDefaultRewriteOutput(t *testing.T) {
	got := defaultRewriteOutput(filepath.Join("pages", "The Times.html"))
	if want := filepath.Join("pages", "modified_The Times.html"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := defaultRewriteOutput("page.html"); got != "modified_page.html" {
		t.Errorf("got %q", got)
	}
}

func TestRequireDB(t *testing.T) {
	DB = nil
	if err := requireDB(); err == nil {
		t.Error("expected error without a database")
	}
}

func TestJitterFlagUsage(t *testing.T) {
	c := &cobra.Command{Use: "test"}
	addFilterFlags(c, &Options{})
	usage := c.Flags().Lookup("jitter").Usage
	if !strings.Contains(usage, "x/y span") || strings.Contains(usage, "line width") {
		t.Errorf("jitter usage should describe the stroke span, got %q", usage)
	}
}
