// Package config loads filter presets from YAML.
package config

import (
	"fmt"
	"image/color"
	"os"
	"time"

	"github.com/andresmejia3/uncanny/internal/filter"
	"github.com/andresmejia3/uncanny/internal/glitch"
	"gopkg.in/yaml.v3"
)

// Config is the full preset. Zero-valued sections in a file keep their defaults.
type Config struct {
	Filter   Filter   `yaml:"filter"`
	Detector Detector `yaml:"detector"`
	Fetch    Fetch    `yaml:"fetch"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
}

type Filter struct {
	JitterRatio float64 `yaml:"jitter_ratio"`
	LineCount   int     `yaml:"line_count"`
	// Color is [r, g, b] or [r, g, b, a].
	Color  []uint8 `yaml:"color"`
	Alpha  float64 `yaml:"alpha"`
	Splits int     `yaml:"splits"`
	// Seed 0 picks a fresh seed per run.
	Seed uint64 `yaml:"seed"`
	// Images are filtered only when both sides lie strictly between MinSide and MaxSide.
	MinSide int `yaml:"min_side"`
	MaxSide int `yaml:"max_side"`
}

type Detector struct {
	Python      string        `yaml:"python"`
	Script      string        `yaml:"script"`
	Engines     int           `yaml:"engines"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

type Fetch struct {
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

type Server struct {
	Addr      string `yaml:"addr"`
	MaxBodyMB int    `yaml:"max_body_mb"`
}

type Logging struct {
	Development bool `yaml:"development"`
}

// DefaultUserAgent is sent with every image download.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Default returns the stock preset.
func Default() Config {
	cross := filter.DefaultCrossOptions()
	return Config{
		Filter: Filter{
			JitterRatio: cross.JitterRatio,
			LineCount:   cross.LineCount,
			Color:       []uint8{cross.Color.R, cross.Color.G, cross.Color.B, cross.Color.A},
			Splits:      glitch.DefaultSplits,
			MinSide:     100,
			MaxSide:     3000,
		},
		Detector: Detector{
			Python:      "python3",
			Script:      "python/landmark_worker.py",
			Engines:     1,
			ReadTimeout: 60 * time.Second,
		},
		Fetch: Fetch{
			UserAgent: DefaultUserAgent,
			Timeout:   30 * time.Second,
		},
		Server: Server{
			Addr:      ":8080",
			MaxBodyMB: 32,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects presets the filter cannot run with.
func (c Config) Validate() error {
	f := c.Filter
	if f.JitterRatio < 0 {
		return fmt.Errorf("filter.jitter_ratio must be >= 0, got %v", f.JitterRatio)
	}
	if f.LineCount < 0 {
		return fmt.Errorf("filter.line_count must be >= 0, got %d", f.LineCount)
	}
	if len(f.Color) != 3 && len(f.Color) != 4 {
		return fmt.Errorf("filter.color needs 3 or 4 components, got %d", len(f.Color))
	}
	if f.Alpha < 0 || f.Alpha >= 1 {
		return fmt.Errorf("filter.alpha must be in [0, 1), got %v", f.Alpha)
	}
	if f.Splits < 0 {
		return fmt.Errorf("filter.splits must be >= 0, got %d", f.Splits)
	}
	if f.MinSide >= f.MaxSide {
		return fmt.Errorf("filter.min_side (%d) must be below max_side (%d)", f.MinSide, f.MaxSide)
	}
	if c.Detector.Engines < 1 {
		return fmt.Errorf("detector.engines must be >= 1, got %d", c.Detector.Engines)
	}
	return nil
}

// CrossOptions converts the preset into mouth cross settings.
func (f Filter) CrossOptions() filter.CrossOptions {
	ink := color.NRGBA{A: 255}
	if len(f.Color) >= 3 {
		ink.R, ink.G, ink.B = f.Color[0], f.Color[1], f.Color[2]
	}
	if len(f.Color) == 4 {
		ink.A = f.Color[3]
	}
	return filter.CrossOptions{
		JitterRatio: f.JitterRatio,
		LineCount:   f.LineCount,
		Color:       ink,
		Alpha:       f.Alpha,
	}
}
