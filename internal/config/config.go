package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"classline/internal/domain"
)

// Config models classline.yml.
type Config struct {
	SchoolYear struct {
		Start string `yaml:"start"`
		End   string `yaml:"end"`
	} `yaml:"school_year"`
	Scheduling struct {
		MonthlyDueDay     int `yaml:"monthly_due_day"`
		AnchorBufferWeeks int `yaml:"anchor_buffer_weeks"`
	} `yaml:"scheduling"`
	Daemon struct {
		GenerateAt string `yaml:"generate_at"`
	} `yaml:"daemon"`

	yearStart time.Time
	yearEnd   time.Time
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run cl init first", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks bounds and parses the school-year dates.
func (c *Config) Validate() error {
	var err error
	if c.SchoolYear.Start == "" || c.SchoolYear.End == "" {
		return fmt.Errorf("config.school_year.start and .end are required")
	}
	c.yearStart, err = time.Parse(domain.DateLayout, c.SchoolYear.Start)
	if err != nil {
		return fmt.Errorf("config.school_year.start: %w", err)
	}
	c.yearEnd, err = time.Parse(domain.DateLayout, c.SchoolYear.End)
	if err != nil {
		return fmt.Errorf("config.school_year.end: %w", err)
	}
	if !c.yearStart.Before(c.yearEnd) {
		return fmt.Errorf("config.school_year.start must precede end")
	}
	if c.Scheduling.MonthlyDueDay != 1 && c.Scheduling.MonthlyDueDay != 15 {
		return fmt.Errorf("config.scheduling.monthly_due_day must be 1 or 15")
	}
	if c.Scheduling.AnchorBufferWeeks <= 0 {
		return fmt.Errorf("config.scheduling.anchor_buffer_weeks must be positive")
	}
	if c.Daemon.GenerateAt != "" {
		if _, err := time.Parse("15:04", c.Daemon.GenerateAt); err != nil {
			return fmt.Errorf("config.daemon.generate_at: expected HH:MM: %w", err)
		}
	}
	return nil
}

// YearStart returns the parsed first day of the school year.
func (c *Config) YearStart() time.Time { return c.yearStart }

// YearEnd returns the parsed last day of the school year.
func (c *Config) YearEnd() time.Time { return c.yearEnd }

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "classline.yml")
}

// WriteDefault writes the default config file; it refuses to overwrite.
func WriteDefault(workspace string) (string, error) {
	path := Path(workspace)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.WriteFile(path, []byte(defaultTemplate), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Default returns the built-in default config.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

const defaultTemplate = `school_year:
  start: 2024-08-26
  end: 2025-06-06

scheduling:
  # Preferred monthly due day: 1 or 15.
  monthly_due_day: 1
  # Annual tasks come due this many weeks before the student's ARD date.
  anchor_buffer_weeks: 3

daemon:
  # Local time at which 'cl daemon' runs the daily generation pass.
  generate_at: "06:00"
`
