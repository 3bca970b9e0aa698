package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/home-dashboard/httping/internal/models"
)

// TargetsFile is the YAML document listing monitored targets.
type TargetsFile struct {
	// Timezone is the default for targets that do not set their own.
	Timezone string       `yaml:"timezone"`
	Targets  []TargetSpec `yaml:"targets"`
}

// TargetSpec is one target entry of the targets file.
type TargetSpec struct {
	Name     string `yaml:"name"`
	ID       string `yaml:"id"`
	URL      string `yaml:"url"`
	Interval string `yaml:"interval"`
	Expect   string `yaml:"expect"`
	Timezone string `yaml:"timezone"`
}

// LoadTargets reads and validates the targets file at path.
func LoadTargets(path string) ([]models.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}
	return ParseTargets(data)
}

// ParseTargets parses a targets document. Timezones are resolved here, once,
// so targets are immutable afterwards.
func ParseTargets(data []byte) ([]models.Target, error) {
	var file TargetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse targets file: %w", err)
	}
	if len(file.Targets) == 0 {
		return nil, fmt.Errorf("targets file lists no targets")
	}

	defaultLoc := time.Local
	if file.Timezone != "" {
		loc, err := time.LoadLocation(file.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid default timezone %q: %w", file.Timezone, err)
		}
		defaultLoc = loc
	}

	seen := make(map[string]bool, len(file.Targets))
	targets := make([]models.Target, 0, len(file.Targets))
	for i, spec := range file.Targets {
		t, err := spec.toTarget(defaultLoc)
		if err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
		if seen[t.InternalName] {
			return nil, fmt.Errorf("target %d: duplicate id %q", i, t.InternalName)
		}
		seen[t.InternalName] = true
		targets = append(targets, t)
	}
	return targets, nil
}

func (s TargetSpec) toTarget(defaultLoc *time.Location) (models.Target, error) {
	interval := 5 * time.Second
	if s.Interval != "" {
		d, err := time.ParseDuration(s.Interval)
		if err != nil {
			return models.Target{}, fmt.Errorf("invalid interval %q: %w", s.Interval, err)
		}
		interval = d
	}

	loc := defaultLoc
	if s.Timezone != "" {
		l, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return models.Target{}, fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
		}
		loc = l
	}

	t := models.Target{
		Name:         s.Name,
		InternalName: s.ID,
		URL:          s.URL,
		Interval:     interval,
		Expect:       s.Expect,
		Location:     loc,
	}
	if err := t.Validate(); err != nil {
		return models.Target{}, err
	}
	return t, nil
}
