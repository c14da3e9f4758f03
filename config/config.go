// Package config loads the planner configuration from a YAML file.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// StoreConfig selects and parameterizes the timetable store.
type StoreConfig struct {
	// "sqlite", "postgres" or "memory"
	Driver string `yaml:"driver" validate:"omitempty,oneof=sqlite postgres memory"`

	// Connection string for postgres, file path for sqlite. Blank
	// sqlite means in-memory.
	DSN string `yaml:"dsn"`
}

// GraphConfig parameterizes the major-station network.
type GraphConfig struct {
	// Path of the JSON snapshot. Blank disables caching.
	CachePath string `yaml:"cachePath"`

	// Stations whose name contains one of these markers become
	// graph nodes.
	Markers []string `yaml:"markers"`

	WeightRatio     float64 `yaml:"weightRatio" validate:"omitempty,gt=1"`
	MaxAlternatives int     `yaml:"maxAlternatives" validate:"gte=0"`
	Cutoff          int     `yaml:"cutoff" validate:"gte=0"`
}

// PlannerConfig holds the journey composition tunables.
type PlannerConfig struct {
	// Minimum minutes between arriving and departing at a transfer.
	TransferBufferMinutes int `yaml:"transferBufferMinutes" validate:"gte=0"`

	// Journeys returned per request.
	MaxResults int `yaml:"maxResults" validate:"gte=0"`

	// Rows fetched per segment query.
	SegmentLimit int `yaml:"segmentLimit" validate:"gte=0"`

	// Budget for insight generation, independent of journey
	// delivery.
	InsightTimeoutMS int `yaml:"insightTimeoutMS" validate:"gte=0"`
}

type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Graph   GraphConfig   `yaml:"graph"`
	Planner PlannerConfig `yaml:"planner"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Graph: GraphConfig{
			Markers:         []string{"Hbf", "Hauptbahnhof"},
			WeightRatio:     1.20,
			MaxAlternatives: 32,
			Cutoff:          4,
		},
		Planner: PlannerConfig{
			TransferBufferMinutes: 5,
			MaxResults:            10,
			SegmentLimit:          10,
			InsightTimeoutMS:      500,
		},
	}
}

// Load reads a YAML config file. Omitted fields keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}
