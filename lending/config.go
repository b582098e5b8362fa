// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lending

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/luxfi/clend/fixedpoint"
)

// SlotsPerYear assumes 400ms slots: 365 * 24 * 3600 / 0.4.
const SlotsPerYear uint64 = 78_840_000

// Config holds engine-wide settings.
type Config struct {
	// SlotsPerYear converts the annual interest rate into a per-slot rate.
	SlotsPerYear uint64 `json:"slotsPerYear" yaml:"slots_per_year"`

	// MaxBorrowers caps concurrent open loans per pool. 0 = unlimited.
	MaxBorrowers uint32 `json:"maxBorrowers" yaml:"max_borrowers"`

	// MetricsNamespace prefixes every exported metric.
	MetricsNamespace string `json:"metricsNamespace" yaml:"metrics_namespace"`
}

// DefaultConfig returns the settings used when none are supplied.
func DefaultConfig() Config {
	return Config{
		SlotsPerYear:     SlotsPerYear,
		MetricsNamespace: "clend",
	}
}

// LoadConfig reads a YAML configuration from path, fills unset fields from
// DefaultConfig and verifies the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Verify(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.MetricsNamespace = strings.TrimSpace(c.MetricsNamespace)
	if c.SlotsPerYear == 0 {
		c.SlotsPerYear = SlotsPerYear
	}
}

// Verify checks the configuration is usable.
func (c *Config) Verify() error {
	if c.SlotsPerYear == 0 {
		return fmt.Errorf("%w: slots per year must be positive", ErrInvalidConfig)
	}
	// 10_000 * SlotsPerYear is the interest denominator.
	if _, err := fixedpoint.Mul(fixedpoint.BasisPoints, c.SlotsPerYear); err != nil {
		return fmt.Errorf("%w: slots per year too large", ErrInvalidConfig)
	}
	if strings.ContainsAny(c.MetricsNamespace, " -.") {
		return fmt.Errorf("%w: metrics namespace %q", ErrInvalidConfig, c.MetricsNamespace)
	}
	return nil
}
