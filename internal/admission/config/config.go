// Package config holds the immutable admission-control tables: rate limit
// presets, tier token caps, and per-operation token costs. Loaded and
// validated once at process start.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"auditgate/internal/admission/models"
)

// Preset defines rate limit parameters for a named traffic class.
type Preset struct {
	Limit  int
	Window time.Duration
}

// Config is the validated admission configuration. Treat as read-only after
// Load/Default; it is shared across goroutines without locking.
type Config struct {
	Presets        map[string]Preset
	TierLimits     map[models.Tier]int
	OperationCosts map[string]int
}

// Default returns the built-in admission tables.
func Default() *Config {
	return &Config{
		Presets: map[string]Preset{
			"default":    {Limit: 100, Window: time.Minute},
			"strict":     {Limit: 20, Window: time.Minute},
			"relaxed":    {Limit: 500, Window: time.Minute},
			"api":        {Limit: 1000, Window: time.Minute},
			"screenshot": {Limit: 30, Window: time.Minute},
		},
		TierLimits: map[models.Tier]int{
			models.TierFree:       1000,
			models.TierUser:       8000,
			models.TierTeam:       25000,
			models.TierEnterprise: models.UnlimitedTokens,
		},
		OperationCosts: map[string]int{
			models.OpScreenshot:         10,
			models.OpLighthouseAudit:    50,
			models.OpConsoleLog:         1,
			models.OpNetworkLog:         1,
			models.OpTriageReport:       100,
			models.OpAccessibilityAudit: 30,
			models.OpPerformanceAudit:   30,
			models.OpSEOAudit:           30,
			models.OpBestPracticesAudit: 30,
			models.OpElementInspection:  5,
			models.OpJSExecution:        20,
		},
	}
}

// Preset returns the named preset, falling back to "default" for unknown names.
func (c *Config) Preset(name string) Preset {
	if p, ok := c.Presets[name]; ok {
		return p
	}
	return c.Presets["default"]
}

// TokenLimit returns the monthly token cap for a tier.
// Unknown tiers default to the free cap.
func (c *Config) TokenLimit(tier models.Tier) int {
	if limit, ok := c.TierLimits[tier]; ok {
		return limit
	}
	return c.TierLimits[models.TierFree]
}

// Cost returns the token cost for an operation.
func (c *Config) Cost(operation string) (int, bool) {
	cost, ok := c.OperationCosts[operation]
	return cost, ok
}

// Validate enforces the structural invariants of the tables: non-empty,
// positive costs and preset limits, tier caps positive or unlimited, and the
// presence of the "default" preset and free tier both lookup fallbacks rely on.
func (c *Config) Validate() error {
	if len(c.Presets) == 0 {
		return fmt.Errorf("admission config: no rate limit presets")
	}
	if _, ok := c.Presets["default"]; !ok {
		return fmt.Errorf("admission config: missing %q preset", "default")
	}
	for name, p := range c.Presets {
		if p.Limit <= 0 {
			return fmt.Errorf("admission config: preset %q: limit must be positive", name)
		}
		if p.Window <= 0 {
			return fmt.Errorf("admission config: preset %q: window must be positive", name)
		}
	}

	if len(c.TierLimits) == 0 {
		return fmt.Errorf("admission config: no tier limits")
	}
	if _, ok := c.TierLimits[models.TierFree]; !ok {
		return fmt.Errorf("admission config: missing %q tier limit", models.TierFree)
	}
	for tier, limit := range c.TierLimits {
		if limit <= 0 && limit != models.UnlimitedTokens {
			return fmt.Errorf("admission config: tier %q: limit must be positive or -1", tier)
		}
	}

	if len(c.OperationCosts) == 0 {
		return fmt.Errorf("admission config: no operation costs")
	}
	for op, cost := range c.OperationCosts {
		if cost <= 0 {
			return fmt.Errorf("admission config: operation %q: cost must be positive", op)
		}
	}

	return nil
}

// fileConfig is the yaml representation. Any table omitted from the file
// keeps its default.
type fileConfig struct {
	Presets map[string]struct {
		Limit  int    `yaml:"limit"`
		Window string `yaml:"window"`
	} `yaml:"presets"`
	TierLimits     map[string]int `yaml:"tier_limits"`
	OperationCosts map[string]int `yaml:"operation_costs"`
}

// Load reads admission tables from a yaml file, overlaying them on the
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("admission config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("admission config: parse %s: %w", path, err)
	}

	cfg := Default()

	for name, p := range fc.Presets {
		window, err := time.ParseDuration(p.Window)
		if err != nil {
			return nil, fmt.Errorf("admission config: preset %q: invalid window: %w", name, err)
		}
		cfg.Presets[name] = Preset{Limit: p.Limit, Window: window}
	}
	for tier, limit := range fc.TierLimits {
		cfg.TierLimits[models.Tier(tier)] = limit
	}
	for op, cost := range fc.OperationCosts {
		cfg.OperationCosts[op] = cost
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
