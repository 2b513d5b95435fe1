// Copyright 2026 The SafeGate Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the SafeGate server.
// It handles loading and parsing the YAML configuration file and provides
// structured access to server settings, provider credentials, routing policy,
// per-category token budgets, and safety rules.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/thrivecoach/safegate/internal/safety"
	"github.com/thrivecoach/safegate/internal/triage"
)

// Provider types understood by the adapter factory.
const (
	ProviderTypeOpenAI    = "openai"
	ProviderTypeAnthropic = "anthropic"
)

// Provider describes one upstream text-generation backend.
type Provider struct {
	// Name is the provider key used in routing, logs, and error reports.
	Name string `yaml:"name"`

	// Type selects the adapter implementation: "openai" or "anthropic".
	Type string `yaml:"type"`

	// BaseURL is the provider endpoint root.
	BaseURL string `yaml:"base-url"`

	// APIKey is the literal credential. Prefer APIKeyEnv in committed config.
	APIKey string `yaml:"api-key"`

	// APIKeyEnv names an environment variable holding the credential.
	// When set it takes precedence over APIKey.
	APIKeyEnv string `yaml:"api-key-env"`

	// Model is the default model identifier for this provider.
	Model string `yaml:"model"`
}

// ResolveAPIKey returns the effective credential for the provider.
func (p *Provider) ResolveAPIKey() string {
	if p.APIKeyEnv != "" {
		if v := strings.TrimSpace(os.Getenv(p.APIKeyEnv)); v != "" {
			return v
		}
	}
	return p.APIKey
}

// SafetyConfig nests the review-layer options.
type SafetyConfig struct {
	// RemoteJudge enables the remote judge for nuanced review cases.
	RemoteJudge bool `yaml:"remote-judge"`

	// Rules are extra configurable review rules (expr conditions).
	Rules []safety.RuleSpec `yaml:"rules"`
}

// Config represents the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the network host/interface the API server binds.
	Host string `yaml:"host"`
	// Port is the network port the API server listens on.
	Port int `yaml:"port"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug"`

	// LoggingToFile controls whether logs go to rotating files or stdout.
	LoggingToFile bool `yaml:"logging-to-file"`

	// LogsMaxTotalSizeMB limits the total size (in MB) of the logs directory.
	// Zero disables the cleaner.
	LogsMaxTotalSizeMB int `yaml:"logs-max-total-size-mb"`

	// RequestRetry is how many times a failed provider attempt is retried on
	// the same provider (in addition to the initial attempt).
	RequestRetry int `yaml:"request-retry"`

	// RetryBaseBackoffMS is the base backoff delay in milliseconds; each
	// retry doubles it and adds random jitter.
	RetryBaseBackoffMS int `yaml:"retry-base-backoff-ms"`

	// GenerationTimeoutSeconds bounds each generation call.
	GenerationTimeoutSeconds int `yaml:"generation-timeout-seconds"`

	// ClassifyTimeoutSeconds bounds the remote classification fallback call.
	ClassifyTimeoutSeconds int `yaml:"classify-timeout-seconds"`

	// JudgeTimeoutSeconds bounds each safety-judge call.
	JudgeTimeoutSeconds int `yaml:"judge-timeout-seconds"`

	// RemoteClassify enables the classifier's remote-model fallback.
	RemoteClassify bool `yaml:"remote-classify"`

	// Providers lists the configured upstream backends.
	Providers []Provider `yaml:"providers"`

	// PrimaryProvider names the first-choice provider.
	PrimaryProvider string `yaml:"primary-provider"`

	// FallbackProvider names the single secondary provider. Empty disables
	// fallback.
	FallbackProvider string `yaml:"fallback-provider"`

	// MaxInputTokens bounds the conversation sent upstream; older turns are
	// dropped first. Zero disables trimming.
	MaxInputTokens int `yaml:"max-input-tokens"`

	// Budgets maps category names to max output tokens per handler.
	Budgets map[string]int `yaml:"budgets"`

	// Safety nests the review-layer options.
	Safety SafetyConfig `yaml:"safety"`
}

// Default token budgets per category, applied when the config omits an entry.
var defaultBudgets = map[triage.Category]int{
	triage.CategoryGeneralWellness:       1024,
	triage.CategoryMentalHealthNonCrisis: 1024,
	triage.CategoryMedicalNonUrgent:      1024,
	triage.CategoryModerateRiskProtocol:  2000,
	triage.CategoryExtremeRiskProtocol:   512,
}

// LoadConfig reads YAML from configFile, applies defaults, and validates.
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaults()
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaults returns a Config with the canonical policy values filled in so
// that absent YAML keys keep their defaults.
func defaults() *Config {
	return &Config{
		Port:                     8317,
		RequestRetry:             2,
		RetryBaseBackoffMS:       250,
		GenerationTimeoutSeconds: 30,
		ClassifyTimeoutSeconds:   5,
		JudgeTimeoutSeconds:      5,
		RemoteClassify:           false,
		MaxInputTokens:           6000,
	}
}

// Validate checks cross-field consistency after unmarshal.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.RequestRetry < 0 {
		return fmt.Errorf("config: request-retry must not be negative")
	}
	names := make(map[string]bool, len(c.Providers))
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.Name == "" {
			return fmt.Errorf("config: provider %d has no name", i)
		}
		if names[p.Name] {
			return fmt.Errorf("config: duplicate provider name %q", p.Name)
		}
		names[p.Name] = true
		if p.Type != ProviderTypeOpenAI && p.Type != ProviderTypeAnthropic {
			return fmt.Errorf("config: provider %q has unknown type %q", p.Name, p.Type)
		}
		if p.BaseURL == "" {
			return fmt.Errorf("config: provider %q has no base-url", p.Name)
		}
	}
	if c.PrimaryProvider != "" && !names[c.PrimaryProvider] {
		return fmt.Errorf("config: primary-provider %q is not a configured provider", c.PrimaryProvider)
	}
	if c.FallbackProvider != "" && !names[c.FallbackProvider] {
		return fmt.Errorf("config: fallback-provider %q is not a configured provider", c.FallbackProvider)
	}
	if c.FallbackProvider != "" && c.FallbackProvider == c.PrimaryProvider {
		return fmt.Errorf("config: fallback-provider must differ from primary-provider")
	}
	for name := range c.Budgets {
		if _, ok := triage.ParseCategory(name); !ok {
			return fmt.Errorf("config: budgets contains unknown category %q", name)
		}
	}
	return nil
}

// ProviderByName returns the provider entry with the given name.
func (c *Config) ProviderByName(name string) (*Provider, bool) {
	for i := range c.Providers {
		if c.Providers[i].Name == name {
			return &c.Providers[i], true
		}
	}
	return nil, false
}

// BudgetFor returns the max output tokens for a category, falling back to the
// built-in defaults.
func (c *Config) BudgetFor(category triage.Category) int {
	if c.Budgets != nil {
		if budget, ok := c.Budgets[string(category)]; ok && budget > 0 {
			return budget
		}
	}
	if budget, ok := defaultBudgets[category]; ok {
		return budget
	}
	return 1024
}

// GenerationTimeout returns the per-call generation deadline.
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSeconds) * time.Second
}

// ClassifyTimeout returns the remote-classification deadline.
func (c *Config) ClassifyTimeout() time.Duration {
	return time.Duration(c.ClassifyTimeoutSeconds) * time.Second
}

// JudgeTimeout returns the safety-judge deadline.
func (c *Config) JudgeTimeout() time.Duration {
	return time.Duration(c.JudgeTimeoutSeconds) * time.Second
}

// RetryBaseBackoff returns the base backoff delay.
func (c *Config) RetryBaseBackoff() time.Duration {
	return time.Duration(c.RetryBaseBackoffMS) * time.Millisecond
}
