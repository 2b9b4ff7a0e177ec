package config

import (
	"fmt"
	"slices"
	"strings"
)

// Validate checks the loaded configuration. Load calls it automatically.
func (c *Config) Validate() error {
	if err := c.Panel.validate(); err != nil {
		return fmt.Errorf("panel: %w", err)
	}
	if c.Stream.IdleTimeout < 0 {
		return fmt.Errorf("stream.idle_timeout must be >= 0 (got %s)", c.Stream.IdleTimeout)
	}
	if c.Ollama.DefaultModel == "" {
		return fmt.Errorf("ollama.default_model must be set")
	}
	if models := c.Ollama.AllowedModels(); len(models) > 0 && !slices.Contains(models, c.Ollama.DefaultModel) {
		return fmt.Errorf("ollama.allowed_models must include the default model %q", c.Ollama.DefaultModel)
	}
	if c.Redis.DB < 0 || c.Redis.TTL < 0 {
		return fmt.Errorf("redis: db and ttl must be >= 0")
	}
	if err := c.Ingest.validate(); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format)
	}
	return nil
}

func (p PanelConfig) validate() error {
	if p.MediumThreshold < 0 {
		return fmt.Errorf("medium_threshold must be >= 0 (got %d)", p.MediumThreshold)
	}
	if p.HighThreshold <= p.MediumThreshold {
		return fmt.Errorf("high_threshold must exceed medium_threshold (%d <= %d)", p.HighThreshold, p.MediumThreshold)
	}
	if p.FamilyExampleCap <= 0 || p.FormExampleCap <= 0 {
		return fmt.Errorf("example caps must be > 0 (got %d and %d)", p.FamilyExampleCap, p.FormExampleCap)
	}
	return nil
}

func (i IngestConfig) validate() error {
	switch i.Analyzer {
	case "table", "kagome":
	default:
		return fmt.Errorf("analyzer must be table or kagome (got %q)", i.Analyzer)
	}
	switch i.Mode {
	case "paragraph", "sentence":
	default:
		return fmt.Errorf("mode must be paragraph or sentence (got %q)", i.Mode)
	}
	if i.LemmaTableURL != "" && i.LemmaTable == "" {
		return fmt.Errorf("lemma_table_url needs lemma_table as its download path")
	}
	if i.Workers <= 0 {
		return fmt.Errorf("workers must be > 0 (got %d)", i.Workers)
	}
	if i.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", i.BatchSize)
	}
	return nil
}
