// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for the Hearth dialogue service
// and its operator tooling.
type Config struct {
	// Service configures the unix socket server and storage paths.
	Service ServiceConfig `yaml:"service"`

	// Dialogue configures the conversation controller.
	Dialogue DialogueConfig `yaml:"dialogue"`

	// Generation configures the LLM collaborator.
	Generation GenerationConfig `yaml:"generation"`

	// Archive configures transcript archival at rest.
	Archive ArchiveConfig `yaml:"archive"`
}

// ServiceConfig configures the service process.
type ServiceConfig struct {
	// SocketPath is the unix socket the dialogue service listens on.
	SocketPath string `yaml:"socket_path"`

	// DBPath is the sqlite database file for tickets and archived
	// transcripts.
	DBPath string `yaml:"db_path"`

	// KBDir is the knowledge-base directory (manifest.jsonc plus
	// markdown articles).
	KBDir string `yaml:"kb_dir"`
}

// DialogueConfig configures the dialogue state machine.
type DialogueConfig struct {
	// GapThreshold is the temperature difference in °C at or above
	// which the engine escalates to a ticket instead of advising a
	// wait. Default 2.0.
	GapThreshold float64 `yaml:"gap_threshold"`

	// MaxValidationRetries is the number of consecutive invalid
	// inputs tolerated in one state before the conversation is
	// force-ended. Default 3.
	MaxValidationRetries int `yaml:"max_validation_retries"`

	// IdleTimeout reclaims sessions with no turn activity for this
	// long. Default 30m.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// RetrievalK is how many knowledge-base articles ground a
	// generated reply. Default 3.
	RetrievalK int `yaml:"retrieval_k"`

	// DenylistPath points at a JSONC file listing rejected input
	// terms. Empty disables the filter.
	DenylistPath string `yaml:"denylist_path"`
}

// GenerationConfig configures the LLM provider.
type GenerationConfig struct {
	// Provider selects the backend. Only "anthropic" is implemented.
	Provider string `yaml:"provider"`

	// BaseURL overrides the provider endpoint (tests, proxies).
	// Empty uses the provider default.
	BaseURL string `yaml:"base_url"`

	// Model is the provider model identifier.
	Model string `yaml:"model"`

	// MaxTokens caps reply length. Default 512.
	MaxTokens int `yaml:"max_tokens"`

	// MaxAttempts bounds generation retries per turn before the
	// canned fallback is used. Default 3.
	MaxAttempts int `yaml:"max_attempts"`

	// RetryBackoff is the fixed delay between generation attempts.
	// Default 1s.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// APIKeyPath is the file holding the provider API key, or "-"
	// for stdin.
	APIKeyPath string `yaml:"api_key_path"`
}

// ArchiveConfig configures transcript archival.
type ArchiveConfig struct {
	// MasterKeyPath is the file holding the 32-byte (hex) archive
	// master key, or "-" for stdin. Empty disables encryption-at-rest
	// archival (transcripts are then stored only on the ticket
	// record itself).
	MasterKeyPath string `yaml:"master_key_path"`

	// Compression selects the transcript compression algorithm:
	// "zstd" (default) or "lz4".
	Compression string `yaml:"compression"`
}

// Default returns the default configuration. These defaults make the
// service runnable out of the box for local development; production
// deployments override paths in the config file.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			SocketPath: "/run/hearth/dialogue.sock",
			DBPath:     "hearth.db",
			KBDir:      "kb",
		},
		Dialogue: DialogueConfig{
			GapThreshold:         2.0,
			MaxValidationRetries: 3,
			IdleTimeout:          30 * time.Minute,
			RetrievalK:           3,
		},
		Generation: GenerationConfig{
			Provider:     "anthropic",
			Model:        "claude-sonnet-4-5",
			MaxTokens:    512,
			MaxAttempts:  3,
			RetryBackoff: time.Second,
		},
		Archive: ArchiveConfig{
			Compression: "zstd",
		},
	}
}

// Load reads, expands, and parses the configuration file at path,
// layered over Default(). The result is validated before return.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded := ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the configuration for coherence. All violations
// are reported joined, not just the first.
func (cfg *Config) Validate() error {
	var problems []error

	if cfg.Service.SocketPath == "" {
		problems = append(problems, errors.New("service.socket_path is required"))
	}
	if cfg.Service.DBPath == "" {
		problems = append(problems, errors.New("service.db_path is required"))
	}
	if cfg.Dialogue.GapThreshold <= 0 {
		problems = append(problems, fmt.Errorf("dialogue.gap_threshold must be positive, got %g", cfg.Dialogue.GapThreshold))
	}
	if cfg.Dialogue.MaxValidationRetries < 1 {
		problems = append(problems, fmt.Errorf("dialogue.max_validation_retries must be at least 1, got %d", cfg.Dialogue.MaxValidationRetries))
	}
	if cfg.Dialogue.IdleTimeout <= 0 {
		problems = append(problems, fmt.Errorf("dialogue.idle_timeout must be positive, got %s", cfg.Dialogue.IdleTimeout))
	}
	if cfg.Dialogue.RetrievalK < 1 {
		problems = append(problems, fmt.Errorf("dialogue.retrieval_k must be at least 1, got %d", cfg.Dialogue.RetrievalK))
	}
	if cfg.Generation.Provider != "anthropic" {
		problems = append(problems, fmt.Errorf("generation.provider %q is not supported (only anthropic)", cfg.Generation.Provider))
	}
	if cfg.Generation.Model == "" {
		problems = append(problems, errors.New("generation.model is required"))
	}
	if cfg.Generation.MaxTokens < 1 {
		problems = append(problems, fmt.Errorf("generation.max_tokens must be at least 1, got %d", cfg.Generation.MaxTokens))
	}
	if cfg.Generation.MaxAttempts < 1 {
		problems = append(problems, fmt.Errorf("generation.max_attempts must be at least 1, got %d", cfg.Generation.MaxAttempts))
	}
	switch cfg.Archive.Compression {
	case "zstd", "lz4", "none":
	default:
		problems = append(problems, fmt.Errorf("archive.compression %q is not one of zstd, lz4, none", cfg.Archive.Compression))
	}

	return errors.Join(problems...)
}

// expansionPattern matches ${VAR} and ${VAR:-default}.
var expansionPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} with the environment value of VAR (empty
// if unset) and ${VAR:-default} with the value of VAR or the literal
// default when VAR is unset or empty.
func ExpandEnv(input string) string {
	return expansionPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := expansionPattern.FindStringSubmatch(match)
		name, hasDefault, fallback := groups[1], groups[2] != "", groups[3]

		value := os.Getenv(name)
		if value == "" && hasDefault {
			return fallback
		}
		return value
	})
}
