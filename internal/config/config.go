package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	perrors "git.home.luguber.info/inful/pagepub/internal/errors"
)

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	// Load .env/.env.local if present; existing process env wins.
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err == nil {
				fmt.Fprintf(os.Stderr, "Loaded environment variables from %s\n", envPath)
				break
			}
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, perrors.ConfigNotFound(configPath)
	}

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in zero values after parsing.
func applyDefaults(cfg *Config) {
	if cfg.Site.Title == "" {
		cfg.Site.Title = "My Site"
	}
	if cfg.Site.SourceDir == "" {
		cfg.Site.SourceDir = "."
	}
	if cfg.Site.OutputDir == "" {
		cfg.Site.OutputDir = filepath.Join(cfg.Site.SourceDir, "public")
	}
	if cfg.Remote.Host == "" {
		cfg.Remote.Host = HostGitHub
	}
	if cfg.Remote.Branch == "" {
		cfg.Remote.Branch = "master"
	}
	if cfg.Publish.GraceWindow <= 0 {
		cfg.Publish.GraceWindow = 3 * time.Second
	}
	if cfg.Publish.CommitMessage == "" {
		cfg.Publish.CommitMessage = "update site"
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Remote.HostTypeNormalized() == "" {
		return perrors.ValidationFailed("remote.host", fmt.Sprintf("unsupported host %q", c.Remote.Host))
	}
	if c.Site.SourceDir == c.Site.OutputDir {
		return perrors.ValidationFailed("site.output_dir", "must differ from site.source_dir")
	}
	return nil
}
