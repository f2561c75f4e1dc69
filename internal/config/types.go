package config

import (
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	Site    SiteConfig    `yaml:"site"`
	Remote  RemoteConfig  `yaml:"remote"`
	Publish PublishConfig `yaml:"publish"`
	Journal JournalConfig `yaml:"journal,omitempty"`
}

// SiteConfig describes the source content and generated output.
type SiteConfig struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`
	BaseURL     string `yaml:"base_url,omitempty"`
	SourceDir   string `yaml:"source_dir"`
	OutputDir   string `yaml:"output_dir,omitempty"` // defaults to <source_dir>/public
}

// HostType enumerates supported remote hosting targets (stringly for YAML compatibility).
type HostType string

const (
	HostGitHub HostType = "github"
)

// RemoteConfig describes the git-backed hosting target.
type RemoteConfig struct {
	Host       HostType `yaml:"host,omitempty"` // defaults to github
	APIURL     string   `yaml:"api_url,omitempty"`
	Branch     string   `yaml:"branch,omitempty"`     // defaults to "master"
	Repository string   `yaml:"repository,omitempty"` // optional repository-name override
}

// RetryBackoffMode selects the growth curve for retry delays.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// PublishConfig holds publish workflow tuning knobs.
// All zero values trigger sensible defaults.
type PublishConfig struct {
	// GraceWindow is the delay between starting a publish attempt and the
	// first remote-mutating action, giving the user a chance to cancel.
	GraceWindow time.Duration `yaml:"grace_window,omitempty"`
	// CommitMessage is used for the publish commit; defaults to "update site".
	CommitMessage string `yaml:"commit_message,omitempty"`
	// Retry settings apply to remote host API calls only; the push itself is
	// never retried automatically.
	RetryBackoff     RetryBackoffMode `yaml:"retry_backoff,omitempty"`
	RetryInitial     time.Duration    `yaml:"retry_initial,omitempty"`
	RetryMax         time.Duration    `yaml:"retry_max,omitempty"`
	RetryMaxAttempts int              `yaml:"retry_max_attempts,omitempty"`
}

// JournalConfig configures the attempt-history journal.
type JournalConfig struct {
	// Path to the SQLite database file; empty disables the journal.
	Path string `yaml:"path,omitempty"`
}

// HostTypeNormalized returns the normalized host type (lowercasing the raw
// string). Unknown hosts return "" so callers can branch safely.
func (r RemoteConfig) HostTypeNormalized() HostType {
	s := strings.ToLower(strings.TrimSpace(string(r.Host)))
	switch s {
	case string(HostGitHub), "":
		return HostGitHub
	default:
		return ""
	}
}
