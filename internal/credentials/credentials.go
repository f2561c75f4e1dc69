// Package credentials holds the hosting credential model and its persistence.
//
// Non-secret fields (username, email, repository override) live in a YAML
// file; the token comes only from the environment (PAGEPUB_TOKEN, typically
// via .env) and is never written back to disk.
package credentials

import "strings"

// Info is the credential snapshot the orchestrator works with.
type Info struct {
	UserName   string `yaml:"username"`
	Email      string `yaml:"email"`
	Token      string `yaml:"-"` // secret; never persisted through this package
	Repository string `yaml:"repository,omitempty"`
}

// Partial carries a subset of credential fields for merging. Empty fields are
// treated as "not provided" and leave the current value unchanged. There is
// deliberately no Token field: the token cannot be updated through a merge.
type Partial struct {
	UserName   string `yaml:"username,omitempty"`
	Email      string `yaml:"email,omitempty"`
	Repository string `yaml:"repository,omitempty"`
}

// isSet reports whether a value counts as provided: absent and
// whitespace-only both mean unset.
func isSet(s string) bool { return strings.TrimSpace(s) != "" }

// IsValid reports whether the credentials are complete enough to publish:
// username, email and token must all be set.
func (i Info) IsValid() bool {
	return isSet(i.UserName) && isSet(i.Email) && isSet(i.Token)
}

// Merge returns a copy of i with the provided partial fields applied.
// The token is always carried over untouched.
func (i Info) Merge(p Partial) Info {
	out := i
	if isSet(p.UserName) {
		out.UserName = p.UserName
	}
	if isSet(p.Email) {
		out.Email = p.Email
	}
	if isSet(p.Repository) {
		out.Repository = p.Repository
	}
	return out
}

// Default returns the built-in credential template used as the bottom layer
// when loading persisted settings.
func Default() Info {
	return Info{}
}
