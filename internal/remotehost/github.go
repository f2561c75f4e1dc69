// Package remotehost manages the remote hosting repository through the
// provider's HTTP API: existence probing, creation, and naming.
package remotehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/pagepub/internal/credentials"
	perrors "git.home.luguber.info/inful/pagepub/internal/errors"
	"git.home.luguber.info/inful/pagepub/internal/events"
	"git.home.luguber.info/inful/pagepub/internal/metrics"
	"git.home.luguber.info/inful/pagepub/internal/retry"
)

// Client is the remote hosting contract the orchestrator drives.
type Client interface {
	// Init reinitializes the client with a credential snapshot and refreshes
	// the cached repository name.
	Init(info credentials.Info)

	// DefaultRepositoryName returns the host's conventional user-site name.
	DefaultRepositoryName() string

	// RepositoryName returns the effective repository name (override or default).
	RepositoryName() string

	// CloneURL returns the https clone URL for the effective repository.
	CloneURL() string

	// RepositoryMissing reports whether the last probe found no repository.
	RepositoryMissing() bool

	// Refresh probes the remote repository and updates cached metadata.
	Refresh(ctx context.Context) error

	// CreateRepository creates the remote repository.
	CreateRepository(ctx context.Context) error
}

// GitHubClient implements Client against the GitHub REST API.
type GitHubClient struct {
	httpClient *http.Client
	apiURL     string
	baseURL    string
	bus        *events.Bus
	recorder   metrics.Recorder
	policy     retry.Policy

	mu      sync.RWMutex
	info    credentials.Info
	name    string
	missing bool
}

// NewGitHubClient creates a GitHub client. apiURL and baseURL default to the
// public endpoints when empty.
func NewGitHubClient(apiURL, baseURL string, policy retry.Policy, bus *events.Bus) *GitHubClient {
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}
	if baseURL == "" {
		baseURL = "https://github.com"
	}
	return &GitHubClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiURL:     strings.TrimRight(apiURL, "/"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		bus:        bus,
		recorder:   metrics.NoopRecorder{},
		policy:     policy,
	}
}

// WithRecorder attaches a metrics recorder (fluent helper).
func (c *GitHubClient) WithRecorder(r metrics.Recorder) *GitHubClient {
	if r != nil {
		c.recorder = r
	}
	return c
}

func (c *GitHubClient) publishInfoChanged() {
	if c.bus != nil {
		_ = c.bus.Publish(context.Background(), events.RemoteInfoChanged{})
	}
}

// Init stores the credential snapshot and recomputes the cached repository
// name. Existence is unknown until the next Refresh.
func (c *GitHubClient) Init(info credentials.Info) {
	c.mu.Lock()
	c.info = info
	if strings.TrimSpace(info.Repository) != "" {
		c.name = strings.TrimSpace(info.Repository)
	} else {
		c.name = defaultRepositoryName(info.UserName)
	}
	c.missing = false
	c.mu.Unlock()

	c.publishInfoChanged()
}

func defaultRepositoryName(user string) string {
	user = strings.TrimSpace(user)
	if user == "" {
		return ""
	}
	return user + ".github.io"
}

func (c *GitHubClient) DefaultRepositoryName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return defaultRepositoryName(c.info.UserName)
}

func (c *GitHubClient) RepositoryName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

func (c *GitHubClient) CloneURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.info.UserName == "" || c.name == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s.git", c.baseURL, c.info.UserName, c.name)
}

func (c *GitHubClient) RepositoryMissing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.missing
}

// Refresh probes repository existence and updates the missing flag,
// emitting InfoChanged when the answer differs from the cached one.
func (c *GitHubClient) Refresh(ctx context.Context) error {
	c.mu.RLock()
	user, name, token := c.info.UserName, c.name, c.info.Token
	c.mu.RUnlock()
	if user == "" || name == "" {
		return perrors.ConfigRequired("remote repository name")
	}

	var missing bool
	err := retry.Do(ctx, c.policy, func() error {
		endpoint := fmt.Sprintf("%s/repos/%s/%s", c.apiURL, user, name)
		status, _, err := c.do(ctx, http.MethodGet, endpoint, token, nil)
		if err != nil {
			c.recorder.IncRemoteAPICall("repository_exists", false)
			return perrors.RemoteTimeout(endpoint, err)
		}
		switch {
		case status == http.StatusOK:
			missing = false
		case status == http.StatusNotFound:
			missing = true
		case status >= 500:
			c.recorder.IncRemoteAPICall("repository_exists", false)
			return perrors.WrapRetryable(fmt.Errorf("status %d", status), perrors.CategoryRemote, perrors.SeverityWarning, "repository probe failed").
				WithContext("endpoint", endpoint)
		default:
			c.recorder.IncRemoteAPICall("repository_exists", false)
			return perrors.RemoteAPIError(endpoint, status, fmt.Errorf("unexpected status"))
		}
		c.recorder.IncRemoteAPICall("repository_exists", true)
		return nil
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	changed := c.missing != missing
	c.missing = missing
	c.mu.Unlock()
	if changed {
		c.publishInfoChanged()
	}
	return nil
}

// CreateRepository creates the effective repository under the authenticated
// user. Failures propagate to the caller unclassified.
func (c *GitHubClient) CreateRepository(ctx context.Context) error {
	c.mu.RLock()
	name, token := c.name, c.info.Token
	c.mu.RUnlock()
	if name == "" {
		return perrors.ConfigRequired("remote repository name")
	}

	body, err := json.Marshal(map[string]any{
		"name":        name,
		"description": "Published with pagepub",
		"has_issues":  false,
		"has_wiki":    false,
	})
	if err != nil {
		return err
	}

	endpoint := c.apiURL + "/user/repos"
	err = retry.Do(ctx, c.policy, func() error {
		status, respBody, err := c.do(ctx, http.MethodPost, endpoint, token, body)
		if err != nil {
			c.recorder.IncRemoteAPICall("create_repository", false)
			return perrors.RemoteTimeout(endpoint, err)
		}
		switch {
		case status == http.StatusCreated:
			c.recorder.IncRemoteAPICall("create_repository", true)
			return nil
		case status >= 500:
			c.recorder.IncRemoteAPICall("create_repository", false)
			return perrors.WrapRetryable(fmt.Errorf("status %d", status), perrors.CategoryRemote, perrors.SeverityWarning, "repository creation failed").
				WithContext("endpoint", endpoint)
		default:
			c.recorder.IncRemoteAPICall("create_repository", false)
			return perrors.RemoteAPIError(endpoint, status, fmt.Errorf("%s", strings.TrimSpace(string(respBody))))
		}
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.missing = false
	c.mu.Unlock()
	c.publishInfoChanged()
	return nil
}

// do performs one API request and returns status plus body.
func (c *GitHubClient) do(ctx context.Context, method, endpoint, token string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}
