// Package localrepo manages the local working copy of the generated site and
// its pushes to the remote hosting repository.
package localrepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	perrors "git.home.luguber.info/inful/pagepub/internal/errors"
	"git.home.luguber.info/inful/pagepub/internal/events"
	"git.home.luguber.info/inful/pagepub/internal/logfields"
)

// RemoteSpec describes the remote target of the working copy.
type RemoteSpec struct {
	URL           string
	Branch        string
	UserName      string
	Token         string
	CommitMessage string
}

// Controller owns the working copy rooted at the generator output directory.
// It reports status transitions and progress lines on the event bus.
type Controller struct {
	bus *events.Bus

	mu        sync.Mutex
	dir       string
	spec      RemoteSpec
	repo      *git.Repository
	cancel    context.CancelFunc // cancels the in-flight push, if any
	terminate bool               // set by Terminate; cleared when a new push is allowed again by Init
}

// NewController creates a controller publishing events on bus.
func NewController(bus *events.Bus) *Controller {
	return &Controller{bus: bus}
}

func (c *Controller) publishStatus(status events.LocalRepoStatus) {
	if c.bus != nil {
		_ = c.bus.Publish(context.Background(), events.RepoStatusChanged{Status: status})
	}
}

func (c *Controller) publishProgress(phase, message string) {
	if c.bus != nil {
		_ = c.bus.Publish(context.Background(), events.RepoProgress{Phase: phase, Message: message})
	}
}

func (c *Controller) publishMessage(message string) {
	if c.bus != nil {
		_ = c.bus.Publish(context.Background(), events.RepoMessage{Message: message})
	}
}

// Init prepares the working copy at outputDir against the remote target and
// probes remote reachability. The resulting readiness is reported via status
// events; the returned error carries the same information for callers that
// want it.
func (c *Controller) Init(ctx context.Context, spec RemoteSpec, outputDir string) error {
	c.mu.Lock()
	c.dir = outputDir
	c.spec = spec
	c.terminate = false
	c.mu.Unlock()

	c.publishStatus(events.RepoInitializing)

	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		c.publishStatus(events.RepoFail)
		return fmt.Errorf("create working copy dir: %w", err)
	}

	repo, err := c.openOrInit(outputDir, spec)
	if err != nil {
		c.publishStatus(events.RepoFail)
		return err
	}
	c.mu.Lock()
	c.repo = repo
	c.mu.Unlock()

	status, probeErr := c.probeRemote(ctx, repo, spec)
	c.publishStatus(status)
	if status == events.RepoFail {
		slog.Warn("remote probe failed", logfields.Remote(spec.URL), logfields.Error(probeErr))
		return perrors.GitNetworkError(spec.URL, probeErr)
	}
	return nil
}

// openOrInit opens the existing repository or initializes a fresh one with
// HEAD pointed at the configured branch and origin set to the remote URL.
func (c *Controller) openOrInit(dir string, spec RemoteSpec) (*git.Repository, error) {
	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(dir, false)
		if err == nil && spec.Branch != "" {
			head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(spec.Branch))
			err = repo.Storer.SetReference(head)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open working copy: %w", err)
	}

	// (Re)point origin at the configured URL; a stale remote is replaced.
	if remote, rerr := repo.Remote(git.DefaultRemoteName); rerr == nil {
		if len(remote.Config().URLs) != 1 || remote.Config().URLs[0] != spec.URL {
			if derr := repo.DeleteRemote(git.DefaultRemoteName); derr != nil {
				return nil, fmt.Errorf("replace remote: %w", derr)
			}
		} else {
			return repo, nil
		}
	}
	_, err = repo.CreateRemote(&gitcfg.RemoteConfig{
		Name: git.DefaultRemoteName,
		URLs: []string{spec.URL},
	})
	if err != nil && !errors.Is(err, git.ErrRemoteExists) {
		return nil, fmt.Errorf("create remote: %w", err)
	}
	return repo, nil
}

// probeRemote lists remote refs to distinguish ready / missing / unreachable.
func (c *Controller) probeRemote(ctx context.Context, repo *git.Repository, spec RemoteSpec) (events.LocalRepoStatus, error) {
	remote, err := repo.Remote(git.DefaultRemoteName)
	if err != nil {
		return events.RepoFail, err
	}
	_, err = remote.ListContext(ctx, &git.ListOptions{Auth: authFor(spec)})
	switch {
	case err == nil, errors.Is(err, transport.ErrEmptyRemoteRepository):
		return events.RepoReady, nil
	case errors.Is(err, transport.ErrRepositoryNotFound),
		strings.Contains(strings.ToLower(err.Error()), "repository not found"):
		return events.RepoMissingRepository, nil
	default:
		return events.RepoFail, err
	}
}

// authFor returns token auth for http(s) remotes; file and ssh remotes carry
// their own transport auth.
func authFor(spec RemoteSpec) transport.AuthMethod {
	if spec.Token == "" || !strings.HasPrefix(spec.URL, "http") {
		return nil
	}
	user := spec.UserName
	if user == "" {
		user = "git"
	}
	return &githttp.BasicAuth{Username: user, Password: spec.Token}
}

// Terminate requests cooperative cancellation of the in-flight push (if any)
// and prevents a new push from starting until the next Init. Fire-and-forget.
func (c *Controller) Terminate() {
	c.mu.Lock()
	c.terminate = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.publishMessage("terminate requested")
}

// Push stages the given files (paths relative to the working copy root),
// commits, and pushes to the remote branch. When forceFullInit is true the
// local history is discarded first and the push is forced, rebuilding remote
// state from scratch.
//
// Terminal outcomes are classified as *PushError; unexpected failures are
// returned as-is.
func (c *Controller) Push(ctx context.Context, files []string, forceFullInit bool) error {
	c.mu.Lock()
	if c.terminate {
		c.mu.Unlock()
		return &PushError{Type: OutcomeTerminated, Message: "termination requested before push"}
	}
	if c.repo == nil {
		c.mu.Unlock()
		return &PushError{Type: OutcomeFail, Message: "working copy not initialized"}
	}
	pushCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	dir, spec := c.dir, c.spec
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
	}()

	err := c.pushOnce(pushCtx, dir, spec, files, forceFullInit)
	if pe := AsPushError(err); pe != nil {
		switch pe.Type {
		case OutcomeFail:
			c.publishStatus(events.RepoFail)
		case OutcomeSuccess:
			c.publishStatus(events.RepoReady)
		}
	} else if err == nil {
		c.publishStatus(events.RepoReady)
	}
	return err
}

func (c *Controller) pushOnce(ctx context.Context, dir string, spec RemoteSpec, files []string, forceFullInit bool) error {
	repo := c.currentRepo()

	if forceFullInit {
		c.publishProgress("reinitializing", "rebuilding local history")
		var err error
		repo, err = c.reinit(dir, spec)
		if err != nil {
			return &PushError{Type: OutcomeFail, Message: err.Error()}
		}
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}

	c.publishProgress("staging", fmt.Sprintf("staging %d files", len(files)))
	if len(files) == 0 {
		if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
			return &PushError{Type: OutcomeFail, Message: fmt.Sprintf("stage files: %v", err)}
		}
	} else {
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return &PushError{Type: OutcomeTerminated, Message: "terminated while staging"}
			}
			if _, err := worktree.Add(filepath.FromSlash(f)); err != nil {
				return &PushError{Type: OutcomeFail, Message: fmt.Sprintf("stage %s: %v", f, err)}
			}
		}
	}

	c.publishProgress("committing", "committing site")
	author := &object.Signature{Name: "pagepub", Email: "pagepub@localhost", When: time.Now()}
	if strings.TrimSpace(spec.UserName) != "" {
		author.Name = spec.UserName
		author.Email = spec.UserName + "@users.noreply.github.com"
	}
	_, err = worktree.Commit(nonEmpty(spec.CommitMessage, "update site"), &git.CommitOptions{Author: author})
	if err != nil && !errors.Is(err, git.ErrEmptyCommit) {
		return &PushError{Type: OutcomeFail, Message: fmt.Sprintf("commit: %v", err)}
	}

	if err := ctx.Err(); err != nil {
		return &PushError{Type: OutcomeTerminated, Message: "terminated before push"}
	}

	c.publishProgress("pushing", "pushing to remote")
	branch := nonEmpty(spec.Branch, "master")
	refSpec := gitcfg.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []gitcfg.RefSpec{refSpec},
		Auth:       authFor(spec),
		Force:      forceFullInit,
	})
	if err != nil {
		return classifyPushError(ctx, spec.URL, err)
	}

	c.publishMessage("push complete")
	return nil
}

// reinit discards local history and starts a fresh repository, so the forced
// push rebuilds the remote branch from scratch.
func (c *Controller) reinit(dir string, spec RemoteSpec) (*git.Repository, error) {
	if err := os.RemoveAll(filepath.Join(dir, ".git")); err != nil {
		return nil, fmt.Errorf("remove stale history: %w", err)
	}
	repo, err := c.openOrInit(dir, spec)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.repo = repo
	c.mu.Unlock()
	return repo, nil
}

func (c *Controller) currentRepo() *git.Repository {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.repo
}

// classifyPushError maps go-git push results onto the bounded outcome
// taxonomy. Unrecognized failures pass through unclassified.
func classifyPushError(ctx context.Context, url string, err error) error {
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		// Success signaled through the error channel.
		return &PushError{Type: OutcomeSuccess, Message: "already up to date"}
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return &PushError{Type: OutcomeTerminated, Message: "push terminated"}
	}

	l := strings.ToLower(err.Error())
	switch {
	case strings.Contains(l, "authentication") || strings.Contains(l, "authorization") || strings.Contains(l, "invalid username or password"):
		return &PushError{Type: OutcomeFail, Message: fmt.Sprintf("authentication failed for %s", url)}
	case strings.Contains(l, "non-fast-forward"):
		return &PushError{Type: OutcomeFail, Message: "remote has diverged (non-fast-forward)"}
	case strings.Contains(l, "repository not found"):
		return &PushError{Type: OutcomeFail, Message: fmt.Sprintf("remote repository missing: %s", url)}
	case strings.Contains(l, "timeout") || strings.Contains(l, "i/o timeout") || strings.Contains(l, "connection refused"):
		return &PushError{Type: OutcomeFail, Message: fmt.Sprintf("network failure pushing to %s", url)}
	}
	// Unrecognized failures stay unclassified but get the structured wrap.
	return perrors.GitPushError(url, err)
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
