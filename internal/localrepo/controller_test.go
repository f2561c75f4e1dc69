package localrepo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/require"

	perrors "git.home.luguber.info/inful/pagepub/internal/errors"
	"git.home.luguber.info/inful/pagepub/internal/events"
)

func newBareRemote(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := git.PlainInit(dir, true)
	require.NoError(t, err)
	return dir
}

func drainStatuses(ch <-chan events.RepoStatusChanged) []events.LocalRepoStatus {
	var out []events.LocalRepoStatus
	for {
		select {
		case evt := <-ch:
			out = append(out, evt.Status)
		default:
			return out
		}
	}
}

func TestInitAndPush(t *testing.T) {
	bare := newBareRemote(t)
	work := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(work, "index.html"), []byte("<html></html>"), 0o600))

	bus := events.NewBus()
	defer bus.Close()
	statusCh, unsub := events.Subscribe[events.RepoStatusChanged](bus, 16)
	defer unsub()

	c := NewController(bus)
	require.NoError(t, c.Init(context.Background(), RemoteSpec{URL: bare, Branch: "master"}, work))

	statuses := drainStatuses(statusCh)
	require.Equal(t, []events.LocalRepoStatus{events.RepoInitializing, events.RepoReady}, statuses)

	require.NoError(t, c.Push(context.Background(), []string{"index.html"}, false))

	remote, err := git.PlainOpen(bare)
	require.NoError(t, err)
	ref, err := remote.Reference("refs/heads/master", true)
	require.NoError(t, err)
	require.False(t, ref.Hash().IsZero())

	statuses = drainStatuses(statusCh)
	require.Contains(t, statuses, events.RepoReady)
}

func TestPush_NoChangesSignalsSuccessThroughErrorChannel(t *testing.T) {
	bare := newBareRemote(t)
	work := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(work, "index.html"), []byte("x"), 0o600))

	c := NewController(nil)
	require.NoError(t, c.Init(context.Background(), RemoteSpec{URL: bare, Branch: "master"}, work))
	require.NoError(t, c.Push(context.Background(), []string{"index.html"}, false))

	// Second push with nothing new resolves as a classified success.
	err := c.Push(context.Background(), []string{"index.html"}, false)
	pe := AsPushError(err)
	require.NotNil(t, pe)
	require.Equal(t, OutcomeSuccess, pe.Type)
}

func TestPush_AfterTerminateIsRejected(t *testing.T) {
	bare := newBareRemote(t)
	work := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(work, "index.html"), []byte("x"), 0o600))

	c := NewController(nil)
	require.NoError(t, c.Init(context.Background(), RemoteSpec{URL: bare, Branch: "master"}, work))

	c.Terminate()
	err := c.Push(context.Background(), []string{"index.html"}, false)
	pe := AsPushError(err)
	require.NotNil(t, pe)
	require.Equal(t, OutcomeTerminated, pe.Type)

	// Init clears the terminate latch.
	require.NoError(t, c.Init(context.Background(), RemoteSpec{URL: bare, Branch: "master"}, work))
	require.NoError(t, c.Push(context.Background(), []string{"index.html"}, false))
}

func TestPush_ForceFullInitRebuildsHistory(t *testing.T) {
	bare := newBareRemote(t)
	work := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(work, "index.html"), []byte("v1"), 0o600))

	c := NewController(nil)
	require.NoError(t, c.Init(context.Background(), RemoteSpec{URL: bare, Branch: "master"}, work))
	require.NoError(t, c.Push(context.Background(), []string{"index.html"}, false))

	require.NoError(t, os.WriteFile(filepath.Join(work, "index.html"), []byte("v2"), 0o600))
	require.NoError(t, c.Push(context.Background(), []string{"index.html"}, true))

	// Full reinit discards local history: exactly one commit on the branch.
	remote, err := git.PlainOpen(bare)
	require.NoError(t, err)
	ref, err := remote.Reference("refs/heads/master", true)
	require.NoError(t, err)
	commit, err := remote.CommitObject(ref.Hash())
	require.NoError(t, err)
	require.Equal(t, 0, commit.NumParents())
}

func TestInit_MissingRemoteReportsMissingRepository(t *testing.T) {
	work := t.TempDir()

	bus := events.NewBus()
	defer bus.Close()
	statusCh, unsub := events.Subscribe[events.RepoStatusChanged](bus, 16)
	defer unsub()

	c := NewController(bus)
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	_ = c.Init(context.Background(), RemoteSpec{URL: missing, Branch: "master"}, work)

	statuses := drainStatuses(statusCh)
	require.Equal(t, events.RepoMissingRepository, statuses[len(statuses)-1])
}

func TestClassifyPushError(t *testing.T) {
	ctx := context.Background()

	pe := AsPushError(classifyPushError(ctx, "u", git.NoErrAlreadyUpToDate))
	require.NotNil(t, pe)
	require.Equal(t, OutcomeSuccess, pe.Type)

	pe = AsPushError(classifyPushError(ctx, "u", errors.New("authentication required")))
	require.NotNil(t, pe)
	require.Equal(t, OutcomeFail, pe.Type)

	pe = AsPushError(classifyPushError(ctx, "u", errors.New("non-fast-forward update")))
	require.NotNil(t, pe)
	require.Equal(t, OutcomeFail, pe.Type)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	pe = AsPushError(classifyPushError(canceled, "u", errors.New("some transport failure")))
	require.NotNil(t, pe)
	require.Equal(t, OutcomeTerminated, pe.Type)

	// Unrecognized errors pass through unclassified, wrapped with git context.
	raw := errors.New("object database corrupt")
	got := classifyPushError(ctx, "u", raw)
	require.Nil(t, AsPushError(got))
	require.ErrorIs(t, got, raw)
	require.True(t, perrors.IsCategory(got, perrors.CategoryGit))
}
