package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagepub/internal/config"
	"git.home.luguber.info/inful/pagepub/internal/credentials"
	"git.home.luguber.info/inful/pagepub/internal/events"
	"git.home.luguber.info/inful/pagepub/internal/localrepo"
)

// --- fakes ------------------------------------------------------------------

type fakeGen struct {
	mu    sync.Mutex
	files []string
	err   error
	block chan struct{} // when non-nil, GenerateSite waits on it
	bus   *events.Bus   // when non-nil, emits PageGenerated per file
	calls int
}

func (g *fakeGen) GenerateSite(ctx context.Context) ([]string, error) {
	g.mu.Lock()
	g.calls++
	block := g.block
	bus := g.bus
	g.mu.Unlock()
	if block != nil {
		<-block
	}
	if bus != nil {
		for _, f := range g.files {
			_ = bus.Publish(ctx, events.PageGenerated{Page: f, Message: "rendered " + f})
		}
	}
	return g.files, g.err
}

func (g *fakeGen) OutputDir() string { return "/tmp/fake-site" }

type pushCall struct {
	files []string
	force bool
}

type fakeRepo struct {
	mu         sync.Mutex
	initCalls  int
	initSpec   localrepo.RemoteSpec
	pushErr    error
	pushBlock  chan struct{}
	bus        *events.Bus // when non-nil, emits RepoProgress before resolving
	pushCalls  []pushCall
	terminated int
}

func (r *fakeRepo) Init(_ context.Context, spec localrepo.RemoteSpec, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initCalls++
	r.initSpec = spec
	return nil
}

func (r *fakeRepo) Push(ctx context.Context, files []string, force bool) error {
	r.mu.Lock()
	r.pushCalls = append(r.pushCalls, pushCall{files: files, force: force})
	block := r.pushBlock
	bus := r.bus
	err := r.pushErr
	r.mu.Unlock()
	if bus != nil {
		_ = bus.Publish(ctx, events.RepoProgress{Phase: "pushing", Message: "pushing to remote"})
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return &localrepo.PushError{Type: localrepo.OutcomeTerminated, Message: "push terminated"}
		}
	}
	return err
}

func (r *fakeRepo) Terminate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminated++
}

func (r *fakeRepo) pushes() []pushCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]pushCall, len(r.pushCalls))
	copy(out, r.pushCalls)
	return out
}

type fakeRemote struct {
	mu        sync.Mutex
	info      credentials.Info
	initCalls int
	missing   bool
	createErr error
	creates   int
}

func (f *fakeRemote) Init(info credentials.Info) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.info = info
	f.initCalls++
}

func (f *fakeRemote) DefaultRepositoryName() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info.UserName + ".github.io"
}

func (f *fakeRemote) RepositoryName() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.info.Repository != "" {
		return f.info.Repository
	}
	return f.info.UserName + ".github.io"
}

func (f *fakeRemote) CloneURL() string { return "https://example.invalid/site.git" }

func (f *fakeRemote) RepositoryMissing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.missing
}

func (f *fakeRemote) Refresh(context.Context) error { return nil }

func (f *fakeRemote) CreateRepository(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	f.missing = false
	return nil
}

type fakeStore struct {
	mu        sync.Mutex
	token     string
	persisted credentials.Partial
	saved     []credentials.Partial
}

func (s *fakeStore) SecretToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.token != ""
}

func (s *fakeStore) Load() (credentials.Partial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persisted, nil
}

func (s *fakeStore) Save(p credentials.Partial) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, p)
	s.persisted = p
	return nil
}

// --- harness ----------------------------------------------------------------

type harness struct {
	orch   *Orchestrator
	gen    *fakeGen
	repo   *fakeRepo
	remote *fakeRemote
	store  *fakeStore
	bus    *events.Bus
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	if opts.GraceWindow == 0 {
		opts.GraceWindow = time.Millisecond
	}
	h := &harness{
		gen:    &fakeGen{files: []string{"index.html"}},
		repo:   &fakeRepo{},
		remote: &fakeRemote{},
		store:  &fakeStore{token: "tok", persisted: credentials.Partial{UserName: "alice", Email: "a@x.com"}},
		bus:    events.NewBus(),
	}
	cfg := &config.Config{}
	cfg.Remote.Branch = "master"
	cfg.Publish.GraceWindow = opts.GraceWindow
	h.orch = New(context.Background(), cfg, h.gen, h.repo, h.remote, h.store, h.bus, opts)
	t.Cleanup(func() {
		h.bus.Close()
		h.orch.Close()
	})
	return h
}

// --- construction -----------------------------------------------------------

func TestNew_LoadsCredentialsAndInitializesCollaborators(t *testing.T) {
	h := newHarness(t, Options{})

	require.True(t, h.orch.IsCredentialValid())
	require.Equal(t, "alice", h.orch.CredentialInfo().UserName)
	require.Equal(t, "tok", h.orch.CredentialInfo().Token)
	require.Equal(t, "/tmp/fake-site", h.orch.OutputDir())
	require.Equal(t, 1, h.remote.initCalls, "valid merged credentials initialize the remote client")
	require.Equal(t, 1, h.repo.initCalls)
	require.True(t, h.orch.IsDefaultRepository())
}

func TestNew_InvalidCredentialsSkipRemoteInit(t *testing.T) {
	h := &harness{
		gen:    &fakeGen{},
		repo:   &fakeRepo{},
		remote: &fakeRemote{},
		store:  &fakeStore{}, // no token
		bus:    events.NewBus(),
	}
	defer h.bus.Close()
	cfg := &config.Config{}
	cfg.Publish.GraceWindow = time.Millisecond
	orch := New(context.Background(), cfg, h.gen, h.repo, h.remote, h.store, h.bus, Options{})
	defer orch.Close()

	require.False(t, orch.IsCredentialValid())
	require.Equal(t, 0, h.remote.initCalls)
}

func TestNew_ConfigRepositoryIsFallbackForCredentialsOverride(t *testing.T) {
	gen := &fakeGen{}
	repo := &fakeRepo{}
	remote := &fakeRemote{}
	store := &fakeStore{token: "tok", persisted: credentials.Partial{UserName: "alice", Email: "a@x.com"}}
	cfg := &config.Config{}
	cfg.Remote.Repository = "blog"
	cfg.Publish.GraceWindow = time.Millisecond

	orch := New(context.Background(), cfg, gen, repo, remote, store, nil, Options{})
	defer orch.Close()
	require.Equal(t, "blog", orch.CredentialInfo().Repository)
	require.False(t, orch.IsDefaultRepository())

	// A credentials-file override wins over the config fallback.
	store2 := &fakeStore{token: "tok", persisted: credentials.Partial{UserName: "alice", Email: "a@x.com", Repository: "notes"}}
	orch2 := New(context.Background(), cfg, gen, repo, &fakeRemote{}, store2, nil, Options{})
	defer orch2.Close()
	require.Equal(t, "notes", orch2.CredentialInfo().Repository)
}

// --- generate workflow ------------------------------------------------------

func TestGenerateSite_Success(t *testing.T) {
	h := newHarness(t, Options{})
	h.gen.files = []string{"a.html", "b.html", "c.html", "d.html", "index.html"}

	require.NoError(t, h.orch.GenerateSite(context.Background()))

	progress := h.orch.GeneratingProgress()
	require.Equal(t, "success", progress.Result)
	require.Equal(t, "5 files in totals", progress.Message)
	require.Equal(t, h.gen.files, h.orch.Files())
	require.False(t, h.orch.IsGenerating())
}

func TestGenerateSite_FailureIsAbsorbed(t *testing.T) {
	h := newHarness(t, Options{})
	h.gen.err = errors.New("render exploded")

	require.NoError(t, h.orch.GenerateSite(context.Background()), "generation failures are never rethrown")

	progress := h.orch.GeneratingProgress()
	require.Equal(t, "fail", progress.Result)
	require.Equal(t, "render exploded", progress.Message)
	require.False(t, h.orch.IsGenerating())
}

func TestGenerateSite_ReentrancyGuard(t *testing.T) {
	h := newHarness(t, Options{})
	h.gen.block = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- h.orch.GenerateSite(context.Background()) }()

	require.Eventually(t, h.orch.IsGenerating, time.Second, time.Millisecond)
	require.ErrorIs(t, h.orch.GenerateSite(context.Background()), ErrGenerateInFlight)

	close(h.gen.block)
	require.NoError(t, <-done)
	require.Equal(t, 1, h.gen.calls)
}

func TestGenerateSite_VetoBlocksStart(t *testing.T) {
	veto := errors.New("generation forbidden during active warning")
	h := newHarness(t, Options{GenerateVeto: func() error { return veto }})

	require.ErrorIs(t, h.orch.GenerateSite(context.Background()), veto)
	require.Equal(t, 0, h.gen.calls)
	require.Equal(t, GeneratingProgress{}, h.orch.GeneratingProgress())
}

// --- publish workflow -------------------------------------------------------

func TestPublish_InvalidCredentialsFailBeforeAnyMutation(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.mu.Lock()
	h.store.token = ""
	h.store.mu.Unlock()

	// Reload credential state without a token.
	cfg := &config.Config{}
	cfg.Publish.GraceWindow = time.Millisecond
	orch := New(context.Background(), cfg, h.gen, h.repo, h.remote, h.store, nil, Options{})
	defer orch.Close()

	err := orch.Publish(context.Background(), false)
	require.ErrorIs(t, err, ErrCredentialInvalid)
	require.False(t, orch.IsPublishing())
	require.Empty(t, h.repo.pushes())
	require.Equal(t, PublishingProgress{}, orch.PublishingProgress())
}

func TestPublish_UsesFilesFromLastGenerate(t *testing.T) {
	h := newHarness(t, Options{})
	h.gen.files = []string{"index.html", "posts/a.html"}

	require.NoError(t, h.orch.GenerateSite(context.Background()))
	require.NoError(t, h.orch.Publish(context.Background(), false))

	pushes := h.repo.pushes()
	require.Len(t, pushes, 1)
	require.Equal(t, []string{"index.html", "posts/a.html"}, pushes[0].files)
	require.False(t, pushes[0].force)
	require.Equal(t, OutcomeSuccess, h.orch.PublishingProgress().Result)
	require.False(t, h.orch.IsPublishing())
}

func TestPublish_BeforeAnyGenerateUsesEmptyFileList(t *testing.T) {
	h := newHarness(t, Options{})

	require.NoError(t, h.orch.Publish(context.Background(), false))

	pushes := h.repo.pushes()
	require.Len(t, pushes, 1)
	require.Empty(t, pushes[0].files)
}

func TestPublish_ReentrantCallIsNoOp(t *testing.T) {
	h := newHarness(t, Options{})
	h.repo.pushBlock = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- h.orch.Publish(context.Background(), false) }()

	require.Eventually(t, h.orch.IsPublishing, time.Second, time.Millisecond)
	require.NoError(t, h.orch.Publish(context.Background(), false), "re-entrant publish is a silent no-op")
	require.Len(t, h.repo.pushes(), 1)

	close(h.repo.pushBlock)
	require.NoError(t, <-done)
}

func TestPublish_PreviousFailForcesFullReinitAndReset(t *testing.T) {
	h := newHarness(t, Options{})
	h.repo.pushErr = &localrepo.PushError{Type: localrepo.OutcomeFail, Message: "network down"}

	require.NoError(t, h.orch.Publish(context.Background(), false))
	progress := h.orch.PublishingProgress()
	require.Equal(t, OutcomeFail, progress.Result)
	require.Equal(t, "network down Publishing failed. Please retry, and report the issue if it persists.", progress.Message)

	// Next attempt resets progress and pushes with forceFullInit.
	h.repo.mu.Lock()
	h.repo.pushErr = nil
	h.repo.mu.Unlock()

	require.NoError(t, h.orch.Publish(context.Background(), false))
	pushes := h.repo.pushes()
	require.Len(t, pushes, 2)
	require.True(t, pushes[1].force)
	require.Equal(t, OutcomeSuccess, h.orch.PublishingProgress().Result)
}

func TestPublish_LocalRepoFailStatusForcesFullReinit(t *testing.T) {
	h := newHarness(t, Options{})

	require.NoError(t, h.bus.Publish(context.Background(), events.RepoStatusChanged{Status: events.RepoFail}))
	require.Eventually(t, func() bool {
		return h.orch.LocalRepoStatus() == events.RepoFail
	}, time.Second, time.Millisecond)

	require.NoError(t, h.orch.Publish(context.Background(), false))
	pushes := h.repo.pushes()
	require.Len(t, pushes, 1)
	require.True(t, pushes[0].force)
}

func TestPublish_CreateRepositoryOnlyWhenMissing(t *testing.T) {
	h := newHarness(t, Options{})

	// Not missing: no creation even when requested.
	require.NoError(t, h.orch.Publish(context.Background(), true))
	require.Equal(t, 0, h.remote.creates)

	h.remote.mu.Lock()
	h.remote.missing = true
	h.remote.mu.Unlock()

	require.NoError(t, h.orch.Publish(context.Background(), true))
	require.Equal(t, 1, h.remote.creates)
	require.False(t, h.orch.IsRepositoryMissing())
}

func TestPublish_RepositoryCreationFailurePropagatesUnclassified(t *testing.T) {
	h := newHarness(t, Options{})
	creationErr := errors.New("403 rate limited")
	h.remote.mu.Lock()
	h.remote.missing = true
	h.remote.createErr = creationErr
	h.remote.mu.Unlock()

	err := h.orch.Publish(context.Background(), true)
	require.ErrorIs(t, err, creationErr)
	require.Empty(t, h.repo.pushes(), "failed creation stops the attempt before the push")
	require.False(t, h.orch.IsPublishing())
}

func TestStopPublishing_DuringGraceWindowPreventsPush(t *testing.T) {
	h := newHarness(t, Options{GraceWindow: 500 * time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- h.orch.Publish(context.Background(), false) }()
	require.Eventually(t, h.orch.IsPublishing, time.Second, time.Millisecond)

	h.orch.StopPublishing()
	require.NoError(t, <-done)

	require.Empty(t, h.repo.pushes(), "push must never start after termination")
	require.Equal(t, 1, h.repo.terminated)
	progress := h.orch.PublishingProgress()
	require.Equal(t, OutcomeTerminated, progress.Result)
	require.Equal(t, "Publishing terminated.", progress.Message)
	require.False(t, h.orch.IsPublishing())
}

func TestStopPublishing_DuringPushResolvesTerminated(t *testing.T) {
	h := newHarness(t, Options{})
	h.repo.pushBlock = make(chan struct{}) // push blocks until ctx canceled

	done := make(chan error, 1)
	go func() { done <- h.orch.Publish(context.Background(), false) }()
	require.Eventually(t, func() bool { return len(h.repo.pushes()) == 1 }, time.Second, time.Millisecond)

	h.orch.StopPublishing()
	require.NoError(t, <-done)

	progress := h.orch.PublishingProgress()
	require.Equal(t, OutcomeTerminated, progress.Result)
	require.Contains(t, progress.Message, "Publishing terminated.")
}

func TestPublish_ClassifiedResultWinsOverInFlightProgress(t *testing.T) {
	h := newHarness(t, Options{})
	h.repo.bus = h.bus // pushes announce themselves like the real controller
	h.repo.pushErr = &localrepo.PushError{Type: localrepo.OutcomeFail, Message: "network down"}

	require.NoError(t, h.orch.Publish(context.Background(), false))

	progress := h.orch.PublishingProgress()
	require.Equal(t, OutcomeFail, progress.Result)
	require.Equal(t, "network down Publishing failed. Please retry, and report the issue if it persists.", progress.Message,
		"the classified message must not be clobbered by overlays emitted during the push")
	require.Equal(t, "pushing", progress.Phase, "the in-flight phase overlay is folded before the terminal write")
}

func TestGenerateSite_SummaryWinsOverPageEvents(t *testing.T) {
	h := newHarness(t, Options{})
	h.gen.bus = h.bus // generation emits per-page events like the real generator
	h.gen.files = []string{"a.html", "index.html"}

	require.NoError(t, h.orch.GenerateSite(context.Background()))

	progress := h.orch.GeneratingProgress()
	require.Equal(t, "success", progress.Result)
	require.Equal(t, "2 files in totals", progress.Message,
		"per-page messages must not land on top of the completion summary")
}

func TestPublish_SuccessSignaledThroughErrorChannel(t *testing.T) {
	h := newHarness(t, Options{})
	h.repo.pushErr = &localrepo.PushError{Type: localrepo.OutcomeSuccess, Message: "already up to date"}

	require.NoError(t, h.orch.Publish(context.Background(), false))
	progress := h.orch.PublishingProgress()
	require.Equal(t, OutcomeSuccess, progress.Result)
	require.Equal(t, "already up to date", progress.Message, "success carries no canned explanation")
}

func TestPublish_UnclassifiedErrorIsRethrown(t *testing.T) {
	h := newHarness(t, Options{})
	raw := errors.New("object database corrupt")
	h.repo.pushErr = raw

	err := h.orch.Publish(context.Background(), false)
	require.ErrorIs(t, err, raw)
	require.Equal(t, Outcome(""), h.orch.PublishingProgress().Result, "unclassified failures are not recorded into progress")
	require.False(t, h.orch.IsPublishing(), "activity flag resets on every exit path")
}

// Generate and publish are deliberately independent operations; this pins the
// existing interleaving rather than asserting a cross-exclusion.
func TestGenerateAndPublishAreNotMutuallyExclusive(t *testing.T) {
	h := newHarness(t, Options{})
	h.gen.block = make(chan struct{})
	h.repo.pushBlock = make(chan struct{})

	genDone := make(chan error, 1)
	pubDone := make(chan error, 1)
	go func() { genDone <- h.orch.GenerateSite(context.Background()) }()
	go func() { pubDone <- h.orch.Publish(context.Background(), false) }()

	require.Eventually(t, func() bool {
		return h.orch.IsGenerating() && h.orch.IsPublishing()
	}, time.Second, time.Millisecond)

	close(h.gen.block)
	close(h.repo.pushBlock)
	require.NoError(t, <-genDone)
	require.NoError(t, <-pubDone)
}

// --- credentials ------------------------------------------------------------

func TestSaveCredentials_MergesAndReinitializesRemote(t *testing.T) {
	h := newHarness(t, Options{})
	before := h.remote.initCalls

	require.NoError(t, h.orch.SaveCredentials(credentials.Partial{Repository: "blog"}))

	info := h.orch.CredentialInfo()
	require.Equal(t, "blog", info.Repository)
	require.Equal(t, "alice", info.UserName, "unset fields keep current values")
	require.Equal(t, "tok", info.Token, "token never changes through this path")
	require.Equal(t, before+1, h.remote.initCalls, "remote client re-initialized so the change takes effect")

	h.store.mu.Lock()
	saved := h.store.saved[len(h.store.saved)-1]
	h.store.mu.Unlock()
	require.Equal(t, credentials.Partial{UserName: "alice", Email: "a@x.com", Repository: "blog"}, saved)
	require.False(t, h.orch.IsDefaultRepository())
}

// --- event folding ----------------------------------------------------------

func TestEventFolding_PartialOverlays(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	require.NoError(t, h.bus.Publish(ctx, events.RepoProgress{Phase: "pushing", Message: "uploading objects"}))
	require.NoError(t, h.bus.Publish(ctx, events.RepoProgress{Message: "75% done"}))
	require.Eventually(t, func() bool {
		p := h.orch.PublishingProgress()
		return p.Phase == "pushing" && p.Message == "75% done"
	}, time.Second, time.Millisecond, "empty fields overlay nothing, set fields replace")

	require.NoError(t, h.bus.Publish(ctx, events.RepoMessage{Message: "push complete"}))
	require.Eventually(t, func() bool {
		return h.orch.PublishingProgress().Message == "push complete"
	}, time.Second, time.Millisecond)

	require.NoError(t, h.bus.Publish(ctx, events.RepoStatusChanged{Status: events.RepoInitializing}))
	require.Eventually(t, func() bool {
		p := h.orch.PublishingProgress()
		return h.orch.LocalRepoStatus() == events.RepoInitializing &&
			p.Phase == "initializing" && p.Message == "local repository is reinitializing"
	}, time.Second, time.Millisecond)

	require.NoError(t, h.bus.Publish(ctx, events.PageGenerated{Page: "a.html", Message: "rendered a.html"}))
	require.Eventually(t, func() bool {
		return h.orch.GeneratingProgress().Message == "rendered a.html"
	}, time.Second, time.Millisecond)
}
