// Package publish contains the publish orchestrator: the stateful coordinator
// sequencing site generation and publication to the remote hosting target.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/pagepub/internal/config"
	"git.home.luguber.info/inful/pagepub/internal/credentials"
	"git.home.luguber.info/inful/pagepub/internal/events"
	"git.home.luguber.info/inful/pagepub/internal/journal"
	"git.home.luguber.info/inful/pagepub/internal/localrepo"
	"git.home.luguber.info/inful/pagepub/internal/logfields"
	"git.home.luguber.info/inful/pagepub/internal/metrics"
	"git.home.luguber.info/inful/pagepub/internal/remotehost"
)

// Options tunes orchestrator behavior.
type Options struct {
	// GraceWindow is the delay before a publish attempt starts mutating
	// remote state, giving StopPublishing a chance to abort it. Zero falls
	// back to the configured publish.grace_window.
	GraceWindow time.Duration

	// GenerateVeto, when non-nil, is consulted before starting a generate; a
	// non-nil return forbids generation (collaborator-supplied policy check).
	GenerateVeto func() error
}

// Orchestrator owns credential state, local-repo status, generate/publish
// progress and the in-flight file list. All mutable state is guarded by mu;
// external components never mutate it directly, they emit events that the
// orchestrator folds in.
type Orchestrator struct {
	cfg      *config.Config
	gen      SiteGenerator
	repo     LocalRepo
	remote   remotehost.Client
	creds    credentials.Store
	bus      *events.Bus
	journal  journal.Journal
	recorder metrics.Recorder
	opts     Options

	mu           sync.Mutex
	info         *credentials.Info
	repoStatus   LocalRepoStatus
	isGenerating bool
	isPublishing bool
	terminated   bool
	pubCancel    context.CancelFunc
	outputDir    string
	files        []string
	genProgress  GeneratingProgress
	pubProgress  PublishingProgress

	unsubscribe func()
	loopDone    chan struct{}
}

// New constructs the orchestrator, resolves the output directory, subscribes
// to collaborator events, loads credentials, and initializes the remote
// client and local working copy. Local-repo initialization failure is
// absorbed: status transitions are the authoritative error signal.
func New(ctx context.Context, cfg *config.Config, gen SiteGenerator, repo LocalRepo, remote remotehost.Client, creds credentials.Store, bus *events.Bus, opts Options) *Orchestrator {
	if opts.GraceWindow <= 0 {
		opts.GraceWindow = cfg.Publish.GraceWindow
	}
	o := &Orchestrator{
		cfg:        cfg,
		gen:        gen,
		repo:       repo,
		remote:     remote,
		creds:      creds,
		bus:        bus,
		journal:    journal.Noop{},
		recorder:   metrics.NoopRecorder{},
		opts:       opts,
		repoStatus: events.RepoInitializing,
		outputDir:  gen.OutputDir(),
		loopDone:   make(chan struct{}),
	}

	o.startEventLoop()

	info, err := credentials.LoadInfo(creds)
	if err != nil {
		slog.Error("failed to load credentials", logfields.Error(err))
	}
	// The credentials-file override wins; remote.repository from the config
	// file is the fallback.
	if strings.TrimSpace(info.Repository) == "" {
		info.Repository = cfg.Remote.Repository
	}
	o.mu.Lock()
	o.info = &info
	o.mu.Unlock()

	o.initializeRemoteClient()

	if err := o.initLocalRepo(ctx); err != nil {
		// Non-fatal: readiness arrives through status events.
		slog.Warn("local repository initialization failed", logfields.Error(err))
	}

	return o
}

// WithJournal attaches an attempt journal (fluent helper).
func (o *Orchestrator) WithJournal(j journal.Journal) *Orchestrator {
	if j != nil {
		o.journal = j
	}
	return o
}

// WithRecorder attaches a metrics recorder (fluent helper).
func (o *Orchestrator) WithRecorder(r metrics.Recorder) *Orchestrator {
	if r != nil {
		o.recorder = r
	}
	return o
}

// Close detaches from the event bus and stops the folding loop.
func (o *Orchestrator) Close() {
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
	<-o.loopDone
}

// startEventLoop subscribes to every collaborator event through a single
// interface subscription, so delivery order across all three collaborators
// is preserved exactly as published.
func (o *Orchestrator) startEventLoop() {
	if o.bus == nil {
		close(o.loopDone)
		return
	}
	ch, unsub := events.Subscribe[any](o.bus, 256)
	o.unsubscribe = unsub
	go func() {
		defer close(o.loopDone)
		for evt := range ch {
			o.applyEvent(evt)
		}
	}()
}

// progressSync is a bus marker: when the folding loop reaches it, every
// event published before it has been applied.
type progressSync struct {
	done chan struct{}
}

// settleEvents blocks until all collaborator events published so far have
// been folded into progress state. Terminal writes call this first, so a
// classified result lands on top of in-flight overlays instead of under them.
func (o *Orchestrator) settleEvents() {
	if o.bus == nil {
		return
	}
	marker := progressSync{done: make(chan struct{})}
	if err := o.bus.Publish(context.Background(), marker); err != nil {
		return
	}
	select {
	case <-marker.done:
	case <-o.loopDone:
	}
}

// applyEvent folds one collaborator event into progress state. All merges
// are partial-field overlays onto the existing record.
func (o *Orchestrator) applyEvent(evt any) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch e := evt.(type) {
	case progressSync:
		close(e.done)
	case events.PageGenerated:
		o.genProgress.Message = e.Message
	case events.RepoProgress:
		if e.Phase != "" {
			o.pubProgress.Phase = e.Phase
		}
		if e.Message != "" {
			o.pubProgress.Message = e.Message
		}
	case events.RepoMessage:
		o.pubProgress.Message = e.Message
	case events.RepoStatusChanged:
		o.repoStatus = e.Status
		if e.Status == events.RepoInitializing {
			o.pubProgress.Phase = "initializing"
			o.pubProgress.Message = "local repository is reinitializing"
		}
	case events.RemoteInfoChanged:
		// Remote metadata is read live from the client; nothing cached here.
		slog.Debug("remote repository info changed", logfields.Repo(o.remote.RepositoryName()))
	}
}

// initializeRemoteClient is a no-op unless credentials are valid. When it
// runs it reinitializes the remote client with the current snapshot, which
// also refreshes the cached repository name.
func (o *Orchestrator) initializeRemoteClient() {
	o.mu.Lock()
	info := o.info
	o.mu.Unlock()
	if info == nil || !info.IsValid() {
		return
	}
	o.remote.Init(*info)
}

// initLocalRepo points the working copy at the current remote target.
func (o *Orchestrator) initLocalRepo(ctx context.Context) error {
	o.mu.Lock()
	info := o.info
	dir := o.outputDir
	o.mu.Unlock()

	spec := localrepo.RemoteSpec{
		URL:           o.remote.CloneURL(),
		Branch:        o.cfg.Remote.Branch,
		CommitMessage: o.cfg.Publish.CommitMessage,
	}
	if info != nil {
		spec.UserName = info.UserName
		spec.Token = info.Token
	}
	return o.repo.Init(ctx, spec, dir)
}

// --- observable surface -----------------------------------------------------

func (o *Orchestrator) IsGenerating() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isGenerating
}

func (o *Orchestrator) IsPublishing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isPublishing
}

func (o *Orchestrator) OutputDir() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outputDir
}

func (o *Orchestrator) GeneratingProgress() GeneratingProgress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.genProgress
}

func (o *Orchestrator) PublishingProgress() PublishingProgress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pubProgress
}

func (o *Orchestrator) LocalRepoStatus() LocalRepoStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.repoStatus
}

func (o *Orchestrator) RepositoryName() string { return o.remote.RepositoryName() }

func (o *Orchestrator) IsRepositoryMissing() bool { return o.remote.RepositoryMissing() }

func (o *Orchestrator) IsDefaultRepository() bool {
	return o.remote.RepositoryName() == o.remote.DefaultRepositoryName()
}

// IsCredentialValid is recomputed from the current snapshot, never cached.
func (o *Orchestrator) IsCredentialValid() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.info != nil && o.info.IsValid()
}

// CredentialInfo returns the current credential snapshot (observation only).
func (o *Orchestrator) CredentialInfo() credentials.Info {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.info == nil {
		return credentials.Info{}
	}
	return *o.info
}

// Files returns the file list from the most recent successful generate.
func (o *Orchestrator) Files() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.files))
	copy(out, o.files)
	return out
}

// --- operations -------------------------------------------------------------

// SaveCredentials merges the partial fields (the token is never updated
// through this path), persists the non-token fields, and re-runs remote
// client initialization so a repository-name or host change takes effect
// immediately. With no credential state loaded it logs an error and returns.
func (o *Orchestrator) SaveCredentials(p credentials.Partial) error {
	o.mu.Lock()
	if o.info == nil {
		o.mu.Unlock()
		slog.Error("cannot save credentials: no credential state loaded")
		return nil
	}
	merged := o.info.Merge(p)
	o.info = &merged
	o.mu.Unlock()

	if err := o.creds.Save(credentials.Partial{
		UserName:   merged.UserName,
		Email:      merged.Email,
		Repository: merged.Repository,
	}); err != nil {
		return fmt.Errorf("persist credentials: %w", err)
	}

	o.initializeRemoteClient()
	return nil
}

// GenerateSite runs the generate workflow. Guard failures (a generate already
// in flight, or a policy veto) are returned without starting; generation
// failures themselves are absorbed into GeneratingProgress and never
// returned.
func (o *Orchestrator) GenerateSite(ctx context.Context) error {
	o.mu.Lock()
	if o.isGenerating {
		o.mu.Unlock()
		return ErrGenerateInFlight
	}
	if o.opts.GenerateVeto != nil {
		if err := o.opts.GenerateVeto(); err != nil {
			o.mu.Unlock()
			return err
		}
	}
	o.isGenerating = true
	o.genProgress = GeneratingProgress{}
	o.mu.Unlock()

	started := time.Now()
	attemptID := uuid.NewString()
	slog.Info("generating site", logfields.AttemptID(attemptID), logfields.Path(o.outputDir))

	defer func() {
		o.mu.Lock()
		o.isGenerating = false
		o.mu.Unlock()
	}()

	files, err := o.gen.GenerateSite(ctx)
	o.settleEvents()

	o.mu.Lock()
	if err != nil {
		o.genProgress = GeneratingProgress{Result: "fail", Message: err.Error()}
	} else {
		o.files = files
		o.genProgress = GeneratingProgress{
			Result:  "success",
			Message: fmt.Sprintf("%d files in totals", len(files)),
		}
	}
	progress := o.genProgress
	o.mu.Unlock()

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultFail
	}
	o.recorder.IncGenerateResult(result)
	o.recorder.ObserveGenerateDuration(time.Since(started))
	o.recordAttempt(journal.Attempt{
		ID: attemptID, Kind: journal.KindGenerate,
		Result: string(result), Message: progress.Message, Files: len(files),
		StartedAt: started,
	})
	slog.Info("generate finished", logfields.AttemptID(attemptID), logfields.Result(string(result)), logfields.Files(len(files)))
	return nil
}

// Publish runs the publish workflow: guards, optional repository creation,
// the cancellation grace window, then the push. Classified outcomes are
// absorbed into PublishingProgress; credential invalidity and unclassified
// failures are returned to the caller.
func (o *Orchestrator) Publish(ctx context.Context, createRepository bool) error {
	o.mu.Lock()
	if o.isPublishing {
		o.mu.Unlock()
		return nil // idempotent no-op
	}
	if o.info == nil || !o.info.IsValid() {
		o.mu.Unlock()
		return ErrCredentialInvalid
	}

	needsFullReinit := o.pubProgress.Result == OutcomeFail ||
		createRepository ||
		o.repoStatus == events.RepoFail
	if needsFullReinit {
		// Self-healing: clear stale progress and force the push to rebuild
		// remote state from scratch.
		o.pubProgress = PublishingProgress{}
	}

	o.isPublishing = true
	o.terminated = false
	attemptCtx, cancel := context.WithCancel(ctx)
	o.pubCancel = cancel
	files := make([]string, len(o.files))
	copy(files, o.files)
	o.mu.Unlock()

	started := time.Now()
	attemptID := uuid.NewString()
	slog.Info("publishing site", logfields.AttemptID(attemptID), logfields.Files(len(files)), slog.Bool("full_reinit", needsFullReinit))

	defer func() {
		cancel()
		o.mu.Lock()
		o.isPublishing = false
		o.pubCancel = nil
		o.mu.Unlock()
	}()

	if createRepository && o.remote.RepositoryMissing() {
		// Creation failures propagate as-is; the outer layer decides policy.
		if err := o.remote.CreateRepository(attemptCtx); err != nil {
			return err
		}
	}

	// Cancellation grace window: no remote-mutating action happens until it
	// elapses, so StopPublishing can abort the attempt cleanly.
	timer := time.NewTimer(o.opts.GraceWindow)
	select {
	case <-timer.C:
	case <-attemptCtx.Done():
		timer.Stop()
		if o.wasTerminated() {
			o.finishPublish(attemptID, started, &localrepo.PushError{Type: OutcomeTerminated, Message: ""})
			return nil
		}
		return attemptCtx.Err()
	}

	if o.wasTerminated() {
		// No new push after termination is requested.
		o.finishPublish(attemptID, started, &localrepo.PushError{Type: OutcomeTerminated, Message: ""})
		return nil
	}

	err := o.repo.Push(attemptCtx, files, needsFullReinit)
	if err == nil {
		o.finishPublish(attemptID, started, &localrepo.PushError{Type: OutcomeSuccess, Message: ""})
		return nil
	}
	if pe := localrepo.AsPushError(err); pe != nil {
		o.finishPublish(attemptID, started, pe)
		return nil
	}
	// Unclassified failures stay visible to the outer error-reporting layer.
	return err
}

// finishPublish records the classified terminal outcome of an attempt into
// progress state, metrics and the journal.
func (o *Orchestrator) finishPublish(attemptID string, started time.Time, pe *localrepo.PushError) {
	o.settleEvents()
	message := strings.TrimSpace(strings.TrimSpace(pe.Message) + " " + explanationFor(pe.Type))

	o.mu.Lock()
	o.pubProgress.Result = pe.Type
	o.pubProgress.Message = message
	o.mu.Unlock()

	o.recorder.IncPublishResult(metrics.ResultLabel(pe.Type))
	o.recorder.ObservePublishDuration(time.Since(started))
	o.recordAttempt(journal.Attempt{
		ID: attemptID, Kind: journal.KindPublish,
		Result: string(pe.Type), Message: message,
		StartedAt: started,
	})
	slog.Info("publish finished", logfields.AttemptID(attemptID), logfields.Result(string(pe.Type)))
}

// StopPublishing requests advisory cancellation: the in-flight attempt (if
// any) resolves as Terminated instead of continuing, and no new push starts.
func (o *Orchestrator) StopPublishing() {
	o.mu.Lock()
	o.isPublishing = false
	o.terminated = true
	cancel := o.pubCancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.repo.Terminate()
	slog.Info("publish termination requested")
}

func (o *Orchestrator) wasTerminated() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.terminated
}

func (o *Orchestrator) recordAttempt(a journal.Attempt) {
	ctx, cancelRecord := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelRecord()
	if err := o.journal.Record(ctx, a); err != nil {
		slog.Warn("failed to record attempt", logfields.AttemptID(a.ID), logfields.Error(err))
	}
}
