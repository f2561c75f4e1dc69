package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/pagepub/internal/config"
	"git.home.luguber.info/inful/pagepub/internal/credentials"
	"git.home.luguber.info/inful/pagepub/internal/events"
	"git.home.luguber.info/inful/pagepub/internal/generator"
	"git.home.luguber.info/inful/pagepub/internal/journal"
	"git.home.luguber.info/inful/pagepub/internal/localrepo"
	"git.home.luguber.info/inful/pagepub/internal/metrics"
	"git.home.luguber.info/inful/pagepub/internal/publish"
	"git.home.luguber.info/inful/pagepub/internal/remotehost"
	"git.home.luguber.info/inful/pagepub/internal/retry"
)

// Global context passed to subcommands if we need to share global state later.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config      string           `short:"c" help:"Configuration file path" default:"config.yaml"`
	Credentials string           `help:"Credentials file path" default:"credentials.yaml"`
	Verbose     bool             `short:"v" help:"Enable verbose logging"`
	Version     kong.VersionFlag `name:"version" help:"Show version and exit"`

	Generate GenerateCmd `cmd:"" help:"Generate the static site from the configured source directory"`
	Publish  PublishCmd  `cmd:"" help:"Publish the generated site to the remote hosting repository"`
	Creds    CredsCmd    `cmd:"" help:"Show or update stored credentials"`
	Status   StatusCmd   `cmd:"" help:"Show credential, repository and progress state"`
	History  HistoryCmd  `cmd:"" help:"Show recent generate and publish attempts"`
	Watch    WatchCmd    `cmd:"" help:"Watch the source directory and regenerate on changes"`
}

// AfterApply runs after flag parsing; setup logging once.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// app bundles the wired component graph behind the subcommands.
type app struct {
	cfg      *config.Config
	bus      *events.Bus
	gen      *generator.Generator
	repo     *localrepo.Controller
	remote   remotehost.Client
	store    credentials.Store
	journal  journal.Journal
	recorder metrics.Recorder
	orch     *publish.Orchestrator
}

// newApp wires the full component graph. A nil recorder means metrics are
// disabled (the null recorder).
func newApp(ctx context.Context, c *CLI, recorder metrics.Recorder) (*app, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	bus := events.NewBus()
	store := credentials.NewFileStore(c.Credentials)
	policy := retry.FromPublishConfig(cfg.Publish)

	var j journal.Journal = journal.Noop{}
	if cfg.Journal.Path != "" {
		sj, err := journal.NewSQLiteJournal(cfg.Journal.Path)
		if err != nil {
			bus.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		j = sj
	}

	gen := generator.NewGenerator(cfg, bus).WithRecorder(recorder)
	repo := localrepo.NewController(bus)
	remote := remotehost.NewGitHubClient(cfg.Remote.APIURL, "", policy, bus).WithRecorder(recorder)

	orch := publish.New(ctx, cfg, gen, repo, remote, store, bus, publish.Options{}).
		WithJournal(j).
		WithRecorder(recorder)

	return &app{
		cfg:      cfg,
		bus:      bus,
		gen:      gen,
		repo:     repo,
		remote:   remote,
		store:    store,
		journal:  j,
		recorder: recorder,
		orch:     orch,
	}, nil
}

func (a *app) Close() {
	a.bus.Close()
	a.orch.Close()
	if err := a.journal.Close(); err != nil {
		slog.Warn("closing journal", "error", err)
	}
}

// refreshRemote probes the remote repository when credentials allow it.
// Probe failures are reported but do not abort the calling command.
func (a *app) refreshRemote(ctx context.Context) {
	if !a.orch.IsCredentialValid() {
		return
	}
	if err := a.remote.Refresh(ctx); err != nil {
		slog.Warn("remote repository probe failed", "error", err)
	}
}
