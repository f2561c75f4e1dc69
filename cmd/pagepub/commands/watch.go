package commands

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/pagepub/internal/metrics"
)

// WatchCmd regenerates the site whenever the source directory changes.
type WatchCmd struct {
	Debounce    time.Duration `help:"Quiet period after the last change before regenerating" default:"300ms"`
	MetricsAddr string        `name:"metrics-addr" help:"Expose Prometheus metrics on this address (e.g. :9090)"`
}

func (w *WatchCmd) Run(_ *Global, c *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var recorder metrics.Recorder
	if w.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
		srv := &http.Server{Addr: w.MetricsAddr, Handler: metrics.HTTPHandler(reg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			slog.Info("serving metrics", "addr", w.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	a, err := newApp(ctx, c, recorder)
	if err != nil {
		return err
	}
	defer a.Close()

	sourceDir := a.cfg.Site.SourceDir
	outputDir := a.orch.OutputDir()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := addWatchTree(watcher, sourceDir, outputDir); err != nil {
		return err
	}

	// Initial generate so the output exists before the first change.
	if err := a.orch.GenerateSite(ctx); err != nil {
		return err
	}
	slog.Info("watching for changes", "source", sourceDir)

	var debounce *time.Timer
	fire := make(chan struct{}, 1)
	schedule := func() {
		if debounce != nil {
			debounce.Stop()
		}
		debounce = time.AfterFunc(w.Debounce, func() {
			select {
			case fire <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ignoreWatchEvent(event, outputDir) {
				continue
			}
			// New directories need their own watch to see files inside them.
			if event.Op.Has(fsnotify.Create) {
				if err := addWatchTree(watcher, event.Name, outputDir); err != nil {
					slog.Debug("cannot watch new path", "path", event.Name, "error", err)
				}
			}
			slog.Debug("source changed", "path", event.Name, "op", event.Op.String())
			schedule()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)
		case <-fire:
			if err := a.orch.GenerateSite(ctx); err != nil {
				slog.Warn("regenerate skipped", "error", err)
				continue
			}
			progress := a.orch.GeneratingProgress()
			slog.Info("site regenerated", "result", progress.Result, "detail", progress.Message)
		}
	}
}

// addWatchTree registers path and every directory below it, skipping the
// output tree and dot-directories.
func addWatchTree(watcher *fsnotify.Watcher, path, outputDir string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // transient: entries can vanish mid-walk
		}
		if !d.IsDir() {
			return nil
		}
		if underDir(p, outputDir) || (p != path && strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		return watcher.Add(p)
	})
}

func ignoreWatchEvent(event fsnotify.Event, outputDir string) bool {
	if underDir(event.Name, outputDir) {
		return true
	}
	base := filepath.Base(event.Name)
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~")
}

func underDir(path, dir string) bool {
	if dir == "" {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}
