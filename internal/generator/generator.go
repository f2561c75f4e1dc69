// Package generator renders the markdown source tree into a static HTML site.
package generator

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"git.home.luguber.info/inful/pagepub/internal/config"
	perrors "git.home.luguber.info/inful/pagepub/internal/errors"
	"git.home.luguber.info/inful/pagepub/internal/events"
	"git.home.luguber.info/inful/pagepub/internal/linkcheck"
	"git.home.luguber.info/inful/pagepub/internal/logfields"
	"git.home.luguber.info/inful/pagepub/internal/metrics"
)

// Generator renders markdown sources from SourceDir into OutputDir and
// reports per-page progress on the event bus.
type Generator struct {
	cfg      *config.Config
	bus      *events.Bus
	recorder metrics.Recorder
	md       goldmark.Markdown
	titler   cases.Caser
}

// NewGenerator creates a site generator.
func NewGenerator(cfg *config.Config, bus *events.Bus) *Generator {
	return &Generator{
		cfg:      cfg,
		bus:      bus,
		recorder: metrics.NoopRecorder{},
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		),
		titler: cases.Title(language.English),
	}
}

// WithRecorder attaches a metrics recorder (fluent helper).
func (g *Generator) WithRecorder(r metrics.Recorder) *Generator {
	if r != nil {
		g.recorder = r
	}
	return g
}

// OutputDir returns the resolved absolute output directory.
func (g *Generator) OutputDir() string {
	abs, err := filepath.Abs(g.cfg.Site.OutputDir)
	if err != nil {
		return filepath.Clean(g.cfg.Site.OutputDir)
	}
	return abs
}

// href resolves a site-relative output path against site.base_url, which
// defaults to serving from the root.
func (g *Generator) href(rel string) string {
	base := strings.TrimSpace(g.cfg.Site.BaseURL)
	if base == "" {
		base = "/"
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + rel
}

// page is the template payload for one rendered document.
type page struct {
	SiteTitle   string
	Description string
	Title       string
	Home        string
	Content     template.HTML
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}} - {{.SiteTitle}}</title>
{{if .Description}}<meta name="description" content="{{.Description}}">{{end}}
</head>
<body>
<header><a href="{{.Home}}">{{.SiteTitle}}</a></header>
<main>{{.Content}}</main>
</body>
</html>
`))

type indexEntry struct {
	Title string
	Href  string
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.SiteTitle}}</title>
</head>
<body>
<header>{{.SiteTitle}}</header>
<main><ul>
{{range .Entries}}<li><a href="{{.Href}}">{{.Title}}</a></li>
{{end}}</ul></main>
</body>
</html>
`))

// GenerateSite renders every markdown file under SourceDir plus an index
// page, copies static assets, and returns the ordered list of emitted file
// paths (relative to OutputDir, slash-separated).
func (g *Generator) GenerateSite(ctx context.Context) ([]string, error) {
	sourceDir, err := filepath.Abs(g.cfg.Site.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("resolve source dir: %w", err)
	}
	outputDir := g.OutputDir()

	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return nil, perrors.WorkspaceError("create output directory", err)
	}

	sources, assets, err := g.collectSources(sourceDir, outputDir)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no markdown sources under %s", sourceDir)
	}

	var files []string
	var entries []indexEntry
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, title, err := g.renderPage(ctx, sourceDir, outputDir, src)
		if err != nil {
			return nil, err
		}
		files = append(files, rel)
		entries = append(entries, indexEntry{Title: title, Href: g.href(rel)})
	}

	for _, asset := range assets {
		rel, err := g.copyAsset(sourceDir, outputDir, asset)
		if err != nil {
			return nil, err
		}
		files = append(files, rel)
	}

	if err := g.writeIndex(outputDir, entries); err != nil {
		return nil, err
	}
	files = append(files, "index.html")

	g.recorder.IncPagesRendered(len(sources))
	g.verifyLinks(outputDir)

	return files, nil
}

// collectSources walks the source tree and splits markdown files from static
// assets, in deterministic (sorted) order. The output dir is skipped when it
// nests under the source dir.
func (g *Generator) collectSources(sourceDir, outputDir string) (sources, assets []string, err error) {
	err = filepath.WalkDir(sourceDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p == outputDir || strings.HasPrefix(d.Name(), ".") && p != sourceDir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if strings.EqualFold(filepath.Ext(p), ".md") {
			sources = append(sources, p)
		} else {
			assets = append(assets, p)
		}
		return nil
	})
	if err != nil {
		return nil, nil, perrors.GenerateFailed("walk source tree", err)
	}
	sort.Strings(sources)
	sort.Strings(assets)
	return sources, assets, nil
}

// renderPage converts one markdown file and emits a PageGenerated event.
func (g *Generator) renderPage(ctx context.Context, sourceDir, outputDir, src string) (rel, title string, err error) {
	data, err := os.ReadFile(filepath.Clean(src))
	if err != nil {
		return "", "", fmt.Errorf("read %s: %w", src, err)
	}

	var buf bytes.Buffer
	if err := g.md.Convert(data, &buf); err != nil {
		return "", "", fmt.Errorf("render %s: %w", src, err)
	}

	relSrc, err := filepath.Rel(sourceDir, src)
	if err != nil {
		return "", "", err
	}
	rel = filepath.ToSlash(strings.TrimSuffix(relSrc, filepath.Ext(relSrc)) + ".html")
	title = g.pageTitle(data, relSrc)

	outPath := filepath.Join(outputDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return "", "", err
	}

	var out bytes.Buffer
	err = pageTemplate.Execute(&out, page{
		SiteTitle:   g.cfg.Site.Title,
		Description: g.cfg.Site.Description,
		Title:       title,
		Home:        g.href("index.html"),
		Content:     template.HTML(buf.String()),
	})
	if err != nil {
		return "", "", fmt.Errorf("render template for %s: %w", src, err)
	}
	if err := os.WriteFile(outPath, out.Bytes(), 0o600); err != nil {
		return "", "", err
	}

	if g.bus != nil {
		_ = g.bus.Publish(ctx, events.PageGenerated{
			Page:    rel,
			Message: fmt.Sprintf("rendered %s", rel),
		})
	}
	slog.Debug("Page rendered", logfields.Path(rel))
	return rel, title, nil
}

// pageTitle uses the first H1 when present, otherwise title-cases the file name.
func (g *Generator) pageTitle(data []byte, relSrc string) string {
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
		if line != "" {
			break
		}
	}
	base := strings.TrimSuffix(filepath.Base(relSrc), filepath.Ext(relSrc))
	return g.titler.String(strings.ReplaceAll(strings.ReplaceAll(base, "-", " "), "_", " "))
}

func (g *Generator) copyAsset(sourceDir, outputDir, src string) (string, error) {
	relSrc, err := filepath.Rel(sourceDir, src)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Clean(src))
	if err != nil {
		return "", fmt.Errorf("read asset %s: %w", src, err)
	}
	outPath := filepath.Join(outputDir, relSrc)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return "", err
	}
	if err := os.WriteFile(outPath, data, 0o600); err != nil {
		return "", err
	}
	return filepath.ToSlash(relSrc), nil
}

func (g *Generator) writeIndex(outputDir string, entries []indexEntry) error {
	var out bytes.Buffer
	err := indexTemplate.Execute(&out, struct {
		SiteTitle string
		Entries   []indexEntry
	}{SiteTitle: g.cfg.Site.Title, Entries: entries})
	if err != nil {
		return fmt.Errorf("render index: %w", err)
	}
	return os.WriteFile(filepath.Join(outputDir, "index.html"), out.Bytes(), 0o600)
}

// verifyLinks reports broken intra-site links at warn level; generation
// already succeeded at this point.
func (g *Generator) verifyLinks(outputDir string) {
	broken, err := linkcheck.VerifySite(outputDir)
	if err != nil {
		slog.Warn("link verification skipped", logfields.Error(err))
		return
	}
	for _, b := range broken {
		slog.Warn("broken internal link", logfields.Path(b.SourcePath), slog.String("target", b.Target))
	}
}
