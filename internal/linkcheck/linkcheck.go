// Package linkcheck verifies intra-site links in rendered HTML. Broken links
// are reported as warnings after generation; they never fail a generate.
package linkcheck

import (
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// Link represents an extracted link from HTML content.
type Link struct {
	URL        string // The URL or path
	Tag        string // HTML tag (a, img, script, link)
	Attribute  string // Attribute containing the link (href, src)
	IsInternal bool   // True if link is internal to the site
}

// Broken is an internal link whose target file does not exist in the output.
type Broken struct {
	SourcePath string // HTML file containing the link, relative to the site root
	Target     string // the link as written
}

// linkAttrs maps element tags to the attribute carrying a reference.
var linkAttrs = map[string]string{
	"a":      "href",
	"img":    "src",
	"link":   "href",
	"script": "src",
}

// ExtractLinks extracts all links from an HTML reader.
func ExtractLinks(r io.Reader) ([]Link, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var links []Link
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if attr, ok := linkAttrs[n.Data]; ok {
				for _, a := range n.Attr {
					if a.Key != attr || a.Val == "" {
						continue
					}
					links = append(links, Link{
						URL:        a.Val,
						Tag:        n.Data,
						Attribute:  attr,
						IsInternal: isInternal(a.Val),
					})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

// isInternal reports whether the URL points inside the generated site.
func isInternal(raw string) bool {
	if strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, "mailto:") {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}

// VerifySite walks rendered HTML files under siteDir and returns internal
// links whose targets are missing.
func VerifySite(siteDir string) ([]Broken, error) {
	var broken []Broken

	err := filepath.WalkDir(siteDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".html") {
			return nil
		}

		f, err := os.Open(filepath.Clean(p))
		if err != nil {
			return err
		}
		links, perr := ExtractLinks(f)
		_ = f.Close()
		if perr != nil {
			return perr
		}

		rel, _ := filepath.Rel(siteDir, p)
		for _, l := range links {
			if !l.IsInternal {
				continue
			}
			if !targetExists(siteDir, rel, l.URL) {
				broken = append(broken, Broken{SourcePath: rel, Target: l.URL})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return broken, nil
}

// targetExists resolves a link against the site root (absolute paths) or the
// containing page (relative paths) and checks the target file exists.
// Directory targets count when they hold an index.html.
func targetExists(siteDir, sourceRel, raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return true // unparseable links are not our call
	}
	target := u.Path
	if target == "" {
		return true
	}

	var resolved string
	if path.IsAbs(target) {
		resolved = filepath.Join(siteDir, filepath.FromSlash(target))
	} else {
		resolved = filepath.Join(siteDir, filepath.Dir(filepath.FromSlash(sourceRel)), filepath.FromSlash(target))
	}

	fi, err := os.Stat(resolved)
	if err != nil {
		return false
	}
	if fi.IsDir() {
		_, err := os.Stat(filepath.Join(resolved, "index.html"))
		return err == nil
	}
	return true
}
