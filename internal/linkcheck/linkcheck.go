// Package linkcheck finds broken internal, relative, and external links in
// generated HTML and Markdown sources.
package linkcheck

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/caxton-dev/sitecheck/internal/htmldoc"
	"github.com/caxton-dev/sitecheck/internal/logging"
	"github.com/caxton-dev/sitecheck/internal/mddoc"
	"github.com/caxton-dev/sitecheck/internal/models"
	"github.com/caxton-dev/sitecheck/internal/projectconfig"
	"github.com/caxton-dev/sitecheck/internal/scan"
)

// Descriptor registers the link validator.
var Descriptor = models.ValidatorDescriptor{
	Name:        "Link Validation",
	Key:         "links",
	Criticality: models.Critical,
	Description: "Internal, relative, and external link targets resolve",
	ReportFile:  "link-validation-report.json",
}

// Extensions are the file types scanned for links.
var Extensions = []string{".html", ".htm", ".md", ".markdown"}

// Option configures a Validator.
type Option func(*Validator)

// WithTimeout overrides the per-probe timeout from the project config.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) { v.prober.Timeout = d }
}

// WithProgress installs a callback invoked after each external probe.
func WithProgress(fn func(done, total int)) Option {
	return func(v *Validator) { v.progress = fn }
}

// Validator is the link validator.
type Validator struct {
	cfg      *projectconfig.ProjectConfig
	base     *url.URL
	prober   *Prober
	progress func(done, total int)
	log      *zap.SugaredLogger
}

// New returns a link validator. A nil cfg means defaults.
func New(cfg *projectconfig.ProjectConfig, opts ...Option) *Validator {
	if cfg == nil {
		cfg = projectconfig.New()
	}
	v := &Validator{
		cfg:    cfg,
		prober: NewProber(cfg.Links.Timeout()),
		log:    logging.For("links"),
	}
	if cfg.Site.BaseURL != "" {
		if u, err := url.Parse(cfg.Site.BaseURL); err == nil && u.Host != "" {
			v.base = u
		}
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Descriptor implements the orchestrator's validator contract.
func (v *Validator) Descriptor() models.ValidatorDescriptor { return Descriptor }

// Validate scans root and checks every link it finds.
func (v *Validator) Validate(ctx context.Context, root string) (*models.ValidationResult, error) {
	res := models.NewResult(Descriptor)
	walk := scan.Options{ExcludeDirs: v.cfg.Site.ExcludeDirs}.FindFiles(root, Extensions...)
	walk.LogSkipped(v.log)
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}

	var links []Link
	for _, f := range walk.Files {
		content, err := f.Read()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Rel, err)
		}
		v.log.Debugw("checking file", "file", f.Rel)
		res.Inc("files", 1)

		var found []Link
		switch f.Ext() {
		case ".md", ".markdown":
			found = extractMarkdown(mddoc.Parse(content))
		default:
			found = extractHTML(htmldoc.Parse(content), 0)
		}
		for _, l := range found {
			l.Source = f.Rel
			links = append(links, v.classify(l))
		}
	}
	for _, c := range []string{"internal", "relative", "external", "skipped", "whitelisted", "unique_external"} {
		res.Inc(c, 0)
	}
	res.Inc("total", len(links))

	external := map[string][]Link{}
	broken := map[string]bool{}
	for _, l := range links {
		res.Inc(string(l.Kind), 1)
		switch l.Kind {
		case KindInternal, KindRelative:
			if !v.resolve(absRoot, l) {
				broken[l.Source] = true
				res.Add(models.Issue{
					Severity: models.SeverityError,
					Category: "broken-link",
					File:     l.Source,
					Line:     l.Line,
					Snippet:  l.Target,
					Message:  fmt.Sprintf("%s link %q does not resolve to a file", l.Kind, l.Target),
				})
			}
		case KindExternal:
			if v.whitelisted(l.Target) {
				res.Inc("whitelisted", 1)
				continue
			}
			external[l.Target] = append(external[l.Target], l)
		}
	}

	if len(external) > 0 && !projectconfig.Enabled(v.cfg.Links.SkipExternal) {
		results := v.probeAll(ctx, external)
		res.Inc("unique_external", len(results))
		for _, pr := range results {
			if pr.OK {
				continue
			}
			for _, l := range external[pr.URL] {
				broken[l.Source] = true
				res.Add(models.Issue{
					Severity: models.SeverityError,
					Category: "broken-external-link",
					File:     l.Source,
					Line:     l.Line,
					Snippet:  l.Target,
					Message:  fmt.Sprintf("external link %s is unreachable: %s", l.Target, pr.Reason),
				})
			}
		}
	}

	res.Inc("broken", len(res.Issues))
	res.Inc("broken_files", len(broken))
	v.log.Infow("link validation finished",
		"links", len(links), "broken", len(res.Issues), "files_with_broken", len(broken))
	return res.Finalize(), nil
}

// whitelisted reports whether target starts with a known-good URL prefix.
// The prefix must end at a path, query, or fragment boundary, so
// https://github.com does not cover https://github.com.example.org.
func (v *Validator) whitelisted(target string) bool {
	for _, w := range v.cfg.Links.Whitelist {
		if w != "" && hasURLPrefix(target, w) {
			return true
		}
	}
	return false
}

func hasURLPrefix(target, prefix string) bool {
	if !strings.HasPrefix(target, prefix) {
		return false
	}
	if len(target) == len(prefix) || strings.HasSuffix(prefix, "/") {
		return true
	}
	switch target[len(prefix)] {
	case '/', '?', '#':
		return true
	}
	return false
}

// probeAll checks each unique URL once, with bounded concurrency. Results are
// sorted by URL so reports are stable.
func (v *Validator) probeAll(ctx context.Context, urls map[string][]Link) []ProbeResult {
	keys := make([]string, 0, len(urls))
	for u := range urls {
		keys = append(keys, u)
	}
	sort.Strings(keys)

	limit := v.cfg.Links.Concurrency
	if limit <= 0 {
		limit = projectconfig.DefaultLinkConcurrency
	}

	results := make([]ProbeResult, len(keys))
	var mu sync.Mutex
	done := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, u := range keys {
		g.Go(func() error {
			results[i] = v.prober.Probe(gctx, u)
			v.log.Debugw("probed external link", "url", u, "ok", results[i].OK, "reason", results[i].Reason)
			if v.progress != nil {
				mu.Lock()
				done++
				v.progress(done, len(keys))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// resolve tries each candidate file for an internal or relative link.
func (v *Validator) resolve(root string, l Link) bool {
	for _, c := range v.candidates(root, l) {
		if !withinRoot(root, c) {
			continue
		}
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			return true
		}
	}
	return false
}

// candidates lists the files a link may refer to, first match wins: the exact
// path, .html, .md, index.html, index.md, and the assets directory.
func (v *Validator) candidates(root string, l Link) []string {
	p := filepath.FromSlash(l.Path)
	var bases []string
	if l.Kind == KindRelative {
		bases = append(bases, filepath.Dir(filepath.Join(root, filepath.FromSlash(l.Source))))
	}
	for _, d := range v.cfg.Site.SourceDirs {
		bases = append(bases, filepath.Join(root, filepath.FromSlash(d)))
	}
	if len(bases) == 0 {
		bases = append(bases, root)
	}

	var out []string
	for _, b := range bases {
		full := filepath.Join(b, p)
		out = append(out,
			full,
			full+".html",
			full+".md",
			filepath.Join(full, "index.html"),
			filepath.Join(full, "index.md"),
		)
	}
	if v.cfg.Site.AssetsDir != "" {
		out = append(out, filepath.Join(root, filepath.FromSlash(v.cfg.Site.AssetsDir), p))
	}
	return out
}

func withinRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}
