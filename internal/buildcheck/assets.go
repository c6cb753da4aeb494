package buildcheck

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"

	"github.com/caxton-dev/sitecheck/internal/models"
	"github.com/caxton-dev/sitecheck/internal/scan"
)

var imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".avif", ".svg"}

// textAssets compress well over the wire, so their gzip size is reported too.
var textAssets = map[string]bool{".js": true, ".css": true, ".svg": true}

// gzipSize estimates the transfer size of content.
func gzipSize(content []byte) (int, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return 0, err
	}
	if _, err := zw.Write(content); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}

func minifiedName(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".min" + ext
}

func (v *Validator) checkAssets(res *models.ValidationResult, root string) error {
	opts := scan.Options{ExcludeDirs: v.cfg.Site.ExcludeDirs}
	exts := append([]string{".js", ".css"}, imageExts...)
	found := opts.FindFiles(root, exts...)
	found.LogSkipped(v.log)
	res.Inc("assets", len(found.Files))

	limits := map[string]int{".js": v.cfg.Assets.MaxScriptKB, ".css": v.cfg.Assets.MaxStyleKB}
	for _, e := range imageExts {
		limits[e] = v.cfg.Assets.MaxImageKB
	}

	for _, f := range found.Files {
		info, err := os.Stat(f.Path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", f.Rel, err)
		}
		size := int(info.Size())
		ext := f.Ext()

		if limit := limits[ext] * 1024; limit > 0 && size > limit {
			msg := fmt.Sprintf("%s exceeds the %s limit", humanize.Bytes(uint64(size)), humanize.Bytes(uint64(limit)))
			if textAssets[ext] {
				content, err := f.Read()
				if err != nil {
					return fmt.Errorf("reading %s: %w", f.Rel, err)
				}
				if gz, err := gzipSize(content); err == nil {
					msg += fmt.Sprintf(" (%s gzipped)", humanize.Bytes(uint64(gz)))
				}
			}
			res.Add(models.Issue{Severity: models.SeverityWarning, Category: "oversized-asset", File: f.Rel,
				Snippet: humanize.Bytes(uint64(size)), Message: msg})
		}

		if ext != ".js" && ext != ".css" || strings.HasSuffix(strings.ToLower(f.Rel), ".min"+ext) {
			continue
		}
		if size < v.cfg.Assets.MinifyMinimumKB*1024 {
			continue
		}
		if _, err := os.Stat(minifiedName(f.Path)); err == nil {
			continue
		}
		res.Add(models.Issue{Severity: models.SeverityWarning, Category: "unminified-asset", File: f.Rel,
			Message: fmt.Sprintf("%s has no minified variant (%s)", humanize.Bytes(uint64(size)), filepath.Base(minifiedName(f.Rel)))})
	}
	return nil
}
