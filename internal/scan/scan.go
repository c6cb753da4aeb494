// Package scan walks a site tree and returns the files validators inspect.
package scan

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DependencyDirs are package-manager directories that never hold site content.
var DependencyDirs = []string{"node_modules", "vendor", "bower_components", "jspm_packages"}

// File is a scanned file with lazily read content.
type File struct {
	// Path is the absolute path on disk.
	Path string
	// Rel is the slash-separated path relative to the scan root.
	Rel string

	once    sync.Once
	content []byte
	err     error
}

// NewFile returns a File for path relative to root.
func NewFile(root, path string) *File {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return &File{Path: path, Rel: filepath.ToSlash(rel)}
}

// Read returns the file content, reading it from disk at most once.
func (f *File) Read() ([]byte, error) {
	f.once.Do(func() {
		f.content, f.err = os.ReadFile(f.Path)
	})
	return f.content, f.err
}

// Ext returns the lower-cased extension including the dot.
func (f *File) Ext() string { return strings.ToLower(filepath.Ext(f.Path)) }

// SkippedDir records a directory the walk could not descend into.
type SkippedDir struct {
	Path   string
	Reason string
}

// WalkResult carries the files found plus the directories that had to be skipped.
type WalkResult struct {
	Files   []*File
	Skipped []SkippedDir
}

// Options tunes a walk.
type Options struct {
	// ExcludeDirs are extra directory names to skip in addition to hidden and
	// dependency directories.
	ExcludeDirs []string
}

// FindFiles walks root and returns every file whose name ends with one of exts.
// Unreadable directories are recorded in Skipped instead of aborting the walk.
// Each call performs a fresh walk.
func FindFiles(root string, exts ...string) WalkResult {
	return Options{}.FindFiles(root, exts...)
}

// FindFiles is FindFiles with the receiver's options applied.
func (o Options) FindFiles(root string, exts ...string) WalkResult {
	var res WalkResult
	absRoot, err := filepath.Abs(root)
	if err != nil {
		res.Skipped = append(res.Skipped, SkippedDir{Path: root, Reason: err.Error()})
		return res
	}

	wanted := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		wanted = append(wanted, e)
	}

	_ = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			rel := relOrSelf(absRoot, path)
			res.Skipped = append(res.Skipped, SkippedDir{Path: rel, Reason: err.Error()})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != absRoot && o.skipDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		name := strings.ToLower(d.Name())
		for _, e := range wanted {
			if strings.HasSuffix(name, e) {
				res.Files = append(res.Files, NewFile(absRoot, path))
				break
			}
		}
		return nil
	})
	return res
}

func (o Options) skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	return slices.Contains(DependencyDirs, name) || slices.Contains(o.ExcludeDirs, name)
}

func relOrSelf(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// Paths returns the relative paths of the files, mainly for logging and tests.
func (r WalkResult) Paths() []string {
	out := make([]string, len(r.Files))
	for i, f := range r.Files {
		out[i] = f.Rel
	}
	return out
}

// LogSkipped reports each skipped directory as a warning on l.
func (r WalkResult) LogSkipped(l *zap.SugaredLogger) {
	for _, s := range r.Skipped {
		l.Warnw("skipped unreadable directory", "path", s.Path, "reason", s.Reason)
	}
}
