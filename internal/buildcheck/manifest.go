package buildcheck

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/tidwall/gjson"

	"github.com/caxton-dev/sitecheck/internal/models"
)

var (
	gemLine  = regexp.MustCompile(`^\s*gem\s+["']([\w.-]+)["']`)
	specLine = regexp.MustCompile(`^ {4}([\w.-]+) \(([^)]+)\)\s*$`)
)

// meta-gems that pull the generator in transitively.
var bundles = map[string][]string{
	"jekyll": {"github-pages"},
}

// Manifests is what the dependency files say about the generator.
type Manifests struct {
	// Found lists the manifest files present.
	Found []string
	// Declared is set when any manifest names the generator or a bundle of it.
	Declared bool
	// Locked is the resolved generator version from a lockfile, if any.
	Locked *semver.Version
	// MissingLocks lists manifests whose lockfile is absent.
	MissingLocks []string
}

func exists(root, name string) bool {
	_, err := os.Stat(filepath.Join(root, name))
	return err == nil
}

// ReadManifests inspects Gemfile, Gemfile.lock, and package.json under root.
func ReadManifests(root, generator string) (*Manifests, error) {
	m := &Manifests{}
	wanted := append([]string{generator}, bundles[generator]...)
	isWanted := func(name string) bool {
		for _, w := range wanted {
			if name == w {
				return true
			}
		}
		return false
	}

	if data, err := os.ReadFile(filepath.Join(root, "Gemfile")); err == nil {
		m.Found = append(m.Found, "Gemfile")
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			if g := gemLine.FindStringSubmatch(sc.Text()); g != nil && isWanted(g[1]) {
				m.Declared = true
			}
		}
		if !exists(root, "Gemfile.lock") {
			m.MissingLocks = append(m.MissingLocks, "Gemfile")
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading Gemfile: %w", err)
	}

	if data, err := os.ReadFile(filepath.Join(root, "Gemfile.lock")); err == nil {
		m.Found = append(m.Found, "Gemfile.lock")
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			s := specLine.FindStringSubmatch(sc.Text())
			if s == nil || !isWanted(s[1]) {
				continue
			}
			m.Declared = true
			if s[1] == generator {
				if v, err := semver.NewVersion(s[2]); err == nil {
					m.Locked = v
				}
			}
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading Gemfile.lock: %w", err)
	}

	if data, err := os.ReadFile(filepath.Join(root, "package.json")); err == nil {
		m.Found = append(m.Found, "package.json")
		for _, section := range []string{"dependencies", "devDependencies"} {
			for _, w := range wanted {
				if gjson.GetBytes(data, section+"."+gjson.Escape(w)).Exists() {
					m.Declared = true
				}
			}
		}
		if !exists(root, "package-lock.json") && !exists(root, "yarn.lock") && !exists(root, "pnpm-lock.yaml") {
			m.MissingLocks = append(m.MissingLocks, "package.json")
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading package.json: %w", err)
	}
	return m, nil
}

func (v *Validator) checkManifests(res *models.ValidationResult, root string, hasConfig bool) error {
	gen := v.cfg.Build.Generator
	m, err := ReadManifests(root, gen)
	if err != nil {
		return err
	}
	res.Inc("manifests", len(m.Found))

	if len(m.Found) == 0 {
		if hasConfig {
			res.Addf(models.SeverityWarning, "missing-manifest", ".", 0,
				"no dependency manifest (Gemfile or package.json) pins the %s version", gen)
		}
		return nil
	}
	if !m.Declared {
		res.Add(models.Issue{Severity: models.SeverityError, Category: "missing-generator-dependency", File: m.Found[0],
			Snippet: gen, Message: fmt.Sprintf("%s is not a direct or transitive dependency", gen)})
	}
	for _, f := range m.MissingLocks {
		res.Add(models.Issue{Severity: models.SeverityWarning, Category: "missing-lockfile", File: f,
			Message: fmt.Sprintf("%s has no lockfile; builds are not reproducible", f)})
	}

	if v.cfg.Build.MinVersion == "" || m.Locked == nil {
		return nil
	}
	minV, err := semver.NewVersion(v.cfg.Build.MinVersion)
	if err != nil {
		res.Addf(models.SeverityWarning, "invalid-min-version", ".", 0, "min_version %q is not a version: %v", v.cfg.Build.MinVersion, err)
		return nil
	}
	if m.Locked.LessThan(minV) {
		res.Add(models.Issue{Severity: models.SeverityWarning, Category: "outdated-generator", File: "Gemfile.lock",
			Snippet: m.Locked.String(), Message: fmt.Sprintf("%s %s is older than the required %s", gen, m.Locked, minV)})
	}
	return nil
}
