package buildcheck

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/caxton-dev/sitecheck/internal/models"
)

// GeneratorConfig is the subset of the site generator's configuration that
// the readiness checks read. Jekyll (YAML) and Hugo (TOML) keys share it.
type GeneratorConfig struct {
	Title       string         `mapstructure:"title"`
	Description string         `mapstructure:"description"`
	URL         string         `mapstructure:"url"`
	BaseURL     string         `mapstructure:"baseurl"`
	Markdown    string         `mapstructure:"markdown"`
	Highlighter string         `mapstructure:"highlighter"`
	Plugins     []string       `mapstructure:"plugins"`
	Gems        []string       `mapstructure:"gems"`
	Theme       string         `mapstructure:"theme"`
	RemoteTheme string         `mapstructure:"remote_theme"`
	Safe        *bool          `mapstructure:"safe"`
	LSI         bool           `mapstructure:"lsi"`
	Incremental bool           `mapstructure:"incremental"`
	Source      string         `mapstructure:"source"`
	Params      map[string]any `mapstructure:"params"`

	// File is the configuration file name relative to the site root.
	File string `mapstructure:"-"`
	// TOML is set for Hugo-style configuration.
	TOML bool `mapstructure:"-"`
}

// CanonicalURL returns the site's absolute URL. Hugo calls it baseURL, while
// Jekyll's baseurl is only a path prefix.
func (g *GeneratorConfig) CanonicalURL() string {
	if g.URL != "" || !g.TOML {
		return g.URL
	}
	return g.BaseURL
}

// SiteDescription falls back to Hugo's params.description.
func (g *GeneratorConfig) SiteDescription() string {
	if g.Description != "" {
		return g.Description
	}
	s, _ := g.Params["description"].(string)
	return s
}

// findGeneratorConfig returns the first configuration file that exists, or
// an empty name.
func findGeneratorConfig(root string, candidates []string) string {
	for _, name := range candidates {
		if info, err := os.Stat(filepath.Join(root, name)); err == nil && info.Mode().IsRegular() {
			return name
		}
	}
	return ""
}

// LoadGeneratorConfig parses a YAML or TOML generator configuration file.
func LoadGeneratorConfig(path string) (*GeneratorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	raw := map[string]any{}
	isTOML := strings.EqualFold(filepath.Ext(path), ".toml")
	if isTOML {
		err = toml.Unmarshal(data, &raw)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	cfg := &GeneratorConfig{TOML: isTOML}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// pagesRecommended are settings the hosting platform expects.
var pagesRecommended = map[string][]string{
	"markdown":    {"kramdown", "gfm", "commonmarkghpages"},
	"highlighter": {"rouge"},
}

func (v *Validator) checkGeneratorConfig(res *models.ValidationResult, gc *GeneratorConfig) {
	file := gc.File
	required := []struct{ key, value string }{
		{"title", gc.Title},
		{"description", gc.SiteDescription()},
		{"url", gc.CanonicalURL()},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			res.Add(models.Issue{Severity: models.SeverityError, Category: "missing-config-key", File: file,
				Snippet: r.key, Message: fmt.Sprintf("required configuration key %q is missing", r.key)})
		}
	}

	if gc.TOML || v.cfg.Build.Generator != "jekyll" {
		return
	}

	settings := map[string]string{"markdown": gc.Markdown, "highlighter": gc.Highlighter}
	for _, key := range []string{"markdown", "highlighter"} {
		value := strings.ToLower(settings[key])
		switch {
		case value == "":
			res.Add(models.Issue{Severity: models.SeverityWarning, Category: "missing-recommended-setting", File: file,
				Snippet: key, Message: fmt.Sprintf("%s is not set; recommended: %s", key, pagesRecommended[key][0])})
		case !slices.Contains(pagesRecommended[key], value):
			res.Add(models.Issue{Severity: models.SeverityWarning, Category: "incompatible-setting", File: file,
				Snippet: key + ": " + settings[key], Message: fmt.Sprintf("%s %q is overridden by the hosting platform", key, settings[key])})
		}
	}

	plugins := append(append([]string(nil), gc.Plugins...), gc.Gems...)
	for _, p := range plugins {
		if !slices.Contains(v.cfg.Build.SupportedPlugins, p) {
			res.Add(models.Issue{Severity: models.SeverityWarning, Category: "unsupported-plugin", File: file,
				Snippet: p, Message: fmt.Sprintf("plugin %q is not on the hosting platform's allowlist", p)})
		}
	}
	if len(gc.Gems) > 0 {
		res.Add(models.Issue{Severity: models.SeverityWarning, Category: "incompatible-setting", File: file,
			Snippet: "gems", Message: `"gems" is deprecated; use "plugins"`})
	}

	if gc.Safe != nil && !*gc.Safe {
		res.Add(models.Issue{Severity: models.SeverityWarning, Category: "incompatible-setting", File: file,
			Snippet: "safe: false", Message: "the hosting platform always builds in safe mode"})
	}
	if gc.LSI {
		res.Add(models.Issue{Severity: models.SeverityWarning, Category: "incompatible-setting", File: file,
			Snippet: "lsi: true", Message: "latent semantic indexing is disabled on the hosting platform"})
	}
	if gc.Incremental {
		res.Add(models.Issue{Severity: models.SeverityWarning, Category: "incompatible-setting", File: file,
			Snippet: "incremental: true", Message: "incremental builds are not supported on the hosting platform"})
	}
	if gc.Source != "" && gc.Source != "." {
		res.Add(models.Issue{Severity: models.SeverityWarning, Category: "incompatible-setting", File: file,
			Snippet: "source: " + gc.Source, Message: "source is overridden by the hosting platform"})
	}
}
