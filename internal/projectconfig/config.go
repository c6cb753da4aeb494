// Package projectconfig provides the ProjectConfig struct and loader for
// .sitecheck.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up from the site root.
const FileName = ".sitecheck.yaml"

// Default values for project configuration. New() references them and no
// other code should duplicate them.
const (
	DefaultAssetsDir = "assets"

	DefaultLinkTimeoutSeconds = 10
	DefaultLinkConcurrency    = 5

	DefaultGenerator       = "jekyll"
	DefaultWorkflowDir     = ".github/workflows"
	DefaultMaxImageKB      = 500
	DefaultMaxScriptKB     = 100
	DefaultMaxStyleKB      = 100
	DefaultMinifyMinimumKB = 10

	DefaultReportsDir = ".sitecheck/reports"
)

// DefaultSourceDirs are the directories relative links are resolved against.
var DefaultSourceDirs = []string{".", "docs", "_site", "_posts", "_pages"}

// DefaultWhitelist holds third-party URLs that are treated as reachable without probing.
var DefaultWhitelist = []string{
	"https://github.com",
	"https://crates.io",
	"https://docs.rs",
	"https://www.rust-lang.org",
	"https://doc.rust-lang.org",
	"https://webassembly.org",
	"https://opentelemetry.io",
	"https://fonts.googleapis.com",
	"https://fonts.gstatic.com",
	"https://cdn.jsdelivr.net",
	"https://unpkg.com",
	"https://twitter.com",
	"https://x.com",
	"https://www.linkedin.com",
}

// DefaultConfigFiles are the generator configuration files looked for, in order.
var DefaultConfigFiles = []string{"_config.yml", "_config.yaml", "config.toml", "hugo.toml"}

// DefaultBuildCommand is the dry-run invocation of the external generator.
var DefaultBuildCommand = []string{"bundle", "exec", "jekyll", "build", "--safe", "--quiet"}

// DefaultSupportedPlugins is the hosting platform's plugin allowlist.
var DefaultSupportedPlugins = []string{
	"jekyll-avatar",
	"jekyll-coffeescript",
	"jekyll-commonmark-ghpages",
	"jekyll-default-layout",
	"jekyll-feed",
	"jekyll-gist",
	"jekyll-github-metadata",
	"jekyll-include-cache",
	"jekyll-mentions",
	"jekyll-optional-front-matter",
	"jekyll-paginate",
	"jekyll-readme-index",
	"jekyll-redirect-from",
	"jekyll-relative-links",
	"jekyll-remote-theme",
	"jekyll-seo-tag",
	"jekyll-sitemap",
	"jekyll-titles-from-headings",
	"jemoji",
}

// SiteConfig describes the site being scanned.
type SiteConfig struct {
	BaseURL     string   `yaml:"base_url,omitempty"`
	BasePath    string   `yaml:"base_path,omitempty"`
	SourceDirs  []string `yaml:"source_dirs,omitempty"`
	AssetsDir   string   `yaml:"assets_dir,omitempty"`
	ExcludeDirs []string `yaml:"exclude_dirs,omitempty"`
}

// LinksConfig tunes the link validator.
type LinksConfig struct {
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Concurrency    int      `yaml:"concurrency,omitempty"`
	Whitelist      []string `yaml:"whitelist,omitempty"`
	// SkipExternal disables network probing entirely.
	SkipExternal *bool `yaml:"skip_external,omitempty"`
}

// Timeout returns the per-probe timeout.
func (l LinksConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// BuildConfig tunes the build-readiness validator.
type BuildConfig struct {
	ConfigFiles      []string `yaml:"config_files,omitempty"`
	Command          []string `yaml:"command,omitempty"`
	Generator        string   `yaml:"generator,omitempty"`
	MinVersion       string   `yaml:"min_version,omitempty"`
	SupportedPlugins []string `yaml:"supported_plugins,omitempty"`
	WorkflowDir      string   `yaml:"workflow_dir,omitempty"`
	DryRun           *bool    `yaml:"dry_run,omitempty"`
}

// AssetsConfig holds asset size thresholds in kilobytes.
type AssetsConfig struct {
	MaxImageKB      int `yaml:"max_image_kb,omitempty"`
	MaxScriptKB     int `yaml:"max_script_kb,omitempty"`
	MaxStyleKB      int `yaml:"max_style_kb,omitempty"`
	MinifyMinimumKB int `yaml:"minify_minimum_kb,omitempty"`
}

// ReportsConfig controls report output.
type ReportsConfig struct {
	Dir     string `yaml:"dir,omitempty"`
	JUnit   *bool  `yaml:"junit,omitempty"`
	Metrics *bool  `yaml:"metrics,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .sitecheck.yaml.
type ProjectConfig struct {
	Site    SiteConfig    `yaml:"site,omitempty"`
	Links   LinksConfig   `yaml:"links,omitempty"`
	Build   BuildConfig   `yaml:"build,omitempty"`
	Assets  AssetsConfig  `yaml:"assets,omitempty"`
	Reports ReportsConfig `yaml:"reports,omitempty"`

	// Path is the file the configuration was loaded from, empty for defaults.
	Path string `yaml:"-"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Site: SiteConfig{
			SourceDirs: append([]string(nil), DefaultSourceDirs...),
			AssetsDir:  DefaultAssetsDir,
		},
		Links: LinksConfig{
			TimeoutSeconds: DefaultLinkTimeoutSeconds,
			Concurrency:    DefaultLinkConcurrency,
			Whitelist:      append([]string(nil), DefaultWhitelist...),
			SkipExternal:   boolPtr(false),
		},
		Build: BuildConfig{
			ConfigFiles:      append([]string(nil), DefaultConfigFiles...),
			Command:          append([]string(nil), DefaultBuildCommand...),
			Generator:        DefaultGenerator,
			SupportedPlugins: append([]string(nil), DefaultSupportedPlugins...),
			WorkflowDir:      DefaultWorkflowDir,
			DryRun:           boolPtr(true),
		},
		Assets: AssetsConfig{
			MaxImageKB:      DefaultMaxImageKB,
			MaxScriptKB:     DefaultMaxScriptKB,
			MaxStyleKB:      DefaultMaxStyleKB,
			MinifyMinimumKB: DefaultMinifyMinimumKB,
		},
		Reports: ReportsConfig{
			Dir:     DefaultReportsDir,
			JUnit:   boolPtr(true),
			Metrics: boolPtr(true),
		},
	}
}

// Load finds .sitecheck.yaml by walking up from startDir (max 10 levels),
// unmarshals it, and fills in missing fields with defaults.
// If no config file is found, returns defaults with a nil error.
// Real I/O errors (e.g. permission denied) are returned to the caller.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	path, data, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}
	return parse(cfg, path, data)
}

// LoadFile reads an explicit configuration file.
func LoadFile(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return parse(New(), path, data)
}

func parse(cfg *ProjectConfig, path string, data []byte) (*ProjectConfig, error) {
	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	mergeConfig(cfg, &fileCfg)
	cfg.Path = path
	return cfg, nil
}

// findConfigFile walks up from dir looking for .sitecheck.yaml (max 10 levels).
// Returns os.ErrNotExist if no config file is found.
func findConfigFile(dir string) (string, []byte, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return p, data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return "", nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	// Site
	if src.Site.BaseURL != "" {
		dst.Site.BaseURL = src.Site.BaseURL
	}
	if src.Site.BasePath != "" {
		dst.Site.BasePath = src.Site.BasePath
	}
	if len(src.Site.SourceDirs) > 0 {
		dst.Site.SourceDirs = src.Site.SourceDirs
	}
	if src.Site.AssetsDir != "" {
		dst.Site.AssetsDir = src.Site.AssetsDir
	}
	if len(src.Site.ExcludeDirs) > 0 {
		dst.Site.ExcludeDirs = src.Site.ExcludeDirs
	}

	// Links
	if src.Links.TimeoutSeconds != 0 {
		dst.Links.TimeoutSeconds = src.Links.TimeoutSeconds
	}
	if src.Links.Concurrency != 0 {
		dst.Links.Concurrency = src.Links.Concurrency
	}
	if src.Links.Whitelist != nil {
		dst.Links.Whitelist = src.Links.Whitelist
	}
	if src.Links.SkipExternal != nil {
		dst.Links.SkipExternal = src.Links.SkipExternal
	}

	// Build
	if len(src.Build.ConfigFiles) > 0 {
		dst.Build.ConfigFiles = src.Build.ConfigFiles
	}
	if len(src.Build.Command) > 0 {
		dst.Build.Command = src.Build.Command
	}
	if src.Build.Generator != "" {
		dst.Build.Generator = src.Build.Generator
	}
	if src.Build.MinVersion != "" {
		dst.Build.MinVersion = src.Build.MinVersion
	}
	if src.Build.SupportedPlugins != nil {
		dst.Build.SupportedPlugins = src.Build.SupportedPlugins
	}
	if src.Build.WorkflowDir != "" {
		dst.Build.WorkflowDir = src.Build.WorkflowDir
	}
	if src.Build.DryRun != nil {
		dst.Build.DryRun = src.Build.DryRun
	}

	// Assets
	if src.Assets.MaxImageKB != 0 {
		dst.Assets.MaxImageKB = src.Assets.MaxImageKB
	}
	if src.Assets.MaxScriptKB != 0 {
		dst.Assets.MaxScriptKB = src.Assets.MaxScriptKB
	}
	if src.Assets.MaxStyleKB != 0 {
		dst.Assets.MaxStyleKB = src.Assets.MaxStyleKB
	}
	if src.Assets.MinifyMinimumKB != 0 {
		dst.Assets.MinifyMinimumKB = src.Assets.MinifyMinimumKB
	}

	// Reports
	if src.Reports.Dir != "" {
		dst.Reports.Dir = src.Reports.Dir
	}
	if src.Reports.JUnit != nil {
		dst.Reports.JUnit = src.Reports.JUnit
	}
	if src.Reports.Metrics != nil {
		dst.Reports.Metrics = src.Reports.Metrics
	}
}

// Enabled dereferences an optional boolean, treating nil as false.
func Enabled(b *bool) bool {
	return b != nil && *b
}

func boolPtr(b bool) *bool {
	return &b
}
