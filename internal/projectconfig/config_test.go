package projectconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew_ReturnsAllDefaults(t *testing.T) {
	cfg := New()

	// Site
	assertEqual(t, "Site.AssetsDir", "assets", cfg.Site.AssetsDir)
	assertEqualInt(t, "len(Site.SourceDirs)", len(DefaultSourceDirs), len(cfg.Site.SourceDirs))
	if cfg.Site.BaseURL != "" {
		t.Errorf("Site.BaseURL = %q, want empty", cfg.Site.BaseURL)
	}

	// Links
	assertEqualInt(t, "Links.TimeoutSeconds", 10, cfg.Links.TimeoutSeconds)
	assertEqualInt(t, "Links.Concurrency", 5, cfg.Links.Concurrency)
	assertBoolPtr(t, "Links.SkipExternal", false, cfg.Links.SkipExternal)
	if cfg.Links.Timeout() != 10*time.Second {
		t.Errorf("Links.Timeout() = %v, want 10s", cfg.Links.Timeout())
	}

	// Build
	assertEqual(t, "Build.Generator", "jekyll", cfg.Build.Generator)
	assertEqual(t, "Build.WorkflowDir", ".github/workflows", cfg.Build.WorkflowDir)
	assertBoolPtr(t, "Build.DryRun", true, cfg.Build.DryRun)
	assertEqual(t, "Build.Command[0]", "bundle", cfg.Build.Command[0])

	// Assets
	assertEqualInt(t, "Assets.MaxImageKB", 500, cfg.Assets.MaxImageKB)
	assertEqualInt(t, "Assets.MaxScriptKB", 100, cfg.Assets.MaxScriptKB)

	// Reports
	assertEqual(t, "Reports.Dir", ".sitecheck/reports", cfg.Reports.Dir)
	assertBoolPtr(t, "Reports.JUnit", true, cfg.Reports.JUnit)
	assertBoolPtr(t, "Reports.Metrics", true, cfg.Reports.Metrics)
}

func TestNew_DefaultSlicesAreCopies(t *testing.T) {
	a := New()
	a.Links.Whitelist[0] = "mutated"
	b := New()
	if b.Links.Whitelist[0] == "mutated" {
		t.Fatal("New() shares the whitelist backing array between configs")
	}
}

func TestLoad_FullConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FileName, `
site:
  base_url: https://caxton.dev
  base_path: /docs
  source_dirs: [website, docs]
  assets_dir: static
  exclude_dirs: [_site]
links:
  timeout_seconds: 3
  concurrency: 2
  whitelist: ["https://example.org"]
  skip_external: true
build:
  config_files: [site.yml]
  command: [hugo, --renderToMemory]
  generator: hugo
  min_version: ">= 0.120"
  supported_plugins: []
  workflow_dir: ci
  dry_run: false
assets:
  max_image_kb: 250
  max_script_kb: 50
  max_style_kb: 40
  minify_minimum_kb: 5
reports:
  dir: out/reports
  junit: false
  metrics: false
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	assertEqual(t, "Site.BaseURL", "https://caxton.dev", cfg.Site.BaseURL)
	assertEqual(t, "Site.BasePath", "/docs", cfg.Site.BasePath)
	assertEqualInt(t, "len(Site.SourceDirs)", 2, len(cfg.Site.SourceDirs))
	assertEqual(t, "Site.AssetsDir", "static", cfg.Site.AssetsDir)
	assertEqual(t, "Site.ExcludeDirs[0]", "_site", cfg.Site.ExcludeDirs[0])
	assertEqualInt(t, "Links.TimeoutSeconds", 3, cfg.Links.TimeoutSeconds)
	assertEqualInt(t, "Links.Concurrency", 2, cfg.Links.Concurrency)
	assertEqualInt(t, "len(Links.Whitelist)", 1, len(cfg.Links.Whitelist))
	assertBoolPtr(t, "Links.SkipExternal", true, cfg.Links.SkipExternal)
	assertEqual(t, "Build.ConfigFiles[0]", "site.yml", cfg.Build.ConfigFiles[0])
	assertEqual(t, "Build.Command[0]", "hugo", cfg.Build.Command[0])
	assertEqual(t, "Build.Generator", "hugo", cfg.Build.Generator)
	assertEqual(t, "Build.MinVersion", ">= 0.120", cfg.Build.MinVersion)
	assertEqualInt(t, "len(Build.SupportedPlugins)", 0, len(cfg.Build.SupportedPlugins))
	assertEqual(t, "Build.WorkflowDir", "ci", cfg.Build.WorkflowDir)
	assertBoolPtr(t, "Build.DryRun", false, cfg.Build.DryRun)
	assertEqualInt(t, "Assets.MaxImageKB", 250, cfg.Assets.MaxImageKB)
	assertEqualInt(t, "Assets.MaxScriptKB", 50, cfg.Assets.MaxScriptKB)
	assertEqualInt(t, "Assets.MaxStyleKB", 40, cfg.Assets.MaxStyleKB)
	assertEqualInt(t, "Assets.MinifyMinimumKB", 5, cfg.Assets.MinifyMinimumKB)
	assertEqual(t, "Reports.Dir", "out/reports", cfg.Reports.Dir)
	assertBoolPtr(t, "Reports.JUnit", false, cfg.Reports.JUnit)
	assertBoolPtr(t, "Reports.Metrics", false, cfg.Reports.Metrics)
	assertEqual(t, "Path", filepath.Join(dir, FileName), cfg.Path)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FileName, "site:\n  base_url: https://caxton.dev\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertEqual(t, "Site.BaseURL", "https://caxton.dev", cfg.Site.BaseURL)
	assertEqualInt(t, "Links.TimeoutSeconds", DefaultLinkTimeoutSeconds, cfg.Links.TimeoutSeconds)
	assertEqual(t, "Reports.Dir", DefaultReportsDir, cfg.Reports.Dir)
	assertEqualInt(t, "len(Links.Whitelist)", len(DefaultWhitelist), len(cfg.Links.Whitelist))
}

func TestLoad_MissingFile_ReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Path != "" {
		t.Errorf("Path = %q, want empty for defaults", cfg.Path)
	}
	assertEqualInt(t, "Links.TimeoutSeconds", DefaultLinkTimeoutSeconds, cfg.Links.TimeoutSeconds)
}

func TestLoad_InvalidYAML_ReturnsError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FileName, "site: [unclosed\n")

	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_WalksUpDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, FileName, "links:\n  concurrency: 9\n")
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(nested)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertEqualInt(t, "Links.Concurrency", 9, cfg.Links.Concurrency)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "custom.yaml", "reports:\n  dir: elsewhere\n")

	cfg, err := LoadFile(filepath.Join(dir, "custom.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	assertEqual(t, "Reports.Dir", "elsewhere", cfg.Reports.Dir)

	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnabled(t *testing.T) {
	if Enabled(nil) {
		t.Error("Enabled(nil) = true")
	}
	if !Enabled(boolPtr(true)) {
		t.Error("Enabled(true) = false")
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %q, want %q", field, got, want)
	}
}

func assertEqualInt(t *testing.T, field string, want, got int) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %d, want %d", field, got, want)
	}
}

func assertBoolPtr(t *testing.T, field string, want bool, got *bool) {
	t.Helper()
	if got == nil {
		t.Errorf("%s is nil, want *%v", field, want)
		return
	}
	if *got != want {
		t.Errorf("%s = %v, want %v", field, *got, want)
	}
}
