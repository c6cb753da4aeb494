package seo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caxton-dev/sitecheck/internal/models"
)

func makeSite(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for relPath, content := range files {
		abs := filepath.Join(dir, filepath.FromSlash(relPath))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
	return dir
}

func validate(t *testing.T, files map[string]string) *models.ValidationResult {
	t.Helper()
	r, err := New(nil).Validate(context.Background(), makeSite(t, files))
	require.NoError(t, err)
	return r
}

func categories(r *models.ValidationResult) []string {
	out := make([]string, 0, len(r.Issues))
	for _, i := range r.Issues {
		out = append(out, i.Category)
	}
	return out
}

func find(r *models.ValidationResult, category string) *models.Issue {
	for i := range r.Issues {
		if r.Issues[i].Category == category {
			return &r.Issues[i]
		}
	}
	return nil
}

const goodPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Caxton: multi-agent orchestration</title>
  <meta name="description" content="Caxton runs WebAssembly agents with isolation, observability, and a message bus.">
  <meta property="og:title" content="Caxton">
  <meta property="og:description" content="Multi-agent orchestration">
  <meta property="og:type" content="website">
  <meta property="og:url" content="https://caxton.dev/">
  <meta name="twitter:card" content="summary">
  <meta name="twitter:title" content="Caxton">
  <meta name="twitter:description" content="Multi-agent orchestration">
  <link rel="canonical" href="https://caxton.dev/">
  <script type="application/ld+json">{"@context": "https://schema.org", "@type": "WebSite", "name": "Caxton"}</script>
</head>
<body>
  <h1>Caxton</h1>
  <h2>Install</h2>
  <img src="logo.png" alt="Caxton logo">
  <a href="/docs/install/">Installation guide</a>
</body>
</html>`

func TestValidate_GoodPage(t *testing.T) {
	r := validate(t, map[string]string{"index.html": goodPage})
	assert.Empty(t, r.Issues, "unexpected: %v", categories(r))
	assert.Equal(t, 1, r.Summary["structured_data"])
	assert.Equal(t, 1, r.Summary["images_with_alt"])
	assert.Equal(t, models.StatusPassed, r.Status)
}

func TestPageChecks(t *testing.T) {
	tests := []struct {
		name     string
		old, new string
		category string
		severity models.Severity
	}{
		{"short title", "<title>Caxton: multi-agent orchestration</title>", "<title>Caxton</title>", "title-length", models.SeverityWarning},
		{"missing title", "<title>Caxton: multi-agent orchestration</title>", "", "missing-title", models.SeverityError},
		{"short description", `content="Caxton runs WebAssembly agents with isolation, observability, and a message bus."`, `content="Agents."`, "description-length", models.SeverityWarning},
		{"duplicate description", `<link rel="canonical"`, `<meta name="description" content="again"><link rel="canonical"`, "duplicate-description", models.SeverityError},
		{"partial open graph", `<meta property="og:url" content="https://caxton.dev/">`, "", "incomplete-open-graph", models.SeverityWarning},
		{"missing canonical", `<link rel="canonical" href="https://caxton.dev/">`, "", "missing-canonical", models.SeverityWarning},
		{"two h1", "<h2>Install</h2>", "<h1>Install</h1>", "multiple-h1", models.SeverityWarning},
		{"heading skip", "<h2>Install</h2>", "<h3>Install</h3>", "heading-skip", models.SeverityWarning},
		{"missing alt", `alt="Caxton logo"`, "", "missing-alt-text", models.SeverityWarning},
		{"generic link text", "Installation guide", "click here", "generic-link-text", models.SeverityWarning},
		{"malformed json-ld", `"name": "Caxton"}`, `"name": "Caxton",}`, "invalid-structured-data", models.SeverityError},
		{"json-ld without type", `"@type": "WebSite", `, "", "invalid-structured-data", models.SeverityError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Contains(t, goodPage, tt.old)
			r := validate(t, map[string]string{"index.html": strings.Replace(goodPage, tt.old, tt.new, 1)})
			got := find(r, tt.category)
			require.NotNil(t, got, "want %s, got %v", tt.category, categories(r))
			assert.Equal(t, tt.severity, got.Severity)
		})
	}
}

func TestSocialTagsAbsentIsInfo(t *testing.T) {
	page := goodPage
	for _, line := range strings.Split(goodPage, "\n") {
		if strings.Contains(line, `"og:`) || strings.Contains(line, `"twitter:`) {
			page = strings.Replace(page, line+"\n", "", 1)
		}
	}
	r := validate(t, map[string]string{"index.html": page})
	assert.ElementsMatch(t, []string{"missing-open-graph", "missing-twitter-card"}, categories(r))
	for _, i := range r.Issues {
		assert.Equal(t, models.SeverityInfo, i.Severity)
	}
}

func TestFragmentsAreSkipped(t *testing.T) {
	r := validate(t, map[string]string{"_includes/footer.html": `<footer><a href="/">here</a></footer>`})
	assert.Empty(t, r.Issues)
	assert.Equal(t, 1, r.Summary["fragments"])
}

// social is the front matter a page needs for link previews.
const social = "image: /assets/caxton-card.png\ntwitter:\n  card: summary_large_image\n"

func TestMarkdownFrontMatter(t *testing.T) {
	tests := []struct {
		name string
		md   string
		want []string
	}{
		{
			name: "complete",
			md: "---\ntitle: Installing Caxton on Linux\ndescription: Step by step instructions for installing Caxton from packages or source.\n" + social + "---\n" +
				"## Packages\n\n![Architecture diagram](arch.png)\n",
			want: nil,
		},
		{
			name: "no front matter",
			md:   "# Installing Caxton\n\nBody.\n",
			want: []string{"missing-front-matter"},
		},
		{
			name: "duplicate keys",
			md:   "---\ntitle: Installing Caxton on Linux\ntitle: again\n---\n# Body\n",
			want: []string{"invalid-front-matter"},
		},
		{
			name: "missing description",
			md:   "---\ntitle: Installing Caxton on Linux\n" + social + "---\n## Body\n",
			want: []string{"missing-description"},
		},
		{
			name: "body issues",
			md: "---\ntitle: Installing Caxton on Linux\ndescription: Step by step instructions for installing Caxton from packages or source.\n" + social + "---\n" +
				"## A\n\n#### B\n\n![](diagram.png)\n\n[read more](/docs/)\n",
			want: []string{"heading-skip", "missing-alt-text", "generic-link-text"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validate(t, map[string]string{"docs/install.md": tt.md})
			if tt.want == nil {
				assert.Empty(t, r.Issues, "unexpected: %v", categories(r))
				return
			}
			assert.Equal(t, tt.want, categories(r))
		})
	}
}

func TestMarkdownSocialFrontMatter(t *testing.T) {
	const head = "---\ntitle: Installing Caxton on Linux\ndescription: Step by step instructions for installing Caxton from packages or source.\n"
	tests := []struct {
		name     string
		fm       string
		want     []string
		severity models.Severity
	}{
		{"image and card", social, nil, ""},
		{"images list and flat card", "images:\n  - /a.png\ntwitter_card: summary\n", nil, ""},
		{"image map", "image:\n  path: /a.png\ntwitter_card: summary\n", nil, ""},
		{"absolute canonical", social + "canonical_url: https://caxton.dev/docs/install/\n", nil, ""},
		{"nothing set", "", []string{"missing-open-graph", "missing-twitter-card"}, models.SeverityInfo},
		{"twitter without card", "image: /a.png\ntwitter:\n  site: \"@caxton\"\n", []string{"incomplete-twitter-card"}, models.SeverityWarning},
		{"unknown card", "image: /a.png\ntwitter_card: huge\n", []string{"incomplete-twitter-card"}, models.SeverityWarning},
		{"relative canonical", social + "canonical_url: /docs/install/\n", []string{"invalid-canonical"}, models.SeverityWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validate(t, map[string]string{"docs/install.md": head + tt.fm + "---\n## Body\n"})
			if tt.want == nil {
				assert.Empty(t, r.Issues, "unexpected: %v", categories(r))
				return
			}
			assert.Equal(t, tt.want, categories(r))
			for _, i := range r.Issues {
				assert.Equal(t, tt.severity, i.Severity, i.Category)
			}
		})
	}
}

func TestGenericLinkTextInsideHeadingsAndTables(t *testing.T) {
	page := strings.Replace(goodPage, `<a href="/docs/install/">Installation guide</a>`,
		`<p><a href="/a/">click here</a></p>
  <h2><a href="/b/">click here</a></h2>
  <table><tr><th><a href="/c/">read more</a></th></tr></table>`, 1)
	r := validate(t, map[string]string{"index.html": page})

	var snippets []string
	for _, i := range r.Issues {
		if i.Category == "generic-link-text" {
			snippets = append(snippets, i.Snippet)
		}
	}
	assert.Equal(t, []string{"click here", "click here", "read more"}, snippets)
}

func TestDuplicateKeysAreErrors(t *testing.T) {
	r := validate(t, map[string]string{"a.md": "---\ntitle: one\ntitle: two\n---\n"})
	got := find(r, "invalid-front-matter")
	require.NotNil(t, got)
	assert.Equal(t, models.SeverityError, got.Severity)
	assert.Equal(t, "title", got.Snippet)
	assert.Equal(t, models.StatusFailed, r.Status)
}

func TestValidate_EmptySite(t *testing.T) {
	r := validate(t, nil)
	assert.Empty(t, r.Issues)
	assert.Equal(t, models.StatusPassed, r.Status)
}
