package markup

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

const cleanPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Caxton</title>
</head>
<body>
  <a class="skip-link" href="#main">Skip to content</a>
  <nav><a href="/">Home</a></nav>
  <main id="main">
    <h1>Caxton</h1>
    <h2>Install</h2>
    <img src="logo.png" alt="Caxton logo">
    <img src="divider.png" alt="" role="presentation">
    <label for="q">Search</label><input id="q" type="search">
    <label>Email <input type="email" name="email"></label>
    <input type="checkbox" name="agree">
    <table><tr><th>Key</th></tr><tr><td>v</td></tr></table>
  </main>
</body>
</html>`

func TestValidate_CleanPage(t *testing.T) {
	r := validate(t, map[string]string{"index.html": cleanPage})
	assert.Empty(t, r.Issues, "unexpected: %v", categories(r))
	assert.Equal(t, models.StatusPassed, r.Status)
	assert.Equal(t, 1, r.Summary["html_files"])
}

func TestValidate_MissingLangAndAlt(t *testing.T) {
	page := strings.Replace(cleanPage, `<html lang="en">`, `<html>`, 1)
	page = strings.Replace(page, `alt="Caxton logo"`, ``, 1)

	r := validate(t, map[string]string{"index.html": page})
	require.Len(t, r.Issues, 2, "issues: %v", categories(r))
	assert.Equal(t, []string{"missing-lang", "missing-alt-text"}, categories(r))
	assert.Equal(t, 2, r.Summary["errors"])
	assert.Equal(t, models.StatusFailed, r.Status)
}

func TestImageAltClassification(t *testing.T) {
	tests := []struct {
		name string
		img  string
		want []string
	}{
		{"non-empty alt", `<img src="a.png" alt="chart">`, nil},
		{"missing alt", `<img src="a.png">`, []string{"missing-alt-text"}},
		{"empty alt decorative role", `<img src="a.png" alt="" role="none">`, nil},
		{"empty alt aria-hidden", `<img src="a.png" alt="" aria-hidden="true">`, nil},
		{"empty alt not decorative", `<img src="a.png" alt="">`, []string{"empty-alt-text"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := strings.Replace(cleanPage, `<img src="logo.png" alt="Caxton logo">`, tt.img, 1)
			r := validate(t, map[string]string{"index.html": page})
			if tt.want == nil {
				assert.Empty(t, r.Issues)
				return
			}
			assert.Equal(t, tt.want, categories(r))
		})
	}
}

func TestValidate_StructureAndForms(t *testing.T) {
	page := `<p>fragment</p>
<h1>A</h1>
<h4>B</h4>
<input type="text" name="q" placeholder="search">
<textarea aria-label="Comment"></textarea>`

	r := validate(t, map[string]string{"frag.html": page})
	cats := categories(r)
	for _, c := range []string{"missing-html-element", "missing-head", "missing-body", "missing-charset",
		"missing-viewport", "heading-skip", "missing-form-label", "missing-landmark"} {
		assert.Contains(t, cats, c)
	}
	assert.NotContains(t, cats, "missing-lang", "lang is only checked when <html> exists")

	for _, i := range r.Issues {
		switch i.Category {
		case "heading-skip":
			assert.Equal(t, models.SeverityWarning, i.Severity)
			assert.Equal(t, 3, i.Line)
		case "missing-form-label":
			assert.Equal(t, models.SeverityError, i.Severity)
			assert.Equal(t, 4, i.Line)
		}
	}
}

func TestValidate_AccessibilitySweep(t *testing.T) {
	page := strings.Replace(cleanPage, `<a class="skip-link" href="#main">Skip to content</a>`, ``, 1)
	page = strings.Replace(page, `<h2>Install</h2>`, `<div onclick="go()">Install</div><span role="button" tabindex="0" onclick="go()" onkeydown="go()">ok</span>`, 1)
	page = strings.Replace(page, `<th>Key</th>`, `<td>Key</td>`, 1)

	r := validate(t, map[string]string{"index.html": page})
	assert.ElementsMatch(t, []string{"missing-skip-link", "inaccessible-click-handler", "table-missing-headers"}, categories(r))
	for _, i := range r.Issues {
		assert.Equal(t, models.SeverityWarning, i.Severity)
	}
	assert.Equal(t, models.StatusPassed, r.Status)
}

func TestValidate_SkipLinkInsideHeading(t *testing.T) {
	page := strings.Replace(cleanPage, `<a class="skip-link" href="#main">Skip to content</a>`, ``, 1)
	page = strings.Replace(page, `<h1>Caxton</h1>`, `<h1>Caxton <a href="#main">Skip to content</a></h1>`, 1)

	r := validate(t, map[string]string{"index.html": page})
	assert.NotContains(t, categories(r), "missing-skip-link")
}

func TestCSS_BraceBalance(t *testing.T) {
	tests := []struct {
		css  string
		want bool
	}{
		{"a:focus { color: #333; }", false},
		{"a:focus { color: #333; ", true},
		{"a:focus { color: #333; }}", true},
		{"@media (min-width: 1px) { a:focus { color: #333; } }", false},
	}
	for _, tt := range tests {
		r := validate(t, map[string]string{"site.css": tt.css})
		assert.Equal(t, tt.want, contains(categories(r), "unmatched-braces"), tt.css)
	}
}

func TestCSS_Checks(t *testing.T) {
	css := `.a {
  colour: red;
  font-size: 14px
  margin: 0;
}
.hero { color: #FFF; background-color: white; }
.glass { backdrop-filter: blur(4px); }
`
	r := validate(t, map[string]string{"css/site.css": css})
	cats := categories(r)
	assert.Contains(t, cats, "invalid-property")
	assert.Contains(t, cats, "missing-semicolon")
	assert.Contains(t, cats, "low-contrast")
	assert.Contains(t, cats, "browser-compatibility")
	assert.Contains(t, cats, "missing-focus-styles")
	assert.Contains(t, cats, "absolute-font-units")
	assert.NotContains(t, cats, "unmatched-braces")

	for _, i := range r.Issues {
		switch i.Category {
		case "invalid-property", "low-contrast":
			assert.Equal(t, models.SeverityError, i.Severity)
		default:
			assert.Equal(t, models.SeverityWarning, i.Severity, i.Category)
		}
	}
}

func TestCSS_PrefixedBackdropFilterIsFine(t *testing.T) {
	css := ".glass:focus { -webkit-backdrop-filter: blur(4px); backdrop-filter: blur(4px); font-size: 1rem; }"
	r := validate(t, map[string]string{"site.css": css})
	assert.Empty(t, r.Issues)
}

func TestCompatRulesAreNamed(t *testing.T) {
	for _, rule := range CompatRules() {
		assert.NotEmpty(t, rule.Name)
		assert.Equal(t, models.SeverityWarning, rule.Severity)
	}
}

func TestValidate_EmptySite(t *testing.T) {
	r := validate(t, nil)
	assert.Empty(t, r.Issues)
	assert.Equal(t, models.StatusPassed, r.Status)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
