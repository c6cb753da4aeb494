package linkcheck

import (
	"net/url"
	"strings"

	"github.com/caxton-dev/sitecheck/internal/htmldoc"
	"github.com/caxton-dev/sitecheck/internal/mddoc"
)

// Kind classifies a link target.
type Kind string

const (
	KindInternal Kind = "internal"
	KindRelative Kind = "relative"
	KindExternal Kind = "external"
	KindSkipped  Kind = "skipped"
)

// Link is one occurrence of a link target in a source file.
type Link struct {
	Source string
	Target string
	Line   int
	Kind   Kind
	// Path is the site path for internal and relative links.
	Path string
}

// linkAttrs lists the attributes that carry link targets, per element.
var linkAttrs = map[string]string{
	"a":      "href",
	"img":    "src",
	"link":   "href",
	"script": "src",
	"iframe": "src",
	"source": "src",
}

// extractHTML returns the link targets of an HTML document.
func extractHTML(doc *htmldoc.Document, lineOffset int) []Link {
	var out []Link
	for _, el := range doc.Elements {
		attr, ok := linkAttrs[el.Tag]
		if !ok {
			continue
		}
		if el.Tag == "link" && !isFetchedRel(el.Get("rel")) {
			continue
		}
		v, ok := el.Attr(attr)
		if !ok {
			continue
		}
		out = append(out, Link{Target: strings.TrimSpace(v), Line: el.Line + lineOffset})
	}
	return out
}

// isFetchedRel limits <link> elements to the ones a browser actually loads.
func isFetchedRel(rel string) bool {
	for _, r := range strings.Fields(strings.ToLower(rel)) {
		switch r {
		case "stylesheet", "icon", "preload", "manifest", "apple-touch-icon":
			return true
		}
	}
	return false
}

// extractMarkdown returns Markdown links plus the links of embedded HTML.
func extractMarkdown(doc *mddoc.Document) []Link {
	var out []Link
	for _, l := range doc.Links {
		out = append(out, Link{Target: strings.TrimSpace(l.Dest), Line: l.Line})
	}
	for _, frag := range doc.HTML {
		out = append(out, extractHTML(htmldoc.Parse([]byte(frag.Content)), frag.Line-1)...)
	}
	return out
}

// pseudoPrefixes are link schemes that never point at a checkable resource.
var pseudoPrefixes = []string{"javascript:", "mailto:", "tel:", "data:", "sms:"}

// templateMarkers show up in unrendered generator sources.
var templateMarkers = []string{"{{", "{%", "${"}

// isPseudo reports whether target should not be checked at all.
func isPseudo(target string) bool {
	if target == "" || strings.HasPrefix(target, "#") {
		return true
	}
	lower := strings.ToLower(target)
	for _, p := range pseudoPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	for _, m := range templateMarkers {
		if strings.Contains(target, m) {
			return true
		}
	}
	return false
}

// isExternalURL returns true for http://, https://, and protocol-relative URLs.
func isExternalURL(target string) bool {
	lower := strings.ToLower(target)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(target, "//")
}

// classify fills in Kind and Path.
func (v *Validator) classify(l Link) Link {
	switch {
	case isPseudo(l.Target):
		l.Kind = KindSkipped
	case isExternalURL(l.Target):
		target := l.Target
		if strings.HasPrefix(target, "//") {
			target = "https:" + target
		}
		u, err := url.Parse(target)
		if err == nil && v.base != nil && strings.EqualFold(u.Host, v.base.Host) {
			l.Kind = KindInternal
			l.Path = v.stripBasePath(u.Path)
			return l
		}
		l.Kind = KindExternal
		l.Target = target
	case hasScheme(l.Target):
		l.Kind = KindSkipped
	case strings.HasPrefix(l.Target, "/"):
		l.Kind = KindInternal
		l.Path = v.stripBasePath(localPath(l.Target))
	default:
		l.Kind = KindRelative
		l.Path = localPath(l.Target)
		if l.Path == "" {
			// query-only link back to the same page
			l.Kind = KindSkipped
		}
	}
	return l
}

func (v *Validator) stripBasePath(p string) string {
	bp := strings.TrimSuffix(v.cfg.Site.BasePath, "/")
	if bp != "" && (p == bp || strings.HasPrefix(p, bp+"/")) {
		p = strings.TrimPrefix(p, bp)
	}
	if p == "" {
		p = "/"
	}
	return p
}

// hasScheme reports other URL schemes such as ftp: or irc:.
func hasScheme(target string) bool {
	i := strings.Index(target, ":")
	if i <= 0 {
		return false
	}
	for _, c := range target[:i] {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.') {
			return false
		}
	}
	return !strings.ContainsAny(target[:i], "/")
}

// localPath strips the fragment and query and decodes the path.
func localPath(target string) string {
	if i := strings.IndexAny(target, "#?"); i >= 0 {
		target = target[:i]
	}
	if p, err := url.PathUnescape(target); err == nil {
		target = p
	}
	return target
}
