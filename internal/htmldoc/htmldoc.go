// Package htmldoc tokenizes HTML into a flat element list with line numbers.
//
// The tokenizer is used instead of the tree parser because the tree parser
// synthesizes <html>, <head>, and <body>, which hides whether the author
// actually wrote them.
package htmldoc

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// textTags are the elements whose inner text is collected.
var textTags = map[string]bool{
	"title": true, "a": true, "button": true, "label": true, "th": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"script": true, "style": true,
}

// Element is one start tag.
type Element struct {
	Tag   string
	Attrs map[string]string
	Line  int
	// Text is the collected inner text for elements listed in textTags.
	Text string
	// Within lists the open text-collecting ancestors (such as label or a),
	// outermost first.
	Within []string

	text *strings.Builder
}

// Attr returns the attribute value and whether it is present.
func (e *Element) Attr(name string) (string, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// Has reports whether the attribute is present, even if empty.
func (e *Element) Has(name string) bool {
	_, ok := e.Attrs[name]
	return ok
}

// Inside reports whether the element sits inside an open tag of the given name.
func (e *Element) Inside(tag string) bool {
	for _, w := range e.Within {
		if w == tag {
			return true
		}
	}
	return false
}

// Get returns the attribute value or "".
func (e *Element) Get(name string) string { return e.Attrs[name] }

// HasClass reports whether the class attribute contains any of the given names.
func (e *Element) HasClass(names ...string) bool {
	for _, c := range strings.Fields(e.Attrs["class"]) {
		for _, n := range names {
			if strings.EqualFold(c, n) {
				return true
			}
		}
	}
	return false
}

// Document is the tokenized form of one HTML file.
type Document struct {
	Elements   []*Element
	HasDoctype bool
}

// Parse tokenizes content. It never fails: malformed markup yields whatever
// elements the tokenizer could recover.
func Parse(content []byte) *Document {
	doc := &Document{}
	z := html.NewTokenizer(bytes.NewReader(content))
	line := 1
	var open []*Element

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := z.Raw()
		start := line
		line += bytes.Count(raw, []byte{'\n'})

		switch tt {
		case html.DoctypeToken:
			doc.HasDoctype = true
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			el := &Element{Tag: tok.Data, Attrs: make(map[string]string, len(tok.Attr)), Line: start}
			for _, o := range open {
				el.Within = append(el.Within, o.Tag)
			}
			for _, a := range tok.Attr {
				el.Attrs[strings.ToLower(a.Key)] = a.Val
			}
			doc.Elements = append(doc.Elements, el)
			if tt == html.StartTagToken && textTags[el.Tag] {
				el.text = &strings.Builder{}
				open = append(open, el)
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			for i := len(open) - 1; i >= 0; i-- {
				if open[i].Tag == string(name) {
					for _, el := range open[i:] {
						el.Text = strings.TrimSpace(el.text.String())
					}
					open = open[:i]
					break
				}
			}
		case html.TextToken:
			// Text consumes the token, so read it once for every open element.
			txt := z.Text()
			for _, el := range open {
				el.text.Write(txt)
			}
		}
	}
	for _, el := range open {
		el.Text = strings.TrimSpace(el.text.String())
	}
	return doc
}

// Find returns every element with the given tag name, in document order.
func (d *Document) Find(tags ...string) []*Element {
	var out []*Element
	for _, el := range d.Elements {
		for _, t := range tags {
			if el.Tag == t {
				out = append(out, el)
				break
			}
		}
	}
	return out
}

// First returns the first element with the given tag name, or nil.
func (d *Document) First(tag string) *Element {
	for _, el := range d.Elements {
		if el.Tag == tag {
			return el
		}
	}
	return nil
}

// Meta returns every <meta> whose name or property attribute equals key
// (case-insensitive).
func (d *Document) Meta(key string) []*Element {
	var out []*Element
	for _, el := range d.Find("meta") {
		if strings.EqualFold(el.Get("name"), key) || strings.EqualFold(el.Get("property"), key) {
			out = append(out, el)
		}
	}
	return out
}

// HasCharset reports whether the document declares its character encoding.
func (d *Document) HasCharset() bool {
	for _, el := range d.Find("meta") {
		if el.Has("charset") {
			return true
		}
		if strings.EqualFold(el.Get("http-equiv"), "content-type") &&
			strings.Contains(strings.ToLower(el.Get("content")), "charset") {
			return true
		}
	}
	return false
}

// Viewport returns the viewport meta element, or nil.
func (d *Document) Viewport() *Element {
	if m := d.Meta("viewport"); len(m) > 0 {
		return m[0]
	}
	return nil
}

// HeadingLevel returns 1-6 for h1-h6 and 0 otherwise.
func HeadingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

// Headings returns the h1-h6 elements in document order.
func (d *Document) Headings() []*Element {
	var out []*Element
	for _, el := range d.Elements {
		if HeadingLevel(el.Tag) > 0 {
			out = append(out, el)
		}
	}
	return out
}

// IsDecorative reports whether an image is marked as carrying no content.
func IsDecorative(img *Element) bool {
	role := strings.ToLower(img.Get("role"))
	return role == "presentation" || role == "none" || strings.EqualFold(img.Get("aria-hidden"), "true")
}

// InlineBlocks returns the text of inline <script> or <style> elements.
func (d *Document) InlineBlocks(tag string) []string {
	var out []string
	for _, el := range d.Find(tag) {
		if tag == "script" && el.Has("src") {
			continue
		}
		if el.Text != "" {
			out = append(out, el.Text)
		}
	}
	return out
}
