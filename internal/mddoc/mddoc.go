// Package mddoc parses Markdown source files: YAML front matter plus the
// links, headings, code blocks, and raw HTML of the body.
package mddoc

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// Link is a Markdown link, image, or autolink.
type Link struct {
	Dest  string
	Text  string
	Image bool
	Line  int
}

// Heading is an ATX or setext heading.
type Heading struct {
	Level int
	Text  string
	Line  int
}

// CodeBlock is a fenced code block.
type CodeBlock struct {
	// Index is the 0-based position among the file's fenced blocks.
	Index int
	Lang  string
	// Info is the full info string after the fence.
	Info    string
	Content string
	// Line is the line of the opening fence.
	Line int
}

// HTMLFragment is inline or block HTML embedded in Markdown.
type HTMLFragment struct {
	Content string
	Line    int
}

// Document is a parsed Markdown file.
type Document struct {
	HasFrontMatter bool
	// FrontMatter is nil when there is no front matter or it failed to parse.
	FrontMatter map[string]any
	// FrontMatterNode keeps key order and lines for duplicate detection.
	FrontMatterNode *yaml.Node
	FrontMatterErr  error
	// FrontMatterLines is the number of lines the front matter block occupies.
	FrontMatterLines int

	Links      []Link
	Headings   []Heading
	CodeBlocks []CodeBlock
	HTML       []HTMLFragment
}

var md = goldmark.New()

// Parse reads content. Front matter problems are recorded on the document
// rather than returned, so the body is always available.
func Parse(content []byte) *Document {
	doc := &Document{}
	body := doc.splitFrontMatter(content)
	lines := newLineIndex(body)

	root := md.Parser().Parse(text.NewReader(body))
	blocks := 0
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.Link:
			doc.Links = append(doc.Links, Link{Dest: string(v.Destination), Text: plainText(v, body), Line: lines.at(offsetOf(v))})
		case *ast.Image:
			doc.Links = append(doc.Links, Link{Dest: string(v.Destination), Text: plainText(v, body), Image: true, Line: lines.at(offsetOf(v))})
		case *ast.AutoLink:
			target := string(v.URL(body))
			doc.Links = append(doc.Links, Link{Dest: target, Text: string(v.Label(body)), Line: lines.at(offsetOf(v))})
		case *ast.Heading:
			doc.Headings = append(doc.Headings, Heading{Level: v.Level, Text: plainText(v, body), Line: lines.at(offsetOf(v))})
		case *ast.FencedCodeBlock:
			cb := CodeBlock{Index: blocks, Content: segmentsText(v.Lines(), body)}
			blocks++
			if v.Info != nil {
				cb.Info = strings.TrimSpace(string(v.Info.Segment.Value(body)))
				cb.Lang = strings.ToLower(string(v.Language(body)))
				cb.Line = lines.at(v.Info.Segment.Start)
			} else if v.Lines().Len() > 0 {
				cb.Line = lines.at(v.Lines().At(0).Start) - 1
			} else {
				cb.Line = lines.at(offsetOf(v))
			}
			doc.CodeBlocks = append(doc.CodeBlocks, cb)
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock:
			if v.Lines().Len() > 0 {
				doc.HTML = append(doc.HTML, HTMLFragment{Content: segmentsText(v.Lines(), body), Line: lines.at(v.Lines().At(0).Start)})
			}
		case *ast.RawHTML:
			if v.Segments.Len() > 0 {
				doc.HTML = append(doc.HTML, HTMLFragment{Content: segmentsText(v.Segments, body), Line: lines.at(v.Segments.At(0).Start)})
			}
		}
		return ast.WalkContinue, nil
	})
	return doc
}

// Title returns the front matter title, falling back to the first h1.
func (d *Document) Title() string {
	if s := d.String("title"); s != "" {
		return s
	}
	for _, h := range d.Headings {
		if h.Level == 1 {
			return h.Text
		}
	}
	return ""
}

// String returns a string front matter value, or "".
func (d *Document) String(key string) string {
	if d.FrontMatter == nil {
		return ""
	}
	s, _ := d.FrontMatter[key].(string)
	return strings.TrimSpace(s)
}

// Has reports whether the front matter defines key.
func (d *Document) Has(key string) bool {
	if d.FrontMatter == nil {
		return false
	}
	_, ok := d.FrontMatter[key]
	return ok
}

// DuplicateKeys returns top-level front matter keys that appear more than once.
func (d *Document) DuplicateKeys() []string {
	if d.FrontMatterNode == nil || len(d.FrontMatterNode.Content) == 0 {
		return nil
	}
	m := d.FrontMatterNode.Content[0]
	if m.Kind != yaml.MappingNode {
		return nil
	}
	seen := map[string]int{}
	var dups []string
	for i := 0; i+1 < len(m.Content); i += 2 {
		k := m.Content[i].Value
		seen[k]++
		if seen[k] == 2 {
			dups = append(dups, k)
		}
	}
	return dups
}

// splitFrontMatter parses a leading --- block and returns the body with the
// front matter replaced by blank lines, so body line numbers match the file.
func (d *Document) splitFrontMatter(content []byte) []byte {
	s := string(content)
	if !strings.HasPrefix(s, "---") {
		return content
	}
	rest := strings.TrimPrefix(s[3:], "\r")
	if !strings.HasPrefix(rest, "\n") {
		return content
	}
	rest = rest[1:]

	var block string
	var after string
	switch {
	case strings.HasPrefix(rest, "---"):
		block, after = "", rest[3:]
	default:
		idx := strings.Index(rest, "\n---")
		if idx < 0 {
			d.HasFrontMatter = true
			d.FrontMatterErr = errors.New("closing front matter delimiter not found")
			return content
		}
		block, after = rest[:idx], rest[idx+4:]
	}
	d.HasFrontMatter = true

	// Node first: it tolerates duplicate keys, which map decoding rejects.
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(block), &node); err != nil {
		d.FrontMatterErr = fmt.Errorf("unmarshalling front matter: %w", err)
	} else {
		d.FrontMatterNode = &node
		var raw map[string]any
		if err := yaml.Unmarshal([]byte(block), &raw); err != nil {
			d.FrontMatterErr = fmt.Errorf("unmarshalling front matter: %w", err)
		} else {
			if raw == nil {
				raw = map[string]any{}
			}
			d.FrontMatter = raw
		}
	}

	consumed := len(s) - len(after)
	d.FrontMatterLines = strings.Count(s[:consumed], "\n") + 1
	pad := bytes.Repeat([]byte{'\n'}, d.FrontMatterLines-1)
	return append(pad, after...)
}

func plainText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := c.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(src))
			if v.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(v.Value)
		case *ast.CodeSpan:
			for t := v.FirstChild(); t != nil; t = t.NextSibling() {
				if tx, ok := t.(*ast.Text); ok {
					b.Write(tx.Segment.Value(src))
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.Image:
			if c != n {
				b.WriteString(plainText(v, src))
				return ast.WalkSkipChildren, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func segmentsText(segs *text.Segments, src []byte) string {
	var b strings.Builder
	for i := 0; i < segs.Len(); i++ {
		s := segs.At(i)
		b.Write(s.Value(src))
	}
	return b.String()
}

// offsetOf finds a byte offset for n: its own lines for blocks, the first text
// descendant for inlines, or the enclosing block as a last resort.
func offsetOf(n ast.Node) int {
	if off := firstOffset(n); off >= 0 {
		return off
	}
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Type() == ast.TypeBlock && p.Lines().Len() > 0 {
			return p.Lines().At(0).Start
		}
	}
	return -1
}

func firstOffset(n ast.Node) int {
	if t, ok := n.(*ast.Text); ok {
		return t.Segment.Start
	}
	if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
		return n.Lines().At(0).Start
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if off := firstOffset(c); off >= 0 {
			return off
		}
	}
	return -1
}

type lineIndex []int

func newLineIndex(src []byte) lineIndex {
	var li lineIndex
	for i, c := range src {
		if c == '\n' {
			li = append(li, i)
		}
	}
	return li
}

// at maps a byte offset to a 1-based line. Unknown offsets map to 0.
func (li lineIndex) at(off int) int {
	if off < 0 {
		return 0
	}
	return sort.SearchInts(li, off) + 1
}
