// Package cssdoc extracts rules, declarations, and media queries from CSS
// using the gorilla/css tokenizer.
package cssdoc

import (
	"strings"

	"github.com/gorilla/css/scanner"
)

// Declaration is one "property: value" pair.
type Declaration struct {
	Property string
	Value    string
	Line     int
}

// Rule is a selector with its declaration block.
type Rule struct {
	Selector     string
	Line         int
	Declarations []Declaration
	// Media is the prelude of the enclosing @media block, if any.
	Media string
}

// Get returns the last value declared for property, lower-cased.
func (r *Rule) Get(property string) (string, bool) {
	for i := len(r.Declarations) - 1; i >= 0; i-- {
		if r.Declarations[i].Property == property {
			return strings.ToLower(r.Declarations[i].Value), true
		}
	}
	return "", false
}

// MediaQuery is an @media prelude.
type MediaQuery struct {
	Prelude string
	Line    int
}

// Sheet is a parsed stylesheet.
type Sheet struct {
	Rules []*Rule
	Media []MediaQuery
	// MissingSemicolons holds lines where a declaration appears to run into
	// the next one.
	MissingSemicolons []int
}

// Declarations returns every declaration in every rule.
func (s *Sheet) Declarations() []Declaration {
	var out []Declaration
	for _, r := range s.Rules {
		out = append(out, r.Declarations...)
	}
	return out
}

// CountBraces counts raw '{' and '}' characters.
func CountBraces(src string) (open, closed int) {
	return strings.Count(src, "{"), strings.Count(src, "}")
}

// declaration blocks opened by these at-rules hold declarations, not rules.
var declarationAtRules = map[string]bool{"@font-face": true, "@page": true, "@viewport": true}

type frame struct {
	rule  *Rule // nil for at-rule blocks holding rules
	media string
}

type parser struct {
	toks  []*scanner.Token
	sheet *Sheet
	stack []frame
}

// Parse tokenizes src and builds the sheet. Malformed input never fails;
// unbalanced braces simply leave blocks open or are ignored.
func Parse(src string) *Sheet {
	p := &parser{sheet: &Sheet{}}
	s := scanner.New(src)
	for {
		tok := s.Next()
		if tok.Type == scanner.TokenEOF || tok.Type == scanner.TokenError {
			break
		}
		if tok.Type == scanner.TokenComment || tok.Type == scanner.TokenCDO || tok.Type == scanner.TokenCDC {
			continue
		}
		p.toks = append(p.toks, tok)
	}
	p.run()
	return p.sheet
}

func (p *parser) currentMedia() string {
	for i := len(p.stack) - 1; i >= 0; i-- {
		if p.stack[i].media != "" {
			return p.stack[i].media
		}
	}
	return ""
}

func (p *parser) inDeclarations() *Rule {
	if len(p.stack) == 0 {
		return nil
	}
	return p.stack[len(p.stack)-1].rule
}

func (p *parser) run() {
	var prelude []*scanner.Token
	i := 0
	for i < len(p.toks) {
		if rule := p.inDeclarations(); rule != nil {
			i = p.declarations(rule, i)
			continue
		}
		tok := p.toks[i]
		i++
		switch {
		case isChar(tok, "{"):
			p.open(prelude)
			prelude = nil
		case isChar(tok, "}"):
			if len(p.stack) > 0 {
				p.stack = p.stack[:len(p.stack)-1]
			}
			prelude = nil
		case isChar(tok, ";"):
			prelude = nil
		default:
			prelude = append(prelude, tok)
		}
	}
}

func (p *parser) open(prelude []*scanner.Token) {
	text := joinTokens(prelude)
	line := 0
	if len(prelude) > 0 {
		line = firstSignificant(prelude).Line
	}
	if first := firstSignificant(prelude); first != nil && first.Type == scanner.TokenAtKeyword {
		name := strings.ToLower(first.Value)
		if declarationAtRules[name] {
			r := &Rule{Selector: text, Line: line, Media: p.currentMedia()}
			p.sheet.Rules = append(p.sheet.Rules, r)
			p.stack = append(p.stack, frame{rule: r})
			return
		}
		f := frame{}
		if name == "@media" {
			q := strings.TrimSpace(strings.TrimPrefix(text, first.Value))
			p.sheet.Media = append(p.sheet.Media, MediaQuery{Prelude: q, Line: line})
			f.media = q
		}
		p.stack = append(p.stack, f)
		return
	}
	r := &Rule{Selector: text, Line: line, Media: p.currentMedia()}
	p.sheet.Rules = append(p.sheet.Rules, r)
	p.stack = append(p.stack, frame{rule: r})
}

// declarations consumes one declaration (or a nested rule prelude) starting
// at i and returns the index after it.
func (p *parser) declarations(rule *Rule, i int) int {
	// skip leading whitespace and stray semicolons
	for i < len(p.toks) && (p.toks[i].Type == scanner.TokenS || isChar(p.toks[i], ";")) {
		i++
	}
	if i >= len(p.toks) {
		return i
	}
	tok := p.toks[i]
	if isChar(tok, "}") {
		p.stack = p.stack[:len(p.stack)-1]
		return i + 1
	}

	// property name
	j := i
	for j < len(p.toks) && !isChar(p.toks[j], ":") && !isChar(p.toks[j], "{") &&
		!isChar(p.toks[j], ";") && !isChar(p.toks[j], "}") {
		j++
	}
	if j >= len(p.toks) {
		return j
	}
	switch {
	case isChar(p.toks[j], "{"):
		// nested rule
		p.open(p.toks[i:j])
		return j + 1
	case !isChar(p.toks[j], ":"):
		// garbage without a colon; drop it
		if isChar(p.toks[j], "}") {
			return j
		}
		return j + 1
	}
	prop := strings.ToLower(strings.TrimSpace(joinTokens(p.toks[i:j])))

	// A colon followed by something other than whitespace inside a property
	// position is a nested selector like "a:hover {".
	if k := p.nestedSelectorEnd(j); k > 0 {
		p.open(p.toks[i:k])
		return k + 1
	}

	// value
	k := j + 1
	var value []*scanner.Token
	for k < len(p.toks) {
		t := p.toks[k]
		if isChar(t, ";") || isChar(t, "}") {
			break
		}
		if t.Type == scanner.TokenS && strings.Contains(t.Value, "\n") && p.startsDeclaration(k+1) && len(value) > 0 {
			p.sheet.MissingSemicolons = append(p.sheet.MissingSemicolons, firstSignificant(value).Line)
			break
		}
		value = append(value, t)
		k++
	}
	rule.Declarations = append(rule.Declarations, Declaration{
		Property: prop,
		Value:    strings.TrimSpace(joinTokens(value)),
		Line:     tok.Line,
	})
	if k < len(p.toks) && isChar(p.toks[k], ";") {
		k++
	}
	return k
}

// nestedSelectorEnd returns the index of '{' when the tokens after the colon
// at j reach a '{' before any ';' or '}', which marks a nested selector.
func (p *parser) nestedSelectorEnd(j int) int {
	if j+1 >= len(p.toks) || p.toks[j+1].Type == scanner.TokenS {
		return 0
	}
	for k := j + 1; k < len(p.toks); k++ {
		switch {
		case isChar(p.toks[k], "{"):
			return k
		case isChar(p.toks[k], ";"), isChar(p.toks[k], "}"):
			return 0
		}
	}
	return 0
}

// startsDeclaration reports whether tokens from k look like "ident:".
func (p *parser) startsDeclaration(k int) bool {
	for k < len(p.toks) && p.toks[k].Type == scanner.TokenS {
		k++
	}
	if k+1 >= len(p.toks) || p.toks[k].Type != scanner.TokenIdent {
		return false
	}
	k++
	for k < len(p.toks) && p.toks[k].Type == scanner.TokenS {
		k++
	}
	return k < len(p.toks) && isChar(p.toks[k], ":")
}

func isChar(t *scanner.Token, c string) bool {
	return t.Type == scanner.TokenChar && t.Value == c
}

func firstSignificant(toks []*scanner.Token) *scanner.Token {
	for _, t := range toks {
		if t.Type != scanner.TokenS {
			return t
		}
	}
	if len(toks) > 0 {
		return toks[0]
	}
	return nil
}

func joinTokens(toks []*scanner.Token) string {
	var b strings.Builder
	for _, t := range toks {
		if t.Type == scanner.TokenS {
			b.WriteByte(' ')
			continue
		}
		b.WriteString(t.Value)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
