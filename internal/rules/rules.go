// Package rules holds the named, ordered pattern rules that the heuristic
// validators apply to file content.
package rules

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/caxton-dev/sitecheck/internal/models"
)

// matchTimeout bounds a single pattern evaluation.
const matchTimeout = 2 * time.Second

// Rule is one (pattern, category, severity) entry.
type Rule struct {
	Name string
	// Pattern uses .NET-style syntax, so lookaround is available.
	Pattern string
	// Unless suppresses the rule for the whole file when it matches anywhere.
	Unless   string
	Category string
	Severity models.Severity
	Message  string
	// Once reports only the first match per file.
	Once bool
}

type compiled struct {
	Rule
	re     *regexp2.Regexp
	unless *regexp2.Regexp
}

// Set is an ordered, compiled rule list.
type Set struct {
	rules []compiled
}

// Match is one rule hit inside a file.
type Match struct {
	Rule Rule
	Line int
	Text string
}

// Compile compiles rules in order.
func Compile(rs ...Rule) (*Set, error) {
	s := &Set{rules: make([]compiled, 0, len(rs))}
	for _, r := range rs {
		re, err := regexp2.Compile(r.Pattern, regexp2.Multiline)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.Name, err)
		}
		re.MatchTimeout = matchTimeout
		c := compiled{Rule: r, re: re}
		if r.Unless != "" {
			c.unless, err = regexp2.Compile(r.Unless, regexp2.Multiline)
			if err != nil {
				return nil, fmt.Errorf("rule %s unless: %w", r.Name, err)
			}
			c.unless.MatchTimeout = matchTimeout
		}
		s.rules = append(s.rules, c)
	}
	return s, nil
}

// MustCompile is Compile for package-level rule tables.
func MustCompile(rs ...Rule) *Set {
	s, err := Compile(rs...)
	if err != nil {
		panic(err)
	}
	return s
}

// Rules returns the rule definitions in evaluation order.
func (s *Set) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	for i, c := range s.rules {
		out[i] = c.Rule
	}
	return out
}

// Apply evaluates every rule against content and returns the hits in rule order.
func (s *Set) Apply(content string) []Match {
	lines := newLineIndex(content)
	var out []Match
	for _, c := range s.rules {
		if c.unless != nil {
			if ok, _ := c.unless.MatchString(content); ok {
				continue
			}
		}
		m, err := c.re.FindStringMatch(content)
		for err == nil && m != nil {
			out = append(out, Match{Rule: c.Rule, Line: lines.lineAt(m.Index), Text: clip(m.String())})
			if c.Once {
				break
			}
			m, err = c.re.FindNextMatch(m)
		}
	}
	return out
}

// Report converts matches into issues on result.
func Report(r *models.ValidationResult, file string, matches []Match) {
	for _, m := range matches {
		r.Add(models.Issue{
			Severity: m.Rule.Severity,
			Category: m.Rule.Category,
			File:     file,
			Line:     m.Line,
			Snippet:  m.Text,
			Message:  m.Rule.Message,
		})
	}
}

// lineIndex maps rune offsets (regexp2 reports rune indexes) to 1-based lines.
type lineIndex struct {
	breaks []int
}

func newLineIndex(content string) lineIndex {
	var li lineIndex
	i := 0
	for _, r := range content {
		if r == '\n' {
			li.breaks = append(li.breaks, i)
		}
		i++
	}
	return li
}

func (li lineIndex) lineAt(runeIdx int) int {
	return sort.SearchInts(li.breaks, runeIdx) + 1
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const max = 80
	if r := []rune(s); len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}
