package models

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Severity classifies a single finding.
type Severity string

const (
	// SeverityError violates a hard rule and fails the validator.
	SeverityError Severity = "error"
	// SeverityWarning is advisory and never fails a validator on its own.
	SeverityWarning Severity = "warning"
	// SeverityInfo is purely descriptive.
	SeverityInfo Severity = "info"
)

// Issue is one finding produced by a validator.
type Issue struct {
	Severity Severity `json:"severity"`
	Category string   `json:"category"`
	File     string   `json:"file"`
	Line     int      `json:"line,omitempty"`
	Snippet  string   `json:"snippet,omitempty"`
	Message  string   `json:"message"`
	// Fingerprint identifies the same finding across runs over an unchanged tree.
	Fingerprint string `json:"fingerprint"`
}

// Location renders the optional location hint as "file:line" or "file".
func (i Issue) Location() string {
	if i.Line > 0 {
		return i.File + ":" + strconv.Itoa(i.Line)
	}
	return i.File
}

func fingerprint(key string, i Issue) string {
	d := xxhash.New()
	for _, part := range []string{key, i.Category, i.File, strconv.Itoa(i.Line), i.Snippet, i.Message} {
		_, _ = d.WriteString(part)
		_, _ = d.Write([]byte{0})
	}
	return strconv.FormatUint(d.Sum64(), 16)
}
