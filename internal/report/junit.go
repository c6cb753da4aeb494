package report

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/caxton-dev/sitecheck/internal/models"
)

// JUnit XML schema types

// JUnitTestSuites is the top-level container.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Time       float64          `xml:"time,attr"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite maps to one pipeline run.
type JUnitTestSuite struct {
	XMLName    xml.Name        `xml:"testsuite"`
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase maps to one validator.
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
}

// JUnitFailure is a validator that found issues.
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// JUnitError is a validator that could not complete.
type JUnitError struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
}

// JUnitProperty is a key-value metadata entry.
type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// ConvertToJUnit maps the master report onto one test suite with a test case
// per validator. results supplies issue details for failed validators and may
// be nil.
func ConvertToJUnit(m *models.MasterReport, results map[string]*models.ValidationResult) *JUnitTestSuites {
	durationSec := float64(m.TotalDurationMs) / 1000.0

	suite := JUnitTestSuite{
		Name:      "sitecheck",
		Tests:     len(m.Validators),
		Time:      durationSec,
		Timestamp: m.Timestamp.Format(time.RFC3339),
		Properties: []JUnitProperty{
			{Name: "run_id", Value: m.RunID},
			{Name: "root", Value: m.Root},
			{Name: "verdict", Value: string(m.Verdict)},
		},
	}

	for _, rec := range m.Validators {
		tc := JUnitTestCase{
			Name:      rec.Name,
			Classname: "sitecheck." + rec.Key,
			Time:      float64(rec.DurationMs) / 1000.0,
		}
		switch rec.Status {
		case models.RunValidationFailed:
			suite.Failures++
			tc.Failure = &JUnitFailure{
				Message: fmt.Sprintf("%s: %d issues", rec.Name, rec.Issues),
				Type:    "ValidationFailure",
				Body:    formatIssues(results[rec.Key]),
			}
		case models.RunError:
			suite.Errors++
			tc.Error = &JUnitError{Message: rec.Error, Type: "ValidatorError"}
		}
		suite.TestCases = append(suite.TestCases, tc)
	}

	return &JUnitTestSuites{
		Tests:      suite.Tests,
		Failures:   suite.Failures,
		Errors:     suite.Errors,
		Time:       durationSec,
		TestSuites: []JUnitTestSuite{suite},
	}
}

// formatIssues lists the error-level issues, one per line.
func formatIssues(r *models.ValidationResult) string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	for _, i := range r.Issues {
		if i.Severity != models.SeverityError {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s %s: %s\n", i.Severity, i.Category, i.Location(), i.Message)
	}
	return b.String()
}

// WriteJUnit writes the JUnit XML rendering of the master report.
func (w *Writer) WriteJUnit(m *models.MasterReport, results map[string]*models.ValidationResult) (Artifact, error) {
	data, err := xml.MarshalIndent(ConvertToJUnit(m, results), "", "  ")
	if err != nil {
		return Artifact{}, fmt.Errorf("marshaling JUnit XML: %w", err)
	}
	return w.write(JUnitFile, append([]byte(xml.Header), data...))
}
