// Package report persists validator results and the master report.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/caxton-dev/sitecheck/internal/logging"
	"github.com/caxton-dev/sitecheck/internal/models"
)

// Fixed output names next to the per-validator reports.
const (
	MasterFile  = "validation-master-report.json"
	JUnitFile   = "validation-junit.xml"
	MetricsFile = "validation-metrics.prom"
)

// ValidatorReport is the document written for one validator.
type ValidatorReport struct {
	Timestamp   time.Time          `json:"timestamp"`
	Criticality models.Criticality `json:"criticality"`
	*models.ValidationResult
}

// Artifact is one file the writer produced.
type Artifact struct {
	Name string
	Path string
	Size int64
}

// HumanSize renders the artifact size, e.g. "4.2 kB".
func (a Artifact) HumanSize() string { return humanize.Bytes(uint64(a.Size)) }

// Writer writes reports into one directory.
type Writer struct {
	dir string
	log *zap.SugaredLogger
	now func() time.Time
}

// NewWriter returns a writer for dir. The directory is created on first write.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, log: logging.For(logging.ComponentReport), now: time.Now}
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// WriteValidator writes one validator's report under its descriptor's filename.
func (w *Writer) WriteValidator(d models.ValidatorDescriptor, r *models.ValidationResult) (Artifact, error) {
	doc := ValidatorReport{Timestamp: w.now().UTC(), Criticality: d.Criticality, ValidationResult: r}
	return w.writeJSON(d.ReportFile, doc)
}

// WriteMaster writes the combined report.
func (w *Writer) WriteMaster(m *models.MasterReport) (Artifact, error) {
	return w.writeJSON(MasterFile, m)
}

func (w *Writer) writeJSON(name string, v any) (Artifact, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Artifact{}, fmt.Errorf("encoding %s: %w", name, err)
	}
	return w.write(name, append(data, '\n'))
}

func (w *Writer) write(name string, data []byte) (Artifact, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("creating report directory: %w", err)
	}
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("writing %s: %w", name, err)
	}
	w.log.Debugw("report written", "file", path, "bytes", len(data))
	return Artifact{Name: name, Path: path, Size: int64(len(data))}, nil
}

// ReadValidator loads a previously written validator report.
func ReadValidator(path string) (*ValidatorReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r ValidatorReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	if r.ValidationResult == nil {
		return nil, fmt.Errorf("parsing %s: no result", filepath.Base(path))
	}
	return &r, nil
}

// ReadMaster loads a previously written master report.
func ReadMaster(path string) (*models.MasterReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m models.MasterReport
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return &m, nil
}
