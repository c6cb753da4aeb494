package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/caxton-dev/sitecheck/internal/models"
)

// runMetrics is one run's gauges, registered on a private registry so the
// textfile holds nothing but this run.
type runMetrics struct {
	registry *prometheus.Registry

	duration *prometheus.GaugeVec
	issues   *prometheus.GaugeVec
	status   *prometheus.GaugeVec
	exitCode prometheus.Gauge
	runTime  prometheus.Gauge
	lastRun  prometheus.Gauge
}

func newRunMetrics() *runMetrics {
	m := &runMetrics{
		registry: prometheus.NewRegistry(),
		duration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sitecheck_validator_duration_seconds",
				Help: "Wall-clock time of each validator in the last run",
			},
			[]string{"validator"},
		),
		issues: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sitecheck_validator_issues",
				Help: "Issues reported by each validator in the last run, by severity",
			},
			[]string{"validator", "severity"},
		),
		status: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sitecheck_validator_status",
				Help: "1 for the status each validator ended the last run with",
			},
			[]string{"validator", "criticality", "status"},
		),
		exitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sitecheck_exit_code",
			Help: "Exit code of the last run",
		}),
		runTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sitecheck_run_duration_seconds",
			Help: "Wall-clock time of the last run",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sitecheck_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
	}
	m.registry.MustRegister(m.duration, m.issues, m.status, m.exitCode, m.runTime, m.lastRun)
	return m
}

func (m *runMetrics) observe(master *models.MasterReport, results map[string]*models.ValidationResult) {
	for _, rec := range master.Validators {
		m.duration.WithLabelValues(rec.Key).Set(float64(rec.DurationMs) / 1000.0)
		crit := string(models.NonCritical)
		if rec.Critical {
			crit = string(models.Critical)
		}
		m.status.WithLabelValues(rec.Key, crit, string(rec.Status)).Set(1)

		r := results[rec.Key]
		if r == nil {
			continue
		}
		for _, sev := range []models.Severity{models.SeverityError, models.SeverityWarning, models.SeverityInfo} {
			m.issues.WithLabelValues(rec.Key, string(sev)).Set(float64(r.Count(sev)))
		}
	}
	m.exitCode.Set(float64(master.ExitCode))
	m.runTime.Set(float64(master.TotalDurationMs) / 1000.0)
	if !master.Summary.EndTime.IsZero() {
		m.lastRun.Set(float64(master.Summary.EndTime.Unix()))
	}
}

// WriteMetrics writes a node-exporter textfile for the run.
func (w *Writer) WriteMetrics(master *models.MasterReport, results map[string]*models.ValidationResult) (Artifact, error) {
	m := newRunMetrics()
	m.observe(master, results)

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("creating report directory: %w", err)
	}
	path := filepath.Join(w.dir, MetricsFile)
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return Artifact{}, fmt.Errorf("writing %s: %w", MetricsFile, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("writing %s: %w", MetricsFile, err)
	}
	return Artifact{Name: MetricsFile, Path: path, Size: info.Size()}, nil
}
