// Package orchestrator runs the registered validators against a site, turns
// their outcomes into a verdict, and persists the reports.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/caxton-dev/sitecheck/internal/lock"
	"github.com/caxton-dev/sitecheck/internal/logging"
	"github.com/caxton-dev/sitecheck/internal/models"
	"github.com/caxton-dev/sitecheck/internal/report"
)

// Run states.
const (
	StateIdle       = "idle"
	StateRunning    = "running"
	StateAggregated = "aggregated"
	StateReported   = "reported"
	StateExited     = "exited"
)

// ProgressListener receives progress updates
type ProgressListener func(event ProgressEvent)

// EventType represents the type of progress event
type EventType string

// EventType constants
const (
	EventRunStart          EventType = "run_start"
	EventValidatorStart    EventType = "validator_start"
	EventValidatorComplete EventType = "validator_complete"
	EventReportWritten     EventType = "report_written"
	EventRunComplete       EventType = "run_complete"
)

// ProgressEvent represents a progress update
type ProgressEvent struct {
	EventType EventType
	Validator models.ValidatorDescriptor
	// Index is 1-based within the selected validators.
	Index    int
	Total    int
	Record   *models.OrchestrationRecord
	Artifact *report.Artifact
	Master   *models.MasterReport
}

// Outcome is everything a run produced.
type Outcome struct {
	Master    *models.MasterReport
	Results   map[string]*models.ValidationResult
	Artifacts []report.Artifact
	// State is the final run state, StateExited after a complete run.
	State string
}

// Err returns a *VerdictError for a non-zero verdict, or nil.
func (o *Outcome) Err() error {
	if o.Master.ExitCode == ExitOK {
		return nil
	}
	return &VerdictError{Verdict: o.Master.Verdict, Code: o.Master.ExitCode}
}

// Option configures a Runner.
type Option func(*Runner)

// WithParallel runs validators concurrently. Aggregation still waits for all
// of them.
func WithParallel(on bool) Option {
	return func(r *Runner) { r.parallel = on }
}

// WithJUnit enables the JUnit XML export.
func WithJUnit(on bool) Option {
	return func(r *Runner) { r.junit = on }
}

// WithMetrics enables the Prometheus textfile export.
func WithMetrics(on bool) Option {
	return func(r *Runner) { r.metrics = on }
}

// Runner orchestrates one validation run.
type Runner struct {
	root       string
	validators []Validator
	writer     *report.Writer

	parallel bool
	junit    bool
	metrics  bool

	log   *zap.SugaredLogger
	now   func() time.Time
	newID func() string

	progressMu sync.Mutex
	listeners  []ProgressListener
	// notifyMu keeps listener calls from interleaving in parallel mode.
	notifyMu sync.Mutex
}

// New creates a runner for root that writes reports through w.
func New(root string, validators []Validator, w *report.Writer, opts ...Option) *Runner {
	r := &Runner{
		root:       root,
		validators: validators,
		writer:     w,
		log:        logging.For(logging.ComponentOrchestrator),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// OnProgress registers a progress listener
func (r *Runner) OnProgress(listener ProgressListener) {
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	r.listeners = append(r.listeners, listener)
}

func (r *Runner) notifyProgress(event ProgressEvent) {
	r.progressMu.Lock()
	listeners := make([]ProgressListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.progressMu.Unlock()

	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	for _, listener := range listeners {
		listener(event)
	}
}

func (r *Runner) newMachine() *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: "start", Src: []string{StateIdle}, Dst: StateRunning},
			{Name: "aggregate", Src: []string{StateRunning}, Dst: StateAggregated},
			{Name: "report", Src: []string{StateAggregated}, Dst: StateReported},
			{Name: "exit", Src: []string{StateReported}, Dst: StateExited},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				r.log.Debugw("run state changed", "from", e.Src, "to", e.Dst)
			},
		},
	)
}

// step fires a run-state event. A refused transition is a programming error
// in the runner itself.
func step(ctx context.Context, m *fsm.FSM, event string) error {
	if err := m.Event(ctx, event); err != nil {
		return fmt.Errorf("run state %s: %w", m.Current(), err)
	}
	return nil
}

// Run executes the selected validators and writes every report. The returned
// error is fatal; validator findings and faults only show up in the outcome.
func (r *Runner) Run(ctx context.Context) (*Outcome, error) {
	if abs, err := filepath.Abs(r.root); err == nil {
		r.root = abs
	}

	lk, err := lock.ForDir(r.writer.Dir())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReportWrite, err)
	}
	if err := lk.TryLock(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReportWrite, err)
	}
	defer func() {
		if err := lk.Unlock(); err != nil {
			r.log.Warnw("releasing report lock", "error", err)
		}
	}()

	// State transitions finish even after cancellation so a partial run is
	// still aggregated and reported.
	mctx := context.WithoutCancel(ctx)
	m := r.newMachine()
	summary := models.RunSummary{StartTime: r.now()}
	if err := step(mctx, m, "start"); err != nil {
		return nil, err
	}
	r.log.Infow("validation run started", "root", r.root, "validators", len(r.validators), "parallel", r.parallel)
	r.notifyProgress(ProgressEvent{EventType: EventRunStart, Total: len(r.validators)})

	var records []models.OrchestrationRecord
	var results []*models.ValidationResult
	if r.parallel {
		records, results = r.runParallel(ctx)
	} else {
		records, results = r.runSequential(ctx)
	}
	summary.EndTime = r.now()

	if err := step(mctx, m, "aggregate"); err != nil {
		return nil, err
	}
	master := r.aggregate(records, summary)
	byKey := make(map[string]*models.ValidationResult, len(results))
	for i, res := range results {
		if res != nil {
			byKey[records[i].Key] = res
		}
	}

	artifacts, err := r.writeReports(master, records, results, byKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReportWrite, err)
	}
	if err := step(mctx, m, "report"); err != nil {
		return nil, err
	}

	r.log.Infow("validation run finished",
		"verdict", master.Verdict, "exit_code", master.ExitCode,
		"passed", master.Summary.Passed, "failed", master.Summary.Failed, "warnings", master.Summary.Warnings)
	r.notifyProgress(ProgressEvent{EventType: EventRunComplete, Total: len(r.validators), Master: master})

	if err := step(mctx, m, "exit"); err != nil {
		return nil, err
	}
	out := &Outcome{Master: master, Results: byKey, Artifacts: artifacts, State: m.Current()}
	if err := ctx.Err(); err != nil && len(records) < len(r.validators) {
		return out, fmt.Errorf("run canceled after %d of %d validators: %w", len(records), len(r.validators), err)
	}
	return out, nil
}

// runSequential awaits each validator before starting the next. Cancellation
// is honored only between validators.
func (r *Runner) runSequential(ctx context.Context) ([]models.OrchestrationRecord, []*models.ValidationResult) {
	vctx := context.WithoutCancel(ctx)
	records := make([]models.OrchestrationRecord, 0, len(r.validators))
	results := make([]*models.ValidationResult, 0, len(r.validators))
	for i, v := range r.validators {
		if ctx.Err() != nil {
			r.log.Warnw("run canceled; remaining validators skipped", "remaining", len(r.validators)-i)
			break
		}
		rec, res := r.runOne(vctx, v, i+1)
		records = append(records, rec)
		results = append(results, res)
	}
	return records, results
}

// runParallel starts every validator at once and joins on all of them.
func (r *Runner) runParallel(ctx context.Context) ([]models.OrchestrationRecord, []*models.ValidationResult) {
	vctx := context.WithoutCancel(ctx)
	records := make([]models.OrchestrationRecord, len(r.validators))
	results := make([]*models.ValidationResult, len(r.validators))

	var g errgroup.Group
	for i, v := range r.validators {
		g.Go(func() error {
			records[i], results[i] = r.runOne(vctx, v, i+1)
			return nil
		})
	}
	_ = g.Wait()
	return records, results
}

// runOne invokes one validator behind a recover boundary so a panic becomes
// an error record instead of ending the run.
func (r *Runner) runOne(ctx context.Context, v Validator, index int) (rec models.OrchestrationRecord, res *models.ValidationResult) {
	d := v.Descriptor()
	rec = models.OrchestrationRecord{Name: d.Name, Key: d.Key, Critical: d.IsCritical()}
	r.notifyProgress(ProgressEvent{EventType: EventValidatorStart, Validator: d, Index: index, Total: len(r.validators)})
	log := r.log.With("validator", d.Key)

	start := r.now()
	defer func() {
		if p := recover(); p != nil {
			res = nil
			rec.Status = models.RunError
			rec.Error = fmt.Sprintf("panic: %v", p)
			log.Errorw("validator panicked", "panic", p)
		}
		rec.Duration = r.now().Sub(start)
		rec.DurationMs = rec.Duration.Milliseconds()
		r.notifyProgress(ProgressEvent{EventType: EventValidatorComplete, Validator: d, Index: index, Total: len(r.validators), Record: &rec})
	}()

	result, err := v.Validate(ctx, r.root)
	switch {
	case err != nil:
		rec.Status = models.RunError
		rec.Error = err.Error()
		log.Errorw("validator could not complete", "error", err)
	case result == nil:
		rec.Status = models.RunError
		rec.Error = "validator returned no result"
		log.Errorw("validator returned no result")
	case result.Status == models.StatusFailed:
		rec.Status = models.RunValidationFailed
		rec.Issues = len(result.Issues)
		res = result
	default:
		rec.Status = models.RunPassed
		rec.Issues = len(result.Issues)
		res = result
	}
	if res != nil {
		rec.ReportFile = d.ReportFile
	}
	return rec, res
}

func (r *Runner) aggregate(records []models.OrchestrationRecord, summary models.RunSummary) *models.MasterReport {
	summary.Passed, summary.Failed, summary.Warnings = Tally(records)
	verdict := DecideVerdict(records)
	return &models.MasterReport{
		RunID:           r.newID(),
		Timestamp:       summary.StartTime.UTC(),
		Root:            r.root,
		Summary:         summary,
		TotalDurationMs: summary.Duration().Milliseconds(),
		Verdict:         verdict,
		ExitCode:        ExitCode(verdict),
		Validators:      records,
		Recommendations: Recommendations(records),
	}
}

func (r *Runner) writeReports(master *models.MasterReport, records []models.OrchestrationRecord,
	results []*models.ValidationResult, byKey map[string]*models.ValidationResult) ([]report.Artifact, error) {
	var artifacts []report.Artifact
	emit := func(a report.Artifact) {
		artifacts = append(artifacts, a)
		r.notifyProgress(ProgressEvent{EventType: EventReportWritten, Artifact: &a})
	}

	for i, res := range results {
		if res == nil {
			continue
		}
		a, err := r.writer.WriteValidator(r.validators[i].Descriptor(), res)
		if err != nil {
			return nil, err
		}
		emit(a)
	}

	a, err := r.writer.WriteMaster(master)
	if err != nil {
		return nil, err
	}
	emit(a)

	if r.junit {
		a, err := r.writer.WriteJUnit(master, byKey)
		if err != nil {
			return nil, err
		}
		emit(a)
	}
	if r.metrics {
		a, err := r.writer.WriteMetrics(master, byKey)
		if err != nil {
			return nil, err
		}
		emit(a)
	}
	r.log.Debugw("reports written", "dir", r.writer.Dir(), "files", len(artifacts), "validators", len(records))
	return artifacts, nil
}
