package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/caxton-dev/sitecheck/internal/buildcheck"
	"github.com/caxton-dev/sitecheck/internal/linkcheck"
	"github.com/caxton-dev/sitecheck/internal/lock"
	"github.com/caxton-dev/sitecheck/internal/models"
	"github.com/caxton-dev/sitecheck/internal/projectconfig"
	"github.com/caxton-dev/sitecheck/internal/report"
)

// --- Helpers ---

func passing(d models.ValidatorDescriptor) *models.ValidationResult {
	return models.NewResult(d).Finalize()
}

func failing(d models.ValidatorDescriptor) *models.ValidationResult {
	r := models.NewResult(d)
	r.Addf(models.SeverityError, "broken", "index.html", 3, "something is wrong")
	return r.Finalize()
}

// stub returns a mock validator for d that answers Validate once.
func stub(ctrl *gomock.Controller, d models.ValidatorDescriptor, res *models.ValidationResult, err error) *MockValidator {
	m := NewMockValidator(ctrl)
	m.EXPECT().Descriptor().Return(d).AnyTimes()
	m.EXPECT().Validate(gomock.Any(), gomock.Any()).Return(res, err).Times(1)
	return m
}

func newRunner(t *testing.T, validators []Validator, opts ...Option) (*Runner, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "reports")
	r := New(t.TempDir(), validators, report.NewWriter(dir), opts...)
	r.newID = func() string { return "run-test" }
	return r, dir
}

func statuses(m *models.MasterReport) []models.RunStatus {
	out := make([]models.RunStatus, 0, len(m.Validators))
	for _, rec := range m.Validators {
		out = append(out, rec.Status)
	}
	return out
}

func makeSite(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for relPath, content := range files {
		abs := filepath.Join(dir, filepath.FromSlash(relPath))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
	return dir
}

// --- Verdict ---

func TestDecideVerdict_AllCombinations(t *testing.T) {
	outcomes := []models.RunStatus{models.RunPassed, models.RunValidationFailed, models.RunError}

	combos := 1
	for range Descriptors {
		combos *= len(outcomes)
	}
	for n := 0; n < combos; n++ {
		records := make([]models.OrchestrationRecord, len(Descriptors))
		wantCritical, wantAny := false, false
		code := n
		for i, d := range Descriptors {
			st := outcomes[code%len(outcomes)]
			code /= len(outcomes)
			records[i] = models.OrchestrationRecord{Key: d.Key, Critical: d.IsCritical(), Status: st}
			if st != models.RunPassed {
				wantAny = true
				wantCritical = wantCritical || d.IsCritical()
			}
		}

		want := ExitOK
		switch {
		case wantCritical:
			want = ExitCritical
		case wantAny:
			want = ExitWarnings
		}
		got := ExitCode(DecideVerdict(records))
		if got != want {
			t.Fatalf("combination %d: exit %d, want %d (%v)", n, got, want, records)
		}

		// Order never matters.
		reversed := make([]models.OrchestrationRecord, len(records))
		for i := range records {
			reversed[len(records)-1-i] = records[i]
		}
		if DecideVerdict(reversed) != DecideVerdict(records) {
			t.Fatalf("combination %d: verdict depends on order", n)
		}
	}
}

func TestTally(t *testing.T) {
	records := []models.OrchestrationRecord{
		{Key: "links", Critical: true, Status: models.RunPassed},
		{Key: "html-css", Critical: true, Status: models.RunValidationFailed},
		{Key: "seo", Status: models.RunValidationFailed},
		{Key: "responsive", Status: models.RunError},
		{Key: "build", Critical: true, Status: models.RunError},
	}
	passed, failed, warnings := Tally(records)
	assert.Equal(t, 1, passed)
	assert.Equal(t, 3, failed)
	assert.Equal(t, 1, warnings)
	assert.Equal(t, len(records), passed+failed+warnings)
}

func TestRecommendations(t *testing.T) {
	records := []models.OrchestrationRecord{
		{Name: "SEO Validation", Key: "seo", Status: models.RunValidationFailed},
		{Name: "Link Validation", Key: "links", Critical: true, Status: models.RunPassed},
		{Name: "Build Validation", Key: "build", Critical: true, Status: models.RunError, Error: "reading Gemfile: denied"},
		{Name: "HTML/CSS Validation", Key: "html-css", Critical: true, Status: models.RunValidationFailed},
	}
	recs := Recommendations(records)
	require.Len(t, recs, 3)
	assert.Equal(t, "Build Validation could not complete (reading Gemfile: denied); fix the fault and re-run", recs[0])
	assert.Equal(t, advice["html-css"], recs[1])
	assert.Equal(t, advice["seo"], recs[2])

	assert.Empty(t, Recommendations([]models.OrchestrationRecord{{Key: "links", Status: models.RunPassed}}))
}

func TestAdvice_CoversRegistry(t *testing.T) {
	for _, d := range Descriptors {
		assert.NotEmpty(t, advice[d.Key], d.Key)
	}
}

// --- Registry ---

func TestRegistry_Order(t *testing.T) {
	vs := Registry(projectconfig.New(), RegistryOptions{})
	require.Len(t, vs, 7)

	keys := make([]string, 0, len(vs))
	critical := 0
	for i, v := range vs {
		d := v.Descriptor()
		assert.Equal(t, Descriptors[i], d)
		assert.NotEmpty(t, d.ReportFile)
		keys = append(keys, d.Key)
		if d.IsCritical() {
			critical++
		}
	}
	assert.Equal(t, []string{"links", "html-css", "javascript", "code-syntax", "seo", "build", "responsive"}, keys)
	assert.Equal(t, 4, critical)
}

func TestSelect(t *testing.T) {
	all := Registry(projectconfig.New(), RegistryOptions{})

	tests := []struct {
		name string
		only []string
		skip []string
		want []string
	}{
		{"everything", nil, nil, []string{"links", "html-css", "javascript", "code-syntax", "seo", "build", "responsive"}},
		{"only keeps registry order", []string{"seo", "links"}, nil, []string{"links", "seo"}},
		{"skip", nil, []string{"links", "build"}, []string{"html-css", "javascript", "code-syntax", "seo", "responsive"}},
		{"only then skip", []string{"seo", "links"}, []string{"seo"}, []string{"links"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(all, tt.only, tt.skip)
			require.NoError(t, err)
			keys := make([]string, 0, len(got))
			for _, v := range got {
				keys = append(keys, v.Descriptor().Key)
			}
			assert.Equal(t, tt.want, keys)
		})
	}
}

func TestSelect_UnknownKey(t *testing.T) {
	_, err := Select(Registry(projectconfig.New(), RegistryOptions{}), nil, []string{"spelling"})
	var unknown *UnknownKeyError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "spelling", unknown.Key)
	assert.Contains(t, err.Error(), "links, html-css")
}

// --- Runner ---

func TestRun_MixedOutcomes(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := Descriptors

	validators := []Validator{
		stub(ctrl, d[0], passing(d[0]), nil),
		stub(ctrl, d[1], passing(d[1]), nil),
		stub(ctrl, d[2], passing(d[2]), nil),
		stub(ctrl, d[3], failing(d[3]), nil),
		stub(ctrl, d[4], nil, errors.New("reading about.html: permission denied")),
		stub(ctrl, d[5], passing(d[5]), nil),
		stub(ctrl, d[6], passing(d[6]), nil),
	}
	r, dir := newRunner(t, validators)

	out, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateExited, out.State)

	m := out.Master
	assert.Equal(t, "run-test", m.RunID)
	assert.Equal(t, models.VerdictNonCriticalIssue, m.Verdict)
	assert.Equal(t, ExitWarnings, m.ExitCode)
	assert.Equal(t, 5, m.Summary.Passed)
	assert.Equal(t, 1, m.Summary.Failed, "an error counts as failed")
	assert.Equal(t, 1, m.Summary.Warnings)
	assert.Equal(t, []models.RunStatus{
		models.RunPassed, models.RunPassed, models.RunPassed,
		models.RunValidationFailed, models.RunError,
		models.RunPassed, models.RunPassed,
	}, statuses(m))
	assert.Equal(t, "reading about.html: permission denied", m.Validators[4].Error)
	assert.Empty(t, m.Validators[4].ReportFile)
	assert.Equal(t, 1, m.Validators[3].Issues)
	assert.Len(t, m.Recommendations, 2)

	var verdict *VerdictError
	require.ErrorAs(t, out.Err(), &verdict)
	assert.Equal(t, ExitWarnings, verdict.Code)

	// Six validator reports plus the master report; the errored one writes none.
	assert.Len(t, out.Artifacts, 7)
	assert.NotContains(t, out.Results, "seo")
	for _, rec := range m.Validators {
		_, statErr := os.Stat(filepath.Join(dir, d[indexOf(rec.Key)].ReportFile))
		if rec.Status == models.RunError {
			assert.True(t, os.IsNotExist(statErr), rec.Key)
		} else {
			assert.NoError(t, statErr, rec.Key)
		}
	}

	saved, err := report.ReadMaster(filepath.Join(dir, report.MasterFile))
	require.NoError(t, err)
	assert.Equal(t, m.Verdict, saved.Verdict)
	assert.Equal(t, ExitWarnings, saved.ExitCode)
}

func indexOf(key string) int {
	for i, d := range Descriptors {
		if d.Key == key {
			return i
		}
	}
	return -1
}

func TestRun_CriticalFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	links := Descriptors[0]
	seo := Descriptors[4]

	r, _ := newRunner(t, []Validator{
		stub(ctrl, links, failing(links), nil),
		stub(ctrl, seo, passing(seo), nil),
	})
	out, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.VerdictCriticalIssue, out.Master.Verdict)
	assert.Equal(t, ExitCritical, out.Master.ExitCode)
	assert.Equal(t, []string{advice["links"]}, out.Master.Recommendations)
}

func TestRun_AllClear(t *testing.T) {
	ctrl := gomock.NewController(t)
	var vs []Validator
	for _, d := range Descriptors {
		vs = append(vs, stub(ctrl, d, passing(d), nil))
	}
	r, _ := newRunner(t, vs)
	out, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.VerdictAllClear, out.Master.Verdict)
	assert.Equal(t, ExitOK, out.Master.ExitCode)
	assert.NoError(t, out.Err())
	assert.Empty(t, out.Master.Recommendations)
	assert.Equal(t, 7, out.Master.Summary.Passed)
}

func TestRun_PanicIsIsolated(t *testing.T) {
	ctrl := gomock.NewController(t)
	js, code := Descriptors[2], Descriptors[3]

	boom := NewMockValidator(ctrl)
	boom.EXPECT().Descriptor().Return(js).AnyTimes()
	boom.EXPECT().Validate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, string) (*models.ValidationResult, error) {
			panic("parser exploded")
		})

	r, _ := newRunner(t, []Validator{boom, stub(ctrl, code, passing(code), nil)})
	out, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, out.Master.Validators, 2)
	rec := out.Master.Validators[0]
	assert.Equal(t, models.RunError, rec.Status)
	assert.Equal(t, "panic: parser exploded", rec.Error)
	assert.Equal(t, models.RunPassed, out.Master.Validators[1].Status, "later validators still run")
	assert.Equal(t, ExitCritical, out.Master.ExitCode)
}

func TestRun_NilResultIsAnError(t *testing.T) {
	ctrl := gomock.NewController(t)
	seo := Descriptors[4]
	r, _ := newRunner(t, []Validator{stub(ctrl, seo, nil, nil)})

	out, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunError, out.Master.Validators[0].Status)
	assert.Equal(t, ExitWarnings, out.Master.ExitCode)
}

func TestRun_ParallelMatchesSequential(t *testing.T) {
	build := func(ctrl *gomock.Controller) []Validator {
		var vs []Validator
		for i, d := range Descriptors {
			switch i {
			case 1, 4:
				vs = append(vs, stub(ctrl, d, failing(d), nil))
			case 6:
				vs = append(vs, stub(ctrl, d, nil, errors.New("unreadable")))
			default:
				vs = append(vs, stub(ctrl, d, passing(d), nil))
			}
		}
		return vs
	}

	seq, _ := newRunner(t, build(gomock.NewController(t)))
	par, _ := newRunner(t, build(gomock.NewController(t)), WithParallel(true))

	a, err := seq.Run(context.Background())
	require.NoError(t, err)
	b, err := par.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, statuses(a.Master), statuses(b.Master))
	assert.Equal(t, a.Master.Verdict, b.Master.Verdict)
	assert.Equal(t, a.Master.ExitCode, b.Master.ExitCode)
	assert.Equal(t, a.Master.Summary.Failed, b.Master.Summary.Failed)
	assert.Equal(t, a.Master.Recommendations, b.Master.Recommendations)
	for i, rec := range b.Master.Validators {
		assert.Equal(t, Descriptors[i].Key, rec.Key, "records keep registry order")
	}
}

func TestRun_CancelStopsBetweenValidators(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	links, seo := Descriptors[0], Descriptors[4]
	first := NewMockValidator(ctrl)
	first.EXPECT().Descriptor().Return(links).AnyTimes()
	first.EXPECT().Validate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(vctx context.Context, _ string) (*models.ValidationResult, error) {
			cancel()
			assert.NoError(t, vctx.Err(), "a running validator is not interrupted")
			return passing(links), nil
		})
	second := NewMockValidator(ctrl)
	second.EXPECT().Descriptor().Return(seo).AnyTimes()
	second.EXPECT().Validate(gomock.Any(), gomock.Any()).Times(0)

	r, _ := newRunner(t, []Validator{first, second})
	out, err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, out)
	assert.Len(t, out.Master.Validators, 1)
	assert.Equal(t, StateExited, out.State)
}

func TestRun_ProgressEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	links, seo := Descriptors[0], Descriptors[4]
	r, _ := newRunner(t, []Validator{
		stub(ctrl, links, passing(links), nil),
		stub(ctrl, seo, failing(seo), nil),
	}, WithJUnit(true))

	var events []string
	r.OnProgress(func(e ProgressEvent) {
		label := string(e.EventType)
		switch {
		case e.Record != nil:
			label += ":" + e.Record.Key + "=" + string(e.Record.Status)
		case e.Validator.Key != "":
			label += fmt.Sprintf(":%s %d/%d", e.Validator.Key, e.Index, e.Total)
		case e.Artifact != nil:
			label += ":" + e.Artifact.Name
		}
		events = append(events, label)
	})

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"run_start",
		"validator_start:links 1/2",
		"validator_complete:links=passed",
		"validator_start:seo 2/2",
		"validator_complete:seo=validation_failed",
		"report_written:" + links.ReportFile,
		"report_written:" + seo.ReportFile,
		"report_written:" + report.MasterFile,
		"report_written:" + report.JUnitFile,
		"run_complete",
	}, events)
}

func TestRun_OptionalExports(t *testing.T) {
	ctrl := gomock.NewController(t)
	seo := Descriptors[4]
	r, dir := newRunner(t, []Validator{stub(ctrl, seo, passing(seo), nil)}, WithJUnit(true), WithMetrics(true))

	out, err := r.Run(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(out.Artifacts))
	for _, a := range out.Artifacts {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{seo.ReportFile, report.MasterFile, report.JUnitFile, report.MetricsFile}, names)
	assert.FileExists(t, filepath.Join(dir, report.MetricsFile))
	assert.FileExists(t, filepath.Join(dir, lock.FileName))
}

func TestRun_ReportDirLocked(t *testing.T) {
	ctrl := gomock.NewController(t)
	seo := Descriptors[4]
	v := NewMockValidator(ctrl)
	v.EXPECT().Descriptor().Return(seo).AnyTimes()
	v.EXPECT().Validate(gomock.Any(), gomock.Any()).Times(0)

	r, dir := newRunner(t, []Validator{v})
	held, err := lock.ForDir(dir)
	require.NoError(t, err)
	require.NoError(t, held.TryLock(context.Background()))
	defer held.Unlock()

	_, err = r.Run(context.Background())
	require.ErrorIs(t, err, ErrReportWrite)
	assert.ErrorIs(t, err, lock.ErrAlreadyLocked)
}

func TestRun_UnwritableReportDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	r := New(t.TempDir(), nil, report.NewWriter(filepath.Join(blocker, "reports")))
	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrReportWrite)
}

func TestVerdictError(t *testing.T) {
	err := error(&VerdictError{Verdict: models.VerdictCriticalIssue, Code: ExitCritical})
	assert.Equal(t, "validation finished with critical_issues (exit 1)", err.Error())
}

// --- End to end ---

// runSite runs the full registry against root with network and build
// invocation kept local.
func runSite(t *testing.T, root string, links ...linkcheck.Option) *Outcome {
	t.Helper()
	cfg := projectconfig.New()
	cfg.Links.Whitelist = nil
	dry := false
	cfg.Build.DryRun = &dry

	vs := Registry(cfg, RegistryOptions{Links: links, Build: []buildcheck.Option{}})
	r := New(root, vs, report.NewWriter(filepath.Join(t.TempDir(), "reports")))
	out, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, out.Master.Validators, 7, "every validator reports")
	return out
}

func record(out *Outcome, key string) models.OrchestrationRecord {
	for _, rec := range out.Master.Validators {
		if rec.Key == key {
			return rec
		}
	}
	return models.OrchestrationRecord{}
}

const accessiblePage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Caxton</title>
</head>
<body>
  <a class="skip-link" href="#main">Skip to content</a>
  <nav><a href="/">Home</a></nav>
  <main id="main">
    <h1>Caxton</h1>
    <h2>Install</h2>
    <img src="logo.png">
    <img src="divider.png" alt="" role="presentation">
    <label for="q">Search</label><input id="q" type="search">
  </main>
</body>
</html>`

func TestEndToEnd_MissingLangAndAlt(t *testing.T) {
	root := makeSite(t, map[string]string{
		"index.html":  accessiblePage,
		"logo.png":    "",
		"divider.png": "",
	})
	out := runSite(t, root)

	markup := out.Results["html-css"]
	require.NotNil(t, markup)
	require.Len(t, markup.Issues, 2)
	assert.Equal(t, []string{"missing-lang", "missing-alt-text"}, markup.Categories())
	assert.Equal(t, models.RunValidationFailed, record(out, "html-css").Status)
	assert.Equal(t, ExitCritical, out.Master.ExitCode)
}

func TestEndToEnd_EmptySite(t *testing.T) {
	out := runSite(t, t.TempDir())

	for _, rec := range out.Master.Validators {
		assert.Equal(t, models.RunPassed, rec.Status, rec.Key)
		assert.Zero(t, rec.Issues, rec.Key)
		assert.Empty(t, out.Results[rec.Key].Issues, rec.Key)
	}
	assert.Equal(t, ExitOK, out.Master.ExitCode)
	assert.Equal(t, models.VerdictAllClear, out.Master.Verdict)
}

func TestEndToEnd_InvalidJSONSample(t *testing.T) {
	root := makeSite(t, map[string]string{
		"guide.md": "# Guide\n\n```json\n{\"name\": \"caxton\",}\n```\n",
	})
	out := runSite(t, root)

	samples := out.Results["code-syntax"]
	require.NotNil(t, samples)
	var syntax []models.Issue
	for _, i := range samples.Issues {
		if i.Category == "syntax_error" {
			syntax = append(syntax, i)
		}
	}
	require.Len(t, syntax, 1)
	assert.Equal(t, "guide.md", syntax[0].File)

	rec := record(out, "code-syntax")
	assert.Equal(t, models.RunValidationFailed, rec.Status)
	assert.False(t, rec.Critical)
	for _, r := range out.Master.Validators {
		assert.False(t, r.CriticalFailure(), "%s: %v", r.Key, out.Results[r.Key])
	}
	assert.Equal(t, ExitWarnings, out.Master.ExitCode)
}

func TestEndToEnd_UnreachableHost(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	root := makeSite(t, map[string]string{
		"index.md": "# Home\n\n[slow](" + srv.URL + "/docs)\n",
	})
	start := time.Now()
	out := runSite(t, root, linkcheck.WithTimeout(100*time.Millisecond))
	assert.Less(t, time.Since(start), 10*time.Second)

	links := out.Results["links"]
	require.NotNil(t, links)
	var broken []models.Issue
	for _, i := range links.Issues {
		if i.Category == "broken-external-link" {
			broken = append(broken, i)
		}
	}
	require.Len(t, broken, 1)
	assert.True(t, strings.Contains(broken[0].Message, "timeout"), broken[0].Message)

	for _, rec := range out.Master.Validators {
		assert.NotEqual(t, models.RunError, rec.Status, rec.Key)
	}
	assert.Equal(t, ExitCritical, out.Master.ExitCode)
}
