package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/caxton-dev/sitecheck/internal/baseline"
	"github.com/caxton-dev/sitecheck/internal/linkcheck"
	"github.com/caxton-dev/sitecheck/internal/logging"
	"github.com/caxton-dev/sitecheck/internal/orchestrator"
	"github.com/caxton-dev/sitecheck/internal/projectconfig"
	"github.com/caxton-dev/sitecheck/internal/report"
	"github.com/caxton-dev/sitecheck/internal/spinner"
)

var version = "dev"

// Output formats for --format.
const (
	formatText = "text"
	formatJSON = "json"
)

type options struct {
	root       string
	configPath string
	reportsDir string
	format     string
	only       []string
	skip       []string
	debug      bool
	parallel   bool
	list       bool
	junit      bool
	metrics    bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "sitecheck [site-root]",
		Short: "sitecheck - pre-deployment validation for static sites",
		Long: `sitecheck validates a generated static site before it is deployed.

It runs seven independent validators (links, HTML/CSS, JavaScript, code samples,
SEO, build readiness, and responsive design) over the site tree, writes a JSON
report per validator plus a master report, and exits with:

  0  every validator passed
  1  a critical validator failed or could not complete
  2  only non-critical validators reported issues`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		// Flags meant for other tools in the same pipeline are ignored.
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.root = args[0]
			}
			return runE(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.root, "root", ".", "Site root to validate")
	f.StringVar(&opts.configPath, "config", "", "Path to .sitecheck.yaml (default: search upward from the site root)")
	f.StringVar(&opts.reportsDir, "reports-dir", "", "Report output directory (default: .sitecheck/reports under the site root)")
	f.StringVar(&opts.format, "format", formatText, "Output format: text, json")
	f.StringSliceVar(&opts.only, "only", nil, "Run only these validators (comma-separated keys, can be repeated)")
	f.StringSliceVar(&opts.skip, "skip", nil, "Skip these validators (comma-separated keys, can be repeated)")
	f.BoolVar(&opts.parallel, "parallel", false, "Run validators concurrently")
	f.BoolVar(&opts.list, "list", false, "List the available validators and exit")
	f.BoolVar(&opts.junit, "junit", false, "Also write a JUnit XML report")
	f.BoolVar(&opts.metrics, "metrics", false, "Also write a Prometheus textfile with run metrics")
	f.BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	return cmd
}

func execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCommand().ExecuteContext(ctx)
}

func runE(cmd *cobra.Command, opts *options) error {
	if opts.format != formatText && opts.format != formatJSON {
		return fmt.Errorf("unknown format %q (want %s or %s)", opts.format, formatText, formatJSON)
	}

	logger, err := logging.New(opts.debug)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	logging.Init(logger)
	defer logging.Sync()
	log := logging.For(logging.ComponentCLI)

	out := cmd.OutOrStdout()
	if opts.list {
		printRegistry(out, orchestrator.Descriptors)
		return nil
	}

	root, err := filepath.Abs(opts.root)
	if err != nil {
		return fmt.Errorf("resolving site root: %w", err)
	}
	if info, err := os.Stat(root); err != nil {
		return fmt.Errorf("site root: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("site root %s is not a directory", root)
	}

	cfg, err := loadConfig(root, opts.configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg, opts)
	if cfg.Path != "" {
		log.Debugw("configuration loaded", "file", cfg.Path)
	}

	reportsDir := cfg.Reports.Dir
	if !filepath.IsAbs(reportsDir) {
		reportsDir = filepath.Join(root, reportsDir)
	}

	live := &liveProgress{w: cmd.ErrOrStderr()}
	live.enabled = opts.format == formatText && !opts.parallel && spinner.IsTerminal(live.w)

	registry := orchestrator.Registry(cfg, orchestrator.RegistryOptions{
		Links: []linkcheck.Option{linkcheck.WithProgress(live.probes)},
	})
	selected, err := orchestrator.Select(registry, opts.only, opts.skip)
	if err != nil {
		return err
	}

	runner := orchestrator.New(root, selected, report.NewWriter(reportsDir),
		orchestrator.WithParallel(opts.parallel),
		orchestrator.WithJUnit(projectconfig.Enabled(cfg.Reports.JUnit)),
		orchestrator.WithMetrics(projectconfig.Enabled(cfg.Reports.Metrics)),
	)
	d := newDisplay(out)
	if opts.format == formatText {
		d.header(root, len(selected))
		runner.OnProgress(func(e orchestrator.ProgressEvent) { live.handle(d, e) })
	}

	previous, err := baseline.Load(reportsDir, orchestrator.Descriptors)
	if err != nil {
		log.Warnw("previous reports ignored", "error", err)
	}

	outcome, runErr := runner.Run(cmd.Context())
	live.stop()
	if outcome == nil {
		return runErr
	}

	if opts.format == formatJSON {
		data, err := json.MarshalIndent(outcome.Master, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding master report: %w", err)
		}
		fmt.Fprintln(out, string(data)) //nolint:errcheck
	} else {
		d.summary(outcome)
		if len(previous) > 0 {
			d.changes(baseline.Compare(orchestrator.Descriptors, previous, outcome.Results))
		}
	}

	if runErr != nil {
		return runErr
	}
	return outcome.Err()
}

func loadConfig(root, explicit string) (*projectconfig.ProjectConfig, error) {
	if explicit != "" {
		return projectconfig.LoadFile(explicit)
	}
	return projectconfig.Load(root)
}

// applyFlags lets explicitly set flags win over the configuration file.
func applyFlags(cmd *cobra.Command, cfg *projectconfig.ProjectConfig, opts *options) {
	flags := cmd.Flags()
	if opts.reportsDir != "" {
		cfg.Reports.Dir = opts.reportsDir
	}
	if flags.Changed("junit") {
		cfg.Reports.JUnit = &opts.junit
	}
	if flags.Changed("metrics") {
		cfg.Reports.Metrics = &opts.metrics
	}
}

// liveProgress keeps a spinner on the terminal while each validator runs
// and prints its status line once it finishes.
type liveProgress struct {
	w       io.Writer
	enabled bool

	mu      sync.Mutex
	current *spinner.Spinner
	label   string
}

func (l *liveProgress) handle(d *display, e orchestrator.ProgressEvent) {
	switch e.EventType {
	case orchestrator.EventValidatorStart:
		if !l.enabled {
			return
		}
		l.mu.Lock()
		l.label = fmt.Sprintf("[%d/%d] %s", e.Index, e.Total, e.Validator.Name)
		l.current = spinner.Start(l.w, l.label)
		l.mu.Unlock()
	case orchestrator.EventValidatorComplete:
		l.stop()
		d.validatorLine(*e.Record)
	}
}

// probes is the link validator's progress callback.
func (l *liveProgress) probes(done, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != nil {
		l.current.Update(fmt.Sprintf("%s: probing external links %d/%d", l.label, done, total))
	}
}

func (l *liveProgress) stop() {
	l.mu.Lock()
	s := l.current
	l.current = nil
	l.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}
