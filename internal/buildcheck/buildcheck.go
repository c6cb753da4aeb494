// Package buildcheck checks that a site is ready to build and deploy: the
// generator configuration, the deployment workflow, dependency manifests, a
// dry-run build, and static asset sizes.
package buildcheck

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"

	"github.com/caxton-dev/sitecheck/internal/logging"
	"github.com/caxton-dev/sitecheck/internal/models"
	"github.com/caxton-dev/sitecheck/internal/projectconfig"
)

// Descriptor registers the build-readiness validator.
var Descriptor = models.ValidatorDescriptor{
	Name:        "Build Validation",
	Key:         "build",
	Criticality: models.Critical,
	Description: "Generator config, deployment workflow, dependencies, dry-run build, and assets",
	ReportFile:  "build-validation-report.json",
}

// Validator is the build-readiness validator.
type Validator struct {
	cfg    *projectconfig.ProjectConfig
	runner Runner
	log    *zap.SugaredLogger
}

// Option configures a Validator.
type Option func(*Validator)

// WithRunner replaces the command runner used for the dry-run build.
func WithRunner(r Runner) Option {
	return func(v *Validator) { v.runner = r }
}

// New returns a build-readiness validator. A nil cfg means defaults.
func New(cfg *projectconfig.ProjectConfig, opts ...Option) *Validator {
	if cfg == nil {
		cfg = projectconfig.New()
	}
	v := &Validator{cfg: cfg, runner: ExecRunner{}, log: logging.For("build")}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Descriptor implements the orchestrator's validator contract.
func (v *Validator) Descriptor() models.ValidatorDescriptor { return Descriptor }

// Validate runs every readiness check against root.
func (v *Validator) Validate(ctx context.Context, root string) (*models.ValidationResult, error) {
	res := models.NewResult(Descriptor)

	name := findGeneratorConfig(root, v.cfg.Build.ConfigFiles)
	if name != "" {
		res.Inc("config_files", 1)
		gc, err := LoadGeneratorConfig(filepath.Join(root, name))
		if err != nil {
			res.Add(models.Issue{Severity: models.SeverityError, Category: "invalid-config", File: name, Message: err.Error()})
		} else {
			gc.File = name
			v.checkGeneratorConfig(res, gc)
		}
	} else {
		v.log.Debugw("no generator configuration found", "candidates", v.cfg.Build.ConfigFiles)
	}

	if err := v.checkWorkflows(res, root); err != nil {
		return nil, err
	}
	if err := v.checkManifests(res, root, name != ""); err != nil {
		return nil, err
	}
	if name != "" && projectconfig.Enabled(v.cfg.Build.DryRun) {
		v.dryRun(ctx, res, root, name)
	}
	if err := v.checkAssets(res, root); err != nil {
		return nil, err
	}

	v.log.Infow("build validation finished", "issues", len(res.Issues))
	return res.Finalize(), nil
}

var (
	deprecationLine = regexp2.MustCompile(`(?im)^.*deprecat.*$`, regexp2.None)
	warningLine     = regexp2.MustCompile(`(?im)^(?!.*deprecat).*\bwarn(?:ing)?\b.*$`, regexp2.None)
)

// dryRun invokes the generator. A missing executable skips the check; a
// failing build is an error.
func (v *Validator) dryRun(ctx context.Context, res *models.ValidationResult, root, configFile string) {
	if len(v.cfg.Build.Command) == 0 {
		return
	}
	cmd := Command{Dir: root, Name: v.cfg.Build.Command[0], Args: slices.Clone(v.cfg.Build.Command[1:])}
	if slices.Contains(cmd.Args, "jekyll") || cmd.Name == "jekyll" {
		dest, err := os.MkdirTemp("", "sitecheck-build-")
		if err == nil {
			defer os.RemoveAll(dest)
			cmd.Args = append(cmd.Args, "--destination", dest)
		}
	}

	v.log.Infow("running dry-run build", "command", cmd.String())
	out, err := v.runner.Run(ctx, cmd)
	switch {
	case errors.Is(err, ErrNotInstalled):
		res.Inc("build_skipped", 1)
		res.Add(models.Issue{Severity: models.SeverityInfo, Category: "build-skipped", File: configFile,
			Snippet: cmd.Name, Message: fmt.Sprintf("dry-run build skipped: %s is not installed", cmd.Name)})
		return
	case err != nil:
		res.Add(models.Issue{Severity: models.SeverityError, Category: "build-failed", File: configFile,
			Snippet: lastLine(out), Message: fmt.Sprintf("dry-run build failed: %v", err)})
	default:
		res.Inc("build_succeeded", 1)
	}

	text := string(out)
	for _, p := range []struct {
		re       *regexp2.Regexp
		category string
	}{{deprecationLine, "build-deprecation"}, {warningLine, "build-warning"}} {
		m, _ := p.re.FindStringMatch(text)
		for m != nil {
			line := strings.TrimSpace(m.String())
			res.Add(models.Issue{Severity: models.SeverityWarning, Category: p.category, File: configFile,
				Snippet: line, Message: "build output: " + line})
			m, _ = p.re.FindNextMatch(m)
		}
	}
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
