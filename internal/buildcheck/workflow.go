package buildcheck

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/caxton-dev/sitecheck/internal/models"
	"github.com/caxton-dev/sitecheck/internal/validation"
)

type workflowStep struct {
	Name string `yaml:"name"`
	Uses string `yaml:"uses"`
	Run  string `yaml:"run"`
}

type workflowJob struct {
	Permissions yaml.Node      `yaml:"permissions"`
	Steps       []workflowStep `yaml:"steps"`
}

type workflowFile struct {
	Name        string                 `yaml:"name"`
	Permissions yaml.Node              `yaml:"permissions"`
	Jobs        map[string]workflowJob `yaml:"jobs"`
}

// access levels, ordered.
const (
	accessNone = iota
	accessRead
	accessWrite
)

// permissions resolves a workflow or job permissions block. A nil map means
// the block is absent.
func permissions(n yaml.Node) map[string]int {
	switch n.Kind {
	case yaml.ScalarNode:
		all := accessNone
		switch n.Value {
		case "write-all":
			all = accessWrite
		case "read-all":
			all = accessRead
		}
		return map[string]int{"*": all}
	case yaml.MappingNode:
		out := map[string]int{}
		for i := 0; i+1 < len(n.Content); i += 2 {
			switch n.Content[i+1].Value {
			case "write":
				out[n.Content[i].Value] = accessWrite
			case "read":
				out[n.Content[i].Value] = accessRead
			default:
				out[n.Content[i].Value] = accessNone
			}
		}
		return out
	}
	return nil
}

func granted(perms map[string]int, scope string) int {
	if v, ok := perms[scope]; ok {
		return v
	}
	return perms["*"]
}

// requirement is one step or permission a deployment workflow needs.
type requirement struct {
	name     string
	severity models.Severity
	met      func(w *workflowFile) bool
}

func usesAction(prefix string) func(w *workflowFile) bool {
	return func(w *workflowFile) bool {
		for _, j := range w.Jobs {
			for _, s := range j.Steps {
				if strings.HasPrefix(s.Uses, prefix) {
					return true
				}
			}
		}
		return false
	}
}

func runsBuild(generator string) func(w *workflowFile) bool {
	return func(w *workflowFile) bool {
		for _, j := range w.Jobs {
			for _, s := range j.Steps {
				if strings.HasPrefix(s.Uses, "actions/jekyll-build-pages") ||
					strings.Contains(s.Uses, generator) || strings.Contains(s.Run, generator) {
					return true
				}
			}
		}
		return false
	}
}

func grants(scope string, level int) func(w *workflowFile) bool {
	return func(w *workflowFile) bool {
		top := permissions(w.Permissions)
		for _, j := range w.Jobs {
			perms := permissions(j.Permissions)
			if perms == nil {
				perms = top
			}
			if granted(perms, scope) >= level {
				return true
			}
		}
		return false
	}
}

// deployActions mark a workflow as the site's deployment workflow.
var deployActions = []string{
	"actions/deploy-pages",
	"actions/upload-pages-artifact",
	"actions/jekyll-build-pages",
	"peaceiris/actions-gh-pages",
}

func isDeployWorkflow(w *workflowFile) bool {
	for _, a := range deployActions {
		if usesAction(a)(w) {
			return true
		}
	}
	return false
}

func (v *Validator) deployRequirements(w *workflowFile) []requirement {
	reqs := []requirement{
		{"actions/checkout step", models.SeverityError, usesAction("actions/checkout")},
		{"site build step", models.SeverityWarning, runsBuild(v.cfg.Build.Generator)},
	}
	if usesAction("peaceiris/actions-gh-pages")(w) {
		return append(reqs, requirement{"contents: write permission", models.SeverityError, grants("contents", accessWrite)})
	}
	return append(reqs,
		requirement{"actions/upload-pages-artifact step", models.SeverityError, usesAction("actions/upload-pages-artifact")},
		requirement{"actions/deploy-pages step", models.SeverityError, usesAction("actions/deploy-pages")},
		requirement{"pages: write permission", models.SeverityError, grants("pages", accessWrite)},
		requirement{"id-token: write permission", models.SeverityError, grants("id-token", accessWrite)},
		requirement{"contents: read permission", models.SeverityWarning, grants("contents", accessRead)},
	)
}

// checkWorkflows validates every workflow file under the configured workflow
// directory. A missing directory is not an issue.
func (v *Validator) checkWorkflows(res *models.ValidationResult, root string) error {
	dir := filepath.Join(root, filepath.FromSlash(v.cfg.Build.WorkflowDir))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading workflow directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yml" || ext == ".yaml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	res.Inc("workflows", len(names))

	deploy := 0
	for _, name := range names {
		rel := filepath.ToSlash(filepath.Join(v.cfg.Build.WorkflowDir, name))
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}

		problems, err := validation.ValidateWorkflowBytes(data)
		if err != nil {
			res.Add(models.Issue{Severity: models.SeverityError, Category: "invalid-workflow", File: rel, Message: err.Error()})
			continue
		}
		for _, p := range problems {
			res.Add(models.Issue{Severity: models.SeverityError, Category: "invalid-workflow", File: rel, Message: p})
		}

		var w workflowFile
		if err := yaml.Unmarshal(data, &w); err != nil {
			res.Add(models.Issue{Severity: models.SeverityError, Category: "invalid-workflow", File: rel, Message: err.Error()})
			continue
		}
		if !isDeployWorkflow(&w) {
			continue
		}
		deploy++
		for _, r := range v.deployRequirements(&w) {
			if r.met(&w) {
				continue
			}
			category := "missing-workflow-step"
			if strings.HasSuffix(r.name, "permission") {
				category = "missing-workflow-permission"
			}
			res.Add(models.Issue{Severity: r.severity, Category: category, File: rel,
				Snippet: r.name, Message: fmt.Sprintf("deployment workflow is missing the %s", r.name)})
		}
	}

	if len(names) > 0 && deploy == 0 {
		res.Addf(models.SeverityWarning, "missing-deploy-workflow", filepath.ToSlash(v.cfg.Build.WorkflowDir), 0,
			"no workflow deploys the site")
	}
	return nil
}
