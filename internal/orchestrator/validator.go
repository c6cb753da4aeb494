package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/caxton-dev/sitecheck/internal/buildcheck"
	"github.com/caxton-dev/sitecheck/internal/codesample"
	"github.com/caxton-dev/sitecheck/internal/layout"
	"github.com/caxton-dev/sitecheck/internal/linkcheck"
	"github.com/caxton-dev/sitecheck/internal/markup"
	"github.com/caxton-dev/sitecheck/internal/models"
	"github.com/caxton-dev/sitecheck/internal/projectconfig"
	"github.com/caxton-dev/sitecheck/internal/script"
	"github.com/caxton-dev/sitecheck/internal/seo"
)

//go:generate go tool mockgen -destination validator_mock_test.go -package orchestrator . Validator

// Validator is one independent check over a site tree.
//
// Validate returns a result for a completed scan, whether or not it found
// issues. A non-nil error means the validator could not complete.
type Validator interface {
	Descriptor() models.ValidatorDescriptor
	Validate(ctx context.Context, root string) (*models.ValidationResult, error)
}

// Descriptors lists the registry in run order.
var Descriptors = []models.ValidatorDescriptor{
	linkcheck.Descriptor,
	markup.Descriptor,
	script.Descriptor,
	codesample.Descriptor,
	seo.Descriptor,
	buildcheck.Descriptor,
	layout.Descriptor,
}

// RegistryOptions carries per-validator options the CLI may set.
type RegistryOptions struct {
	Links []linkcheck.Option
	Build []buildcheck.Option
}

// Registry builds every validator in run order.
func Registry(cfg *projectconfig.ProjectConfig, opts RegistryOptions) []Validator {
	return []Validator{
		linkcheck.New(cfg, opts.Links...),
		markup.New(cfg),
		script.New(cfg),
		codesample.New(cfg),
		seo.New(cfg),
		buildcheck.New(cfg, opts.Build...),
		layout.New(cfg),
	}
}

// UnknownKeyError is returned by Select for a key not in the registry.
type UnknownKeyError struct {
	Key   string
	Known []string
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("unknown validator %q (known: %s)", e.Key, strings.Join(e.Known, ", "))
}

// Select filters validators by key. A non-empty only keeps just those keys;
// skip then removes keys. Registry order is kept.
func Select(validators []Validator, only, skip []string) ([]Validator, error) {
	known := make([]string, 0, len(validators))
	for _, v := range validators {
		known = append(known, v.Descriptor().Key)
	}
	for _, k := range append(slices.Clone(only), skip...) {
		if !slices.Contains(known, k) {
			return nil, &UnknownKeyError{Key: k, Known: known}
		}
	}

	var out []Validator
	for _, v := range validators {
		key := v.Descriptor().Key
		if len(only) > 0 && !slices.Contains(only, key) {
			continue
		}
		if slices.Contains(skip, key) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
