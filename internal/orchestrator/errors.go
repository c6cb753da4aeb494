package orchestrator

import (
	"errors"
	"fmt"

	"github.com/caxton-dev/sitecheck/internal/models"
)

// ErrReportWrite marks a failure to persist reports. It aborts the run.
var ErrReportWrite = errors.New("writing reports")

// VerdictError carries a non-zero verdict out to the process exit code.
type VerdictError struct {
	Verdict models.Verdict
	Code    int
}

func (e *VerdictError) Error() string {
	return fmt.Sprintf("validation finished with %s (exit %d)", e.Verdict, e.Code)
}
