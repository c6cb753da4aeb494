package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/caxton-dev/sitecheck/internal/orchestrator"
)

func main() {
	if err := execute(); err != nil {
		// The summary already explains a verdict; only its code is left to report.
		var verdict *orchestrator.VerdictError
		if errors.As(err, &verdict) {
			os.Exit(verdict.Code)
		}

		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(orchestrator.ExitFatal)
	}
}
