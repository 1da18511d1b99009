package cmd

import (
	"errors"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

// Process exit codes, one per failure category.
const (
	ExitOK                      = 0
	ExitInternal                = 1
	ExitNoDiff                  = 2
	ExitUnmappedProject         = 3
	ExitCoverageViolation       = 4
	ExitMalformedMap            = 5
	ExitMalformedManifest       = 6
	ExitMalformedCoverageReport = 7
)

// Run outcomes recorded in the ledger.
const (
	OutcomeOK                      = "ok"
	OutcomeInternal                = "internal-error"
	OutcomeNoDiff                  = "no-diff-available"
	OutcomeUnmappedProject         = "unmapped-project"
	OutcomeCoverageViolation       = "coverage-violation"
	OutcomeMalformedMap            = "malformed-map"
	OutcomeMalformedManifest       = "malformed-manifest"
	OutcomeMalformedCoverageReport = "malformed-coverage-report"
)

// ExitCode maps an error to its exit code. Input errors are checked before
// accumulated deployment errors, so a run that could not load its inputs never
// reports a gate failure.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, domain.ErrRepositoryNotFound),
		errors.Is(err, domain.ErrRevisionNotFound),
		errors.Is(err, domain.ErrDiffUnavailable):
		return ExitNoDiff
	case errors.Is(err, domain.ErrMalformedMap):
		return ExitMalformedMap
	case errors.Is(err, domain.ErrMalformedManifest):
		return ExitMalformedManifest
	case errors.Is(err, domain.ErrMalformedCoverageReport):
		return ExitMalformedCoverageReport
	case errors.Is(err, domain.ErrUnmappedProject), errors.Is(err, domain.ErrTypeMismatch):
		return ExitUnmappedProject
	case errors.Is(err, domain.ErrCoverageViolation):
		return ExitCoverageViolation
	default:
		return ExitInternal
	}
}

// Outcome names the category of err for the run ledger.
func Outcome(err error) string {
	switch ExitCode(err) {
	case ExitOK:
		return OutcomeOK
	case ExitNoDiff:
		return OutcomeNoDiff
	case ExitUnmappedProject:
		return OutcomeUnmappedProject
	case ExitCoverageViolation:
		return OutcomeCoverageViolation
	case ExitMalformedMap:
		return OutcomeMalformedMap
	case ExitMalformedManifest:
		return OutcomeMalformedManifest
	case ExitMalformedCoverageReport:
		return OutcomeMalformedCoverageReport
	default:
		return OutcomeInternal
	}
}
