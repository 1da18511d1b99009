package domain

import (
	"errors"
	"fmt"
)

// Domain errors. Fatal kinds abort a run; accumulated kinds are collected and reported together.
var (
	// ErrRepositoryNotFound indicates the specified path is not a valid Git repository.
	ErrRepositoryNotFound = errors.New("git repository not found at specified path")

	// ErrRevisionNotFound indicates a base or head ref does not resolve to a commit.
	ErrRevisionNotFound = errors.New("revision not found")

	// ErrDiffUnavailable indicates the repository cannot produce a diff, e.g. shallow history.
	ErrDiffUnavailable = errors.New("diff unavailable")

	// ErrMalformedManifest indicates a project manifest could not be read for classification.
	ErrMalformedManifest = errors.New("malformed project manifest")

	// ErrMalformedMap indicates the deployment map violates its schema.
	ErrMalformedMap = errors.New("malformed deployment map")

	// ErrMalformedCoverageReport indicates the coverage report could not be parsed.
	ErrMalformedCoverageReport = errors.New("malformed coverage report")

	// ErrUnmappedProject indicates a changed production project has no deployment map entry.
	ErrUnmappedProject = errors.New("unmapped project")

	// ErrTypeMismatch indicates a map entry's type disagrees with the project's SDK.
	ErrTypeMismatch = errors.New("deployment type mismatch")

	// ErrCoverageViolation indicates changed production lines are not covered.
	ErrCoverageViolation = errors.New("coverage violation")
)

// UnmappedProjectError is recorded for a changed project absent from the deployment map.
type UnmappedProjectError struct {
	ProjectPath string
}

func (e *UnmappedProjectError) Error() string {
	return fmt.Sprintf("%s: %s has no deployment map entry", ErrUnmappedProject, e.ProjectPath)
}

// Is matches ErrUnmappedProject.
func (e *UnmappedProjectError) Is(target error) bool {
	return target == ErrUnmappedProject
}

// TypeMismatchError is recorded when a map entry declares a type the project's SDK does not produce.
type TypeMismatchError struct {
	ProjectPath string
	SDK         SDKKind
	Declared    DeploymentType
	Expected    DeploymentType
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: %s declares %s but SDK %s implies %s",
		ErrTypeMismatch, e.ProjectPath, e.Declared, e.SDK, e.Expected)
}

// Is matches ErrTypeMismatch.
func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// CoverageViolationError wraps a failed gate result.
type CoverageViolationError struct {
	Violations []Violation
}

func (e *CoverageViolationError) Error() string {
	return fmt.Sprintf("%s: %d changed line(s) not covered", ErrCoverageViolation, len(e.Violations))
}

// Is matches ErrCoverageViolation.
func (e *CoverageViolationError) Is(target error) bool {
	return target == ErrCoverageViolation
}
