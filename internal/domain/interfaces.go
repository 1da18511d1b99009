// Package domain defines the core business entities and interfaces for changegate.
// This package contains no external dependencies and represents the innermost layer
// of the CLEAN architecture.
package domain

import (
	"context"
	"time"
)

// PathChange is one file-level difference reported by a version-control backend,
// before any line analysis.
type PathChange struct {
	// Path is the head path, or the base path for deletions.
	Path string

	// OldPath is the base path when the file was renamed.
	OldPath string

	Kind ChangeKind
}

// RevisionDiffProvider abstracts a version-control backend.
// Implementations exist per backend; the line-range algorithm never sees backend types.
type RevisionDiffProvider interface {
	// ResolveRange resolves both refs to commits.
	// Returns ErrRevisionNotFound if either ref does not resolve.
	ResolveRange(ctx context.Context, baseRef, headRef string) (RevisionRange, error)

	// ChangedPaths lists files whose content or existence differs between the two
	// resolved revisions. Returns ErrDiffUnavailable if the history cannot produce a diff.
	ChangedPaths(ctx context.Context, rng RevisionRange) ([]PathChange, error)

	SnapshotReader
}

// SnapshotReader reads file content from a resolved revision.
type SnapshotReader interface {
	// ReadFile returns the content of path at the given commit hash.
	ReadFile(ctx context.Context, revision, path string) ([]byte, error)

	// ListFiles returns every file path at revision accepted by match, in lexical order.
	ListFiles(ctx context.Context, revision string, match func(path string) bool) ([]string, error)
}

// ManifestReader extracts classification signals from a project manifest.
// Returns ErrMalformedManifest when the content cannot be interpreted.
type ManifestReader interface {
	ReadSignals(manifestPath string, content []byte) (ManifestSignals, error)

	// IsManifest reports whether path names a project manifest.
	IsManifest(path string) bool
}

// ProjectClassifier decides whether a project is a test project.
// decided is false when the classifier has no opinion, letting the next variant decide.
type ProjectClassifier interface {
	Classify(manifestPath string, signals ManifestSignals) (kind ProjectKind, decided bool)
}

// SourceSpan is a declaration found by a source scanner.
type SourceSpan struct {
	Name string

	// Header spans attributes, modifiers and the declaration up to its opening brace.
	Header LineRange

	// Span covers the whole declaration including its body.
	Span LineRange

	// Attributes are the attribute names applied to the declaration, without the
	// Attribute suffix or namespace qualifier.
	Attributes []string
}

// TypeDecl is a type declaration with its members.
type TypeDecl struct {
	SourceSpan

	// Namespace is the enclosing namespace, empty for the global namespace.
	Namespace string

	// Members are the direct members of the type; nested types are listed separately.
	Members []SourceSpan

	// IsTestClass is set when the type or one of its members carries a test attribute.
	IsTestClass bool
}

// TestMethods returns the members carrying a test attribute.
func (t TypeDecl) TestMethods() []SourceSpan {
	var out []SourceSpan
	for _, m := range t.Members {
		if HasTestAttribute(m.Attributes) {
			out = append(out, m)
		}
	}
	return out
}

// TestClassFinder parses a source file into its type declarations.
type TestClassFinder interface {
	FindTypes(path string, content []byte) ([]TypeDecl, error)

	// IsSource reports whether the finder understands the file.
	IsSource(path string) bool
}

// CoverageParser adapts an external coverage report format into a CoverageReport.
// Returns ErrMalformedCoverageReport on parse failure.
type CoverageParser interface {
	Parse(content []byte) (CoverageReport, error)
}

// RunRecord summarizes one command invocation for the run ledger.
type RunRecord struct {
	RunID      string
	Command    string
	Range      RevisionRange
	Outcome    string
	Selected   int
	Fallbacks  int
	Violations int
	Targets    int
	Errors     int
	StartedAt  time.Time
	Duration   time.Duration
}

// RunRecorder persists run records. Recording never affects a gate outcome.
type RunRecorder interface {
	Record(ctx context.Context, rec RunRecord) error
	Close() error
}

// OutputWriter renders results to an output destination.
type OutputWriter interface {
	WriteSelection(sel *Selection) error
	WriteGateResult(res *GateResult) error
	WriteResolution(res *Resolution) error

	// WritePlan writes a selection and a resolution computed from one diff.
	WritePlan(sel *Selection, res *Resolution) error
}
