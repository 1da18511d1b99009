// Package usecases contains the application business logic.
// This package orchestrates domain entities and interfaces to fulfill use cases.
package usecases

import (
	"context"
	"fmt"
	"sort"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

// Logger defines the logging interface required by the use cases.
// This abstracts the logger dependency to avoid coupling to a specific implementation.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// PathClassifier assigns a role to a changed path.
type PathClassifier func(path string) domain.FileRole

// DiffAnalyzer turns a backend's path-level changes into classified, line-level
// ChangedFiles. It is deterministic for a pair of immutable revisions.
type DiffAnalyzer struct {
	provider domain.RevisionDiffProvider
	logger   Logger
}

// NewDiffAnalyzer creates a DiffAnalyzer over the given backend.
func NewDiffAnalyzer(provider domain.RevisionDiffProvider, log Logger) *DiffAnalyzer {
	return &DiffAnalyzer{
		provider: provider,
		logger:   log,
	}
}

// ResolveRange resolves the caller's refs. Errors propagate unchanged so callers can
// match domain.ErrRevisionNotFound.
func (a *DiffAnalyzer) ResolveRange(ctx context.Context, baseRef, headRef string) (domain.RevisionRange, error) {
	rng, err := a.provider.ResolveRange(ctx, baseRef, headRef)
	if err != nil {
		return domain.RevisionRange{}, err
	}

	a.logger.Info(ctx, "resolved revision range", map[string]interface{}{
		"base_ref":  baseRef,
		"head_ref":  headRef,
		"base_hash": rng.BaseHash,
		"head_hash": rng.HeadHash,
	})
	return rng, nil
}

// ComputeDiff lists every changed file in path order with its changed head line ranges
// and the role assigned by classify. No partial result is returned on error.
func (a *DiffAnalyzer) ComputeDiff(
	ctx context.Context,
	rng domain.RevisionRange,
	classify PathClassifier,
) ([]domain.ChangedFile, error) {
	changes, err := a.provider.ChangedPaths(ctx, rng)
	if err != nil {
		return nil, err
	}

	files := make([]domain.ChangedFile, 0, len(changes))
	for _, change := range changes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		file, err := a.analyze(ctx, rng, change)
		if err != nil {
			return nil, err
		}
		file.Role = domain.RoleOther
		if classify != nil {
			file.Role = classify(file.Path)
		}
		files = append(files, file)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})

	a.logger.Info(ctx, "computed diff", map[string]interface{}{
		"range":         rng.String(),
		"changed_files": len(files),
	})

	return files, nil
}

func (a *DiffAnalyzer) analyze(
	ctx context.Context,
	rng domain.RevisionRange,
	change domain.PathChange,
) (domain.ChangedFile, error) {
	file := domain.ChangedFile{
		Path:    change.Path,
		OldPath: change.OldPath,
		Kind:    change.Kind,
	}

	switch change.Kind {
	case domain.ChangeDeleted:
		return file, nil

	case domain.ChangeAdded:
		head, err := a.provider.ReadFile(ctx, rng.HeadHash, change.Path)
		if err != nil {
			return file, fmt.Errorf("%w: reading %s at head: %w", domain.ErrDiffUnavailable, change.Path, err)
		}
		if isBinary(head) {
			file.Opaque = true
			return file, nil
		}
		file.Ranges = WholeFile(string(head))
		return file, nil

	case domain.ChangeModified, domain.ChangeRenamed:
		basePath := change.Path
		if change.OldPath != "" {
			basePath = change.OldPath
		}
		base, err := a.provider.ReadFile(ctx, rng.BaseHash, basePath)
		if err != nil {
			return file, fmt.Errorf("%w: reading %s at base: %w", domain.ErrDiffUnavailable, basePath, err)
		}
		head, err := a.provider.ReadFile(ctx, rng.HeadHash, change.Path)
		if err != nil {
			return file, fmt.Errorf("%w: reading %s at head: %w", domain.ErrDiffUnavailable, change.Path, err)
		}
		if isBinary(base) || isBinary(head) {
			file.Opaque = true
			return file, nil
		}
		file.Ranges = LineRanges(string(base), string(head))
		return file, nil
	}

	return file, fmt.Errorf("%w: unknown change kind %q for %s", domain.ErrDiffUnavailable, change.Kind, change.Path)
}
