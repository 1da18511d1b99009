// Package git provides adapters for interacting with local Git repositories.
// This package implements the domain.RevisionDiffProvider interface using go-git/v5.
package git

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

// Logger defines the logging interface for the git adapter.
// This interface enables dependency injection and testability.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
}

// GoGitRepository implements domain.RevisionDiffProvider using go-git/v5.
// Access to the underlying repository is serialized, so one instance can serve
// concurrent readers.
type GoGitRepository struct {
	repo   *git.Repository
	path   string
	logger Logger

	mu    sync.Mutex
	trees map[string]*object.Tree
	blobs map[blobKey][]byte
}

type blobKey struct {
	revision string
	path     string
}

// NewGoGitRepository creates a new GoGitRepository for the given path.
// The path can be a working directory, any directory below it, or a bare repository.
// Returns domain.ErrRepositoryNotFound if the path is not inside a Git repository.
func NewGoGitRepository(path string, log Logger) (*GoGitRepository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRepositoryNotFound, path)
	}

	return &GoGitRepository{
		repo:   repo,
		path:   path,
		logger: log,
		trees:  make(map[string]*object.Tree),
		blobs:  make(map[blobKey][]byte),
	}, nil
}

// ResolveRange resolves both refs to commit hashes.
// Returns domain.ErrRevisionNotFound if either ref does not resolve.
func (r *GoGitRepository) ResolveRange(ctx context.Context, baseRef, headRef string) (domain.RevisionRange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	base, err := r.resolve(baseRef)
	if err != nil {
		return domain.RevisionRange{}, err
	}
	head, err := r.resolve(headRef)
	if err != nil {
		return domain.RevisionRange{}, err
	}

	rng := domain.RevisionRange{
		BaseRef:  baseRef,
		HeadRef:  headRef,
		BaseHash: base.String(),
		HeadHash: head.String(),
	}

	r.logger.Debug(ctx, "resolved revisions", map[string]interface{}{
		"base": rng.BaseHash,
		"head": rng.HeadHash,
		"path": r.path,
	})
	return rng, nil
}

func (r *GoGitRepository) resolve(ref string) (plumbing.Hash, error) {
	if ref == "" {
		return plumbing.ZeroHash, fmt.Errorf("%w: empty ref", domain.ErrRevisionNotFound)
	}
	hash, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		if r.isShallow() {
			return plumbing.ZeroHash, fmt.Errorf("%w: %s does not resolve in a shallow clone: %w", domain.ErrDiffUnavailable, ref, err)
		}
		return plumbing.ZeroHash, fmt.Errorf("%w: %s: %w", domain.ErrRevisionNotFound, ref, err)
	}
	// A ref may name a tag or tree; only commits define a snapshot pair.
	if _, err := r.repo.CommitObject(*hash); err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return plumbing.ZeroHash, fmt.Errorf("%w: commit %s for %s is not in local history", domain.ErrDiffUnavailable, hash, ref)
		}
		return plumbing.ZeroHash, fmt.Errorf("%w: %s is not a commit: %w", domain.ErrRevisionNotFound, ref, err)
	}
	return *hash, nil
}

// ChangedPaths lists the files that differ between the two commits, detecting renames.
// Returns domain.ErrDiffUnavailable when objects are missing from local history.
func (r *GoGitRepository) ChangedPaths(ctx context.Context, rng domain.RevisionRange) ([]domain.PathChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	baseTree, err := r.tree(rng.BaseHash)
	if err != nil {
		return nil, err
	}
	headTree, err := r.tree(rng.HeadHash)
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTreeWithOptions(ctx, baseTree, headTree, object.DefaultDiffTreeOptions)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrDiffUnavailable, err)
	}

	out := make([]domain.PathChange, 0, len(changes))
	for _, c := range changes {
		action, err := c.Action()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrDiffUnavailable, err)
		}

		switch action {
		case merkletrie.Insert:
			out = append(out, domain.PathChange{Path: c.To.Name, Kind: domain.ChangeAdded})
		case merkletrie.Delete:
			out = append(out, domain.PathChange{Path: c.From.Name, Kind: domain.ChangeDeleted})
		case merkletrie.Modify:
			if c.From.Name != c.To.Name {
				out = append(out, domain.PathChange{Path: c.To.Name, OldPath: c.From.Name, Kind: domain.ChangeRenamed})
			} else {
				out = append(out, domain.PathChange{Path: c.To.Name, Kind: domain.ChangeModified})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })

	r.logger.Debug(ctx, "listed changed paths", map[string]interface{}{
		"base":    rng.BaseHash,
		"head":    rng.HeadHash,
		"changes": len(out),
	})
	return out, nil
}

// ReadFile returns the content of path at revision.
func (r *GoGitRepository) ReadFile(_ context.Context, revision, path string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := blobKey{revision: revision, path: path}
	if content, ok := r.blobs[key]; ok {
		return content, nil
	}

	tree, err := r.tree(revision)
	if err != nil {
		return nil, err
	}
	file, err := tree.File(path)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s at %s: %w", path, revision, err)
	}
	contents, err := file.Contents()
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: blob for %s at %s: %w", domain.ErrDiffUnavailable, path, revision, err)
		}
		return nil, fmt.Errorf("failed to read %s at %s: %w", path, revision, err)
	}

	content := []byte(contents)
	r.blobs[key] = content
	return content, nil
}

// ListFiles returns every file at revision accepted by match, in lexical order.
func (r *GoGitRepository) ListFiles(ctx context.Context, revision string, match func(path string) bool) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tree, err := r.tree(revision)
	if err != nil {
		return nil, err
	}

	var paths []string
	err = tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if match == nil || match(f.Name) {
			paths = append(paths, f.Name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk tree at %s: %w", revision, err)
	}

	sort.Strings(paths)
	return paths, nil
}

// Close releases any resources held by the repository.
// For go-git, this drops the object caches; the repository holds no persistent handles.
func (r *GoGitRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trees = make(map[string]*object.Tree)
	r.blobs = make(map[blobKey][]byte)
	return nil
}

func (r *GoGitRepository) isShallow() bool {
	shallow, err := r.repo.Storer.Shallow()
	return err == nil && len(shallow) > 0
}

// tree returns the root tree of a commit. Callers hold r.mu.
func (r *GoGitRepository) tree(revision string) (*object.Tree, error) {
	if t, ok := r.trees[revision]; ok {
		return t, nil
	}

	commit, err := r.repo.CommitObject(plumbing.NewHash(revision))
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: commit %s is not in local history", domain.ErrDiffUnavailable, revision)
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrRevisionNotFound, revision, err)
	}
	t, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("%w: tree of %s: %w", domain.ErrDiffUnavailable, revision, err)
	}

	r.trees[revision] = t
	return t, nil
}
