package usecases

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

// mockLogger records messages; it is safe for the concurrent stages of Plan.
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (m *mockLogger) log(level, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, level+": "+msg)
}

func (m *mockLogger) Info(_ context.Context, msg string, _ map[string]interface{})  { m.log("INFO", msg) }
func (m *mockLogger) Debug(_ context.Context, msg string, _ map[string]interface{}) { m.log("DEBUG", msg) }
func (m *mockLogger) Warn(_ context.Context, msg string, _ map[string]interface{})  { m.log("WARN", msg) }
func (m *mockLogger) Error(_ context.Context, msg string, _ error, _ map[string]interface{}) {
	m.log("ERROR", msg)
}

func (m *mockLogger) has(entry string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg == entry {
			return true
		}
	}
	return false
}

var errNoSuchFile = errors.New("no such file")

// memRepo is an in-memory RevisionDiffProvider. Revisions are keyed by hash and the
// refs "base" and "head" resolve to the hashes of the same name.
type memRepo struct {
	revisions map[string]map[string]string

	// changes overrides the change list computed from the two snapshots.
	changes    []domain.PathChange
	changesErr error
	listErr    error
	readErr    map[string]error
}

func newMemRepo(base, head map[string]string) *memRepo {
	return &memRepo{revisions: map[string]map[string]string{"base": base, "head": head}}
}

func (r *memRepo) ResolveRange(_ context.Context, baseRef, headRef string) (domain.RevisionRange, error) {
	for _, ref := range []string{baseRef, headRef} {
		if _, ok := r.revisions[ref]; !ok {
			return domain.RevisionRange{}, fmt.Errorf("%w: %s", domain.ErrRevisionNotFound, ref)
		}
	}
	return domain.RevisionRange{BaseRef: baseRef, HeadRef: headRef, BaseHash: baseRef, HeadHash: headRef}, nil
}

func (r *memRepo) ChangedPaths(_ context.Context, rng domain.RevisionRange) ([]domain.PathChange, error) {
	if r.changesErr != nil {
		return nil, r.changesErr
	}
	if r.changes != nil {
		return r.changes, nil
	}

	base, head := r.revisions[rng.BaseHash], r.revisions[rng.HeadHash]
	var out []domain.PathChange
	for p, content := range head {
		old, ok := base[p]
		switch {
		case !ok:
			out = append(out, domain.PathChange{Path: p, Kind: domain.ChangeAdded})
		case old != content:
			out = append(out, domain.PathChange{Path: p, Kind: domain.ChangeModified})
		}
	}
	for p := range base {
		if _, ok := head[p]; !ok {
			out = append(out, domain.PathChange{Path: p, Kind: domain.ChangeDeleted})
		}
	}
	// Unordered on purpose: the analyzer owns ordering.
	return out, nil
}

func (r *memRepo) ReadFile(_ context.Context, revision, path string) ([]byte, error) {
	if err, ok := r.readErr[revision+":"+path]; ok {
		return nil, err
	}
	content, ok := r.revisions[revision][path]
	if !ok {
		return nil, fmt.Errorf("%s at %s: %w", path, revision, errNoSuchFile)
	}
	return []byte(content), nil
}

func (r *memRepo) ListFiles(ctx context.Context, revision string, match func(string) bool) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []string
	for p := range r.revisions[revision] {
		if match == nil || match(p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// stubManifests treats every .csproj as a manifest and serves signals by path.
type stubManifests struct {
	signals map[string]domain.ManifestSignals
}

func (s stubManifests) IsManifest(path string) bool {
	return strings.HasSuffix(path, ".csproj")
}

func (s stubManifests) ReadSignals(path string, content []byte) (domain.ManifestSignals, error) {
	if string(content) == "<Project" {
		return domain.ManifestSignals{}, fmt.Errorf("%w: %s: unexpected EOF", domain.ErrMalformedManifest, path)
	}
	return s.signals[path], nil
}

// stubFinder serves type declarations keyed by file content.
type stubFinder struct {
	types map[string][]domain.TypeDecl
}

func (s stubFinder) IsSource(path string) bool {
	return strings.HasSuffix(path, ".cs")
}

func (s stubFinder) FindTypes(path string, content []byte) ([]domain.TypeDecl, error) {
	if string(content) == "unparseable" {
		return nil, fmt.Errorf("%s: unbalanced braces", path)
	}
	return s.types[string(content)], nil
}

func boolPtr(b bool) *bool { return &b }

func span(start, end int) domain.LineRange {
	return domain.LineRange{Start: start, End: end}
}
