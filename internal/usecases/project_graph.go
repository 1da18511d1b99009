package usecases

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

// ProjectGraph is the set of projects known at a revision range, classified once.
// It is read-only after construction and safe for concurrent use.
type ProjectGraph struct {
	units      []*domain.ProjectUnit
	byPath     map[string]*domain.ProjectUnit
	extensions []string
}

// ProjectGraphBuilder discovers and classifies projects from a snapshot.
type ProjectGraphBuilder struct {
	snapshot   domain.SnapshotReader
	manifests  domain.ManifestReader
	classifier domain.ProjectClassifier
	extensions []string
	logger     Logger
}

// DefaultSourceExtensions are the file extensions treated as source code.
var DefaultSourceExtensions = []string{".cs"}

// NewProjectGraphBuilder creates a builder. extensions selects which files carry a
// Production or Test role; nil means DefaultSourceExtensions.
func NewProjectGraphBuilder(
	snapshot domain.SnapshotReader,
	manifests domain.ManifestReader,
	classifier domain.ProjectClassifier,
	extensions []string,
	log Logger,
) *ProjectGraphBuilder {
	if len(extensions) == 0 {
		extensions = DefaultSourceExtensions
	}
	return &ProjectGraphBuilder{
		snapshot:   snapshot,
		manifests:  manifests,
		classifier: classifier,
		extensions: extensions,
		logger:     log,
	}
}

// Build reads every manifest at head, plus manifests that only exist at base, and
// classifies each project. A malformed manifest fails the whole build.
func (b *ProjectGraphBuilder) Build(ctx context.Context, rng domain.RevisionRange) (*ProjectGraph, error) {
	headPaths, err := b.snapshot.ListFiles(ctx, rng.HeadHash, b.manifests.IsManifest)
	if err != nil {
		return nil, fmt.Errorf("failed to list manifests at head: %w", err)
	}
	basePaths, err := b.snapshot.ListFiles(ctx, rng.BaseHash, b.manifests.IsManifest)
	if err != nil {
		return nil, fmt.Errorf("failed to list manifests at base: %w", err)
	}

	inBase := make(map[string]bool, len(basePaths))
	for _, p := range basePaths {
		inBase[p] = true
	}
	inHead := make(map[string]bool, len(headPaths))
	for _, p := range headPaths {
		inHead[p] = true
	}

	graph := &ProjectGraph{
		byPath:     make(map[string]*domain.ProjectUnit),
		extensions: b.extensions,
	}

	for _, p := range headPaths {
		unit, err := b.load(ctx, rng.HeadHash, p)
		if err != nil {
			return nil, err
		}
		unit.IsNew = !inBase[p]
		graph.add(unit)
	}
	for _, p := range basePaths {
		if inHead[p] {
			continue
		}
		unit, err := b.load(ctx, rng.BaseHash, p)
		if err != nil {
			return nil, err
		}
		unit.Deleted = true
		graph.add(unit)
	}

	sort.Slice(graph.units, func(i, j int) bool {
		return graph.units[i].Path < graph.units[j].Path
	})

	b.logger.Debug(ctx, "built project graph", map[string]interface{}{
		"projects": len(graph.Units()),
		"range":    rng.String(),
	})

	return graph, nil
}

func (b *ProjectGraphBuilder) load(ctx context.Context, revision, manifestPath string) (*domain.ProjectUnit, error) {
	content, err := b.snapshot.ReadFile(ctx, revision, manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", manifestPath, err)
	}

	signals, err := b.manifests.ReadSignals(manifestPath, content)
	if err != nil {
		return nil, err
	}

	kind, _ := b.classifier.Classify(manifestPath, signals)
	if kind == "" {
		kind = domain.ProjectProduction
	}

	return &domain.ProjectUnit{
		Path:       manifestPath,
		Kind:       kind,
		SDK:        InferSDK(signals),
		Dir:        path.Dir(manifestPath),
		References: signals.References,
	}, nil
}

// NewProjectGraph assembles a graph from already classified units.
func NewProjectGraph(units []domain.ProjectUnit, extensions []string) *ProjectGraph {
	if len(extensions) == 0 {
		extensions = DefaultSourceExtensions
	}
	g := &ProjectGraph{byPath: make(map[string]*domain.ProjectUnit), extensions: extensions}
	for i := range units {
		u := units[i]
		if u.Dir == "" {
			u.Dir = path.Dir(u.Path)
		}
		g.add(&u)
	}
	sort.Slice(g.units, func(i, j int) bool { return g.units[i].Path < g.units[j].Path })
	return g
}

func (g *ProjectGraph) add(unit *domain.ProjectUnit) {
	g.units = append(g.units, unit)
	g.byPath[unit.Path] = unit
}

// Units returns the projects in lexical path order.
func (g *ProjectGraph) Units() []*domain.ProjectUnit {
	return g.units
}

// Project returns the unit with the given manifest path.
func (g *ProjectGraph) Project(manifestPath string) (*domain.ProjectUnit, bool) {
	u, ok := g.byPath[manifestPath]
	return u, ok
}

// OwnerOf returns the project whose directory is the longest prefix of filePath.
// A manifest always owns itself. When two projects share a directory the one whose
// manifest sorts first wins.
func (g *ProjectGraph) OwnerOf(filePath string) (*domain.ProjectUnit, bool) {
	if u, ok := g.Project(filePath); ok {
		return u, true
	}

	var best *domain.ProjectUnit
	for _, u := range g.units {
		if !inDir(filePath, u.Dir) {
			continue
		}
		if best == nil || len(u.Dir) > len(best.Dir) {
			best = u
		}
	}
	return best, best != nil
}

// IsSource reports whether filePath has a source extension.
func (g *ProjectGraph) IsSource(filePath string) bool {
	ext := strings.ToLower(path.Ext(filePath))
	for _, e := range g.extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// RoleOf is the path predicate handed to the diff analyzer.
func (g *ProjectGraph) RoleOf(filePath string) domain.FileRole {
	if !g.IsSource(filePath) {
		return domain.RoleOther
	}
	owner, ok := g.OwnerOf(filePath)
	if !ok {
		return domain.RoleOther
	}
	if owner.Kind == domain.ProjectTest {
		return domain.RoleTest
	}
	return domain.RoleProduction
}

// Dependents returns every project that transitively references manifestPath,
// in lexical order.
func (g *ProjectGraph) Dependents(manifestPath string) []*domain.ProjectUnit {
	reverse := make(map[string][]string)
	for _, u := range g.units {
		for _, ref := range u.References {
			reverse[ref] = append(reverse[ref], u.Path)
		}
	}

	seen := map[string]bool{manifestPath: true}
	queue := []string{manifestPath}
	var out []*domain.ProjectUnit
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, dep := range reverse[cur] {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			queue = append(queue, dep)
			out = append(out, g.byPath[dep])
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func inDir(filePath, dir string) bool {
	if dir == "." || dir == "" {
		return true
	}
	return strings.HasPrefix(filePath, dir+"/")
}
