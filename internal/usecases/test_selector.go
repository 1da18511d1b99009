package usecases

import (
	"context"
	"fmt"
	"sort"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

// TestSelector chooses the minimal set of tests exercising a diff.
// Every test project holding a changed file ends up either with explicit test cases
// or as a whole-project fallback.
type TestSelector struct {
	snapshot    domain.SnapshotReader
	finder      domain.TestClassFinder
	methodLevel bool
	logger      Logger
}

// NewTestSelector creates a TestSelector. With methodLevel set, a class whose only
// changes fall inside test methods is narrowed to those methods.
func NewTestSelector(
	snapshot domain.SnapshotReader,
	finder domain.TestClassFinder,
	methodLevel bool,
	log Logger,
) *TestSelector {
	return &TestSelector{
		snapshot:    snapshot,
		finder:      finder,
		methodLevel: methodLevel,
		logger:      log,
	}
}

type projectSelection struct {
	fallback bool
	cases    []domain.TestCase
}

// SelectTests returns explicit test cases and whole-project fallbacks for files, which
// must come from the same range as rng. Projects with no changed files are never selected.
func (s *TestSelector) SelectTests(
	ctx context.Context,
	rng domain.RevisionRange,
	files []domain.ChangedFile,
	graph *ProjectGraph,
) (*domain.Selection, error) {
	projects := make(map[string]*projectSelection)

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		owner, ok := graph.OwnerOf(f.Path)
		if !ok || owner.Kind != domain.ProjectTest {
			continue
		}
		if owner.Deleted {
			s.logger.Debug(ctx, "skipping deleted test project", map[string]interface{}{
				"project": owner.Path,
				"file":    f.Path,
			})
			continue
		}

		sel, ok := projects[owner.Path]
		if !ok {
			sel = &projectSelection{}
			projects[owner.Path] = sel
		}
		if sel.fallback {
			continue
		}
		if owner.IsNew {
			sel.fallback = true
			s.logger.Info(ctx, "new test project falls back to whole-project execution", map[string]interface{}{
				"project": owner.Path,
			})
			continue
		}

		cases, reason, err := s.casesForFile(ctx, rng, f, owner.Path)
		if err != nil {
			s.logger.Error(ctx, "failed to read test file", err, map[string]interface{}{
				"project": owner.Path,
				"file":    f.Path,
			})
			return nil, err
		}
		if len(cases) == 0 {
			sel.fallback = true
			s.logger.Info(ctx, "test file falls back to whole-project execution", map[string]interface{}{
				"project": owner.Path,
				"file":    f.Path,
				"reason":  reason,
			})
			continue
		}
		sel.cases = append(sel.cases, cases...)
	}

	result := &domain.Selection{
		ExplicitTestCases:     []domain.TestCase{},
		WholeProjectFallbacks: []string{},
	}
	for projectPath, sel := range projects {
		if sel.fallback {
			result.WholeProjectFallbacks = append(result.WholeProjectFallbacks, projectPath)
			continue
		}
		result.ExplicitTestCases = append(result.ExplicitTestCases, sel.cases...)
	}

	result.ExplicitTestCases = dedupeTestCases(result.ExplicitTestCases)
	sort.Strings(result.WholeProjectFallbacks)

	s.logger.Info(ctx, "selected tests", map[string]interface{}{
		"explicit_cases":    len(result.ExplicitTestCases),
		"project_fallbacks": len(result.WholeProjectFallbacks),
		"test_projects":     len(projects),
	})
	if result.Empty() {
		s.logger.Info(ctx, "no tests affected by the change", map[string]interface{}{
			"changed_files": len(files),
		})
	}

	return result, nil
}

// casesForFile returns the changed test classes of one file. An empty result means the
// file must fall back to whole-project execution; reason says why. A file that cannot be
// read at either revision is an error, not a fallback.
func (s *TestSelector) casesForFile(
	ctx context.Context,
	rng domain.RevisionRange,
	f domain.ChangedFile,
	projectPath string,
) ([]domain.TestCase, string, error) {
	switch {
	case f.Kind == domain.ChangeDeleted:
		return nil, "file deleted", nil
	case f.Opaque:
		return nil, "binary file", nil
	case !s.finder.IsSource(f.Path):
		return nil, "not a source file", nil
	}

	head, err := s.read(ctx, rng.HeadHash, f.Path)
	if err != nil {
		return nil, "", err
	}
	types, err := s.finder.FindTypes(f.Path, head)
	if err != nil {
		s.logger.Warn(ctx, "failed to parse test file", map[string]interface{}{
			"file":  f.Path,
			"error": err.Error(),
		})
		return nil, "parse failure", nil
	}

	baseTypes, err := s.baseTypeNames(ctx, rng, f)
	if err != nil {
		return nil, "", err
	}
	if baseTypes == nil {
		return nil, "base parse failure", nil
	}

	var cases []domain.TestCase
	for _, t := range types {
		isNew := !baseTypes[qualifiedName(t)]
		if !isNew && !typeTouched(f, t) {
			continue
		}
		if !t.IsTestClass {
			return nil, "non-test type " + t.Name + " changed", nil
		}
		cases = append(cases, s.casesForType(f, t, isNew, projectPath)...)
	}

	if len(cases) == 0 {
		return nil, "no changed test class detected", nil
	}
	return cases, "", nil
}

// baseTypeNames returns the qualified type names of the file at base. Added files yield
// an empty set, which makes every head type count as new; a base that does not parse
// yields nil.
func (s *TestSelector) baseTypeNames(
	ctx context.Context,
	rng domain.RevisionRange,
	f domain.ChangedFile,
) (map[string]bool, error) {
	names := make(map[string]bool)
	if f.Kind == domain.ChangeAdded {
		return names, nil
	}

	basePath := f.Path
	if f.OldPath != "" {
		basePath = f.OldPath
	}
	content, err := s.read(ctx, rng.BaseHash, basePath)
	if err != nil {
		return nil, err
	}
	types, err := s.finder.FindTypes(basePath, content)
	if err != nil {
		s.logger.Warn(ctx, "failed to parse test file at base", map[string]interface{}{
			"file":  basePath,
			"error": err.Error(),
		})
		return nil, nil
	}
	for _, t := range types {
		names[qualifiedName(t)] = true
	}
	return names, nil
}

func (s *TestSelector) read(ctx context.Context, revision, path string) ([]byte, error) {
	content, err := s.snapshot.ReadFile(ctx, revision, path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s at %s: %w", domain.ErrDiffUnavailable, path, revision, err)
	}
	return content, nil
}

func (s *TestSelector) casesForType(f domain.ChangedFile, t domain.TypeDecl, isNew bool, projectPath string) []domain.TestCase {
	classCase := domain.TestCase{
		ProjectPath: projectPath,
		Namespace:   t.Namespace,
		ClassName:   t.Name,
	}
	if !s.methodLevel || isNew || f.Touches(t.Header) {
		return []domain.TestCase{classCase}
	}

	var methods []domain.TestCase
	for _, m := range t.Members {
		if !f.Touches(m.Span) {
			continue
		}
		if !domain.HasTestAttribute(m.Attributes) {
			// A changed helper member may affect every test in the class.
			return []domain.TestCase{classCase}
		}
		mc := classCase
		mc.MethodName = m.Name
		methods = append(methods, mc)
	}
	if len(methods) == 0 {
		return []domain.TestCase{classCase}
	}
	return methods
}

func typeTouched(f domain.ChangedFile, t domain.TypeDecl) bool {
	if f.Touches(t.Header) {
		return true
	}
	for _, m := range t.Members {
		if f.Touches(m.Span) {
			return true
		}
	}
	return false
}

func qualifiedName(t domain.TypeDecl) string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// dedupeTestCases removes duplicates and method cases already covered by a class
// case, then sorts by project, namespace, class and method.
func dedupeTestCases(cases []domain.TestCase) []domain.TestCase {
	wholeClass := make(map[domain.TestCase]bool)
	for _, c := range cases {
		if c.MethodName == "" {
			wholeClass[c] = true
		}
	}

	seen := make(map[domain.TestCase]bool)
	out := make([]domain.TestCase, 0, len(cases))
	for _, c := range cases {
		if c.MethodName != "" {
			cls := c
			cls.MethodName = ""
			if wholeClass[cls] {
				continue
			}
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ProjectPath != b.ProjectPath {
			return a.ProjectPath < b.ProjectPath
		}
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		if a.ClassName != b.ClassName {
			return a.ClassName < b.ClassName
		}
		return a.MethodName < b.MethodName
	})
	return out
}
