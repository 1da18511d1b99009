package usecases

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

// Analysis is the shared, read-only output of the diff stage.
type Analysis struct {
	Range domain.RevisionRange
	Graph *ProjectGraph
	Files []domain.ChangedFile
}

// Plan is the combined output of test selection and deployment resolution.
type Plan struct {
	Selection  *domain.Selection
	Resolution *domain.Resolution
}

// Engine composes the four components for one run.
type Engine struct {
	analyzer *DiffAnalyzer
	graphs   *ProjectGraphBuilder
	selector *TestSelector
	gate     *CoverageGate
	resolver *DeploymentResolver
	logger   Logger
}

// NewEngine creates an Engine. Components a command does not use may be nil.
func NewEngine(
	analyzer *DiffAnalyzer,
	graphs *ProjectGraphBuilder,
	selector *TestSelector,
	gate *CoverageGate,
	resolver *DeploymentResolver,
	log Logger,
) *Engine {
	return &Engine{
		analyzer: analyzer,
		graphs:   graphs,
		selector: selector,
		gate:     gate,
		resolver: resolver,
		logger:   log,
	}
}

// Analyze resolves the refs, classifies projects and computes the diff. Every later
// stage reads the result without mutating it.
func (e *Engine) Analyze(ctx context.Context, baseRef, headRef string) (*Analysis, error) {
	rng, err := e.analyzer.ResolveRange(ctx, baseRef, headRef)
	if err != nil {
		return nil, err
	}

	graph, err := e.graphs.Build(ctx, rng)
	if err != nil {
		return nil, err
	}

	files, err := e.analyzer.ComputeDiff(ctx, rng, graph.RoleOf)
	if err != nil {
		return nil, err
	}

	return &Analysis{Range: rng, Graph: graph, Files: files}, nil
}

// SelectTests runs the test selector over an analysis.
func (e *Engine) SelectTests(ctx context.Context, a *Analysis) (*domain.Selection, error) {
	return e.selector.SelectTests(ctx, a.Range, a.Files, a.Graph)
}

// CheckCoverage runs the coverage gate over an analysis.
func (e *Engine) CheckCoverage(ctx context.Context, a *Analysis, report domain.CoverageReport) *domain.GateResult {
	return e.gate.Verify(ctx, a.Files, report)
}

// ResolveDeployments runs the deployment resolver over an analysis.
func (e *Engine) ResolveDeployments(ctx context.Context, a *Analysis, deployments *domain.DeploymentMap) *domain.Resolution {
	return e.resolver.Resolve(ctx, a.Files, a.Graph, deployments)
}

// Plan runs test selection and deployment resolution concurrently; they share only
// the read-only analysis.
func (e *Engine) Plan(ctx context.Context, a *Analysis, deployments *domain.DeploymentMap) (*Plan, error) {
	plan := &Plan{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sel, err := e.SelectTests(gctx, a)
		if err != nil {
			return err
		}
		plan.Selection = sel
		return nil
	})
	g.Go(func() error {
		plan.Resolution = e.ResolveDeployments(gctx, a, deployments)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Info(ctx, "plan complete", map[string]interface{}{
		"range":             a.Range.String(),
		"explicit_cases":    len(plan.Selection.ExplicitTestCases),
		"project_fallbacks": len(plan.Selection.WholeProjectFallbacks),
		"targets":           len(plan.Resolution.Targets),
		"deploy_errors":     len(plan.Resolution.Errors),
	})
	return plan, nil
}
