package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newPlanCmd(opts *rootOptions, deps *Dependencies) *cobra.Command {
	var methodLevel bool
	flags := &deployFlags{}

	planCmd := &cobra.Command{
		Use:   "plan <base> <head> <mapFile>",
		Short: "Select tests and resolve deployments from a single diff",
		Long: `plan computes the diff once and runs test selection and deployment
resolution over it concurrently. The exit code follows resolve-deploy.

Examples:
  changegate plan origin/main HEAD deployment-map.yaml --format table`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv := invocation{
				command: "plan",
				baseRef: args[0],
				headRef: args[1],
				override: func(cfg *AppConfig) {
					if cmd.Flags().Changed("method-level") {
						cfg.MethodLevel = methodLevel
					}
					flags.apply(cmd, cfg)
				},
			}
			return execute(cmd, opts, deps, inv, func(ctx context.Context, s *session) error {
				return runPlan(ctx, s, args[0], args[1], args[2])
			})
		},
	}

	planCmd.Flags().BoolVar(&methodLevel, "method-level", false,
		"Narrow classes to the test methods that changed")
	flags.register(planCmd)

	return planCmd
}

func runPlan(ctx context.Context, s *session, baseRef, headRef, mapSource string) error {
	deployments, err := s.loadDeploymentMap(ctx, mapSource)
	if err != nil {
		return err
	}

	a, err := s.analyze(ctx, baseRef, headRef)
	if err != nil {
		return err
	}

	p, err := s.engine.Plan(ctx, a, deployments)
	if err != nil {
		s.log.Error(ctx, "failed to plan", err, nil)
		return err
	}
	s.record.Selected = len(p.Selection.ExplicitTestCases)
	s.record.Fallbacks = len(p.Selection.WholeProjectFallbacks)
	s.recordResolution(p.Resolution)

	if err := s.writer.WritePlan(p.Selection, p.Resolution); err != nil {
		s.log.Error(ctx, "failed to write output", err, nil)
		return fmt.Errorf("output error: %w", err)
	}
	return resolutionError(p.Resolution)
}
