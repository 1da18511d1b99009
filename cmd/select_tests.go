package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSelectTestsCmd(opts *rootOptions, deps *Dependencies) *cobra.Command {
	var methodLevel bool

	selectCmd := &cobra.Command{
		Use:   "select-tests <base> <head>",
		Short: "Select the tests exercising the changes between two revisions",
		Long: `select-tests diffs <base> against <head> and lists the test classes whose
source changed. A test project with a change it cannot attribute to a test class
is selected as a whole.

Examples:
  # Select tests for a pull request
  changegate select-tests origin/main HEAD

  # Emit dotnet test --filter expressions per project
  changegate select-tests origin/main HEAD --format filter

  # Narrow to the changed test methods
  changegate select-tests origin/main HEAD --method-level`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv := invocation{
				command: "select-tests",
				baseRef: args[0],
				headRef: args[1],
				override: func(cfg *AppConfig) {
					if cmd.Flags().Changed("method-level") {
						cfg.MethodLevel = methodLevel
					}
				},
			}
			return execute(cmd, opts, deps, inv, func(ctx context.Context, s *session) error {
				return runSelectTests(ctx, s, args[0], args[1])
			})
		},
	}

	selectCmd.Flags().BoolVar(&methodLevel, "method-level", false,
		"Narrow classes to the test methods that changed")

	return selectCmd
}

func runSelectTests(ctx context.Context, s *session, baseRef, headRef string) error {
	a, err := s.analyze(ctx, baseRef, headRef)
	if err != nil {
		return err
	}

	sel, err := s.engine.SelectTests(ctx, a)
	if err != nil {
		s.log.Error(ctx, "failed to select tests", err, nil)
		return err
	}
	s.record.Selected = len(sel.ExplicitTestCases)
	s.record.Fallbacks = len(sel.WholeProjectFallbacks)

	if err := s.writer.WriteSelection(sel); err != nil {
		s.log.Error(ctx, "failed to write output", err, nil)
		return fmt.Errorf("output error: %w", err)
	}
	return nil
}
