package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

func newCheckCoverageCmd(opts *rootOptions, deps *Dependencies) *cobra.Command {
	var reportFormat string

	coverageCmd := &cobra.Command{
		Use:   "check-coverage <base> <head> <coverageFile>",
		Short: "Fail when a changed production line is not covered by a test",
		Long: `check-coverage diffs <base> against <head> and checks every changed line of
production source against a Cobertura or LCOV report. Lines a report omits
inside a covered file are treated as not instrumentable; a changed file the
report does not mention at all fails on every changed line.

Examples:
  changegate check-coverage origin/main HEAD coverage.cobertura.xml
  changegate check-coverage origin/main HEAD lcov.info --report-format lcov --format table`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv := invocation{
				command: "check-coverage",
				baseRef: args[0],
				headRef: args[1],
				override: func(cfg *AppConfig) {
					if cmd.Flags().Changed("report-format") {
						cfg.CoverageReportFormat = reportFormat
					}
				},
			}
			return execute(cmd, opts, deps, inv, func(ctx context.Context, s *session) error {
				return runCheckCoverage(ctx, s, args[0], args[1], args[2])
			})
		},
	}

	coverageCmd.Flags().StringVar(&reportFormat, "report-format", "auto",
		"Coverage report format: auto, cobertura or lcov")

	return coverageCmd
}

func runCheckCoverage(ctx context.Context, s *session, baseRef, headRef, reportPath string) error {
	report, err := s.loadCoverageReport(ctx, reportPath)
	if err != nil {
		return err
	}

	a, err := s.analyze(ctx, baseRef, headRef)
	if err != nil {
		return err
	}

	res := s.engine.CheckCoverage(ctx, a, report)
	s.record.Violations = len(res.Violations)

	if err := s.writer.WriteGateResult(res); err != nil {
		s.log.Error(ctx, "failed to write output", err, nil)
		return fmt.Errorf("output error: %w", err)
	}
	if !res.OK {
		return &domain.CoverageViolationError{Violations: res.Violations}
	}
	return nil
}

func (s *session) loadCoverageReport(ctx context.Context, reportPath string) (domain.CoverageReport, error) {
	if s.deps.CoverageParserFactory == nil {
		return nil, errors.New("coverage parser not configured")
	}
	parser, err := s.deps.CoverageParserFactory(s.cfg)
	if err != nil {
		return nil, err
	}

	readFile := s.deps.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}
	content, err := readFile(reportPath)
	if err != nil {
		s.log.Error(ctx, "failed to read coverage report", err, map[string]interface{}{
			"path": reportPath,
		})
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedCoverageReport, err)
	}

	report, err := parser.Parse(content)
	if err != nil {
		s.log.Error(ctx, "failed to parse coverage report", err, map[string]interface{}{
			"path": reportPath,
		})
		return nil, err
	}

	s.log.Debug(ctx, "loaded coverage report", map[string]interface{}{
		"path":  reportPath,
		"files": len(report),
	})
	return report, nil
}
