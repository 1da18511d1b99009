package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

// deployFlags are shared by resolve-deploy and plan.
type deployFlags struct {
	includeDependents bool
	artifactsDir      string
}

func (f *deployFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.includeDependents, "include-dependents", false,
		"Also deploy Web and Function projects referencing a changed project")
	cmd.Flags().StringVar(&f.artifactsDir, "artifacts-dir", "",
		"Annotate each target with <dir>/<appName>.zip")
}

func (f *deployFlags) apply(cmd *cobra.Command, cfg *AppConfig) {
	if cmd.Flags().Changed("include-dependents") {
		cfg.IncludeDependents = f.includeDependents
	}
	if cmd.Flags().Changed("artifacts-dir") {
		cfg.ArtifactsDir = f.artifactsDir
	}
}

func newResolveDeployCmd(opts *rootOptions, deps *Dependencies) *cobra.Command {
	flags := &deployFlags{}

	resolveCmd := &cobra.Command{
		Use:   "resolve-deploy <base> <head> <mapFile>",
		Short: "Pair changed deployable projects with their deployment targets",
		Long: `resolve-deploy diffs <base> against <head> and looks up every changed Web or
Function project in the deployment map. Every unmapped project and every type
mismatch is reported; any of them fails the run.

<mapFile> is a YAML or JSON file, or vault:<path>[#key] to read the map from
Vault (VAULT_ADDRESS, VAULT_ROLE_ID, VAULT_SECRET_ID).

Examples:
  changegate resolve-deploy origin/main HEAD deployment-map.yaml
  changegate resolve-deploy HEAD~1 HEAD vault:ci/contoso/deployments --format table`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv := invocation{
				command: "resolve-deploy",
				baseRef: args[0],
				headRef: args[1],
				override: func(cfg *AppConfig) {
					flags.apply(cmd, cfg)
				},
			}
			return execute(cmd, opts, deps, inv, func(ctx context.Context, s *session) error {
				return runResolveDeploy(ctx, s, args[0], args[1], args[2])
			})
		},
	}

	flags.register(resolveCmd)
	return resolveCmd
}

func runResolveDeploy(ctx context.Context, s *session, baseRef, headRef, mapSource string) error {
	deployments, err := s.loadDeploymentMap(ctx, mapSource)
	if err != nil {
		return err
	}

	a, err := s.analyze(ctx, baseRef, headRef)
	if err != nil {
		return err
	}

	res := s.engine.ResolveDeployments(ctx, a, deployments)
	s.recordResolution(res)

	if err := s.writer.WriteResolution(res); err != nil {
		s.log.Error(ctx, "failed to write output", err, nil)
		return fmt.Errorf("output error: %w", err)
	}
	return resolutionError(res)
}

func (s *session) loadDeploymentMap(ctx context.Context, source string) (*domain.DeploymentMap, error) {
	if s.deps.DeploymentMapLoader == nil {
		return nil, errors.New("deployment map loader not configured")
	}
	m, err := s.deps.DeploymentMapLoader(ctx, source, s.cfg, s.log)
	if err != nil {
		s.log.Error(ctx, "failed to load deployment map", err, map[string]interface{}{
			"source": source,
		})
		return nil, err
	}
	return m, nil
}

func (s *session) recordResolution(res *domain.Resolution) {
	s.record.Targets = len(res.Targets)
	s.record.Errors = len(res.Errors)
}

// resolutionError joins every accumulated error so each stays matchable with errors.Is.
func resolutionError(res *domain.Resolution) error {
	if res.OK() {
		return nil
	}
	return errors.Join(res.Errors...)
}
