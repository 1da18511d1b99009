package usecases

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

// DeploymentResolver pairs changed production projects with their deployment map entries.
// It never invents a target: every changed production project, whatever its SDK, either
// resolves against an explicit entry or produces an error, and errors are accumulated so
// one run reports all of them.
type DeploymentResolver struct {
	includeDependents bool
	artifactsDir      string
	logger            Logger
}

// ResolverOptions tunes deployment resolution.
type ResolverOptions struct {
	// IncludeDependents marks Web and Function projects that transitively reference a
	// changed project as changed themselves.
	IncludeDependents bool

	// ArtifactsDir, when set, annotates each target with <dir>/<appName>.zip.
	ArtifactsDir string
}

// NewDeploymentResolver creates a DeploymentResolver.
func NewDeploymentResolver(opts ResolverOptions, log Logger) *DeploymentResolver {
	return &DeploymentResolver{
		includeDependents: opts.IncludeDependents,
		artifactsDir:      opts.ArtifactsDir,
		logger:            log,
	}
}

// Resolve returns targets and accumulated errors in lexical project-path order.
func (r *DeploymentResolver) Resolve(
	ctx context.Context,
	files []domain.ChangedFile,
	graph *ProjectGraph,
	deployments *domain.DeploymentMap,
) *domain.Resolution {
	candidates := r.changedProjects(files, graph)

	res := &domain.Resolution{Targets: []domain.DeploymentTarget{}}
	for _, unit := range candidates {
		entry, mapped := deployments.Lookup(unit.Path)
		if !mapped {
			err := &domain.UnmappedProjectError{ProjectPath: unit.Path}
			r.logger.Error(ctx, "changed project has no deployment map entry", err, map[string]interface{}{
				"project": unit.Path,
				"sdk":     string(unit.SDK),
			})
			res.Errors = append(res.Errors, err)
			continue
		}

		// Library and Unknown SDKs imply no type, so the declared one stands.
		if expected, inferred := ExpectedDeploymentType(unit.SDK); inferred && expected != entry.Type {
			err := &domain.TypeMismatchError{
				ProjectPath: unit.Path,
				SDK:         unit.SDK,
				Declared:    entry.Type,
				Expected:    expected,
			}
			r.logger.Error(ctx, "deployment type does not match project SDK", err, map[string]interface{}{
				"project":  unit.Path,
				"declared": string(entry.Type),
				"sdk":      string(unit.SDK),
			})
			res.Errors = append(res.Errors, err)
			continue
		}

		target := domain.DeploymentTarget{
			ProjectPath:   unit.Path,
			SDK:           unit.SDK,
			Type:          entry.Type,
			ResourceGroup: entry.ResourceGroup,
			AppName:       entry.AppName,
			Slot:          entry.Slot,
		}
		if r.artifactsDir != "" {
			target.PackagePath = filepath.Join(r.artifactsDir, entry.AppName+".zip")
		}
		res.Targets = append(res.Targets, target)
	}

	r.logger.Info(ctx, "resolved deployments", map[string]interface{}{
		"changed_projects": len(candidates),
		"targets":          len(res.Targets),
		"errors":           len(res.Errors),
	})

	return res
}

// changedProjects returns non-deleted production projects owning a changed file,
// plus their deployable dependents when enabled, sorted by path.
func (r *DeploymentResolver) changedProjects(files []domain.ChangedFile, graph *ProjectGraph) []*domain.ProjectUnit {
	set := make(map[string]*domain.ProjectUnit)
	for _, f := range files {
		owner, ok := graph.OwnerOf(f.Path)
		if !ok || owner.Kind != domain.ProjectProduction || owner.Deleted {
			continue
		}
		set[owner.Path] = owner
	}

	if r.includeDependents {
		direct := make([]*domain.ProjectUnit, 0, len(set))
		for _, u := range set {
			direct = append(direct, u)
		}
		for _, u := range direct {
			for _, dep := range graph.Dependents(u.Path) {
				if dep.Kind != domain.ProjectProduction || dep.Deleted {
					continue
				}
				if _, deployable := ExpectedDeploymentType(dep.SDK); deployable {
					set[dep.Path] = dep
				}
			}
		}
	}

	out := make([]*domain.ProjectUnit, 0, len(set))
	for _, u := range set {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
