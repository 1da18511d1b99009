package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
	"github.com/MyCarrier-DevOps/changegate/internal/usecases"
)

// invocation describes one subcommand run: its name, refs and config overrides.
type invocation struct {
	command string
	baseRef string
	headRef string

	// override applies command flags on top of the loaded configuration.
	override func(cfg *AppConfig)
}

// session holds everything a subcommand needs between opening the repository and
// recording the run.
type session struct {
	deps     *Dependencies
	log      Logger
	cfg      *AppConfig
	repo     Repository
	engine   Engine
	writer   domain.OutputWriter
	recorder domain.RunRecorder
	closeOut func() error
	record   domain.RunRecord
}

// execute opens a session, runs body and records the outcome. The error returned
// by body decides the exit code; closing and recording only ever log.
func execute(cmd *cobra.Command, opts *rootOptions, deps *Dependencies, inv invocation,
	body func(ctx context.Context, s *session) error,
) error {
	if err := checkDependencies(deps); err != nil {
		return err
	}
	ctx := contextOf(cmd)

	s, err := openSession(ctx, opts, deps, inv)
	if err != nil {
		return err
	}
	return s.finish(ctx, body(ctx, s))
}

func openSession(ctx context.Context, opts *rootOptions, deps *Dependencies, inv invocation) (*session, error) {
	stderr := stderrOf(deps)

	// Set log level based on verbose flag (best-effort)
	if opts.verbose {
		if err := os.Setenv("LOG_LEVEL", "debug"); err != nil {
			writeWarningf(stderr, "warning: could not set log level: %v\n", err)
		}
	}

	runID := ""
	if deps.RunIDGenerator != nil {
		runID = deps.RunIDGenerator()
	}

	log := deps.LoggerFactory(map[string]interface{}{
		"run_id":  runID,
		"command": inv.command,
	})

	log.Info(ctx, "starting changegate", map[string]interface{}{
		"repo":   opts.repoPath,
		"base":   inv.baseRef,
		"head":   inv.headRef,
		"format": opts.format,
	})

	cfg, err := deps.ConfigLoader(opts.repoPath, opts.configFile)
	if err != nil {
		log.Error(ctx, "failed to load configuration", err, nil)
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if inv.override != nil {
		inv.override(cfg)
	}

	s := &session{
		deps: deps,
		log:  log,
		cfg:  cfg,
		record: domain.RunRecord{
			RunID:     runID,
			Command:   inv.command,
			Range:     domain.RevisionRange{BaseRef: inv.baseRef, HeadRef: inv.headRef},
			StartedAt: nowUTC(),
		},
	}

	out, closeOut, err := openOutput(opts.outputFile, stdoutOf(deps))
	if err != nil {
		log.Error(ctx, "failed to open output", err, map[string]interface{}{"path": opts.outputFile})
		return nil, err
	}
	s.closeOut = closeOut

	s.writer, err = deps.OutputWriterFactory(opts.format, out)
	if err != nil {
		s.close(ctx)
		return nil, err
	}

	s.repo, err = deps.RepositoryFactory(opts.repoPath, log)
	if err != nil {
		log.Error(ctx, "failed to open git repository", err, map[string]interface{}{
			"path": opts.repoPath,
		})
		s.close(ctx)
		if errors.Is(err, domain.ErrRepositoryNotFound) {
			return nil, fmt.Errorf("not a git repository: %s: %w", opts.repoPath, err)
		}
		return nil, err
	}

	s.engine, err = deps.EngineFactory(s.repo, cfg, log)
	if err != nil {
		log.Error(ctx, "failed to initialize engine", err, nil)
		s.close(ctx)
		return nil, err
	}

	s.recorder = openRecorder(ctx, deps, cfg, log)
	return s, nil
}

// openRecorder returns nil when the ledger is unavailable; a run never fails
// because of it.
func openRecorder(ctx context.Context, deps *Dependencies, cfg *AppConfig, log Logger) domain.RunRecorder {
	if deps.RecorderFactory == nil {
		return nil
	}
	rec, err := deps.RecorderFactory(ctx, cfg, log)
	if err != nil {
		log.Warn(ctx, "run ledger unavailable", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	return rec
}

func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path) // #nosec G304 -- the output path is chosen by the operator
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// analyze runs the diff stage and records the resolved range.
func (s *session) analyze(ctx context.Context, baseRef, headRef string) (*usecases.Analysis, error) {
	a, err := s.engine.Analyze(ctx, baseRef, headRef)
	if err != nil {
		s.log.Error(ctx, "failed to analyze diff", err, nil)
		return nil, err
	}
	s.record.Range = a.Range
	return a, nil
}

// finish records the run and releases resources. It returns runErr unchanged.
func (s *session) finish(ctx context.Context, runErr error) error {
	s.record.Outcome = Outcome(runErr)
	s.record.Duration = nowUTC().Sub(s.record.StartedAt)

	if s.recorder != nil {
		if err := s.recorder.Record(ctx, s.record); err != nil {
			s.log.Warn(ctx, "failed to record run", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	fields := map[string]interface{}{
		"outcome":     s.record.Outcome,
		"range":       s.record.Range.String(),
		"duration_ms": s.record.Duration.Milliseconds(),
	}
	if runErr != nil {
		s.log.Error(ctx, "changegate failed", runErr, fields)
	} else {
		s.log.Info(ctx, "changegate complete", fields)
	}

	s.close(ctx)
	return runErr
}

func (s *session) close(ctx context.Context) {
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			s.log.Warn(ctx, "failed to close run ledger", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			s.log.Warn(ctx, "failed to close git repository", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	if s.closeOut != nil {
		if err := s.closeOut(); err != nil {
			s.log.Warn(ctx, "failed to close output", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}
