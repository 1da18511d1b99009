// Package store provides adapters for the run ledger.
package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"

	ch "github.com/MyCarrier-DevOps/goLibMyCarrier/clickhouse"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

// TableName is the ledger table created in the configured database.
const TableName = "changegate_runs"

// ErrInvalidDatabase indicates a database name that cannot be used as an identifier.
var ErrInvalidDatabase = errors.New("invalid ClickHouse database name")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ClickHouseRecorder implements domain.RunRecorder by appending one row per run.
type ClickHouseRecorder struct {
	session  ch.ClickhouseSessionInterface
	database string
}

// NewClickHouseRecorder opens a session through factory and ensures the ledger table exists.
// The database name is checked before any connection is attempted.
func NewClickHouseRecorder(
	ctx context.Context,
	factory ch.SessionFactoryInterface,
	cfg *ch.ClickhouseConfig,
) (*ClickHouseRecorder, error) {
	if err := validateDatabase(cfg.ChDatabase); err != nil {
		return nil, err
	}

	session, err := factory.NewSession(cfg, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse at %s: %w",
			net.JoinHostPort(cfg.ChHostname, cfg.ChPort), err)
	}

	rec, err := NewClickHouseRecorderWithSession(ctx, session, cfg.ChDatabase)
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	return rec, nil
}

// NewClickHouseRecorderWithSession wraps an existing session and ensures the ledger table
// exists. This is useful for testing.
func NewClickHouseRecorderWithSession(
	ctx context.Context,
	session ch.ClickhouseSessionInterface,
	database string,
) (*ClickHouseRecorder, error) {
	if err := validateDatabase(database); err != nil {
		return nil, err
	}
	r := &ClickHouseRecorder{session: session, database: database}
	if err := session.Exec(ctx, r.createTableQuery()); err != nil {
		return nil, fmt.Errorf("failed to create %s.%s: %w", database, TableName, err)
	}
	return r, nil
}

func validateDatabase(database string) error {
	if !identifierPattern.MatchString(database) {
		return fmt.Errorf("%w: %q", ErrInvalidDatabase, database)
	}
	return nil
}

func (r *ClickHouseRecorder) createTableQuery() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	run_id UUID,
	command LowCardinality(String),
	base_ref String,
	head_ref String,
	base_hash String,
	head_hash String,
	outcome LowCardinality(String),
	selected UInt32,
	fallbacks UInt32,
	violations UInt32,
	targets UInt32,
	errors UInt32,
	started_at DateTime64(3, 'UTC'),
	duration_ms UInt64
) ENGINE = MergeTree
ORDER BY (started_at, run_id)`, r.database, TableName)
}

func (r *ClickHouseRecorder) insertQuery() string {
	return fmt.Sprintf(`INSERT INTO %s.%s (
	run_id, command, base_ref, head_ref, base_hash, head_hash, outcome,
	selected, fallbacks, violations, targets, errors, started_at, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, r.database, TableName)
}

// Record appends rec to the ledger.
func (r *ClickHouseRecorder) Record(ctx context.Context, rec domain.RunRecord) error {
	err := r.session.ExecWithArgs(ctx, r.insertQuery(),
		rec.RunID,
		rec.Command,
		rec.Range.BaseRef,
		rec.Range.HeadRef,
		rec.Range.BaseHash,
		rec.Range.HeadHash,
		rec.Outcome,
		uint32(rec.Selected),
		uint32(rec.Fallbacks),
		uint32(rec.Violations),
		uint32(rec.Targets),
		uint32(rec.Errors),
		rec.StartedAt.UTC(),
		uint64(rec.Duration.Milliseconds()),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", rec.RunID, err)
	}
	return nil
}

// Close closes the session.
func (r *ClickHouseRecorder) Close() error {
	return r.session.Close()
}

// NoopRecorder is used when no ledger is configured.
type NoopRecorder struct{}

// Record implements domain.RunRecorder.
func (NoopRecorder) Record(_ context.Context, _ domain.RunRecord) error { return nil }

// Close implements domain.RunRecorder.
func (NoopRecorder) Close() error { return nil }
