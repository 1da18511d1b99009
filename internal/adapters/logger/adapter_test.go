package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	level  string
	msg    string
	err    error
	fields map[string]any
}

// recordingLogger implements Logger and keeps every entry.
type recordingLogger struct {
	entries []entry
}

func (r *recordingLogger) Info(_ context.Context, msg string, fields map[string]any) {
	r.entries = append(r.entries, entry{level: "info", msg: msg, fields: fields})
}

func (r *recordingLogger) Debug(_ context.Context, msg string, fields map[string]any) {
	r.entries = append(r.entries, entry{level: "debug", msg: msg, fields: fields})
}

func (r *recordingLogger) Warn(_ context.Context, msg string, fields map[string]any) {
	r.entries = append(r.entries, entry{level: "warn", msg: msg, fields: fields})
}

func (r *recordingLogger) Error(_ context.Context, msg string, err error, fields map[string]any) {
	r.entries = append(r.entries, entry{level: "error", msg: msg, err: err, fields: fields})
}

func (r *recordingLogger) last(t *testing.T) entry {
	t.Helper()
	require.NotEmpty(t, r.entries)
	return r.entries[len(r.entries)-1]
}

func TestZapAdapter_Levels(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		log  func(a *ZapAdapter)
		want entry
	}{
		{
			name: "info",
			log: func(a *ZapAdapter) {
				a.Info(ctx, "computed diff", map[string]any{"changed_files": 4})
			},
			want: entry{level: "info", msg: "computed diff", fields: map[string]any{"changed_files": 4}},
		},
		{
			name: "debug",
			log: func(a *ZapAdapter) {
				a.Debug(ctx, "built project graph", map[string]any{"projects": 7})
			},
			want: entry{level: "debug", msg: "built project graph", fields: map[string]any{"projects": 7}},
		},
		{
			name: "warn",
			log: func(a *ZapAdapter) {
				a.Warn(ctx, "coverage gate failed", map[string]any{"violations": 1})
			},
			want: entry{level: "warn", msg: "coverage gate failed", fields: map[string]any{"violations": 1}},
		},
		{
			name: "error",
			log: func(a *ZapAdapter) {
				a.Error(ctx, "changed project has no deployment map entry", assert.AnError,
					map[string]any{"project": "src/Contoso.Api/Contoso.Api.csproj"})
			},
			want: entry{
				level:  "error",
				msg:    "changed project has no deployment map entry",
				err:    assert.AnError,
				fields: map[string]any{"project": "src/Contoso.Api/Contoso.Api.csproj"},
			},
		},
		{
			name: "nil fields pass through",
			log: func(a *ZapAdapter) {
				a.Info(ctx, "starting changegate", nil)
			},
			want: entry{level: "info", msg: "starting changegate"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingLogger{}
			tt.log(NewZapAdapter(rec))
			assert.Equal(t, tt.want, rec.last(t))
		})
	}
}

func TestZapAdapter_WithFields(t *testing.T) {
	rec := &recordingLogger{}
	base := NewZapAdapter(rec)
	ctx := context.Background()

	run := base.WithFields(map[string]any{"run_id": "r-1", "command": "select-tests"})
	run.Info(ctx, "selected tests", map[string]any{"explicit_cases": 2, "command": "override"})

	assert.Equal(t, map[string]any{
		"run_id":         "r-1",
		"command":        "override",
		"explicit_cases": 2,
	}, rec.last(t).fields)

	// The base adapter is unchanged.
	base.Warn(ctx, "plain", nil)
	assert.Nil(t, rec.last(t).fields)
}

func TestZapAdapter_WithFields_Chained(t *testing.T) {
	rec := &recordingLogger{}
	ctx := context.Background()

	run := NewZapAdapter(rec).
		WithFields(map[string]any{"run_id": "r-2"}).
		WithFields(map[string]any{"range": "abc..def"})

	run.Error(ctx, "failed", assert.AnError, nil)

	got := rec.last(t)
	assert.Equal(t, "error", got.level)
	assert.Equal(t, map[string]any{"run_id": "r-2", "range": "abc..def"}, got.fields)

	run.Debug(ctx, "debug", map[string]any{"file": "a.cs"})
	assert.Equal(t, map[string]any{"run_id": "r-2", "range": "abc..def", "file": "a.cs"}, rec.last(t).fields)
}

func TestZapAdapter_WithFields_DoesNotAliasCallerMap(t *testing.T) {
	rec := &recordingLogger{}
	fields := map[string]any{"run_id": "r-3"}

	run := NewZapAdapter(rec).WithFields(fields)
	fields["run_id"] = "mutated"
	run.Info(context.Background(), "complete", nil)

	assert.Equal(t, map[string]any{"run_id": "r-3"}, rec.last(t).fields)
}
