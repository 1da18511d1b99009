package usecases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

func prod(path string, ranges ...domain.LineRange) domain.ChangedFile {
	return domain.ChangedFile{Path: path, Kind: domain.ChangeModified, Ranges: ranges, Role: domain.RoleProduction}
}

func newTestGate(t *testing.T, exclude ...string) *CoverageGate {
	t.Helper()
	g, err := NewCoverageGate(exclude, &mockLogger{})
	require.NoError(t, err)
	return g
}

func TestCoverageGate_UncoveredBranch(t *testing.T) {
	report := domain.CoverageReport{
		"src/Foo/Foo.cs": {
			{Line: 3, Hits: 4},
			{Line: 5, Hits: 2},
			{Line: 6, Hits: 0},
			{Line: 7, Hits: 2},
		},
	}

	res := newTestGate(t).Verify(context.Background(), []domain.ChangedFile{prod("src/Foo/Foo.cs", span(5, 7))}, report)

	assert.False(t, res.OK)
	assert.Equal(t, []domain.Violation{{File: "src/Foo/Foo.cs", Line: 6, Reason: domain.LineNotHit}}, res.Violations)
	assert.Equal(t, 3, res.CheckedLines)
}

func TestCoverageGate_Verify(t *testing.T) {
	report := domain.CoverageReport{
		"src/Foo/Foo.cs": {{Line: 1, Hits: 1}, {Line: 2, Hits: 1}, {Line: 4, Hits: 3}},
		"src/Foo/Bar.cs": {{Line: 10, Hits: 0}, {Line: 11, Hits: 0}},
	}

	tests := []struct {
		name        string
		files       []domain.ChangedFile
		wantOK      bool
		wantChecked int
		want        []domain.Violation
	}{
		{
			name:        "all changed lines covered",
			files:       []domain.ChangedFile{prod("src/Foo/Foo.cs", span(1, 2))},
			wantOK:      true,
			wantChecked: 2,
			want:        []domain.Violation{},
		},
		{
			name:        "lines absent from a covered file are not instrumentable",
			files:       []domain.ChangedFile{prod("src/Foo/Foo.cs", span(2, 5))},
			wantOK:      true,
			wantChecked: 2,
			want:        []domain.Violation{},
		},
		{
			name:        "file missing from report",
			files:       []domain.ChangedFile{prod("src/Foo/Baz.cs", span(3, 4))},
			wantChecked: 2,
			want: []domain.Violation{
				{File: "src/Foo/Baz.cs", Line: 3, Reason: domain.LineMissingFromReport},
				{File: "src/Foo/Baz.cs", Line: 4, Reason: domain.LineMissingFromReport},
			},
		},
		{
			name: "violations sorted by file then line",
			files: []domain.ChangedFile{
				prod("src/Foo/Foo.cs", span(1, 1)),
				prod("src/Foo/Bar.cs", span(11, 11), span(10, 10)),
			},
			wantChecked: 3,
			want: []domain.Violation{
				{File: "src/Foo/Bar.cs", Line: 10, Reason: domain.LineNotHit},
				{File: "src/Foo/Bar.cs", Line: 11, Reason: domain.LineNotHit},
			},
		},
		{
			name: "test and other files are exempt",
			files: []domain.ChangedFile{
				{Path: "tests/FooTests/FooTests.cs", Kind: domain.ChangeModified, Ranges: []domain.LineRange{span(1, 9)}, Role: domain.RoleTest},
				{Path: "src/Foo/appsettings.json", Kind: domain.ChangeModified, Ranges: []domain.LineRange{span(1, 9)}, Role: domain.RoleOther},
			},
			wantOK: true,
			want:   []domain.Violation{},
		},
		{
			name: "deleted and opaque files are exempt",
			files: []domain.ChangedFile{
				{Path: "src/Foo/Gone.cs", Kind: domain.ChangeDeleted, Role: domain.RoleProduction},
				{Path: "src/Foo/logo.cs", Kind: domain.ChangeModified, Opaque: true, Role: domain.RoleProduction},
			},
			wantOK: true,
			want:   []domain.Violation{},
		},
		{
			name:   "no changes",
			wantOK: true,
			want:   []domain.Violation{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestGate(t).Verify(context.Background(), tt.files, report)

			assert.Equal(t, tt.wantOK, res.OK)
			assert.Equal(t, tt.want, res.Violations)
			assert.Equal(t, tt.wantChecked, res.CheckedLines)
		})
	}
}

func TestCoverageGate_SuffixMatching(t *testing.T) {
	tests := []struct {
		name   string
		report domain.CoverageReport
		wantOK bool
	}{
		{
			name:   "report rooted at the build agent checkout",
			report: domain.CoverageReport{"/home/runner/work/repo/repo/src/Foo/Foo.cs": {{Line: 2, Hits: 1}}},
			wantOK: true,
		},
		{
			name:   "report relative to the project directory",
			report: domain.CoverageReport{"Foo/Foo.cs": {{Line: 2, Hits: 1}}},
			wantOK: true,
		},
		{
			name: "ambiguous suffix fails closed",
			report: domain.CoverageReport{
				"/a/src/Foo/Foo.cs": {{Line: 2, Hits: 1}},
				"/b/src/Foo/Foo.cs": {{Line: 2, Hits: 1}},
			},
			wantOK: false,
		},
		{
			name:   "partial segment does not match",
			report: domain.CoverageReport{"/a/xsrc/Foo/Foo.cs": {{Line: 2, Hits: 1}}, "oo/Foo.cs": {{Line: 2, Hits: 1}}},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestGate(t).Verify(context.Background(), []domain.ChangedFile{prod("src/Foo/Foo.cs", span(2, 2))}, tt.report)
			assert.Equal(t, tt.wantOK, res.OK)
		})
	}
}

func TestCoverageGate_ReportKeySharedByChangedFiles(t *testing.T) {
	report := domain.CoverageReport{"Services/Foo.cs": {{Line: 5, Hits: 1}}}

	t.Run("suffix claimants both fail closed", func(t *testing.T) {
		files := []domain.ChangedFile{
			prod("src/B/Services/Foo.cs", span(5, 5)),
			prod("src/A/Services/Foo.cs", span(5, 5)),
		}

		res := newTestGate(t).Verify(context.Background(), files, report)

		assert.False(t, res.OK)
		assert.Equal(t, []domain.Violation{
			{File: "src/A/Services/Foo.cs", Line: 5, Reason: domain.LineMissingFromReport},
			{File: "src/B/Services/Foo.cs", Line: 5, Reason: domain.LineMissingFromReport},
		}, res.Violations)
	})

	t.Run("exact path keeps its entry", func(t *testing.T) {
		files := []domain.ChangedFile{
			prod("Services/Foo.cs", span(5, 5)),
			prod("src/A/Services/Foo.cs", span(5, 5)),
		}

		res := newTestGate(t).Verify(context.Background(), files, report)

		assert.Equal(t, []domain.Violation{
			{File: "src/A/Services/Foo.cs", Line: 5, Reason: domain.LineMissingFromReport},
		}, res.Violations)
		assert.Equal(t, 2, res.CheckedLines)
	})

	t.Run("deleted file does not claim the entry", func(t *testing.T) {
		deleted := prod("src/B/Services/Foo.cs")
		deleted.Kind = domain.ChangeDeleted
		files := []domain.ChangedFile{deleted, prod("src/A/Services/Foo.cs", span(5, 5))}

		res := newTestGate(t).Verify(context.Background(), files, report)

		assert.True(t, res.OK)
	})
}

func TestCoverageGate_HitsSummedAcrossRecords(t *testing.T) {
	report := domain.CoverageReport{"src/Foo/Foo.cs": {{Line: 2, Hits: 0}, {Line: 2, Hits: 1}}}

	res := newTestGate(t).Verify(context.Background(), []domain.ChangedFile{prod("src/Foo/Foo.cs", span(2, 2))}, report)

	assert.True(t, res.OK)
}

func TestCoverageGate_Exclude(t *testing.T) {
	gate := newTestGate(t, "**/Migrations/**", "src/**/*.Designer.cs")
	files := []domain.ChangedFile{
		prod("src/Foo/Migrations/20240101_Init.cs", span(1, 50)),
		prod("src/Foo/Resources.Designer.cs", span(1, 10)),
		prod("src/Foo/Foo.cs", span(1, 1)),
	}

	res := gate.Verify(context.Background(), files, domain.CoverageReport{})

	assert.Equal(t, []domain.Violation{{File: "src/Foo/Foo.cs", Line: 1, Reason: domain.LineMissingFromReport}}, res.Violations)
}

func TestNewCoverageGate_InvalidPattern(t *testing.T) {
	_, err := NewCoverageGate([]string{"[unclosed"}, &mockLogger{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "[unclosed")
}

func TestCoverageGate_Deterministic(t *testing.T) {
	gate := newTestGate(t)
	files := []domain.ChangedFile{prod("src/B.cs", span(1, 3)), prod("src/A.cs", span(1, 3))}
	report := domain.CoverageReport{"src/A.cs": {{Line: 2, Hits: 0}}}

	first := gate.Verify(context.Background(), files, report)
	second := gate.Verify(context.Background(), files, report)

	assert.Equal(t, first, second)
	assert.Equal(t, "src/A.cs", first.Violations[0].File)
}
