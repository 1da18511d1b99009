package usecases

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

// CoverageGate checks that every changed production line was executed.
// It is a pure function of its inputs: no retries, no blocking.
type CoverageGate struct {
	exclude []glob.Glob
	logger  Logger
}

// NewCoverageGate creates a gate. Files matching any exclude pattern are exempt;
// patterns use '/' as separator and support '**'.
func NewCoverageGate(exclude []string, log Logger) (*CoverageGate, error) {
	g := &CoverageGate{logger: log}
	for _, pattern := range exclude {
		compiled, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid coverage exclude pattern %q: %w", pattern, err)
		}
		g.exclude = append(g.exclude, compiled)
	}
	return g, nil
}

// Verify evaluates changed production lines against report. Within a file that the
// report covers, lines the report omits are not instrumentable and are skipped; a
// production file missing from the report entirely has every changed line flagged.
func (g *CoverageGate) Verify(ctx context.Context, files []domain.ChangedFile, report domain.CoverageReport) *domain.GateResult {
	result := &domain.GateResult{Violations: []domain.Violation{}}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		if f.Kind != domain.ChangeDeleted {
			paths = append(paths, f.Path)
		}
	}
	index := newReportIndex(report, paths)

	for _, f := range files {
		if f.Role != domain.RoleProduction || f.Kind == domain.ChangeDeleted || len(f.Ranges) == 0 {
			continue
		}
		if g.excluded(f.Path) {
			g.logger.Debug(ctx, "file excluded from coverage gate", map[string]interface{}{
				"file": f.Path,
			})
			continue
		}

		hits, found := index.lookup(f.Path)
		for _, r := range f.Ranges {
			for line := r.Start; line <= r.End; line++ {
				if !found {
					result.CheckedLines++
					result.Violations = append(result.Violations, domain.Violation{
						File: f.Path, Line: line, Reason: domain.LineMissingFromReport,
					})
					continue
				}
				h, instrumented := hits[line]
				if !instrumented {
					continue
				}
				result.CheckedLines++
				if h < 1 {
					result.Violations = append(result.Violations, domain.Violation{
						File: f.Path, Line: line, Reason: domain.LineNotHit,
					})
				}
			}
		}
	}

	sort.SliceStable(result.Violations, func(i, j int) bool {
		a, b := result.Violations[i], result.Violations[j]
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Line < b.Line
	})
	result.OK = len(result.Violations) == 0

	fields := map[string]interface{}{
		"checked_lines": result.CheckedLines,
		"violations":    len(result.Violations),
		"ok":            result.OK,
	}
	if result.OK {
		g.logger.Info(ctx, "coverage gate passed", fields)
	} else {
		g.logger.Warn(ctx, "coverage gate failed", fields)
	}
	return result
}

func (g *CoverageGate) excluded(path string) bool {
	for _, pattern := range g.exclude {
		if pattern.Match(path) {
			return true
		}
	}
	return false
}

// reportIndex resolves repository paths to report entries. Reports often carry paths
// rooted elsewhere (build agent checkouts), so a unique suffix match is accepted when
// no exact match exists. A report entry reached by suffix from more than one changed
// path belongs to none of them.
type reportIndex struct {
	report   domain.CoverageReport
	resolved map[string]string
}

func newReportIndex(report domain.CoverageReport, paths []string) *reportIndex {
	keys := make([]string, 0, len(report))
	for k := range report {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ix := &reportIndex{report: report, resolved: make(map[string]string, len(paths))}
	claims := make(map[string]int)
	for _, p := range paths {
		if _, seen := ix.resolved[p]; seen {
			continue
		}
		key, ok := matchKey(report, keys, p)
		if !ok {
			continue
		}
		ix.resolved[p] = key
		claims[key]++
	}

	for p, key := range ix.resolved {
		if key != p && claims[key] > 1 {
			delete(ix.resolved, p)
		}
	}
	return ix
}

// matchKey finds the report key for path: an exact key, or the only key that is a
// path-segment suffix of path (or has path as one).
func matchKey(report domain.CoverageReport, keys []string, path string) (string, bool) {
	if _, ok := report[path]; ok {
		return path, true
	}

	match := ""
	for _, k := range keys {
		if strings.HasSuffix(k, "/"+path) || strings.HasSuffix(path, "/"+k) {
			if match != "" {
				// Ambiguous: fail closed.
				return "", false
			}
			match = k
		}
	}
	return match, match != ""
}

func (ix *reportIndex) lookup(path string) (map[int]int, bool) {
	key, ok := ix.resolved[path]
	if !ok {
		return nil, false
	}
	return hitsByLine(ix.report[key]), true
}

func hitsByLine(records []domain.LineRecord) map[int]int {
	hits := make(map[int]int, len(records))
	for _, r := range records {
		hits[r.Line] += r.Hits
	}
	return hits
}
