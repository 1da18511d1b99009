package usecases

import (
	"bytes"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

// LineRanges computes the head-revision line ranges that differ from base using a
// line-mode Myers diff. Pure deletions have no head lines and produce no range.
func LineRanges(base, head string) []domain.LineRange {
	if base == head {
		return nil
	}

	dmp := diffmatchpatch.New()
	// A zero timeout makes the diff exhaustive, so the result depends only on the inputs.
	dmp.DiffTimeout = 0

	baseChars, headChars, lines := dmp.DiffLinesToChars(base, head)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(baseChars, headChars, false), lines)

	var ranges []domain.LineRange
	headLine := 0
	for _, d := range diffs {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			headLine += n
		case diffmatchpatch.DiffInsert:
			if n > 0 {
				ranges = append(ranges, domain.LineRange{Start: headLine + 1, End: headLine + n})
			}
			headLine += n
		}
	}

	return NormalizeRanges(ranges)
}

// WholeFile returns a single range covering every line of content, or nil when empty.
func WholeFile(content string) []domain.LineRange {
	n := countLines(content)
	if n == 0 {
		return nil
	}
	return []domain.LineRange{{Start: 1, End: n}}
}

// NormalizeRanges sorts ranges and merges overlapping or adjacent ones so the result
// is disjoint and ascending.
func NormalizeRanges(ranges []domain.LineRange) []domain.LineRange {
	if len(ranges) == 0 {
		return nil
	}

	sorted := make([]domain.LineRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	merged := []domain.LineRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// countLines counts lines the way an editor numbers them: a trailing line without a
// newline still counts.
func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}

// isBinary applies git's heuristic: a NUL byte in the first 8000 bytes.
func isBinary(content []byte) bool {
	head := content
	if len(head) > 8000 {
		head = head[:8000]
	}
	return bytes.IndexByte(head, 0) >= 0
}
