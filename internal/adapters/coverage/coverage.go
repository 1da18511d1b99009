// Package coverage adapts external line-coverage report formats into domain.CoverageReport.
package coverage

import (
	"bytes"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

// Format names accepted by NewParser.
const (
	FormatAuto      = "auto"
	FormatCobertura = "cobertura"
	FormatLCOV      = "lcov"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// NewParser returns the parser for format. An empty format or FormatAuto sniffs the
// content. prefixes are stripped from report paths, e.g. the build agent's checkout root.
func NewParser(format string, prefixes []string) (domain.CoverageParser, error) {
	switch strings.ToLower(format) {
	case "", FormatAuto:
		return &AutoParser{prefixes: prefixes}, nil
	case FormatCobertura:
		return NewCoberturaParser(prefixes), nil
	case FormatLCOV:
		return NewLCOVParser(prefixes), nil
	default:
		return nil, fmt.Errorf("unsupported coverage report format %q (want %s, %s or %s)",
			format, FormatAuto, FormatCobertura, FormatLCOV)
	}
}

// AutoParser picks Cobertura or LCOV by looking at the start of the content.
type AutoParser struct {
	prefixes []string
}

// Parse implements domain.CoverageParser.
func (p *AutoParser) Parse(content []byte) (domain.CoverageReport, error) {
	switch Detect(content) {
	case FormatCobertura:
		return NewCoberturaParser(p.prefixes).Parse(content)
	case FormatLCOV:
		return NewLCOVParser(p.prefixes).Parse(content)
	default:
		return nil, fmt.Errorf("%w: unrecognized report format", domain.ErrMalformedCoverageReport)
	}
}

// Detect returns FormatCobertura, FormatLCOV, or an empty string when neither matches.
func Detect(content []byte) string {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(content, utf8BOM))
	switch {
	case bytes.HasPrefix(trimmed, []byte("<")):
		return FormatCobertura
	case bytes.HasPrefix(trimmed, []byte("TN:")), bytes.HasPrefix(trimmed, []byte("SF:")):
		return FormatLCOV
	}
	return ""
}

// normalizePath converts a report path to forward slashes and strips the first
// matching prefix.
func normalizePath(p string, prefixes []string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	for _, prefix := range prefixes {
		prefix = strings.TrimSuffix(strings.ReplaceAll(prefix, `\`, "/"), "/")
		if prefix != "" && strings.HasPrefix(p, prefix+"/") {
			p = p[len(prefix)+1:]
			break
		}
	}
	return path.Clean(p)
}

func isAbsolute(p string) bool {
	if strings.HasPrefix(p, "/") {
		return true
	}
	// Windows drive letter, e.g. C:/agent/_work.
	return len(p) >= 3 && p[1] == ':' && p[2] == '/'
}

// hitAccumulator merges records for the same file and line by summing hits.
type hitAccumulator map[string]map[int]int

func (a hitAccumulator) add(file string, line, hits int) {
	lines, ok := a[file]
	if !ok {
		lines = make(map[int]int)
		a[file] = lines
	}
	lines[line] += hits
}

// touch registers a file that may have no instrumented lines.
func (a hitAccumulator) touch(file string) {
	if _, ok := a[file]; !ok {
		a[file] = make(map[int]int)
	}
}

func (a hitAccumulator) report() domain.CoverageReport {
	report := make(domain.CoverageReport, len(a))
	for file, lines := range a {
		records := make([]domain.LineRecord, 0, len(lines))
		for line, hits := range lines {
			records = append(records, domain.LineRecord{Line: line, Hits: hits})
		}
		sort.Slice(records, func(i, j int) bool { return records[i].Line < records[j].Line })
		report[file] = records
	}
	return report
}
