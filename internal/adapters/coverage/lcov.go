package coverage

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

// maxLCOVLine bounds a single tracefile line; checksummed DA records stay far below it.
const maxLCOVLine = 1024 * 1024

// LCOVParser reads LCOV tracefiles. Only SF and DA records matter; function and branch
// records are ignored.
type LCOVParser struct {
	prefixes []string
}

// NewLCOVParser creates an LCOVParser.
func NewLCOVParser(prefixes []string) *LCOVParser {
	return &LCOVParser{prefixes: prefixes}
}

// Parse implements domain.CoverageParser.
func (p *LCOVParser) Parse(content []byte) (domain.CoverageReport, error) {
	scanner := bufio.NewScanner(bytes.NewReader(bytes.TrimPrefix(content, utf8BOM)))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLCOVLine)

	acc := make(hitAccumulator)
	current := ""
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "end_of_record" {
			current = ""
			continue
		}

		tag, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: not an lcov record", domain.ErrMalformedCoverageReport, lineNo)
		}

		switch tag {
		case "SF":
			current = normalizePath(value, p.prefixes)
			acc.touch(current)
		case "DA":
			if current == "" {
				return nil, fmt.Errorf("%w: line %d: DA outside a source file record",
					domain.ErrMalformedCoverageReport, lineNo)
			}
			number, hits, err := parseDA(value)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %w", domain.ErrMalformedCoverageReport, lineNo, err)
			}
			acc.add(current, number, hits)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedCoverageReport, err)
	}

	return acc.report(), nil
}

// parseDA reads "<line>,<hits>[,<checksum>]".
func parseDA(value string) (int, int, error) {
	fields := strings.Split(value, ",")
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("DA record %q needs a line and a hit count", value)
	}
	number, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil || number < 1 {
		return 0, 0, fmt.Errorf("invalid line number %q", fields[0])
	}
	hits, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hit count %q", fields[1])
	}
	// Some generators emit -1 for lines they could not attribute.
	if hits < 0 {
		hits = 0
	}
	return number, hits, nil
}
