package coverage

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

// CoberturaParser reads Cobertura XML as written by coverlet and ReportGenerator.
// Only class-level <lines> are read; method-level lines repeat them.
type CoberturaParser struct {
	prefixes []string
}

// NewCoberturaParser creates a CoberturaParser.
func NewCoberturaParser(prefixes []string) *CoberturaParser {
	return &CoberturaParser{prefixes: prefixes}
}

type coberturaXML struct {
	XMLName  xml.Name     `xml:"coverage"`
	Sources  []string     `xml:"sources>source"`
	Packages []packageXML `xml:"packages>package"`
}

type packageXML struct {
	Classes []classXML `xml:"classes>class"`
}

type classXML struct {
	Filename string    `xml:"filename,attr"`
	Lines    []lineXML `xml:"lines>line"`
}

type lineXML struct {
	Number string `xml:"number,attr"`
	Hits   string `xml:"hits,attr"`
}

// Parse implements domain.CoverageParser.
func (p *CoberturaParser) Parse(content []byte) (domain.CoverageReport, error) {
	var doc coberturaXML
	dec := xml.NewDecoder(bytes.NewReader(bytes.TrimPrefix(content, utf8BOM)))
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedCoverageReport, err)
	}

	// A single source root is where every relative filename lives. With several roots the
	// owner is ambiguous, so filenames stay relative and are matched by suffix.
	root := ""
	if len(doc.Sources) == 1 {
		root = strings.ReplaceAll(strings.TrimSpace(doc.Sources[0]), `\`, "/")
	}

	acc := make(hitAccumulator)
	for _, pkg := range doc.Packages {
		for _, cls := range pkg.Classes {
			if strings.TrimSpace(cls.Filename) == "" {
				return nil, fmt.Errorf("%w: class without filename", domain.ErrMalformedCoverageReport)
			}
			file := strings.ReplaceAll(strings.TrimSpace(cls.Filename), `\`, "/")
			if root != "" && !isAbsolute(file) {
				file = path.Join(root, file)
			}
			file = normalizePath(file, p.prefixes)
			acc.touch(file)

			for _, l := range cls.Lines {
				number, err := strconv.Atoi(strings.TrimSpace(l.Number))
				if err != nil || number < 1 {
					return nil, fmt.Errorf("%w: %s: invalid line number %q",
						domain.ErrMalformedCoverageReport, file, l.Number)
				}
				hits, err := strconv.Atoi(strings.TrimSpace(l.Hits))
				if err != nil || hits < 0 {
					return nil, fmt.Errorf("%w: %s:%d: invalid hit count %q",
						domain.ErrMalformedCoverageReport, file, number, l.Hits)
				}
				acc.add(file, number, hits)
			}
		}
	}

	return acc.report(), nil
}
