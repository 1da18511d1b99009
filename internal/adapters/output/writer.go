// Package output provides adapters for writing application output.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

// Format selects how results are rendered.
type Format string

// Output formats.
const (
	FormatJSON   Format = "json"
	FormatTable  Format = "table"
	FormatFilter Format = "filter"
)

// ParseFormat validates a --format value. An empty value means FormatJSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatTable, FormatFilter:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want %s, %s or %s)", s, FormatJSON, FormatTable, FormatFilter)
	}
}

// Writer renders results to the configured output destination.
// The filter format only applies to test selections; other results fall back to JSON.
type Writer struct {
	out    io.Writer
	format Format
}

// NewWriterWithOutput creates a Writer that renders format to out.
func NewWriterWithOutput(out io.Writer, format Format) *Writer {
	return &Writer{out: out, format: format}
}

// WriteSelection writes a test selection.
func (w *Writer) WriteSelection(sel *domain.Selection) error {
	switch w.format {
	case FormatTable:
		return w.selectionTable(sel)
	case FormatFilter:
		return w.selectionFilters(sel)
	default:
		return w.writeJSON(sel)
	}
}

// WriteGateResult writes a coverage gate verdict.
func (w *Writer) WriteGateResult(res *domain.GateResult) error {
	if w.format != FormatTable {
		return w.writeJSON(res)
	}

	table := w.newTable([]string{"File", "Line", "Reason"})
	for _, v := range res.Violations {
		table.Append([]string{v.File, fmt.Sprintf("%d", v.Line), string(v.Reason)})
	}
	verdict := "PASS"
	if !res.OK {
		verdict = "FAIL"
	}
	table.SetFooter([]string{verdict, fmt.Sprintf("%d checked", res.CheckedLines), fmt.Sprintf("%d violations", len(res.Violations))})
	table.Render()
	return nil
}

// resolutionJSON is the wire form of a resolution; errors are flattened so machines can
// branch on their kind.
type resolutionJSON struct {
	OK      bool                      `json:"ok"`
	Targets []domain.DeploymentTarget `json:"targets"`
	Errors  []resolutionErrorJSON     `json:"errors"`
}

type resolutionErrorJSON struct {
	Kind        string `json:"kind"`
	ProjectPath string `json:"projectPath,omitempty"`
	Message     string `json:"message"`
}

// WriteResolution writes deployment targets and accumulated errors.
func (w *Writer) WriteResolution(res *domain.Resolution) error {
	if w.format == FormatTable {
		return w.resolutionTable(res)
	}

	return w.writeJSON(toResolutionJSON(res))
}

type planJSON struct {
	Selection  *domain.Selection `json:"selection"`
	Deployment resolutionJSON    `json:"deployment"`
}

// WritePlan writes a selection followed by a resolution. The filter format writes the
// selection only.
func (w *Writer) WritePlan(sel *domain.Selection, res *domain.Resolution) error {
	switch w.format {
	case FormatFilter:
		return w.selectionFilters(sel)
	case FormatTable:
		if err := w.selectionTable(sel); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w.out); err != nil {
			return err
		}
		return w.resolutionTable(res)
	default:
		return w.writeJSON(planJSON{Selection: sel, Deployment: toResolutionJSON(res)})
	}
}

func toResolutionJSON(res *domain.Resolution) resolutionJSON {
	out := resolutionJSON{
		OK:      res.OK(),
		Targets: res.Targets,
		Errors:  make([]resolutionErrorJSON, 0, len(res.Errors)),
	}
	if out.Targets == nil {
		out.Targets = []domain.DeploymentTarget{}
	}
	for _, err := range res.Errors {
		out.Errors = append(out.Errors, describeError(err))
	}
	return out
}

func describeError(err error) resolutionErrorJSON {
	var unmapped *domain.UnmappedProjectError
	var mismatch *domain.TypeMismatchError
	switch {
	case errors.As(err, &unmapped):
		return resolutionErrorJSON{Kind: "unmappedProject", ProjectPath: unmapped.ProjectPath, Message: err.Error()}
	case errors.As(err, &mismatch):
		return resolutionErrorJSON{Kind: "typeMismatch", ProjectPath: mismatch.ProjectPath, Message: err.Error()}
	default:
		return resolutionErrorJSON{Kind: "error", Message: err.Error()}
	}
}

func (w *Writer) resolutionTable(res *domain.Resolution) error {
	table := w.newTable([]string{"Project", "Type", "Resource Group", "App", "Slot", "Package"})
	for _, t := range res.Targets {
		table.Append([]string{t.ProjectPath, string(t.Type), t.ResourceGroup, t.AppName, t.Slot, t.PackagePath})
	}
	table.Render()

	for _, err := range res.Errors {
		if _, werr := fmt.Fprintf(w.out, "error: %s\n", err); werr != nil {
			return werr
		}
	}
	return nil
}

func (w *Writer) selectionTable(sel *domain.Selection) error {
	table := w.newTable([]string{"Project", "Class", "Method"})
	for _, c := range sel.ExplicitTestCases {
		table.Append([]string{c.ProjectPath, c.FullyQualifiedClass(), c.MethodName})
	}
	for _, p := range sel.WholeProjectFallbacks {
		table.Append([]string{p, "*", "*"})
	}
	table.SetFooter([]string{"", fmt.Sprintf("%d cases", len(sel.ExplicitTestCases)), fmt.Sprintf("%d fallbacks", len(sel.WholeProjectFallbacks))})
	table.Render()
	return nil
}

// selectionFilters writes one line per test project: the project path, a tab and the
// dotnet test --filter expression. Whole-project fallbacks have no expression.
func (w *Writer) selectionFilters(sel *domain.Selection) error {
	exprs := make(map[string][]string)
	for _, c := range sel.ExplicitTestCases {
		exprs[c.ProjectPath] = append(exprs[c.ProjectPath], FilterExpression(c))
	}
	for _, p := range sel.WholeProjectFallbacks {
		exprs[p] = nil
	}

	projects := make([]string, 0, len(exprs))
	for p := range exprs {
		projects = append(projects, p)
	}
	sort.Strings(projects)

	for _, p := range projects {
		line := p
		if clauses := exprs[p]; len(clauses) > 0 {
			line += "\t" + strings.Join(clauses, "|")
		}
		if _, err := fmt.Fprintln(w.out, line); err != nil {
			return err
		}
	}
	return nil
}

// FilterExpression renders one test case as a dotnet test --filter clause. Classes match
// by prefix with a trailing dot so Foo does not also select FooBar.
func FilterExpression(c domain.TestCase) string {
	fqcn := c.FullyQualifiedClass()
	if c.MethodName == "" {
		return "FullyQualifiedName~" + fqcn + "."
	}
	return "FullyQualifiedName=" + fqcn + "." + c.MethodName
}

func (w *Writer) newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w.out)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	return table
}

func (w *Writer) writeJSON(v interface{}) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
