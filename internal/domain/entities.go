// Package domain defines the core business entities and interfaces for changegate.
package domain

import "fmt"

// RevisionRange is the resolved pair of snapshots a run compares.
// BaseRef and HeadRef are what the caller supplied; BaseHash and HeadHash are the
// full commit identifiers they resolved to. The value is immutable once computed.
type RevisionRange struct {
	BaseRef  string `json:"baseRef"`
	HeadRef  string `json:"headRef"`
	BaseHash string `json:"baseHash"`
	HeadHash string `json:"headHash"`
}

// String renders the range as base..head using resolved hashes when available.
func (r RevisionRange) String() string {
	base, head := r.BaseHash, r.HeadHash
	if base == "" {
		base = r.BaseRef
	}
	if head == "" {
		head = r.HeadRef
	}
	return base + ".." + head
}

// ChangeKind classifies how a file differs between base and head.
type ChangeKind string

// Change kinds.
const (
	ChangeAdded    ChangeKind = "Added"
	ChangeModified ChangeKind = "Modified"
	ChangeDeleted  ChangeKind = "Deleted"
	ChangeRenamed  ChangeKind = "Renamed"
)

// FileRole is the result of the pluggable path predicate used by the diff analyzer.
type FileRole string

// File roles.
const (
	RoleProduction FileRole = "Production"
	RoleTest       FileRole = "Test"
	RoleOther      FileRole = "Other"
)

// LineRange is an inclusive, 1-based span of lines in the head revision.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether line falls inside the range.
func (r LineRange) Contains(line int) bool {
	return line >= r.Start && line <= r.End
}

// Overlaps reports whether the two ranges share at least one line.
func (r LineRange) Overlaps(other LineRange) bool {
	return r.Start <= other.End && other.Start <= r.End
}

func (r LineRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// ChangedFile is one entry of a computed diff.
type ChangedFile struct {
	// Path is the head path, or the base path for deleted files.
	Path string `json:"path"`

	// OldPath is the base path of a renamed file.
	OldPath string `json:"oldPath,omitempty"`

	Kind ChangeKind `json:"kind"`

	// Ranges are disjoint, sorted ascending and expressed in head line numbers.
	// Deleted and opaque files have none.
	Ranges []LineRange `json:"ranges,omitempty"`

	// Opaque is set for binary content, which has no line structure.
	Opaque bool `json:"opaque,omitempty"`

	Role FileRole `json:"role"`
}

// Touches reports whether any changed range overlaps span.
func (f ChangedFile) Touches(span LineRange) bool {
	for _, r := range f.Ranges {
		if r.Overlaps(span) {
			return true
		}
	}
	return false
}

// ProjectKind is the classification of a project unit.
type ProjectKind string

// Project kinds.
const (
	ProjectProduction ProjectKind = "Production"
	ProjectTest       ProjectKind = "Test"
)

// SDKKind is the deployable flavour inferred from a project manifest.
type SDKKind string

// SDK kinds.
const (
	SDKWeb      SDKKind = "Web"
	SDKFunction SDKKind = "Function"
	SDKLibrary  SDKKind = "Library"
	SDKUnknown  SDKKind = "Unknown"
)

// ManifestSignals are the only facts the engine reads from a project manifest.
type ManifestSignals struct {
	// IsTestProject is nil when the manifest does not declare the flag.
	IsTestProject *bool

	// SDK is the SDK identifier of the project, e.g. Microsoft.NET.Sdk.Web.
	SDK string

	// FunctionsVersion is set for Azure Functions projects.
	FunctionsVersion string

	// References are repository-relative manifest paths of referenced projects.
	References []string
}

// ProjectUnit is a buildable project discovered in the repository.
type ProjectUnit struct {
	// Path is the repository-relative manifest path.
	Path string `json:"path"`

	Kind ProjectKind `json:"kind"`
	SDK  SDKKind     `json:"sdk"`

	// Dir is the directory owning the project's files.
	Dir string `json:"-"`

	// IsNew is set when the project has no manifest at the base revision.
	IsNew bool `json:"isNew,omitempty"`

	// Deleted is set when the project has no manifest at the head revision.
	Deleted bool `json:"deleted,omitempty"`

	References []string `json:"references,omitempty"`
}

// TestCase identifies a unit of test execution. An empty MethodName runs the whole
// class; an empty ClassName runs the whole project.
type TestCase struct {
	ProjectPath string `json:"projectPath"`
	Namespace   string `json:"namespace,omitempty"`
	ClassName   string `json:"className,omitempty"`
	MethodName  string `json:"methodName,omitempty"`
}

// FullyQualifiedClass returns Namespace.ClassName, or ClassName without a namespace.
func (t TestCase) FullyQualifiedClass() string {
	if t.Namespace == "" {
		return t.ClassName
	}
	return t.Namespace + "." + t.ClassName
}

// Selection is the output of test selection.
type Selection struct {
	ExplicitTestCases     []TestCase `json:"explicitTestCases"`
	WholeProjectFallbacks []string   `json:"wholeProjectFallbacks"`
}

// Empty reports whether nothing was selected.
func (s *Selection) Empty() bool {
	return len(s.ExplicitTestCases) == 0 && len(s.WholeProjectFallbacks) == 0
}

// LineRecord is one line of a coverage report.
type LineRecord struct {
	Line int `json:"line"`
	Hits int `json:"hits"`
}

// CoverageReport maps a normalized file path to its line records.
type CoverageReport map[string][]LineRecord

// ViolationReason explains why a changed line failed the coverage gate.
type ViolationReason string

// Violation reasons.
const (
	LineMissingFromReport ViolationReason = "LineMissingFromReport"
	LineNotHit            ViolationReason = "LineNotHit"
)

// Violation is one uncovered changed line.
type Violation struct {
	File   string          `json:"file"`
	Line   int             `json:"line"`
	Reason ViolationReason `json:"reason"`
}

// GateResult is the verdict of the coverage gate.
type GateResult struct {
	OK         bool        `json:"ok"`
	Violations []Violation `json:"violations"`

	// CheckedLines counts changed lines that were evaluated.
	CheckedLines int `json:"checkedLines"`
}

// DeploymentType is the declared kind of a deployment target.
type DeploymentType string

// Deployment types.
const (
	DeployAppService  DeploymentType = "appService"
	DeployFunctionApp DeploymentType = "functionApp"
)

// DefaultSlot is used when a deployment map entry names no slot.
const DefaultSlot = "production"

// DeploymentMapEntry binds a project to a cloud target.
type DeploymentMapEntry struct {
	ProjectPath   string         `json:"path"`
	Type          DeploymentType `json:"type"`
	ResourceGroup string         `json:"resourceGroup"`
	AppName       string         `json:"appName"`
	Slot          string         `json:"slot"`
}

// DeploymentMap is the immutable lookup table of deployment entries, keyed by project path.
type DeploymentMap struct {
	entries map[string]DeploymentMapEntry
}

// NewDeploymentMap builds a map from validated entries. Later duplicates are rejected
// by the loader, so this constructor assumes unique paths.
func NewDeploymentMap(entries []DeploymentMapEntry) *DeploymentMap {
	m := &DeploymentMap{entries: make(map[string]DeploymentMapEntry, len(entries))}
	for _, e := range entries {
		if e.Slot == "" {
			e.Slot = DefaultSlot
		}
		m.entries[e.ProjectPath] = e
	}
	return m
}

// Lookup returns the entry for an exact project path.
func (m *DeploymentMap) Lookup(projectPath string) (DeploymentMapEntry, bool) {
	if m == nil {
		return DeploymentMapEntry{}, false
	}
	e, ok := m.entries[projectPath]
	return e, ok
}

// Len returns the number of entries.
func (m *DeploymentMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// DeploymentTarget pairs a changed project with its map entry.
type DeploymentTarget struct {
	ProjectPath   string         `json:"projectPath"`
	SDK           SDKKind        `json:"sdk"`
	Type          DeploymentType `json:"type"`
	ResourceGroup string         `json:"resourceGroup"`
	AppName       string         `json:"appName"`
	Slot          string         `json:"slot"`

	// PackagePath is filled once the external packager has produced an artifact.
	PackagePath string `json:"packagePath,omitempty"`
}

// Resolution is the output of deployment resolution.
type Resolution struct {
	Targets []DeploymentTarget `json:"targets"`
	Errors  []error            `json:"-"`
}

// OK reports whether resolution produced no errors.
func (r *Resolution) OK() bool {
	return len(r.Errors) == 0
}
