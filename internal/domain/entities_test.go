package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineRange(t *testing.T) {
	r := LineRange{Start: 5, End: 7}

	assert.True(t, r.Contains(5))
	assert.True(t, r.Contains(7))
	assert.False(t, r.Contains(8))

	assert.True(t, r.Overlaps(LineRange{Start: 7, End: 9}))
	assert.True(t, r.Overlaps(LineRange{Start: 1, End: 20}))
	assert.False(t, r.Overlaps(LineRange{Start: 8, End: 9}))
	assert.Equal(t, "5-7", r.String())
}

func TestChangedFile_Touches(t *testing.T) {
	f := ChangedFile{Ranges: []LineRange{{Start: 2, End: 2}, {Start: 10, End: 12}}}

	assert.True(t, f.Touches(LineRange{Start: 1, End: 3}))
	assert.True(t, f.Touches(LineRange{Start: 12, End: 30}))
	assert.False(t, f.Touches(LineRange{Start: 3, End: 9}))
	assert.False(t, ChangedFile{}.Touches(LineRange{Start: 1, End: 100}))
}

func TestRevisionRange_String(t *testing.T) {
	assert.Equal(t, "main..HEAD", RevisionRange{BaseRef: "main", HeadRef: "HEAD"}.String())
	assert.Equal(t, "aaa..bbb", RevisionRange{BaseRef: "main", HeadRef: "HEAD", BaseHash: "aaa", HeadHash: "bbb"}.String())
}

func TestTestCase_FullyQualifiedClass(t *testing.T) {
	assert.Equal(t, "Contoso.Foo.Tests.BarTests",
		TestCase{Namespace: "Contoso.Foo.Tests", ClassName: "BarTests"}.FullyQualifiedClass())
	assert.Equal(t, "BarTests", TestCase{ClassName: "BarTests"}.FullyQualifiedClass())
}

func TestDeploymentMap(t *testing.T) {
	m := NewDeploymentMap([]DeploymentMapEntry{
		{ProjectPath: "src/Api/Api.csproj", Type: DeployAppService, AppName: "api"},
		{ProjectPath: "src/Jobs/Jobs.csproj", Type: DeployFunctionApp, AppName: "jobs", Slot: "staging"},
	})

	api, ok := m.Lookup("src/Api/Api.csproj")
	assert.True(t, ok)
	assert.Equal(t, DefaultSlot, api.Slot)

	jobs, _ := m.Lookup("src/Jobs/Jobs.csproj")
	assert.Equal(t, "staging", jobs.Slot)

	_, ok = m.Lookup("src/api/Api.csproj")
	assert.False(t, ok, "lookup is an exact path match")
	assert.Equal(t, 2, m.Len())

	var empty *DeploymentMap
	_, ok = empty.Lookup("src/Api/Api.csproj")
	assert.False(t, ok)
	assert.Zero(t, empty.Len())
}

func TestIsTestAttribute(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{name: "Fact", want: true},
		{name: "Theory", want: true},
		{name: "Xunit.FactAttribute", want: true},
		{name: "TestMethod", want: true},
		{name: "NUnit.Framework.TestCaseSource", want: true},
		{name: "TestFixture", want: true},
		{name: "InlineData", want: false},
		{name: "Obsolete", want: false},
		{name: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTestAttribute(tt.name))
		})
	}

	assert.True(t, HasTestAttribute([]string{"InlineData", "Theory"}))
	assert.False(t, HasTestAttribute(nil))
}

func TestTypeDecl_TestMethods(t *testing.T) {
	decl := TypeDecl{Members: []SourceSpan{
		{Name: "Setup"},
		{Name: "Adds", Attributes: []string{"Fact"}},
		{Name: "Parses", Attributes: []string{"Theory", "InlineData"}},
	}}

	var names []string
	for _, m := range decl.TestMethods() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"Adds", "Parses"}, names)
}

func TestErrorKinds(t *testing.T) {
	unmapped := fmt.Errorf("resolve: %w", &UnmappedProjectError{ProjectPath: "src/Contoso.Api/Contoso.Api.csproj"})
	assert.ErrorIs(t, unmapped, ErrUnmappedProject)
	assert.NotErrorIs(t, unmapped, ErrTypeMismatch)
	assert.Contains(t, unmapped.Error(), "src/Contoso.Api/Contoso.Api.csproj")

	mismatch := &TypeMismatchError{
		ProjectPath: "src/Contoso.Api/Contoso.Api.csproj",
		SDK:         SDKWeb,
		Declared:    DeployFunctionApp,
		Expected:    DeployAppService,
	}
	assert.ErrorIs(t, mismatch, ErrTypeMismatch)
	assert.Contains(t, mismatch.Error(), "declares functionApp but SDK Web implies appService")

	violation := &CoverageViolationError{Violations: make([]Violation, 3)}
	assert.ErrorIs(t, violation, ErrCoverageViolation)
	assert.Contains(t, violation.Error(), "3 changed line(s)")

	joined := errors.Join(unmapped, mismatch)
	assert.ErrorIs(t, joined, ErrUnmappedProject)
	assert.ErrorIs(t, joined, ErrTypeMismatch)
}
