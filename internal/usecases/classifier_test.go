package usecases

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

func TestManifestFlagClassifier(t *testing.T) {
	c := ManifestFlagClassifier{}

	_, decided := c.Classify("src/Foo/Foo.csproj", domain.ManifestSignals{})
	assert.False(t, decided)

	kind, decided := c.Classify("src/Foo/Foo.csproj", domain.ManifestSignals{IsTestProject: boolPtr(true)})
	assert.True(t, decided)
	assert.Equal(t, domain.ProjectTest, kind)

	kind, decided = c.Classify("tests/FooTests/FooTests.csproj", domain.ManifestSignals{IsTestProject: boolPtr(false)})
	assert.True(t, decided)
	assert.Equal(t, domain.ProjectProduction, kind)
}

func TestNamingConventionClassifier(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		tokens   []string
		wantTest bool
	}{
		{name: "suffix camel case", path: "tests/FooTests/FooTests.csproj", wantTest: true},
		{name: "dotted", path: "tests/Contoso.Foo.Tests.csproj", wantTest: true},
		{name: "singular", path: "Contoso.Foo.Test.csproj", wantTest: true},
		{name: "dashed lower case", path: "foo-tests.csproj", wantTest: true},
		{name: "word containing test", path: "src/Contest/Contest.csproj", wantTest: false},
		{name: "test in directory only", path: "tests/Foo/Foo.csproj", wantTest: false},
		{name: "production", path: "src/Contoso.Api/Contoso.Api.csproj", wantTest: false},
		{name: "custom token", path: "Contoso.Foo.Specs.csproj", tokens: []string{"specs"}, wantTest: true},
		{name: "custom token replaces defaults", path: "FooTests.csproj", tokens: []string{"specs"}, wantTest: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, decided := NamingConventionClassifier{Tokens: tt.tokens}.Classify(tt.path, domain.ManifestSignals{})
			assert.Equal(t, tt.wantTest, decided)
			if tt.wantTest {
				assert.Equal(t, domain.ProjectTest, kind)
			}
		})
	}
}

func TestChainClassifier(t *testing.T) {
	c := NewDefaultClassifier(nil)

	tests := []struct {
		name    string
		path    string
		signals domain.ManifestSignals
		want    domain.ProjectKind
	}{
		{
			name: "name decides without flag",
			path: "tests/FooTests/FooTests.csproj",
			want: domain.ProjectTest,
		},
		{
			name:    "flag wins over name",
			path:    "src/FooTests/FooTests.csproj",
			signals: domain.ManifestSignals{IsTestProject: boolPtr(false)},
			want:    domain.ProjectProduction,
		},
		{
			name:    "flag marks unconventional name",
			path:    "verify/Acceptance/Acceptance.csproj",
			signals: domain.ManifestSignals{IsTestProject: boolPtr(true)},
			want:    domain.ProjectTest,
		},
		{
			name: "undecided defaults to production",
			path: "src/Foo/Foo.csproj",
			want: domain.ProjectProduction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, decided := c.Classify(tt.path, tt.signals)
			assert.True(t, decided)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestInferSDK(t *testing.T) {
	tests := []struct {
		name    string
		signals domain.ManifestSignals
		want    domain.SDKKind
	}{
		{name: "web", signals: domain.ManifestSignals{SDK: "Microsoft.NET.Sdk.Web"}, want: domain.SDKWeb},
		{name: "razor", signals: domain.ManifestSignals{SDK: "Microsoft.NET.Sdk.Razor"}, want: domain.SDKWeb},
		{name: "functions sdk", signals: domain.ManifestSignals{SDK: "Microsoft.NET.Sdk.Functions"}, want: domain.SDKFunction},
		{
			name:    "functions version on plain sdk",
			signals: domain.ManifestSignals{SDK: "Microsoft.NET.Sdk", FunctionsVersion: "v4"},
			want:    domain.SDKFunction,
		},
		{name: "library", signals: domain.ManifestSignals{SDK: "Microsoft.NET.Sdk"}, want: domain.SDKLibrary},
		{name: "case insensitive", signals: domain.ManifestSignals{SDK: "microsoft.net.sdk.web"}, want: domain.SDKWeb},
		{name: "unknown", signals: domain.ManifestSignals{SDK: "MSBuild.Sdk.Extras"}, want: domain.SDKUnknown},
		{name: "empty", signals: domain.ManifestSignals{}, want: domain.SDKUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferSDK(tt.signals))
		})
	}
}

func TestExpectedDeploymentType(t *testing.T) {
	typ, ok := ExpectedDeploymentType(domain.SDKWeb)
	assert.True(t, ok)
	assert.Equal(t, domain.DeployAppService, typ)

	typ, ok = ExpectedDeploymentType(domain.SDKFunction)
	assert.True(t, ok)
	assert.Equal(t, domain.DeployFunctionApp, typ)

	for _, sdk := range []domain.SDKKind{domain.SDKLibrary, domain.SDKUnknown} {
		_, ok := ExpectedDeploymentType(sdk)
		assert.False(t, ok, string(sdk))
	}
}

func TestSplitWords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "FooTests", want: []string{"Foo", "Tests"}},
		{in: "Contoso.Api.Tests", want: []string{"Contoso", "Api", "Tests"}},
		{in: "HTTPClientTests", want: []string{"HTTP", "Client", "Tests"}},
		{in: "api_v2-tests", want: []string{"api", "v2", "tests"}},
		{in: "Net8Tests", want: []string{"Net8", "Tests"}},
		{in: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, splitWords(tt.in))
		})
	}
}
