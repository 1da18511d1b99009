package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

func findType(t *testing.T, types []domain.TypeDecl, name string) domain.TypeDecl {
	t.Helper()
	for _, typ := range types {
		if typ.Name == name {
			return typ
		}
	}
	require.Failf(t, "type not found", "no type named %s", name)
	return domain.TypeDecl{}
}

func memberNames(typ domain.TypeDecl) []string {
	names := make([]string, 0, len(typ.Members))
	for _, m := range typ.Members {
		names = append(names, m.Name)
	}
	return names
}

func TestCSharpScanner_IsSource(t *testing.T) {
	s := NewCSharpScanner()
	assert.True(t, s.IsSource("tests/FooTests/BarTests.cs"))
	assert.True(t, s.IsSource("Legacy/OLD.CS"))
	assert.False(t, s.IsSource("tests/FooTests/FooTests.csproj"))
	assert.False(t, s.IsSource("README.md"))
}

func TestCSharpScanner_FindTypes_XunitClass(t *testing.T) {
	src := `using Xunit;

namespace Contoso.Tests
{
    public class BarTests
    {
        private readonly int _seed = 3;

        [Fact]
        public void Adds()
        {
            Assert.Equal(4, 2 + 2);
        }

        [Theory]
        [InlineData(1, "a{")]
        public void Parses(int n, string s)
        {
            Assert.NotNull(s);
        }

        private static int Helper() => 42;
    }
}
`
	types, err := NewCSharpScanner().FindTypes("BarTests.cs", []byte(src))
	require.NoError(t, err)
	require.Len(t, types, 1)

	bar := types[0]
	assert.Equal(t, "BarTests", bar.Name)
	assert.Equal(t, "Contoso.Tests", bar.Namespace)
	assert.True(t, bar.IsTestClass)
	assert.Equal(t, domain.LineRange{Start: 5, End: 6}, bar.Header)
	assert.Equal(t, domain.LineRange{Start: 5, End: 23}, bar.Span)
	assert.Equal(t, []string{"_seed", "Adds", "Parses", "Helper"}, memberNames(bar))

	assert.Equal(t, domain.LineRange{Start: 7, End: 7}, bar.Members[0].Span)
	assert.Equal(t, domain.LineRange{Start: 9, End: 13}, bar.Members[1].Span)
	assert.Equal(t, []string{"Fact"}, bar.Members[1].Attributes)
	assert.Equal(t, domain.LineRange{Start: 15, End: 20}, bar.Members[2].Span)
	assert.Equal(t, []string{"Theory", "InlineData"}, bar.Members[2].Attributes)
	assert.Equal(t, domain.LineRange{Start: 22, End: 22}, bar.Members[3].Span)

	methods := bar.TestMethods()
	require.Len(t, methods, 2)
	assert.Equal(t, "Adds", methods[0].Name)
	assert.Equal(t, "Parses", methods[1].Name)
}

func TestCSharpScanner_FindTypes_FileScopedNamespaceAndNesting(t *testing.T) {
	src := `namespace Contoso.Api.Tests;

[TestFixture]
public sealed class OrderTests
{
    public class WhenEmpty
    {
        [Test]
        public void Rejects() { }
    }

    [NUnit.Framework.TestAttribute]
    public async Task Accepts() => await Task.CompletedTask;
}

public record OrderBuilder(int Quantity);

internal static class Fixtures
{
    public static string Json = """
        { "unbalanced": "{" }
        """;
}
`
	types, err := NewCSharpScanner().FindTypes("OrderTests.cs", []byte(src))
	require.NoError(t, err)
	require.Len(t, types, 4)

	assert.Equal(t, []string{"OrderTests", "OrderTests+WhenEmpty", "OrderBuilder", "Fixtures"},
		[]string{types[0].Name, types[1].Name, types[2].Name, types[3].Name})

	for _, typ := range types {
		assert.Equal(t, "Contoso.Api.Tests", typ.Namespace, typ.Name)
	}

	outer := findType(t, types, "OrderTests")
	assert.True(t, outer.IsTestClass)
	assert.Equal(t, []string{"TestFixture"}, outer.Attributes)
	assert.Equal(t, []string{"Accepts"}, memberNames(outer))
	assert.Equal(t, []string{"Test"}, outer.Members[0].Attributes)
	assert.Equal(t, domain.LineRange{Start: 12, End: 13}, outer.Members[0].Span)

	nested := findType(t, types, "OrderTests+WhenEmpty")
	assert.True(t, nested.IsTestClass)
	assert.Equal(t, domain.LineRange{Start: 6, End: 10}, nested.Span)

	record := findType(t, types, "OrderBuilder")
	assert.False(t, record.IsTestClass)
	assert.Equal(t, domain.LineRange{Start: 16, End: 16}, record.Span)

	fixtures := findType(t, types, "Fixtures")
	assert.False(t, fixtures.IsTestClass)
	assert.Equal(t, domain.LineRange{Start: 18, End: 23}, fixtures.Span)
	assert.Equal(t, []string{"Json"}, memberNames(fixtures))
}

func TestCSharpScanner_FindTypes_LiteralsAndComments(t *testing.T) {
	src := `namespace A.B
{
    // class NotAType { }
    /* struct AlsoNot {
    } */
    #region helpers
    public class Strings
    {
        private string a = "}";
        private string b = @"C:\path\""quoted""}";
        private string c = $"{(x ? "{" : "}")} {{";
        private char d = '}';
        private char e = '\'';
        public int Value { get; set; } = 5;
        public int Other
        {
            get { return 1; }
        }
    }
    #endregion
}
`
	types, err := NewCSharpScanner().FindTypes("Strings.cs", []byte(src))
	require.NoError(t, err)
	require.Len(t, types, 1)

	s := types[0]
	assert.Equal(t, "Strings", s.Name)
	assert.Equal(t, "A.B", s.Namespace)
	assert.False(t, s.IsTestClass)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "Value", "Other"}, memberNames(s))
	assert.Equal(t, domain.LineRange{Start: 14, End: 14}, s.Members[5].Span)
	assert.Equal(t, domain.LineRange{Start: 15, End: 18}, s.Members[6].Span)
	assert.Equal(t, domain.LineRange{Start: 7, End: 19}, s.Span)
}

func TestCSharpScanner_FindTypes_GenericsAndConstraints(t *testing.T) {
	src := `namespace N
{
    [TestClass]
    public class RepoTests<T> : Base<T> where T : class, new()
    {
        [TestMethod]
        public async Task<List<int>> Loads<TKey>(TKey key) where TKey : struct
        {
            var items = new List<int> { 1, 2 };
            return items;
        }

        [DataTestMethod, DataRow(1)]
        public void Rows(int n) { }
    }

    public enum Mode { Fast, Slow }

    public interface IStore
    {
        void Save();
    }
}
`
	types, err := NewCSharpScanner().FindTypes("RepoTests.cs", []byte(src))
	require.NoError(t, err)
	require.Len(t, types, 3)

	repo := findType(t, types, "RepoTests")
	assert.True(t, repo.IsTestClass)
	assert.Equal(t, []string{"TestClass"}, repo.Attributes)
	assert.Equal(t, []string{"Loads", "Rows"}, memberNames(repo))
	assert.Equal(t, []string{"DataTestMethod", "DataRow"}, repo.Members[1].Attributes)

	mode := findType(t, types, "Mode")
	assert.False(t, mode.IsTestClass)
	assert.Equal(t, domain.LineRange{Start: 17, End: 17}, mode.Span)

	store := findType(t, types, "IStore")
	assert.Equal(t, []string{"Save"}, memberNames(store))
}

func TestCSharpScanner_FindTypes_GlobalNamespaceAndTopLevelStatements(t *testing.T) {
	src := "\xEF\xBB\xBFusing System;\n\nConsole.WriteLine(\"{\");\n\nclass Program\n{\n    static void Main() { }\n}\n"

	types, err := NewCSharpScanner().FindTypes("Program.cs", []byte(src))
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, "Program", types[0].Name)
	assert.Empty(t, types[0].Namespace)
	assert.Equal(t, []string{"Main"}, memberNames(types[0]))
}

func TestCSharpScanner_FindTypes_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "missing closing brace", src: "namespace A { class B { void M() { } }"},
		{name: "extra closing brace", src: "class B { } }"},
		{name: "unterminated string", src: "class B { string s = \"abc\n; }"},
		{name: "unterminated comment", src: "class B { /* never closed }"},
		{name: "unterminated raw string", src: "class B { string s = \"\"\"\n abc }"},
	}

	s := NewCSharpScanner()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.FindTypes("Broken.cs", []byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "Broken.cs")
		})
	}
}
