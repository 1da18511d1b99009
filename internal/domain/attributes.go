package domain

import "strings"

// testAttributes are the xUnit, NUnit and MSTest attributes that mark a test method or class.
var testAttributes = map[string]struct{}{
	"fact":            {},
	"theory":          {},
	"test":            {},
	"testcase":        {},
	"testcasesource":  {},
	"testmethod":      {},
	"datatestmethod":  {},
	"testclass":       {},
	"testfixture":     {},
	"skippablefact":   {},
	"skippabletheory": {},
}

// IsTestAttribute reports whether name is a known test attribute. Namespace qualifiers
// and the Attribute suffix are ignored.
func IsTestAttribute(name string) bool {
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ToLower(strings.TrimSuffix(name, "Attribute"))
	_, ok := testAttributes[name]
	return ok
}

// HasTestAttribute reports whether any of attrs is a test attribute.
func HasTestAttribute(attrs []string) bool {
	for _, a := range attrs {
		if IsTestAttribute(a) {
			return true
		}
	}
	return false
}
