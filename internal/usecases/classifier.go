package usecases

import (
	"path"
	"strings"
	"unicode"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

// ManifestFlagClassifier decides from the manifest's explicit test-project flag.
type ManifestFlagClassifier struct{}

// Classify implements domain.ProjectClassifier.
func (ManifestFlagClassifier) Classify(_ string, signals domain.ManifestSignals) (domain.ProjectKind, bool) {
	if signals.IsTestProject == nil {
		return "", false
	}
	if *signals.IsTestProject {
		return domain.ProjectTest, true
	}
	return domain.ProjectProduction, true
}

// NamingConventionClassifier marks a project as a test project when a word of its
// manifest file name equals one of Tokens, case-insensitively. Words are split on
// '.', '-', '_' and camel-case boundaries, so FooTests and Foo.Tests both match
// while Contest does not.
type NamingConventionClassifier struct {
	Tokens []string
}

// DefaultTestTokens are the words that mark a test project by name.
var DefaultTestTokens = []string{"test", "tests"}

// Classify implements domain.ProjectClassifier.
func (c NamingConventionClassifier) Classify(manifestPath string, _ domain.ManifestSignals) (domain.ProjectKind, bool) {
	tokens := c.Tokens
	if len(tokens) == 0 {
		tokens = DefaultTestTokens
	}

	name := path.Base(manifestPath)
	name = strings.TrimSuffix(name, path.Ext(name))
	for _, word := range splitWords(name) {
		for _, tok := range tokens {
			if strings.EqualFold(word, tok) {
				return domain.ProjectTest, true
			}
		}
	}
	return "", false
}

// ChainClassifier asks each variant in order and takes the first decision.
// Projects nobody decides on are Production.
type ChainClassifier []domain.ProjectClassifier

// Classify implements domain.ProjectClassifier. It always decides.
func (c ChainClassifier) Classify(manifestPath string, signals domain.ManifestSignals) (domain.ProjectKind, bool) {
	for _, variant := range c {
		if kind, ok := variant.Classify(manifestPath, signals); ok {
			return kind, true
		}
	}
	return domain.ProjectProduction, true
}

// NewDefaultClassifier returns the manifest flag followed by the naming convention.
func NewDefaultClassifier(tokens []string) ChainClassifier {
	return ChainClassifier{
		ManifestFlagClassifier{},
		NamingConventionClassifier{Tokens: tokens},
	}
}

// InferSDK maps manifest signals to the deployable flavour of a project.
func InferSDK(signals domain.ManifestSignals) domain.SDKKind {
	if signals.FunctionsVersion != "" {
		return domain.SDKFunction
	}
	switch strings.ToLower(signals.SDK) {
	case "microsoft.net.sdk.functions":
		return domain.SDKFunction
	case "microsoft.net.sdk.web", "microsoft.net.sdk.blazorwebassembly", "microsoft.net.sdk.razor":
		return domain.SDKWeb
	case "microsoft.net.sdk":
		return domain.SDKLibrary
	}
	return domain.SDKUnknown
}

// ExpectedDeploymentType returns the map entry type an SDK must be deployed as.
// Library and Unknown projects have no deployable type.
func ExpectedDeploymentType(sdk domain.SDKKind) (domain.DeploymentType, bool) {
	switch sdk {
	case domain.SDKWeb:
		return domain.DeployAppService, true
	case domain.SDKFunction:
		return domain.DeployFunctionApp, true
	}
	return "", false
}

func splitWords(name string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '.' || r == '-' || r == '_' || unicode.IsSpace(r):
			flush()
			continue
		case unicode.IsUpper(r) && len(cur) > 0:
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return words
}
