// Package manifest reads classification signals from .NET project manifests.
package manifest

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

// functionsPackages are package references that turn a plain SDK project into a
// Functions project.
var functionsPackages = []string{
	"Microsoft.NET.Sdk.Functions",
	"Microsoft.Azure.Functions.Worker.Sdk",
}

// CsprojReader implements domain.ManifestReader for .csproj files.
// It queries only the test-project flag, the SDK identifier and project references;
// it does not evaluate MSBuild.
type CsprojReader struct{}

// NewCsprojReader creates a CsprojReader.
func NewCsprojReader() *CsprojReader {
	return &CsprojReader{}
}

type projectXML struct {
	XMLName        xml.Name           `xml:"Project"`
	SDK            string             `xml:"Sdk,attr"`
	SDKElements    []sdkXML           `xml:"Sdk"`
	PropertyGroups []propertyGroupXML `xml:"PropertyGroup"`
	ItemGroups     []itemGroupXML     `xml:"ItemGroup"`
}

type sdkXML struct {
	Name string `xml:"Name,attr"`
}

type propertyGroupXML struct {
	IsTestProject         string `xml:"IsTestProject"`
	AzureFunctionsVersion string `xml:"AzureFunctionsVersion"`
}

type itemGroupXML struct {
	ProjectReferences []includeXML `xml:"ProjectReference"`
	PackageReferences []includeXML `xml:"PackageReference"`
}

type includeXML struct {
	Include string `xml:"Include,attr"`
}

// IsManifest reports whether p is a .csproj file.
func (r *CsprojReader) IsManifest(p string) bool {
	return strings.EqualFold(path.Ext(p), ".csproj")
}

// ReadSignals parses the manifest content.
// Returns domain.ErrMalformedManifest for invalid XML or an unreadable test flag.
func (r *CsprojReader) ReadSignals(manifestPath string, content []byte) (domain.ManifestSignals, error) {
	var doc projectXML
	dec := xml.NewDecoder(bytes.NewReader(bytes.TrimPrefix(content, utf8BOM)))
	dec.CharsetReader = passthroughCharset
	if err := dec.Decode(&doc); err != nil {
		return domain.ManifestSignals{}, fmt.Errorf("%w: %s: %w", domain.ErrMalformedManifest, manifestPath, err)
	}

	signals := domain.ManifestSignals{SDK: strings.TrimSpace(doc.SDK)}
	if signals.SDK == "" && len(doc.SDKElements) > 0 {
		signals.SDK = strings.TrimSpace(doc.SDKElements[0].Name)
	}
	// Sdk="Microsoft.NET.Sdk.Web/8.0.0" pins a version after the slash.
	if i := strings.Index(signals.SDK, "/"); i >= 0 {
		signals.SDK = signals.SDK[:i]
	}

	for _, pg := range doc.PropertyGroups {
		if v := strings.TrimSpace(pg.IsTestProject); v != "" {
			flag, err := strconv.ParseBool(strings.ToLower(v))
			if err != nil {
				return domain.ManifestSignals{}, fmt.Errorf("%w: %s: IsTestProject %q is not a boolean",
					domain.ErrMalformedManifest, manifestPath, v)
			}
			signals.IsTestProject = &flag
		}
		if v := strings.TrimSpace(pg.AzureFunctionsVersion); v != "" {
			signals.FunctionsVersion = v
		}
	}

	dir := path.Dir(manifestPath)
	for _, ig := range doc.ItemGroups {
		for _, ref := range ig.ProjectReferences {
			if ref.Include == "" {
				continue
			}
			include := strings.ReplaceAll(ref.Include, `\`, "/")
			signals.References = append(signals.References, path.Clean(path.Join(dir, include)))
		}
		for _, pkg := range ig.PackageReferences {
			if signals.FunctionsVersion == "" && isFunctionsPackage(pkg.Include) {
				signals.FunctionsVersion = "package:" + pkg.Include
			}
		}
	}

	return signals, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func isFunctionsPackage(include string) bool {
	for _, p := range functionsPackages {
		if strings.EqualFold(p, strings.TrimSpace(include)) {
			return true
		}
	}
	return false
}

// passthroughCharset accepts the legacy encodings Visual Studio writes (utf-8 with BOM,
// windows-1252 headers) as-is; the elements read here are ASCII.
func passthroughCharset(_ string, input io.Reader) (io.Reader, error) {
	return input, nil
}
