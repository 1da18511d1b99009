// Package deploymap loads the deployment map binding project manifests to cloud targets.
//
// The document is YAML (JSON is accepted as a YAML subset) and is either a list of
// entries or an object with a single deployments key:
//
//	deployments:
//	  - path: src/Contoso.Api/Contoso.Api.csproj
//	    type: appService
//	    resourceGroup: rg-contoso
//	    appName: contoso-api
//	    slot: staging
package deploymap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

type entryYAML struct {
	Path          string `yaml:"path"`
	Type          string `yaml:"type"`
	ResourceGroup string `yaml:"resourceGroup"`
	AppName       string `yaml:"appName"`
	Slot          string `yaml:"slot"`
}

type documentYAML struct {
	Deployments []entryYAML `yaml:"deployments"`
}

// Parse validates content and builds an immutable deployment map. Unknown fields,
// missing required fields, unknown types and duplicate paths are all
// domain.ErrMalformedMap.
func Parse(content []byte) (*domain.DeploymentMap, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(content, &root); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedMap, err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", domain.ErrMalformedMap)
	}

	var entries []entryYAML
	switch root.Content[0].Kind {
	case yaml.SequenceNode:
		if err := decodeStrict(content, &entries); err != nil {
			return nil, err
		}
	case yaml.MappingNode:
		var doc documentYAML
		if err := decodeStrict(content, &doc); err != nil {
			return nil, err
		}
		entries = doc.Deployments
	default:
		return nil, fmt.Errorf("%w: top level must be a list or an object with deployments", domain.ErrMalformedMap)
	}

	validated, err := validate(entries)
	if err != nil {
		return nil, err
	}
	return domain.NewDeploymentMap(validated), nil
}

// decodeStrict decodes the first document rejecting fields the schema does not know.
func decodeStrict(content []byte, out interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty document", domain.ErrMalformedMap)
		}
		return fmt.Errorf("%w: %w", domain.ErrMalformedMap, err)
	}
	return nil
}

func validate(entries []entryYAML) ([]domain.DeploymentMapEntry, error) {
	seen := make(map[string]int, len(entries))
	out := make([]domain.DeploymentMapEntry, 0, len(entries))

	for i, e := range entries {
		p := NormalizeProjectPath(e.Path)
		var missing []string
		if p == "" {
			missing = append(missing, "path")
		}
		if strings.TrimSpace(e.Type) == "" {
			missing = append(missing, "type")
		}
		if strings.TrimSpace(e.ResourceGroup) == "" {
			missing = append(missing, "resourceGroup")
		}
		if strings.TrimSpace(e.AppName) == "" {
			missing = append(missing, "appName")
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: entry %d: missing %s", domain.ErrMalformedMap, i, strings.Join(missing, ", "))
		}

		typ, ok := parseDeploymentType(e.Type)
		if !ok {
			return nil, fmt.Errorf("%w: entry %d: unknown type %q (want %s or %s)",
				domain.ErrMalformedMap, i, e.Type, domain.DeployAppService, domain.DeployFunctionApp)
		}

		if first, dup := seen[p]; dup {
			return nil, fmt.Errorf("%w: entries %d and %d both map %s", domain.ErrMalformedMap, first, i, p)
		}
		seen[p] = i

		out = append(out, domain.DeploymentMapEntry{
			ProjectPath:   p,
			Type:          typ,
			ResourceGroup: strings.TrimSpace(e.ResourceGroup),
			AppName:       strings.TrimSpace(e.AppName),
			Slot:          strings.TrimSpace(e.Slot),
		})
	}
	return out, nil
}

// parseDeploymentType matches raw case-insensitively and returns the canonical constant.
func parseDeploymentType(raw string) (domain.DeploymentType, bool) {
	raw = strings.TrimSpace(raw)
	for _, t := range []domain.DeploymentType{domain.DeployAppService, domain.DeployFunctionApp} {
		if strings.EqualFold(raw, string(t)) {
			return t, true
		}
	}
	return "", false
}

// NormalizeProjectPath converts a manifest path to the repository-relative form used by
// project units: forward slashes, no leading ./ and no redundant elements.
func NormalizeProjectPath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
	if p == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean(p), "/")
}
