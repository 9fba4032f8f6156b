// Package openapi embeds the HTTP API description of the feed server.
package openapi

import (
	_ "embed"
	"encoding/json"
	"strings"

	"sigs.k8s.io/yaml"
)

const documentedPrefix = "/log"

//go:embed spec.yaml
var specYAML []byte

// JSON returns the OpenAPI document serialized as JSON with feed paths
// mounted under routePrefix.
func JSON(routePrefix string) ([]byte, error) {
	data, err := yaml.YAMLToJSON(specYAML)
	if err != nil {
		return nil, err
	}
	if routePrefix == "" || routePrefix == documentedPrefix {
		return data, nil
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	paths, _ := doc["paths"].(map[string]interface{})
	moved := make(map[string]interface{}, len(paths))
	for path, item := range paths {
		if strings.HasPrefix(path, documentedPrefix+"/") {
			path = routePrefix + strings.TrimPrefix(path, documentedPrefix)
		}
		moved[path] = item
	}
	doc["paths"] = moved
	return json.Marshal(doc)
}

// YAML returns the raw OpenAPI YAML document.
func YAML() []byte {
	return specYAML
}
