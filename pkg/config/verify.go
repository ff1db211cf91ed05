package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"
)

//go:embed schema.json
var embeddedSchema []byte

// GenerateSchema produces the JSON schema for Config via reflection
func GenerateSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	schema := reflector.Reflect(&Config{})
	schema.Title = "Feedrank Configuration"
	schema.Description = "Configuration schema for the feedrank service"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return append(data, '\n'), nil
}

// VerifySchema checks the embedded schema.json against the schema
// generated from the Config struct. The comparison is structural, over
// property names and nesting, so adding, removing or renaming a config
// field is caught after a forgotten regenerate regardless of how the
// generator serializes annotations.
func VerifySchema() error {
	generated, err := GenerateSchema()
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}

	var gen, emb map[string]interface{}
	if err := json.Unmarshal(generated, &gen); err != nil {
		return fmt.Errorf("parse generated schema: %w", err)
	}
	if err := json.Unmarshal(embeddedSchema, &emb); err != nil {
		return fmt.Errorf("parse embedded schema: %w", err)
	}

	if diff := compareShape("", gen, emb); diff != "" {
		return fmt.Errorf("schema.json is out of date at %q, run go generate ./pkg/config", diff)
	}
	return nil
}

// compareShape walks the properties and items trees of both schema
// fragments and returns the path of the first structural mismatch, empty
// when they agree
func compareShape(path string, gen, emb map[string]interface{}) string {
	genProps, genHas := gen["properties"].(map[string]interface{})
	embProps, embHas := emb["properties"].(map[string]interface{})
	if genHas != embHas {
		return path + "/properties"
	}
	if genHas {
		if diff := compareKeys(path, genProps, embProps); diff != "" {
			return diff
		}
	}

	genItems, genHas := gen["items"].(map[string]interface{})
	embItems, embHas := emb["items"].(map[string]interface{})
	if genHas != embHas {
		return path + "/items"
	}
	if genHas {
		return compareShape(path+"/items", genItems, embItems)
	}
	return ""
}

func compareKeys(path string, gen, emb map[string]interface{}) string {
	keys := make([]string, 0, len(gen))
	for k := range gen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		genChild, ok := gen[k].(map[string]interface{})
		if !ok {
			continue
		}
		embChild, ok := emb[k].(map[string]interface{})
		if !ok {
			return path + "/" + k
		}
		if diff := compareShape(path+"/"+k, genChild, embChild); diff != "" {
			return diff
		}
	}
	for k := range emb {
		if _, ok := gen[k]; !ok {
			return path + "/" + k
		}
	}
	return ""
}
