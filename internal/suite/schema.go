package suite

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema/suite.schema.yaml
var schemaYAML []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func suiteSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		var doc any
		if err := yaml.Unmarshal(schemaYAML, &doc); err != nil {
			schemaErr = fmt.Errorf("failed to parse embedded suite schema: %w", err)
			return
		}
		jsonData, err := json.Marshal(doc)
		if err != nil {
			schemaErr = fmt.Errorf("failed to convert embedded suite schema: %w", err)
			return
		}
		compiledSchema, schemaErr = jsonschema.CompileString("suite.schema.json", string(jsonData))
	})
	return compiledSchema, schemaErr
}

// validateSuite checks a suite document against the schema. The document
// is round-tripped through JSON because the validator expects the value
// shapes of encoding/json, not those of the YAML decoder.
func validateSuite(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse suite file: %w", err)
	}
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert suite file: %w", err)
	}
	var value any
	if err := json.Unmarshal(jsonData, &value); err != nil {
		return fmt.Errorf("failed to convert suite file: %w", err)
	}

	schema, err := suiteSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("suite validation failed: %w", err)
	}
	return nil
}
