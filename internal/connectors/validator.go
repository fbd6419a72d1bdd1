package connectors

import (
	"fmt"
	"os"
	"strings"

	"github.com/kaptinlin/jsonschema"
)

// ValidateSettings checks user-supplied connector settings against the
// connector's JSON Schema file. A nil error means the settings conform;
// a non-nil error lists every violated field.
func ValidateSettings(schemaPath string, settings map[string]interface{}) error {
	schemaData, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read settings schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(schemaData)
	if err != nil {
		return fmt.Errorf("failed to compile settings schema: %w", err)
	}

	result := schema.Validate(settings)
	if result.IsValid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors))
	for field, evalErr := range result.Errors {
		violations = append(violations, fmt.Sprintf("%s: %s", field, evalErr.Error()))
	}
	return fmt.Errorf("settings validation failed: %s", strings.Join(violations, "; "))
}
