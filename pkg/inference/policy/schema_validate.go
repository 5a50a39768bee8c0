package policy

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/relaygate/inference-gateway/pkg/inference/types"
)

// ValidateOutputSchema reports whether schema itself is a compilable JSON
// Schema document, the check SPEC_FULL.md §4.5(c) requires before a
// Strict JSON-mode request is sent: an adapter should reject a malformed
// output_schema up front rather than let every vendor call fail for the
// same reason, grounded on
// codegen/agent/tests/tool_specs_schema_validation_test.go's
// validateSchemaBytes (NewCompiler/AddResource/Compile).
func ValidateOutputSchema(schema json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	if _, err := compileSchema(schema); err != nil {
		return types.NewGatewayError("policy", "validate_output_schema", types.ErrorKindInvalidRequest,
			"output_schema does not compile", err)
	}
	return nil
}

// ValidateAgainstOutputSchema reports whether output conforms to schema,
// the Strict JSON-mode response-side check grounded on the same golden
// test's validateExampleAgainstSchema (Compile then Validate(exampleDoc)).
// A nil error from a nil/empty schema always passes: Strict mode with no
// schema has nothing to validate against.
func ValidateAgainstOutputSchema(schema, output json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	compiled, err := compileSchema(schema)
	if err != nil {
		return types.NewGatewayError("policy", "validate_against_output_schema", types.ErrorKindInvalidRequest,
			"output_schema does not compile", err)
	}
	var doc any
	if err := json.Unmarshal(output, &doc); err != nil {
		return types.NewGatewayError("policy", "validate_against_output_schema", types.ErrorKindTypeConversion,
			"model output is not valid JSON", err)
	}
	if err := compiled.Validate(doc); err != nil {
		return types.NewGatewayError("policy", "validate_against_output_schema", types.ErrorKindTypeConversion,
			"model output does not conform to output_schema", err)
	}
	return nil
}

func compileSchema(schema json.RawMessage) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(schema, &doc); err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("output_schema.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("output_schema.json")
}
