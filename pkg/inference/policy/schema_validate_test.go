package policy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateOutputSchemaAcceptsWellFormedSchema(t *testing.T) {
	schema := json.RawMessage(`{"type": "object", "properties": {"name": {"type": "string"}}, "required": ["name"]}`)
	require.NoError(t, ValidateOutputSchema(schema))
}

func TestValidateOutputSchemaRejectsUncompilableSchema(t *testing.T) {
	schema := json.RawMessage(`{"type": "object", "properties": "not-a-valid-properties-value"}`)
	require.Error(t, ValidateOutputSchema(schema))
}

func TestValidateOutputSchemaAllowsEmptySchema(t *testing.T) {
	require.NoError(t, ValidateOutputSchema(nil))
}

func TestValidateAgainstOutputSchemaAcceptsConformingOutput(t *testing.T) {
	schema := json.RawMessage(`{"type": "object", "properties": {"name": {"type": "string"}}, "required": ["name"]}`)
	output := json.RawMessage(`{"name": "ok"}`)
	require.NoError(t, ValidateAgainstOutputSchema(schema, output))
}

func TestValidateAgainstOutputSchemaRejectsMissingRequiredField(t *testing.T) {
	schema := json.RawMessage(`{"type": "object", "properties": {"name": {"type": "string"}}, "required": ["name"]}`)
	output := json.RawMessage(`{}`)
	require.Error(t, ValidateAgainstOutputSchema(schema, output))
}

func TestValidateAgainstOutputSchemaRejectsMalformedJSON(t *testing.T) {
	schema := json.RawMessage(`{"type": "object"}`)
	output := json.RawMessage(`{not json`)
	require.Error(t, ValidateAgainstOutputSchema(schema, output))
}

func TestValidateAgainstOutputSchemaAllowsEmptySchema(t *testing.T) {
	require.NoError(t, ValidateAgainstOutputSchema(nil, json.RawMessage(`{"anything": true}`)))
}
