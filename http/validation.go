package http

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const (
	addressSchema = `{"type": "string", "pattern": "^0x[a-fA-F0-9]{40}$"}`
	uintSchema    = `{"type": "string", "pattern": "^[0-9]{1,78}$"}`
)

var permitSchemaJSON = `{
	"type": "object",
	"required": ["owner", "spender", "value", "deadline", "signature"],
	"properties": {
		"owner": ` + addressSchema + `,
		"spender": ` + addressSchema + `,
		"value": ` + uintSchema + `,
		"nonce": ` + uintSchema + `,
		"deadline": ` + uintSchema + `,
		"signature": {"type": "string", "pattern": "^0x[a-fA-F0-9]{130}$"},
		"chainId": ` + uintSchema + `,
		"verifyingContract": ` + addressSchema + `
	}
}`

// callSchemaJSON describes a SignedCall body; transferFrom also needs from
func callSchemaJSON(requireFrom bool) string {
	required := `"sender", "to", "value", "deadline", "signature"`
	if requireFrom {
		required += `, "from"`
	}
	return `{
		"type": "object",
		"required": [` + required + `],
		"properties": {
			"sender": ` + addressSchema + `,
			"from": ` + addressSchema + `,
			"to": ` + addressSchema + `,
			"value": ` + uintSchema + `,
			"nonce": ` + uintSchema + `,
			"deadline": ` + uintSchema + `,
			"signature": {"type": "string", "pattern": "^0x[a-fA-F0-9]{130}$"}
		}
	}`
}

// Request body schemas
var (
	PermitSchema = mustSchema(permitSchemaJSON)

	CallSchema = mustSchema(callSchemaJSON(false))

	TransferFromCallSchema = mustSchema(callSchemaJSON(true))

	RelaySchema = mustSchema(`{
		"type": "object",
		"required": ["permit", "to", "amount"],
		"properties": {
			"permit": ` + permitSchemaJSON + `,
			"to": ` + addressSchema + `,
			"amount": ` + uintSchema + `,
			"idempotencyKey": {"type": "string", "maxLength": 128}
		}
	}`)
)

// ValidationError lists every schema violation of a request body
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid request body: " + strings.Join(e.Errors, "; ")
}

// ValidateBody checks a raw JSON body against schema. Malformed JSON is
// reported as a plain error, schema violations as *ValidationError.
func ValidateBody(schema *gojsonschema.Schema, body []byte) error {
	if len(body) == 0 {
		return &ValidationError{Errors: []string{"(root): request body is empty"}}
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("malformed JSON body: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var errors []string
	for _, desc := range result.Errors() {
		errors = append(errors, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
	}
	return &ValidationError{Errors: errors}
}

func mustSchema(raw string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid request schema: %v", err))
	}
	return schema
}
