package schema_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AgentWallet-Kit/pkg/schema"
)

type transferParams struct {
	To     string `json:"to" jsonschema:"description=Recipient address"`
	Amount string `json:"amount" jsonschema:"description=Amount in base units"`
	Memo   string `json:"memo,omitempty"`
}

func TestForReflectsRequiredFields(t *testing.T) {
	s, err := schema.For[transferParams]()
	require.NoError(t, err)

	doc := s.Map()
	assert.Equal(t, "object", doc["type"])
	assert.NotContains(t, doc, "$schema")
	assert.ElementsMatch(t, []any{"to", "amount"}, doc["required"])

	props := doc["properties"].(map[string]any)
	to := props["to"].(map[string]any)
	assert.Equal(t, "Recipient address", to["description"])
}

func TestValidateReportsFields(t *testing.T) {
	s := schema.MustFor[transferParams]()

	require.NoError(t, s.Validate(json.RawMessage(`{"to":"0xabc","amount":"10"}`)))

	err := s.Validate(json.RawMessage(`{"to":"0xabc","extra":1}`))
	var verr *schema.ValidationError
	require.True(t, errors.As(err, &verr))
	fields := make([]string, 0, len(verr.Errors))
	for _, f := range verr.Errors {
		fields = append(fields, f.Field)
	}
	assert.Contains(t, fields, "amount")
	assert.Contains(t, fields, "extra")
}

func TestValidateMalformedInput(t *testing.T) {
	s := schema.MustFor[transferParams]()
	err := s.Validate(json.RawMessage(`{"to":`))
	var verr *schema.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "arguments are not valid JSON", verr.Errors[0].Message)

	err = s.Validate(json.RawMessage(`{"to": 5, "amount": "1"}`))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "to", verr.Errors[0].Field)
}

func TestEmptyAndZeroSchemas(t *testing.T) {
	empty := schema.Empty()
	assert.NoError(t, empty.Validate(nil))
	assert.NoError(t, empty.Validate(json.RawMessage(`null`)))

	var zero schema.Schema
	assert.True(t, zero.IsZero())
	assert.NoError(t, zero.Validate(json.RawMessage(`{"anything":true}`)))
	assert.Error(t, zero.Validate(json.RawMessage(`[1,2]`)))
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(zero.JSON()))
}

func TestObjectHelper(t *testing.T) {
	s, err := schema.Object(map[string]schema.Property{
		"message": {Type: "string", Description: "Message to sign"},
	}, "message")
	require.NoError(t, err)
	assert.NoError(t, s.Validate(json.RawMessage(`{"message":"hi"}`)))
	assert.Error(t, s.Validate(json.RawMessage(`{}`)))

	_, err = schema.Object(nil, "missing")
	assert.Error(t, err)
}

func TestFromJSONRejectsGarbage(t *testing.T) {
	_, err := schema.FromJSON([]byte(""))
	assert.Error(t, err)
	_, err = schema.FromJSON([]byte(`{"type": 12}`))
	assert.Error(t, err)
}
