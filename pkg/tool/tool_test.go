package tool_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/pkg/schema"
	"AgentWallet-Kit/pkg/tool"
)

type echoParams struct {
	Message string `json:"message"`
}

func TestInvokeRejectsInvalidParamsWithoutCallingMethod(t *testing.T) {
	calls := 0
	echo := tool.MustNew("echo", "Echo a message", func(_ context.Context, p echoParams) (any, error) {
		calls++
		return p.Message, nil
	})

	for _, raw := range []string{`{}`, `{"message": 7}`, `{"message":"x","other":true}`, `not json`, `[]`} {
		_, err := echo.Invoke(context.Background(), json.RawMessage(raw))
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, tool.ErrInvalidParameters), raw)
		assert.Equal(t, xerrors.CodeInvalidParameters, xerrors.CodeOf(err))
	}
	assert.Zero(t, calls)

	out, err := echo.Invoke(context.Background(), json.RawMessage(`{"message":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
	assert.Equal(t, 1, calls)
}

func TestInvalidParametersCarryFieldDetails(t *testing.T) {
	echo := tool.MustNew("echo", "", func(context.Context, echoParams) (any, error) { return nil, nil })
	_, err := echo.Invoke(context.Background(), nil)

	coded, ok := xerrors.From(err)
	require.True(t, ok)
	fields, ok := coded.Details().([]schema.FieldError)
	require.True(t, ok)
	require.Len(t, fields, 1)
	assert.Equal(t, "message", fields[0].Field)
	assert.Equal(t, "echo", coded.Metadata()["tool"])
}

func TestNameRules(t *testing.T) {
	assert.True(t, tool.ValidName("sign_message_baaaa"))
	assert.True(t, tool.ValidName("get-balance-2"))
	assert.False(t, tool.ValidName(""))
	assert.False(t, tool.ValidName("has space"))
	assert.False(t, tool.ValidName("0123456789012345678901234567890123456789012345678901234567890123456789"))

	_, err := tool.NewRaw("bad name", "", schema.Empty(), func(context.Context, json.RawMessage) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, tool.ErrInvalidTool)

	_, err = tool.NewRaw("ok", "", schema.Empty(), nil)
	assert.ErrorIs(t, err, tool.ErrInvalidTool)
}

func TestDescriptionPlaceholder(t *testing.T) {
	assert.Equal(t, "Use this action to sign. The action returns a signature.",
		tool.RenderDescription("Use this {{tool}} to sign. The {{tool}} returns a signature.", "action"))
	assert.Equal(t, "plain", tool.RenderDescription("plain", "tool"))

	sign := tool.MustNew("sign", "This {{tool}} signs", func(context.Context, echoParams) (any, error) { return nil, nil })
	def := sign.Definition("tool")
	assert.Equal(t, "This tool signs", def.Description)
	assert.Equal(t, "This {{tool}} signs", sign.Description)
	assert.Contains(t, string(def.Parameters), `"message"`)
}

func TestNoParameterTool(t *testing.T) {
	ping, err := tool.NewRaw("ping", "", schema.Empty(), func(context.Context, json.RawMessage) (any, error) {
		return "pong", nil
	})
	require.NoError(t, err)
	out, err := ping.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
}
