// Package tool defines the schema-validated callable units that plugins
// contribute to an agent runtime.
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/pkg/schema"
)

// Placeholder is replaced in descriptions by the word the consuming agent
// framework uses for callable units, for example "tool" or "action".
const Placeholder = "{{tool}}"

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

var (
	// ErrInvalidParameters matches invocation input rejected by the schema.
	ErrInvalidParameters = xerrors.New(xerrors.CodeInvalidParameters, "")
	// ErrInvalidTool matches malformed tool definitions.
	ErrInvalidTool = xerrors.New(xerrors.CodeToolBuild, "")
)

// Method executes a tool with arguments that already passed validation.
type Method func(ctx context.Context, params json.RawMessage) (any, error)

// Tool is a named, described callable. Description may contain Placeholder.
type Tool struct {
	Name        string
	Description string
	Parameters  schema.Schema
	Method      Method
}

// Definition is the presentation of a tool handed to agent frameworks.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// New builds a typed tool. The parameter schema is reflected from P and fn
// receives the decoded parameters.
func New[P any](name, description string, fn func(ctx context.Context, params P) (any, error)) (*Tool, error) {
	if fn == nil {
		return nil, xerrors.New(xerrors.CodeToolBuild, fmt.Sprintf("tool %s has no method", name))
	}
	s, err := schema.For[P]()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeToolBuild, err, fmt.Sprintf("reflect parameters for %s", name))
	}
	return NewRaw(name, description, s, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params P
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidParameters, err, "decode parameters")
		}
		return fn(ctx, params)
	})
}

// MustNew is like New but panics on error.
func MustNew[P any](name, description string, fn func(ctx context.Context, params P) (any, error)) *Tool {
	t, err := New(name, description, fn)
	if err != nil {
		panic(err)
	}
	return t
}

// NewRaw builds a tool from an explicit schema, for parameters that are only
// known at runtime.
func NewRaw(name, description string, parameters schema.Schema, method Method) (*Tool, error) {
	t := &Tool{Name: name, Description: description, Parameters: parameters, Method: method}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks that the tool definition is usable.
func (t *Tool) Validate() error {
	if t == nil {
		return xerrors.New(xerrors.CodeToolBuild, "tool is nil")
	}
	if !ValidName(t.Name) {
		return xerrors.New(xerrors.CodeToolBuild, fmt.Sprintf("invalid tool name %q", t.Name))
	}
	if t.Method == nil {
		return xerrors.New(xerrors.CodeToolBuild, fmt.Sprintf("tool %s has no method", t.Name))
	}
	return nil
}

// ValidName reports whether name is accepted by function calling APIs.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Invoke validates params against the tool schema and runs the method. On
// validation failure the method is not called and the returned error carries
// the field errors as details.
func (t *Tool) Invoke(ctx context.Context, params json.RawMessage) (any, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	params = normalize(params)
	if err := t.CheckParameters(params); err != nil {
		return nil, err
	}
	return t.Method(ctx, params)
}

// CheckParameters validates params against the tool schema without running
// the method. The error is coded INVALID_PARAMETERS with the field errors as
// details.
func (t *Tool) CheckParameters(params json.RawMessage) error {
	if err := t.Parameters.Validate(normalize(params)); err != nil {
		var details any = err.Error()
		if verr, ok := err.(*schema.ValidationError); ok {
			details = verr.Errors
		}
		return xerrors.Wrap(xerrors.CodeInvalidParameters, err,
			fmt.Sprintf("invalid parameters for %s", t.Name),
			xerrors.WithDetails(details),
			xerrors.WithMetadata("tool", t.Name),
		)
	}
	return nil
}

// Definition renders the tool for a framework that calls tools "word".
func (t *Tool) Definition(word string) Definition {
	return Definition{
		Name:        t.Name,
		Description: RenderDescription(t.Description, word),
		Parameters:  t.Parameters.JSON(),
	}
}

// RenderDescription substitutes every Placeholder in description with word.
func RenderDescription(description, word string) string {
	return strings.ReplaceAll(description, Placeholder, word)
}

func normalize(params json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}")
	}
	return trimmed
}
