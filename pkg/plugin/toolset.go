package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/pkg/tool"
)

// Toolset is the flat, ordered result of an aggregation.
type Toolset struct {
	tools   []*tool.Tool
	index   map[string]int
	owners  map[string]string
	skipped []Incompatibility
	logger  *slog.Logger
}

func newToolset(logger *slog.Logger) *Toolset {
	return &Toolset{
		index:  make(map[string]int),
		owners: make(map[string]string),
		logger: logger,
	}
}

// NewToolset builds a toolset from loose tools attributed to owner.
func NewToolset(owner string, tools ...*tool.Tool) (*Toolset, error) {
	set := newToolset(slog.Default())
	for _, t := range tools {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if err := set.add(owner, t); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func (s *Toolset) add(owner string, t *tool.Tool) error {
	if prev, ok := s.owners[t.Name]; ok {
		return xerrors.New(xerrors.CodeConflict,
			fmt.Sprintf("tool %q from plugin %q collides with plugin %q", t.Name, owner, prev),
			xerrors.WithMetadata("tool", t.Name),
			xerrors.WithMetadata("plugin", owner),
		)
	}
	s.index[t.Name] = len(s.tools)
	s.owners[t.Name] = owner
	s.tools = append(s.tools, t)
	return nil
}

// Len returns the number of tools.
func (s *Toolset) Len() int { return len(s.tools) }

// Tools returns the tools in aggregation order.
func (s *Toolset) Tools() []*tool.Tool { return slices.Clone(s.tools) }

// Get looks up a tool by name.
func (s *Toolset) Get(name string) (*tool.Tool, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.tools[i], true
}

// Owner returns the plugin that contributed the named tool.
func (s *Toolset) Owner(name string) string { return s.owners[name] }

// Names returns tool names in aggregation order.
func (s *Toolset) Names() []string {
	out := make([]string, len(s.tools))
	for i, t := range s.tools {
		out[i] = t.Name
	}
	return out
}

// Definitions renders every tool with Placeholder replaced by word.
func (s *Toolset) Definitions(word string) []tool.Definition {
	out := make([]tool.Definition, len(s.tools))
	for i, t := range s.tools {
		out[i] = t.Definition(word)
	}
	return out
}

// Skipped lists the plugins left out of the aggregation.
func (s *Toolset) Skipped() []Incompatibility { return slices.Clone(s.skipped) }

// Invoke validates and runs the named tool. Errors without a code are
// reported as wallet failures.
func (s *Toolset) Invoke(ctx context.Context, name string, params json.RawMessage) (any, error) {
	t, ok := s.Get(name)
	if !ok {
		return nil, xerrors.New(xerrors.CodeToolNotFound, fmt.Sprintf("tool %q not found", name),
			xerrors.WithMetadata("tool", name))
	}
	start := time.Now()
	result, err := t.Invoke(ctx, params)
	attrs := []any{
		slog.String("tool", name),
		slog.String("plugin", s.owners[name]),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		if _, coded := xerrors.From(err); !coded {
			err = xerrors.Wrap(xerrors.CodeWalletFailure, err, fmt.Sprintf("tool %q failed", name),
				xerrors.WithMetadata("tool", name))
		}
		s.logger.Warn("tool invocation failed", append(attrs, slog.String("code", string(xerrors.CodeOf(err))), slog.Any("error", err))...)
		return nil, err
	}
	s.logger.Debug("tool invoked", attrs...)
	return result, nil
}
