package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/pkg/logger"
	"AgentWallet-Kit/pkg/tool"
	"AgentWallet-Kit/pkg/wallet"
)

// Manager keeps track of registered plugins and aggregates their tools for a
// wallet.
type Manager struct {
	mu        sync.RWMutex
	order     []string
	registry  map[string]*instance
	loader    Loader
	isolation IsolationStrategy
	defaults  IsolationPolicy
	entries   map[string]PluginConfig
	strict    bool
	logger    *slog.Logger
}

type instance struct {
	plugin Plugin
	info   Info
	config map[string]any
	policy IsolationPolicy
}

// New constructs an empty manager without file based configuration.
func New(opts ...Option) *Manager {
	m := &Manager{
		registry:  make(map[string]*instance),
		loader:    GoPluginLoader{},
		isolation: NewIsolationStrategy(nil),
		entries:   map[string]PluginConfig{},
		logger:    logger.Named("plugin"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// NewManager constructs a manager and loads every enabled shared-object plugin
// named in cfg. Entries without a path are kept and applied when the host
// registers a plugin of that name.
func NewManager(cfg ManagerConfig, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid plugin configuration")
	}
	m := New(opts...)
	m.defaults = cfg.Defaults
	if cfg.Plugins != nil {
		m.entries = maps.Clone(cfg.Plugins)
	}
	if err := m.loadConfigured(cfg); err != nil {
		return nil, err
	}
	return m, nil
}

// Register adds a plugin under its name. Plugins disabled in the manager
// configuration are ignored. The isolation policy is checked against the
// capabilities the plugin can reach (the base set included), then Configure runs
// when implemented.
func (m *Manager) Register(p Plugin, opts ...RegisterOption) error {
	if p == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "plugin implementation cannot be nil")
	}
	name := p.Name()
	if name == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "plugin name cannot be empty")
	}
	reg := registration{source: SourceManual}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	entry, hasEntry := m.entries[name]
	if hasEntry && !entry.IsEnabled() {
		m.logger.Info("plugin disabled by configuration", slog.String("plugin", name))
		return nil
	}
	cfg := reg.config
	if cfg == nil {
		cfg = entry.Config
	}
	cfg = cloneConfig(cfg)
	policyOverride := reg.policy
	if policyOverride == nil {
		policyOverride = entry.Policy
	}
	policy := MergePolicies(m.defaults, policyOverride)

	info := Describe(p)
	info.Source = reg.source
	if err := m.isolation.Validate(info, policy); err != nil {
		return xerrors.Wrap(xerrors.CodeIncompatiblePlugin, err,
			fmt.Sprintf("plugin %q violates isolation policy", name),
			xerrors.WithDetails(Incompatibility{Plugin: name, Reason: ReasonPolicy}),
			xerrors.WithMetadata("plugin", name),
		)
	}

	// A plugin rejected as a duplicate is never reconfigured.
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.registry[name]; exists {
		return xerrors.New(xerrors.CodeConflict, fmt.Sprintf("plugin %q already registered", name),
			xerrors.WithMetadata("plugin", name))
	}
	if c, ok := p.(Configurable); ok {
		if err := c.Configure(cfg); err != nil {
			return xerrors.Wrap(xerrors.CodePluginLoad, err, fmt.Sprintf("configure plugin %q", name),
				xerrors.WithMetadata("plugin", name))
		}
	}
	m.registry[name] = &instance{plugin: p, info: info, config: cfg, policy: policy}
	m.order = append(m.order, name)
	m.logger.Debug("plugin registered",
		slog.String("plugin", name),
		slog.String("source", info.Source),
		slog.Any("capabilities", info.Capabilities),
	)
	return nil
}

// Load loads a plugin implementation from disk and registers it.
func (m *Manager) Load(path string, opts ...RegisterOption) error {
	if path == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "plugin path cannot be empty")
	}
	p, err := m.loader.Load(path)
	if err != nil {
		return xerrors.Wrap(xerrors.CodePluginLoad, err, fmt.Sprintf("load plugin from %s", path),
			xerrors.WithMetadata("path", path))
	}
	return m.Register(p, append([]RegisterOption{withSource(SourceShared)}, opts...)...)
}

// Unregister removes a plugin. It reports whether the plugin was present.
func (m *Manager) Unregister(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.registry[name]; !ok {
		return false
	}
	delete(m.registry, name)
	m.order = slices.DeleteFunc(m.order, func(n string) bool { return n == name })
	return true
}

// Get returns a registered plugin by name.
func (m *Manager) Get(name string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.registry[name]
	if !ok {
		return nil, false
	}
	return inst.plugin, true
}

// Plugins returns metadata for every registered plugin in registration order.
func (m *Manager) Plugins() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.registry[name].info)
	}
	return out
}

// Tools pairs every registered plugin with w and aggregates the tools of the
// compatible ones. Incompatible plugins are skipped and reported in
// Toolset.Skipped unless the manager is strict. A failing GetTools aborts the
// whole aggregation. Tools keep registration order, and each plugin keeps its
// own order.
func (m *Manager) Tools(ctx context.Context, w wallet.Client) (*Toolset, error) {
	if w == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "wallet cannot be nil")
	}
	m.mu.RLock()
	instances := make([]*instance, 0, len(m.order))
	for _, name := range m.order {
		instances = append(instances, m.registry[name])
	}
	m.mu.RUnlock()

	var (
		compatible []*instance
		skipped    []Incompatibility
	)
	for _, inst := range instances {
		err := CheckCompatibility(inst.plugin, w)
		if err == nil {
			compatible = append(compatible, inst)
			continue
		}
		if m.strict {
			return nil, err
		}
		inc, _ := IncompatibilityOf(err)
		skipped = append(skipped, inc)
		m.logger.Info("plugin skipped",
			slog.String("plugin", inst.info.Name),
			slog.String("reason", string(inc.Reason)),
			slog.String("chain", w.Chain().String()),
		)
	}

	results := make([][]*tool.Tool, len(compatible))
	g, gctx := errgroup.WithContext(ctx)
	for i, inst := range compatible {
		g.Go(func() error {
			tools, err := buildTools(gctx, inst.plugin, w)
			if err != nil {
				return err
			}
			results[i] = tools
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.logger.Error("tool aggregation failed", slog.Any("error", err))
		return nil, err
	}

	set := newToolset(m.logger)
	for i, inst := range compatible {
		for _, t := range results[i] {
			if err := set.add(inst.info.Name, t); err != nil {
				return nil, err
			}
		}
	}
	set.skipped = skipped
	return set, nil
}

func buildTools(ctx context.Context, p Plugin, w wallet.Client) (tools []*tool.Tool, err error) {
	name := p.Name()
	defer func() {
		if r := recover(); r != nil {
			tools = nil
			err = xerrors.New(xerrors.CodeToolBuild, fmt.Sprintf("plugin %q panicked while building tools: %v", name, r),
				xerrors.WithMetadata("plugin", name))
		}
	}()
	tools, err = p.GetTools(ctx, w)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeToolBuild, err, fmt.Sprintf("plugin %q failed to build tools", name),
			xerrors.WithMetadata("plugin", name))
	}
	for _, t := range tools {
		if verr := t.Validate(); verr != nil {
			return nil, xerrors.Wrap(xerrors.CodeToolBuild, verr, fmt.Sprintf("plugin %q produced an invalid tool", name),
				xerrors.WithMetadata("plugin", name))
		}
	}
	return tools, nil
}

func (m *Manager) loadConfigured(cfg ManagerConfig) error {
	objects := cfg.sharedObjects()
	for _, name := range slices.Sorted(maps.Keys(objects)) {
		path := objects[name]
		p, err := m.loader.Load(path)
		if err != nil {
			return xerrors.Wrap(xerrors.CodePluginLoad, err, fmt.Sprintf("load plugin %s from %s", name, path),
				xerrors.WithMetadata("plugin", name))
		}
		if p.Name() != name {
			return xerrors.New(xerrors.CodePluginLoad, fmt.Sprintf("plugin name mismatch: %s != %s", p.Name(), name),
				xerrors.WithMetadata("plugin", name))
		}
		if err := m.Register(p, withSource(SourceShared)); err != nil {
			return err
		}
	}
	return nil
}

// Aggregate is a shortcut for hosts that compose a wallet with a fixed plugin
// list.
func Aggregate(ctx context.Context, w wallet.Client, plugins []Plugin, opts ...Option) (*Toolset, error) {
	m := New(opts...)
	for _, p := range plugins {
		if err := m.Register(p); err != nil {
			return nil, err
		}
	}
	return m.Tools(ctx, w)
}

func cloneConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return map[string]any{}
	}
	return maps.Clone(cfg)
}
