package plugin

import (
	"errors"
	"fmt"
	goplugin "plugin"
)

// Loader turns a plugin path from configuration into a Plugin.
type Loader interface {
	Load(path string) (Plugin, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(path string) (Plugin, error)

func (f LoaderFunc) Load(path string) (Plugin, error) { return f(path) }

// SymbolName is the exported identifier a shared object must provide.
const SymbolName = "Plugin"

// GoPluginLoader opens shared objects built with -buildmode=plugin.
type GoPluginLoader struct{}

// Load looks up SymbolName, which may hold a Plugin, a *Plugin or a
// func() Plugin constructor.
func (GoPluginLoader) Load(path string) (Plugin, error) {
	if path == "" {
		return nil, errors.New("plugin path cannot be empty")
	}
	so, err := goplugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shared object: %w", err)
	}
	sym, err := so.Lookup(SymbolName)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", SymbolName, err)
	}
	return resolveSymbol(sym)
}

var errNilSymbol = errors.New("plugin symbol resolves to nil")

func resolveSymbol(sym any) (Plugin, error) {
	var p Plugin
	switch v := sym.(type) {
	case Plugin:
		p = v
	case *Plugin:
		if v != nil {
			p = *v
		}
	case func() Plugin:
		p = v()
	case *func() Plugin:
		if v != nil && *v != nil {
			p = (*v)()
		}
	default:
		return nil, fmt.Errorf("plugin symbol of type %T does not implement plugin.Plugin", sym)
	}
	if p == nil {
		return nil, errNilSymbol
	}
	return p, nil
}
