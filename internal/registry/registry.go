// Package registry indexes plugin manifests and the dispatchable plugin
// implementations behind them. It is built once at startup and never
// mutated afterward — the mediator reads it concurrently without locking.
package registry

import (
	"fmt"
	"sort"

	"clawgate/internal/apierr"
	"clawgate/internal/manifest"
	"clawgate/internal/pluginapi"
)

// Entry pairs a plugin's manifest with its dispatchable implementation.
type Entry struct {
	Manifest manifest.Manifest
	Plugin   pluginapi.Plugin
}

// Registry maps plugin id to Entry. It is immutable after New returns.
type Registry struct {
	plugins map[string]Entry
}

// New builds a Registry from entries, rejecting duplicate plugin ids.
func New(entries []Entry) (*Registry, error) {
	plugins := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if _, exists := plugins[e.Manifest.ID]; exists {
			return nil, fmt.Errorf("registry: duplicate plugin id %q", e.Manifest.ID)
		}
		plugins[e.Manifest.ID] = e
	}
	return &Registry{plugins: plugins}, nil
}

// Get returns the entry for pluginID, or NOT_FOUND.
func (r *Registry) Get(pluginID string) (Entry, error) {
	e, ok := r.plugins[pluginID]
	if !ok {
		return Entry{}, apierr.New(apierr.KindNotFound, "plugin %q not found", pluginID)
	}
	return e, nil
}

// List returns every manifest summary, sorted by plugin id for a stable
// listing response.
func (r *Registry) List() []manifest.Summary {
	out := make([]manifest.Summary, 0, len(r.plugins))
	for _, e := range r.plugins {
		out = append(out, e.Manifest.ToSummary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ResolveAction scans pluginID's manifest for an action matching both name
// and resource, where an empty resource matches only a plugin-global
// action.
func (r *Registry) ResolveAction(pluginID, actionName, resource string) (manifest.Action, error) {
	e, err := r.Get(pluginID)
	if err != nil {
		return manifest.Action{}, err
	}
	for _, a := range e.Manifest.Actions {
		if a.Name == actionName && a.Resource == resource {
			return a, nil
		}
	}
	return manifest.Action{}, apierr.New(apierr.KindNotFound, "action %q (resource=%q) not found on plugin %q", actionName, resource, pluginID)
}

// ResolveResource returns the resource manifest for pluginID/resource.
func (r *Registry) ResolveResource(pluginID, resource string) (manifest.Resource, error) {
	e, err := r.Get(pluginID)
	if err != nil {
		return manifest.Resource{}, err
	}
	for _, res := range e.Manifest.Resources {
		if res.Name == resource {
			return res, nil
		}
	}
	return manifest.Resource{}, apierr.New(apierr.KindNotFound, "resource %q not found on plugin %q", resource, pluginID)
}
