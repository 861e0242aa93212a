package mediator

import (
	"context"
	"time"

	"clawgate/internal/apierr"
	"clawgate/internal/auth"
	"clawgate/internal/manifest"
	"clawgate/internal/pluginapi"
	"clawgate/internal/policy"
)

var reservedQueryKeys = map[string]bool{"limit": true, "cursor": true, "sort": true, "q": true, "max_chars": true}

// ReadRequest is the normalized input to the read mediator.
type ReadRequest struct {
	Principal  auth.Principal
	PluginID   string
	Resource   string
	ResourceID string // "" for a collection read
	View       manifest.View
	Limit      int
	Cursor     string
	Sort       string
	Q          string
	MaxChars   *int
	RawQuery   map[string]string // every non-reserved query parameter
}

// CollectionBody is the response shape for a collection read.
type CollectionBody struct {
	Items      []any  `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// ReadEvent is what the read mediator reports to the ambient audit trail.
type ReadEvent struct {
	PluginID     string
	Resource     string
	ResourceID   string
	View         string
	CapabilityID string
	AgentID      string
	StatusCode   int
	ErrorKind    string
	Duration     time.Duration
}

// HandleCollectionRead runs the list pipeline: authorize, normalize,
// dispatch, filter.
func (m *Mediator) HandleCollectionRead(ctx context.Context, req ReadRequest) (statusCode int, body any, err error) {
	start := time.Now()
	var capID string
	defer func() {
		if m.Audit == nil {
			return
		}
		m.Audit.RecordRead(m.readEvent(req, capID, statusCode, err, start))
	}()

	resource, err := m.Registry.ResolveResource(req.PluginID, req.Resource)
	if err != nil {
		return 0, nil, err
	}
	capID = resource.CapabilityID

	if err := authorize(req.Principal, resource.CapabilityID); err != nil {
		return 0, nil, err
	}

	limit, err := m.Policy.NormalizeLimit(req.Limit)
	if err != nil {
		return 0, nil, err
	}

	plugin, err := m.plugin(req.PluginID)
	if err != nil {
		return 0, nil, err
	}

	result, err := plugin.ListResource(ctx, req.Resource, pluginapi.ReadQuery{
		Limit: limit, Cursor: req.Cursor, Sort: req.Sort, Q: req.Q, Filters: req.RawQuery,
	})
	if err != nil {
		return 0, nil, err
	}

	items, _ := result.Data.([]any)
	blocked := m.Policy.BlockedIndices(result.PolicyItems)
	filtered := make([]any, 0, len(items))
	for i, item := range items {
		if blocked[i] {
			continue
		}
		filtered = append(filtered, item)
	}

	return 200, CollectionBody{Items: filtered, NextCursor: result.NextCursor}, nil
}

// HandleItemRead runs the single-item/view pipeline: authorize, normalize,
// view-gate, dispatch, filter, sanitize.
func (m *Mediator) HandleItemRead(ctx context.Context, req ReadRequest) (statusCode int, body any, err error) {
	start := time.Now()
	var capID string
	defer func() {
		if m.Audit == nil {
			return
		}
		m.Audit.RecordRead(m.readEvent(req, capID, statusCode, err, start))
	}()

	resource, err := m.Registry.ResolveResource(req.PluginID, req.Resource)
	if err != nil {
		return 0, nil, err
	}
	capID = resource.CapabilityID

	if err := authorize(req.Principal, resource.CapabilityID); err != nil {
		return 0, nil, err
	}

	maxChars, err := m.Policy.NormalizeMaxChars(req.MaxChars)
	if err != nil {
		return 0, nil, err
	}

	if req.View != "" {
		if err := m.Policy.CheckViewGate(req.View); err != nil {
			return 0, nil, err
		}
		if !resource.AllowsView(req.View) {
			return 0, nil, apierr.New(apierr.KindNotFound, "view %q not allowed on resource %q", req.View, req.Resource)
		}
	}

	plugin, err := m.plugin(req.PluginID)
	if err != nil {
		return 0, nil, err
	}

	result, err := plugin.GetResource(ctx, req.Resource, req.ResourceID, pluginapi.ReadQuery{
		MaxChars: maxChars, View: string(req.View), Filters: req.RawQuery,
	})
	if err != nil {
		return 0, nil, err
	}

	if err := m.Policy.CheckSingleItem(result.PolicyItems); err != nil {
		return 0, nil, err
	}

	data := result.Data
	if req.View == manifest.ViewBody {
		data = policy.SanitizeValue(data, maxChars)
	}

	if m, ok := data.(map[string]any); ok {
		return 200, m, nil
	}
	return 200, map[string]any{"value": data}, nil
}

func (m *Mediator) readEvent(req ReadRequest, capID string, statusCode int, err error, start time.Time) ReadEvent {
	evt := ReadEvent{
		PluginID: req.PluginID, Resource: req.Resource, ResourceID: req.ResourceID,
		View: string(req.View), CapabilityID: capID, AgentID: req.Principal.AgentID,
		StatusCode: statusCode, Duration: time.Since(start),
	}
	if e, ok := err.(*apierr.Error); ok {
		evt.ErrorKind = string(e.Kind)
	}
	return evt
}
