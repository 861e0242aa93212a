// Package gmail is an in-process reference plugin backed by a small set of
// fixture messages. It exists to exercise the mediator against a plugin
// with both a resource (messages, with header/body/raw views) and actions
// spanning three approval postures: routine (send), dangerous-with-preview
// (reply), and dangerous-without-preview (archive).
package gmail

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"clawgate/internal/apierr"
	"clawgate/internal/manifest"
	"clawgate/internal/pluginapi"
)

//go:embed manifest.yaml
var manifestYAML []byte

// Manifest parses and validates the plugin's embedded descriptor.
func Manifest() (*manifest.Manifest, error) {
	return manifest.Load(manifestYAML)
}

// message is a fixture mailbox entry. counterpartyDomain is attested to
// the policy engine as a PolicyItem on every read and on reply actions
// that touch it.
type message struct {
	ID                 string
	From               string
	Subject            string
	Headers            map[string]any
	Body               string
	Raw                string
	CounterpartyDomain string
	Archived           bool
}

// Plugin is the gmail reference implementation of pluginapi.Plugin.
type Plugin struct {
	mu        sync.Mutex
	messages  map[string]*message
	replySeq  int
	sentSeq   int
}

// New builds a Plugin seeded with fixture messages: msg_allowed (an
// ordinary counterparty) and msg_blocked (a counterparty on the blocked
// domain list, for single-item-read and reply-policy-block tests).
func New() *Plugin {
	return &Plugin{
		messages: map[string]*message{
			"msg_allowed": {
				ID: "msg_allowed", From: "dana@ok.example", Subject: "Q3 numbers",
				Headers:            map[string]any{"from": "dana@ok.example", "subject": "Q3 numbers"},
				Body:               "Hi, here are the Q3 numbers: see https://internal.example/report.xlsx <b>please review</b> and reply.   Thanks!",
				Raw:                "Delivered-To: agent@example.com\r\nFrom: dana@ok.example\r\nSubject: Q3 numbers\r\n\r\nHi, here are the Q3 numbers.",
				CounterpartyDomain: "ok.example",
			},
			"msg_blocked": {
				ID: "msg_blocked", From: "mallory@blocked.example", Subject: "Urgent wire transfer",
				Headers:            map[string]any{"from": "mallory@blocked.example", "subject": "Urgent wire transfer"},
				Body:               "Please wire funds immediately.",
				Raw:                "From: mallory@blocked.example\r\nSubject: Urgent wire transfer\r\n\r\nPlease wire funds immediately.",
				CounterpartyDomain: "blocked.example",
			},
		},
	}
}

// ListResource returns every message, in ascending id order, as a policy-bearing
// collection so the mediator's BlockedIndices screen can drop
// msg_blocked.
func (p *Plugin) ListResource(ctx context.Context, resource string, q pluginapi.ReadQuery) (pluginapi.ReadResult, error) {
	if resource != "messages" {
		return pluginapi.ReadResult{}, apierr.New(apierr.KindNotFound, "gmail: unknown resource %q", resource)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.messages))
	for id := range p.messages {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]any, 0, len(ids))
	policyItems := make([]pluginapi.PolicyItem, 0, len(ids))
	for i, id := range ids {
		if len(items) >= q.Limit && q.Limit > 0 {
			break
		}
		m := p.messages[id]
		items = append(items, map[string]any{"id": m.ID, "from": m.From, "subject": m.Subject, "archived": m.Archived})
		policyItems = append(policyItems, pluginapi.PolicyItem{
			DataRef: fmt.Sprintf("items[%d]", i),
			Attrs:   map[string]pluginapi.AttrValue{"counterparty_domain": m.CounterpartyDomain},
		})
	}

	return pluginapi.ReadResult{Data: items, PolicyItems: policyItems}, nil
}

// GetResource returns one message, applying the requested view's
// projection. An unrecognized resource id is NOT_FOUND.
func (p *Plugin) GetResource(ctx context.Context, resource, resourceID string, q pluginapi.ReadQuery) (pluginapi.ReadResult, error) {
	if resource != "messages" {
		return pluginapi.ReadResult{}, apierr.New(apierr.KindNotFound, "gmail: unknown resource %q", resource)
	}

	p.mu.Lock()
	m, ok := p.messages[resourceID]
	p.mu.Unlock()
	if !ok {
		return pluginapi.ReadResult{}, apierr.New(apierr.KindNotFound, "gmail: message %q not found", resourceID)
	}

	policyItems := []pluginapi.PolicyItem{
		{DataRef: "self", Attrs: map[string]pluginapi.AttrValue{"counterparty_domain": m.CounterpartyDomain}},
	}

	var data any
	switch manifest.View(q.View) {
	case manifest.ViewBody, "":
		data = map[string]any{"id": m.ID, "body": m.Body, "from": m.From}
	case manifest.ViewHeaders:
		data = map[string]any{"id": m.ID, "headers": m.Headers}
	case manifest.ViewRaw:
		data = map[string]any{"id": m.ID, "raw": m.Raw}
	}

	return pluginapi.ReadResult{Data: data, PolicyItems: policyItems}, nil
}

// RunAction dispatches send, reply, and archive. Phase "propose" never
// mutates fixture state; it only returns the preview the mediator shows
// while an approval ticket is pending.
func (p *Plugin) RunAction(ctx context.Context, req pluginapi.ActionRequest) (pluginapi.ActionResult, error) {
	switch req.Action {
	case "send":
		return p.runSend(req)
	case "reply":
		return p.runReply(req)
	case "archive":
		return p.runArchive(req)
	default:
		return pluginapi.ActionResult{}, apierr.New(apierr.KindNotFound, "gmail: unknown action %q", req.Action)
	}
}

func (p *Plugin) runSend(req pluginapi.ActionRequest) (pluginapi.ActionResult, error) {
	body, _ := req.Args["body"].(string)
	if req.Phase == "propose" {
		return pluginapi.ActionResult{
			Summary:        "send a new message",
			ProposedEffect: map[string]any{"body": body},
		}, nil
	}

	p.mu.Lock()
	p.sentSeq++
	id := fmt.Sprintf("sent_%03d", p.sentSeq)
	p.mu.Unlock()

	return pluginapi.ActionResult{
		Status:  pluginapi.StatusSuccess,
		Summary: "message sent",
		Result:  map[string]any{"sent_message_id": id, "body": body},
	}, nil
}

func (p *Plugin) runReply(req pluginapi.ActionRequest) (pluginapi.ActionResult, error) {
	p.mu.Lock()
	m, ok := p.messages[req.ResourceID]
	p.mu.Unlock()
	if !ok {
		return pluginapi.ActionResult{}, apierr.New(apierr.KindNotFound, "gmail: message %q not found", req.ResourceID)
	}

	body, _ := req.Args["body"].(string)
	summary := fmt.Sprintf("reply to message %s", m.ID)
	effect := map[string]any{"to": m.From, "body": body}
	if req.Phase == "propose" {
		return pluginapi.ActionResult{
			Summary: summary, ProposedEffect: effect,
			PolicyItems: []pluginapi.PolicyItem{{DataRef: "result", Attrs: map[string]pluginapi.AttrValue{"counterparty_domain": m.CounterpartyDomain}}},
		}, nil
	}

	p.mu.Lock()
	p.replySeq++
	id := fmt.Sprintf("sent_reply_%03d", p.replySeq)
	p.mu.Unlock()

	return pluginapi.ActionResult{
		Status:  pluginapi.StatusSuccess,
		Summary: summary,
		Result:  map[string]any{"sent_message_id": id},
		PolicyItems: []pluginapi.PolicyItem{
			{DataRef: "result", Attrs: map[string]pluginapi.AttrValue{"counterparty_domain": m.CounterpartyDomain}},
		},
	}, nil
}

// runArchive has no propose phase, so the mediator's approval preview call
// and the eventual post-approval execute both land here; it must be
// idempotent on repeated calls against the same message.
func (p *Plugin) runArchive(req pluginapi.ActionRequest) (pluginapi.ActionResult, error) {
	p.mu.Lock()
	m, ok := p.messages[req.ResourceID]
	if ok {
		m.Archived = true
	}
	p.mu.Unlock()
	if !ok {
		return pluginapi.ActionResult{}, apierr.New(apierr.KindNotFound, "gmail: message %q not found", req.ResourceID)
	}

	return pluginapi.ActionResult{
		Status:  pluginapi.StatusSuccess,
		Summary: fmt.Sprintf("archive message %s", m.ID),
		Result:  map[string]any{"archived": true, "id": m.ID},
	}, nil
}
