package mediator

import (
	"context"
	"net/http"
	"time"

	"clawgate/internal/apierr"
	"clawgate/internal/approval"
	"clawgate/internal/auth"
	"clawgate/internal/hashutil"
	"clawgate/internal/idempotency"
	"clawgate/internal/pluginapi"
)

// ActionRequest is the normalized input to the action mediator, already
// parsed from the URL and request body by the HTTP layer.
type ActionRequest struct {
	Principal      auth.Principal
	PluginID       string
	Resource       string // "" for a plugin-global action
	ResourceID     string // "" for a plugin-global action
	ActionName     string
	Phase          string // "propose" | "execute"
	IdempotencyKey string
	Reason         string
	Args           map[string]any
}

// SuccessBody is the 200 response shape.
type SuccessBody struct {
	Result  any    `json:"result"`
	Summary string `json:"summary,omitempty"`
}

// NeedsApprovalBody is the 202 response shape.
type NeedsApprovalBody struct {
	ApprovalTicketID string         `json:"approval_ticket_id"`
	Summary          string         `json:"summary"`
	ProposedEffect   map[string]any `json:"proposed_effect"`
}

// ActionEvent is what the action mediator reports to the ambient audit
// trail after every request, success or failure.
type ActionEvent struct {
	PluginID     string
	Resource     string
	ResourceID   string
	Action       string
	Phase        string
	CapabilityID string
	AgentID      string
	StatusCode   int
	ErrorKind    string
	Duration     time.Duration
}

// HandleAction runs the full action pipeline and returns the HTTP status
// code and response body to write, or an error to translate at the edge.
func (m *Mediator) HandleAction(ctx context.Context, req ActionRequest) (statusCode int, body any, err error) {
	start := time.Now()
	defer func() {
		if m.Audit == nil {
			return
		}
		evt := ActionEvent{
			PluginID: req.PluginID, Resource: req.Resource, ResourceID: req.ResourceID,
			Action: req.ActionName, Phase: req.Phase, AgentID: req.Principal.AgentID,
			StatusCode: statusCode, Duration: time.Since(start),
		}
		if e, ok := err.(*apierr.Error); ok {
			evt.ErrorKind = string(e.Kind)
		}
		m.Audit.RecordAction(evt)
	}()

	action, err := m.Registry.ResolveAction(req.PluginID, req.ActionName, req.Resource)
	if err != nil {
		return 0, nil, err
	}

	if err := authorize(req.Principal, action.CapabilityID); err != nil {
		return 0, nil, err
	}

	if req.Phase == "propose" && !action.SupportsPropose {
		return 0, nil, apierr.New(apierr.KindActionNotProposable, "action %q does not support propose", action.Name)
	}

	if err := m.Policy.CheckIdempotencyRequired(req.Phase, action, req.IdempotencyKey); err != nil {
		return 0, nil, err
	}
	if err := m.Policy.ScreenBlockedDomains(req.Args); err != nil {
		return 0, nil, err
	}

	requestHash, err := hashutil.RequestHash(hashutil.RequestHashInput{
		PluginID: req.PluginID, Resource: req.Resource, ResourceID: req.ResourceID,
		Action: req.ActionName, Phase: req.Phase, Args: req.Args,
	})
	if err != nil {
		return 0, nil, apierr.Wrap(apierr.KindValidation, err)
	}
	scope := idempotency.Scope(req.PluginID, req.Resource, action.Name)

	mutatingKeyed := req.Phase == "execute" && action.Mutating && req.IdempotencyKey != ""

	if mutatingKeyed {
		rec, err := m.Idempotency.FetchOrValidate(scope, req.IdempotencyKey, requestHash)
		if err != nil {
			return 0, nil, err
		}
		if rec != nil {
			return rec.StatusCode, rec.Payload, nil
		}
	}

	plugin, err := m.plugin(req.PluginID)
	if err != nil {
		return 0, nil, err
	}

	if m.Policy.RequiresApproval(action.CapabilityID, action.RiskTier, req.Phase) {
		fingerprint, err := hashutil.Fingerprint(hashutil.FingerprintInput{
			CapabilityID: action.CapabilityID, ResourceID: req.ResourceID, Args: req.Args,
		})
		if err != nil {
			return 0, nil, apierr.Wrap(apierr.KindValidation, err)
		}

		if approved := m.Approvals.FindForFingerprint(action.CapabilityID, fingerprint, []approval.Status{approval.StatusApproved}); approved != nil {
			logStep("approval_gate", "capability", action.CapabilityID, "outcome", "already_approved")
			// fall through to dispatch below
		} else {
			previewPhase := "execute"
			if action.SupportsPropose {
				previewPhase = "propose"
			}
			preview, err := plugin.RunAction(ctx, pluginapi.ActionRequest{
				Action: action.Name, Resource: req.Resource, ResourceID: req.ResourceID,
				Phase: previewPhase, Args: req.Args,
			})
			if err != nil {
				return 0, nil, err
			}

			effect := effectOrResult(preview.ProposedEffect, preview.Result)
			ticket, _, err := m.Approvals.GetOrCreateForFingerprint(preview.Summary, effect, action.CapabilityID, fingerprint)
			if err != nil {
				return 0, nil, apierr.Wrap(apierr.KindValidation, err)
			}

			return http.StatusAccepted, NeedsApprovalBody{
				ApprovalTicketID: ticket.ID,
				Summary:          preview.Summary,
				ProposedEffect:   effect,
			}, nil
		}
	}

	result, err := plugin.RunAction(ctx, pluginapi.ActionRequest{
		Action: action.Name, Resource: req.Resource, ResourceID: req.ResourceID,
		Phase: req.Phase, Args: req.Args,
	})
	if err != nil {
		return 0, nil, err
	}

	if err := m.Policy.CheckSingleItem(result.PolicyItems); err != nil {
		return 0, nil, err
	}
	if result.Status == pluginapi.StatusBlocked {
		return 0, nil, apierr.New(apierr.KindPolicyBlocked, "%s", result.Summary)
	}

	resp := SuccessBody{Result: result.Result, Summary: result.Summary}

	if mutatingKeyed {
		m.Idempotency.Save(scope, req.IdempotencyKey, requestHash, http.StatusOK, resp)
	}

	return http.StatusOK, resp, nil
}

func (m *Mediator) plugin(pluginID string) (pluginapi.Plugin, error) {
	entry, err := m.Registry.Get(pluginID)
	if err != nil {
		return nil, err
	}
	return entry.Plugin, nil
}

// effectOrResult falls back to the preview's result when a plugin didn't
// set an explicit proposed effect, so an approver still sees a structured
// description of what execute will do.
func effectOrResult(effect map[string]any, result any) map[string]any {
	if len(effect) > 0 {
		return effect
	}
	if m, ok := result.(map[string]any); ok {
		return m
	}
	return effect
}
