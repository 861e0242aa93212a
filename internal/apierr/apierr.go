// Package apierr defines the stable error kinds the gateway speaks at its
// HTTP edge, and the single place that turns one into a status code, a
// machine-readable code, and a wire body.
package apierr

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind is a stable, cross-component failure currency. Every boundary in the
// gateway converts an internal failure into one of these before it reaches
// a handler's response writer.
type Kind string

const (
	KindNotFound                 Kind = "NOT_FOUND"
	KindValidation                Kind = "VALIDATION_ERROR"
	KindIdempotencyKeyRequired    Kind = "IDEMPOTENCY_KEY_REQUIRED"
	KindIdempotencyKeyReused      Kind = "IDEMPOTENCY_KEY_REUSED"
	KindApprovalAlreadyFinalized  Kind = "APPROVAL_ALREADY_FINALIZED"
	KindActionNotProposable       Kind = "ACTION_NOT_PROPOSABLE"
	KindPolicyBlocked             Kind = "POLICY_BLOCKED"
	KindUnauthorized              Kind = "UNAUTHORIZED"
	KindCapabilityDenied          Kind = "CAPABILITY_DENIED"
	KindRateLimited                Kind = "RATE_LIMITED"
	KindSidecarHTTPError          Kind = "SIDECAR_HTTP_ERROR"
	KindSidecarUnreachable        Kind = "SIDECAR_UNREACHABLE"
	KindSidecarBadResponse        Kind = "SIDECAR_BAD_RESPONSE"
)

// statusOf maps a Kind to its HTTP status. Specialized validation kinds all
// carry 400, mirroring the table in the error model section of the spec.
var statusOf = map[Kind]int{
	KindNotFound:                404,
	KindValidation:              400,
	KindIdempotencyKeyRequired:   400,
	KindIdempotencyKeyReused:     400,
	KindApprovalAlreadyFinalized: 400,
	KindActionNotProposable:      400,
	KindPolicyBlocked:            403,
	KindUnauthorized:             401,
	KindCapabilityDenied:         403,
	KindRateLimited:              429,
	KindSidecarHTTPError:         500,
	KindSidecarUnreachable:       500,
	KindSidecarBadResponse:       500,
}

// Error is the typed error every internal package returns for a failure
// that must cross a component boundary. It carries enough to render the
// wire error body without the handler needing to know anything about the
// failure's origin.
type Error struct {
	Kind    Kind
	Message string
	// Cause is wrapped for %w/errors.Is/As support but never serialized.
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Status returns the HTTP status code for e's kind, defaulting to 500 for
// an unrecognized kind (should not happen for a Kind minted via New).
func (e *Error) Status() int {
	if s, ok := statusOf[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New builds an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around an underlying cause,
// using cause's message as the wire message.
func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Message: cause.Error(), Cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return false
	}
	return e.Kind == kind
}

// body is the wire shape: {"error": {"code": ..., "message": ...}}.
type body struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// WriteJSON writes err to w as the gateway's standard error envelope. If
// err is not an *Error, it is treated as an unexpected internal failure
// and surfaced as a bare 500 without leaking its message.
func WriteJSON(w http.ResponseWriter, err error) {
	e, ok := err.(*Error)
	if !ok {
		e = &Error{Kind: "INTERNAL", Message: "internal error"}
	}

	var b body
	b.Error.Code = string(e.Kind)
	b.Error.Message = e.Message

	status := e.Status()
	if e.Kind == "INTERNAL" {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(b)
}
