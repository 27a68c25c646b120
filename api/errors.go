package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/warp/brokerage-engine/engine"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeNoApplicableRate  = "NO_APPLICABLE_RATE"
	CodeInvalidState      = "INVALID_STATE"
	CodeUnderfundedPolicy = "UNDERFUNDED_POLICY"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeDuplicate         = "DUPLICATE"
	CodeConflict          = "CONFLICT"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeInternal          = "INTERNAL"
)

// classify maps an engine error to an HTTP status and code.
//
//	NotFound, no applicable rate     -> 404
//	InvalidState, UnderfundedPolicy,
//	InvalidInput, duplicate number   -> 400
//	missing tenant                   -> 401
//	concurrent modification          -> 409 (retryable)
//	anything else                    -> 500
func classify(err error) (int, string) {
	switch {
	case engine.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, engine.ErrNoApplicableRate):
		return http.StatusNotFound, CodeNoApplicableRate
	case errors.Is(err, engine.ErrNoTenant):
		return http.StatusUnauthorized, CodeUnauthorized
	case engine.IsClientError(err):
		return http.StatusBadRequest, clientCode(err)
	case engine.IsRetryable(err):
		return http.StatusConflict, CodeConflict
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// clientCode narrows an engine client error to its response code.
func clientCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrUnderfundedPolicy):
		return CodeUnderfundedPolicy
	case errors.Is(err, engine.ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, engine.ErrDuplicatePolicyNumber):
		return CodeDuplicate
	default:
		return CodeInvalidInput
	}
}

// fail writes err as an ErrorResponse. Server faults are logged with the
// request id; client errors are not.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}

	var underfunded *engine.UnderfundedPolicyError
	if errors.As(err, &underfunded) {
		resp.Details = ShortfallDetails{
			PolicyID:  string(underfunded.PolicyID),
			Premium:   underfunded.Premium,
			Remaining: underfunded.Remaining,
			Shortfall: underfunded.Shortfall,
		}
	}

	if status >= http.StatusInternalServerError {
		h.Log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		resp.Error = "internal error"
	} else {
		h.Log.Debug().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request rejected")
	}

	writeJSON(w, status, resp)
}
