/*
handlers.go - HTTP API handlers for the brokerage engine

PURPOSE:
  Exposes the engine via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the engine services. Every handler reads
  the tenant scope the auth middleware placed on the request context.

ENDPOINTS (under /api):
  Policies:
    POST   /policies                    Create policy + initial schedule
    GET    /policies/{id}               Get policy
    PUT    /policies/{id}/cadence       Change cadence (no payments yet)
    PUT    /policies/{id}/premium       Reprice, then reconcile
    PUT    /policies/{id}/status        Lifecycle status
    PUT    /policies/{id}/custom-rate   Set or clear negotiated rate
    POST   /policies/{id}/reconcile     Create missing installments
    DELETE /policies/{id}               Purge policy and dependents
    GET    /policies/{id}/rate?date=    Resolve commission rate

  Payments:
    GET    /policies/{id}/payments      List payments
    POST   /policies/{id}/payments      Record ad-hoc payment
    POST   /payments/{id}/complete      PENDING -> COMPLETED
    DELETE /payments/{id}               Void (guarded)

  Commissions:
    GET    /commission-rules            List rules (?insurer_id=)
    POST   /commission-rules            Create rule
    GET    /commissions                 List (?policy_id=&producer_id=&status=&period=)
    POST   /commissions/{id}/paid       PENDING -> PAID
    POST   /commissions/{id}/void       PENDING -> VOID

  Renewals:
    GET    /renewals/{id}               Get renewal
    PUT    /renewals/{id}               Edit pending terms
    POST   /renewals/{id}/process       Process atomically
    POST   /renewals/{id}/reject        Reject
    DELETE /renewals/{id}               Delete pending

  Admin:
    POST   /admin/commissions/backfill  Retroactive commission generation
    POST   /admin/renewals/generate     Renewal sweep (?days=)
    GET    /admin/scenarios             Demo scenario catalog (scenarios.go)
    POST   /admin/scenarios/load        Load a demo scenario

ERROR HANDLING:
  See errors.go. Errors are returned as JSON with appropriate HTTP status.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/warp/brokerage-engine/engine"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *engine.Engine
	Today  func() engine.Date
	Log    zerolog.Logger
}

// NewHandler creates a new handler over the engine.
func NewHandler(e *engine.Engine, log zerolog.Logger) *Handler {
	return &Handler{Engine: e, Today: engine.Today, Log: log}
}

func (h *Handler) today() engine.Date {
	if h.Today != nil {
		return h.Today()
	}
	return engine.Today()
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// CreatePolicy creates a policy and its initial installment schedule.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req CreatePolicyRequest
	if !decode(w, r, &req) {
		return
	}

	start, err := engine.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}
	end, err := engine.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date", err)
		return
	}

	policy, schedule, err := h.Engine.Policies.Create(r.Context(), engine.NewPolicy{
		CompanyID:            req.CompanyID,
		PolicyNumber:         req.PolicyNumber,
		ClientID:             req.ClientID,
		InsurerID:            req.InsurerID,
		CategoryID:           req.CategoryID,
		ProducerID:           req.ProducerID,
		StartDate:            start,
		EndDate:              end,
		Premium:              req.Premium,
		Cadence:              engine.Cadence(strings.ToUpper(req.Cadence)),
		CustomCommissionRate: req.CustomCommissionRate,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, PolicyResponse{Policy: toPolicyDTO(policy), Schedule: toScheduleDTO(schedule)})
}

// GetPolicy returns a single policy.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.Engine.Policies.Get(r.Context(), policyID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(policy))
}

// ChangeCadence switches the payment cadence while no payment exists.
func (h *Handler) ChangeCadence(w http.ResponseWriter, r *http.Request) {
	var req ChangeCadenceRequest
	if !decode(w, r, &req) {
		return
	}
	policy, err := h.Engine.Policies.ChangeCadence(r.Context(), policyID(r), engine.Cadence(strings.ToUpper(req.Cadence)))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PolicyResponse{Policy: toPolicyDTO(policy)})
}

// UpdatePremium reprices the policy and reconciles its schedule.
func (h *Handler) UpdatePremium(w http.ResponseWriter, r *http.Request) {
	var req UpdatePremiumRequest
	if !decode(w, r, &req) {
		return
	}
	policy, schedule, err := h.Engine.Policies.UpdatePremium(r.Context(), policyID(r), req.Premium)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PolicyResponse{Policy: toPolicyDTO(policy), Schedule: toScheduleDTO(schedule)})
}

// SetPolicyStatus moves the policy to another lifecycle status.
func (h *Handler) SetPolicyStatus(w http.ResponseWriter, r *http.Request) {
	var req SetStatusRequest
	if !decode(w, r, &req) {
		return
	}
	policy, err := h.Engine.Policies.SetStatus(r.Context(), policyID(r), engine.PolicyStatus(strings.ToUpper(req.Status)))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PolicyResponse{Policy: toPolicyDTO(policy)})
}

// SetCustomRate sets or clears (null) the negotiated commission rate.
func (h *Handler) SetCustomRate(w http.ResponseWriter, r *http.Request) {
	var req SetCustomRateRequest
	if !decode(w, r, &req) {
		return
	}
	policy, err := h.Engine.Policies.SetCustomRate(r.Context(), policyID(r), req.Rate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PolicyResponse{Policy: toPolicyDTO(policy)})
}

// ReconcilePolicy creates any installments missing from the schedule.
func (h *Handler) ReconcilePolicy(w http.ResponseWriter, r *http.Request) {
	result, err := h.Engine.Reconciler.Reconcile(r.Context(), policyID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(result))
}

// PurgePolicy permanently deletes a policy and all dependent rows.
func (h *Handler) PurgePolicy(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Policies.Purge(r.Context(), policyID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResolveRate reports the commission rate for the policy at ?date= (default
// today).
func (h *Handler) ResolveRate(w http.ResponseWriter, r *http.Request) {
	at := h.today()
	if s := r.URL.Query().Get("date"); s != "" {
		d, err := engine.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
		at = d
	}

	rate, err := h.Engine.Rules.ResolveForPolicy(r.Context(), policyID(r), at)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dto := RateDTO{PolicyID: string(policyID(r)), Date: at.String(), Rate: rate.Percent}
	if rate.Rule != nil {
		rule := toRuleDTO(*rate.Rule)
		dto.Rule = &rule
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ListPayments returns every payment of a policy.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Engine.Payments.ListPayments(r.Context(), policyID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

// RecordPayment records an ad-hoc payment against a policy.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if !decode(w, r, &req) {
		return
	}
	due, err := optionalDate(req.DueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid due_date", err)
		return
	}
	paidAt, err := optionalDate(req.PaidAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid paid_at", err)
		return
	}

	payment, err := h.Engine.Payments.RecordPayment(r.Context(), engine.NewPayment{
		PolicyID: policyID(r),
		Amount:   req.Amount,
		DueDate:  due,
		PaidAt:   paidAt,
		Method:   req.Method,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(payment))
}

// CompletePayment marks a pending payment COMPLETED. The body is optional.
func (h *Handler) CompletePayment(w http.ResponseWriter, r *http.Request) {
	var req CompletePaymentRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	paidAt, err := optionalDate(req.PaidAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid paid_at", err)
		return
	}

	payment, err := h.Engine.Payments.CompletePayment(r.Context(), engine.PaymentID(chi.URLParam(r, "id")), paidAt)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(payment))
}

// VoidPayment voids a payment unless that would underfund its policy.
func (h *Handler) VoidPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.Engine.Reconciler.VoidPayment(r.Context(), engine.PaymentID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(payment))
}

// =============================================================================
// COMMISSION HANDLERS
// =============================================================================

// ListRules returns commission rules, optionally for one insurer.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Engine.Rules.ListRules(r.Context(), r.URL.Query().Get("insurer_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]RuleDTO, len(rules))
	for i, rule := range rules {
		dtos[i] = toRuleDTO(rule)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRule adds a commission rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if !decode(w, r, &req) {
		return
	}
	from, err := engine.ParseDate(req.EffectiveFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_from", err)
		return
	}
	to, err := optionalDate(req.EffectiveTo)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_to", err)
		return
	}

	rule, err := h.Engine.Rules.CreateRule(r.Context(), engine.NewRule{
		CompanyID:     req.CompanyID,
		InsurerID:     req.InsurerID,
		CategoryID:    req.CategoryID,
		Rate:          req.Rate,
		EffectiveFrom: from,
		EffectiveTo:   to,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleDTO(rule))
}

// ListCommissions returns commissions matching the query filters.
func (h *Handler) ListCommissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	commissions, err := h.Engine.Commissions.List(r.Context(), engine.CommissionFilter{
		PolicyID:   engine.PolicyID(q.Get("policy_id")),
		ProducerID: q.Get("producer_id"),
		Status:     engine.CommissionStatus(strings.ToUpper(q.Get("status"))),
		Period:     q.Get("period"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]CommissionDTO, len(commissions))
	for i, c := range commissions {
		dtos[i] = toCommissionDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// MarkCommissionPaid moves a commission to PAID.
func (h *Handler) MarkCommissionPaid(w http.ResponseWriter, r *http.Request) {
	c, err := h.Engine.Commissions.MarkPaid(r.Context(), engine.CommissionID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommissionDTO(c))
}

// VoidCommission moves a commission to VOID.
func (h *Handler) VoidCommission(w http.ResponseWriter, r *http.Request) {
	c, err := h.Engine.Commissions.Void(r.Context(), engine.CommissionID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommissionDTO(c))
}

// =============================================================================
// RENEWAL HANDLERS
// =============================================================================

func (h *Handler) GetRenewal(w http.ResponseWriter, r *http.Request) {
	renewal, err := h.Engine.Renewals.Get(r.Context(), renewalID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRenewalDTO(renewal, h.today()))
}

// UpdateRenewal edits the terms of a pending renewal.
func (h *Handler) UpdateRenewal(w http.ResponseWriter, r *http.Request) {
	terms, ok := decodeTerms(w, r)
	if !ok {
		return
	}
	renewal, err := h.Engine.Renewals.UpdatePending(r.Context(), renewalID(r), terms)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRenewalDTO(renewal, h.today()))
}

// ProcessRenewal applies the terms to the policy and marks the renewal
// PROCESSED in one transaction.
func (h *Handler) ProcessRenewal(w http.ResponseWriter, r *http.Request) {
	terms, ok := decodeTerms(w, r)
	if !ok {
		return
	}
	renewal, err := h.Engine.Renewals.Process(r.Context(), renewalID(r), terms, actorFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRenewalDTO(renewal, h.today()))
}

func (h *Handler) RejectRenewal(w http.ResponseWriter, r *http.Request) {
	renewal, err := h.Engine.Renewals.Reject(r.Context(), renewalID(r), actorFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRenewalDTO(renewal, h.today()))
}

func (h *Handler) DeleteRenewal(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Renewals.Delete(r.Context(), renewalID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// BackfillCommissions generates commissions missing for completed payments.
func (h *Handler) BackfillCommissions(w http.ResponseWriter, r *http.Request) {
	report, err := h.Engine.Commissions.GenerateMissingForHistory(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := BackfillResponse{Created: report.Created, Skipped: report.Skipped, Errors: report.Errors}
	for _, f := range report.Failures {
		resp.Failures = append(resp.Failures, FailureDTO{ID: string(f.PaymentID), Error: f.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GenerateRenewals runs the renewal sweep for ?days= (default 60).
func (h *Handler) GenerateRenewals(w http.ResponseWriter, r *http.Request) {
	days := 60
	if s := r.URL.Query().Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid days", err)
			return
		}
		days = n
	}

	report, err := h.Engine.Renewals.GenerateRenewals(r.Context(), days)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := GenerateRenewalsResponse{
		DaysAhead: days,
		Created:   make([]RenewalDTO, len(report.Created)),
		Skipped:   report.Skipped,
		Errors:    report.Errors,
	}
	for i, renewal := range report.Created {
		resp.Created[i] = toRenewalDTO(renewal, h.today())
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Engine.Store.(interface{ Ping(ctx context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if status == http.StatusBadRequest {
		resp.Code = CodeInvalidInput
	}
	if status == http.StatusUnauthorized {
		resp.Code = CodeUnauthorized
	}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func decodeTerms(w http.ResponseWriter, r *http.Request) (engine.RenewalTerms, bool) {
	var req RenewalTermsRequest
	if !decode(w, r, &req) {
		return engine.RenewalTerms{}, false
	}
	end, err := engine.ParseDate(req.NewEndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid new_end_date", err)
		return engine.RenewalTerms{}, false
	}
	return engine.RenewalTerms{NewEndDate: end, NewPremium: req.NewPremium}, true
}

func optionalDate(s string) (*engine.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := engine.ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", s, err)
	}
	return &d, nil
}

func policyID(r *http.Request) engine.PolicyID {
	return engine.PolicyID(chi.URLParam(r, "id"))
}

func renewalID(r *http.Request) engine.RenewalID {
	return engine.RenewalID(chi.URLParam(r, "id"))
}
