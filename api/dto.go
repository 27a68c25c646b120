/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

FORMATS:
  Dates are "YYYY-MM-DD" strings. Money and rates are decimal strings
  ("2000.00", "12.5") so no precision is lost in transit.

VALIDATION:
  Validation is done in the engine, not in DTOs. DTOs are pure data carriers;
  handlers only parse dates and enums.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/shopspring/decimal"
	"github.com/warp/brokerage-engine/engine"
)

// =============================================================================
// POLICIES
// =============================================================================

// PolicyDTO represents a policy in API responses.
type PolicyDTO struct {
	ID                   string           `json:"id"`
	CompanyID            string           `json:"company_id"`
	PolicyNumber         string           `json:"policy_number"`
	ClientID             string           `json:"client_id"`
	InsurerID            string           `json:"insurer_id"`
	CategoryID           string           `json:"category_id,omitempty"`
	ProducerID           string           `json:"producer_id,omitempty"`
	StartDate            string           `json:"start_date"`
	EndDate              string           `json:"end_date"`
	Premium              decimal.Decimal  `json:"premium"`
	Cadence              string           `json:"cadence"`
	CustomCommissionRate *decimal.Decimal `json:"custom_commission_rate,omitempty"`
	Status               string           `json:"status"`
	CreatedAt            string           `json:"created_at,omitempty"`
}

// CreatePolicyRequest is the request to create a policy. CompanyID is only
// honored for superusers.
type CreatePolicyRequest struct {
	CompanyID            string           `json:"company_id"`
	PolicyNumber         string           `json:"policy_number"`
	ClientID             string           `json:"client_id"`
	InsurerID            string           `json:"insurer_id"`
	CategoryID           string           `json:"category_id"`
	ProducerID           string           `json:"producer_id"`
	StartDate            string           `json:"start_date"`
	EndDate              string           `json:"end_date"`
	Premium              decimal.Decimal  `json:"premium"`
	Cadence              string           `json:"cadence"`
	CustomCommissionRate *decimal.Decimal `json:"custom_commission_rate"`
}

// PolicyResponse wraps a policy with the schedule change an edit caused.
type PolicyResponse struct {
	Policy   PolicyDTO    `json:"policy"`
	Schedule *ScheduleDTO `json:"schedule,omitempty"`
}

type ChangeCadenceRequest struct {
	Cadence string `json:"cadence"`
}

type UpdatePremiumRequest struct {
	Premium decimal.Decimal `json:"premium"`
}

type SetStatusRequest struct {
	Status string `json:"status"`
}

type SetCustomRateRequest struct {
	Rate *decimal.Decimal `json:"rate"`
}

// ScheduleDTO reports what a reconciliation did.
type ScheduleDTO struct {
	PolicyID       string          `json:"policy_id"`
	Shortage       decimal.Decimal `json:"shortage"`
	PerInstallment decimal.Decimal `json:"per_installment"`
	Created        []PaymentDTO    `json:"created"`
	Dropped        int             `json:"dropped"`
	NoActionNeeded bool            `json:"no_action_needed"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentDTO represents a payment in API responses.
type PaymentDTO struct {
	ID           string          `json:"id"`
	PolicyID     string          `json:"policy_id"`
	Amount       decimal.Decimal `json:"amount"`
	DueDate      string          `json:"due_date,omitempty"`
	PaymentDate  string          `json:"payment_date,omitempty"`
	Method       string          `json:"method,omitempty"`
	Status       string          `json:"status"`
	ReminderDays int             `json:"reminder_days"`
}

// RecordPaymentRequest records an ad-hoc payment. A paid_at date records it
// as COMPLETED.
type RecordPaymentRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	DueDate string          `json:"due_date"`
	PaidAt  string          `json:"paid_at"`
	Method  string          `json:"method"`
}

type CompletePaymentRequest struct {
	PaidAt string `json:"paid_at"`
}

// =============================================================================
// COMMISSIONS
// =============================================================================

// RuleDTO represents a commission rule.
type RuleDTO struct {
	ID            string          `json:"id"`
	InsurerID     string          `json:"insurer_id"`
	CategoryID    string          `json:"category_id,omitempty"`
	Rate          decimal.Decimal `json:"rate"`
	EffectiveFrom string          `json:"effective_from"`
	EffectiveTo   string          `json:"effective_to,omitempty"`
}

type CreateRuleRequest struct {
	CompanyID     string          `json:"company_id"`
	InsurerID     string          `json:"insurer_id"`
	CategoryID    string          `json:"category_id"`
	Rate          decimal.Decimal `json:"rate"`
	EffectiveFrom string          `json:"effective_from"`
	EffectiveTo   string          `json:"effective_to"`
}

// RateDTO is a resolved rate. Rule is absent when the policy's custom rate
// applied.
type RateDTO struct {
	PolicyID string          `json:"policy_id"`
	Date     string          `json:"date"`
	Rate     decimal.Decimal `json:"rate"`
	Rule     *RuleDTO        `json:"rule,omitempty"`
}

// CommissionDTO represents a commission.
type CommissionDTO struct {
	ID            string          `json:"id"`
	PolicyID      string          `json:"policy_id"`
	ProducerID    string          `json:"producer_id"`
	PaymentID     string          `json:"payment_id,omitempty"`
	RuleID        string          `json:"rule_id,omitempty"`
	PremiumAmount decimal.Decimal `json:"premium_amount"`
	Rate          decimal.Decimal `json:"rate"`
	Amount        decimal.Decimal `json:"amount"`
	Period        string          `json:"period,omitempty"`
	Status        string          `json:"status"`
	CreatedAt     string          `json:"created_at"`
}

// BackfillResponse summarizes a commission backfill.
type BackfillResponse struct {
	Created  int          `json:"created"`
	Skipped  int          `json:"skipped"`
	Errors   int          `json:"errors"`
	Failures []FailureDTO `json:"failures,omitempty"`
}

type FailureDTO struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// =============================================================================
// RENEWALS
// =============================================================================

// RenewalDTO represents a renewal. EffectiveStatus shows EXPIRED for pending
// renewals past their original end date.
type RenewalDTO struct {
	ID              string           `json:"id"`
	PolicyID        string           `json:"policy_id"`
	OriginalEndDate string           `json:"original_end_date"`
	NewEndDate      string           `json:"new_end_date,omitempty"`
	NewPremium      *decimal.Decimal `json:"new_premium,omitempty"`
	Status          string           `json:"status"`
	EffectiveStatus string           `json:"effective_status"`
	ProcessedBy     string           `json:"processed_by,omitempty"`
	CreatedAt       string           `json:"created_at"`
}

// RenewalTermsRequest carries new terms for process and edit.
type RenewalTermsRequest struct {
	NewEndDate string           `json:"new_end_date"`
	NewPremium *decimal.Decimal `json:"new_premium"`
}

// GenerateRenewalsResponse summarizes a renewal sweep.
type GenerateRenewalsResponse struct {
	DaysAhead int          `json:"days_ahead"`
	Created   []RenewalDTO `json:"created"`
	Skipped   int          `json:"skipped"`
	Errors    int          `json:"errors"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// LoadScenarioResponse lists what a scenario created.
type LoadScenarioResponse struct {
	ScenarioID string      `json:"scenario_id"`
	Policies   []PolicyDTO `json:"policies"`
	Payments   int         `json:"payments"`
	Dropped    int         `json:"dropped"`
	Renewals   int         `json:"renewals"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// ShortfallDetails accompanies an UNDERFUNDED_POLICY error.
type ShortfallDetails struct {
	PolicyID  string          `json:"policy_id"`
	Premium   decimal.Decimal `json:"premium"`
	Remaining decimal.Decimal `json:"remaining"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPolicyDTO(p engine.Policy) PolicyDTO {
	return PolicyDTO{
		ID:                   string(p.ID),
		CompanyID:            p.CompanyID,
		PolicyNumber:         p.PolicyNumber,
		ClientID:             p.ClientID,
		InsurerID:            p.InsurerID,
		CategoryID:           p.CategoryID,
		ProducerID:           p.ProducerID,
		StartDate:            p.StartDate.String(),
		EndDate:              p.EndDate.String(),
		Premium:              p.Premium,
		Cadence:              string(p.Cadence),
		CustomCommissionRate: p.CustomCommissionRate,
		Status:               string(p.Status),
		CreatedAt:            p.CreatedAt.String(),
	}
}

func toScheduleDTO(r engine.ReconcileResult) *ScheduleDTO {
	return &ScheduleDTO{
		PolicyID:       string(r.PolicyID),
		Shortage:       r.Shortage,
		PerInstallment: r.PerInstallment,
		Created:        toPaymentDTOs(r.Created),
		Dropped:        r.Dropped,
		NoActionNeeded: r.NoActionNeeded(),
	}
}

func toPaymentDTO(p engine.Payment) PaymentDTO {
	return PaymentDTO{
		ID:           string(p.ID),
		PolicyID:     string(p.PolicyID),
		Amount:       p.Amount,
		DueDate:      dateString(p.DueDate),
		PaymentDate:  dateString(p.PaymentDate),
		Method:       p.Method,
		Status:       string(p.Status),
		ReminderDays: p.ReminderDays,
	}
}

func toPaymentDTOs(payments []engine.Payment) []PaymentDTO {
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	return dtos
}

func toRuleDTO(r engine.CommissionRule) RuleDTO {
	return RuleDTO{
		ID:            string(r.ID),
		InsurerID:     r.InsurerID,
		CategoryID:    r.CategoryID,
		Rate:          r.Rate,
		EffectiveFrom: r.EffectiveFrom.String(),
		EffectiveTo:   dateString(r.EffectiveTo),
	}
}

func toCommissionDTO(c engine.Commission) CommissionDTO {
	dto := CommissionDTO{
		ID:            string(c.ID),
		PolicyID:      string(c.PolicyID),
		ProducerID:    c.ProducerID,
		PremiumAmount: c.PremiumAmount,
		Rate:          c.Rate,
		Amount:        c.Amount,
		Period:        c.Period,
		Status:        string(c.Status),
		CreatedAt:     c.CreatedAt.String(),
	}
	if c.PaymentID != nil {
		dto.PaymentID = string(*c.PaymentID)
	}
	if c.RuleID != nil {
		dto.RuleID = string(*c.RuleID)
	}
	return dto
}

func toRenewalDTO(r engine.Renewal, today engine.Date) RenewalDTO {
	return RenewalDTO{
		ID:              string(r.ID),
		PolicyID:        string(r.PolicyID),
		OriginalEndDate: r.OriginalEndDate.String(),
		NewEndDate:      dateString(r.NewEndDate),
		NewPremium:      r.NewPremium,
		Status:          string(r.Status),
		EffectiveStatus: string(r.EffectiveStatus(today)),
		ProcessedBy:     r.ProcessedBy,
		CreatedAt:       r.CreatedAt.String(),
	}
}

func dateString(d *engine.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}
