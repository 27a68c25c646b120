/*
Package engine provides the premium reconciliation and commission resolution core.

PURPOSE:
  This package owns the only parts of the brokerage back office that carry
  real invariants: keeping a policy's installments reconciled against its
  premium, resolving which commission rate applies to a payment, generating
  commission records idempotently, and rolling a policy over through renewal
  as one atomic unit. HTTP, persistence, and messaging live elsewhere and
  talk to this package through the Store interface and plain method calls.

KEY CONCEPTS IN THIS FILE (types.go):
  - Policy: an insurance contract with a premium and a payment cadence
  - Payment: one installment or ad-hoc charge against a policy
  - CommissionRule: tenant-scoped rate table entry (insurer, optional category)
  - Commission: amount owed to a producer for one payment
  - Renewal: a pending or completed rollover of a policy's term

DESIGN PRINCIPLES:
  1. Precision: money and rates use decimal.Decimal, never float64
  2. Explicit state: soft deletes are terminal statuses (VOID, CANCELLED),
     not boolean flags
  3. Type Safety: distinct ID types prevent mixing policy/payment/renewal ids
  4. Tenant isolation: every persisted row carries its CompanyID

SEE ALSO:
  - rate.go: RateResolver
  - schedule.go: ScheduleReconciler
  - commission.go: CommissionGenerator
  - renewal.go: RenewalProcessor
  - tenant.go: Tenant scope carried on context.Context
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PolicyID string
type PaymentID string
type RuleID string
type CommissionID string
type RenewalID string

// =============================================================================
// POLICY
// =============================================================================

// Cadence is the installment frequency of a policy.
type Cadence string

const (
	CadenceMonthly    Cadence = "MONTHLY"
	CadenceQuarterly  Cadence = "QUARTERLY"
	CadenceSemiannual Cadence = "SEMIANNUAL"
	CadenceAnnual     Cadence = "ANNUAL"
)

// Installments returns how many installments a one-year term is split into.
func (c Cadence) Installments() int {
	switch c {
	case CadenceMonthly:
		return 12
	case CadenceQuarterly:
		return 4
	case CadenceSemiannual:
		return 2
	case CadenceAnnual:
		return 1
	default:
		return 0
	}
}

// MonthStep returns the number of months between two installments.
func (c Cadence) MonthStep() int {
	if n := c.Installments(); n > 0 {
		return 12 / n
	}
	return 0
}

func (c Cadence) Valid() bool { return c.Installments() > 0 }

type PolicyStatus string

const (
	PolicyActive    PolicyStatus = "ACTIVE"
	PolicyExpired   PolicyStatus = "EXPIRED"
	PolicyCancelled PolicyStatus = "CANCELLED"
	PolicyInRenewal PolicyStatus = "IN_RENEWAL"
)

func (s PolicyStatus) Valid() bool {
	switch s {
	case PolicyActive, PolicyExpired, PolicyCancelled, PolicyInRenewal:
		return true
	}
	return false
}

// Policy is an insurance contract.
type Policy struct {
	ID                   PolicyID
	CompanyID            string
	PolicyNumber         string
	ClientID             string
	InsurerID            string
	CategoryID           string
	ProducerID           string // the policy's creator; empty means no accountable producer
	StartDate            Date
	EndDate              Date
	Premium              decimal.Decimal
	Cadence              Cadence
	CustomCommissionRate *decimal.Decimal // negotiated per-contract override, percent
	Status               PolicyStatus
	CreatedAt            Date
}

// =============================================================================
// PAYMENT
// =============================================================================

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentVoid      PaymentStatus = "VOID"
)

// Payment is one installment or ad-hoc payment against a policy.
type Payment struct {
	ID           PaymentID
	CompanyID    string
	PolicyID     PolicyID
	Amount       decimal.Decimal
	DueDate      *Date // nil for point-in-time payments
	PaymentDate  *Date // set once the payment completes
	Method       string
	Status       PaymentStatus
	ReminderDays int
}

// Active reports whether the payment counts toward the premium.
func (p Payment) Active() bool { return p.Status != PaymentVoid }

// SumActive totals the amounts of all non-voided payments.
func SumActive(payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if p.Active() {
			total = total.Add(p.Amount)
		}
	}
	return total
}

// =============================================================================
// COMMISSION RULES & COMMISSIONS
// =============================================================================

// CommissionRule is a rate table entry. An empty CategoryID applies to every
// category of the insurer; a nil EffectiveTo is open-ended.
type CommissionRule struct {
	ID            RuleID
	CompanyID     string
	InsurerID     string
	CategoryID    string
	Rate          decimal.Decimal
	EffectiveFrom Date
	EffectiveTo   *Date
}

// IsGeneral reports whether the rule applies to all categories of its insurer.
func (r CommissionRule) IsGeneral() bool { return r.CategoryID == "" }

// Covers reports whether the rule's effective window contains at.
func (r CommissionRule) Covers(at Date) bool {
	if at.Before(r.EffectiveFrom) {
		return false
	}
	return r.EffectiveTo == nil || !at.After(*r.EffectiveTo)
}

type CommissionStatus string

const (
	CommissionPending CommissionStatus = "PENDING"
	CommissionPaid    CommissionStatus = "PAID"
	CommissionVoid    CommissionStatus = "VOID"
)

// Commission is the amount owed to a producer for one payment.
type Commission struct {
	ID            CommissionID
	CompanyID     string
	PolicyID      PolicyID
	ProducerID    string
	PaymentID     *PaymentID // idempotency key; nil on legacy rows
	RuleID        *RuleID    // nil when the policy carried a custom rate
	PremiumAmount decimal.Decimal
	Rate          decimal.Decimal
	Amount        decimal.Decimal
	Period        string // e.g. "2024-03"
	Status        CommissionStatus
	CreatedAt     Date
}

// =============================================================================
// RENEWAL
// =============================================================================

type RenewalStatus string

const (
	RenewalPending   RenewalStatus = "PENDING"
	RenewalProcessed RenewalStatus = "PROCESSED"
	RenewalRejected  RenewalStatus = "REJECTED"
	RenewalExpired   RenewalStatus = "EXPIRED"
)

// Renewal is a rollover of a policy's term.
type Renewal struct {
	ID              RenewalID
	CompanyID       string
	PolicyID        PolicyID
	OriginalEndDate Date
	NewEndDate      *Date
	NewPremium      *decimal.Decimal
	Status          RenewalStatus
	ProcessedBy     string
	CreatedAt       Date
}

// EffectiveStatus reports EXPIRED for a pending renewal whose original end
// date has passed. Expiry is a reporting view, never a stored transition.
func (r Renewal) EffectiveStatus(today Date) RenewalStatus {
	if r.Status == RenewalPending && today.After(r.OriginalEndDate) {
		return RenewalExpired
	}
	return r.Status
}

// RenewalTerms are the new terms applied when a renewal is processed.
type RenewalTerms struct {
	NewEndDate Date
	NewPremium *decimal.Decimal
}
