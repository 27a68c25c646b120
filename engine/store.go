/*
store.go - Persistence interface for the engine

PURPOSE:
  Defines the boundary between the domain logic and the database. The engine
  never issues SQL; it asks a Store for rows and for the narrow conditional
  transitions it needs.

KEY INTERFACES:
  PolicyStore:     policies (tenant-scoped lookups, purge)
  PaymentStore:    installments and ad-hoc payments
  RuleStore:       commission rate tables
  CommissionStore: generated commissions
  RenewalStore:    renewal rollovers
  Store:           all of the above plus WithTx

TENANT SCOPING:
  Lookups that start from a user-supplied id take an explicit Tenant and
  must apply Tenant.Filter(): filter by company when ok, omit the filter
  entirely when bypassing. Lookups keyed by a parent the engine already
  loaded under a tenant (payments of a policy) are not re-filtered.

CONDITIONAL TRANSITIONS:
  Every status change is "UPDATE ... WHERE status = <from>" and reports
  whether a row changed. A false result means another caller got there
  first; the engine turns it into ErrInvalidState. This is the guard that
  keeps two concurrent renewal-processing calls from both succeeding.

ATOMICITY:
  WithTx runs fn against a Store bound to one transaction. If fn returns an
  error nothing it wrote is kept.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite (production)
  - engine/store/memory.go: in-memory (tests, dev)
*/
package engine

import "context"

// =============================================================================
// STORE - Interfaces for engine persistence
// =============================================================================

type PolicyStore interface {
	// GetPolicy returns ErrPolicyNotFound when absent or outside t.
	GetPolicy(ctx context.Context, t Tenant, id PolicyID) (Policy, error)

	// InsertPolicy returns ErrDuplicatePolicyNumber when the number is taken
	// within the policy's company.
	InsertPolicy(ctx context.Context, p Policy) error

	// UpdatePolicy overwrites the mutable fields (end date, premium, cadence,
	// custom rate, status). Returns ErrPolicyNotFound when no row matched.
	UpdatePolicy(ctx context.Context, p Policy) error

	// ListExpiringPolicies returns ACTIVE policies whose end date lies in
	// [from, to], ordered by end date then id.
	ListExpiringPolicies(ctx context.Context, t Tenant, from, to Date) ([]Policy, error)

	// PurgePolicy permanently deletes a policy and every dependent row.
	// Callers run it inside WithTx.
	PurgePolicy(ctx context.Context, id PolicyID) error
}

type PaymentStore interface {
	// GetPayment returns ErrPaymentNotFound when absent or outside t.
	GetPayment(ctx context.Context, t Tenant, id PaymentID) (Payment, error)

	// ListPayments returns every payment of a policy (voided included),
	// ordered by due date with undated payments last.
	ListPayments(ctx context.Context, policyID PolicyID) ([]Payment, error)

	InsertPayments(ctx context.Context, payments []Payment) error

	// TransitionPayment moves a payment from one status to another. paidAt,
	// when non-nil, is stored as the payment date.
	TransitionPayment(ctx context.Context, id PaymentID, from, to PaymentStatus, paidAt *Date) (bool, error)

	// ListCompletedPayments returns COMPLETED payments ordered by payment
	// date ascending (oldest first), then id.
	ListCompletedPayments(ctx context.Context, t Tenant) ([]Payment, error)
}

type RuleStore interface {
	InsertRule(ctx context.Context, r CommissionRule) error

	// ListRules returns the rules visible in t; an empty insurerID lists all.
	ListRules(ctx context.Context, t Tenant, insurerID string) ([]CommissionRule, error)

	// CandidateRules returns the rules of insurerID effective at `at` whose
	// category is categoryID or empty. Ordering is left to the caller.
	CandidateRules(ctx context.Context, t Tenant, insurerID, categoryID string, at Date) ([]CommissionRule, error)
}

// CommissionFilter narrows ListCommissions. Zero fields match everything.
type CommissionFilter struct {
	PolicyID   PolicyID
	ProducerID string
	Status     CommissionStatus
	Period     string
}

type CommissionStore interface {
	// InsertCommission returns ErrDuplicateCommission when a commission for
	// the same PaymentID already exists.
	InsertCommission(ctx context.Context, c Commission) error

	// GetCommission returns ErrCommissionNotFound when absent or outside t.
	GetCommission(ctx context.Context, t Tenant, id CommissionID) (Commission, error)

	ListCommissions(ctx context.Context, t Tenant, f CommissionFilter) ([]Commission, error)

	// HasCommissionForPayment reports whether a commission references the
	// payment.
	HasCommissionForPayment(ctx context.Context, id PaymentID) (bool, error)

	TransitionCommission(ctx context.Context, id CommissionID, from, to CommissionStatus) (bool, error)
}

type RenewalStore interface {
	// GetRenewal returns ErrRenewalNotFound when absent or outside t.
	GetRenewal(ctx context.Context, t Tenant, id RenewalID) (Renewal, error)

	InsertRenewal(ctx context.Context, r Renewal) error

	HasPendingRenewal(ctx context.Context, policyID PolicyID) (bool, error)

	// ProcessRenewal sets PROCESSED, the new terms and processedBy where the
	// renewal is still PENDING.
	ProcessRenewal(ctx context.Context, id RenewalID, terms RenewalTerms, processedBy string) (bool, error)

	// RejectRenewal sets REJECTED where the renewal is still PENDING.
	RejectRenewal(ctx context.Context, id RenewalID, rejectedBy string) (bool, error)

	// UpdatePendingRenewal edits proposed terms where the renewal is PENDING.
	UpdatePendingRenewal(ctx context.Context, id RenewalID, terms RenewalTerms) (bool, error)

	// DeletePendingRenewal removes a renewal that is still PENDING.
	DeletePendingRenewal(ctx context.Context, id RenewalID) (bool, error)
}

// Store is the full persistence surface the engine needs.
type Store interface {
	PolicyStore
	PaymentStore
	RuleStore
	CommissionStore
	RenewalStore

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
