package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// POLICY SERVICE - Policy lifecycle around the schedule invariant
// =============================================================================

// PolicyService creates and edits policies. Every edit that can move the
// premium re-runs the reconciler in the same transaction.
type PolicyService struct {
	Store      Store
	Reconciler *ScheduleReconciler
	Today      func() Date
	Log        zerolog.Logger
}

// NewPolicy is the input for Create. CompanyID is only read under a bypass
// scope; a company-scoped caller always creates in its own company.
type NewPolicy struct {
	CompanyID            string
	PolicyNumber         string
	ClientID             string
	InsurerID            string
	CategoryID           string
	ProducerID           string
	StartDate            Date
	EndDate              Date
	Premium              decimal.Decimal
	Cadence              Cadence
	CustomCommissionRate *decimal.Decimal
}

func (s *PolicyService) today() Date {
	if s.Today != nil {
		return s.Today()
	}
	return Today()
}

func (in NewPolicy) validate() error {
	switch {
	case in.PolicyNumber == "":
		return invalid("policy_number", "required")
	case in.ClientID == "":
		return invalid("client_id", "required")
	case in.InsurerID == "":
		return invalid("insurer_id", "required")
	case in.StartDate.IsZero() || in.EndDate.IsZero():
		return invalid("start_date", "start and end dates are required")
	case !in.EndDate.After(in.StartDate):
		return invalid("end_date", "must be after start_date")
	case in.Premium.IsNegative():
		return invalid("premium", "must not be negative")
	case !in.Cadence.Valid():
		return invalid("cadence", "unknown payment cadence "+string(in.Cadence))
	}
	return validateRate("custom_commission_rate", in.CustomCommissionRate)
}

func validateRate(field string, rate *decimal.Decimal) error {
	if rate == nil {
		return nil
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return invalid(field, "must be between 0 and 100")
	}
	return nil
}

// Create inserts the policy and its initial installment schedule in one
// transaction.
func (s *PolicyService) Create(ctx context.Context, in NewPolicy) (Policy, ReconcileResult, error) {
	t, err := TenantFrom(ctx)
	if err != nil {
		return Policy{}, ReconcileResult{}, err
	}
	if err := in.validate(); err != nil {
		return Policy{}, ReconcileResult{}, err
	}

	companyID, scoped := t.Filter()
	if !scoped {
		if in.CompanyID == "" {
			return Policy{}, ReconcileResult{}, invalid("company_id", "required when acting across companies")
		}
		companyID = in.CompanyID
	}

	policy := Policy{
		ID:                   PolicyID(uuid.NewString()),
		CompanyID:            companyID,
		PolicyNumber:         in.PolicyNumber,
		ClientID:             in.ClientID,
		InsurerID:            in.InsurerID,
		CategoryID:           in.CategoryID,
		ProducerID:           in.ProducerID,
		StartDate:            in.StartDate,
		EndDate:              in.EndDate,
		Premium:              in.Premium,
		Cadence:              in.Cadence,
		CustomCommissionRate: in.CustomCommissionRate,
		Status:               PolicyActive,
		CreatedAt:            s.today(),
	}

	var result ReconcileResult
	err = s.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.InsertPolicy(ctx, policy); err != nil {
			return err
		}
		result, err = s.Reconciler.reconcileIn(ctx, tx, policy)
		return err
	})
	if err != nil {
		return Policy{}, ReconcileResult{}, err
	}

	s.Log.Info().
		Str("policy_id", string(policy.ID)).
		Str("company_id", policy.CompanyID).
		Str("premium", policy.Premium.String()).
		Int("installments", len(result.Created)).
		Msg("policy created")
	return policy, result, nil
}

// Get returns a policy visible in the tenant scope.
func (s *PolicyService) Get(ctx context.Context, id PolicyID) (Policy, error) {
	t, err := TenantFrom(ctx)
	if err != nil {
		return Policy{}, err
	}
	return s.Store.GetPolicy(ctx, t, id)
}

// ChangeCadence delegates to the reconciler, which owns the guard.
func (s *PolicyService) ChangeCadence(ctx context.Context, id PolicyID, cadence Cadence) (Policy, error) {
	return s.Reconciler.ChangeCadence(ctx, id, cadence)
}

// UpdatePremium sets a new premium and reconciles. A lower premium leaves the
// policy overpaid; nothing is voided automatically.
func (s *PolicyService) UpdatePremium(ctx context.Context, id PolicyID, premium decimal.Decimal) (Policy, ReconcileResult, error) {
	if premium.IsNegative() {
		return Policy{}, ReconcileResult{}, invalid("premium", "must not be negative")
	}
	t, err := TenantFrom(ctx)
	if err != nil {
		return Policy{}, ReconcileResult{}, err
	}

	var (
		policy Policy
		result ReconcileResult
	)
	err = s.Store.WithTx(ctx, func(tx Store) error {
		policy, err = tx.GetPolicy(ctx, t, id)
		if err != nil {
			return err
		}
		if policy.Status == PolicyCancelled {
			return &InvalidStateError{Entity: "policy", ID: string(id), State: string(policy.Status), Op: "reprice"}
		}
		policy.Premium = premium
		if err := tx.UpdatePolicy(ctx, policy); err != nil {
			return err
		}
		if policy.Status == PolicyExpired {
			return nil
		}
		result, err = s.Reconciler.reconcileIn(ctx, tx, policy)
		return err
	})
	if err != nil {
		return Policy{}, ReconcileResult{}, err
	}
	return policy, result, nil
}

// SetCustomRate sets or clears the negotiated commission rate override.
func (s *PolicyService) SetCustomRate(ctx context.Context, id PolicyID, rate *decimal.Decimal) (Policy, error) {
	if err := validateRate("custom_commission_rate", rate); err != nil {
		return Policy{}, err
	}
	return s.mutate(ctx, id, func(p *Policy) error {
		p.CustomCommissionRate = rate
		return nil
	})
}

// SetStatus moves a policy between lifecycle statuses. CANCELLED is terminal.
func (s *PolicyService) SetStatus(ctx context.Context, id PolicyID, status PolicyStatus) (Policy, error) {
	if !status.Valid() {
		return Policy{}, invalid("status", "unknown policy status "+string(status))
	}
	return s.mutate(ctx, id, func(p *Policy) error {
		if p.Status == PolicyCancelled && status != PolicyCancelled {
			return &InvalidStateError{Entity: "policy", ID: string(p.ID), State: string(p.Status), Op: "change status of"}
		}
		p.Status = status
		return nil
	})
}

func (s *PolicyService) mutate(ctx context.Context, id PolicyID, fn func(*Policy) error) (Policy, error) {
	t, err := TenantFrom(ctx)
	if err != nil {
		return Policy{}, err
	}
	var policy Policy
	err = s.Store.WithTx(ctx, func(tx Store) error {
		policy, err = tx.GetPolicy(ctx, t, id)
		if err != nil {
			return err
		}
		if err := fn(&policy); err != nil {
			return err
		}
		return tx.UpdatePolicy(ctx, policy)
	})
	return policy, err
}

// Purge permanently deletes a policy together with its payments, commissions
// and renewals.
func (s *PolicyService) Purge(ctx context.Context, id PolicyID) error {
	t, err := TenantFrom(ctx)
	if err != nil {
		return err
	}
	err = s.Store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetPolicy(ctx, t, id); err != nil {
			return err
		}
		return tx.PurgePolicy(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("purge policy %s: %w", id, err)
	}
	s.Log.Warn().Str("policy_id", string(id)).Msg("policy purged")
	return nil
}
