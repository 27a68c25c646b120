/*
renewal.go - Renewal processing and generation sweep

PURPOSE:
  Rolls a policy's term forward. Processing a renewal changes two rows (the
  renewal and its policy) and both changes commit together or not at all.

STATE MACHINE:
  PENDING -> PROCESSED   Process (terminal)
  PENDING -> REJECTED    Reject (terminal)
  PENDING -> EXPIRED     implicit, reporting only (Renewal.EffectiveStatus)

  PROCESSED and REJECTED renewals cannot be edited or deleted.

CONCURRENCY:
  The PENDING -> PROCESSED step is a conditional update inside the same
  transaction as the policy update. When a concurrent call already processed
  the renewal the update matches no row and Process returns ErrInvalidState,
  rolling back before the policy is touched.

GENERATION SWEEP:
  GenerateRenewals(daysAhead) creates one PENDING renewal per ACTIVE policy
  ending within daysAhead days, skipping policies that already have one.
  Re-running it with no processing in between creates nothing.
*/
package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RenewalProcessor owns renewal transitions.
type RenewalProcessor struct {
	Store Store
	Today func() Date
	Log   zerolog.Logger
}

func (p *RenewalProcessor) today() Date {
	if p.Today != nil {
		return p.Today()
	}
	return Today()
}

// Get returns a renewal visible in the tenant scope.
func (p *RenewalProcessor) Get(ctx context.Context, id RenewalID) (Renewal, error) {
	t, err := TenantFrom(ctx)
	if err != nil {
		return Renewal{}, err
	}
	return p.Store.GetRenewal(ctx, t, id)
}

// Process marks the renewal PROCESSED and applies its terms to the policy:
// new end date, status ACTIVE, and the new premium when one is given.
func (p *RenewalProcessor) Process(ctx context.Context, id RenewalID, terms RenewalTerms, processedBy string) (Renewal, error) {
	t, err := TenantFrom(ctx)
	if err != nil {
		return Renewal{}, err
	}

	renewal, err := p.Store.GetRenewal(ctx, t, id)
	if err != nil {
		return Renewal{}, err
	}
	if renewal.Status != RenewalPending {
		return Renewal{}, &InvalidStateError{Entity: "renewal", ID: string(id), State: string(renewal.Status), Op: "process"}
	}
	if err := validateTerms(renewal, terms); err != nil {
		return Renewal{}, err
	}

	err = p.Store.WithTx(ctx, func(tx Store) error {
		ok, err := tx.ProcessRenewal(ctx, id, terms, processedBy)
		if err != nil {
			return err
		}
		if !ok {
			return &InvalidStateError{Entity: "renewal", ID: string(id), State: "no longer PENDING", Op: "process"}
		}

		policy, err := tx.GetPolicy(ctx, t, renewal.PolicyID)
		if err != nil {
			return err
		}
		if policy.Status == PolicyCancelled {
			return &InvalidStateError{Entity: "policy", ID: string(policy.ID), State: string(policy.Status), Op: "renew"}
		}

		policy.EndDate = terms.NewEndDate
		policy.Status = PolicyActive
		if terms.NewPremium != nil {
			policy.Premium = *terms.NewPremium
		}
		return tx.UpdatePolicy(ctx, policy)
	})
	if err != nil {
		return Renewal{}, err
	}

	p.Log.Info().
		Str("renewal_id", string(id)).
		Str("policy_id", string(renewal.PolicyID)).
		Str("new_end_date", terms.NewEndDate.String()).
		Str("processed_by", processedBy).
		Msg("renewal processed")

	return p.Store.GetRenewal(ctx, t, id)
}

func validateTerms(r Renewal, terms RenewalTerms) error {
	if terms.NewEndDate.IsZero() {
		return invalid("new_end_date", "required")
	}
	if !terms.NewEndDate.After(r.OriginalEndDate) {
		return invalid("new_end_date", "must be after the current end date "+r.OriginalEndDate.String())
	}
	if terms.NewPremium != nil && !terms.NewPremium.IsPositive() {
		return invalid("new_premium", "must be positive")
	}
	return nil
}

// Reject moves a PENDING renewal to REJECTED.
func (p *RenewalProcessor) Reject(ctx context.Context, id RenewalID, rejectedBy string) (Renewal, error) {
	t, err := TenantFrom(ctx)
	if err != nil {
		return Renewal{}, err
	}
	renewal, err := p.Store.GetRenewal(ctx, t, id)
	if err != nil {
		return Renewal{}, err
	}
	ok, err := p.Store.RejectRenewal(ctx, id, rejectedBy)
	if err != nil {
		return Renewal{}, err
	}
	if !ok {
		return Renewal{}, &InvalidStateError{Entity: "renewal", ID: string(id), State: string(renewal.Status), Op: "reject"}
	}
	return p.Store.GetRenewal(ctx, t, id)
}

// UpdatePending edits the proposed terms of a PENDING renewal.
func (p *RenewalProcessor) UpdatePending(ctx context.Context, id RenewalID, terms RenewalTerms) (Renewal, error) {
	t, err := TenantFrom(ctx)
	if err != nil {
		return Renewal{}, err
	}
	renewal, err := p.Store.GetRenewal(ctx, t, id)
	if err != nil {
		return Renewal{}, err
	}
	if err := validateTerms(renewal, terms); err != nil {
		return Renewal{}, err
	}
	ok, err := p.Store.UpdatePendingRenewal(ctx, id, terms)
	if err != nil {
		return Renewal{}, err
	}
	if !ok {
		return Renewal{}, &InvalidStateError{Entity: "renewal", ID: string(id), State: string(renewal.Status), Op: "edit"}
	}
	return p.Store.GetRenewal(ctx, t, id)
}

// Delete removes a PENDING renewal.
func (p *RenewalProcessor) Delete(ctx context.Context, id RenewalID) error {
	t, err := TenantFrom(ctx)
	if err != nil {
		return err
	}
	renewal, err := p.Store.GetRenewal(ctx, t, id)
	if err != nil {
		return err
	}
	ok, err := p.Store.DeletePendingRenewal(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return &InvalidStateError{Entity: "renewal", ID: string(id), State: string(renewal.Status), Op: "delete"}
	}
	return nil
}

// =============================================================================
// GENERATION SWEEP
// =============================================================================

// GenerationReport summarizes a renewal sweep.
type GenerationReport struct {
	Created []Renewal
	Skipped int
	Errors  int
}

// GenerateRenewals creates PENDING renewals for ACTIVE policies ending within
// daysAhead days of today.
func (p *RenewalProcessor) GenerateRenewals(ctx context.Context, daysAhead int) (GenerationReport, error) {
	var report GenerationReport
	if daysAhead < 0 {
		return report, invalid("days_ahead", "must not be negative")
	}
	t, err := TenantFrom(ctx)
	if err != nil {
		return report, err
	}

	today := p.today()
	policies, err := p.Store.ListExpiringPolicies(ctx, t, today, today.AddDays(daysAhead))
	if err != nil {
		return report, err
	}

	for _, policy := range policies {
		pending, err := p.Store.HasPendingRenewal(ctx, policy.ID)
		if err != nil {
			report.Errors++
			p.Log.Error().Err(err).Str("policy_id", string(policy.ID)).Msg("renewal check failed")
			continue
		}
		if pending {
			report.Skipped++
			continue
		}

		r := Renewal{
			ID:              RenewalID(uuid.NewString()),
			CompanyID:       policy.CompanyID,
			PolicyID:        policy.ID,
			OriginalEndDate: policy.EndDate,
			Status:          RenewalPending,
			CreatedAt:       today,
		}
		if err := p.Store.InsertRenewal(ctx, r); err != nil {
			report.Errors++
			p.Log.Error().Err(err).Str("policy_id", string(policy.ID)).Msg("renewal insert failed")
			continue
		}
		report.Created = append(report.Created, r)
	}

	p.Log.Info().
		Int("days_ahead", daysAhead).
		Int("expiring", len(policies)).
		Int("created", len(report.Created)).
		Int("skipped", report.Skipped).
		Int("errors", report.Errors).
		Msg("renewal generation completed")
	return report, nil
}
