/*
schedule.go - Installment schedule reconciliation

PURPOSE:
  Keeps the active (non-voided) payments of a policy summing to its premium.
  The engine does not force the invariant eagerly; it offers Reconcile to
  create the missing installments and refuses actions that would break it.

ALGORITHM (Reconcile):
  shortage        = premium - sum(active payments)
  shortage <= 0   -> no action (overpayment is not auto-corrected)
  perInstallment  = premium / installments(cadence)    rounded to cents
  count           = round(shortage / perInstallment)
  dates           = latest active due date + k*step, or start date + (k-1)*step
                    when nothing is scheduled yet; anything after EndDate is
                    dropped, never created
  amounts         = perInstallment, except the last planned installment which
                    absorbs the rounding remainder so the total lands exactly
                    on the premium

GUARDS:
  VoidPayment   refuses with *UnderfundedPolicyError when the remaining active
                total would fall below the premium
  ChangeCadence refuses with ErrInvalidState once any payment exists, since
                the committed schedule would no longer match the cadence

SEE ALSO:
  - policy.go: Create reconciles the initial schedule in the same transaction
*/
package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultReminderDays is the reminder lead time given to generated installments.
const DefaultReminderDays = 7

// ReconcileResult describes what a reconciliation did.
type ReconcileResult struct {
	PolicyID       PolicyID
	Shortage       decimal.Decimal
	PerInstallment decimal.Decimal
	Created        []Payment
	Dropped        int // installments that would have fallen after the end date
}

// NoActionNeeded reports whether the policy was already reconciled or overpaid.
func (r ReconcileResult) NoActionNeeded() bool { return !r.Shortage.IsPositive() }

// ScheduleReconciler creates missing installments and guards voids.
type ScheduleReconciler struct {
	Store        Store
	ReminderDays int
	Log          zerolog.Logger
}

// =============================================================================
// PLANNING - Pure computation, no I/O
// =============================================================================

// Plan computes the installments required to bring the active total up to
// the premium. It never touches the store.
func (s *ScheduleReconciler) Plan(policy Policy, existing []Payment) (ReconcileResult, error) {
	result := ReconcileResult{
		PolicyID: policy.ID,
		Shortage: policy.Premium.Sub(SumActive(existing)),
	}
	if result.NoActionNeeded() {
		return result, nil
	}

	n := policy.Cadence.Installments()
	if n == 0 {
		return result, invalid("cadence", "unknown payment cadence "+string(policy.Cadence))
	}
	per := policy.Premium.DivRound(decimal.NewFromInt(int64(n)), 2)
	if !per.IsPositive() {
		return result, nil
	}
	result.PerInstallment = per

	count := int(result.Shortage.Div(per).Round(0).IntPart())
	if count == 0 {
		return result, nil
	}

	anchor, hasAnchor := latestDueDate(existing)
	step := policy.Cadence.MonthStep()
	reminder := s.ReminderDays
	if reminder <= 0 {
		reminder = DefaultReminderDays
	}

	for k := 1; k <= count; k++ {
		var due Date
		if hasAnchor {
			due = anchor.AddMonths(k * step)
		} else {
			due = policy.StartDate.AddMonths((k - 1) * step)
		}
		if due.After(policy.EndDate) {
			result.Dropped++
			continue
		}

		amount := per
		if k == count {
			amount = result.Shortage.Sub(per.Mul(decimal.NewFromInt(int64(count - 1))))
		}

		result.Created = append(result.Created, Payment{
			ID:           PaymentID(uuid.NewString()),
			CompanyID:    policy.CompanyID,
			PolicyID:     policy.ID,
			Amount:       amount,
			DueDate:      DatePtr(due),
			Status:       PaymentPending,
			ReminderDays: reminder,
		})
	}
	return result, nil
}

func latestDueDate(payments []Payment) (Date, bool) {
	var latest Date
	found := false
	for _, p := range payments {
		if !p.Active() || p.DueDate == nil {
			continue
		}
		if !found || p.DueDate.After(latest) {
			latest = *p.DueDate
			found = true
		}
	}
	return latest, found
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Reconcile loads the policy and its payments, then writes any missing
// installments in one transaction.
func (s *ScheduleReconciler) Reconcile(ctx context.Context, policyID PolicyID) (ReconcileResult, error) {
	t, err := TenantFrom(ctx)
	if err != nil {
		return ReconcileResult{}, err
	}

	var result ReconcileResult
	err = s.Store.WithTx(ctx, func(tx Store) error {
		policy, err := tx.GetPolicy(ctx, t, policyID)
		if err != nil {
			return err
		}
		result, err = s.reconcileIn(ctx, tx, policy)
		return err
	})
	return result, err
}

// reconcileIn runs a reconciliation against an already-open transaction.
func (s *ScheduleReconciler) reconcileIn(ctx context.Context, tx Store, policy Policy) (ReconcileResult, error) {
	if policy.Status == PolicyCancelled || policy.Status == PolicyExpired {
		return ReconcileResult{}, &InvalidStateError{Entity: "policy", ID: string(policy.ID), State: string(policy.Status), Op: "reconcile"}
	}

	payments, err := tx.ListPayments(ctx, policy.ID)
	if err != nil {
		return ReconcileResult{}, err
	}

	result, err := s.Plan(policy, payments)
	if err != nil {
		return result, err
	}
	if len(result.Created) > 0 {
		if err := tx.InsertPayments(ctx, result.Created); err != nil {
			return result, err
		}
	}

	s.Log.Debug().
		Str("policy_id", string(policy.ID)).
		Str("shortage", result.Shortage.String()).
		Int("created", len(result.Created)).
		Int("dropped", result.Dropped).
		Msg("schedule reconciled")
	return result, nil
}

// VoidPayment marks a payment VOID unless that would leave the policy
// underfunded.
func (s *ScheduleReconciler) VoidPayment(ctx context.Context, id PaymentID) (Payment, error) {
	t, err := TenantFrom(ctx)
	if err != nil {
		return Payment{}, err
	}

	var voided Payment
	err = s.Store.WithTx(ctx, func(tx Store) error {
		payment, err := tx.GetPayment(ctx, t, id)
		if err != nil {
			return err
		}
		if payment.Status == PaymentVoid {
			return &InvalidStateError{Entity: "payment", ID: string(id), State: string(payment.Status), Op: "void"}
		}

		policy, err := tx.GetPolicy(ctx, t, payment.PolicyID)
		if err != nil {
			return err
		}
		payments, err := tx.ListPayments(ctx, policy.ID)
		if err != nil {
			return err
		}

		remaining := decimal.Zero
		for _, p := range payments {
			if p.ID != id && p.Active() {
				remaining = remaining.Add(p.Amount)
			}
		}
		if remaining.LessThan(policy.Premium) {
			return &UnderfundedPolicyError{
				PolicyID:  policy.ID,
				Premium:   policy.Premium,
				Remaining: remaining,
				Shortfall: policy.Premium.Sub(remaining),
			}
		}

		ok, err := tx.TransitionPayment(ctx, id, payment.Status, PaymentVoid, nil)
		if err != nil {
			return err
		}
		if !ok {
			return &InvalidStateError{Entity: "payment", ID: string(id), State: "changed concurrently", Op: "void"}
		}
		payment.Status = PaymentVoid
		voided = payment
		return nil
	})
	return voided, err
}

// ChangeCadence switches a policy's payment cadence while no payment exists.
func (s *ScheduleReconciler) ChangeCadence(ctx context.Context, policyID PolicyID, cadence Cadence) (Policy, error) {
	if !cadence.Valid() {
		return Policy{}, invalid("cadence", "unknown payment cadence "+string(cadence))
	}
	t, err := TenantFrom(ctx)
	if err != nil {
		return Policy{}, err
	}

	var updated Policy
	err = s.Store.WithTx(ctx, func(tx Store) error {
		policy, err := tx.GetPolicy(ctx, t, policyID)
		if err != nil {
			return err
		}
		if policy.Cadence == cadence {
			updated = policy
			return nil
		}
		payments, err := tx.ListPayments(ctx, policyID)
		if err != nil {
			return err
		}
		if len(payments) > 0 {
			return &InvalidStateError{Entity: "policy", ID: string(policyID), State: "has payments", Op: "change cadence of"}
		}
		policy.Cadence = cadence
		if err := tx.UpdatePolicy(ctx, policy); err != nil {
			return err
		}
		updated = policy
		return nil
	})
	return updated, err
}
