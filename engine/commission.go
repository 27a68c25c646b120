/*
commission.go - Commission generation

PURPOSE:
  Turns completed payments into commission records for the policy's
  producer, at the rate RateResolver picks.

CONTRACT A (GenerateFromPayment):
  Runs once per payment transition to COMPLETED, after the payment commit and
  outside its transaction. Returns (nil, nil) when there is no producer, no
  applicable rate, or a commission for the payment already exists. Failures
  never roll back the payment.

CONTRACT B (GenerateMissingForHistory):
  Walks every COMPLETED payment oldest first and generates what is missing.
  A payment is skipped when:
    - it has no policy, or the policy has no producer
    - a commission already references the payment (idempotency key)
    - a legacy commission without a payment reference matches the
      (policy, producer, premiumAmount) triple
  One failing payment is logged and counted; the batch always continues.
  Running it twice with no new payments creates nothing the second time.

SEE ALSO:
  - rate.go: RateResolver
  - dispatch.go: asynchronous delivery of payment-completed events
*/
package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CommissionInput identifies the payment a commission is computed from.
// PaymentID is the idempotency key; it may be empty for callers that have
// no payment row.
type CommissionInput struct {
	PolicyID  PolicyID
	PaymentID PaymentID
	Amount    decimal.Decimal
	Period    string
}

// CommissionGenerator creates commission rows.
type CommissionGenerator struct {
	Store    Store
	Resolver *RateResolver
	Today    func() Date
	Log      zerolog.Logger
}

func (g *CommissionGenerator) today() Date {
	if g.Today != nil {
		return g.Today()
	}
	return Today()
}

// GenerateFromPayment computes and stores the commission for one payment,
// resolving the rate as of today.
func (g *CommissionGenerator) GenerateFromPayment(ctx context.Context, in CommissionInput) (*Commission, error) {
	t, err := TenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	return g.generate(ctx, t, in, g.today())
}

// HandlePaymentCompleted is GenerateFromPayment fed from a completion event.
func (g *CommissionGenerator) HandlePaymentCompleted(ctx context.Context, ev PaymentCompletedEvent) (*Commission, error) {
	return g.GenerateFromPayment(ctx, CommissionInput{
		PolicyID:  ev.PolicyID,
		PaymentID: ev.PaymentID,
		Amount:    ev.Amount,
		Period:    ev.PaidAt.YearMonth(),
	})
}

func (g *CommissionGenerator) generate(ctx context.Context, t Tenant, in CommissionInput, at Date) (*Commission, error) {
	if !in.Amount.IsPositive() {
		return nil, invalid("amount", "payment amount must be positive")
	}

	policy, err := g.Store.GetPolicy(ctx, t, in.PolicyID)
	if err != nil {
		return nil, err
	}
	if policy.ProducerID == "" {
		g.Log.Debug().Str("policy_id", string(policy.ID)).Msg("no producer, commission not generated")
		return nil, nil
	}

	rate, err := g.Resolver.Resolve(ctx, policy, at)
	if errors.Is(err, ErrNoApplicableRate) {
		g.Log.Info().
			Str("policy_id", string(policy.ID)).
			Str("insurer_id", policy.InsurerID).
			Str("at", at.String()).
			Msg("no applicable commission rate, commission not generated")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c := Commission{
		ID:            CommissionID(uuid.NewString()),
		CompanyID:     policy.CompanyID,
		PolicyID:      policy.ID,
		ProducerID:    policy.ProducerID,
		RuleID:        rate.RuleRef(),
		PremiumAmount: in.Amount,
		Rate:          rate.Percent,
		Amount:        in.Amount.Mul(rate.Percent).Div(hundred).Round(2),
		Period:        in.Period,
		Status:        CommissionPending,
		CreatedAt:     g.today(),
	}
	if in.PaymentID != "" {
		id := in.PaymentID
		c.PaymentID = &id
	}

	if err := g.Store.InsertCommission(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicateCommission) {
			g.Log.Debug().Str("payment_id", string(in.PaymentID)).Msg("commission already generated")
			return nil, nil
		}
		return nil, err
	}

	g.Log.Info().
		Str("commission_id", string(c.ID)).
		Str("policy_id", string(c.PolicyID)).
		Str("rate", c.Rate.String()).
		Str("amount", c.Amount.String()).
		Msg("commission generated")
	return &c, nil
}

// =============================================================================
// RETROACTIVE BACKFILL
// =============================================================================

// BackfillFailure records one payment the backfill could not process.
type BackfillFailure struct {
	PaymentID PaymentID
	Err       error
}

// BackfillReport summarizes a backfill run.
type BackfillReport struct {
	Created  int
	Skipped  int
	Errors   int
	Failures []BackfillFailure
}

type backfillOutcome int

const (
	outcomeCreated backfillOutcome = iota
	outcomeSkipped
)

// GenerateMissingForHistory creates the commissions missing for every
// completed payment visible in the context's tenant scope.
func (g *CommissionGenerator) GenerateMissingForHistory(ctx context.Context) (BackfillReport, error) {
	var report BackfillReport

	t, err := TenantFrom(ctx)
	if err != nil {
		return report, err
	}

	payments, err := g.Store.ListCompletedPayments(ctx, t)
	if err != nil {
		return report, err
	}

	for _, p := range payments {
		outcome, err := g.backfillOne(ctx, t, p)
		switch {
		case err != nil:
			report.Errors++
			report.Failures = append(report.Failures, BackfillFailure{PaymentID: p.ID, Err: err})
			g.Log.Error().Err(err).Str("payment_id", string(p.ID)).Msg("commission backfill failed for payment")
		case outcome == outcomeCreated:
			report.Created++
		default:
			report.Skipped++
		}
	}

	g.Log.Info().
		Int("payments", len(payments)).
		Int("created", report.Created).
		Int("skipped", report.Skipped).
		Int("errors", report.Errors).
		Msg("commission backfill completed")
	return report, nil
}

func (g *CommissionGenerator) backfillOne(ctx context.Context, t Tenant, p Payment) (backfillOutcome, error) {
	if p.PolicyID == "" {
		return outcomeSkipped, nil
	}
	policy, err := g.Store.GetPolicy(ctx, t, p.PolicyID)
	if errors.Is(err, ErrPolicyNotFound) {
		return outcomeSkipped, nil
	}
	if err != nil {
		return outcomeSkipped, err
	}
	if policy.ProducerID == "" {
		return outcomeSkipped, nil
	}

	dup, err := g.alreadyGenerated(ctx, t, policy, p)
	if err != nil {
		return outcomeSkipped, err
	}
	if dup {
		return outcomeSkipped, nil
	}

	at := g.today()
	switch {
	case p.PaymentDate != nil:
		at = *p.PaymentDate
	case p.DueDate != nil:
		at = *p.DueDate
	}

	c, err := g.generate(ctx, t, CommissionInput{
		PolicyID:  p.PolicyID,
		PaymentID: p.ID,
		Amount:    p.Amount,
		Period:    at.YearMonth(),
	}, at)
	if err != nil {
		return outcomeSkipped, err
	}
	if c == nil {
		return outcomeSkipped, nil
	}
	return outcomeCreated, nil
}

// alreadyGenerated is the DuplicateCommission guard: payment reference
// first, then the legacy (policy, producer, premiumAmount) triple.
func (g *CommissionGenerator) alreadyGenerated(ctx context.Context, t Tenant, policy Policy, p Payment) (bool, error) {
	exists, err := g.Store.HasCommissionForPayment(ctx, p.ID)
	if err != nil || exists {
		return exists, err
	}

	existing, err := g.Store.ListCommissions(ctx, t, CommissionFilter{
		PolicyID:   policy.ID,
		ProducerID: policy.ProducerID,
	})
	if err != nil {
		return false, err
	}
	for _, c := range existing {
		if c.PaymentID == nil && c.PremiumAmount.Equal(p.Amount) {
			return true, nil
		}
	}
	return false, nil
}

// =============================================================================
// COMMISSION LIFECYCLE
// =============================================================================

// List returns the commissions visible in the tenant scope.
func (g *CommissionGenerator) List(ctx context.Context, f CommissionFilter) ([]Commission, error) {
	t, err := TenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	return g.Store.ListCommissions(ctx, t, f)
}

// MarkPaid moves a PENDING commission to PAID.
func (g *CommissionGenerator) MarkPaid(ctx context.Context, id CommissionID) (Commission, error) {
	return g.transition(ctx, id, CommissionPending, CommissionPaid, "mark paid")
}

// Void moves a PENDING commission to VOID.
func (g *CommissionGenerator) Void(ctx context.Context, id CommissionID) (Commission, error) {
	return g.transition(ctx, id, CommissionPending, CommissionVoid, "void")
}

func (g *CommissionGenerator) transition(ctx context.Context, id CommissionID, from, to CommissionStatus, op string) (Commission, error) {
	t, err := TenantFrom(ctx)
	if err != nil {
		return Commission{}, err
	}
	c, err := g.Store.GetCommission(ctx, t, id)
	if err != nil {
		return Commission{}, err
	}
	if c.Status != from {
		return Commission{}, &InvalidStateError{Entity: "commission", ID: string(id), State: string(c.Status), Op: op}
	}
	ok, err := g.Store.TransitionCommission(ctx, id, from, to)
	if err != nil {
		return Commission{}, err
	}
	if !ok {
		return Commission{}, &InvalidStateError{Entity: "commission", ID: string(id), State: "changed concurrently", Op: op}
	}
	c.Status = to
	return c, nil
}
