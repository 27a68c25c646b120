package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PaymentCompletedEvent is emitted after a payment's COMPLETED transition commits.
type PaymentCompletedEvent struct {
	CompanyID string
	PolicyID  PolicyID
	PaymentID PaymentID
	Amount    decimal.Decimal
	PaidAt    Date
}

// CommissionDispatcher delivers payment completions to commission generation
// without blocking the payment path. Delivery is at-most-once; the backfill's
// idempotency guard compensates for anything lost.
type CommissionDispatcher interface {
	Dispatch(ctx context.Context, ev PaymentCompletedEvent) error
}

// AsyncDispatcher runs commission generation on its own goroutine with a
// context detached from the request but scoped to the payment's company.
type AsyncDispatcher struct {
	Generator *CommissionGenerator
	Log       zerolog.Logger

	wg sync.WaitGroup
}

func (d *AsyncDispatcher) Dispatch(ctx context.Context, ev PaymentCompletedEvent) error {
	jobCtx := WithTenant(context.WithoutCancel(ctx), Tenant{CompanyID: ev.CompanyID})

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if _, err := d.Generator.HandlePaymentCompleted(jobCtx, ev); err != nil {
			d.Log.Error().Err(err).
				Str("payment_id", string(ev.PaymentID)).
				Str("policy_id", string(ev.PolicyID)).
				Msg("async commission generation failed")
		}
	}()
	return nil
}

// Wait blocks until every dispatched generation has finished.
func (d *AsyncDispatcher) Wait() { d.wg.Wait() }
