package engine_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/brokerage-engine/engine"
	"github.com/warp/brokerage-engine/engine/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const (
	companyA = "company-a"
	companyB = "company-b"
)

func date(s string) engine.Date { return engine.MustParseDate(s) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func fixedToday(s string) func() engine.Date {
	d := date(s)
	return func() engine.Date { return d }
}

func asCompany(companyID string) context.Context {
	return engine.WithTenant(context.Background(), engine.Tenant{CompanyID: companyID})
}

func asSuperuser() context.Context {
	return engine.WithTenant(context.Background(), engine.Superuser)
}

// newTestEngine builds an engine over a fresh memory store with the clock
// pinned to today.
func newTestEngine(t *testing.T, today string) (*engine.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	e := engine.New(mem, engine.Options{Today: fixedToday(today)})
	t.Cleanup(e.Wait)
	return e, mem
}

// annualPolicy is a 2024 calendar-year policy of companyA.
func annualPolicy(number, premium string, cadence engine.Cadence) engine.NewPolicy {
	return engine.NewPolicy{
		PolicyNumber: number,
		ClientID:     "client-1",
		InsurerID:    "insurer-1",
		CategoryID:   "auto",
		ProducerID:   "producer-1",
		StartDate:    date("2024-01-01"),
		EndDate:      date("2024-12-31"),
		Premium:      dec(premium),
		Cadence:      cadence,
	}
}

func createPolicy(t *testing.T, e *engine.Engine, ctx context.Context, in engine.NewPolicy) (engine.Policy, engine.ReconcileResult) {
	t.Helper()
	p, result, err := e.Policies.Create(ctx, in)
	require.NoError(t, err)
	return p, result
}

func createRule(t *testing.T, e *engine.Engine, ctx context.Context, category, rate, from string, to *engine.Date) engine.CommissionRule {
	t.Helper()
	r, err := e.Rules.CreateRule(ctx, engine.NewRule{
		InsurerID:     "insurer-1",
		CategoryID:    category,
		Rate:          dec(rate),
		EffectiveFrom: date(from),
		EffectiveTo:   to,
	})
	require.NoError(t, err)
	return r
}

func activeTotal(t *testing.T, e *engine.Engine, ctx context.Context, id engine.PolicyID) decimal.Decimal {
	t.Helper()
	payments, err := e.Payments.ListPayments(ctx, id)
	require.NoError(t, err)
	return engine.SumActive(payments)
}
