package store

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/brokerage-engine/engine"
)

var tenantA = engine.Tenant{CompanyID: "a"}

func testPolicy(id engine.PolicyID, company, number string) engine.Policy {
	return engine.Policy{
		ID:           id,
		CompanyID:    company,
		PolicyNumber: number,
		InsurerID:    "ins",
		StartDate:    engine.MustParseDate("2024-01-01"),
		EndDate:      engine.MustParseDate("2024-12-31"),
		Premium:      decimal.NewFromInt(1200),
		Cadence:      engine.CadenceMonthly,
		Status:       engine.PolicyActive,
	}
}

func TestMemory_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A policy
	// WHEN: A transaction inserts a payment, then fails
	// THEN: The payment is not kept

	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.InsertPolicy(ctx, testPolicy("p1", "a", "N-1")))

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(tx engine.Store) error {
		if err := tx.InsertPayments(ctx, []engine.Payment{{ID: "pay-1", CompanyID: "a", PolicyID: "p1", Amount: decimal.NewFromInt(100), Status: engine.PaymentPending}}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	payments, err := m.ListPayments(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestMemory_WithTx_NestedJoinsOuter(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.WithTx(ctx, func(tx engine.Store) error {
		return tx.WithTx(ctx, func(inner engine.Store) error {
			return inner.InsertPolicy(ctx, testPolicy("p1", "a", "N-1"))
		})
	})
	require.NoError(t, err)

	_, err = m.GetPolicy(ctx, tenantA, "p1")
	assert.NoError(t, err)
}

func TestMemory_PolicyNumberUniquePerCompany(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.InsertPolicy(ctx, testPolicy("p1", "a", "N-1")))

	assert.ErrorIs(t, m.InsertPolicy(ctx, testPolicy("p2", "a", "N-1")), engine.ErrDuplicatePolicyNumber)
	assert.NoError(t, m.InsertPolicy(ctx, testPolicy("p3", "b", "N-1")))
}

func TestMemory_TenantScopedLookups(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.InsertPolicy(ctx, testPolicy("p1", "a", "N-1")))

	_, err := m.GetPolicy(ctx, engine.Tenant{CompanyID: "b"}, "p1")
	assert.ErrorIs(t, err, engine.ErrPolicyNotFound)

	_, err = m.GetPolicy(ctx, engine.Superuser, "p1")
	assert.NoError(t, err)
}

func TestMemory_DuplicateCommissionForPayment(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	payment := engine.PaymentID("pay-1")

	c := engine.Commission{ID: "c1", CompanyID: "a", PolicyID: "p1", PaymentID: &payment, Status: engine.CommissionPending}
	require.NoError(t, m.InsertCommission(ctx, c))

	c.ID = "c2"
	assert.ErrorIs(t, m.InsertCommission(ctx, c), engine.ErrDuplicateCommission)

	// Rows without a payment reference never collide.
	legacy := engine.Commission{ID: "c3", CompanyID: "a", PolicyID: "p1", Status: engine.CommissionPaid}
	assert.NoError(t, m.InsertCommission(ctx, legacy))
	legacy.ID = "c4"
	assert.NoError(t, m.InsertCommission(ctx, legacy))
}

func TestMemory_ConditionalTransitions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.InsertPolicy(ctx, testPolicy("p1", "a", "N-1")))
	require.NoError(t, m.InsertRenewal(ctx, engine.Renewal{ID: "r1", CompanyID: "a", PolicyID: "p1", Status: engine.RenewalPending}))

	rt := engine.RenewalTerms{NewEndDate: engine.MustParseDate("2025-12-31")}
	ok, err := m.ProcessRenewal(ctx, "r1", rt, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.ProcessRenewal(ctx, "r1", rt, "u2")
	require.NoError(t, err)
	assert.False(t, ok, "second transition matches no PENDING row")

	r, err := m.GetRenewal(ctx, tenantA, "r1")
	require.NoError(t, err)
	assert.Equal(t, "u1", r.ProcessedBy)
}

func TestMemory_ListPayments_UndatedLast(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.InsertPolicy(ctx, testPolicy("p1", "a", "N-1")))

	feb := engine.MustParseDate("2024-02-01")
	jan := engine.MustParseDate("2024-01-01")
	require.NoError(t, m.InsertPayments(ctx, []engine.Payment{
		{ID: "undated", CompanyID: "a", PolicyID: "p1", Amount: decimal.NewFromInt(1)},
		{ID: "feb", CompanyID: "a", PolicyID: "p1", Amount: decimal.NewFromInt(1), DueDate: &feb},
		{ID: "jan", CompanyID: "a", PolicyID: "p1", Amount: decimal.NewFromInt(1), DueDate: &jan},
	}))

	payments, err := m.ListPayments(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, payments, 3)
	assert.Equal(t, []engine.PaymentID{"jan", "feb", "undated"}, []engine.PaymentID{payments[0].ID, payments[1].ID, payments[2].ID})
}
