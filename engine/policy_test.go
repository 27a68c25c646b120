package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/brokerage-engine/engine"
)

func TestPurgePolicy_RemovesDependents(t *testing.T) {
	// GIVEN: A policy with payments, a commission and a renewal
	// WHEN: It is purged
	// THEN: The policy and every dependent row are gone

	e, mem := newTestEngine(t, "2024-12-01")
	ctx := asCompany(companyA)
	createRule(t, e, ctx, "", "10", "2024-01-01", nil)
	policy, result := createPolicy(t, e, ctx, annualPolicy("POL-1", "1200", engine.CadenceAnnual))

	_, err := e.Payments.CompletePayment(ctx, result.Created[0].ID, nil)
	require.NoError(t, err)
	e.Wait()
	report, err := e.Renewals.GenerateRenewals(ctx, 60)
	require.NoError(t, err)
	require.Len(t, report.Created, 1)

	require.NoError(t, e.Policies.Purge(ctx, policy.ID))

	_, err = e.Policies.Get(ctx, policy.ID)
	assert.ErrorIs(t, err, engine.ErrPolicyNotFound)
	payments, err := mem.ListPayments(ctx, policy.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
	commissions, err := e.Commissions.List(ctx, engine.CommissionFilter{PolicyID: policy.ID})
	require.NoError(t, err)
	assert.Empty(t, commissions)
	_, err = e.Renewals.Get(ctx, report.Created[0].ID)
	assert.ErrorIs(t, err, engine.ErrRenewalNotFound)

	// The number is free again.
	_, _, err = e.Policies.Create(ctx, annualPolicy("POL-1", "1200", engine.CadenceAnnual))
	assert.NoError(t, err)
}

func TestSetCustomRate_SetAndClear(t *testing.T) {
	e, _ := newTestEngine(t, "2024-03-15")
	ctx := asCompany(companyA)
	createRule(t, e, ctx, "", "8", "2024-01-01", nil)
	policy, _ := createPolicy(t, e, ctx, annualPolicy("POL-1", "1200", engine.CadenceAnnual))

	updated, err := e.Policies.SetCustomRate(ctx, policy.ID, decPtr("11"))
	require.NoError(t, err)
	require.NotNil(t, updated.CustomCommissionRate)

	rate, err := e.Rules.ResolveForPolicy(ctx, policy.ID, date("2024-03-15"))
	require.NoError(t, err)
	assert.True(t, rate.Percent.Equal(dec("11")))

	_, err = e.Policies.SetCustomRate(ctx, policy.ID, nil)
	require.NoError(t, err)
	rate, err = e.Rules.ResolveForPolicy(ctx, policy.ID, date("2024-03-15"))
	require.NoError(t, err)
	assert.True(t, rate.Percent.Equal(dec("8")))

	_, err = e.Policies.SetCustomRate(ctx, policy.ID, decPtr("101"))
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestRecordPayment_AlreadyPaid_DispatchesCommission(t *testing.T) {
	e, _ := newTestEngine(t, "2024-03-15")
	ctx := asCompany(companyA)
	createRule(t, e, ctx, "", "10", "2024-01-01", nil)
	policy, _ := createPolicy(t, e, ctx, annualPolicy("POL-1", "1200", engine.CadenceAnnual))

	paidAt := date("2024-03-10")
	p, err := e.Payments.RecordPayment(ctx, engine.NewPayment{
		PolicyID: policy.ID,
		Amount:   dec("300"),
		PaidAt:   &paidAt,
		Method:   "wire",
	})
	require.NoError(t, err)
	assert.Equal(t, engine.PaymentCompleted, p.Status)
	e.Wait()

	commissions, err := e.Commissions.List(ctx, engine.CommissionFilter{PolicyID: policy.ID})
	require.NoError(t, err)
	require.Len(t, commissions, 1)
	assert.True(t, commissions[0].Amount.Equal(dec("30")))
}

func TestRecordPayment_Validation(t *testing.T) {
	e, _ := newTestEngine(t, "2024-03-15")
	ctx := asCompany(companyA)
	policy, _ := createPolicy(t, e, ctx, annualPolicy("POL-1", "1200", engine.CadenceAnnual))

	_, err := e.Payments.RecordPayment(ctx, engine.NewPayment{PolicyID: policy.ID, Amount: dec("0")})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	_, err = e.Payments.RecordPayment(ctx, engine.NewPayment{PolicyID: "missing", Amount: dec("10")})
	assert.ErrorIs(t, err, engine.ErrPolicyNotFound)

	_, err = e.Policies.SetStatus(ctx, policy.ID, engine.PolicyCancelled)
	require.NoError(t, err)
	_, err = e.Payments.RecordPayment(ctx, engine.NewPayment{PolicyID: policy.ID, Amount: dec("10")})
	assert.ErrorIs(t, err, engine.ErrInvalidState)
}
