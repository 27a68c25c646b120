package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/brokerage-engine/engine"
)

// =============================================================================
// SCHEDULE CREATION
// =============================================================================

func TestCreatePolicy_MonthlySchedule(t *testing.T) {
	// GIVEN: A 24000 premium, MONTHLY, calendar 2024 policy with no payments
	// WHEN: It is created
	// THEN: 12 installments of 2000 are due on the 1st of each month

	e, _ := newTestEngine(t, "2024-01-01")
	ctx := asCompany(companyA)

	policy, result := createPolicy(t, e, ctx, annualPolicy("POL-1", "24000", engine.CadenceMonthly))

	assert.True(t, result.Shortage.Equal(dec("24000")))
	assert.True(t, result.PerInstallment.Equal(dec("2000")))
	require.Len(t, result.Created, 12)
	assert.Zero(t, result.Dropped)

	for i, p := range result.Created {
		assert.True(t, p.Amount.Equal(dec("2000")), "installment %d amount %s", i, p.Amount)
		require.NotNil(t, p.DueDate)
		assert.Equal(t, date("2024-01-01").AddMonths(i), *p.DueDate)
		assert.Equal(t, engine.PaymentPending, p.Status)
		assert.Equal(t, engine.DefaultReminderDays, p.ReminderDays)
	}

	assert.True(t, activeTotal(t, e, ctx, policy.ID).Equal(dec("24000")))
}

func TestCreatePolicy_LastInstallmentAbsorbsRounding(t *testing.T) {
	// GIVEN: A premium that does not split evenly into 12
	// WHEN: The schedule is created
	// THEN: The total lands exactly on the premium

	e, _ := newTestEngine(t, "2024-01-01")
	ctx := asCompany(companyA)

	policy, result := createPolicy(t, e, ctx, annualPolicy("POL-1", "1000.01", engine.CadenceMonthly))

	require.Len(t, result.Created, 12)
	assert.True(t, result.Created[0].Amount.Equal(dec("83.33")))
	assert.True(t, result.Created[11].Amount.Equal(dec("83.38")))
	assert.True(t, activeTotal(t, e, ctx, policy.ID).Equal(dec("1000.01")))
}

func TestCreatePolicy_InstallmentsAfterEndDateDropped(t *testing.T) {
	// GIVEN: A half-year policy on a 12-installment cadence
	// WHEN: The schedule is created
	// THEN: Only installments on or before the end date exist

	e, _ := newTestEngine(t, "2024-01-01")
	ctx := asCompany(companyA)

	in := annualPolicy("POL-1", "12000", engine.CadenceMonthly)
	in.EndDate = date("2024-06-30")
	_, result := createPolicy(t, e, ctx, in)

	assert.Len(t, result.Created, 6)
	assert.Equal(t, 6, result.Dropped)
	for _, p := range result.Created {
		assert.False(t, p.DueDate.After(in.EndDate))
	}
}

func TestCreatePolicy_Quarterly(t *testing.T) {
	e, _ := newTestEngine(t, "2024-01-01")
	ctx := asCompany(companyA)

	_, result := createPolicy(t, e, ctx, annualPolicy("POL-1", "4800", engine.CadenceQuarterly))

	require.Len(t, result.Created, 4)
	want := []string{"2024-01-01", "2024-04-01", "2024-07-01", "2024-10-01"}
	for i, p := range result.Created {
		assert.Equal(t, date(want[i]), *p.DueDate)
		assert.True(t, p.Amount.Equal(dec("1200")))
	}
}

func TestCreatePolicy_DuplicateNumberRejected(t *testing.T) {
	e, _ := newTestEngine(t, "2024-01-01")
	ctx := asCompany(companyA)
	createPolicy(t, e, ctx, annualPolicy("POL-1", "1200", engine.CadenceAnnual))

	_, _, err := e.Policies.Create(ctx, annualPolicy("POL-1", "1200", engine.CadenceAnnual))
	assert.ErrorIs(t, err, engine.ErrDuplicatePolicyNumber)

	// Same number in another company is fine.
	_, _, err = e.Policies.Create(asCompany(companyB), annualPolicy("POL-1", "1200", engine.CadenceAnnual))
	assert.NoError(t, err)
}

func TestCreatePolicy_Validation(t *testing.T) {
	e, _ := newTestEngine(t, "2024-01-01")
	ctx := asCompany(companyA)

	negative := annualPolicy("POL-1", "-1", engine.CadenceAnnual)
	backwards := annualPolicy("POL-2", "100", engine.CadenceAnnual)
	backwards.EndDate = date("2023-01-01")
	badCadence := annualPolicy("POL-3", "100", engine.Cadence("WEEKLY"))
	badRate := annualPolicy("POL-4", "100", engine.CadenceAnnual)
	badRate.CustomCommissionRate = decPtr("150")

	for _, in := range []engine.NewPolicy{negative, backwards, badCadence, badRate} {
		_, _, err := e.Policies.Create(ctx, in)
		assert.ErrorIs(t, err, engine.ErrInvalidInput, in.PolicyNumber)
	}
}

// =============================================================================
// RECONCILE
// =============================================================================

func TestReconcile_AlreadyFunded_NoAction(t *testing.T) {
	e, _ := newTestEngine(t, "2024-01-01")
	ctx := asCompany(companyA)
	policy, _ := createPolicy(t, e, ctx, annualPolicy("POL-1", "24000", engine.CadenceMonthly))

	result, err := e.Reconciler.Reconcile(ctx, policy.ID)
	require.NoError(t, err)
	assert.True(t, result.NoActionNeeded())
	assert.Empty(t, result.Created)
}

func TestReconcile_AfterPremiumIncrease_AnchorsOnLatestDueDate(t *testing.T) {
	// GIVEN: A funded quarterly policy of 4000 (4 x 1000, last due Oct 1)
	// WHEN: The premium goes to 6000
	// THEN: Per installment is 1500, two more are planned after Oct 1 and
	//       the one past the end date is dropped

	e, _ := newTestEngine(t, "2024-01-01")
	ctx := asCompany(companyA)
	policy, _ := createPolicy(t, e, ctx, annualPolicy("POL-1", "4000", engine.CadenceQuarterly))

	_, result, err := e.Policies.UpdatePremium(ctx, policy.ID, dec("6000"))
	require.NoError(t, err)

	assert.True(t, result.Shortage.Equal(dec("2000")))
	assert.True(t, result.PerInstallment.Equal(dec("1500")))
	// round(2000/1500) = 1 installment, due 2025-01-01, after the end date.
	assert.Empty(t, result.Created)
	assert.Equal(t, 1, result.Dropped)
}

func TestReconcile_FillsShortageWithinTerm(t *testing.T) {
	// GIVEN: A 2024 policy whose only payment is a 3000 ad-hoc payment
	// WHEN: Reconciling
	// THEN: Shortage 9000 at 1000/month: 9 installments after the anchor

	e, mem := newTestEngine(t, "2024-01-01")
	ctx := asCompany(companyA)

	in := annualPolicy("POL-1", "0", engine.CadenceMonthly)
	policy, _ := createPolicy(t, e, ctx, in)

	// Seed a single dated payment then raise the premium without
	// reconciling, as a legacy import would.
	due := date("2024-03-01")
	require.NoError(t, mem.InsertPayments(ctx, []engine.Payment{{
		ID: "legacy-1", CompanyID: companyA, PolicyID: policy.ID,
		Amount: dec("3000"), DueDate: &due, Status: engine.PaymentCompleted, PaymentDate: &due,
	}}))
	policy.Premium = dec("12000")
	require.NoError(t, mem.UpdatePolicy(ctx, policy))

	result, err := e.Reconciler.Reconcile(ctx, policy.ID)
	require.NoError(t, err)

	require.Len(t, result.Created, 9)
	assert.Equal(t, date("2024-04-01"), *result.Created[0].DueDate)
	assert.Equal(t, date("2024-12-01"), *result.Created[8].DueDate)
	assert.True(t, activeTotal(t, e, ctx, policy.ID).Equal(dec("12000")))
}

func TestReconcile_CancelledPolicyRefused(t *testing.T) {
	e, _ := newTestEngine(t, "2024-01-01")
	ctx := asCompany(companyA)
	policy, _ := createPolicy(t, e, ctx, annualPolicy("POL-1", "1200", engine.CadenceAnnual))
	_, err := e.Policies.SetStatus(ctx, policy.ID, engine.PolicyCancelled)
	require.NoError(t, err)

	_, err = e.Reconciler.Reconcile(ctx, policy.ID)
	assert.ErrorIs(t, err, engine.ErrInvalidState)

	_, err = e.Policies.SetStatus(ctx, policy.ID, engine.PolicyActive)
	assert.ErrorIs(t, err, engine.ErrInvalidState, "CANCELLED is terminal")
}

func TestUpdatePremium_LowerPremiumLeavesOverpayment(t *testing.T) {
	e, _ := newTestEngine(t, "2024-01-01")
	ctx := asCompany(companyA)
	policy, _ := createPolicy(t, e, ctx, annualPolicy("POL-1", "1200", engine.CadenceMonthly))

	updated, result, err := e.Policies.UpdatePremium(ctx, policy.ID, dec("600"))
	require.NoError(t, err)
	assert.True(t, updated.Premium.Equal(dec("600")))
	assert.True(t, result.NoActionNeeded())
	assert.True(t, activeTotal(t, e, ctx, policy.ID).Equal(dec("1200")))
}

// =============================================================================
// VOID GUARD
// =============================================================================

func TestVoidPayment_WouldUnderfund_Refused(t *testing.T) {
	// GIVEN: A fully funded 24000 monthly policy
	// WHEN: Voiding one 2000 installment
	// THEN: Refused with the exact shortfall, nothing changes

	e, _ := newTestEngine(t, "2024-01-01")
	ctx := asCompany(companyA)
	policy, result := createPolicy(t, e, ctx, annualPolicy("POL-1", "24000", engine.CadenceMonthly))

	_, err := e.Reconciler.VoidPayment(ctx, result.Created[0].ID)

	var underfunded *engine.UnderfundedPolicyError
	require.ErrorAs(t, err, &underfunded)
	assert.ErrorIs(t, err, engine.ErrUnderfundedPolicy)
	assert.True(t, underfunded.Premium.Equal(dec("24000")))
	assert.True(t, underfunded.Remaining.Equal(dec("22000")))
	assert.True(t, underfunded.Shortfall.Equal(dec("2000")))

	assert.True(t, activeTotal(t, e, ctx, policy.ID).Equal(dec("24000")))
}

func TestVoidPayment_Overfunded_Allowed(t *testing.T) {
	// GIVEN: A funded policy plus an extra ad-hoc payment
	// WHEN: Voiding the extra payment
	// THEN: It becomes VOID and the active total equals the premium

	e, _ := newTestEngine(t, "2024-01-01")
	ctx := asCompany(companyA)
	policy, _ := createPolicy(t, e, ctx, annualPolicy("POL-1", "24000", engine.CadenceMonthly))

	extra, err := e.Payments.RecordPayment(ctx, engine.NewPayment{PolicyID: policy.ID, Amount: dec("2000")})
	require.NoError(t, err)

	voided, err := e.Reconciler.VoidPayment(ctx, extra.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.PaymentVoid, voided.Status)
	assert.True(t, activeTotal(t, e, ctx, policy.ID).Equal(dec("24000")))

	_, err = e.Reconciler.VoidPayment(ctx, extra.ID)
	assert.ErrorIs(t, err, engine.ErrInvalidState, "already void")
}

// =============================================================================
// CADENCE CHANGE
// =============================================================================

func TestChangeCadence_WithPayments_Refused(t *testing.T) {
	e, _ := newTestEngine(t, "2024-01-01")
	ctx := asCompany(companyA)
	policy, _ := createPolicy(t, e, ctx, annualPolicy("POL-1", "1200", engine.CadenceMonthly))

	_, err := e.Policies.ChangeCadence(ctx, policy.ID, engine.CadenceQuarterly)
	assert.ErrorIs(t, err, engine.ErrInvalidState)
}

func TestChangeCadence_NoPayments_Allowed(t *testing.T) {
	e, _ := newTestEngine(t, "2024-01-01")
	ctx := asCompany(companyA)
	policy, result := createPolicy(t, e, ctx, annualPolicy("POL-1", "0", engine.CadenceMonthly))
	require.Empty(t, result.Created)

	updated, err := e.Policies.ChangeCadence(ctx, policy.ID, engine.CadenceQuarterly)
	require.NoError(t, err)
	assert.Equal(t, engine.CadenceQuarterly, updated.Cadence)
}
