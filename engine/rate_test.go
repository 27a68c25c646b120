package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/brokerage-engine/engine"
)

// =============================================================================
// RULE SELECTION
// =============================================================================

func TestSelectRule_CategoryBeatsNewerGeneral(t *testing.T) {
	// GIVEN: A category rule from 2023 and a general rule from 2024
	// WHEN: Selecting for a policy of that category in mid-2024
	// THEN: The category rule wins despite being older

	candidates := []engine.CommissionRule{
		{ID: "general", InsurerID: "ins", Rate: dec("8"), EffectiveFrom: date("2024-01-01")},
		{ID: "auto", InsurerID: "ins", CategoryID: "auto", Rate: dec("12"), EffectiveFrom: date("2023-01-01")},
	}

	rule, ok := engine.SelectRule(candidates, "auto", date("2024-06-01"))
	require.True(t, ok)
	assert.Equal(t, engine.RuleID("auto"), rule.ID)
}

func TestSelectRule_MostRecentEffectiveFromWins(t *testing.T) {
	candidates := []engine.CommissionRule{
		{ID: "old", InsurerID: "ins", Rate: dec("8"), EffectiveFrom: date("2022-01-01")},
		{ID: "new", InsurerID: "ins", Rate: dec("9"), EffectiveFrom: date("2024-01-01")},
		{ID: "mid", InsurerID: "ins", Rate: dec("10"), EffectiveFrom: date("2023-01-01")},
	}

	rule, ok := engine.SelectRule(candidates, "", date("2024-06-01"))
	require.True(t, ok)
	assert.Equal(t, engine.RuleID("new"), rule.ID)
}

func TestSelectRule_IgnoresRulesOutsideWindowOrCategory(t *testing.T) {
	// GIVEN: An expired rule, a future rule, and another category's rule
	// WHEN: Selecting
	// THEN: Nothing applies

	ended := date("2023-12-31")
	candidates := []engine.CommissionRule{
		{ID: "expired", InsurerID: "ins", Rate: dec("8"), EffectiveFrom: date("2023-01-01"), EffectiveTo: &ended},
		{ID: "future", InsurerID: "ins", Rate: dec("9"), EffectiveFrom: date("2025-01-01")},
		{ID: "life", InsurerID: "ins", CategoryID: "life", Rate: dec("10"), EffectiveFrom: date("2020-01-01")},
	}

	_, ok := engine.SelectRule(candidates, "auto", date("2024-06-01"))
	assert.False(t, ok)
}

func TestSelectRule_EffectiveToIsInclusive(t *testing.T) {
	end := date("2024-06-30")
	candidates := []engine.CommissionRule{
		{ID: "r", InsurerID: "ins", Rate: dec("8"), EffectiveFrom: date("2024-01-01"), EffectiveTo: &end},
	}

	_, ok := engine.SelectRule(candidates, "", date("2024-06-30"))
	assert.True(t, ok)
	_, ok = engine.SelectRule(candidates, "", date("2024-07-01"))
	assert.False(t, ok)
}

// =============================================================================
// RESOLVER
// =============================================================================

func TestResolve_CustomRateAlwaysWins(t *testing.T) {
	// GIVEN: A category rule at 12% and a policy with a negotiated 10%
	// WHEN: Resolving
	// THEN: 10% with no rule reference

	e, _ := newTestEngine(t, "2024-03-15")
	ctx := asCompany(companyA)
	createRule(t, e, ctx, "auto", "12", "2020-01-01", nil)

	in := annualPolicy("POL-1", "12000", engine.CadenceAnnual)
	in.CustomCommissionRate = decPtr("10")
	policy, _ := createPolicy(t, e, ctx, in)

	rate, err := e.Rules.ResolveForPolicy(ctx, policy.ID, date("2024-03-15"))
	require.NoError(t, err)
	assert.True(t, rate.Percent.Equal(dec("10")))
	assert.Nil(t, rate.Rule)
}

func TestResolve_UsesRuleEffectiveAtDate(t *testing.T) {
	// GIVEN: 8% until end of 2023, 9% from 2024
	// WHEN: Resolving for dates on both sides
	// THEN: Each date gets its own rate

	e, _ := newTestEngine(t, "2024-03-15")
	ctx := asCompany(companyA)
	end := date("2023-12-31")
	createRule(t, e, ctx, "", "8", "2023-01-01", &end)
	newer := createRule(t, e, ctx, "", "9", "2024-01-01", nil)

	in := annualPolicy("POL-1", "12000", engine.CadenceAnnual)
	in.StartDate = date("2023-01-01")
	policy, _ := createPolicy(t, e, ctx, in)

	rate, err := e.Rules.ResolveForPolicy(ctx, policy.ID, date("2023-06-01"))
	require.NoError(t, err)
	assert.True(t, rate.Percent.Equal(dec("8")))

	rate, err = e.Rules.ResolveForPolicy(ctx, policy.ID, date("2024-06-01"))
	require.NoError(t, err)
	assert.True(t, rate.Percent.Equal(dec("9")))
	require.NotNil(t, rate.RuleRef())
	assert.Equal(t, newer.ID, *rate.RuleRef())
}

func TestResolve_NoRule_ReturnsNoApplicableRate(t *testing.T) {
	e, _ := newTestEngine(t, "2024-03-15")
	ctx := asCompany(companyA)
	policy, _ := createPolicy(t, e, ctx, annualPolicy("POL-1", "12000", engine.CadenceAnnual))

	_, err := e.Rules.ResolveForPolicy(ctx, policy.ID, date("2024-03-15"))
	assert.ErrorIs(t, err, engine.ErrNoApplicableRate)
}

func TestResolve_OtherCompanyRulesInvisible(t *testing.T) {
	// GIVEN: Company B has a rule for the same insurer
	// WHEN: Resolving for company A's policy
	// THEN: No rate applies

	e, _ := newTestEngine(t, "2024-03-15")
	createRule(t, e, asCompany(companyB), "", "15", "2020-01-01", nil)

	ctx := asCompany(companyA)
	policy, _ := createPolicy(t, e, ctx, annualPolicy("POL-1", "12000", engine.CadenceAnnual))

	_, err := e.Rules.ResolveForPolicy(ctx, policy.ID, date("2024-03-15"))
	assert.ErrorIs(t, err, engine.ErrNoApplicableRate)
}

func TestResolve_SuperuserUsesPolicyCompanyRules(t *testing.T) {
	// GIVEN: Company B has a 15% general rule for the insurer, company A has
	//        none, and company A owns the policy
	// WHEN: A superuser previews the rate and generates a commission
	// THEN: Neither picks up company B's rule

	e, _ := newTestEngine(t, "2024-03-15")
	createRule(t, e, asCompany(companyB), "", "15", "2020-01-01", nil)
	policy, _ := createPolicy(t, e, asCompany(companyA), annualPolicy("POL-1", "12000", engine.CadenceAnnual))

	_, err := e.Rules.ResolveForPolicy(asSuperuser(), policy.ID, date("2024-03-15"))
	assert.ErrorIs(t, err, engine.ErrNoApplicableRate)

	c, err := e.Commissions.GenerateFromPayment(asSuperuser(), engine.CommissionInput{
		PolicyID: policy.ID, PaymentID: "pay-1", Amount: dec("1000"), Period: "2024-03",
	})
	require.NoError(t, err)
	assert.Nil(t, c)

	// WHEN: Company A adds its own rule
	// THEN: The superuser preview reports it
	own := createRule(t, e, asCompany(companyA), "", "8", "2024-01-01", nil)
	rate, err := e.Rules.ResolveForPolicy(asSuperuser(), policy.ID, date("2024-03-15"))
	require.NoError(t, err)
	assert.True(t, rate.Percent.Equal(dec("8")))
	require.NotNil(t, rate.Rule)
	assert.Equal(t, own.ID, rate.Rule.ID)
	assert.Equal(t, companyA, rate.Rule.CompanyID)
}

func TestCreateRule_Validation(t *testing.T) {
	e, _ := newTestEngine(t, "2024-03-15")
	ctx := asCompany(companyA)

	before := date("2023-01-01")
	cases := map[string]engine.NewRule{
		"missing insurer":    {Rate: dec("5"), EffectiveFrom: date("2024-01-01")},
		"missing from":       {InsurerID: "ins", Rate: dec("5")},
		"to before from":     {InsurerID: "ins", Rate: dec("5"), EffectiveFrom: date("2024-01-01"), EffectiveTo: &before},
		"rate above hundred": {InsurerID: "ins", Rate: dec("100.5"), EffectiveFrom: date("2024-01-01")},
		"negative rate":      {InsurerID: "ins", Rate: dec("-1"), EffectiveFrom: date("2024-01-01")},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.Rules.CreateRule(ctx, in)
			assert.ErrorIs(t, err, engine.ErrInvalidInput)
		})
	}
}
