package engine_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/brokerage-engine/engine"
)

func TestTenant_MissingScopeFailsClosed(t *testing.T) {
	// GIVEN: A context with no tenant
	// WHEN: Calling any tenant-scoped operation
	// THEN: ErrNoTenant, never an unfiltered result

	e, _ := newTestEngine(t, "2024-01-01")
	ctx := context.Background()

	_, _, err := e.Policies.Create(ctx, annualPolicy("POL-1", "1200", engine.CadenceAnnual))
	assert.ErrorIs(t, err, engine.ErrNoTenant)

	_, err = e.Commissions.List(ctx, engine.CommissionFilter{})
	assert.ErrorIs(t, err, engine.ErrNoTenant)

	_, err = e.Renewals.GenerateRenewals(ctx, 30)
	assert.ErrorIs(t, err, engine.ErrNoTenant)

	// An empty company without bypass is no scope at all.
	_, err = e.Commissions.List(engine.WithTenant(ctx, engine.Tenant{}), engine.CommissionFilter{})
	assert.ErrorIs(t, err, engine.ErrNoTenant)
}

func TestTenant_OtherCompanyRowsInvisible(t *testing.T) {
	e, _ := newTestEngine(t, "2024-01-01")
	policy, result := createPolicy(t, e, asCompany(companyA), annualPolicy("POL-1", "1200", engine.CadenceAnnual))

	other := asCompany(companyB)
	_, err := e.Policies.Get(other, policy.ID)
	assert.ErrorIs(t, err, engine.ErrPolicyNotFound)

	_, err = e.Payments.CompletePayment(other, result.Created[0].ID, nil)
	assert.ErrorIs(t, err, engine.ErrPaymentNotFound)

	_, err = e.Reconciler.VoidPayment(other, result.Created[0].ID)
	assert.ErrorIs(t, err, engine.ErrPaymentNotFound)

	assert.ErrorIs(t, e.Policies.Purge(other, policy.ID), engine.ErrPolicyNotFound)
}

func TestTenant_SuperuserSeesAllCompanies(t *testing.T) {
	e, _ := newTestEngine(t, "2024-12-01")
	a, _ := createPolicy(t, e, asCompany(companyA), annualPolicy("POL-1", "1200", engine.CadenceAnnual))
	b, _ := createPolicy(t, e, asCompany(companyB), annualPolicy("POL-1", "1200", engine.CadenceAnnual))

	su := asSuperuser()
	for _, id := range []engine.PolicyID{a.ID, b.ID} {
		_, err := e.Policies.Get(su, id)
		assert.NoError(t, err)
	}

	report, err := e.Renewals.GenerateRenewals(su, 60)
	require.NoError(t, err)
	assert.Len(t, report.Created, 2)
}

func TestTenant_SuperuserCreateNeedsCompany(t *testing.T) {
	e, _ := newTestEngine(t, "2024-01-01")

	_, _, err := e.Policies.Create(asSuperuser(), annualPolicy("POL-1", "1200", engine.CadenceAnnual))
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	in := annualPolicy("POL-1", "1200", engine.CadenceAnnual)
	in.CompanyID = companyB
	policy, _, err := e.Policies.Create(asSuperuser(), in)
	require.NoError(t, err)
	assert.Equal(t, companyB, policy.CompanyID)
}

func TestTenant_ScopedCreateIgnoresRequestedCompany(t *testing.T) {
	e, _ := newTestEngine(t, "2024-01-01")
	in := annualPolicy("POL-1", "1200", engine.CadenceAnnual)
	in.CompanyID = companyB

	policy, _, err := e.Policies.Create(asCompany(companyA), in)
	require.NoError(t, err)
	assert.Equal(t, companyA, policy.CompanyID)
}

func TestTenant_ConcurrentScopesDoNotLeak(t *testing.T) {
	// GIVEN: Two companies issuing requests concurrently
	// WHEN: Each lists its own commissions many times
	// THEN: Neither ever sees the other's rows

	e, _ := newTestEngine(t, "2024-03-15")
	for _, company := range []string{companyA, companyB} {
		ctx := asCompany(company)
		createRule(t, e, ctx, "", "10", "2024-01-01", nil)
		policy, _ := createPolicy(t, e, ctx, annualPolicy("POL-1", "1000", engine.CadenceAnnual))
		_, err := e.Commissions.GenerateFromPayment(ctx, engine.CommissionInput{PolicyID: policy.ID, Amount: dec("1000")})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		company := companyA
		if i%2 == 1 {
			company = companyB
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			commissions, err := e.Commissions.List(asCompany(company), engine.CommissionFilter{})
			assert.NoError(t, err)
			for _, c := range commissions {
				assert.Equal(t, company, c.CompanyID)
			}
		}()
	}
	wg.Wait()
}

func TestRunAsTenant(t *testing.T) {
	var seen engine.Tenant
	err := engine.RunAsTenant(context.Background(), engine.Superuser, func(ctx context.Context) error {
		var err error
		seen, err = engine.TenantFrom(ctx)
		return err
	})
	require.NoError(t, err)
	assert.True(t, seen.Bypass)

	err = engine.RunAsTenant(context.Background(), engine.Tenant{}, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, engine.ErrNoTenant)
}
