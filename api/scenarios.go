/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the caller's company with
	realistic book-of-business data. Each scenario creates commission rules,
	policies and payments that demonstrate one feature of the engine.

AVAILABLE SCENARIOS:

	monthly-auto:      Monthly auto policy, 10% rule, installments paid to date
	premium-increase:  Quarterly policy raised mid-term; the shortage no longer fits
	custom-rate:       Policy with a negotiated rate and an ad-hoc payment
	expiring-renewal:  Annual policy ending within the renewal window

HOW SCENARIOS WORK:
 1. Create the commission rules the scenario needs
 2. Create policies (schedules are generated on create)
 3. Complete or record payments; commissions follow asynchronously
 4. Optionally run the renewal sweep

USAGE VIA API:

	POST /api/admin/scenarios/load
	{"scenario_id": "monthly-auto"}

Policy numbers carry a random suffix, so a scenario can be loaded any number
of times. Nothing is reset.

SEE ALSO:
  - handlers.go: the endpoints the scenarios exercise
  - cmd/server: the seed command
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/brokerage-engine/engine"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "monthly-auto",
		Name:        "Monthly Auto",
		Description: "Monthly auto policy with a 10% category rule; installments due so far are paid",
		Category:    "commission",
	},
	{
		ID:          "premium-increase",
		Name:        "Premium Increase",
		Description: "Quarterly policy raised from 4000 to 6000 after its schedule reached the end date; the shortage is reported as dropped",
		Category:    "reconciliation",
	},
	{
		ID:          "custom-rate",
		Name:        "Custom Rate",
		Description: "Negotiated 5% rate overriding the rate table, with one ad-hoc payment",
		Category:    "commission",
	},
	{
		ID:          "expiring-renewal",
		Name:        "Expiring Renewal",
		Description: "Annual policy ending in 30 days with a pending renewal",
		Category:    "renewal",
	},
}

// Scenarios lists the available demo scenarios.
func Scenarios() []ScenarioDTO {
	out := make([]ScenarioDTO, len(scenarios))
	copy(out, scenarios)
	return out
}

// ScenarioResult is what a scenario created.
type ScenarioResult struct {
	Policies []engine.Policy
	Payments int
	Dropped  int
	Renewals int
}

// LoadScenario creates the data for scenario id in the company scope on ctx.
// A superuser must carry a company id.
func LoadScenario(ctx context.Context, e *engine.Engine, id string, today engine.Date) (ScenarioResult, error) {
	t, err := engine.TenantFrom(ctx)
	if err != nil {
		return ScenarioResult{}, err
	}
	if t.CompanyID == "" {
		return ScenarioResult{}, fmt.Errorf("%w: scenarios need a company", engine.ErrInvalidInput)
	}

	l := &scenarioLoader{e: e, companyID: t.CompanyID, today: today}
	switch id {
	case "monthly-auto":
		err = l.monthlyAuto(ctx)
	case "premium-increase":
		err = l.premiumIncrease(ctx)
	case "custom-rate":
		err = l.customRate(ctx)
	case "expiring-renewal":
		err = l.expiringRenewal(ctx)
	default:
		return ScenarioResult{}, fmt.Errorf("%w: unknown scenario %q", engine.ErrInvalidInput, id)
	}
	if err != nil {
		return ScenarioResult{}, fmt.Errorf("load scenario %s: %w", id, err)
	}
	return l.result, nil
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns the scenario catalog.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scenarios())
}

// LoadScenarioHandler loads one scenario into the caller's company.
func (h *Handler) LoadScenarioHandler(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := LoadScenario(r.Context(), h.Engine, req.ScenarioID, h.today())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := LoadScenarioResponse{
		ScenarioID: req.ScenarioID,
		Policies:   make([]PolicyDTO, len(result.Policies)),
		Payments:   result.Payments,
		Dropped:    result.Dropped,
		Renewals:   result.Renewals,
	}
	for i, p := range result.Policies {
		resp.Policies[i] = toPolicyDTO(p)
	}
	h.Log.Info().Str("scenario", req.ScenarioID).Int("policies", len(result.Policies)).Msg("scenario loaded")
	writeJSON(w, http.StatusCreated, resp)
}

// =============================================================================
// LOADERS
// =============================================================================

type scenarioLoader struct {
	e         *engine.Engine
	companyID string
	today     engine.Date
	result    ScenarioResult
}

// termStart is January 1st of the current year.
func (l *scenarioLoader) termStart() engine.Date {
	return engine.NewDate(l.today.Year(), 1, 1)
}

func (l *scenarioLoader) policy(ctx context.Context, prefix string, in engine.NewPolicy) (engine.Policy, engine.ReconcileResult, error) {
	in.CompanyID = l.companyID
	in.PolicyNumber = fmt.Sprintf("%s-%s", prefix, strings.ToUpper(uuid.NewString()[:8]))
	if in.ClientID == "" {
		in.ClientID = "demo-client"
	}
	if in.ProducerID == "" {
		in.ProducerID = "demo-producer"
	}
	policy, schedule, err := l.e.Policies.Create(ctx, in)
	if err != nil {
		return policy, schedule, err
	}
	l.result.Policies = append(l.result.Policies, policy)
	l.result.Payments += len(schedule.Created)
	return policy, schedule, nil
}

func (l *scenarioLoader) rule(ctx context.Context, insurer, category string, rate int64) error {
	_, err := l.e.Rules.CreateRule(ctx, engine.NewRule{
		CompanyID:     l.companyID,
		InsurerID:     insurer,
		CategoryID:    category,
		Rate:          decimal.NewFromInt(rate),
		EffectiveFrom: l.termStart(),
	})
	return err
}

// completeDue completes every installment due on or before today.
func (l *scenarioLoader) completeDue(ctx context.Context, payments []engine.Payment) error {
	for _, p := range payments {
		if p.DueDate == nil || p.DueDate.After(l.today) {
			continue
		}
		if _, err := l.e.Payments.CompletePayment(ctx, p.ID, p.DueDate); err != nil {
			return err
		}
	}
	return nil
}

func (l *scenarioLoader) monthlyAuto(ctx context.Context) error {
	if err := l.rule(ctx, "demo-insurer", "auto", 10); err != nil {
		return err
	}
	start := l.termStart()
	_, schedule, err := l.policy(ctx, "AUTO", engine.NewPolicy{
		InsurerID:  "demo-insurer",
		CategoryID: "auto",
		StartDate:  start,
		EndDate:    start.AddMonths(12).AddDays(-1),
		Premium:    decimal.NewFromInt(24000),
		Cadence:    engine.CadenceMonthly,
	})
	if err != nil {
		return err
	}
	return l.completeDue(ctx, schedule.Created)
}

func (l *scenarioLoader) premiumIncrease(ctx context.Context) error {
	start := l.termStart()
	policy, schedule, err := l.policy(ctx, "HOME", engine.NewPolicy{
		InsurerID:  "demo-insurer",
		CategoryID: "home",
		StartDate:  start,
		EndDate:    start.AddMonths(12).AddDays(-1),
		Premium:    decimal.NewFromInt(4000),
		Cadence:    engine.CadenceQuarterly,
	})
	if err != nil {
		return err
	}
	if err := l.completeDue(ctx, schedule.Created); err != nil {
		return err
	}

	_, result, err := l.e.Policies.UpdatePremium(ctx, policy.ID, decimal.NewFromInt(6000))
	if err != nil {
		return err
	}
	l.result.Payments += len(result.Created)
	l.result.Dropped += result.Dropped
	return nil
}

func (l *scenarioLoader) customRate(ctx context.Context) error {
	rate := decimal.NewFromInt(5)
	start := l.termStart()
	policy, _, err := l.policy(ctx, "LIFE", engine.NewPolicy{
		InsurerID:            "demo-insurer",
		CategoryID:           "life",
		StartDate:            start,
		EndDate:              start.AddMonths(12).AddDays(-1),
		Premium:              decimal.NewFromInt(5000),
		Cadence:              engine.CadenceSemiannual,
		CustomCommissionRate: &rate,
	})
	if err != nil {
		return err
	}

	paidAt := l.today
	if _, err := l.e.Payments.RecordPayment(ctx, engine.NewPayment{
		PolicyID: policy.ID,
		Amount:   decimal.NewFromInt(250),
		PaidAt:   &paidAt,
		Method:   "wire",
	}); err != nil {
		return err
	}
	l.result.Payments++
	return nil
}

func (l *scenarioLoader) expiringRenewal(ctx context.Context) error {
	end := l.today.AddDays(30)
	if _, _, err := l.policy(ctx, "FLEET", engine.NewPolicy{
		InsurerID:  "demo-insurer",
		CategoryID: "auto",
		StartDate:  end.AddMonths(-12).AddDays(1),
		EndDate:    end,
		Premium:    decimal.NewFromInt(12000),
		Cadence:    engine.CadenceAnnual,
	}); err != nil {
		return err
	}

	report, err := l.e.Renewals.GenerateRenewals(ctx, 30)
	if err != nil {
		return err
	}
	l.result.Renewals = len(report.Created)
	return nil
}
