package engine

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RATE RESOLVER - Which commission percentage applies to a payment
// =============================================================================

// Rate is a resolved commission percentage. Rule is nil when the policy's
// custom rate was used.
type Rate struct {
	Percent decimal.Decimal
	Rule    *CommissionRule
}

// RuleRef returns the id of the rule that produced the rate, if any.
func (r Rate) RuleRef() *RuleID {
	if r.Rule == nil {
		return nil
	}
	id := r.Rule.ID
	return &id
}

// RateResolver picks the commission rate for a policy at a date.
//
// Resolution order:
//  1. The policy's custom rate, when set, always wins.
//  2. Otherwise the insurer's rules effective at the date, matching the
//     policy's category or general (no category):
//     category-specific before general regardless of recency, then most
//     recent EffectiveFrom first.
type RateResolver struct {
	Rules RuleStore
}

// Resolve returns ErrNoApplicableRate when nothing matches. Rules are read
// from the policy's own company whatever the caller's scope, so a
// cross-company caller sees the rate generation would use.
func (r *RateResolver) Resolve(ctx context.Context, policy Policy, at Date) (Rate, error) {
	if policy.CustomCommissionRate != nil {
		return Rate{Percent: *policy.CustomCommissionRate}, nil
	}
	if policy.CompanyID == "" {
		return Rate{}, ErrNoTenant
	}

	scope := Tenant{CompanyID: policy.CompanyID}
	candidates, err := r.Rules.CandidateRules(ctx, scope, policy.InsurerID, policy.CategoryID, at)
	if err != nil {
		return Rate{}, err
	}

	best, ok := SelectRule(candidates, policy.CategoryID, at)
	if !ok {
		return Rate{}, ErrNoApplicableRate
	}
	return Rate{Percent: best.Rate, Rule: &best}, nil
}

// SelectRule applies the resolution ordering to candidate rules. Candidates
// that do not cover `at` or belong to another category are ignored, so a
// store may over-fetch.
func SelectRule(candidates []CommissionRule, categoryID string, at Date) (CommissionRule, bool) {
	eligible := make([]CommissionRule, 0, len(candidates))
	for _, c := range candidates {
		if !c.Covers(at) {
			continue
		}
		if !c.IsGeneral() && c.CategoryID != categoryID {
			continue
		}
		eligible = append(eligible, c)
	}
	if len(eligible) == 0 {
		return CommissionRule{}, false
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.IsGeneral() != b.IsGeneral() {
			return !a.IsGeneral()
		}
		if !a.EffectiveFrom.Equal(b.EffectiveFrom) {
			return a.EffectiveFrom.After(b.EffectiveFrom)
		}
		return a.ID < b.ID
	})
	return eligible[0], true
}
