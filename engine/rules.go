package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RuleService administers commission rate tables. The engine reads rules but
// never edits them on its own.
type RuleService struct {
	Store    Store
	Resolver *RateResolver
	Log      zerolog.Logger
}

// NewRule is the input for CreateRule. CompanyID is only read under a bypass
// scope.
type NewRule struct {
	CompanyID     string
	InsurerID     string
	CategoryID    string
	Rate          decimal.Decimal
	EffectiveFrom Date
	EffectiveTo   *Date
}

func (in NewRule) validate() error {
	switch {
	case in.InsurerID == "":
		return invalid("insurer_id", "required")
	case in.EffectiveFrom.IsZero():
		return invalid("effective_from", "required")
	case in.EffectiveTo != nil && in.EffectiveTo.Before(in.EffectiveFrom):
		return invalid("effective_to", "must not be before effective_from")
	}
	return validateRate("rate", &in.Rate)
}

func (s *RuleService) CreateRule(ctx context.Context, in NewRule) (CommissionRule, error) {
	t, err := TenantFrom(ctx)
	if err != nil {
		return CommissionRule{}, err
	}
	if err := in.validate(); err != nil {
		return CommissionRule{}, err
	}
	companyID, scoped := t.Filter()
	if !scoped {
		if in.CompanyID == "" {
			return CommissionRule{}, invalid("company_id", "required when acting across companies")
		}
		companyID = in.CompanyID
	}

	rule := CommissionRule{
		ID:            RuleID(uuid.NewString()),
		CompanyID:     companyID,
		InsurerID:     in.InsurerID,
		CategoryID:    in.CategoryID,
		Rate:          in.Rate,
		EffectiveFrom: in.EffectiveFrom,
		EffectiveTo:   in.EffectiveTo,
	}
	if err := s.Store.InsertRule(ctx, rule); err != nil {
		return CommissionRule{}, err
	}
	s.Log.Info().
		Str("rule_id", string(rule.ID)).
		Str("insurer_id", rule.InsurerID).
		Str("category_id", rule.CategoryID).
		Str("rate", rule.Rate.String()).
		Msg("commission rule created")
	return rule, nil
}

func (s *RuleService) ListRules(ctx context.Context, insurerID string) ([]CommissionRule, error) {
	t, err := TenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.Store.ListRules(ctx, t, insurerID)
}

// ResolveForPolicy reports the rate that would apply to a payment on the
// policy at the given date.
func (s *RuleService) ResolveForPolicy(ctx context.Context, policyID PolicyID, at Date) (Rate, error) {
	t, err := TenantFrom(ctx)
	if err != nil {
		return Rate{}, err
	}
	policy, err := s.Store.GetPolicy(ctx, t, policyID)
	if err != nil {
		return Rate{}, err
	}
	return s.Resolver.Resolve(ctx, policy, at)
}
