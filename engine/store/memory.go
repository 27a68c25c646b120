// Package store provides an in-memory engine.Store.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/brokerage-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a mutex-guarded engine.Store. WithTx holds the lock for the whole
// callback and restores a snapshot when it fails.
type Memory struct {
	mu   sync.Mutex
	data *tables
}

type tables struct {
	policies    map[engine.PolicyID]engine.Policy
	payments    map[engine.PaymentID]engine.Payment
	rules       map[engine.RuleID]engine.CommissionRule
	commissions map[engine.CommissionID]engine.Commission
	renewals    map[engine.RenewalID]engine.Renewal
}

func NewMemory() *Memory {
	return &Memory{data: newTables()}
}

func newTables() *tables {
	return &tables{
		policies:    make(map[engine.PolicyID]engine.Policy),
		payments:    make(map[engine.PaymentID]engine.Payment),
		rules:       make(map[engine.RuleID]engine.CommissionRule),
		commissions: make(map[engine.CommissionID]engine.Commission),
		renewals:    make(map[engine.RenewalID]engine.Renewal),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.policies {
		c.policies[k] = v
	}
	for k, v := range t.payments {
		c.payments[k] = v
	}
	for k, v := range t.rules {
		c.rules[k] = v
	}
	for k, v := range t.commissions {
		c.commissions[k] = v
	}
	for k, v := range t.renewals {
		c.renewals[k] = v
	}
	return c
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(&txView{data: m.data}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

// txView runs against the tables while the parent's lock is held.
type txView struct {
	data *tables
}

func (tv *txView) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	return fn(tv)
}

// =============================================================================
// POLICIES
// =============================================================================

func (t *tables) getPolicy(scope engine.Tenant, id engine.PolicyID) (engine.Policy, error) {
	p, ok := t.policies[id]
	if !ok || !scope.Allows(p.CompanyID) {
		return engine.Policy{}, engine.ErrPolicyNotFound
	}
	return p, nil
}

func (t *tables) insertPolicy(p engine.Policy) error {
	if _, ok := t.policies[p.ID]; ok {
		return fmt.Errorf("policy %s already exists", p.ID)
	}
	for _, existing := range t.policies {
		if existing.CompanyID == p.CompanyID && existing.PolicyNumber == p.PolicyNumber {
			return engine.ErrDuplicatePolicyNumber
		}
	}
	t.policies[p.ID] = p
	return nil
}

func (t *tables) updatePolicy(p engine.Policy) error {
	current, ok := t.policies[p.ID]
	if !ok {
		return engine.ErrPolicyNotFound
	}
	if p.Premium.IsNegative() {
		return fmt.Errorf("update policy %s: premium must not be negative", p.ID)
	}
	current.EndDate = p.EndDate
	current.Premium = p.Premium
	current.Cadence = p.Cadence
	current.CustomCommissionRate = p.CustomCommissionRate
	current.Status = p.Status
	t.policies[p.ID] = current
	return nil
}

func (t *tables) listExpiringPolicies(scope engine.Tenant, from, to engine.Date) []engine.Policy {
	var out []engine.Policy
	for _, p := range t.policies {
		if !scope.Allows(p.CompanyID) || p.Status != engine.PolicyActive {
			continue
		}
		if p.EndDate.AfterOrEqual(from) && p.EndDate.BeforeOrEqual(to) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EndDate.Equal(out[j].EndDate) {
			return out[i].EndDate.Before(out[j].EndDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *tables) purgePolicy(id engine.PolicyID) error {
	if _, ok := t.policies[id]; !ok {
		return engine.ErrPolicyNotFound
	}
	for k, c := range t.commissions {
		if c.PolicyID == id {
			delete(t.commissions, k)
		}
	}
	for k, r := range t.renewals {
		if r.PolicyID == id {
			delete(t.renewals, k)
		}
	}
	for k, p := range t.payments {
		if p.PolicyID == id {
			delete(t.payments, k)
		}
	}
	delete(t.policies, id)
	return nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (t *tables) getPayment(scope engine.Tenant, id engine.PaymentID) (engine.Payment, error) {
	p, ok := t.payments[id]
	if !ok || !scope.Allows(p.CompanyID) {
		return engine.Payment{}, engine.ErrPaymentNotFound
	}
	return p, nil
}

func (t *tables) listPayments(policyID engine.PolicyID) []engine.Payment {
	var out []engine.Payment
	for _, p := range t.payments {
		if p.PolicyID == policyID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].DueDate, out[j].DueDate
		switch {
		case a == nil && b == nil:
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.Before(*b)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *tables) insertPayments(payments []engine.Payment) error {
	for _, p := range payments {
		if _, ok := t.policies[p.PolicyID]; !ok {
			return engine.ErrPolicyNotFound
		}
		if _, ok := t.payments[p.ID]; ok {
			return fmt.Errorf("payment %s already exists", p.ID)
		}
	}
	for _, p := range payments {
		t.payments[p.ID] = p
	}
	return nil
}

func (t *tables) transitionPayment(id engine.PaymentID, from, to engine.PaymentStatus, paidAt *engine.Date) bool {
	p, ok := t.payments[id]
	if !ok || p.Status != from {
		return false
	}
	p.Status = to
	if paidAt != nil {
		p.PaymentDate = paidAt
	}
	t.payments[id] = p
	return true
}

func (t *tables) listCompletedPayments(scope engine.Tenant) []engine.Payment {
	var out []engine.Payment
	for _, p := range t.payments {
		if p.Status == engine.PaymentCompleted && scope.Allows(p.CompanyID) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].PaymentDate, out[j].PaymentDate
		switch {
		case a == nil && b == nil:
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.Before(*b)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// RULES
// =============================================================================

func (t *tables) insertRule(r engine.CommissionRule) error {
	if _, ok := t.rules[r.ID]; ok {
		return fmt.Errorf("rule %s already exists", r.ID)
	}
	t.rules[r.ID] = r
	return nil
}

func (t *tables) listRules(scope engine.Tenant, insurerID string) []engine.CommissionRule {
	var out []engine.CommissionRule
	for _, r := range t.rules {
		if !scope.Allows(r.CompanyID) || (insurerID != "" && r.InsurerID != insurerID) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InsurerID != out[j].InsurerID {
			return out[i].InsurerID < out[j].InsurerID
		}
		if !out[i].EffectiveFrom.Equal(out[j].EffectiveFrom) {
			return out[i].EffectiveFrom.After(out[j].EffectiveFrom)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *tables) candidateRules(scope engine.Tenant, insurerID, categoryID string, at engine.Date) []engine.CommissionRule {
	var out []engine.CommissionRule
	for _, r := range t.rules {
		if !scope.Allows(r.CompanyID) || r.InsurerID != insurerID || !r.Covers(at) {
			continue
		}
		if r.IsGeneral() || r.CategoryID == categoryID {
			out = append(out, r)
		}
	}
	return out
}

// =============================================================================
// COMMISSIONS
// =============================================================================

func (t *tables) insertCommission(c engine.Commission) error {
	if _, ok := t.commissions[c.ID]; ok {
		return fmt.Errorf("commission %s already exists", c.ID)
	}
	if c.PaymentID != nil && t.hasCommissionForPayment(*c.PaymentID) {
		return engine.ErrDuplicateCommission
	}
	t.commissions[c.ID] = c
	return nil
}

func (t *tables) getCommission(scope engine.Tenant, id engine.CommissionID) (engine.Commission, error) {
	c, ok := t.commissions[id]
	if !ok || !scope.Allows(c.CompanyID) {
		return engine.Commission{}, engine.ErrCommissionNotFound
	}
	return c, nil
}

func (t *tables) listCommissions(scope engine.Tenant, f engine.CommissionFilter) []engine.Commission {
	var out []engine.Commission
	for _, c := range t.commissions {
		switch {
		case !scope.Allows(c.CompanyID):
		case f.PolicyID != "" && c.PolicyID != f.PolicyID:
		case f.ProducerID != "" && c.ProducerID != f.ProducerID:
		case f.Status != "" && c.Status != f.Status:
		case f.Period != "" && c.Period != f.Period:
		default:
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *tables) hasCommissionForPayment(id engine.PaymentID) bool {
	for _, c := range t.commissions {
		if c.PaymentID != nil && *c.PaymentID == id {
			return true
		}
	}
	return false
}

func (t *tables) transitionCommission(id engine.CommissionID, from, to engine.CommissionStatus) bool {
	c, ok := t.commissions[id]
	if !ok || c.Status != from {
		return false
	}
	c.Status = to
	t.commissions[id] = c
	return true
}

// =============================================================================
// RENEWALS
// =============================================================================

func (t *tables) getRenewal(scope engine.Tenant, id engine.RenewalID) (engine.Renewal, error) {
	r, ok := t.renewals[id]
	if !ok || !scope.Allows(r.CompanyID) {
		return engine.Renewal{}, engine.ErrRenewalNotFound
	}
	return r, nil
}

func (t *tables) insertRenewal(r engine.Renewal) error {
	if _, ok := t.policies[r.PolicyID]; !ok {
		return engine.ErrPolicyNotFound
	}
	if _, ok := t.renewals[r.ID]; ok {
		return fmt.Errorf("renewal %s already exists", r.ID)
	}
	t.renewals[r.ID] = r
	return nil
}

func (t *tables) hasPendingRenewal(policyID engine.PolicyID) bool {
	for _, r := range t.renewals {
		if r.PolicyID == policyID && r.Status == engine.RenewalPending {
			return true
		}
	}
	return false
}

// pending applies fn to a PENDING renewal and reports whether it did.
func (t *tables) pending(id engine.RenewalID, fn func(*engine.Renewal)) bool {
	r, ok := t.renewals[id]
	if !ok || r.Status != engine.RenewalPending {
		return false
	}
	fn(&r)
	t.renewals[id] = r
	return true
}

func (t *tables) processRenewal(id engine.RenewalID, terms engine.RenewalTerms, by string) bool {
	return t.pending(id, func(r *engine.Renewal) {
		r.Status = engine.RenewalProcessed
		r.NewEndDate = engine.DatePtr(terms.NewEndDate)
		r.NewPremium = terms.NewPremium
		r.ProcessedBy = by
	})
}

func (t *tables) rejectRenewal(id engine.RenewalID, by string) bool {
	return t.pending(id, func(r *engine.Renewal) {
		r.Status = engine.RenewalRejected
		r.ProcessedBy = by
	})
}

func (t *tables) updatePendingRenewal(id engine.RenewalID, terms engine.RenewalTerms) bool {
	return t.pending(id, func(r *engine.Renewal) {
		r.NewEndDate = engine.DatePtr(terms.NewEndDate)
		r.NewPremium = terms.NewPremium
	})
}

func (t *tables) deletePendingRenewal(id engine.RenewalID) bool {
	r, ok := t.renewals[id]
	if !ok || r.Status != engine.RenewalPending {
		return false
	}
	delete(t.renewals, id)
	return true
}

// =============================================================================
// engine.Store - Locking wrappers (Memory) and lock-held wrappers (txView)
// =============================================================================

func (m *Memory) GetPolicy(_ context.Context, t engine.Tenant, id engine.PolicyID) (engine.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.getPolicy(t, id)
}

func (m *Memory) InsertPolicy(_ context.Context, p engine.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.insertPolicy(p)
}

func (m *Memory) UpdatePolicy(_ context.Context, p engine.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.updatePolicy(p)
}

func (m *Memory) ListExpiringPolicies(_ context.Context, t engine.Tenant, from, to engine.Date) ([]engine.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.listExpiringPolicies(t, from, to), nil
}

func (m *Memory) PurgePolicy(_ context.Context, id engine.PolicyID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.purgePolicy(id)
}

func (m *Memory) GetPayment(_ context.Context, t engine.Tenant, id engine.PaymentID) (engine.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.getPayment(t, id)
}

func (m *Memory) ListPayments(_ context.Context, policyID engine.PolicyID) ([]engine.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.listPayments(policyID), nil
}

func (m *Memory) InsertPayments(_ context.Context, payments []engine.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.insertPayments(payments)
}

func (m *Memory) TransitionPayment(_ context.Context, id engine.PaymentID, from, to engine.PaymentStatus, paidAt *engine.Date) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.transitionPayment(id, from, to, paidAt), nil
}

func (m *Memory) ListCompletedPayments(_ context.Context, t engine.Tenant) ([]engine.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.listCompletedPayments(t), nil
}

func (m *Memory) InsertRule(_ context.Context, r engine.CommissionRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.insertRule(r)
}

func (m *Memory) ListRules(_ context.Context, t engine.Tenant, insurerID string) ([]engine.CommissionRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.listRules(t, insurerID), nil
}

func (m *Memory) CandidateRules(_ context.Context, t engine.Tenant, insurerID, categoryID string, at engine.Date) ([]engine.CommissionRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.candidateRules(t, insurerID, categoryID, at), nil
}

func (m *Memory) InsertCommission(_ context.Context, c engine.Commission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.insertCommission(c)
}

func (m *Memory) GetCommission(_ context.Context, t engine.Tenant, id engine.CommissionID) (engine.Commission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.getCommission(t, id)
}

func (m *Memory) ListCommissions(_ context.Context, t engine.Tenant, f engine.CommissionFilter) ([]engine.Commission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.listCommissions(t, f), nil
}

func (m *Memory) HasCommissionForPayment(_ context.Context, id engine.PaymentID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.hasCommissionForPayment(id), nil
}

func (m *Memory) TransitionCommission(_ context.Context, id engine.CommissionID, from, to engine.CommissionStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.transitionCommission(id, from, to), nil
}

func (m *Memory) GetRenewal(_ context.Context, t engine.Tenant, id engine.RenewalID) (engine.Renewal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.getRenewal(t, id)
}

func (m *Memory) InsertRenewal(_ context.Context, r engine.Renewal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.insertRenewal(r)
}

func (m *Memory) HasPendingRenewal(_ context.Context, policyID engine.PolicyID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.hasPendingRenewal(policyID), nil
}

func (m *Memory) ProcessRenewal(_ context.Context, id engine.RenewalID, terms engine.RenewalTerms, by string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.processRenewal(id, terms, by), nil
}

func (m *Memory) RejectRenewal(_ context.Context, id engine.RenewalID, by string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.rejectRenewal(id, by), nil
}

func (m *Memory) UpdatePendingRenewal(_ context.Context, id engine.RenewalID, terms engine.RenewalTerms) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.updatePendingRenewal(id, terms), nil
}

func (m *Memory) DeletePendingRenewal(_ context.Context, id engine.RenewalID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.deletePendingRenewal(id), nil
}

func (tv *txView) GetPolicy(_ context.Context, t engine.Tenant, id engine.PolicyID) (engine.Policy, error) {
	return tv.data.getPolicy(t, id)
}

func (tv *txView) InsertPolicy(_ context.Context, p engine.Policy) error {
	return tv.data.insertPolicy(p)
}

func (tv *txView) UpdatePolicy(_ context.Context, p engine.Policy) error {
	return tv.data.updatePolicy(p)
}

func (tv *txView) ListExpiringPolicies(_ context.Context, t engine.Tenant, from, to engine.Date) ([]engine.Policy, error) {
	return tv.data.listExpiringPolicies(t, from, to), nil
}

func (tv *txView) PurgePolicy(_ context.Context, id engine.PolicyID) error {
	return tv.data.purgePolicy(id)
}

func (tv *txView) GetPayment(_ context.Context, t engine.Tenant, id engine.PaymentID) (engine.Payment, error) {
	return tv.data.getPayment(t, id)
}

func (tv *txView) ListPayments(_ context.Context, policyID engine.PolicyID) ([]engine.Payment, error) {
	return tv.data.listPayments(policyID), nil
}

func (tv *txView) InsertPayments(_ context.Context, payments []engine.Payment) error {
	return tv.data.insertPayments(payments)
}

func (tv *txView) TransitionPayment(_ context.Context, id engine.PaymentID, from, to engine.PaymentStatus, paidAt *engine.Date) (bool, error) {
	return tv.data.transitionPayment(id, from, to, paidAt), nil
}

func (tv *txView) ListCompletedPayments(_ context.Context, t engine.Tenant) ([]engine.Payment, error) {
	return tv.data.listCompletedPayments(t), nil
}

func (tv *txView) InsertRule(_ context.Context, r engine.CommissionRule) error {
	return tv.data.insertRule(r)
}

func (tv *txView) ListRules(_ context.Context, t engine.Tenant, insurerID string) ([]engine.CommissionRule, error) {
	return tv.data.listRules(t, insurerID), nil
}

func (tv *txView) CandidateRules(_ context.Context, t engine.Tenant, insurerID, categoryID string, at engine.Date) ([]engine.CommissionRule, error) {
	return tv.data.candidateRules(t, insurerID, categoryID, at), nil
}

func (tv *txView) InsertCommission(_ context.Context, c engine.Commission) error {
	return tv.data.insertCommission(c)
}

func (tv *txView) GetCommission(_ context.Context, t engine.Tenant, id engine.CommissionID) (engine.Commission, error) {
	return tv.data.getCommission(t, id)
}

func (tv *txView) ListCommissions(_ context.Context, t engine.Tenant, f engine.CommissionFilter) ([]engine.Commission, error) {
	return tv.data.listCommissions(t, f), nil
}

func (tv *txView) HasCommissionForPayment(_ context.Context, id engine.PaymentID) (bool, error) {
	return tv.data.hasCommissionForPayment(id), nil
}

func (tv *txView) TransitionCommission(_ context.Context, id engine.CommissionID, from, to engine.CommissionStatus) (bool, error) {
	return tv.data.transitionCommission(id, from, to), nil
}

func (tv *txView) GetRenewal(_ context.Context, t engine.Tenant, id engine.RenewalID) (engine.Renewal, error) {
	return tv.data.getRenewal(t, id)
}

func (tv *txView) InsertRenewal(_ context.Context, r engine.Renewal) error {
	return tv.data.insertRenewal(r)
}

func (tv *txView) HasPendingRenewal(_ context.Context, policyID engine.PolicyID) (bool, error) {
	return tv.data.hasPendingRenewal(policyID), nil
}

func (tv *txView) ProcessRenewal(_ context.Context, id engine.RenewalID, terms engine.RenewalTerms, by string) (bool, error) {
	return tv.data.processRenewal(id, terms, by), nil
}

func (tv *txView) RejectRenewal(_ context.Context, id engine.RenewalID, by string) (bool, error) {
	return tv.data.rejectRenewal(id, by), nil
}

func (tv *txView) UpdatePendingRenewal(_ context.Context, id engine.RenewalID, terms engine.RenewalTerms) (bool, error) {
	return tv.data.updatePendingRenewal(id, terms), nil
}

func (tv *txView) DeletePendingRenewal(_ context.Context, id engine.RenewalID) (bool, error) {
	return tv.data.deletePendingRenewal(id), nil
}

var (
	_ engine.Store = (*Memory)(nil)
	_ engine.Store = (*txView)(nil)
)
