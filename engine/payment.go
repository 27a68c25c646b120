package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYMENT SERVICE - Ad-hoc payments and completion
// =============================================================================

// PaymentService records and completes payments. Completing a payment hands a
// PaymentCompletedEvent to the Dispatcher after the status change commits.
type PaymentService struct {
	Store      Store
	Dispatcher CommissionDispatcher
	Today      func() Date
	Log        zerolog.Logger
}

// NewPayment is the input for an ad-hoc payment.
type NewPayment struct {
	PolicyID PolicyID
	Amount   decimal.Decimal
	DueDate  *Date
	PaidAt   *Date // non-nil records the payment as already COMPLETED
	Method   string
}

func (s *PaymentService) today() Date {
	if s.Today != nil {
		return s.Today()
	}
	return Today()
}

// ListPayments returns every payment of a policy visible in the tenant scope.
func (s *PaymentService) ListPayments(ctx context.Context, policyID PolicyID) ([]Payment, error) {
	t, err := TenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.Store.GetPolicy(ctx, t, policyID); err != nil {
		return nil, err
	}
	return s.Store.ListPayments(ctx, policyID)
}

// RecordPayment stores an ad-hoc payment against a policy.
func (s *PaymentService) RecordPayment(ctx context.Context, in NewPayment) (Payment, error) {
	if !in.Amount.IsPositive() {
		return Payment{}, invalid("amount", "must be positive")
	}
	t, err := TenantFrom(ctx)
	if err != nil {
		return Payment{}, err
	}
	policy, err := s.Store.GetPolicy(ctx, t, in.PolicyID)
	if err != nil {
		return Payment{}, err
	}
	if policy.Status == PolicyCancelled {
		return Payment{}, &InvalidStateError{Entity: "policy", ID: string(policy.ID), State: string(policy.Status), Op: "record payment on"}
	}

	p := Payment{
		ID:          PaymentID(uuid.NewString()),
		CompanyID:   policy.CompanyID,
		PolicyID:    policy.ID,
		Amount:      in.Amount,
		DueDate:     in.DueDate,
		PaymentDate: in.PaidAt,
		Method:      in.Method,
		Status:      PaymentPending,
	}
	if in.PaidAt != nil {
		p.Status = PaymentCompleted
	}
	if err := s.Store.InsertPayments(ctx, []Payment{p}); err != nil {
		return Payment{}, err
	}

	if p.Status == PaymentCompleted {
		s.dispatch(ctx, p)
	}
	return p, nil
}

// CompletePayment moves a PENDING payment to COMPLETED. paidAt defaults to
// today.
func (s *PaymentService) CompletePayment(ctx context.Context, id PaymentID, paidAt *Date) (Payment, error) {
	t, err := TenantFrom(ctx)
	if err != nil {
		return Payment{}, err
	}
	p, err := s.Store.GetPayment(ctx, t, id)
	if err != nil {
		return Payment{}, err
	}
	if p.Status != PaymentPending {
		return Payment{}, &InvalidStateError{Entity: "payment", ID: string(id), State: string(p.Status), Op: "complete"}
	}

	at := s.today()
	if paidAt != nil {
		at = *paidAt
	}
	ok, err := s.Store.TransitionPayment(ctx, id, PaymentPending, PaymentCompleted, &at)
	if err != nil {
		return Payment{}, err
	}
	if !ok {
		return Payment{}, &InvalidStateError{Entity: "payment", ID: string(id), State: "changed concurrently", Op: "complete"}
	}
	p.Status = PaymentCompleted
	p.PaymentDate = &at

	s.dispatch(ctx, p)
	return p, nil
}

func (s *PaymentService) dispatch(ctx context.Context, p Payment) {
	if s.Dispatcher == nil {
		return
	}
	ev := PaymentCompletedEvent{
		CompanyID: p.CompanyID,
		PolicyID:  p.PolicyID,
		PaymentID: p.ID,
		Amount:    p.Amount,
		PaidAt:    *p.PaymentDate,
	}
	if err := s.Dispatcher.Dispatch(ctx, ev); err != nil {
		s.Log.Warn().Err(err).Str("payment_id", string(p.ID)).Msg("commission dispatch failed, backfill will pick it up")
	}
}
