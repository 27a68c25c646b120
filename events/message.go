// Package events carries payment-completed events over NATS so commission
// generation runs outside the request that completed the payment.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/brokerage-engine/engine"
)

// DefaultSubject is the subject payment completions are published on.
const DefaultSubject = "brokerage.payments.completed"

// PaymentCompletedMessage is the JSON schema published to NATS.
type PaymentCompletedMessage struct {
	CompanyID string          `json:"company_id"`
	PolicyID  string          `json:"policy_id"`
	PaymentID string          `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    string          `json:"paid_at"`
}

// Encode marshals an event for publishing.
func Encode(ev engine.PaymentCompletedEvent) ([]byte, error) {
	return json.Marshal(PaymentCompletedMessage{
		CompanyID: ev.CompanyID,
		PolicyID:  string(ev.PolicyID),
		PaymentID: string(ev.PaymentID),
		Amount:    ev.Amount,
		PaidAt:    ev.PaidAt.String(),
	})
}

// Decode parses and validates a published event.
func Decode(data []byte) (engine.PaymentCompletedEvent, error) {
	var msg PaymentCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return engine.PaymentCompletedEvent{}, fmt.Errorf("unmarshal payment event: %w", err)
	}
	if msg.CompanyID == "" || msg.PolicyID == "" || msg.PaymentID == "" {
		return engine.PaymentCompletedEvent{}, fmt.Errorf("payment event missing company, policy or payment id")
	}
	paidAt, err := engine.ParseDate(msg.PaidAt)
	if err != nil {
		return engine.PaymentCompletedEvent{}, fmt.Errorf("payment event paid_at: %w", err)
	}
	return engine.PaymentCompletedEvent{
		CompanyID: msg.CompanyID,
		PolicyID:  engine.PolicyID(msg.PolicyID),
		PaymentID: engine.PaymentID(msg.PaymentID),
		Amount:    msg.Amount,
		PaidAt:    paidAt,
	}, nil
}
