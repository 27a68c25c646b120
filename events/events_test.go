package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/brokerage-engine/config"
	"github.com/warp/brokerage-engine/engine"
	"github.com/warp/brokerage-engine/engine/store"
	"github.com/warp/brokerage-engine/events"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs []published
	err  error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, published{subject: subject, data: data})
	return nil
}

func TestEncodeDecode(t *testing.T) {
	ev := engine.PaymentCompletedEvent{
		CompanyID: "company-a",
		PolicyID:  "pol-1",
		PaymentID: "pay-1",
		Amount:    decimal.RequireFromString("1999.99"),
		PaidAt:    engine.MustParseDate("2024-03-05"),
	}

	data, err := events.Encode(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"company_id":"company-a","policy_id":"pol-1","payment_id":"pay-1","amount":"1999.99","paid_at":"2024-03-05"}`, string(data))

	got, err := events.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, ev.PaymentID, got.PaymentID)
	assert.True(t, ev.Amount.Equal(got.Amount))
	assert.Equal(t, ev.PaidAt, got.PaidAt)
}

func TestDecode_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":        `{`,
		"missing company": `{"policy_id":"p","payment_id":"x","amount":"1","paid_at":"2024-01-01"}`,
		"bad date":        `{"company_id":"c","policy_id":"p","payment_id":"x","amount":"1","paid_at":"01/01/2024"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := events.Decode([]byte(payload))
			assert.Error(t, err)
		})
	}
}

func TestPublisher_DispatchPublishesOnSubject(t *testing.T) {
	conn := &fakeConn{}
	p := events.NewPublisher(conn, "", zerolog.Nop())

	err := p.Dispatch(context.Background(), engine.PaymentCompletedEvent{
		CompanyID: "c", PolicyID: "p", PaymentID: "x",
		Amount: decimal.NewFromInt(10), PaidAt: engine.MustParseDate("2024-01-01"),
	})
	require.NoError(t, err)
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, events.DefaultSubject, conn.msgs[0].subject)
}

func TestPublisher_PublishFailureReturned(t *testing.T) {
	conn := &fakeConn{err: errors.New("nats: connection closed")}
	p := events.NewPublisher(conn, "custom.subject", zerolog.Nop())

	err := p.Dispatch(context.Background(), engine.PaymentCompletedEvent{PaidAt: engine.MustParseDate("2024-01-01")})
	assert.ErrorContains(t, err, "custom.subject")
}

func TestPublishThenHandle_GeneratesCommission(t *testing.T) {
	// GIVEN: An engine whose dispatcher publishes to (fake) NATS
	// WHEN: A payment completes and the published message is handled by a
	//       subscriber with no tenant on its context
	// THEN: The commission is generated in the event's company scope, and a
	//       redelivery creates nothing new

	conn := &fakeConn{}
	mem := store.NewMemory()
	today := engine.MustParseDate("2024-03-15")
	e := engine.New(mem, engine.Options{
		Dispatcher: events.NewPublisher(conn, "", zerolog.Nop()),
		Today:      func() engine.Date { return today },
	})

	ctx := engine.WithTenant(context.Background(), engine.Tenant{CompanyID: "company-a"})
	_, err := e.Rules.CreateRule(ctx, engine.NewRule{
		InsurerID: "ins", Rate: decimal.NewFromInt(10), EffectiveFrom: engine.MustParseDate("2024-01-01"),
	})
	require.NoError(t, err)
	policy, result, err := e.Policies.Create(ctx, engine.NewPolicy{
		PolicyNumber: "POL-1", ClientID: "cl", InsurerID: "ins", ProducerID: "prod",
		StartDate: engine.MustParseDate("2024-01-01"), EndDate: engine.MustParseDate("2024-12-31"),
		Premium: decimal.NewFromInt(1200), Cadence: engine.CadenceAnnual,
	})
	require.NoError(t, err)

	_, err = e.Payments.CompletePayment(ctx, result.Created[0].ID, nil)
	require.NoError(t, err)
	require.Len(t, conn.msgs, 1)

	sub := events.NewSubscriber(nil, config.NATSConfig{}, e.Commissions, zerolog.Nop())
	require.NoError(t, sub.Handle(context.Background(), conn.msgs[0].data))
	require.NoError(t, sub.Handle(context.Background(), conn.msgs[0].data))

	commissions, err := e.Commissions.List(ctx, engine.CommissionFilter{PolicyID: policy.ID})
	require.NoError(t, err)
	require.Len(t, commissions, 1)
	assert.True(t, commissions[0].Amount.Equal(decimal.NewFromInt(120)))
	assert.Equal(t, "2024-03", commissions[0].Period)
}

func TestHandle_BadPayload(t *testing.T) {
	sub := events.NewSubscriber(nil, config.NATSConfig{}, nil, zerolog.Nop())
	assert.Error(t, sub.Handle(context.Background(), []byte(`{}`)))
}
