package billing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
)

type Billing struct {
	sc            *stripe.Client
	webhookSecret string
}

func NewBilling(secretKey, webhookSecret string) *Billing {
	return &Billing{
		sc:            stripe.NewClient(secretKey),
		webhookSecret: webhookSecret,
	}
}

func (b *Billing) CreateCustomer(ctx context.Context, userID, email, name string) (string, error) {
	params := &stripe.CustomerCreateParams{
		Metadata: map[string]string{"user_id": userID},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	if name != "" {
		params.Name = stripe.String(name)
	}
	customer, err := b.sc.V1Customers.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return customer.ID, nil
}

// DeleteCustomer removes a customer that lost a concurrent bind and was never used.
func (b *Billing) DeleteCustomer(ctx context.Context, customerID string) error {
	if _, err := b.sc.V1Customers.Delete(ctx, customerID, nil); err != nil {
		return fmt.Errorf("delete stripe customer: %w", err)
	}
	return nil
}

type CheckoutRequest struct {
	CustomerID string
	PriceID    string
	OrderID    string
	Plan       string
	SuccessURL string
	CancelURL  string
}

type CheckoutSession struct {
	ID  string
	URL string
}

func (b *Billing) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionCreateParams{
		Customer: stripe.String(req.CustomerID),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrderID),
		Metadata: map[string]string{
			"orderId": req.OrderID,
			"plan":    req.Plan,
		},
	}
	session, err := b.sc.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// VerifyWebhookSignature authenticates the raw request body against the endpoint secret.
func (b *Billing) VerifyWebhookSignature(payload []byte, signature string) (*stripe.Event, error) {
	return VerifySignature(payload, signature, b.webhookSecret)
}

func VerifySignature(payload []byte, signature, secret string) (*stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}
	return &event, nil
}

// SessionData is the part of a checkout session event the fulfillment flow reads.
type SessionData struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Metadata map[string]string `json:"metadata"`
}

// ParseSession decodes the checkout session carried by an event.
func ParseSession(event *stripe.Event) (*SessionData, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("event %s has no data", event.ID)
	}
	var raw struct {
		ID       string            `json:"id"`
		Customer json.RawMessage   `json:"customer"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Raw, &raw); err != nil {
		return nil, fmt.Errorf("parse checkout session: %w", err)
	}
	customer, err := customerID(raw.Customer)
	if err != nil {
		return nil, err
	}
	return &SessionData{ID: raw.ID, Customer: customer, Metadata: raw.Metadata}, nil
}

// customerID accepts both the bare id and an expanded customer object.
func customerID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id, nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("parse session customer: %w", err)
	}
	return obj.ID, nil
}
