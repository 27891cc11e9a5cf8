package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/digkill/genstudio/internal/alert"
	"github.com/digkill/genstudio/internal/apperr"
	"github.com/digkill/genstudio/internal/billing"
	"github.com/digkill/genstudio/internal/ledger"
	"github.com/digkill/genstudio/internal/models"
	"github.com/digkill/genstudio/internal/observability/metrics"
)

type WebhookVerifier interface {
	VerifyWebhookSignature(payload []byte, signature string) (*stripe.Event, error)
}

type OrderStore interface {
	Create(ctx context.Context, o *models.Order) error
	FindByID(ctx context.Context, id string) (*models.Order, error)
	SetStripeSession(ctx context.Context, id, sessionID string) error
	Cancel(ctx context.Context, id, canceledBy string, at time.Time) (bool, error)
}

type CustomerLookup interface {
	FindByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error)
}

type PaymentLedger interface {
	ApplyOrderPayment(ctx context.Context, orderID, userID string, credits int, paidAt time.Time) (bool, error)
}

type PlanCredits interface {
	CreditsFor(plan models.Plan) (int, bool)
}

type ReceiptSender interface {
	SendReceipt(ctx context.Context, to string, credits int) error
}

type EventLog interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
}

type FulfillmentDeps struct {
	Verifier WebhookVerifier
	Orders   OrderStore
	Users    CustomerLookup
	Ledger   PaymentLedger
	Plans    PlanCredits
	Mailer   ReceiptSender
	Events   EventLog
	Alerts   alert.Alerter
}

// FulfillmentService applies signed checkout events to orders. Every event is safe to
// deliver more than once: marking an order paid is conditional and happens in the same
// transaction as the credit.
type FulfillmentService struct {
	deps FulfillmentDeps
	log  *slog.Logger
	now  func() time.Time
}

func NewFulfillmentService(deps FulfillmentDeps, log *slog.Logger) *FulfillmentService {
	return &FulfillmentService{deps: deps, log: log, now: time.Now}
}

const errUnexpected = "Unexpected error. Please try again later."

// HandleWebhook verifies the raw payload against signature and applies the event. A nil
// return means the event was handled or deliberately ignored and should be acknowledged.
func (s *FulfillmentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.deps.Verifier.VerifyWebhookSignature(payload, signature)
	if err != nil {
		s.deps.Alerts.Critical(ctx, "webhook signature rejected", "err", err.Error())
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "invalid_signature").Inc()
		return apperr.Wrap(apperr.KindInvalidSignature, "Invalid signature", err)
	}

	eventType := string(event.Type)
	log := s.log.With("event_id", event.ID, "event_type", eventType)

	switch eventType {
	case billing.EventCheckoutCompleted:
		err = s.completed(ctx, log, event)
	case billing.EventCheckoutExpired:
		err = s.expired(ctx, log, event)
	default:
		log.Debug("ignoring webhook event")
		metrics.WebhookEventsTotal.WithLabelValues(eventType, "ignored").Inc()
		return nil
	}
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(eventType, string(apperr.KindOf(err))).Inc()
		return err
	}
	metrics.WebhookEventsTotal.WithLabelValues(eventType, "handled").Inc()

	fresh, err := s.deps.Events.Record(ctx, event.ID, eventType)
	switch {
	case err != nil:
		log.Warn("record webhook event", "err", err)
	case !fresh:
		log.Info("webhook event redelivered")
	}
	return nil
}

func (s *FulfillmentService) expired(ctx context.Context, log *slog.Logger, event *stripe.Event) error {
	session, err := billing.ParseSession(event)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "There is something wrong with session object.", err)
	}
	orderID := session.Metadata["orderId"]
	if orderID == "" {
		return apperr.New(apperr.KindValidation, "There is something wrong with orderId.")
	}

	order, err := s.deps.Orders.FindByID(ctx, orderID)
	if err != nil {
		return apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	if order == nil {
		log.Warn("expired session for unknown order", "order_id", orderID)
		return apperr.New(apperr.KindOrderNotFound, "Order not found")
	}

	canceled, err := s.deps.Orders.Cancel(ctx, orderID, "checkout session expired", s.now().UTC())
	if err != nil {
		return apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	if !canceled {
		log.Info("order already settled, expiry ignored", "order_id", orderID, "paid", order.Paid)
		return nil
	}
	log.Info("order canceled", "order_id", orderID)
	return nil
}

func (s *FulfillmentService) completed(ctx context.Context, log *slog.Logger, event *stripe.Event) error {
	session, err := billing.ParseSession(event)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "There is something wrong with session object.", err)
	}
	orderID := session.Metadata["orderId"]
	plan := models.Plan(session.Metadata["plan"])
	if orderID == "" || plan == "" || session.Customer == "" {
		return apperr.New(apperr.KindValidation, "There is something wrong with orderId.")
	}
	log = log.With("order_id", orderID, "customer", session.Customer)

	order, err := s.deps.Orders.FindByID(ctx, orderID)
	if err != nil {
		return apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	if order == nil {
		log.Warn("completed session for unknown order")
		return apperr.New(apperr.KindOrderNotFound, "Order not found")
	}
	if order.Plan != plan {
		log.Warn("session plan differs from order", "order_plan", order.Plan, "session_plan", plan)
	}
	credits, ok := s.deps.Plans.CreditsFor(order.Plan)
	if !ok {
		return apperr.New(apperr.KindValidation, "Unknown plan")
	}

	user, err := s.deps.Users.FindByStripeCustomerID(ctx, session.Customer)
	if err != nil {
		return apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	if user == nil {
		if _, err := s.deps.Orders.Cancel(ctx, orderID, "user not found", s.now().UTC()); err != nil {
			log.Error("cancel order without user", "err", err)
		}
		log.Warn("no user for stripe customer")
		return apperr.New(apperr.KindUserNotFound, "User not found")
	}
	if order.UserID != user.ID {
		log.Warn("order owner differs from paying customer", "order_user_id", order.UserID, "user_id", user.ID)
	}

	paidAt := time.Unix(event.Created, 0).UTC()
	applied, err := s.deps.Ledger.ApplyOrderPayment(ctx, orderID, user.ID, credits, paidAt)
	if errors.Is(err, ledger.ErrUserNotFound) {
		return apperr.Wrap(apperr.KindUserNotFound, "User not found", err)
	}
	if err != nil {
		log.Error("apply order payment", "critical", true, "err", err)
		return apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	if !applied {
		if order.Canceled && !order.Paid {
			s.deps.Alerts.Critical(ctx, "payment completed for canceled order",
				"order_id", orderID, "user_id", user.ID, "canceled_by", order.CanceledBy)
			return nil
		}
		log.Info("order already paid, event replay ignored")
		return nil
	}
	log.Info("order paid", "user_id", user.ID, "credits", credits, "paid_at", paidAt)

	if user.Email == "" {
		log.Warn("no email on file, receipt skipped", "user_id", user.ID)
		return nil
	}
	if err := s.deps.Mailer.SendReceipt(ctx, user.Email, credits); err != nil {
		s.deps.Alerts.Critical(ctx, "receipt not sent", "order_id", orderID, "user_id", user.ID, "err", err.Error())
	}
	return nil
}
