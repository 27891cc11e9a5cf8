package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/genstudio/internal/apperr"
	"github.com/digkill/genstudio/internal/billing"
	"github.com/digkill/genstudio/internal/models"
)

type CheckoutGateway interface {
	CreateCustomer(ctx context.Context, userID, email, name string) (string, error)
	DeleteCustomer(ctx context.Context, customerID string) error
	CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error)
}

type PlanCatalog interface {
	Lookup(name string) (billing.PlanInfo, error)
	List() []billing.PlanInfo
}

type CustomerBinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	SetStripeCustomerID(ctx context.Context, userID, customerID string) (bool, error)
}

type CheckoutService struct {
	gateway CheckoutGateway
	plans   PlanCatalog
	orders  OrderStore
	users   CustomerBinder
	baseURL string
	log     *slog.Logger
	now     func() time.Time
}

func NewCheckoutService(gateway CheckoutGateway, plans PlanCatalog, orders OrderStore, users CustomerBinder, baseURL string, log *slog.Logger) *CheckoutService {
	return &CheckoutService{
		gateway: gateway,
		plans:   plans,
		orders:  orders,
		users:   users,
		baseURL: baseURL,
		log:     log,
		now:     time.Now,
	}
}

func (s *CheckoutService) ListPlans() []billing.PlanInfo {
	return s.plans.List()
}

// Checkout opens a pending order for plan and returns the hosted payment page URL. If the
// gateway cannot produce a session the order is canceled straight away.
func (s *CheckoutService) Checkout(ctx context.Context, user *models.User, planName string) (string, error) {
	plan, err := s.plans.Lookup(planName)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "Invalid form data", err)
	}
	if user == nil {
		return "", errUnauthenticated
	}

	customerID, err := s.EnsureCustomer(ctx, user)
	if err != nil {
		return "", err
	}

	order := &models.Order{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Plan:      plan.Plan,
		CreatedAt: s.now().UTC(),
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return "", apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	log := s.log.With("order_id", order.ID, "user_id", user.ID, "plan", plan.Plan)

	session, err := s.gateway.CreateCheckoutSession(ctx, billing.CheckoutRequest{
		CustomerID: customerID,
		PriceID:    plan.PriceID,
		OrderID:    order.ID,
		Plan:       string(plan.Plan),
		SuccessURL: s.baseURL + "/",
		CancelURL:  s.baseURL + "/billing",
	})
	if err != nil || session == nil || session.URL == "" {
		log.Error("create checkout session", "err", err)
		if _, cerr := s.orders.Cancel(context.WithoutCancel(ctx), order.ID, "Stripe API", s.now().UTC()); cerr != nil {
			log.Error("cancel order after session failure", "err", cerr)
		}
		return "", apperr.Wrap(apperr.KindUnexpected, "Failed to create session", err)
	}

	if err := s.orders.SetStripeSession(ctx, order.ID, session.ID); err != nil {
		log.Warn("store checkout session id", "session_id", session.ID, "err", err)
	}
	log.Info("checkout session created", "session_id", session.ID)
	return session.URL, nil
}

// EnsureCustomer returns the user's gateway customer, creating it on first use. When two
// checkouts race, the first bind wins and the loser's customer is deleted, so every session
// points at the customer that fulfillment will look the user up by.
func (s *CheckoutService) EnsureCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}
	customerID, err := s.gateway.CreateCustomer(ctx, user.ID, user.Email, user.Username)
	if err != nil {
		s.log.Error("create stripe customer", "user_id", user.ID, "err", err)
		return "", apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	bound, err := s.users.SetStripeCustomerID(ctx, user.ID, customerID)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
	}
	if !bound {
		stored, err := s.users.FindByID(ctx, user.ID)
		if err != nil {
			return "", apperr.Wrap(apperr.KindUnexpected, errUnexpected, err)
		}
		if stored == nil || stored.StripeCustomerID == "" {
			return "", apperr.New(apperr.KindUserNotFound, "User not found")
		}
		s.log.Warn("stripe customer already bound, dropping duplicate",
			"user_id", user.ID, "customer", stored.StripeCustomerID, "duplicate", customerID)
		if err := s.gateway.DeleteCustomer(context.WithoutCancel(ctx), customerID); err != nil {
			s.log.Warn("delete duplicate stripe customer", "customer", customerID, "err", err)
		}
		customerID = stored.StripeCustomerID
	}
	user.StripeCustomerID = customerID
	return customerID, nil
}
