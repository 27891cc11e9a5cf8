package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/digkill/genstudio/internal/billing"
	"github.com/digkill/genstudio/internal/ledger"
	"github.com/digkill/genstudio/internal/models"
	"github.com/digkill/genstudio/internal/ratelimit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memDB keeps users, orders and reservations behind one lock, giving the same
// conditional-update semantics as the SQL ledger.
type memDB struct {
	mu           sync.Mutex
	users        map[string]*models.User
	orders       map[string]*models.Order
	reservations map[string]*models.CreditReservation
	images       []models.Image
	speeches     []models.Speech
	events       map[string]string
	tokens       map[string]models.EmailVerificationToken
	oauth        map[string]models.OAuthAccount

	commitErr error
	refundErr error
	// lostAck makes a commit land and then report an error, as when the
	// acknowledgement is lost after the transaction committed.
	lostAck bool
}

func newMemDB() *memDB {
	return &memDB{
		users:        map[string]*models.User{},
		orders:       map[string]*models.Order{},
		reservations: map[string]*models.CreditReservation{},
		events:       map[string]string{},
		tokens:       map[string]models.EmailVerificationToken{},
		oauth:        map[string]models.OAuthAccount{},
	}
}

func (m *memDB) addUser(u models.User) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := u
	m.users[u.ID] = &cp
	out := u
	return &out
}

func (m *memDB) balance(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID].Credits
}

func (m *memDB) order(id string) models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.orders[id]
}

func (m *memDB) imageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.images)
}

func (m *memDB) reservationStatuses() []models.ReservationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ReservationStatus
	for _, r := range m.reservations {
		out = append(out, r.Status)
	}
	return out
}

func (m *memDB) Reserve(_ context.Context, userID string, amount int, kind models.ArtifactKind) (*models.CreditReservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ledger.ErrUserNotFound
	}
	if u.Credits < amount {
		return nil, ledger.ErrInsufficientCredits
	}
	u.Credits -= amount
	res := &models.CreditReservation{ID: uuid.NewString(), UserID: userID, Amount: amount, Kind: kind, Status: models.ReservationPending}
	m.reservations[res.ID] = res
	cp := *res
	return &cp, nil
}

func (m *memDB) settle(id string, status models.ReservationStatus) (*models.CreditReservation, bool) {
	res, ok := m.reservations[id]
	if !ok || res.Status != models.ReservationPending {
		return res, false
	}
	res.Status = status
	return res, true
}

func (m *memDB) CommitImage(_ context.Context, reservationID string, img *models.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return m.commitErr
	}
	if _, ok := m.settle(reservationID, models.ReservationCommitted); !ok {
		return ledger.ErrReservationSettled
	}
	m.images = append(m.images, *img)
	if m.lostAck {
		return errors.New("connection reset after commit")
	}
	return nil
}

func (m *memDB) CommitSpeech(_ context.Context, reservationID string, sp *models.Speech) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return m.commitErr
	}
	if _, ok := m.settle(reservationID, models.ReservationCommitted); !ok {
		return ledger.ErrReservationSettled
	}
	m.speeches = append(m.speeches, *sp)
	if m.lostAck {
		return errors.New("connection reset after commit")
	}
	return nil
}

func (m *memDB) Refund(_ context.Context, reservationID, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refundErr != nil {
		return false, m.refundErr
	}
	res, ok := m.settle(reservationID, models.ReservationRefunded)
	if res == nil {
		return false, ledger.ErrReservationNotFound
	}
	if !ok {
		return false, nil
	}
	m.users[res.UserID].Credits += res.Amount
	return true, nil
}

func (m *memDB) Credit(_ context.Context, userID string, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ledger.ErrUserNotFound
	}
	u.Credits += amount
	return nil
}

func (m *memDB) ApplyOrderPayment(_ context.Context, orderID, userID string, credits int, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Paid || o.Canceled {
		return false, nil
	}
	u, ok := m.users[userID]
	if !ok {
		return false, ledger.ErrUserNotFound
	}
	o.Paid = true
	at := paidAt
	o.PaidAt = &at
	u.Credits += credits
	return true, nil
}

func (m *memDB) Record(_ context.Context, eventID, eventType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[eventID]; ok {
		return false, nil
	}
	m.events[eventID] = eventType
	return true, nil
}

type memOrders struct{ *memDB }

func (o memOrders) Create(_ context.Context, order *models.Order) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	cp := *order
	o.orders[order.ID] = &cp
	return nil
}

func (o memOrders) FindByID(_ context.Context, id string) (*models.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	order, ok := o.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *order
	return &cp, nil
}

func (o memOrders) SetStripeSession(_ context.Context, id, sessionID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.orders[id].StripeSessionID = sessionID
	return nil
}

func (o memOrders) Cancel(_ context.Context, id, canceledBy string, at time.Time) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	order, ok := o.orders[id]
	if !ok || order.Paid || order.Canceled {
		return false, nil
	}
	order.Canceled = true
	order.CanceledAt = &at
	order.CanceledBy = canceledBy
	return true, nil
}

type memUsers struct{ *memDB }

func (u memUsers) find(match func(*models.User) bool) *models.User {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, user := range u.users {
		if match(user) {
			cp := *user
			return &cp
		}
	}
	return nil
}

func (u memUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	return u.find(func(x *models.User) bool { return x.ID == id }), nil
}

func (u memUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return u.find(func(x *models.User) bool { return email != "" && x.Email == email }), nil
}

func (u memUsers) FindByUsername(_ context.Context, username string) (*models.User, error) {
	return u.find(func(x *models.User) bool { return x.Username == username }), nil
}

func (u memUsers) FindByStripeCustomerID(_ context.Context, customerID string) (*models.User, error) {
	return u.find(func(x *models.User) bool { return customerID != "" && x.StripeCustomerID == customerID }), nil
}

func (u memUsers) Create(_ context.Context, user *models.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.users[user.ID]; ok {
		return fmt.Errorf("duplicate user %s", user.ID)
	}
	cp := *user
	u.users[user.ID] = &cp
	return nil
}

func (u memUsers) MarkEmailVerified(_ context.Context, userID string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.users[userID].EmailVerified = true
	return nil
}

func (u memUsers) SetStripeCustomerID(_ context.Context, userID, customerID string) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.users[userID]
	if !ok || user.StripeCustomerID != "" {
		return false, nil
	}
	user.StripeCustomerID = customerID
	return true, nil
}

type memTokens struct{ *memDB }

func (t memTokens) CreateVerification(_ context.Context, rec *models.EmailVerificationToken) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens[rec.Token] = *rec
	return nil
}

func (t memTokens) FindVerification(_ context.Context, token string) (*models.EmailVerificationToken, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.tokens[token]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (t memTokens) DeleteVerification(_ context.Context, token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tokens, token)
	return nil
}

func (t memTokens) UpsertOAuthAccount(_ context.Context, a *models.OAuthAccount) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.oauth[a.Provider+":"+a.ProviderUserID] = *a
	return nil
}

type gateFunc func(ctx context.Context, fingerprint string) (ratelimit.Decision, error)

func (f gateFunc) Admit(ctx context.Context, fingerprint string) (ratelimit.Decision, error) {
	return f(ctx, fingerprint)
}

func allowAll() gateFunc {
	return func(context.Context, string) (ratelimit.Decision, error) {
		return ratelimit.Decision{Allowed: true}, nil
	}
}

type upload struct {
	filename    string
	contentType string
	metadata    map[string]string
	size        int
}

type memStore struct {
	mu        sync.Mutex
	uploads   map[string]upload
	deleted   []string
	uploadErr error
}

func newMemStore() *memStore {
	return &memStore{uploads: map[string]upload{}}
}

func (s *memStore) Upload(_ context.Context, data []byte, filename, contentType string, metadata map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	url := "https://cdn.example.com/" + filename
	s.uploads[url] = upload{filename: filename, contentType: contentType, metadata: metadata, size: len(data)}
	return url, nil
}

func (s *memStore) Delete(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.uploads, url)
	s.deleted = append(s.deleted, url)
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

type countingGallery struct {
	mu    sync.Mutex
	count int
}

func (g *countingGallery) Invalidate(context.Context) {
	g.mu.Lock()
	g.count++
	g.mu.Unlock()
}

type recordedAlert struct {
	msg  string
	args []any
}

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []recordedAlert
}

func (a *recordingAlerts) Critical(_ context.Context, msg string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, recordedAlert{msg: msg, args: args})
}

func (a *recordingAlerts) messages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, al := range a.alerts {
		out = append(out, al.msg)
	}
	return out
}

type recordingMailer struct {
	mu       sync.Mutex
	receipts map[string]int
	links    map[string]string
	err      error
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{receipts: map[string]int{}, links: map[string]string{}}
}

func (m *recordingMailer) SendReceipt(_ context.Context, to string, credits int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.receipts[to] += credits
	return nil
}

func (m *recordingMailer) SendVerification(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.links[to] = link
	return nil
}

type fakeGateway struct {
	mu         sync.Mutex
	customers  int
	perUser    map[string]int
	deleted    []string
	sessions   []billing.CheckoutRequest
	sessionErr error
	noURL      bool
}

// CreateCustomer hands out a distinct id per call: cus_<user>, then cus_<user>_2 and so on.
func (g *fakeGateway) CreateCustomer(_ context.Context, userID, _, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.customers++
	if g.perUser == nil {
		g.perUser = map[string]int{}
	}
	g.perUser[userID]++
	if n := g.perUser[userID]; n > 1 {
		return fmt.Sprintf("cus_%s_%d", userID, n), nil
	}
	return "cus_" + userID, nil
}

func (g *fakeGateway) DeleteCustomer(_ context.Context, customerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = append(g.deleted, customerID)
	return nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions = append(g.sessions, req)
	if g.sessionErr != nil {
		return nil, g.sessionErr
	}
	if g.noURL {
		return &billing.CheckoutSession{ID: "cs_1"}, nil
	}
	return &billing.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/pay/cs_1"}, nil
}

func testCatalog() *billing.Catalog {
	return billing.NewCatalog(
		billing.PlanInfo{Plan: models.PlanBasic, Credits: 10, PriceID: "price_basic"},
		billing.PlanInfo{Plan: models.PlanMedium, Credits: 30, PriceID: "price_medium"},
		billing.PlanInfo{Plan: models.PlanPro, Credits: 50, PriceID: "price_pro"},
	)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var errProvider = errors.New("provider unavailable")

func hasPrefixSuffix(s, prefix, suffix string) bool {
	return strings.HasPrefix(s, prefix) && strings.HasSuffix(s, suffix)
}
