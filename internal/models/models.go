package models

import "time"

type Plan string

const (
	PlanBasic  Plan = "BASIC"
	PlanMedium Plan = "MEDIUM"
	PlanPro    Plan = "PRO"
)

type ArtifactKind string

const (
	ArtifactImage  ArtifactKind = "image"
	ArtifactSpeech ArtifactKind = "speech"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationCommitted ReservationStatus = "committed"
	ReservationRefunded  ReservationStatus = "refunded"
)

type User struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email,omitempty"`
	PasswordHash     string    `json:"-"`
	EmailVerified    bool      `json:"emailVerified"`
	CreatedViaOAuth  bool      `json:"createdViaOAuth"`
	Credits          int       `json:"credits"`
	StripeCustomerID string    `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type OAuthAccount struct {
	Provider       string
	ProviderUserID string
	UserID         string
	AccessToken    string
	RefreshToken   string
	ExpiresAt      *time.Time
}

type EmailVerificationToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

type Order struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	Plan            Plan       `json:"plan"`
	Paid            bool       `json:"paid"`
	PaidAt          *time.Time `json:"paidAt,omitempty"`
	Canceled        bool       `json:"canceled"`
	CanceledAt      *time.Time `json:"canceledAt,omitempty"`
	CanceledBy      string     `json:"canceledBy,omitempty"`
	StripeSessionID string     `json:"stripeSessionId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Terminal reports whether the order can no longer change state.
func (o *Order) Terminal() bool {
	return o.Paid || o.Canceled
}

type Image struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Prompt        string    `json:"prompt"`
	Style         string    `json:"style"`
	RevisedPrompt string    `json:"revisedPrompt"`
	ImageURL      string    `json:"imageUrl"`
	IsPublic      bool      `json:"isPublic"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Speech struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	Voice     string    `json:"voice"`
	Speed     float64   `json:"speed"`
	SpeechURL string    `json:"speechUrl"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreditReservation is a debit awaiting either an artifact (commit) or compensation (refund).
type CreditReservation struct {
	ID        string
	UserID    string
	Amount    int
	Kind      ArtifactKind
	Status    ReservationStatus
	Reason    string
	CreatedAt time.Time
	SettledAt *time.Time
}
