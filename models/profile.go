package models

import (
	"time"

	"github.com/google/uuid"
)

// UserRole represents what a signed-in user may do
type UserRole string

const (
	RoleAdmin UserRole = "admin"
	RoleUser  UserRole = "user"
)

// Profile is a user's account row: subscription state and monthly AI usage
type Profile struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	Email              string    `json:"email" db:"email"`
	Role               UserRole  `json:"role" db:"role"`
	SubscriptionTier   string    `json:"subscription_tier" db:"subscription_tier"`
	SubscriptionStatus string    `json:"subscription_status" db:"subscription_status"`
	SubscriptionID     *string   `json:"subscription_id,omitempty" db:"subscription_id"`
	PaymentProvider    *string   `json:"payment_provider,omitempty" db:"payment_provider"`
	CustomerID         *string   `json:"-" db:"customer_id"`
	AIUsageCount       int       `json:"ai_usage_count" db:"ai_usage_count"`
	AIUsageResetAt     time.Time `json:"ai_usage_reset_at" db:"ai_usage_reset_at"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Profile model
func (Profile) TableName() string {
	return "profiles"
}

// NewProfile creates a free-tier profile whose usage window ends a month from now
func NewProfile(id uuid.UUID, email string) *Profile {
	now := time.Now()
	return &Profile{
		ID:                 id,
		Email:              email,
		Role:               RoleUser,
		SubscriptionTier:   "free",
		SubscriptionStatus: "active",
		AIUsageResetAt:     NextUsageReset(now),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// IsAdmin returns true if the user has admin role
func (p *Profile) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// UsageExpired reports whether the monthly usage window has closed at now
func (p *Profile) UsageExpired(now time.Time) bool {
	return now.After(p.AIUsageResetAt)
}

// NextUsageReset is one calendar month after from
func NextUsageReset(from time.Time) time.Time {
	return from.AddDate(0, 1, 0)
}

// SubscriptionUpdate is applied to a profile when a checkout completes.
// Empty SubscriptionID and CustomerID leave the stored values alone.
type SubscriptionUpdate struct {
	Tier           string
	Status         string
	SubscriptionID string
	CustomerID     string
	Provider       string
	ResetUsage     bool
}
