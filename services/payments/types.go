package payments

import (
	"context"
	"time"
)

// ProviderName identifies a payment backend
type ProviderName string

const (
	ProviderStripe   ProviderName = "stripe"
	ProviderPaystack ProviderName = "paystack"
)

// Tier is a subscription level
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierTeam       Tier = "team"
	TierEnterprise Tier = "enterprise"
)

// Valid reports whether t is a known tier
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierTeam, TierEnterprise:
		return true
	}
	return false
}

// Status is the normalized lifecycle state of a subscription
type Status string

const (
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
	StatusPastDue  Status = "past_due"
	StatusTrialing Status = "trialing"
)

// Normalized webhook event names
const (
	EventCheckoutCompleted    = "checkout.completed"
	EventSubscriptionUpdated  = "subscription.updated"
	EventSubscriptionCanceled = "subscription.canceled"

	// EventCheckoutFailed is reported by callback verification when the charge did not succeed
	EventCheckoutFailed = "checkout.failed"
)

// CheckoutSession is a hosted payment page the user is redirected to
type CheckoutSession struct {
	ID       string       `json:"id"`
	URL      string       `json:"url"`
	Provider ProviderName `json:"provider"`
}

// Subscription is a vendor subscription in normalized form
type Subscription struct {
	ID                 string       `json:"id"`
	UserID             string       `json:"userId"`
	Provider           ProviderName `json:"provider"`
	ProviderID         string       `json:"providerId"`
	Tier               Tier         `json:"tier"`
	Status             Status       `json:"status"`
	CurrentPeriodStart time.Time    `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time    `json:"currentPeriodEnd"`
	CancelAtPeriodEnd  bool         `json:"cancelAtPeriodEnd"`
}

// WebhookResult is the normalized outcome of a verified webhook.
// Unrecognized vendor events pass through with their raw name.
type WebhookResult struct {
	Event          string `json:"event"`
	UserID         string `json:"userId,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	CustomerID     string `json:"customerId,omitempty"`
	Tier           Tier   `json:"tier,omitempty"`
	Success        bool   `json:"success"`
}

// Provider is the contract every payment backend implements
type Provider interface {
	Name() ProviderName
	CreateCheckout(ctx context.Context, plan Tier, userID, email string) (*CheckoutSession, error)

	// HandleWebhook verifies signature over the raw payload bytes before parsing them
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error)

	GetCustomerPortalURL(ctx context.Context, customerID string) (string, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error

	// GetSubscription returns nil, nil when the vendor has no such subscription
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
}

// CallbackVerifier is implemented by backends that confirm payment on a redirect callback
type CallbackVerifier interface {
	VerifyCallback(ctx context.Context, reference string) (*WebhookResult, error)
}
