package paystack

import (
	"encoding/json"
	"strings"
)

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type checkoutMetadata struct {
	UserID string `json:"userId"`
	Plan   string `json:"plan"`
}

type initializeRequest struct {
	Email       string           `json:"email"`
	Plan        string           `json:"plan"`
	CallbackURL string           `json:"callback_url"`
	Metadata    checkoutMetadata `json:"metadata"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type planRef struct {
	PlanCode string `json:"plan_code"`
	Name     string `json:"name"`
}

type customerRef struct {
	CustomerCode string `json:"customer_code"`
}

type subscriptionData struct {
	ID               int64   `json:"id"`
	Status           string  `json:"status"`
	SubscriptionCode string  `json:"subscription_code"`
	EmailToken       string  `json:"email_token"`
	NextPaymentDate  string  `json:"next_payment_date"`
	Plan             planRef `json:"plan"`
}

type transactionData struct {
	Status           string          `json:"status"`
	Reference        string          `json:"reference"`
	SubscriptionCode string          `json:"subscription_code"`
	Customer         customerRef     `json:"customer"`
	Metadata         json.RawMessage `json:"metadata"`
}

func (t transactionData) metadata() checkoutMetadata {
	return decodeMetadata(t.Metadata)
}

type webhookEvent struct {
	Event string      `json:"event"`
	Data  webhookData `json:"data"`
}

type webhookData struct {
	SubscriptionCode string          `json:"subscription_code"`
	Reference        string          `json:"reference"`
	Plan             planRef         `json:"plan"`
	Customer         customerRef     `json:"customer"`
	Metadata         json.RawMessage `json:"metadata"`
}

func (d webhookData) metadata() checkoutMetadata {
	return decodeMetadata(d.Metadata)
}

// decodeMetadata accepts metadata as an object or as a JSON-encoded string,
// both of which Paystack emits depending on how the transaction was created.
func decodeMetadata(raw json.RawMessage) checkoutMetadata {
	var meta checkoutMetadata
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return meta
	}

	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return meta
		}
		raw = json.RawMessage(inner)
	}

	_ = json.Unmarshal(raw, &meta)
	return meta
}
