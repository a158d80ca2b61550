package platformclient

import "encoding/json"

// envelope is the common `{ok, result?, description?}` response shape every
// platform API method returns.
type envelope struct {
	Ok          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}

// Update is the tagged-variant wire shape the platform delivers, either via
// webhook or getUpdates: a message, a pre-checkout query, or a successful
// payment, modeled here as one struct with optional fields rather than a
// sealed hierarchy, since Go has no sum types.
type Update struct {
	UpdateID         int64             `json:"update_id"`
	Message          *Message          `json:"message,omitempty"`
	PreCheckoutQuery *PreCheckoutQuery `json:"pre_checkout_query,omitempty"`
}

// Message carries a successful_payment sub-object when the update reports a
// completed purchase; all other message content is opaque to paygate.
type Message struct {
	MessageID         int64              `json:"message_id"`
	Chat              Chat               `json:"chat"`
	From              *User              `json:"from,omitempty"`
	SuccessfulPayment *SuccessfulPayment `json:"successful_payment,omitempty"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// User identifies the platform account on either end of an update.
type User struct {
	ID int64 `json:"id"`
}

// PreCheckoutQuery is answered exactly once via AnswerPreCheckoutQuery.
type PreCheckoutQuery struct {
	ID             string `json:"id"`
	From           User   `json:"from"`
	Currency       string `json:"currency"`
	TotalAmount    int64  `json:"total_amount"`
	InvoicePayload string `json:"invoice_payload"`
}

// SuccessfulPayment is the payload of Message.SuccessfulPayment.
type SuccessfulPayment struct {
	Currency                string `json:"currency"`
	TotalAmount             int64  `json:"total_amount"`
	InvoicePayload          string `json:"invoice_payload"`
	TelegramPaymentChargeID string `json:"telegram_payment_charge_id"`
	ProviderPaymentChargeID string `json:"provider_payment_charge_id,omitempty"`
}

// WebhookInfo is the result of GetWebhookInfo.
type WebhookInfo struct {
	URL                  string   `json:"url"`
	HasCustomCertificate bool     `json:"has_custom_certificate"`
	PendingUpdateCount   int      `json:"pending_update_count"`
	LastErrorDate        int64    `json:"last_error_date,omitempty"`
	LastErrorMessage     string   `json:"last_error_message,omitempty"`
	MaxConnections       int      `json:"max_connections,omitempty"`
	AllowedUpdates       []string `json:"allowed_updates,omitempty"`
}

// Gift is one entry of GetAvailableGifts, consulted by the award service to
// resolve a Gift prize to a concrete giftId.
type Gift struct {
	ID        string `json:"id"`
	StarCount int64  `json:"star_count"`
}
