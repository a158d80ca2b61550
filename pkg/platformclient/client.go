// Package platformclient is the outbound HTTP client for the messaging
// platform's Bot API. Every method sends JSON and expects the common
// `{ok, result?, description?}` envelope; transport failures and 5xx are
// retried with jittered exponential backoff, 4xx and business `ok=false`
// are not.
package platformclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// Client wraps the platform's Bot API, rooted at baseURL+"/bot"+token.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a platform API client. publicAPIBaseURL defaults to the
// standard Bot API host when empty (tests substitute a local server).
func New(publicAPIBaseURL, botToken string, logger *slog.Logger) *Client {
	base := strings.TrimRight(publicAPIBaseURL, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	return &Client{
		baseURL: fmt.Sprintf("%s/bot%s", base, botToken),
		httpClient: &http.Client{
			// Overall request timeout 30s; connect phase bounded separately
			// to 10s via the transport's dialer.
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: dialer.DialContext,
			},
		},
		logger: logger,
	}
}

func (c *Client) call(ctx context.Context, method string, path string, body any, result any) error {
	_, err := withRetry(ctx, method, func() (struct{}, error) {
		return struct{}{}, c.doOnce(ctx, path, body, result)
	})
	return err
}

func (c *Client) doOnce(ctx context.Context, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transportError{err: err}
	}

	if resp.StatusCode >= 400 {
		return &statusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("decoding response envelope: %w", err)
	}
	if !env.Ok {
		return &businessError{Description: env.Description}
	}
	if result != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return fmt.Errorf("decoding response result: %w", err)
		}
	}
	return nil
}

// SetWebhook registers the webhook URL.
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secretToken string, allowedUpdates []string, maxConnections *int, dropPending *bool) error {
	payload := map[string]any{"url": webhookURL, "secret_token": secretToken}
	if len(allowedUpdates) > 0 {
		payload["allowed_updates"] = allowedUpdates
	}
	if maxConnections != nil {
		payload["max_connections"] = *maxConnections
	}
	if dropPending != nil {
		payload["drop_pending_updates"] = *dropPending
	}
	return c.call(ctx, "setWebhook", "/setWebhook", payload, nil)
}

// DeleteWebhook removes the webhook (called before the first long-poll with
// dropPending=false).
func (c *Client) DeleteWebhook(ctx context.Context, dropPending bool) error {
	payload := map[string]any{"drop_pending_updates": dropPending}
	return c.call(ctx, "deleteWebhook", "/deleteWebhook", payload, nil)
}

// GetWebhookInfo returns the current webhook configuration.
func (c *Client) GetWebhookInfo(ctx context.Context) (WebhookInfo, error) {
	var info WebhookInfo
	err := c.call(ctx, "getWebhookInfo", "/getWebhookInfo", nil, &info)
	return info, err
}

// CreateInvoiceLink builds a Stars invoice link for one case purchase.
func (c *Client) CreateInvoiceLink(ctx context.Context, title, description, payload, currency string, priceStars int64, providerToken string) (string, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
		"payload":     payload,
		"currency":    currency,
		"prices":      []map[string]any{{"label": title, "amount": priceStars}},
	}
	if providerToken != "" {
		body["provider_token"] = providerToken
	}
	var link string
	err := c.call(ctx, "createInvoiceLink", "/createInvoiceLink", body, &link)
	return link, err
}

// AnswerPreCheckoutQuery answers exactly once per pre-checkout update.
func (c *Client) AnswerPreCheckoutQuery(ctx context.Context, id string, ok bool, errorMessage string) error {
	body := map[string]any{"pre_checkout_query_id": id, "ok": ok}
	if !ok {
		body["error_message"] = errorMessage
	}
	return c.call(ctx, "answerPreCheckoutQuery", "/answerPreCheckoutQuery", body, nil)
}

// GetUpdates polls for updates. offset is omitted from the request when
// nil; timeoutSec must be in [1, 50].
func (c *Client) GetUpdates(ctx context.Context, offset *int64, timeoutSec int, allowedUpdates []string) ([]Update, error) {
	body := map[string]any{"timeout": timeoutSec}
	if offset != nil {
		body["offset"] = *offset
	}
	if len(allowedUpdates) > 0 {
		body["allowed_updates"] = allowedUpdates
	}
	var updates []Update
	err := c.call(ctx, "getUpdates", "/getUpdates", body, &updates)
	return updates, err
}

// SendMessage sends a plain text message, used for best-effort payment
// receipts.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, disableNotification bool, replyToMessageID *int64) error {
	body := map[string]any{"chat_id": chatID, "text": text, "disable_notification": disableNotification}
	if replyToMessageID != nil {
		body["reply_to_message_id"] = *replyToMessageID
	}
	return c.call(ctx, "sendMessage", "/sendMessage", body, nil)
}

// SendGift delivers a gift prize.
func (c *Client) SendGift(ctx context.Context, userID int64, giftID string, payForUpgrade bool) error {
	body := map[string]any{"user_id": userID, "gift_id": giftID, "pay_for_upgrade": payForUpgrade}
	return c.call(ctx, "sendGift", "/sendGift", body, nil)
}

// GiftPremiumSubscription delivers a premium-subscription prize.
func (c *Client) GiftPremiumSubscription(ctx context.Context, userID int64, monthCount int, starCount int64) error {
	body := map[string]any{"user_id": userID, "month_count": monthCount, "star_count": starCount}
	return c.call(ctx, "giftPremiumSubscription", "/giftPremiumSubscription", body, nil)
}

// RefundStarPayment issues an at-most-once refund.
func (c *Client) RefundStarPayment(ctx context.Context, userID int64, chargeID string) error {
	body := map[string]any{"user_id": userID, "telegram_payment_charge_id": chargeID}
	return c.call(ctx, "refundStarPayment", "/refundStarPayment", body, nil)
}

// GetAvailableGifts lists the gift catalog, consulted by the award service
// to resolve a star cost to a giftId.
func (c *Client) GetAvailableGifts(ctx context.Context) ([]Gift, error) {
	var gifts []Gift
	err := c.call(ctx, "getAvailableGifts", "/getAvailableGifts", nil, &gifts)
	return gifts, err
}
