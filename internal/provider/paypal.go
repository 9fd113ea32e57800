package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/interfaces"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/models"
)

// PayPalAdapter talks to the PayPal-style processor: OAuth2
// client-credentials auth, JSON bodies, amounts as major-unit strings. The
// internal transaction id travels as the PayPal-Request-Id header and as
// the purchase unit reference id.
type PayPalAdapter struct {
	httpClient    *http.Client
	baseURL       string
	clientID      string
	clientSecret  string
	webhookSecret string

	authMu      sync.Mutex
	cachedToken string
	tokenExpiry time.Time
}

func NewPayPalAdapter(baseURL, clientID, clientSecret, webhookSecret string, client *http.Client) *PayPalAdapter {
	return &PayPalAdapter{
		httpClient:    newHTTPClient(client),
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		clientID:      clientID,
		clientSecret:  clientSecret,
		webhookSecret: webhookSecret,
	}
}

func (a *PayPalAdapter) Name() string { return "paypal" }

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
	} `json:"purchase_units"`
}

type paypalRefund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type paypalTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type paypalWebhookEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		CustomID string `json:"custom_id"`
	} `json:"resource"`
}

func (a *PayPalAdapter) CreatePayment(ctx context.Context, transactionID string, intent models.PaymentIntent) (*interfaces.AdapterResult, error) {
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": transactionID,
			"custom_id":    transactionID,
			"description":  intent.Description,
			"amount": paypalAmount{
				CurrencyCode: intent.Currency,
				Value:        intent.Amount.StringFixed(models.MinorUnitExponent(intent.Currency)),
			},
		}},
	}
	if intent.ReturnURL != "" || intent.CancelURL != "" {
		payload["application_context"] = map[string]string{
			"return_url": intent.ReturnURL,
			"cancel_url": intent.CancelURL,
		}
	}

	var result *interfaces.AdapterResult
	call := func() error {
		body, err := a.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", transactionID, "create_payment", payload)
		if err != nil {
			return err
		}
		var order paypalOrder
		if err := json.Unmarshal(body, &order); err != nil {
			return fmt.Errorf("decode order: %w", err)
		}
		result, err = a.orderToResult(&order, string(body))
		return err
	}
	if err := withWriteRetry(ctx, call); err != nil {
		return nil, err
	}
	return result, nil
}

func (a *PayPalAdapter) GetPaymentStatus(ctx context.Context, providerPaymentID string) (*interfaces.AdapterResult, error) {
	var result *interfaces.AdapterResult
	call := func() error {
		body, err := a.doJSON(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(providerPaymentID), "", "get_payment_status", nil)
		if err != nil {
			return err
		}
		var order paypalOrder
		if err := json.Unmarshal(body, &order); err != nil {
			return fmt.Errorf("decode order: %w", err)
		}
		result, err = a.orderToResult(&order, string(body))
		return err
	}
	if err := withReadRetry(ctx, call); err != nil {
		return nil, err
	}
	return result, nil
}

func (a *PayPalAdapter) CreateRefund(ctx context.Context, refundID, providerPaymentID string, intent models.RefundIntent, currency string) (*interfaces.RefundResult, error) {
	payload := map[string]any{
		"amount": paypalAmount{
			CurrencyCode: currency,
			Value:        intent.Amount.StringFixed(models.MinorUnitExponent(currency)),
		},
		"note_to_payer": intent.Reason,
	}

	var result *interfaces.RefundResult
	call := func() error {
		body, err := a.doJSON(ctx, http.MethodPost,
			"/v2/payments/captures/"+url.PathEscape(providerPaymentID)+"/refund", refundID, "create_refund", payload)
		if err != nil {
			return err
		}
		var rf paypalRefund
		if err := json.Unmarshal(body, &rf); err != nil {
			return fmt.Errorf("decode refund: %w", err)
		}
		status, err := mapPayPalRefundStatus(rf.Status)
		if err != nil {
			return err
		}
		result = &interfaces.RefundResult{ProviderRefundID: rf.ID, Status: status, Raw: string(body)}
		return nil
	}
	if err := withWriteRetry(ctx, call); err != nil {
		return nil, err
	}
	return result, nil
}

// VerifyWebhookSignature compares the Paypal-Transmission-Sig header
// against a hex HMAC-SHA256 of the raw body keyed by the webhook secret.
func (a *PayPalAdapter) VerifyWebhookSignature(payload []byte, signature string) error {
	if signature == "" {
		return &models.SignatureVerificationError{Provider: a.Name(), Reason: "missing signature header"}
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature))) {
		return &models.SignatureVerificationError{Provider: a.Name(), Reason: "signature mismatch"}
	}
	return nil
}

func (a *PayPalAdapter) NormalizeWebhookPayload(payload []byte) (*interfaces.WebhookUpdate, error) {
	var event paypalWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	if event.ID == "" {
		return nil, fmt.Errorf("webhook payload missing event id")
	}

	update := &interfaces.WebhookUpdate{
		ProviderEventID:   event.ID,
		EventType:         event.EventType,
		ProviderPaymentID: event.Resource.ID,
		TransactionID:     event.Resource.CustomID,
	}

	switch event.EventType {
	case "PAYMENT.CAPTURE.COMPLETED", "CHECKOUT.ORDER.COMPLETED":
		update.Status = models.StatusCompleted
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		update.Status = models.StatusFailed
		update.ErrorMessage = "capture denied by processor"
	case "PAYMENT.CAPTURE.REFUNDED":
		update.Status = models.StatusRefunded
	case "CHECKOUT.ORDER.VOIDED":
		update.Status = models.StatusCancelled
	default:
		status, err := MapPayPalStatus(event.Resource.Status)
		if err != nil {
			return nil, err
		}
		update.Status = status
	}

	return update, nil
}

// ensureAccessToken returns a cached client-credentials token, refreshing
// it with an early-expiry buffer so a token never dies mid-request.
func (a *PayPalAdapter) ensureAccessToken(ctx context.Context) (string, error) {
	a.authMu.Lock()
	valid := a.cachedToken != "" && time.Now().Before(a.tokenExpiry)
	token := a.cachedToken
	a.authMu.Unlock()

	if valid {
		return token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(a.clientID, a.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, body, err := doRequest(a.httpClient, a.Name(), "oauth_token", req)
	if err != nil {
		return "", err
	}

	var tokenResp paypalTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token response missing access token")
	}

	lifetime := time.Duration(tokenResp.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}
	buffer := time.Minute
	if lifetime <= buffer {
		buffer = lifetime / 2
	}

	a.authMu.Lock()
	a.cachedToken = tokenResp.AccessToken
	a.tokenExpiry = time.Now().Add(lifetime - buffer)
	a.authMu.Unlock()

	return tokenResp.AccessToken, nil
}

func (a *PayPalAdapter) doJSON(ctx context.Context, method, path, requestID, operation string, payload any) ([]byte, error) {
	token, err := a.ensureAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var body *strings.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = strings.NewReader(string(data))
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	_, data, err := doRequest(a.httpClient, a.Name(), operation, req)
	return data, err
}

func (a *PayPalAdapter) orderToResult(order *paypalOrder, raw string) (*interfaces.AdapterResult, error) {
	status, err := MapPayPalStatus(order.Status)
	if err != nil {
		return nil, err
	}
	result := &interfaces.AdapterResult{
		ProviderPaymentID: order.ID,
		Status:            status,
		Raw:               raw,
	}
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			result.RedirectURL = link.Href
			break
		}
	}
	return result, nil
}

// MapPayPalStatus translates the order/capture vocabulary into the internal
// enum. PARTIALLY_REFUNDED stays completed: the parent transaction only
// flips to refunded once the full amount is returned.
func MapPayPalStatus(status string) (models.TransactionStatus, error) {
	switch status {
	case "COMPLETED":
		return models.StatusCompleted, nil
	case "CREATED", "SAVED", "APPROVED", "PAYER_ACTION_REQUIRED", "PENDING":
		return models.StatusPending, nil
	case "VOIDED":
		return models.StatusCancelled, nil
	case "DECLINED", "FAILED":
		return models.StatusFailed, nil
	case "REFUNDED":
		return models.StatusRefunded, nil
	case "PARTIALLY_REFUNDED":
		return models.StatusCompleted, nil
	default:
		return "", fmt.Errorf("unmapped paypal status %q", status)
	}
}

func mapPayPalRefundStatus(status string) (models.RefundStatus, error) {
	switch status {
	case "COMPLETED":
		return models.RefundCompleted, nil
	case "PENDING":
		return models.RefundPending, nil
	case "CANCELLED", "FAILED":
		return models.RefundFailed, nil
	default:
		return "", fmt.Errorf("unmapped paypal refund status %q", status)
	}
}
