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
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/interfaces"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/models"
)

const stripeSignatureTolerance = 5 * time.Minute

// StripeAdapter talks to the Stripe-style processor: secret-key bearer
// auth, form-encoded bodies, amounts in minor units. The internal
// transaction id travels both as the Idempotency-Key header and as
// metadata[reference] so webhooks can be correlated back.
type StripeAdapter struct {
	httpClient    *http.Client
	baseURL       string
	secretKey     string
	webhookSecret string
	now           func() time.Time
}

func NewStripeAdapter(baseURL, secretKey, webhookSecret string, client *http.Client) *StripeAdapter {
	return &StripeAdapter{
		httpClient:    newHTTPClient(client),
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		now:           time.Now,
	}
}

func (a *StripeAdapter) Name() string { return "stripe" }

type stripePaymentIntent struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
	NextAction *struct {
		RedirectToURL *struct {
			URL string `json:"url"`
		} `json:"redirect_to_url"`
	} `json:"next_action"`
	Metadata map[string]string `json:"metadata"`
}

type stripeRefund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object stripePaymentIntent `json:"object"`
	} `json:"data"`
}

func (a *StripeAdapter) CreatePayment(ctx context.Context, transactionID string, intent models.PaymentIntent) (*interfaces.AdapterResult, error) {
	minor, err := toMinorUnits(intent.Amount, intent.Currency)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(minor, 10))
	form.Set("currency", strings.ToLower(intent.Currency))
	form.Set("receipt_email", intent.CustomerEmail)
	form.Set("metadata[reference]", transactionID)
	if intent.Description != "" {
		form.Set("description", intent.Description)
	}
	if intent.ReturnURL != "" {
		form.Set("return_url", intent.ReturnURL)
	}

	var result *interfaces.AdapterResult
	call := func() error {
		body, err := a.post(ctx, "/v1/payment_intents", transactionID, form)
		if err != nil {
			return err
		}
		var pi stripePaymentIntent
		if err := json.Unmarshal(body, &pi); err != nil {
			return fmt.Errorf("decode payment intent: %w", err)
		}
		result, err = a.intentToResult(&pi, string(body))
		return err
	}
	if err := withWriteRetry(ctx, call); err != nil {
		return nil, err
	}
	return result, nil
}

func (a *StripeAdapter) GetPaymentStatus(ctx context.Context, providerPaymentID string) (*interfaces.AdapterResult, error) {
	var result *interfaces.AdapterResult
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			a.baseURL+"/v1/payment_intents/"+url.PathEscape(providerPaymentID), nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+a.secretKey)

		_, body, err := doRequest(a.httpClient, a.Name(), "get_payment_status", req)
		if err != nil {
			return err
		}
		var pi stripePaymentIntent
		if err := json.Unmarshal(body, &pi); err != nil {
			return fmt.Errorf("decode payment intent: %w", err)
		}
		result, err = a.intentToResult(&pi, string(body))
		return err
	}
	if err := withReadRetry(ctx, call); err != nil {
		return nil, err
	}
	return result, nil
}

func (a *StripeAdapter) CreateRefund(ctx context.Context, refundID, providerPaymentID string, intent models.RefundIntent, currency string) (*interfaces.RefundResult, error) {
	minor, err := toMinorUnits(intent.Amount, currency)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("payment_intent", providerPaymentID)
	form.Set("amount", strconv.FormatInt(minor, 10))
	if intent.Reason != "" {
		form.Set("metadata[reason]", intent.Reason)
	}

	var result *interfaces.RefundResult
	call := func() error {
		body, err := a.post(ctx, "/v1/refunds", refundID, form)
		if err != nil {
			return err
		}
		var rf stripeRefund
		if err := json.Unmarshal(body, &rf); err != nil {
			return fmt.Errorf("decode refund: %w", err)
		}
		status, err := mapStripeRefundStatus(rf.Status)
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

// VerifyWebhookSignature checks the Stripe-Signature header: a timestamp
// and an HMAC-SHA256 of "<timestamp>.<raw body>" keyed by the endpoint
// secret. Signatures outside the tolerance window are rejected to stop
// replays.
func (a *StripeAdapter) VerifyWebhookSignature(payload []byte, signature string) error {
	var ts string
	var candidates []string
	for _, part := range strings.Split(signature, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "v1":
			candidates = append(candidates, kv[1])
		}
	}
	if ts == "" || len(candidates) == 0 {
		return &models.SignatureVerificationError{Provider: a.Name(), Reason: "malformed signature header"}
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return &models.SignatureVerificationError{Provider: a.Name(), Reason: "invalid timestamp"}
	}
	age := a.now().Sub(time.Unix(unix, 0))
	if age > stripeSignatureTolerance || age < -stripeSignatureTolerance {
		return &models.SignatureVerificationError{Provider: a.Name(), Reason: "timestamp outside tolerance"}
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, candidate := range candidates {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			return nil
		}
	}
	return &models.SignatureVerificationError{Provider: a.Name(), Reason: "signature mismatch"}
}

func (a *StripeAdapter) NormalizeWebhookPayload(payload []byte) (*interfaces.WebhookUpdate, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	if event.ID == "" {
		return nil, fmt.Errorf("webhook payload missing event id")
	}

	update := &interfaces.WebhookUpdate{
		ProviderEventID:   event.ID,
		EventType:         event.Type,
		ProviderPaymentID: event.Data.Object.ID,
		TransactionID:     event.Data.Object.Metadata["reference"],
	}

	switch event.Type {
	case "payment_intent.succeeded":
		update.Status = models.StatusCompleted
	case "payment_intent.payment_failed":
		update.Status = models.StatusFailed
		if event.Data.Object.LastPaymentError != nil {
			update.ErrorMessage = event.Data.Object.LastPaymentError.Message
		}
	case "payment_intent.canceled":
		update.Status = models.StatusCancelled
	case "charge.refunded":
		update.Status = models.StatusRefunded
	default:
		status, err := MapStripeStatus(event.Data.Object.Status)
		if err != nil {
			return nil, err
		}
		update.Status = status
	}

	return update, nil
}

func (a *StripeAdapter) post(ctx context.Context, path, idempotencyKey string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	operation := "create_payment"
	if path == "/v1/refunds" {
		operation = "create_refund"
	}
	_, body, err := doRequest(a.httpClient, a.Name(), operation, req)
	return body, err
}

func (a *StripeAdapter) intentToResult(pi *stripePaymentIntent, raw string) (*interfaces.AdapterResult, error) {
	status, err := MapStripeStatus(pi.Status)
	if err != nil {
		return nil, err
	}
	result := &interfaces.AdapterResult{
		ProviderPaymentID: pi.ID,
		Status:            status,
		Raw:               raw,
	}
	if pi.LastPaymentError != nil {
		result.ErrorMessage = pi.LastPaymentError.Message
	}
	if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
		result.RedirectURL = pi.NextAction.RedirectToURL.URL
	}
	return result, nil
}

// MapStripeStatus translates the processor's payment-intent vocabulary into
// the internal five-state enum. Every value the provider documents must
// appear here; an unlisted value is an error, never a silent passthrough.
func MapStripeStatus(status string) (models.TransactionStatus, error) {
	switch status {
	case "succeeded":
		return models.StatusCompleted, nil
	case "processing", "requires_payment_method", "requires_confirmation",
		"requires_action", "requires_capture":
		return models.StatusPending, nil
	case "canceled":
		return models.StatusCancelled, nil
	default:
		return "", fmt.Errorf("unmapped stripe status %q", status)
	}
}

func mapStripeRefundStatus(status string) (models.RefundStatus, error) {
	switch status {
	case "succeeded":
		return models.RefundCompleted, nil
	case "pending", "requires_action":
		return models.RefundPending, nil
	case "failed", "canceled":
		return models.RefundFailed, nil
	default:
		return "", fmt.Errorf("unmapped stripe refund status %q", status)
	}
}

// toMinorUnits converts a major-unit decimal into the provider's integer
// minor units, rejecting amounts with sub-minor precision instead of
// rounding money silently.
func toMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	shifted := amount.Shift(models.MinorUnitExponent(currency))
	if !shifted.IsInteger() {
		return 0, &models.ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("%s has more precision than %s allows", amount.String(), currency),
		}
	}
	return shifted.IntPart(), nil
}
