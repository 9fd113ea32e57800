package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/models"
)

func TestMapPayPalStatus(t *testing.T) {
	cases := map[string]models.TransactionStatus{
		"COMPLETED":             models.StatusCompleted,
		"CREATED":               models.StatusPending,
		"SAVED":                 models.StatusPending,
		"APPROVED":              models.StatusPending,
		"PAYER_ACTION_REQUIRED": models.StatusPending,
		"PENDING":               models.StatusPending,
		"VOIDED":                models.StatusCancelled,
		"DECLINED":              models.StatusFailed,
		"FAILED":                models.StatusFailed,
		"REFUNDED":              models.StatusRefunded,
		"PARTIALLY_REFUNDED":    models.StatusCompleted,
	}
	for raw, want := range cases {
		got, err := MapPayPalStatus(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}

	_, err := MapPayPalStatus("REVERSED")
	require.Error(t, err)
}

func paypalSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPayPalVerifyWebhookSignature(t *testing.T) {
	adapter := NewPayPalAdapter("https://api.example.test", "client", "secret", "whsec", nil)
	body := []byte(`{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED"}`)

	require.NoError(t, adapter.VerifyWebhookSignature(body, paypalSignature("whsec", body)))

	var sigErr *models.SignatureVerificationError
	err := adapter.VerifyWebhookSignature([]byte(`{"id":"WH-2"}`), paypalSignature("whsec", body))
	require.ErrorAs(t, err, &sigErr)

	err = adapter.VerifyWebhookSignature(body, paypalSignature("other", body))
	require.ErrorAs(t, err, &sigErr)

	err = adapter.VerifyWebhookSignature(body, "")
	require.ErrorAs(t, err, &sigErr)
}

func TestPayPalNormalizeWebhookPayload(t *testing.T) {
	adapter := NewPayPalAdapter("https://api.example.test", "client", "secret", "whsec", nil)

	update, err := adapter.NormalizeWebhookPayload([]byte(`{
		"id": "WH-1",
		"event_type": "PAYMENT.CAPTURE.COMPLETED",
		"resource": {"id": "CAP-1", "status": "COMPLETED", "custom_id": "txn_1"}
	}`))
	require.NoError(t, err)
	require.Equal(t, "WH-1", update.ProviderEventID)
	require.Equal(t, "CAP-1", update.ProviderPaymentID)
	require.Equal(t, "txn_1", update.TransactionID)
	require.Equal(t, models.StatusCompleted, update.Status)

	update, err = adapter.NormalizeWebhookPayload([]byte(`{
		"id": "WH-2",
		"event_type": "PAYMENT.CAPTURE.DENIED",
		"resource": {"id": "CAP-2", "custom_id": "txn_2"}
	}`))
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, update.Status)
	require.NotEmpty(t, update.ErrorMessage)

	update, err = adapter.NormalizeWebhookPayload([]byte(`{
		"id": "WH-3",
		"event_type": "CHECKOUT.ORDER.VOIDED",
		"resource": {"id": "ORD-3"}
	}`))
	require.NoError(t, err)
	require.Equal(t, models.StatusCancelled, update.Status)

	_, err = adapter.NormalizeWebhookPayload([]byte(`{"event_type": "PAYMENT.CAPTURE.COMPLETED"}`))
	require.Error(t, err)
}

// The client-credentials token is fetched once and reused until expiry.
func TestPayPalTokenIsCachedAcrossCalls(t *testing.T) {
	var mu sync.Mutex
	tokenRequests := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		tokenRequests++
		mu.Unlock()
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "client", user)
		require.Equal(t, "secret", pass)
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok_1", "expires_in": 3600})
	})
	mux.HandleFunc("/v2/checkout/orders/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok_1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"id": "ORD-1", "status": "COMPLETED"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	adapter := NewPayPalAdapter(server.URL, "client", "secret", "whsec", server.Client())

	for i := 0; i < 3; i++ {
		result, err := adapter.GetPaymentStatus(context.Background(), "ORD-1")
		require.NoError(t, err)
		require.Equal(t, models.StatusCompleted, result.Status)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, tokenRequests)
}

func TestPayPalCreatePaymentSendsMajorUnits(t *testing.T) {
	var captured struct {
		PurchaseUnits []struct {
			ReferenceID string       `json:"reference_id"`
			CustomID    string       `json:"custom_id"`
			Amount      paypalAmount `json:"amount"`
		} `json:"purchase_units"`
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok_1", "expires_in": 3600})
	})
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "txn_1", r.Header.Get("PayPal-Request-Id"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "ORD-1",
			"status": "PAYER_ACTION_REQUIRED",
			"links": []map[string]string{
				{"rel": "self", "href": "https://api.example.test/orders/ORD-1"},
				{"rel": "payer-action", "href": "https://pay.example.test/approve/ORD-1"},
			},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	adapter := NewPayPalAdapter(server.URL, "client", "secret", "whsec", server.Client())
	result, err := adapter.CreatePayment(context.Background(), "txn_1", models.PaymentIntent{
		Amount:        decimal.RequireFromString("49.90"),
		Currency:      "USD",
		CustomerEmail: "a@b.com",
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, result.Status)
	require.Equal(t, "https://pay.example.test/approve/ORD-1", result.RedirectURL)

	require.Len(t, captured.PurchaseUnits, 1)
	unit := captured.PurchaseUnits[0]
	require.Equal(t, "txn_1", unit.ReferenceID)
	require.Equal(t, "txn_1", unit.CustomID)
	require.Equal(t, "49.90", unit.Amount.Value)
	require.Equal(t, "USD", unit.Amount.CurrencyCode)
}

func TestPayPalCreateRefund(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok_1", "expires_in": 3600})
	})
	mux.HandleFunc("/v2/payments/captures/CAP-1/refund", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "re_1", r.Header.Get("PayPal-Request-Id"))
		json.NewEncoder(w).Encode(map[string]any{"id": "REF-1", "status": "COMPLETED"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	adapter := NewPayPalAdapter(server.URL, "client", "secret", "whsec", server.Client())
	result, err := adapter.CreateRefund(context.Background(), "re_1", "CAP-1", models.RefundIntent{
		TransactionID: "txn_1",
		Amount:        decimal.RequireFromString("40.00"),
	}, "USD")
	require.NoError(t, err)
	require.Equal(t, "REF-1", result.ProviderRefundID)
	require.Equal(t, models.RefundCompleted, result.Status)
}
