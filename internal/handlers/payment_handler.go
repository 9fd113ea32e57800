package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/models"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/service"
	"github.com/ObiwanKenobee/vest-aladdin-finance-1-sub002/internal/telemetry"
)

const maxWebhookBody = 1 << 20 // 1 MiB

type PaymentHandler struct {
	gateway *service.Gateway
}

func NewPaymentHandler(gateway *service.Gateway) *PaymentHandler {
	return &PaymentHandler{gateway: gateway}
}

func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	var intent models.PaymentIntent
	if err := c.ShouldBindJSON(&intent); err != nil {
		telemetry.Logger.Error("Error decoding payment intent", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	tx, err := h.gateway.ProcessPayment(c.Request.Context(), intent)
	if err != nil {
		var validationErr *models.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validationErr.Error()})
			return
		}
		// Provider declines and ambiguous outcomes still carry a
		// transaction; clients branch on its status.
		if tx != nil {
			c.JSON(http.StatusOK, gin.H{"transaction": tx, "error": err.Error()})
			return
		}
		telemetry.Logger.Error("Error processing payment", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process payment"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	transactionID := c.Param("id")

	tx, err := h.gateway.VerifyPayment(c.Request.Context(), transactionID)
	if err != nil {
		var notFound *models.TransactionNotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
			return
		}
		if tx != nil {
			// Provider unreachable; return the ledger snapshot with the
			// verification failure attached.
			c.JSON(http.StatusOK, gin.H{"transaction": tx, "error": err.Error()})
			return
		}
		telemetry.Logger.Error("Error verifying payment",
			zap.String("transaction_id", transactionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify payment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

func (h *PaymentHandler) GetTransaction(c *gin.Context) {
	tx, err := h.gateway.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		var notFound *models.TransactionNotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch transaction"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

func (h *PaymentHandler) ListTransactions(c *gin.Context) {
	limit := 50
	if email := c.Query("email"); email != "" {
		transactions, err := h.gateway.GetTransactionsByCustomer(c.Request.Context(), email, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list transactions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": transactions})
		return
	}

	transactions, err := h.gateway.GetTransactionHistory(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list transactions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}

func (h *PaymentHandler) ProcessRefund(c *gin.Context) {
	var intent models.RefundIntent
	if err := c.ShouldBindJSON(&intent); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	record, err := h.gateway.ProcessRefund(c.Request.Context(), intent)
	if err != nil {
		var validationErr *models.ValidationError
		var balanceErr *models.InsufficientRefundableBalanceError
		var notFound *models.TransactionNotFoundError
		switch {
		case errors.As(err, &validationErr):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validationErr.Error()})
		case errors.As(err, &balanceErr):
			c.JSON(http.StatusConflict, gin.H{"error": balanceErr.Error()})
		case errors.As(err, &notFound):
			c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
		case record != nil:
			c.JSON(http.StatusOK, gin.H{"refund": record, "error": err.Error()})
		default:
			telemetry.Logger.Error("Error processing refund", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process refund"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"refund": record})
}

func (h *PaymentHandler) GetProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.gateway.GetProviders()})
}

// HandleWebhook reads the raw body for signature verification; the payload
// is never parsed before the signature passes.
func (h *PaymentHandler) HandleWebhook(c *gin.Context) {
	providerName := c.Param("provider")

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		signature = c.GetHeader("Paypal-Transmission-Sig")
	}

	event, err := h.gateway.HandleWebhook(c.Request.Context(), providerName, payload, signature)
	if err != nil {
		var sigErr *models.SignatureVerificationError
		if errors.As(err, &sigErr) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": sigErr.Error()})
			return
		}
		var validationErr *models.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
			return
		}
		telemetry.Logger.Error("Error handling webhook",
			zap.String("provider", providerName), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process webhook"})
		return
	}

	// Duplicates are acknowledged with 200 so the provider stops retrying.
	c.JSON(http.StatusOK, gin.H{"event": event})
}
