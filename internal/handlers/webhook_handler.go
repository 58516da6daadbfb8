package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ardiannugra/kelasin/internal/gateway"
	"github.com/ardiannugra/kelasin/internal/helpers"
	"github.com/ardiannugra/kelasin/internal/middleware"
	"github.com/ardiannugra/kelasin/internal/models"
	"github.com/ardiannugra/kelasin/internal/reconcile"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// HandleGatewayWebhook receives signed server-to-server notifications.
// Replays are acknowledged with the same 200 the original got; the
// engine recognizes them as already applied.
func HandleGatewayWebhook(c *gin.Context) {
	ingestGatewayPayload(c, c.Param("provider"))
}

// HandleGatewayCallback receives redirect-based provider callbacks
// (mobile banking, e-wallet). Same funnel as the webhook path.
func HandleGatewayCallback(c *gin.Context) {
	ingestGatewayPayload(c, c.Param("provider"))
}

func ingestGatewayPayload(c *gin.Context, provider string) {
	registry := middleware.GetGatewayRegistry(c)
	if registry == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Gateway registry not found.")
		return
	}

	engine := middleware.GetReconciler(c)
	if engine == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Reconciliation engine not found.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	adapter, err := registry.Get(provider)
	if err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Unknown payment provider.")
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Failed to read request body.")
		return
	}

	if err := adapter.Verify(payload, c.Request.Header); err != nil {
		helpers.RespondWithError(c, http.StatusUnauthorized, "Signature verification failed.")
		return
	}

	event, err := adapter.Parse(payload)
	if err != nil {
		if errors.Is(err, gateway.ErrEventIgnored) {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		helpers.RespondWithError(c, http.StatusBadRequest, "Failed to parse gateway payload.")
		return
	}

	providerEventID := event.Metadata["provider_event_id"]
	if providerEventID == "" {
		providerEventID = event.IdempotencyKey
	}
	record := models.GatewayEvent{
		ID:              uuid.New(),
		Provider:        adapter.Provider(),
		ProviderEventID: providerEventID,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      time.Now().UTC(),
	}
	// Replays hit the (provider, event) unique index; the audit row from
	// the first delivery stands and reconciliation proceeds regardless.
	_ = gormDB.Create(&record).Error

	result, err := engine.ApplySettlement(c.Request.Context(), *event)
	if err != nil {
		if errors.Is(err, reconcile.ErrUnknownPayment) {
			helpers.RespondWithError(c, http.StatusNotFound, "No payment matches this notification.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to reconcile gateway event.")
		return
	}

	now := time.Now().UTC()
	gormDB.Model(&models.GatewayEvent{}).
		Where("provider = ? AND provider_event_id = ?", adapter.Provider(), providerEventID).
		Update("processed_at", now)

	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"already_applied": result.AlreadyApplied,
	})
}
