package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ardiannugra/kelasin/internal/gateway"
	"github.com/ardiannugra/kelasin/internal/helpers"
	"github.com/ardiannugra/kelasin/internal/middleware"
	"github.com/ardiannugra/kelasin/internal/models"
	"github.com/ardiannugra/kelasin/internal/reconcile"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CheckoutRequest struct {
	CourseID      uuid.UUID  `json:"course_id" binding:"required"`
	CouponID      *uuid.UUID `json:"coupon_id"`
	Method        string     `json:"method"`
	TransactionID string     `json:"transaction_id"`
}

type ConfirmRequest struct {
	TransactionID         string `json:"transaction_id" binding:"required"`
	GatewayConfirmationID string `json:"gateway_confirmation_id" binding:"required"`
}

type VerifyRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
	GatewayData   struct {
		Status      string `json:"status" binding:"required"`
		ReferenceID string `json:"reference_id"`
	} `json:"gateway_data" binding:"required"`
}

// CreateCheckout admits a new payment attempt and hands the buyer a DOKU
// checkout link. The pending Payment+Enrollment pair exists before the
// gateway is ever contacted; if the buyer walks away the sweeper expires
// it through the same settlement path as everything else.
func CreateCheckout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}
	userUUID, ok := userID.(uuid.UUID)
	if !ok {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Invalid user ID type.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	engine := middleware.GetReconciler(c)
	if engine == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Reconciliation engine not found.")
		return
	}

	var course models.Course
	if err := gormDB.Where("id = ? AND status = ?", req.CourseID, models.CoursePublished).First(&course).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Course not found.")
		return
	}

	var user models.User
	if err := gormDB.Where("id = ?", userUUID).First(&user).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "User not found.")
		return
	}

	amount := course.Price
	if req.CouponID != nil {
		var claim models.UserCoupon
		err := gormDB.Where("user_id = ? AND coupon_id = ? AND is_used = ?", userUUID, *req.CouponID, false).
			First(&claim).Error
		if err != nil {
			helpers.RespondWithError(c, http.StatusBadRequest, "Coupon not claimed or already used.")
			return
		}
		var coupon models.Coupon
		if err := gormDB.Where("id = ?", *req.CouponID).First(&coupon).Error; err != nil {
			helpers.RespondWithError(c, http.StatusBadRequest, "Coupon not found.")
			return
		}
		amount -= amount * int64(coupon.Discount) / 100
	}

	method := req.Method
	if method == "" {
		method = "doku_checkout"
	}
	transactionID := req.TransactionID
	if transactionID == "" {
		transactionID = helpers.GenerateTransactionID()
	}

	payment, _, err := engine.Admit(c.Request.Context(), reconcile.AdmitParams{
		UserID:                userUUID,
		CourseID:              course.ID,
		ExternalTransactionID: transactionID,
		Amount:                amount,
		Currency:              "IDR",
		Method:                method,
		CouponID:              req.CouponID,
	})
	if err != nil {
		switch {
		case errors.Is(err, reconcile.ErrCourseFull):
			helpers.RespondWithError(c, http.StatusConflict, "Course is full.")
		case errors.Is(err, reconcile.ErrAlreadyEnrolled):
			helpers.RespondWithError(c, http.StatusConflict, "You are already enrolled in this course.")
		case errors.Is(err, reconcile.ErrDuplicateTransaction):
			helpers.RespondWithError(c, http.StatusConflict, "Transaction ID already used.")
		default:
			helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create payment.")
		}
		return
	}

	paymentURL, err := createDokuCheckout(payment, &course, &user)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadGateway, "Payment link generation failed. Please retry with a new checkout.")
		return
	}

	if err := engine.MarkProcessing(c.Request.Context(), payment.ID); err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to update payment.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payment_url":    paymentURL,
		"transaction_id": payment.ExternalTransactionID,
		"amount":         payment.Amount,
	})
}

func createDokuCheckout(payment *models.Payment, course *models.Course, user *models.User) (string, error) {
	paymentBody := map[string]interface{}{
		"order": map[string]interface{}{
			"amount":                payment.Amount,
			"invoice_number":        payment.ExternalTransactionID,
			"currency":              payment.Currency,
			"language":              "EN",
			"auto_redirect":         false,
			"disable_retry_payment": true,
			"line_items": []map[string]interface{}{
				{
					"id":       "001",
					"name":     course.Title,
					"quantity": 1,
					"price":    payment.Amount,
				},
			},
		},
		"payment": map[string]interface{}{
			"payment_due_date": 10,
		},
		"customer": map[string]interface{}{
			"id":    user.ID.String(),
			"name":  user.Name,
			"phone": user.PhoneNumber,
			"email": user.Email,
		},
	}

	jsonBody, err := json.Marshal(paymentBody)
	if err != nil {
		return "", err
	}

	headerGenerator := helpers.NewDokuHeaderGenerator(
		os.Getenv("DOKU_CLIENT_ID"),
		os.Getenv("DOKU_SECRET_KEY"),
		"/checkout/v1/payment",
	)
	headers := headerGenerator.GetHeaders(string(jsonBody))

	baseURL := os.Getenv("DOKU_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api-sandbox.doku.com"
	}
	httpReq, err := http.NewRequest("POST", baseURL+"/checkout/v1/payment", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("doku checkout returned status %d", resp.StatusCode)
	}

	var responseBody map[string]interface{}
	if err := json.Unmarshal(body, &responseBody); err != nil {
		return "", err
	}

	response, ok := responseBody["response"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("unexpected doku checkout response shape")
	}
	paymentSection, ok := response["payment"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("unexpected doku checkout response shape")
	}
	paymentURL, ok := paymentSection["url"].(string)
	if !ok {
		return "", fmt.Errorf("unexpected doku checkout response shape")
	}
	return paymentURL, nil
}

// ConfirmPayment is the client-initiated confirmation entry point. A
// duplicate confirmation gets the same success response as the first
// one; the engine recognizes it as already applied.
func ConfirmPayment(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	engine := middleware.GetReconciler(c)
	if engine == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Reconciliation engine not found.")
		return
	}

	result, err := engine.ApplySettlement(c.Request.Context(), reconcile.SettlementEvent{
		IdempotencyKey:     req.TransactionID,
		GatewayReferenceID: req.GatewayConfirmationID,
		Provider:           "client",
		Outcome:            reconcile.OutcomeSucceeded,
	})
	if err != nil {
		if errors.Is(err, reconcile.ErrUnknownPayment) {
			helpers.RespondWithError(c, http.StatusNotFound, "Payment not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to confirm payment.")
		return
	}

	respondWithSettlement(c, result)
}

// GetPaymentStatus polls the gateway for the current state of an
// invoice and reconciles whatever it reports.
func GetPaymentStatus(c *gin.Context) {
	referenceID := c.Param("referenceId")
	if referenceID == "" {
		helpers.RespondWithError(c, http.StatusBadRequest, "Missing gateway reference ID.")
		return
	}

	engine := middleware.GetReconciler(c)
	if engine == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Reconciliation engine not found.")
		return
	}

	xenditClient := middleware.GetXenditClient(c)
	if xenditClient == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Xendit client not found.")
		return
	}

	invoice, _, invErr := xenditClient.InvoiceApi.GetInvoiceById(c.Request.Context(), referenceID).Execute()
	if invErr != nil {
		helpers.RespondWithError(c, http.StatusBadGateway, "Failed to query payment gateway.")
		return
	}

	outcome, ok := gateway.MapGenericStatus(string(invoice.GetStatus()))
	if !ok {
		helpers.RespondWithError(c, http.StatusBadGateway, "Gateway returned an unrecognized status.")
		return
	}

	result, err := engine.ApplySettlement(c.Request.Context(), reconcile.SettlementEvent{
		IdempotencyKey:     invoice.GetExternalId(),
		GatewayReferenceID: referenceID,
		Provider:           "xendit",
		Outcome:            outcome,
	})
	if err != nil {
		if errors.Is(err, reconcile.ErrUnknownPayment) {
			helpers.RespondWithError(c, http.StatusNotFound, "Payment not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to reconcile payment status.")
		return
	}

	respondWithSettlement(c, result)
}

// VerifyPayment is the legacy generic verification entry point used by
// manual and simple flows.
func VerifyPayment(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	engine := middleware.GetReconciler(c)
	if engine == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Reconciliation engine not found.")
		return
	}

	outcome, ok := gateway.MapGenericStatus(req.GatewayData.Status)
	if !ok {
		helpers.RespondWithError(c, http.StatusBadRequest, "Unrecognized gateway status.")
		return
	}

	result, err := engine.ApplySettlement(c.Request.Context(), reconcile.SettlementEvent{
		IdempotencyKey:     req.TransactionID,
		GatewayReferenceID: req.GatewayData.ReferenceID,
		Provider:           "manual",
		Outcome:            outcome,
	})
	if err != nil {
		if errors.Is(err, reconcile.ErrUnknownPayment) {
			helpers.RespondWithError(c, http.StatusNotFound, "Payment not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to verify payment.")
		return
	}

	respondWithSettlement(c, result)
}

type RefundRequest struct {
	PaymentID uuid.UUID `json:"payment_id" binding:"required"`
}

// RefundPayment is the admin-only compensating action: the payment moves
// to refunded and the seat, if still held, is released.
func RefundPayment(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	engine := middleware.GetReconciler(c)
	if engine == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Reconciliation engine not found.")
		return
	}

	payment, err := engine.Refund(c.Request.Context(), req.PaymentID)
	if err != nil {
		if errors.Is(err, reconcile.ErrNotRefundable) {
			helpers.RespondWithError(c, http.StatusConflict, "Payment is not in a refundable state.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to refund payment.")
		return
	}

	var enrollment models.Enrollment
	err = gormDB.Where("user_id = ? AND course_id = ?", payment.UserID, payment.CourseID).
		First(&enrollment).Error
	if err == nil {
		if _, err := engine.CancelEnrollment(c.Request.Context(), enrollment.ID); err != nil &&
			!errors.Is(err, reconcile.ErrNotCancellable) {
			helpers.RespondWithError(c, http.StatusInternalServerError, "Payment refunded but the seat could not be released.")
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "Payment refunded.",
		"transaction_id": payment.ExternalTransactionID,
	})
}

func respondWithSettlement(c *gin.Context, result *reconcile.Result) {
	switch result.Payment.Status {
	case models.PaymentCompleted:
		c.JSON(http.StatusOK, gin.H{
			"message":         "Payment confirmed. Your enrollment is active.",
			"transaction_id":  result.Payment.ExternalTransactionID,
			"payment_status":  result.Payment.Status,
			"already_applied": result.AlreadyApplied,
		})
	case models.PaymentFailed, models.PaymentCanceled:
		c.JSON(http.StatusPaymentRequired, gin.H{
			"message":        "Payment failed. Please try again with a new checkout.",
			"transaction_id": result.Payment.ExternalTransactionID,
			"payment_status": result.Payment.Status,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"message":        "Payment is still in progress.",
			"transaction_id": result.Payment.ExternalTransactionID,
			"payment_status": result.Payment.Status,
		})
	}
}
