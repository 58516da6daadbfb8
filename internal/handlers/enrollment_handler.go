package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/ardiannugra/kelasin/internal/helpers"
	"github.com/ardiannugra/kelasin/internal/middleware"
	"github.com/ardiannugra/kelasin/internal/models"
	"github.com/ardiannugra/kelasin/internal/reconcile"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"gorm.io/gorm"
)

func ListMyEnrollments(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var enrollments []models.Enrollment
	if err := gormDB.Preload("Course").Preload("Payment").Where("user_id = ?", userID).Find(&enrollments).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve enrollments.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"enrollments": enrollments})
}

// CancelMyEnrollment withdraws a confirmed enrollment before the course
// starts and releases the seat through the reconciliation engine.
func CancelMyEnrollment(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	enrollmentID, err := uuid.Parse(c.Param("enrollmentId"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid enrollment ID.")
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

	var enrollment models.Enrollment
	if err := gormDB.Preload("Course").Where("id = ?", enrollmentID).First(&enrollment).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Enrollment not found.")
		return
	}
	if enrollment.UserID != userID {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to cancel this enrollment.")
		return
	}

	if _, err := engine.CancelEnrollment(c.Request.Context(), enrollment.ID); err != nil {
		if errors.Is(err, reconcile.ErrNotCancellable) {
			helpers.RespondWithError(c, http.StatusConflict, "Enrollment cannot be cancelled in its current state.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to cancel enrollment.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Enrollment cancelled successfully."})
}

func generateEnrollmentPassData(enrollment *models.Enrollment) string {
	secretKey := os.Getenv("JWT_SECRET")
	signature := generatePassSignature(enrollment.ID, enrollment.PaymentID, enrollment.UserID, secretKey)
	return fmt.Sprintf("enrollment:%s;course:%s;signature:%s",
		enrollment.ID.String(),
		enrollment.CourseID.String(),
		signature,
	)
}

func generatePassSignature(enrollmentID, paymentID, userID uuid.UUID, secretKey string) string {
	data := fmt.Sprintf("%s:%s:%s", enrollmentID.String(), paymentID.String(), userID.String())
	h := hmac.New(sha256.New, []byte(secretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func extractEnrollmentIDFromPassData(passData string) (uuid.UUID, error) {
	parts := strings.Split(passData, ";")
	if len(parts) != 3 || !strings.HasPrefix(parts[0], "enrollment:") || !strings.HasPrefix(parts[2], "signature:") {
		return uuid.Nil, fmt.Errorf("invalid pass data format")
	}
	return uuid.Parse(strings.TrimPrefix(parts[0], "enrollment:"))
}

func validatePassSignature(enrollment *models.Enrollment, passData string) bool {
	parts := strings.Split(passData, ";")
	if len(parts) != 3 || !strings.HasPrefix(parts[2], "signature:") {
		return false
	}

	secretKey := os.Getenv("JWT_SECRET")
	signature := strings.TrimPrefix(parts[2], "signature:")
	expectedSignature := generatePassSignature(enrollment.ID, enrollment.PaymentID, enrollment.UserID, secretKey)
	return hmac.Equal([]byte(expectedSignature), []byte(signature))
}

// GenerateEnrollmentPass renders the signed QR a student presents at
// on-site course sessions.
func GenerateEnrollmentPass(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return
	}

	enrollmentID, err := uuid.Parse(c.Param("enrollmentId"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid enrollment ID.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var enrollment models.Enrollment
	if err := gormDB.Preload("Course").Where("id = ?", enrollmentID).First(&enrollment).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Enrollment not found.")
		return
	}

	if enrollment.UserID != userID {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to generate a pass for this enrollment.")
		return
	}

	if enrollment.Status != models.EnrollmentConfirmed && enrollment.Status != models.EnrollmentActive {
		helpers.RespondWithError(c, http.StatusForbidden, "Enrollment is not active.")
		return
	}

	passData := generateEnrollmentPassData(&enrollment)

	qrImage, err := qrcode.Encode(passData, qrcode.Medium, 256)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to generate QR code.")
		return
	}

	c.Data(http.StatusOK, "image/png", qrImage)
}

// ValidateEnrollmentPass lets a course supervisor check a student in.
func ValidateEnrollmentPass(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User not authenticated.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var validationRequest struct {
		QRData string `json:"qr_data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&validationRequest); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid request payload.")
		return
	}

	enrollmentID, err := extractEnrollmentIDFromPassData(validationRequest.QRData)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid QR code format.")
		return
	}

	var enrollment models.Enrollment
	if err := gormDB.Preload("Course").Preload("User").Where("id = ?", enrollmentID).First(&enrollment).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Enrollment not found.")
		return
	}

	if !validatePassSignature(&enrollment, validationRequest.QRData) {
		helpers.RespondWithError(c, http.StatusForbidden, "Invalid QR code signature.")
		return
	}

	if enrollment.Course.SupervisorID != userID {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to validate this pass.")
		return
	}

	if enrollment.Status != models.EnrollmentConfirmed && enrollment.Status != models.EnrollmentActive {
		helpers.RespondWithError(c, http.StatusForbidden, "Enrollment is not active.")
		return
	}

	if enrollment.Status == models.EnrollmentConfirmed {
		if err := gormDB.Model(&enrollment).Update("status", models.EnrollmentActive).Error; err != nil {
			helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to validate pass.")
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Pass validated successfully.",
		"enrollment": gin.H{
			"course_title": enrollment.Course.Title,
			"student_name": enrollment.User.Name,
		},
	})
}
