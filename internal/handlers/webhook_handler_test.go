package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ardiannugra/kelasin/internal/gateway"
	"github.com/ardiannugra/kelasin/internal/middleware"
	"github.com/ardiannugra/kelasin/internal/models"
	"github.com/ardiannugra/kelasin/internal/notify"
	"github.com/ardiannugra/kelasin/internal/reconcile"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testCallbackToken = "cb-token-test"

func setupWebhookRouter(t *testing.T) (*gin.Engine, *gorm.DB, *reconcile.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Role{}, &models.User{}, &models.Course{}, &models.Payment{},
		&models.Enrollment{}, &models.GatewayEvent{}, &models.Notification{},
	))

	dispatcher := notify.NewDispatcher(db, zap.NewNop(), nil)
	engine := reconcile.NewEngine(db, zap.NewNop(), dispatcher)
	registry := gateway.NewRegistry(gateway.NewXenditAdapter(testCallbackToken))

	r := gin.New()
	r.Use(middleware.DatabaseMiddleware(db))
	r.Use(middleware.ReconcilerMiddleware(engine))
	r.Use(middleware.GatewayRegistryMiddleware(registry))
	r.POST("/v1/payments/webhook/:provider", HandleGatewayWebhook)
	r.POST("/v1/payments/callback/:provider", HandleGatewayCallback)
	return r, db, engine
}

func seedPendingPayment(t *testing.T, db *gorm.DB, engine *reconcile.Engine, txnID string) (*models.Payment, *models.Course) {
	t.Helper()
	supervisor := models.User{
		Name:        "Supervisor",
		Email:       fmt.Sprintf("supervisor-%s@example.com", uuid.NewString()),
		Password:    "hashed",
		PhoneNumber: "0800000000",
		RoleID:      uuid.New(),
	}
	require.NoError(t, db.Create(&supervisor).Error)

	student := models.User{
		Name:        "Student",
		Email:       fmt.Sprintf("student-%s@example.com", uuid.NewString()),
		Password:    "hashed",
		PhoneNumber: "0811111111",
		RoleID:      uuid.New(),
	}
	require.NoError(t, db.Create(&student).Error)

	course := models.Course{
		Title:        "Compilers",
		Description:  "Parsers, then the fun parts.",
		Status:       models.CoursePublished,
		StartDate:    time.Now().Add(24 * time.Hour),
		EndDate:      time.Now().Add(48 * time.Hour),
		Price:        150000,
		SeatsMax:     10,
		SupervisorID: supervisor.ID,
	}
	require.NoError(t, db.Create(&course).Error)

	payment, _, err := engine.Admit(context.Background(), reconcile.AdmitParams{
		UserID:                student.ID,
		CourseID:              course.ID,
		ExternalTransactionID: txnID,
		Amount:                150000,
		Method:                "xendit",
	})
	require.NoError(t, err)
	return payment, &course
}

func postXenditCallback(r *gin.Engine, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Callback-Token", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookReplayIsIdempotent(t *testing.T) {
	r, db, engine := setupWebhookRouter(t)
	payment, course := seedPendingPayment(t, db, engine, "INV-001")

	body := `{"id":"xnd-evt-1","external_id":"INV-001","status":"PAID","paid_amount":150000}`

	for i := 0; i < 3; i++ {
		w := postXenditCallback(r, "/v1/payments/webhook/xendit", body, testCallbackToken)
		assert.Equal(t, http.StatusOK, w.Code, "delivery %d", i)
	}

	var reloaded models.Payment
	require.NoError(t, db.Where("id = ?", payment.ID).First(&reloaded).Error)
	assert.Equal(t, models.PaymentCompleted, reloaded.Status)

	var enrollmentCount int64
	require.NoError(t, db.Model(&models.Enrollment{}).
		Where("course_id = ? AND status = ?", course.ID, models.EnrollmentConfirmed).
		Count(&enrollmentCount).Error)
	assert.Equal(t, int64(1), enrollmentCount)

	var reloadedCourse models.Course
	require.NoError(t, db.Where("id = ?", course.ID).First(&reloadedCourse).Error)
	assert.Equal(t, 1, reloadedCourse.SeatsTaken)

	// One audit row for three deliveries, marked processed.
	var events []models.GatewayEvent
	require.NoError(t, db.Where("provider = ? AND provider_event_id = ?", "xendit", "xnd-evt-1").
		Find(&events).Error)
	require.Len(t, events, 1)
	assert.NotNil(t, events[0].ProcessedAt)

	// Three deliveries, one set of student/supervisor notifications.
	var notificationCount int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&notificationCount).Error)
	assert.Equal(t, int64(2), notificationCount)
}

func TestWebhookRejectsBadToken(t *testing.T) {
	r, db, engine := setupWebhookRouter(t)
	payment, _ := seedPendingPayment(t, db, engine, "INV-001")

	body := `{"id":"xnd-evt-1","external_id":"INV-001","status":"PAID"}`

	w := postXenditCallback(r, "/v1/payments/webhook/xendit", body, "wrong-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postXenditCallback(r, "/v1/payments/webhook/xendit", body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var reloaded models.Payment
	require.NoError(t, db.Where("id = ?", payment.ID).First(&reloaded).Error)
	assert.Equal(t, models.PaymentPending, reloaded.Status)
}

func TestWebhookUnknownProviderAndPayment(t *testing.T) {
	r, db, engine := setupWebhookRouter(t)
	seedPendingPayment(t, db, engine, "INV-001")

	w := postXenditCallback(r, "/v1/payments/webhook/stripe", `{}`, testCallbackToken)
	assert.Equal(t, http.StatusNotFound, w.Code)

	body := `{"id":"xnd-evt-9","external_id":"INV-does-not-exist","status":"PAID"}`
	w = postXenditCallback(r, "/v1/payments/webhook/xendit", body, testCallbackToken)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookIgnoredStatusAcknowledged(t *testing.T) {
	r, db, engine := setupWebhookRouter(t)
	payment, _ := seedPendingPayment(t, db, engine, "INV-001")

	body := `{"id":"xnd-evt-1","external_id":"INV-001","status":"SOMETHING_NEW"}`
	w := postXenditCallback(r, "/v1/payments/webhook/xendit", body, testCallbackToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")

	var reloaded models.Payment
	require.NoError(t, db.Where("id = ?", payment.ID).First(&reloaded).Error)
	assert.Equal(t, models.PaymentPending, reloaded.Status)
}

func TestCallbackPathSharesFunnel(t *testing.T) {
	r, db, engine := setupWebhookRouter(t)
	payment, _ := seedPendingPayment(t, db, engine, "INV-001")

	body := `{"id":"xnd-evt-1","external_id":"INV-001","status":"EXPIRED"}`
	w := postXenditCallback(r, "/v1/payments/callback/xendit", body, testCallbackToken)
	assert.Equal(t, http.StatusOK, w.Code)

	var reloaded models.Payment
	require.NoError(t, db.Where("id = ?", payment.ID).First(&reloaded).Error)
	assert.Equal(t, models.PaymentCanceled, reloaded.Status)

	var enrollment models.Enrollment
	require.NoError(t, db.Where("payment_id = ?", payment.ID).First(&enrollment).Error)
	assert.Equal(t, models.EnrollmentCancelled, enrollment.Status)
}
