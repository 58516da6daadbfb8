package reconcile

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ardiannugra/kelasin/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type countingDispatcher struct {
	confirmed atomic.Int64
}

func (d *countingDispatcher) EnrollmentConfirmed(payment *models.Payment, enrollment *models.Enrollment) {
	d.confirmed.Add(1)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps the shared in-memory database alive and
	// serializes access the way a row lock would on Postgres.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Course{}, &models.Payment{}, &models.Enrollment{},
	))
	return db
}

func seedCourse(t *testing.T, db *gorm.DB, seatsMax int) *models.Course {
	t.Helper()
	course := models.Course{
		Title:        "Intro to Distributed Systems",
		Description:  "Consensus without tears.",
		Status:       models.CoursePublished,
		StartDate:    time.Now().Add(24 * time.Hour),
		EndDate:      time.Now().Add(48 * time.Hour),
		Price:        150000,
		SeatsMax:     seatsMax,
		SupervisorID: uuid.New(),
	}
	require.NoError(t, db.Create(&course).Error)
	return &course
}

func admitPayment(t *testing.T, engine *Engine, courseID uuid.UUID, userID uuid.UUID, txnID string) (*models.Payment, *models.Enrollment) {
	t.Helper()
	payment, enrollment, err := engine.Admit(context.Background(), AdmitParams{
		UserID:                userID,
		CourseID:              courseID,
		ExternalTransactionID: txnID,
		Amount:                150000,
		Method:                "doku",
	})
	require.NoError(t, err)
	return payment, enrollment
}

func seatsTaken(t *testing.T, db *gorm.DB, courseID uuid.UUID) int {
	t.Helper()
	var course models.Course
	require.NoError(t, db.Where("id = ?", courseID).First(&course).Error)
	return course.SeatsTaken
}

func TestApplySettlementIdempotent(t *testing.T) {
	db := setupTestDB(t)
	dispatcher := &countingDispatcher{}
	engine := NewEngine(db, zap.NewNop(), dispatcher)
	course := seedCourse(t, db, 10)
	payment, _ := admitPayment(t, engine, course.ID, uuid.New(), "INV-001")

	event := SettlementEvent{
		IdempotencyKey:     payment.ExternalTransactionID,
		GatewayReferenceID: "gw-ref-001",
		Provider:           "doku",
		Outcome:            OutcomeSucceeded,
	}

	first, err := engine.ApplySettlement(context.Background(), event)
	require.NoError(t, err)
	assert.False(t, first.AlreadyApplied)
	assert.Equal(t, models.PaymentCompleted, first.Payment.Status)
	assert.NotNil(t, first.Payment.SettledAt)
	require.NotNil(t, first.Enrollment)
	assert.Equal(t, models.EnrollmentConfirmed, first.Enrollment.Status)

	second, err := engine.ApplySettlement(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, second.AlreadyApplied)
	assert.Equal(t, models.PaymentCompleted, second.Payment.Status)

	third, err := engine.ApplySettlement(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, third.AlreadyApplied)

	assert.Equal(t, 1, seatsTaken(t, db, course.ID))
	assert.Equal(t, int64(1), dispatcher.confirmed.Load())

	var enrollments []models.Enrollment
	require.NoError(t, db.Where("course_id = ?", course.ID).Find(&enrollments).Error)
	assert.Len(t, enrollments, 1)
}

func TestApplySettlementOrderConvergence(t *testing.T) {
	sequences := [][]Outcome{
		{OutcomeRequiresAction, OutcomeSucceeded},
		{OutcomeSucceeded, OutcomeRequiresAction},
		{OutcomeSucceeded, OutcomeFailed},
		{OutcomeFailed, OutcomeSucceeded},
	}
	finals := []models.PaymentStatus{
		models.PaymentCompleted,
		models.PaymentCompleted,
		models.PaymentCompleted,
		models.PaymentFailed,
	}

	for i, sequence := range sequences {
		t.Run(fmt.Sprintf("%v", sequence), func(t *testing.T) {
			db := setupTestDB(t)
			dispatcher := &countingDispatcher{}
			engine := NewEngine(db, zap.NewNop(), dispatcher)
			course := seedCourse(t, db, 10)
			payment, _ := admitPayment(t, engine, course.ID, uuid.New(), "INV-001")

			for _, outcome := range sequence {
				_, err := engine.ApplySettlement(context.Background(), SettlementEvent{
					IdempotencyKey: payment.ExternalTransactionID,
					Provider:       "xendit",
					Outcome:        outcome,
				})
				require.NoError(t, err)
			}

			var reloaded models.Payment
			require.NoError(t, db.Where("id = ?", payment.ID).First(&reloaded).Error)
			assert.Equal(t, finals[i], reloaded.Status)

			if finals[i] == models.PaymentCompleted {
				assert.Equal(t, 1, seatsTaken(t, db, course.ID))
				assert.Equal(t, int64(1), dispatcher.confirmed.Load())
			} else {
				assert.Equal(t, 0, seatsTaken(t, db, course.ID))
				assert.Equal(t, int64(0), dispatcher.confirmed.Load())
			}
		})
	}
}

func TestRequiresActionAllowsLaterSuccess(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db, zap.NewNop(), nil)
	course := seedCourse(t, db, 10)
	payment, _ := admitPayment(t, engine, course.ID, uuid.New(), "INV-001")

	result, err := engine.ApplySettlement(context.Background(), SettlementEvent{
		IdempotencyKey:     payment.ExternalTransactionID,
		GatewayReferenceID: "gw-ref-777",
		Provider:           "doku",
		Outcome:            OutcomeRequiresAction,
	})
	require.NoError(t, err)
	assert.False(t, result.AlreadyApplied)
	assert.Equal(t, models.PaymentRequiresAction, result.Payment.Status)

	// The gateway-assigned reference was recorded; later signals may key
	// on it instead of the checkout transaction id.
	result, err = engine.ApplySettlement(context.Background(), SettlementEvent{
		IdempotencyKey: "gw-ref-777",
		Provider:       "doku",
		Outcome:        OutcomeSucceeded,
	})
	require.NoError(t, err)
	assert.False(t, result.AlreadyApplied)
	assert.Equal(t, models.PaymentCompleted, result.Payment.Status)
	assert.Equal(t, 1, seatsTaken(t, db, course.ID))
}

func TestAdmitRejections(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db, zap.NewNop(), nil)
	course := seedCourse(t, db, 10)
	userID := uuid.New()

	_, _, err := engine.Admit(context.Background(), AdmitParams{
		UserID:   userID,
		CourseID: course.ID,
		Amount:   150000,
		Method:   "doku",
	})
	assert.ErrorIs(t, err, ErrMissingTransactionID)

	admitPayment(t, engine, course.ID, userID, "INV-001")

	_, _, err = engine.Admit(context.Background(), AdmitParams{
		UserID:                uuid.New(),
		CourseID:              course.ID,
		ExternalTransactionID: "INV-001",
		Amount:                150000,
		Method:                "doku",
	})
	assert.ErrorIs(t, err, ErrDuplicateTransaction)

	_, err = engine.ApplySettlement(context.Background(), SettlementEvent{
		IdempotencyKey: "INV-001",
		Provider:       "doku",
		Outcome:        OutcomeSucceeded,
	})
	require.NoError(t, err)

	_, _, err = engine.Admit(context.Background(), AdmitParams{
		UserID:                userID,
		CourseID:              course.ID,
		ExternalTransactionID: "INV-002",
		Amount:                150000,
		Method:                "doku",
	})
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
}

func TestAdmitCourseFull(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db, zap.NewNop(), nil)
	course := seedCourse(t, db, 1)

	admitPayment(t, engine, course.ID, uuid.New(), "INV-001")
	_, err := engine.ApplySettlement(context.Background(), SettlementEvent{
		IdempotencyKey: "INV-001",
		Provider:       "doku",
		Outcome:        OutcomeSucceeded,
	})
	require.NoError(t, err)

	_, _, err = engine.Admit(context.Background(), AdmitParams{
		UserID:                uuid.New(),
		CourseID:              course.ID,
		ExternalTransactionID: "INV-002",
		Amount:                150000,
		Method:                "doku",
	})
	assert.ErrorIs(t, err, ErrCourseFull)
}

func TestRetryReusesEnrollmentRow(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db, zap.NewNop(), nil)
	course := seedCourse(t, db, 10)
	userID := uuid.New()

	first, firstEnrollment := admitPayment(t, engine, course.ID, userID, "INV-001")
	_, err := engine.ApplySettlement(context.Background(), SettlementEvent{
		IdempotencyKey: first.ExternalTransactionID,
		Provider:       "doku",
		Outcome:        OutcomeFailed,
	})
	require.NoError(t, err)

	retry, retryEnrollment := admitPayment(t, engine, course.ID, userID, "INV-002")
	assert.Equal(t, firstEnrollment.ID, retryEnrollment.ID)
	assert.Equal(t, retry.ID, retryEnrollment.PaymentID)
	assert.Equal(t, models.EnrollmentPending, retryEnrollment.Status)

	// A late failure signal for the abandoned first attempt must not
	// touch the enrollment now owned by the retry.
	result, err := engine.ApplySettlement(context.Background(), SettlementEvent{
		IdempotencyKey: first.ExternalTransactionID,
		Provider:       "sweeper",
		Outcome:        OutcomeFailed,
	})
	require.NoError(t, err)
	assert.True(t, result.AlreadyApplied)

	result, err = engine.ApplySettlement(context.Background(), SettlementEvent{
		IdempotencyKey: retry.ExternalTransactionID,
		Provider:       "doku",
		Outcome:        OutcomeSucceeded,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Enrollment)
	assert.Equal(t, firstEnrollment.ID, result.Enrollment.ID)
	assert.Equal(t, models.EnrollmentConfirmed, result.Enrollment.Status)

	var enrollments []models.Enrollment
	require.NoError(t, db.Where("user_id = ? AND course_id = ?", userID, course.ID).Find(&enrollments).Error)
	assert.Len(t, enrollments, 1)
	assert.Equal(t, 1, seatsTaken(t, db, course.ID))
}

func TestCapacityMatchesConfirmedEnrollments(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db, zap.NewNop(), nil)
	course := seedCourse(t, db, 10)

	outcomes := []Outcome{
		OutcomeSucceeded, OutcomeFailed, OutcomeSucceeded, OutcomeCanceled, OutcomeSucceeded,
	}
	for i, outcome := range outcomes {
		txn := fmt.Sprintf("INV-%03d", i)
		admitPayment(t, engine, course.ID, uuid.New(), txn)
		_, err := engine.ApplySettlement(context.Background(), SettlementEvent{
			IdempotencyKey: txn,
			Provider:       "xendit",
			Outcome:        outcome,
		})
		require.NoError(t, err)
	}

	var confirmed int64
	require.NoError(t, db.Model(&models.Enrollment{}).
		Where("course_id = ? AND status IN ?", course.ID,
			[]models.EnrollmentStatus{models.EnrollmentConfirmed, models.EnrollmentActive}).
		Count(&confirmed).Error)
	assert.Equal(t, int64(3), confirmed)
	assert.Equal(t, 3, seatsTaken(t, db, course.ID))
}

func TestConcurrentSettlementSingleDispatch(t *testing.T) {
	db := setupTestDB(t)
	dispatcher := &countingDispatcher{}
	engine := NewEngine(db, zap.NewNop(), dispatcher)
	course := seedCourse(t, db, 10)
	payment, _ := admitPayment(t, engine, course.ID, uuid.New(), "INV-001")

	event := SettlementEvent{
		IdempotencyKey: payment.ExternalTransactionID,
		Provider:       "xendit",
		Outcome:        OutcomeSucceeded,
	}

	const callers = 4
	var applied atomic.Int64
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := engine.ApplySettlement(context.Background(), event)
			if err != nil {
				errs <- err
				return
			}
			if !result.AlreadyApplied {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), applied.Load())
	assert.Equal(t, int64(1), dispatcher.confirmed.Load())
	assert.Equal(t, 1, seatsTaken(t, db, course.ID))
}

// Admission is a soft check: concurrent checkouts that both saw a free
// seat may both settle, leaving seats_taken above seats_max.
func TestOverAdmissionOnLastSeat(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db, zap.NewNop(), nil)
	course := seedCourse(t, db, 1)

	admitPayment(t, engine, course.ID, uuid.New(), "INV-001")
	admitPayment(t, engine, course.ID, uuid.New(), "INV-002")

	for _, txn := range []string{"INV-001", "INV-002"} {
		_, err := engine.ApplySettlement(context.Background(), SettlementEvent{
			IdempotencyKey: txn,
			Provider:       "doku",
			Outcome:        OutcomeSucceeded,
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, seatsTaken(t, db, course.ID))
}

func TestCancelEnrollmentReleasesSeat(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db, zap.NewNop(), nil)
	course := seedCourse(t, db, 10)
	payment, _ := admitPayment(t, engine, course.ID, uuid.New(), "INV-001")

	result, err := engine.ApplySettlement(context.Background(), SettlementEvent{
		IdempotencyKey: payment.ExternalTransactionID,
		Provider:       "doku",
		Outcome:        OutcomeSucceeded,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Enrollment)
	assert.Equal(t, 1, seatsTaken(t, db, course.ID))

	cancelled, err := engine.CancelEnrollment(context.Background(), result.Enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentCancelled, cancelled.Status)
	assert.Equal(t, 0, seatsTaken(t, db, course.ID))

	_, err = engine.CancelEnrollment(context.Background(), result.Enrollment.ID)
	assert.ErrorIs(t, err, ErrNotCancellable)
	assert.Equal(t, 0, seatsTaken(t, db, course.ID))
}

func TestRefund(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db, zap.NewNop(), nil)
	course := seedCourse(t, db, 10)
	payment, _ := admitPayment(t, engine, course.ID, uuid.New(), "INV-001")

	_, err := engine.Refund(context.Background(), payment.ID)
	assert.ErrorIs(t, err, ErrNotRefundable)

	_, err = engine.ApplySettlement(context.Background(), SettlementEvent{
		IdempotencyKey: payment.ExternalTransactionID,
		Provider:       "doku",
		Outcome:        OutcomeSucceeded,
	})
	require.NoError(t, err)

	refunded, err := engine.Refund(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, refunded.Status)

	_, err = engine.Refund(context.Background(), payment.ID)
	assert.ErrorIs(t, err, ErrNotRefundable)
}

func TestApplySettlementUnknownPayment(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db, zap.NewNop(), nil)

	_, err := engine.ApplySettlement(context.Background(), SettlementEvent{
		IdempotencyKey: "INV-does-not-exist",
		Provider:       "doku",
		Outcome:        OutcomeSucceeded,
	})
	assert.ErrorIs(t, err, ErrUnknownPayment)

	_, err = engine.ApplySettlement(context.Background(), SettlementEvent{
		Provider: "doku",
		Outcome:  OutcomeSucceeded,
	})
	assert.ErrorIs(t, err, ErrUnknownPayment)
}

func TestApplySettlementInvalidOutcome(t *testing.T) {
	db := setupTestDB(t)
	engine := NewEngine(db, zap.NewNop(), nil)

	_, err := engine.ApplySettlement(context.Background(), SettlementEvent{
		IdempotencyKey: "INV-001",
		Provider:       "doku",
		Outcome:        Outcome("exploded"),
	})
	assert.ErrorIs(t, err, ErrInvalidOutcome)
}
