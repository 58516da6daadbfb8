package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/ardiannugra/kelasin/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxSettleAttempts bounds the reload-retry loop when a settlement loses
// the per-payment compare-and-swap. Two competing signals converge after
// one reload, so the bound is never hit in practice.
const maxSettleAttempts = 5

// SideEffectDispatcher receives the one first-settlement signal per
// payment. Implementations must swallow their own failures: the
// enrollment is already committed and must not be rolled back because a
// notification could not be delivered.
type SideEffectDispatcher interface {
	EnrollmentConfirmed(payment *models.Payment, enrollment *models.Enrollment)
}

// Engine owns Payment and Enrollment status and the course seat counter.
// Every entry point — checkout, client confirm, status poll, webhook,
// provider callback, generic verify, the expiry sweeper — funnels its
// signal through ApplySettlement; nothing else may mutate these records.
type Engine struct {
	db         *gorm.DB
	log        *zap.Logger
	dispatcher SideEffectDispatcher
}

func NewEngine(db *gorm.DB, log *zap.Logger, dispatcher SideEffectDispatcher) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{db: db, log: log.Named("reconcile"), dispatcher: dispatcher}
}

type AdmitParams struct {
	UserID                uuid.UUID
	CourseID              uuid.UUID
	ExternalTransactionID string
	Amount                int64
	Currency              string
	Method                string
	CouponID              *uuid.UUID
}

// Admit creates the pending Payment+Enrollment pair for a prospective
// enrollment. The capacity check is optimistic: two concurrent
// admissions can both pass it before either settles, and the course is
// then over-admitted. That is an accepted trade-off — "full" is a soft
// limit at booking time; seats are only counted at confirmation, so
// abandoned attempts never skew the counter.
func (e *Engine) Admit(ctx context.Context, p AdmitParams) (*models.Payment, *models.Enrollment, error) {
	if p.ExternalTransactionID == "" {
		return nil, nil, ErrMissingTransactionID
	}
	if p.Currency == "" {
		p.Currency = "IDR"
	}

	var payment models.Payment
	var enrollment models.Enrollment
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var course models.Course
		if err := tx.Where("id = ?", p.CourseID).First(&course).Error; err != nil {
			return err
		}
		if course.SeatsTaken >= course.SeatsMax {
			return ErrCourseFull
		}

		var existing models.Payment
		err := tx.Where("external_transaction_id = ?", p.ExternalTransactionID).First(&existing).Error
		if err == nil {
			return ErrDuplicateTransaction
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var prior models.Enrollment
		err = tx.Where("user_id = ? AND course_id = ?", p.UserID, p.CourseID).First(&prior).Error
		hasPrior := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if hasPrior {
			switch prior.Status {
			case models.EnrollmentConfirmed, models.EnrollmentActive, models.EnrollmentCompleted:
				return ErrAlreadyEnrolled
			}
		}

		payment = models.Payment{
			ID:                    uuid.New(),
			ExternalTransactionID: p.ExternalTransactionID,
			Amount:                p.Amount,
			Currency:              p.Currency,
			Method:                p.Method,
			Status:                models.PaymentPending,
			UserID:                p.UserID,
			CourseID:              p.CourseID,
			CouponID:              p.CouponID,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}

		if hasPrior {
			// The (user, course) slot is unique forever; a new attempt
			// reuses the old row instead of inserting a second one.
			updates := map[string]interface{}{
				"status":     models.EnrollmentPending,
				"payment_id": payment.ID,
			}
			if err := tx.Model(&models.Enrollment{}).Where("id = ?", prior.ID).Updates(updates).Error; err != nil {
				return err
			}
			prior.Status = models.EnrollmentPending
			prior.PaymentID = payment.ID
			enrollment = prior
			return nil
		}

		enrollment = models.Enrollment{
			ID:        uuid.New(),
			Status:    models.EnrollmentPending,
			UserID:    p.UserID,
			CourseID:  p.CourseID,
			PaymentID: payment.ID,
		}
		return tx.Create(&enrollment).Error
	})
	if err != nil {
		return nil, nil, err
	}

	e.log.Info("payment admitted",
		zap.String("payment_id", payment.ID.String()),
		zap.String("transaction_id", payment.ExternalTransactionID),
		zap.String("course_id", p.CourseID.String()))
	return &payment, &enrollment, nil
}

// MarkProcessing records that a checkout session was handed to the
// gateway. Losing the race to a faster settlement signal is fine.
func (e *Engine) MarkProcessing(ctx context.Context, paymentID uuid.UUID) error {
	return e.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, models.PaymentPending).
		Update("status", models.PaymentProcessing).Error
}

// ApplySettlement applies one normalized settlement signal. It is safe
// to call any number of times with the same event, concurrently, from
// any entry point: the first application wins the per-payment
// compare-and-swap and every other one resolves to AlreadyApplied.
func (e *Engine) ApplySettlement(ctx context.Context, event SettlementEvent) (*Result, error) {
	target, ok := event.Outcome.paymentStatus()
	if !ok {
		return nil, ErrInvalidOutcome
	}

	payment, err := e.findPayment(ctx, event)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxSettleAttempts; attempt++ {
		if !canAdvance(payment.Status, target) {
			if IsTerminal(payment.Status) && target != payment.Status {
				e.log.Warn("conflicting signal for settled payment",
					zap.String("payment_id", payment.ID.String()),
					zap.String("current", string(payment.Status)),
					zap.String("target", string(target)),
					zap.String("provider", event.Provider))
			}
			return &Result{AlreadyApplied: true, Payment: payment}, nil
		}

		var enrollment *models.Enrollment
		var settledAt *time.Time
		err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			updates := map[string]interface{}{"status": target}
			if target == models.PaymentCompleted && payment.SettledAt == nil {
				now := time.Now().UTC()
				settledAt = &now
				updates["settled_at"] = settledAt
			}
			if event.GatewayReferenceID != "" && payment.GatewayReferenceID == nil {
				updates["gateway_reference_id"] = event.GatewayReferenceID
			}

			res := tx.Model(&models.Payment{}).
				Where("id = ? AND status = ?", payment.ID, payment.Status).
				Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errStatusMoved
			}

			var err error
			switch target {
			case models.PaymentCompleted:
				enrollment, err = e.confirmEnrollment(tx, payment)
			case models.PaymentFailed, models.PaymentCanceled:
				enrollment, err = e.abandonEnrollment(tx, payment)
			}
			return err
		})
		if errors.Is(err, errStatusMoved) {
			reloaded, rerr := e.loadPayment(ctx, payment.ID)
			if rerr != nil {
				return nil, rerr
			}
			payment = reloaded
			continue
		}
		if err != nil {
			return nil, err
		}

		payment.Status = target
		if settledAt != nil {
			payment.SettledAt = settledAt
		}
		if event.GatewayReferenceID != "" && payment.GatewayReferenceID == nil {
			ref := event.GatewayReferenceID
			payment.GatewayReferenceID = &ref
		}

		e.log.Info("settlement applied",
			zap.String("payment_id", payment.ID.String()),
			zap.String("status", string(target)),
			zap.String("provider", event.Provider))

		if target == models.PaymentCompleted && e.dispatcher != nil {
			e.dispatcher.EnrollmentConfirmed(payment, enrollment)
		}
		return &Result{Payment: payment, Enrollment: enrollment}, nil
	}

	return nil, errStatusMoved
}

// CancelEnrollment withdraws a confirmed or active enrollment before the
// course starts and releases its seat. Seats move only here and in
// confirmEnrollment; no other path touches the counter.
func (e *Engine) CancelEnrollment(ctx context.Context, enrollmentID uuid.UUID) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", enrollmentID).First(&enrollment).Error; err != nil {
			return err
		}
		res := tx.Model(&models.Enrollment{}).
			Where("id = ? AND status IN ?", enrollmentID,
				[]models.EnrollmentStatus{models.EnrollmentConfirmed, models.EnrollmentActive}).
			Update("status", models.EnrollmentCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotCancellable
		}
		enrollment.Status = models.EnrollmentCancelled
		return tx.Model(&models.Course{}).
			Where("id = ?", enrollment.CourseID).
			UpdateColumn("seats_taken", gorm.Expr("seats_taken - ?", 1)).Error
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("enrollment cancelled", zap.String("enrollment_id", enrollmentID.String()))
	return &enrollment, nil
}

// Refund moves a completed payment to refunded. The seat, if any, is
// released separately through CancelEnrollment.
func (e *Engine) Refund(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	res := e.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, models.PaymentCompleted).
		Update("status", models.PaymentRefunded)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotRefundable
	}
	return e.loadPayment(ctx, paymentID)
}

func (e *Engine) findPayment(ctx context.Context, event SettlementEvent) (*models.Payment, error) {
	if event.IdempotencyKey == "" {
		return nil, ErrUnknownPayment
	}
	var payment models.Payment
	err := e.db.WithContext(ctx).
		Where("external_transaction_id = ?", event.IdempotencyKey).
		First(&payment).Error
	if err == nil {
		return &payment, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	err = e.db.WithContext(ctx).
		Where("gateway_reference_id = ?", event.IdempotencyKey).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownPayment
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (e *Engine) loadPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := e.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// confirmEnrollment promotes the (user, course) enrollment on first
// successful settlement. Only a pending row takes the seat; a row
// already confirmed or later is left untouched so replayed success
// signals cannot double-count, and a cancelled row stays cancelled —
// re-entry goes through Admit.
func (e *Engine) confirmEnrollment(tx *gorm.DB, payment *models.Payment) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := tx.Where("user_id = ? AND course_id = ?", payment.UserID, payment.CourseID).
		First(&enrollment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		enrollment = models.Enrollment{
			ID:        uuid.New(),
			Status:    models.EnrollmentConfirmed,
			UserID:    payment.UserID,
			CourseID:  payment.CourseID,
			PaymentID: payment.ID,
		}
		if err := tx.Create(&enrollment).Error; err != nil {
			return nil, err
		}
		return &enrollment, e.takeSeat(tx, payment.CourseID)
	}
	if err != nil {
		return nil, err
	}

	if enrollment.Status != models.EnrollmentPending {
		return &enrollment, nil
	}
	updates := map[string]interface{}{
		"status":     models.EnrollmentConfirmed,
		"payment_id": payment.ID,
	}
	if err := tx.Model(&models.Enrollment{}).Where("id = ?", enrollment.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	enrollment.Status = models.EnrollmentConfirmed
	enrollment.PaymentID = payment.ID
	return &enrollment, e.takeSeat(tx, payment.CourseID)
}

// abandonEnrollment cancels the pending enrollment owned by a failed or
// canceled payment. Capacity is untouched: a non-confirmed enrollment
// never held a seat. A pending row owned by a newer payment attempt is
// left alone.
func (e *Engine) abandonEnrollment(tx *gorm.DB, payment *models.Payment) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := tx.Where("user_id = ? AND course_id = ? AND payment_id = ?",
		payment.UserID, payment.CourseID, payment.ID).
		First(&enrollment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentPending {
		return &enrollment, nil
	}
	if err := tx.Model(&models.Enrollment{}).Where("id = ?", enrollment.ID).
		Update("status", models.EnrollmentCancelled).Error; err != nil {
		return nil, err
	}
	enrollment.Status = models.EnrollmentCancelled
	return &enrollment, nil
}

func (e *Engine) takeSeat(tx *gorm.DB, courseID uuid.UUID) error {
	return tx.Model(&models.Course{}).
		Where("id = ?", courseID).
		UpdateColumn("seats_taken", gorm.Expr("seats_taken + ?", 1)).Error
}
