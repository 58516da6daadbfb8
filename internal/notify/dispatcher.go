package notify

import (
	"fmt"

	"github.com/ardiannugra/kelasin/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EnrollmentListener consumes the EnrollmentConfirmed event. Certificate
// eligibility and analytics hang off this hook.
type EnrollmentListener func(userID, courseID, enrollmentID uuid.UUID)

// Dispatcher fires the once-per-settlement side effects: notifications
// for the student, the course supervisor and administrators, the
// confirmation email, and the EnrollmentConfirmed fan-out. It runs after
// the enrollment is durably committed, so every failure here is logged
// and swallowed — a lost email never rolls back a paid enrollment.
type Dispatcher struct {
	db        *gorm.DB
	log       *zap.Logger
	mailer    Mailer
	listeners []EnrollmentListener
}

func NewDispatcher(db *gorm.DB, log *zap.Logger, mailer Mailer, listeners ...EnrollmentListener) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{db: db, log: log.Named("notify"), mailer: mailer, listeners: listeners}
}

func (d *Dispatcher) EnrollmentConfirmed(payment *models.Payment, enrollment *models.Enrollment) {
	if payment == nil || enrollment == nil {
		return
	}

	var user models.User
	if err := d.db.Where("id = ?", payment.UserID).First(&user).Error; err != nil {
		d.log.Warn("enrollment confirmed but user lookup failed",
			zap.String("user_id", payment.UserID.String()), zap.Error(err))
		return
	}
	var course models.Course
	if err := d.db.Where("id = ?", payment.CourseID).First(&course).Error; err != nil {
		d.log.Warn("enrollment confirmed but course lookup failed",
			zap.String("course_id", payment.CourseID.String()), zap.Error(err))
		return
	}

	d.createNotification(user.ID, "Enrollment confirmed",
		fmt.Sprintf("Your payment for %s was received. See you in class!", course.Title))
	d.createNotification(course.SupervisorID, "New student enrolled",
		fmt.Sprintf("%s enrolled in %s.", user.Name, course.Title))
	d.notifyAdmins(fmt.Sprintf("Payment %s settled: %s enrolled in %s.",
		payment.ExternalTransactionID, user.Name, course.Title))

	if d.mailer != nil {
		subject := fmt.Sprintf("You're enrolled in %s", course.Title)
		body := fmt.Sprintf("Hi %s,\n\nYour payment of %d %s was received and your seat in %s is confirmed.\n",
			user.Name, payment.Amount, payment.Currency, course.Title)
		if err := d.mailer.Send(user.Email, subject, body); err != nil {
			d.log.Warn("confirmation email failed",
				zap.String("email", user.Email), zap.Error(err))
		}
	}

	for _, listener := range d.listeners {
		listener(user.ID, course.ID, enrollment.ID)
	}
}

func (d *Dispatcher) createNotification(userID uuid.UUID, title, message string) {
	notification := models.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
	}
	if err := d.db.Create(&notification).Error; err != nil {
		d.log.Warn("notification insert failed",
			zap.String("user_id", userID.String()), zap.Error(err))
	}
}

func (d *Dispatcher) notifyAdmins(message string) {
	var admins []models.User
	err := d.db.Joins("JOIN roles ON roles.id = users.role_id").
		Where("roles.name = ?", "admin").
		Find(&admins).Error
	if err != nil {
		d.log.Warn("admin lookup failed", zap.Error(err))
		return
	}
	for _, admin := range admins {
		d.createNotification(admin.ID, "Enrollment settled", message)
	}
}
