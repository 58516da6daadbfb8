package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EnrollmentStatus string

const (
	EnrollmentPending   EnrollmentStatus = "pending"
	EnrollmentConfirmed EnrollmentStatus = "confirmed"
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
)

// Enrollment is unique per (user, course). A cancelled enrollment keeps
// its row; a later payment attempt for the same course reuses it.
type Enrollment struct {
	gorm.Model
	ID        uuid.UUID        `gorm:"type:uuid;primary_key"`
	Status    EnrollmentStatus `gorm:"not null;default:'pending'"`
	UserID    uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_enrollments_user_course"`
	User      User             `gorm:"foreignKey:UserID"`
	CourseID  uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_enrollments_user_course"`
	Course    Course           `gorm:"foreignKey:CourseID"`
	PaymentID uuid.UUID        `gorm:"type:uuid;not null"`
	Payment   Payment          `gorm:"foreignKey:PaymentID"`
}

func (enrollment *Enrollment) BeforeCreate(tx *gorm.DB) (err error) {
	if enrollment.ID == uuid.Nil {
		enrollment.ID = uuid.New()
	}
	return
}
