package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentPending        PaymentStatus = "pending"
	PaymentProcessing     PaymentStatus = "processing"
	PaymentRequiresAction PaymentStatus = "requires_action"
	PaymentCompleted      PaymentStatus = "completed"
	PaymentFailed         PaymentStatus = "failed"
	PaymentCanceled       PaymentStatus = "canceled"
	PaymentRefunded       PaymentStatus = "refunded"
)

type Payment struct {
	ID uuid.UUID `gorm:"type:uuid;primary_key"`
	// ExternalTransactionID is supplied at checkout and is the idempotency
	// key for client-side confirmation flows.
	ExternalTransactionID string `gorm:"not null;uniqueIndex"`
	// GatewayReferenceID is assigned by the provider, set once when the
	// gateway is first observed; gateway-originated signals look the
	// payment up by this key.
	GatewayReferenceID *string       `gorm:"index"`
	Amount             int64         `gorm:"not null"`
	Currency           string        `gorm:"not null;default:'IDR'"`
	Method             string        `gorm:"not null"`
	Status             PaymentStatus `gorm:"not null;default:'pending'"`
	SettledAt          *time.Time
	UserID             uuid.UUID `gorm:"type:uuid;not null;index"`
	User               *User     `gorm:"foreignKey:UserID"`
	CourseID           uuid.UUID `gorm:"type:uuid;not null;index"`
	Course             *Course   `gorm:"foreignKey:CourseID"`
	CouponID           *uuid.UUID
	Coupon             *Coupon     `gorm:"foreignKey:CouponID"`
	Enrollment         *Enrollment `gorm:"foreignKey:PaymentID"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          gorm.DeletedAt `gorm:"index"`
}

func (payment *Payment) BeforeCreate(tx *gorm.DB) (err error) {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	return
}
