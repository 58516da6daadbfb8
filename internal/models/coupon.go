package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Coupon struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	Code      string    `gorm:"not null;unique"`
	Discount  int       `gorm:"not null"`
	Limit     int       `gorm:"not null"`
	ValidAt   time.Time `gorm:"not null"`
	ExpiredAt time.Time `gorm:"not null"`
	Users     []User    `gorm:"many2many:user_coupons;"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (coupon *Coupon) BeforeCreate(tx *gorm.DB) (err error) {
	if coupon.ID == uuid.Nil {
		coupon.ID = uuid.New()
	}
	return
}

type UserCoupon struct {
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"`
	CouponID  uuid.UUID `gorm:"type:uuid;not null;index"`
	IsUsed    bool      `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UserCoupon) TableName() string {
	return "user_coupons"
}
