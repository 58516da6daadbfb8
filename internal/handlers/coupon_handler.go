package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/ardiannugra/kelasin/internal/helpers"
	"github.com/ardiannugra/kelasin/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CouponRequest struct {
	Code      string    `json:"code" binding:"required"`
	Discount  int       `json:"discount" binding:"required,min=1,max=100"`
	Limit     int       `json:"limit" binding:"required,min=1"`
	ValidAt   time.Time `json:"valid_at" binding:"required"`
	ExpiredAt time.Time `json:"expired_at" binding:"required"`
}

type ClaimCouponRequest struct {
	Code string `json:"code" binding:"required"`
}

func CreateCoupon(c *gin.Context) {
	var req CouponRequest
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

	coupon := models.Coupon{
		ID:        uuid.New(),
		Code:      strings.ToUpper(req.Code),
		Discount:  req.Discount,
		Limit:     req.Limit,
		ValidAt:   req.ValidAt,
		ExpiredAt: req.ExpiredAt,
	}

	if err := gormDB.Create(&coupon).Error; err != nil {
		helpers.RespondWithError(c, http.StatusConflict, "Coupon code already exists.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "Coupon created successfully.",
		"coupon_id": coupon.ID,
	})
}

func ListCoupons(c *gin.Context) {
	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	now := time.Now()
	var coupons []models.Coupon
	if err := gormDB.Where("valid_at <= ? AND expired_at > ?", now, now).Find(&coupons).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve coupons.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"coupons": coupons})
}

func ClaimCoupon(c *gin.Context) {
	var req ClaimCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

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

	var coupon models.Coupon
	if err := gormDB.Where("code = ?", strings.ToUpper(req.Code)).First(&coupon).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Coupon not found.")
		return
	}

	now := time.Now()
	if now.Before(coupon.ValidAt) || now.After(coupon.ExpiredAt) {
		helpers.RespondWithError(c, http.StatusBadRequest, "Coupon is not valid at this time.")
		return
	}

	var claimed int64
	gormDB.Model(&models.UserCoupon{}).Where("coupon_id = ?", coupon.ID).Count(&claimed)
	if claimed >= int64(coupon.Limit) {
		helpers.RespondWithError(c, http.StatusConflict, "Coupon claim limit reached.")
		return
	}

	var existing models.UserCoupon
	if result := gormDB.Where("user_id = ? AND coupon_id = ?", userID, coupon.ID).First(&existing); result.Error == nil {
		helpers.RespondWithError(c, http.StatusConflict, "Coupon already claimed.")
		return
	}

	userCoupon := models.UserCoupon{
		UserID:   userID.(uuid.UUID),
		CouponID: coupon.ID,
	}
	if err := gormDB.Create(&userCoupon).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to claim coupon.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Coupon claimed successfully.",
		"discount": coupon.Discount,
	})
}
