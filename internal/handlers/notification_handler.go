package handlers

import (
	"net/http"

	"github.com/ardiannugra/kelasin/internal/helpers"
	"github.com/ardiannugra/kelasin/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func ListMyNotifications(c *gin.Context) {
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

	var notifications []models.Notification
	query := gormDB.Where("user_id = ?", userID).Order("created_at DESC")
	if c.Query("unread") == "true" {
		query = query.Where("read = ?", false)
	}
	if err := query.Find(&notifications).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve notifications.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func MarkNotificationRead(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	notificationID, err := uuid.Parse(c.Param("notificationId"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid notification ID.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	res := gormDB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read", true)
	if res.Error != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to update notification.")
		return
	}
	if res.RowsAffected == 0 {
		helpers.RespondWithError(c, http.StatusNotFound, "Notification not found.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read."})
}
