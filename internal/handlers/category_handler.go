package handlers

import (
	"net/http"

	"github.com/ardiannugra/kelasin/internal/helpers"
	"github.com/ardiannugra/kelasin/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CategoryRequest struct {
	Name string `json:"name" binding:"required"`
}

func CreateCategory(c *gin.Context) {
	var req CategoryRequest
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

	var existing models.Category
	if result := gormDB.Where("name = ?", req.Name).First(&existing); result.Error == nil {
		helpers.RespondWithError(c, http.StatusConflict, "Category already exists.")
		return
	}

	category := models.Category{
		ID:   uuid.New(),
		Name: req.Name,
	}
	if err := gormDB.Create(&category).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create category.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":     "Category created successfully.",
		"category_id": category.ID,
	})
}

func ListCategories(c *gin.Context) {
	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var categories []models.Category
	if err := gormDB.Order("name ASC").Find(&categories).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve categories.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func DeleteCategory(c *gin.Context) {
	categoryID := c.Param("id")

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var category models.Category
	if err := gormDB.Where("id = ?", categoryID).First(&category).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Category not found.")
		return
	}

	if err := gormDB.Delete(&category).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to delete category.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Category deleted successfully."})
}
