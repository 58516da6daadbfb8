package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ardiannugra/kelasin/internal/helpers"
	"github.com/ardiannugra/kelasin/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func CreateCourse(c *gin.Context) {
	title := c.PostForm("title")
	description := c.PostForm("description")

	startDateStr := c.PostForm("start_date")
	endDateStr := c.PostForm("end_date")
	startDate, err := time.Parse(time.RFC3339, startDateStr)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid start date format.")
		return
	}
	endDate, err := time.Parse(time.RFC3339, endDateStr)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid end date format.")
		return
	}

	price, err := helpers.StringToInt(c.PostForm("price"))
	if err != nil || price < 0 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid price.")
		return
	}
	seatsMax, err := helpers.StringToInt(c.PostForm("seats_max"))
	if err != nil || seatsMax < 1 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid seat limit.")
		return
	}

	var categories []string
	for i := 0; ; i++ {
		category := c.PostForm(fmt.Sprintf("categories[%d]", i))
		if category == "" {
			break
		}
		categories = append(categories, category)
	}

	if title == "" || description == "" || len(categories) == 0 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Missing required fields.")
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

	course := models.Course{
		ID:           uuid.New(),
		Title:        title,
		Description:  description,
		Status:       models.CoursePublished,
		StartDate:    startDate,
		EndDate:      endDate,
		Price:        int64(price),
		SeatsMax:     seatsMax,
		SupervisorID: userID.(uuid.UUID),
	}

	thumbnailFile, err := c.FormFile("thumbnail")
	if err == nil {
		thumbnailPath, err := helpers.UploadFile(c, thumbnailFile, "course_thumbnails")
		if err != nil {
			helpers.RespondWithError(c, http.StatusBadRequest, err.Error())
			return
		}
		course.Thumbnail = &thumbnailPath
	}

	for _, categoryName := range categories {
		var category models.Category
		if err := gormDB.Where("name = ?", categoryName).First(&category).Error; err != nil {
			category = models.Category{ID: uuid.New(), Name: categoryName}
			if err := gormDB.Create(&category).Error; err != nil {
				helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create category.")
				return
			}
		}
		course.Categories = append(course.Categories, category)
	}

	if err := gormDB.Create(&course).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create course.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "Course created successfully.",
		"course_id": course.ID,
	})
}

func GetCourse(c *gin.Context) {
	courseID := c.Param("id")

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var course models.Course
	if err := gormDB.Preload("Categories").Preload("Supervisor").Where("id = ?", courseID).First(&course).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Course not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving course.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"course":          course,
		"seats_remaining": course.SeatsMax - course.SeatsTaken,
	})
}

func ListCourses(c *gin.Context) {
	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	page := c.DefaultQuery("page", "1")
	limit := c.DefaultQuery("limit", "10")
	pageNum, err := helpers.StringToInt(page)
	if err != nil || pageNum < 1 {
		pageNum = 1
	}
	limitNum, err := helpers.StringToInt(limit)
	if err != nil || limitNum < 1 || limitNum > 100 {
		limitNum = 10
	}
	offset := (pageNum - 1) * limitNum

	query := gormDB.Model(&models.Course{}).Where("status = ?", models.CoursePublished)

	if search := c.Query("search"); search != "" {
		query = query.Where("title ILIKE ?", "%"+search+"%")
	}
	if category := c.Query("category"); category != "" {
		query = query.Joins("JOIN course_categories ON course_categories.course_id = courses.id").
			Joins("JOIN categories ON categories.id = course_categories.category_id").
			Where("categories.name = ?", category)
	}

	var courses []models.Course
	err = query.Preload("Categories").Preload("Supervisor").
		Offset(offset).Limit(limitNum).Order("start_date ASC").Find(&courses).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve courses.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"courses": courses,
		"page":    pageNum,
		"limit":   limitNum,
	})
}

func UpdateCourse(c *gin.Context) {
	courseID := c.Param("id")

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

	var course models.Course
	if err := gormDB.Where("id = ? AND supervisor_id = ?", courseID, userID).First(&course).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusForbidden, "Course not found or you don't have permission to modify it.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error verifying course ownership.")
		return
	}

	updates := map[string]interface{}{}
	if title := c.PostForm("title"); title != "" {
		updates["title"] = title
	}
	if description := c.PostForm("description"); description != "" {
		updates["description"] = description
	}
	if startDateStr := c.PostForm("start_date"); startDateStr != "" {
		startDate, err := time.Parse(time.RFC3339, startDateStr)
		if err != nil {
			helpers.RespondWithError(c, http.StatusBadRequest, "Invalid start date format.")
			return
		}
		updates["start_date"] = startDate
	}
	if endDateStr := c.PostForm("end_date"); endDateStr != "" {
		endDate, err := time.Parse(time.RFC3339, endDateStr)
		if err != nil {
			helpers.RespondWithError(c, http.StatusBadRequest, "Invalid end date format.")
			return
		}
		updates["end_date"] = endDate
	}
	if priceStr := c.PostForm("price"); priceStr != "" {
		price, err := helpers.StringToInt(priceStr)
		if err != nil || price < 0 {
			helpers.RespondWithError(c, http.StatusBadRequest, "Invalid price.")
			return
		}
		updates["price"] = int64(price)
	}
	if seatsStr := c.PostForm("seats_max"); seatsStr != "" {
		seatsMax, err := helpers.StringToInt(seatsStr)
		if err != nil || seatsMax < 1 {
			helpers.RespondWithError(c, http.StatusBadRequest, "Invalid seat limit.")
			return
		}
		updates["seats_max"] = seatsMax
	}
	if status := c.PostForm("status"); status != "" {
		updates["status"] = status
	}

	thumbnailFile, err := c.FormFile("thumbnail")
	if err == nil {
		thumbnailPath, err := helpers.UploadFile(c, thumbnailFile, "course_thumbnails")
		if err != nil {
			helpers.RespondWithError(c, http.StatusBadRequest, err.Error())
			return
		}
		if course.Thumbnail != nil {
			helpers.DeleteFile(*course.Thumbnail)
		}
		updates["thumbnail"] = thumbnailPath
	}

	if len(updates) == 0 {
		helpers.RespondWithError(c, http.StatusBadRequest, "Nothing to update.")
		return
	}

	if err := gormDB.Model(&course).Updates(updates).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to update course.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Course updated successfully."})
}

func DeleteCourse(c *gin.Context) {
	courseID := c.Param("id")

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

	var course models.Course
	if err := gormDB.Where("id = ? AND supervisor_id = ?", courseID, userID).First(&course).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusForbidden, "Course not found or you don't have permission to delete it.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error verifying course ownership.")
		return
	}

	var enrolled int64
	gormDB.Model(&models.Enrollment{}).
		Where("course_id = ? AND status IN ?", course.ID,
			[]models.EnrollmentStatus{models.EnrollmentConfirmed, models.EnrollmentActive}).
		Count(&enrolled)
	if enrolled > 0 {
		helpers.RespondWithError(c, http.StatusConflict, "Course has active enrollments and cannot be deleted.")
		return
	}

	if err := gormDB.Delete(&course).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to delete course.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Course deleted successfully."})
}
