package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CourseStatus string

const (
	CourseDraft     CourseStatus = "draft"
	CoursePublished CourseStatus = "published"
	CourseArchived  CourseStatus = "archived"
)

type Course struct {
	gorm.Model
	ID           uuid.UUID    `gorm:"type:uuid;primary_key"`
	Title        string       `gorm:"not null"`
	Description  string       `gorm:"not null"`
	Status       CourseStatus `gorm:"not null;default:'draft'"`
	StartDate    time.Time    `gorm:"not null"`
	EndDate      time.Time    `gorm:"not null"`
	Price        int64        `gorm:"not null"`
	SeatsMax     int          `gorm:"not null"`
	SeatsTaken   int          `gorm:"not null;default:0"`
	Thumbnail    *string
	SupervisorID uuid.UUID
	Supervisor   User         `gorm:"foreignKey:SupervisorID"`
	Categories   []Category   `gorm:"many2many:course_categories;"`
	Enrollments  []Enrollment `gorm:"foreignKey:CourseID"`
}

func (course *Course) BeforeCreate(tx *gorm.DB) (err error) {
	if course.ID == uuid.Nil {
		course.ID = uuid.New()
	}
	return
}
