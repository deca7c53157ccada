// Package domain contains persistence models for students.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Student is a tutee owned by a tutor account.
type Student struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID `gorm:"not null;index" json:"user_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Phone     string       `gorm:"type:text" json:"phone"`
	IsActive  bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Student) TableName() string { return "students" }
