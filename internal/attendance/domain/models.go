// Package domain contains persistence models for attendance tracking.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// AttendanceStatus classifies a session outcome. Only "absent" can reduce
// billing; "vanish" consumes the session with no deduction.
type AttendanceStatus string

const (
	StatusPresent    AttendanceStatus = "present"
	StatusAbsent     AttendanceStatus = "absent"
	StatusSubstitute AttendanceStatus = "substitute"
	StatusVanish     AttendanceStatus = "vanish"
)

// Valid reports whether the status is one of the known outcomes.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusSubstitute, StatusVanish:
		return true
	}
	return false
}

// AttendanceLog is one session record. Voided rows stay in place for audit
// and are excluded from every billing computation.
type AttendanceLog struct {
	ID         snowflake.ID     `gorm:"primaryKey" json:"id"`
	UserID     snowflake.ID     `gorm:"not null;index" json:"user_id"`
	ContractID snowflake.ID     `gorm:"not null;index" json:"contract_id"`
	StudentID  snowflake.ID     `gorm:"not null;index" json:"student_id"`
	Status     AttendanceStatus `gorm:"type:text;not null" json:"status"`
	OccurredAt time.Time        `gorm:"not null;index" json:"occurred_at"`
	Voided     bool             `gorm:"not null;default:false" json:"voided"`
	VoidedAt   *time.Time       `gorm:"" json:"voided_at,omitempty"`
	Note       string           `gorm:"type:text" json:"note,omitempty"`
	CreatedAt  time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (AttendanceLog) TableName() string { return "attendance_logs" }
