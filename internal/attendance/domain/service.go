package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type RecordAttendanceRequest struct {
	ContractID snowflake.ID     `json:"contract_id"`
	Status     AttendanceStatus `json:"status"`
	OccurredAt time.Time        `json:"occurred_at"`
	Note       string           `json:"note,omitempty"`
}

type Service interface {
	Record(ctx context.Context, req RecordAttendanceRequest) (*AttendanceLog, error)
	// Void keeps the row but removes it from billing, then recomputes the
	// affected invoice.
	Void(ctx context.Context, id snowflake.ID) (*AttendanceLog, error)
	// Reschedule voids the original log and records a substitute session on
	// the target date.
	Reschedule(ctx context.Context, id snowflake.ID, newDate time.Time) (*AttendanceLog, error)
	List(ctx context.Context, contractID snowflake.ID) ([]*AttendanceLog, error)
}

var (
	ErrLogNotFound     = errors.New("attendance_log_not_found")
	ErrInvalidStatus   = errors.New("invalid_attendance_status")
	ErrOutsideContract = errors.New("date_outside_contract_range")
	ErrDuplicateDate   = errors.New("duplicate_attendance_date")
	ErrAlreadyVoided   = errors.New("attendance_log_already_voided")
)
