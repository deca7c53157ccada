// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SendStatus represents delivery states. Transitions only move forward:
// not_sent -> partial -> sent.
type SendStatus string

const (
	SendStatusNotSent SendStatus = "not_sent"
	SendStatusPartial SendStatus = "partial"
	SendStatusSent    SendStatus = "sent"
)

// Section buckets an invoice in the billing dashboard.
type Section string

const (
	SectionReadyToBill Section = "ready_to_bill"
	SectionInProgress  Section = "in_progress"
	SectionSent        Section = "sent"

	// SectionHidden marks invoices ahead of their display window. They are
	// dropped from the listing, not rendered.
	SectionHidden Section = "hidden"
)

// SendRecord freezes what the student saw at send time. Later recalculation
// or period repair never rewrites past records.
type SendRecord struct {
	Channel      string     `json:"channel"`
	SentAt       time.Time  `json:"sent_at"`
	DisplayStart *time.Time `json:"display_start,omitempty"`
	DisplayEnd   *time.Time `json:"display_end,omitempty"`
	// Sessions is the displayed session count for session-counted packs.
	Sessions int   `json:"sessions,omitempty"`
	Amount   int64 `json:"amount"`
}

// AccountSnapshot carries the settlement account copied from the contract
// policy at invoice creation.
type AccountSnapshot struct {
	Bank   string `json:"bank,omitempty"`
	Number string `json:"number,omitempty"`
	Holder string `json:"holder,omitempty"`
}

// Invoice is one billing window of a contract. At most one row may exist per
// (student, contract, year, month); creation is always find-or-create on
// that key.
type Invoice struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID     snowflake.ID `gorm:"not null;index" json:"user_id"`
	StudentID  snowflake.ID `gorm:"not null;index;uniqueIndex:ux_invoice_period" json:"student_id"`
	ContractID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_invoice_period" json:"contract_id"`
	Year       int          `gorm:"not null;uniqueIndex:ux_invoice_period" json:"year"`
	Month      int          `gorm:"not null;uniqueIndex:ux_invoice_period" json:"month"`

	// SegmentIndex is the 1-based billing segment, fixed at creation from the
	// contract's extension history.
	SegmentIndex int `gorm:"not null;default:1" json:"segment_index"`

	BaseAmount       int64  `gorm:"not null;default:0" json:"base_amount"`
	AutoAdjustment   int64  `gorm:"not null;default:0" json:"auto_adjustment"`
	ManualAdjustment int64  `gorm:"not null;default:0" json:"manual_adjustment"`
	FinalAmount      int64  `gorm:"not null;default:0" json:"final_amount"`
	AdjustmentReason string `gorm:"type:text" json:"adjustment_reason,omitempty"`

	// PlannedSessions is the session target for session-counted segments.
	PlannedSessions *int `gorm:"" json:"planned_sessions,omitempty"`

	// Period bounds are nil for session-counted invoices.
	PeriodStart *time.Time `gorm:"" json:"period_start,omitempty"`
	PeriodEnd   *time.Time `gorm:"" json:"period_end,omitempty"`

	SendStatus          SendStatus                       `gorm:"type:text;not null;default:'not_sent'" json:"send_status"`
	SendHistory         datatypes.JSONType[[]SendRecord] `gorm:"type:jsonb" json:"send_history"`
	ForceToTodayBilling bool                             `gorm:"not null;default:false" json:"force_to_today_billing"`

	Account datatypes.JSONType[AccountSnapshot] `gorm:"type:jsonb" json:"account"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// LastSentAt returns the timestamp of the most recent send, if any.
func (inv *Invoice) LastSentAt() *time.Time {
	history := inv.SendHistory.Data()
	if len(history) == 0 {
		return nil
	}
	return &history[len(history)-1].SentAt
}
