// Package domain contains persistence models for tutoring contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// BillingType says whether invoicing precedes or follows the service window.
type BillingType string

const (
	BillingTypePrepaid  BillingType = "prepaid"
	BillingTypePostpaid BillingType = "postpaid"
)

// PaymentSchedule distinguishes monthly billing from a single whole-contract invoice.
type PaymentSchedule string

const (
	PaymentScheduleMonthly PaymentSchedule = "monthly"
	PaymentScheduleLumpSum PaymentSchedule = "lump_sum"
)

// AbsencePolicy controls how absent sessions affect billing.
type AbsencePolicy string

const (
	AbsencePolicyCarryOver  AbsencePolicy = "carry_over"
	AbsencePolicyDeductNext AbsencePolicy = "deduct_next"
	AbsencePolicyVanish     AbsencePolicy = "vanish"
)

// ContractStatus represents contract lifecycle states.
type ContractStatus string

const (
	ContractStatusDraft      ContractStatus = "draft"
	ContractStatusSent       ContractStatus = "sent"
	ContractStatusSigned     ContractStatus = "signed"
	ContractStatusTerminated ContractStatus = "terminated"
)

// Extension types. Extensions are append-only, ordered by ExtendedAt.
const (
	ExtensionTypeSessions = "sessions"
	ExtensionTypePeriod   = "period"
)

// Extension records a single contract extension. Exactly one of the two
// shapes is populated, discriminated by Type.
type Extension struct {
	Type string `json:"type"`

	// sessions extension
	AddedSessions   int   `json:"added_sessions,omitempty"`
	ExtensionAmount int64 `json:"extension_amount,omitempty"`
	PreviousTotal   int   `json:"previous_total,omitempty"`
	NewTotal        int   `json:"new_total,omitempty"`

	// period extension
	PreviousEnd *time.Time `json:"previous_end,omitempty"`
	NewEnd      *time.Time `json:"new_end,omitempty"`

	ExtendedAt time.Time `json:"extended_at"`
}

// AccountInfo is the settlement account shown on invoices.
type AccountInfo struct {
	Bank   string `json:"bank,omitempty"`
	Number string `json:"number,omitempty"`
	Holder string `json:"holder,omitempty"`
}

// PolicySnapshot freezes the billing terms agreed at signing time.
// TotalSessions > 0 marks a session-counted contract.
type PolicySnapshot struct {
	TotalSessions    int         `json:"total_sessions"`
	PerSessionAmount int64       `json:"per_session_amount"`
	Account          AccountInfo `json:"account"`
	Extensions       []Extension `json:"extensions,omitempty"`
}

// Contract is the billing agreement between a tutor and a student.
type Contract struct {
	ID              snowflake.ID                         `gorm:"primaryKey" json:"id"`
	UserID          snowflake.ID                         `gorm:"not null;index" json:"user_id"`
	StudentID       snowflake.ID                         `gorm:"not null;index" json:"student_id"`
	BillingType     BillingType                          `gorm:"type:text;not null" json:"billing_type"`
	PaymentSchedule PaymentSchedule                      `gorm:"type:text;not null" json:"payment_schedule"`
	AbsencePolicy   AbsencePolicy                        `gorm:"type:text;not null" json:"absence_policy"`
	BillingDay      int                                  `gorm:"not null" json:"billing_day"`
	MonthlyAmount   int64                                `gorm:"not null;default:0" json:"monthly_amount"`
	Status          ContractStatus                       `gorm:"type:text;not null;default:'draft'" json:"status"`
	StartedAt       time.Time                            `gorm:"not null" json:"started_at"`
	EndedAt         *time.Time                           `gorm:"" json:"ended_at,omitempty"`
	Policy          datatypes.JSONType[PolicySnapshot]   `gorm:"type:jsonb" json:"policy"`
	CreatedAt       time.Time                            `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time                            `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Contract) TableName() string { return "contracts" }

// IsSessionBased reports whether sessions are counted instead of calendar months.
// A contract without an end date bills by consumed sessions.
func (c *Contract) IsSessionBased() bool {
	return c.EndedAt == nil
}

// IsLumpSum reports whether the whole contract bills as one invoice.
func (c *Contract) IsLumpSum() bool {
	return c.PaymentSchedule == PaymentScheduleLumpSum
}

// Extensions returns the append-only extension history.
func (c *Contract) Extensions() []Extension {
	return c.Policy.Data().Extensions
}

// SessionsExtensions filters the history down to sessions-type entries.
func (c *Contract) SessionsExtensions() []Extension {
	var out []Extension
	for _, ext := range c.Extensions() {
		if ext.Type == ExtensionTypeSessions {
			out = append(out, ext)
		}
	}
	return out
}

// CurrentSegment is the 1-based billing segment implied by the extension history.
func (c *Contract) CurrentSegment() int {
	return len(c.Extensions()) + 1
}
