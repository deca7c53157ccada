package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateContractRequest struct {
	StudentID        snowflake.ID    `json:"student_id"`
	BillingType      BillingType     `json:"billing_type"`
	PaymentSchedule  PaymentSchedule `json:"payment_schedule"`
	AbsencePolicy    AbsencePolicy   `json:"absence_policy"`
	BillingDay       int             `json:"billing_day"`
	MonthlyAmount    int64           `json:"monthly_amount"`
	PerSessionAmount int64           `json:"per_session_amount"`
	TotalSessions    int             `json:"total_sessions"`
	Account          AccountInfo     `json:"account"`
	StartedAt        time.Time       `json:"started_at"`
	EndedAt          *time.Time      `json:"ended_at,omitempty"`
}

type ExtendContractRequest struct {
	Type string `json:"type"`

	// sessions extension
	AddedSessions   int   `json:"added_sessions,omitempty"`
	ExtensionAmount int64 `json:"extension_amount,omitempty"`

	// period extension
	NewEnd *time.Time `json:"new_end,omitempty"`
}

type ListContractRequest struct {
	StudentID snowflake.ID
	Status    ContractStatus
}

type Service interface {
	Create(ctx context.Context, req CreateContractRequest) (*Contract, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Contract, error)
	List(ctx context.Context, req ListContractRequest) ([]*Contract, error)
	// UpdateStatus transitions the contract; the first move to "sent"
	// creates the opening invoice and notifies the student.
	UpdateStatus(ctx context.Context, id snowflake.ID, status ContractStatus) (*Contract, error)
	// Extend appends an extension and, when the prior segment is already
	// settled, creates the follow-up invoice in the same transaction.
	Extend(ctx context.Context, id snowflake.ID, req ExtendContractRequest) (*Contract, error)
}

var (
	ErrContractNotFound     = errors.New("contract_not_found")
	ErrInvalidBillingDay    = errors.New("invalid_billing_day")
	ErrInvalidBillingType   = errors.New("invalid_billing_type")
	ErrInvalidSchedule      = errors.New("invalid_payment_schedule")
	ErrInvalidAbsencePolicy = errors.New("invalid_absence_policy")
	ErrInvalidStatus        = errors.New("invalid_contract_status")
	ErrNotSessionContract   = errors.New("not_session_contract")
	ErrInvalidExtension     = errors.New("invalid_extension")
	ErrExtensionNotBeyond   = errors.New("extension_end_not_beyond_current")
	ErrContractAlreadyEnded = errors.New("contract_already_ended")
)
