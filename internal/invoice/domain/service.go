package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	contractdomain "github.com/thelesson/lessonbill/internal/contract/domain"
)

// SectionedInvoice pairs an invoice with enough contract context to render
// a dashboard row.
type SectionedInvoice struct {
	Invoice     Invoice                        `json:"invoice"`
	StudentName string                         `json:"student_name"`
	BillingType contractdomain.BillingType     `json:"billing_type"`
	Schedule    contractdomain.PaymentSchedule `json:"payment_schedule"`
}

// SentGroup is one (year, month) bucket of sent invoices, newest send first.
type SentGroup struct {
	Year     int                `json:"year"`
	Month    int                `json:"month"`
	Invoices []SectionedInvoice `json:"invoices"`
}

type SectionsResponse struct {
	ReadyToBill []SectionedInvoice `json:"ready_to_bill"`
	InProgress  []SectionedInvoice `json:"in_progress"`
	Sent        []SentGroup        `json:"sent"`
}

// HistoryGroup is one (year, month) bucket of the billing history.
type HistoryGroup struct {
	Year     int       `json:"year"`
	Month    int       `json:"month"`
	Invoices []Invoice `json:"invoices"`
}

type SendInvoicesRequest struct {
	InvoiceIDs []snowflake.ID `json:"invoice_ids"`
	Channels   []string       `json:"channels"`
}

type SendResult struct {
	InvoiceID snowflake.ID `json:"invoice_id"`
	Status    SendStatus   `json:"status"`
}

type Service interface {
	// Sections runs the repair scan for the tutor's contracts, then returns
	// every invoice classified into its dashboard bucket.
	Sections(ctx context.Context) (SectionsResponse, error)
	History(ctx context.Context, limitMonths int) ([]HistoryGroup, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Invoice, error)

	// CreateFirstInvoice opens billing for a freshly sent contract.
	CreateFirstInvoice(ctx context.Context, contract *contractdomain.Contract) (*Invoice, error)
	// CreateSegmentInvoice creates the invoice for the given 1-based segment,
	// find-or-create on the period key. segment <= 0 means the next segment
	// implied by the contract's current state.
	CreateSegmentInvoice(ctx context.Context, contract *contractdomain.Contract, segment int) (*Invoice, error)
	// SegmentExhausted reports whether the segment's planned sessions are all
	// consumed by unvoided attendance.
	SegmentExhausted(ctx context.Context, contract *contractdomain.Contract, segment int) (bool, error)

	Recalculate(ctx context.Context, id snowflake.ID) (*Invoice, error)
	// RecalculateForContractDate refreshes whichever invoice covers the given
	// session date. A no-op when no invoice covers it yet.
	RecalculateForContractDate(ctx context.Context, contractID snowflake.ID, occurredAt time.Time) error

	ApplyManualAdjustment(ctx context.Context, id snowflake.ID, amount int64, reason string) (*Invoice, error)
	MoveToTodayBilling(ctx context.Context, id snowflake.ID) (*Invoice, error)
	Send(ctx context.Context, req SendInvoicesRequest) ([]SendResult, error)
}

var (
	ErrInvoiceNotFound = errors.New("invoice_not_found")
	ErrAlreadySent     = errors.New("invoice_already_sent")
	ErrNoChannels      = errors.New("no_send_channels")
	ErrInvalidAmounts  = errors.New("invalid_invoice_amounts")
)
