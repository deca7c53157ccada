// Package service implements contract lifecycle management.
package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/thelesson/lessonbill/internal/clock"
	"github.com/thelesson/lessonbill/internal/contract/domain"
	invoicedomain "github.com/thelesson/lessonbill/internal/invoice/domain"
	notificationdomain "github.com/thelesson/lessonbill/internal/notification/domain"
	studentdomain "github.com/thelesson/lessonbill/internal/student/domain"
	"github.com/thelesson/lessonbill/internal/usercontext"
	"github.com/thelesson/lessonbill/pkg/db/option"
	"github.com/thelesson/lessonbill/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	Log       *zap.Logger
	DB        *gorm.DB
	Clock     clock.Clock
	Node      *snowflake.Node
	Contracts repository.Repository[domain.Contract]
	Students  repository.Repository[studentdomain.Student]
	Invoices  invoicedomain.Service
	Notifier  notificationdomain.Service
}

type service struct {
	log       *zap.Logger
	db        *gorm.DB
	clock     clock.Clock
	node      *snowflake.Node
	contracts repository.Repository[domain.Contract]
	students  repository.Repository[studentdomain.Student]
	invoices  invoicedomain.Service
	notifier  notificationdomain.Service
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		log:       p.Log.Named("contract.service"),
		db:        p.DB,
		clock:     p.Clock,
		node:      p.Node,
		contracts: p.Contracts,
		students:  p.Students,
		invoices:  p.Invoices,
		notifier:  p.Notifier,
	}
}

func validBillingType(t domain.BillingType) bool {
	return t == domain.BillingTypePrepaid || t == domain.BillingTypePostpaid
}

func validSchedule(s domain.PaymentSchedule) bool {
	return s == domain.PaymentScheduleMonthly || s == domain.PaymentScheduleLumpSum
}

func validAbsencePolicy(p domain.AbsencePolicy) bool {
	return p == domain.AbsencePolicyCarryOver || p == domain.AbsencePolicyDeductNext || p == domain.AbsencePolicyVanish
}

func (s *service) Create(ctx context.Context, req domain.CreateContractRequest) (*domain.Contract, error) {
	userID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrContractNotFound
	}

	if !validBillingType(req.BillingType) {
		return nil, domain.ErrInvalidBillingType
	}
	if !validSchedule(req.PaymentSchedule) {
		return nil, domain.ErrInvalidSchedule
	}
	if !validAbsencePolicy(req.AbsencePolicy) {
		return nil, domain.ErrInvalidAbsencePolicy
	}
	if req.BillingDay < 1 || req.BillingDay > 31 {
		return nil, domain.ErrInvalidBillingDay
	}
	if req.EndedAt == nil && req.TotalSessions <= 0 {
		// No end date means billing counts sessions, so a target is required.
		return nil, domain.ErrNotSessionContract
	}

	student, err := s.students.FindOne(ctx, &studentdomain.Student{ID: req.StudentID, UserID: userID})
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, domain.ErrContractNotFound
	}

	now := s.clock.Now().UTC()
	c := &domain.Contract{
		ID:              s.node.Generate(),
		UserID:          userID,
		StudentID:       req.StudentID,
		BillingType:     req.BillingType,
		PaymentSchedule: req.PaymentSchedule,
		AbsencePolicy:   req.AbsencePolicy,
		BillingDay:      req.BillingDay,
		MonthlyAmount:   req.MonthlyAmount,
		Status:          domain.ContractStatusDraft,
		StartedAt:       req.StartedAt.UTC(),
		EndedAt:         req.EndedAt,
		Policy: datatypes.NewJSONType(domain.PolicySnapshot{
			TotalSessions:    req.TotalSessions,
			PerSessionAmount: req.PerSessionAmount,
			Account:          req.Account,
		}),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.contracts.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Contract, error) {
	c, err := s.contracts.FindOne(ctx, &domain.Contract{ID: id})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrContractNotFound
	}
	if userID, ok := usercontext.UserIDFromContext(ctx); ok && c.UserID != userID {
		return nil, domain.ErrContractNotFound
	}
	return c, nil
}

func (s *service) List(ctx context.Context, req domain.ListContractRequest) ([]*domain.Contract, error) {
	userID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrContractNotFound
	}

	filter := &domain.Contract{UserID: userID, StudentID: req.StudentID, Status: req.Status}
	return s.contracts.Find(ctx, filter,
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}}),
	)
}

// UpdateStatus transitions the contract. The first move to "sent" opens
// billing: the opening invoice and the student notification fire exactly
// once, and their failure never rolls the status back.
func (s *service) UpdateStatus(ctx context.Context, id snowflake.ID, status domain.ContractStatus) (*domain.Contract, error) {
	switch status {
	case domain.ContractStatusDraft, domain.ContractStatusSent, domain.ContractStatusSigned, domain.ContractStatusTerminated:
	default:
		return nil, domain.ErrInvalidStatus
	}

	c, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == status {
		return c, nil
	}

	previous := c.Status
	now := s.clock.Now().UTC()
	err = s.db.WithContext(ctx).Exec(
		`UPDATE contracts SET status = ?, updated_at = ? WHERE id = ?`,
		status, now, c.ID,
	).Error
	if err != nil {
		return nil, err
	}
	c.Status = status
	c.UpdatedAt = now

	if status == domain.ContractStatusSent && previous != domain.ContractStatusSent {
		s.openBilling(ctx, c)
	}
	return c, nil
}

// openBilling creates the first invoice and notifies. Both are secondary
// effects; the repair scan backfills a missing invoice later.
func (s *service) openBilling(ctx context.Context, c *domain.Contract) {
	if _, err := s.invoices.CreateFirstInvoice(ctx, c); err != nil {
		s.log.Warn("opening invoice failed",
			zap.Int64("contract_id", int64(c.ID)),
			zap.Error(err),
		)
	}

	err := s.notifier.Notify(ctx, c.UserID, notificationdomain.Event{
		Type:  notificationdomain.EventContractSent,
		Title: "contract sent",
		Body:  "the contract was sent to the student",
		Metadata: map[string]any{
			"contract_id": c.ID.String(),
		},
	})
	if err != nil {
		s.log.Warn("contract notification failed",
			zap.Int64("contract_id", int64(c.ID)),
			zap.Error(err),
		)
	}
}

// Extend appends one extension to the policy history. Session extensions
// settle immediately when the running segment is already used up; short
// prepaid period extensions settle immediately too. Everything else waits
// for the lazy scan.
func (s *service) Extend(ctx context.Context, id snowflake.ID, req domain.ExtendContractRequest) (*domain.Contract, error) {
	c, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	policy := c.Policy.Data()

	var settleNow bool
	switch req.Type {
	case domain.ExtensionTypeSessions:
		if policy.TotalSessions <= 0 {
			return nil, domain.ErrNotSessionContract
		}
		if req.AddedSessions <= 0 {
			return nil, domain.ErrInvalidExtension
		}

		exhausted, err := s.invoices.SegmentExhausted(ctx, c, c.CurrentSegment())
		if err != nil {
			return nil, err
		}
		settleNow = exhausted

		policy.Extensions = append(policy.Extensions, domain.Extension{
			Type:            domain.ExtensionTypeSessions,
			AddedSessions:   req.AddedSessions,
			ExtensionAmount: req.ExtensionAmount,
			PreviousTotal:   policy.TotalSessions,
			NewTotal:        policy.TotalSessions + req.AddedSessions,
			ExtendedAt:      now,
		})
		policy.TotalSessions += req.AddedSessions

	case domain.ExtensionTypePeriod:
		if c.EndedAt == nil || req.NewEnd == nil {
			return nil, domain.ErrInvalidExtension
		}
		currentEnd := c.EndedAt.UTC()
		if !req.NewEnd.After(currentEnd) {
			return nil, domain.ErrExtensionNotBeyond
		}
		if currentEnd.Before(truncateDay(now)) {
			return nil, domain.ErrContractAlreadyEnded
		}

		prevEnd := currentEnd
		newEnd := req.NewEnd.UTC()
		policy.Extensions = append(policy.Extensions, domain.Extension{
			Type:        domain.ExtensionTypePeriod,
			PreviousEnd: &prevEnd,
			NewEnd:      &newEnd,
			ExtendedAt:  now,
		})
		c.EndedAt = &newEnd

		// A prepaid extension within one billing cycle bills up front.
		settleNow = c.BillingType == domain.BillingTypePrepaid &&
			newEnd.Sub(prevEnd) <= 31*24*time.Hour

	default:
		return nil, domain.ErrInvalidExtension
	}

	c.Policy = datatypes.NewJSONType(policy)
	c.UpdatedAt = now
	err = s.db.WithContext(ctx).Exec(
		`UPDATE contracts SET policy = ?, ended_at = ?, updated_at = ? WHERE id = ?`,
		c.Policy, c.EndedAt, now, c.ID,
	).Error
	if err != nil {
		return nil, err
	}

	if settleNow {
		// Idempotent on the period key; a failure here is healed by the scan.
		if _, err := s.invoices.CreateSegmentInvoice(ctx, c, 0); err != nil {
			s.log.Warn("extension invoice failed",
				zap.Int64("contract_id", int64(c.ID)),
				zap.Error(err),
			)
		}
	}
	return c, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
