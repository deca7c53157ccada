// Package service implements attendance recording and its billing triggers.
package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/thelesson/lessonbill/internal/attendance/domain"
	"github.com/thelesson/lessonbill/internal/clock"
	contractdomain "github.com/thelesson/lessonbill/internal/contract/domain"
	invoicedomain "github.com/thelesson/lessonbill/internal/invoice/domain"
	"github.com/thelesson/lessonbill/internal/usercontext"
	"github.com/thelesson/lessonbill/pkg/db/option"
	"github.com/thelesson/lessonbill/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	Log       *zap.Logger
	DB        *gorm.DB
	Clock     clock.Clock
	Node      *snowflake.Node
	Logs      repository.Repository[domain.AttendanceLog]
	Contracts repository.Repository[contractdomain.Contract]
	Invoices  invoicedomain.Service
}

type service struct {
	log       *zap.Logger
	db        *gorm.DB
	clock     clock.Clock
	node      *snowflake.Node
	logs      repository.Repository[domain.AttendanceLog]
	contracts repository.Repository[contractdomain.Contract]
	invoices  invoicedomain.Service
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		log:       p.Log.Named("attendance.service"),
		db:        p.DB,
		clock:     p.Clock,
		node:      p.Node,
		logs:      p.Logs,
		contracts: p.Contracts,
		invoices:  p.Invoices,
	}
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *service) ownedContract(ctx context.Context, id snowflake.ID) (*contractdomain.Contract, error) {
	c, err := s.contracts.FindOne(ctx, &contractdomain.Contract{ID: id})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, contractdomain.ErrContractNotFound
	}
	if userID, ok := usercontext.UserIDFromContext(ctx); ok && c.UserID != userID {
		return nil, contractdomain.ErrContractNotFound
	}
	return c, nil
}

// withinContract checks the session date against the contract range. Session
// packs have no end date, so only the start bounds them.
func withinContract(c *contractdomain.Contract, date time.Time) bool {
	d := day(date)
	if d.Before(day(c.StartedAt)) {
		return false
	}
	if c.EndedAt != nil && d.After(day(*c.EndedAt)) {
		return false
	}
	return true
}

func (s *service) unvoidedOnDate(ctx context.Context, contractID snowflake.ID, date time.Time) (*domain.AttendanceLog, error) {
	rows, err := s.logs.Find(ctx, &domain.AttendanceLog{ContractID: contractID})
	if err != nil {
		return nil, err
	}
	d := day(date)
	for _, row := range rows {
		if !row.Voided && day(row.OccurredAt).Equal(d) {
			return row, nil
		}
	}
	return nil, nil
}

func (s *service) Record(ctx context.Context, req domain.RecordAttendanceRequest) (*domain.AttendanceLog, error) {
	if !req.Status.Valid() {
		return nil, domain.ErrInvalidStatus
	}

	c, err := s.ownedContract(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}
	if !withinContract(c, req.OccurredAt) {
		return nil, domain.ErrOutsideContract
	}

	existing, err := s.unvoidedOnDate(ctx, c.ID, req.OccurredAt)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDuplicateDate
	}

	now := s.clock.Now().UTC()
	row := &domain.AttendanceLog{
		ID:         s.node.Generate(),
		UserID:     c.UserID,
		ContractID: c.ID,
		StudentID:  c.StudentID,
		Status:     req.Status,
		OccurredAt: day(req.OccurredAt),
		Note:       req.Note,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.logs.Create(ctx, row); err != nil {
		return nil, err
	}

	s.recalculate(ctx, c.ID, row.OccurredAt)
	return row, nil
}

func (s *service) Void(ctx context.Context, id snowflake.ID) (*domain.AttendanceLog, error) {
	row, err := s.ownedLog(ctx, id)
	if err != nil {
		return nil, err
	}
	if row.Voided {
		return nil, domain.ErrAlreadyVoided
	}

	now := s.clock.Now().UTC()
	err = s.db.WithContext(ctx).Exec(
		`UPDATE attendance_logs SET voided = TRUE, voided_at = ?, updated_at = ? WHERE id = ?`,
		now, now, row.ID,
	).Error
	if err != nil {
		return nil, err
	}
	row.Voided = true
	row.VoidedAt = &now

	s.recalculate(ctx, row.ContractID, row.OccurredAt)
	return row, nil
}

// Reschedule voids the original log and books a substitute session on the
// target date.
func (s *service) Reschedule(ctx context.Context, id snowflake.ID, newDate time.Time) (*domain.AttendanceLog, error) {
	row, err := s.ownedLog(ctx, id)
	if err != nil {
		return nil, err
	}
	if row.Voided {
		return nil, domain.ErrAlreadyVoided
	}

	c, err := s.ownedContract(ctx, row.ContractID)
	if err != nil {
		return nil, err
	}
	if !withinContract(c, newDate) {
		return nil, domain.ErrOutsideContract
	}

	existing, err := s.unvoidedOnDate(ctx, c.ID, newDate)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDuplicateDate
	}

	now := s.clock.Now().UTC()
	var substitute *domain.AttendanceLog
	err = s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.WithContext(ctx).Exec(
			`UPDATE attendance_logs SET voided = TRUE, voided_at = ?, updated_at = ? WHERE id = ?`,
			now, now, row.ID,
		).Error
		if err != nil {
			return err
		}

		substitute = &domain.AttendanceLog{
			ID:         s.node.Generate(),
			UserID:     row.UserID,
			ContractID: row.ContractID,
			StudentID:  row.StudentID,
			Status:     domain.StatusSubstitute,
			OccurredAt: day(newDate),
			Note:       row.Note,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return s.logs.WithTrx(tx).Create(ctx, substitute)
	})
	if err != nil {
		return nil, err
	}

	s.recalculate(ctx, row.ContractID, row.OccurredAt)
	s.recalculate(ctx, row.ContractID, substitute.OccurredAt)
	return substitute, nil
}

func (s *service) List(ctx context.Context, contractID snowflake.ID) ([]*domain.AttendanceLog, error) {
	if _, err := s.ownedContract(ctx, contractID); err != nil {
		return nil, err
	}
	return s.logs.Find(ctx, &domain.AttendanceLog{ContractID: contractID},
		option.WithSortBy(option.WithQuerySortBy("occurred_at", "asc", map[string]bool{"occurred_at": true})),
	)
}

func (s *service) ownedLog(ctx context.Context, id snowflake.ID) (*domain.AttendanceLog, error) {
	row, err := s.logs.FindOne(ctx, &domain.AttendanceLog{ID: id})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domain.ErrLogNotFound
	}
	if userID, ok := usercontext.UserIDFromContext(ctx); ok && row.UserID != userID {
		return nil, domain.ErrLogNotFound
	}
	return row, nil
}

// recalculate refreshes billing for the affected window. Secondary effect:
// a failure leaves the log in place and is logged only.
func (s *service) recalculate(ctx context.Context, contractID snowflake.ID, occurredAt time.Time) {
	if err := s.invoices.RecalculateForContractDate(ctx, contractID, occurredAt); err != nil {
		s.log.Warn("invoice recalculation failed",
			zap.Int64("contract_id", int64(contractID)),
			zap.Time("occurred_at", occurredAt),
			zap.Error(err),
		)
	}
}
