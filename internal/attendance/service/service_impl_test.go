package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/thelesson/lessonbill/internal/attendance/domain"
	"github.com/thelesson/lessonbill/internal/clock"
	contractdomain "github.com/thelesson/lessonbill/internal/contract/domain"
	invoicedomain "github.com/thelesson/lessonbill/internal/invoice/domain"
	invoiceservice "github.com/thelesson/lessonbill/internal/invoice/service"
	"github.com/thelesson/lessonbill/internal/metrics"
	notificationdomain "github.com/thelesson/lessonbill/internal/notification/domain"
	notificationservice "github.com/thelesson/lessonbill/internal/notification/service"
	studentdomain "github.com/thelesson/lessonbill/internal/student/domain"
	"github.com/thelesson/lessonbill/internal/usercontext"
	"github.com/thelesson/lessonbill/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	svc      domain.Service
	invoices invoicedomain.Service
	contract *contractdomain.Contract
	userID   snowflake.ID
	ctx      context.Context
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func newTestEnv(t *testing.T, today time.Time) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&studentdomain.Student{},
		&contractdomain.Contract{},
		&domain.AttendanceLog{},
		&invoicedomain.Invoice{},
		&notificationdomain.Notification{},
	))

	node, _ := snowflake.NewNode(1)
	logger := zap.NewNop()
	clk := clock.NewFakeClock(today)

	students := repository.ProvideStore[studentdomain.Student](db)
	contracts := repository.ProvideStore[contractdomain.Contract](db)
	logs := repository.ProvideStore[domain.AttendanceLog](db)
	invoices := repository.ProvideStore[invoicedomain.Invoice](db)

	notifier := notificationservice.NewService(notificationservice.ServiceParam{
		Log:    logger,
		Clock:  clk,
		Node:   node,
		Repo:   repository.ProvideStore[notificationdomain.Notification](db),
		Pusher: notificationservice.NewLogPusher(logger),
	})

	invoiceSvc := invoiceservice.NewService(invoiceservice.ServiceParam{
		Log:        logger,
		DB:         db,
		Clock:      clk,
		Node:       node,
		Metrics:    metrics.New(),
		Contracts:  contracts,
		Students:   students,
		Attendance: logs,
		Invoices:   invoices,
		Notifier:   notifier,
	})

	svc := NewService(ServiceParam{
		Log:       logger,
		DB:        db,
		Clock:     clk,
		Node:      node,
		Logs:      logs,
		Contracts: contracts,
		Invoices:  invoiceSvc,
	})

	userID := node.Generate()
	ctx := usercontext.WithUserID(context.Background(), userID)
	now := clk.Now()

	student := &studentdomain.Student{
		ID:        node.Generate(),
		UserID:    userID,
		Name:      "Minseo",
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, students.Create(ctx, student))

	end := date(2025, time.June, 30)
	contract := &contractdomain.Contract{
		ID:              node.Generate(),
		UserID:          userID,
		StudentID:       student.ID,
		BillingType:     contractdomain.BillingTypePostpaid,
		PaymentSchedule: contractdomain.PaymentScheduleMonthly,
		AbsencePolicy:   contractdomain.AbsencePolicyVanish,
		BillingDay:      1,
		MonthlyAmount:   400000,
		Status:          contractdomain.ContractStatusSigned,
		StartedAt:       date(2025, time.January, 1),
		EndedAt:         &end,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, contracts.Create(ctx, contract))

	return &testEnv{
		svc:      svc,
		invoices: invoiceSvc,
		contract: contract,
		userID:   userID,
		ctx:      ctx,
	}
}

func TestRecord(t *testing.T) {
	env := newTestEnv(t, date(2025, time.February, 10))

	t.Run("records a session on a contract day", func(t *testing.T) {
		row, err := env.svc.Record(env.ctx, domain.RecordAttendanceRequest{
			ContractID: env.contract.ID,
			Status:     domain.StatusPresent,
			OccurredAt: date(2025, time.January, 10),
		})
		require.NoError(t, err)
		assert.Equal(t, date(2025, time.January, 10), row.OccurredAt)
		assert.False(t, row.Voided)
	})

	t.Run("rejects a second log on the same day", func(t *testing.T) {
		_, err := env.svc.Record(env.ctx, domain.RecordAttendanceRequest{
			ContractID: env.contract.ID,
			Status:     domain.StatusAbsent,
			OccurredAt: date(2025, time.January, 10),
		})
		assert.ErrorIs(t, err, domain.ErrDuplicateDate)
	})

	t.Run("rejects a date before the contract starts", func(t *testing.T) {
		_, err := env.svc.Record(env.ctx, domain.RecordAttendanceRequest{
			ContractID: env.contract.ID,
			Status:     domain.StatusPresent,
			OccurredAt: date(2024, time.December, 20),
		})
		assert.ErrorIs(t, err, domain.ErrOutsideContract)
	})

	t.Run("rejects a date after the contract ends", func(t *testing.T) {
		_, err := env.svc.Record(env.ctx, domain.RecordAttendanceRequest{
			ContractID: env.contract.ID,
			Status:     domain.StatusPresent,
			OccurredAt: date(2025, time.July, 1),
		})
		assert.ErrorIs(t, err, domain.ErrOutsideContract)
	})

	t.Run("rejects an unknown status", func(t *testing.T) {
		_, err := env.svc.Record(env.ctx, domain.RecordAttendanceRequest{
			ContractID: env.contract.ID,
			Status:     "late",
			OccurredAt: date(2025, time.January, 11),
		})
		assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	})

	t.Run("rejects another tutor's contract", func(t *testing.T) {
		stranger := usercontext.WithUserID(context.Background(), env.userID+1)
		_, err := env.svc.Record(stranger, domain.RecordAttendanceRequest{
			ContractID: env.contract.ID,
			Status:     domain.StatusPresent,
			OccurredAt: date(2025, time.January, 12),
		})
		assert.ErrorIs(t, err, contractdomain.ErrContractNotFound)
	})
}

func TestVoid(t *testing.T) {
	env := newTestEnv(t, date(2025, time.February, 10))

	row, err := env.svc.Record(env.ctx, domain.RecordAttendanceRequest{
		ContractID: env.contract.ID,
		Status:     domain.StatusPresent,
		OccurredAt: date(2025, time.January, 10),
	})
	require.NoError(t, err)

	t.Run("voids the log in place", func(t *testing.T) {
		voided, err := env.svc.Void(env.ctx, row.ID)
		require.NoError(t, err)
		assert.True(t, voided.Voided)
		require.NotNil(t, voided.VoidedAt)
	})

	t.Run("voiding twice fails", func(t *testing.T) {
		_, err := env.svc.Void(env.ctx, row.ID)
		assert.ErrorIs(t, err, domain.ErrAlreadyVoided)
	})

	t.Run("the day is free for a new log afterwards", func(t *testing.T) {
		_, err := env.svc.Record(env.ctx, domain.RecordAttendanceRequest{
			ContractID: env.contract.ID,
			Status:     domain.StatusAbsent,
			OccurredAt: date(2025, time.January, 10),
		})
		assert.NoError(t, err)
	})
}

func TestReschedule(t *testing.T) {
	env := newTestEnv(t, date(2025, time.February, 10))

	row, err := env.svc.Record(env.ctx, domain.RecordAttendanceRequest{
		ContractID: env.contract.ID,
		Status:     domain.StatusPresent,
		OccurredAt: date(2025, time.January, 10),
		Note:       "piano",
	})
	require.NoError(t, err)

	t.Run("rejects a target outside the contract", func(t *testing.T) {
		_, err := env.svc.Reschedule(env.ctx, row.ID, date(2025, time.July, 2))
		assert.ErrorIs(t, err, domain.ErrOutsideContract)
	})

	t.Run("voids the original and records a substitute", func(t *testing.T) {
		substitute, err := env.svc.Reschedule(env.ctx, row.ID, date(2025, time.January, 17))
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSubstitute, substitute.Status)
		assert.Equal(t, date(2025, time.January, 17), substitute.OccurredAt)
		assert.Equal(t, "piano", substitute.Note)

		rows, err := env.svc.List(env.ctx, env.contract.ID)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.True(t, rows[0].Voided)
		assert.False(t, rows[1].Voided)
	})

	t.Run("rejects a target day that already has a log", func(t *testing.T) {
		another, err := env.svc.Record(env.ctx, domain.RecordAttendanceRequest{
			ContractID: env.contract.ID,
			Status:     domain.StatusPresent,
			OccurredAt: date(2025, time.January, 20),
		})
		require.NoError(t, err)

		_, err = env.svc.Reschedule(env.ctx, another.ID, date(2025, time.January, 17))
		assert.ErrorIs(t, err, domain.ErrDuplicateDate)
	})
}
