package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	attendancedomain "github.com/thelesson/lessonbill/internal/attendance/domain"
	"github.com/thelesson/lessonbill/internal/clock"
	contractdomain "github.com/thelesson/lessonbill/internal/contract/domain"
	"github.com/thelesson/lessonbill/internal/invoice/domain"
	"github.com/thelesson/lessonbill/internal/metrics"
	notificationdomain "github.com/thelesson/lessonbill/internal/notification/domain"
	notificationservice "github.com/thelesson/lessonbill/internal/notification/service"
	studentdomain "github.com/thelesson/lessonbill/internal/student/domain"
	"github.com/thelesson/lessonbill/internal/usercontext"
	"github.com/thelesson/lessonbill/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type testEnv struct {
	db         *gorm.DB
	node       *snowflake.Node
	clk        *clock.FakeClock
	svc        domain.Service
	contracts  repository.Repository[contractdomain.Contract]
	students   repository.Repository[studentdomain.Student]
	attendance repository.Repository[attendancedomain.AttendanceLog]
	invoices   repository.Repository[domain.Invoice]
	userID     snowflake.ID
	ctx        context.Context
}

func createTables(db *gorm.DB) {
	db.Exec(`CREATE TABLE IF NOT EXISTS students (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		phone TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)

	db.Exec(`CREATE TABLE IF NOT EXISTS contracts (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		student_id BIGINT NOT NULL,
		billing_type TEXT NOT NULL,
		payment_schedule TEXT NOT NULL,
		absence_policy TEXT NOT NULL,
		billing_day INTEGER NOT NULL,
		monthly_amount BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'draft',
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP,
		policy TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)

	db.Exec(`CREATE TABLE IF NOT EXISTS attendance_logs (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		contract_id BIGINT NOT NULL,
		student_id BIGINT NOT NULL,
		status TEXT NOT NULL,
		occurred_at TIMESTAMP NOT NULL,
		voided BOOLEAN NOT NULL DEFAULT FALSE,
		voided_at TIMESTAMP,
		note TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)

	db.Exec(`CREATE TABLE IF NOT EXISTS invoices (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		student_id BIGINT NOT NULL,
		contract_id BIGINT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		segment_index INTEGER NOT NULL DEFAULT 1,
		base_amount BIGINT NOT NULL DEFAULT 0,
		auto_adjustment BIGINT NOT NULL DEFAULT 0,
		manual_adjustment BIGINT NOT NULL DEFAULT 0,
		final_amount BIGINT NOT NULL DEFAULT 0,
		adjustment_reason TEXT,
		planned_sessions INTEGER,
		period_start TIMESTAMP,
		period_end TIMESTAMP,
		send_status TEXT NOT NULL DEFAULT 'not_sent',
		send_history TEXT,
		force_to_today_billing BOOLEAN NOT NULL DEFAULT FALSE,
		account TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)

	// SQLite requires an explicit UNIQUE index for ON CONFLICT to work.
	db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_invoice_period
		ON invoices(student_id, contract_id, year, month)`)

	db.Exec(`CREATE TABLE IF NOT EXISTS notifications (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL
	)`)
}

func newTestEnv(t *testing.T, today time.Time) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	createTables(db)

	node, _ := snowflake.NewNode(1)
	logger := zap.NewNop()
	clk := clock.NewFakeClock(today)

	contracts := repository.ProvideStore[contractdomain.Contract](db)
	students := repository.ProvideStore[studentdomain.Student](db)
	attendance := repository.ProvideStore[attendancedomain.AttendanceLog](db)
	invoices := repository.ProvideStore[domain.Invoice](db)

	notifier := notificationservice.NewService(notificationservice.ServiceParam{
		Log:    logger,
		Clock:  clk,
		Node:   node,
		Repo:   repository.ProvideStore[notificationdomain.Notification](db),
		Pusher: notificationservice.NewLogPusher(logger),
	})

	svc := NewService(ServiceParam{
		Log:        logger,
		DB:         db,
		Clock:      clk,
		Node:       node,
		Metrics:    metrics.New(),
		Contracts:  contracts,
		Students:   students,
		Attendance: attendance,
		Invoices:   invoices,
		Notifier:   notifier,
	})

	userID := node.Generate()
	return &testEnv{
		db:         db,
		node:       node,
		clk:        clk,
		svc:        svc,
		contracts:  contracts,
		students:   students,
		attendance: attendance,
		invoices:   invoices,
		userID:     userID,
		ctx:        usercontext.WithUserID(context.Background(), userID),
	}
}

func (e *testEnv) newStudent(t *testing.T, name string) *studentdomain.Student {
	t.Helper()
	now := e.clk.Now()
	row := &studentdomain.Student{
		ID:        e.node.Generate(),
		UserID:    e.userID,
		Name:      name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, e.students.Create(e.ctx, row))
	return row
}

func (e *testEnv) newContract(t *testing.T, c *contractdomain.Contract) *contractdomain.Contract {
	t.Helper()
	now := e.clk.Now()
	c.ID = e.node.Generate()
	c.UserID = e.userID
	if c.StudentID == 0 {
		c.StudentID = e.newStudent(t, "student").ID
	}
	c.Status = contractdomain.ContractStatusSigned
	c.CreatedAt = now
	c.UpdatedAt = now
	require.NoError(t, e.contracts.Create(e.ctx, c))
	return c
}

func (e *testEnv) recordLog(t *testing.T, c *contractdomain.Contract, status attendancedomain.AttendanceStatus, occurredAt time.Time) *attendancedomain.AttendanceLog {
	t.Helper()
	now := e.clk.Now()
	row := &attendancedomain.AttendanceLog{
		ID:         e.node.Generate(),
		UserID:     c.UserID,
		ContractID: c.ID,
		StudentID:  c.StudentID,
		Status:     status,
		OccurredAt: occurredAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, e.attendance.Create(e.ctx, row))
	return row
}

func TestCreateFirstInvoice(t *testing.T) {
	env := newTestEnv(t, date(2025, time.January, 20))

	t.Run("postpaid monthly keys on due month", func(t *testing.T) {
		end := date(2025, time.June, 30)
		c := env.newContract(t, &contractdomain.Contract{
			BillingType:     contractdomain.BillingTypePostpaid,
			PaymentSchedule: contractdomain.PaymentScheduleMonthly,
			AbsencePolicy:   contractdomain.AbsencePolicyVanish,
			BillingDay:      1,
			MonthlyAmount:   400000,
			StartedAt:       date(2025, time.January, 15),
			EndedAt:         &end,
		})

		inv, err := env.svc.CreateFirstInvoice(env.ctx, c)
		require.NoError(t, err)
		assert.Equal(t, 2025, inv.Year)
		assert.Equal(t, 2, inv.Month)
		assert.Equal(t, 1, inv.SegmentIndex)
		assert.Equal(t, int64(400000), inv.BaseAmount)
		assert.Equal(t, int64(400000), inv.FinalAmount)
		assert.Equal(t, date(2025, time.January, 15), *inv.PeriodStart)
		assert.Equal(t, date(2025, time.January, 31), *inv.PeriodEnd)

		again, err := env.svc.CreateFirstInvoice(env.ctx, c)
		require.NoError(t, err)
		assert.Equal(t, inv.ID, again.ID)
	})

	t.Run("prepaid monthly keys on current month", func(t *testing.T) {
		end := date(2025, time.June, 30)
		c := env.newContract(t, &contractdomain.Contract{
			BillingType:     contractdomain.BillingTypePrepaid,
			PaymentSchedule: contractdomain.PaymentScheduleMonthly,
			AbsencePolicy:   contractdomain.AbsencePolicyVanish,
			BillingDay:      1,
			MonthlyAmount:   300000,
			StartedAt:       date(2025, time.February, 1),
			EndedAt:         &end,
		})

		inv, err := env.svc.CreateFirstInvoice(env.ctx, c)
		require.NoError(t, err)
		assert.Equal(t, 2025, inv.Year)
		assert.Equal(t, 1, inv.Month)
		// Marker window: the single day before the start date.
		assert.Equal(t, date(2025, time.January, 31), *inv.PeriodStart)
		assert.Equal(t, *inv.PeriodStart, *inv.PeriodEnd)
	})

	t.Run("session pack prices planned sessions", func(t *testing.T) {
		c := env.newContract(t, &contractdomain.Contract{
			BillingType:     contractdomain.BillingTypePostpaid,
			PaymentSchedule: contractdomain.PaymentScheduleMonthly,
			AbsencePolicy:   contractdomain.AbsencePolicyVanish,
			BillingDay:      1,
			StartedAt:       date(2025, time.January, 1),
			Policy: datatypes.NewJSONType(contractdomain.PolicySnapshot{
				TotalSessions:    8,
				PerSessionAmount: 25000,
			}),
		})

		inv, err := env.svc.CreateFirstInvoice(env.ctx, c)
		require.NoError(t, err)
		require.NotNil(t, inv.PlannedSessions)
		assert.Equal(t, 8, *inv.PlannedSessions)
		assert.Equal(t, int64(200000), inv.BaseAmount)
		assert.Nil(t, inv.PeriodStart)
	})
}

func TestCreateSegmentInvoice(t *testing.T) {
	env := newTestEnv(t, date(2025, time.January, 20))

	t.Run("monthly chain continues from the stored window", func(t *testing.T) {
		end := date(2025, time.June, 30)
		c := env.newContract(t, &contractdomain.Contract{
			BillingType:     contractdomain.BillingTypePostpaid,
			PaymentSchedule: contractdomain.PaymentScheduleMonthly,
			AbsencePolicy:   contractdomain.AbsencePolicyVanish,
			BillingDay:      1,
			MonthlyAmount:   400000,
			StartedAt:       date(2025, time.January, 15),
			EndedAt:         &end,
		})

		first, err := env.svc.CreateFirstInvoice(env.ctx, c)
		require.NoError(t, err)

		second, err := env.svc.CreateSegmentInvoice(env.ctx, c, 0)
		require.NoError(t, err)
		assert.Equal(t, first.SegmentIndex+1, second.SegmentIndex)
		assert.Equal(t, first.PeriodEnd.AddDate(0, 0, 1), *second.PeriodStart)
		assert.Equal(t, date(2025, time.February, 28), *second.PeriodEnd)
		assert.Equal(t, 3, second.Month)
	})

	t.Run("session extension settles into the next free month", func(t *testing.T) {
		extendedAt := date(2025, time.January, 18)
		c := env.newContract(t, &contractdomain.Contract{
			BillingType:     contractdomain.BillingTypePostpaid,
			PaymentSchedule: contractdomain.PaymentScheduleMonthly,
			AbsencePolicy:   contractdomain.AbsencePolicyVanish,
			BillingDay:      1,
			StartedAt:       date(2025, time.January, 1),
			Policy: datatypes.NewJSONType(contractdomain.PolicySnapshot{
				TotalSessions:    12,
				PerSessionAmount: 25000,
				Extensions: []contractdomain.Extension{
					{
						Type:            contractdomain.ExtensionTypeSessions,
						AddedSessions:   4,
						ExtensionAmount: 90000,
						PreviousTotal:   8,
						NewTotal:        12,
						ExtendedAt:      extendedAt,
					},
				},
			}),
		})

		first, err := env.svc.CreateFirstInvoice(env.ctx, c)
		require.NoError(t, err)
		assert.Equal(t, 1, first.Month)

		settlement, err := env.svc.CreateSegmentInvoice(env.ctx, c, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, settlement.SegmentIndex)
		assert.Equal(t, int64(90000), settlement.BaseAmount)
		// January is taken by segment 1, so the key walks forward.
		assert.Equal(t, 2, settlement.Month)

		again, err := env.svc.CreateSegmentInvoice(env.ctx, c, 2)
		require.NoError(t, err)
		assert.Equal(t, settlement.ID, again.ID)
	})
}

func TestSendInvoices(t *testing.T) {
	env := newTestEnv(t, date(2025, time.February, 1))

	end := date(2025, time.June, 30)
	c := env.newContract(t, &contractdomain.Contract{
		BillingType:     contractdomain.BillingTypePostpaid,
		PaymentSchedule: contractdomain.PaymentScheduleMonthly,
		AbsencePolicy:   contractdomain.AbsencePolicyVanish,
		BillingDay:      1,
		MonthlyAmount:   400000,
		StartedAt:       date(2025, time.January, 15),
		EndedAt:         &end,
	})

	inv, err := env.svc.CreateFirstInvoice(env.ctx, c)
	require.NoError(t, err)

	t.Run("requires channels", func(t *testing.T) {
		_, err := env.svc.Send(env.ctx, domain.SendInvoicesRequest{InvoiceIDs: []snowflake.ID{inv.ID}})
		assert.ErrorIs(t, err, domain.ErrNoChannels)
	})

	t.Run("send freezes the display window", func(t *testing.T) {
		results, err := env.svc.Send(env.ctx, domain.SendInvoicesRequest{
			InvoiceIDs: []snowflake.ID{inv.ID},
			Channels:   []string{"sms", "kakao"},
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, domain.SendStatusSent, results[0].Status)

		stored, err := env.svc.GetByID(env.ctx, inv.ID)
		require.NoError(t, err)
		history := stored.SendHistory.Data()
		require.Len(t, history, 2)
		assert.Equal(t, int64(400000), history[0].Amount)
		assert.Equal(t, date(2025, time.January, 15), *history[0].DisplayStart)
		assert.Equal(t, date(2025, time.January, 31), *history[0].DisplayEnd)
	})

	t.Run("a settlement notification is stored once", func(t *testing.T) {
		var rows []notificationdomain.Notification
		require.NoError(t, env.db.Where("user_id = ?", env.userID).Find(&rows).Error)
		require.Len(t, rows, 1)
		assert.Equal(t, notificationdomain.EventInvoiceSettlement, rows[0].Type)
		assert.False(t, rows[0].CreatedAt.IsZero())
	})

	t.Run("unknown channel leaves the invoice partial at worst", func(t *testing.T) {
		other, err := env.svc.CreateSegmentInvoice(env.ctx, c, 0)
		require.NoError(t, err)

		results, err := env.svc.Send(env.ctx, domain.SendInvoicesRequest{
			InvoiceIDs: []snowflake.ID{other.ID},
			Channels:   []string{"sms", "carrier_pigeon"},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.SendStatusPartial, results[0].Status)
	})

	t.Run("sent invoice cannot move to today billing", func(t *testing.T) {
		_, err := env.svc.MoveToTodayBilling(env.ctx, inv.ID)
		assert.ErrorIs(t, err, domain.ErrAlreadySent)
	})
}

func TestAdjustments(t *testing.T) {
	env := newTestEnv(t, date(2025, time.February, 5))

	end := date(2025, time.June, 30)
	c := env.newContract(t, &contractdomain.Contract{
		BillingType:     contractdomain.BillingTypePostpaid,
		PaymentSchedule: contractdomain.PaymentScheduleMonthly,
		AbsencePolicy:   contractdomain.AbsencePolicyDeductNext,
		BillingDay:      1,
		MonthlyAmount:   400000,
		StartedAt:       date(2025, time.January, 1),
		EndedAt:         &end,
		Policy: datatypes.NewJSONType(contractdomain.PolicySnapshot{
			PerSessionAmount: 50000,
		}),
	})

	inv, err := env.svc.CreateFirstInvoice(env.ctx, c)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inv.AutoAdjustment)

	t.Run("recalculate deducts absences in the window", func(t *testing.T) {
		env.recordLog(t, c, attendancedomain.StatusAbsent, date(2025, time.January, 10))

		updated, err := env.svc.Recalculate(env.ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(-50000), updated.AutoAdjustment)
		assert.Equal(t, int64(350000), updated.FinalAmount)
	})

	t.Run("voiding the absence restores the amount", func(t *testing.T) {
		var row attendancedomain.AttendanceLog
		require.NoError(t, env.db.Where("contract_id = ?", c.ID).First(&row).Error)
		env.db.Exec(`UPDATE attendance_logs SET voided = TRUE WHERE id = ?`, row.ID)

		err := env.svc.RecalculateForContractDate(env.ctx, c.ID, row.OccurredAt)
		require.NoError(t, err)

		updated, err := env.svc.GetByID(env.ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), updated.AutoAdjustment)
		assert.Equal(t, int64(400000), updated.FinalAmount)
	})

	t.Run("manual adjustment keeps the amount invariant", func(t *testing.T) {
		updated, err := env.svc.ApplyManualAdjustment(env.ctx, inv.ID, -30000, "sibling discount")
		require.NoError(t, err)
		assert.Equal(t, int64(-30000), updated.ManualAdjustment)
		assert.Equal(t, "sibling discount", updated.AdjustmentReason)
		assert.Equal(t, updated.BaseAmount+updated.AutoAdjustment+updated.ManualAdjustment, updated.FinalAmount)
	})
}

func TestSentInvoiceFrozen(t *testing.T) {
	env := newTestEnv(t, date(2025, time.February, 5))

	end := date(2025, time.June, 30)
	c := env.newContract(t, &contractdomain.Contract{
		BillingType:     contractdomain.BillingTypePostpaid,
		PaymentSchedule: contractdomain.PaymentScheduleMonthly,
		AbsencePolicy:   contractdomain.AbsencePolicyDeductNext,
		BillingDay:      1,
		MonthlyAmount:   400000,
		StartedAt:       date(2025, time.January, 1),
		EndedAt:         &end,
		Policy: datatypes.NewJSONType(contractdomain.PolicySnapshot{
			PerSessionAmount: 50000,
		}),
	})

	inv, err := env.svc.CreateFirstInvoice(env.ctx, c)
	require.NoError(t, err)

	_, err = env.svc.Send(env.ctx, domain.SendInvoicesRequest{
		InvoiceIDs: []snowflake.ID{inv.ID},
		Channels:   []string{"sms"},
	})
	require.NoError(t, err)

	t.Run("attendance inside the window leaves the amounts alone", func(t *testing.T) {
		env.recordLog(t, c, attendancedomain.StatusAbsent, date(2025, time.January, 10))

		require.NoError(t, env.svc.RecalculateForContractDate(env.ctx, c.ID, date(2025, time.January, 10)))

		stored, err := env.svc.GetByID(env.ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), stored.AutoAdjustment)
		assert.Equal(t, int64(400000), stored.FinalAmount)
	})

	t.Run("explicit recalculation is rejected", func(t *testing.T) {
		_, err := env.svc.Recalculate(env.ctx, inv.ID)
		assert.ErrorIs(t, err, domain.ErrAlreadySent)
	})
}

func TestSectionsRepairScan(t *testing.T) {
	env := newTestEnv(t, date(2025, time.March, 5))

	end := date(2025, time.June, 30)
	c := env.newContract(t, &contractdomain.Contract{
		BillingType:     contractdomain.BillingTypePostpaid,
		PaymentSchedule: contractdomain.PaymentScheduleMonthly,
		AbsencePolicy:   contractdomain.AbsencePolicyVanish,
		BillingDay:      1,
		MonthlyAmount:   400000,
		StartedAt:       date(2025, time.January, 15),
		EndedAt:         &end,
	})

	t.Run("backfills the opening invoice", func(t *testing.T) {
		resp, err := env.svc.Sections(env.ctx)
		require.NoError(t, err)

		rows, err := env.invoices.Find(env.ctx, &domain.Invoice{ContractID: c.ID})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, date(2025, time.January, 15), *rows[0].PeriodStart)

		// Jan 15-31 has elapsed by Mar 5.
		assert.Len(t, resp.ReadyToBill, 1)
		assert.Empty(t, resp.Sent)
	})

	t.Run("extends the chain through elapsed windows", func(t *testing.T) {
		resp, err := env.svc.Sections(env.ctx)
		require.NoError(t, err)

		rows, err := env.invoices.Find(env.ctx, &domain.Invoice{ContractID: c.ID})
		require.NoError(t, err)
		// Jan and Feb windows are owed, March is the open window.
		require.Len(t, rows, 3)

		assert.Len(t, resp.ReadyToBill, 2)
		assert.Len(t, resp.InProgress, 1)
	})

	t.Run("scan is idempotent", func(t *testing.T) {
		_, err := env.svc.Sections(env.ctx)
		require.NoError(t, err)

		rows, err := env.invoices.Find(env.ctx, &domain.Invoice{ContractID: c.ID})
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})
}
