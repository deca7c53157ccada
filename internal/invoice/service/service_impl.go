// Package service implements invoice generation and lifecycle management.
package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	attendancedomain "github.com/thelesson/lessonbill/internal/attendance/domain"
	"github.com/thelesson/lessonbill/internal/clock"
	contractdomain "github.com/thelesson/lessonbill/internal/contract/domain"
	"github.com/thelesson/lessonbill/internal/invoice/domain"
	"github.com/thelesson/lessonbill/internal/metrics"
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

var sendChannels = map[string]bool{
	"sms":   true,
	"kakao": true,
	"link":  true,
}

type ServiceParam struct {
	fx.In

	Log        *zap.Logger
	DB         *gorm.DB
	Clock      clock.Clock
	Node       *snowflake.Node
	Metrics    *metrics.Metrics
	Contracts  repository.Repository[contractdomain.Contract]
	Students   repository.Repository[studentdomain.Student]
	Attendance repository.Repository[attendancedomain.AttendanceLog]
	Invoices   repository.Repository[domain.Invoice]
	Notifier   notificationdomain.Service
}

type service struct {
	log        *zap.Logger
	db         *gorm.DB
	clock      clock.Clock
	node       *snowflake.Node
	metrics    *metrics.Metrics
	contracts  repository.Repository[contractdomain.Contract]
	students   repository.Repository[studentdomain.Student]
	attendance repository.Repository[attendancedomain.AttendanceLog]
	invoices   repository.Repository[domain.Invoice]
	notifier   notificationdomain.Service
}

func NewService(p ServiceParam) domain.Service {
	return &service{
		log:        p.Log.Named("invoice.service"),
		db:         p.DB,
		clock:      p.Clock,
		node:       p.Node,
		metrics:    p.Metrics,
		contracts:  p.Contracts,
		students:   p.Students,
		attendance: p.Attendance,
		invoices:   p.Invoices,
		notifier:   p.Notifier,
	}
}

func (s *service) today() time.Time {
	return dateOnly(s.clock.Now())
}

// lockClause returns the row-lock suffix where the dialect supports it.
func lockClause(tx *gorm.DB) string {
	if tx.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}

func (s *service) lockContract(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	var locked struct{ ID snowflake.ID }
	return tx.WithContext(ctx).
		Raw(`SELECT id FROM contracts WHERE id = ?`+lockClause(tx), id).
		Scan(&locked).Error
}

// insertInvoice writes the row with ON CONFLICT DO NOTHING on the period key.
// Returns false when another writer already holds the key.
func (s *service) insertInvoice(ctx context.Context, tx *gorm.DB, inv *domain.Invoice) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`INSERT INTO invoices
		   (id, user_id, student_id, contract_id, year, month, segment_index,
		    base_amount, auto_adjustment, manual_adjustment, final_amount, adjustment_reason,
		    planned_sessions, period_start, period_end,
		    send_status, send_history, force_to_today_billing, account,
		    created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (student_id, contract_id, year, month) DO NOTHING`,
		inv.ID, inv.UserID, inv.StudentID, inv.ContractID, inv.Year, inv.Month, inv.SegmentIndex,
		inv.BaseAmount, inv.AutoAdjustment, inv.ManualAdjustment, inv.FinalAmount, inv.AdjustmentReason,
		inv.PlannedSessions, inv.PeriodStart, inv.PeriodEnd,
		inv.SendStatus, inv.SendHistory, inv.ForceToTodayBilling, inv.Account,
		inv.CreatedAt, inv.UpdatedAt,
	)
	if res.Error != nil {
		return false, fmt.Errorf("insert invoice: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *service) findByKey(ctx context.Context, tx *gorm.DB, c *contractdomain.Contract, year, month int) (*domain.Invoice, error) {
	return s.invoices.WithTrx(tx).FindOne(ctx, &domain.Invoice{
		StudentID:  c.StudentID,
		ContractID: c.ID,
		Year:       year,
		Month:      month,
	})
}

func (s *service) contractLogs(ctx context.Context, contractID snowflake.ID) ([]*attendancedomain.AttendanceLog, error) {
	return s.attendance.Find(ctx, &attendancedomain.AttendanceLog{ContractID: contractID},
		option.WithSortBy(option.WithQuerySortBy("occurred_at", "asc", map[string]bool{"occurred_at": true})),
	)
}

func (s *service) newInvoice(c *contractdomain.Contract, segment int) *domain.Invoice {
	policy := c.Policy.Data()
	now := s.clock.Now().UTC()
	return &domain.Invoice{
		ID:           s.node.Generate(),
		UserID:       c.UserID,
		StudentID:    c.StudentID,
		ContractID:   c.ID,
		SegmentIndex: segment,
		SendStatus:   domain.SendStatusNotSent,
		SendHistory:  datatypes.NewJSONType([]domain.SendRecord{}),
		Account: datatypes.NewJSONType(domain.AccountSnapshot{
			Bank:   policy.Account.Bank,
			Number: policy.Account.Number,
			Holder: policy.Account.Holder,
		}),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// buildMonthlyInvoice assembles one calendar billing window. prev is the
// stored previous window, used both to anchor continuation and to settle
// carried-over absences.
func (s *service) buildMonthlyInvoice(c *contractdomain.Contract, segment int, prev *period, logs []*attendancedomain.AttendanceLog) *domain.Invoice {
	var p period
	if segment <= 1 || prev == nil {
		p = firstPeriod(c)
	} else {
		p = nextPeriod(c, prev.End)
	}

	inv := s.newInvoice(c, segment)
	inv.BaseAmount = c.MonthlyAmount
	inv.AutoAdjustment = autoAdjustment(c, segment, logs, &p, prev)
	inv.FinalAmount = inv.BaseAmount + inv.AutoAdjustment + inv.ManualAdjustment
	inv.PeriodStart = &p.Start
	inv.PeriodEnd = &p.End
	inv.Year, inv.Month = invoiceKey(c, p, segment, s.today())
	return inv
}

func (s *service) buildLumpSumInvoice(c *contractdomain.Contract, logs []*attendancedomain.AttendanceLog) *domain.Invoice {
	p := lumpSumPeriod(c)
	inv := s.newInvoice(c, 1)
	inv.BaseAmount = c.MonthlyAmount
	inv.AutoAdjustment = autoAdjustment(c, 1, logs, &p, nil)
	inv.FinalAmount = inv.BaseAmount + inv.AutoAdjustment + inv.ManualAdjustment
	inv.PeriodStart = &p.Start
	inv.PeriodEnd = &p.End
	inv.Year, inv.Month = invoiceKey(c, p, 1, s.today())
	return inv
}

// buildSessionInvoice assembles a session-counted segment. No period bounds;
// the month key is taken from "today" and nudged forward on collision by the
// caller.
func (s *service) buildSessionInvoice(c *contractdomain.Contract, segment int, logs []*attendancedomain.AttendanceLog) *domain.Invoice {
	planned := originalSegmentSessions(c, segment)
	per := perSessionAmount(c, segment)

	inv := s.newInvoice(c, segment)
	inv.PlannedSessions = &planned

	switch {
	case segment <= 1:
		if per > 0 && planned > 0 {
			inv.BaseAmount = per * int64(planned)
		} else {
			inv.BaseAmount = c.MonthlyAmount
		}
	default:
		ext := sessionExtensionFor(c, segment)
		switch {
		case ext != nil && ext.ExtensionAmount > 0:
			inv.BaseAmount = ext.ExtensionAmount
		case ext != nil && per > 0 && ext.AddedSessions > 0:
			inv.BaseAmount = per * int64(ext.AddedSessions)
		default:
			inv.BaseAmount = c.MonthlyAmount
		}
	}

	inv.AutoAdjustment = autoAdjustment(c, segment, logs, nil, nil)
	inv.FinalAmount = inv.BaseAmount + inv.AutoAdjustment + inv.ManualAdjustment

	now := s.today()
	inv.Year, inv.Month = now.Year(), int(now.Month())
	return inv
}

func sessionExtensionFor(c *contractdomain.Contract, segment int) *contractdomain.Extension {
	exts := c.SessionsExtensions()
	if segment-2 >= 0 && segment-2 < len(exts) {
		return &exts[segment-2]
	}
	return nil
}

// CreateFirstInvoice opens billing for a freshly sent contract. Creation is
// find-or-create: a concurrent caller loses the insert and adopts the
// existing row.
func (s *service) CreateFirstInvoice(ctx context.Context, c *contractdomain.Contract) (*domain.Invoice, error) {
	logs, err := s.contractLogs(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	var inv *domain.Invoice
	switch {
	case c.IsLumpSum():
		inv = s.buildLumpSumInvoice(c, logs)
	case c.IsSessionBased():
		inv = s.buildSessionInvoice(c, 1, logs)
	default:
		inv = s.buildMonthlyInvoice(c, 1, nil, logs)
	}

	return s.createInvoice(ctx, c, inv)
}

// createInvoice performs the locked find-or-create on the period key.
func (s *service) createInvoice(ctx context.Context, c *contractdomain.Contract, inv *domain.Invoice) (*domain.Invoice, error) {
	var out *domain.Invoice
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.lockContract(ctx, tx, c.ID); err != nil {
			return err
		}

		inserted, err := s.insertInvoice(ctx, tx, inv)
		if err != nil {
			return err
		}
		if !inserted {
			existing, err := s.findByKey(ctx, tx, c, inv.Year, inv.Month)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("invoice %d-%02d vanished after conflict", inv.Year, inv.Month)
			}
			out = existing
			return nil
		}

		s.metrics.InvoicesGenerated.Inc()
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSegmentInvoice creates the invoice for a later billing segment.
// segment <= 0 derives the next one from the contract's current state.
func (s *service) CreateSegmentInvoice(ctx context.Context, c *contractdomain.Contract, segment int) (*domain.Invoice, error) {
	logs, err := s.contractLogs(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	if c.IsLumpSum() {
		return s.CreateFirstInvoice(ctx, c)
	}
	if c.IsSessionBased() {
		if segment <= 0 {
			segment = c.CurrentSegment()
		}
		return s.createSessionSegment(ctx, c, segment, logs)
	}

	prev, err := s.latestPeriodInvoice(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if segment <= 0 {
		segment = 1
		if prev != nil {
			segment = prev.SegmentIndex + 1
		}
	}
	var prevWindow *period
	if prev != nil && prev.PeriodStart != nil && prev.PeriodEnd != nil {
		prevWindow = &period{Start: dateOnly(*prev.PeriodStart), End: dateOnly(*prev.PeriodEnd)}
	}

	inv := s.buildMonthlyInvoice(c, segment, prevWindow, logs)
	return s.createInvoice(ctx, c, inv)
}

// createSessionSegment is idempotent per segment. When the month key is
// already taken by an earlier segment the key walks forward one month, the
// way a second settlement in one month has to land somewhere unique.
func (s *service) createSessionSegment(ctx context.Context, c *contractdomain.Contract, segment int, logs []*attendancedomain.AttendanceLog) (*domain.Invoice, error) {
	existing, err := s.invoices.FindOne(ctx, &domain.Invoice{ContractID: c.ID, SegmentIndex: segment})
	if err != nil {
		return nil, err
	}

	inv := s.buildSessionInvoice(c, segment, logs)

	if existing != nil {
		// Refresh amounts; the extension record may have changed them.
		if existing.SendStatus == domain.SendStatusNotSent {
			final := inv.BaseAmount + inv.AutoAdjustment + existing.ManualAdjustment
			err = s.db.WithContext(ctx).Exec(
				`UPDATE invoices
				    SET base_amount = ?, auto_adjustment = ?, final_amount = ?,
				        planned_sessions = ?, updated_at = ?
				  WHERE id = ?`,
				inv.BaseAmount, inv.AutoAdjustment, final,
				inv.PlannedSessions, s.clock.Now().UTC(), existing.ID,
			).Error
			if err != nil {
				return nil, err
			}
		}
		return s.invoices.FindOne(ctx, &domain.Invoice{ID: existing.ID})
	}

	for i := 0; i < 24; i++ {
		taken, err := s.findByKey(ctx, s.db, c, inv.Year, inv.Month)
		if err != nil {
			return nil, err
		}
		if taken != nil {
			if taken.SegmentIndex >= segment {
				return taken, nil
			}
			next := billingDate(inv.Year, time.Month(inv.Month)+1, 1)
			inv.Year, inv.Month = next.Year(), int(next.Month())
			continue
		}
		return s.createInvoice(ctx, c, inv)
	}
	return nil, fmt.Errorf("no free billing month for contract %d segment %d", c.ID, segment)
}

func (s *service) latestPeriodInvoice(ctx context.Context, contractID snowflake.ID) (*domain.Invoice, error) {
	rows, err := s.invoices.Find(ctx, &domain.Invoice{ContractID: contractID})
	if err != nil {
		return nil, err
	}

	var latest *domain.Invoice
	for _, inv := range rows {
		if inv.PeriodEnd == nil {
			continue
		}
		if latest == nil || inv.PeriodEnd.After(*latest.PeriodEnd) {
			latest = inv
		}
	}
	return latest, nil
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	inv, err := s.invoices.FindOne(ctx, &domain.Invoice{ID: id})
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrInvoiceNotFound
	}
	if userID, ok := usercontext.UserIDFromContext(ctx); ok && inv.UserID != userID {
		return nil, domain.ErrInvoiceNotFound
	}
	return inv, nil
}

// Recalculate recomputes the attendance deduction from current unvoided logs
// and restores the amount invariant. Base and manual amounts are untouched.
// Sent invoices are frozen; only their send history may grow.
func (s *service) Recalculate(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	inv, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.SendStatus == domain.SendStatusSent {
		return nil, domain.ErrAlreadySent
	}

	c, err := s.contracts.FindOne(ctx, &contractdomain.Contract{ID: inv.ContractID})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, contractdomain.ErrContractNotFound
	}

	logs, err := s.contractLogs(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	auto, err := s.recomputeAuto(ctx, c, inv, logs)
	if err != nil {
		return nil, err
	}

	final := inv.BaseAmount + auto + inv.ManualAdjustment
	err = s.db.WithContext(ctx).Exec(
		`UPDATE invoices SET auto_adjustment = ?, final_amount = ?, updated_at = ? WHERE id = ?`,
		auto, final, s.clock.Now().UTC(), inv.ID,
	).Error
	if err != nil {
		return nil, err
	}

	inv.AutoAdjustment = auto
	inv.FinalAmount = final
	return inv, nil
}

func (s *service) recomputeAuto(ctx context.Context, c *contractdomain.Contract, inv *domain.Invoice, logs []*attendancedomain.AttendanceLog) (int64, error) {
	if c.IsSessionBased() {
		return autoAdjustment(c, inv.SegmentIndex, logs, nil, nil), nil
	}

	var current, previous *period
	if inv.PeriodStart != nil && inv.PeriodEnd != nil {
		current = &period{Start: dateOnly(*inv.PeriodStart), End: dateOnly(*inv.PeriodEnd)}

		// Prefer the stored adjacent window over recomputing it.
		prevInv, err := s.previousPeriodInvoice(ctx, c.ID, current.Start)
		if err != nil {
			return 0, err
		}
		if prevInv != nil && prevInv.PeriodStart != nil && prevInv.PeriodEnd != nil {
			previous = &period{Start: dateOnly(*prevInv.PeriodStart), End: dateOnly(*prevInv.PeriodEnd)}
		}
	}

	return autoAdjustment(c, inv.SegmentIndex, logs, current, previous), nil
}

func (s *service) previousPeriodInvoice(ctx context.Context, contractID snowflake.ID, before time.Time) (*domain.Invoice, error) {
	rows, err := s.invoices.Find(ctx, &domain.Invoice{ContractID: contractID})
	if err != nil {
		return nil, err
	}

	var prev *domain.Invoice
	for _, inv := range rows {
		if inv.PeriodEnd == nil || !inv.PeriodEnd.Before(before) {
			continue
		}
		if prev == nil || inv.PeriodEnd.After(*prev.PeriodEnd) {
			prev = inv
		}
	}
	return prev, nil
}

// RecalculateForContractDate refreshes whichever invoice covers the given
// session date, and the following window too since carry_over settles
// absences one window later.
func (s *service) RecalculateForContractDate(ctx context.Context, contractID snowflake.ID, occurredAt time.Time) error {
	c, err := s.contracts.FindOne(ctx, &contractdomain.Contract{ID: contractID})
	if err != nil {
		return err
	}
	if c == nil {
		return contractdomain.ErrContractNotFound
	}

	rows, err := s.invoices.Find(ctx, &domain.Invoice{ContractID: contractID})
	if err != nil {
		return err
	}

	day := dateOnly(occurredAt)
	for _, inv := range rows {
		if inv.SendStatus == domain.SendStatusSent {
			continue
		}
		if s.coversDate(c, inv, day) || s.followsDate(c, inv, day) {
			if _, err := s.Recalculate(ctx, inv.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *service) coversDate(c *contractdomain.Contract, inv *domain.Invoice, day time.Time) bool {
	if c.IsSessionBased() {
		from, to := segmentWindow(c, inv.SegmentIndex)
		return inWindow(day, from, to)
	}
	if inv.PeriodStart == nil || inv.PeriodEnd == nil {
		return false
	}
	return !day.Before(dateOnly(*inv.PeriodStart)) && !day.After(dateOnly(*inv.PeriodEnd))
}

// followsDate reports whether the invoice's window starts right after a
// window containing the date. carry_over settles such absences here.
func (s *service) followsDate(c *contractdomain.Contract, inv *domain.Invoice, day time.Time) bool {
	if c.AbsencePolicy != contractdomain.AbsencePolicyCarryOver || inv.PeriodStart == nil {
		return false
	}
	start := dateOnly(*inv.PeriodStart)
	return day.Before(start) && start.Sub(day) <= 32*24*time.Hour
}

// ApplyManualAdjustment sets the tutor-entered correction and its reason.
func (s *service) ApplyManualAdjustment(ctx context.Context, id snowflake.ID, amount int64, reason string) (*domain.Invoice, error) {
	inv, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	final := inv.BaseAmount + inv.AutoAdjustment + amount
	err = s.db.WithContext(ctx).Exec(
		`UPDATE invoices SET manual_adjustment = ?, adjustment_reason = ?, final_amount = ?, updated_at = ? WHERE id = ?`,
		amount, reason, final, s.clock.Now().UTC(), inv.ID,
	).Error
	if err != nil {
		return nil, err
	}

	inv.ManualAdjustment = amount
	inv.AdjustmentReason = reason
	inv.FinalAmount = final
	return inv, nil
}

// MoveToTodayBilling pulls an unsent invoice into today's billable bucket.
func (s *service) MoveToTodayBilling(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	inv, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.SendStatus == domain.SendStatusSent {
		return nil, domain.ErrAlreadySent
	}

	err = s.db.WithContext(ctx).Exec(
		`UPDATE invoices SET force_to_today_billing = TRUE, updated_at = ? WHERE id = ?`,
		s.clock.Now().UTC(), inv.ID,
	).Error
	if err != nil {
		return nil, err
	}

	inv.ForceToTodayBilling = true
	return inv, nil
}

// Send freezes the display window per invoice, appends to the send history
// and advances send status. Status never regresses; a failed channel leaves
// the invoice partial at worst.
func (s *service) Send(ctx context.Context, req domain.SendInvoicesRequest) ([]domain.SendResult, error) {
	if len(req.Channels) == 0 {
		return nil, domain.ErrNoChannels
	}

	results := make([]domain.SendResult, 0, len(req.InvoiceIDs))
	for _, id := range req.InvoiceIDs {
		inv, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		c, err := s.contracts.FindOne(ctx, &contractdomain.Contract{ID: inv.ContractID})
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, contractdomain.ErrContractNotFound
		}

		history := inv.SendHistory.Data()
		succeeded, failed := 0, 0
		now := s.clock.Now().UTC()
		for _, channel := range req.Channels {
			if !sendChannels[channel] {
				failed++
				continue
			}
			record := s.displayRecord(c, inv, channel, now)
			history = append(history, record)
			succeeded++
		}

		status := inv.SendStatus
		switch {
		case succeeded > 0 && failed == 0:
			status = domain.SendStatusSent
		case succeeded > 0 && status != domain.SendStatusSent:
			status = domain.SendStatusPartial
		}

		err = s.db.WithContext(ctx).Exec(
			`UPDATE invoices SET send_status = ?, send_history = ?, updated_at = ? WHERE id = ?`,
			status, datatypes.NewJSONType(history), now, inv.ID,
		).Error
		if err != nil {
			return nil, err
		}

		if status == domain.SendStatusSent {
			s.metrics.InvoicesSent.Inc()
			s.notifySent(ctx, c, inv)
		}

		results = append(results, domain.SendResult{InvoiceID: inv.ID, Status: status})
	}
	return results, nil
}

// displayRecord freezes what the recipient sees: lump-sum shows the contract
// span, session packs show the session count, the prepaid opener shows the
// service month instead of its marker window.
func (s *service) displayRecord(c *contractdomain.Contract, inv *domain.Invoice, channel string, now time.Time) domain.SendRecord {
	record := domain.SendRecord{
		Channel: channel,
		SentAt:  now,
		Amount:  inv.FinalAmount,
	}

	switch {
	case c.IsLumpSum() && c.EndedAt != nil:
		start := dateOnly(c.StartedAt)
		end := dateOnly(*c.EndedAt)
		record.DisplayStart = &start
		record.DisplayEnd = &end
	case c.IsSessionBased():
		record.Sessions = originalSegmentSessions(c, inv.SegmentIndex)
	case inv.PeriodStart != nil && inv.PeriodEnd != nil:
		start := dateOnly(*inv.PeriodStart)
		end := dateOnly(*inv.PeriodEnd)
		if c.BillingType == contractdomain.BillingTypePrepaid && start.Equal(end) {
			// Marker window. Show the month of service being paid for.
			start = dateOnly(c.StartedAt)
			end = addDays(billingDate(start.Year(), start.Month()+1, c.BillingDay), -1)
		}
		record.DisplayStart = &start
		record.DisplayEnd = &end
	}

	return record
}

func (s *service) notifySent(ctx context.Context, c *contractdomain.Contract, inv *domain.Invoice) {
	student, err := s.students.FindOne(ctx, &studentdomain.Student{ID: c.StudentID})
	name := ""
	if err == nil && student != nil {
		name = student.Name
	}

	// Secondary effect: the invoice stays sent even if this fails.
	err = s.notifier.Notify(ctx, c.UserID, notificationdomain.Event{
		Type:  notificationdomain.EventInvoiceSettlement,
		Title: "invoice sent",
		Body:  fmt.Sprintf("invoice %d-%02d for %s was sent", inv.Year, inv.Month, name),
		Metadata: map[string]any{
			"invoice_id": inv.ID.String(),
		},
	})
	if err != nil {
		s.log.Warn("settlement notification failed",
			zap.Int64("invoice_id", int64(inv.ID)),
			zap.Error(err),
		)
	}
}

// History groups the tutor's invoices by billing month, newest first.
func (s *service) History(ctx context.Context, limitMonths int) ([]domain.HistoryGroup, error) {
	userID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvoiceNotFound
	}

	rows, err := s.invoices.Find(ctx, &domain.Invoice{UserID: userID})
	if err != nil {
		return nil, err
	}

	buckets := map[int][]domain.Invoice{}
	for _, inv := range rows {
		key := inv.Year*100 + inv.Month
		buckets[key] = append(buckets[key], *inv)
	}

	keys := make([]int, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(keys)))

	if limitMonths > 0 && len(keys) > limitMonths {
		keys = keys[:limitMonths]
	}

	groups := make([]domain.HistoryGroup, 0, len(keys))
	for _, key := range keys {
		groups = append(groups, domain.HistoryGroup{
			Year:     key / 100,
			Month:    key % 100,
			Invoices: buckets[key],
		})
	}
	return groups, nil
}
