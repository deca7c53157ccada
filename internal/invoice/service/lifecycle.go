package service

import (
	"context"
	"sort"
	"time"

	attendancedomain "github.com/thelesson/lessonbill/internal/attendance/domain"
	contractdomain "github.com/thelesson/lessonbill/internal/contract/domain"
	"github.com/thelesson/lessonbill/internal/invoice/domain"
	studentdomain "github.com/thelesson/lessonbill/internal/student/domain"
	"github.com/thelesson/lessonbill/internal/usercontext"
	"go.uber.org/zap"
)

// Sections runs the repair scan over the tutor's contracts, then classifies
// every invoice into its dashboard bucket. The scan is idempotent, so a
// request raced by another listing converges on the same rows.
func (s *service) Sections(ctx context.Context) (domain.SectionsResponse, error) {
	userID, ok := usercontext.UserIDFromContext(ctx)
	if !ok {
		return domain.SectionsResponse{}, domain.ErrInvoiceNotFound
	}

	s.metrics.RepairScans.Inc()

	contracts, err := s.contracts.Find(ctx, &contractdomain.Contract{UserID: userID})
	if err != nil {
		return domain.SectionsResponse{}, err
	}

	byContract := make(map[int64]*contractdomain.Contract, len(contracts))
	logsByContract := make(map[int64][]*attendancedomain.AttendanceLog, len(contracts))
	for _, c := range contracts {
		byContract[int64(c.ID)] = c

		logs, err := s.contractLogs(ctx, c.ID)
		if err != nil {
			return domain.SectionsResponse{}, err
		}
		logsByContract[int64(c.ID)] = logs

		// Repair failures degrade the listing, they do not break it.
		if err := s.ensureContractInvoices(ctx, c, logs); err != nil {
			s.log.Warn("invoice repair failed",
				zap.Int64("contract_id", int64(c.ID)),
				zap.Error(err),
			)
		}
	}

	students, err := s.students.Find(ctx, &studentdomain.Student{UserID: userID})
	if err != nil {
		return domain.SectionsResponse{}, err
	}
	names := make(map[int64]string, len(students))
	for _, st := range students {
		names[int64(st.ID)] = st.Name
	}

	invoices, err := s.invoices.Find(ctx, &domain.Invoice{UserID: userID})
	if err != nil {
		return domain.SectionsResponse{}, err
	}

	today := s.today()
	var resp domain.SectionsResponse
	var sent []domain.SectionedInvoice

	for _, inv := range invoices {
		c := byContract[int64(inv.ContractID)]
		if c == nil {
			continue
		}

		row := domain.SectionedInvoice{
			Invoice:     *inv,
			StudentName: names[int64(inv.StudentID)],
			BillingType: c.BillingType,
			Schedule:    c.PaymentSchedule,
		}

		switch classify(c, inv, logsByContract[int64(c.ID)], today) {
		case domain.SectionReadyToBill:
			resp.ReadyToBill = append(resp.ReadyToBill, row)
		case domain.SectionInProgress:
			resp.InProgress = append(resp.InProgress, row)
		case domain.SectionSent:
			sent = append(sent, row)
		}
	}

	resp.Sent = groupSent(sent)
	return resp, nil
}

// groupSent buckets sent invoices by billing month. Rows inside a group and
// the groups themselves are ordered by the latest delivery, newest first.
func groupSent(rows []domain.SectionedInvoice) []domain.SentGroup {
	buckets := map[int][]domain.SectionedInvoice{}
	for _, row := range rows {
		key := row.Invoice.Year*100 + row.Invoice.Month
		buckets[key] = append(buckets[key], row)
	}

	lastSent := func(row domain.SectionedInvoice) time.Time {
		if at := row.Invoice.LastSentAt(); at != nil {
			return *at
		}
		return time.Time{}
	}

	groups := make([]domain.SentGroup, 0, len(buckets))
	for key, members := range buckets {
		sort.Slice(members, func(i, j int) bool {
			return lastSent(members[i]).After(lastSent(members[j]))
		})
		groups = append(groups, domain.SentGroup{
			Year:     key / 100,
			Month:    key % 100,
			Invoices: members,
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		return lastSent(groups[i].Invoices[0]).After(lastSent(groups[j].Invoices[0]))
	})
	return groups
}

// ensureContractInvoices is the lazy repair scan for one contract: it
// backfills the opening invoice, extends monthly chains that have fallen
// due, fixes drifted lump-sum rows and creates owed extension settlements.
func (s *service) ensureContractInvoices(ctx context.Context, c *contractdomain.Contract, logs []*attendancedomain.AttendanceLog) error {
	if c.Status != contractdomain.ContractStatusSent && c.Status != contractdomain.ContractStatusSigned {
		return nil
	}

	rows, err := s.invoices.Find(ctx, &domain.Invoice{ContractID: c.ID})
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		if _, err := s.CreateFirstInvoice(ctx, c); err != nil {
			return err
		}
		s.metrics.InvoicesRepaired.Inc()
		return nil
	}

	switch {
	case c.IsLumpSum():
		return s.repairLumpSum(ctx, c, rows, logs)
	case c.IsSessionBased():
		return s.repairSessionChain(ctx, c, logs)
	default:
		if err := s.repairFirstMonthly(ctx, c, rows, logs); err != nil {
			return err
		}
		return s.extendMonthlyChain(ctx, c)
	}
}

// repairLumpSum realigns the single whole-contract invoice when the contract
// dates moved under it. Sent rows are frozen.
func (s *service) repairLumpSum(ctx context.Context, c *contractdomain.Contract, rows []*domain.Invoice, logs []*attendancedomain.AttendanceLog) error {
	expected := s.buildLumpSumInvoice(c, logs)
	inv := rows[0]
	if inv.SendStatus == domain.SendStatusSent {
		return nil
	}

	keyDrift := inv.Year != expected.Year || inv.Month != expected.Month
	periodDrift := inv.PeriodStart == nil || inv.PeriodEnd == nil ||
		!dateOnly(*inv.PeriodStart).Equal(*expected.PeriodStart) ||
		!dateOnly(*inv.PeriodEnd).Equal(*expected.PeriodEnd)
	if !keyDrift && !periodDrift {
		return nil
	}

	err := s.db.WithContext(ctx).Exec(
		`UPDATE invoices
		    SET year = ?, month = ?, period_start = ?, period_end = ?, updated_at = ?
		  WHERE id = ?`,
		expected.Year, expected.Month, expected.PeriodStart, expected.PeriodEnd,
		s.clock.Now().UTC(), inv.ID,
	).Error
	if err != nil {
		return err
	}
	s.metrics.InvoicesRepaired.Inc()
	return nil
}

// repairSessionChain creates the settlement a finished extension is owed.
func (s *service) repairSessionChain(ctx context.Context, c *contractdomain.Contract, logs []*attendancedomain.AttendanceLog) error {
	segment := c.CurrentSegment()
	if segment < 2 {
		return nil
	}

	existing, err := s.invoices.FindOne(ctx, &domain.Invoice{ContractID: c.ID, SegmentIndex: segment})
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	if !s.segmentExhausted(c, segment-1, logs) {
		return nil
	}

	if _, err := s.createSessionSegment(ctx, c, segment, logs); err != nil {
		return err
	}
	s.metrics.InvoicesRepaired.Inc()
	return nil
}

// SegmentExhausted reports whether every planned session of the segment has
// been consumed by unvoided attendance.
func (s *service) SegmentExhausted(ctx context.Context, c *contractdomain.Contract, segment int) (bool, error) {
	logs, err := s.contractLogs(ctx, c.ID)
	if err != nil {
		return false, err
	}
	return s.segmentExhausted(c, segment, logs), nil
}

// segmentExhausted reports whether every planned session of the segment has
// been consumed.
func (s *service) segmentExhausted(c *contractdomain.Contract, segment int, logs []*attendancedomain.AttendanceLog) bool {
	target := originalSegmentSessions(c, segment)
	if target <= 0 {
		return false
	}
	return consumedSessions(segmentLogs(c, segment, logs)) >= target
}

// repairFirstMonthly recreates a postpaid opening invoice that landed on the
// wrong billing month. Happens when the contract dates were edited after the
// invoice existed.
func (s *service) repairFirstMonthly(ctx context.Context, c *contractdomain.Contract, rows []*domain.Invoice, logs []*attendancedomain.AttendanceLog) error {
	if c.BillingType != contractdomain.BillingTypePostpaid {
		return nil
	}

	var first *domain.Invoice
	for _, inv := range rows {
		if inv.SegmentIndex == 1 {
			first = inv
			break
		}
	}
	if first == nil || first.SendStatus == domain.SendStatusSent {
		return nil
	}

	expected := s.buildMonthlyInvoice(c, 1, nil, logs)
	if first.Year == expected.Year && first.Month == expected.Month {
		return nil
	}

	if err := s.invoices.Delete(ctx, first.ID.String()); err != nil {
		return err
	}
	if _, err := s.createInvoice(ctx, c, expected); err != nil {
		return err
	}
	s.metrics.InvoicesRepaired.Inc()
	return nil
}

// extendMonthlyChain appends the next calendar window once the previous one
// has fully elapsed, stopping at the contract end.
func (s *service) extendMonthlyChain(ctx context.Context, c *contractdomain.Contract) error {
	if !multiMonth(c) {
		return nil
	}

	today := s.today()
	contractEnd := dateOnly(*c.EndedAt)

	for i := 0; i < 48; i++ {
		last, err := s.latestPeriodInvoice(ctx, c.ID)
		if err != nil {
			return err
		}
		if last == nil || last.PeriodEnd == nil {
			return nil
		}

		lastEnd := dateOnly(*last.PeriodEnd)
		if !lastEnd.Before(contractEnd) {
			return nil
		}
		if today.Before(addDays(lastEnd, 1)) {
			return nil
		}

		if _, err := s.CreateSegmentInvoice(ctx, c, last.SegmentIndex+1); err != nil {
			return err
		}
		s.metrics.InvoicesRepaired.Inc()
	}
	return nil
}
