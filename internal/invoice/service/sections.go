package service

import (
	"time"

	attendancedomain "github.com/thelesson/lessonbill/internal/attendance/domain"
	contractdomain "github.com/thelesson/lessonbill/internal/contract/domain"
	"github.com/thelesson/lessonbill/internal/invoice/domain"
)

// classify buckets one invoice for the dashboard. First match wins; sent and
// force-to-today short-circuit everything else.
func classify(c *contractdomain.Contract, inv *domain.Invoice, logs []*attendancedomain.AttendanceLog, today time.Time) domain.Section {
	now := dateOnly(today)

	if inv.SendStatus == domain.SendStatusSent {
		return domain.SectionSent
	}
	if inv.ForceToTodayBilling {
		return domain.SectionReadyToBill
	}

	if c.IsLumpSum() {
		// A lump sum invoice only surfaces once its contract has started.
		if now.Before(dateOnly(c.StartedAt)) {
			return domain.SectionHidden
		}
		if c.BillingType == contractdomain.BillingTypePrepaid {
			return domain.SectionReadyToBill
		}
		if c.EndedAt != nil && now.After(dateOnly(*c.EndedAt)) {
			return domain.SectionReadyToBill
		}
		return domain.SectionInProgress
	}

	if c.IsSessionBased() {
		target := 0
		if inv.PlannedSessions != nil {
			target = *inv.PlannedSessions
		}
		consumed := consumedSessions(segmentLogs(c, inv.SegmentIndex, logs))
		if target > 0 && consumed >= target {
			return domain.SectionReadyToBill
		}
		if c.BillingType == contractdomain.BillingTypePrepaid {
			// Prepaid session packs bill up front.
			return domain.SectionReadyToBill
		}
		return domain.SectionInProgress
	}

	if c.BillingType == contractdomain.BillingTypePostpaid {
		if inv.PeriodStart != nil && now.Before(dateOnly(*inv.PeriodStart)) {
			return domain.SectionHidden
		}
		if inv.PeriodEnd != nil && now.After(dateOnly(*inv.PeriodEnd)) {
			return domain.SectionReadyToBill
		}
		return domain.SectionInProgress
	}

	// Monthly prepaid. The opening segment's marker window predates the
	// start date, so it becomes billable the day the contract starts.
	if inv.SegmentIndex <= 1 {
		if !now.Before(dateOnly(c.StartedAt)) {
			return domain.SectionReadyToBill
		}
		return domain.SectionInProgress
	}

	if inv.PeriodEnd != nil && now.After(dateOnly(*inv.PeriodEnd)) {
		return domain.SectionReadyToBill
	}
	return domain.SectionInProgress
}
