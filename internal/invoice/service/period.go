package service

import (
	"time"

	contractdomain "github.com/thelesson/lessonbill/internal/contract/domain"
)

// Billing windows are computed in UTC on midnight-normalized dates. The
// calculator is pure: the same contract and segment always produce the same
// window and key.

type period struct {
	Start time.Time
	End   time.Time
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func addDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// billingDate resolves the billing day inside the given month. Out-of-range
// days roll forward the way time.Date normalizes (day 31 in February lands
// in early March).
func billingDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// firstPeriod computes segment 1 of a monthly contract.
//
// Postpaid runs from the start date to the day before the next month's
// billing day. Prepaid bills ahead of service: its opening window is the
// single day before the start date.
func firstPeriod(c *contractdomain.Contract) period {
	start := dateOnly(c.StartedAt)

	if c.BillingType == contractdomain.BillingTypePrepaid {
		marker := addDays(start, -1)
		return period{Start: marker, End: marker}
	}

	next := billingDate(start.Year(), start.Month()+1, c.BillingDay)
	return period{Start: start, End: clipEnd(c, addDays(next, -1))}
}

// nextPeriod continues from a previous window: the day after its end through
// the day before the following month's billing day, clipped to contract end.
func nextPeriod(c *contractdomain.Contract, prevEnd time.Time) period {
	start := addDays(dateOnly(prevEnd), 1)
	next := billingDate(start.Year(), start.Month()+1, c.BillingDay)
	return period{Start: start, End: clipEnd(c, addDays(next, -1))}
}

// lumpSumPeriod spans the whole contract.
func lumpSumPeriod(c *contractdomain.Contract) period {
	end := dateOnly(c.StartedAt)
	if c.EndedAt != nil {
		end = dateOnly(*c.EndedAt)
	}
	return period{Start: dateOnly(c.StartedAt), End: end}
}

func clipEnd(c *contractdomain.Contract, end time.Time) time.Time {
	if c.EndedAt != nil {
		if contractEnd := dateOnly(*c.EndedAt); end.After(contractEnd) {
			return contractEnd
		}
	}
	return end
}

// invoiceKey derives the (year, month) billing key for a monthly or lump-sum
// window. Postpaid invoices are keyed by their due date, the day after the
// window closes. Prepaid segment 1 is keyed by the month of "today" since
// billing precedes service; later prepaid segments key off the due date too.
func invoiceKey(c *contractdomain.Contract, p period, segment int, today time.Time) (int, int) {
	if c.BillingType == contractdomain.BillingTypePrepaid {
		if c.IsLumpSum() {
			start := dateOnly(c.StartedAt)
			return start.Year(), int(start.Month())
		}
		if segment == 1 {
			now := dateOnly(today)
			return now.Year(), int(now.Month())
		}
	}

	due := addDays(p.End, 1)
	return due.Year(), int(due.Month())
}

// multiMonth reports whether a dated contract spans more than one billing
// cycle and therefore accrues follow-up monthly invoices.
func multiMonth(c *contractdomain.Contract) bool {
	if c.EndedAt == nil {
		return false
	}
	return dateOnly(*c.EndedAt).Sub(dateOnly(c.StartedAt)) >= 32*24*time.Hour
}
