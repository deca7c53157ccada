package service

import (
	"time"

	attendancedomain "github.com/thelesson/lessonbill/internal/attendance/domain"
	contractdomain "github.com/thelesson/lessonbill/internal/contract/domain"
)

// originalSegmentSessions returns the session count the segment opened with,
// before any later extension. Segment 1 is the signed total minus everything
// added afterwards; segment k>=2 is what its extension added.
func originalSegmentSessions(c *contractdomain.Contract, segment int) int {
	policy := c.Policy.Data()
	added := 0
	for _, ext := range c.SessionsExtensions() {
		added += ext.AddedSessions
	}

	if segment <= 1 {
		return policy.TotalSessions - added
	}

	exts := c.SessionsExtensions()
	if segment-2 < len(exts) {
		return exts[segment-2].AddedSessions
	}
	return 0
}

// perSessionAmount resolves the money value of a single session.
//
// Precedence: the explicit per-session price, then the monthly amount spread
// over the segment's original session count, then over the signed total.
// Integer division throughout.
func perSessionAmount(c *contractdomain.Contract, segment int) int64 {
	policy := c.Policy.Data()
	if policy.PerSessionAmount > 0 {
		return policy.PerSessionAmount
	}

	if n := originalSegmentSessions(c, segment); n > 0 {
		return c.MonthlyAmount / int64(n)
	}

	if policy.TotalSessions > 0 {
		return c.MonthlyAmount / int64(policy.TotalSessions)
	}

	return 0
}

// segmentWindow bounds the attendance logs belonging to a 1-based segment.
// Boundaries come from extension timestamps: nil means unbounded on that
// side. The window is [from, to).
func segmentWindow(c *contractdomain.Contract, segment int) (from, to *time.Time) {
	exts := c.Extensions()
	if len(exts) == 0 {
		return nil, nil
	}

	if segment >= 2 {
		from = &exts[segment-2].ExtendedAt
	}
	if segment-1 < len(exts) {
		to = &exts[segment-1].ExtendedAt
	}
	return from, to
}

func inWindow(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && !t.Before(*to) {
		return false
	}
	return true
}

// segmentLogs filters unvoided logs down to the segment's window.
func segmentLogs(c *contractdomain.Contract, segment int, logs []*attendancedomain.AttendanceLog) []*attendancedomain.AttendanceLog {
	from, to := segmentWindow(c, segment)
	var out []*attendancedomain.AttendanceLog
	for _, log := range logs {
		if log.Voided {
			continue
		}
		if inWindow(log.OccurredAt, from, to) {
			out = append(out, log)
		}
	}
	return out
}

// consumedSessions counts every unvoided log: present, absent, substitute
// and vanish all burn one session from the target.
func consumedSessions(logs []*attendancedomain.AttendanceLog) int {
	n := 0
	for _, log := range logs {
		if !log.Voided {
			n++
		}
	}
	return n
}

func absencesBetween(logs []*attendancedomain.AttendanceLog, start, end time.Time) int {
	n := 0
	for _, log := range logs {
		if log.Voided || log.Status != attendancedomain.StatusAbsent {
			continue
		}
		d := dateOnly(log.OccurredAt)
		if !d.Before(start) && !d.After(end) {
			n++
		}
	}
	return n
}

func absences(logs []*attendancedomain.AttendanceLog) int {
	n := 0
	for _, log := range logs {
		if !log.Voided && log.Status == attendancedomain.StatusAbsent {
			n++
		}
	}
	return n
}

// autoAdjustment computes the absence deduction for one invoice window.
//
// deduct_next deducts absences inside the invoice's own window; carry_over
// deducts the previous window's absences instead; vanish never deducts.
// The result is always <= 0.
func autoAdjustment(c *contractdomain.Contract, segment int, logs []*attendancedomain.AttendanceLog, current *period, previous *period) int64 {
	per := perSessionAmount(c, segment)
	if per <= 0 {
		return 0
	}

	var count int
	switch c.AbsencePolicy {
	case contractdomain.AbsencePolicyDeductNext:
		if current != nil {
			count = absencesBetween(logs, current.Start, current.End)
		} else {
			count = absences(segmentLogs(c, segment, logs))
		}
	case contractdomain.AbsencePolicyCarryOver:
		if previous != nil {
			count = absencesBetween(logs, previous.Start, previous.End)
		} else if current == nil && segment > 1 {
			count = absences(segmentLogs(c, segment-1, logs))
		}
	case contractdomain.AbsencePolicyVanish:
		count = 0
	}

	return -int64(count) * per
}
