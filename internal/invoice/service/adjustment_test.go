package service

import (
	"testing"
	"time"

	attendancedomain "github.com/thelesson/lessonbill/internal/attendance/domain"
	contractdomain "github.com/thelesson/lessonbill/internal/contract/domain"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func sessionContract(policy contractdomain.PolicySnapshot, absence contractdomain.AbsencePolicy, monthly int64) *contractdomain.Contract {
	return &contractdomain.Contract{
		BillingType:     contractdomain.BillingTypePostpaid,
		PaymentSchedule: contractdomain.PaymentScheduleMonthly,
		AbsencePolicy:   absence,
		BillingDay:      1,
		MonthlyAmount:   monthly,
		StartedAt:       date(2025, time.January, 1),
		Policy:          datatypes.NewJSONType(policy),
	}
}

func log(status attendancedomain.AttendanceStatus, occurredAt time.Time) *attendancedomain.AttendanceLog {
	return &attendancedomain.AttendanceLog{Status: status, OccurredAt: occurredAt}
}

func TestOriginalSegmentSessions(t *testing.T) {
	extendedAt := date(2025, time.February, 1)
	c := sessionContract(contractdomain.PolicySnapshot{
		TotalSessions: 12,
		Extensions: []contractdomain.Extension{
			{Type: contractdomain.ExtensionTypeSessions, AddedSessions: 4, ExtendedAt: extendedAt},
		},
	}, contractdomain.AbsencePolicyVanish, 0)

	assert.Equal(t, 8, originalSegmentSessions(c, 1))
	assert.Equal(t, 4, originalSegmentSessions(c, 2))
	assert.Equal(t, 0, originalSegmentSessions(c, 3))
}

func TestPerSessionAmount(t *testing.T) {
	t.Run("explicit per-session price wins", func(t *testing.T) {
		c := sessionContract(contractdomain.PolicySnapshot{
			TotalSessions:    8,
			PerSessionAmount: 30000,
		}, contractdomain.AbsencePolicyVanish, 160000)

		assert.Equal(t, int64(30000), perSessionAmount(c, 1))
	})

	t.Run("falls back to monthly over segment sessions", func(t *testing.T) {
		c := sessionContract(contractdomain.PolicySnapshot{
			TotalSessions: 8,
		}, contractdomain.AbsencePolicyVanish, 160000)

		assert.Equal(t, int64(20000), perSessionAmount(c, 1))
	})

	t.Run("integer division truncates", func(t *testing.T) {
		c := sessionContract(contractdomain.PolicySnapshot{
			TotalSessions: 3,
		}, contractdomain.AbsencePolicyVanish, 100000)

		assert.Equal(t, int64(33333), perSessionAmount(c, 1))
	})
}

func TestSegmentLogs(t *testing.T) {
	extendedAt := date(2025, time.February, 10)
	c := sessionContract(contractdomain.PolicySnapshot{
		TotalSessions: 12,
		Extensions: []contractdomain.Extension{
			{Type: contractdomain.ExtensionTypeSessions, AddedSessions: 4, ExtendedAt: extendedAt},
		},
	}, contractdomain.AbsencePolicyVanish, 0)

	logs := []*attendancedomain.AttendanceLog{
		log(attendancedomain.StatusPresent, date(2025, time.January, 5)),
		log(attendancedomain.StatusAbsent, date(2025, time.February, 5)),
		log(attendancedomain.StatusPresent, date(2025, time.February, 15)),
	}

	first := segmentLogs(c, 1, logs)
	assert.Len(t, first, 2)

	second := segmentLogs(c, 2, logs)
	assert.Len(t, second, 1)
	assert.Equal(t, date(2025, time.February, 15), second[0].OccurredAt)
}

func TestConsumedSessions(t *testing.T) {
	voided := log(attendancedomain.StatusPresent, date(2025, time.January, 6))
	voided.Voided = true

	logs := []*attendancedomain.AttendanceLog{
		log(attendancedomain.StatusPresent, date(2025, time.January, 5)),
		log(attendancedomain.StatusAbsent, date(2025, time.January, 7)),
		log(attendancedomain.StatusSubstitute, date(2025, time.January, 8)),
		log(attendancedomain.StatusVanish, date(2025, time.January, 9)),
		voided,
	}

	// Every unvoided log burns a session regardless of status.
	assert.Equal(t, 4, consumedSessions(logs))
}

func TestAutoAdjustment(t *testing.T) {
	policy := contractdomain.PolicySnapshot{PerSessionAmount: 25000, TotalSessions: 8}
	window := period{Start: date(2025, time.January, 1), End: date(2025, time.January, 31)}
	prev := period{Start: date(2024, time.December, 1), End: date(2024, time.December, 31)}

	logs := []*attendancedomain.AttendanceLog{
		log(attendancedomain.StatusAbsent, date(2024, time.December, 20)),
		log(attendancedomain.StatusAbsent, date(2025, time.January, 10)),
		log(attendancedomain.StatusPresent, date(2025, time.January, 12)),
	}

	t.Run("deduct_next deducts current window absences", func(t *testing.T) {
		c := sessionContract(policy, contractdomain.AbsencePolicyDeductNext, 0)
		assert.Equal(t, int64(-25000), autoAdjustment(c, 1, logs, &window, &prev))
	})

	t.Run("carry_over deducts previous window absences", func(t *testing.T) {
		c := sessionContract(policy, contractdomain.AbsencePolicyCarryOver, 0)
		assert.Equal(t, int64(-25000), autoAdjustment(c, 1, logs, &window, &prev))
	})

	t.Run("carry_over without a previous window deducts nothing", func(t *testing.T) {
		c := sessionContract(policy, contractdomain.AbsencePolicyCarryOver, 0)
		assert.Equal(t, int64(0), autoAdjustment(c, 1, logs, &window, nil))
	})

	t.Run("vanish never deducts", func(t *testing.T) {
		c := sessionContract(policy, contractdomain.AbsencePolicyVanish, 0)
		assert.Equal(t, int64(0), autoAdjustment(c, 1, logs, &window, &prev))
	})

	t.Run("voided absences do not deduct", func(t *testing.T) {
		voided := log(attendancedomain.StatusAbsent, date(2025, time.January, 10))
		voided.Voided = true

		c := sessionContract(policy, contractdomain.AbsencePolicyDeductNext, 0)
		assert.Equal(t, int64(0), autoAdjustment(c, 1, []*attendancedomain.AttendanceLog{voided}, &window, nil))
	})

	t.Run("session segment uses its own window when there is no period", func(t *testing.T) {
		extendedAt := date(2025, time.January, 15)
		c := sessionContract(contractdomain.PolicySnapshot{
			PerSessionAmount: 25000,
			TotalSessions:    12,
			Extensions: []contractdomain.Extension{
				{Type: contractdomain.ExtensionTypeSessions, AddedSessions: 4, ExtendedAt: extendedAt},
			},
		}, contractdomain.AbsencePolicyDeductNext, 0)

		// One absence before the extension, one after.
		sessionLogs := []*attendancedomain.AttendanceLog{
			log(attendancedomain.StatusAbsent, date(2025, time.January, 10)),
			log(attendancedomain.StatusAbsent, date(2025, time.January, 20)),
		}

		assert.Equal(t, int64(-25000), autoAdjustment(c, 1, sessionLogs, nil, nil))
		assert.Equal(t, int64(-25000), autoAdjustment(c, 2, sessionLogs, nil, nil))
	})
}
