package liquidation

import "time"

// StatutoryWindowDays is the fixed liquidation window measured from the
// record's creation date.
const StatutoryWindowDays = 30

// Aging is the derived pair recomputed on every read. RemainingDays may be
// negative, representing overdue days. RemainingDays + DaysElapsed is always
// exactly the statutory window.
type Aging struct {
	DaysElapsed   int
	RemainingDays int
}

// ComputeAging derives whole elapsed days between anchor and now. Both inputs
// are normalized to UTC so backend and client agree on day boundaries; the
// function is pure and total.
func ComputeAging(anchor, now time.Time) Aging {
	elapsed := int(now.UTC().Sub(anchor.UTC()) / (24 * time.Hour))
	if elapsed < 0 {
		elapsed = 0
	}
	return Aging{
		DaysElapsed:   elapsed,
		RemainingDays: StatutoryWindowDays - elapsed,
	}
}

// Tier is the urgency classification driving reminders and report badges.
type Tier string

const (
	TierNormal   Tier = "NORMAL"
	TierWarning  Tier = "WARNING"
	TierCritical Tier = "CRITICAL"
	TierOverdue  Tier = "OVERDUE"
)

// Classify maps elapsed days onto the urgency tiers: attention is needed from
// day 15, the last five days of the window are critical, and day 30 onward is
// demand-letter territory.
func Classify(daysElapsed int) Tier {
	switch {
	case daysElapsed < 15:
		return TierNormal
	case daysElapsed <= 24:
		return TierWarning
	case daysElapsed <= 29:
		return TierCritical
	default:
		return TierOverdue
	}
}

// DemandLetterReady flags the one-day window used for letter generation.
// Exactly day 29: the report's "Demand Letter Ready" count depends on this
// being neither 28 nor 30.
func DemandLetterReady(daysElapsed int) bool {
	return daysElapsed == StatutoryWindowDays-1
}

// Bucket is the coarse aging range used by the unliquidated-schools report.
type Bucket string

const (
	Bucket0To30  Bucket = "0-30 days"
	Bucket31To60 Bucket = "31-60 days"
	Bucket61To90 Bucket = "61-90 days"
	Bucket91Plus Bucket = "91+ days"
)

// BucketFor assigns elapsed days to an aging-report bucket.
func BucketFor(daysElapsed int) Bucket {
	switch {
	case daysElapsed <= 30:
		return Bucket0To30
	case daysElapsed <= 60:
		return Bucket31To60
	case daysElapsed <= 90:
		return Bucket61To90
	default:
		return Bucket91Plus
	}
}
