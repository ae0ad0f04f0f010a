package scheduler

import "time"

// basePriority is the step function from spec.md §4.6: higher
// favorite counts get a higher floor priority before the staleness
// bonus is added.
func basePriority(favCount int) uint8 {
	switch {
	case favCount == 0:
		return 1
	case favCount <= 5:
		return 2
	case favCount <= 20:
		return 3
	case favCount <= 50:
		return 4
	case favCount <= 100:
		return 5
	case favCount <= 500:
		return 6
	default:
		return 7
	}
}

// jobPriority combines base(fav_count) with min(10, hours_stale),
// saturating to u8, per spec.md §4.6 step 5.
func jobPriority(favCount int, updatedAt time.Time, now time.Time) uint8 {
	hoursStale := int(now.Sub(updatedAt).Hours())
	if hoursStale < 0 {
		hoursStale = 0
	}
	if hoursStale > 10 {
		hoursStale = 10
	}
	sum := int(basePriority(favCount)) + hoursStale
	if sum > 255 {
		return 255
	}
	return uint8(sum)
}
