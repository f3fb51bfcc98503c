// Package catchup computes forward schedule advancement in closed form.
package catchup

import (
	"math"
	"time"

	apperrors "github.com/remitwise/obligations/internal/platform/errors"
)

// Advance moves nextDue past now in whole multiples of interval and
// reports how many windows beyond the first were skipped. nextDue must
// be at or before now and interval must be positive; the result always
// satisfies result > now and result = nextDue + k*interval for some
// k >= 1. Advancement is computed directly from the elapsed time, never
// by stepping, so a caller arriving years late pays the same cost as a
// punctual one.
func Advance(nextDue time.Time, interval time.Duration, now time.Time) (time.Time, uint32, error) {
	if interval <= 0 {
		return time.Time{}, 0, apperrors.New(apperrors.CodeInvalidTimestamp, "interval must be positive")
	}
	if now.Before(nextDue) {
		return time.Time{}, 0, apperrors.New(apperrors.CodeInvalidTimestamp, "schedule is not due yet")
	}

	elapsed := now.Sub(nextDue)
	steps := int64(elapsed/interval) + 1
	missed := steps - 1

	if missed > math.MaxUint32 {
		return time.Time{}, 0, apperrors.New(apperrors.CodeArithmeticOverflow, "missed cycle count overflows")
	}
	if steps > math.MaxInt64/int64(interval) {
		return time.Time{}, 0, apperrors.New(apperrors.CodeArithmeticOverflow, "schedule advancement overflows")
	}

	advanced := nextDue.Add(time.Duration(steps) * interval)
	return advanced, uint32(missed), nil
}
