package workflow

import "cablecheck/internal/domain"

const (
	failBelow = 0.85
	warnUpTo  = 1.10
	epsilon   = 1e-9
)

// Tolerance grades a measured value against its nominal.
//
//	v <  0.85n          FAIL
//	0.85n <= v < n      WARN
//	v == n              PASS
//	n < v <= 1.10n      WARN
//	v >  1.10n          PASS
//
// A non-positive nominal cannot be graded and yields WARN.
func Tolerance(v, n float64) domain.Status {
	if n <= 0 {
		return domain.StatusWarn
	}
	ratio := v / n
	switch {
	case ratio < failBelow-epsilon:
		return domain.StatusFail
	case ratio < 1-epsilon:
		return domain.StatusWarn
	case ratio <= 1+epsilon:
		return domain.StatusPass
	case ratio <= warnUpTo+epsilon:
		return domain.StatusWarn
	default:
		return domain.StatusPass
	}
}
