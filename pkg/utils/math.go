package utils

// math.go - small numeric helpers shared across the engine. Prices and
// exposure are integer cents/tenths-of-a-cent throughout the trading path
// (see internal/models), so these operate on integers rather than floats
// to avoid reintroducing rounding error at call sites.

// Abs returns the absolute value of x.
func Abs[T int | int64](x T) T {
	if x < 0 {
		return -x
	}
	return x
}

// Min returns the smaller of a and b.
func Min[T int | int64](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max[T int | int64](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Clamp restricts value to the closed interval [lo, hi].
func Clamp[T int | int64](value, lo, hi T) T {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// CentsToTenths converts a whole-cent price to tenths-of-a-cent, the unit
// market.State stores mid prices in.
func CentsToTenths(cents int) int64 {
	return int64(cents) * 10
}

// TenthsToCents truncates a tenths-of-a-cent value down to whole cents,
// the same conversion the trader applies to a derived mid before using it
// in a limit price.
func TenthsToCents(tenths int64) int {
	return int(tenths / 10)
}
