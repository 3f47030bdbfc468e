package geometry

import "math"

const (
	// TwoPi is a full revolution in radians.
	TwoPi = 2 * math.Pi
	// HalfPi is a quarter revolution in radians.
	HalfPi = math.Pi / 2
	// NearDelta is the tolerance used by IsNear.
	NearDelta = 1e-5

	toRadians = math.Pi / 180
	toDegrees = 180 / math.Pi
)

// NormalAbsolute wraps an angle in radians into [0, 2π).
func NormalAbsolute(angle float64) float64 {
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return 0
	}
	//1.- Trim whole revolutions first so in-range values come back untouched.
	trimmed := math.Mod(angle, TwoPi)
	if trimmed < 0 {
		trimmed += TwoPi
	}
	//2.- Tiny negative remainders can round up to exactly 2π.
	if trimmed >= TwoPi {
		trimmed = 0
	}
	return trimmed
}

// NormalRelative wraps an angle in radians into [-π, π).
func NormalRelative(angle float64) float64 {
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return 0
	}
	trimmed := math.Mod(angle, TwoPi)
	switch {
	case trimmed >= math.Pi:
		trimmed -= TwoPi
	case trimmed < -math.Pi:
		trimmed += TwoPi
	}
	if trimmed >= math.Pi {
		trimmed -= TwoPi
	}
	return trimmed
}

// IsNear reports whether two values differ by less than NearDelta.
func IsNear(a, b float64) bool {
	return math.Abs(a-b) < NearDelta
}

// Radians converts degrees to radians.
func Radians(degrees float64) float64 { return degrees * toRadians }

// Degrees converts radians to degrees.
func Degrees(radians float64) float64 { return radians * toDegrees }

// Signum returns -1, 0 or 1 following the sign of value.
func Signum(value float64) int {
	switch {
	case value > 0:
		return 1
	case value < 0:
		return -1
	default:
		return 0
	}
}

// Bearing returns the absolute heading from one point to another, 0 pointing along +Y.
func Bearing(from, to Point) float64 {
	return math.Atan2(to.X-from.X, to.Y-from.Y)
}
