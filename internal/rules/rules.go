package rules

import (
	"math"

	"robotarena/server/internal/geometry"
)

const (
	// Acceleration is the velocity gained per turn while speeding up.
	Acceleration = 1.0
	// Deceleration is the velocity shed per turn while braking.
	Deceleration = 2.0
	// MaxVelocity bounds the absolute robot speed in units per turn.
	MaxVelocity = 8.0
	// RadarScanRadius is the reach of the radar sweep.
	RadarScanRadius = 1200.0

	// MinBulletPower is the weakest bullet that can be fired.
	MinBulletPower = 0.1
	// MaxBulletPower is the strongest bullet that can be fired.
	MaxBulletPower = 3.0

	// MaxTurnRate is the body turn rate at rest, in degrees per turn.
	MaxTurnRate = 10.0
	// GunTurnRate is the turret turn rate, in degrees per turn.
	GunTurnRate = 20.0
	// RadarTurnRate is the radar turn rate, in degrees per turn.
	RadarTurnRate = 45.0

	// RobotHitDamage is the energy both robots lose when they collide.
	RobotHitDamage = 0.6
	// RobotHitBonus is the score the at-fault robot earns for ramming.
	RobotHitBonus = 1.2

	// GunCoolingRate is the gun heat removed every turn.
	GunCoolingRate = 0.1
	// InactivityZapThreshold is the number of quiet turns before energy is zapped.
	InactivityZapThreshold = 200
	// InactivityZap is the energy removed per turn once the threshold is exceeded.
	InactivityZap = 0.1
	// StartingEnergy is the energy every robot begins a round with.
	StartingEnergy = 100.0

	// RobotWidth is the bounding box width of a robot.
	RobotWidth = 36.0
	// RobotHeight is the bounding box height of a robot.
	RobotHeight = 36.0

	// BulletRadius is the wall collision radius of a bullet.
	BulletRadius = 3.0
	// ExplosionLength is the number of frames an exploding bullet stays visible.
	ExplosionLength = 17

	// DefaultWidth is the arena width used when none is configured.
	DefaultWidth = 800.0
	// DefaultHeight is the arena height used when none is configured.
	DefaultHeight = 600.0
)

var (
	// MaxTurnRateRadians is MaxTurnRate expressed in radians.
	MaxTurnRateRadians = geometry.Radians(MaxTurnRate)
	// GunTurnRateRadians is GunTurnRate expressed in radians.
	GunTurnRateRadians = geometry.Radians(GunTurnRate)
	// RadarTurnRateRadians is RadarTurnRate expressed in radians.
	RadarTurnRateRadians = geometry.Radians(RadarTurnRate)
)

// ClampPower bounds a requested bullet power to the legal range.
func ClampPower(power float64) float64 {
	return math.Min(math.Max(power, MinBulletPower), MaxBulletPower)
}

// TurnRate returns the body turn rate in degrees for the given velocity.
func TurnRate(velocity float64) float64 {
	return MaxTurnRate - 0.75*math.Abs(velocity)
}

// TurnRateRadians returns the body turn rate in radians for the given velocity.
func TurnRateRadians(velocity float64) float64 {
	return geometry.Radians(TurnRate(velocity))
}

// WallHitDamage returns the energy lost when hitting a wall at the given velocity.
func WallHitDamage(velocity float64) float64 {
	return math.Max(math.Abs(velocity)/2-1, 0)
}

// BulletDamage returns the damage dealt by a bullet of the given power.
func BulletDamage(power float64) float64 {
	damage := 4 * power
	if power > 1 {
		damage += 2 * (power - 1)
	}
	return damage
}

// BulletHitBonus returns the energy returned to the owner of a bullet that hits.
func BulletHitBonus(power float64) float64 {
	return 3 * power
}

// BulletSpeed returns the travel speed of a bullet of the given power.
func BulletSpeed(power float64) float64 {
	return 20 - 3*ClampPower(power)
}

// GunHeat returns the heat generated by firing a bullet of the given power.
func GunHeat(power float64) float64 {
	return 1 + ClampPower(power)/5
}
