package arena

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"robotarena/server/internal/events"
	"robotarena/server/internal/geometry"
	"robotarena/server/internal/logging"
	"robotarena/server/internal/rules"
)

// commands is the intent staged by a behavior for the movement phase of the turn.
type commands struct {
	distanceRemaining  float64
	bodyTurnRemaining  float64
	gunTurnRemaining   float64
	radarTurnRemaining float64

	maxVelocity float64
	maxTurnRate float64

	adjustGunForBodyTurn  bool
	adjustRadarForGunTurn bool

	moved     bool
	fire      bool
	firePower float64
	// droppedFires counts fire requests rejected for invalid power since the last move.
	droppedFires int
}

func newCommands() commands {
	return commands{
		maxVelocity: rules.MaxVelocity,
		maxTurnRate: rules.MaxTurnRateRadians,
	}
}

// reset clears the motion intent while keeping the caps and coupling flags.
func (c *commands) reset() {
	c.distanceRemaining = 0
	c.bodyTurnRemaining = 0
	c.gunTurnRemaining = 0
	c.radarTurnRemaining = 0
	c.moved = false
	c.fire = false
	c.firePower = 0
	c.droppedFires = 0
}

// SetMove stages a move of distance units along the body heading; negative moves back.
// Robots without energy cannot move.
func (r *Robot) SetMove(distance float64) {
	if r.Dead() || r.energy == 0 {
		return
	}
	r.commands.distanceRemaining = distance
	r.commands.moved = true
}

// SetAhead stages a forward move.
func (r *Robot) SetAhead(distance float64) { r.SetMove(distance) }

// SetBack stages a backward move.
func (r *Robot) SetBack(distance float64) { r.SetMove(-distance) }

// SetTurnBody stages a clockwise body turn in degrees.
func (r *Robot) SetTurnBody(degrees float64) { r.SetTurnBodyRadians(geometry.Radians(degrees)) }

// SetTurnBodyRadians stages a clockwise body turn in radians.
func (r *Robot) SetTurnBodyRadians(angle float64) {
	if r.Dead() || r.energy <= 0 {
		return
	}
	r.commands.bodyTurnRemaining = angle
}

// SetTurnGun stages a clockwise turret turn in degrees.
func (r *Robot) SetTurnGun(degrees float64) { r.SetTurnGunRadians(geometry.Radians(degrees)) }

// SetTurnGunRadians stages a clockwise turret turn in radians.
func (r *Robot) SetTurnGunRadians(angle float64) {
	if r.Dead() {
		return
	}
	r.commands.gunTurnRemaining = angle
}

// SetTurnRadar stages a clockwise radar turn in degrees.
func (r *Robot) SetTurnRadar(degrees float64) { r.SetTurnRadarRadians(geometry.Radians(degrees)) }

// SetTurnRadarRadians stages a clockwise radar turn in radians.
func (r *Robot) SetTurnRadarRadians(angle float64) {
	if r.Dead() {
		return
	}
	r.commands.radarTurnRemaining = angle
}

// SetBodyHeadingTo stages the shortest body turn that ends at the absolute heading.
func (r *Robot) SetBodyHeadingTo(heading float64) {
	r.SetTurnBodyRadians(geometry.NormalRelative(heading - r.bodyHeading))
}

// SetGunHeadingTo stages the shortest turret turn that ends at the absolute heading.
func (r *Robot) SetGunHeadingTo(heading float64) {
	r.SetTurnGunRadians(geometry.NormalRelative(heading - r.gunHeading))
}

// SetRadarHeadingTo stages the shortest radar turn that ends at the absolute heading.
func (r *Robot) SetRadarHeadingTo(heading float64) {
	r.SetTurnRadarRadians(geometry.NormalRelative(heading - r.radarHeading))
}

// SetMaxVelocity caps the speed the robot accelerates to, bounded by the rules.
func (r *Robot) SetMaxVelocity(velocity float64) {
	if math.IsNaN(velocity) {
		return
	}
	r.commands.maxVelocity = math.Min(math.Abs(velocity), rules.MaxVelocity)
}

// MaxVelocity returns the current speed cap.
func (r *Robot) MaxVelocity() float64 { return r.commands.maxVelocity }

// SetMaxTurnRate caps the body turn rate in degrees per turn, bounded by the rules.
func (r *Robot) SetMaxTurnRate(degrees float64) {
	if math.IsNaN(degrees) {
		return
	}
	r.commands.maxTurnRate = math.Min(math.Abs(geometry.Radians(degrees)), rules.MaxTurnRateRadians)
}

// MaxTurnRate returns the body turn rate cap in radians per turn.
func (r *Robot) MaxTurnRate() float64 { return r.commands.maxTurnRate }

// SetAdjustGunForBodyTurn keeps the turret still while the body turns when set.
func (r *Robot) SetAdjustGunForBodyTurn(adjust bool) { r.commands.adjustGunForBodyTurn = adjust }

// SetAdjustRadarForGunTurn keeps the radar still while the turret turns when set.
func (r *Robot) SetAdjustRadarForGunTurn(adjust bool) { r.commands.adjustRadarForGunTurn = adjust }

// SetScan requests a radar scan this turn even if nothing moved.
func (r *Robot) SetScan() {
	if r.Dead() {
		return
	}
	r.scan = true
}

// SetFire stages a shot of the given power. Requests with a NaN power are logged and
// dropped; requests while the gun is hot or the robot has no energy are dropped.
func (r *Robot) SetFire(power float64) {
	if r.Dead() {
		return
	}
	if math.IsNaN(power) {
		r.logger.Warn("fire dropped: power is not a number")
		r.commands.droppedFires++
		return
	}
	if r.gunHeat > 0 || r.energy == 0 {
		return
	}
	r.commands.fire = true
	r.commands.firePower = power
}

// FirePending reports whether a shot is staged for this turn.
func (r *Robot) FirePending() bool { return r.commands.fire }

// SetBodyColor paints the body.
func (r *Robot) SetBodyColor(c colorful.Color) { r.palette.Body = c }

// SetGunColor paints the turret.
func (r *Robot) SetGunColor(c colorful.Color) { r.palette.Gun = c }

// SetRadarColor paints the radar.
func (r *Robot) SetRadarColor(c colorful.Color) { r.palette.Radar = c }

// SetBulletColor paints bullets fired from now on.
func (r *Robot) SetBulletColor(c colorful.Color) { r.palette.Bullet = c }

// SetScanColor paints the scan arc.
func (r *Robot) SetScanColor(c colorful.Color) { r.palette.Scan = c }

// SetColors paints body, turret and radar at once.
func (r *Robot) SetColors(body, gun, radar colorful.Color) {
	r.palette.Body = body
	r.palette.Gun = gun
	r.palette.Radar = radar
}

// fireStaged turns a staged fire request into a bullet at the start of the movement phase.
func (r *Robot) fireStaged(w *World) {
	if r.commands.droppedFires > 0 {
		w.record(events.Record{Kind: events.RecordFireDropped, Robot: r.name, Value: float64(r.commands.droppedFires)})
		r.commands.droppedFires = 0
	}
	if !r.commands.fire {
		return
	}
	r.commands.fire = false
	if r.gunHeat > 0 || r.energy == 0 {
		return
	}
	//1.- Remaining energy caps the shot, so a nearly drained robot fires below MinBulletPower.
	power := math.Min(r.energy, rules.ClampPower(r.commands.firePower))
	r.updateEnergy(-power)
	r.gunHeat += rules.GunHeat(power)
	bullet := w.addBullet(r, power, r.gunHeading, r.position)
	r.logger.Debug("fire", logging.Float64("power", power), logging.Int64("bullet", int64(bullet.ID())))
}
