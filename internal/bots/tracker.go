package bots

import (
	"math"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/events"
	"robotarena/server/internal/geometry"
	"robotarena/server/internal/rules"
)

// radarSweep is a radar turn long enough to keep the radar spinning until a robot is seen.
const radarSweep = 1e6

var trackerDefinition = Definition{
	Name:        "tracker",
	Description: "locks its radar on the closest target, leads its shots and closes in",
	Defaults: Params{
		"power":    rules.MaxBulletPower,
		"range":    200,
		"distance": 140,
	},
	Build: func(p Params) arena.Behavior {
		return &Tracker{
			Power:        p.Get("power", rules.MaxBulletPower),
			Range:        p.Get("range", 200),
			KeepDistance: p.Get("distance", 140),
		}
	},
}

// Tracker keeps its radar locked on the last scanned robot. Beyond Range it drives
// towards the predicted position of the target; closer in it circles it. It always fires
// with Power once a scan aimed the gun.
type Tracker struct {
	Power        float64
	Range        float64
	KeepDistance float64

	robot     *arena.Robot
	direction float64
}

// Bind paints the tracker and remembers the robot its hooks steer.
func (t *Tracker) Bind(r *arena.Robot) {
	t.robot = r
	t.direction = 1
	r.SetColors(rgb(128, 128, 50), rgb(50, 50, 20), rgb(200, 200, 70))
	r.SetScanColor(rgb(255, 255, 255))
	r.SetBulletColor(rgb(0, 0, 255))
}

// Run decouples gun and radar from the body and sweeps the radar when the lock is lost.
func (t *Tracker) Run(r *arena.Robot) {
	r.SetAdjustRadarForGunTurn(true)
	r.SetAdjustGunForBodyTurn(true)
	if math.Abs(r.RadarTurnRemaining()) <= 0.01 {
		r.SetTurnRadarRadians(radarSweep)
	}
}

// OnScannedRobot aims, steers and fires at the scanned robot.
func (t *Tracker) OnScannedRobot(e events.ScannedRobot) {
	r := t.robot
	if r == nil {
		return
	}
	velocity := r.Velocity()
	if velocity <= 0 {
		velocity = 0.01
	}
	targetVelocity := e.Velocity
	if targetVelocity <= 0 {
		targetVelocity = 0.01
	}
	absBearing := e.Bearing + r.BodyHeading()
	lateral := targetVelocity * math.Sin(e.Heading-absBearing)

	//1.- Overshoot the target with the radar so the next sweep still crosses it.
	radarTurn := geometry.NormalRelative(absBearing - r.RadarHeading())
	extra := math.Min(math.Atan(36.0/math.Max(e.Distance, 1)), rules.RadarTurnRateRadians)
	if radarTurn < 0 {
		radarTurn -= extra
	} else {
		radarTurn += extra
	}
	r.SetTurnRadarRadians(radarTurn)
	r.SetMaxVelocity(rules.MaxVelocity)

	//2.- Far targets are chased with a small lead, near ones are circled with a bigger one.
	if e.Distance > t.Range {
		r.SetTurnGunRadians(geometry.NormalRelative(absBearing - r.GunHeading() + lateral/22))
		r.SetTurnBodyRadians(geometry.NormalRelative(absBearing - r.BodyHeading() + lateral/velocity))
	} else {
		r.SetTurnGunRadians(geometry.NormalRelative(absBearing - r.GunHeading() + lateral/15))
		r.SetTurnBodyRadians(geometry.NormalRelative(e.Bearing + geometry.HalfPi))
	}
	r.SetAhead((e.Distance - t.KeepDistance) * t.direction)
	r.SetFire(t.Power)
}

// OnHitWall reverses the driving direction.
func (t *Tracker) OnHitWall(events.WallHit) { t.direction = -t.direction }

// OnHitRobot reverses the driving direction.
func (t *Tracker) OnHitRobot(events.RobotHit) { t.direction = -t.direction }

// OnRoundEnded drives forward again in the next round.
func (t *Tracker) OnRoundEnded(events.RoundEnded) { t.direction = 1 }
