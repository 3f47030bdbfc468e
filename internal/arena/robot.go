package arena

import (
	"robotarena/server/internal/events"
	"robotarena/server/internal/geometry"
	"robotarena/server/internal/logging"
	"robotarena/server/internal/rules"
	"robotarena/server/internal/scoring"
)

// State is the lifecycle state of a robot for the current turn.
type State int

const (
	StateActive State = iota
	StateHitWall
	StateHitRobot
	StateDead
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateHitWall:
		return "hit_wall"
	case StateHitRobot:
		return "hit_robot"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Handle identifies a robot inside the World that currently owns it.
type Handle int

// NoRobot is the handle of an absent robot.
const NoRobot Handle = -1

// turnEpsilon settles turn remainders smaller than a hundredth of a degree.
var turnEpsilon = geometry.Radians(0.01)

// Robot is a combatant: its continuous state, staged commands, event queue and score ledger.
type Robot struct {
	name     string
	behavior Behavior
	logger   *logging.Logger

	handle Handle
	width  float64
	height float64

	position     geometry.Point
	bodyHeading  float64
	gunHeading   float64
	radarHeading float64
	velocity     float64
	energy       float64
	gunHeat      float64
	state        State
	winner       bool

	commands    commands
	overDriving bool
	inCollision bool
	scan        bool

	lastBodyHeading  float64
	lastGunHeading   float64
	lastRadarHeading float64
	lastPosition     geometry.Point

	inactiveTurns int
	scanArc       geometry.Arc
	events        events.Queue
	stats         *scoring.Statistics
	palette       Palette
}

// RobotOption customises a robot at construction time.
type RobotOption func(*Robot)

// WithRobotLogger routes the robot diagnostics through logger.
func WithRobotLogger(logger *logging.Logger) RobotOption {
	return func(r *Robot) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPalette sets the colours the robot starts every round with.
func WithPalette(palette Palette) RobotOption {
	return func(r *Robot) {
		r.palette = palette
	}
}

// NewRobot creates a robot controlled by behavior. A nil behavior leaves the robot idle.
func NewRobot(name string, behavior Behavior, opts ...RobotOption) *Robot {
	r := &Robot{
		name:     name,
		behavior: behavior,
		handle:   NoRobot,
		width:    rules.DefaultWidth,
		height:   rules.DefaultHeight,
		energy:   rules.StartingEnergy,
		commands: newCommands(),
		stats:    scoring.NewStatistics(name),
		palette:  DefaultPalette(),
	}
	if binder, ok := behavior.(Binder); ok {
		binder.Bind(r)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.logger == nil {
		r.logger = logging.L()
	}
	r.logger = r.logger.With(logging.String("robot", name))
	r.scanArc = geometry.NewArc(r.position.X, r.position.Y, rules.RadarScanRadius, 0, 0)
	return r
}

// Reset restores the per-round state. Statistics are re-armed for numberOfRobots robots.
func (r *Robot) Reset(numberOfRobots int) {
	if r == nil {
		return
	}
	r.energy = rules.StartingEnergy
	r.gunHeat = 0
	r.velocity = 0
	r.winner = false
	r.inCollision = false
	r.overDriving = false
	r.scan = false
	r.inactiveTurns = 0
	r.state = StateActive
	r.commands.reset()
	r.events.Clear()
	r.scanArc = geometry.NewArc(r.position.X, r.position.Y, rules.RadarScanRadius, 0, 0)
	r.stats.Reset(numberOfRobots)
}

// SetPosition places the robot centre at (x, y).
func (r *Robot) SetPosition(x, y float64) {
	if r == nil {
		return
	}
	r.position = geometry.Point{X: x, Y: y}
}

// Name returns the robot name.
func (r *Robot) Name() string {
	if r == nil {
		return ""
	}
	return r.name
}

// Behavior returns the controller of the robot.
func (r *Robot) Behavior() Behavior { return r.behavior }

// Handle returns the handle assigned by the World the robot was last added to.
func (r *Robot) Handle() Handle { return r.handle }

// Statistics returns the score ledger of the robot.
func (r *Robot) Statistics() *scoring.Statistics {
	if r == nil {
		return nil
	}
	return r.stats
}

// Position returns the centre of the robot.
func (r *Robot) Position() geometry.Point { return r.position }

// X returns the horizontal coordinate of the robot centre.
func (r *Robot) X() float64 { return r.position.X }

// Y returns the vertical coordinate of the robot centre.
func (r *Robot) Y() float64 { return r.position.Y }

// BodyHeading returns the body heading in radians.
func (r *Robot) BodyHeading() float64 { return r.bodyHeading }

// BodyHeadingDegrees returns the body heading in degrees.
func (r *Robot) BodyHeadingDegrees() float64 { return geometry.Degrees(r.bodyHeading) }

// GunHeading returns the turret heading in radians.
func (r *Robot) GunHeading() float64 { return r.gunHeading }

// GunHeadingDegrees returns the turret heading in degrees.
func (r *Robot) GunHeadingDegrees() float64 { return geometry.Degrees(r.gunHeading) }

// RadarHeading returns the radar heading in radians.
func (r *Robot) RadarHeading() float64 { return r.radarHeading }

// RadarHeadingDegrees returns the radar heading in degrees.
func (r *Robot) RadarHeadingDegrees() float64 { return geometry.Degrees(r.radarHeading) }

// Velocity returns the signed speed in units per turn.
func (r *Robot) Velocity() float64 { return r.velocity }

// Energy returns the remaining energy.
func (r *Robot) Energy() float64 { return r.energy }

// GunHeat returns the heat that must dissipate before the gun can fire.
func (r *Robot) GunHeat() float64 { return r.gunHeat }

// DistanceRemaining returns the distance still to travel.
func (r *Robot) DistanceRemaining() float64 { return r.commands.distanceRemaining }

// TurnRemaining returns the body turn still to perform, in radians.
func (r *Robot) TurnRemaining() float64 { return r.commands.bodyTurnRemaining }

// GunTurnRemaining returns the turret turn still to perform, in radians.
func (r *Robot) GunTurnRemaining() float64 { return r.commands.gunTurnRemaining }

// RadarTurnRemaining returns the radar turn still to perform, in radians.
func (r *Robot) RadarTurnRemaining() float64 { return r.commands.radarTurnRemaining }

// State returns the lifecycle state of the current turn.
func (r *Robot) State() State { return r.state }

// Alive reports whether the robot has not been destroyed.
func (r *Robot) Alive() bool { return r != nil && r.state != StateDead }

// Dead reports whether the robot has been destroyed.
func (r *Robot) Dead() bool { return r != nil && r.state == StateDead }

// Winner reports whether the robot won the current round.
func (r *Robot) Winner() bool { return r.winner }

// SetWinner flags the robot as the round winner.
func (r *Robot) SetWinner(winner bool) { r.winner = winner }

// InactiveTurns returns the number of turns since the robot last interacted with anything.
func (r *Robot) InactiveTurns() int { return r.inactiveTurns }

// BoundingBox returns the square the robot occupies.
func (r *Robot) BoundingBox() geometry.Rect {
	return geometry.RectAround(r.position, rules.RobotWidth, rules.RobotHeight)
}

// ScanArc returns the sector swept by the radar on the last scan.
func (r *Robot) ScanArc() geometry.Arc { return r.scanArc }

// BattleFieldWidth returns the width of the arena the robot fights in.
func (r *Robot) BattleFieldWidth() float64 { return r.width }

// BattleFieldHeight returns the height of the arena the robot fights in.
func (r *Robot) BattleFieldHeight() float64 { return r.height }

// Palette returns the colours currently used by the robot.
func (r *Robot) Palette() Palette { return r.palette }

// PendingEvents reports how many events await delivery.
func (r *Robot) PendingEvents() int { return r.events.Len() }

// AddEvent queues an event for delivery at the start of the robot's next turn.
func (r *Robot) AddEvent(ev events.Event) {
	if r == nil {
		return
	}
	r.events.Push(ev)
}

// ProcessEvents delivers every queued event to the behavior hooks. A dead robot only
// receives its terminal notifications.
func (r *Robot) ProcessEvents() {
	if r == nil {
		return
	}
	events.DispatchAll(r.behavior, &r.events, r.deliverable)
}

// deliverable reports whether ev still reaches the behavior. Dead robots only hear about
// their death and the end of the round or battle.
func (r *Robot) deliverable(ev events.Event) bool {
	if !r.Dead() {
		return true
	}
	switch ev.(type) {
	case events.Death, events.RoundEnded, events.BattleEnded:
		return true
	}
	return false
}

// setEnergy stores a new energy level. A change resets the inactivity counter when
// resetInactivity is set; energy below a hundredth is settled to zero.
func (r *Robot) setEnergy(energy float64, resetInactivity bool) {
	if resetInactivity && r.energy != energy {
		r.inactiveTurns = 0
	}
	r.energy = energy
	if r.energy < 0.01 {
		r.energy = 0
		r.commands.distanceRemaining = 0
		r.commands.bodyTurnRemaining = 0
	}
}

func (r *Robot) updateEnergy(delta float64) {
	r.setEnergy(r.energy+delta, true)
}

// kill destroys the robot, queuing its Death event and an explosion at its position.
func (r *Robot) kill(w *World) {
	if r.Alive() {
		r.events.Push(events.Death{})
		if w != nil {
			w.addExplosion(r)
			w.record(events.Record{Kind: events.RecordDeath, Robot: r.name})
		}
		r.logger.Debug("robot destroyed", logging.Int("turn", w.Turn()))
	}
	r.updateEnergy(-r.energy)
	r.velocity = 0
	r.state = StateDead
}

// zap drains energy from a robot that has been inactive for too long.
func (r *Robot) zap(w *World, amount float64) {
	if r.energy == 0 {
		r.kill(w)
		return
	}
	if amount < 0 {
		amount = -amount
	}
	r.energy -= amount
	if r.energy < rules.InactivityZap {
		r.energy = 0
		r.commands.distanceRemaining = 0
		r.commands.bodyTurnRemaining = 0
	}
}

// Tick runs one full turn of the robot: deliver events, decide, move, then scan.
func (r *Robot) Tick(w *World) {
	if r == nil {
		return
	}
	r.ProcessEvents()
	if r.Dead() {
		return
	}
	if r.behavior != nil {
		r.behavior.Run(r)
	}
	r.performMove(w)
	r.performScan(w)
	r.inactiveTurns++
}
