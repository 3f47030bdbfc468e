package arena

import (
	"errors"
	"fmt"

	"robotarena/server/internal/events"
	"robotarena/server/internal/geometry"
	"robotarena/server/internal/logging"
	"robotarena/server/internal/rules"
)

var (
	// ErrNilRobot is returned when a nil robot is added to the world.
	ErrNilRobot = errors.New("robot must not be nil")
	// ErrDuplicateRobot is returned when a robot is added twice in the same round.
	ErrDuplicateRobot = errors.New("robot already in the world")
)

// World owns the robots and bullets of the current round and the shared turn counter.
type World struct {
	width  float64
	height float64
	turn   int
	round  int

	// robots holds the live robots in insertion order.
	robots []*Robot
	// roster resolves every handle issued this round, including removed robots.
	roster  []*Robot
	bullets []*Bullet

	nextBulletID uint64
	journal      events.Journal
	logger       *logging.Logger
}

// Option configures a World.
type Option func(*World)

// WithLogger routes world diagnostics through logger.
func WithLogger(logger *logging.Logger) Option {
	return func(w *World) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWorld creates an empty arena of the given size. Non-positive sizes fall back to the
// default arena.
func NewWorld(width, height float64, opts ...Option) *World {
	if width <= 0 {
		width = rules.DefaultWidth
	}
	if height <= 0 {
		height = rules.DefaultHeight
	}
	w := &World{width: width, height: height}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	if w.logger == nil {
		w.logger = logging.L()
	}
	return w
}

// Width returns the arena width.
func (w *World) Width() float64 { return w.width }

// Height returns the arena height.
func (w *World) Height() float64 { return w.height }

// Bounds returns the arena rectangle.
func (w *World) Bounds() geometry.Rect {
	return geometry.Rect{Width: w.width, Height: w.height}
}

// Turn returns the turn counter of the current round.
func (w *World) Turn() int {
	if w == nil {
		return 0
	}
	return w.turn
}

// Round returns the round number stamped on telemetry.
func (w *World) Round() int { return w.round }

// SetRound sets the round number stamped on telemetry.
func (w *World) SetRound(round int) { w.round = round }

// AddRobot places the robot in the round and assigns it a handle.
func (w *World) AddRobot(r *Robot) error {
	if r == nil {
		return ErrNilRobot
	}
	for _, existing := range w.robots {
		if existing == r {
			return fmt.Errorf("%w: %s", ErrDuplicateRobot, r.name)
		}
	}
	r.handle = Handle(len(w.roster))
	r.width = w.width
	r.height = w.height
	w.roster = append(w.roster, r)
	w.robots = append(w.robots, r)
	return nil
}

// Robot resolves a handle issued this round.
func (w *World) Robot(h Handle) *Robot {
	if w == nil || h < 0 || int(h) >= len(w.roster) {
		return nil
	}
	return w.roster[h]
}

// Robots returns the robots in the round in insertion order.
func (w *World) Robots() []*Robot {
	out := make([]*Robot, len(w.robots))
	copy(out, w.robots)
	return out
}

// AliveCount returns how many robots in the round are still alive.
func (w *World) AliveCount() int {
	alive := 0
	for _, r := range w.robots {
		if r.Alive() {
			alive++
		}
	}
	return alive
}

// Bullets returns the bullets in flight or still exploding.
func (w *World) Bullets() []*Bullet {
	out := make([]*Bullet, len(w.bullets))
	copy(out, w.bullets)
	return out
}

// Colliding reports whether r overlaps any live robot already in the round.
func (w *World) Colliding(r *Robot) bool {
	return r.collidesWithAny(w.robots)
}

// Tick advances the round by one turn: bullets first, then every robot in insertion
// order, then spent bullets are purged. Destroyed robots stay in the world after Tick;
// callers driving a World directly must call ClearDeadRobots once per turn to remove them.
func (w *World) Tick() {
	w.turn++

	//1.- Explosions spawned by kills this turn start updating next turn.
	count := len(w.bullets)
	for i := 0; i < count; i++ {
		w.bullets[i].update(w)
	}

	for _, r := range w.robots {
		r.Tick(w)
	}

	w.clearInactiveBullets()
}

// ClearDeadRobots removes destroyed robots from the round, delivering their remaining
// terminal events first, and returns them.
func (w *World) ClearDeadRobots() []*Robot {
	var removed []*Robot
	kept := w.robots[:0]
	for _, r := range w.robots {
		if r.Dead() {
			r.ProcessEvents()
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	for i := len(kept); i < len(w.robots); i++ {
		w.robots[i] = nil
	}
	w.robots = kept
	return removed
}

func (w *World) clearInactiveBullets() {
	kept := w.bullets[:0]
	for _, b := range w.bullets {
		if b.state != BulletInactive {
			kept = append(kept, b)
		}
	}
	for i := len(kept); i < len(w.bullets); i++ {
		w.bullets[i] = nil
	}
	w.bullets = kept
}

// Reset ends the round: the turn counter returns to zero and robots and bullets leave.
func (w *World) Reset() {
	w.turn = 0
	w.robots = nil
	w.roster = nil
	w.bullets = nil
}

// DrainRecords returns the telemetry collected since the last drain.
func (w *World) DrainRecords() []events.Record {
	return w.journal.Drain()
}

// Record appends telemetry stamped with the current round and turn.
func (w *World) Record(record events.Record) {
	w.record(record)
}

func (w *World) record(record events.Record) {
	if w == nil {
		return
	}
	record.Round = w.round
	record.Turn = w.turn
	w.journal.Add(record)
}

func (w *World) addBullet(owner *Robot, power, heading float64, at geometry.Point) *Bullet {
	w.nextBulletID++
	b := &Bullet{
		id:        w.nextBulletID,
		owner:     owner.handle,
		ownerName: owner.name,
		victim:    NoRobot,
		power:     power,
		heading:   heading,
		position:  at,
		last:      at,
		line:      geometry.Line{From: at, To: at},
		state:     BulletFired,
		color:     owner.palette.Bullet,
	}
	w.bullets = append(w.bullets, b)
	w.record(events.Record{Kind: events.RecordFire, Robot: owner.name, Value: power})
	return b
}

// addExplosion places a stationary full power explosion over a destroyed robot.
func (w *World) addExplosion(r *Robot) {
	w.nextBulletID++
	w.bullets = append(w.bullets, &Bullet{
		id:        w.nextBulletID,
		owner:     r.handle,
		ownerName: r.name,
		victim:    NoRobot,
		power:     rules.MaxBulletPower,
		position:  r.position,
		last:      r.position,
		line:      geometry.Line{From: r.position, To: r.position},
		state:     BulletExploded,
		color:     r.palette.Bullet,
	})
}
