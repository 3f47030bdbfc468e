package arena

import (
	"github.com/lucasb-eyer/go-colorful"

	"robotarena/server/internal/events"
	"robotarena/server/internal/geometry"
	"robotarena/server/internal/logging"
	"robotarena/server/internal/rules"
)

// BulletState is the lifecycle state of a bullet.
type BulletState int

const (
	BulletFired BulletState = iota
	BulletMoving
	BulletHitVictim
	BulletHitBullet
	BulletHitWall
	BulletExploded
	BulletInactive
)

func (s BulletState) String() string {
	switch s {
	case BulletFired:
		return "fired"
	case BulletMoving:
		return "moving"
	case BulletHitVictim:
		return "hit_victim"
	case BulletHitBullet:
		return "hit_bullet"
	case BulletHitWall:
		return "hit_wall"
	case BulletExploded:
		return "exploded"
	case BulletInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// Bullet is a projectile travelling on a fixed heading at a speed set by its power.
type Bullet struct {
	id        uint64
	owner     Handle
	ownerName string
	victim    Handle

	power   float64
	heading float64

	position geometry.Point
	last     geometry.Point
	// delta is the impact point relative to the victim centre.
	delta geometry.Point
	line  geometry.Line

	frame int
	state BulletState
	color colorful.Color
}

// ID returns the unique bullet identifier.
func (b *Bullet) ID() uint64 { return b.id }

// Owner returns the handle of the robot that fired the bullet.
func (b *Bullet) Owner() Handle { return b.owner }

// OwnerName returns the name of the robot that fired the bullet.
func (b *Bullet) OwnerName() string { return b.ownerName }

// Victim returns the handle of the robot that was hit, or NoRobot.
func (b *Bullet) Victim() Handle { return b.victim }

// Power returns the bullet power.
func (b *Bullet) Power() float64 { return b.power }

// Heading returns the travel direction in radians.
func (b *Bullet) Heading() float64 { return b.heading }

// Velocity returns the travel speed.
func (b *Bullet) Velocity() float64 {
	if b.state == BulletExploded {
		return 0
	}
	return rules.BulletSpeed(b.power)
}

// Position returns the current position.
func (b *Bullet) Position() geometry.Point { return b.position }

// Frame returns the number of turns since the last state change.
func (b *Bullet) Frame() int { return b.frame }

// State returns the lifecycle state.
func (b *Bullet) State() BulletState { return b.state }

// Color returns the colour the owner painted the bullet with.
func (b *Bullet) Color() colorful.Color { return b.color }

// Line returns the segment travelled on the last update.
func (b *Bullet) Line() geometry.Line { return b.line }

// Active reports whether the bullet is still in flight.
func (b *Bullet) Active() bool {
	return b.state == BulletFired || b.state == BulletMoving
}

// PaintPosition returns where the bullet should be drawn: bullets lodged in a robot follow it.
func (b *Bullet) PaintPosition(w *World) geometry.Point {
	if b.state == BulletHitVictim {
		if victim := w.Robot(b.victim); victim != nil {
			return victim.position.Add(b.delta)
		}
	}
	return b.position
}

func (b *Bullet) info() events.BulletInfo {
	return events.BulletInfo{
		ID:      b.id,
		Owner:   b.ownerName,
		Power:   b.power,
		Heading: b.heading,
		X:       b.position.X,
		Y:       b.position.Y,
	}
}

// update advances the bullet one turn and resolves its collisions.
func (b *Bullet) update(w *World) {
	b.frame++
	if b.Active() {
		b.move()
		b.checkWallCollision(w)
		if b.Active() {
			b.checkRobotCollision(w)
		}
		if b.Active() {
			b.checkBulletCollision(w)
		}
	}
	b.updateState()
}

func (b *Bullet) move() {
	b.last = b.position
	b.position = b.position.Project(b.heading, rules.BulletSpeed(b.power))
	b.line = geometry.Line{From: b.last, To: b.position}
}

func (b *Bullet) checkWallCollision(w *World) {
	if b.position.X-rules.BulletRadius <= 0 || b.position.Y-rules.BulletRadius <= 0 ||
		b.position.X+rules.BulletRadius >= w.width || b.position.Y+rules.BulletRadius >= w.height {
		b.state = BulletHitWall
		b.frame = 0
		w.record(events.Record{Kind: events.RecordBulletMissed, Robot: b.ownerName, Value: b.power})
	}
}

func (b *Bullet) checkRobotCollision(w *World) {
	for _, victim := range w.robots {
		if victim == nil || victim.handle == b.owner || victim.Dead() {
			continue
		}
		box := victim.BoundingBox()
		if !geometry.RectIntersectsLine(box, b.line) {
			continue
		}

		b.state = BulletHitVictim
		b.frame = 0
		b.victim = victim.handle

		damage := rules.BulletDamage(b.power)
		score := damage
		if score > victim.energy {
			score = victim.energy
		}
		victim.updateEnergy(-damage)

		owner := w.Robot(b.owner)
		owner.Statistics().ScoreBulletDamage(victim.name, score)
		w.record(events.Record{Kind: events.RecordBulletHit, Robot: b.ownerName, Other: victim.name, Value: score})

		if victim.energy <= 0 && victim.Alive() {
			victim.kill(w)
			if bonus := owner.Statistics().ScoreBulletKill(victim.name); bonus > 0 {
				w.logger.Info("bullet bonus for kill",
					logging.String("robot", b.ownerName), logging.String("victim", victim.name), logging.Int("bonus", int(bonus+0.5)))
			}
		}
		if owner.Alive() {
			owner.updateEnergy(rules.BulletHitBonus(b.power))
		}

		//1.- Draw the impact where the bullet entered when it started inside the victim.
		if box.Contains(b.last) {
			b.position = b.last
		}
		b.delta = b.position.Sub(victim.position)
		return
	}
}

func (b *Bullet) checkBulletCollision(w *World) {
	for _, other := range w.bullets {
		if other == b || other.id == b.id || other.owner == b.owner || !other.Active() {
			continue
		}
		if !geometry.LinesIntersect(b.line, other.line) {
			continue
		}

		//1.- Both bullets stop where they were at the start of the turn.
		b.state = BulletHitBullet
		b.frame = 0
		b.position = b.last
		other.state = BulletHitBullet
		other.frame = 0
		other.position = other.last

		if owner := w.Robot(b.owner); owner != nil {
			owner.events.Push(events.BulletHitBullet{Mine: b.info(), Hit: other.info()})
		}
		if owner := w.Robot(other.owner); owner != nil {
			owner.events.Push(events.BulletHitBullet{Mine: other.info(), Hit: b.info()})
		}
		w.record(events.Record{Kind: events.RecordBulletHitBullet, Robot: b.ownerName, Other: other.ownerName})
		return
	}
}

func (b *Bullet) updateState() {
	switch b.state {
	case BulletFired:
		if b.frame > 0 {
			b.state = BulletMoving
		}
	case BulletHitBullet, BulletHitVictim, BulletHitWall, BulletExploded:
		if b.frame >= rules.ExplosionLength {
			b.state = BulletInactive
		}
	}
}
