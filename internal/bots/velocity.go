package bots

import (
	"math"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/events"
)

// endlessDistance is a move long enough that only a new command or a wall ends it.
const endlessDistance = 40000

var velocityDefinition = Definition{
	Name:        "velocity",
	Description: "rate controlled robot that shuttles back and forth spinning its gun",
	Defaults: Params{
		"gun":      15,
		"forward":  4,
		"backward": 6,
		"period":   64,
	},
	Build: func(p Params) arena.Behavior {
		return &Velocity{
			GunRate:  p.Get("gun", 15),
			Forward:  p.Get("forward", 4),
			Backward: p.Get("backward", 6),
			Period:   int(p.Get("period", 64)),
		}
	},
}

// Velocity steers by rates instead of distances: every turn the body, gun and velocity
// rates are reapplied. It drives forward for half of Period turns and backs away faster
// for the other half.
type Velocity struct {
	GunRate  float64
	Forward  float64
	Backward float64
	Period   int

	counter      int
	velocityRate float64
	turnRate     float64
}

// Run updates the rates for the current phase and stages them.
func (v *Velocity) Run(r *arena.Robot) {
	period := v.Period
	if period < 2 {
		period = 2
	}
	switch v.counter % period {
	case 0:
		v.turnRate = 0
		v.velocityRate = v.Forward
	case period / 2:
		v.velocityRate = -v.Backward
	}
	v.counter++

	r.SetTurnGun(v.GunRate)
	r.SetTurnBody(v.turnRate)
	r.SetMaxVelocity(math.Abs(v.velocityRate))
	switch {
	case v.velocityRate > 0:
		r.SetAhead(endlessDistance)
	case v.velocityRate < 0:
		r.SetBack(endlessDistance)
	default:
		r.SetAhead(0)
	}
}

// OnRoundEnded restarts the shuttle cycle.
func (v *Velocity) OnRoundEnded(events.RoundEnded) {
	v.counter = 0
	v.velocityRate = 0
	v.turnRate = 0
}
