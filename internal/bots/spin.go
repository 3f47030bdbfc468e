package bots

import (
	"robotarena/server/internal/arena"
	"robotarena/server/internal/events"
)

var spinDefinition = Definition{
	Name:        "spin",
	Description: "drives in circles spinning gun and radar, firing every other turn",
	Defaults: Params{
		"body":  2,
		"gun":   -3,
		"radar": 12,
		"ahead": 10,
		"power": 2,
	},
	Build: func(p Params) arena.Behavior {
		return &Spin{
			BodySpin:  p.Get("body", 2),
			GunSpin:   p.Get("gun", -3),
			RadarSpin: p.Get("radar", 12),
			Ahead:     p.Get("ahead", 10),
			Power:     p.Get("power", 2),
		}
	},
}

// Spin turns its body, gun and radar by fixed amounts each turn while creeping ahead.
// Spins are expressed in degrees per turn.
type Spin struct {
	BodySpin  float64
	GunSpin   float64
	RadarSpin float64
	Ahead     float64
	Power     float64

	turn int
}

// Run stages the spins and fires on even turns.
func (s *Spin) Run(r *arena.Robot) {
	s.turn++
	r.SetTurnBody(s.BodySpin)
	r.SetTurnGun(s.GunSpin)
	r.SetTurnRadar(s.RadarSpin)
	r.SetAhead(s.Ahead)
	if s.turn%2 == 0 {
		r.SetFire(s.Power)
	}
}

// OnRoundEnded restarts the turn count for the next round.
func (s *Spin) OnRoundEnded(events.RoundEnded) { s.turn = 0 }
