package bots

import (
	"robotarena/server/internal/arena"
	"robotarena/server/internal/events"
)

var staticDefinition = Definition{
	Name:        "static",
	Description: "sitting duck that turns once and keeps firing",
	Defaults: Params{
		"body":    0,
		"gun":     0,
		"radar":   0,
		"opening": 42,
		"power":   3,
	},
	Build: func(p Params) arena.Behavior {
		return &Static{
			BodySpin:  p.Get("body", 0),
			GunSpin:   p.Get("gun", 0),
			RadarSpin: p.Get("radar", 0),
			Opening:   p.Get("opening", 42),
			Power:     p.Get("power", 3),
		}
	},
}

// Static never drives. It turns its body by Opening degrees on its first turn of a round
// and then only applies the configured spins while firing at full rate.
type Static struct {
	BodySpin  float64
	GunSpin   float64
	RadarSpin float64
	Opening   float64
	Power     float64

	opened bool
}

// Run stages the spins and a shot.
func (s *Static) Run(r *arena.Robot) {
	body := s.BodySpin
	if !s.opened {
		body += s.Opening
		s.opened = true
	}
	r.SetTurnBody(body)
	r.SetTurnGun(s.GunSpin)
	r.SetTurnRadar(s.RadarSpin)
	r.SetFire(s.Power)
}

// OnRoundEnded re-arms the opening turn.
func (s *Static) OnRoundEnded(events.RoundEnded) { s.opened = false }
