package bots

import (
	"math"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/events"
)

var crazyDefinition = Definition{
	Name:        "crazy",
	Description: "weaves through the arena and bounces off walls",
	Defaults: Params{
		"distance": endlessDistance,
		"swing":    180,
	},
	Build: func(p Params) arena.Behavior {
		return &Crazy{Distance: p.Get("distance", endlessDistance), Swing: p.Get("swing", 180)}
	},
}

// Crazy drives a long way while weaving: a quarter turn right, then Swing degrees left
// and Swing degrees right, starting over once the last turn completes. Walls and robots it
// runs into reverse the drive.
type Crazy struct {
	Distance float64
	Swing    float64

	robot   *arena.Robot
	forward bool
	stage   int
	started bool
}

// Bind paints the robot and remembers it for the collision hooks.
func (c *Crazy) Bind(r *arena.Robot) {
	c.robot = r
	r.SetColors(rgb(0, 200, 0), rgb(0, 150, 50), rgb(0, 100, 100))
	r.SetBulletColor(rgb(255, 255, 100))
	r.SetScanColor(rgb(255, 200, 200))
}

// Run advances the weave once the current turn is complete.
func (c *Crazy) Run(r *arena.Robot) {
	if c.started && math.Abs(r.TurnRemaining()) > 0 {
		return
	}
	c.started = true
	switch c.stage {
	case 0:
		r.SetAhead(c.Distance)
		c.forward = true
		r.SetTurnBody(90)
	case 1:
		r.SetTurnBody(-c.Swing)
	case 2:
		r.SetTurnBody(c.Swing)
	}
	c.stage = (c.stage + 1) % 3
}

// OnHitWall bounces off the wall.
func (c *Crazy) OnHitWall(events.WallHit) { c.reverse() }

// OnHitRobot backs off when the crash was caused by this robot.
func (c *Crazy) OnHitRobot(e events.RobotHit) {
	if e.AtFault {
		c.reverse()
	}
}

// OnRoundEnded restarts the weave.
func (c *Crazy) OnRoundEnded(events.RoundEnded) {
	c.stage = 0
	c.started = false
}

func (c *Crazy) reverse() {
	if c.robot == nil {
		return
	}
	if c.forward {
		c.robot.SetBack(c.Distance)
	} else {
		c.robot.SetAhead(c.Distance)
	}
	c.forward = !c.forward
}
