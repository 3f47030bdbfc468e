package arena

import (
	"math"

	"robotarena/server/internal/events"
	"robotarena/server/internal/geometry"
	"robotarena/server/internal/logging"
	"robotarena/server/internal/rules"
)

// checkWallCollision keeps the robot inside the arena, charging wall damage on impact.
func (r *Robot) checkWallCollision(w *World) {
	minX := rules.RobotWidth / 2
	minY := rules.RobotHeight / 2
	maxX := r.width - rules.RobotWidth/2
	maxY := r.height - rules.RobotHeight/2

	hitWall := false
	adjustX, adjustY := 0.0, 0.0
	bearing := 0.0

	switch {
	case r.position.X < minX:
		hitWall = true
		adjustX = minX - r.position.X
		bearing = geometry.NormalRelative(3*math.Pi/2 - r.bodyHeading)
	case r.position.X > maxX:
		hitWall = true
		adjustX = maxX - r.position.X
		bearing = geometry.NormalRelative(math.Pi/2 - r.bodyHeading)
	case r.position.Y < minY:
		hitWall = true
		adjustY = minY - r.position.Y
		bearing = geometry.NormalRelative(math.Pi - r.bodyHeading)
	case r.position.Y > maxY:
		hitWall = true
		adjustY = maxY - r.position.Y
		bearing = geometry.NormalRelative(-r.bodyHeading)
	}
	if !hitWall {
		return
	}

	r.events.Push(events.WallHit{Bearing: bearing})

	//1.- Slide back along the heading when the wall was hit at an angle.
	if !axisAligned(r.bodyHeading) {
		tanHeading := math.Tan(r.bodyHeading)
		switch {
		case adjustX == 0:
			adjustX = adjustY * tanHeading
		case adjustY == 0:
			adjustY = adjustX / tanHeading
		case math.Abs(adjustX/tanHeading) > math.Abs(adjustY):
			adjustY = adjustX / tanHeading
		case math.Abs(adjustY*tanHeading) > math.Abs(adjustX):
			adjustX = adjustY * tanHeading
		}
	}
	r.position = r.position.Add(geometry.Point{X: adjustX, Y: adjustY})

	//2.- Clamp whatever the slide left outside the bounds.
	r.position.X = math.Min(math.Max(r.position.X, minX), maxX)
	r.position.Y = math.Min(math.Max(r.position.Y, minY), maxY)

	damage := rules.WallHitDamage(r.velocity)
	r.setEnergy(r.energy-damage, false)
	w.record(events.Record{Kind: events.RecordWallHit, Robot: r.name, Value: damage})

	r.commands.distanceRemaining = 0
	r.velocity = 0
	r.state = StateHitWall
}

func axisAligned(heading float64) bool {
	rem := math.Mod(heading, geometry.HalfPi)
	return geometry.IsNear(rem, 0) || geometry.IsNear(rem, geometry.HalfPi)
}

// checkRobotCollision resolves overlaps with the other live robots. Only the robot moving
// into the other is at fault: it stops, backs out of its move and scores the ram.
func (r *Robot) checkRobotCollision(w *World) {
	r.inCollision = false

	for _, other := range w.robots {
		if other == nil || other == r || other.Dead() {
			continue
		}
		if !r.BoundingBox().Intersects(other.BoundingBox()) {
			continue
		}

		angle := geometry.Bearing(r.position, other.position)
		moved := geometry.Point{
			X: r.velocity * math.Sin(r.bodyHeading),
			Y: r.velocity * math.Cos(r.bodyHeading),
		}
		bearing := geometry.NormalRelative(angle - r.bodyHeading)

		atFault := (r.velocity > 0 && bearing > -math.Pi/2 && bearing < math.Pi/2) ||
			(r.velocity < 0 && (bearing < -math.Pi/2 || bearing > math.Pi/2))
		if !atFault {
			continue
		}

		r.inCollision = true
		r.velocity = 0
		r.commands.distanceRemaining = 0
		r.position = r.position.Sub(moved)

		r.stats.ScoreRammingDamage(other.name)
		r.updateEnergy(-rules.RobotHitDamage)
		other.updateEnergy(-rules.RobotHitDamage)
		w.record(events.Record{Kind: events.RecordRam, Robot: r.name, Other: other.name, Value: rules.RobotHitDamage})

		if other.energy == 0 && other.Alive() {
			other.kill(w)
			if bonus := r.stats.ScoreRammingKill(other.name); bonus > 0 {
				r.logger.Info("ram bonus for kill", logging.String("victim", other.name), logging.Int("bonus", int(bonus+0.5)))
			}
		}

		r.events.Push(events.RobotHit{
			Name:    other.name,
			Bearing: geometry.NormalRelative(angle - r.bodyHeading),
			Energy:  other.energy,
			AtFault: true,
		})
		other.events.Push(events.RobotHit{
			Name:    r.name,
			Bearing: geometry.NormalRelative(math.Pi + angle - other.bodyHeading),
			Energy:  r.energy,
			AtFault: false,
		})
	}

	if r.inCollision {
		r.state = StateHitRobot
	}
}

// collidesWithAny reports whether the robot overlaps any other live robot in robots.
func (r *Robot) collidesWithAny(robots []*Robot) bool {
	box := r.BoundingBox()
	for _, other := range robots {
		if other == nil || other == r || other.Dead() {
			continue
		}
		if box.Intersects(other.BoundingBox()) {
			return true
		}
	}
	return false
}
