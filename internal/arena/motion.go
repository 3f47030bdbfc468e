package arena

import (
	"math"

	"robotarena/server/internal/geometry"
	"robotarena/server/internal/rules"
)

// performMove resolves the staged commands: fire, gun cooling, rotation, velocity and
// position, then wall and robot collisions and the inactivity zap.
func (r *Robot) performMove(w *World) {
	if r.Dead() {
		return
	}
	r.state = StateActive

	r.fireStaged(w)
	r.updateGunHeat()

	r.lastBodyHeading = r.bodyHeading
	r.lastGunHeading = r.gunHeading
	r.lastRadarHeading = r.radarHeading
	r.lastPosition = r.position

	//1.- A robot that rammed last turn does not turn its body this turn.
	if !r.inCollision {
		r.updateHeading()
	}
	r.updateGunHeading()
	r.updateRadarHeading()
	r.updateMovement()

	//2.- Walls first so a robot never ends inside one, then the other robots.
	r.checkWallCollision(w)
	r.checkRobotCollision(w)

	if !r.scan {
		r.scan = r.lastBodyHeading != r.bodyHeading || r.lastGunHeading != r.gunHeading ||
			r.lastRadarHeading != r.radarHeading || r.lastPosition != r.position
	}

	if r.Dead() {
		return
	}
	if r.inactiveTurns > rules.InactivityZapThreshold {
		r.zap(w, rules.InactivityZap)
	}
	//3.- Energy exhausted by any path destroys the robot within the same turn.
	if r.Alive() && r.energy == 0 {
		r.kill(w)
	}
}

func (r *Robot) updateGunHeat() {
	r.gunHeat -= rules.GunCoolingRate
	if r.gunHeat < 0 {
		r.gunHeat = 0
	}
}

// rotate turns the body by at most the velocity dependent rate and returns the angle turned.
func (r *Robot) rotate(angle float64) float64 {
	limit := math.Min(rules.TurnRateRadians(r.velocity), r.commands.maxTurnRate)
	angle = clampTurn(angle, limit)
	if !r.commands.adjustGunForBodyTurn {
		r.rotateGun(angle)
	}
	r.bodyHeading = geometry.NormalAbsolute(r.bodyHeading + angle)
	return angle
}

// rotateGun turns the turret by at most the gun rate and returns the angle turned.
func (r *Robot) rotateGun(angle float64) float64 {
	angle = clampTurn(angle, rules.GunTurnRateRadians)
	if !r.commands.adjustRadarForGunTurn {
		r.rotateRadar(angle)
	}
	r.gunHeading = geometry.NormalAbsolute(r.gunHeading + angle)
	return angle
}

// rotateRadar turns the radar by at most the radar rate and returns the angle turned.
func (r *Robot) rotateRadar(angle float64) float64 {
	angle = clampTurn(angle, rules.RadarTurnRateRadians)
	r.radarHeading = geometry.NormalAbsolute(r.radarHeading + angle)
	return angle
}

func clampTurn(angle, limit float64) float64 {
	if math.IsNaN(angle) {
		return 0
	}
	if math.Abs(angle) > limit {
		return math.Copysign(limit, angle)
	}
	return angle
}

func settleTurn(remaining float64) float64 {
	if math.Abs(remaining) < turnEpsilon {
		return 0
	}
	return remaining
}

func (r *Robot) updateHeading() {
	turned := r.rotate(r.commands.bodyTurnRemaining)
	r.commands.bodyTurnRemaining = settleTurn(r.commands.bodyTurnRemaining - turned)
}

func (r *Robot) updateGunHeading() {
	turned := r.rotateGun(r.commands.gunTurnRemaining)
	r.commands.gunTurnRemaining = settleTurn(r.commands.gunTurnRemaining - turned)
}

func (r *Robot) updateRadarHeading() {
	turned := r.rotateRadar(r.commands.radarTurnRemaining)
	r.commands.radarTurnRemaining = settleTurn(r.commands.radarTurnRemaining - turned)
}

// updateMovement integrates velocity toward the remaining distance without overshooting it.
func (r *Robot) updateMovement() {
	distance := r.commands.distanceRemaining
	if math.IsNaN(distance) {
		distance = 0
	}

	r.velocity = newVelocity(r.velocity, distance, r.commands.maxVelocity)

	//1.- Overdriving robots that came to rest have reached their goal.
	if geometry.IsNear(r.velocity, 0) && r.overDriving {
		r.commands.distanceRemaining = 0
		distance = 0
		r.overDriving = false
	}

	//2.- Braking distance beyond the remaining distance means the robot is overdriving.
	if geometry.Signum(distance*r.velocity) != -1 {
		r.overDriving = distanceUntilStop(r.velocity, r.commands.maxVelocity) > math.Abs(distance)
	}

	r.commands.distanceRemaining = distance - r.velocity

	if r.velocity != 0 {
		r.position = r.position.Project(r.bodyHeading, r.velocity)
	}
}

// newVelocity returns the velocity of the next turn when distance units remain to travel.
func newVelocity(velocity, distance, maxVelocity float64) float64 {
	if distance < 0 {
		//1.- Mirror backward moves so only the forward case has to be solved.
		return -newVelocity(-velocity, -distance, maxVelocity)
	}

	goal := maxVelocity
	if !math.IsInf(distance, 1) {
		goal = math.Min(maxVelocityFor(distance), maxVelocity)
	}

	if velocity >= 0 {
		return math.Max(velocity-rules.Deceleration, math.Min(goal, velocity+rules.Acceleration))
	}
	return math.Max(velocity-rules.Acceleration, math.Min(goal, velocity+maxDeceleration(-velocity)))
}

// maxVelocityFor returns the highest velocity from which the robot can still stop within
// distance, found by solving the sum of the braking steps for the braking time.
func maxVelocityFor(distance float64) float64 {
	decelTime := math.Max(1, math.Ceil((math.Sqrt((4*2/rules.Deceleration)*distance+1)-1)/2))
	if math.IsInf(decelTime, 1) {
		return rules.MaxVelocity
	}
	decelDistance := (decelTime / 2) * (decelTime - 1) * rules.Deceleration
	return ((decelTime - 1) * rules.Deceleration) + ((distance - decelDistance) / decelTime)
}

// maxDeceleration returns the velocity change available when reversing at speed.
func maxDeceleration(speed float64) float64 {
	decelTime := speed / rules.Deceleration
	accelTime := 1 - decelTime
	return math.Min(1, decelTime)*rules.Deceleration + math.Max(0, accelTime)*rules.Acceleration
}

// distanceUntilStop returns the distance covered while braking from velocity to rest.
func distanceUntilStop(velocity, maxVelocity float64) float64 {
	distance := 0.0
	velocity = math.Abs(velocity)
	for velocity > 0 {
		velocity = newVelocity(velocity, 0, maxVelocity)
		distance += velocity
	}
	return distance
}
