package match

import (
	"math/rand"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/logging"
)

const (
	// PlacementMargin keeps start positions this far from every wall.
	PlacementMargin = 72
	// MaxPlacementAttempts bounds the search for a collision-free start position.
	MaxPlacementAttempts = 100
)

// randomPosition draws integer coordinates uniformly in the placement rectangle.
func randomPosition(rng *rand.Rand, width, height float64) (float64, float64) {
	x := randomCoordinate(rng, int(width)-2*PlacementMargin)
	y := randomCoordinate(rng, int(height)-2*PlacementMargin)
	return x, y
}

func randomCoordinate(rng *rand.Rand, span int) float64 {
	if span <= 0 {
		return PlacementMargin
	}
	return float64(PlacementMargin + rng.Intn(span+1))
}

// placeRobot moves r to a random start position that does not overlap the robots already
// in world. When every attempt collides the last position is kept and a warning logged.
func placeRobot(world *arena.World, r *arena.Robot, rng *rand.Rand, logger *logging.Logger) bool {
	for attempt := 1; attempt <= MaxPlacementAttempts; attempt++ {
		//1.- Draw a candidate and keep it as soon as it is clear of every placed robot.
		x, y := randomPosition(rng, world.Width(), world.Height())
		r.SetPosition(x, y)
		if !world.Colliding(r) {
			return true
		}
	}
	logger.Warn("no collision-free start position",
		logging.String("robot", r.Name()), logging.Int("attempts", MaxPlacementAttempts),
		logging.Float64("x", r.X()), logging.Float64("y", r.Y()))
	return false
}
