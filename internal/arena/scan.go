package arena

import (
	"math"

	"robotarena/server/internal/events"
	"robotarena/server/internal/geometry"
	"robotarena/server/internal/rules"
)

// performScan sweeps the radar when a scan was requested or anything moved this turn.
func (r *Robot) performScan(w *World) {
	if r.Dead() {
		return
	}
	if r.scan {
		r.sweep(r.lastRadarHeading, w.robots)
		r.scan = false
	}
}

// sweep rebuilds the scan sector from lastRadarHeading to the current radar heading and
// reports every live robot it touches.
func (r *Robot) sweep(lastRadarHeading float64, robots []*Robot) {
	extent := r.radarHeading - lastRadarHeading
	//1.- Take the short way round when the sweep crosses north.
	if extent < -math.Pi {
		extent += geometry.TwoPi
	} else if extent > math.Pi {
		extent -= geometry.TwoPi
	}
	start := geometry.NormalAbsolute(lastRadarHeading)
	r.scanArc = geometry.NewArc(r.position.X, r.position.Y, rules.RadarScanRadius, start, extent)

	for _, other := range robots {
		if other == nil || other == r || other.Dead() {
			continue
		}
		if !r.scanArc.IntersectsRect(other.BoundingBox()) {
			continue
		}
		r.events.Push(events.ScannedRobot{
			Name:     other.name,
			Energy:   other.energy,
			Bearing:  geometry.NormalRelative(geometry.Bearing(r.position, other.position) - r.bodyHeading),
			Distance: r.position.Distance(other.position),
			Heading:  other.bodyHeading,
			Velocity: other.velocity,
		})
	}
}
