package geometry

import "math"

const (
	// slopeEpsilon bounds the run below which a segment is treated as vertical.
	slopeEpsilon = 1e-7
	// determinantEpsilon bounds the determinant below which segments are treated as parallel.
	determinantEpsilon = 1e-12
)

// RectIntersectsLine tests a segment against a rectangle by clipping projections on both axes.
func RectIntersectsLine(r Rect, l Line) bool {
	//1.- Clip the segment's x-projection against the rectangle.
	minX, maxX := l.From.X, l.To.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	if maxX > r.MaxX() {
		maxX = r.MaxX()
	}
	if minX < r.X {
		minX = r.X
	}
	if minX > maxX {
		return false
	}

	//2.- Evaluate the segment at the clipped x bounds to obtain its y-projection.
	minY, maxY := l.From.Y, l.To.Y
	dx := l.To.X - l.From.X
	if math.Abs(dx) > slopeEpsilon {
		slope := (l.To.Y - l.From.Y) / dx
		intercept := l.From.Y - slope*l.From.X
		minY = slope*minX + intercept
		maxY = slope*maxX + intercept
	}
	if minY > maxY {
		minY, maxY = maxY, minY
	}

	//3.- Clip the y-projection and report overlap.
	if maxY > r.MaxY() {
		maxY = r.MaxY()
	}
	if minY < r.Y {
		minY = r.Y
	}
	return minY <= maxY
}

// LinesIntersect reports whether two segments cross using the parametric determinant test.
func LinesIntersect(a, b Line) bool {
	dx13, dy13 := a.From.X-b.From.X, a.From.Y-b.From.Y
	dx21, dy21 := a.To.X-a.From.X, a.To.Y-a.From.Y
	dx43, dy43 := b.To.X-b.From.X, b.To.Y-b.From.Y

	//1.- Parallel, collinear and zero-length segments have no unique crossing.
	dn := dy43*dx21 - dx43*dy21
	if math.Abs(dn) < determinantEpsilon {
		return false
	}
	ua := (dx43*dy13 - dy43*dx13) / dn
	ub := (dx21*dy13 - dy21*dx13) / dn
	return ua >= 0 && ua <= 1 && ub >= 0 && ub <= 1
}

// Contains reports whether the point lies inside or on the sector triangle.
func (a Arc) Contains(p Point) bool {
	//1.- A collapsed triangle has no interior.
	if math.Abs(cross(a.Origin, a.Start, a.End)) < determinantEpsilon {
		return false
	}
	d1 := cross(a.Origin, a.Start, p)
	d2 := cross(a.Start, a.End, p)
	d3 := cross(a.End, a.Origin, p)
	hasNeg := d1 < 0 || d2 < 0 || d3 < 0
	hasPos := d1 > 0 || d2 > 0 || d3 > 0
	return !(hasNeg && hasPos)
}

// IntersectsRect reports whether the sector triangle and the rectangle overlap or touch.
func (a Arc) IntersectsRect(r Rect) bool {
	tri := a.Vertices()
	corners := [4]Point{
		{X: r.X, Y: r.Y},
		{X: r.MaxX(), Y: r.Y},
		{X: r.MaxX(), Y: r.MaxY()},
		{X: r.X, Y: r.MaxY()},
	}
	//1.- Separating axis test on the rectangle axes.
	axes := []Point{{X: 1}, {Y: 1}}
	//2.- Add the normal of every non-degenerate triangle edge.
	for i := range tri {
		edge := tri[(i+1)%3].Sub(tri[i])
		if math.Abs(edge.X) < determinantEpsilon && math.Abs(edge.Y) < determinantEpsilon {
			continue
		}
		axes = append(axes, Point{X: -edge.Y, Y: edge.X})
	}
	for _, axis := range axes {
		triMin, triMax := project(tri[:], axis)
		rectMin, rectMax := project(corners[:], axis)
		if triMax < rectMin || rectMax < triMin {
			return false
		}
	}
	return true
}

func project(points []Point, axis Point) (float64, float64) {
	lo := math.Inf(1)
	hi := math.Inf(-1)
	for _, p := range points {
		d := p.X*axis.X + p.Y*axis.Y
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}
	return lo, hi
}

func cross(a, b, p Point) float64 {
	return (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
}
