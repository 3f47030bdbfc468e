package geometry

import "math"

// Point is a position on the arena plane. Headings of 0 point along +Y.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns the component-wise sum of two points.
func (p Point) Add(o Point) Point { return Point{X: p.X + o.X, Y: p.Y + o.Y} }

// Sub returns the component-wise difference of two points.
func (p Point) Sub(o Point) Point { return Point{X: p.X - o.X, Y: p.Y - o.Y} }

// Distance returns the Euclidean distance between two points.
func (p Point) Distance(o Point) float64 { return math.Hypot(o.X-p.X, o.Y-p.Y) }

// Project moves the point along a heading by the provided length.
func (p Point) Project(heading, length float64) Point {
	return Point{X: p.X + length*math.Sin(heading), Y: p.Y + length*math.Cos(heading)}
}

// Rect is an axis-aligned rectangle anchored at its minimum corner.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RectAround builds a rectangle of the given size centred on a point.
func RectAround(center Point, width, height float64) Rect {
	return Rect{X: center.X - width/2, Y: center.Y - height/2, Width: width, Height: height}
}

// MaxX returns the right edge.
func (r Rect) MaxX() float64 { return r.X + r.Width }

// MaxY returns the far edge along Y.
func (r Rect) MaxY() float64 { return r.Y + r.Height }

// Center returns the midpoint of the rectangle.
func (r Rect) Center() Point { return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2} }

// Contains reports whether the point lies inside the half-open rectangle.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.MaxX() && p.Y >= r.Y && p.Y < r.MaxY()
}

// Intersects reports whether two rectangles overlap with a non-empty interior.
func (r Rect) Intersects(o Rect) bool {
	left := math.Max(r.X, o.X)
	right := math.Min(r.MaxX(), o.MaxX())
	bottom := math.Max(r.Y, o.Y)
	top := math.Min(r.MaxY(), o.MaxY())
	return left < right && bottom < top
}

// Line is a segment between two points.
type Line struct {
	From Point `json:"from"`
	To   Point `json:"to"`
}

// Length returns the segment length.
func (l Line) Length() float64 { return l.From.Distance(l.To) }

// Arc is the triangular scan sector swept by a radar between two headings.
type Arc struct {
	Origin Point   `json:"origin"`
	Start  Point   `json:"start"`
	End    Point   `json:"end"`
	Radius float64 `json:"radius"`
	// StartAngle is the absolute heading of the first sweep edge.
	StartAngle float64 `json:"start_angle"`
	// Extent is the signed sweep, positive clockwise.
	Extent float64 `json:"extent"`
}

// NewArc builds the sector origin→start→end by rotating a radius vector from the origin.
func NewArc(x, y, radius, startAngle, extent float64) Arc {
	origin := Point{X: x, Y: y}
	//1.- Rotate the +Y radius vector clockwise to the first edge and again to the second.
	start := origin.Project(startAngle, radius)
	end := origin.Project(startAngle+extent, radius)
	return Arc{
		Origin:     origin,
		Start:      start,
		End:        end,
		Radius:     radius,
		StartAngle: startAngle,
		Extent:     extent,
	}
}

// Vertices returns the polygon of the sector in construction order.
func (a Arc) Vertices() [3]Point {
	return [3]Point{a.Origin, a.Start, a.End}
}
