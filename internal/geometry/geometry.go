// Package geometry provides the 2D primitives the board engine is built on:
// points, rectangles, ray and segment intersection, and Bézier sampling.
// All functions are pure; degenerate inputs return documented fallbacks
// instead of errors.
package geometry

import "math"

// Point is a position or displacement in canvas space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p + q.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Scale returns p scaled by s.
func (p Point) Scale(s float64) Point { return Point{p.X * s, p.Y * s} }

// Dot returns the dot product of p and q.
func (p Point) Dot(q Point) float64 { return p.X*q.X + p.Y*q.Y }

// Cross returns the z component of the cross product of p and q.
func (p Point) Cross(q Point) float64 { return p.X*q.Y - p.Y*q.X }

// Length returns the Euclidean length of p.
func (p Point) Length() float64 { return math.Hypot(p.X, p.Y) }

// DistanceTo returns the distance between p and q.
func (p Point) DistanceTo(q Point) float64 { return p.Sub(q).Length() }

// Normalize returns the unit vector in p's direction, or the zero vector
// when p has zero length.
func (p Point) Normalize() Point {
	l := p.Length()
	if l == 0 {
		return Point{}
	}
	return Point{p.X / l, p.Y / l}
}

// Perp returns p rotated 90 degrees counterclockwise.
func (p Point) Perp() Point { return Point{-p.Y, p.X} }

// Lerp returns the linear interpolation between p and q at t.
func (p Point) Lerp(q Point, t float64) Point {
	return Point{p.X + (q.X-p.X)*t, p.Y + (q.Y-p.Y)*t}
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center returns the rectangle's center point.
func (r Rect) Center() Point { return Point{r.X + r.W/2, r.Y + r.H/2} }

// Contains reports whether p lies inside or on the boundary of r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Overlaps reports whether r and o share any area.
func (r Rect) Overlaps(o Rect) bool {
	return r.X < o.X+o.W && r.X+r.W > o.X && r.Y < o.Y+o.H && r.Y+r.H > o.Y
}

// Expand returns r grown by d on every side.
func (r Rect) Expand(d float64) Rect {
	return Rect{r.X - d, r.Y - d, r.W + 2*d, r.H + 2*d}
}

const spanEpsilon = 1e-9

// RayRectIntersection returns the first boundary point of r hit by the ray
// from origin toward target. A zero direction returns origin unchanged.
// The second return value is false when no edge is hit (the origin lies
// outside r, an upstream inconsistency); callers log and fall back to origin.
func RayRectIntersection(r Rect, origin, target Point) (Point, bool) {
	dir := target.Sub(origin)
	if dir.X == 0 && dir.Y == 0 {
		return origin, true
	}

	best := math.Inf(1)

	// Vertical edges: x = r.X and x = r.X+r.W.
	for _, x := range [2]float64{r.X, r.X + r.W} {
		if dir.X == 0 {
			continue
		}
		t := (x - origin.X) / dir.X
		if t <= 0 || t >= best {
			continue
		}
		y := origin.Y + t*dir.Y
		if y >= r.Y-spanEpsilon && y <= r.Y+r.H+spanEpsilon {
			best = t
		}
	}

	// Horizontal edges: y = r.Y and y = r.Y+r.H.
	for _, y := range [2]float64{r.Y, r.Y + r.H} {
		if dir.Y == 0 {
			continue
		}
		t := (y - origin.Y) / dir.Y
		if t <= 0 || t >= best {
			continue
		}
		x := origin.X + t*dir.X
		if x >= r.X-spanEpsilon && x <= r.X+r.W+spanEpsilon {
			best = t
		}
	}

	if math.IsInf(best, 1) {
		return origin, false
	}
	return origin.Add(dir.Scale(best)), true
}

// SegmentIntersection returns the intersection point of segments p1-p2 and
// p3-p4. Parallel (or collinear) segments return no intersection.
func SegmentIntersection(p1, p2, p3, p4 Point) (Point, bool) {
	d1 := p2.Sub(p1)
	d2 := p4.Sub(p3)
	denom := d1.Cross(d2)
	if math.Abs(denom) < spanEpsilon {
		return Point{}, false
	}
	diff := p3.Sub(p1)
	t := diff.Cross(d2) / denom
	u := diff.Cross(d1) / denom
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return Point{}, false
	}
	return p1.Add(d1.Scale(t)), true
}

// CubicPoint evaluates the cubic Bézier (p0, c1, c2, p3) at parameter t.
func CubicPoint(p0, c1, c2, p3 Point, t float64) Point {
	mt := 1 - t
	a := mt * mt * mt
	b := 3 * mt * mt * t
	c := 3 * mt * t * t
	d := t * t * t
	return Point{
		X: a*p0.X + b*c1.X + c*c2.X + d*p3.X,
		Y: a*p0.Y + b*c1.Y + c*c2.Y + d*p3.Y,
	}
}

// SampleCubic returns n+1 evenly parameterized points along the cubic
// Bézier, including both endpoints. n < 1 yields just the endpoints.
func SampleCubic(p0, c1, c2, p3 Point, n int) []Point {
	if n < 1 {
		return []Point{p0, p3}
	}
	out := make([]Point, 0, n+1)
	for i := 0; i <= n; i++ {
		out = append(out, CubicPoint(p0, c1, c2, p3, float64(i)/float64(n)))
	}
	return out
}
