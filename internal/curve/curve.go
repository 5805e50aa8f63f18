// Package curve maps a connector's two-scalar shape parameterization
// (curvature, directional bias) to cubic Bézier control points and back.
//
// The parameters live in the chord's local frame: curvature is the signed
// perpendicular bend in pixels, bias the signed asymmetry along the tangent.
// The control-point formula is closed-form so the resulting cubic passes
// exactly through the draggable handle at t = 0.5.
package curve

import (
	"math"

	"github.com/starford/tafl/internal/geometry"
)

// Control is the two-degree-of-freedom shape of a connector span.
type Control struct {
	Curvature float64 `json:"curvature"`
	Bias      float64 `json:"bias"`
}

// IsStraight reports whether the control produces a straight line.
func (c Control) IsStraight() bool { return c.Curvature == 0 && c.Bias == 0 }

// biasSpan is the fraction of the chord length one unit of bias shifts the
// handle along the tangent.
const biasSpan = 0.25

// frame returns the chord's unit tangent, unit normal, midpoint, and length.
func frame(start, end geometry.Point) (tangent, normal, mid geometry.Point, length float64) {
	chord := end.Sub(start)
	length = chord.Length()
	if length == 0 {
		return geometry.Point{}, geometry.Point{}, start, 0
	}
	tangent = chord.Scale(1 / length)
	// Screen coordinates grow downward; this normal makes positive curvature
	// bend a left-to-right connector upward.
	normal = geometry.Point{X: tangent.Y, Y: -tangent.X}
	mid = start.Lerp(end, 0.5)
	return tangent, normal, mid, length
}

// ControlPoints converts a control into the two cubic Bézier control points
// for the chord start→end. tanStart and tanEnd are the distances from each
// endpoint to its adjacent control point; pass 0 or negative for the default
// third of the chord. A zero-length chord degenerates to (start, end).
func ControlPoints(start, end geometry.Point, c Control, tanStart, tanEnd float64) (cp1, cp2 geometry.Point) {
	tangent, _, mid, length := frame(start, end)
	if length == 0 {
		return start, end
	}
	if tanStart <= 0 {
		tanStart = length / 3
	}
	if tanEnd <= 0 {
		tanEnd = length / 3
	}

	handle := HandlePosition(start, end, c)

	// offset = (4/3)(handle - mid) makes B(0.5) land on the handle:
	// B(0.5) = (P0 + 3P1 + 3P2 + P3) / 8.
	offset := handle.Sub(mid).Scale(4.0 / 3.0)
	cp1 = start.Add(tangent.Scale(tanStart)).Add(offset)
	cp2 = end.Sub(tangent.Scale(tanEnd)).Add(offset)
	return cp1, cp2
}

// HandlePosition returns the on-curve point at t = 0.5 implied by the control.
func HandlePosition(start, end geometry.Point, c Control) geometry.Point {
	tangent, normal, mid, length := frame(start, end)
	if length == 0 {
		return start
	}
	return mid.
		Add(normal.Scale(c.Curvature)).
		Add(tangent.Scale(c.Bias * biasSpan * length))
}

// ControlFromHandle is the exact inverse of HandlePosition: it projects the
// dragged handle position back onto the chord frame. A zero-length chord
// returns the zero control.
func ControlFromHandle(start, end, handle geometry.Point) Control {
	tangent, normal, mid, length := frame(start, end)
	if length == 0 {
		return Control{}
	}
	v := handle.Sub(mid)
	return Control{
		Curvature: v.Dot(normal),
		Bias:      v.Dot(tangent) / (biasSpan * length),
	}
}

const (
	maxCurvatureChords = 2.0      // loop clamp: |curvature| <= 2·chord
	flipCurvatureFloor = 0.1      // flip correction only above this magnitude
	flipScale          = 0.7      // curvature scale applied on flip
	kinkAngleLimit     = 0.7 * math.Pi
	kinkScale          = 0.8 // bias scale applied on kink
)

// Constrain applies a one-pass heuristic that keeps the curve free of three
// visual defects: loops (excess curvature), flips (control points on opposite
// sides of the chord), and kinks (endpoint tangents folded back past the
// chord). Control points are re-derived after each correction.
func Constrain(start, end geometry.Point, c Control) Control {
	_, _, _, length := frame(start, end)
	if length == 0 {
		return c
	}

	// Loop: clamp curvature magnitude to twice the chord length.
	limit := maxCurvatureChords * length
	if math.Abs(c.Curvature) > limit {
		c.Curvature = math.Copysign(limit, c.Curvature)
	}

	chord := end.Sub(start)

	// Flip: endpoint tangents bending to opposite sides of the chord.
	cp1, cp2 := ControlPoints(start, end, c, 0, 0)
	cross1 := chord.Cross(cp1.Sub(start))
	cross2 := chord.Cross(cp2.Sub(end))
	if cross1*cross2 < 0 && math.Abs(c.Curvature) > flipCurvatureFloor {
		c.Curvature *= flipScale
		cp1, cp2 = ControlPoints(start, end, c, 0, 0)
	}

	// Kink: endpoint tangent deviating from the chord angle beyond the limit.
	chordAngle := math.Atan2(chord.Y, chord.X)
	t1 := cp1.Sub(start)
	t2 := end.Sub(cp2)
	if angleDelta(math.Atan2(t1.Y, t1.X), chordAngle) > kinkAngleLimit ||
		angleDelta(math.Atan2(t2.Y, t2.X), chordAngle) > kinkAngleLimit {
		c.Bias *= kinkScale
	}

	return c
}

// angleDelta returns the absolute difference between two angles, wrapped to
// [0, π].
func angleDelta(a, b float64) float64 {
	d := math.Mod(a-b, 2*math.Pi)
	if d < -math.Pi {
		d += 2 * math.Pi
	} else if d > math.Pi {
		d -= 2 * math.Pi
	}
	return math.Abs(d)
}
