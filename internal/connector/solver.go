// Package connector resolves connector geometry against the cards its
// endpoints are attached to and renders the result as SVG path data.
//
// An attached endpoint has no fixed side: it is the boundary exit point of a
// ray from the card's center. For curved connectors the curve's tangent at
// the endpoint depends on the endpoint's own position, a circular dependency
// resolved by bounded fixed-point iteration.
package connector

import (
	"log/slog"
	"math"

	"github.com/starford/tafl/internal/curve"
	"github.com/starford/tafl/internal/geometry"
	"github.com/starford/tafl/internal/models"
)

// RectLookup resolves a card id to its current screen bounds. The second
// return value is false when the card cannot be located this frame.
type RectLookup func(cardID string) (geometry.Rect, bool)

// Span is one rendered segment of a connector between two consecutive chain
// points (endpoints and reroute nodes).
type Span struct {
	Start, End geometry.Point
	CP1, CP2   geometry.Point
	Straight   bool
}

// Resolved is a connector's fully solved geometry for one frame.
type Resolved struct {
	Start, End geometry.Point
	Spans      []Span
	// Handle is the draggable mid-curve point of the first span.
	Handle geometry.Point
	// Iterations is how many fixed-point rounds the solver ran (0 for the
	// single-pass cases).
	Iterations int
}

const (
	maxIterations   = 5    // hard cap; rendering never waits on convergence
	convergeEpsilon = 0.5  // px movement below which iteration stops
	tangentReach    = 1000 // how far along the tangent the aiming ray extends
)

// Resolve computes a connector's on-screen geometry. Attached endpoints are
// projected onto their card's boundary; unattached or straight connectors
// take a single pass, curved attached ones iterate to a fixed point.
func Resolve(c *models.Connector, rects RectLookup, logger *slog.Logger) Resolved {
	if logger == nil {
		logger = slog.Default()
	}

	chain := chainPoints(c)
	control := curve.Control{Curvature: c.Curvature, Bias: c.Bias}

	startRect, startAttached := attachmentRect(c.StartAttach, rects, logger)
	endRect, endAttached := attachmentRect(c.EndAttach, rects, logger)

	start := chain[0]
	end := chain[len(chain)-1]

	// Straight-line initial estimate: aim each attached endpoint at its
	// neighboring chain point. When both endpoints of a single-span
	// connector are attached, the stored fallback coordinates may be stale,
	// so aim at the other card's center instead.
	if startAttached {
		target := chain[1]
		if len(chain) == 2 && endAttached {
			target = endRect.Center()
		}
		start = exitPoint(startRect, target, logger)
	}
	if endAttached {
		target := chain[len(chain)-2]
		if len(chain) == 2 && startAttached {
			target = startRect.Center()
		}
		end = exitPoint(endRect, target, logger)
	}

	iterations := 0
	if !control.IsStraight() && (startAttached || endAttached) {
		start, end, iterations = iterate(start, end, chain, control, startRect, startAttached, endRect, endAttached, logger)
	}

	chain[0] = start
	chain[len(chain)-1] = end
	control = curve.Constrain(start, end, control)

	spans := buildSpans(chain, control, startRect, startAttached, endRect, endAttached)

	res := Resolved{Start: start, End: end, Spans: spans, Iterations: iterations}
	if len(spans) > 0 {
		s := spans[0]
		if s.Straight {
			res.Handle = s.Start.Lerp(s.End, 0.5)
		} else {
			res.Handle = geometry.CubicPoint(s.Start, s.CP1, s.CP2, s.End, 0.5)
		}
	}
	return res
}

// iterate runs the fixed-point loop: derive the curve from the current
// endpoint estimates, re-aim each attached endpoint outward along the curve's
// tangent, and repeat until movement drops below half a pixel or the
// iteration cap is reached.
func iterate(start, end geometry.Point, chain []geometry.Point, control curve.Control,
	startRect geometry.Rect, startAttached bool, endRect geometry.Rect, endAttached bool,
	logger *slog.Logger) (geometry.Point, geometry.Point, int) {

	iterations := 0
	for iterations < maxIterations {
		iterations++

		// Outer spans only; interior reroute spans never attach.
		startSpanEnd := chain[1]
		if len(chain) == 2 {
			startSpanEnd = end
		}
		endSpanStart := chain[len(chain)-2]
		if len(chain) == 2 {
			endSpanStart = start
		}

		constrained := curve.Constrain(start, end, control)

		moved := 0.0
		if startAttached {
			d1 := dynamicHandleLength(start, startSpanEnd, startRect)
			cp1, _ := curve.ControlPoints(start, startSpanEnd, constrained, d1, 0)
			dir := cp1.Sub(start).Normalize()
			target := startRect.Center().Add(dir.Scale(tangentReach))
			next := exitPoint(startRect, target, logger)
			moved = math.Max(moved, next.DistanceTo(start))
			start = next
		}
		if endAttached {
			d2 := dynamicHandleLength(end, endSpanStart, endRect)
			_, cp2 := curve.ControlPoints(endSpanStart, end, constrained, 0, d2)
			dir := cp2.Sub(end).Normalize()
			target := endRect.Center().Add(dir.Scale(tangentReach))
			next := exitPoint(endRect, target, logger)
			moved = math.Max(moved, next.DistanceTo(end))
			end = next
		}

		if moved < convergeEpsilon {
			break
		}
	}
	return start, end, iterations
}

// buildSpans renders every chain segment with the shared curvature/bias.
// Dynamic handle lengths apply only at the attached outer endpoints.
func buildSpans(chain []geometry.Point, control curve.Control,
	startRect geometry.Rect, startAttached bool, endRect geometry.Rect, endAttached bool) []Span {

	spans := make([]Span, 0, len(chain)-1)
	for i := 0; i < len(chain)-1; i++ {
		a, b := chain[i], chain[i+1]
		if control.IsStraight() || a == b {
			spans = append(spans, Span{Start: a, End: b, CP1: a, CP2: b, Straight: true})
			continue
		}
		d1, d2 := 0.0, 0.0
		if i == 0 && startAttached {
			d1 = dynamicHandleLength(a, b, startRect)
		}
		if i == len(chain)-2 && endAttached {
			d2 = dynamicHandleLength(b, a, endRect)
		}
		cp1, cp2 := curve.ControlPoints(a, b, control, d1, d2)
		spans = append(spans, Span{Start: a, End: b, CP1: cp1, CP2: cp2})
	}
	return spans
}

const minHandleLength = 20.0

// dynamicHandleLength computes the distance from an attached endpoint to its
// adjacent control point. The default third of the chord is scaled down by an
// angle factor (sharp approach angles shorten the handle) and a distance
// factor (endpoints close to the card center shorten it), then clamped so
// the curve neither collapses nor overshoots.
func dynamicHandleLength(endpoint, other geometry.Point, rect geometry.Rect) float64 {
	chord := other.Sub(endpoint).Length()
	if chord == 0 {
		return minHandleLength
	}
	base := chord / 3

	toOther := other.Sub(endpoint).Normalize()
	toCenter := rect.Center().Sub(endpoint).Normalize()
	angleFactor := 0.5 + 0.5*toOther.Dot(toCenter)

	span := 2 * math.Max(rect.W, rect.H)
	distFactor := 1.0
	if span > 0 {
		distFactor = math.Min(1, rect.Center().DistanceTo(endpoint)/span)
	}

	l := base * angleFactor * distFactor

	hi := 0.4 * chord
	if hi < minHandleLength {
		return hi
	}
	return math.Min(math.Max(l, minHandleLength), hi)
}

// exitPoint is RayRectIntersection with the documented fallback: when the
// ray misses (origin outside the rect, an upstream inconsistency), the card
// center is used and a warning logged.
func exitPoint(rect geometry.Rect, target geometry.Point, logger *slog.Logger) geometry.Point {
	center := rect.Center()
	p, ok := geometry.RayRectIntersection(rect, center, target)
	if !ok {
		logger.Warn("connector: no boundary intersection, falling back to card center",
			slog.Float64("target_x", target.X), slog.Float64("target_y", target.Y))
		return center
	}
	return p
}

// attachmentRect resolves an attachment to its card's bounds. A missing card
// downgrades the endpoint to free (stored fallback coordinates) with a
// warning.
func attachmentRect(a *models.Attachment, rects RectLookup, logger *slog.Logger) (geometry.Rect, bool) {
	if a == nil {
		return geometry.Rect{}, false
	}
	r, ok := rects(a.CardID)
	if !ok {
		logger.Warn("connector: attached card not found, endpoint falls back to stored position",
			slog.String("card_id", a.CardID))
		return geometry.Rect{}, false
	}
	return r, true
}

// chainPoints returns the connector's point chain in board space:
// start, reroute nodes..., end.
func chainPoints(c *models.Connector) []geometry.Point {
	pts := make([]geometry.Point, 0, len(c.Nodes)+2)
	pts = append(pts, c.StartPoint())
	for _, n := range c.Nodes {
		pts = append(pts, geometry.Point{X: c.X + n.X, Y: c.Y + n.Y})
	}
	pts = append(pts, c.EndPoint())
	return pts
}
