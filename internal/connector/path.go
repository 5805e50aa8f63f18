package connector

import (
	"strconv"
	"strings"

	"github.com/starford/tafl/internal/geometry"
)

// Path renders the resolved connector as SVG path commands:
// "M x y" followed by "L x y" per straight span or "C ..." per curved span.
func Path(r Resolved) string {
	if len(r.Spans) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("M ")
	writePoint(&b, r.Spans[0].Start)
	for _, s := range r.Spans {
		if s.Straight {
			b.WriteString(" L ")
			writePoint(&b, s.End)
			continue
		}
		b.WriteString(" C ")
		writePoint(&b, s.CP1)
		b.WriteByte(' ')
		writePoint(&b, s.CP2)
		b.WriteByte(' ')
		writePoint(&b, s.End)
	}
	return b.String()
}

func writePoint(b *strings.Builder, p geometry.Point) {
	b.WriteString(formatCoord(p.X))
	b.WriteByte(' ')
	b.WriteString(formatCoord(p.Y))
}

// formatCoord trims coordinates to two decimals and drops trailing zeros so
// integral values render bare ("300", not "300.00").
func formatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		s = "0"
	}
	return s
}

// hitSamples is how many segments each curved span is flattened into for
// selection testing.
const hitSamples = 15

// IntersectsRect reports whether any part of the connector's sampled
// polyline lies within sel, expanded by half the stroke width. Straight
// spans test as single segments; curved spans are sampled. Segments parallel
// to a rectangle edge rely on the endpoint-containment test, matching the
// degenerate no-intersection behavior of the segment test.
func IntersectsRect(r Resolved, sel geometry.Rect, strokeWidth float64) bool {
	rect := sel.Expand(strokeWidth / 2)
	for _, s := range r.Spans {
		var pts []geometry.Point
		if s.Straight {
			pts = []geometry.Point{s.Start, s.End}
		} else {
			pts = geometry.SampleCubic(s.Start, s.CP1, s.CP2, s.End, hitSamples)
		}
		for i := 0; i < len(pts)-1; i++ {
			if segmentTouchesRect(pts[i], pts[i+1], rect) {
				return true
			}
		}
	}
	return false
}

func segmentTouchesRect(a, b geometry.Point, rect geometry.Rect) bool {
	if rect.Contains(a) || rect.Contains(b) {
		return true
	}
	corners := [4]geometry.Point{
		{X: rect.X, Y: rect.Y},
		{X: rect.X + rect.W, Y: rect.Y},
		{X: rect.X + rect.W, Y: rect.Y + rect.H},
		{X: rect.X, Y: rect.Y + rect.H},
	}
	for i := 0; i < 4; i++ {
		if _, ok := geometry.SegmentIntersection(a, b, corners[i], corners[(i+1)%4]); ok {
			return true
		}
	}
	return false
}
