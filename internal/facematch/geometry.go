package facematch

import (
	"fmt"
	"image"
	"strings"
)

// Rect is an axis-aligned face rectangle in pixel coordinates.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Area returns the rectangle area in pixels, zero for degenerate rectangles.
func (r Rect) Area() int {
	if r.W <= 0 || r.H <= 0 {
		return 0
	}
	return r.W * r.H
}

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool {
	return r.Area() == 0
}

// Image converts to an image.Rectangle ([x, y, x+w, y+h]).
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// RectFromImage converts an image.Rectangle back to a Rect.
func RectFromImage(r image.Rectangle) Rect {
	return Rect{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// ClampRect intersects the rectangle with the frame bounds.
func ClampRect(r Rect, bounds image.Rectangle) Rect {
	return RectFromImage(r.Image().Intersect(bounds))
}

// SelectionPolicy decides which detected face a frame is recognized by.
type SelectionPolicy string

const (
	// SelectLargest picks the largest-area rectangle, ties go to the earliest one.
	SelectLargest SelectionPolicy = "largest"
	// SelectFirst picks the detector's first rectangle.
	SelectFirst SelectionPolicy = "first"
)

// ParseSelectionPolicy parses a policy name, case-insensitively.
func ParseSelectionPolicy(s string) (SelectionPolicy, error) {
	switch p := SelectionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case SelectLargest, SelectFirst:
		return p, nil
	case "":
		return SelectLargest, nil
	default:
		return "", fmt.Errorf("unknown face selection policy %q (want %q or %q)", s, SelectLargest, SelectFirst)
	}
}

// SelectFace clamps the rectangles to the frame, drops empty ones and picks one
// according to the policy. ok is false when nothing usable remains.
func SelectFace(rects []Rect, bounds image.Rectangle, policy SelectionPolicy) (Rect, bool) {
	var (
		best  Rect
		found bool
	)
	for _, r := range rects {
		r = ClampRect(r, bounds)
		if r.Empty() {
			continue
		}
		if !found {
			best, found = r, true
			if policy == SelectFirst {
				break
			}
			continue
		}
		if r.Area() > best.Area() {
			best = r
		}
	}
	return best, found
}
