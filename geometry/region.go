// Package geometry holds the calibrated goal strip and the bucket layout derived from it.
package geometry

import (
	"fmt"
	"image"
	"math"

	"github.com/pkg/errors"
)

// DefaultBuckets is the number of landing slots on the board.
const DefaultBuckets = 11

// ErrDegenerateRegion is returned when a goal region has no width or height.
var ErrDegenerateRegion = errors.New("goal region must have positive width and height")

// GoalRegion is the calibrated rectangle, in frame pixels, where ball crossings are counted.
//
// A GoalRegion is an immutable value. Callers replace it wholesale, they never patch fields
// of a region another goroutine may be reading.
type GoalRegion struct {
	X1 int `json:"x1" yaml:"x1"`
	Y1 int `json:"y1" yaml:"y1"`
	X2 int `json:"x2" yaml:"x2"`
	Y2 int `json:"y2" yaml:"y2"`
}

// NewGoalRegion builds a region from two opposite corners given in any order.
//
// Arguments:
//   - x1, y1: The first corner.
//   - x2, y2: The opposite corner.
//
// Returns:
//   - *GoalRegion: The normalised region.
//   - error: ErrDegenerateRegion if the rectangle has no area.
//
// @example
// region, err := geometry.NewGoalRegion(640, 300, 120, 340)
// // region.X1 == 120, region.X2 == 640
func NewGoalRegion(x1, y1, x2, y2 int) (*GoalRegion, error) {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	r := &GoalRegion{X1: x1, Y1: y1, X2: x2, Y2: y2}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate reports whether the region satisfies x1<x2 and y1<y2.
func (r GoalRegion) Validate() error {
	if r.X1 >= r.X2 || r.Y1 >= r.Y2 {
		return errors.Wrapf(ErrDegenerateRegion, "got %s", r)
	}
	return nil
}

// Width returns the horizontal extent of the region.
func (r GoalRegion) Width() int {
	return r.X2 - r.X1
}

// Height returns the vertical extent of the region.
func (r GoalRegion) Height() int {
	return r.Y2 - r.Y1
}

// Rect returns the region as an image.Rectangle.
func (r GoalRegion) Rect() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// Clip intersects the region with a frame of the given size. The result is empty when the
// region lies entirely outside the frame.
func (r GoalRegion) Clip(width, height int) image.Rectangle {
	return r.Rect().Intersect(image.Rect(0, 0, width, height))
}

// BucketWidth returns the width of one of n equal buckets.
func (r GoalRegion) BucketWidth(n int) float64 {
	return float64(r.Width()) / float64(n)
}

// BucketIndex maps a horizontal centroid to one of n buckets.
//
// Centroids outside [X1, X2] belong to no bucket. A centroid inside the region whose
// division lands on n (the right edge) is clamped to n-1.
//
// Arguments:
//   - cx: The centroid x-coordinate in frame pixels.
//   - n: The number of buckets.
//
// Returns:
//   - int: The zero-based bucket index.
//   - bool: false when cx is outside the region or n is not positive.
func (r GoalRegion) BucketIndex(cx float64, n int) (int, bool) {
	if n <= 0 || math.IsNaN(cx) {
		return 0, false
	}
	if cx < float64(r.X1) || cx > float64(r.X2) {
		return 0, false
	}
	idx := int(math.Floor((cx - float64(r.X1)) / r.BucketWidth(n)))
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx, true
}

// BucketBounds returns the left and right pixel edges of bucket i.
func (r GoalRegion) BucketBounds(i, n int) (left, right int) {
	w := r.BucketWidth(n)
	return r.X1 + int(float64(i)*w), r.X1 + int(float64(i+1)*w)
}

// String formats the region as (x1,y1)-(x2,y2).
func (r GoalRegion) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.X1, r.Y1, r.X2, r.Y2)
}
