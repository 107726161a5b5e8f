package images

import (
	"image"
	"image/color"
	"strconv"

	"github.com/nvr-ai/galton-goalie/geometry"
	"gocv.io/x/gocv"
)

var (
	overlayGreen  = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	overlayYellow = color.RGBA{R: 255, G: 255, B: 0, A: 0}
)

// glowFullScale is the glow value that maps to the full highlight opacity.
const glowFullScale = 30.0

// DrawBucketOverlay draws the goal rectangle, bucket dividers, 1-based bucket labels and a
// translucent highlight on every bucket whose glow timer is running.
//
// The frame is modified in place; callers that need a clean frame draw on a copy.
//
// Arguments:
//   - frame: The BGR frame to draw on.
//   - region: The calibrated goal region.
//   - glows: Remaining glow frames per bucket; len(glows) is the bucket count.
func DrawBucketOverlay(frame *gocv.Mat, region geometry.GoalRegion, glows []int) {
	n := len(glows)
	if n == 0 || frame.Empty() {
		return
	}

	for i, glow := range glows {
		if glow <= 0 {
			continue
		}
		left, right := region.BucketBounds(i, n)
		rect := image.Rect(left, region.Y1, right, region.Y2).Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
		if rect.Empty() {
			continue
		}
		alpha := 0.3 * float64(glow) / glowFullScale
		highlight(frame, rect, alpha)
	}

	gocv.Rectangle(frame, region.Rect(), overlayGreen, 2)

	for i := 1; i < n; i++ {
		x, _ := region.BucketBounds(i, n)
		gocv.Line(frame, image.Pt(x, region.Y1), image.Pt(x, region.Y2), overlayGreen, 1)
	}

	w := region.BucketWidth(n)
	for i := 0; i < n; i++ {
		label := strconv.Itoa(i + 1)
		size := gocv.GetTextSize(label, gocv.FontHersheySimplex, 0.5, 1)
		cx := region.X1 + int((float64(i)+0.5)*w)
		org := image.Pt(cx-size.X/2, region.Y1-10)
		gocv.PutText(frame, label, org, gocv.FontHersheySimplex, 0.5, overlayGreen, 1)
	}
}

// highlight blends a yellow fill into rect with the given opacity.
func highlight(frame *gocv.Mat, rect image.Rectangle, alpha float64) {
	roi := frame.Region(rect)
	defer roi.Close()

	yellow := gocv.NewScalar(float64(overlayYellow.B), float64(overlayYellow.G), float64(overlayYellow.R), 0)
	fill := gocv.NewMatWithSizeFromScalar(yellow, roi.Rows(), roi.Cols(), roi.Type())
	defer fill.Close()

	gocv.AddWeighted(fill, alpha, roi, 1-alpha, 0, &roi)
}
