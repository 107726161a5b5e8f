package visual

import "gocv.io/x/gocv"

// Color is a named trail colour in OpenCV channel order.
type Color struct {
	Name string
	B    uint8
	G    uint8
	R    uint8
}

// Scalar returns the colour as a BGR gocv.Scalar.
func (c Color) Scalar() gocv.Scalar {
	return gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0)
}

// TrailColors is the selectable trail palette.
var TrailColors = []Color{
	{Name: "Orange", B: 50, G: 150, R: 255},
	{Name: "Cyan", B: 255, G: 200, R: 50},
	{Name: "Magenta", B: 255, G: 50, R: 255},
	{Name: "Green", B: 50, G: 255, R: 50},
	{Name: "Blue", B: 255, G: 100, R: 100},
	{Name: "Yellow", B: 50, G: 255, R: 255},
	{Name: "White", B: 255, G: 255, R: 255},
	{Name: "Red", B: 100, G: 100, R: 255},
}

// TrailColor returns palette entry i, clamped into range.
func TrailColor(i int) Color {
	if i < 0 {
		i = 0
	}
	if i >= len(TrailColors) {
		i = len(TrailColors) - 1
	}
	return TrailColors[i]
}
