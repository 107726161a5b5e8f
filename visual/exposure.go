package visual

import (
	"gocv.io/x/gocv"
)

// LongExposure keeps the per-pixel brightest value and lets it decay toward the live frame,
// producing streaks that fade out rather than cut off.
type LongExposure struct {
	buf   buffer
	frame gocv.Mat
}

// NewLongExposure creates an empty long-exposure accumulator.
func NewLongExposure() *LongExposure {
	return &LongExposure{
		buf:   newBuffer(),
		frame: gocv.NewMat(),
	}
}

// Mode returns ModeLongExposure.
func (l *LongExposure) Mode() Mode {
	return ModeLongExposure
}

// Update applies buf = max(buf, frame) followed by
// buf = buf*fade + frame*(1-fade)*0.5, where fade is the exposure duration fraction.
func (l *LongExposure) Update(frame gocv.Mat, s Settings) error {
	if err := checkFrame(frame); err != nil {
		return err
	}
	l.buf.ensure(frame.Rows(), frame.Cols())

	frame.ConvertTo(&l.frame, gocv.MatTypeCV32FC3)
	gocv.Max(l.buf.mat, l.frame, &l.buf.mat)

	fade := float64(s.exposureFade())
	gocv.AddWeighted(l.buf.mat, fade, l.frame, (1-fade)*0.5, 0, &l.buf.mat)
	return nil
}

// Render replaces the frame with the clipped buffer.
func (l *LongExposure) Render(frame gocv.Mat, dst *gocv.Mat) error {
	if !l.buf.matches(frame) {
		frame.CopyTo(dst)
		return nil
	}
	l.buf.mat.ConvertTo(dst, gocv.MatTypeCV8UC3)
	return nil
}

// Buffer returns the exposure buffer.
func (l *LongExposure) Buffer() gocv.Mat {
	return l.buf.mat
}

// Reset drops the buffer.
func (l *LongExposure) Reset() {
	l.buf.clear()
}

// Close releases native memory.
func (l *LongExposure) Close() {
	l.buf.close()
	l.frame.Close()
}
