package visual

import (
	"github.com/nvr-ai/galton-goalie/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// channelMax is the brightest value an 8-bit channel can show.
const channelMax = 255

// UltraLongExposure adds a fixed increment wherever motion is seen and never fades, so the
// paths of every ball ever dropped build up into a dense ghost image.
type UltraLongExposure struct {
	diff *images.Differencer
	mask gocv.Mat
	buf  buffer
}

// NewUltraLongExposure creates an empty ultra-long exposure accumulator.
func NewUltraLongExposure() *UltraLongExposure {
	return &UltraLongExposure{
		diff: images.NewDifferencer(images.FullFrameDifferencerConfig()),
		mask: gocv.NewMat(),
		buf:  newBuffer(),
	}
}

// Mode returns ModeUltraLongExposure.
func (u *UltraLongExposure) Mode() Mode {
	return ModeUltraLongExposure
}

// Update adds the increment to every channel under the motion mask and clips at 255.
func (u *UltraLongExposure) Update(frame gocv.Mat, s Settings) error {
	if err := checkFrame(frame); err != nil {
		return err
	}
	u.buf.ensure(frame.Rows(), frame.Cols())

	u.diff.SetConfig(s.differencer(1))
	ok, err := u.diff.Apply(frame, &u.mask)
	if err != nil {
		return errors.Wrap(err, "ultra long exposure")
	}
	if !ok {
		return nil
	}

	inc := float64(s.UltraIncrement)
	step := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(inc, inc, inc, 0), frame.Rows(), frame.Cols(), gocv.MatTypeCV32FC3)
	defer step.Close()
	masked := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), frame.Rows(), frame.Cols(), gocv.MatTypeCV32FC3)
	defer masked.Close()
	step.CopyToWithMask(&masked, u.mask)

	gocv.Add(u.buf.mat, masked, &u.buf.mat)
	gocv.Threshold(u.buf.mat, &u.buf.mat, channelMax, channelMax, gocv.ThresholdTrunc)
	return nil
}

// Render adds the buffer onto the frame, saturating at 255.
func (u *UltraLongExposure) Render(frame gocv.Mat, dst *gocv.Mat) error {
	if !u.buf.matches(frame) {
		frame.CopyTo(dst)
		return nil
	}
	addBuffer(frame, u.buf.mat, dst)
	return nil
}

// Buffer returns the accumulation buffer.
func (u *UltraLongExposure) Buffer() gocv.Mat {
	return u.buf.mat
}

// ResetBuffer clears the accumulated image but keeps the differencer's previous frame,
// so accumulation resumes on the very next moving frame.
func (u *UltraLongExposure) ResetBuffer() {
	u.buf.clear()
}

// Reset drops the buffer and the differencer history.
func (u *UltraLongExposure) Reset() {
	u.buf.clear()
	u.diff.Reset()
}

// Close releases native memory.
func (u *UltraLongExposure) Close() {
	u.buf.close()
	u.diff.Close()
	u.mask.Close()
}

// Initialized reports whether the differencer holds a previous frame.
func (u *UltraLongExposure) Initialized() bool {
	return u.diff.Initialized()
}
