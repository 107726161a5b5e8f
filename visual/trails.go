package visual

import (
	"github.com/nvr-ai/galton-goalie/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Trails paints moving pixels with the trail colour and fades the whole buffer every
// frame, leaving comet tails behind the balls.
type Trails struct {
	diff *images.Differencer
	mask gocv.Mat
	buf  buffer
}

// NewTrails creates an empty trails accumulator.
func NewTrails() *Trails {
	return &Trails{
		diff: images.NewDifferencer(images.FullFrameDifferencerConfig()),
		mask: gocv.NewMat(),
		buf:  newBuffer(),
	}
}

// Mode returns ModeTrails.
func (t *Trails) Mode() Mode {
	return ModeTrails
}

// Update overwrites masked pixels with the trail colour, then scales the buffer by the
// trail fade.
func (t *Trails) Update(frame gocv.Mat, s Settings) error {
	if err := checkFrame(frame); err != nil {
		return err
	}
	t.buf.ensure(frame.Rows(), frame.Cols())

	t.diff.SetConfig(s.differencer(s.TrailSize))
	ok, err := t.diff.Apply(frame, &t.mask)
	if err != nil {
		return errors.Wrap(err, "trails")
	}
	if !ok {
		return nil
	}

	paint := gocv.NewMatWithSizeFromScalar(s.TrailColor.Scalar(), frame.Rows(), frame.Cols(), gocv.MatTypeCV32FC3)
	defer paint.Close()
	paint.CopyToWithMask(&t.buf.mat, t.mask)

	t.buf.mat.MultiplyFloat(s.trailFade())
	return nil
}

// Render adds the trail buffer onto the frame, saturating at 255.
func (t *Trails) Render(frame gocv.Mat, dst *gocv.Mat) error {
	if !t.buf.matches(frame) {
		frame.CopyTo(dst)
		return nil
	}
	addBuffer(frame, t.buf.mat, dst)
	return nil
}

// Buffer returns the trail buffer.
func (t *Trails) Buffer() gocv.Mat {
	return t.buf.mat
}

// Reset drops the buffer and the differencer history.
func (t *Trails) Reset() {
	t.buf.clear()
	t.diff.Reset()
}

// Close releases native memory.
func (t *Trails) Close() {
	t.buf.close()
	t.diff.Close()
	t.mask.Close()
}
