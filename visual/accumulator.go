package visual

import (
	"github.com/chewxy/math32"
	"github.com/nvr-ai/galton-goalie/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Settings are the per-frame tunables shared by all accumulators. A copy is passed to
// every Update so the caller can swap them between frames.
type Settings struct {
	// TrailColor is painted wherever the trail differencer sees motion.
	TrailColor Color
	// TrailFade is the percentage of trail brightness kept per frame.
	TrailFade int
	// TrailSize is the number of dilations applied to the trail mask.
	TrailSize int
	// ExposureDuration is the percentage of long-exposure history kept per frame.
	ExposureDuration int
	// BlurKernelSize is the full-frame differencer blur.
	BlurKernelSize int
	// Threshold is the full-frame differencer sensitivity.
	Threshold float32
	// UltraIncrement is added per channel under the ultra-long exposure mask.
	UltraIncrement float32
}

// DefaultSettings returns the stock visual tunables.
func DefaultSettings() Settings {
	full := images.FullFrameDifferencerConfig()
	return Settings{
		TrailColor:       TrailColors[0],
		TrailFade:        70,
		TrailSize:        full.DilateIterations,
		ExposureDuration: 85,
		BlurKernelSize:   full.BlurKernelSize,
		Threshold:        full.Threshold,
		UltraIncrement:   15,
	}
}

// trailFade returns the per-frame trail multiplier in [0, 1].
func (s Settings) trailFade() float32 {
	return math32.Max(0, math32.Min(1, float32(s.TrailFade)/100))
}

// exposureFade returns the per-frame long-exposure persistence in [0, 1].
func (s Settings) exposureFade() float32 {
	return math32.Max(0, math32.Min(1, float32(s.ExposureDuration)/100))
}

// differencer returns the full-frame differencer configuration for the given dilation.
func (s Settings) differencer(dilate int) images.DifferencerConfig {
	return images.DifferencerConfig{
		BlurKernelSize:   s.BlurKernelSize,
		Threshold:        s.Threshold,
		DilateIterations: dilate,
	}
}

// Accumulator is one visualization mode: a floating point BGR buffer with an update law
// and a render law.
type Accumulator interface {
	// Mode identifies the variant.
	Mode() Mode
	// Update folds frame into the buffer. The buffer is reinitialised to zero when the
	// frame size differs from it.
	Update(frame gocv.Mat, s Settings) error
	// Render writes the visible output for frame into dst. Without a buffer of the frame's
	// size the frame is copied unchanged.
	Render(frame gocv.Mat, dst *gocv.Mat) error
	// Buffer exposes the CV_32FC3 buffer for inspection; it is empty before the first
	// update.
	Buffer() gocv.Mat
	// Reset drops the buffer and any motion history.
	Reset()
	// Close releases native memory.
	Close()
}

// New returns the accumulator for mode, or nil for ModeOff.
func New(mode Mode) (Accumulator, error) {
	switch mode {
	case ModeOff:
		return nil, nil
	case ModeTrails:
		return NewTrails(), nil
	case ModeLongExposure:
		return NewLongExposure(), nil
	case ModeUltraLongExposure:
		return NewUltraLongExposure(), nil
	default:
		return nil, errors.Wrapf(ErrUnknownMode, "%d", int32(mode))
	}
}

// buffer is the CV_32FC3 accumulation surface shared by the variants.
type buffer struct {
	mat gocv.Mat
}

func newBuffer() buffer {
	return buffer{mat: gocv.NewMat()}
}

// ensure makes the buffer a zeroed rows x cols surface unless it already has that size.
func (b *buffer) ensure(rows, cols int) {
	if !b.mat.Empty() && b.mat.Rows() == rows && b.mat.Cols() == cols {
		return
	}
	b.mat.Close()
	b.mat = gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV32FC3)
}

// matches reports whether the buffer exists and has the frame's size.
func (b *buffer) matches(frame gocv.Mat) bool {
	return !b.mat.Empty() && b.mat.Rows() == frame.Rows() && b.mat.Cols() == frame.Cols()
}

func (b *buffer) clear() {
	b.mat.Close()
	b.mat = gocv.NewMat()
}

func (b *buffer) close() {
	b.mat.Close()
}

// checkFrame rejects frames the accumulators cannot blend with.
func checkFrame(frame gocv.Mat) error {
	if frame.Empty() {
		return errors.New("visual: empty frame")
	}
	if frame.Type() != gocv.MatTypeCV8UC3 {
		return errors.Errorf("visual: expected 8-bit BGR frame, got type %v", frame.Type())
	}
	return nil
}

// addBuffer renders buf onto frame with a saturating add.
func addBuffer(frame gocv.Mat, buf gocv.Mat, dst *gocv.Mat) {
	overlay := gocv.NewMat()
	defer overlay.Close()
	buf.ConvertTo(&overlay, gocv.MatTypeCV8UC3)
	gocv.Add(frame, overlay, dst)
}
