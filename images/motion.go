// Package images - This file contains the frame differencing stage that turns consecutive
// video frames into a binary motion mask using OpenCV (via gocv).
//
// The Differencer keeps exactly one piece of history, the smoothed grayscale map of the
// previous frame, and compares every new frame against it.
//
// Pipeline Overview:
//
// ┌──────────────┐
// │ Input Frame  │  (BGR, BGRA or single channel)
// └──────┬───────┘
// ┌────────────────────────────┐
// │ Grayscale conversion       │
// └──────┬─────────────────────┘
// ┌────────────────────────────┐
// │ Gaussian blur (k x k)      │
// └──────┬─────────────────────┘
// ┌────────────────────────────┐
// │ AbsDiff vs previous map    │──► previous map := current map
// └──────┬─────────────────────┘
// ┌────────────────────────────┐
// │ Thresholding (binary mask) │
// └──────┬─────────────────────┘
// ┌────────────────────────────┐
// │ Morphology (dilate x n)    │
// └──────┬─────────────────────┘
// ┌────────────────────────────┐
// │ Motion Mask Output         │
// └────────────────────────────┘
//
// Usage:
//
//	diff := images.NewDifferencer(images.GoalDifferencerConfig())
//	defer diff.Close()
//
//	mask := gocv.NewMat()
//	defer mask.Close()
//
//	for {
//	    frame := getNextFrame()
//	    if ok, err := diff.Apply(frame, &mask); err == nil && ok {
//	        regions := images.ExtractRegions(mask, 100)
//	        ...
//	    }
//	}
//
// Note: You must call Close() when finished to release native resources.
package images

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// DifferencerConfig contains the tunables of one differencing pipeline.
type DifferencerConfig struct {
	// BlurKernelSize is the Gaussian kernel edge length, forced odd and positive.
	BlurKernelSize int
	// Threshold is the per-pixel luminance difference that counts as motion.
	Threshold float32
	// DilateIterations is how many times the mask is dilated with a 3x3 rectangle.
	DilateIterations int
}

// GoalDifferencerConfig returns the heavier-blur configuration used on the goal strip.
func GoalDifferencerConfig() DifferencerConfig {
	return DifferencerConfig{
		BlurKernelSize:   21,
		Threshold:        30,
		DilateIterations: 2,
	}
}

// FullFrameDifferencerConfig returns the lighter-blur configuration used by the full-frame
// visualizations.
func FullFrameDifferencerConfig() DifferencerConfig {
	return DifferencerConfig{
		BlurKernelSize:   11,
		Threshold:        25,
		DilateIterations: 3,
	}
}

// normalized forces an odd positive kernel, a threshold of at least 1 and non-negative
// dilation.
func (c DifferencerConfig) normalized() DifferencerConfig {
	if c.BlurKernelSize < 1 {
		c.BlurKernelSize = 1
	}
	if c.BlurKernelSize%2 == 0 {
		c.BlurKernelSize++
	}
	if c.Threshold < 1 {
		c.Threshold = 1
	}
	if c.DilateIterations < 0 {
		c.DilateIterations = 0
	}
	return c
}

// Differencer computes binary motion masks from consecutive frames.
//
// The zero value is not usable, construct one with NewDifferencer. A Differencer is owned
// by a single goroutine; it is not safe for concurrent use.
type Differencer struct {
	config      DifferencerConfig
	previous    gocv.Mat
	gray        gocv.Mat
	blurred     gocv.Mat
	delta       gocv.Mat
	kernel      gocv.Mat
	initialized bool
}

// NewDifferencer creates a differencer with empty history.
//
// Arguments:
//   - config: The blur, threshold and dilation settings.
//
// Returns:
//   - *Differencer: The differencer. Call Close when done.
func NewDifferencer(config DifferencerConfig) *Differencer {
	return &Differencer{
		config:   config.normalized(),
		previous: gocv.NewMat(),
		gray:     gocv.NewMat(),
		blurred:  gocv.NewMat(),
		delta:    gocv.NewMat(),
		kernel:   gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3)),
	}
}

// Apply runs the pipeline on frame and writes the binary (0/255, CV_8UC1) motion mask into
// mask.
//
// When there is no stored map yet, or the stored map has a different size than frame, the
// current map is stored and an all-zero mask is returned together with false. This is the
// normal first-frame condition, not an error.
//
// Arguments:
//   - frame: The frame or region of interest to analyse.
//   - mask: Destination for the motion mask, resized as needed.
//
// Returns:
//   - bool: true when the mask was computed against a previous map.
//   - error: An error if the frame is empty or a gocv stage fails.
func (d *Differencer) Apply(frame gocv.Mat, mask *gocv.Mat) (bool, error) {
	if frame.Empty() {
		return false, errors.New("differencer: empty frame")
	}

	switch frame.Channels() {
	case 1:
		frame.CopyTo(&d.gray)
	case 4:
		gocv.CvtColor(frame, &d.gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(frame, &d.gray, gocv.ColorBGRToGray)
	}

	k := d.config.BlurKernelSize
	gocv.GaussianBlur(d.gray, &d.blurred, image.Pt(k, k), 0, 0, gocv.BorderDefault)

	if !d.initialized || d.previous.Rows() != d.blurred.Rows() || d.previous.Cols() != d.blurred.Cols() {
		d.blurred.CopyTo(&d.previous)
		d.initialized = true
		zeroMask(mask, d.blurred.Rows(), d.blurred.Cols())
		return false, nil
	}

	gocv.AbsDiff(d.previous, d.blurred, &d.delta)
	gocv.Threshold(d.delta, mask, d.config.Threshold, 255, gocv.ThresholdBinary)

	for i := 0; i < d.config.DilateIterations; i++ {
		if err := gocv.Dilate(*mask, mask, d.kernel); err != nil {
			return false, errors.Wrap(err, "differencer: dilate")
		}
	}

	d.blurred.CopyTo(&d.previous)
	return true, nil
}

// Initialized reports whether a previous map is stored.
func (d *Differencer) Initialized() bool {
	return d.initialized
}

// Config returns the normalised configuration in use.
func (d *Differencer) Config() DifferencerConfig {
	return d.config
}

// SetConfig replaces the configuration. The stored map is kept, so a threshold or
// dilation change takes effect on the very next frame.
func (d *Differencer) SetConfig(config DifferencerConfig) {
	d.config = config.normalized()
}

// Reset forgets the stored map. The next Apply call behaves like a first frame.
func (d *Differencer) Reset() {
	d.previous.Close()
	d.previous = gocv.NewMat()
	d.initialized = false
}

// Close releases all OpenCV native resources used by the differencer.
func (d *Differencer) Close() {
	d.previous.Close()
	d.gray.Close()
	d.blurred.Close()
	d.delta.Close()
	d.kernel.Close()
}

// zeroMask overwrites mask with an all-zero single channel image of the given size.
func zeroMask(mask *gocv.Mat, rows, cols int) {
	zero := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8UC1)
	defer zero.Close()
	zero.CopyTo(mask)
}
