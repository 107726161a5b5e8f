// Package capture provides the frame sources feeding the processing loop: cameras, video
// files and directories of still images.
package capture

import (
	"time"

	"github.com/nvr-ai/galton-goalie/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrEndOfStream is returned by Read once a finite source has no more frames.
var ErrEndOfStream = errors.New("end of stream")

// ErrDeviceLost is returned by a camera source after MaxReadFailures consecutive failed reads.
var ErrDeviceLost = errors.New("capture device lost")

const (
	// MaxReadFailures is how many reads in a row a camera may fail before it is given up.
	MaxReadFailures = 60
	// ReadRetryDelay is the pause between two attempts on a failing camera.
	ReadRetryDelay = 16 * time.Millisecond
)

// Source delivers BGR frames in arrival order.
type Source interface {
	// Read decodes the next frame into dst.
	Read(dst *gocv.Mat) error
	// Close releases the underlying device or file.
	Close() error
}

// grabber is the part of gocv.VideoCapture the sources use.
type grabber interface {
	Read(m *gocv.Mat) bool
	Get(prop gocv.VideoCaptureProperties) float64
	Close() error
}

// VideoSource reads frames from a camera or a video file through OpenCV.
type VideoSource struct {
	capture grabber
	name    string
	finite  bool

	maxFailures int
	retryDelay  time.Duration
	sleep       func(time.Duration)
}

func newVideoSource(g grabber, name string, finite bool) *VideoSource {
	return &VideoSource{
		capture:     g,
		name:        name,
		finite:      finite,
		maxFailures: MaxReadFailures,
		retryDelay:  ReadRetryDelay,
		sleep:       time.Sleep,
	}
}

// OpenDevice opens camera index and requests the given capture resolution. Cameras are free
// to deliver a different size; the processing loop adapts to whatever arrives.
//
// Arguments:
//   - index: The camera index.
//   - res: The requested capture resolution. A zero value leaves the driver default.
//
// Returns:
//   - *VideoSource: The opened source.
//   - error: An error if the camera cannot be opened.
func OpenDevice(index int, res images.Resolution) (*VideoSource, error) {
	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, errors.Wrapf(err, "open camera %d", index)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.Errorf("camera %d is not available", index)
	}

	if res.Pixels.Width > 0 && res.Pixels.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(res.Pixels.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(res.Pixels.Height))
	}

	return newVideoSource(vc, "camera", false), nil
}

// OpenFile opens a video file. Reading past the last frame returns ErrEndOfStream.
func OpenFile(path string) (*VideoSource, error) {
	vc, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open video %s", path)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.Errorf("video %s cannot be read", path)
	}
	return newVideoSource(vc, path, true), nil
}

// Read grabs the next frame. A file that stops delivering has ended. A camera that drops a
// frame is retried, and only MaxReadFailures failures in a row end the stream with
// ErrDeviceLost.
func (s *VideoSource) Read(dst *gocv.Mat) error {
	for failures := 0; ; {
		if ok := s.capture.Read(dst); ok && !dst.Empty() {
			return nil
		}
		if s.finite {
			return ErrEndOfStream
		}
		failures++
		if failures >= s.maxFailures {
			return errors.Wrapf(ErrDeviceLost, "%s: %d reads failed", s.name, failures)
		}
		s.sleep(s.retryDelay)
	}
}

// FrameSize reports the size frames are currently delivered at.
func (s *VideoSource) FrameSize() (width, height int) {
	return int(s.capture.Get(gocv.VideoCaptureFrameWidth)), int(s.capture.Get(gocv.VideoCaptureFrameHeight))
}

// Close releases the capture device.
func (s *VideoSource) Close() error {
	return s.capture.Close()
}
