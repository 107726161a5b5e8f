// Package recorder writes the processing loop's output frames to video files.
package recorder

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nvr-ai/galton-goalie/controller"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Options configure a Recorder.
type Options struct {
	// Folder receives the video files (default ".").
	Folder string
	// WithOverlay records the frame with the bucket overlay drawn on it.
	WithOverlay bool
	// FPS is written into the container (default 30).
	FPS float64
	// Codec is the FourCC of the video codec (default "mp4v").
	Codec string
	// Extension selects the container (default ".mp4").
	Extension string
	Logger *slog.Logger
}

// Recorder is a frame sink that records while started. The writer is opened lazily on the
// first frame so the file takes the size of the frames actually produced. When the frame
// size changes mid-recording the current file is closed and a new segment is started.
type Recorder struct {
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	recording bool
	path      string
	writer    *gocv.VideoWriter
	size      image.Point
	segments  []string
	frames    int
	now       func() time.Time
}

// New creates an idle recorder.
func New(opts Options) *Recorder {
	if opts.Folder == "" {
		opts.Folder = "."
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Codec == "" {
		opts.Codec = "mp4v"
	}
	if opts.Extension == "" {
		opts.Extension = ".mp4"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Recorder{opts: opts, logger: opts.Logger, now: time.Now}
}

// Start begins a new recording and returns its file path.
func (r *Recorder) Start() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return r.path, nil
	}
	if err := os.MkdirAll(r.opts.Folder, 0o755); err != nil {
		return "", errors.Wrapf(err, "create recording folder %s", r.opts.Folder)
	}
	name := fmt.Sprintf("galton_recording_%s%s", r.now().Format("20060102_150405"), r.opts.Extension)
	r.path = filepath.Join(r.opts.Folder, name)
	r.recording = true
	r.frames = 0
	r.segments = nil
	r.logger.Info("recording started", "path", r.path, "overlay", r.opts.WithOverlay)
	return r.path, nil
}

// Stop finishes the current recording and returns its path and frame count. The path is the
// first segment; Segments lists every file of the recording.
func (r *Recorder) Stop() (string, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return "", 0, nil
	}
	path, frames := r.path, r.frames
	r.recording = false
	r.path = ""
	r.frames = 0

	err := r.closeWriter()
	r.logger.Info("recording stopped", "path", path, "frames", frames, "segments", len(r.segments))
	return path, frames, err
}

// Segments returns the files written by the current or last recording.
func (r *Recorder) Segments() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.segments...)
}

func (r *Recorder) closeWriter() error {
	if r.writer == nil {
		return nil
	}
	err := r.writer.Close()
	r.writer = nil
	return errors.Wrap(err, "close video writer")
}

// segmentPath names segment n (1-based) of the recording.
func (r *Recorder) segmentPath(n int) string {
	if n == 1 {
		return r.path
	}
	ext := filepath.Ext(r.path)
	return fmt.Sprintf("%s_part%d%s", strings.TrimSuffix(r.path, ext), n, ext)
}

// Recording reports whether frames are being written.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// HandleFrame implements controller.FrameSink.
func (r *Recorder) HandleFrame(frame controller.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording || frame.Image.Empty() {
		return nil
	}

	size := image.Pt(frame.Image.Cols(), frame.Image.Rows())
	if r.writer != nil && size != r.size {
		r.logger.Info("frame size changed, starting a new segment",
			"width", size.X, "height", size.Y, "previous_width", r.size.X, "previous_height", r.size.Y)
		if err := r.closeWriter(); err != nil {
			r.logger.Warn("closing recording segment", "error", err)
		}
	}
	if r.writer == nil {
		path := r.segmentPath(len(r.segments) + 1)
		w, err := gocv.VideoWriterFile(path, r.opts.Codec, r.opts.FPS, size.X, size.Y, true)
		if err != nil {
			r.recording = false
			return errors.Wrapf(err, "open video writer %s", path)
		}
		r.writer = w
		r.size = size
		r.segments = append(r.segments, path)
	}

	if r.opts.WithOverlay {
		img := frame.WithOverlay()
		defer img.Close()
		if err := r.writer.Write(img); err != nil {
			return errors.Wrap(err, "write frame")
		}
	} else if err := r.writer.Write(frame.Image); err != nil {
		return errors.Wrap(err, "write frame")
	}
	r.frames++
	return nil
}
