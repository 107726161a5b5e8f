package controller

import (
	"crypto/md5"
	"encoding/hex"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nvr-ai/galton-goalie/capture"
	"github.com/nvr-ai/galton-goalie/geometry"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

const (
	frameRows = 120
	frameCols = 480
)

// goal spans 440 pixels, so each of the 11 buckets is 40 pixels wide.
var goal = &geometry.GoalRegion{X1: 0, Y1: 20, X2: 440, Y2: 100}

// frameWithBlobs returns a black frame with a white 10x10 square at each top-left corner.
func frameWithBlobs(corners ...image.Point) gocv.Mat {
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), frameRows, frameCols, gocv.MatTypeCV8UC3)
	for _, c := range corners {
		gocv.Rectangle(&m, image.Rect(c.X, c.Y, c.X+10, c.Y+10), color.RGBA{R: 255, G: 255, B: 255}, -1)
	}
	return m
}

// sliceSource replays prepared frames, optionally forever.
type sliceSource struct {
	frames []gocv.Mat
	next   int
	loop   bool
	err    error
	closed atomic.Bool
}

func newSliceSource(corners ...[]image.Point) *sliceSource {
	s := &sliceSource{}
	for _, c := range corners {
		s.frames = append(s.frames, frameWithBlobs(c...))
	}
	return s
}

func (s *sliceSource) Read(dst *gocv.Mat) error {
	if s.next >= len(s.frames) {
		if s.err != nil {
			return s.err
		}
		if !s.loop {
			return capture.ErrEndOfStream
		}
		s.next = 0
	}
	s.frames[s.next].CopyTo(dst)
	s.next++
	return nil
}

func (s *sliceSource) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *sliceSource) release() {
	for _, f := range s.frames {
		f.Close()
	}
}

// recordingSink remembers the sequence numbers and overlay state of every frame it sees.
type recordingSink struct {
	mu       sync.Mutex
	seqs     []uint64
	regioned int
	fail     bool
}

func (r *recordingSink) HandleFrame(frame Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if frame.Image.Empty() {
		return errors.New("empty frame")
	}
	r.seqs = append(r.seqs, frame.Seq)
	if frame.Region != nil {
		r.regioned++
	}
	if r.fail {
		return errors.New("sink failure")
	}
	return nil
}

func (r *recordingSink) frames() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.seqs...)
}

func blank() []image.Point { return nil }

func blobAt(x, y int) []image.Point { return []image.Point{image.Pt(x, y)} }

// checksum returns a hex MD5 of a Mat's pixel data, used to show an input frame is untouched.
func checksum(t *testing.T, mat gocv.Mat) string {
	t.Helper()
	if mat.Empty() {
		return "empty"
	}
	data, err := mat.DataPtrUint8()
	require.NoError(t, err)
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
