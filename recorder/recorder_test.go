package recorder

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvr-ai/galton-goalie/controller"
	"github.com/nvr-ai/galton-goalie/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func testRecorder(t *testing.T, overlay bool) *Recorder {
	t.Helper()
	r := New(Options{
		Folder:      filepath.Join(t.TempDir(), "rec"),
		WithOverlay: overlay,
		Codec:       "MJPG",
		Extension:   ".avi",
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	r.now = func() time.Time { return time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC) }
	return r
}

func TestIdleRecorderIgnoresFrames(t *testing.T) {
	r := testRecorder(t, false)
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 48, 64, gocv.MatTypeCV8UC3)
	defer img.Close()

	require.NoError(t, r.HandleFrame(controller.Frame{Image: img}))
	assert.False(t, r.Recording())
	path, frames, err := r.Stop()
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Zero(t, frames)
}

func TestRecordFrames(t *testing.T) {
	for _, overlay := range []bool{false, true} {
		r := testRecorder(t, overlay)
		path, err := r.Start()
		require.NoError(t, err)
		assert.Equal(t, "galton_recording_20240314_150926.avi", filepath.Base(path))

		again, err := r.Start()
		require.NoError(t, err)
		assert.Equal(t, path, again, "starting twice keeps the current file")

		img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 0), 120, 160, gocv.MatTypeCV8UC3)
		region := &geometry.GoalRegion{X1: 10, Y1: 30, X2: 150, Y2: 90}
		for i := 0; i < 5; i++ {
			require.NoError(t, r.HandleFrame(controller.Frame{
				Seq: uint64(i + 1), Image: img, Region: region, Glows: make([]int, 7),
			}))
		}
		img.Close()

		stopped, frames, err := r.Stop()
		require.NoError(t, err)
		assert.Equal(t, path, stopped)
		assert.Equal(t, 5, frames)
		assert.False(t, r.Recording())

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func TestRecordStartsSegmentOnResize(t *testing.T) {
	r := testRecorder(t, false)
	path, err := r.Start()
	require.NoError(t, err)

	small := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 0), 120, 160, gocv.MatTypeCV8UC3)
	defer small.Close()
	large := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 80, 120, 0), 240, 320, gocv.MatTypeCV8UC3)
	defer large.Close()

	for _, img := range []gocv.Mat{small, small, large, large, large} {
		require.NoError(t, r.HandleFrame(controller.Frame{Image: img}))
	}

	stopped, frames, err := r.Stop()
	require.NoError(t, err)
	assert.Equal(t, path, stopped)
	assert.Equal(t, 5, frames)

	segments := r.Segments()
	require.Len(t, segments, 2)
	assert.Equal(t, path, segments[0])
	assert.Equal(t, "galton_recording_20240314_150926_part2.avi", filepath.Base(segments[1]))
	for _, p := range segments {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}
