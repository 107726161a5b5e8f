package controller

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nvr-ai/galton-goalie/geometry"
	"github.com/nvr-ai/galton-goalie/visual"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func testOptions() Options {
	return Options{
		Buckets:       geometry.DefaultBuckets,
		Parameters:    DefaultParameters(),
		Region:        goal,
		FrameInterval: time.Millisecond,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newEngine(t *testing.T, source FrameSource, opts Options) *Engine {
	t.Helper()
	e, err := New(source, opts)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

// step feeds one synthetic frame through ProcessFrame.
func step(t *testing.T, e *Engine, corners ...image.Point) []DetectionEvent {
	t.Helper()
	frame := frameWithBlobs(corners...)
	defer frame.Close()
	out := gocv.NewMat()
	defer out.Close()

	events, err := e.ProcessFrame(frame, &out)
	require.NoError(t, err)
	require.Equal(t, frame.Rows(), out.Rows())
	return events
}

func TestProcessFrameCountsHit(t *testing.T) {
	e := newEngine(t, nil, testOptions())

	assert.Empty(t, step(t, e))
	events := step(t, e, image.Pt(95, 40))

	require.Len(t, events, 1)
	assert.Equal(t, 2, events[0].Bucket)
	assert.Equal(t, 3, events[0].Position())
	assert.Equal(t, uint64(1), events[0].Count)
	assert.Equal(t, uint64(2), events[0].Frame)

	if diff := cmp.Diff([]uint64{0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0}, e.Counts()); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
	stats := e.Statistics()
	assert.Equal(t, uint64(1), stats.Total)
	assert.InDelta(t, 3.0, stats.Mean, 1e-9)
	assert.InDelta(t, 0.0, stats.StdDev, 1e-9)
	assert.Equal(t, DefaultParameters().GlowFrames, e.Glows()[2])
}

func TestProcessFrameLeavesInputUntouched(t *testing.T) {
	e := newEngine(t, nil, testOptions())
	step(t, e)

	frame := frameWithBlobs(image.Pt(95, 40))
	defer frame.Close()
	out := gocv.NewMat()
	defer out.Close()

	before := checksum(t, frame)
	_, err := e.ProcessFrame(frame, &out)
	require.NoError(t, err)
	assert.Equal(t, before, checksum(t, frame))
	assert.Equal(t, before, checksum(t, out), "mode off renders the frame as is")
}

func TestProcessFrameWithoutRegion(t *testing.T) {
	opts := testOptions()
	opts.Region = nil
	e := newEngine(t, nil, opts)

	step(t, e)
	assert.Empty(t, step(t, e, image.Pt(95, 40)))
	assert.Nil(t, e.Snapshot().Region)
}

func TestPausedDrainsTimersWithoutEvents(t *testing.T) {
	e := newEngine(t, nil, testOptions())

	step(t, e)
	require.Len(t, step(t, e, image.Pt(95, 40)), 1)

	e.SetPaused(true)
	glow := DefaultParameters().GlowFrames
	for i := 0; i < glow; i++ {
		// Alternate frames so there is motion on every paused frame.
		if i%2 == 0 {
			assert.Empty(t, step(t, e))
		} else {
			assert.Empty(t, step(t, e, image.Pt(95, 40)))
		}
	}
	assert.True(t, e.Snapshot().Paused)
	assert.Equal(t, make([]int, geometry.DefaultBuckets), e.Glows())
	assert.Equal(t, uint64(1), e.Statistics().Total)
}

func TestResetHistogram(t *testing.T) {
	e := newEngine(t, nil, testOptions())
	step(t, e)
	step(t, e, image.Pt(95, 40))
	require.Equal(t, uint64(1), e.Statistics().Total)

	e.ResetHistogram()
	// The reset is applied at the start of the next frame.
	assert.Equal(t, uint64(1), e.Statistics().Total)
	step(t, e, image.Pt(95, 40))

	assert.Equal(t, make([]uint64, geometry.DefaultBuckets), e.Counts())
	assert.Equal(t, make([]int, geometry.DefaultBuckets), e.Glows())
}

func TestResetHistogramClearsCooldown(t *testing.T) {
	e := newEngine(t, nil, testOptions())
	step(t, e)
	require.Len(t, step(t, e, image.Pt(95, 40)), 1)
	assert.Empty(t, step(t, e), "blob leaving is still inside the cooldown")

	e.ResetHistogram()
	step(t, e)
	events := step(t, e, image.Pt(95, 40))
	require.Len(t, events, 1, "cooldown is cleared by the reset")
	assert.Equal(t, uint64(1), events[0].Count)
}

type resetFunc func()

func (f resetFunc) OnReset() { f() }

func TestResetNotifiesInEventOrder(t *testing.T) {
	e := newEngine(t, nil, testOptions())
	var order []string
	e.Subscribe(EventHandlerFunc(func(event DetectionEvent) {
		order = append(order, fmt.Sprintf("hit %d", event.Count))
	}))
	e.OnReset(resetFunc(func() {
		order = append(order, "reset")
	}))

	step(t, e)
	step(t, e, image.Pt(95, 40))
	step(t, e)
	e.ResetHistogram()
	assert.Equal(t, []string{"hit 1"}, order, "reset waits for the next frame")

	step(t, e)
	step(t, e, image.Pt(95, 40))
	assert.Equal(t, []string{"hit 1", "reset", "hit 1"}, order)
}

func TestSetParametersAppliesNextFrame(t *testing.T) {
	e := newEngine(t, nil, testOptions())

	p := DefaultParameters()
	p.CooldownFrames = 0
	p.TrailFade = 10
	e.SetParameters(p)

	got := e.Parameters()
	assert.Equal(t, 1, got.CooldownFrames)
	assert.Equal(t, 50, got.TrailFade)

	p = DefaultParameters()
	p.MinContourArea = 100000
	e.SetParameters(p)
	step(t, e)
	assert.Empty(t, step(t, e, image.Pt(95, 40)), "blob is below the raised minimum area")
	assert.Equal(t, 100000, e.Snapshot().Parameters.MinContourArea)
}

func TestSetGoalRegion(t *testing.T) {
	e := newEngine(t, nil, testOptions())

	require.Error(t, e.SetGoalRegion(&geometry.GoalRegion{X1: 10, Y1: 10, X2: 10, Y2: 50}))
	assert.Equal(t, goal, e.GoalRegion())

	shifted := &geometry.GoalRegion{X1: 20, Y1: 20, X2: 460, Y2: 100}
	require.NoError(t, e.SetGoalRegion(shifted))
	step(t, e)
	events := step(t, e, image.Pt(270, 40))
	require.Len(t, events, 1)
	assert.Equal(t, 6, events[0].Bucket)

	require.NoError(t, e.SetGoalRegion(nil))
	assert.Nil(t, e.GoalRegion())
}

func TestSetModeRejectsUnknown(t *testing.T) {
	e := newEngine(t, nil, testOptions())
	err := e.SetMode(visual.Mode(42))
	assert.ErrorIs(t, err, visual.ErrUnknownMode)
	assert.Equal(t, visual.ModeOff, e.Mode())
}

// trailAt renders one more blank frame and returns the output pixel inside the old blob.
func trailAt(t *testing.T, e *Engine) gocv.Vecb {
	t.Helper()
	frame := frameWithBlobs()
	defer frame.Close()
	out := gocv.NewMat()
	defer out.Close()
	_, err := e.ProcessFrame(frame, &out)
	require.NoError(t, err)
	return out.GetVecbAt(45, 100)
}

func TestModeSwitchAndBackDiscardsBuffer(t *testing.T) {
	run := func(switchBack bool) gocv.Vecb {
		opts := testOptions()
		opts.Mode = visual.ModeTrails
		e := newEngine(t, nil, opts)
		step(t, e)
		step(t, e, image.Pt(95, 40))
		if switchBack {
			require.NoError(t, e.SetMode(visual.ModeOff))
			require.NoError(t, e.SetMode(visual.ModeTrails))
		}
		return trailAt(t, e)
	}

	kept := run(false)
	assert.NotEqual(t, gocv.Vecb{0, 0, 0}, kept, "trail persists without a mode switch")

	discarded := run(true)
	assert.Equal(t, gocv.Vecb{0, 0, 0}, discarded)
}

func TestPausedSkipsVisualUpdates(t *testing.T) {
	opts := testOptions()
	opts.Mode = visual.ModeTrails
	opts.Paused = true
	e := newEngine(t, nil, opts)

	step(t, e)
	step(t, e, image.Pt(95, 40))
	assert.Equal(t, gocv.Vecb{0, 0, 0}, trailAt(t, e))
}

func TestInitialCounts(t *testing.T) {
	opts := testOptions()
	opts.InitialCounts = []uint64{0, 1, 2}
	e := newEngine(t, nil, opts)

	assert.Equal(t, []uint64{0, 1, 2, 0, 0, 0, 0, 0, 0, 0, 0}, e.Counts())
	assert.Equal(t, uint64(3), e.Statistics().Total)

	opts.InitialCounts = make([]uint64, 12)
	_, err := New(nil, opts)
	assert.Error(t, err)
}

func TestRunUntilEndOfStream(t *testing.T) {
	src := newSliceSource(blank(), blobAt(95, 40), blank())
	defer src.release()

	e := newEngine(t, src, testOptions())
	sink := &recordingSink{}
	e.AddSink(sink)
	events, unsubscribe := e.SubscribeChannel(4)
	defer unsubscribe()

	require.NoError(t, e.Run(context.Background()))

	select {
	case <-e.Done():
	default:
		t.Fatal("done not closed after Run returned")
	}
	assert.True(t, src.closed.Load())
	assert.Equal(t, []uint64{1, 2, 3}, sink.frames())
	assert.Equal(t, 3, sink.regioned)
	assert.Equal(t, uint64(3), e.Snapshot().Frame)

	select {
	case ev := <-events:
		assert.Equal(t, 2, ev.Bucket)
		assert.Equal(t, uint64(2), ev.Frame)
	default:
		t.Fatal("expected a detection event")
	}

	assert.Error(t, e.Run(context.Background()), "run is single use")
}

func TestRunFlipsFrames(t *testing.T) {
	src := newSliceSource(blank(), blobAt(95, 40))
	defer src.release()

	opts := testOptions()
	opts.Parameters.FlipHorizontal = true
	e := newEngine(t, src, opts)

	var got []int
	e.Subscribe(EventHandlerFunc(func(ev DetectionEvent) {
		got = append(got, ev.Bucket)
	}))
	require.NoError(t, e.Run(context.Background()))
	// The blob spans x 95..104; mirrored in a 480 wide frame it spans 375..384.
	assert.Equal(t, []int{9}, got)
}

func TestRunStop(t *testing.T) {
	src := newSliceSource(blank(), blobAt(95, 40))
	src.loop = true
	defer src.release()

	e := newEngine(t, src, testOptions())
	sink := &recordingSink{fail: true}
	e.AddSink(sink)

	errc := make(chan error, 1)
	go func() { errc <- e.Run(context.Background()) }()

	require.Eventually(t, func() bool { return len(sink.frames()) >= 5 }, 5*time.Second, time.Millisecond)
	e.Stop()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
	<-e.Done()
	assert.True(t, src.closed.Load())
}

func TestRunContextCancelled(t *testing.T) {
	src := newSliceSource(blank())
	src.loop = true
	defer src.release()

	e := newEngine(t, src, testOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, e.Run(ctx), context.Canceled)
	assert.True(t, src.closed.Load())
}

func TestRunSourceError(t *testing.T) {
	src := newSliceSource(blank())
	src.err = errors.New("usb unplugged")
	defer src.release()

	e := newEngine(t, src, testOptions())
	err := e.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usb unplugged")
	assert.True(t, src.closed.Load())
}

func TestFrameWithOverlay(t *testing.T) {
	img := frameWithBlobs()
	defer img.Close()

	glows := make([]int, geometry.DefaultBuckets)
	glows[0] = 30
	before := checksum(t, img)
	out := Frame{Image: img, Region: goal, Glows: glows}.WithOverlay()
	defer out.Close()
	assert.Equal(t, before, checksum(t, img))

	assert.NotEqual(t, gocv.Vecb{0, 0, 0}, out.GetVecbAt(60, 20), "first bucket is highlighted")
	assert.Equal(t, gocv.Vecb{0, 0, 0}, img.GetVecbAt(60, 20), "source frame is untouched")

	plain := Frame{Image: img}.WithOverlay()
	defer plain.Close()
	assert.Equal(t, gocv.Vecb{0, 0, 0}, plain.GetVecbAt(60, 20))
}

func TestFPSCounter(t *testing.T) {
	var c fpsCounter
	start := time.Unix(0, 0)
	for i := 0; i < 30; i++ {
		_, ok := c.tick(start.Add(time.Duration(i) * 33 * time.Millisecond))
		assert.False(t, ok)
	}
	fps, ok := c.tick(start.Add(time.Second))
	require.True(t, ok)
	assert.InDelta(t, 31.0, fps, 1e-9)
}
