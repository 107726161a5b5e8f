// Package controller runs the frame processing loop: it reads frames in order, feeds the
// goal detector, histogram and visualizer, and exposes a fire-and-forget control surface
// that is safe to call from any goroutine.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nvr-ai/galton-goalie/capture"
	"github.com/nvr-ai/galton-goalie/detector"
	"github.com/nvr-ai/galton-goalie/geometry"
	"github.com/nvr-ai/galton-goalie/histogram"
	"github.com/nvr-ai/galton-goalie/profiler"
	"github.com/nvr-ai/galton-goalie/visual"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// DefaultFrameInterval is the loop cadence, about 60 frames per second.
const DefaultFrameInterval = 16 * time.Millisecond

// FrameSource is where the loop reads frames from. capture.Source satisfies it.
type FrameSource interface {
	Read(dst *gocv.Mat) error
	Close() error
}

// Options configure a new Engine.
type Options struct {
	// Buckets is the fixed number of buckets across the goal region.
	Buckets int
	// Parameters are the initial tunables.
	Parameters Parameters
	// Region is the initial goal region; nil means uncalibrated.
	Region *geometry.GoalRegion
	// Mode is the initial visualization mode.
	Mode visual.Mode
	// Paused starts the engine with counting suspended.
	Paused bool
	// InitialCounts restores a previous session's histogram.
	InitialCounts []uint64
	// FrameInterval is the minimum time between two frames (default 16ms).
	FrameInterval time.Duration
	// Logger receives loop diagnostics (default slog.Default()).
	Logger *slog.Logger
	// Profiler records frame timings; nil disables profiling.
	Profiler *profiler.RuntimeProfiler
}

// Engine owns the core state of the board analyser. Only the processing loop writes it;
// callers steer it through control commands and read published snapshots.
type Engine struct {
	source   FrameSource
	logger   *slog.Logger
	profiler *profiler.RuntimeProfiler
	interval time.Duration
	buckets  int

	params        atomic.Pointer[Parameters]
	region        atomic.Pointer[geometry.GoalRegion]
	mode          atomic.Int32
	modeGen       atomic.Uint64
	paused        atomic.Bool
	pendingReset  atomic.Bool
	pendingUltra  atomic.Bool
	stopRequested atomic.Bool
	snapshot      atomic.Pointer[Snapshot]

	// Loop-owned state.
	detector    *detector.Detector
	hist        *histogram.Histogram
	visualizer  *visual.Visualizer
	applied     *Parameters
	settings    visual.Settings
	appliedGen  uint64
	seq         uint64
	fps         fpsCounter
	fpsValue    float64
	lastSize    [2]int
	initialized bool

	bus     *EventBus
	sinksMu sync.RWMutex
	sinks   []FrameSink
	resets  []ResetHandler

	running atomic.Bool
	done    chan struct{}
}

// New creates an engine reading from source. The source is closed when Run returns.
func New(source FrameSource, opts Options) (*Engine, error) {
	if opts.Buckets <= 0 {
		opts.Buckets = geometry.DefaultBuckets
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if !opts.Mode.Valid() {
		return nil, errors.Wrapf(visual.ErrUnknownMode, "mode %d", opts.Mode)
	}
	if opts.Region != nil {
		if err := opts.Region.Validate(); err != nil {
			return nil, err
		}
	}
	if len(opts.InitialCounts) > opts.Buckets {
		return nil, errors.Errorf("restored histogram has %d buckets, board has %d", len(opts.InitialCounts), opts.Buckets)
	}

	params := opts.Parameters.Sanitize()
	e := &Engine{
		source:     source,
		logger:     opts.Logger,
		profiler:   opts.Profiler,
		interval:   opts.FrameInterval,
		buckets:    opts.Buckets,
		detector:   detector.New(params.DetectorConfig(opts.Buckets)),
		hist:       histogram.New(opts.Buckets),
		visualizer: visual.NewVisualizer(),
		applied:    &params,
		settings:   params.VisualSettings(),
		bus:        NewEventBus(),
		done:       make(chan struct{}),
	}
	e.hist.Restore(opts.InitialCounts)
	e.params.Store(&params)
	if opts.Region != nil {
		r := *opts.Region
		e.region.Store(&r)
	}
	e.mode.Store(int32(opts.Mode))
	if err := e.visualizer.SetMode(opts.Mode); err != nil {
		return nil, err
	}
	e.paused.Store(opts.Paused)
	e.publish(time.Now())

	return e, nil
}

// Buckets returns the number of buckets across the goal.
func (e *Engine) Buckets() int {
	return e.buckets
}

// SetGoalRegion replaces the goal region. Nil clears calibration.
func (e *Engine) SetGoalRegion(region *geometry.GoalRegion) error {
	if region == nil {
		e.region.Store(nil)
		return nil
	}
	if err := region.Validate(); err != nil {
		return err
	}
	r := *region
	e.region.Store(&r)
	return nil
}

// GoalRegion returns a copy of the current goal region, or nil when uncalibrated.
func (e *Engine) GoalRegion() *geometry.GoalRegion {
	r := e.region.Load()
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// SetParameters replaces the tunables, clamped into range. They apply from the next frame.
func (e *Engine) SetParameters(p Parameters) {
	p = p.Sanitize()
	e.params.Store(&p)
}

// Parameters returns the most recently set tunables.
func (e *Engine) Parameters() Parameters {
	return *e.params.Load()
}

// SetMode selects the visualization mode. The previous buffer is discarded on the next
// frame, even when the mode is switched away and back before that frame arrives.
func (e *Engine) SetMode(mode visual.Mode) error {
	if !mode.Valid() {
		return errors.Wrapf(visual.ErrUnknownMode, "mode %d", mode)
	}
	e.mode.Store(int32(mode))
	e.modeGen.Add(1)
	return nil
}

// Mode returns the selected visualization mode.
func (e *Engine) Mode() visual.Mode {
	return visual.Mode(e.mode.Load())
}

// SetPaused suspends or resumes counting and visualization updates. Frames keep flowing
// and cooldown timers keep draining while paused.
func (e *Engine) SetPaused(paused bool) {
	e.paused.Store(paused)
}

// Paused reports whether counting is suspended.
func (e *Engine) Paused() bool {
	return e.paused.Load()
}

// ResetHistogram zeroes every count together with the bucket timers and the ultra-long
// exposure buffer, before the next frame is processed.
func (e *Engine) ResetHistogram() {
	e.pendingReset.Store(true)
}

// ResetUltraLongExposure clears the ultra-long exposure buffer before the next frame.
func (e *Engine) ResetUltraLongExposure() {
	e.pendingUltra.Store(true)
}

// Stop asks the loop to finish after the current frame.
func (e *Engine) Stop() {
	e.stopRequested.Store(true)
}

// Done is closed once Run has returned and the frame source is released.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Subscribe registers a synchronous detection handler.
func (e *Engine) Subscribe(handler EventHandler) func() {
	return e.bus.Subscribe(handler)
}

// SubscribeChannel returns a buffered detection channel and its unsubscribe function.
func (e *Engine) SubscribeChannel(bufferSize int) (<-chan DetectionEvent, func()) {
	return e.bus.SubscribeChannel(bufferSize)
}

// OnReset registers a handler told when a histogram reset takes effect.
func (e *Engine) OnReset(handler ResetHandler) {
	e.sinksMu.Lock()
	defer e.sinksMu.Unlock()
	e.resets = append(e.resets, handler)
}

// AddSink registers a consumer of rendered frames.
func (e *Engine) AddSink(sink FrameSink) {
	e.sinksMu.Lock()
	defer e.sinksMu.Unlock()
	e.sinks = append(e.sinks, sink)
}

// Run processes frames until the source ends, Stop is called or ctx is cancelled. An
// exhausted source ends the run without error. Run may only be called once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine already started")
	}
	defer close(e.done)
	defer func() {
		if err := e.source.Close(); err != nil {
			e.logger.Warn("closing frame source", "error", err)
		}
	}()

	frame := gocv.NewMat()
	defer frame.Close()
	mirror := gocv.NewMat()
	defer mirror.Close()
	out := gocv.NewMat()
	defer out.Close()

	e.logger.Info("processing loop started", "buckets", e.buckets, "interval", e.interval)
	defer func() { e.logger.Info("processing loop stopped", "frames", e.seq) }()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		if e.stopRequested.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		started := time.Now()

		if err := e.source.Read(&frame); err != nil {
			if errors.Is(err, capture.ErrEndOfStream) {
				e.logger.Info("frame source exhausted", "frames", e.seq)
				return nil
			}
			return errors.Wrap(err, "read frame")
		}
		input := frame
		if e.params.Load().FlipHorizontal {
			gocv.Flip(frame, &mirror, 1)
			input = mirror
		}

		if _, err := e.ProcessFrame(input, &out); err != nil {
			return err
		}
		e.dispatch(out)

		wait := e.interval - time.Since(started)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// ProcessFrame runs one loop iteration on frame and renders the visible output into dst.
// It applies pending control commands first and publishes a new snapshot afterwards.
// It must not be called concurrently with Run.
func (e *Engine) ProcessFrame(frame gocv.Mat, dst *gocv.Mat) ([]DetectionEvent, error) {
	defer e.profiler.StartOperation("process_frame")()
	now := time.Now()
	e.seq++

	e.applyControls()
	e.trackSize(frame)

	region := e.region.Load()
	paused := e.paused.Load()

	detectDone := e.profiler.StartOperation("detect")
	hits, err := e.detector.Process(frame, region, paused)
	detectDone()
	if err != nil {
		return nil, errors.Wrapf(err, "frame %d", e.seq)
	}

	var events []DetectionEvent
	for _, bucket := range hits {
		if err := e.hist.RecordHit(bucket); err != nil {
			return nil, errors.Wrapf(err, "frame %d", e.seq)
		}
		event := DetectionEvent{
			Bucket:    bucket,
			Count:     e.hist.Counts()[bucket],
			Frame:     e.seq,
			Timestamp: now,
		}
		e.logger.Debug("ball detected", "bucket", event.Position(), "count", event.Count, "frame", e.seq)
		events = append(events, event)
	}

	visualDone := e.profiler.StartOperation("visualize")
	if !paused {
		if err := e.visualizer.Update(frame, e.settings); err != nil {
			visualDone()
			return nil, errors.Wrapf(err, "frame %d", e.seq)
		}
	}
	err = e.visualizer.Render(frame, dst)
	visualDone()
	if err != nil {
		return nil, errors.Wrapf(err, "frame %d", e.seq)
	}

	for _, event := range events {
		e.bus.Publish(event)
	}
	if len(events) > 0 {
		e.profiler.RecordMetric("detections", float64(len(events)))
	}

	if fps, ok := e.fps.tick(now); ok {
		e.fpsValue = fps
		e.logger.Info("frame rate", "fps", fps, "frame", e.seq)
		e.profiler.RecordMetric("fps", fps)
	}
	e.publish(now)

	return events, nil
}

// applyControls consumes pending control commands.
func (e *Engine) applyControls() {
	if p := e.params.Load(); p != e.applied {
		e.detector.UpdateConfig(p.DetectorConfig(e.buckets))
		e.settings = p.VisualSettings()
		e.applied = p
		e.logger.Debug("parameters applied", "cooldown_frames", p.CooldownFrames,
			"motion_threshold", p.MotionThreshold, "min_contour_area", p.MinContourArea)
	}

	if gen := e.modeGen.Load(); gen != e.appliedGen {
		mode := visual.Mode(e.mode.Load())
		if err := e.visualizer.SetMode(mode); err != nil {
			e.logger.Warn("mode switch rejected", "mode", mode, "error", err)
		}
		e.appliedGen = gen
		e.logger.Debug("visualization mode switched", "mode", mode)
	}

	if e.pendingReset.Swap(false) {
		e.hist.Reset()
		e.detector.ResetTimers()
		e.visualizer.ResetUltraLongExposure()
		e.logger.Info("histogram reset")

		e.sinksMu.RLock()
		for _, h := range e.resets {
			h.OnReset()
		}
		e.sinksMu.RUnlock()
	}
	if e.pendingUltra.Swap(false) {
		e.visualizer.ResetUltraLongExposure()
		e.logger.Debug("ultra-long exposure reset")
	}
}

// trackSize logs when the incoming frame size changes; every stage reinitialises on its own.
func (e *Engine) trackSize(frame gocv.Mat) {
	size := [2]int{frame.Cols(), frame.Rows()}
	if e.initialized && size == e.lastSize {
		return
	}
	if e.initialized {
		e.logger.Debug("frame size changed", "width", size[0], "height", size[1])
	}
	e.lastSize = size
	e.initialized = true
}

func (e *Engine) dispatch(out gocv.Mat) {
	e.sinksMu.RLock()
	defer e.sinksMu.RUnlock()
	if len(e.sinks) == 0 {
		return
	}

	snap := e.snapshot.Load()
	frame := Frame{
		Seq:    e.seq,
		Image:  out,
		Region: snap.Region,
		Glows:  snap.Glows,
		At:     snap.UpdatedAt,
	}
	for _, sink := range e.sinks {
		if err := sink.HandleFrame(frame); err != nil {
			e.logger.Warn("frame sink failed", "error", err, "frame", e.seq)
		}
	}
}

// Close releases the detector and visualizer buffers and all event subscriptions. Call it
// after Run has returned.
func (e *Engine) Close() {
	e.detector.Close()
	e.visualizer.Close()
	e.bus.Close()
}

// fpsCounter measures frames per second over one-second windows.
type fpsCounter struct {
	start  time.Time
	frames int
}

// tick counts a frame and reports the rate once a full second has elapsed.
func (c *fpsCounter) tick(now time.Time) (float64, bool) {
	if c.start.IsZero() {
		c.start = now
	}
	c.frames++
	elapsed := now.Sub(c.start)
	if elapsed < time.Second {
		return 0, false
	}
	fps := float64(c.frames) / elapsed.Seconds()
	c.start = now
	c.frames = 0
	return fps, true
}
