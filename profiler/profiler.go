// Package profiler tracks per-frame timings and pipeline metrics of the processing loop and
// reports them periodically through the structured logger.
package profiler

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"
)

// MetricsCollector defines the interface for collecting custom metrics.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// RuntimeProfiler aggregates operation timings and custom metrics over a sliding window of
// samples and logs a summary every report interval.
//
// All methods are safe for concurrent use. A nil *RuntimeProfiler is valid and records
// nothing, so callers never need to guard optional profiling.
type RuntimeProfiler struct {
	reportInterval time.Duration
	sampleInterval time.Duration
	maxSamples     int
	logger         *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	startTime time.Time
	running   bool

	memStats       runtime.MemStats
	customMetrics  map[string]*MetricTracker
	collectors     []MetricsCollector
	operationTimes map[string]*TimeTracker
}

// MetricTracker tracks statistics for a custom metric.
type MetricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

func (t *MetricTracker) add(value float64, maxSamples int) {
	if t.count == 0 || value < t.min {
		t.min = value
	}
	if t.count == 0 || value > t.max {
		t.max = value
	}
	t.values = append(t.values, value)
	t.sum += value
	if len(t.values) > maxSamples {
		t.sum -= t.values[0]
		t.values = t.values[1:]
	}
	t.count++
}

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

func (t *TimeTracker) add(d time.Duration, maxSamples int) {
	if t.count == 0 || d < t.minTime {
		t.minTime = d
	}
	if t.count == 0 || d > t.maxTime {
		t.maxTime = d
	}
	t.durations = append(t.durations, d)
	t.totalTime += d
	if len(t.durations) > maxSamples {
		t.totalTime -= t.durations[0]
		t.durations = t.durations[1:]
	}
	t.count++
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to emit status reports (default: 10s)
	ReportInterval time.Duration
	// SampleInterval specifies how often to poll collectors (default: 1s)
	SampleInterval time.Duration
	// MaxSamples specifies maximum number of samples to keep per series (default: 600)
	MaxSamples int
	// Logger receives the periodic reports (default: slog.Default())
	Logger *slog.Logger
}

// OperationStats is the windowed summary of one timed operation.
type OperationStats struct {
	Name  string        `json:"name"`
	Avg   time.Duration `json:"avg"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Count int64         `json:"count"`
}

// MetricStats is the windowed summary of one custom metric.
type MetricStats struct {
	Name string  `json:"name"`
	Avg  float64 `json:"avg"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Last float64 `json:"last"`
}

// NewRuntimeProfiler creates a new runtime profiler with the specified options.
//
// Arguments:
// - opts: Configuration options for the profiler
//
// Returns:
// - A configured RuntimeProfiler instance
func NewRuntimeProfiler(opts ProfilingOptions) *RuntimeProfiler {
	if opts.ReportInterval == 0 {
		opts.ReportInterval = 10 * time.Second
	}
	if opts.SampleInterval == 0 {
		opts.SampleInterval = time.Second
	}
	if opts.MaxSamples == 0 {
		opts.MaxSamples = 600
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		sampleInterval: opts.SampleInterval,
		maxSamples:     opts.MaxSamples,
		logger:         opts.Logger,
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
		customMetrics:  make(map[string]*MetricTracker),
		operationTimes: make(map[string]*TimeTracker),
	}
}

// Start begins sampling collectors and emitting reports. Calling it twice is harmless.
func (rp *RuntimeProfiler) Start() {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.running {
		return
	}
	rp.running = true
	rp.startTime = time.Now()

	rp.wg.Add(1)
	go rp.loop()
}

// Stop halts background work and waits for it to finish.
func (rp *RuntimeProfiler) Stop() {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	rp.mu.Unlock()

	rp.cancel()
	rp.wg.Wait()
}

// AddMetricsCollector registers a collector polled every sample interval.
func (rp *RuntimeProfiler) AddMetricsCollector(collector MetricsCollector) {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.collectors = append(rp.collectors, collector)
}

// RecordMetric records a custom metric value.
//
// Arguments:
// - name: The name of the metric
// - value: The metric value to record
func (rp *RuntimeProfiler) RecordMetric(name string, value float64) {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.recordMetricLocked(name, value)
}

func (rp *RuntimeProfiler) recordMetricLocked(name string, value float64) {
	tracker, ok := rp.customMetrics[name]
	if !ok {
		tracker = &MetricTracker{values: make([]float64, 0, rp.maxSamples)}
		rp.customMetrics[name] = tracker
	}
	tracker.add(value, rp.maxSamples)
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
//
// @example
// done := prof.StartOperation("process_frame")
// defer done()
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	if rp == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		rp.RecordDuration(name, time.Since(start))
	}
}

// RecordDuration records a completed operation of the given duration.
func (rp *RuntimeProfiler) RecordDuration(name string, d time.Duration) {
	if rp == nil {
		return
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, ok := rp.operationTimes[name]
	if !ok {
		tracker = &TimeTracker{durations: make([]time.Duration, 0, rp.maxSamples)}
		rp.operationTimes[name] = tracker
	}
	tracker.add(d, rp.maxSamples)
}

// loop polls collectors and emits reports until Stop is called.
func (rp *RuntimeProfiler) loop() {
	defer rp.wg.Done()

	sample := time.NewTicker(rp.sampleInterval)
	defer sample.Stop()
	report := time.NewTicker(rp.reportInterval)
	defer report.Stop()

	for {
		select {
		case <-rp.ctx.Done():
			return
		case <-sample.C:
			rp.sample()
		case <-report.C:
			rp.emitStatusReport()
		}
	}
}

func (rp *RuntimeProfiler) sample() {
	rp.mu.RLock()
	collectors := append([]MetricsCollector(nil), rp.collectors...)
	rp.mu.RUnlock()

	for _, c := range collectors {
		metrics := c.CollectMetrics()
		rp.mu.Lock()
		for name, value := range metrics {
			rp.recordMetricLocked(name, value)
		}
		rp.mu.Unlock()
	}
}

// emitStatusReport logs one line per operation and metric plus a memory summary.
func (rp *RuntimeProfiler) emitStatusReport() {
	ops := rp.Operations()
	metrics := rp.Metrics()

	rp.mu.Lock()
	runtime.ReadMemStats(&rp.memStats)
	heap := rp.memStats.HeapAlloc
	gcs := rp.memStats.NumGC
	uptime := time.Since(rp.startTime)
	rp.mu.Unlock()

	rp.logger.Info("profiler report",
		"uptime", uptime.Truncate(time.Second),
		"goroutines", runtime.NumGoroutine(),
		"heap_alloc", heap,
		"gc_cycles", gcs)

	for _, op := range ops {
		rp.logger.Info("operation timing",
			"operation", op.Name,
			"avg", op.Avg.Truncate(time.Microsecond),
			"min", op.Min.Truncate(time.Microsecond),
			"max", op.Max.Truncate(time.Microsecond),
			"count", op.Count)
	}
	for _, m := range metrics {
		rp.logger.Info("metric",
			"metric", m.Name,
			"avg", m.Avg,
			"min", m.Min,
			"max", m.Max,
			"last", m.Last)
	}
}

// Operations returns the windowed timing summary of every operation, sorted by name.
func (rp *RuntimeProfiler) Operations() []OperationStats {
	if rp == nil {
		return nil
	}
	rp.mu.RLock()
	defer rp.mu.RUnlock()

	out := make([]OperationStats, 0, len(rp.operationTimes))
	for name, t := range rp.operationTimes {
		if len(t.durations) == 0 {
			continue
		}
		out = append(out, OperationStats{
			Name:  name,
			Avg:   t.totalTime / time.Duration(len(t.durations)),
			Min:   t.minTime,
			Max:   t.maxTime,
			Count: t.count,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Metrics returns the windowed summary of every custom metric, sorted by name.
func (rp *RuntimeProfiler) Metrics() []MetricStats {
	if rp == nil {
		return nil
	}
	rp.mu.RLock()
	defer rp.mu.RUnlock()

	out := make([]MetricStats, 0, len(rp.customMetrics))
	for name, t := range rp.customMetrics {
		if len(t.values) == 0 {
			continue
		}
		out = append(out, MetricStats{
			Name: name,
			Avg:  t.sum / float64(len(t.values)),
			Min:  t.min,
			Max:  t.max,
			Last: t.values[len(t.values)-1],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
