package controller

import (
	"time"

	"github.com/nvr-ai/galton-goalie/geometry"
	"github.com/nvr-ai/galton-goalie/histogram"
	"github.com/nvr-ai/galton-goalie/images"
	"github.com/nvr-ai/galton-goalie/visual"
	"gocv.io/x/gocv"
)

// Snapshot is an immutable view of the engine after a frame. Readers must not modify its
// slices.
type Snapshot struct {
	Frame      uint64               `json:"frame"`
	Counts     []uint64             `json:"counts"`
	Glows      []int                `json:"glows"`
	Statistics histogram.Statistics `json:"statistics"`
	FPS        float64              `json:"fps"`
	Paused     bool                 `json:"paused"`
	Mode       visual.Mode          `json:"mode"`
	Region     *geometry.GoalRegion `json:"goal_region,omitempty"`
	Parameters Parameters           `json:"parameters"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// Frame is a rendered output frame handed to sinks. Image is only valid for the duration
// of HandleFrame; sinks that keep it must clone it.
type Frame struct {
	Seq    uint64
	Image  gocv.Mat
	Region *geometry.GoalRegion
	Glows  []int
	At     time.Time
}

// WithOverlay returns a copy of the frame's image with the bucket overlay drawn on it. The
// caller owns the returned Mat. Without a goal region the copy is returned unchanged.
func (f Frame) WithOverlay() gocv.Mat {
	out := f.Image.Clone()
	if f.Region != nil {
		images.DrawBucketOverlay(&out, *f.Region, f.Glows)
	}
	return out
}

// FrameSink consumes rendered frames on the processing loop.
type FrameSink interface {
	HandleFrame(frame Frame) error
}

// Snapshot returns the state published after the most recent frame.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// Counts returns the per-bucket counts as of the most recent frame.
func (e *Engine) Counts() []uint64 {
	return append([]uint64(nil), e.snapshot.Load().Counts...)
}

// Glows returns the remaining glow frames per bucket as of the most recent frame.
func (e *Engine) Glows() []int {
	return append([]int(nil), e.snapshot.Load().Glows...)
}

// Statistics returns total, mean and population standard deviation of the counts.
func (e *Engine) Statistics() histogram.Statistics {
	return e.snapshot.Load().Statistics
}

// publish swaps in a fresh snapshot built from loop-owned state.
func (e *Engine) publish(now time.Time) {
	e.snapshot.Store(&Snapshot{
		Frame:      e.seq,
		Counts:     e.hist.Counts(),
		Glows:      e.detector.Glows(),
		Statistics: e.hist.Statistics(),
		FPS:        e.fpsValue,
		Paused:     e.paused.Load(),
		Mode:       e.Mode(),
		Region:     e.GoalRegion(),
		Parameters: e.Parameters(),
		UpdatedAt:  now,
	})
}
