// Package detector turns motion on the calibrated goal strip into per-bucket hits.
package detector

import (
	"github.com/nvr-ai/galton-goalie/geometry"
	"github.com/nvr-ai/galton-goalie/images"
	"gocv.io/x/gocv"
)

// DefaultGlowFrames is how long a bucket stays highlighted after a hit.
const DefaultGlowFrames = 15

// Config represents the configuration for the goal detector.
type Config struct {
	// Buckets is the number of equal-width slots across the goal region.
	Buckets int
	// CooldownFrames blocks a bucket for this many frames after a hit.
	CooldownFrames int
	// GlowFrames highlights a bucket for this many frames after a hit.
	GlowFrames int
	// MinContourArea is the exclusive lower bound on blob area, in pixels.
	MinContourArea float64
	// Differencer configures the goal-strip motion pipeline.
	Differencer images.DifferencerConfig
}

// DefaultConfig returns the standard sensitivity on an 11-bucket board.
func DefaultConfig() Config {
	return Config{
		Buckets:        geometry.DefaultBuckets,
		CooldownFrames: 20,
		GlowFrames:     DefaultGlowFrames,
		MinContourArea: 100,
		Differencer:    images.GoalDifferencerConfig(),
	}
}

// Detector encapsulates the goal-strip differencer, the blob filter and the cooldown gate.
//
// It is driven by a single goroutine, one Process call per frame, in arrival order.
type Detector struct {
	config Config
	gate   *Gate
	diff   *images.Differencer
	mask   gocv.Mat
	region *geometry.GoalRegion
}

// New creates a goal detector.
//
// Arguments:
//   - config: Detector configuration. The bucket count is fixed for the detector's life.
//
// Returns:
//   - *Detector: The detector. Call Close when done.
//
// @example
// det := detector.New(detector.DefaultConfig())
// defer det.Close()
// hits, err := det.Process(frame, region, false)
func New(config Config) *Detector {
	if config.Buckets < 1 {
		config.Buckets = geometry.DefaultBuckets
	}
	return &Detector{
		config: config,
		gate:   NewGate(config.Buckets),
		diff:   images.NewDifferencer(config.Differencer),
		mask:   gocv.NewMat(),
	}
}

// Process analyses one frame and returns the buckets that registered a hit.
//
// Cooldown and glow timers are decremented first, unconditionally. When paused, or when no
// region is calibrated, nothing else happens. Otherwise the region is cropped out of the
// frame, differenced against the previous crop and every surviving blob whose centroid
// falls in a bucket that is not cooling down produces one hit. A bucket appears at most
// once in the result.
//
// Arguments:
//   - frame: The full BGR frame.
//   - region: The current goal region, nil when uncalibrated.
//   - paused: Whether counting is suspended.
//
// Returns:
//   - []int: Zero-based bucket indices that registered a hit this frame.
//   - error: An error if the differencer fails.
func (d *Detector) Process(frame gocv.Mat, region *geometry.GoalRegion, paused bool) ([]int, error) {
	d.gate.Tick()

	if paused || region == nil {
		return nil, nil
	}

	if d.region == nil || *d.region != *region {
		d.diff.Reset()
		r := *region
		d.region = &r
	}

	rect := region.Clip(frame.Cols(), frame.Rows())
	if rect.Empty() {
		return nil, nil
	}

	roi := frame.Region(rect)
	defer roi.Close()

	ok, err := d.diff.Apply(roi, &d.mask)
	if err != nil || !ok {
		return nil, err
	}

	var hits []int
	for _, blob := range images.ExtractRegions(d.mask, d.config.MinContourArea) {
		blob = blob.Translate(rect.Min)
		bucket, inside := region.BucketIndex(blob.CentroidX, d.config.Buckets)
		if !inside {
			continue
		}
		if d.gate.Admit(bucket, d.config.CooldownFrames, d.config.GlowFrames) {
			hits = append(hits, bucket)
		}
	}

	return hits, nil
}

// Buckets returns the bucket count.
func (d *Detector) Buckets() int {
	return d.config.Buckets
}

// Glows returns the remaining glow frames per bucket.
func (d *Detector) Glows() []int {
	return d.gate.Glows()
}

// Cooldowns returns the remaining cooldown frames per bucket.
func (d *Detector) Cooldowns() []int {
	return d.gate.Cooldowns()
}

// GetConfig returns the current configuration.
func (d *Detector) GetConfig() Config {
	return d.config
}

// UpdateConfig replaces the tunables. The bucket count cannot change after construction;
// the differencer keeps its previous map.
func (d *Detector) UpdateConfig(config Config) {
	config.Buckets = d.config.Buckets
	d.config = config
	d.diff.SetConfig(config.Differencer)
}

// ResetTimers zeroes every cooldown and glow timer.
func (d *Detector) ResetTimers() {
	d.gate.Reset()
}

// Reset forgets the previous goal crop so the next frame is treated as a first frame.
func (d *Detector) Reset() {
	d.diff.Reset()
	d.region = nil
}

// Close releases resources used by the detector.
func (d *Detector) Close() {
	d.diff.Close()
	d.mask.Close()
}
