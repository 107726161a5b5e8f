package detector

import (
	"image"
	"testing"

	"github.com/nvr-ai/galton-goalie/geometry"
	"github.com/stretchr/testify/assert"
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
		for y := c.Y; y < c.Y+10; y++ {
			for x := c.X; x < c.X+10; x++ {
				for ch := 0; ch < 3; ch++ {
					m.SetUCharAt(y, x*3+ch, 255)
				}
			}
		}
	}
	return m
}

func process(t *testing.T, d *Detector, region *geometry.GoalRegion, paused bool, corners ...image.Point) []int {
	t.Helper()
	frame := frameWithBlobs(corners...)
	defer frame.Close()
	hits, err := d.Process(frame, region, paused)
	require.NoError(t, err)
	return hits
}

func TestProcessFirstFrameHasNoHits(t *testing.T) {
	d := New(DefaultConfig())
	defer d.Close()

	assert.Empty(t, process(t, d, goal, false, image.Pt(95, 40)))
}

func TestProcessSingleHit(t *testing.T) {
	d := New(DefaultConfig())
	defer d.Close()

	process(t, d, goal, false)
	hits := process(t, d, goal, false, image.Pt(95, 40))
	assert.Equal(t, []int{2}, hits)
	assert.Equal(t, DefaultGlowFrames, d.Glows()[2])
	assert.Equal(t, DefaultConfig().CooldownFrames, d.Cooldowns()[2])
}

func TestProcessSameBucketCountsOnce(t *testing.T) {
	d := New(DefaultConfig())
	defer d.Close()

	process(t, d, goal, false)
	// Two blobs stacked vertically, both centred at x=55 in bucket 1.
	hits := process(t, d, goal, false, image.Pt(50, 25), image.Pt(50, 80))
	assert.Equal(t, []int{1}, hits)
}

func TestProcessDifferentBucketsCountIndependently(t *testing.T) {
	d := New(DefaultConfig())
	defer d.Close()

	process(t, d, goal, false)
	hits := process(t, d, goal, false, image.Pt(50, 40), image.Pt(215, 40))
	assert.ElementsMatch(t, []int{1, 5}, hits)
}

func TestProcessCooldownBlocksRepeat(t *testing.T) {
	d := New(DefaultConfig())
	defer d.Close()

	process(t, d, goal, false)
	require.Equal(t, []int{2}, process(t, d, goal, false, image.Pt(95, 40)))
	// The blob disappearing is motion in the same bucket.
	assert.Empty(t, process(t, d, goal, false))
}

func TestProcessCooldownDrainsBeforeAdmission(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CooldownFrames = 1
	d := New(cfg)
	defer d.Close()

	process(t, d, goal, false)
	require.Equal(t, []int{2}, process(t, d, goal, false, image.Pt(95, 40)))
	assert.Equal(t, []int{2}, process(t, d, goal, false))
}

func TestProcessPausedStillDrainsTimers(t *testing.T) {
	d := New(DefaultConfig())
	defer d.Close()

	process(t, d, goal, false)
	require.Equal(t, []int{2}, process(t, d, goal, false, image.Pt(95, 40)))

	for i := 0; i < DefaultConfig().CooldownFrames; i++ {
		corner := image.Pt(95, 40)
		if i%2 == 0 {
			corner = image.Pt(255, 40)
		}
		assert.Empty(t, process(t, d, goal, true, corner), "paused frame %d", i)
	}

	assert.Equal(t, make([]int, geometry.DefaultBuckets), d.Cooldowns())
	assert.Equal(t, make([]int, geometry.DefaultBuckets), d.Glows())
}

func TestProcessWithoutRegion(t *testing.T) {
	d := New(DefaultConfig())
	defer d.Close()

	process(t, d, goal, false)
	process(t, d, goal, false, image.Pt(95, 40))

	assert.Empty(t, process(t, d, nil, false, image.Pt(255, 40)))
	assert.Equal(t, DefaultGlowFrames-1, d.Glows()[2], "timers drain without a region")
}

func TestProcessRegionChangeResetsBaseline(t *testing.T) {
	d := New(DefaultConfig())
	defer d.Close()

	process(t, d, goal, false)

	shifted := &geometry.GoalRegion{X1: 20, Y1: 20, X2: 460, Y2: 100}
	assert.Empty(t, process(t, d, shifted, false, image.Pt(95, 40)), "new region starts from a first frame")
	// Only the newly appeared blob moves, its centroid 274.5 lands in bucket (274.5-20)/40 = 6.
	assert.Equal(t, []int{6}, process(t, d, shifted, false, image.Pt(95, 40), image.Pt(270, 40)))
}

func TestProcessRegionOutsideFrame(t *testing.T) {
	d := New(DefaultConfig())
	defer d.Close()

	outside := &geometry.GoalRegion{X1: 600, Y1: 20, X2: 700, Y2: 60}
	process(t, d, outside, false)
	assert.Empty(t, process(t, d, outside, false, image.Pt(95, 40)))
}

func TestProcessMinAreaFiltersNoise(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinContourArea = 5000
	d := New(cfg)
	defer d.Close()

	process(t, d, goal, false)
	assert.Empty(t, process(t, d, goal, false, image.Pt(95, 40)))
}

func TestUpdateConfigKeepsBucketCount(t *testing.T) {
	d := New(DefaultConfig())
	defer d.Close()

	cfg := DefaultConfig()
	cfg.Buckets = 3
	cfg.CooldownFrames = 7
	d.UpdateConfig(cfg)

	assert.Equal(t, geometry.DefaultBuckets, d.Buckets())
	assert.Equal(t, 7, d.GetConfig().CooldownFrames)
}

func TestResetTimers(t *testing.T) {
	d := New(DefaultConfig())
	defer d.Close()

	process(t, d, goal, false)
	process(t, d, goal, false, image.Pt(95, 40))
	d.ResetTimers()
	assert.Equal(t, make([]int, geometry.DefaultBuckets), d.Glows())
}
