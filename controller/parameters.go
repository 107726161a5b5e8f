package controller

import (
	"github.com/nvr-ai/galton-goalie/detector"
	"github.com/nvr-ai/galton-goalie/images"
	"github.com/nvr-ai/galton-goalie/visual"
)

// Parameters is the tunable configuration read by the processing loop once per frame.
// It is replaced as a whole; the loop never observes a half-applied update.
type Parameters struct {
	// CooldownFrames is the number of frames a bucket ignores further hits after one.
	CooldownFrames int `json:"cooldown_frames" yaml:"cooldown_frames"`
	// MotionThreshold is the goal differencer's binarisation threshold.
	MotionThreshold int `json:"motion_threshold" yaml:"motion_threshold"`
	// MinContourArea is the pixel area a region must exceed to count.
	MinContourArea int `json:"min_contour_area" yaml:"min_contour_area"`
	// GlowFrames is how long a bucket stays highlighted after a hit.
	GlowFrames int `json:"glow_frames" yaml:"glow_frames"`
	// GoalBlurKernel is the Gaussian kernel used on the goal crop.
	GoalBlurKernel int `json:"goal_blur_kernel" yaml:"goal_blur_kernel"`
	// GoalDilateIterations closes small gaps in the goal mask.
	GoalDilateIterations int `json:"goal_dilate_iterations" yaml:"goal_dilate_iterations"`

	TrailColorIndex  int `json:"trail_color_index" yaml:"trail_color_index"`
	TrailFade        int `json:"trail_fade" yaml:"trail_fade"`
	TrailSize        int `json:"trail_size" yaml:"trail_size"`
	ExposureDuration int `json:"long_exposure_duration" yaml:"long_exposure_duration"`

	// FullFrameBlurKernel and FullFrameThreshold drive the visualization differencer.
	FullFrameBlurKernel int `json:"full_frame_blur_kernel" yaml:"full_frame_blur_kernel"`
	FullFrameThreshold  int `json:"full_frame_threshold" yaml:"full_frame_threshold"`
	// UltraIncrement is added per channel to the ultra-long exposure buffer.
	UltraIncrement int `json:"ultra_increment" yaml:"ultra_increment"`

	// FlipHorizontal mirrors every captured frame before it is processed.
	FlipHorizontal bool `json:"flip_horizontal" yaml:"flip_horizontal"`
}

// DefaultParameters returns the stock tuning.
func DefaultParameters() Parameters {
	goal := images.GoalDifferencerConfig()
	vis := visual.DefaultSettings()

	return Parameters{
		CooldownFrames:       20,
		MotionThreshold:      int(goal.Threshold),
		MinContourArea:       100,
		GlowFrames:           detector.DefaultGlowFrames,
		GoalBlurKernel:       goal.BlurKernelSize,
		GoalDilateIterations: goal.DilateIterations,
		TrailColorIndex:      0,
		TrailFade:            vis.TrailFade,
		TrailSize:            vis.TrailSize,
		ExposureDuration:     vis.ExposureDuration,
		FullFrameBlurKernel:  vis.BlurKernelSize,
		FullFrameThreshold:   int(vis.Threshold),
		UltraIncrement:       int(vis.UltraIncrement),
	}
}

// Sanitize returns a copy of p with every field clamped into its usable range.
func (p Parameters) Sanitize() Parameters {
	p.CooldownFrames = clamp(p.CooldownFrames, 1, 1<<16)
	p.MotionThreshold = clamp(p.MotionThreshold, 1, 255)
	p.MinContourArea = clamp(p.MinContourArea, 10, 1<<24)
	p.GlowFrames = clamp(p.GlowFrames, 1, 1<<16)
	p.GoalBlurKernel = oddKernel(p.GoalBlurKernel)
	p.GoalDilateIterations = clamp(p.GoalDilateIterations, 0, 10)
	p.TrailColorIndex = clamp(p.TrailColorIndex, 0, len(visual.TrailColors)-1)
	p.TrailFade = clamp(p.TrailFade, 50, 99)
	p.TrailSize = clamp(p.TrailSize, 1, 10)
	p.ExposureDuration = clamp(p.ExposureDuration, 1, 100)
	p.FullFrameBlurKernel = oddKernel(p.FullFrameBlurKernel)
	p.FullFrameThreshold = clamp(p.FullFrameThreshold, 1, 255)
	p.UltraIncrement = clamp(p.UltraIncrement, 1, 255)
	return p
}

// DetectorConfig converts the goal-side tunables for a board of the given bucket count.
func (p Parameters) DetectorConfig(buckets int) detector.Config {
	return detector.Config{
		Buckets:        buckets,
		CooldownFrames: p.CooldownFrames,
		GlowFrames:     p.GlowFrames,
		MinContourArea: float64(p.MinContourArea),
		Differencer: images.DifferencerConfig{
			BlurKernelSize:   p.GoalBlurKernel,
			Threshold:        float32(p.MotionThreshold),
			DilateIterations: p.GoalDilateIterations,
		},
	}
}

// VisualSettings converts the visualization tunables.
func (p Parameters) VisualSettings() visual.Settings {
	return visual.Settings{
		TrailColor:       visual.TrailColor(p.TrailColorIndex),
		TrailFade:        p.TrailFade,
		TrailSize:        p.TrailSize,
		ExposureDuration: p.ExposureDuration,
		BlurKernelSize:   p.FullFrameBlurKernel,
		Threshold:        float32(p.FullFrameThreshold),
		UltraIncrement:   float32(p.UltraIncrement),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// oddKernel rounds a blur kernel up to the next odd size of at least 1.
func oddKernel(k int) int {
	k = clamp(k, 1, 99)
	if k%2 == 0 {
		k++
	}
	return k
}
