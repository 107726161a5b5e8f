package config

import (
	"sort"

	"github.com/pkg/errors"
)

// ErrUnknownPreset is returned for a preset name that is not defined.
var ErrUnknownPreset = errors.New("unknown preset")

// Preset is a named sensitivity profile for the goal detector.
type Preset struct {
	Name            string `json:"name"`
	CooldownFrames  int    `json:"cooldown_frames"`
	MotionThreshold int    `json:"motion_threshold"`
	MinContourArea  int    `json:"min_contour_area"`
}

var presets = map[string]Preset{
	"high":      {Name: "high", CooldownFrames: 10, MotionThreshold: 15, MinContourArea: 50},
	"standard":  {Name: "standard", CooldownFrames: 20, MotionThreshold: 30, MinContourArea: 100},
	"low_noise": {Name: "low_noise", CooldownFrames: 30, MotionThreshold: 50, MinContourArea: 200},
}

// Presets returns every defined preset ordered by name.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LookupPreset returns the preset called name.
func LookupPreset(name string) (Preset, error) {
	p, ok := presets[name]
	if !ok {
		return Preset{}, errors.Wrapf(ErrUnknownPreset, "%q", name)
	}
	return p, nil
}

// ApplyPreset overwrites the detector sensitivity fields with the named preset.
func (s *Settings) ApplyPreset(name string) error {
	p, err := LookupPreset(name)
	if err != nil {
		return err
	}
	s.CooldownFrames = p.CooldownFrames
	s.MotionThreshold = p.MotionThreshold
	s.MinContourArea = p.MinContourArea
	return nil
}
