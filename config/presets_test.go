package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPreset(t *testing.T) {
	tests := []struct {
		name                        string
		cooldown, threshold, minArea int
	}{
		{"high", 10, 15, 50},
		{"standard", 20, 30, 100},
		{"low_noise", 30, 50, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			require.NoError(t, s.ApplyPreset(tt.name))
			assert.Equal(t, tt.cooldown, s.CooldownFrames)
			assert.Equal(t, tt.threshold, s.MotionThreshold)
			assert.Equal(t, tt.minArea, s.MinContourArea)
		})
	}
}

func TestApplyUnknownPreset(t *testing.T) {
	s := DefaultSettings()
	before := *s
	assert.ErrorIs(t, s.ApplyPreset("ludicrous"), ErrUnknownPreset)
	assert.Equal(t, before, *s)
}

func TestPresetsSorted(t *testing.T) {
	var names []string
	for _, p := range Presets() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"high", "low_noise", "standard"}, names)
}
