package visual

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"off", ModeOff, false},
		{"Trails", ModeTrails, false},
		{"long-exposure", ModeLongExposure, false},
		{"ultra_long_exposure", ModeUltraLongExposure, false},
		{"sparkles", ModeOff, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestModeJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Mode Mode `json:"mode"`
	}{ModeLongExposure})
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"long_exposure"}`, string(data))

	var decoded struct {
		Mode Mode `json:"mode"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"mode":"trails"}`), &decoded))
	assert.Equal(t, ModeTrails, decoded.Mode)

	assert.Error(t, json.Unmarshal([]byte(`{"mode":"nope"}`), &decoded))
}

func TestTrailColor(t *testing.T) {
	assert.Equal(t, "Orange", TrailColor(-3).Name)
	assert.Equal(t, "Magenta", TrailColor(2).Name)
	assert.Equal(t, "Red", TrailColor(99).Name)
	assert.Len(t, TrailColors, 8)
}
