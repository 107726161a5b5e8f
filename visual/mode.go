// Package visual implements the cumulative full-frame effects drawn over the live feed:
// motion trails, long exposure and ultra-long exposure.
package visual

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrUnknownMode is returned when a mode name or value is not recognised.
var ErrUnknownMode = errors.New("unknown visualization mode")

// Mode selects the active visualization. Exactly one mode is active at a time.
type Mode int32

// Visualization modes, in the order the controls present them.
const (
	ModeOff Mode = iota
	ModeTrails
	ModeLongExposure
	ModeUltraLongExposure
)

var modeNames = map[Mode]string{
	ModeOff:               "off",
	ModeTrails:            "trails",
	ModeLongExposure:      "long_exposure",
	ModeUltraLongExposure: "ultra_long_exposure",
}

// String returns the snake_case name of the mode.
func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether m is one of the defined modes.
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// ParseMode maps a mode name to its value. Matching ignores case and accepts dashes in
// place of underscores.
func ParseMode(s string) (Mode, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for m, name := range modeNames {
		if name == key {
			return m, nil
		}
	}
	return ModeOff, errors.Wrapf(ErrUnknownMode, "%q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, errors.Wrapf(ErrUnknownMode, "%d", int32(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
