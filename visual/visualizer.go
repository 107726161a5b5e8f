package visual

import (
	"gocv.io/x/gocv"
)

// Visualizer owns the active accumulator and enforces that switching modes always discards
// the previous buffer.
type Visualizer struct {
	mode   Mode
	active Accumulator
}

// NewVisualizer creates a visualizer in ModeOff.
func NewVisualizer() *Visualizer {
	return &Visualizer{mode: ModeOff}
}

// Mode returns the active mode.
func (v *Visualizer) Mode() Mode {
	return v.mode
}

// SetMode discards the active accumulator and starts an empty one for mode. Selecting the
// current mode again also starts over.
func (v *Visualizer) SetMode(mode Mode) error {
	next, err := New(mode)
	if err != nil {
		return err
	}
	if v.active != nil {
		v.active.Close()
	}
	v.mode = mode
	v.active = next
	return nil
}

// Update folds frame into the active accumulator. ModeOff is a no-op.
func (v *Visualizer) Update(frame gocv.Mat, s Settings) error {
	if v.active == nil {
		return nil
	}
	return v.active.Update(frame, s)
}

// Render writes the visible output for frame into dst.
func (v *Visualizer) Render(frame gocv.Mat, dst *gocv.Mat) error {
	if v.active == nil {
		frame.CopyTo(dst)
		return nil
	}
	return v.active.Render(frame, dst)
}

// Buffer returns the active buffer and whether there is an active accumulator.
func (v *Visualizer) Buffer() (gocv.Mat, bool) {
	if v.active == nil {
		return gocv.Mat{}, false
	}
	return v.active.Buffer(), true
}

// ResetUltraLongExposure clears the ultra-long exposure buffer if that mode is active.
func (v *Visualizer) ResetUltraLongExposure() {
	if u, ok := v.active.(*UltraLongExposure); ok {
		u.ResetBuffer()
	}
}

// Reset drops the active accumulator's buffer and history without changing mode.
func (v *Visualizer) Reset() {
	if v.active != nil {
		v.active.Reset()
	}
}

// Close releases the active accumulator.
func (v *Visualizer) Close() {
	if v.active != nil {
		v.active.Close()
		v.active = nil
	}
}
