// Package config loads and saves the persisted board settings. The JSON layout is
// compatible with the settings file written by earlier desktop versions of the tool.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvr-ai/galton-goalie/controller"
	"github.com/nvr-ai/galton-goalie/geometry"
	"github.com/nvr-ai/galton-goalie/images"
	"github.com/nvr-ai/galton-goalie/visual"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Settings holds the runtime configuration of the board analyser. Fields may be loaded
// from a JSON or YAML file and overridden by command-line flags.
type Settings struct {
	// GoalRegion is [x1, y1, x2, y2] in frame pixels; empty when uncalibrated.
	GoalRegion []int `json:"goal_region,omitempty" yaml:"goal_region,omitempty"`
	// Buckets is the number of buckets across the goal.
	Buckets int `json:"buckets" yaml:"buckets"`

	// Capture
	CameraIndex int    `json:"camera_index" yaml:"camera_index"`
	Resolution  string `json:"resolution" yaml:"resolution"`
	// Source replays a video file or image directory instead of the camera.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`

	controller.Parameters `yaml:",inline"`

	// Visualization and display
	Mode              string `json:"visualization_mode" yaml:"visualization_mode"`
	ShowBucketOverlay bool   `json:"show_bucket_overlay" yaml:"show_bucket_overlay"`
	ShowGaussian      bool   `json:"show_gaussian" yaml:"show_gaussian"`
	ShowStatsOnGraph  bool   `json:"show_stats_on_graph" yaml:"show_stats_on_graph"`

	// Recording
	RecordingOutputFolder string `json:"recording_output_folder" yaml:"recording_output_folder"`
	RecordFullUI          bool   `json:"record_full_ui" yaml:"record_full_ui"`

	// Persistence and remote control
	DatabasePath string `json:"database_path" yaml:"database_path"`
	HTTPAddr     string `json:"http_addr" yaml:"http_addr"`
}

// DefaultSettings returns Settings populated with standard defaults.
func DefaultSettings() *Settings {
	return &Settings{
		Buckets:               geometry.DefaultBuckets,
		CameraIndex:           0,
		Resolution:            string(images.DefaultResolution),
		Parameters:            controller.DefaultParameters(),
		Mode:                  visual.ModeOff.String(),
		ShowBucketOverlay:     true,
		ShowGaussian:          true,
		ShowStatsOnGraph:      true,
		RecordingOutputFolder: ".",
		RecordFullUI:          true,
		DatabasePath:          "galton.db",
		HTTPAddr:              ":8080",
	}
}

// Validate clamps values into their usable ranges. It only fails for values that cannot be
// clamped: a malformed goal region or an unknown visualization mode.
func (s *Settings) Validate() error {
	if s.Buckets < 1 {
		s.Buckets = geometry.DefaultBuckets
	}
	s.Parameters = s.Parameters.Sanitize()
	if s.Resolution == "" {
		s.Resolution = string(images.DefaultResolution)
	}
	if s.RecordingOutputFolder == "" {
		s.RecordingOutputFolder = "."
	}
	if s.Mode == "" {
		s.Mode = visual.ModeOff.String()
	}

	if _, err := visual.ParseMode(s.Mode); err != nil {
		return err
	}
	if _, err := s.Region(); err != nil {
		return err
	}
	if _, err := images.ParseResolution(s.Resolution); err != nil {
		return err
	}
	return nil
}

// Region returns the calibrated goal region, or nil when none is stored.
func (s *Settings) Region() (*geometry.GoalRegion, error) {
	if len(s.GoalRegion) == 0 {
		return nil, nil
	}
	if len(s.GoalRegion) != 4 {
		return nil, errors.Errorf("goal_region needs 4 values, got %d", len(s.GoalRegion))
	}
	r := s.GoalRegion
	region, err := geometry.NewGoalRegion(r[0], r[1], r[2], r[3])
	if err != nil {
		return nil, errors.Wrap(err, "goal_region")
	}
	return region, nil
}

// SetRegion stores region, or clears calibration when it is nil.
func (s *Settings) SetRegion(region *geometry.GoalRegion) {
	if region == nil {
		s.GoalRegion = nil
		return
	}
	s.GoalRegion = []int{region.X1, region.Y1, region.X2, region.Y2}
}

// VisualMode returns the configured visualization mode.
func (s *Settings) VisualMode() (visual.Mode, error) {
	return visual.ParseMode(s.Mode)
}

// CaptureResolution returns the configured camera resolution.
func (s *Settings) CaptureResolution() (images.Resolution, error) {
	return images.ParseResolution(s.Resolution)
}

// Load reads settings from path. A missing file yields DefaultSettings(). Files ending in
// .yaml or .yml are decoded as YAML, everything else as JSON. Keys absent from the file
// keep their defaults.
func Load(path string) (*Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, errors.Wrapf(err, "read settings %s", path)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, s)
	} else {
		err = json.Unmarshal(data, s)
	}
	if err != nil {
		return DefaultSettings(), errors.Wrapf(err, "decode settings %s", path)
	}
	if err := s.Validate(); err != nil {
		return s, errors.Wrapf(err, "settings %s", path)
	}
	return s, nil
}

// Save writes the settings to path, as YAML for .yaml/.yml files and indented JSON
// otherwise.
func (s *Settings) Save(path string) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create settings directory %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create settings %s", path)
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return errors.Wrapf(err, "encode settings %s", path)
		}
		return enc.Close()
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return errors.Wrapf(enc.Encode(s), "encode settings %s", path)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
