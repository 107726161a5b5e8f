// Package images provides the OpenCV frame processing stages of the board analyser: motion
// differencing, blob extraction, overlays, previews and the capture resolutions a camera
// can be asked for.
package images

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ResolutionType is the short name of a capture resolution.
type ResolutionType string

// Capture resolutions commonly offered by USB cameras.
const (
	ResolutionTypeVGA      ResolutionType = "480p"
	ResolutionTypeQHD540   ResolutionType = "540p"
	ResolutionTypeHD720p   ResolutionType = "720p"
	ResolutionTypeFHD1080p ResolutionType = "1080p"
	ResolutionTypeQHD1440p ResolutionType = "1440p"
	ResolutionType4KUHD    ResolutionType = "2160p"
)

// DefaultResolution is what the camera is asked for when nothing else is configured.
const DefaultResolution = ResolutionTypeHD720p

// ResolutionPixels describes the exact dimensions of a resolution.
type ResolutionPixels struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Resolution describes a named capture size.
type Resolution struct {
	Name   ResolutionType   `json:"name"`
	Pixels ResolutionPixels `json:"pixels"`
}

// GetMegaPixels returns the megapixel count rounded to two decimal places.
func (r Resolution) GetMegaPixels() float64 {
	if r.Pixels.Width <= 0 || r.Pixels.Height <= 0 {
		return 0.0
	}
	mp := float64(r.Pixels.Width*r.Pixels.Height) / 1_000_000.0
	return math.Round(mp*100) / 100
}

// String returns a human-readable summary of the resolution.
func (r Resolution) String() string {
	return fmt.Sprintf("%s (%dx%d, %.2fMP)", r.Name, r.Pixels.Width, r.Pixels.Height, r.GetMegaPixels())
}

var resolutions = map[ResolutionType]Resolution{
	ResolutionTypeVGA:      {Name: ResolutionTypeVGA, Pixels: ResolutionPixels{Width: 640, Height: 480}},
	ResolutionTypeQHD540:   {Name: ResolutionTypeQHD540, Pixels: ResolutionPixels{Width: 960, Height: 540}},
	ResolutionTypeHD720p:   {Name: ResolutionTypeHD720p, Pixels: ResolutionPixels{Width: 1280, Height: 720}},
	ResolutionTypeFHD1080p: {Name: ResolutionTypeFHD1080p, Pixels: ResolutionPixels{Width: 1920, Height: 1080}},
	ResolutionTypeQHD1440p: {Name: ResolutionTypeQHD1440p, Pixels: ResolutionPixels{Width: 2560, Height: 1440}},
	ResolutionType4KUHD:    {Name: ResolutionType4KUHD, Pixels: ResolutionPixels{Width: 3840, Height: 2160}},
}

// GetAllResolutions returns the known resolutions ordered by pixel count.
func GetAllResolutions() []Resolution {
	all := make([]Resolution, 0, len(resolutions))
	for _, r := range resolutions {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Pixels.Width*all[i].Pixels.Height < all[j].Pixels.Width*all[j].Pixels.Height
	})
	return all
}

// ParseResolution accepts either a known name ("720p") or explicit dimensions
// ("1280x720").
//
// Arguments:
//   - s: The resolution string.
//
// Returns:
//   - Resolution: The parsed resolution, named "custom" for explicit dimensions.
//   - error: An error if s is neither form or has non-positive dimensions.
func ParseResolution(s string) (Resolution, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if r, ok := resolutions[ResolutionType(s)]; ok {
		return r, nil
	}

	w, h, found := strings.Cut(s, "x")
	if !found {
		return Resolution{}, errors.Errorf("unknown resolution %q", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return Resolution{}, errors.Wrapf(err, "resolution width %q", w)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return Resolution{}, errors.Wrapf(err, "resolution height %q", h)
	}
	if width <= 0 || height <= 0 {
		return Resolution{}, errors.Errorf("resolution %q must be positive", s)
	}
	return Resolution{Name: "custom", Pixels: ResolutionPixels{Width: width, Height: height}}, nil
}
