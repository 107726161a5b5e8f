// Command webcam is a calibration viewer: it shows the camera with the configured goal
// region and bucket dividers so the region can be lined up with the board.
//
// Keys: q quits, f toggles mirroring, s saves a snapshot next to the settings file.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nvr-ai/galton-goalie/capture"
	"github.com/nvr-ai/galton-goalie/config"
	"github.com/nvr-ai/galton-goalie/export"
	"github.com/nvr-ai/galton-goalie/images"
	"gocv.io/x/gocv"
)

func main() {
	configPath := flag.String("config", "galton_config.json", "Path to the settings file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	settings, err := config.Load(*configPath)
	if err != nil {
		logger.Error("loading settings", "error", err)
		os.Exit(1)
	}
	region, err := settings.Region()
	if err != nil {
		logger.Error("goal region", "error", err)
		os.Exit(1)
	}
	res, err := settings.CaptureResolution()
	if err != nil {
		logger.Error("resolution", "error", err)
		os.Exit(1)
	}

	webcam, err := capture.OpenDevice(settings.CameraIndex, res)
	if err != nil {
		logger.Error("opening camera", "error", err)
		os.Exit(1)
	}
	defer webcam.Close()

	width, height := webcam.FrameSize()
	logger.Info("camera opened", "index", settings.CameraIndex, "width", width, "height", height, "goal_region", region)

	window := gocv.NewWindow("Galton calibration")
	defer window.Close()

	img := gocv.NewMat()
	defer img.Close()
	mirror := gocv.NewMat()
	defer mirror.Close()

	white := color.RGBA{R: 255, G: 255, B: 255}
	glows := make([]int, settings.Buckets)
	flip := settings.FlipHorizontal

	fps := 0.0
	frameCount := 0
	lastTime := time.Now()

	for {
		if err := webcam.Read(&img); err != nil {
			logger.Error("reading camera", "error", err)
			return
		}

		frameCount++
		if elapsed := time.Since(lastTime).Seconds(); elapsed >= 1.0 {
			fps = float64(frameCount) / elapsed
			frameCount = 0
			lastTime = time.Now()
		}

		view := img
		if flip {
			gocv.Flip(img, &mirror, 1)
			view = mirror
		}
		if region != nil {
			images.DrawBucketOverlay(&view, *region, glows)
		}
		status := fmt.Sprintf("%dx%d  %.1f fps  mirror=%t", view.Cols(), view.Rows(), fps, flip)
		gocv.PutText(&view, status, image.Pt(10, view.Rows()-12), gocv.FontHersheyPlain, 1.2, white, 1)

		window.IMShow(view)
		switch window.WaitKey(1) {
		case 'q', 27:
			return
		case 'f':
			flip = !flip
		case 's':
			path := filepath.Join(filepath.Dir(*configPath), fmt.Sprintf("calibration_%s.png", time.Now().Format("20060102_150405")))
			if err := export.SaveSnapshot(path, view); err != nil {
				logger.Error("saving snapshot", "error", err)
			} else {
				logger.Info("snapshot saved", "path", path)
			}
		}
	}
}
