package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nvr-ai/galton-goalie/capture"
	"github.com/nvr-ai/galton-goalie/config"
	"github.com/nvr-ai/galton-goalie/controller"
	"github.com/nvr-ai/galton-goalie/profiler"
	"github.com/nvr-ai/galton-goalie/recorder"
	"github.com/nvr-ai/galton-goalie/server"
	"github.com/nvr-ai/galton-goalie/store"
	"github.com/pkg/errors"
)

const (
	// DefaultConfigPath is where settings are read from and saved to.
	DefaultConfigPath = "galton_config.json"
	// DefaultProfileInterval is how often frame timings are reported.
	DefaultProfileInterval = 30 * time.Second
)

// flags are the command-line options. Flags that are set override the settings file.
type flags struct {
	configPath   string
	logLevel     string
	camera       int
	resolution   string
	source       string
	loop         bool
	httpAddr     string
	dbPath       string
	preset       string
	mode         string
	paused       bool
	record       bool
	noResume     bool
	profileEvery time.Duration
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", DefaultConfigPath, "Path to the settings file (.json or .yaml)")
	flag.StringVar(&f.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flag.IntVar(&f.camera, "camera", 0, "Camera index")
	flag.StringVar(&f.resolution, "resolution", "", "Capture resolution, e.g. 720p or 1280x720")
	flag.StringVar(&f.source, "source", "", "Video file or image directory to replay instead of the camera")
	flag.BoolVar(&f.loop, "loop", false, "Loop an image directory source")
	flag.StringVar(&f.httpAddr, "http", "", "Listen address of the control surface")
	flag.StringVar(&f.dbPath, "db", "", "SQLite database used to resume counting")
	flag.StringVar(&f.preset, "preset", "", "Sensitivity preset: high, standard or low_noise")
	flag.StringVar(&f.mode, "mode", "", "Visualization mode: off, trails, long_exposure or ultra_long_exposure")
	flag.BoolVar(&f.paused, "paused", false, "Start with counting paused")
	flag.BoolVar(&f.record, "record", false, "Start recording immediately")
	flag.BoolVar(&f.noResume, "no-resume", false, "Start a fresh session instead of resuming the last one")
	flag.DurationVar(&f.profileEvery, "profile-interval", DefaultProfileInterval, "Frame timing report interval, 0 disables profiling")
	flag.Parse()

	logger := NewLogger(f.logLevel)
	slog.SetDefault(logger)

	if err := run(f, logger); err != nil {
		logger.Error("galton goalie failed", "error", err)
		os.Exit(1)
	}
}

// NewLogger returns a JSON logger on stdout at the named level.
func NewLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

// loadSettings reads the settings file and applies the flags that were set explicitly.
func loadSettings(f flags) (*config.Settings, error) {
	settings, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	var applyErr error
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "camera":
			settings.CameraIndex = f.camera
		case "resolution":
			settings.Resolution = f.resolution
		case "source":
			settings.Source = f.source
		case "http":
			settings.HTTPAddr = f.httpAddr
		case "db":
			settings.DatabasePath = f.dbPath
		case "mode":
			settings.Mode = f.mode
		case "preset":
			if err := settings.ApplyPreset(f.preset); err != nil {
				applyErr = err
			}
		}
	})
	if applyErr != nil {
		return nil, applyErr
	}
	return settings, settings.Validate()
}

// openSource picks the frame source: an image directory, a video file or the camera.
func openSource(settings *config.Settings, loop bool) (capture.Source, error) {
	if settings.Source != "" {
		info, err := os.Stat(settings.Source)
		if err != nil {
			return nil, errors.Wrap(err, "source")
		}
		if info.IsDir() {
			return capture.OpenDirectory(settings.Source, loop)
		}
		return capture.OpenFile(settings.Source)
	}

	res, err := settings.CaptureResolution()
	if err != nil {
		return nil, err
	}
	return capture.OpenDevice(settings.CameraIndex, res)
}

func run(f flags, logger *slog.Logger) error {
	settings, err := loadSettings(f)
	if err != nil {
		return err
	}
	region, err := settings.Region()
	if err != nil {
		return err
	}
	mode, err := settings.VisualMode()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(settings.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	var (
		session store.Session
		counts  []uint64
	)
	if f.noResume {
		session, err = db.StartSession(ctx, settings.Buckets)
		counts = make([]uint64, settings.Buckets)
	} else {
		session, counts, err = db.Resume(ctx, settings.Buckets)
	}
	if err != nil {
		return err
	}
	logger.Info("session ready", "session", session.ID, "buckets", session.Buckets, "started_at", session.StartedAt)

	var prof *profiler.RuntimeProfiler
	if f.profileEvery > 0 {
		prof = profiler.NewRuntimeProfiler(profiler.ProfilingOptions{ReportInterval: f.profileEvery, Logger: logger})
		prof.Start()
		defer prof.Stop()
	}

	source, err := openSource(settings, f.loop)
	if err != nil {
		return err
	}

	engine, err := controller.New(source, controller.Options{
		Buckets:       settings.Buckets,
		Parameters:    settings.Parameters,
		Region:        region,
		Mode:          mode,
		Paused:        f.paused,
		InitialCounts: counts,
		Logger:        logger,
		Profiler:      prof,
	})
	if err != nil {
		source.Close()
		return err
	}
	defer engine.Close()

	journal := store.NewJournal(db, session, logger)
	defer journal.Close()
	engine.Subscribe(journal)
	engine.OnReset(journal)

	rec := recorder.New(recorder.Options{
		Folder:      settings.RecordingOutputFolder,
		WithOverlay: settings.RecordFullUI,
		Logger:      logger,
	})
	engine.AddSink(rec)
	if f.record {
		if _, err := rec.Start(); err != nil {
			return err
		}
	}

	srv := server.New(server.Options{
		Engine:       engine,
		Journal:      journal,
		Store:        db,
		Recorder:     rec,
		Settings:     settings,
		SettingsPath: f.configPath,
		Logger:       logger,
	})
	defer srv.Close()
	engine.AddSink(srv)
	prof.AddMetricsCollector(srv.Hub())

	serveCtx, cancelServe := context.WithCancel(ctx)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe(serveCtx, settings.HTTPAddr) }()

	runErr := engine.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	cancelServe()
	if err := <-serveErr; err != nil && runErr == nil {
		runErr = err
	}

	if path, frames, err := rec.Stop(); err != nil {
		logger.Error("finishing recording", "error", err)
	} else if path != "" {
		logger.Info("recording saved", "path", path, "frames", frames)
	}

	// Every queued detection lands before the authoritative counts overwrite them.
	journal.Close()
	if n := journal.Dropped(); n > 0 {
		logger.Warn("detections missing from the log", "dropped", n)
	}
	final := engine.Counts()
	flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFlush()
	if err := journal.Flush(flushCtx, final); err != nil {
		logger.Error("saving final counts", "error", err)
	}

	stats := engine.Statistics()
	logger.Info("session summary",
		"total", stats.Total,
		"mean", fmt.Sprintf("%.3f", stats.Mean),
		"std_dev", fmt.Sprintf("%.3f", stats.StdDev),
		"counts", final)

	return runErr
}
