// Package server exposes the board's control surface over HTTP and pushes live detections,
// statistics and preview frames to websocket clients.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nvr-ai/galton-goalie/config"
	"github.com/nvr-ai/galton-goalie/controller"
	"github.com/nvr-ai/galton-goalie/export"
	"github.com/nvr-ai/galton-goalie/geometry"
	"github.com/nvr-ai/galton-goalie/images"
	"github.com/nvr-ai/galton-goalie/recorder"
	"github.com/nvr-ai/galton-goalie/store"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Options configure a Server. Only Engine is required.
type Options struct {
	Engine   *controller.Engine
	Journal  *store.Journal
	Store    *store.Store
	Recorder *recorder.Recorder
	// Settings, when set, are kept in sync with control commands and saved to
	// SettingsPath if that is not empty.
	Settings     *config.Settings
	SettingsPath string

	Chart           export.ChartOptions
	Preview         images.PreviewOptions
	PreviewInterval time.Duration
	StatsInterval   time.Duration
	Logger          *slog.Logger
}

// Server is the remote control surface. It is also a controller.FrameSink so it can serve
// the latest frame.
type Server struct {
	opts   Options
	engine *controller.Engine
	hub    *Hub
	router chi.Router
	logger *slog.Logger

	frameMu     sync.Mutex
	frame       gocv.Mat
	frameSeq    uint64
	frameRegion *geometry.GoalRegion
	frameGlows  []int

	settingsMu sync.Mutex
}

// New creates a server for engine.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Chart.Width == 0 {
		opts.Chart = export.DefaultChartOptions()
	}
	if opts.Preview.Quality == 0 {
		opts.Preview = images.DefaultPreviewOptions()
	}
	if opts.PreviewInterval <= 0 {
		opts.PreviewInterval = 200 * time.Millisecond
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = time.Second
	}

	s := &Server{
		opts:   opts,
		engine: opts.Engine,
		hub:    NewHub(opts.Logger),
		logger: opts.Logger,
		frame:  gocv.NewMat(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.hub.ServeHTTP)
	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/statistics", s.handleStatistics)
		r.Get("/counts.csv", s.handleCountsCSV)
		r.Get("/histogram.png", s.handleHistogramPNG)
		r.Get("/histogram.html", s.handleHistogramHTML)
		r.Get("/frame.{format}", s.handleFrame)
		r.Get("/detections", s.handleDetections)

		r.Put("/goal-region", s.handleSetRegion)
		r.Delete("/goal-region", s.handleClearRegion)
		r.Get("/parameters", s.handleGetParameters)
		r.Put("/parameters", s.handleSetParameters)
		r.Get("/presets", s.handlePresets)
		r.Post("/presets/{name}", s.handleApplyPreset)
		r.Put("/mode", s.handleSetMode)
		r.Put("/paused", s.handleSetPaused)
		r.Post("/reset", s.handleReset)
		r.Post("/reset-ultra", s.handleResetUltra)
		r.Post("/recording/start", s.handleRecordingStart)
		r.Post("/recording/stop", s.handleRecordingStop)
	})
	return r
}

// Handler returns the HTTP handler of the control surface.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// HandleFrame keeps a copy of the latest rendered frame for snapshots and previews.
func (s *Server) HandleFrame(frame controller.Frame) error {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	frame.Image.CopyTo(&s.frame)
	s.frameSeq = frame.Seq
	s.frameRegion = frame.Region
	s.frameGlows = frame.Glows
	return nil
}

// latestFrame returns a copy of the latest frame, with the bucket overlay when enabled.
// The caller owns the returned Mat.
func (s *Server) latestFrame() (gocv.Mat, uint64, bool) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	if s.frame.Empty() {
		return gocv.Mat{}, 0, false
	}
	f := controller.Frame{Seq: s.frameSeq, Image: s.frame, Region: s.frameRegion, Glows: s.frameGlows}
	if !s.showOverlay() {
		f.Region = nil
	}
	return f.WithOverlay(), s.frameSeq, true
}

func (s *Server) showOverlay() bool {
	if s.opts.Settings == nil {
		return true
	}
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	return s.opts.Settings.ShowBucketOverlay
}

// Run pushes detections, periodic statistics and previews to websocket clients until ctx
// is done.
func (s *Server) Run(ctx context.Context) {
	events, unsubscribe := s.engine.SubscribeChannel(64)
	defer unsubscribe()

	stats := time.NewTicker(s.opts.StatsInterval)
	defer stats.Stop()
	preview := time.NewTicker(s.opts.PreviewInterval)
	defer preview.Stop()

	var lastPreview uint64
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.hub.Broadcast(Message{Type: MessageDetection, Detection: &ev})
		case <-stats.C:
			s.hub.Broadcast(Message{Type: MessageStats, Snapshot: s.engine.Snapshot()})
		case <-preview.C:
			if s.hub.ClientCount() == 0 {
				continue
			}
			lastPreview = s.pushPreview(lastPreview)
		}
	}
}

// pushPreview broadcasts the latest frame if it is newer than last.
func (s *Server) pushPreview(last uint64) uint64 {
	frame, seq, ok := s.latestFrame()
	if !ok || seq == last {
		if ok {
			frame.Close()
		}
		return last
	}
	defer frame.Close()

	data, err := images.EncodePreview(frame, s.opts.Preview)
	if err != nil {
		s.logger.Warn("encoding preview", "error", err)
		return last
	}
	s.hub.Broadcast(Message{Type: MessageFrame, Frame: &FrameMessage{Seq: seq, Format: string(images.FormatWebP), Data: data}})
	return seq
}

// ListenAndServe serves the control surface on addr and runs the push loop until ctx is
// done, then shuts the listener down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("control surface listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http shutdown")
	}
	return nil
}

// Close releases the cached frame and disconnects websocket clients.
func (s *Server) Close() {
	s.hub.Close()
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	s.frame.Close()
}

// persist mirrors the engine's control state into the settings and saves them.
func (s *Server) persist() {
	if s.opts.Settings == nil {
		return
	}
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()

	st := s.opts.Settings
	st.SetRegion(s.engine.GoalRegion())
	st.Parameters = s.engine.Parameters()
	st.Mode = s.engine.Mode().String()

	if s.opts.SettingsPath == "" {
		return
	}
	if err := st.Save(s.opts.SettingsPath); err != nil {
		s.logger.Error("saving settings", "path", s.opts.SettingsPath, "error", err)
	}
}
