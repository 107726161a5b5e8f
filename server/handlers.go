package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nvr-ai/galton-goalie/config"
	"github.com/nvr-ai/galton-goalie/export"
	"github.com/nvr-ai/galton-goalie/geometry"
	"github.com/nvr-ai/galton-goalie/images"
	"github.com/nvr-ai/galton-goalie/visual"
	"github.com/pkg/errors"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("writing response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return errors.Wrap(dec.Decode(v), "decode request")
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Statistics())
}

func (s *Server) handleCountsCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, s.engine.Counts()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="galton_counts.csv"`)
	w.Write(buf.Bytes())
}

func (s *Server) chartOptions() export.ChartOptions {
	opts := s.opts.Chart
	if s.opts.Settings != nil {
		s.settingsMu.Lock()
		opts.ShowGaussian = s.opts.Settings.ShowGaussian
		opts.ShowStats = s.opts.Settings.ShowStatsOnGraph
		s.settingsMu.Unlock()
	}
	return opts
}

func (s *Server) handleHistogramPNG(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := export.WritePNG(&buf, s.engine.Counts(), s.chartOptions()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func (s *Server) handleHistogramHTML(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := export.WriteHTML(&buf, s.engine.Counts(), s.chartOptions()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	format, err := images.FormatFromPath("frame." + chi.URLParam(r, "format"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	frame, _, ok := s.latestFrame()
	if !ok {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("no frame yet"))
		return
	}
	defer frame.Close()

	data, err := export.EncodeSnapshot(frame, format)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Write(data)
}

func (s *Server) handleDetections(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil || s.opts.Journal == nil {
		s.writeError(w, http.StatusNotFound, errors.New("detection log disabled"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.opts.Store.Detections(r.Context(), s.opts.Journal.Session().ID, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleSetRegion(w http.ResponseWriter, r *http.Request) {
	var req geometry.GoalRegion
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	region, err := geometry.NewGoalRegion(req.X1, req.Y1, req.X2, req.Y2)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.SetGoalRegion(region); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.logger.Info("goal region calibrated", "region", region.String())
	s.persist()
	s.writeJSON(w, http.StatusOK, region)
}

func (s *Server) handleClearRegion(w http.ResponseWriter, r *http.Request) {
	s.engine.SetGoalRegion(nil)
	s.persist()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Parameters())
}

// handleSetParameters applies a partial update: fields absent from the body keep their
// current values.
func (s *Server) handleSetParameters(w http.ResponseWriter, r *http.Request) {
	params := s.engine.Parameters()
	if err := decode(r, &params); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.engine.SetParameters(params)
	s.persist()
	s.writeJSON(w, http.StatusOK, s.engine.Parameters())
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, config.Presets())
}

func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	preset, err := config.LookupPreset(chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	params := s.engine.Parameters()
	params.CooldownFrames = preset.CooldownFrames
	params.MotionThreshold = preset.MotionThreshold
	params.MinContourArea = preset.MinContourArea
	s.engine.SetParameters(params)
	s.persist()
	s.writeJSON(w, http.StatusOK, s.engine.Parameters())
}

type modeRequest struct {
	Mode visual.Mode `json:"mode"`
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.SetMode(req.Mode); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.persist()
	s.writeJSON(w, http.StatusOK, req)
}

type pausedRequest struct {
	Paused bool `json:"paused"`
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	var req pausedRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.engine.SetPaused(req.Paused)
	s.writeJSON(w, http.StatusOK, req)
}

// handleReset only requests the reset; the loop applies it and the journal persists it in
// order with the detections around it.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.engine.ResetHistogram()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleResetUltra(w http.ResponseWriter, r *http.Request) {
	s.engine.ResetUltraLongExposure()
	w.WriteHeader(http.StatusAccepted)
}

type recordingResponse struct {
	Recording bool   `json:"recording"`
	Path      string `json:"path,omitempty"`
	Frames    int    `json:"frames,omitempty"`
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if s.opts.Recorder == nil {
		s.writeError(w, http.StatusNotFound, errors.New("recording disabled"))
		return
	}
	path, err := s.opts.Recorder.Start()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, recordingResponse{Recording: true, Path: path})
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if s.opts.Recorder == nil {
		s.writeError(w, http.StatusNotFound, errors.New("recording disabled"))
		return
	}
	path, frames, err := s.opts.Recorder.Stop()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, recordingResponse{Recording: false, Path: path, Frames: frames})
}
