// Package server exposes the region compositor over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/jvtubergen/gmaps-image/internal/compose"
	"github.com/jvtubergen/gmaps-image/internal/region"
	"github.com/jvtubergen/gmaps-image/pkg/mercator"
)

// Defaults applied when a request leaves tile parameters unset.
const (
	DefaultResolution = 640
	DefaultMargin     = 22
)

// Server handles the region API.
type Server struct {
	engine    *region.Engine
	log       *logrus.Logger
	version   string
	startTime time.Time
}

// New returns a server computing regions on the given engine.
func New(engine *region.Engine, log *logrus.Logger, version string) *Server {
	if log == nil {
		log = logrus.New()
	}
	return &Server{
		engine:    engine,
		log:       log,
		version:   version,
		startTime: time.Now(),
	}
}

// Routes returns the API router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Get("/zoom", s.handleZoom)
	r.Post("/region", s.handleRegion)
	return r
}

type healthResponse struct {
	Status  string    `json:"status"`
	Time    time.Time `json:"timestamp"`
	Uptime  int       `json:"uptime_seconds"`
	Version string    `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:  "healthy",
		Time:    time.Now(),
		Uptime:  int(time.Since(s.startTime).Seconds()),
		Version: s.version,
	})
}

// handleZoom exposes the resolution solver: the minimal zoom meeting a
// ground-sampling-distance goal at a latitude.
func (s *Server) handleZoom(w http.ResponseWriter, r *http.Request) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", "lat is required and must be a number")
		return
	}
	gsd, err := strconv.ParseFloat(r.URL.Query().Get("gsd"), 64)
	if err != nil || gsd <= 0 {
		s.writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", "gsd is required and must be a positive number")
		return
	}
	scale := 1
	if v := r.URL.Query().Get("scale"); v != "" {
		if scale, err = strconv.Atoi(v); err != nil || (scale != 1 && scale != 2) {
			s.writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", "scale must be 1 or 2")
			return
		}
	}
	deviation := 0.0
	if v := r.URL.Query().Get("deviation"); v != "" {
		if deviation, err = strconv.ParseFloat(v, 64); err != nil {
			s.writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", "deviation must be a number")
			return
		}
	}

	zoom, err := mercator.DeriveZoom(lat, scale, gsd, deviation)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, "UNSATISFIABLE_GSD", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"zoom": zoom,
		"gsd":  mercator.ComputeGSD(lat, zoom, scale),
	})
}

type regionRequest struct {
	BBox struct {
		North float64 `json:"north"`
		South float64 `json:"south"`
		East  float64 `json:"east"`
		West  float64 `json:"west"`
	} `json:"bbox"`
	Zoom       int  `json:"zoom"`
	Scale      int  `json:"scale"`
	Resolution int  `json:"resolution,omitempty"`
	Margin     *int `json:"margin,omitempty"`
	Square     bool `json:"square,omitempty"`
	FullTiles  bool `json:"full_tiles,omitempty"`
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	var req regionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid JSON in request body")
		return
	}
	if req.Scale == 0 {
		req.Scale = 1
	}
	if req.Resolution == 0 {
		req.Resolution = DefaultResolution
	}
	margin := DefaultMargin
	if req.Margin != nil {
		margin = *req.Margin
	}

	cfg := region.Config{
		Zoom:       req.Zoom,
		Scale:      req.Scale,
		Margin:     margin,
		Resolution: req.Resolution,
		Square:     req.Square,
		FullTiles:  req.FullTiles,
	}
	box := region.GeoBox{
		North: req.BBox.North,
		South: req.BBox.South,
		East:  req.BBox.East,
		West:  req.BBox.West,
	}

	raster, coords, err := s.engine.ComputeRegion(r.Context(), box, cfg)
	if err != nil {
		s.handleComputeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, raster.Image()); err != nil {
		s.log.WithError(err).Error("encoding composite")
		s.writeError(w, http.StatusInternalServerError, "ENCODING_ERROR", "could not encode composite image")
		return
	}

	ul := coords.At(0, 0)
	lr := coords.At(coords.Height-1, coords.Width-1)
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Region-Width", strconv.Itoa(raster.Width))
	w.Header().Set("X-Region-Height", strconv.Itoa(raster.Height))
	w.Header().Set("X-Region-Upper-Left", fmt.Sprintf("%.7f,%.7f", ul.Lat, ul.Lon))
	w.Header().Set("X-Region-Lower-Right", fmt.Sprintf("%.7f,%.7f", lr.Lat, lr.Lon))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.log.WithError(err).Warn("writing response")
	}
}

func (s *Server) handleComputeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mercator.ErrNoConvergence):
		// Projection-math edge case, not bad caller input.
		s.writeError(w, http.StatusInternalServerError, "PROJECTION_ERROR", err.Error())
	case errors.Is(err, compose.ErrFootprint):
		s.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.writeError(w, http.StatusGatewayTimeout, "TILE_FETCH_TIMEOUT", "tile retrieval timed out")
	default:
		s.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("encoding response")
	}
}
