// Package api serves the minihead HTTP interface: controller commands,
// solver-only kinematics, the telemetry stream and the recording store.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/minihead/minihead/internal/db"
	"github.com/minihead/minihead/internal/dxl"
	"github.com/minihead/minihead/internal/httputil"
	"github.com/minihead/minihead/internal/kinematics"
	"github.com/minihead/minihead/internal/link"
	"github.com/minihead/minihead/internal/motion"
	"github.com/minihead/minihead/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Config wires a Server to its collaborators.
type Config struct {
	Controller *motion.Controller
	// Solver answers the solver-only kinematics routes. It must not be the
	// controller's solver: a cold forward solve would reset the estimate the
	// loops are tracking.
	Solver *kinematics.Solver
	// Store is optional; the recording routes answer 503 without it.
	Store *db.DB
	// Hub receives telemetry; pass the same hub to the controller's sink.
	Hub *Hub
	// Geometry names the branch layout, for status and stored recordings.
	Geometry string
	// MaxRecord caps /api/record durations. Zero means no cap.
	MaxRecord time.Duration
}

// Server holds the HTTP handlers.
type Server struct {
	ctrl      *motion.Controller
	solver    *kinematics.Solver
	store     *db.DB
	hub       *Hub
	geometry  string
	maxRecord time.Duration

	// loops started over HTTP outlive their request
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer builds a Server from cfg.
func NewServer(cfg Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	hub := cfg.Hub
	if hub == nil {
		hub = NewHub()
	}
	return &Server{
		ctrl:      cfg.Controller,
		solver:    cfg.Solver,
		store:     cfg.Store,
		hub:       hub,
		geometry:  cfg.Geometry,
		maxRecord: cfg.MaxRecord,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Close stops any running loop, releases the link and ends telemetry
// streams.
func (s *Server) Close() error {
	s.cancel()
	err := s.ctrl.Disconnect()
	s.hub.Close()
	return err
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.showStatus)
	mux.HandleFunc("POST /api/connect", s.connect)
	mux.HandleFunc("POST /api/disconnect", s.disconnect)
	mux.HandleFunc("POST /api/torque/on", s.torque(true))
	mux.HandleFunc("POST /api/torque/off", s.torque(false))
	mux.HandleFunc("POST /api/record", s.record)
	mux.HandleFunc("POST /api/replay", s.replay)
	mux.HandleFunc("POST /api/monitor", s.monitor)
	mux.HandleFunc("POST /api/stop", s.stop)
	mux.HandleFunc("POST /api/pose", s.goTo)
	mux.HandleFunc("POST /api/kinematics/inverse", s.inverse)
	mux.HandleFunc("POST /api/kinematics/forward", s.forward)
	mux.HandleFunc("GET /api/geometries", s.listGeometries)
	mux.Handle("GET /api/telemetry", s.hub)

	mux.HandleFunc("GET /api/recordings", s.listRecordings)
	mux.HandleFunc("POST /api/recordings", s.saveRecording)
	mux.HandleFunc("GET /api/recordings/{id}", s.showRecording)
	mux.HandleFunc("PATCH /api/recordings/{id}", s.renameRecording)
	mux.HandleFunc("DELETE /api/recordings/{id}", s.deleteRecording)
	mux.HandleFunc("POST /api/recordings/{id}/load", s.loadRecording)
	mux.HandleFunc("GET /api/recordings/{id}/chart", s.chartRecording)
	return mux
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, link.ErrNotConnected),
		errors.Is(err, motion.ErrBusy),
		errors.Is(err, link.ErrBusy),
		errors.Is(err, motion.ErrNoRecording):
		status = http.StatusConflict
	case errors.Is(err, kinematics.ErrUnreachable),
		errors.Is(err, kinematics.ErrJointCount),
		errors.Is(err, kinematics.ErrInvalidJoints):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, motion.ErrConfigMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, db.ErrRecordingNotFound):
		status = http.StatusNotFound
	case errors.Is(err, link.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		log.Printf("api: %v", err)
	}
	httputil.WriteJSONError(w, status, err.Error())
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	motion.Status
	Geometry string `json:"geometry"`
	Version  string `json:"version"`
	GitSHA   string `json:"git_sha"`
}

func (s *Server) status() StatusResponse {
	return StatusResponse{
		Status:   s.ctrl.Status(),
		Geometry: s.geometry,
		Version:  version.Version,
		GitSHA:   version.GitSHA,
	}
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.status())
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Connect(r.Context()); err != nil {
		httputil.WriteJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	httputil.WriteJSONOK(w, s.status())
}

func (s *Server) disconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Disconnect(); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.status())
}

func (s *Server) torque(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		if enabled {
			err = s.ctrl.TorqueOn(r.Context())
		} else {
			err = s.ctrl.TorqueOff(r.Context())
		}
		if err != nil {
			writeError(w, err)
			return
		}
		httputil.WriteJSONOK(w, s.status())
	}
}

// recordDuration reads ?duration=. Omitted means record until stopped, up
// to the server cap.
func (s *Server) recordDuration(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("duration")
	if raw == "" {
		return s.maxRecord, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", d)
	}
	if s.maxRecord > 0 && d > s.maxRecord {
		return 0, fmt.Errorf("duration %s exceeds the %s limit", d, s.maxRecord)
	}
	return d, nil
}

func (s *Server) record(w http.ResponseWriter, r *http.Request) {
	d, err := s.recordDuration(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	s.startLoop(w, "record", func() (<-chan error, error) { return s.ctrl.StartRecord(s.ctx, d) })
}

func (s *Server) replay(w http.ResponseWriter, r *http.Request) {
	s.startLoop(w, "replay", func() (<-chan error, error) { return s.ctrl.StartReplay(s.ctx) })
}

func (s *Server) monitor(w http.ResponseWriter, r *http.Request) {
	s.startLoop(w, "monitor", func() (<-chan error, error) { return s.ctrl.StartMonitor(s.ctx) })
}

// startLoop starts a background loop and answers 202 once it is running.
// The loop's outcome is published on the telemetry stream.
func (s *Server) startLoop(w http.ResponseWriter, op string, start func() (<-chan error, error)) {
	errc, err := start()
	if err != nil {
		writeError(w, err)
		return
	}
	go func() {
		if err := <-errc; err != nil {
			log.Printf("api: %s ended: %v", op, err)
		}
	}()
	httputil.WriteJSON(w, http.StatusAccepted, s.status())
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Stop()
	s.ctrl.Wait()
	httputil.WriteJSONOK(w, s.status())
}

// JointsResponse carries joint angles in both units.
type JointsResponse struct {
	Radians []float64 `json:"radians"`
	Degrees []float64 `json:"degrees"`
}

func jointsResponse(rad []float64) JointsResponse {
	deg := make([]float64, len(rad))
	for i, v := range rad {
		deg[i] = dxl.Degrees(v)
	}
	return JointsResponse{Radians: rad, Degrees: deg}
}

func (s *Server) goTo(w http.ResponseWriter, r *http.Request) {
	var target kinematics.Coords
	if !httputil.DecodeJSON(w, r, &target) {
		return
	}
	joints, err := s.ctrl.GoTo(r.Context(), target)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, jointsResponse(joints))
}

func (s *Server) inverse(w http.ResponseWriter, r *http.Request) {
	var target kinematics.Coords
	if !httputil.DecodeJSON(w, r, &target) {
		return
	}
	joints, err := s.solver.InverseKinematics(kinematics.PoseFromCoords(target))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, jointsResponse(joints))
}

// ForwardRequest is the body of POST /api/kinematics/forward.
type ForwardRequest struct {
	Joints []float64 `json:"joints"`
	// Degrees marks Joints as degrees rather than radians.
	Degrees bool `json:"degrees,omitempty"`
}

// ForwardResponse is the converged pose.
type ForwardResponse struct {
	Pose       kinematics.Coords `json:"pose"`
	Matrix     [4][4]float64     `json:"matrix"`
	Iterations int               `json:"iterations"`
}

func (s *Server) forward(w http.ResponseWriter, r *http.Request) {
	var req ForwardRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	joints := req.Joints
	if req.Degrees {
		joints = make([]float64, len(req.Joints))
		for i, d := range req.Joints {
			joints[i] = dxl.Radians(d)
		}
	}
	pose, n, err := s.solver.SolveForward(joints)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := ForwardResponse{Pose: pose.Coords(), Iterations: n}
	m := pose.Matrix()
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			resp.Matrix[i][j] = m.At(i, j)
		}
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) listGeometries(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]interface{}{
		"active":    s.geometry,
		"available": kinematics.GeometryNames(),
	})
}
