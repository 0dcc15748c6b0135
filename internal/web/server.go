// Package web provides the HTTP status page and commissioning endpoints of
// the dust controller.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	"github.com/sweeney/dust-controller/internal/control"
	"github.com/sweeney/dust-controller/internal/status"
)

// Commander runs commissioning commands against the controller.
type Commander interface {
	ToggleTool(id string) (bool, error)
	RecalibrateTool(id string) error
	IdentifyGate(ctx context.Context, id string) error
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	cmd        Commander
	logger     *zap.Logger
}

// New creates a Server that reads state from the given tracker and forwards
// commissioning requests to cmd.
func New(addr string, tracker *status.Tracker, cmd Commander, logger *zap.Logger) *Server {
	s := &Server{
		tracker: tracker,
		cmd:     cmd,
		logger:  logger.Named("web"),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	r.HandleFunc("/tools/{id}/toggle", s.handleToggle).Methods(http.MethodPost)
	r.HandleFunc("/tools/{id}/calibrate", s.handleCalibrate).Methods(http.MethodPost)
	r.HandleFunc("/gates/{id}/identify", s.handleIdentify).Methods(http.MethodPost)

	access := &zapio.Writer{Log: s.logger, Level: zap.DebugLevel}
	var h http.Handler = handlers.LoggingHandler(access, r)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(s.logger)),
		handlers.PrintRecoveryStack(true),
	)(h)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: h,
	}
	return s
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.logger.Warn("render status page", zap.Error(err))
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// CommandResult is the JSON body of a commissioning response.
type CommandResult struct {
	Tool        string `json:"tool,omitempty"`
	Gate        string `json:"gate,omitempty"`
	On          *bool  `json:"on,omitempty"`
	Calibrating bool   `json:"calibrating,omitempty"`
	Identified  bool   `json:"identified,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	on, err := s.cmd.ToggleTool(id)
	if err != nil {
		s.fail(w, CommandResult{Tool: id}, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResult{Tool: id, On: &on})
}

func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.cmd.RecalibrateTool(id); err != nil {
		s.fail(w, CommandResult{Tool: id}, err)
		return
	}
	writeJSON(w, http.StatusAccepted, CommandResult{Tool: id, Calibrating: true})
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.cmd.IdentifyGate(r.Context(), id); err != nil {
		s.fail(w, CommandResult{Gate: id}, err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResult{Gate: id, Identified: true})
}

func (s *Server) fail(w http.ResponseWriter, res CommandResult, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, control.ErrUnknownTool), errors.Is(err, control.ErrUnknownGate):
		code = http.StatusNotFound
	case errors.Is(err, control.ErrNoSensor):
		code = http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, control.ErrGateHalted):
		code = http.StatusServiceUnavailable
	default:
		s.logger.Warn("command failed", zap.String("tool", res.Tool), zap.String("gate", res.Gate), zap.Error(err))
	}
	res.Error = err.Error()
	writeJSON(w, code, res)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
