// Package api serves the presence service's HTTP JSON API and debug pages.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/presence.report/internal/db"
	"github.com/banshee-data/presence.report/internal/leapmmw"
	"github.com/banshee-data/presence.report/internal/monitoring"
	"github.com/banshee-data/presence.report/internal/presence"
	"github.com/banshee-data/presence.report/internal/radar"
	"github.com/banshee-data/presence.report/internal/timeutil"
	"github.com/banshee-data/presence.report/internal/version"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
	defaultHours      = 24
	maxHours          = 24 * 31
	maxBodyBytes      = 1 << 16
)

// Sensor is the part of radar.Radar the API drives.
type Sensor interface {
	Status() radar.Status
	Execute(cmd string) ([]string, error)
	Apply(s radar.Settings) error
	ReadSnapshot() (radar.Snapshot, error)
}

// Server holds the dependencies of the HTTP handlers. Monitor and DB may
// be nil; their endpoints then report 503.
type Server struct {
	sensor  Sensor
	monitor *presence.Monitor
	db      *db.DB
	clock   timeutil.Clock
}

// NewServer creates a Server.
func NewServer(sensor Sensor, monitor *presence.Monitor, database *db.DB) *Server {
	return &Server{
		sensor:  sensor,
		monitor: monitor,
		db:      database,
		clock:   timeutil.RealClock{},
	}
}

// SetClock replaces the clock used for windows and log timestamps.
func (s *Server) SetClock(c timeutil.Clock) { s.clock = c }

// ServeMux returns a mux with every API and debug route registered.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/presence", s.showPresence)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/occupancy", s.showOccupancy)
	mux.HandleFunc("/api/command", s.sendCommand)
	mux.HandleFunc("/api/commands", s.listCommands)
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/api/version", s.showVersion)
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("presence-chart", "Presence occupancy timeline", s.presenceChart)
	if s.db != nil {
		s.db.AttachAdminRoutes(mux)
	}
	return mux
}

type presenceResponse struct {
	Sensor  radar.Status     `json:"sensor"`
	Monitor *presence.Status `json:"monitor,omitempty"`
}

func (s *Server) showPresence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	resp := presenceResponse{Sensor: s.sensor.Status()}
	if s.monitor != nil {
		st := s.monitor.Status()
		resp.Monitor = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// intParam parses an optional positive integer query parameter.
func intParam(r *http.Request, name string, def, max int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > max {
		return 0, fmt.Errorf("invalid '%s' parameter: must be 1-%d", name, max)
	}
	return n, nil
}

func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.db == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "database not configured")
		return false
	}
	return true
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if !s.requireDB(w) {
		return
	}
	limit, err := intParam(r, "limit", defaultEventLimit, maxEventLimit)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	events, err := s.db.PresenceEvents(limit)
	if err != nil {
		internalError(w, fmt.Sprintf("Failed to retrieve events: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) listCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if !s.requireDB(w) {
		return
	}
	limit, err := intParam(r, "limit", 50, maxEventLimit)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	records, err := s.db.RecentCommands(limit)
	if err != nil {
		internalError(w, fmt.Sprintf("Failed to retrieve command log: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) window(r *http.Request) (from, to time.Time, err error) {
	hours, err := intParam(r, "hours", defaultHours, maxHours)
	if err != nil {
		return from, to, err
	}
	to = s.clock.Now().UTC()
	return to.Add(-time.Duration(hours) * time.Hour), to, nil
}

func (s *Server) showOccupancy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if !s.requireDB(w) {
		return
	}
	from, to, err := s.window(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	summary, err := s.db.OccupancySummary(from, to)
	if err != nil {
		internalError(w, fmt.Sprintf("Failed to compute occupancy: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type commandRequest struct {
	Command string `json:"command"`
}

type commandResponse struct {
	Command string   `json:"command"`
	Status  string   `json:"status"`
	Values  []string `json:"values,omitempty"`
}

// sendCommand accepts {"command": "..."} or a form value named command.
func (s *Server) sendCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req commandRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			badRequest(w, fmt.Sprintf("invalid request body: %v", err))
			return
		}
	} else {
		req.Command = r.FormValue("command")
	}
	req.Command = strings.TrimSpace(req.Command)

	if !radar.IsAllowedCommand(req.Command) {
		writeJSONError(w, http.StatusForbidden, fmt.Sprintf("command %q is not allowed", req.Command))
		return
	}

	values, err := s.sensor.Execute(req.Command)
	if s.db != nil {
		// The sensor has already acted; a lost log entry must not hide that.
		if _, logErr := s.db.RecordCommand(req.Command, "api", err, s.clock.Now()); logErr != nil {
			monitoring.Logf("failed to log command %q: %v", req.Command, logErr)
		}
	}
	if err != nil {
		writeSensorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Command: req.Command, Status: "ok", Values: values})
}

// writeSensorError maps engine failures onto HTTP status codes.
func writeSensorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, leapmmw.ErrInvalidArgument):
		badRequest(w, err.Error())
	case errors.Is(err, leapmmw.ErrNotReady):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, leapmmw.ErrTimeout):
		writeJSONError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeJSONError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snap, err := s.sensor.ReadSnapshot()
		if err != nil {
			writeSensorError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)

	case http.MethodPost:
		var settings radar.Settings
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&settings); err != nil {
			badRequest(w, fmt.Sprintf("invalid settings: %v", err))
			return
		}
		if err := s.sensor.Apply(settings); err != nil {
			writeSensorError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})

	default:
		methodNotAllowed(w)
	}
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}
