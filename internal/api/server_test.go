package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/presence.report/internal/db"
	"github.com/banshee-data/presence.report/internal/leapmmw"
	"github.com/banshee-data/presence.report/internal/presence"
	"github.com/banshee-data/presence.report/internal/radar"
	"github.com/banshee-data/presence.report/internal/timeutil"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type fakeSensor struct {
	mu       sync.Mutex
	executed []string
	values   []string
	applied  []radar.Settings
	execErr  error
	applyErr error
	snap     radar.Snapshot
	snapErr  error
}

func (f *fakeSensor) Status() radar.Status {
	return radar.Status{Ready: true, State: "running", Mode: "immediate"}
}

func (f *fakeSensor) Execute(cmd string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, cmd)
	if f.execErr != nil {
		return nil, f.execErr
	}
	return f.values, nil
}

func (f *fakeSensor) Apply(s radar.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, s)
	return f.applyErr
}

func (f *fakeSensor) ReadSnapshot() (radar.Snapshot, error) {
	return f.snap, f.snapErr
}

func setupServer(t *testing.T, sensor *fakeSensor, withDB bool) (*Server, *db.DB) {
	t.Helper()
	var database *db.DB
	if withDB {
		var err error
		database, err = db.NewDB(filepath.Join(t.TempDir(), "api.db"))
		require.NoError(t, err)
		t.Cleanup(func() { database.Close() })
	}
	s := NewServer(sensor, nil, database)
	s.SetClock(timeutil.NewMockClock(testNow))
	return s, database
}

func do(t *testing.T, s *Server, method, target string, body string, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	// Debug pages are only served to loopback peers.
	req.RemoteAddr = "127.0.0.1:40000"
	rec := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(rec, req)
	return rec
}

func TestShowPresence(t *testing.T) {
	sensor := &fakeSensor{}
	s, _ := setupServer(t, sensor, false)

	rec := do(t, s, http.MethodGet, "/api/presence", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp presenceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Sensor.Ready)
	assert.Equal(t, "running", resp.Sensor.State)
	assert.Nil(t, resp.Monitor)

	rec = do(t, s, http.MethodPost, "/api/presence", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type constReader bool

func (c constReader) ReadPresence() (bool, error) { return bool(c), nil }

func TestShowPresence_WithMonitor(t *testing.T) {
	m := presence.NewMonitor(constReader(true), nil, presence.WithSessionID("sess"),
		presence.WithClock(timeutil.NewMockClock(testNow)))
	require.NoError(t, m.Poll())

	s := NewServer(&fakeSensor{}, m, nil)
	rec := do(t, s, http.MethodGet, "/api/presence", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp presenceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Monitor)
	assert.Equal(t, "sess", resp.Monitor.SessionID)
	assert.True(t, resp.Monitor.Present)
	assert.Equal(t, 1, resp.Monitor.Polls)
}

func TestListEvents(t *testing.T) {
	s, database := setupServer(t, &fakeSensor{}, true)
	for i := 0; i < 3; i++ {
		_, err := database.RecordPresence(db.PresenceEvent{
			SessionID: "s", Present: i%2 == 0, Timestamp: testNow.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	tests := []struct {
		query    string
		wantCode int
		wantLen  int
	}{
		{"", http.StatusOK, 3},
		{"?limit=2", http.StatusOK, 2},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
		{"?limit=5000", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, "/api/events"+tt.query, "", "")
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}
			var events []db.PresenceEvent
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
			assert.Len(t, events, tt.wantLen)
		})
	}
}

func TestEndpointsWithoutDB(t *testing.T) {
	s, _ := setupServer(t, &fakeSensor{}, false)
	for _, path := range []string{"/api/events", "/api/occupancy", "/api/commands", "/debug/presence-chart"} {
		rec := do(t, s, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestShowOccupancy(t *testing.T) {
	s, database := setupServer(t, &fakeSensor{}, true)
	_, err := database.RecordPresence(db.PresenceEvent{SessionID: "s", Present: true, Timestamp: testNow.Add(-30 * time.Minute)})
	require.NoError(t, err)

	rec := do(t, s, http.MethodGet, "/api/occupancy?hours=1", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary db.OccupancySummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.InDelta(t, 0.5, summary.Occupancy, 1e-9)
	assert.Equal(t, 1, summary.Arrivals)

	rec = do(t, s, http.MethodGet, "/api/occupancy?hours=-1", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendCommand(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		execErr     error
		wantCode    int
		wantExec    bool
		wantLogged  bool
	}{
		{"json start", `{"command":"sensorStart"}`, "application/json", nil, http.StatusOK, true, true},
		{"form setter", url.Values{"command": {"setSensitivity 5"}}.Encode(), "application/x-www-form-urlencoded", nil, http.StatusOK, true, true},
		{"not allowed", `{"command":"resetCfg"}`, "application/json", nil, http.StatusForbidden, false, false},
		{"out of range", `{"command":"setSensitivity 12"}`, "application/json", nil, http.StatusForbidden, false, false},
		{"bad json", `{"command":`, "application/json", nil, http.StatusBadRequest, false, false},
		{"sensor error", `{"command":"saveConfig"}`, "application/json", leapmmw.ErrCommandFailed, http.StatusBadGateway, true, true},
		{"sensor timeout", `{"command":"sensorStop"}`, "application/json", leapmmw.ErrTimeout, http.StatusGatewayTimeout, true, true},
		{"not ready", `{"command":"getRange"}`, "application/json", leapmmw.ErrNotReady, http.StatusServiceUnavailable, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sensor := &fakeSensor{execErr: tt.execErr}
			s, database := setupServer(t, sensor, true)

			rec := do(t, s, http.MethodPost, "/api/command", tt.body, tt.contentType)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantExec, len(sensor.executed) == 1)

			records, err := database.RecentCommands(10)
			require.NoError(t, err)
			if !tt.wantLogged {
				assert.Empty(t, records)
				return
			}
			require.Len(t, records, 1)
			assert.Equal(t, sensor.executed[0], records[0].Command)
			assert.Equal(t, "api", records[0].Source)
			assert.Equal(t, tt.execErr == nil, records[0].Success)
			assert.True(t, records[0].Timestamp.Equal(testNow))
		})
	}
}

func TestSendCommand_ReturnsQueryValues(t *testing.T) {
	sensor := &fakeSensor{values: []string{"0.000", "6.000"}}
	s, _ := setupServer(t, sensor, false)

	rec := do(t, s, http.MethodPost, "/api/command", `{"command":"getRange"}`, "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp commandResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, commandResponse{Command: "getRange", Status: "ok", Values: []string{"0.000", "6.000"}}, resp)
}

func TestSendCommand_LogFailureKeepsSensorOutcome(t *testing.T) {
	tests := []struct {
		name     string
		execErr  error
		wantCode int
	}{
		{"accepted", nil, http.StatusOK},
		{"rejected", leapmmw.ErrCommandFailed, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logged bytes.Buffer
			restore := captureLogs(&logged)
			defer restore()

			sensor := &fakeSensor{execErr: tt.execErr}
			s, database := setupServer(t, sensor, true)
			require.NoError(t, database.Close())

			rec := do(t, s, http.MethodPost, "/api/command", `{"command":"sensorStart"}`, "application/json")
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, []string{"sensorStart"}, sensor.executed)
			assert.Contains(t, logged.String(), `failed to log command "sensorStart"`)
		})
	}
}

func TestSendCommand_MethodNotAllowed(t *testing.T) {
	s, _ := setupServer(t, &fakeSensor{}, false)
	rec := do(t, s, http.MethodGet, "/api/command", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListCommands(t *testing.T) {
	s, database := setupServer(t, &fakeSensor{}, true)
	_, err := database.RecordCommand("sensorStart", "api", nil, testNow)
	require.NoError(t, err)

	rec := do(t, s, http.MethodGet, "/api/commands", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []db.CommandRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "sensorStart", records[0].Command)
}

func TestSettings(t *testing.T) {
	t.Run("get", func(t *testing.T) {
		sensor := &fakeSensor{snap: radar.Snapshot{RangeStart: 0, RangeEnd: 6, Sensitivity: 7, HardwareVersion: "HW"}}
		s, _ := setupServer(t, sensor, false)
		rec := do(t, s, http.MethodGet, "/api/settings", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var snap radar.Snapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
		assert.Equal(t, sensor.snap, snap)
	})

	t.Run("get timeout", func(t *testing.T) {
		s, _ := setupServer(t, &fakeSensor{snapErr: fmt.Errorf("getRange: %w", leapmmw.ErrTimeout)}, false)
		rec := do(t, s, http.MethodGet, "/api/settings", "", "")
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	})

	t.Run("post", func(t *testing.T) {
		sensor := &fakeSensor{}
		s, _ := setupServer(t, sensor, false)
		rec := do(t, s, http.MethodPost, "/api/settings", `{"sensitivity":5,"trigger_level":"low"}`, "application/json")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Len(t, sensor.applied, 1)
		require.NotNil(t, sensor.applied[0].Sensitivity)
		assert.Equal(t, 5, *sensor.applied[0].Sensitivity)
		require.NotNil(t, sensor.applied[0].TriggerLevel)
		assert.Equal(t, radar.Low, *sensor.applied[0].TriggerLevel)
	})

	t.Run("post unknown field", func(t *testing.T) {
		sensor := &fakeSensor{}
		s, _ := setupServer(t, sensor, false)
		rec := do(t, s, http.MethodPost, "/api/settings", `{"volume":11}`, "application/json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, sensor.applied)
	})

	t.Run("post invalid", func(t *testing.T) {
		sensor := &fakeSensor{applyErr: fmt.Errorf("sensitivity: %w", leapmmw.ErrInvalidArgument)}
		s, _ := setupServer(t, sensor, false)
		rec := do(t, s, http.MethodPost, "/api/settings", `{"sensitivity":12}`, "application/json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		s, _ := setupServer(t, &fakeSensor{}, false)
		rec := do(t, s, http.MethodDelete, "/api/settings", "", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestShowVersion(t *testing.T) {
	s, _ := setupServer(t, &fakeSensor{}, false)
	rec := do(t, s, http.MethodGet, "/api/version", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var v map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Contains(t, v, "version")
	assert.Contains(t, v, "git_sha")
}

func TestPresenceChart(t *testing.T) {
	s, database := setupServer(t, &fakeSensor{}, true)
	_, err := database.RecordPresence(db.PresenceEvent{SessionID: "s", Present: true, Timestamp: testNow.Add(-2 * time.Hour)})
	require.NoError(t, err)

	rec := do(t, s, http.MethodGet, "/debug/presence-chart?hours=6", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "echarts")
	assert.Contains(t, rec.Body.String(), "Occupancy")
}

func TestDebugRoutesMounted(t *testing.T) {
	s, _ := setupServer(t, &fakeSensor{}, true)
	rec := do(t, s, http.MethodGet, "/debug/migrations", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/debug/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/debug/presence-chart")
	assert.Contains(t, rec.Body.String(), "/debug/backup")
}

func TestPresenceChart_RemotePeerDenied(t *testing.T) {
	s, _ := setupServer(t, &fakeSensor{}, true)
	rec := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/presence-chart", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWriteSensorError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{leapmmw.ErrInvalidArgument, http.StatusBadRequest},
		{leapmmw.ErrNotReady, http.StatusServiceUnavailable},
		{fmt.Errorf("x: %w", leapmmw.ErrTimeout), http.StatusGatewayTimeout},
		{leapmmw.ErrCommandFailed, http.StatusBadGateway},
		{errors.New("other"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeSensorError(rec, tt.err)
		if rec.Code != tt.want {
			t.Errorf("writeSensorError(%v) code = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var logged bytes.Buffer
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	restore := captureLogs(&logged)
	defer restore()

	rec := httptest.NewRecorder()
	LoggingMiddleware(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/presence?x=1", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, logged.String(), "418")
	assert.Contains(t, logged.String(), "/api/presence?x=1")
}

func TestStatusCodeColor(t *testing.T) {
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
	assert.Equal(t, colorYellow+"304"+colorReset, statusCodeColor(304))
	assert.Equal(t, colorBoldRed+"404"+colorReset, statusCodeColor(404))
	assert.Equal(t, colorBoldRed+"503"+colorReset, statusCodeColor(503))
	assert.Equal(t, "100", statusCodeColor(100))
}
