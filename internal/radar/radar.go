// Package radar is the typed interface to a SEN0395 presence sensor. It
// validates settings, formats them into leapMMW commands and runs them
// through a leapmmw.Engine, serializing callers with a mutex.
package radar

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/banshee-data/presence.report/internal/leapmmw"
)

// Radar drives one sensor. It is safe for concurrent use.
type Radar struct {
	mu     sync.Mutex
	engine *leapmmw.Engine
}

// New returns a Radar talking over t, which may be nil until SetTransport.
func New(t leapmmw.Transport, opts ...leapmmw.Option) *Radar {
	return &Radar{engine: leapmmw.New(t, opts...)}
}

// SetTransport attaches or replaces the transport.
func (r *Radar) SetTransport(t leapmmw.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engine.SetTransport(t)
}

// Ready reports whether a transport is attached.
func (r *Radar) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.Ready()
}

// Status describes the engine's view of the sensor.
type Status struct {
	Ready bool   `json:"ready"`
	State string `json:"state"`
	Mode  string `json:"mode"`
}

// Status returns the current operational state and session mode.
func (r *Radar) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		Ready: r.engine.Ready(),
		State: r.engine.State().String(),
		Mode:  r.engine.Mode().String(),
	}
}

func (r *Radar) locked(f func(e *leapmmw.Engine) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return f(r.engine)
}

// Start starts scanning.
func (r *Radar) Start() error { return r.locked((*leapmmw.Engine).Start) }

// Stop stops scanning.
func (r *Radar) Stop() error { return r.locked((*leapmmw.Engine).Stop) }

// SaveConfig persists the configuration.
func (r *Radar) SaveConfig() error { return r.locked((*leapmmw.Engine).SaveConfig) }

// ConfigBegin opens a configuration batch.
func (r *Radar) ConfigBegin() error { return r.locked((*leapmmw.Engine).ConfigBegin) }

// ConfigEnd closes a configuration batch, saving and restarting the sensor.
func (r *Radar) ConfigEnd() error { return r.locked((*leapmmw.Engine).ConfigEnd) }

// FactoryReset restores factory settings.
func (r *Radar) FactoryReset() error { return r.locked((*leapmmw.Engine).FactoryReset) }

// Reboot restarts the sensor firmware.
func (r *Radar) Reboot() error { return r.locked((*leapmmw.Engine).Reboot) }

// ReadPresence queries the sensor for its presence flag.
func (r *Radar) ReadPresence() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.ReadPresence()
}

// CheckPresence is ReadPresence that reports false on any error.
func (r *Radar) CheckPresence() bool {
	present, err := r.ReadPresence()
	return err == nil && present
}

func (r *Radar) setConfig(cmd string, err error) error {
	if err != nil {
		return err
	}
	return r.locked(func(e *leapmmw.Engine) error { return e.SetConfig(cmd) })
}

// SetDetectionRange limits detection to start..end meters.
func (r *Radar) SetDetectionRange(start, end float64) error {
	return r.setConfig(RangeCommand(start, end))
}

// SetSensitivity sets the detection sensitivity, 0 to 9.
func (r *Radar) SetSensitivity(level int) error {
	return r.setConfig(SensitivityCommand(level))
}

// SetTriggerLatency sets how long presence must persist before it is
// reported and how long absence must persist before it is cleared.
func (r *Radar) SetTriggerLatency(confirm, disappear float64) error {
	return r.setConfig(LatencyCommand(confirm, disappear))
}

// SetOutputLatency sets the GPIO trigger and reset delays in seconds.
func (r *Radar) SetOutputLatency(trigger, reset float64) error {
	return r.setConfig(OutputLatencyCommand(trigger, reset))
}

// SetLockout sets how long the output is held off after it resets.
func (r *Radar) SetLockout(seconds float64) error {
	return r.setConfig(LockoutCommand(seconds))
}

// SetTriggerLevel sets the GPIO level that signals presence.
func (r *Radar) SetTriggerLevel(level TriggerLevel) error {
	return r.setConfig(TriggerLevelCommand(level))
}

// ConfigureLED turns the status LED off when disabled is true.
func (r *Radar) ConfigureLED(disabled bool) error {
	return r.setConfig(LEDCommand(disabled), nil)
}

// EnableLED turns the status LED on.
func (r *Radar) EnableLED() error { return r.ConfigureLED(false) }

// DisableLED turns the status LED off.
func (r *Radar) DisableLED() error { return r.ConfigureLED(true) }

// SetEcho turns command echo on or off.
func (r *Radar) SetEcho(enabled bool) error {
	return r.setConfig(EchoCommand(enabled), nil)
}

// Apply sends every present setting inside one configuration batch. Nothing
// is transmitted if any setting is invalid. The batch is always closed, and
// all command failures are reported together.
func (r *Radar) Apply(s Settings) error {
	cmds, err := s.Commands()
	if err != nil {
		return err
	}
	if len(cmds) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.engine.ConfigBegin(); err != nil {
		return err
	}

	var errs []error
	for _, cmd := range cmds {
		if err := r.engine.SetConfig(cmd); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.engine.ConfigEnd(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Snapshot is the sensor configuration as read back from the device.
type Snapshot struct {
	RangeStart         float64 `json:"range_start"`
	RangeEnd           float64 `json:"range_end"`
	Sensitivity        int     `json:"sensitivity"`
	ConfirmationDelay  float64 `json:"confirmation_delay"`
	DisappearanceDelay float64 `json:"disappearance_delay"`
	Lockout            float64 `json:"lockout"`
	HardwareVersion    string  `json:"hardware_version"`
	SoftwareVersion    string  `json:"software_version"`
}

// queryShapes describes the data line each getter answers with.
var queryShapes = map[string]leapmmw.Shape{
	leapmmw.CmdGetRange:   leapmmw.Params(2, 8),
	leapmmw.CmdGetSens:    leapmmw.Params(1, 2),
	leapmmw.CmdGetLatency: leapmmw.Params(2, 9),
	leapmmw.CmdGetInhibit: leapmmw.Params(1, 8),
	leapmmw.CmdGetHWV:     leapmmw.FreeText(1, 32),
	leapmmw.CmdGetSWV:     leapmmw.FreeText(1, 32),
}

func (r *Radar) query(cmd string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.GetConfig(cmd, queryShapes[cmd])
}

func parseFloats(cmd string, params []string) ([]float64, error) {
	out := make([]float64, len(params))
	for i, p := range params {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: parameter %q", cmd, leapmmw.ErrMalformedResponse, p)
		}
		out[i] = v
	}
	return out, nil
}

func (r *Radar) queryFloats(cmd string) ([]float64, error) {
	params, err := r.query(cmd)
	if err != nil {
		return nil, err
	}
	return parseFloats(cmd, params)
}

// DetectionRange reads the configured range in meters.
func (r *Radar) DetectionRange() (start, end float64, err error) {
	v, err := r.queryFloats(leapmmw.CmdGetRange)
	if err != nil {
		return 0, 0, err
	}
	return v[0], v[1], nil
}

// Sensitivity reads the configured sensitivity.
func (r *Radar) Sensitivity() (int, error) {
	params, err := r.query(leapmmw.CmdGetSens)
	if err != nil {
		return 0, err
	}
	level, err := strconv.Atoi(params[0])
	if err != nil {
		return 0, fmt.Errorf("%s: %w: parameter %q", leapmmw.CmdGetSens, leapmmw.ErrMalformedResponse, params[0])
	}
	return level, nil
}

// TriggerLatency reads the confirmation and disappearance delays.
func (r *Radar) TriggerLatency() (confirm, disappear float64, err error) {
	v, err := r.queryFloats(leapmmw.CmdGetLatency)
	if err != nil {
		return 0, 0, err
	}
	return v[0], v[1], nil
}

// Lockout reads the output lockout time.
func (r *Radar) Lockout() (float64, error) {
	v, err := r.queryFloats(leapmmw.CmdGetInhibit)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// HardwareVersion reads the hardware version string.
func (r *Radar) HardwareVersion() (string, error) {
	params, err := r.query(leapmmw.CmdGetHWV)
	if err != nil {
		return "", err
	}
	return params[0], nil
}

// SoftwareVersion reads the firmware version string.
func (r *Radar) SoftwareVersion() (string, error) {
	params, err := r.query(leapmmw.CmdGetSWV)
	if err != nil {
		return "", err
	}
	return params[0], nil
}

// ReadSnapshot reads every queryable setting. It stops at the first failure.
func (r *Radar) ReadSnapshot() (Snapshot, error) {
	var s Snapshot
	var err error

	if s.RangeStart, s.RangeEnd, err = r.DetectionRange(); err != nil {
		return s, err
	}
	if s.Sensitivity, err = r.Sensitivity(); err != nil {
		return s, err
	}
	if s.ConfirmationDelay, s.DisappearanceDelay, err = r.TriggerLatency(); err != nil {
		return s, err
	}
	if s.Lockout, err = r.Lockout(); err != nil {
		return s, err
	}
	if s.HardwareVersion, err = r.HardwareVersion(); err != nil {
		return s, err
	}
	if s.SoftwareVersion, err = r.SoftwareVersion(); err != nil {
		return s, err
	}
	return s, nil
}
