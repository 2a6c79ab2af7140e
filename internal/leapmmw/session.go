package leapmmw

import (
	"errors"
	"fmt"
)

// State is the sensor's operational state as last confirmed by a command.
type State int

const (
	Running State = iota
	Stopped
)

func (s State) String() string {
	if s == Stopped {
		return "stopped"
	}
	return "running"
}

// Mode selects whether configuration commands bracket themselves.
type Mode int

const (
	// Immediate wraps each SetConfig in stop, save and start.
	Immediate Mode = iota
	// Batched sends configuration commands bare until ConfigEnd.
	Batched
)

func (m Mode) String() string {
	if m == Batched {
		return "batched"
	}
	return "immediate"
}

// State returns the operational state.
func (e *Engine) State() State { return e.state }

// Mode returns the session mode.
func (e *Engine) Mode() Mode { return e.mode }

// Start starts scanning. It sends nothing when the sensor is already running.
func (e *Engine) Start() error {
	if e.state == Running {
		return nil
	}
	if err := e.SendCommandAccepting(CmdSensorStart, StartedAlready); err != nil {
		return err
	}
	e.state = Running
	return nil
}

// Stop stops scanning. It sends nothing when the sensor is already stopped.
func (e *Engine) Stop() error {
	if e.state == Stopped {
		return nil
	}
	if err := e.SendCommandAccepting(CmdSensorStop, StoppedAlready); err != nil {
		return err
	}
	e.state = Stopped
	return nil
}

// SaveConfig persists the current configuration to sensor flash.
func (e *Engine) SaveConfig() error {
	return e.SendCommand(CmdSaveConfig)
}

// ConfigBegin stops the sensor and enters batched mode. Calling it while
// already batching is a no-op.
func (e *Engine) ConfigBegin() error {
	if e.mode == Batched {
		return nil
	}
	if err := e.Stop(); err != nil {
		return fmt.Errorf("begin configuration: %w", err)
	}
	e.mode = Batched
	return nil
}

// ConfigEnd leaves batched mode, saves and restarts the sensor. The mode is
// left even when saving or starting fails; start is attempted regardless of
// the save outcome and both failures are reported.
func (e *Engine) ConfigEnd() error {
	if e.mode != Batched {
		return ErrNotBatching
	}
	e.mode = Immediate

	saveErr := e.SaveConfig()
	if saveErr != nil {
		e.logf("leapmmw: save at end of batch failed: %v", saveErr)
	}
	return errors.Join(saveErr, e.Start())
}

// SetConfig sends a configuration command. In batched mode the command goes
// out bare. Otherwise the sensor is stopped, the command sent, the
// configuration saved and the sensor started again; success requires the
// command, the save and the restart to succeed.
func (e *Engine) SetConfig(command string) error {
	if e.mode == Batched {
		return e.SendCommand(command)
	}

	if err := e.Stop(); err != nil {
		e.logf("leapmmw: stop before %q failed: %v", command, err)
	}

	if err := e.SendCommand(command); err != nil {
		if startErr := e.Start(); startErr != nil {
			e.logf("leapmmw: restart after %q failed: %v", command, startErr)
		}
		return err
	}

	saveErr := e.SaveConfig()
	if err := e.Start(); err != nil {
		return errors.Join(saveErr, err)
	}
	return saveErr
}

// FactoryReset restores factory configuration and waits for the sensor to
// settle. The preceding stop is best effort.
func (e *Engine) FactoryReset() error {
	if err := e.Stop(); err != nil {
		e.logf("leapmmw: stop before factory reset failed: %v", err)
	}
	err := e.SendCommand(CmdFactoryReset)
	e.clock.Sleep(SettleDelay)
	return err
}

// Reboot restarts the sensor firmware. The sensor comes back running.
func (e *Engine) Reboot() error {
	if err := e.SendCommand(CmdResetSystem); err != nil {
		return err
	}
	e.state = Running
	e.mode = Immediate
	return nil
}
