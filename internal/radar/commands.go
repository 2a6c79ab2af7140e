package radar

import (
	"strconv"
	"strings"

	"github.com/banshee-data/presence.report/internal/leapmmw"
)

// staticCommands may be sent verbatim. resetCfg is not listed;
// factory reset has its own entry point.
var staticCommands = map[string]bool{
	leapmmw.CmdSensorStart: true,
	leapmmw.CmdSensorStop:  true,
	leapmmw.CmdSaveConfig:  true,
	leapmmw.CmdResetSystem: true,
	leapmmw.CmdGetOutput:   true,
	leapmmw.CmdGetRange:    true,
	leapmmw.CmdGetSens:     true,
	leapmmw.CmdGetLatency:  true,
	leapmmw.CmdGetInhibit:  true,
	leapmmw.CmdGetHWV:      true,
	leapmmw.CmdGetSWV:      true,
}

// configCommand reports whether cmd is a setter with valid arguments.
func configCommand(cmd string) bool {
	fields := strings.Fields(cmd)
	if len(fields) == 0 || strings.Join(fields, " ") != cmd {
		return false
	}
	args := fields[1:]

	floats := func(n int) ([]float64, bool) {
		if len(args) != n {
			return nil, false
		}
		out := make([]float64, n)
		for i, a := range args {
			v, err := strconv.ParseFloat(a, 64)
			if err != nil {
				return nil, false
			}
			out[i] = v
		}
		return out, true
	}
	flag := func(prefix ...string) bool {
		if len(args) != len(prefix)+1 {
			return false
		}
		for i, p := range prefix {
			if args[i] != p {
				return false
			}
		}
		last := args[len(args)-1]
		return last == "0" || last == "1"
	}

	switch fields[0] {
	case "setRange":
		v, ok := floats(2)
		if !ok {
			return false
		}
		_, err := RangeCommand(v[0], v[1])
		return err == nil
	case "setSensitivity":
		if len(args) != 1 {
			return false
		}
		level, err := strconv.Atoi(args[0])
		if err != nil {
			return false
		}
		_, err = SensitivityCommand(level)
		return err == nil
	case "setLatency":
		v, ok := floats(2)
		if !ok {
			return false
		}
		_, err := LatencyCommand(v[0], v[1])
		return err == nil
	case "setInhibit":
		v, ok := floats(1)
		if !ok {
			return false
		}
		_, err := LockoutCommand(v[0])
		return err == nil
	case "outputLatency":
		if len(args) != 3 || args[0] != "-1" {
			return false
		}
		for _, a := range args[1:] {
			n, err := strconv.Atoi(a)
			if err != nil || n < 0 || n > maxOutputLatencyUnits {
				return false
			}
		}
		return true
	case "setGpioMode", "setLedMode":
		return flag("1")
	case "setEcho":
		return flag()
	}
	return false
}

// IsAllowedCommand reports whether cmd may be sent to the sensor by an
// external caller.
func IsAllowedCommand(cmd string) bool {
	return staticCommands[cmd] || configCommand(cmd)
}

// Execute sends an allow-listed command and returns the values a query
// answers with: the getter's parameters, or "1"/"0" for getOutput. Setters
// are bracketed like any other configuration change and state-changing
// commands go through the engine so its view of the sensor stays accurate.
func (r *Radar) Execute(cmd string) ([]string, error) {
	if !IsAllowedCommand(cmd) {
		return nil, invalid("command %q is not allowed", cmd)
	}

	switch cmd {
	case leapmmw.CmdSensorStart:
		return nil, r.Start()
	case leapmmw.CmdSensorStop:
		return nil, r.Stop()
	case leapmmw.CmdSaveConfig:
		return nil, r.SaveConfig()
	case leapmmw.CmdResetSystem:
		return nil, r.Reboot()
	case leapmmw.CmdGetOutput:
		present, err := r.ReadPresence()
		if err != nil {
			return nil, err
		}
		return []string{boolArg(present)}, nil
	}

	if _, ok := queryShapes[cmd]; ok {
		return r.query(cmd)
	}
	return nil, r.setConfig(cmd, nil)
}
