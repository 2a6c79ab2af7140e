package radar

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/banshee-data/presence.report/internal/leapmmw"
	"github.com/banshee-data/presence.report/internal/serialport"
)

// Simulator emulates the leapMMW shell of a SEN0395 closely enough to run
// the service and its tests without hardware. Configuration commands are
// rejected while the sensor is running, as the firmware does.
type Simulator struct {
	mu sync.Mutex

	running bool
	echo    bool
	present bool

	rangeStart, rangeEnd float64
	sensitivity          int
	confirm, disappear   float64
	lockout              float64
	triggerUnits         int
	resetUnits           int
	ledDisabled          bool
	gpioLevel            int

	saves    int
	commands []string

	HardwareVersion string
	SoftwareVersion string
}

// NewSimulator returns a running simulator with factory settings.
func NewSimulator() *Simulator {
	s := &Simulator{
		HardwareVersion: "SEN0395_HW_V1.0",
		SoftwareVersion: "v2.0_23040516",
	}
	s.factoryDefaults()
	s.running = true
	return s
}

func (s *Simulator) factoryDefaults() {
	s.echo = true
	s.rangeStart, s.rangeEnd = 0, 6
	s.sensitivity = 7
	s.confirm, s.disappear = 0.025, 5
	s.lockout = 1
	s.triggerUnits, s.resetUnits = 0, 0
	s.ledDisabled = false
	s.gpioLevel = int(High)
}

// Port returns a TestableSerialPort whose writes are answered by s.
func (s *Simulator) Port() *serialport.TestableSerialPort {
	p := serialport.NewTestableSerialPort()
	p.OnWrite = s.Respond
	return p
}

// SetPresent sets the presence flag reported by getOutput.
func (s *Simulator) SetPresent(present bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.present = present
}

// Running reports whether the simulated sensor is scanning.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Saves returns how many times the configuration was saved.
func (s *Simulator) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Commands returns every command received, in order.
func (s *Simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Settings returns the simulated configuration in Settings form.
func (s *Simulator) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	rangeStart, rangeEnd := s.rangeStart, s.rangeEnd
	sensitivity := s.sensitivity
	confirm, disappear := s.confirm, s.disappear
	lockout := s.lockout
	level := TriggerLevel(s.gpioLevel)
	led := !s.ledDisabled
	echo := s.echo
	trigger := float64(s.triggerUnits*outputLatencyUnitMs) / 1000
	reset := float64(s.resetUnits*outputLatencyUnitMs) / 1000

	return Settings{
		RangeStart:         &rangeStart,
		RangeEnd:           &rangeEnd,
		Sensitivity:        &sensitivity,
		ConfirmationDelay:  &confirm,
		DisappearanceDelay: &disappear,
		TriggerDelay:       &trigger,
		ResetDelay:         &reset,
		Lockout:            &lockout,
		TriggerLevel:       &level,
		LEDEnabled:         &led,
		Echo:               &echo,
	}
}

// Respond answers one framed command with the bytes the sensor would send.
func (s *Simulator) Respond(frame []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out strings.Builder
	for _, raw := range strings.Split(string(frame), "\n") {
		cmd := strings.TrimSpace(raw)
		if cmd == "" {
			continue
		}
		s.commands = append(s.commands, cmd)

		echo := s.echo
		data, ok, trailer := s.handle(cmd)

		if echo {
			out.WriteString(leapmmw.Prompt + cmd + "\r\n")
		}
		for _, line := range data {
			out.WriteString(line + "\r\n")
		}
		if ok {
			out.WriteString(leapmmw.TokenDone + "\r\n")
		} else {
			out.WriteString(leapmmw.TokenError + "\r\n")
		}
		if trailer != "" {
			out.WriteString(trailer + "\r\n")
		}
	}
	return []byte(out.String())
}

// handle applies cmd and returns the lines sent before the terminal token,
// whether the command succeeded and an optional line sent after it.
func (s *Simulator) handle(cmd string) (data []string, ok bool, trailer string) {
	fields := strings.Fields(cmd)
	name, args := fields[0], fields[1:]

	switch name {
	case leapmmw.CmdSensorStart:
		if s.running {
			return []string{leapmmw.StartedAlready}, false, ""
		}
		s.running = true
		return nil, true, ""
	case leapmmw.CmdSensorStop:
		if !s.running {
			return []string{leapmmw.StoppedAlready}, false, ""
		}
		s.running = false
		return nil, true, ""
	case "resetSystem":
		s.running = true
		return nil, true, ""
	case "getOutput":
		flag := 0
		if s.present && s.running {
			flag = 1
		}
		return nil, true, fmt.Sprintf("$JYBSS,%d, , , *", flag)
	case leapmmw.CmdGetRange:
		return []string{"Response " + leapmmw.FormatFixed(s.rangeStart) + " " + leapmmw.FormatFixed(s.rangeEnd)}, true, ""
	case leapmmw.CmdGetSens:
		return []string{"Response " + strconv.Itoa(s.sensitivity)}, true, ""
	case leapmmw.CmdGetLatency:
		return []string{"Response " + leapmmw.FormatFixed(s.confirm) + " " + leapmmw.FormatFixed(s.disappear)}, true, ""
	case leapmmw.CmdGetInhibit:
		return []string{"Response " + leapmmw.FormatFixed(s.lockout)}, true, ""
	case leapmmw.CmdGetHWV:
		return []string{s.HardwareVersion}, true, ""
	case leapmmw.CmdGetSWV:
		return []string{s.SoftwareVersion}, true, ""
	case "setEcho":
		if len(args) != 1 {
			return nil, false, ""
		}
		s.echo = args[0] == "1"
		return nil, true, ""
	}

	if s.running {
		return []string{"sensor is not stopped"}, false, ""
	}

	switch name {
	case leapmmw.CmdSaveConfig:
		s.saves++
		return nil, true, ""
	case leapmmw.CmdFactoryReset:
		s.factoryDefaults()
		return nil, true, ""
	}

	if !configCommand(cmd) {
		return nil, false, ""
	}

	num := func(i int) float64 {
		v, _ := strconv.ParseFloat(args[i], 64)
		return v
	}
	switch name {
	case "setRange":
		s.rangeStart, s.rangeEnd = num(0), num(1)
	case "setSensitivity":
		s.sensitivity = int(num(0))
	case "setLatency":
		s.confirm, s.disappear = num(0), num(1)
	case "setInhibit":
		s.lockout = num(0)
	case "outputLatency":
		s.triggerUnits, s.resetUnits = int(num(1)), int(num(2))
	case "setGpioMode":
		s.gpioLevel = int(num(1))
	case "setLedMode":
		s.ledDisabled = args[1] == "1"
	}
	return nil, true, ""
}
