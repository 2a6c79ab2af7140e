package radar

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/presence.report/internal/leapmmw"
)

// Limits accepted by the SEN0395 firmware.
const (
	MaxRange              = 9.45
	MaxSensitivity        = 9
	MaxConfirmationDelay  = 100.0
	MaxDisappearanceDelay = 1500.0
	MinLockout            = 0.1
	MaxLockout            = 255.0

	// Output latency is programmed in 25 ms units.
	outputLatencyUnitMs   = 25
	maxOutputLatencyUnits = 65535
)

// TriggerLevel is the GPIO level driven while presence is detected.
type TriggerLevel int

const (
	Low  TriggerLevel = 0
	High TriggerLevel = 1
)

func (l TriggerLevel) String() string {
	switch l {
	case Low:
		return "low"
	case High:
		return "high"
	}
	return fmt.Sprintf("TriggerLevel(%d)", int(l))
}

// MarshalText implements encoding.TextMarshaler.
func (l TriggerLevel) MarshalText() ([]byte, error) {
	if l != Low && l != High {
		return nil, invalid("trigger level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText accepts "high", "low", "1" or "0".
func (l *TriggerLevel) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "high", "1":
		*l = High
	case "low", "0":
		*l = Low
	default:
		return invalid("trigger level %q", b)
	}
	return nil
}

func invalid(format string, v ...interface{}) error {
	return fmt.Errorf("%w: %s", leapmmw.ErrInvalidArgument, fmt.Sprintf(format, v...))
}

func checkRange(name string, v, lo, hi float64) error {
	if math.IsNaN(v) || v < lo || v > hi {
		return invalid("%s %v outside [%v, %v]", name, v, lo, hi)
	}
	return nil
}

// RangeCommand builds setRange. Distances are meters from the sensor.
func RangeCommand(start, end float64) (string, error) {
	if err := checkRange("range start", start, 0, MaxRange); err != nil {
		return "", err
	}
	if err := checkRange("range end", end, 0, MaxRange); err != nil {
		return "", err
	}
	if end < start {
		return "", invalid("range end %v before start %v", end, start)
	}
	return leapmmw.Command("setRange", leapmmw.FormatFixed(start), leapmmw.FormatFixed(end)), nil
}

// SensitivityCommand builds setSensitivity for levels 0 to 9.
func SensitivityCommand(level int) (string, error) {
	if level < 0 || level > MaxSensitivity {
		return "", invalid("sensitivity %d outside [0, %d]", level, MaxSensitivity)
	}
	return leapmmw.Command("setSensitivity", strconv.Itoa(level)), nil
}

// LatencyCommand builds setLatency from the confirmation and disappearance
// delays in seconds.
func LatencyCommand(confirm, disappear float64) (string, error) {
	if err := checkRange("confirmation delay", confirm, 0, MaxConfirmationDelay); err != nil {
		return "", err
	}
	if err := checkRange("disappearance delay", disappear, 0, MaxDisappearanceDelay); err != nil {
		return "", err
	}
	return leapmmw.Command("setLatency", leapmmw.FormatFixed(confirm), leapmmw.FormatFixed(disappear)), nil
}

// OutputLatencyCommand builds outputLatency from the trigger and reset delays
// in seconds.
func OutputLatencyCommand(trigger, reset float64) (string, error) {
	t, err := outputLatencyUnits("trigger delay", trigger)
	if err != nil {
		return "", err
	}
	r, err := outputLatencyUnits("reset delay", reset)
	if err != nil {
		return "", err
	}
	return leapmmw.Command("outputLatency", "-1", strconv.Itoa(t), strconv.Itoa(r)), nil
}

func outputLatencyUnits(name string, seconds float64) (int, error) {
	if math.IsNaN(seconds) || seconds < 0 {
		return 0, invalid("%s %v is negative", name, seconds)
	}
	units := seconds * 1000 / outputLatencyUnitMs
	if units > maxOutputLatencyUnits {
		return 0, invalid("%s %v exceeds %d ms units", name, seconds, maxOutputLatencyUnits)
	}
	return int(units), nil
}

// LockoutCommand builds setInhibit for 0.1 to 255 seconds.
func LockoutCommand(seconds float64) (string, error) {
	if err := checkRange("lockout", seconds, MinLockout, MaxLockout); err != nil {
		return "", err
	}
	return leapmmw.Command("setInhibit", leapmmw.FormatFixed(seconds)), nil
}

// TriggerLevelCommand builds setGpioMode for the presence output pin.
func TriggerLevelCommand(level TriggerLevel) (string, error) {
	if level != High && level != Low {
		return "", invalid("trigger level %d", int(level))
	}
	return leapmmw.Command("setGpioMode", "1", strconv.Itoa(int(level))), nil
}

// LEDCommand builds setLedMode; disabled turns the status LED off.
func LEDCommand(disabled bool) string {
	return leapmmw.Command("setLedMode", "1", boolArg(disabled))
}

// EchoCommand builds setEcho.
func EchoCommand(enabled bool) string {
	return leapmmw.Command("setEcho", boolArg(enabled))
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Settings is a partial sensor configuration. Nil fields are left as they
// are. Paired values (range, latency, output latency) must be set together.
type Settings struct {
	RangeStart         *float64      `json:"range_start,omitempty" yaml:"range_start,omitempty"`
	RangeEnd           *float64      `json:"range_end,omitempty" yaml:"range_end,omitempty"`
	Sensitivity        *int          `json:"sensitivity,omitempty" yaml:"sensitivity,omitempty"`
	ConfirmationDelay  *float64      `json:"confirmation_delay,omitempty" yaml:"confirmation_delay,omitempty"`
	DisappearanceDelay *float64      `json:"disappearance_delay,omitempty" yaml:"disappearance_delay,omitempty"`
	TriggerDelay       *float64      `json:"trigger_delay,omitempty" yaml:"trigger_delay,omitempty"`
	ResetDelay         *float64      `json:"reset_delay,omitempty" yaml:"reset_delay,omitempty"`
	Lockout            *float64      `json:"lockout,omitempty" yaml:"lockout,omitempty"`
	TriggerLevel       *TriggerLevel `json:"trigger_level,omitempty" yaml:"trigger_level,omitempty"`
	LEDEnabled         *bool         `json:"led_enabled,omitempty" yaml:"led_enabled,omitempty"`
	Echo               *bool         `json:"echo,omitempty" yaml:"echo,omitempty"`
}

// IsEmpty reports whether no setting is present.
func (s Settings) IsEmpty() bool {
	return s == Settings{}
}

// Validate checks every present setting without building commands.
func (s Settings) Validate() error {
	_, err := s.Commands()
	return err
}

// Commands returns the configuration commands for the present settings in a
// fixed order. All problems are reported together.
func (s Settings) Commands() ([]string, error) {
	var cmds []string
	var errs []error

	add := func(cmd string, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		cmds = append(cmds, cmd)
	}

	switch {
	case s.RangeStart != nil && s.RangeEnd != nil:
		add(RangeCommand(*s.RangeStart, *s.RangeEnd))
	case s.RangeStart != nil || s.RangeEnd != nil:
		errs = append(errs, invalid("range_start and range_end must be set together"))
	}

	if s.Sensitivity != nil {
		add(SensitivityCommand(*s.Sensitivity))
	}

	switch {
	case s.ConfirmationDelay != nil && s.DisappearanceDelay != nil:
		add(LatencyCommand(*s.ConfirmationDelay, *s.DisappearanceDelay))
	case s.ConfirmationDelay != nil || s.DisappearanceDelay != nil:
		errs = append(errs, invalid("confirmation_delay and disappearance_delay must be set together"))
	}

	switch {
	case s.TriggerDelay != nil && s.ResetDelay != nil:
		add(OutputLatencyCommand(*s.TriggerDelay, *s.ResetDelay))
	case s.TriggerDelay != nil || s.ResetDelay != nil:
		errs = append(errs, invalid("trigger_delay and reset_delay must be set together"))
	}

	if s.Lockout != nil {
		add(LockoutCommand(*s.Lockout))
	}
	if s.TriggerLevel != nil {
		add(TriggerLevelCommand(*s.TriggerLevel))
	}
	if s.LEDEnabled != nil {
		cmds = append(cmds, LEDCommand(!*s.LEDEnabled))
	}
	if s.Echo != nil {
		cmds = append(cmds, EchoCommand(*s.Echo))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cmds, nil
}
