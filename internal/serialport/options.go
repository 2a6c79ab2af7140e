package serialport

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// DefaultBaudRate is the factory UART speed of the SEN0395 sensor.
const DefaultBaudRate = 115200

// PortOptions are the UART line settings. Zero values mean "default":
// 115200 baud, 8 data bits, no parity, 1 stop bit.
type PortOptions struct {
	BaudRate int    `json:"baud_rate" yaml:"baud_rate"`
	DataBits int    `json:"data_bits" yaml:"data_bits"`
	StopBits int    `json:"stop_bits" yaml:"stop_bits"`
	Parity   string `json:"parity" yaml:"parity"`
}

var parityNames = map[string]string{
	"": "N", "N": "N", "NONE": "N",
	"E": "E", "EVEN": "E",
	"O": "O", "ODD": "O",
}

var serialParity = map[string]serial.Parity{
	"N": serial.NoParity,
	"E": serial.EvenParity,
	"O": serial.OddParity,
}

var serialStopBits = map[int]serial.StopBits{
	1: serial.OneStopBit,
	2: serial.TwoStopBits,
}

// Normalize fills defaults and canonicalizes parity to N, E or O.
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}

	if o.DataBits < 5 || o.DataBits > 8 {
		return o, fmt.Errorf("invalid data bits %d: must be between 5 and 8", o.DataBits)
	}
	if _, ok := serialStopBits[o.StopBits]; !ok {
		return o, fmt.Errorf("invalid stop bits %d: must be 1 or 2", o.StopBits)
	}
	parity, ok := parityNames[strings.ToUpper(strings.TrimSpace(o.Parity))]
	if !ok {
		return o, fmt.Errorf("unsupported parity %q: expected N, E or O", o.Parity)
	}
	o.Parity = parity
	return o, nil
}

// Equal compares normalized options. Invalid options equal nothing.
func (o PortOptions) Equal(other PortOptions) bool {
	a, errA := o.Normalize()
	b, errB := other.Normalize()
	return errA == nil && errB == nil && a == b
}

// String renders the options as e.g. 115200/8N1.
func (o PortOptions) String() string {
	n, err := o.Normalize()
	if err != nil {
		return fmt.Sprintf("invalid(%v)", err)
	}
	return fmt.Sprintf("%d/%d%s%d", n.BaudRate, n.DataBits, n.Parity, n.StopBits)
}

// SerialMode converts the options for go.bug.st/serial.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	n, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	return &serial.Mode{
		BaudRate: n.BaudRate,
		DataBits: n.DataBits,
		Parity:   serialParity[n.Parity],
		StopBits: serialStopBits[n.StopBits],
	}, nil
}
