// Package leapmmw speaks the leapMMW command shell of the SEN0395 24 GHz
// presence sensor: a half-duplex, CRLF-terminated text protocol in which
// every command is answered by zero or more lines ending in "Done" or
// "Error", possibly interleaved with an echo of the command and the shell
// prompt.
//
// The Engine owns the transport for its lifetime. It frames commands,
// classifies reply lines under a single per-exchange deadline, extracts
// parameters from query replies, brackets configuration changes with
// stop/save/start and parses presence status packets.
package leapmmw

import "time"

// Protocol tokens.
const (
	TokenDone  = "Done"
	TokenError = "Error"

	// Prompt is printed by the sensor shell before it accepts a command.
	Prompt = "leapMMW:/>"

	// StoppedAlready and StartedAlready precede an "Error" when the sensor is
	// already in the requested operational state.
	StoppedAlready = "sensor stopped already"
	StartedAlready = "sensor started already"

	// DefaultResponsePrefix introduces the data line of configuration queries.
	DefaultResponsePrefix = "Response"
)

// Commands understood by the sensor.
const (
	CmdSensorStop   = "sensorStop"
	CmdSensorStart  = "sensorStart"
	CmdSaveConfig   = "saveConfig"
	CmdFactoryReset = "resetCfg"
	CmdResetSystem  = "resetSystem 0"
	CmdGetOutput    = "getOutput 1"
	CmdGetRange     = "getRange"
	CmdGetSens      = "getSensitivity"
	CmdGetLatency   = "getLatency"
	CmdGetInhibit   = "getInhibit"
	CmdGetHWV       = "getHWV"
	CmdGetSWV       = "getSWV"
)

// Timing defaults.
const (
	// DefaultCommandTimeout bounds one whole command exchange.
	DefaultCommandTimeout = 1000 * time.Millisecond
	// DefaultPresenceTimeout bounds the status read that follows getOutput.
	DefaultPresenceTimeout = 100 * time.Millisecond
	// SettleDelay is how long the sensor needs after a factory reset.
	SettleDelay = 2000 * time.Millisecond

	pollInterval = time.Millisecond
)

// Buffer sizes and packet layout.
const (
	lineCapacity   = 64
	packetCapacity = 64
	presenceLines  = 3
	presenceWindow = 16
	presenceIndex  = 7
)
