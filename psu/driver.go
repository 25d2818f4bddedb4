// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package psu defines the capability interface shared by all supported
// bench power supply families.
package psu

// OperatingMode is the regulation state reported by the device.
type OperatingMode byte

const (
	ModeOff OperatingMode = iota // output disabled
	ModeCV                       // constant voltage
	ModeCC                       // constant current
)

var operatingModeNames = [...]string{"Off", "CV", "CC"}

func (m OperatingMode) String() string {
	if int(m) < len(operatingModeNames) {
		return operatingModeNames[m]
	}
	return "Unknown"
}

// Driver is implemented once per protocol family. All methods perform
// complete request/response round trips before returning; nothing is cached
// between calls. A Driver is not safe for concurrent use.
type Driver interface {
	// Open connects to the device node. An empty path selects the
	// driver's configured default.
	Open(path string) error
	// Close releases the device and restores the serial line.
	Close() error

	// Voltage returns the voltage set point in volts.
	Voltage() (float64, error)
	SetVoltage(v float64) error
	// Current returns the current limit in amps.
	Current() (float64, error)
	SetCurrent(a float64) error

	// VoltageActual returns the measured output voltage.
	VoltageActual() (float64, error)
	// CurrentActual returns the measured output current.
	CurrentActual() (float64, error)

	OverVoltage() (float64, error)
	SetOverVoltage(v float64) error
	OverCurrent() (float64, error)
	SetOverCurrent(a float64) error

	EnableOutput() error
	DisableOutput() error
	OutputEnabled() (bool, error)

	OperatingMode() (OperatingMode, error)

	// Describe collects a snapshot of everything above for reporting.
	Describe() (*Info, error)
}

// Info is a point-in-time snapshot of a device, as returned by Describe.
// Fields a family cannot report are left zero and flagged by the Has* fields.
type Info struct {
	Model string

	// Identification, empty when the family has no such objects.
	DeviceType      string
	Manufacturer    string
	ArticleNumber   string
	SerialNumber    string
	SoftwareVersion string

	// Nominal ratings; HasNominal is false when unknown.
	HasNominal     bool
	NominalVoltage float64
	NominalCurrent float64
	NominalPower   float64

	SetVoltage    float64
	SetCurrent    float64
	ActualVoltage float64
	ActualCurrent float64

	HasProtection bool
	OverVoltage   float64
	OverCurrent   float64

	OutputEnabled bool

	HasMode bool
	Mode    OperatingMode
	// CurrentLimited is the raw limiting flag for families that report it
	// without a full operating mode.
	CurrentLimited bool
}

// ActualPower returns the product of measured voltage and current.
func (sf *Info) ActualPower() float64 {
	return sf.ActualVoltage * sf.ActualCurrent
}
