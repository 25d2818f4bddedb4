// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Default line settings
const (
	DefaultAddress  = "/dev/ttyUSB0"
	DefaultDataBits = 8
)

// Config holds serial port configuration parameters.
type Config struct {
	// Address is the serial device node (e.g. "/dev/ttyUSB0" on Linux, "COM3" on Windows).
	Address string
	// BaudRate is the line speed (9600 for PPS, 115200 for EA-PS2000).
	BaudRate int
	// DataBits is the number of data bits per character. Always 8 for the supported devices.
	DataBits int
	// StopBits specifies the number of stop bits. Use serial.OneStopBit or serial.TwoStopBits.
	StopBits serial.StopBits
	// Parity specifies the parity mode. Use serial.NoParity, serial.OddParity, serial.EvenParity.
	Parity serial.Parity
	// ReadTimeout bounds a single read. 0 blocks until at least one byte arrives.
	ReadTimeout time.Duration
}

// DefaultConfig returns an 8N1 configuration at the given speed on the default device node.
func DefaultConfig(baud int) Config {
	return Config{
		Address:  DefaultAddress,
		BaudRate: baud,
		DataBits: DefaultDataBits,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
}

// Valid applies defaults and checks configuration validity.
func (sf *Config) Valid() error {
	if sf == nil {
		return errors.New("invalid nil serial config")
	}
	if sf.Address == "" {
		return errors.New("serial address (device node) must be configured")
	}
	if sf.BaudRate <= 0 {
		return errors.New("serial baud rate must be positive")
	}
	if sf.DataBits == 0 {
		sf.DataBits = DefaultDataBits
	} else if sf.DataBits < 5 || sf.DataBits > 8 {
		return fmt.Errorf("data bits %d out of range [5, 8]", sf.DataBits)
	}
	if sf.ReadTimeout < 0 {
		return errors.New("read timeout must not be negative")
	}
	return nil
}

func (sf *Config) mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: sf.BaudRate,
		DataBits: sf.DataBits,
		Parity:   sf.Parity,
		StopBits: sf.StopBits,
	}
}

// ParseParity maps a textual parity setting ("none", "odd", "even", or the
// single letters N/O/E) to serial.Parity.
func ParseParity(s string) (serial.Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "n", "none":
		return serial.NoParity, nil
	case "o", "odd":
		return serial.OddParity, nil
	case "e", "even":
		return serial.EvenParity, nil
	default:
		return serial.NoParity, fmt.Errorf("unknown parity %q", s)
	}
}

// ParseStopBits maps 1 or 2 to serial.StopBits. Zero selects one stop bit.
func ParseStopBits(n int) (serial.StopBits, error) {
	switch n {
	case 0, 1:
		return serial.OneStopBit, nil
	case 2:
		return serial.TwoStopBits, nil
	default:
		return serial.OneStopBit, fmt.Errorf("invalid stop bits %d", n)
	}
}
