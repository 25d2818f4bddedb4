// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package eaps

import (
	"errors"
	"time"

	"go.bug.st/serial"

	"github.com/riclolsen/go-hcs/transport"
)

const (
	// DefaultBaudRate is the fixed speed of the EA-PS2000 USB interface.
	DefaultBaudRate = 115200

	// DefaultSettleDelay is the pause before reading a reply and again after
	// a completed exchange. Found empirically; some units may need more.
	DefaultSettleDelay = 50 * time.Millisecond
	SettleDelayMin     = 1 * time.Millisecond
	SettleDelayMax     = 2 * time.Second
)

// Config defines an EA-PS2000 connection.
type Config struct {
	// Serial port settings
	Serial transport.Config

	// SettleDelay is slept before each reply is read and after each exchange.
	SettleDelay time.Duration
}

// DefaultConfig returns 115200 baud, 8 data bits, odd parity on the default device node.
func DefaultConfig() Config {
	s := transport.DefaultConfig(DefaultBaudRate)
	s.Parity = serial.OddParity
	return Config{
		Serial:      s,
		SettleDelay: DefaultSettleDelay,
	}
}

// Valid applies defaults and checks configuration validity.
func (sf *Config) Valid() error {
	if sf == nil {
		return errors.New("invalid nil config")
	}
	if sf.Serial.Address == "" {
		sf.Serial.Address = transport.DefaultAddress
	}
	if sf.Serial.BaudRate == 0 {
		sf.Serial.BaudRate = DefaultBaudRate
	}
	if err := sf.Serial.Valid(); err != nil {
		return err
	}

	if sf.SettleDelay == 0 {
		sf.SettleDelay = DefaultSettleDelay
	} else if sf.SettleDelay < SettleDelayMin || sf.SettleDelay > SettleDelayMax {
		return errors.New("settle delay out of range [1ms, 2s]")
	}
	return nil
}
