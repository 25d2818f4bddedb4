// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package pps

import (
	"errors"

	"github.com/riclolsen/go-hcs/transport"
)

const (
	// DefaultBaudRate of the PPS USB serial bridge.
	DefaultBaudRate = 9600

	MaxResponseMin = 16
	MaxResponseMax = 64 * 1024
)

// Config defines a Voltcraft PPS connection.
type Config struct {
	// Serial port settings
	Serial transport.Config

	// MaxResponse bounds the bytes read while waiting for "OK".
	MaxResponse int
}

// DefaultConfig returns 9600 baud, 8N1 on the default device node.
func DefaultConfig() Config {
	return Config{
		Serial:      transport.DefaultConfig(DefaultBaudRate),
		MaxResponse: DefaultMaxResponse,
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

	if sf.MaxResponse == 0 {
		sf.MaxResponse = DefaultMaxResponse
	} else if sf.MaxResponse < MaxResponseMin || sf.MaxResponse > MaxResponseMax {
		return errors.New("max response out of range [16, 65536]")
	}
	return nil
}
