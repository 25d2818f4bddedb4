// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package psu

import (
	"errors"
)

// Error categories. Every error returned by a driver wraps exactly one of
// these, so callers can classify failures with errors.Is.
var (
	// ErrTransport covers open/read/write failures on the byte stream.
	ErrTransport = errors.New("transport error")
	// ErrProtocol covers checksum mismatches, malformed or truncated frames
	// and missing response terminators. The connection must be reopened.
	ErrProtocol = errors.New("protocol error")
	// ErrDevice is reported when the device itself answered with a fault code.
	ErrDevice = errors.New("device error")
	// ErrUnsupported is returned when the connected device family has no
	// way to perform the operation. Nothing is sent on the wire.
	ErrUnsupported = errors.New("operation not supported by this power supply")
)

// Driver lifecycle and argument errors
var (
	ErrNotOpen         = errors.New("device is not open")
	ErrAlreadyOpen     = errors.New("device is already open")
	ErrClosed          = errors.New("device already closed")
	ErrNeedsReopen     = errors.New("connection unusable after protocol error, reopen the device")
	ErrInvalidValue    = errors.New("invalid value")
	ErrValueOutOfRange = errors.New("value out of range")
)
