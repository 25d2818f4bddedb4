// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package pps

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/riclolsen/go-hcs/metrics"
	"github.com/riclolsen/go-hcs/psu"
	"github.com/riclolsen/go-hcs/transport"
)

const protocolName = "pps"

// Commands
const (
	CmdGetStatus   = "GETD" // actual voltage, current and limiting flag
	CmdGetSettings = "GETS" // voltage and current set points
	CmdVoltage     = "VOLT"
	CmdCurrent     = "CURR"
	CmdOutput      = "SOUT"
)

const (
	commandLen  = 4
	maxSetValue = 999
)

// DefaultMaxResponse bounds a single response.
const DefaultMaxResponse = 1024

var (
	lineEnd    = []byte{'\r'}
	terminator = []byte("OK\n")
)

// Protocol frames ASCII commands over a byte stream. Commands are four
// characters, optionally followed by decimal digits, and end with CR. Every
// response ends with "OK" and a line feed.
type Protocol struct {
	rw  io.ReadWriter
	log logrus.FieldLogger
}

// NewProtocol wraps rw. A nil logger selects the standard logger.
func NewProtocol(rw io.ReadWriter, log logrus.FieldLogger) *Protocol {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Protocol{rw: rw, log: log}
}

// Send writes command, then arg, then a carriage return.
func (sf *Protocol) Send(command, arg string) error {
	if len(command) != commandLen {
		return fmt.Errorf("%w: %q", ErrInvalidCommand, command)
	}
	sf.log.Debugf("TX %q", command+arg)
	if err := sf.write([]byte(command)); err != nil {
		return err
	}
	if arg != "" {
		if err := sf.write([]byte(arg)); err != nil {
			return err
		}
	}
	return sf.write(lineEnd)
}

func (sf *Protocol) write(p []byte) error {
	n, err := sf.rw.Write(p)
	switch {
	case errors.Is(err, transport.ErrShortWrite):
		return fmt.Errorf("%w: %w", ErrShortWrite, err)
	case err != nil:
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	case n < len(p):
		return fmt.Errorf("%w: %d out of %d", ErrShortWrite, n, len(p))
	}
	return nil
}

// Receive reads until the response ends with "OK\n". Carriage returns are
// rewritten to line feeds as they arrive. The returned slice includes the
// terminator.
func (sf *Protocol) Receive(maxLen int) ([]byte, error) {
	if maxLen < len(terminator) {
		return nil, fmt.Errorf("%w: limit %d shorter than the terminator", ErrBufferExhausted, maxLen)
	}
	buf := make([]byte, maxLen)
	size := 0
	for size < len(terminator) || !bytes.Equal(buf[size-len(terminator):size], terminator) {
		if size >= maxLen {
			return nil, fmt.Errorf("%w: %d bytes without terminator", ErrBufferExhausted, size)
		}
		n, err := sf.rw.Read(buf[size:])
		if n <= 0 {
			if err == nil {
				err = io.ErrNoProgress
			}
			return nil, fmt.Errorf("%w after %d bytes: %w", ErrReadFailed, size, err)
		}
		for i := size; i < size+n; i++ {
			if buf[i] == '\r' {
				buf[i] = '\n'
			}
		}
		size += n
	}
	sf.log.Debugf("RX %q", buf[:size])
	return buf[:size], nil
}

// Exchange sends a command and returns its response, read with a bound of maxLen.
func (sf *Protocol) Exchange(command, arg string, maxLen int) (resp []byte, err error) {
	start := time.Now()
	defer func() {
		result := metrics.ResultOK
		if err != nil {
			result = metrics.ResultError
		}
		metrics.ObserveExchange(protocolName, result, start)
	}()

	if err := sf.Send(command, arg); err != nil {
		return nil, err
	}
	return sf.Receive(maxLen)
}

// Status is the decoded GETD response.
type Status struct {
	Voltage float64
	Current float64
	// CurrentLimited is set when the supply regulates current (CC).
	CurrentLimited bool
}

// Settings is the decoded GETS response.
type Settings struct {
	Voltage float64
	Current float64
}

// ParseStatus decodes a GETD response: voltage x10 in [0,3), current x1000
// in [4,7), limiting flag in [8,9).
func ParseStatus(resp []byte) (Status, error) {
	if len(resp) < 9 {
		return Status{}, fmt.Errorf("%w: GETD %q", ErrMalformedResponse, resp)
	}
	v, err := field(resp, 0, 3)
	if err != nil {
		return Status{}, err
	}
	a, err := field(resp, 4, 7)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Voltage:        float64(v) / 10,
		Current:        float64(a) / 1000,
		CurrentLimited: resp[8] != '0',
	}, nil
}

// ParseSettings decodes a GETS response: voltage x10 in [0,3), current x100 in [3,6).
func ParseSettings(resp []byte) (Settings, error) {
	if len(resp) < 6 {
		return Settings{}, fmt.Errorf("%w: GETS %q", ErrMalformedResponse, resp)
	}
	v, err := field(resp, 0, 3)
	if err != nil {
		return Settings{}, err
	}
	a, err := field(resp, 3, 6)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Voltage: float64(v) / 10,
		Current: float64(a) / 100,
	}, nil
}

func field(resp []byte, from, to int) (int, error) {
	n, err := strconv.Atoi(string(resp[from:to]))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: field [%d,%d) of %q", ErrMalformedResponse, from, to, resp)
	}
	return n, nil
}

// scaleEpsilon absorbs binary representation error before truncation, so
// 0.29 A scales to 29 and not 28.
const scaleEpsilon = 1e-9

// formatValue renders value*scale, truncated, as the three zero padded
// digits the set commands take.
func formatValue(value, scale float64) (string, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return "", fmt.Errorf("%w: %v", psu.ErrInvalidValue, value)
	}
	n := math.Floor(value*scale + scaleEpsilon)
	if n > maxSetValue {
		return "", fmt.Errorf("%w: %v", psu.ErrValueOutOfRange, value)
	}
	return fmt.Sprintf("%03d", int(n)), nil
}
