// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package transport owns the serial byte stream shared by the protocol
// codecs: it configures the line in raw mode, reads and writes whole
// buffers, and puts the line settings back the way it found them on close.
package transport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/riclolsen/go-hcs/metrics"
	"github.com/riclolsen/go-hcs/psu"
)

// Transport errors. All of them wrap psu.ErrTransport.
var (
	ErrOpenFailed  = fmt.Errorf("%w: open failed", psu.ErrTransport)
	ErrReadFailed  = fmt.Errorf("%w: read failed", psu.ErrTransport)
	ErrWriteFailed = fmt.Errorf("%w: write failed", psu.ErrTransport)
	ErrShortWrite  = fmt.Errorf("%w: short write", psu.ErrTransport)
	ErrClosed      = fmt.Errorf("%w: use of closed transport", psu.ErrTransport)
)

// Port is the subset of serial.Port the transport relies on.
type Port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
}

// lineState remembers the line discipline found on the device before it was
// opened and puts it back on close.
type lineState interface {
	restore() error
}

// Hooks replaced by tests.
var (
	openPort = func(address string, mode *serial.Mode) (Port, error) {
		p, err := serial.Open(address, mode)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	captureLine = captureLineState
)

// Transport is an open serial line. It is not safe for concurrent use.
type Transport struct {
	cfg  Config
	port Port
	line lineState
	log  logrus.FieldLogger
}

// Open opens the device node described by cfg, saves its current line
// settings, switches it to raw 8-bit mode and drops any pending input.
func Open(cfg Config, log logrus.FieldLogger) (*Transport, error) {
	if err := cfg.Valid(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("port", cfg.Address)

	line, err := captureLine(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrOpenFailed, cfg.Address, err)
	}

	port, err := openPort(cfg.Address, cfg.mode())
	if err != nil {
		if rerr := line.restore(); rerr != nil {
			log.Warnf("restoring line settings: %v", rerr)
		}
		return nil, fmt.Errorf("%w: %q: %v", ErrOpenFailed, cfg.Address, err)
	}

	sf := &Transport{cfg: cfg, port: port, line: line, log: log}
	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			sf.Close()
			return nil, fmt.Errorf("%w: set read timeout: %v", ErrOpenFailed, err)
		}
	}
	if err := port.ResetInputBuffer(); err != nil {
		sf.Close()
		return nil, fmt.Errorf("%w: flush input: %v", ErrOpenFailed, err)
	}
	log.Debugf("opened at %d baud", cfg.BaudRate)
	return sf, nil
}

// keptLine is used for ports whose line settings the transport did not capture.
type keptLine struct{}

func (keptLine) restore() error { return nil }

// Attach wraps a port opened elsewhere. The port is used as is: no settings
// are captured, so Close leaves the line as it finds it.
func Attach(port Port, cfg Config, log logrus.FieldLogger) *Transport {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Transport{cfg: cfg, port: port, line: keptLine{}, log: log.WithField("port", cfg.Address)}
}

// Address returns the device node this transport was opened on.
func (sf *Transport) Address() string {
	return sf.cfg.Address
}

// Read performs a single read. A read that returns no data is reported as
// ErrReadFailed rather than (0, nil).
func (sf *Transport) Read(p []byte) (int, error) {
	if sf.port == nil {
		return 0, ErrClosed
	}
	n, err := sf.port.Read(p)
	if n > 0 {
		metrics.SerialBytes.WithLabelValues("rx").Add(float64(n))
	}
	if n == 0 && len(p) > 0 {
		if err == nil {
			err = io.ErrNoProgress
		}
		return 0, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return n, nil
}

// ReadFull fills p, looping over partial reads.
func (sf *Transport) ReadFull(p []byte) error {
	for got := 0; got < len(p); {
		n, err := sf.Read(p[got:])
		got += n
		if err != nil {
			return fmt.Errorf("%w (%d of %d bytes)", err, got, len(p))
		}
	}
	return nil
}

// ReadExact reads exactly n bytes.
func (sf *Transport) ReadExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := sf.ReadFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Write performs a single write. Accepting fewer bytes than given is an error.
func (sf *Transport) Write(p []byte) (int, error) {
	if sf.port == nil {
		return 0, ErrClosed
	}
	n, err := sf.port.Write(p)
	if n > 0 {
		metrics.SerialBytes.WithLabelValues("tx").Add(float64(n))
	}
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if n != len(p) {
		return n, fmt.Errorf("%w: %d out of %d bytes", ErrShortWrite, n, len(p))
	}
	return n, nil
}

// WriteAll writes every byte of p in one call.
func (sf *Transport) WriteAll(p []byte) error {
	_, err := sf.Write(p)
	return err
}

// Close restores the saved line settings and releases the device.
// Closing an already closed transport is a no-op.
func (sf *Transport) Close() error {
	if sf.port == nil {
		return nil
	}
	var errs []error
	if err := sf.port.ResetInputBuffer(); err != nil {
		errs = append(errs, fmt.Errorf("flush input: %w", err))
	}
	if err := sf.port.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close port: %w", err))
	}
	if err := sf.line.restore(); err != nil {
		errs = append(errs, fmt.Errorf("restore line settings: %w", err))
	}
	sf.port = nil
	sf.log.Debug("closed")
	return errors.Join(errs...)
}
