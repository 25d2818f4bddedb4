// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package pps

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/riclolsen/go-hcs/psu"
	"github.com/riclolsen/go-hcs/transport"
)

// USB identifiers of the CP210x bridge inside the PPS supplies.
const (
	VendorID  = "10c4"
	ProductID = "ea60"
)

// Model is reported by Describe; the protocol has no identification query.
const Model = "PPS11360"

// Output switch arguments. The device inverts the usual sense.
const (
	outputOn  = "0"
	outputOff = "1"
)

// Set command scaling.
const (
	voltageScale = 10
	currentScale = 100
)

// Matches reports whether the USB vendor/product pair is a Voltcraft PPS.
func Matches(vendorID, productID string) bool {
	return strings.EqualFold(vendorID, VendorID) && strings.EqualFold(productID, ProductID)
}

// openTransport is replaced by tests.
var openTransport = func(cfg transport.Config, log logrus.FieldLogger) (io.ReadWriteCloser, error) {
	tr, err := transport.Open(cfg, log)
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// Driver controls a Voltcraft PPS power supply. It implements psu.Driver.
type Driver struct {
	cfg    Config
	port   io.ReadWriteCloser
	proto  *Protocol
	broken error
	opened bool
	log    logrus.FieldLogger
}

var _ psu.Driver = (*Driver)(nil)

// New creates a driver. An invalid configuration is replaced by DefaultConfig.
func New(cfg Config) *Driver {
	log := logrus.StandardLogger().WithField("protocol", protocolName)
	if err := cfg.Valid(); err != nil {
		log.Warnf("invalid PPS config, using defaults: %v", err)
		cfg = DefaultConfig()
	}
	return &Driver{cfg: cfg, log: log}
}

// SetLogger replaces the logger.
func (sf *Driver) SetLogger(l logrus.FieldLogger) *Driver {
	if l != nil {
		sf.log = l.WithField("protocol", protocolName)
	}
	return sf
}

// Open connects to the device. The PPS needs no initialization sequence.
func (sf *Driver) Open(path string) error {
	if sf.port != nil {
		return psu.ErrAlreadyOpen
	}
	cfg := sf.cfg.Serial
	if path != "" {
		cfg.Address = path
	}
	log := sf.log.WithField("device", cfg.Address)

	p, err := openTransport(cfg, log)
	if err != nil {
		return err
	}
	sf.port = p
	sf.proto = NewProtocol(p, log)
	sf.broken = nil
	sf.opened = true
	log.Info("PPS ready")
	return nil
}

// Close closes the serial line. Closing a driver that is already closed
// returns psu.ErrClosed.
func (sf *Driver) Close() error {
	if sf.port == nil {
		if sf.opened {
			return psu.ErrClosed
		}
		return psu.ErrNotOpen
	}
	err := sf.port.Close()
	sf.port = nil
	sf.proto = nil
	return err
}

func (sf *Driver) ready() error {
	if sf.port == nil {
		if sf.opened {
			return psu.ErrClosed
		}
		return psu.ErrNotOpen
	}
	if sf.broken != nil {
		return fmt.Errorf("%w: %v", psu.ErrNeedsReopen, sf.broken)
	}
	return nil
}

// exchange sends one command and waits for its "OK". Any failure leaves
// the line in an unknown state.
func (sf *Driver) exchange(command, arg string) ([]byte, error) {
	if err := sf.ready(); err != nil {
		return nil, err
	}
	resp, err := sf.proto.Exchange(command, arg, sf.cfg.MaxResponse)
	if err != nil {
		return nil, sf.fail(err)
	}
	return resp, nil
}

func (sf *Driver) fail(err error) error {
	if errors.Is(err, psu.ErrProtocol) || errors.Is(err, psu.ErrTransport) {
		sf.broken = err
		sf.log.Errorf("link failure: %v", err)
	}
	return err
}

func (sf *Driver) status() (Status, error) {
	resp, err := sf.exchange(CmdGetStatus, "")
	if err != nil {
		return Status{}, err
	}
	st, err := ParseStatus(resp)
	if err != nil {
		return Status{}, sf.fail(err)
	}
	return st, nil
}

func (sf *Driver) settings() (Settings, error) {
	resp, err := sf.exchange(CmdGetSettings, "")
	if err != nil {
		return Settings{}, err
	}
	set, err := ParseSettings(resp)
	if err != nil {
		return Settings{}, sf.fail(err)
	}
	return set, nil
}

func (sf *Driver) set(command string, value, scale float64) error {
	if err := sf.ready(); err != nil {
		return err
	}
	arg, err := formatValue(value, scale)
	if err != nil {
		return err
	}
	_, err = sf.exchange(command, arg)
	return err
}

func (sf *Driver) Voltage() (float64, error) {
	set, err := sf.settings()
	return set.Voltage, err
}

func (sf *Driver) SetVoltage(v float64) error {
	return sf.set(CmdVoltage, v, voltageScale)
}

func (sf *Driver) Current() (float64, error) {
	set, err := sf.settings()
	return set.Current, err
}

func (sf *Driver) SetCurrent(a float64) error {
	return sf.set(CmdCurrent, a, currentScale)
}

func (sf *Driver) VoltageActual() (float64, error) {
	st, err := sf.status()
	return st.Voltage, err
}

func (sf *Driver) CurrentActual() (float64, error) {
	st, err := sf.status()
	return st.Current, err
}

func (sf *Driver) OverVoltage() (float64, error) {
	return 0, fmt.Errorf("%w: over-voltage protection", psu.ErrUnsupported)
}

func (sf *Driver) SetOverVoltage(float64) error {
	return fmt.Errorf("%w: over-voltage protection", psu.ErrUnsupported)
}

func (sf *Driver) OverCurrent() (float64, error) {
	return 0, fmt.Errorf("%w: over-current protection", psu.ErrUnsupported)
}

func (sf *Driver) SetOverCurrent(float64) error {
	return fmt.Errorf("%w: over-current protection", psu.ErrUnsupported)
}

func (sf *Driver) EnableOutput() error {
	_, err := sf.exchange(CmdOutput, outputOn)
	return err
}

func (sf *Driver) DisableOutput() error {
	_, err := sf.exchange(CmdOutput, outputOff)
	return err
}

// OutputEnabled always reports false: the output state cannot be read back.
func (sf *Driver) OutputEnabled() (bool, error) {
	if err := sf.ready(); err != nil {
		return false, err
	}
	return false, nil
}

func (sf *Driver) OperatingMode() (psu.OperatingMode, error) {
	return psu.ModeOff, fmt.Errorf("%w: operating mode", psu.ErrUnsupported)
}

// Describe reads set points and measurements.
func (sf *Driver) Describe() (*psu.Info, error) {
	set, err := sf.settings()
	if err != nil {
		return nil, err
	}
	st, err := sf.status()
	if err != nil {
		return nil, err
	}
	return &psu.Info{
		Model:          Model,
		Manufacturer:   "Voltcraft",
		SetVoltage:     set.Voltage,
		SetCurrent:     set.Current,
		ActualVoltage:  st.Voltage,
		ActualCurrent:  st.Current,
		CurrentLimited: st.CurrentLimited,
	}, nil
}
