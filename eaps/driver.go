// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package eaps

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/riclolsen/go-hcs/psu"
	"github.com/riclolsen/go-hcs/transport"
)

// USB identifiers of the EA-PS2000 interface.
const (
	VendorID  = "232e"
	ProductID = "0010"
)

// Control register (object 54) commands: mask byte, value byte.
var (
	ctrlRemoteOn  = [2]byte{0x10, 0x10}
	ctrlRemoteOff = [2]byte{0x10, 0x00}
	ctrlOutputOn  = [2]byte{0x01, 0x01}
	ctrlOutputOff = [2]byte{0x01, 0x00}
)

// Status bits, second data byte of the status objects.
const (
	statusOutputOn  byte = 0x01
	statusModeCC    byte = 0x04
	controlLocation byte = 0x03
	controlRemote   byte = 0x01
)

const (
	statusLen  = 6
	valueLen   = 2
	nominalLen = 4
	stringLen  = 16
)

// Matches reports whether the USB vendor/product pair is an EA-PS2000.
func Matches(vendorID, productID string) bool {
	return strings.EqualFold(vendorID, VendorID) && strings.EqualFold(productID, ProductID)
}

type port interface {
	link
	io.Closer
}

// openTransport is replaced by tests.
var openTransport = func(cfg transport.Config, log logrus.FieldLogger) (port, error) {
	tr, err := transport.Open(cfg, log)
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// Driver controls an EA-PS2000 power supply. It implements psu.Driver.
type Driver struct {
	cfg     Config
	port    port
	codec   *codec
	nominal Nominal
	opened  bool
	remote  bool  // remote control held
	broken  error // failure that made the link unusable
	log     logrus.FieldLogger
}

var _ psu.Driver = (*Driver)(nil)

// New creates a driver. An invalid configuration is replaced by DefaultConfig.
func New(cfg Config) *Driver {
	log := logrus.StandardLogger().WithField("protocol", protocolName)
	if err := cfg.Valid(); err != nil {
		log.Warnf("invalid EA-PS2000 config, using defaults: %v", err)
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

// Nominal returns the ratings read when the device was opened.
func (sf *Driver) Nominal() Nominal {
	return sf.nominal
}

// Open connects to the device, reads its nominal ratings and takes remote control.
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
	sf.codec = newCodec(p, sf.cfg.SettleDelay, log)
	sf.broken = nil
	sf.opened = true

	if err := sf.initialize(); err != nil {
		sf.abort()
		return fmt.Errorf("initializing %s: %w", cfg.Address, err)
	}
	log.Infof("EA-PS2000 ready, nominal %.2f V / %.2f A / %.0f W",
		sf.nominal.Voltage, sf.nominal.Current, sf.nominal.Power)
	return nil
}

func (sf *Driver) initialize() error {
	for _, n := range []struct {
		obj Object
		dst *float64
	}{
		{ObjNominalVoltage, &sf.nominal.Voltage},
		{ObjNominalCurrent, &sf.nominal.Current},
		{ObjNominalPower, &sf.nominal.Power},
	} {
		data, err := sf.query(n.obj, nominalLen)
		if err != nil {
			return err
		}
		v := decodeFloat(data)
		if math.IsNaN(v) || v <= 0 {
			return sf.fail(fmt.Errorf("%w: %s = %v", ErrInvalidNominal, n.obj, v))
		}
		*n.dst = v
	}
	return sf.enableRemote()
}

func (sf *Driver) enableRemote() error {
	if err := sf.write(ObjControl, ctrlRemoteOn[:]...); err != nil {
		return err
	}
	sf.remote = true
	st, err := sf.status(ObjStatusActual)
	if err != nil {
		return err
	}
	if st.control&controlLocation != controlRemote {
		sf.log.Warnf("remote control not confirmed, control byte 0x%02X", st.control)
	}
	return nil
}

// Close releases remote control and closes the serial line. Closing a
// driver that is already closed returns psu.ErrClosed.
func (sf *Driver) Close() error {
	if sf.port == nil {
		if sf.opened {
			return psu.ErrClosed
		}
		return psu.ErrNotOpen
	}
	var err error
	if sf.broken == nil {
		err = sf.write(ObjControl, ctrlRemoteOff[:]...)
	} else {
		sf.log.Warn("link unusable, closing without releasing remote control")
	}
	cerr := sf.port.Close()
	sf.port = nil
	sf.codec = nil
	sf.remote = false
	return errors.Join(err, cerr)
}

// abort undoes a failed Open. Remote control is handed back if it was taken
// and the link still answers.
func (sf *Driver) abort() {
	if sf.remote && sf.broken == nil {
		if err := sf.write(ObjControl, ctrlRemoteOff[:]...); err != nil {
			sf.log.Warnf("releasing remote control: %v", err)
		}
	}
	if err := sf.port.Close(); err != nil {
		sf.log.Warnf("closing after failed open: %v", err)
	}
	sf.port = nil
	sf.codec = nil
	sf.nominal = Nominal{}
	sf.broken = nil
	sf.remote = false
	sf.opened = false
}

// ready checks that a request may be issued.
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

// fail marks the link unusable after a protocol or transport failure.
func (sf *Driver) fail(err error) error {
	if errors.Is(err, psu.ErrProtocol) || errors.Is(err, psu.ErrTransport) {
		sf.broken = err
		sf.log.Errorf("link failure: %v", err)
	}
	return err
}

// query reads a fixed-size object; shorter replies are malformed.
func (sf *Driver) query(obj Object, length int) ([]byte, error) {
	return sf.request(obj, length, length)
}

func (sf *Driver) request(obj Object, length, minLen int) ([]byte, error) {
	if err := sf.ready(); err != nil {
		return nil, err
	}
	data, err := sf.codec.query(obj, length)
	if err != nil {
		return nil, sf.fail(err)
	}
	if len(data) < minLen {
		return nil, sf.fail(fmt.Errorf("%w: %s returned %d bytes, want %d", ErrMalformedTelegram, obj, len(data), minLen))
	}
	return data, nil
}

func (sf *Driver) write(obj Object, data ...byte) error {
	if err := sf.ready(); err != nil {
		return err
	}
	if err := sf.codec.write(obj, data...); err != nil {
		return sf.fail(err)
	}
	return nil
}

// status is the decoded content of the actual/set status objects.
type status struct {
	control byte
	flags   byte
	voltage uint16
	current uint16
}

func (sf *Driver) status(obj Object) (status, error) {
	data, err := sf.query(obj, statusLen)
	if err != nil {
		return status{}, err
	}
	return status{
		control: data[0],
		flags:   data[1],
		voltage: binary.BigEndian.Uint16(data[2:4]),
		current: binary.BigEndian.Uint16(data[4:6]),
	}, nil
}

func (st status) outputEnabled() bool {
	return st.flags&statusOutputOn != 0
}

// mode decodes bits 1-2 of the status byte: 00 is CV, 10 is CC.
func (st status) mode() psu.OperatingMode {
	if !st.outputEnabled() {
		return psu.ModeOff
	}
	if st.flags&statusModeCC != 0 {
		return psu.ModeCC
	}
	return psu.ModeCV
}

func (sf *Driver) readValue(obj Object, nominal float64) (float64, error) {
	data, err := sf.query(obj, valueLen)
	if err != nil {
		return 0, err
	}
	return toPhysical(binary.BigEndian.Uint16(data), nominal), nil
}

func (sf *Driver) writeValue(obj Object, value, nominal float64) error {
	if err := sf.ready(); err != nil {
		return err
	}
	raw, err := toRaw(value, nominal)
	if err != nil {
		return err
	}
	return sf.write(obj, byte(raw>>8), byte(raw))
}

func (sf *Driver) readString(obj Object) (string, error) {
	data, err := sf.request(obj, stringLen, 0)
	if err != nil {
		return "", err
	}
	return decodeString(data), nil
}

func (sf *Driver) Voltage() (float64, error) {
	st, err := sf.status(ObjStatusSet)
	if err != nil {
		return 0, err
	}
	return toPhysical(st.voltage, sf.nominal.Voltage), nil
}

func (sf *Driver) SetVoltage(v float64) error {
	return sf.writeValue(ObjSetVoltage, v, sf.nominal.Voltage)
}

func (sf *Driver) Current() (float64, error) {
	st, err := sf.status(ObjStatusSet)
	if err != nil {
		return 0, err
	}
	return toPhysical(st.current, sf.nominal.Current), nil
}

func (sf *Driver) SetCurrent(a float64) error {
	return sf.writeValue(ObjSetCurrent, a, sf.nominal.Current)
}

func (sf *Driver) VoltageActual() (float64, error) {
	st, err := sf.status(ObjStatusActual)
	if err != nil {
		return 0, err
	}
	return toPhysical(st.voltage, sf.nominal.Voltage), nil
}

func (sf *Driver) CurrentActual() (float64, error) {
	st, err := sf.status(ObjStatusActual)
	if err != nil {
		return 0, err
	}
	return toPhysical(st.current, sf.nominal.Current), nil
}

func (sf *Driver) OverVoltage() (float64, error) {
	return sf.readValue(ObjOVPThreshold, sf.nominal.Voltage)
}

func (sf *Driver) SetOverVoltage(v float64) error {
	return sf.writeValue(ObjOVPThreshold, v, sf.nominal.Voltage)
}

func (sf *Driver) OverCurrent() (float64, error) {
	return sf.readValue(ObjOCPThreshold, sf.nominal.Current)
}

func (sf *Driver) SetOverCurrent(a float64) error {
	return sf.writeValue(ObjOCPThreshold, a, sf.nominal.Current)
}

func (sf *Driver) EnableOutput() error {
	return sf.write(ObjControl, ctrlOutputOn[:]...)
}

func (sf *Driver) DisableOutput() error {
	return sf.write(ObjControl, ctrlOutputOff[:]...)
}

func (sf *Driver) OutputEnabled() (bool, error) {
	st, err := sf.status(ObjStatusActual)
	if err != nil {
		return false, err
	}
	return st.outputEnabled(), nil
}

func (sf *Driver) OperatingMode() (psu.OperatingMode, error) {
	st, err := sf.status(ObjStatusActual)
	if err != nil {
		return psu.ModeOff, err
	}
	return st.mode(), nil
}

// Describe reads identification, ratings, set points, measurements and limits.
func (sf *Driver) Describe() (*psu.Info, error) {
	info := &psu.Info{
		HasNominal:     true,
		NominalVoltage: sf.nominal.Voltage,
		NominalCurrent: sf.nominal.Current,
		NominalPower:   sf.nominal.Power,
		HasProtection:  true,
		HasMode:        true,
	}
	for _, s := range []struct {
		obj Object
		dst *string
	}{
		{ObjDeviceType, &info.DeviceType},
		{ObjManufacturer, &info.Manufacturer},
		{ObjArticleNumber, &info.ArticleNumber},
		{ObjSerialNumber, &info.SerialNumber},
		{ObjSoftwareVersion, &info.SoftwareVersion},
	} {
		v, err := sf.readString(s.obj)
		if err != nil {
			return nil, err
		}
		*s.dst = v
	}
	info.Model = info.DeviceType
	if info.Model == "" {
		info.Model = "EA-PS2000"
	}

	var err error
	if info.OverVoltage, err = sf.OverVoltage(); err != nil {
		return nil, err
	}
	if info.OverCurrent, err = sf.OverCurrent(); err != nil {
		return nil, err
	}

	set, err := sf.status(ObjStatusSet)
	if err != nil {
		return nil, err
	}
	info.SetVoltage = toPhysical(set.voltage, sf.nominal.Voltage)
	info.SetCurrent = toPhysical(set.current, sf.nominal.Current)

	act, err := sf.status(ObjStatusActual)
	if err != nil {
		return nil, err
	}
	info.ActualVoltage = toPhysical(act.voltage, sf.nominal.Voltage)
	info.ActualCurrent = toPhysical(act.current, sf.nominal.Current)
	info.OutputEnabled = act.outputEnabled()
	info.Mode = act.mode()
	return info, nil
}
