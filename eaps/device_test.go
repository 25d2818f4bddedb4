// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package eaps

import (
	"encoding/binary"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/riclolsen/go-hcs/transport"
)

// simDevice answers telegrams the way an EA-PS2000 does. It is used as the
// link of a Driver under test.
type simDevice struct {
	nominal Nominal
	strings map[Object]string

	remote    bool
	outputOn  bool
	cc        bool
	setV      uint16
	setI      uint16
	ovp       uint16
	ocp       uint16
	actualI   uint16
	requests  []*Telegram
	pending   []byte
	closed    int
	failCode  ErrorCode // answered to the next request, then cleared
	failAt    int       // 1-based request number answered with failWith
	failWith  ErrorCode
	corrupt   bool      // flip the checksum of the next reply
	truncate  bool      // drop the last byte of the next reply
	badFrames int
}

func newSimDevice() *simDevice {
	return &simDevice{
		nominal: Nominal{Voltage: 42, Current: 6, Power: 100},
		strings: map[Object]string{
			ObjDeviceType:      "PS 2042-06B",
			ObjManufacturer:    "EA Elektro",
			ObjArticleNumber:   "39200108",
			ObjSerialNumber:    "1234567890",
			ObjSoftwareVersion: "V2.07 04.12.2014",
		},
		ovp: 28160, // 110%
		ocp: 28160,
	}
}

func simReply(obj byte, data []byte) []byte {
	sd := 0x80 | castType | addressed | byte(len(data)-1)&lengthMask
	frame := append([]byte{sd, 0x00, obj}, data...)
	cs := Checksum(frame)
	return append(frame, byte(cs>>8), byte(cs))
}

func be16(v uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, v)
}

func (d *simDevice) status(v, i uint16) []byte {
	var control, flags byte
	if d.remote {
		control = controlRemote
	}
	if d.outputOn {
		flags |= statusOutputOn
		if d.cc {
			flags |= statusModeCC
		}
	}
	data := []byte{control, flags}
	data = append(data, be16(v)...)
	return append(data, be16(i)...)
}

func (d *simDevice) answer(tg *Telegram) []byte {
	if d.failCode != 0 {
		code := d.failCode
		d.failCode = 0
		return simReply(errorObject, []byte{byte(code)})
	}
	if tg.Direction == DirSend {
		switch tg.Object {
		case ObjSetVoltage:
			d.setV = binary.BigEndian.Uint16(tg.Payload)
		case ObjSetCurrent:
			d.setI = binary.BigEndian.Uint16(tg.Payload)
		case ObjOVPThreshold:
			d.ovp = binary.BigEndian.Uint16(tg.Payload)
		case ObjOCPThreshold:
			d.ocp = binary.BigEndian.Uint16(tg.Payload)
		case ObjControl:
			mask, value := tg.Payload[0], tg.Payload[1]
			if mask&0x10 != 0 {
				d.remote = value&0x10 != 0
			}
			if mask&0x01 != 0 {
				if !d.remote {
					return simReply(errorObject, []byte{byte(ErrCodeAccess)})
				}
				d.outputOn = value&0x01 != 0
			}
		default:
			return simReply(errorObject, []byte{byte(ErrCodeAccess)})
		}
		return simReply(errorObject, []byte{0})
	}

	obj := byte(tg.Object)
	switch tg.Object {
	case ObjNominalVoltage, ObjNominalCurrent, ObjNominalPower:
		v := map[Object]float64{
			ObjNominalVoltage: d.nominal.Voltage,
			ObjNominalCurrent: d.nominal.Current,
			ObjNominalPower:   d.nominal.Power,
		}[tg.Object]
		return simReply(obj, binary.BigEndian.AppendUint32(nil, math.Float32bits(float32(v))))
	case ObjOVPThreshold:
		return simReply(obj, be16(d.ovp))
	case ObjOCPThreshold:
		return simReply(obj, be16(d.ocp))
	case ObjStatusSet:
		return simReply(obj, d.status(d.setV, d.setI))
	case ObjStatusActual:
		// the output follows the set voltage exactly
		return simReply(obj, d.status(d.setV, d.actualI))
	}
	if s, ok := d.strings[tg.Object]; ok {
		data := append([]byte(s), 0)
		if len(data) > MaxPayload {
			data = data[:MaxPayload]
		}
		return simReply(obj, data)
	}
	return simReply(errorObject, []byte{byte(ErrCodeObject)})
}

func (d *simDevice) Write(p []byte) (int, error) {
	tg, err := Decode(p)
	if err != nil {
		d.badFrames++
		d.pending = append(d.pending, simReply(errorObject, []byte{byte(ErrCodeChecksum)})...)
		return len(p), nil
	}
	d.requests = append(d.requests, tg)
	if d.failAt != 0 && d.failAt == len(d.requests) {
		d.failCode = d.failWith
	}
	reply := d.answer(tg)
	if d.corrupt {
		d.corrupt = false
		reply[len(reply)-1] ^= 0xFF
	}
	if d.truncate {
		d.truncate = false
		reply = reply[:len(reply)-1]
	}
	d.pending = append(d.pending, reply...)
	return len(p), nil
}

func (d *simDevice) ReadFull(p []byte) error {
	if len(d.pending) < len(p) {
		n := len(d.pending)
		d.pending = nil
		return fmt.Errorf("%w: no data after %d of %d bytes", transport.ErrReadFailed, n, len(p))
	}
	copy(p, d.pending)
	d.pending = d.pending[len(p):]
	return nil
}

func (d *simDevice) Close() error {
	d.closed++
	return nil
}

func (d *simDevice) last() *Telegram {
	return d.requests[len(d.requests)-1]
}

// openSim opens a Driver on a fresh simulated device with settle delays recorded instead of slept.
func openSim(t *testing.T) (*Driver, *simDevice, *[]int) {
	t.Helper()
	dev := newSimDevice()
	sleeps := new([]int)

	origOpen, origSleep := openTransport, sleepFunc
	t.Cleanup(func() { openTransport, sleepFunc = origOpen, origSleep })
	openTransport = func(cfg transport.Config, log logrus.FieldLogger) (port, error) {
		return dev, nil
	}
	sleepFunc = func(d time.Duration) { *sleeps = append(*sleeps, int(d.Milliseconds())) }

	drv := New(DefaultConfig())
	if err := drv.Open(""); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return drv, dev, sleeps
}
