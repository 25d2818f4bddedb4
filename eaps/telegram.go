// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package eaps

import (
	"encoding/binary"
	"fmt"
)

// Telegram layout: SD(1) DN(1) OBJ(1) DATA(0-16) CS(2)
const (
	// MaxPayload is the largest data field a telegram can carry.
	MaxPayload = 16
	// MaxTelegramLen is SD + DN + OBJ + DATA + CS.
	MaxTelegramLen = headerLen + MaxPayload + checksumLen

	headerLen   = 3
	checksumLen = 2
	minFrameLen = headerLen + checksumLen
)

// Start delimiter (SD) bits
const (
	castType   byte = 0x20 // message cast marker
	addressed  byte = 0x10 // object-addressed telegram
	lengthMask byte = 0x0F // payload length - 1
	dirMask    byte = 0xC0
)

// errorObject in the object field of a reply marks an error/acknowledge telegram.
const errorObject byte = 0xFF

// Direction is the transfer direction encoded in the start delimiter.
type Direction byte

const (
	DirSend    Direction = 0xC0 // host writes an object
	DirReceive Direction = 0x40 // host queries an object
)

func (d Direction) String() string {
	switch d {
	case DirSend:
		return "SEND"
	case DirReceive:
		return "RECEIVE"
	default:
		return fmt.Sprintf("DIR(0x%02X)", byte(d))
	}
}

// Object is a register identifier of the EA-PS2000 object table.
type Object byte

const (
	ObjDeviceType      Object = 0
	ObjSerialNumber    Object = 1
	ObjNominalVoltage  Object = 2
	ObjNominalCurrent  Object = 3
	ObjNominalPower    Object = 4
	ObjArticleNumber   Object = 6
	ObjManufacturer    Object = 8
	ObjSoftwareVersion Object = 9
	ObjDeviceClass     Object = 19
	ObjOVPThreshold    Object = 38
	ObjOCPThreshold    Object = 39
	ObjSetVoltage      Object = 50
	ObjSetCurrent      Object = 51
	ObjControl         Object = 54
	ObjStatusActual    Object = 71
	ObjStatusSet       Object = 72
)

var objectNames = map[Object]string{
	ObjDeviceType:      "device type",
	ObjSerialNumber:    "serial number",
	ObjNominalVoltage:  "nominal voltage",
	ObjNominalCurrent:  "nominal current",
	ObjNominalPower:    "nominal power",
	ObjArticleNumber:   "article number",
	ObjManufacturer:    "manufacturer",
	ObjSoftwareVersion: "software version",
	ObjDeviceClass:     "device class",
	ObjOVPThreshold:    "OVP threshold",
	ObjOCPThreshold:    "OCP threshold",
	ObjSetVoltage:      "set voltage",
	ObjSetCurrent:      "set current",
	ObjControl:         "control",
	ObjStatusActual:    "actual status",
	ObjStatusSet:       "set status",
}

func (o Object) String() string {
	if s, ok := objectNames[o]; ok {
		return s
	}
	return fmt.Sprintf("object %d", byte(o))
}

// Checksum is the 16-bit additive sum of all bytes in frame. It is not a CRC.
func Checksum(frame []byte) uint16 {
	var sum uint16
	for _, b := range frame {
		sum += uint16(b)
	}
	return sum
}

// VerifyChecksum reports whether the trailing two bytes of frame hold the
// big-endian checksum of everything before them.
func VerifyChecksum(frame []byte) bool {
	if len(frame) < checksumLen {
		return false
	}
	n := len(frame) - checksumLen
	return Checksum(frame[:n]) == binary.BigEndian.Uint16(frame[n:])
}

// telegram is the scratch frame a driver builds requests in and receives
// replies into. Writes past the end of the buffer fail instead of wrapping.
type telegram struct {
	buf  [MaxTelegramLen]byte
	size int
}

// start resets the frame and writes SD and DN. length is the number of data
// bytes being sent, or expected back for a query.
func (sf *telegram) start(dir Direction, length int) error {
	if length < 1 || length > MaxPayload {
		return fmt.Errorf("%w: %d", ErrPayloadLength, length)
	}
	sf.buf[0] = castType | byte(dir) | addressed | (byte(length-1) & lengthMask)
	sf.buf[1] = 0x00 // device node
	sf.size = 2
	return nil
}

func (sf *telegram) setObject(o Object) error {
	return sf.push(byte(o))
}

func (sf *telegram) push(b byte) error {
	if sf.size >= MaxTelegramLen-checksumLen {
		return ErrTelegramOverflow
	}
	sf.buf[sf.size] = b
	sf.size++
	return nil
}

// seal appends the checksum, high byte first.
func (sf *telegram) seal() {
	cs := Checksum(sf.buf[:sf.size])
	binary.BigEndian.PutUint16(sf.buf[sf.size:], cs)
	sf.size += checksumLen
}

func (sf *telegram) bytes() []byte {
	return sf.buf[:sf.size]
}

// payload returns the data field of a received telegram.
func (sf *telegram) payload() []byte {
	if sf.size < minFrameLen {
		return nil
	}
	return sf.buf[headerLen : sf.size-checksumLen]
}

// replyLen derives the full reply length from a received start delimiter.
func replyLen(sd byte) int {
	return headerLen + int(sd&lengthMask) + 1 + checksumLen
}

// Telegram is a decoded EA-PS2000 frame.
type Telegram struct {
	Direction Direction
	Address   byte
	Object    Object
	// Length is the data length announced in the start delimiter. For a
	// query it is the length expected back and Payload is empty.
	Length  int
	Payload []byte
}

// MarshalBinary encodes the telegram, checksum included.
func (t *Telegram) MarshalBinary() ([]byte, error) {
	length := len(t.Payload)
	if length == 0 && t.Direction == DirReceive {
		length = t.Length
	} else if t.Length != 0 && t.Length != length {
		return nil, fmt.Errorf("%w: header %d, data %d", ErrPayloadLength, t.Length, length)
	}

	var tg telegram
	if err := tg.start(t.Direction, length); err != nil {
		return nil, err
	}
	tg.buf[1] = t.Address
	if err := tg.setObject(t.Object); err != nil {
		return nil, err
	}
	for _, b := range t.Payload {
		if err := tg.push(b); err != nil {
			return nil, err
		}
	}
	tg.seal()
	return append([]byte(nil), tg.bytes()...), nil
}

// Decode parses and validates a complete frame.
func Decode(frame []byte) (*Telegram, error) {
	if len(frame) < minFrameLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedTelegram, len(frame))
	}
	if len(frame) > MaxTelegramLen {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrMalformedTelegram, len(frame), MaxTelegramLen)
	}
	if !VerifyChecksum(frame) {
		n := len(frame) - checksumLen
		return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrChecksumMismatch,
			Checksum(frame[:n]), binary.BigEndian.Uint16(frame[n:]))
	}

	t := &Telegram{
		Direction: Direction(frame[0] & dirMask),
		Address:   frame[1],
		Object:    Object(frame[2]),
		Length:    int(frame[0]&lengthMask) + 1,
	}
	data := frame[headerLen : len(frame)-checksumLen]
	switch {
	case len(data) == 0 && t.Direction == DirReceive:
		// query, nothing else to check
	case len(data) != t.Length:
		return nil, fmt.Errorf("%w: header announces %d data bytes, frame has %d",
			ErrMalformedTelegram, t.Length, len(data))
	default:
		t.Payload = append([]byte(nil), data...)
	}
	return t, nil
}

// Err returns the device error carried by an error telegram, or nil.
func (t *Telegram) Err() error {
	if byte(t.Object) != errorObject || len(t.Payload) == 0 || t.Payload[0] == 0 {
		return nil
	}
	return &DeviceError{Code: ErrorCode(t.Payload[0]), Object: t.Object}
}
