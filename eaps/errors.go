// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package eaps

import (
	"fmt"

	"github.com/riclolsen/go-hcs/psu"
)

// Telegram errors. All of them wrap psu.ErrProtocol.
var (
	ErrChecksumMismatch  = fmt.Errorf("%w: checksum mismatch", psu.ErrProtocol)
	ErrMalformedTelegram = fmt.Errorf("%w: malformed telegram", psu.ErrProtocol)
	ErrTelegramOverflow  = fmt.Errorf("%w: telegram buffer overflow", psu.ErrProtocol)
	ErrPayloadLength     = fmt.Errorf("%w: invalid payload length", psu.ErrProtocol)
	ErrInvalidNominal    = fmt.Errorf("%w: invalid nominal rating", psu.ErrProtocol)
)

// ErrorCode is the fault code a device returns in an error telegram.
type ErrorCode byte

const (
	ErrCodeNone          ErrorCode = 0x00
	ErrCodeChecksum      ErrorCode = 0x03
	ErrCodeDelimiter     ErrorCode = 0x04
	ErrCodeOutputAddress ErrorCode = 0x05
	ErrCodeObject        ErrorCode = 0x07
	ErrCodeObjectLength  ErrorCode = 0x08
	ErrCodeAccess        ErrorCode = 0x09
	ErrCodeLocked        ErrorCode = 0x15
	ErrCodeOverflow      ErrorCode = 0x30
	ErrCodeUnderflow     ErrorCode = 0x31
)

var errorCodeText = map[ErrorCode]string{
	ErrCodeNone:          "No error",
	ErrCodeChecksum:      "Check sum incorrect",
	ErrCodeDelimiter:     "Start delimiter incorrect",
	ErrCodeOutputAddress: "Wrong address for output",
	ErrCodeObject:        "Object not defined",
	ErrCodeObjectLength:  "Object length incorrect",
	ErrCodeAccess:        "Read/Write permissions violated, no access",
	ErrCodeLocked:        "Device is in \"Lock\" state",
	ErrCodeOverflow:      "Upper limit of object exceeded",
	ErrCodeUnderflow:     "Lower limit of object exceeded",
}

// String returns the documented text for the code. Codes missing from the
// table map to the "No error" entry.
func (c ErrorCode) String() string {
	if s, ok := errorCodeText[c]; ok {
		return s
	}
	return errorCodeText[ErrCodeNone]
}

// DeviceError is returned when the power supply answers with a fault code.
type DeviceError struct {
	Code ErrorCode
	// Object is the object the failed request addressed.
	Object Object
}

func (e *DeviceError) Error() string {
	if byte(e.Object) == errorObject {
		return fmt.Sprintf("PSU reported error 0x%02X: %s", byte(e.Code), e.Code)
	}
	return fmt.Sprintf("PSU reported error 0x%02X on %s: %s", byte(e.Code), e.Object, e.Code)
}

// Unwrap makes errors.Is(err, psu.ErrDevice) hold.
func (e *DeviceError) Unwrap() error {
	return psu.ErrDevice
}
