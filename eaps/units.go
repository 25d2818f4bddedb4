// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package eaps

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/riclolsen/go-hcs/psu"
)

// rawFullScale is the raw value that corresponds to 100% of a nominal rating.
const rawFullScale = 25600

// Nominal holds the device ratings every raw value is scaled against.
type Nominal struct {
	Voltage float64
	Current float64
	Power   float64
}

// toPhysical scales a raw 16-bit field to volts or amps.
func toPhysical(raw uint16, nominal float64) float64 {
	return float64(raw) * nominal / rawFullScale
}

// toRaw is the inverse of toPhysical, truncating toward zero.
func toRaw(value, nominal float64) (uint16, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, fmt.Errorf("%w: %v", psu.ErrInvalidValue, value)
	}
	raw := value * rawFullScale / nominal
	if raw > math.MaxUint16 {
		return 0, fmt.Errorf("%w: %v exceeds the device range (nominal %v)", psu.ErrValueOutOfRange, value, nominal)
	}
	return uint16(raw), nil
}

// decodeFloat reads an IEEE-754 big-endian single.
func decodeFloat(b []byte) float64 {
	return float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
}

// decodeString reads a NUL terminated identification string.
func decodeString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			b = b[:i]
			break
		}
	}
	return string(b)
}
