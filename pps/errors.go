// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package pps

import (
	"fmt"

	"github.com/riclolsen/go-hcs/psu"
)

// Protocol errors. All of them wrap psu.ErrProtocol.
var (
	ErrShortWrite        = fmt.Errorf("%w: failed to send sufficient bytes", psu.ErrProtocol)
	ErrWriteFailed       = fmt.Errorf("%w: write failed", psu.ErrProtocol)
	ErrReadFailed        = fmt.Errorf("%w: read failed", psu.ErrProtocol)
	ErrBufferExhausted   = fmt.Errorf("%w: response terminator not found within buffer", psu.ErrProtocol)
	ErrMalformedResponse = fmt.Errorf("%w: invalid reply", psu.ErrProtocol)
	ErrInvalidCommand    = fmt.Errorf("%w: invalid command", psu.ErrProtocol)
)
