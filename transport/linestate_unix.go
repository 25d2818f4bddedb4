// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

//go:build linux || darwin

package transport

import (
	"golang.org/x/sys/unix"
)

// termiosState keeps its own descriptor on the device so the saved settings
// can be written back after the serial library has closed its handle.
type termiosState struct {
	fd    int
	saved *unix.Termios
}

func captureLineState(address string) (lineState, error) {
	fd, err := unix.Open(address, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	saved, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &termiosState{fd: fd, saved: saved}, nil
}

func (sf *termiosState) restore() error {
	if sf.fd < 0 {
		return nil
	}
	err := unix.IoctlSetTermios(sf.fd, ioctlSetTermios, sf.saved)
	if cerr := unix.Close(sf.fd); err == nil {
		err = cerr
	}
	sf.fd = -1
	return err
}
