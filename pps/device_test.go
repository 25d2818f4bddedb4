// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package pps

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/riclolsen/go-hcs/transport"
)

// fakeDevice answers CR terminated command lines from a reply table. Lines
// without an entry are acknowledged with a bare "OK".
type fakeDevice struct {
	replies  map[string]string
	writes   []string
	lines    []string
	line     []byte
	pending  []byte
	chunk    int // bytes handed out per Read, 0 for everything
	maxWrite int // bytes accepted per Write, 0 for everything
	writeErr error
	closed   int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		replies: map[string]string{
			"GETD": "1205012000\rOK\r",
			"GETS": "120150\rOK\r",
		},
	}
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	if d.maxWrite > 0 && len(p) > d.maxWrite {
		p = p[:d.maxWrite]
	}
	d.writes = append(d.writes, string(p))
	for _, b := range p {
		if b != '\r' {
			d.line = append(d.line, b)
			continue
		}
		cmd := string(d.line)
		d.line = nil
		d.lines = append(d.lines, cmd)
		reply, ok := d.replies[cmd]
		if !ok {
			reply = "OK\n"
		}
		d.pending = append(d.pending, reply...)
	}
	return len(p), nil
}

func (d *fakeDevice) Read(p []byte) (int, error) {
	if len(d.pending) == 0 {
		return 0, io.EOF
	}
	n := len(d.pending)
	if d.chunk > 0 && n > d.chunk {
		n = d.chunk
	}
	n = copy(p, d.pending[:n])
	d.pending = d.pending[n:]
	return n, nil
}

func (d *fakeDevice) Close() error {
	d.closed++
	return nil
}

func (d *fakeDevice) wire() string {
	return strings.Join(d.writes, "")
}

func openFake(t *testing.T) (*Driver, *fakeDevice) {
	t.Helper()
	dev := newFakeDevice()
	orig := openTransport
	openTransport = func(transport.Config, logrus.FieldLogger) (io.ReadWriteCloser, error) {
		return dev, nil
	}
	t.Cleanup(func() { openTransport = orig })

	drv := New(DefaultConfig())
	if err := drv.Open(""); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return drv, dev
}

var errBoom = errors.New("boom")
