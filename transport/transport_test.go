// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"go.bug.st/serial"

	"github.com/riclolsen/go-hcs/psu"
)

// chunkPort hands out its input in fixed-size pieces to exercise partial reads.
type chunkPort struct {
	in       []byte
	chunk    int
	out      bytes.Buffer
	maxWrite int
	flushed  int
	closed   int
	timeout  time.Duration
}

func (p *chunkPort) Read(b []byte) (int, error) {
	n := p.chunk
	if n > len(p.in) {
		n = len(p.in)
	}
	if n > len(b) {
		n = len(b)
	}
	copy(b, p.in[:n])
	p.in = p.in[n:]
	return n, nil
}

func (p *chunkPort) Write(b []byte) (int, error) {
	if p.maxWrite > 0 && len(b) > p.maxWrite {
		b = b[:p.maxWrite]
	}
	return p.out.Write(b)
}

func (p *chunkPort) Close() error                         { p.closed++; return nil }
func (p *chunkPort) ResetInputBuffer() error              { p.flushed++; return nil }
func (p *chunkPort) SetReadTimeout(t time.Duration) error { p.timeout = t; return nil }

type fakeLine struct{ restored int }

func (l *fakeLine) restore() error { l.restored++; return nil }

func openFake(t *testing.T, port *chunkPort) (*Transport, *fakeLine) {
	t.Helper()
	line := &fakeLine{}
	origOpen, origCapture := openPort, captureLine
	t.Cleanup(func() { openPort, captureLine = origOpen, origCapture })

	var gotMode *serial.Mode
	openPort = func(address string, mode *serial.Mode) (Port, error) {
		gotMode = mode
		return port, nil
	}
	captureLine = func(string) (lineState, error) { return line, nil }

	cfg := DefaultConfig(115200)
	cfg.Parity = serial.OddParity
	tr, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if gotMode.BaudRate != 115200 || gotMode.DataBits != 8 || gotMode.Parity != serial.OddParity {
		t.Errorf("mode = %+v, want 115200 8O1", gotMode)
	}
	return tr, line
}

func TestOpenFlushesInput(t *testing.T) {
	port := &chunkPort{chunk: 1}
	openFake(t, port)
	if port.flushed != 1 {
		t.Errorf("input flushed %d times on open, want 1", port.flushed)
	}
	if port.timeout != 0 {
		t.Errorf("read timeout = %v, want none", port.timeout)
	}
}

func TestOpenFailure(t *testing.T) {
	origOpen, origCapture := openPort, captureLine
	defer func() { openPort, captureLine = origOpen, origCapture }()

	line := &fakeLine{}
	captureLine = func(string) (lineState, error) { return line, nil }
	openPort = func(string, *serial.Mode) (Port, error) {
		return nil, errors.New("permission denied")
	}

	_, err := Open(DefaultConfig(9600), nil)
	if !errors.Is(err, ErrOpenFailed) || !errors.Is(err, psu.ErrTransport) {
		t.Fatalf("Open() error = %v, want ErrOpenFailed", err)
	}
	if line.restored != 1 {
		t.Errorf("line settings restored %d times after failed open, want 1", line.restored)
	}

	captureLine = func(string) (lineState, error) { return nil, errors.New("not a tty") }
	if _, err := Open(DefaultConfig(9600), nil); !errors.Is(err, ErrOpenFailed) {
		t.Errorf("Open() with failing capture error = %v, want ErrOpenFailed", err)
	}

	if _, err := Open(Config{}, nil); !errors.Is(err, ErrOpenFailed) {
		t.Errorf("Open() with empty config error = %v, want ErrOpenFailed", err)
	}
}

func TestReadExactPartialReads(t *testing.T) {
	port := &chunkPort{in: []byte{1, 2, 3, 4, 5, 6, 7}, chunk: 2}
	tr, _ := openFake(t, port)

	got, err := tr.ReadExact(5)
	if err != nil {
		t.Fatalf("ReadExact() error = %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("ReadExact() = % X", got)
	}

	_, err = tr.ReadExact(3)
	if !errors.Is(err, ErrReadFailed) {
		t.Errorf("ReadExact() past end error = %v, want ErrReadFailed", err)
	}
}

func TestWriteAll(t *testing.T) {
	port := &chunkPort{chunk: 1}
	tr, _ := openFake(t, port)

	if err := tr.WriteAll([]byte("GETD\r")); err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}
	if port.out.String() != "GETD\r" {
		t.Errorf("written %q", port.out.String())
	}

	port.maxWrite = 2
	if err := tr.WriteAll([]byte{1, 2, 3}); !errors.Is(err, ErrShortWrite) {
		t.Errorf("WriteAll() error = %v, want ErrShortWrite", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	port := &chunkPort{chunk: 1}
	tr, line := openFake(t, port)

	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if port.closed != 1 || line.restored != 1 {
		t.Errorf("port closed %d times, line restored %d times, want 1 and 1", port.closed, line.restored)
	}
	if _, err := tr.Read(make([]byte, 1)); !errors.Is(err, ErrClosed) {
		t.Errorf("Read() after Close error = %v, want ErrClosed", err)
	}
}

func TestConfigValid(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(9600), false},
		{"no address", Config{BaudRate: 9600}, true},
		{"no baud", Config{Address: "/dev/ttyUSB0"}, true},
		{"bad data bits", Config{Address: "/dev/ttyUSB0", BaudRate: 9600, DataBits: 9}, true},
		{"zero data bits defaulted", Config{Address: "/dev/ttyUSB0", BaudRate: 9600}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Valid()
			if (err != nil) != tt.wantErr {
				t.Errorf("Valid() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && cfg.DataBits != 8 {
				t.Errorf("DataBits = %d, want 8", cfg.DataBits)
			}
		})
	}
}

func TestParseParity(t *testing.T) {
	tests := map[string]serial.Parity{
		"":     serial.NoParity,
		"none": serial.NoParity,
		"O":    serial.OddParity,
		"even": serial.EvenParity,
	}
	for in, want := range tests {
		got, err := ParseParity(in)
		if err != nil || got != want {
			t.Errorf("ParseParity(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseParity("mark"); err == nil {
		t.Error("ParseParity(mark) should fail")
	}
	if _, err := ParseStopBits(3); err == nil {
		t.Error("ParseStopBits(3) should fail")
	}
}
