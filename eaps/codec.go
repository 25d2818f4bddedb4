// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package eaps

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/riclolsen/go-hcs/metrics"
)

const protocolName = "eaps"

// link is the byte stream a codec talks over; *transport.Transport satisfies it.
type link interface {
	io.Writer
	ReadFull(p []byte) error
}

// sleepFunc implements the settle delay; replaced by tests.
var sleepFunc = time.Sleep

// codec runs one telegram exchange at a time over a link, reusing its frame
// buffer for the request and the reply.
type codec struct {
	port   link
	tg     telegram
	settle time.Duration
	sleep  func(time.Duration)
	log    logrus.FieldLogger
}

func newCodec(port link, settle time.Duration, log logrus.FieldLogger) *codec {
	return &codec{
		port:   port,
		settle: settle,
		sleep:  sleepFunc,
		log:    log,
	}
}

// query reads object obj whose value is length bytes long and returns its data.
func (sf *codec) query(obj Object, length int) ([]byte, error) {
	if err := sf.tg.start(DirReceive, length); err != nil {
		return nil, err
	}
	if err := sf.tg.setObject(obj); err != nil {
		return nil, err
	}
	return sf.send(obj)
}

// write stores data into object obj.
func (sf *codec) write(obj Object, data ...byte) error {
	if err := sf.tg.start(DirSend, len(data)); err != nil {
		return err
	}
	if err := sf.tg.setObject(obj); err != nil {
		return err
	}
	for _, b := range data {
		if err := sf.tg.push(b); err != nil {
			return err
		}
	}
	_, err := sf.send(obj)
	return err
}

// send seals and writes the request, waits for the device and reads the reply.
// The returned data is a copy and stays valid after the next exchange.
func (sf *codec) send(obj Object) (data []byte, err error) {
	start := time.Now()
	defer func() {
		result := metrics.ResultOK
		var derr *DeviceError
		switch {
		case errors.As(err, &derr):
			result = metrics.ResultDevice
			metrics.DeviceErrors.WithLabelValues(strconv.Itoa(int(derr.Code))).Inc()
		case errors.Is(err, ErrChecksumMismatch):
			result = metrics.ResultChecksum
		case err != nil:
			result = metrics.ResultError
		}
		metrics.ObserveExchange(protocolName, result, start)
	}()

	sf.tg.seal()
	sf.log.Debugf("TX [% X] (%s)", sf.tg.bytes(), obj)
	if _, err := sf.port.Write(sf.tg.bytes()); err != nil {
		return nil, err
	}
	// header cleared: the buffer now waits for the reply
	sf.tg.buf[0] = 0
	sf.tg.size = 0
	sf.sleep(sf.settle)

	if err := sf.receive(); err != nil {
		return nil, err
	}
	sf.log.Debugf("RX [% X]", sf.tg.bytes())

	if sf.tg.buf[2] == errorObject && sf.tg.buf[3] != 0 {
		return nil, &DeviceError{Code: ErrorCode(sf.tg.buf[3]), Object: obj}
	}
	sf.sleep(sf.settle)
	return append([]byte(nil), sf.tg.payload()...), nil
}

// receive reads one reply: the three header bytes first, then the rest of the
// frame as announced by the length nibble.
func (sf *codec) receive() error {
	if err := sf.port.ReadFull(sf.tg.buf[:headerLen]); err != nil {
		return fmt.Errorf("reading telegram header: %w", err)
	}
	size := replyLen(sf.tg.buf[0])
	if err := sf.port.ReadFull(sf.tg.buf[headerLen:size]); err != nil {
		return fmt.Errorf("reading telegram body: %w", err)
	}
	sf.tg.size = size
	if !VerifyChecksum(sf.tg.bytes()) {
		return fmt.Errorf("%w: reply [% X]", ErrChecksumMismatch, sf.tg.bytes())
	}
	return nil
}
