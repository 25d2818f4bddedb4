// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package discovery finds supported power supplies among the host's USB
// serial ports and opens the matching driver. Classification relies only on
// USB vendor and product IDs; nothing is sent to a device to identify it.
package discovery

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial/enumerator"

	"github.com/riclolsen/go-hcs/eaps"
	"github.com/riclolsen/go-hcs/pps"
	"github.com/riclolsen/go-hcs/psu"
)

var (
	ErrNoDevice     = errors.New("no supported power supply found")
	ErrUnknownModel = errors.New("unknown power supply model")
)

// Model is a supported device family.
type Model int

const (
	ModelAuto Model = iota
	ModelEAPS
	ModelPPS
)

var modelNames = map[Model]string{
	ModelAuto: "auto",
	ModelEAPS: "eaps",
	ModelPPS:  "pps",
}

func (m Model) String() string {
	if s, ok := modelNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Model(%d)", int(m))
}

// ParseModel accepts the model names used in configuration files.
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModelAuto, nil
	case "eaps", "ea", "ea-ps2000", "ps2000":
		return ModelEAPS, nil
	case "pps", "voltcraft", "pps11360":
		return ModelPPS, nil
	default:
		return ModelAuto, fmt.Errorf("%w: %q", ErrUnknownModel, s)
	}
}

// Classify maps a USB vendor/product pair to a device family.
func Classify(vendorID, productID string) (Model, bool) {
	switch {
	case eaps.Matches(vendorID, productID):
		return ModelEAPS, true
	case pps.Matches(vendorID, productID):
		return ModelPPS, true
	default:
		return ModelAuto, false
	}
}

// Port is a serial port that belongs to a supported power supply.
type Port struct {
	Path         string
	VendorID     string
	ProductID    string
	SerialNumber string
	Product      string
	Model        Model
}

// listPorts is replaced by tests.
var listPorts = enumerator.GetDetailedPortsList

// Scan lists the USB serial ports of supported power supplies.
func Scan() ([]Port, error) {
	details, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("enumerating serial ports: %w", err)
	}
	var ports []Port
	for _, d := range details {
		if !d.IsUSB {
			continue
		}
		m, ok := Classify(d.VID, d.PID)
		if !ok {
			continue
		}
		ports = append(ports, Port{
			Path:         d.Name,
			VendorID:     d.VID,
			ProductID:    d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
			Model:        m,
		})
	}
	return ports, nil
}

// Find resolves the port to open. A fixed model with a path needs no
// enumeration. Otherwise the first supported port is used, restricted to
// path and model when they are given.
func Find(model Model, path string) (Port, error) {
	if model != ModelAuto && path != "" {
		return Port{Path: path, Model: model}, nil
	}
	ports, err := Scan()
	if err != nil {
		return Port{}, err
	}
	for _, p := range ports {
		if path != "" && p.Path != path {
			continue
		}
		if model != ModelAuto && p.Model != model {
			continue
		}
		return p, nil
	}
	if path != "" {
		return Port{}, fmt.Errorf("%w at %s", ErrNoDevice, path)
	}
	return Port{}, ErrNoDevice
}

// Options carries the driver configuration of each family.
type Options struct {
	EAPS eaps.Config
	PPS  pps.Config
	Log  logrus.FieldLogger
}

// New returns an unopened driver for the model.
func New(model Model, opts Options) (psu.Driver, error) {
	switch model {
	case ModelEAPS:
		return eaps.New(opts.EAPS).SetLogger(opts.Log), nil
	case ModelPPS:
		return pps.New(opts.PPS).SetLogger(opts.Log), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
}

// Open finds the device and opens its driver. When a fixed model is
// requested without a path and no matching USB port shows up, the driver
// opens its configured address.
func Open(model Model, path string, opts Options) (psu.Driver, Port, error) {
	port, err := Find(model, path)
	if errors.Is(err, ErrNoDevice) && model != ModelAuto && path == "" {
		port, err = Port{Model: model}, nil
	}
	if err != nil {
		return nil, Port{}, err
	}
	drv, err := New(port.Model, opts)
	if err != nil {
		return nil, Port{}, err
	}
	if err := drv.Open(port.Path); err != nil {
		return nil, Port{}, err
	}
	return drv, port, nil
}
