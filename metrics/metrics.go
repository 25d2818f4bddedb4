// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package metrics holds the Prometheus collectors updated by the serial
// transport and the protocol codecs. Nothing is registered automatically;
// call Register with the registry the application exposes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Exchange results
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultDevice   = "device_error"
	ResultChecksum = "checksum"
)

var (
	// Exchanges counts request/response round trips per protocol and result.
	Exchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hcs_exchanges_total",
			Help: "Request/response round trips with the power supply",
		},
		[]string{"protocol", "result"},
	)

	// ExchangeDuration tracks wall time of a round trip, settle delays included.
	ExchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hcs_exchange_duration_seconds",
			Help:    "Duration of a request/response round trip",
			Buckets: []float64{.01, .025, .05, .1, .15, .25, .5, 1, 2.5},
		},
		[]string{"protocol"},
	)

	// SerialBytes counts bytes moved over the serial line.
	SerialBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hcs_serial_bytes_total",
			Help: "Bytes written to and read from the serial line",
		},
		[]string{"direction"},
	)

	// DeviceErrors counts fault codes reported by the device.
	DeviceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hcs_device_errors_total",
			Help: "Error codes reported by the power supply",
		},
		[]string{"code"},
	)
)

// Register adds all collectors to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{Exchanges, ExchangeDuration, SerialBytes, DeviceErrors} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveExchange records one round trip that started at start.
func ObserveExchange(protocol, result string, start time.Time) {
	Exchanges.WithLabelValues(protocol, result).Inc()
	ExchangeDuration.WithLabelValues(protocol).Observe(time.Since(start).Seconds())
}
