// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/riclolsen/go-hcs/discovery"
	"github.com/riclolsen/go-hcs/eaps"
	"github.com/riclolsen/go-hcs/pps"
	"github.com/riclolsen/go-hcs/transport"
)

// EnvDevice names the environment variable that overrides the device node.
const EnvDevice = "HCS_DEVICE"

type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Serial  SerialConfig  `yaml:"serial"`
	Timing  TimingConfig  `yaml:"timing"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type DeviceConfig struct {
	// Model is "auto", "eaps" or "pps".
	Model string `yaml:"model"`
	Path  string `yaml:"path"`
}

// SerialConfig holds line overrides per device family, so an automatic
// model choice never runs one family at the other's speed.
type SerialConfig struct {
	ReadTimeout time.Duration `yaml:"read_timeout"`
	EAPS        LineConfig    `yaml:"eaps"`
	PPS         LineConfig    `yaml:"pps"`
}

// LineConfig overrides a driver's line settings. Zero values keep the
// driver defaults.
type LineConfig struct {
	BaudRate int    `yaml:"baud_rate"`
	Parity   string `yaml:"parity"`
	StopBits int    `yaml:"stop_bits"`
}

// Valid checks the overrides.
func (sf LineConfig) Valid() error {
	if sf.BaudRate < 0 {
		return errors.New("serial baud rate must not be negative")
	}
	if _, err := transport.ParseParity(sf.Parity); err != nil {
		return err
	}
	_, err := transport.ParseStopBits(sf.StopBits)
	return err
}

type TimingConfig struct {
	SettleDelay time.Duration `yaml:"settle_delay"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns automatic model selection on the default device node.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Model: discovery.ModelAuto.String(),
		},
		Timing: TimingConfig{
			SettleDelay: eaps.DefaultSettleDelay,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Valid(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Valid applies defaults and checks configuration validity.
func (sf *Config) Valid() error {
	if sf == nil {
		return errors.New("invalid nil config")
	}
	if sf.Device.Model == "" {
		sf.Device.Model = discovery.ModelAuto.String()
	}
	if _, err := discovery.ParseModel(sf.Device.Model); err != nil {
		return err
	}
	if err := sf.Serial.EAPS.Valid(); err != nil {
		return fmt.Errorf("serial.eaps: %w", err)
	}
	if err := sf.Serial.PPS.Valid(); err != nil {
		return fmt.Errorf("serial.pps: %w", err)
	}
	if sf.Serial.ReadTimeout < 0 {
		return errors.New("read timeout must not be negative")
	}
	if sf.Timing.SettleDelay == 0 {
		sf.Timing.SettleDelay = eaps.DefaultSettleDelay
	} else if sf.Timing.SettleDelay < eaps.SettleDelayMin || sf.Timing.SettleDelay > eaps.SettleDelayMax {
		return fmt.Errorf("settle delay %v out of range [%v, %v]", sf.Timing.SettleDelay, eaps.SettleDelayMin, eaps.SettleDelayMax)
	}
	if sf.Log.Level != "" {
		if _, err := logrus.ParseLevel(sf.Log.Level); err != nil {
			return err
		}
	}
	if sf.Metrics.Enabled && sf.Metrics.Addr == "" {
		return errors.New("metrics enabled without listen address")
	}
	return nil
}

// Model returns the configured device family.
func (sf *Config) Model() discovery.Model {
	m, err := discovery.ParseModel(sf.Device.Model)
	if err != nil {
		return discovery.ModelAuto
	}
	return m
}

// DevicePath returns $HCS_DEVICE if set, else the configured path. An
// empty result leaves the choice to discovery and the driver default.
func (sf *Config) DevicePath() string {
	if p := os.Getenv(EnvDevice); p != "" {
		return p
	}
	return sf.Device.Path
}

// Options builds the per-family driver configurations for discovery.Open.
func (sf *Config) Options(log logrus.FieldLogger) discovery.Options {
	ea := eaps.DefaultConfig()
	sf.applySerial(&ea.Serial, sf.Serial.EAPS)
	ea.SettleDelay = sf.Timing.SettleDelay

	pp := pps.DefaultConfig()
	sf.applySerial(&pp.Serial, sf.Serial.PPS)

	return discovery.Options{EAPS: ea, PPS: pp, Log: log}
}

func (sf *Config) applySerial(c *transport.Config, line LineConfig) {
	if p := sf.DevicePath(); p != "" {
		c.Address = p
	}
	if line.BaudRate > 0 {
		c.BaudRate = line.BaudRate
	}
	if line.Parity != "" {
		if p, err := transport.ParseParity(line.Parity); err == nil {
			c.Parity = p
		}
	}
	if line.StopBits != 0 {
		if s, err := transport.ParseStopBits(line.StopBits); err == nil {
			c.StopBits = s
		}
	}
	c.ReadTimeout = sf.Serial.ReadTimeout
}
