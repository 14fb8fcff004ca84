// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

// ClockSource selects the sampling clock of a capture.
type ClockSource int

const (
	// ClockInternal samples at Config.SampleRate from the device clock.
	ClockInternal ClockSource = iota
	// ClockExternalRising and ClockExternalFalling sample on the given
	// edge of the external clock input.
	ClockExternalRising
	ClockExternalFalling
)

// Config describes one capture session.
type Config struct {
	Clock      ClockSource
	SampleRate uint64 // Hz, required for the internal clock
	Channels   uint64 // bit mask of enabled channels

	// Software trigger condition. Level bits are selected by TriggerMask
	// and compared against TriggerValue; TriggerEdges bits must change
	// between consecutive samples. A rising (falling) edge is an edge bit
	// whose mask/value bits require the new sample high (low). All zero
	// means free-running capture.
	TriggerMask   uint64
	TriggerValue  uint64
	TriggerEdges  uint64
	CaptureRatio  int // percent of the sample limit kept before the trigger

	// FrameSamples brackets the data stream into frames of that many
	// samples. It is independent of the pre-trigger capacity. 0 disables
	// framing.
	FrameSamples uint64

	// Capture limits. At most one of the two may be zero; with the
	// internal clock the missing one is derived from the sample rate.
	LimitSamples uint64
	LimitMillis  uint64
}

// PreTriggerSamples returns the pre-trigger capacity of the session.
func (cfg Config) PreTriggerSamples() uint64 {
	return cfg.LimitSamples * uint64(cfg.CaptureRatio) / 100
}

func channelMask(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<n - 1
}

// normalize validates cfg against the device capabilities and fills in
// the derived fields.
func (cfg Config) normalize(caps Caps) (Config, error) {
	mask := channelMask(caps.Channels)
	switch {
	case cfg.Channels == 0:
		return cfg, &ConfigError{Field: "channels", Reason: "no channels enabled"}
	case cfg.Channels&^mask != 0:
		return cfg, &ConfigError{Field: "channels", Reason: "mask exceeds device channels"}
	}

	if cfg.Clock == ClockInternal {
		switch {
		case cfg.SampleRate == 0:
			return cfg, &ConfigError{Field: "samplerate", Reason: "not set"}
		case cfg.SampleRate > caps.MaxSampleRate:
			return cfg, &ConfigError{Field: "samplerate", Reason: "exceeds device maximum"}
		}
	}

	switch {
	case cfg.TriggerMask&^mask != 0 || cfg.TriggerEdges&^mask != 0:
		return cfg, &ConfigError{Field: "trigger", Reason: "mask exceeds device channels"}
	case cfg.TriggerValue&^cfg.TriggerMask != 0:
		return cfg, &ConfigError{Field: "trigger", Reason: "value outside mask"}
	case cfg.CaptureRatio < 0 || cfg.CaptureRatio > 100:
		return cfg, &ConfigError{Field: "capture-ratio", Reason: "not a percentage"}
	}

	if cfg.LimitSamples == 0 && cfg.LimitMillis == 0 {
		return cfg, &ConfigError{Field: "limits", Reason: "no capture limit set"}
	}
	if cfg.Clock == ClockInternal {
		if cfg.LimitSamples == 0 {
			cfg.LimitSamples = cfg.LimitMillis * cfg.SampleRate / 1000
		}
		if cfg.LimitMillis == 0 {
			cfg.LimitMillis = cfg.LimitSamples*1000/cfg.SampleRate + 1
		}
	}
	if caps.MaxSamples > 0 && (cfg.LimitSamples == 0 || cfg.LimitSamples > caps.MaxSamples) {
		if cfg.LimitSamples == 0 {
			// Duration-only capture: the device limit stands in for
			// an unbounded sample count, not a requested one, so no
			// pre-trigger share applies to it.
			cfg.CaptureRatio = 0
		}
		cfg.LimitSamples = caps.MaxSamples
	}
	if caps.MaxMillis > 0 && cfg.LimitMillis > caps.MaxMillis {
		cfg.LimitMillis = caps.MaxMillis
	}

	return cfg, nil
}
