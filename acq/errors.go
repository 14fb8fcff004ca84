// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout reports a wire operation that did not complete in time.
	ErrTimeout = errors.New("acq: transfer timed out")

	// ErrOverflow reports that the device dropped samples because its
	// capture memory or FIFO filled up.
	ErrOverflow = errors.New("acq: device memory overflow")

	// ErrBusy reports a Start while a session is already running.
	ErrBusy = errors.New("acq: acquisition already running")
)

// TransportError wraps a failure of the underlying command channel.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("acq: %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a well-transferred but malformed device reply.
type ProtocolError struct {
	Op   string
	Got  int
	Want int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("acq: %s: invalid response length got=%d want=%d", e.Op, e.Got, e.Want)
}

// ConfigError reports an invalid capture configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("acq: invalid config: %s: %s", e.Field, e.Reason)
}

// SinkError wraps an error returned by the session packet sink.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("acq: could not send packet: %v", e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }
