// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import "time"

// Outcome is the completion result of an asynchronous transfer.
type Outcome struct {
	N   int
	Err error
}

// Transport is the command channel to a device.
//
// SubmitWrite and SubmitRead queue one transfer each; the engine keeps
// at most one outstanding. Completion callbacks run from Poll, on the
// caller's goroutine. Write and Read perform one synchronous exchange
// and may only be used while no asynchronous transfer is pending
// (probing and setup).
type Transport interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)

	SubmitWrite(p []byte, done func(Outcome)) error
	SubmitRead(p []byte, done func(Outcome)) error

	// Poll waits up to timeout for completions, dispatches all that are
	// ready and returns the number dispatched.
	Poll(timeout time.Duration) (int, error)

	Close() error
}

// Command performs one synchronous command/reply exchange, retrying the
// whole exchange up to retries extra times on failure.
func Command(t Transport, cmd, resp []byte, retries int) (int, error) {
	var lastErr error
	for i := 0; i <= retries; i++ {
		if _, err := t.Write(cmd); err != nil {
			lastErr = err
			continue
		}
		n, err := t.Read(resp)
		if err != nil {
			lastErr = err
			continue
		}
		return n, nil
	}
	return 0, lastErr
}
