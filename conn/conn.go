// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conn provides command-channel transports for lwla devices:
// USB bulk endpoints, serial ports and Modbus-TCP register mailboxes.
package conn // import "github.com/go-daq/lwla/conn"

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/go-daq/lwla/acq"
)

var errClosed = errors.New("conn: channel closed")

type xfer struct {
	p    []byte
	read bool
	done func(acq.Outcome)
}

type result struct {
	done func(acq.Outcome)
	out  acq.Outcome
}

// Conn adapts a blocking byte channel to the engine's submit/poll
// transport. A worker goroutine performs the transfers one at a time;
// completions are queued and dispatched from Poll, so callbacks always
// run on the polling goroutine.
type Conn struct {
	dev       io.ReadWriteCloser
	isTimeout func(error) bool

	reqs  chan xfer
	comps chan result
	done  chan struct{}
	once  sync.Once
}

func newConn(dev io.ReadWriteCloser, isTimeout func(error) bool) *Conn {
	c := &Conn{
		dev:       dev,
		isTimeout: isTimeout,
		reqs:      make(chan xfer, 4),
		comps:     make(chan result, 4),
		done:      make(chan struct{}),
	}
	go c.worker()
	return c
}

func (c *Conn) worker() {
	for {
		select {
		case <-c.done:
			return
		case x := <-c.reqs:
			var out acq.Outcome
			if x.read {
				out.N, out.Err = c.dev.Read(x.p)
			} else {
				out.N, out.Err = c.dev.Write(x.p)
			}
			out.Err = c.mapErr(x.read, out.N, out.Err)
			select {
			case c.comps <- result{x.done, out}:
			case <-c.done:
				return
			}
		}
	}
}

func (c *Conn) mapErr(read bool, n int, err error) error {
	if err != nil {
		if c.isTimeout != nil && c.isTimeout(err) {
			return acq.ErrTimeout
		}
		return err
	}
	// serial ports report an expired read deadline as an empty read
	if read && n == 0 {
		return acq.ErrTimeout
	}
	return nil
}

// Write performs one synchronous outgoing transfer. Only valid while no
// asynchronous transfer is pending.
func (c *Conn) Write(p []byte) (int, error) {
	n, err := c.dev.Write(p)
	return n, c.mapErr(false, n, err)
}

// Read performs one synchronous incoming transfer. Only valid while no
// asynchronous transfer is pending.
func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.dev.Read(p)
	return n, c.mapErr(true, n, err)
}

func (c *Conn) SubmitWrite(p []byte, done func(acq.Outcome)) error {
	return c.submit(xfer{p: p, done: done})
}

func (c *Conn) SubmitRead(p []byte, done func(acq.Outcome)) error {
	return c.submit(xfer{p: p, read: true, done: done})
}

func (c *Conn) submit(x xfer) error {
	select {
	case c.reqs <- x:
		return nil
	case <-c.done:
		return errClosed
	}
}

// Poll waits up to timeout for a completion, then dispatches everything
// that is ready.
func (c *Conn) Poll(timeout time.Duration) (int, error) {
	n := 0
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case r := <-c.comps:
			r.done(r.out)
			n++
		case <-timer.C:
			return 0, nil
		case <-c.done:
			return 0, errClosed
		}
	}
	for {
		select {
		case r := <-c.comps:
			r.done(r.out)
			n++
		default:
			return n, nil
		}
	}
}

func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.dev.Close()
	})
	return err
}
