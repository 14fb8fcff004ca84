// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conn

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// OpenSerial opens a serial-attached device at 8N1 with the given baud
// rate. An expired read deadline surfaces as acq.ErrTimeout.
func OpenSerial(port string, baud int, timeout time.Duration) (*Conn, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
	p, err := serial.Open(port, mode)
	if err != nil {
		return nil, fmt.Errorf("conn: could not open serial port %q: %w", port, err)
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("conn: could not set read timeout on %q: %w", port, err)
	}
	return newConn(p, nil), nil
}
