// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conn

import (
	"fmt"
	"time"

	"github.com/goburrow/modbus"
)

// RegClient is the subset of a Modbus client used by the mailbox
// channel.
type RegClient interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
}

// mailbox tunnels the framed command protocol through a Modbus
// holding-register window: command bytes are packed two per register
// into the command window, replies are read back from the response
// window. Gateways bridging lwla hardware onto plant buses expose this
// layout.
type mailbox struct {
	cli      RegClient
	close    func() error
	cmdBase  uint16
	respBase uint16
}

func (m *mailbox) Write(p []byte) (int, error) {
	qty := uint16((len(p) + 1) / 2)
	buf := make([]byte, 2*qty)
	copy(buf, p)
	if _, err := m.cli.WriteMultipleRegisters(m.cmdBase, qty, buf); err != nil {
		return 0, fmt.Errorf("conn: mailbox write failed: %w", err)
	}
	return len(p), nil
}

func (m *mailbox) Read(p []byte) (int, error) {
	qty := uint16((len(p) + 1) / 2)
	res, err := m.cli.ReadHoldingRegisters(m.respBase, qty)
	if err != nil {
		return 0, fmt.Errorf("conn: mailbox read failed: %w", err)
	}
	return copy(p, res), nil
}

func (m *mailbox) Close() error {
	if m.close == nil {
		return nil
	}
	return m.close()
}

// OpenModbus connects to a Modbus-TCP gateway at endpoint (host:port)
// and returns the mailbox channel of the given unit.
func OpenModbus(endpoint string, unit uint8, timeout time.Duration) (*Conn, error) {
	h := modbus.NewTCPClientHandler(endpoint)
	h.Timeout = timeout
	h.SlaveId = unit
	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("conn: could not connect to %q: %w", endpoint, err)
	}
	cli := modbus.NewClient(h)
	return newConn(newMailbox(cli, h.Close), nil), nil
}

func newMailbox(cli RegClient, close func() error) *mailbox {
	return &mailbox{
		cli:      cli,
		close:    close,
		cmdBase:  0x0000,
		respBase: 0x1000,
	}
}
