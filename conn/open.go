// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conn

import (
	"fmt"
	"time"
)

// Options describes how to reach a device.
type Options struct {
	Kind string // "usb", "serial" or "modbus"

	// usb
	VID, PID    uint16
	InEndpoint  int
	OutEndpoint int

	// serial
	Port string
	Baud int

	// modbus
	Endpoint string
	Unit     uint8

	Timeout time.Duration
}

// Open dials the device described by o.
func Open(o Options) (*Conn, error) {
	if o.Timeout <= 0 {
		o.Timeout = 3 * time.Second
	}
	switch o.Kind {
	case "usb":
		return OpenUSB(o.VID, o.PID, o.InEndpoint, o.OutEndpoint, o.Timeout)
	case "serial":
		return OpenSerial(o.Port, o.Baud, o.Timeout)
	case "modbus":
		return OpenModbus(o.Endpoint, o.Unit, o.Timeout)
	}
	return nil, fmt.Errorf("conn: unknown channel kind %q", o.Kind)
}
