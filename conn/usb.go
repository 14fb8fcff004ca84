// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
)

type usbDev struct {
	ctx     *gousb.Context
	dev     *gousb.Device
	release func()
	in      *gousb.InEndpoint
	out     *gousb.OutEndpoint
	timeout time.Duration
}

func (d *usbDev) Write(p []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	return d.out.WriteContext(ctx, p)
}

func (d *usbDev) Read(p []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	return d.in.ReadContext(ctx, p)
}

func (d *usbDev) Close() error {
	d.release()
	err := d.dev.Close()
	if cerr := d.ctx.Close(); err == nil {
		err = cerr
	}
	return err
}

// OpenUSB opens the bulk endpoints of the device matching vid:pid on
// its default interface.
func OpenUSB(vid, pid uint16, inEP, outEP int, timeout time.Duration) (*Conn, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("conn: could not open usb device %04x:%04x: %w", vid, pid, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("conn: usb device %04x:%04x not found", vid, pid)
	}

	intf, release, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("conn: could not claim usb interface: %w", err)
	}

	in, err := intf.InEndpoint(inEP)
	if err != nil {
		release()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("conn: could not open IN endpoint %d: %w", inEP, err)
	}
	out, err := intf.OutEndpoint(outEP)
	if err != nil {
		release()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("conn: could not open OUT endpoint %d: %w", outEP, err)
	}

	ud := &usbDev{
		ctx:     ctx,
		dev:     dev,
		release: release,
		in:      in,
		out:     out,
		timeout: timeout,
	}
	isTimeout := func(err error) bool {
		return errors.Is(err, context.DeadlineExceeded)
	}
	return newConn(ud, isTimeout), nil
}
