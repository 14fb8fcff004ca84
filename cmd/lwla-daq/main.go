// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command lwla-daq starts a TDAQ server driving lwla capture sessions.
//
// The first positional argument selects the device: "sim" (default),
// "lwla1016" or "lwla1034".
package main // import "github.com/go-daq/lwla/cmd/lwla-daq"

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"

	"github.com/go-daq/lwla/acq"
	"github.com/go-daq/lwla/conn"
	"github.com/go-daq/lwla/lwla1016"
	"github.com/go-daq/lwla/lwla1034"
	"github.com/go-daq/lwla/sim"
	"github.com/go-daq/lwla/svc"
)

const (
	usbVendor  = 0x2961
	pid1016    = 0x6688
	pid1034    = 0x6689
	usbInEP    = 6
	usbOutEP   = 2
	usbTimeout = 3 * time.Second
)

func main() {
	cmd := flags.New()

	log.SetPrefix("lwla-daq: ")
	log.SetFlags(0)

	device := "sim"
	if len(cmd.Args) > 0 {
		device = cmd.Args[0]
	}

	newCtl, err := builderFor(device)
	if err != nil {
		log.Fatalf("could not configure device %q: %+v", device, err)
	}

	srv := svc.New(newCtl, 1)

	tsrv := tdaq.New(cmd, os.Stdout)
	tsrv.CmdHandle("/config", srv.OnConfig)
	tsrv.CmdHandle("/init", srv.OnInit)
	tsrv.CmdHandle("/start", srv.OnStart)
	tsrv.CmdHandle("/stop", srv.OnStop)
	tsrv.CmdHandle("/status", srv.OnStatus)
	tsrv.CmdHandle("/quit", srv.OnQuit)

	tsrv.OutputHandle("/lwla/data", srv.Data)

	tsrv.RunHandle(srv.Run)

	err = tsrv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

func builderFor(device string) (svc.Builder, error) {
	switch device {
	case "sim":
		return func(sink acq.Sink) (*acq.Controller, error) {
			model := sim.NewModel()
			dev := demoDevice()
			if err := model.Probe(dev); err != nil {
				return nil, err
			}
			return acq.New(model, dev, sink), nil
		}, nil

	case "lwla1016":
		return usbBuilder(lwla1016.New(), pid1016), nil

	case "lwla1034":
		return usbBuilder(lwla1034.New(), pid1034), nil
	}
	return nil, fmt.Errorf("unknown device %q", device)
}

func usbBuilder(model acq.Model, pid uint16) svc.Builder {
	return func(sink acq.Sink) (*acq.Controller, error) {
		trn, err := conn.Open(conn.Options{
			Kind:        "usb",
			VID:         usbVendor,
			PID:         pid,
			InEndpoint:  usbInEP,
			OutEndpoint: usbOutEP,
			Timeout:     usbTimeout,
		})
		if err != nil {
			return nil, err
		}
		if err := model.Probe(trn); err != nil {
			trn.Close()
			return nil, err
		}
		return acq.New(model, trn, sink), nil
	}
}

// demoDevice scripts a small capture: a counting pattern, triggered on
// the second status poll.
func demoDevice() *sim.Device {
	mem := make([]uint32, 1024)
	for i := range mem {
		mem[i] = sim.Word(uint16(i), 4)
	}
	return sim.NewDevice(mem,
		sim.StatusStep{Flags: acq.StatusCapturing | acq.StatusMemAvail, Fill: 512, Elapsed: 1},
		sim.StatusStep{Flags: acq.StatusTriggered, Fill: 1024, Elapsed: 2},
	)
}
