// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command lwla-shell is an interactive register shell for lwla devices.
//
//	lwla> rd 0x1070
//	lwla> wr 0x1010 1
//	lwla> probe
//	lwla> status
//	lwla> quit
package main // import "github.com/go-daq/lwla/cmd/lwla-shell"

import (
	"flag"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/go-daq/lwla/acq"
	"github.com/go-daq/lwla/conn"
	"github.com/go-daq/lwla/lwla1016"
	"github.com/go-daq/lwla/lwla1034"
	"github.com/go-daq/lwla/sim"
)

func main() {
	var (
		device   = flag.String("dev", "sim", "device family (sim, lwla1016, lwla1034)")
		kind     = flag.String("conn", "", "channel kind (usb, serial, modbus); empty for the simulator")
		port     = flag.String("port", "/dev/ttyUSB0", "serial port")
		baud     = flag.Int("baud", 921600, "serial baud rate")
		endpoint = flag.String("addr", "localhost:1502", "modbus gateway address")
		unit     = flag.Uint("unit", 1, "modbus unit id")
		vid      = flag.Uint("vid", 0x2961, "usb vendor id")
		pid      = flag.Uint("pid", 0x6689, "usb product id")
	)

	log.SetPrefix("lwla-shell: ")
	log.SetFlags(0)

	flag.Parse()

	model, trn, err := open(*device, *kind, *port, *baud, *endpoint, uint8(*unit), uint16(*vid), uint16(*pid))
	if err != nil {
		log.Fatalf("%+v", err)
	}
	defer trn.Close()

	if err := repl(model, trn); err != nil {
		log.Fatalf("%+v", err)
	}
}

func open(device, kind, port string, baud int, endpoint string, unit uint8, vid, pid uint16) (acq.Model, acq.Transport, error) {
	var model acq.Model
	switch device {
	case "sim":
		model = sim.NewModel()
	case "lwla1016":
		model = lwla1016.New()
	case "lwla1034":
		model = lwla1034.New()
	default:
		return nil, nil, fmt.Errorf("unknown device %q", device)
	}

	if kind == "" {
		if device != "sim" {
			return nil, nil, fmt.Errorf("device %q needs -conn", device)
		}
		return model, sim.NewDevice(nil), nil
	}

	trn, err := conn.Open(conn.Options{
		Kind:        kind,
		VID:         vid,
		PID:         pid,
		InEndpoint:  6,
		OutEndpoint: 2,
		Port:        port,
		Baud:        baud,
		Endpoint:    endpoint,
		Unit:        unit,
		Timeout:     3 * time.Second,
	})
	if err != nil {
		return nil, nil, err
	}
	return model, trn, nil
}

func repl(model acq.Model, trn acq.Transport) error {
	term := liner.NewLiner()
	defer term.Close()
	term.SetCtrlCAborts(true)

	for {
		line, err := term.Prompt("lwla> ")
		switch err {
		case nil:
			// ok
		case io.EOF, liner.ErrPromptAborted:
			fmt.Println()
			return nil
		default:
			return fmt.Errorf("could not read line: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		args := strings.Fields(line)
		switch args[0] {
		case "quit", "exit":
			return nil
		case "probe":
			if err := model.Probe(trn); err != nil {
				fmt.Printf("probe failed: %v\n", err)
				continue
			}
			fmt.Printf("probe ok: %s\n", model.Name())
		case "status":
			resp := make([]byte, model.StatusLen())
			n, err := acq.Command(trn, model.StatusCmd(), resp, 0)
			if err != nil || n != len(resp) {
				fmt.Printf("status failed: n=%d err=%v\n", n, err)
				continue
			}
			st, err := model.ParseStatus(resp, acq.Config{})
			if err != nil {
				fmt.Printf("status failed: %v\n", err)
				continue
			}
			fmt.Printf("flags=%#x fill=%d elapsed=%d ms\n", uint32(st.Flags), st.Fill, st.Elapsed)
		case "rd":
			if len(args) != 2 {
				fmt.Println("usage: rd <addr>")
				continue
			}
			addr, err := parseNum(args[1])
			if err != nil {
				fmt.Printf("bad address: %v\n", err)
				continue
			}
			resp := make([]byte, 4)
			n, err := acq.Command(trn, acq.ReadRegFrame(uint16(addr)), resp, 0)
			if err != nil || n != len(resp) {
				fmt.Printf("read failed: n=%d err=%v\n", n, err)
				continue
			}
			fmt.Printf("0x%04x = 0x%08x\n", addr, acq.RegValue(resp))
		case "wr":
			if len(args) != 3 {
				fmt.Println("usage: wr <addr> <value>")
				continue
			}
			addr, err1 := parseNum(args[1])
			val, err2 := parseNum(args[2])
			if err1 != nil || err2 != nil {
				fmt.Printf("bad arguments: %v %v\n", err1, err2)
				continue
			}
			if _, err := trn.Write(acq.WriteRegFrame(uint16(addr), uint32(val))); err != nil {
				fmt.Printf("write failed: %v\n", err)
				continue
			}
			fmt.Printf("0x%04x <- 0x%08x\n", addr, uint32(val))
		default:
			fmt.Printf("unknown command %q (rd, wr, probe, status, quit)\n", args[0])
		}
	}
}

func parseNum(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
}
