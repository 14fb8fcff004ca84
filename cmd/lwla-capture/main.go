// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command lwla-capture runs one standalone capture session, configured
// from a YAML file, and writes the sample stream to a raw output file.
// An interrupt stops the capture cleanly.
package main // import "github.com/go-daq/lwla/cmd/lwla-capture"

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/go-daq/lwla/acq"
	"github.com/go-daq/lwla/conn"
	"github.com/go-daq/lwla/lwla1016"
	"github.com/go-daq/lwla/lwla1034"
	"github.com/go-daq/lwla/sim"
)

func main() {
	var (
		cfgPath = flag.String("c", "capture.yaml", "capture configuration file")
		oname   = flag.String("o", "capture.bin", "output file")
	)

	log.SetPrefix("lwla-capture: ")
	log.SetFlags(0)

	flag.Parse()

	if err := run(*cfgPath, *oname); err != nil {
		log.Fatalf("%+v", err)
	}
}

type config struct {
	Device string `yaml:"device"`
	Conn   struct {
		Kind      string `yaml:"kind"`
		VID       uint16 `yaml:"vid"`
		PID       uint16 `yaml:"pid"`
		In        int    `yaml:"in-endpoint"`
		Out       int    `yaml:"out-endpoint"`
		Port      string `yaml:"port"`
		Baud      int    `yaml:"baud"`
		Endpoint  string `yaml:"endpoint"`
		Unit      uint8  `yaml:"unit"`
		TimeoutMS int    `yaml:"timeout-ms"`
	} `yaml:"conn"`
	SampleRate uint64 `yaml:"samplerate"`
	Channels   uint64 `yaml:"channels"`
	Trigger    struct {
		Mask  uint64 `yaml:"mask"`
		Value uint64 `yaml:"value"`
		Edges uint64 `yaml:"edges"`
		Ratio int    `yaml:"ratio"`
	} `yaml:"trigger"`
	Limits struct {
		Samples uint64 `yaml:"samples"`
		Millis  uint64 `yaml:"millis"`
	} `yaml:"limits"`
	FrameSamples uint64 `yaml:"frame-samples"`
}

func run(cfgPath, oname string) error {
	raw, err := os.ReadFile(cfgPath)
	if err != nil {
		return fmt.Errorf("could not read config file: %w", err)
	}
	var cfg config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("could not parse config file: %w", err)
	}

	model, trn, err := openDevice(cfg)
	if err != nil {
		return err
	}
	defer trn.Close()

	if err := model.Probe(trn); err != nil {
		return fmt.Errorf("could not probe device: %w", err)
	}
	log.Printf("device %s ready", model.Name())

	out, err := os.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create output file: %w", err)
	}
	defer out.Close()

	ctl := acq.New(model, trn, &fileSink{
		w:   out,
		msg: log.New(os.Stdout, "lwla-capture: ", 0),
	})

	err = ctl.Start(acq.Config{
		SampleRate:   cfg.SampleRate,
		Channels:     cfg.Channels,
		TriggerMask:  cfg.Trigger.Mask,
		TriggerValue: cfg.Trigger.Value,
		TriggerEdges: cfg.Trigger.Edges,
		CaptureRatio: cfg.Trigger.Ratio,
		FrameSamples: cfg.FrameSamples,
		LimitSamples: cfg.Limits.Samples,
		LimitMillis:  cfg.Limits.Millis,
	})
	if err != nil {
		return fmt.Errorf("could not start capture: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := acq.Run(ctx, ctl, 10*time.Millisecond); err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("could not close output file: %w", err)
	}
	return nil
}

func openDevice(cfg config) (acq.Model, acq.Transport, error) {
	switch cfg.Device {
	case "", "sim":
		mem := make([]uint32, 1024)
		for i := range mem {
			mem[i] = sim.Word(uint16(i), 4)
		}
		dev := sim.NewDevice(mem,
			sim.StatusStep{Flags: acq.StatusCapturing | acq.StatusMemAvail, Fill: 512, Elapsed: 1},
			sim.StatusStep{Flags: acq.StatusTriggered, Fill: 1024, Elapsed: 2},
		)
		return sim.NewModel(), dev, nil
	}

	var model acq.Model
	switch cfg.Device {
	case "lwla1016":
		model = lwla1016.New()
	case "lwla1034":
		model = lwla1034.New()
	default:
		return nil, nil, fmt.Errorf("unknown device %q", cfg.Device)
	}

	trn, err := conn.Open(conn.Options{
		Kind:        cfg.Conn.Kind,
		VID:         cfg.Conn.VID,
		PID:         cfg.Conn.PID,
		InEndpoint:  cfg.Conn.In,
		OutEndpoint: cfg.Conn.Out,
		Port:        cfg.Conn.Port,
		Baud:        cfg.Conn.Baud,
		Endpoint:    cfg.Conn.Endpoint,
		Unit:        cfg.Conn.Unit,
		Timeout:     time.Duration(cfg.Conn.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("could not open channel: %w", err)
	}
	return model, trn, nil
}

type fileSink struct {
	w       io.Writer
	msg     *log.Logger
	samples int
}

func (s *fileSink) Send(p acq.Packet) error {
	switch p.Kind {
	case acq.KindHeader:
		s.msg.Printf("header: %d channels, %d bytes/sample, %d Hz",
			p.Channels, p.UnitSize, p.Rate)
	case acq.KindLogicData:
		if _, err := s.w.Write(p.Data); err != nil {
			return err
		}
		s.samples += len(p.Data) / p.UnitSize
	case acq.KindAnalogData:
		if err := binary.Write(s.w, binary.LittleEndian, p.Values); err != nil {
			return err
		}
		s.samples += len(p.Values)
	case acq.KindTrigger:
		s.msg.Printf("trigger at sample %d", s.samples)
	case acq.KindEnd:
		s.msg.Printf("end: %d samples", s.samples)
	}
	return nil
}
