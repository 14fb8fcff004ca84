// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq_test

import (
	"errors"
	"io"
	"log"
	"testing"

	"github.com/go-daq/lwla/acq"
	"github.com/go-daq/lwla/sim"
)

type recSink struct {
	pkts []acq.Packet
}

func (s *recSink) Send(p acq.Packet) error {
	s.pkts = append(s.pkts, p)
	return nil
}

func (s *recSink) kinds() []acq.PacketKind {
	ks := make([]acq.PacketKind, len(s.pkts))
	for i, p := range s.pkts {
		ks[i] = p.Kind
	}
	return ks
}

func (s *recSink) count(k acq.PacketKind) int {
	n := 0
	for _, p := range s.pkts {
		if p.Kind == k {
			n++
		}
	}
	return n
}

func (s *recSink) logicSamples() int {
	n := 0
	for _, p := range s.pkts {
		if p.Kind == acq.KindLogicData {
			n += len(p.Data) / p.UnitSize
		}
	}
	return n
}

func quiet() acq.Option {
	return acq.WithLogger(log.New(io.Discard, "", 0))
}

func drive(t *testing.T, ctl *acq.Controller) {
	t.Helper()
	for i := 0; i < 10000; i++ {
		if !ctl.Active() {
			return
		}
		ctl.Tick()
	}
	t.Fatalf("session did not terminate (state=%v)", ctl.State())
}

func sameKinds(got, want []acq.PacketKind) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// A 900-word capture under a 1000-sample limit, with a soft trigger at
// sample 100: the sink must see one header, the 100 pre-trigger samples,
// the trigger mark, the 800 remaining samples and one end.
func TestControllerCapture(t *testing.T) {
	mem := make([]uint32, 900)
	for i := range mem {
		var v uint16
		if i >= 100 {
			v = 1
		}
		mem[i] = sim.Word(v, 1)
	}
	dev := sim.NewDevice(mem,
		sim.StatusStep{Flags: acq.StatusCapturing | acq.StatusMemAvail, Elapsed: 1},
		sim.StatusStep{Flags: acq.StatusTriggered, Elapsed: 1},
	)
	snk := new(recSink)
	ctl := acq.New(sim.NewModel(), dev, snk, quiet())

	err := ctl.Start(acq.Config{
		SampleRate:   1_000_000,
		Channels:     0xFFFF,
		TriggerMask:  0x0001,
		TriggerValue: 0x0001,
		CaptureRatio: 20,
		LimitSamples: 1000,
	})
	if err != nil {
		t.Fatalf("could not start: %+v", err)
	}
	drive(t, ctl)

	if err := ctl.Err(); err != nil {
		t.Fatalf("session failed: %+v", err)
	}
	want := []acq.PacketKind{
		acq.KindHeader,
		acq.KindLogicData,
		acq.KindTrigger,
		acq.KindLogicData,
		acq.KindEnd,
	}
	if got := snk.kinds(); !sameKinds(got, want) {
		t.Fatalf("invalid packet sequence:\ngot = %v\nwant= %v", got, want)
	}
	if got, want := len(snk.pkts[1].Data)/snk.pkts[1].UnitSize, 100; got != want {
		t.Fatalf("invalid pre-trigger samples: got=%d want=%d", got, want)
	}
	if got, want := snk.logicSamples(), 900; got != want {
		t.Fatalf("invalid total samples: got=%d want=%d", got, want)
	}
	hdr := snk.pkts[0]
	if hdr.Channels != 16 || hdr.UnitSize != 2 || hdr.Rate != 1_000_000 {
		t.Fatalf("invalid header: %+v", hdr)
	}
}

// A transport timeout while reading the capture status must end the
// session with exactly one end packet and no sample data.
func TestControllerStatusTimeout(t *testing.T) {
	dev := sim.NewDevice(nil,
		sim.StatusStep{Err: acq.ErrTimeout},
	)
	snk := new(recSink)
	ctl := acq.New(sim.NewModel(), dev, snk, quiet())

	err := ctl.Start(acq.Config{
		SampleRate:   1_000_000,
		Channels:     0xFFFF,
		LimitSamples: 1000,
	})
	if err != nil {
		t.Fatalf("could not start: %+v", err)
	}
	drive(t, ctl)

	if !errors.Is(ctl.Err(), acq.ErrTimeout) {
		t.Fatalf("invalid session error: %+v", ctl.Err())
	}
	want := []acq.PacketKind{acq.KindHeader, acq.KindEnd}
	if got := snk.kinds(); !sameKinds(got, want) {
		t.Fatalf("invalid packet sequence:\ngot = %v\nwant= %v", got, want)
	}
	if got, want := ctl.State(), acq.Idle; got != want {
		t.Fatalf("invalid final state: got=%v want=%v", got, want)
	}
}

// The decoder must stop at the sample limit even when the device memory
// holds more.
func TestControllerSampleLimit(t *testing.T) {
	mem := make([]uint32, 1500)
	for i := range mem {
		mem[i] = sim.Word(uint16(i), 1)
	}
	dev := sim.NewDevice(mem,
		sim.StatusStep{Flags: acq.StatusCapturing | acq.StatusMemAvail, Elapsed: 1},
		sim.StatusStep{Flags: acq.StatusTriggered, Elapsed: 1},
	)
	snk := new(recSink)
	ctl := acq.New(sim.NewModel(), dev, snk, quiet())

	err := ctl.Start(acq.Config{
		SampleRate:   1_000_000,
		Channels:     0xFFFF,
		LimitSamples: 1000,
	})
	if err != nil {
		t.Fatalf("could not start: %+v", err)
	}
	drive(t, ctl)

	if err := ctl.Err(); err != nil {
		t.Fatalf("session failed: %+v", err)
	}
	if got, want := snk.logicSamples(), 1000; got != want {
		t.Fatalf("invalid total samples: got=%d want=%d", got, want)
	}
	if got, want := snk.count(acq.KindEnd), 1; got != want {
		t.Fatalf("invalid number of end packets: got=%d want=%d", got, want)
	}
}

// A user stop skips the readout; repeated stops are harmless.
func TestControllerStop(t *testing.T) {
	mem := make([]uint32, 100)
	for i := range mem {
		mem[i] = sim.Word(uint16(i), 1)
	}
	dev := sim.NewDevice(mem)
	snk := new(recSink)
	ctl := acq.New(sim.NewModel(), dev, snk, quiet())

	err := ctl.Start(acq.Config{
		SampleRate:   1_000_000,
		Channels:     0xFFFF,
		LimitSamples: 1000,
	})
	if err != nil {
		t.Fatalf("could not start: %+v", err)
	}
	ctl.Stop()
	ctl.Stop()
	drive(t, ctl)
	ctl.Stop() // after the session ended, a no-op

	if err := ctl.Err(); err != nil {
		t.Fatalf("session failed: %+v", err)
	}
	want := []acq.PacketKind{acq.KindHeader, acq.KindEnd}
	if got := snk.kinds(); !sameKinds(got, want) {
		t.Fatalf("invalid packet sequence:\ngot = %v\nwant= %v", got, want)
	}
}

// A stop triggered by the duration limit still reads the capture back.
func TestControllerDurationLimit(t *testing.T) {
	mem := make([]uint32, 100)
	for i := range mem {
		mem[i] = sim.Word(uint16(i), 1)
	}
	dev := sim.NewDevice(mem,
		sim.StatusStep{Flags: acq.StatusCapturing | acq.StatusMemAvail, Elapsed: 25},
	)
	snk := new(recSink)
	ctl := acq.New(sim.NewModel(), dev, snk, quiet())

	err := ctl.Start(acq.Config{
		SampleRate:  1_000_000,
		Channels:    0xFFFF,
		LimitMillis: 20,
	})
	if err != nil {
		t.Fatalf("could not start: %+v", err)
	}
	drive(t, ctl)

	if err := ctl.Err(); err != nil {
		t.Fatalf("session failed: %+v", err)
	}
	if got, want := snk.logicSamples(), 100; got != want {
		t.Fatalf("invalid total samples: got=%d want=%d", got, want)
	}
	if got, want := snk.count(acq.KindEnd), 1; got != want {
		t.Fatalf("invalid number of end packets: got=%d want=%d", got, want)
	}
}

// A device memory overflow aborts the capture with ErrOverflow, still
// closing the session with one end packet.
func TestControllerOverflow(t *testing.T) {
	dev := sim.NewDevice(nil,
		sim.StatusStep{Flags: acq.StatusOverflow},
	)
	snk := new(recSink)
	ctl := acq.New(sim.NewModel(), dev, snk, quiet())

	err := ctl.Start(acq.Config{
		SampleRate:   1_000_000,
		Channels:     0xFFFF,
		LimitSamples: 1000,
	})
	if err != nil {
		t.Fatalf("could not start: %+v", err)
	}
	drive(t, ctl)

	if !errors.Is(ctl.Err(), acq.ErrOverflow) {
		t.Fatalf("invalid session error: %+v", ctl.Err())
	}
	want := []acq.PacketKind{acq.KindHeader, acq.KindEnd}
	if got := snk.kinds(); !sameKinds(got, want) {
		t.Fatalf("invalid packet sequence:\ngot = %v\nwant= %v", got, want)
	}
}

// An empty capture memory yields a header and an end, nothing else.
func TestControllerEmptyCapture(t *testing.T) {
	dev := sim.NewDevice(nil,
		sim.StatusStep{Flags: acq.StatusTriggered},
	)
	snk := new(recSink)
	ctl := acq.New(sim.NewModel(), dev, snk, quiet())

	err := ctl.Start(acq.Config{
		SampleRate:   1_000_000,
		Channels:     0xFFFF,
		LimitSamples: 1000,
	})
	if err != nil {
		t.Fatalf("could not start: %+v", err)
	}
	drive(t, ctl)

	if err := ctl.Err(); err != nil {
		t.Fatalf("session failed: %+v", err)
	}
	want := []acq.PacketKind{acq.KindHeader, acq.KindEnd}
	if got := snk.kinds(); !sameKinds(got, want) {
		t.Fatalf("invalid packet sequence:\ngot = %v\nwant= %v", got, want)
	}
}

// With framing enabled the sample stream is bracketed into fixed-size
// frames.
func TestControllerFrames(t *testing.T) {
	mem := make([]uint32, 900)
	for i := range mem {
		mem[i] = sim.Word(uint16(i), 1)
	}
	dev := sim.NewDevice(mem,
		sim.StatusStep{Flags: acq.StatusCapturing | acq.StatusMemAvail, Elapsed: 1},
		sim.StatusStep{Flags: acq.StatusTriggered, Elapsed: 1},
	)
	snk := new(recSink)
	ctl := acq.New(sim.NewModel(), dev, snk, quiet())

	err := ctl.Start(acq.Config{
		SampleRate:   1_000_000,
		Channels:     0xFFFF,
		LimitSamples: 1000,
		FrameSamples: 300,
	})
	if err != nil {
		t.Fatalf("could not start: %+v", err)
	}
	drive(t, ctl)

	if err := ctl.Err(); err != nil {
		t.Fatalf("session failed: %+v", err)
	}
	if got, want := snk.count(acq.KindFrameBegin), 3; got != want {
		t.Fatalf("invalid number of frame-begin packets: got=%d want=%d", got, want)
	}
	if got, want := snk.count(acq.KindFrameEnd), 3; got != want {
		t.Fatalf("invalid number of frame-end packets: got=%d want=%d", got, want)
	}
	if got, want := snk.logicSamples(), 900; got != want {
		t.Fatalf("invalid total samples: got=%d want=%d", got, want)
	}
}

// An analog family converts the decoded samples to volts.
func TestControllerAnalog(t *testing.T) {
	neg2 := int16(-2)
	mem := []uint32{
		sim.Word(2, 1),
		sim.Word(4, 1),
		sim.Word(uint16(neg2), 1),
		sim.Word(0, 1),
	}
	dev := sim.NewDevice(mem,
		sim.StatusStep{Flags: acq.StatusTriggered},
	)
	snk := new(recSink)
	ctl := acq.New(sim.NewModel(sim.WithAnalog(0.5)), dev, snk, quiet())

	err := ctl.Start(acq.Config{
		SampleRate:   1_000_000,
		Channels:     0xFFFF,
		LimitSamples: 1000,
	})
	if err != nil {
		t.Fatalf("could not start: %+v", err)
	}
	drive(t, ctl)

	if err := ctl.Err(); err != nil {
		t.Fatalf("session failed: %+v", err)
	}
	if got, want := snk.count(acq.KindLogicData), 0; got != want {
		t.Fatalf("unexpected logic packets: %d", got)
	}
	var vals []float64
	for _, p := range snk.pkts {
		if p.Kind == acq.KindAnalogData {
			vals = append(vals, p.Values...)
		}
	}
	want := []float64{1, 2, -1, 0}
	if len(vals) != len(want) {
		t.Fatalf("invalid number of values: got=%d want=%d", len(vals), len(want))
	}
	for i := range vals {
		if vals[i] != want[i] {
			t.Fatalf("invalid value %d: got=%v want=%v", i, vals[i], want[i])
		}
	}
}

// Starting while a session runs is refused.
func TestControllerBusy(t *testing.T) {
	dev := sim.NewDevice(nil)
	ctl := acq.New(sim.NewModel(), dev, new(recSink), quiet())

	cfg := acq.Config{
		SampleRate:   1_000_000,
		Channels:     0xFFFF,
		LimitSamples: 1000,
	}
	if err := ctl.Start(cfg); err != nil {
		t.Fatalf("could not start: %+v", err)
	}
	if err := ctl.Start(cfg); !errors.Is(err, acq.ErrBusy) {
		t.Fatalf("invalid error: got=%v want=%v", err, acq.ErrBusy)
	}
	ctl.Stop()
	drive(t, ctl)
}

// A duration-only capture on the external clock must not turn the
// device sample maximum into a pre-trigger capacity: the ring stays
// empty and the pre-trigger samples are dropped.
func TestControllerDurationOnlyTrigger(t *testing.T) {
	mem := make([]uint32, 40)
	for i := range mem {
		var v uint16
		if i >= 10 {
			v = 1
		}
		mem[i] = sim.Word(v, 1)
	}
	dev := sim.NewDevice(mem,
		sim.StatusStep{Flags: acq.StatusCapturing | acq.StatusMemAvail, Elapsed: 25},
	)
	snk := new(recSink)
	ctl := acq.New(sim.NewModel(), dev, snk, quiet())

	err := ctl.Start(acq.Config{
		Clock:        acq.ClockExternalRising,
		Channels:     0xFFFF,
		TriggerMask:  0x0001,
		TriggerValue: 0x0001,
		CaptureRatio: 20,
		LimitMillis:  10,
	})
	if err != nil {
		t.Fatalf("could not start: %+v", err)
	}
	drive(t, ctl)

	if err := ctl.Err(); err != nil {
		t.Fatalf("session failed: %+v", err)
	}
	want := []acq.PacketKind{
		acq.KindHeader,
		acq.KindTrigger,
		acq.KindLogicData,
		acq.KindEnd,
	}
	if got := snk.kinds(); !sameKinds(got, want) {
		t.Fatalf("invalid packet sequence:\ngot = %v\nwant= %v", got, want)
	}
	if got, want := snk.logicSamples(), 30; got != want {
		t.Fatalf("invalid total samples: got=%d want=%d", got, want)
	}
}

// A sample limit far beyond the capture memory must not be turned into
// a pre-trigger ring of that size: the ring is bounded by the device
// memory.
func TestControllerPreTriggerBound(t *testing.T) {
	mem := make([]uint32, 200)
	for i := range mem {
		var v uint16
		if i >= 50 {
			v = 1
		}
		mem[i] = sim.Word(v, 1)
	}
	dev := sim.NewDevice(mem,
		sim.StatusStep{Flags: acq.StatusCapturing | acq.StatusMemAvail, Elapsed: 1},
		sim.StatusStep{Flags: acq.StatusTriggered, Elapsed: 1},
	)
	snk := new(recSink)
	ctl := acq.New(sim.NewModel(), dev, snk, quiet())

	err := ctl.Start(acq.Config{
		SampleRate:   1_000_000,
		Channels:     0xFFFF,
		TriggerMask:  0x0001,
		TriggerValue: 0x0001,
		CaptureRatio: 100,
		LimitSamples: 1 << 32,
	})
	if err != nil {
		t.Fatalf("could not start: %+v", err)
	}
	drive(t, ctl)

	if err := ctl.Err(); err != nil {
		t.Fatalf("session failed: %+v", err)
	}
	want := []acq.PacketKind{
		acq.KindHeader,
		acq.KindLogicData,
		acq.KindTrigger,
		acq.KindLogicData,
		acq.KindEnd,
	}
	if got := snk.kinds(); !sameKinds(got, want) {
		t.Fatalf("invalid packet sequence:\ngot = %v\nwant= %v", got, want)
	}
	if got, want := len(snk.pkts[1].Data)/snk.pkts[1].UnitSize, 50; got != want {
		t.Fatalf("invalid pre-trigger samples: got=%d want=%d", got, want)
	}
	if got, want := snk.logicSamples(), 200; got != want {
		t.Fatalf("invalid total samples: got=%d want=%d", got, want)
	}
}

// Whatever transfer fails, the session must terminate, return to idle
// and emit exactly one end packet.
func TestControllerTermination(t *testing.T) {
	for failAt := 1; failAt <= 12; failAt++ {
		mem := make([]uint32, 200)
		for i := range mem {
			mem[i] = sim.Word(uint16(i), 1)
		}
		dev := sim.NewDevice(mem,
			sim.StatusStep{Flags: acq.StatusCapturing | acq.StatusMemAvail, Elapsed: 1},
			sim.StatusStep{Flags: acq.StatusTriggered, Elapsed: 1},
		)
		dev.WriteErrAt = failAt
		snk := new(recSink)
		ctl := acq.New(sim.NewModel(), dev, snk, quiet())

		err := ctl.Start(acq.Config{
			SampleRate:   1_000_000,
			Channels:     0xFFFF,
			LimitSamples: 1000,
		})
		if err != nil {
			t.Fatalf("failAt=%d: could not start: %+v", failAt, err)
		}
		drive(t, ctl)

		if got, want := snk.count(acq.KindEnd), 1; got != want {
			t.Fatalf("failAt=%d: invalid number of end packets: got=%d want=%d", failAt, got, want)
		}
		if got, want := ctl.State(), acq.Idle; got != want {
			t.Fatalf("failAt=%d: invalid final state: got=%v want=%v", failAt, got, want)
		}
	}
}
