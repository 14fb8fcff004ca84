// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lwla1034

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/go-daq/lwla/acq"
)

// pack builds the wire form of the given 36-bit memory words: slices of
// eight 32-bit low halves followed by one word of high nibbles.
func pack(words ...uint64) []byte {
	n := (len(words) + 7) / 8
	p := make([]byte, n*sliceBytes)
	le := binary.LittleEndian
	for i, w := range words {
		slice := p[(i/8)*sliceBytes:]
		si := i % 8
		le.PutUint32(slice[4*si:], uint32(w))
		hi := le.Uint32(slice[32:36])
		hi |= uint32(w>>32&0xF) << (28 - 4*si)
		le.PutUint32(slice[32:36], hi)
	}
	return p
}

func TestLayoutWord(t *testing.T) {
	words := []uint64{
		0x1_00000001,
		0x2_00000002,
		0x3_DEADBEEF,
		0x4_00000000,
		0x5_FFFFFFFF,
		0x6_12345678,
		0x7_87654321,
		0x8_0F0F0F0F,
		// second slice
		0xF_CAFEBABE,
		0x0_00000042,
	}
	chunk := pack(words...)

	var lay layout
	for i, want := range words {
		if got := lay.Word(chunk, i); got != want {
			t.Errorf("word %d: got=%#x want=%#x", i, got, want)
		}
	}
}

func TestLayoutSplit(t *testing.T) {
	var lay layout
	for _, tc := range []struct {
		w      uint64
		sample uint64
		run    uint64
		ext    bool
	}{
		{0, 0, 1, false},
		{uint64(1)<<34 - 1, uint64(1)<<34 - 1, 1, false},
		{uint64(1) << 34, 0, 2, false},
		{uint64(1)<<34 | 0x42, 0x42, 2, false},
		{uint64(1) << 35, 0, 1, true},
		{uint64(1)<<35 | uint64(1)<<34 | 7, 7, 2, true},
	} {
		sample, run, ext := lay.Split(tc.w)
		if sample != tc.sample || run != tc.run || ext != tc.ext {
			t.Errorf("w=%#x: got=(%d,%d,%v) want=(%d,%d,%v)",
				tc.w, sample, run, ext, tc.sample, tc.run, tc.ext)
		}
	}
}

func TestReadout(t *testing.T) {
	m := New()

	if start, stop := m.ReadWindow(100); start != readStartAddr || stop != 100 {
		t.Fatalf("invalid read window: got=(%d,%d) want=(%d,100)", start, stop, readStartAddr)
	}
	for _, tc := range []struct {
		count uint64
		want  int
	}{
		{5, 36},
		{8, 36},
		{9, 72},
		{224, 1008},
	} {
		if got := m.RespLen(tc.count); got != tc.want {
			t.Errorf("resp-len(%d): got=%d want=%d", tc.count, got, tc.want)
		}
	}
	if got, want := m.ReadGranularity(), uint64(8); got != want {
		t.Fatalf("invalid read granularity: got=%d want=%d", got, want)
	}
}

func statusBlock(fill, stop, duration, trigTime, status uint64) []byte {
	p := make([]byte, statusBlockCount*8)
	le := binary.LittleEndian
	le.PutUint64(p[0:], fill)
	le.PutUint64(p[8:], stop)
	le.PutUint64(p[16:], duration)
	le.PutUint64(p[24:], trigTime)
	le.PutUint64(p[32:], status)
	return p
}

func TestParseStatus(t *testing.T) {
	m := New()

	if got, want := m.StatusLen(), 40; got != want {
		t.Fatalf("invalid status length: got=%d want=%d", got, want)
	}

	// the raw device flags sit one bit below the common layout
	raw := uint64(acq.StatusTriggered|acq.StatusMemAvail) >> 1
	cfg := acq.Config{SampleRate: 10_000_000}

	st, err := m.ParseStatus(statusBlock(1234, 0, 1000, 0, raw), cfg)
	if err != nil {
		t.Fatalf("could not parse status: %+v", err)
	}
	if !st.Flags.Triggered() || !st.Flags.MemAvail() || st.Flags.Overflow() {
		t.Fatalf("invalid flags: %#x", st.Flags)
	}
	if st.Fill != 1234 {
		t.Fatalf("invalid fill: got=%d want=1234", st.Fill)
	}
	if st.Elapsed != 1000 {
		t.Fatalf("invalid elapsed: got=%d want=1000", st.Elapsed)
	}

	// with the divider bypassed the duration counter runs slow by 4/5
	boost := acq.Config{SampleRate: boostClock}
	st, err = m.ParseStatus(statusBlock(0, 0, 1000, 0, raw), boost)
	if err != nil {
		t.Fatalf("could not parse boosted status: %+v", err)
	}
	if st.Elapsed != 800 {
		t.Fatalf("invalid scaled elapsed: got=%d want=800", st.Elapsed)
	}

	if _, err := m.ParseStatus(make([]byte, 8), cfg); err == nil {
		t.Fatalf("expected error for a short status block")
	}
}

func TestParseLength(t *testing.T) {
	m := New()
	resp := make([]byte, 4)
	binary.LittleEndian.PutUint32(resp, 98765)
	fill, err := m.ParseLength(resp)
	if err != nil {
		t.Fatalf("could not parse length: %+v", err)
	}
	if fill != 98765 {
		t.Fatalf("invalid fill: got=%d want=98765", fill)
	}
	if _, err := m.ParseLength(nil); err == nil {
		t.Fatalf("expected error for an empty length reply")
	}
}

// regDevice interprets register writes and long-register reads, enough
// to serve a probe.
type regDevice struct {
	regs  map[uint16]uint32
	lregs map[uint32]uint64
	reply []byte
}

func newRegDevice() *regDevice {
	return &regDevice{
		regs:  make(map[uint16]uint32),
		lregs: make(map[uint32]uint64),
	}
}

func (d *regDevice) Write(p []byte) (int, error) {
	le := binary.LittleEndian
	switch le.Uint16(p[0:2]) {
	case acq.CmdWriteReg:
		addr := le.Uint16(p[2:4])
		val := uint32(le.Uint16(p[4:6])) | uint32(le.Uint16(p[6:8]))<<16
		d.regs[addr] = val
		if addr == regLongAddr {
			d.lregs[val] = uint64(d.regs[regLongLow]) |
				uint64(d.regs[regLongHigh])<<32
		}
	case acq.CmdReadLRegs:
		start := uint32(le.Uint16(p[2:4]))
		count := int(le.Uint16(p[4:6]))
		d.reply = make([]byte, 8*count)
		for i := 0; i < count; i++ {
			le.PutUint64(d.reply[8*i:], d.lregs[start+uint32(i)])
		}
	}
	return len(p), nil
}

func (d *regDevice) Read(p []byte) (int, error) { return copy(p, d.reply), nil }

func (d *regDevice) SubmitWrite(p []byte, done func(acq.Outcome)) error { panic("not used") }
func (d *regDevice) SubmitRead(p []byte, done func(acq.Outcome)) error  { panic("not used") }
func (d *regDevice) Poll(timeout time.Duration) (int, error)            { return 0, nil }
func (d *regDevice) Close() error                                       { return nil }

func TestProbe(t *testing.T) {
	dev := newRegDevice()
	if err := New().Probe(dev); err != nil {
		t.Fatalf("could not probe: %+v", err)
	}
	if got := dev.lregs[lregTestID]; got != testID {
		t.Fatalf("invalid test register: got=%#x want=%#x", got, uint64(testID))
	}
}

func TestSetup(t *testing.T) {
	m := New()
	cfg := acq.Config{
		Clock:      acq.ClockInternal,
		SampleRate: 10_000_000,
		Channels:   0x3_FFFF_FFFF,
	}
	frames, err := m.Setup(cfg)
	if err != nil {
		t.Fatalf("could not build setup: %+v", err)
	}

	last := frames[len(frames)-1]
	le := binary.LittleEndian
	if got, want := le.Uint16(last[0:2]), acq.CmdCapSetup; got != want {
		t.Fatalf("invalid setup opcode: got=%d want=%d", got, want)
	}
	mask := uint64(le.Uint16(last[2:4])) |
		uint64(le.Uint16(last[4:6]))<<16 |
		uint64(le.Uint16(last[6:8]))<<32
	if mask != cfg.Channels {
		t.Fatalf("invalid channel mask: got=%#x want=%#x", mask, cfg.Channels)
	}
	div := uint32(le.Uint16(last[10:12])) | uint32(le.Uint16(last[12:14]))<<16
	if got, want := div, uint32(baseClock/cfg.SampleRate-1); got != want {
		t.Fatalf("invalid divider: got=%d want=%d", got, want)
	}
}
