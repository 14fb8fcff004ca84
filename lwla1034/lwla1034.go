// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lwla1034 implements the 34-channel family with 36-bit packed
// sample memory and hardware run-length encoding.
package lwla1034 // import "github.com/go-daq/lwla/lwla1034"

import (
	"encoding/binary"

	"golang.org/x/xerrors"

	"github.com/go-daq/lwla/acq"
)

const (
	numChannels = 34
	unitSize    = 5 // bytes per 34-channel sample

	memoryWords = 256 * 1024

	baseClock  = 100_000_000 // Hz at the clock divider input
	boostClock = 125_000_000 // Hz with the divider bypassed

	maxSamples = uint64(1) << 48
	maxMillis  = uint64(1) << 32

	// memory reads start past the meta words and run in slices of
	// 8 packed words (9 transferred 32-bit words each)
	readStartAddr  = 4
	readChunkWords = 28 * 8
	sliceBytes     = 9 * 4
)

// short register addresses
const (
	regDivBypass = 0x1010
	regClockSel  = 0x1020
	regMemCtrl   = 0x1074
	regMemMode   = 0x1078
	regMemFill   = 0x1070

	// long (64-bit) registers are written through a 3-register window
	regLongLow  = 0x10cc
	regLongHigh = 0x10d0
	regLongAddr = 0x10c8
)

// long register numbers
const (
	lregTrigMask = 1
	lregTrigVal  = 2
	lregTrigEdge = 3
	lregPreFill  = 4
	lregMemFill  = 5
	lregMemStop  = 6
	lregDuration = 7
	lregTrigTime = 8
	lregStatus   = 9
	lregCapCtrl  = 10
	lregTestID   = 12
)

// capture control bits
const (
	ctlRun      = 1 << 0
	ctlClockExt = 1 << 1
	ctlClockInv = 1 << 2
	ctlTrigEna  = 1 << 3
)

const (
	statusBlockStart = lregMemFill
	statusBlockCount = 5

	testID = 0x1234567887654321
)

// Model implements acq.Model for this family.
type Model struct{}

// New returns the family descriptor.
func New() *Model { return &Model{} }

func (*Model) Name() string { return "lwla1034" }

func (*Model) Caps() acq.Caps {
	return acq.Caps{
		Channels:      numChannels,
		MemoryWords:   memoryWords,
		BaseClock:     baseClock,
		MaxSampleRate: boostClock,
		MaxSamples:    maxSamples,
		MaxMillis:     maxMillis,
	}
}

func (*Model) Layout(cfg acq.Config) acq.RawLayout { return layout{} }

func bypass(cfg acq.Config) bool {
	return cfg.Clock == acq.ClockInternal && cfg.SampleRate > baseClock
}

// Probe writes the well-known pattern to the test register and reads it
// back. The first exchange after power-up may come back short, so the
// whole exchange is retried.
func (m *Model) Probe(t acq.Transport) error {
	frames := longRegProgram(lregTestID, testID)
	for _, rv := range frames {
		if _, err := t.Write(acq.WriteRegFrame(rv.Addr, rv.Val)); err != nil {
			return xerrors.Errorf("lwla1034: could not write test register: %w", err)
		}
	}
	cmd := acq.LRegsFrame(acq.CmdReadLRegs, lregTestID, 1)
	resp := make([]byte, 8)
	n, err := acq.Command(t, cmd, resp, 2)
	if err != nil {
		return xerrors.Errorf("lwla1034: could not read test register: %w", err)
	}
	if n != len(resp) {
		return xerrors.Errorf("lwla1034: short test register reply: got=%d want=%d", n, len(resp))
	}
	if got := binary.LittleEndian.Uint64(resp); got != testID {
		return xerrors.Errorf("lwla1034: test register mismatch: got=%#x want=%#x", got, uint64(testID))
	}
	return nil
}

// longRegProgram writes one 64-bit register through the long-register
// window: low half, high half, then the register number to commit.
func longRegProgram(lreg uint16, v uint64) []acq.RegVal {
	return []acq.RegVal{
		{Addr: regLongLow, Val: uint32(v)},
		{Addr: regLongHigh, Val: uint32(v >> 32)},
		{Addr: regLongAddr, Val: uint32(lreg)},
	}
}

func (m *Model) Setup(cfg acq.Config) ([][]byte, error) {
	var frames [][]byte

	byp := uint32(0)
	if bypass(cfg) {
		byp = 1
	}
	frames = append(frames, acq.WriteRegFrame(regDivBypass, byp))

	clk := uint32(0)
	switch cfg.Clock {
	case acq.ClockExternalRising:
		clk = 1
	case acq.ClockExternalFalling:
		clk = 3
	}
	frames = append(frames, acq.WriteRegFrame(regClockSel, clk))

	for _, prog := range [][]acq.RegVal{
		longRegProgram(lregTrigMask, cfg.TriggerMask),
		longRegProgram(lregTrigVal, cfg.TriggerValue),
		longRegProgram(lregTrigEdge, cfg.TriggerEdges),
		longRegProgram(lregPreFill, cfg.PreTriggerSamples()),
	} {
		for _, rv := range prog {
			frames = append(frames, acq.WriteRegFrame(rv.Addr, rv.Val))
		}
	}

	frames = append(frames, m.capSetupFrame(cfg))
	return frames, nil
}

// capSetupFrame builds the capture setup block: channel enable mask and
// clock divider count.
func (m *Model) capSetupFrame(cfg acq.Config) []byte {
	var div uint32
	if cfg.Clock == acq.ClockInternal && !bypass(cfg) {
		div = uint32(baseClock/cfg.SampleRate) - 1
	}
	p := make([]byte, 14)
	le := binary.LittleEndian
	le.PutUint16(p[0:2], acq.CmdCapSetup)
	le.PutUint16(p[2:4], uint16(cfg.Channels))
	le.PutUint16(p[4:6], uint16(cfg.Channels>>16))
	le.PutUint16(p[6:8], uint16(cfg.Channels>>32))
	le.PutUint16(p[8:10], 0)
	le.PutUint16(p[10:12], uint16(div))
	le.PutUint16(p[12:14], uint16(div>>16))
	return p
}

func (m *Model) StartSeq(cfg acq.Config) []acq.RegVal {
	ctl := uint32(ctlRun)
	if cfg.Clock != acq.ClockInternal {
		ctl |= ctlClockExt
		if cfg.Clock == acq.ClockExternalFalling {
			ctl |= ctlClockInv
		}
	}
	if cfg.TriggerMask != 0 || cfg.TriggerEdges != 0 {
		ctl |= ctlTrigEna
	}
	seq := longRegProgram(lregCapCtrl, uint64(ctl))
	return append(seq, acq.RegVal{Addr: regMemCtrl, Val: 1})
}

func (m *Model) StopSeq() []acq.RegVal {
	seq := longRegProgram(lregCapCtrl, 0)
	return append(seq,
		acq.RegVal{Addr: regMemCtrl, Val: 0},
		acq.RegVal{Addr: regDivBypass, Val: 0},
	)
}

// readout runs with the divider bypassed for a faster memory clock
func (m *Model) ReadPrepareSeq() []acq.RegVal {
	return []acq.RegVal{
		{Addr: regDivBypass, Val: 1},
		{Addr: regMemCtrl, Val: 2},
		{Addr: regMemMode, Val: 4},
	}
}

func (m *Model) ReadEndSeq() []acq.RegVal {
	return []acq.RegVal{
		{Addr: regDivBypass, Val: 0},
	}
}

func (m *Model) StatusCmd() []byte {
	return acq.LRegsFrame(acq.CmdReadLRegs, statusBlockStart, statusBlockCount)
}

func (m *Model) StatusLen() int { return statusBlockCount * 8 }

func (m *Model) ParseStatus(resp []byte, cfg acq.Config) (acq.Status, error) {
	if len(resp) != m.StatusLen() {
		return acq.Status{}, xerrors.Errorf("lwla1034: invalid status block length: %d", len(resp))
	}
	le := binary.LittleEndian
	lreg := func(n uint16) uint64 {
		return le.Uint64(resp[(n-statusBlockStart)*8:])
	}
	st := acq.Status{
		Fill:    lreg(lregMemFill),
		Elapsed: lreg(lregDuration),
	}
	// shift the raw bits up to the common flag layout
	st.Flags = acq.StatusFlags(lreg(lregStatus)&0x3F) << 1

	if bypass(cfg) {
		// with the divider bypassed the device runs at 125 MHz but the
		// duration counter still ticks at the 100 MHz base
		st.Elapsed = st.Elapsed * 4 / 5
	}
	return st, nil
}

func (m *Model) LengthCmd() []byte { return acq.ReadRegFrame(regMemFill) }

func (m *Model) LengthLen() int { return 4 }

func (m *Model) ParseLength(resp []byte) (uint64, error) {
	if len(resp) != 4 {
		return 0, xerrors.Errorf("lwla1034: invalid length reply: %d bytes", len(resp))
	}
	return uint64(acq.RegValue(resp)), nil
}

func (m *Model) ReadWindow(fill uint64) (start, stop uint64) {
	return readStartAddr, fill
}

func (m *Model) ReadGranularity() uint64 { return 8 }

func (m *Model) ReadChunkWords() uint64 { return readChunkWords }

func (m *Model) ReadMemCmd(addr, count uint64) []byte {
	return acq.ReadMemFrame(acq.CmdReadMem36, uint32(addr), uint32(count))
}

func (m *Model) RespLen(count uint64) int {
	return int((count + 7) / 8 * sliceBytes)
}

// layout unpacks slices of 8 packed 36-bit words: eight 32-bit words
// holding the low halves followed by one word of high nibbles.
type layout struct{}

func (layout) UnitSize() int { return unitSize }

func (layout) Values(words int) int { return words }

func (layout) Word(chunk []byte, i int) uint64 {
	le := binary.LittleEndian
	slice := chunk[(i/8)*sliceBytes:]
	si := i % 8
	hi := le.Uint32(slice[32:36])
	return uint64(le.Uint32(slice[4*si:])) |
		uint64(hi)<<(4*si+4)&(0xF<<32)
}

func (layout) Split(w uint64) (sample, run uint64, ext bool) {
	sample = w & (uint64(1)<<34 - 1)
	run = (w>>34)&1 + 1
	ext = w&(uint64(1)<<35) != 0
	return sample, run, ext
}
