// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lwla1016 implements the 16-channel family with 32-bit sample
// memory and optional run-length encoding.
package lwla1016 // import "github.com/go-daq/lwla/lwla1016"

import (
	"encoding/binary"
	"math/bits"

	"golang.org/x/xerrors"

	"github.com/go-daq/lwla/acq"
)

const (
	numChannels = 16
	unitSize    = 2

	memoryWords = 128 * 1024

	baseClock     = 100_000_000
	maxSampleRate = 100_000_000

	maxSamples = uint64(1) << 40
	maxMillis  = uint64(1) << 32

	readStartAddr  = 2
	readChunkWords = 250
)

// register addresses
const (
	regChanMask = 0x1000
	regPreFill  = 0x1004
	regTrigMask = 0x1008
	regTrigVal  = 0x100c
	regTrigEdge = 0x1014
	regDivider  = 0x1018
	regClockSel = 0x1020
	regTestEcho = 0x1044
	regMemFill  = 0x1070
	regMemCtrl  = 0x1074
	regMemMode  = 0x1078
	regCapCtrl  = 0x1088
)

// capture control bits
const (
	ctlRun      = 1 << 0
	ctlRLE      = 1 << 1
	ctlClockExt = 1 << 2
	ctlClockInv = 1 << 3
	ctlTrigEna  = 1 << 4
)

const (
	statusRespLen = 12 // flags, fill, duration; 32 bits each

	testPattern = 0x12345678
)

// Model implements acq.Model for this family.
type Model struct {
	rle bool
}

// Option customizes the family descriptor.
type Option func(*Model)

// WithRLE selects run-length encoded capture (the default). Without it
// the device packs two plain samples per memory word.
func WithRLE(on bool) Option {
	return func(m *Model) { m.rle = on }
}

// New returns the family descriptor.
func New(opts ...Option) *Model {
	m := &Model{rle: true}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (*Model) Name() string { return "lwla1016" }

func (*Model) Caps() acq.Caps {
	return acq.Caps{
		Channels:      numChannels,
		MemoryWords:   memoryWords,
		BaseClock:     baseClock,
		MaxSampleRate: maxSampleRate,
		MaxSamples:    maxSamples,
		MaxMillis:     maxMillis,
	}
}

func (m *Model) Layout(cfg acq.Config) acq.RawLayout {
	if m.rle {
		return rleLayout{}
	}
	return rawLayout{}
}

// Probe writes a pattern to the echo register and reads it back.
func (m *Model) Probe(t acq.Transport) error {
	if _, err := t.Write(acq.WriteRegFrame(regTestEcho, testPattern)); err != nil {
		return xerrors.Errorf("lwla1016: could not write echo register: %w", err)
	}
	resp := make([]byte, 4)
	n, err := acq.Command(t, acq.ReadRegFrame(regTestEcho), resp, 2)
	if err != nil {
		return xerrors.Errorf("lwla1016: could not read echo register: %w", err)
	}
	if n != len(resp) {
		return xerrors.Errorf("lwla1016: short echo reply: got=%d want=%d", n, len(resp))
	}
	if got := acq.RegValue(resp); got != testPattern {
		return xerrors.Errorf("lwla1016: echo mismatch: got=%#x want=%#x", got, uint32(testPattern))
	}
	return nil
}

func (m *Model) Setup(cfg acq.Config) ([][]byte, error) {
	var div uint32
	if cfg.Clock == acq.ClockInternal {
		div = uint32(baseClock/cfg.SampleRate) - 1
	}
	clk := uint32(0)
	switch cfg.Clock {
	case acq.ClockExternalRising:
		clk = 1
	case acq.ClockExternalFalling:
		clk = 3
	}
	frames := [][]byte{
		acq.WriteRegFrame(regChanMask, uint32(cfg.Channels)),
		acq.WriteRegFrame(regPreFill, uint32(cfg.PreTriggerSamples())),
		acq.WriteRegFrame(regTrigMask, uint32(cfg.TriggerMask)),
		acq.WriteRegFrame(regTrigVal, uint32(cfg.TriggerValue)),
		acq.WriteRegFrame(regTrigEdge, uint32(cfg.TriggerEdges)),
		acq.WriteRegFrame(regDivider, div),
		acq.WriteRegFrame(regClockSel, clk),
	}
	return frames, nil
}

func (m *Model) ctlBits(cfg acq.Config) uint32 {
	ctl := uint32(ctlRun)
	if m.rle {
		ctl |= ctlRLE
	}
	if cfg.Clock != acq.ClockInternal {
		ctl |= ctlClockExt
		if cfg.Clock == acq.ClockExternalFalling {
			ctl |= ctlClockInv
		}
	}
	if cfg.TriggerMask != 0 || cfg.TriggerEdges != 0 {
		ctl |= ctlTrigEna
	}
	return ctl
}

func (m *Model) StartSeq(cfg acq.Config) []acq.RegVal {
	return []acq.RegVal{
		{Addr: regMemCtrl, Val: 1},
		{Addr: regCapCtrl, Val: m.ctlBits(cfg)},
	}
}

func (m *Model) StopSeq() []acq.RegVal {
	return []acq.RegVal{
		{Addr: regCapCtrl, Val: 0},
		{Addr: regMemCtrl, Val: 0},
	}
}

func (m *Model) ReadPrepareSeq() []acq.RegVal {
	return []acq.RegVal{
		{Addr: regMemCtrl, Val: 2},
		{Addr: regMemMode, Val: 4},
	}
}

func (m *Model) ReadEndSeq() []acq.RegVal {
	return []acq.RegVal{
		{Addr: regMemMode, Val: 0},
	}
}

func (m *Model) StatusCmd() []byte {
	return acq.LRegsFrame(acq.CmdCapStatus, 0, 3)
}

func (m *Model) StatusLen() int { return statusRespLen }

func (m *Model) ParseStatus(resp []byte, cfg acq.Config) (acq.Status, error) {
	if len(resp) != statusRespLen {
		return acq.Status{}, xerrors.Errorf("lwla1016: invalid status block length: %d", len(resp))
	}
	le := binary.LittleEndian
	// the raw bits already use the common layout
	return acq.Status{
		Flags:   acq.StatusFlags(le.Uint32(resp[0:4]) & 0x7F),
		Fill:    uint64(le.Uint32(resp[4:8])),
		Elapsed: uint64(le.Uint32(resp[8:12])),
	}, nil
}

func (m *Model) LengthCmd() []byte { return acq.ReadRegFrame(regMemFill) }

func (m *Model) LengthLen() int { return 4 }

func (m *Model) ParseLength(resp []byte) (uint64, error) {
	if len(resp) != 4 {
		return 0, xerrors.Errorf("lwla1016: invalid length reply: %d bytes", len(resp))
	}
	return uint64(acq.RegValue(resp)), nil
}

func (m *Model) ReadWindow(fill uint64) (start, stop uint64) {
	if fill == 0 {
		return readStartAddr, readStartAddr
	}
	// The fill count includes one trailing word that is not part of
	// the sample data; it is never read back.
	return readStartAddr, readStartAddr + fill - 1
}

func (m *Model) ReadGranularity() uint64 { return 2 }

func (m *Model) ReadChunkWords() uint64 { return readChunkWords }

func (m *Model) ReadMemCmd(addr, count uint64) []byte {
	return acq.ReadMemFrame(acq.CmdReadMem, uint32(addr), uint32(count))
}

func (m *Model) RespLen(count uint64) int { return int(count) * 4 }

// rawLayout packs two plain 16-bit samples per word, halves swapped.
type rawLayout struct{}

func (rawLayout) UnitSize() int { return unitSize }

func (rawLayout) Values(words int) int { return 2 * words }

func (rawLayout) Word(chunk []byte, i int) uint64 {
	w := bits.RotateLeft32(binary.LittleEndian.Uint32(chunk[4*(i/2):]), 16)
	if i%2 == 0 {
		return uint64(w & 0xFFFF)
	}
	return uint64(w >> 16)
}

func (rawLayout) Split(w uint64) (sample, run uint64, ext bool) {
	return w, 1, false
}

// rleLayout stores the sample in the high half and the run length,
// less one, in the low half of each word.
type rleLayout struct{}

func (rleLayout) UnitSize() int { return unitSize }

func (rleLayout) Values(words int) int { return words }

func (rleLayout) Word(chunk []byte, i int) uint64 {
	return uint64(binary.LittleEndian.Uint32(chunk[4*i:]))
}

func (rleLayout) Split(w uint64) (sample, run uint64, ext bool) {
	return w >> 16, w&0xFFFF + 1, false
}
