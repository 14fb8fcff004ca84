// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sim provides a scripted in-memory device: a 16-channel family
// whose memory words hold a sample in the high half and a run length,
// less one, in the low half, together with a transport that serves a
// scripted status sequence and a prepared sample memory.
//
// It backs the engine tests and the demo mode of the command-line tools.
package sim // import "github.com/go-daq/lwla/sim"

import (
	"encoding/binary"

	"golang.org/x/xerrors"

	"github.com/go-daq/lwla/acq"
)

const (
	numChannels = 16
	unitSize    = 2

	memoryWords = 4096

	baseClock = 100_000_000

	readChunkWords = 64

	statusRespLen = 16 // flags, fill, elapsed, raw trigger position
)

// register addresses of the simulated device
const (
	regChanMask = 0x01
	regDivider  = 0x02
	regCapCtrl  = 0x03
	regMemMode  = 0x04
	regMemFill  = 0x10
	regEcho     = 0x1f
)

// Model implements acq.Model for the simulated family.
type Model struct {
	voltsPerLSB float64
}

// ModelOption customizes the simulated family.
type ModelOption func(*Model)

// WithAnalog makes the family report digitized analog samples scaled by
// volts per least significant bit.
func WithAnalog(voltsPerLSB float64) ModelOption {
	return func(m *Model) { m.voltsPerLSB = voltsPerLSB }
}

// NewModel returns the simulated family descriptor.
func NewModel(opts ...ModelOption) *Model {
	m := &Model{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (*Model) Name() string { return "sim" }

func (*Model) Caps() acq.Caps {
	return acq.Caps{
		Channels:      numChannels,
		MemoryWords:   memoryWords,
		BaseClock:     baseClock,
		MaxSampleRate: baseClock,
		MaxSamples:    uint64(1) << 32,
		MaxMillis:     uint64(1) << 32,
	}
}

func (m *Model) Layout(cfg acq.Config) acq.RawLayout {
	if m.voltsPerLSB != 0 {
		return analogLayout{scale: m.voltsPerLSB}
	}
	return layout{}
}

func (m *Model) Probe(t acq.Transport) error {
	const pattern = 0x51A0C0DE
	if _, err := t.Write(acq.WriteRegFrame(regEcho, pattern)); err != nil {
		return xerrors.Errorf("sim: could not write echo register: %w", err)
	}
	resp := make([]byte, 4)
	n, err := acq.Command(t, acq.ReadRegFrame(regEcho), resp, 2)
	if err != nil {
		return xerrors.Errorf("sim: could not read echo register: %w", err)
	}
	if n != len(resp) || acq.RegValue(resp) != pattern {
		return xerrors.Errorf("sim: echo mismatch")
	}
	return nil
}

func (m *Model) Setup(cfg acq.Config) ([][]byte, error) {
	var div uint32
	if cfg.Clock == acq.ClockInternal {
		div = uint32(baseClock/cfg.SampleRate) - 1
	}
	return [][]byte{
		acq.WriteRegFrame(regChanMask, uint32(cfg.Channels)),
		acq.WriteRegFrame(regDivider, div),
	}, nil
}

func (m *Model) StartSeq(cfg acq.Config) []acq.RegVal {
	return []acq.RegVal{{Addr: regCapCtrl, Val: 1}}
}

func (m *Model) StopSeq() []acq.RegVal {
	return []acq.RegVal{{Addr: regCapCtrl, Val: 0}}
}

func (m *Model) ReadPrepareSeq() []acq.RegVal {
	return []acq.RegVal{{Addr: regMemMode, Val: 1}}
}

func (m *Model) ReadEndSeq() []acq.RegVal {
	return []acq.RegVal{{Addr: regMemMode, Val: 0}}
}

func (m *Model) StatusCmd() []byte {
	return acq.LRegsFrame(acq.CmdCapStatus, 0, 4)
}

func (m *Model) StatusLen() int { return statusRespLen }

func (m *Model) ParseStatus(resp []byte, cfg acq.Config) (acq.Status, error) {
	if len(resp) != statusRespLen {
		return acq.Status{}, xerrors.Errorf("sim: invalid status block length: %d", len(resp))
	}
	le := binary.LittleEndian
	return acq.Status{
		Flags:   acq.StatusFlags(le.Uint32(resp[0:4])),
		Fill:    uint64(le.Uint32(resp[4:8])),
		Elapsed: uint64(le.Uint32(resp[8:12])),
		TrigPos: uint64(acq.DecodeTriggerPos(le.Uint32(resp[12:16]), 24)),
	}, nil
}

func (m *Model) LengthCmd() []byte { return acq.ReadRegFrame(regMemFill) }

func (m *Model) LengthLen() int { return 4 }

func (m *Model) ParseLength(resp []byte) (uint64, error) {
	if len(resp) != 4 {
		return 0, xerrors.Errorf("sim: invalid length reply: %d bytes", len(resp))
	}
	return uint64(acq.RegValue(resp)), nil
}

func (m *Model) ReadWindow(fill uint64) (start, stop uint64) { return 0, fill }

func (m *Model) ReadGranularity() uint64 { return 1 }

func (m *Model) ReadChunkWords() uint64 { return readChunkWords }

func (m *Model) ReadMemCmd(addr, count uint64) []byte {
	return acq.ReadMemFrame(acq.CmdReadMem, uint32(addr), uint32(count))
}

func (m *Model) RespLen(count uint64) int { return int(count) * 4 }

type layout struct{}

func (layout) UnitSize() int { return unitSize }

func (layout) Values(words int) int { return words }

func (layout) Word(chunk []byte, i int) uint64 {
	return uint64(binary.LittleEndian.Uint32(chunk[4*i:]))
}

func (layout) Split(w uint64) (sample, run uint64, ext bool) {
	return w >> 16, w&0xFFFF + 1, false
}

type analogLayout struct {
	scale float64
}

func (analogLayout) UnitSize() int { return unitSize }

func (analogLayout) Values(words int) int { return words }

func (analogLayout) Word(chunk []byte, i int) uint64 {
	return uint64(binary.LittleEndian.Uint32(chunk[4*i:]))
}

func (analogLayout) Split(w uint64) (sample, run uint64, ext bool) {
	return w >> 16, w&0xFFFF + 1, false
}

func (l analogLayout) Volts(sample uint64) float64 {
	return float64(int16(uint16(sample))) * l.scale
}

// Word encodes count repetitions of sample as one memory word.
func Word(sample uint16, count int) uint32 {
	return uint32(sample)<<16 | uint32(count-1)&0xFFFF
}
