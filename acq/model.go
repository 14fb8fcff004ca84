// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import "encoding/binary"

// Command opcodes of the framed register protocol. Commands are
// sequences of little-endian 16-bit words, the opcode first.
const (
	CmdReadReg    uint16 = 1 // addr -> 32-bit value
	CmdWriteReg   uint16 = 2 // addr, value lo, value hi
	CmdReadMem    uint16 = 3 // addr32, count32 -> count words
	CmdCapSetup   uint16 = 4 // family-defined capture setup block
	CmdCapStatus  uint16 = 5 // family-defined capture status block
	CmdReadMem36  uint16 = 6 // addr32, count32 -> count 36-bit words
	CmdWriteLRegs uint16 = 7 // start, count, count 64-bit values
	CmdReadLRegs  uint16 = 8 // start, count -> count 64-bit values
)

// RegVal is one register assignment in a setup or teardown program.
type RegVal struct {
	Addr uint16
	Val  uint32
}

// StatusFlags is the family-independent capture status bit layout.
// Family status parsers translate the raw device bits into it.
type StatusFlags uint32

const (
	StatusCapturing StatusFlags = 1 << 1
	StatusTriggered StatusFlags = 1 << 4
	StatusMemAvail  StatusFlags = 1 << 5
	StatusOverflow  StatusFlags = 1 << 6
)

func (f StatusFlags) Capturing() bool { return f&StatusCapturing != 0 }
func (f StatusFlags) Triggered() bool { return f&StatusTriggered != 0 }
func (f StatusFlags) MemAvail() bool  { return f&StatusMemAvail != 0 }
func (f StatusFlags) Overflow() bool  { return f&StatusOverflow != 0 }

// Status is one parsed capture status report.
type Status struct {
	Flags   StatusFlags
	Fill    uint64 // captured memory words
	Elapsed uint64 // milliseconds since capture start
	TrigPos uint64 // decoded trigger position, 0 if the device has none
}

// Caps describes the fixed capabilities of a device family.
type Caps struct {
	Channels      int
	MemoryWords   uint64
	BaseClock     uint64 // Hz at the divider input
	MaxSampleRate uint64
	MaxSamples    uint64
	MaxMillis     uint64
}

// RawLayout describes the bit packing of one family's sample memory.
// Word indexes run over decode values, which may be finer grained than
// device words (a family may pack several samples per word).
type RawLayout interface {
	// UnitSize is the size in bytes of one decoded sample.
	UnitSize() int
	// Values returns the number of decode values carried by the given
	// number of device words.
	Values(words int) int
	// Word extracts decode value i from a raw chunk.
	Word(chunk []byte, i int) uint64
	// Split splits a decode value into a sample, its run length, and
	// whether a run-length extension value follows.
	Split(word uint64) (sample, run uint64, ext bool)
}

// AnalogLayout is implemented by layouts whose samples are digitized
// analog values rather than logic levels.
type AnalogLayout interface {
	RawLayout
	// Volts converts one decoded sample to volts.
	Volts(sample uint64) float64
}

// Model describes one device family to the acquisition engine.
type Model interface {
	Name() string
	Caps() Caps

	// Layout returns the sample memory layout used with cfg.
	Layout(cfg Config) RawLayout

	// Probe checks that a responsive device of this family is attached.
	Probe(t Transport) error

	// Setup returns the command frames that program a capture, written
	// synchronously before the session starts.
	Setup(cfg Config) ([][]byte, error)

	// Register programs driven asynchronously by the state machine.
	StartSeq(cfg Config) []RegVal
	StopSeq() []RegVal
	ReadPrepareSeq() []RegVal
	ReadEndSeq() []RegVal

	// Capture status poll.
	StatusCmd() []byte
	StatusLen() int
	ParseStatus(resp []byte, cfg Config) (Status, error)

	// Capture length request.
	LengthCmd() []byte
	LengthLen() int
	ParseLength(resp []byte) (uint64, error)

	// Readout geometry. ReadWindow maps a fill count to the first and
	// one-past-last memory word to read. Requests are rounded up to
	// ReadGranularity words and capped at ReadChunkWords.
	ReadWindow(fill uint64) (start, stop uint64)
	ReadGranularity() uint64
	ReadChunkWords() uint64
	ReadMemCmd(addr, count uint64) []byte
	// RespLen is the size in bytes of a read response for count words.
	RespLen(count uint64) int
}

// WriteRegFrame builds a single register write command.
func WriteRegFrame(addr uint16, val uint32) []byte {
	p := make([]byte, 8)
	le := binary.LittleEndian
	le.PutUint16(p[0:2], CmdWriteReg)
	le.PutUint16(p[2:4], addr)
	le.PutUint16(p[4:6], uint16(val))
	le.PutUint16(p[6:8], uint16(val>>16))
	return p
}

// ReadRegFrame builds a single register read command.
func ReadRegFrame(addr uint16) []byte {
	p := make([]byte, 4)
	le := binary.LittleEndian
	le.PutUint16(p[0:2], CmdReadReg)
	le.PutUint16(p[2:4], addr)
	return p
}

// ReadMemFrame builds a memory read command with the given opcode.
func ReadMemFrame(op uint16, addr, count uint32) []byte {
	p := make([]byte, 10)
	le := binary.LittleEndian
	le.PutUint16(p[0:2], op)
	le.PutUint16(p[2:4], uint16(addr))
	le.PutUint16(p[4:6], uint16(addr>>16))
	le.PutUint16(p[6:8], uint16(count))
	le.PutUint16(p[8:10], uint16(count>>16))
	return p
}

// LRegsFrame builds a long-register block read command.
func LRegsFrame(op, start, count uint16) []byte {
	p := make([]byte, 6)
	le := binary.LittleEndian
	le.PutUint16(p[0:2], op)
	le.PutUint16(p[2:4], start)
	le.PutUint16(p[4:6], count)
	return p
}

// RegValue decodes a register read reply.
func RegValue(resp []byte) uint32 {
	return binary.LittleEndian.Uint32(resp)
}
