// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

// PacketKind tags the payload of a session packet.
type PacketKind uint8

const (
	// KindHeader opens a session. Exactly one per session, before any data.
	KindHeader PacketKind = iota + 1
	// KindLogicData carries a block of bit-packed logic samples.
	KindLogicData
	// KindAnalogData carries a block of converted analog samples.
	KindAnalogData
	// KindFrameBegin and KindFrameEnd bracket one capture frame.
	KindFrameBegin
	KindFrameEnd
	// KindTrigger marks the trigger point in the sample stream.
	KindTrigger
	// KindEnd closes a session. Exactly one per session, after all data.
	KindEnd
)

func (k PacketKind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindLogicData:
		return "logic-data"
	case KindAnalogData:
		return "analog-data"
	case KindFrameBegin:
		return "frame-begin"
	case KindFrameEnd:
		return "frame-end"
	case KindTrigger:
		return "trigger"
	case KindEnd:
		return "end"
	}
	return "unknown"
}

// Packet is one unit of session output.
//
// Data and Values are moved, not shared: the engine relinquishes the
// slices when Send returns and never touches them again.
type Packet struct {
	Kind     PacketKind
	UnitSize int       // bytes per sample (header, logic-data)
	Channels int       // number of channels (header)
	Rate     uint64    // samples per second, 0 for an external clock (header)
	Data     []byte    // logic-data payload, little-endian units
	Values   []float64 // analog-data payload, volts
}

// Sink consumes the packet stream of one capture session.
//
// Send is called from the engine's single thread and must not block on
// the engine itself. A non-nil error aborts the session.
type Sink interface {
	Send(p Packet) error
}
