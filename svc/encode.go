// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package svc

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/go-daq/lwla/acq"
)

// Packet wire format: one byte of kind, a 4-byte little-endian payload
// length, then the kind-specific payload.

// EncodePacket serializes one session packet for the output stream.
func EncodePacket(p acq.Packet) []byte {
	le := binary.LittleEndian
	var payload []byte
	switch p.Kind {
	case acq.KindHeader:
		payload = make([]byte, 16)
		le.PutUint32(payload[0:4], uint32(p.UnitSize))
		le.PutUint32(payload[4:8], uint32(p.Channels))
		le.PutUint64(payload[8:16], p.Rate)
	case acq.KindLogicData:
		payload = make([]byte, 4+len(p.Data))
		le.PutUint32(payload[0:4], uint32(p.UnitSize))
		copy(payload[4:], p.Data)
	case acq.KindAnalogData:
		payload = make([]byte, 8*len(p.Values))
		for i, v := range p.Values {
			le.PutUint64(payload[8*i:], math.Float64bits(v))
		}
	}
	out := make([]byte, 5+len(payload))
	out[0] = byte(p.Kind)
	le.PutUint32(out[1:5], uint32(len(payload)))
	copy(out[5:], payload)
	return out
}

// EncodeStream prefixes an encoded packet with its session handle, so
// the packets of concurrent sessions can be told apart on the shared
// output endpoint.
func EncodeStream(id uuid.UUID, p acq.Packet) []byte {
	pkt := EncodePacket(p)
	out := make([]byte, 16+len(pkt))
	copy(out[:16], id[:])
	copy(out[16:], pkt)
	return out
}

// DecodeStream is the inverse of EncodeStream.
func DecodeStream(raw []byte) (uuid.UUID, acq.Packet, error) {
	if len(raw) < 16 {
		return uuid.UUID{}, acq.Packet{}, fmt.Errorf("svc: truncated stream packet: %d bytes", len(raw))
	}
	var id uuid.UUID
	copy(id[:], raw[:16])
	p, err := DecodePacket(raw[16:])
	return id, p, err
}

// DecodePacket is the inverse of EncodePacket.
func DecodePacket(raw []byte) (acq.Packet, error) {
	le := binary.LittleEndian
	if len(raw) < 5 {
		return acq.Packet{}, fmt.Errorf("svc: truncated packet: %d bytes", len(raw))
	}
	p := acq.Packet{Kind: acq.PacketKind(raw[0])}
	size := int(le.Uint32(raw[1:5]))
	if len(raw) != 5+size {
		return acq.Packet{}, fmt.Errorf("svc: invalid packet length: got=%d want=%d", len(raw), 5+size)
	}
	payload := raw[5:]
	switch p.Kind {
	case acq.KindHeader:
		if size != 16 {
			return acq.Packet{}, fmt.Errorf("svc: invalid header payload: %d bytes", size)
		}
		p.UnitSize = int(le.Uint32(payload[0:4]))
		p.Channels = int(le.Uint32(payload[4:8]))
		p.Rate = le.Uint64(payload[8:16])
	case acq.KindLogicData:
		if size < 4 {
			return acq.Packet{}, fmt.Errorf("svc: invalid logic-data payload: %d bytes", size)
		}
		p.UnitSize = int(le.Uint32(payload[0:4]))
		p.Data = append([]byte(nil), payload[4:]...)
	case acq.KindAnalogData:
		if size%8 != 0 {
			return acq.Packet{}, fmt.Errorf("svc: invalid analog-data payload: %d bytes", size)
		}
		p.Values = make([]float64, size/8)
		for i := range p.Values {
			p.Values[i] = math.Float64frombits(le.Uint64(payload[8*i:]))
		}
	}
	return p, nil
}
