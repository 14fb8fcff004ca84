// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package svc

import (
	"bytes"
	"testing"

	"github.com/google/uuid"

	"github.com/go-daq/lwla/acq"
)

func TestEncodePacket(t *testing.T) {
	for _, tc := range []struct {
		name string
		pkt  acq.Packet
	}{
		{
			name: "header",
			pkt: acq.Packet{
				Kind:     acq.KindHeader,
				UnitSize: 5,
				Channels: 34,
				Rate:     125_000_000,
			},
		},
		{
			name: "logic-data",
			pkt: acq.Packet{
				Kind:     acq.KindLogicData,
				UnitSize: 2,
				Data:     []byte{1, 2, 3, 4},
			},
		},
		{
			name: "analog-data",
			pkt: acq.Packet{
				Kind:   acq.KindAnalogData,
				Values: []float64{1.5, -2.25, 0},
			},
		},
		{
			name: "trigger",
			pkt:  acq.Packet{Kind: acq.KindTrigger},
		},
		{
			name: "end",
			pkt:  acq.Packet{Kind: acq.KindEnd},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodePacket(EncodePacket(tc.pkt))
			if err != nil {
				t.Fatalf("could not decode: %+v", err)
			}
			if got.Kind != tc.pkt.Kind ||
				got.UnitSize != tc.pkt.UnitSize ||
				got.Channels != tc.pkt.Channels ||
				got.Rate != tc.pkt.Rate {
				t.Fatalf("invalid packet:\ngot = %+v\nwant= %+v", got, tc.pkt)
			}
			if !bytes.Equal(got.Data, tc.pkt.Data) {
				t.Fatalf("invalid data:\ngot = %v\nwant= %v", got.Data, tc.pkt.Data)
			}
			if len(got.Values) != len(tc.pkt.Values) {
				t.Fatalf("invalid values:\ngot = %v\nwant= %v", got.Values, tc.pkt.Values)
			}
			for i := range got.Values {
				if got.Values[i] != tc.pkt.Values[i] {
					t.Fatalf("invalid value %d: got=%v want=%v", i, got.Values[i], tc.pkt.Values[i])
				}
			}
		})
	}
}

func TestEncodeStream(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	pkt := acq.Packet{
		Kind:     acq.KindLogicData,
		UnitSize: 2,
		Data:     []byte{1, 2, 3, 4},
	}

	gotID, got, err := DecodeStream(EncodeStream(id, pkt))
	if err != nil {
		t.Fatalf("could not decode: %+v", err)
	}
	if gotID != id {
		t.Fatalf("invalid session handle: got=%s want=%s", gotID, id)
	}
	if got.Kind != pkt.Kind || got.UnitSize != pkt.UnitSize || !bytes.Equal(got.Data, pkt.Data) {
		t.Fatalf("invalid packet:\ngot = %+v\nwant= %+v", got, pkt)
	}

	if _, _, err := DecodeStream(make([]byte, 8)); err == nil {
		t.Fatalf("expected a decode error")
	}
}

func TestDecodePacketErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		raw  []byte
	}{
		{name: "truncated", raw: []byte{1, 2}},
		{name: "length-mismatch", raw: []byte{byte(acq.KindEnd), 4, 0, 0, 0}},
		{name: "short-header", raw: append([]byte{byte(acq.KindHeader), 4, 0, 0, 0}, make([]byte, 4)...)},
		{name: "odd-analog", raw: append([]byte{byte(acq.KindAnalogData), 7, 0, 0, 0}, make([]byte, 7)...)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodePacket(tc.raw); err == nil {
				t.Fatalf("expected a decode error")
			}
		})
	}
}
