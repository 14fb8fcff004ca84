// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

type rleMode int

const (
	rleLiteral rleMode = iota // next value carries a sample
	rleLenExt                 // next value extends the pending run length
)

// Decoder expands the bit-packed, run-length encoded sample memory of a
// device into fixed-size sample packets.
//
// Decoding state persists across chunks: a run or a run-length extension
// may start in one chunk and finish in a later one, and the output packet
// fills across chunk boundaries. Packets are handed to emit full, or
// partially on Flush; a handed-off packet is owned by the receiver.
type Decoder struct {
	layout RawLayout
	unit   int

	samplesMax  uint64
	samplesDone uint64

	packetSamples int
	out           []byte
	outIndex      int

	mode   rleMode
	sample uint64
	runLen uint64

	emit func(data []byte) error
}

// NewDecoder returns a decoder emitting packets of packetSamples samples
// (PacketSamples if zero), stopping after samplesMax decoded samples.
func NewDecoder(layout RawLayout, samplesMax uint64, packetSamples int, emit func(data []byte) error) *Decoder {
	if packetSamples <= 0 {
		packetSamples = PacketSamples
	}
	dec := &Decoder{
		layout:        layout,
		unit:          layout.UnitSize(),
		samplesMax:    samplesMax,
		packetSamples: packetSamples,
		emit:          emit,
	}
	dec.out = make([]byte, packetSamples*dec.unit)
	return dec
}

// Reset prepares the decoder for a new readout.
func (dec *Decoder) Reset() {
	dec.samplesDone = 0
	dec.outIndex = 0
	dec.mode = rleLiteral
	dec.sample = 0
	dec.runLen = 0
}

// SamplesDone returns the number of samples decoded so far.
func (dec *Decoder) SamplesDone() uint64 { return dec.samplesDone }

// Done reports whether the sample limit has been reached.
func (dec *Decoder) Done() bool { return dec.samplesDone >= dec.samplesMax }

// Decode consumes the first values decode values of chunk. Values beyond
// the sample limit are ignored.
func (dec *Decoder) Decode(chunk []byte, values int) error {
	wi := 0
	for {
		if dec.samplesDone >= dec.samplesMax {
			return nil
		}
		max := uint64(dec.packetSamples - dec.outIndex)
		if left := dec.samplesMax - dec.samplesDone; left < max {
			max = left
		}
		run := dec.runLen
		if run > max {
			run = max
		}
		for i := uint64(0); i < run; i++ {
			putUnit(dec.out[dec.outIndex*dec.unit:], dec.sample, dec.unit)
			dec.outIndex++
		}
		dec.runLen -= run
		dec.samplesDone += run

		if run == max {
			// packet full, or the sample limit was reached
			if err := dec.flush(); err != nil {
				return err
			}
			if dec.samplesDone >= dec.samplesMax {
				return nil
			}
			if dec.runLen > 0 {
				continue
			}
		}

		if wi >= values {
			return nil
		}
		w := dec.layout.Word(chunk, wi)
		wi++
		switch dec.mode {
		case rleLiteral:
			s, r, ext := dec.layout.Split(w)
			dec.sample = s
			dec.runLen = r
			if ext {
				dec.mode = rleLenExt
			}
		case rleLenExt:
			dec.runLen += w << 1
			dec.mode = rleLiteral
		}
	}
}

// Flush emits the partially filled output packet, if any.
func (dec *Decoder) Flush() error {
	if dec.outIndex == 0 {
		return nil
	}
	return dec.flush()
}

func (dec *Decoder) flush() error {
	if dec.outIndex == 0 {
		return nil
	}
	data := dec.out[:dec.outIndex*dec.unit]
	dec.out = make([]byte, dec.packetSamples*dec.unit)
	dec.outIndex = 0
	return dec.emit(data)
}

func putUnit(p []byte, v uint64, n int) {
	for i := 0; i < n; i++ {
		p[i] = byte(v >> (8 * i))
	}
}

func getUnit(p []byte, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(p[i]) << (8 * i)
	}
	return v
}
