// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

// Trigger matches a software trigger condition on the decoded sample
// stream and aligns packet emission around the trigger point.
//
// Until the trigger fires, samples accumulate in a ring buffer bounded
// by the pre-trigger capacity. When sample k of a batch matches, the
// buffered samples (ending with the k pre-trigger samples of that batch)
// are flushed as one packet, the trigger mark is emitted, and the
// remainder of the batch and all later batches pass through unchanged.
type Trigger struct {
	unit  int
	mask  uint64
	value uint64
	edges uint64

	mark func() error           // emits the trigger packet
	send func(data []byte) error

	preBuf  []byte // ring of the most recent pre-trigger samples
	preHead int
	preLen  int

	prev    uint64
	hasPrev bool
	fired   bool
}

// NewTrigger returns an aligner keeping up to preMax pre-trigger samples.
func NewTrigger(unit int, mask, value, edges uint64, preMax int, mark func() error, send func(data []byte) error) *Trigger {
	tr := &Trigger{
		unit:  unit,
		mask:  mask,
		value: value,
		edges: edges,
		mark:  mark,
		send:  send,
	}
	if preMax > 0 {
		tr.preBuf = make([]byte, preMax*unit)
	}
	return tr
}

// Fired reports whether the trigger condition has matched.
func (tr *Trigger) Fired() bool { return tr.fired }

// Process consumes one batch of decoded samples.
func (tr *Trigger) Process(data []byte) error {
	if tr.fired {
		return tr.send(data)
	}
	n := len(data) / tr.unit
	for i := 0; i < n; i++ {
		s := getUnit(data[i*tr.unit:], tr.unit)
		ok := tr.match(s)
		tr.prev = s
		tr.hasPrev = true
		if !ok {
			continue
		}
		tr.fired = true
		tr.append(data[:i*tr.unit])
		if err := tr.flushPre(); err != nil {
			return err
		}
		if err := tr.mark(); err != nil {
			return err
		}
		if rest := data[i*tr.unit:]; len(rest) > 0 {
			return tr.send(rest)
		}
		return nil
	}
	tr.append(data)
	return nil
}

// Finish flushes the buffered samples of a session that ended without a
// trigger, so bounded buffering never discards the tail of a capture.
func (tr *Trigger) Finish() error {
	if tr.fired {
		return nil
	}
	return tr.flushPre()
}

func (tr *Trigger) match(s uint64) bool {
	if s&tr.mask != tr.value {
		return false
	}
	if tr.edges != 0 {
		// an edge cannot match on the very first sample
		if !tr.hasPrev {
			return false
		}
		if (s^tr.prev)&tr.edges == 0 {
			return false
		}
	}
	return true
}

func (tr *Trigger) append(data []byte) {
	size := len(tr.preBuf)
	if size == 0 || len(data) == 0 {
		return
	}
	n := len(data)
	if n >= size {
		copy(tr.preBuf, data[n-size:])
		tr.preHead = 0
		tr.preLen = size
		return
	}
	tail := (tr.preHead + tr.preLen) % size
	first := size - tail
	if first > n {
		first = n
	}
	copy(tr.preBuf[tail:], data[:first])
	copy(tr.preBuf, data[first:])
	if tr.preLen+n > size {
		tr.preHead = (tail + n) % size
		tr.preLen = size
	} else {
		tr.preLen += n
	}
}

func (tr *Trigger) flushPre() error {
	if tr.preLen == 0 {
		return nil
	}
	out := make([]byte, tr.preLen)
	size := len(tr.preBuf)
	first := size - tr.preHead
	if first > tr.preLen {
		first = tr.preLen
	}
	copy(out, tr.preBuf[tr.preHead:tr.preHead+first])
	copy(out[first:], tr.preBuf[:tr.preLen-first])
	tr.preHead = 0
	tr.preLen = 0
	return tr.send(out)
}

// DecodeTriggerPos decodes the self-inverting trigger position code used
// by capture hardware that reports the trigger point as a bit pattern in
// which every set bit inverts the value of all lower bits.
func DecodeTriggerPos(raw uint32, bits int) uint32 {
	if bits > 32 {
		bits = 32
	}
	pos := raw
	if bits < 32 {
		pos &= uint32(1)<<bits - 1
	}
	bitvalue := uint32(1)
	for i := 0; i < bits; i++ {
		if pos&bitvalue != 0 {
			pos ^= bitvalue - 1
		}
		bitvalue <<= 1
	}
	return pos
}
