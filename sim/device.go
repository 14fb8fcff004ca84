// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sim

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/go-daq/lwla/acq"
)

// StatusStep is one scripted reply to a capture status request. A
// non-nil Err makes the status read complete with that error instead.
type StatusStep struct {
	Flags   acq.StatusFlags
	Fill    uint32
	Elapsed uint32
	TrigPos uint32
	Err     error
}

// Device is a scripted transport for the simulated family. Status
// requests walk the Statuses script (the last step repeats); memory
// reads serve from Mem; register writes are recorded in Regs.
//
// Like the engine itself, a Device is single threaded: all calls must
// come from one goroutine.
type Device struct {
	Statuses []StatusStep
	Fill     uint32
	Mem      []uint32

	Regs map[uint16]uint32

	// WriteErrAt fails the n-th asynchronous write (counting from 1).
	WriteErrAt int
	WriteErr   error

	statusIdx int
	writes    int

	reply    []byte
	replyErr error

	comps  []completion
	closed bool
}

type completion struct {
	done func(acq.Outcome)
	out  acq.Outcome
}

// NewDevice returns a device with the given memory content and fill.
func NewDevice(mem []uint32, statuses ...StatusStep) *Device {
	return &Device{
		Statuses: statuses,
		Fill:     uint32(len(mem)),
		Mem:      mem,
		Regs:     make(map[uint16]uint32),
	}
}

func (d *Device) Write(p []byte) (int, error) {
	if d.closed {
		return 0, errors.New("sim: device closed")
	}
	d.handle(p)
	return len(p), nil
}

func (d *Device) Read(p []byte) (int, error) {
	if d.closed {
		return 0, errors.New("sim: device closed")
	}
	if d.replyErr != nil {
		err := d.replyErr
		d.replyErr = nil
		return 0, err
	}
	n := copy(p, d.reply)
	return n, nil
}

func (d *Device) SubmitWrite(p []byte, done func(acq.Outcome)) error {
	if d.closed {
		return errors.New("sim: device closed")
	}
	d.writes++
	if d.WriteErrAt != 0 && d.writes == d.WriteErrAt {
		err := d.WriteErr
		if err == nil {
			err = acq.ErrTimeout
		}
		d.comps = append(d.comps, completion{done, acq.Outcome{Err: err}})
		return nil
	}
	d.handle(p)
	d.comps = append(d.comps, completion{done, acq.Outcome{N: len(p)}})
	return nil
}

func (d *Device) SubmitRead(p []byte, done func(acq.Outcome)) error {
	if d.closed {
		return errors.New("sim: device closed")
	}
	if d.replyErr != nil {
		err := d.replyErr
		d.replyErr = nil
		d.comps = append(d.comps, completion{done, acq.Outcome{Err: err}})
		return nil
	}
	n := copy(p, d.reply)
	d.comps = append(d.comps, completion{done, acq.Outcome{N: n}})
	return nil
}

// Poll dispatches the completions queued when Poll was entered;
// completions queued by the callbacks themselves wait for the next
// Poll, like a real event loop.
func (d *Device) Poll(timeout time.Duration) (int, error) {
	pend := d.comps
	d.comps = nil
	for _, c := range pend {
		c.done(c.out)
	}
	return len(pend), nil
}

func (d *Device) Close() error {
	d.closed = true
	return nil
}

// handle interprets one command frame and prepares the reply, if any.
func (d *Device) handle(cmd []byte) {
	le := binary.LittleEndian
	if len(cmd) < 2 {
		return
	}
	switch le.Uint16(cmd[0:2]) {
	case acq.CmdWriteReg:
		d.Regs[le.Uint16(cmd[2:4])] = uint32(le.Uint16(cmd[4:6])) |
			uint32(le.Uint16(cmd[6:8]))<<16

	case acq.CmdReadReg:
		var v uint32
		switch addr := le.Uint16(cmd[2:4]); addr {
		case regMemFill:
			v = d.Fill
		default:
			v = d.Regs[addr]
		}
		d.reply = make([]byte, 4)
		le.PutUint32(d.reply, v)

	case acq.CmdCapStatus:
		st := d.nextStatus()
		if st.Err != nil {
			d.replyErr = st.Err
			return
		}
		d.reply = make([]byte, statusRespLen)
		le.PutUint32(d.reply[0:4], uint32(st.Flags))
		le.PutUint32(d.reply[4:8], st.Fill)
		le.PutUint32(d.reply[8:12], st.Elapsed)
		le.PutUint32(d.reply[12:16], st.TrigPos)

	case acq.CmdReadMem:
		addr := uint32(le.Uint16(cmd[2:4])) | uint32(le.Uint16(cmd[4:6]))<<16
		count := uint32(le.Uint16(cmd[6:8])) | uint32(le.Uint16(cmd[8:10]))<<16
		d.reply = make([]byte, 4*count)
		for i := uint32(0); i < count; i++ {
			var w uint32
			if int(addr+i) < len(d.Mem) {
				w = d.Mem[addr+i]
			}
			le.PutUint32(d.reply[4*i:], w)
		}
	}
}

func (d *Device) nextStatus() StatusStep {
	if len(d.Statuses) == 0 {
		return StatusStep{Flags: acq.StatusCapturing | acq.StatusMemAvail}
	}
	st := d.Statuses[d.statusIdx]
	if d.statusIdx < len(d.Statuses)-1 {
		d.statusIdx++
	}
	return st
}
