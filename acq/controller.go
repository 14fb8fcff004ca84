// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"
)

// State enumerates the acquisition states. Transitions happen only in
// the transfer completion handlers and in Tick.
type State int

const (
	Idle State = iota
	StartCapture
	StatusWait
	StatusRequest
	StatusResponse
	StopCapture
	LengthRequest
	LengthResponse
	ReadPrepare
	ReadRequest
	ReadResponse
	ReadEnd
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case StartCapture:
		return "start-capture"
	case StatusWait:
		return "status-wait"
	case StatusRequest:
		return "status-request"
	case StatusResponse:
		return "status-response"
	case StopCapture:
		return "stop-capture"
	case LengthRequest:
		return "length-request"
	case LengthResponse:
		return "length-response"
	case ReadPrepare:
		return "read-prepare"
	case ReadRequest:
		return "read-request"
	case ReadResponse:
		return "read-response"
	case ReadEnd:
		return "read-end"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Controller drives one device through capture sessions.
//
// All methods must be called from a single goroutine; completion
// callbacks run from Tick via Transport.Poll on that same goroutine.
// State and Active alone may be read from other goroutines.
type Controller struct {
	msg *log.Logger
	dev Model
	trn Transport
	snk Sink

	pollWait time.Duration

	state   atomic.Int32
	sess    *session
	lastErr error
}

// session carries the per-acquisition state, released when the session
// returns to Idle.
type session struct {
	cfg    Config
	layout RawLayout
	analog AnalogLayout

	dec  *Decoder
	trig *Trigger

	frameLeft uint64
	inFrame   bool

	status Status
	fill   uint64

	addrDone uint64
	addrNext uint64
	addrStop uint64

	chunkWords uint64

	regSeq []RegVal
	regPos int

	inBuf []byte

	sawTrigger bool
	stopReq    bool
	stopping   bool
	failed     bool
	err        error
}

func (sess *session) fail(err error) {
	if sess.err == nil {
		sess.err = err
	}
	sess.failed = true
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLogger sets the message logger.
func WithLogger(msg *log.Logger) Option {
	return func(ctl *Controller) { ctl.msg = msg }
}

// WithPollWait sets how long one Tick waits for transfer completions.
func WithPollWait(d time.Duration) Option {
	return func(ctl *Controller) { ctl.pollWait = d }
}

// New returns a controller for the given device, transport and sink.
func New(dev Model, trn Transport, snk Sink, opts ...Option) *Controller {
	ctl := &Controller{
		msg:      log.New(os.Stdout, "lwla: ", 0),
		dev:      dev,
		trn:      trn,
		snk:      snk,
		pollWait: 5 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(ctl)
	}
	return ctl
}

// State returns the current acquisition state.
func (ctl *Controller) State() State { return State(ctl.state.Load()) }

func (ctl *Controller) setState(s State) { ctl.state.Store(int32(s)) }

// Active reports whether a session is in progress.
func (ctl *Controller) Active() bool { return ctl.State() != Idle }

// Err returns the error that ended the last session, if any.
func (ctl *Controller) Err() error { return ctl.lastErr }

// Start programs the device and begins a capture session. The session
// header is emitted before Start returns; exactly one End packet follows
// eventually, whatever happens to the session.
func (ctl *Controller) Start(cfg Config) error {
	if ctl.State() != Idle {
		return ErrBusy
	}
	norm, err := cfg.normalize(ctl.dev.Caps())
	if err != nil {
		return err
	}

	frames, err := ctl.dev.Setup(norm)
	if err != nil {
		return fmt.Errorf("lwla: could not build capture setup: %w", err)
	}
	for _, f := range frames {
		if _, err := ctl.trn.Write(f); err != nil {
			return &TransportError{Op: "capture setup", Err: err}
		}
	}

	layout := ctl.dev.Layout(norm)
	sess := &session{
		cfg:    norm,
		layout: layout,
	}
	sess.analog, _ = layout.(AnalogLayout)
	ctl.sess = sess
	ctl.lastErr = nil

	emit := ctl.buildEmitter(sess)
	sess.dec = NewDecoder(layout, norm.LimitSamples, PacketSamples, emit)

	err = ctl.snk.Send(Packet{
		Kind:     KindHeader,
		UnitSize: layout.UnitSize(),
		Channels: ctl.dev.Caps().Channels,
		Rate:     norm.SampleRate,
	})
	if err != nil {
		ctl.sess = nil
		return &SinkError{Err: err}
	}

	ctl.msg.Printf("starting acquisition: %d samples / %d ms limit", norm.LimitSamples, norm.LimitMillis)
	ctl.beginSeq(ctl.dev.StartSeq(norm), StartCapture)
	if sess.failed {
		ctl.endSession()
		return ctl.lastErr
	}
	return nil
}

// buildEmitter assembles the path from decoded samples to the sink:
// optional trigger alignment, optional framing, optional analog
// conversion.
func (ctl *Controller) buildEmitter(sess *session) func([]byte) error {
	unit := sess.layout.UnitSize()

	sendData := func(data []byte) error {
		if sess.analog != nil {
			vals := make([]float64, len(data)/unit)
			for i := range vals {
				vals[i] = sess.analog.Volts(getUnit(data[i*unit:], unit))
			}
			return ctl.send(Packet{Kind: KindAnalogData, Values: vals})
		}
		return ctl.send(Packet{Kind: KindLogicData, UnitSize: unit, Data: data})
	}

	emit := sendData
	if sess.cfg.FrameSamples > 0 {
		emit = func(data []byte) error {
			return ctl.sendFramed(sess, sendData, data)
		}
	}

	if sess.cfg.TriggerMask != 0 || sess.cfg.TriggerEdges != 0 {
		mark := func() error { return ctl.send(Packet{Kind: KindTrigger}) }
		pre := sess.cfg.PreTriggerSamples()
		if mem := ctl.dev.Caps().MemoryWords; mem > 0 && pre > mem {
			// The device cannot hold more pre-trigger samples than
			// its capture memory; bound the ring accordingly.
			pre = mem
		}
		sess.trig = NewTrigger(unit,
			sess.cfg.TriggerMask, sess.cfg.TriggerValue, sess.cfg.TriggerEdges,
			int(pre), mark, emit)
		return sess.trig.Process
	}
	return emit
}

func (ctl *Controller) sendFramed(sess *session, sendData func([]byte) error, data []byte) error {
	unit := sess.layout.UnitSize()
	for len(data) > 0 {
		if !sess.inFrame {
			if err := ctl.send(Packet{Kind: KindFrameBegin}); err != nil {
				return err
			}
			sess.inFrame = true
			sess.frameLeft = sess.cfg.FrameSamples
		}
		take := uint64(len(data) / unit)
		if take > sess.frameLeft {
			take = sess.frameLeft
		}
		chunk := data[:take*uint64(unit)]
		data = data[take*uint64(unit):]
		if err := sendData(chunk); err != nil {
			return err
		}
		sess.frameLeft -= take
		if sess.frameLeft == 0 {
			if err := ctl.send(Packet{Kind: KindFrameEnd}); err != nil {
				return err
			}
			sess.inFrame = false
		}
	}
	return nil
}

func (ctl *Controller) send(p Packet) error {
	if err := ctl.snk.Send(p); err != nil {
		return &SinkError{Err: err}
	}
	return nil
}

// Stop requests the end of the running session. It may be called any
// number of times, in any state; extra calls have no effect. The stop
// sequence is issued from the next idle tick.
func (ctl *Controller) Stop() {
	if ctl.sess == nil {
		return
	}
	ctl.sess.stopReq = true
}

// Tick drives the session forward: it dispatches pending transfer
// completions and, on an idle tick in StatusWait, polls the capture
// status or issues a requested stop.
func (ctl *Controller) Tick() {
	if ctl.sess == nil {
		return
	}
	dispatched := 0
	for ctl.sess != nil {
		n, err := ctl.trn.Poll(ctl.pollWait)
		if err != nil {
			ctl.sess.fail(&TransportError{Op: "poll", Err: err})
			break
		}
		if n == 0 {
			break
		}
		dispatched += n
	}
	if ctl.sess == nil {
		return
	}
	if dispatched == 0 && ctl.State() == StatusWait && !ctl.sess.failed {
		if ctl.sess.stopReq {
			ctl.issueStop()
		} else {
			ctl.requestStatus()
		}
	}
	if ctl.sess != nil && ctl.sess.failed {
		ctl.endSession()
	}
}

// beginSeq starts a register write program and arms the state the
// machine is in while the program runs. An empty program completes
// immediately.
func (ctl *Controller) beginSeq(seq []RegVal, st State) {
	sess := ctl.sess
	sess.regSeq = seq
	sess.regPos = 0
	ctl.setState(st)
	if len(seq) == 0 {
		ctl.writeDone(Outcome{})
		return
	}
	ctl.nextRegWrite()
}

func (ctl *Controller) nextRegWrite() {
	sess := ctl.sess
	rv := sess.regSeq[sess.regPos]
	sess.regPos++
	ctl.submitWrite(WriteRegFrame(rv.Addr, rv.Val))
}

func (ctl *Controller) submitWrite(p []byte) {
	sess := ctl.sess
	if sess.failed {
		return
	}
	if err := ctl.trn.SubmitWrite(p, ctl.writeDone); err != nil {
		sess.fail(&TransportError{Op: "submit write", Err: err})
	}
}

func (ctl *Controller) submitRead(n int) {
	sess := ctl.sess
	if sess.failed {
		return
	}
	if cap(sess.inBuf) < n {
		sess.inBuf = make([]byte, n)
	}
	sess.inBuf = sess.inBuf[:n]
	if err := ctl.trn.SubmitRead(sess.inBuf, ctl.readDone); err != nil {
		sess.fail(&TransportError{Op: "submit read", Err: err})
	}
}

// writeDone is the completion handler for outgoing transfers.
func (ctl *Controller) writeDone(out Outcome) {
	sess := ctl.sess
	if sess == nil {
		return
	}
	if out.Err != nil {
		sess.fail(&TransportError{Op: "write", Err: out.Err})
		return
	}
	if sess.regPos < len(sess.regSeq) {
		ctl.nextRegWrite()
		return
	}
	switch ctl.State() {
	case StartCapture:
		ctl.msg.Printf("capture started")
		ctl.setState(StatusWait)
	case StatusRequest:
		ctl.setState(StatusResponse)
		ctl.submitRead(ctl.dev.StatusLen())
	case StopCapture:
		if !sess.stopReq {
			// stopped by the duration limit: the capture is still
			// valid, read it back
			ctl.requestLength()
		} else {
			ctl.endSession()
		}
	case LengthRequest:
		ctl.setState(LengthResponse)
		ctl.submitRead(ctl.dev.LengthLen())
	case ReadPrepare:
		ctl.requestChunk()
	case ReadRequest:
		ctl.setState(ReadResponse)
		ctl.submitRead(ctl.dev.RespLen(sess.chunkWords))
	case ReadEnd:
		ctl.endSession()
	}
}

// readDone is the completion handler for incoming transfers.
func (ctl *Controller) readDone(out Outcome) {
	sess := ctl.sess
	if sess == nil {
		return
	}
	if out.Err != nil {
		sess.fail(&TransportError{Op: "read", Err: out.Err})
		return
	}
	switch ctl.State() {
	case StatusResponse:
		ctl.processStatus(sess.inBuf[:out.N])
	case LengthResponse:
		ctl.processLength(sess.inBuf[:out.N])
	case ReadResponse:
		ctl.processChunk(out.N)
	}
}

func (ctl *Controller) requestStatus() {
	ctl.setState(StatusRequest)
	ctl.submitWrite(ctl.dev.StatusCmd())
}

func (ctl *Controller) requestLength() {
	ctl.setState(LengthRequest)
	ctl.submitWrite(ctl.dev.LengthCmd())
}

func (ctl *Controller) issueStop() {
	sess := ctl.sess
	if sess.stopping {
		return
	}
	sess.stopping = true
	ctl.beginSeq(ctl.dev.StopSeq(), StopCapture)
}

func (ctl *Controller) issueReadEnd() {
	ctl.beginSeq(ctl.dev.ReadEndSeq(), ReadEnd)
}

func (ctl *Controller) processStatus(resp []byte) {
	sess := ctl.sess
	if want := ctl.dev.StatusLen(); len(resp) != want {
		sess.fail(&ProtocolError{Op: "capture status", Got: len(resp), Want: want})
		return
	}
	st, err := ctl.dev.ParseStatus(resp, sess.cfg)
	if err != nil {
		sess.fail(err)
		return
	}
	sess.status = st

	if st.Flags.Overflow() {
		if sess.err == nil {
			sess.err = ErrOverflow
		}
		ctl.msg.Printf("device memory overflow, aborting capture")
		ctl.issueReadEnd()
		return
	}
	if st.Flags.Triggered() && !sess.sawTrigger {
		sess.sawTrigger = true
		ctl.msg.Printf("hardware trigger at %d ms", st.Elapsed)
	}
	if sess.cfg.LimitMillis > 0 && st.Elapsed >= sess.cfg.LimitMillis {
		ctl.issueStop()
		return
	}
	ctl.setState(StatusWait)
	if st.Flags.Triggered() && !st.Flags.MemAvail() {
		ctl.requestLength()
	}
}

func (ctl *Controller) processLength(resp []byte) {
	sess := ctl.sess
	if want := ctl.dev.LengthLen(); len(resp) != want {
		sess.fail(&ProtocolError{Op: "capture length", Got: len(resp), Want: want})
		return
	}
	fill, err := ctl.dev.ParseLength(resp)
	if err != nil {
		sess.fail(err)
		return
	}
	sess.fill = fill
	ctl.msg.Printf("captured words: %d", fill)

	if fill > 0 && !sess.stopReq {
		ctl.beginReadout()
	} else {
		ctl.issueReadEnd()
	}
}

func (ctl *Controller) beginReadout() {
	sess := ctl.sess
	start, stop := ctl.dev.ReadWindow(sess.fill)
	sess.addrDone = start
	sess.addrNext = start
	sess.addrStop = stop
	sess.dec.Reset()
	ctl.beginSeq(ctl.dev.ReadPrepareSeq(), ReadPrepare)
}

func (ctl *Controller) requestChunk() {
	sess := ctl.sess
	if sess.addrNext >= sess.addrStop {
		ctl.issueReadEnd()
		return
	}
	gran := ctl.dev.ReadGranularity()
	count := sess.addrStop - sess.addrNext
	if gran > 1 {
		count = (count + gran - 1) / gran * gran
	}
	if max := ctl.dev.ReadChunkWords(); count > max {
		count = max
	}
	sess.chunkWords = count
	ctl.setState(ReadRequest)
	ctl.submitWrite(ctl.dev.ReadMemCmd(sess.addrNext, count))
	sess.addrNext += count
}

func (ctl *Controller) processChunk(n int) {
	sess := ctl.sess
	if want := ctl.dev.RespLen(sess.chunkWords); n != want {
		sess.fail(&ProtocolError{Op: "memory read", Got: n, Want: want})
		return
	}
	usable := sess.addrNext
	if sess.addrStop < usable {
		usable = sess.addrStop
	}
	usable -= sess.addrDone

	values := sess.layout.Values(int(usable))
	if err := sess.dec.Decode(sess.inBuf[:n], values); err != nil {
		sess.fail(err)
		return
	}
	sess.addrDone += sess.chunkWords

	if sess.dec.Done() || sess.addrNext >= sess.addrStop {
		if err := sess.dec.Flush(); err != nil {
			sess.fail(err)
			return
		}
		ctl.issueReadEnd()
		return
	}
	ctl.requestChunk()
}

// endSession flushes whatever was decoded, emits the End packet and
// returns to Idle. It runs exactly once per session.
func (ctl *Controller) endSession() {
	sess := ctl.sess
	if sess == nil {
		return
	}
	ctl.sess = nil
	ctl.setState(Idle)

	// best-effort flush of already-decoded data
	_ = sess.dec.Flush()
	if sess.trig != nil {
		_ = sess.trig.Finish()
	}
	if sess.inFrame {
		_ = ctl.send(Packet{Kind: KindFrameEnd})
	}
	_ = ctl.send(Packet{Kind: KindEnd})

	ctl.lastErr = sess.err
	switch {
	case sess.err != nil:
		ctl.msg.Printf("acquisition ended: %v", sess.err)
	default:
		ctl.msg.Printf("acquisition complete: %d samples", sess.dec.SamplesDone())
	}
}
