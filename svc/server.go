// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package svc exposes capture sessions through a TDAQ control server.
package svc // import "github.com/go-daq/lwla/svc"

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/go-daq/lwla/acq"
)

// Builder creates one controller delivering its packets to sink.
// The service owns transports and devices through it.
type Builder func(sink acq.Sink) (*acq.Controller, error)

// Server drives an arena of capture sessions from TDAQ commands and
// streams the encoded packets on its output endpoint.
type Server struct {
	newCtl Builder
	ndev   int

	mu    sync.Mutex
	arena *acq.Arena
	ids   []uuid.UUID
	cfg   acq.Config

	out chan []byte
}

// New returns a server managing ndev identical devices.
func New(newCtl Builder, ndev int) *Server {
	if ndev <= 0 {
		ndev = 1
	}
	return &Server{
		newCtl: newCtl,
		ndev:   ndev,
		arena:  acq.NewArena(),
		out:    make(chan []byte, 256),
	}
}

type chanSink struct {
	id  uuid.UUID // set once the controller is registered, before Start
	out chan []byte
}

func (s *chanSink) Send(p acq.Packet) error {
	s.out <- EncodeStream(s.id, p)
	return nil
}

// OnConfig decodes the capture configuration.
func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
	cfg := acq.Config{
		SampleRate:   dec.ReadU64(),
		Channels:     dec.ReadU64(),
		TriggerMask:  dec.ReadU64(),
		TriggerValue: dec.ReadU64(),
		TriggerEdges: dec.ReadU64(),
		CaptureRatio: int(dec.ReadU32()),
		FrameSamples: dec.ReadU64(),
		LimitSamples: dec.ReadU64(),
		LimitMillis:  dec.ReadU64(),
	}

	srv.mu.Lock()
	srv.cfg = cfg
	srv.mu.Unlock()

	ctx.Msg.Infof("configured: rate=%d Hz channels=%#x limits=%d samples / %d ms",
		cfg.SampleRate, cfg.Channels, cfg.LimitSamples, cfg.LimitMillis,
	)
	return nil
}

// OnInit creates and registers the controllers.
func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	for _, id := range srv.ids {
		srv.arena.Remove(id)
	}
	srv.ids = srv.ids[:0]

	for i := 0; i < srv.ndev; i++ {
		sink := &chanSink{out: srv.out}
		ctl, err := srv.newCtl(sink)
		if err != nil {
			return fmt.Errorf("could not create controller %d: %w", i, err)
		}
		sink.id = srv.arena.Add(ctl)
		srv.ids = append(srv.ids, sink.id)
		ctx.Msg.Infof("session %s ready", sink.id)
	}
	return nil
}

// OnStart begins a capture session on every registered device.
func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	for _, id := range srv.ids {
		ctl, ok := srv.arena.Get(id)
		if !ok {
			return fmt.Errorf("unknown session %s", id)
		}
		if err := ctl.Start(srv.cfg); err != nil {
			return fmt.Errorf("could not start session %s: %w", id, err)
		}
		ctx.Msg.Infof("session %s started", id)
	}
	return nil
}

// OnStop acknowledges the stop request. The run handlers observe the
// canceled run context and wind their sessions down on their own
// goroutines; controllers are never touched from the command handlers
// while a run is live.
func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Infof("stopping sessions")
	return nil
}

// OnStatus reports the state of every session.
func (srv *Server) OnStatus(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	var sb strings.Builder
	for _, id := range srv.ids {
		ctl, ok := srv.arena.Get(id)
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "%s: %v\n", id, ctl.State())
	}
	resp.Body = []byte(sb.String())
	return nil
}

// OnQuit stops everything.
func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	return srv.OnStop(ctx, resp, req)
}

// Data feeds the output endpoint with encoded packets.
func (srv *Server) Data(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-srv.out:
		dst.Body = data
	}
	return nil
}

// Run ticks every session until the run stops, one goroutine per
// device so a slow transport cannot stall the others.
func (srv *Server) Run(ctx tdaq.Context) error {
	srv.mu.Lock()
	ids := append([]uuid.UUID(nil), srv.ids...)
	srv.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx.Ctx)
	for _, id := range ids {
		ctl, ok := srv.arena.Get(id)
		if !ok {
			continue
		}
		g.Go(func() error {
			tick := time.NewTicker(10 * time.Millisecond)
			defer tick.Stop()
			stopped := false
			for {
				select {
				case <-gctx.Done():
					if !stopped {
						ctl.Stop()
						stopped = true
					}
					if !ctl.Active() {
						return nil
					}
					<-tick.C
				case <-tick.C:
				}
				ctl.Tick()
			}
		})
	}
	return g.Wait()
}
