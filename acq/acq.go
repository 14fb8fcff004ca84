// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package acq implements the asynchronous acquisition engine shared by
// all supported logic-analyzer families.
//
// The engine is single threaded: every callback runs from Poll, which is
// invoked from the embedding run loop, and at most one wire operation is
// outstanding at any time.
package acq // import "github.com/go-daq/lwla/acq"

const (
	// PacketSamples is the number of samples carried by one data packet.
	PacketSamples = 10000
)
