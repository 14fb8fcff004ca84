// Copyright 2025 The go-daq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package acq

import (
	"context"
	"time"
)

// Run drives the controller until its session ends. When ctx is
// canceled the session is stopped and the loop keeps ticking so the
// device is torn down cleanly before Run returns.
func Run(ctx context.Context, ctl *Controller, period time.Duration) error {
	if period <= 0 {
		period = 10 * time.Millisecond
	}
	tick := time.NewTicker(period)
	defer tick.Stop()

	stopped := false
	for ctl.Active() {
		if !stopped {
			select {
			case <-ctx.Done():
				ctl.Stop()
				stopped = true
				continue
			case <-tick.C:
			}
		} else {
			<-tick.C
		}
		ctl.Tick()
	}
	return ctl.Err()
}
