// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package heartbeat

import (
	"context"
	"log/slog"
	"time"
)

// HeartbeatFunc is the function signature for heartbeat callbacks
type HeartbeatFunc func(ctx context.Context) error

// Heartbeater runs a callback on a fixed interval. Calls never overlap:
// a tick that arrives while the callback is still running is dropped.
type Heartbeater struct {
	heartbeatFunc HeartbeatFunc
	ll            *slog.Logger
	interval      time.Duration
	initialBeat   bool
}

type Option func(*Heartbeater)

// WithoutInitialBeat waits for the first tick instead of calling the
// callback as soon as the loop starts.
func WithoutInitialBeat() Option {
	return func(h *Heartbeater) {
		h.initialBeat = false
	}
}

// New creates a new generic heartbeater with the given callback function
func New(heartbeatFunc HeartbeatFunc, interval time.Duration, logger *slog.Logger, opts ...Option) *Heartbeater {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Heartbeater{
		heartbeatFunc: heartbeatFunc,
		ll:            logger.With("component", "heartbeater"),
		interval:      interval,
		initialBeat:   true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Interval returns the tick period.
func (h *Heartbeater) Interval() time.Duration {
	return h.interval
}

// Start begins the heartbeat loop in a goroutine. The returned stop function
// cancels the loop and blocks until it has exited; it is safe to call more than once.
func (h *Heartbeater) Start(ctx context.Context) (stop func()) {
	heartbeatCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		h.run(heartbeatCtx)
	}()

	return func() {
		cancel()
		<-done
	}
}

// run is the main heartbeat loop
func (h *Heartbeater) run(ctx context.Context) {
	h.ll.Debug("Starting heartbeat loop", "interval", h.interval)

	if h.initialBeat {
		h.sendHeartbeat(ctx)
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.ll.Debug("Context cancelled, stopping heartbeat loop")
			return
		case <-ticker.C:
			// both cases may be ready at once; shutdown wins
			if ctx.Err() != nil {
				return
			}
			h.sendHeartbeat(ctx)
		}
	}
}

// sendHeartbeat calls the configured heartbeat function
func (h *Heartbeater) sendHeartbeat(ctx context.Context) {
	err := h.heartbeatFunc(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		h.ll.Warn("Heartbeat failed (continuing)", "error", err)
	}
}
