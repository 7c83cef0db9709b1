// Copyright 2015 Light Code Labs, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fastcgi

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Version is a short identifier string for this implementation, surfaced
// by Listener.Version (spec §4.6).
const Version = "fastcgi/1.0-responder"

// ListenerConfig configures a Listener. Zero value is a usable default.
type ListenerConfig struct {
	// ReadTimeout bounds every blocking read on an accepted connection's
	// socket. Zero selects DefaultReadTimeout.
	ReadTimeout time.Duration

	// Logger receives structured logs for accept/connection lifecycle
	// events. Nil discards logs.
	Logger *zap.Logger

	// Metrics receives connection/request counters. Nil disables metrics.
	Metrics MetricsSink
}

// Listener binds a single TCP port on localhost and runs one Conn per
// accepted socket (spec §1, §4.6). It matches the documented
// nginx-loopback deployment: no other bind address is accepted.
type Listener struct {
	cfg ListenerConfig

	mu       sync.Mutex
	ln       net.Listener
	active   bool
	incoming func(req *Request)
	received func(req *Request, resp *Response)

	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewListener creates a Listener with the given configuration.
func NewListener(cfg ListenerConfig) *Listener {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	return &Listener{cfg: cfg}
}

// SetHandlers registers the application's hooks. Per spec §3 invariant,
// this may only be called while the listener is stopped.
func (l *Listener) SetHandlers(onIncoming func(req *Request), onReceived func(req *Request, resp *Response)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active {
		return fmt.Errorf("fastcgi: cannot set handlers while listener is active")
	}
	l.incoming = onIncoming
	l.received = onReceived
	return nil
}

// IsActive reports whether the listener is currently accepting connections.
func (l *Listener) IsActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Version returns this implementation's short identifier string.
func (l *Listener) Version() string { return Version }

// Start binds localhost:port and begins accepting connections in the
// background. It returns once the socket is bound; Accept failures for
// individual connections do not stop the listener.
func (l *Listener) Start(port int) error {
	l.mu.Lock()
	if l.active {
		l.mu.Unlock()
		return fmt.Errorf("fastcgi: listener already active")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		l.mu.Unlock()
		return wrap(ErrPortUnavailable, fmt.Sprintf("binding 127.0.0.1:%d", port), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, _ := errgroup.WithContext(context.Background())

	l.ln = ln
	l.active = true
	l.group = group
	l.cancel = cancel
	handler := HandlerFuncs{Incoming: l.incoming, Received: l.received}
	l.mu.Unlock()

	l.cfg.Logger.Info("listener started", zap.Int("port", port))

	group.Go(func() error {
		return l.acceptLoop(ctx, ln, handler)
	})

	return nil
}

// acceptLoop accepts connections until the listener is stopped, spawning
// one worker per connection (spec §5: "Parallel workers, one per accepted
// TCP connection").
func (l *Listener) acceptLoop(ctx context.Context, ln net.Listener, handler Handler) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil // Stop() closed the listener; not an error
			default:
				l.cfg.Logger.Warn("accept failed", zap.Error(err))
				time.Sleep(10 * time.Millisecond)
				continue
			}
		}

		l.group.Go(func() error {
			conn := newConn(nc, l.cfg.ReadTimeout, handler, l.cfg.Logger, WithMetrics(l.cfg.Metrics))
			conn.serve()
			return nil
		})
	}
}

// Stop stops accepting new connections and waits for in-flight connection
// workers to finish, bounded by ctx (spec §9 Open Question (a), decided:
// yes, a graceful drain timeout is supported). If ctx is cancelled or its
// deadline elapses before all workers finish, Stop returns ErrDrainTimeout
// while those workers keep running in the background — stopping the
// listener does not cancel in-flight handlers (spec §5).
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.active {
		l.mu.Unlock()
		return nil
	}
	ln := l.ln
	cancel := l.cancel
	group := l.group
	l.active = false
	l.mu.Unlock()

	cancel()
	_ = ln.Close()

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	select {
	case err := <-done:
		l.cfg.Logger.Info("listener stopped")
		return err
	case <-ctx.Done():
		l.cfg.Logger.Warn("listener stop: drain timed out, workers still running")
		return ErrDrainTimeout
	}
}
