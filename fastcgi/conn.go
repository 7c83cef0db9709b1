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
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MetricsSink is the subset of internal/metrics.Registry a Conn reports to.
// Defined here, rather than imported directly, so fastcgi has no dependency
// on the metrics package's concrete types; cmd/fcgid wires a real
// implementation in, tests can pass a no-op.
type MetricsSink interface {
	ConnectionOpened()
	ConnectionClosed()
	RequestHandled()
	BytesWritten(n int)
}

type noopMetrics struct{}

func (noopMetrics) ConnectionOpened() {}
func (noopMetrics) ConnectionClosed() {}
func (noopMetrics) RequestHandled()   {}
func (noopMetrics) BytesWritten(int)  {}

// Conn drives one accepted TCP connection: it owns the socket, the set of
// in-flight requests on that connection (keyed by request id, since
// multiplexing genuinely distinct requests is not offered, spec §1), and
// runs the state machine of spec §4.5 until the peer closes the socket or a
// completed non-keep-alive request is flushed.
type Conn struct {
	id      string
	conn    net.Conn
	reader  *recordReader
	timeout time.Duration
	handler Handler
	logger  *zap.Logger
	metrics MetricsSink

	mu       sync.Mutex // serializes record writes so no two records' bytes are interleaved on the socket
	requests map[uint16]*Request
}

// ConnOption configures optional Conn behavior.
type ConnOption func(*Conn)

// WithMetrics attaches a metrics sink to the connection.
func WithMetrics(m MetricsSink) ConnOption {
	return func(c *Conn) { c.metrics = m }
}

// newConn wraps an accepted socket in a connection driver.
func newConn(nc net.Conn, timeout time.Duration, handler Handler, logger *zap.Logger, opts ...ConnOption) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	c := &Conn{
		id:       id,
		conn:     nc,
		reader:   newRecordReader(nc, timeout),
		timeout:  timeout,
		handler:  handler,
		logger:   logger.With(zap.String("conn", id[:8]), zap.Stringer("remote", nc.RemoteAddr())),
		metrics:  noopMetrics{},
		requests: make(map[uint16]*Request),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// writeRecordFor implements recordWriter for Response: each record write is
// serialized against every other record write on this connection. The lock
// covers one record at a time; a response's STDOUT/END_REQUEST sequence is
// kept whole because serve dispatches one request at a time (spec §4.4
// concurrency invariant).
func (c *Conn) writeRecordFor(requestID uint16, recType RecordType, content []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	if err := writeRecord(c.conn, recType, requestID, content); err != nil {
		return err
	}
	c.metrics.BytesWritten(len(content))
	return nil
}

// serve runs the connection's state machine until the socket closes.
func (c *Conn) serve() {
	c.metrics.ConnectionOpened()
	defer func() {
		c.conn.Close()
		c.metrics.ConnectionClosed()
	}()

	for {
		rec, err := c.reader.readRecord()
		if err != nil {
			if !errors.Is(err, ErrShortRead) {
				c.logger.Debug("connection ending", zap.Error(err))
			}
			return
		}

		switch rec.Type {
		case BeginRequest:
			if err := c.handleBeginRequest(rec); err != nil {
				c.logger.Warn("malformed begin request", zap.Error(err))
				return
			}

		case Params:
			if stop := c.handleStreamRecord(rec, func(req *Request) error {
				return req.feedParams(rec.Content)
			}); stop {
				return
			}

		case Stdin:
			if stop := c.handleStreamRecord(rec, func(req *Request) error {
				req.feedStdin(rec.Content)
				return nil
			}); stop {
				return
			}

		case AbortRequest, EndRequest:
			delete(c.requests, rec.RequestID)

		case GetValues:
			c.handleGetValues()
			return

		default:
			// Unsupported or out-of-band record type: read and discard,
			// continue (spec §7, "Unknown record type").
		}

		if req, ok := c.requests[rec.RequestID]; ok && req.Complete() {
			if !c.dispatch(req) {
				return
			}
		}
	}
}

// handleBeginRequest parses BeginRequestBody and creates or replaces the
// Request for this id, per spec §4.5 (Idle->Building and the
// duplicate-id recovery rule).
func (c *Conn) handleBeginRequest(rec Record) error {
	if len(rec.Content) < 8 {
		return ErrShortRead
	}
	role := Role(binary.BigEndian.Uint16(rec.Content[0:2]))
	flags := rec.Content[2]
	keepConn := flags&1 != 0

	_ = role // only Responder is implemented; role is otherwise informational (spec §4.5)

	req := newRequest(rec.RequestID, keepConn)
	c.requests[rec.RequestID] = req // duplicate id: silently discards any prior Request for this id
	c.handler.OnRequestIncoming(req)
	return nil
}

// handleStreamRecord feeds a PARAMS or STDIN record to its Request's
// assembler. A parse failure is fatal to the request: the protocol offers
// no dedicated parse-error status, so the driver responds with an empty
// body and an END_REQUEST carrying RequestComplete (spec §4.3), then
// applies the same keep-alive decision a normal completion would. The
// return value reports whether the caller should stop serving this
// connection.
func (c *Conn) handleStreamRecord(rec Record, feed func(*Request) error) bool {
	req, ok := c.requests[rec.RequestID]
	if !ok {
		return false // stray record for an id we don't know; ignore
	}
	if err := feed(req); err != nil {
		c.logger.Warn("request parse failure", zap.Uint16("request_id", rec.RequestID), zap.Error(err))
		resp := newResponse(c, rec.RequestID)
		_ = resp.flush()
		delete(c.requests, rec.RequestID)
		return !req.KeepConn
	}
	return false
}

// dispatch invokes the application handler for a completed request and
// applies the post-handler transitions of spec §4.5. It returns false if
// the caller should stop serving this connection.
func (c *Conn) dispatch(req *Request) bool {
	resp := newResponse(c, req.ID)
	c.invokeHandler(req, resp)

	if !resp.Closed() {
		_ = resp.flush()
	}
	c.metrics.RequestHandled()
	delete(c.requests, req.ID)

	return req.KeepConn
}

// invokeHandler runs the application's OnRequestReceived hook, recovering
// from a panic so one failing handler doesn't take down the connection
// (spec §7, "Handler exception"). The recovered value is also written as a
// STDERR record on the request's own stream, so the upstream web server's
// error log carries the failure, not just this process's own logger.
func (c *Conn) invokeHandler(req *Request, resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panic", zap.Any("recover", r), zap.Uint16("request_id", req.ID))
			_ = resp.WriteStderr([]byte(fmt.Sprintf("panic: %v\n", r)))
			if !resp.Closed() {
				_ = resp.flush()
			}
		}
	}()
	c.handler.OnRequestReceived(req, resp)
}

// handleGetValues answers a management record (request id 0) advertising
// this implementation's fixed capabilities, then closes the connection
// (spec §4.5: "emit a GetValuesResult ... close the socket").
func (c *Conn) handleGetValues() {
	result, err := encodeNameValueBlock(map[string]string{
		"FCGI_MAX_CONNS":  "1",
		"FCGI_MAX_REQS":   "1",
		"FCGI_MPXS_CONNS": "0",
	})
	if err != nil {
		c.logger.Error("encoding GET_VALUES_RESULT", zap.Error(err))
		return
	}
	if err := c.writeRecordFor(0, GetValuesResult, result); err != nil {
		c.logger.Debug("writing GET_VALUES_RESULT", zap.Error(err))
	}
}
