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
	"bytes"
	"fmt"
)

const (
	defaultPoweredBy    = "MVCXE.NGINX.FCGI"
	defaultContentType  = "text/html"
	defaultCharset      = "utf-8"
	defaultHTTPVersion  = "HTTP/1.1"
	defaultStatusCode   = 200
	poweredByHeaderName = "X-Powered-By"
	contentTypeHeader   = "Content-Type"
)

// recordWriter is the connection-side capability a Response needs: write one
// record for the given request id. The connection driver implements this so
// Response stays free of net.Conn and the state-machine bookkeeping.
type recordWriter interface {
	writeRecordFor(requestID uint16, recType RecordType, content []byte) error
}

// orderedHeader is a name -> value map that remembers insertion order, so
// the response prelude is deterministic (spec §3: "preserves insertion
// order for deterministic output").
type orderedHeader struct {
	keys []string
	idx  map[string]int
	vals []string
}

func newOrderedHeader() *orderedHeader {
	return &orderedHeader{idx: make(map[string]int)}
}

func (h *orderedHeader) set(name, value string) {
	if i, ok := h.idx[name]; ok {
		h.vals[i] = value
		return
	}
	h.idx[name] = len(h.keys)
	h.keys = append(h.keys, name)
	h.vals = append(h.vals, value)
}

func (h *orderedHeader) get(name string) (string, bool) {
	i, ok := h.idx[name]
	if !ok {
		return "", false
	}
	return h.vals[i], true
}

func (h *orderedHeader) each(fn func(name, value string)) {
	for i, k := range h.keys {
		fn(k, h.vals[i])
	}
}

// Response stages an application's HTTP response for one request until it
// is flushed onto the wire as STDOUT/END_REQUEST records.
type Response struct {
	w         recordWriter
	requestID uint16

	httpVersion string
	status      int
	header      *orderedHeader
	contentType string
	charset     string
	closed      bool
}

// newResponse creates a Response with the spec's defaults: HTTP/1.1, status
// 200, and a header map seeded with X-Powered-By and a composed Content-Type.
func newResponse(w recordWriter, requestID uint16) *Response {
	r := &Response{
		w:           w,
		requestID:   requestID,
		httpVersion: defaultHTTPVersion,
		status:      defaultStatusCode,
		header:      newOrderedHeader(),
		contentType: defaultContentType,
		charset:     defaultCharset,
	}
	r.header.set(poweredByHeaderName, defaultPoweredBy)
	r.header.set(contentTypeHeader, r.composedContentType())
	return r
}

func (r *Response) composedContentType() string {
	if r.charset == "" {
		return r.contentType
	}
	return fmt.Sprintf("%s; charset=%s", r.contentType, r.charset)
}

// SetStatus sets the HTTP status code for the response.
func (r *Response) SetStatus(code int) { r.status = code }

// SetVersion overrides the HTTP version string in the status line.
func (r *Response) SetVersion(version string) { r.httpVersion = version }

// SetHeader sets (or replaces) an arbitrary response header.
func (r *Response) SetHeader(name, value string) { r.header.set(name, value) }

// SetContentType sets the MIME type; the Content-Type header is recomposed
// with the current charset, per spec §4.4.
func (r *Response) SetContentType(contentType string) {
	r.contentType = contentType
	r.header.set(contentTypeHeader, r.composedContentType())
}

// SetCharset sets the charset; the Content-Type header is recomposed with
// the current content type.
func (r *Response) SetCharset(charset string) {
	r.charset = charset
	r.header.set(contentTypeHeader, r.composedContentType())
}

// WriteStderr frames diagnostic bytes as a STDERR record for this request,
// interleaved with any STDOUT already sent, so an upstream web server's
// error log has something when a handler writes a diagnostic mid-response.
func (r *Response) WriteStderr(p []byte) error {
	return r.w.writeRecordFor(r.requestID, Stderr, p)
}

// Closed reports whether the response has already been flushed.
func (r *Response) Closed() bool { return r.closed }

// prelude assembles the CGI-style header block: "<version> <code> OK\n"
// followed by "<name>:<value>\n" per header, then a blank line.
func (r *Response) prelude() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %d OK\n", r.httpVersion, r.status)
	r.header.each(func(name, value string) {
		fmt.Fprintf(&buf, "%s:%s\n", name, value)
	})
	buf.WriteByte('\n')
	return buf.Bytes()
}

// Send assembles the prelude plus body and writes it out via sendRaw.
func (r *Response) Send(body []byte) error {
	full := append(r.prelude(), body...)
	return r.sendRaw(full)
}

// sendRaw chunks data into <=65535-byte STDOUT records, closes the stream
// with an empty STDOUT, and terminates the request with a single
// END_REQUEST carrying RequestComplete. It does not emit the original
// implementation's redundant extra trailing empty STDOUT (spec §9,
// "Response chunking bug in source").
func (r *Response) sendRaw(data []byte) error {
	for len(data) > 0 {
		n := len(data)
		if n > maxContentLen {
			n = maxContentLen
		}
		if err := r.w.writeRecordFor(r.requestID, Stdout, data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	if err := r.w.writeRecordFor(r.requestID, Stdout, nil); err != nil {
		return err
	}
	if err := r.writeEndRequest(RequestComplete); err != nil {
		return err
	}
	r.closed = true
	return nil
}

func (r *Response) writeEndRequest(status ProtocolStatus) error {
	var body [8]byte // appStatus(4,0) | protocolStatus(1) | reserved(3)
	body[4] = byte(status)
	return r.w.writeRecordFor(r.requestID, EndRequest, body[:])
}

// flush closes the response if it hasn't already been closed, emitting the
// assembled prelude with an empty body. Idempotent, per spec §4.4.
func (r *Response) flush() error {
	if r.closed {
		return nil
	}
	return r.sendRaw(r.prelude())
}
