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
	"io"
	"net"
	"time"
)

// DefaultReadTimeout is the per-read deadline applied to a connection's
// socket when no override is configured (spec §5: "default 5000 ms").
const DefaultReadTimeout = 5 * time.Second

// recordReader pulls complete records off a net.Conn, validating the
// version and consuming the trailing padding on every read, as fcgiclient.go's
// record.read does for the client direction.
type recordReader struct {
	conn    net.Conn
	timeout time.Duration
}

func newRecordReader(conn net.Conn, timeout time.Duration) *recordReader {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	return &recordReader{conn: conn, timeout: timeout}
}

// readRecord blocks, up to the reader's timeout, for one complete record.
func (rr *recordReader) readRecord() (Record, error) {
	if rr.timeout > 0 {
		if err := rr.conn.SetReadDeadline(time.Now().Add(rr.timeout)); err != nil {
			return Record{}, err
		}
	}

	recType, requestID, contentLen, paddingLen, err := decodeHeader(rr.conn)
	if err != nil {
		return Record{}, classifyReadErr(err, "reading record header")
	}

	var content []byte
	if contentLen > 0 {
		content = make([]byte, contentLen)
		if _, err := io.ReadFull(rr.conn, content); err != nil {
			return Record{}, classifyReadErr(err, "reading record content")
		}
	}

	if paddingLen > 0 {
		if _, err := io.CopyN(io.Discard, rr.conn, int64(paddingLen)); err != nil {
			return Record{}, classifyReadErr(err, "reading record padding")
		}
	}

	return Record{
		Version:       Version1,
		Type:          recType,
		RequestID:     requestID,
		Content:       content,
		PaddingLength: paddingLen,
	}, nil
}

// classifyReadErr rewrites a raw read error into one of the sentinel kinds
// so callers can use errors.Is uniformly regardless of which read call
// failed: a deadline expiry becomes ErrTimeout, an EOF (including a short,
// mid-record EOF) becomes ErrShortRead, anything else (e.g. ErrCorruptStream
// from a bad version byte) passes through unchanged.
func classifyReadErr(err error, msg string) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return wrap(ErrTimeout, msg, err)
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return wrap(ErrShortRead, msg, err)
	}
	return err
}
