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
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeBeginRequest frames a BeginRequestBody for id, role Responder, and
// the KEEP_CONN bit set according to keepConn.
func writeBeginRequest(t *testing.T, w net.Conn, id uint16, keepConn bool) {
	t.Helper()
	var content [8]byte
	binary.BigEndian.PutUint16(content[0:2], uint16(RoleResponder))
	if keepConn {
		content[2] = 1
	}
	require.NoError(t, writeRecord(w, BeginRequest, id, content[:]))
}

func writeParams(t *testing.T, w net.Conn, id uint16, params map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	for k, v := range params {
		require.NoError(t, encodeNameValuePair(&buf, []byte(k), []byte(v)))
	}
	require.NoError(t, writeRecord(w, Params, id, buf.Bytes()))
	require.NoError(t, writeRecord(w, Params, id, nil))
}

func writeStdin(t *testing.T, w net.Conn, id uint16, body []byte) {
	t.Helper()
	if len(body) > 0 {
		require.NoError(t, writeRecord(w, Stdin, id, body))
	}
	require.NoError(t, writeRecord(w, Stdin, id, nil))
}

// readAllRecords reads records from r until it hits EOF or an error.
func readAllRecords(r net.Conn) ([]Record, error) {
	var recs []Record
	rr := newRecordReader(r, time.Second)
	for {
		rec, err := rr.readRecord()
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
}

func TestConnServeSmallestGet(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	handler := HandlerFuncs{
		Received: func(req *Request, resp *Response) {
			assert.Equal(t, "GET", string(req.Params["REQUEST_METHOD"]))
			require.NoError(t, resp.Send([]byte("ok")))
		},
	}

	c := newConn(serverSide, time.Second, handler, nil)
	done := make(chan struct{})
	go func() {
		c.serve()
		close(done)
	}()

	writeBeginRequest(t, clientSide, 1, false)
	writeParams(t, clientSide, 1, map[string]string{"REQUEST_METHOD": "GET", "REQUEST_URI": "/"})
	writeStdin(t, clientSide, 1, nil)

	recs, err := readAllRecords(clientSide)
	require.Error(t, err) // connection closes after a non-keepalive response
	require.NotEmpty(t, recs)
	assert.Equal(t, EndRequest, recs[len(recs)-1].Type)

	<-done
}

func TestConnServeKeepAliveServesMultipleRequests(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	var handled []uint16
	handler := HandlerFuncs{
		Received: func(req *Request, resp *Response) {
			handled = append(handled, req.ID)
			require.NoError(t, resp.Send(nil))
		},
	}

	c := newConn(serverSide, time.Second, handler, nil)
	done := make(chan struct{})
	go func() {
		c.serve()
		close(done)
	}()

	for _, id := range []uint16{1, 2} {
		writeBeginRequest(t, clientSide, id, true)
		writeParams(t, clientSide, id, map[string]string{"REQUEST_METHOD": "GET"})
		writeStdin(t, clientSide, id, nil)

		rr := newRecordReader(clientSide, time.Second)
		for {
			rec, err := rr.readRecord()
			require.NoError(t, err)
			if rec.Type == EndRequest {
				break
			}
		}
	}

	clientSide.Close()
	<-done
	assert.Equal(t, []uint16{1, 2}, handled)
}

func TestConnServeHandlesGetValuesThenCloses(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	c := newConn(serverSide, time.Second, HandlerFuncs{}, nil)
	done := make(chan struct{})
	go func() {
		c.serve()
		close(done)
	}()

	require.NoError(t, writeRecord(clientSide, GetValues, 0, nil))

	rr := newRecordReader(clientSide, time.Second)
	rec, err := rr.readRecord()
	require.NoError(t, err)
	assert.Equal(t, GetValuesResult, rec.Type)

	params, err := decodeNameValueBlock(rec.Content)
	require.NoError(t, err)
	assert.Equal(t, "0", string(params["FCGI_MPXS_CONNS"]))

	<-done
}

func TestConnServeRecoversHandlerPanic(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	handler := HandlerFuncs{
		Received: func(req *Request, resp *Response) {
			panic("boom")
		},
	}

	c := newConn(serverSide, time.Second, handler, nil)
	done := make(chan struct{})
	go func() {
		c.serve()
		close(done)
	}()

	writeBeginRequest(t, clientSide, 1, false)
	writeParams(t, clientSide, 1, nil)
	writeStdin(t, clientSide, 1, nil)

	recs, err := readAllRecords(clientSide)
	require.Error(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, EndRequest, recs[len(recs)-1].Type)

	var sawStderr bool
	for _, rec := range recs {
		if rec.Type == Stderr {
			sawStderr = true
			assert.Contains(t, string(rec.Content), "boom")
		}
	}
	assert.True(t, sawStderr, "a recovered panic should be reported on the STDERR stream")

	<-done
}

func TestConnServeAbortDropsRequestWithoutEndRequest(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()

	var handled []uint16
	handler := HandlerFuncs{
		Received: func(req *Request, resp *Response) {
			handled = append(handled, req.ID)
			require.NoError(t, resp.Send(nil))
		},
	}

	c := newConn(serverSide, time.Second, handler, nil)
	done := make(chan struct{})
	go func() {
		c.serve()
		close(done)
	}()

	writeBeginRequest(t, clientSide, 7, true)
	require.NoError(t, writeRecord(clientSide, Params, 7, []byte{5})) // partial params, never closed
	require.NoError(t, writeRecord(clientSide, AbortRequest, 7, nil))

	// The connection must stay healthy: a second request on a fresh id is
	// still served, and no EndRequest ever arrives for the aborted id.
	writeBeginRequest(t, clientSide, 8, false)
	writeParams(t, clientSide, 8, map[string]string{"REQUEST_METHOD": "GET"})
	writeStdin(t, clientSide, 8, nil)

	recs, err := readAllRecords(clientSide)
	require.Error(t, err) // closes after the non-keepalive id=8 response

	for _, rec := range recs {
		if rec.Type == EndRequest {
			assert.NotEqual(t, uint16(7), rec.RequestID, "no EndRequest should be emitted for the aborted request")
		}
	}
	assert.Equal(t, []uint16{8}, handled)

	<-done
}
