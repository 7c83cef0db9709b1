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

import "bytes"

// Request is per-request state inside a connection: it accumulates the
// PARAMS and STDIN streams under one request id until both are closed,
// at which point the connection driver invokes the application handler.
type Request struct {
	ID       uint16
	KeepConn bool

	paramBuf     bytes.Buffer
	paramsClosed bool
	Params       Params

	body         bytes.Buffer
	bodyComplete bool
}

// newRequest creates a Request for a just-parsed BeginRequestBody.
func newRequest(id uint16, keepConn bool) *Request {
	return &Request{ID: id, KeepConn: keepConn}
}

// Body returns the accumulated STDIN bytes. Only meaningful once Complete
// reports true.
func (req *Request) Body() []byte {
	return req.body.Bytes()
}

// Complete reports whether both the PARAMS and STDIN streams have been
// closed by their peer, i.e. the application handler may now run.
func (req *Request) Complete() bool {
	return req.paramsClosed && req.bodyComplete
}

// feedParams implements the PARAMS rules of spec §4.3: non-empty content is
// appended to the accumulator; empty content closes the stream and parses
// the whole accumulated buffer as a name/value block.
func (req *Request) feedParams(content []byte) error {
	if len(content) > 0 {
		req.paramBuf.Write(content)
		return nil
	}
	params, err := decodeNameValueBlock(req.paramBuf.Bytes())
	if err != nil {
		return err
	}
	req.Params = params
	req.paramsClosed = true
	return nil
}

// feedStdin implements the STDIN rules of spec §4.3: non-empty content is
// appended to the body buffer; empty content marks the request complete.
func (req *Request) feedStdin(content []byte) {
	if len(content) > 0 {
		req.body.Write(content)
		return
	}
	req.bodyComplete = true
}
