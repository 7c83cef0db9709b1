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

// Handler is the capability an application supplies to a Listener: two
// hooks invoked at well-defined points in a request's lifecycle (spec §6).
// Implementations must be safe for concurrent use, since one Handler
// instance is shared by every connection's worker goroutine.
type Handler interface {
	// OnRequestIncoming is called exactly once per request, right after
	// BeginRequest is processed and before any PARAMS parsing completes.
	// Intended for logging and early rejection; it cannot yet see parsed
	// parameters or body.
	OnRequestIncoming(req *Request)

	// OnRequestReceived is called exactly once per completed request,
	// after the empty STDIN record closes the body stream. The handler
	// reads req.Params and req.Body(), mutates resp, and may call
	// resp.Send(...) or leave it to the driver's implicit flush.
	OnRequestReceived(req *Request, resp *Response)
}

// HandlerFuncs adapts two ordinary functions to the Handler interface,
// for callers who don't need a full type. A nil field is a no-op.
type HandlerFuncs struct {
	Incoming func(req *Request)
	Received func(req *Request, resp *Response)
}

// OnRequestIncoming implements Handler.
func (f HandlerFuncs) OnRequestIncoming(req *Request) {
	if f.Incoming != nil {
		f.Incoming(req)
	}
}

// OnRequestReceived implements Handler.
func (f HandlerFuncs) OnRequestReceived(req *Request, resp *Response) {
	if f.Received != nil {
		f.Received(req, resp)
	}
}
