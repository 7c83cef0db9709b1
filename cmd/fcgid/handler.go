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

package main

import (
	"go.uber.org/zap"

	"github.com/kylixfans/fcgid/fastcgi"
)

// loggingHandler builds the default fcgid request hooks: every request is
// logged with its id and request URI, then answered with the protocol
// engine's implicit empty-body flush. fcgid is infrastructure, not an
// application framework; wiring in an actual content handler is left to
// importers of the fastcgi package.
func loggingHandler(logger *zap.Logger) (func(*fastcgi.Request), func(*fastcgi.Request, *fastcgi.Response)) {
	onIncoming := func(req *fastcgi.Request) {
		logger.Debug("request incoming", zap.Uint16("request_id", req.ID))
	}
	onReceived := func(req *fastcgi.Request, resp *fastcgi.Response) {
		uri := string(req.Params["REQUEST_URI"])
		method := string(req.Params["REQUEST_METHOD"])
		logger.Info("request received",
			zap.Uint16("request_id", req.ID),
			zap.String("method", method),
			zap.String("uri", uri),
			zap.Int("body_bytes", len(req.Body())),
		)
		// No application handler is wired in; the driver's implicit flush
		// on return answers with the default status line and empty body.
	}
	return onIncoming, onReceived
}
