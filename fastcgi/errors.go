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
	"errors"
	"fmt"
)

// Sentinel error kinds a caller can match with errors.Is. Each protocol
// failure is wrapped with one of these so the connection driver can decide
// whether to terminate the connection, fail only the request, or surface
// the error to the listener's caller.
var (
	ErrCorruptStream   = errors.New("fastcgi: corrupt stream")
	ErrOversizeRecord  = errors.New("fastcgi: record content exceeds 65535 bytes")
	ErrOversizeParam   = errors.New("fastcgi: name or value length out of range")
	ErrTimeout         = errors.New("fastcgi: read timeout")
	ErrShortRead       = errors.New("fastcgi: short read")
	ErrPortUnavailable = errors.New("fastcgi: port unavailable")
	ErrDrainTimeout    = errors.New("fastcgi: graceful drain timed out")
)

// wrap annotates err with a sentinel kind and a short message, in the style
// gophpeek-fcgx uses for its own FastCGI error taxonomy.
func wrap(kind error, msg string, err error) error {
	return fmt.Errorf("%w: %s: %v", kind, msg, err)
}
