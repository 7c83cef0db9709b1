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

// Package fastcgi implements the Responder role of the FastCGI 1.0
// protocol: record framing, the name/value sublanguage, per-request
// assembly, response chunking, and a connection driver that can be
// embedded behind a TCP listener.
package fastcgi

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Version1 is the only protocol version this package understands.
const Version1 uint8 = 1

// headerLen is the fixed size, in bytes, of a record header.
const headerLen = 8

// maxContentLen is the largest content length a single record can carry;
// it is also the ceiling response chunking must respect.
const maxContentLen = 65535

// RecordType is the closed enum of FastCGI record types (section 8).
type RecordType uint8

// Record type codes, as they appear on the wire.
const (
	BeginRequest RecordType = iota + 1
	AbortRequest
	EndRequest
	Params
	Stdin
	Stdout
	Stderr
	Data
	GetValues
	GetValuesResult
	UnknownType
)

func (t RecordType) String() string {
	switch t {
	case BeginRequest:
		return "BEGIN_REQUEST"
	case AbortRequest:
		return "ABORT_REQUEST"
	case EndRequest:
		return "END_REQUEST"
	case Params:
		return "PARAMS"
	case Stdin:
		return "STDIN"
	case Stdout:
		return "STDOUT"
	case Stderr:
		return "STDERR"
	case Data:
		return "DATA"
	case GetValues:
		return "GET_VALUES"
	case GetValuesResult:
		return "GET_VALUES_RESULT"
	default:
		return "UNKNOWN_TYPE"
	}
}

// normalizeType maps any wire byte outside the defined set to UnknownType,
// per spec: "any record type outside the defined set is normalised to
// UnknownType on read".
func normalizeType(b byte) RecordType {
	t := RecordType(b)
	if t < BeginRequest || t > UnknownType {
		return UnknownType
	}
	return t
}

// ProtocolStatus is the 1-byte status carried in an EndRequestBody.
type ProtocolStatus uint8

// Protocol status codes for the END_REQUEST trailer.
const (
	RequestComplete ProtocolStatus = iota
	CantMpxConn
	Overloaded
	UnknownRole
)

// Role is the FastCGI role requested in BeginRequestBody. Only Responder
// is implemented; the connection driver does not check the role, so a
// request for any other role is served as a Responder request.
type Role uint16

// Roles defined by the FastCGI specification.
const (
	RoleResponder Role = iota + 1
	RoleAuthorizer
	RoleFilter
)

// Record is the protocol atom: a typed, length-prefixed frame. PaddingLength
// is only meaningful during decode bookkeeping; callers never need to set it
// when building a Record to write, since writeRecord always emits zero
// padding bytes.
type Record struct {
	Version       uint8
	Type          RecordType
	RequestID     uint16
	Content       []byte
	PaddingLength uint8
}

// encodeHeader writes the 8-byte record header for content of length n.
// All multi-byte fields are big-endian; padding is always zero on write.
func encodeHeader(w io.Writer, recType RecordType, requestID uint16, n int) error {
	var h [headerLen]byte
	h[0] = Version1
	h[1] = byte(recType)
	binary.BigEndian.PutUint16(h[2:4], requestID)
	binary.BigEndian.PutUint16(h[4:6], uint16(n))
	h[6] = 0 // padding length, always zero on write
	h[7] = 0 // reserved
	_, err := w.Write(h[:])
	return err
}

// writeRecord frames content as a single record and writes it to w. The
// caller is responsible for chunking content to at most 65535 bytes; see
// Response.sendRaw for the chunking policy that respects this ceiling.
func writeRecord(w io.Writer, recType RecordType, requestID uint16, content []byte) error {
	if len(content) > maxContentLen {
		return fmt.Errorf("%w: got %d bytes", ErrOversizeRecord, len(content))
	}
	if err := encodeHeader(w, recType, requestID, len(content)); err != nil {
		return err
	}
	if len(content) == 0 {
		return nil
	}
	_, err := w.Write(content)
	return err
}

// decodeHeader reads and validates the fixed 8-byte record header, returning
// the type, request id, content length, and padding length that follow.
func decodeHeader(r io.Reader) (recType RecordType, requestID uint16, contentLen int, paddingLen uint8, err error) {
	var h [headerLen]byte
	if _, err = io.ReadFull(r, h[:]); err != nil {
		return
	}
	if h[0] != Version1 {
		err = fmt.Errorf("%w: got version %d", ErrCorruptStream, h[0])
		return
	}
	recType = normalizeType(h[1])
	requestID = binary.BigEndian.Uint16(h[2:4])
	contentLen = int(binary.BigEndian.Uint16(h[4:6]))
	paddingLen = h[6]
	return
}
