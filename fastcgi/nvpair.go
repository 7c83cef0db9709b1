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
)

// maxVarLen is the exclusive upper bound on a single name or value
// length (the largest accepted length is maxVarLen-1), per spec §4.3: "any single name length or value length >= 2^31 is
// rejected as out-of-range".
const maxVarLen = 1 << 31

// Params is a parsed name/value mapping, as produced by closing a PARAMS
// stream. Names are conventionally treated as text (the CGI environment
// variable names), values are opaque bytes.
type Params map[string][]byte

// writeVarLen encodes a single length field: one byte if n <= 127,
// otherwise four big-endian bytes with the top bit of the first set.
func writeVarLen(w *bytes.Buffer, n int) {
	if n <= 127 {
		w.WriteByte(byte(n))
		return
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n)|(1<<31))
	w.Write(b[:])
}

// readVarLen decodes a single length field starting at buf[pos], returning
// the decoded value and the index just past it.
func readVarLen(buf []byte, pos int) (int, int, error) {
	if pos >= len(buf) {
		return 0, pos, ErrShortRead
	}
	b0 := buf[pos]
	if b0>>7 == 0 {
		return int(b0), pos + 1, nil
	}
	if pos+4 > len(buf) {
		return 0, pos, ErrShortRead
	}
	n := (uint32(b0&0x7f) << 24) | (uint32(buf[pos+1]) << 16) | (uint32(buf[pos+2]) << 8) | uint32(buf[pos+3])
	return int(n), pos + 4, nil
}

// encodeNameValuePair appends the wire encoding of one (name, value) pair
// to w: <nameLen><valueLen><nameBytes><valueBytes>.
func encodeNameValuePair(w *bytes.Buffer, name, value []byte) error {
	if len(name) >= maxVarLen || len(value) >= maxVarLen {
		return ErrOversizeParam
	}
	writeVarLen(w, len(name))
	writeVarLen(w, len(value))
	w.Write(name)
	w.Write(value)
	return nil
}

// decodeNameValueBlock parses an entire buffer as a concatenation of
// name/value pairs. A short read anywhere in the block is a framing error
// (spec §4.1: "Parsing consumes the entire buffer; a short read is a
// framing error"). Later occurrences of the same name overwrite earlier
// ones.
func decodeNameValueBlock(buf []byte) (Params, error) {
	params := make(Params)
	pos := 0
	for pos < len(buf) {
		nameLen, next, err := readVarLen(buf, pos)
		if err != nil {
			return nil, wrap(ErrShortRead, "reading name length", err)
		}
		pos = next

		valueLen, next, err := readVarLen(buf, pos)
		if err != nil {
			return nil, wrap(ErrShortRead, "reading value length", err)
		}
		pos = next

		if nameLen >= maxVarLen || valueLen >= maxVarLen {
			return nil, ErrOversizeParam
		}
		if pos+nameLen+valueLen > len(buf) {
			return nil, wrap(ErrShortRead, "reading name/value bytes", ErrShortRead)
		}

		name := make([]byte, nameLen)
		copy(name, buf[pos:pos+nameLen])
		pos += nameLen

		value := make([]byte, valueLen)
		copy(value, buf[pos:pos+valueLen])
		pos += valueLen

		params[string(name)] = value
	}
	return params, nil
}

// encodeNameValueBlock serializes pairs in iteration order. Used for
// GET_VALUES_RESULT, where a deterministic, small set of variables is
// advertised (map iteration order doesn't matter there since every
// variable name is distinct and order is not part of the contract).
func encodeNameValueBlock(pairs map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	for k, v := range pairs {
		if err := encodeNameValuePair(&buf, []byte(k), []byte(v)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
