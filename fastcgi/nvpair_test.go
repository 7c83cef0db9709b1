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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameValuePairRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		pairs map[string]string
	}{
		{name: "empty block", pairs: map[string]string{}},
		{name: "small names and values", pairs: map[string]string{"SCRIPT_NAME": "/index.php"}},
		{name: "long value requires 4-byte length", pairs: map[string]string{"QUERY_STRING": strings.Repeat("a", 200)}},
		{name: "long name requires 4-byte length", pairs: map[string]string{strings.Repeat("K", 150): "v"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			for k, v := range tt.pairs {
				require.NoError(t, encodeNameValuePair(&buf, []byte(k), []byte(v)))
			}

			got, err := decodeNameValueBlock(buf.Bytes())
			require.NoError(t, err)
			assert.Len(t, got, len(tt.pairs))
			for k, v := range tt.pairs {
				assert.Equal(t, v, string(got[k]))
			}
		})
	}
}

func TestDecodeNameValueBlockLaterOverwritesEarlier(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encodeNameValuePair(&buf, []byte("K"), []byte("first")))
	require.NoError(t, encodeNameValuePair(&buf, []byte("K"), []byte("second")))

	got, err := decodeNameValueBlock(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "second", string(got["K"]))
}

func TestDecodeNameValueBlockShortRead(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{name: "truncated after name length", buf: []byte{5}},
		{name: "truncated inside name bytes", buf: []byte{5, 1, 'a', 'b'}},
		{name: "truncated 4-byte length", buf: []byte{0x80, 0x00, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeNameValueBlock(tt.buf)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrShortRead)
		})
	}
}

func TestWriteVarLenBoundary(t *testing.T) {
	var buf bytes.Buffer
	writeVarLen(&buf, 127)
	assert.Equal(t, 1, buf.Len())

	buf.Reset()
	writeVarLen(&buf, 128)
	assert.Equal(t, 4, buf.Len())
}

func TestEncodeNameValueBlockDeterministicPerKey(t *testing.T) {
	out, err := encodeNameValueBlock(map[string]string{
		"FCGI_MAX_CONNS":  "1",
		"FCGI_MAX_REQS":   "1",
		"FCGI_MPXS_CONNS": "0",
	})
	require.NoError(t, err)

	got, err := decodeNameValueBlock(out)
	require.NoError(t, err)
	assert.Equal(t, "1", string(got["FCGI_MAX_CONNS"]))
	assert.Equal(t, "1", string(got["FCGI_MAX_REQS"]))
	assert.Equal(t, "0", string(got["FCGI_MPXS_CONNS"]))
}
