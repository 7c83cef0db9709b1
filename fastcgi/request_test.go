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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestCompleteRequiresBothStreamsClosed(t *testing.T) {
	req := newRequest(1, false)
	assert.False(t, req.Complete())

	require.NoError(t, req.feedParams(nil))
	assert.False(t, req.Complete(), "params closed alone isn't enough")

	req.feedStdin(nil)
	assert.True(t, req.Complete())
}

func TestFeedParamsAccumulatesThenParsesOnClose(t *testing.T) {
	req := newRequest(1, false)

	var first, second bytes.Buffer
	require.NoError(t, encodeNameValuePair(&first, []byte("REQUEST_METHOD"), []byte("GET")))
	require.NoError(t, encodeNameValuePair(&second, []byte("REQUEST_URI"), []byte("/index.php")))

	require.NoError(t, req.feedParams(first.Bytes()))
	require.NoError(t, req.feedParams(second.Bytes()))
	assert.Nil(t, req.Params, "params aren't parsed until the stream closes")

	require.NoError(t, req.feedParams(nil))
	require.Equal(t, "GET", string(req.Params["REQUEST_METHOD"]))
	require.Equal(t, "/index.php", string(req.Params["REQUEST_URI"]))
}

func TestFeedParamsPropagatesParseError(t *testing.T) {
	req := newRequest(1, false)
	require.NoError(t, req.feedParams([]byte{5})) // truncated name length
	err := req.feedParams(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestFeedStdinAccumulatesBody(t *testing.T) {
	req := newRequest(1, false)
	req.feedStdin([]byte("hello, "))
	req.feedStdin([]byte("world"))
	assert.False(t, req.bodyComplete)
	req.feedStdin(nil)
	assert.True(t, req.bodyComplete)
	assert.Equal(t, "hello, world", string(req.Body()))
}
