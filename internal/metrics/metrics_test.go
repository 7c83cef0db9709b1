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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestRegistryTracksConnectionLifecycle(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())

	reg.ConnectionOpened()
	reg.ConnectionOpened()
	assert.Equal(t, 2.0, counterValue(t, reg.ConnectionsOpened))
	assert.Equal(t, 2.0, gaugeValue(t, reg.ConnectionsActive))

	reg.ConnectionClosed()
	assert.Equal(t, 1.0, gaugeValue(t, reg.ConnectionsActive))
}

func TestRegistryTracksRequestsAndBytes(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())

	reg.RequestHandled()
	reg.RequestHandled()
	assert.Equal(t, 2.0, counterValue(t, reg.RequestsHandled))

	reg.BytesWritten(100)
	reg.BytesWritten(50)
	assert.Equal(t, 150.0, counterValue(t, reg.BytesWrittenTotal))
}
