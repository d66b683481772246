// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metric

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/propsearch/region"
)

func testContexts() (Context, Context) {
	g := region.NewRegistry(region.Options{})
	phase := g.AddOrGetRegion("phase", "main.c", 10, 90, region.LoopRegion)
	loop := g.AddOrGetRegion("inner", "main.c", 20, 30, region.LoopRegion)
	return Context{Region: phase}, Context{Region: loop}
}

func TestSessionRound(t *testing.T) {
	ctx := context.Background()
	phase, loop := testContexts()
	src := NewStaticSource()
	src.Set(phase, ExecutionTime, 1000)
	src.Set(loop, ExecutionTime, 600)

	s := NewSession(src)
	assert.Equal(t, NotAllInfoGathered, s.Results())

	s.Request(phase, ExecutionTime)
	s.Request(loop, ExecutionTime)
	s.Request(loop, ExecutionTime)
	s.Request(loop, Cycles)
	assert.Equal(t, 3, s.Pending())

	require.NoError(t, s.TransferRequests())
	assert.Equal(t, 0, s.Pending())
	assert.Len(t, s.Active(), 3)
	assert.True(t, s.BeginEnd())
	assert.Equal(t, float64(Unavailable), s.Get(phase, ExecutionTime), "no value before the experiment")

	require.NoError(t, s.RunExperiment(ctx))
	assert.Equal(t, AllInfoGathered, s.Results())
	assert.Equal(t, 1000.0, s.Get(phase, ExecutionTime))
	assert.Equal(t, 600.0, s.Get(loop, ExecutionTime))
	assert.Equal(t, float64(Unavailable), s.Get(loop, Cycles))
	assert.Equal(t, float64(Unavailable), s.Get(loop, Instructions), "never requested")
}

func TestSessionLag(t *testing.T) {
	ctx := context.Background()
	phase, _ := testContexts()
	src := NewStaticSource()
	src.Lag = 1
	src.Set(phase, ExecutionTime, 5)

	s := NewSession(src)
	s.Request(phase, ExecutionTime)
	require.NoError(t, s.TransferRequests())
	require.NoError(t, s.RunExperiment(ctx))
	assert.Equal(t, NotAllInfoGathered, s.Results())
	assert.Equal(t, float64(Unavailable), s.Get(phase, ExecutionTime))

	// Transferring with nothing pending measures the same requests again.
	require.NoError(t, s.TransferRequestsNoBeginEnd())
	assert.False(t, s.BeginEnd())
	require.NoError(t, s.RunExperiment(ctx))
	assert.Equal(t, AllInfoGathered, s.Results())
	assert.Equal(t, 5.0, s.Get(phase, ExecutionTime))
	assert.Equal(t, 2, s.Experiments())
	assert.Equal(t, 2, src.Runs())
}

func TestSessionTransferClearsValues(t *testing.T) {
	ctx := context.Background()
	phase, loop := testContexts()
	src := NewStaticSource()
	src.Set(phase, ExecutionTime, 5)
	src.Set(loop, ExecutionTime, 3)

	s := NewSession(src)
	s.Request(phase, ExecutionTime)
	require.NoError(t, s.TransferRequests())
	require.NoError(t, s.RunExperiment(ctx))
	require.Equal(t, 5.0, s.Get(phase, ExecutionTime))

	s.Request(loop, ExecutionTime)
	require.NoError(t, s.TransferRequests())
	require.NoError(t, s.RunExperiment(ctx))
	assert.Equal(t, float64(Unavailable), s.Get(phase, ExecutionTime))
	assert.Equal(t, 3.0, s.Get(loop, ExecutionTime))
}

func TestSessionEraseAndClean(t *testing.T) {
	ctx := context.Background()
	phase, loop := testContexts()
	src := NewStaticSource()
	src.Set(phase, ExecutionTime, 5)
	src.Set(loop, ExecutionTime, 3)

	s := NewSession(src)
	s.Request(phase, ExecutionTime)
	s.Request(loop, ExecutionTime)
	require.NoError(t, s.TransferRequests())
	require.NoError(t, s.RunExperiment(ctx))

	id := loop.Region.Ident()
	s.Erase(id.FileID, id.FirstLine, 0, 0, ExecutionTime)
	assert.Equal(t, float64(Unavailable), s.Get(loop, ExecutionTime))
	assert.Equal(t, 5.0, s.Get(phase, ExecutionTime))

	s.Clean()
	assert.Equal(t, NotAllInfoGathered, s.Results())
	assert.Empty(t, s.Active())
}

func TestSessionCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSession(NewStaticSource())
	require.NoError(t, s.TransferRequests())
	assert.Error(t, s.RunExperiment(ctx))
}

func TestParseID(t *testing.T) {
	for _, in := range []string{"PSC_EXECUTION_TIME", "execution_time", " psc_execution_time "} {
		m, err := ParseID(in)
		if assert.NoError(t, err, in) {
			assert.Equal(t, ExecutionTime, m)
		}
	}
	_, err := ParseID("PSC_NOPE")
	assert.Error(t, err)
}
