// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scenario

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScenario(id int) *Scenario {
	return &Scenario{
		ID:          id,
		Description: "unroll inner loop",
		Tuning: []TuningSpecification{
			{Variant: map[string]int{"unroll": 4}, Context: RegionVariant{"1-20"}, Ranks: RankRange{0, 3}},
			{Variant: map[string]int{"eager": 1}, Context: RTSVariant{"main/solve/MPI_Send"}, Ranks: AllRanks{}},
		},
		Requests: []PropertyRequest{
			{Properties: []string{"HotRegion", "StallCycles"}, Ranks: RankList{0, 2}, Regions: []string{"1-20"}},
			{Properties: []string{"LoadImbalance"}},
		},
	}
}

func TestRanks(t *testing.T) {
	assert.True(t, AllRanks{}.Contains(17))
	assert.True(t, RankRange{2, 4}.Contains(4))
	assert.False(t, RankRange{2, 4}.Contains(5))
	assert.True(t, RankList{1, 5}.Contains(5))
	assert.False(t, RankList{1, 5}.Contains(2))
	assert.Equal(t, "1,5", RankList{1, 5}.String())
	assert.Equal(t, "2-4", RankRange{2, 4}.String())
}

func TestMatches(t *testing.T) {
	r := PropertyRequest{Properties: []string{"hotregion"}, Ranks: RankList{0}, Regions: []string{"1-20"}}
	assert.True(t, r.Matches("HotRegion", 0, "1-20"))
	assert.False(t, r.Matches("StallCycles", 0, "1-20"))
	assert.False(t, r.Matches("HotRegion", 1, "1-20"))
	assert.False(t, r.Matches("HotRegion", 0, "1-30"))

	assert.True(t, PropertyRequest{}.Matches("anything", 9, "x"))
	assert.True(t, AnyMatches(nil, "HotRegion", 3, "1-20"))
	assert.True(t, AnyMatches([]PropertyRequest{r, {Ranks: AllRanks{}}}, "StallCycles", 3, "1-30"))
}

func TestMarshalRoundTrip(t *testing.T) {
	s := testScenario(7)
	data, err := Marshal(s)
	require.NoError(t, err)
	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestEncodeDecode(t *testing.T) {
	ss := []*Scenario{testScenario(1), testScenario(2), {ID: 3}}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, ss))
	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, ss, got)
}

func TestUnmarshalTruncated(t *testing.T) {
	data, err := Marshal(testScenario(1))
	require.NoError(t, err)
	_, err = Unmarshal(data[:len(data)/2])
	assert.Error(t, err)
}

func TestPool(t *testing.T) {
	var p Pool
	p.Push(testScenario(1), testScenario(2), testScenario(3))
	require.Equal(t, 3, p.Len())

	batch := p.Pop(2)
	require.Len(t, batch, 2)
	assert.Equal(t, 1, batch[0].ID)
	assert.Equal(t, 2, batch[1].ID)

	rest := p.Pop(0)
	require.Len(t, rest, 1)
	assert.Equal(t, 3, rest[0].ID)
	assert.Empty(t, p.Pop(5))
	assert.Equal(t, 0, p.Len())
}
