// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package propfmt

import (
	"context"
	"strings"
	"testing"

	"golang.org/x/propsearch/metric"
	"golang.org/x/propsearch/property"
	"golang.org/x/propsearch/region"
)

func testRegistry() *region.Registry {
	g := region.NewRegistry(region.Options{})
	phase := g.AddOrGetRegion("step", "main.c", 10, 90, region.LoopRegion)   // 1-10
	inner := g.AddOrGetRegion("kernel", "main.c", 20, 30, region.LoopRegion) // 1-20
	g.Link(phase, inner)
	return g
}

const testInput = `region: 1-20
rank: 0
thread: 0
phase-region: 1-10
phase-rank: 0
phase-thread: 0
threads: 1
purpose: analysis

PropertyHotRegion 0 60 50 threshold 600 region-time 1000 phase-time
PropertyStallCycles 0 45 20 threshold 450 stall-cycles 1000 phase-cycles

rank: 1
phase-rank: 1
scenarios: 3,4

PropertyMPITime 0 0 10 threshold -1 mpi-time 1000 phase-time
`

func TestWriter(t *testing.T) {
	g := testRegistry()
	out := new(strings.Builder)
	w := NewWriter(out)
	r := NewReader(strings.NewReader(testInput), "test", g)
	for r.Scan() {
		res, ok := r.Result().(*Result)
		if !ok {
			t.Fatalf("unexpected record %v", r.Result())
		}
		if err := w.Write(res.Property); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.Err(); err != nil {
		t.Fatal(err)
	}
	if out.String() != testInput {
		t.Fatalf("want:\n%sgot:\n%s", testInput, out.String())
	}
}

func TestRoundTrip(t *testing.T) {
	g := testRegistry()
	phase, _ := g.RegionByID("1-10", false)
	inner, _ := g.RegionByID("1-20", false)

	src := metric.NewStaticSource()
	src.Set(metric.Context{Region: phase, Rank: 2}, metric.Cycles, 2000)
	src.Set(metric.Context{Region: phase, Rank: 2}, metric.ExecutionTime, 80)
	src.Set(metric.Context{Region: inner, Rank: 2}, metric.StallCycles, 900)
	src.Set(metric.Context{Region: inner, Rank: 2}, metric.OMPBodyTime, 30)
	src.Set(metric.Context{Region: inner, Rank: 2}, metric.TaskCreationTime, 12)
	src.Set(metric.Context{Region: inner, Rank: 2}, metric.TaskExecutionTime, 40)
	src.Set(metric.Context{Region: inner, Rank: 2}, metric.TaskCount, 500)
	for i, v := range []float64{5, 7, 9, 20} {
		src.Set(metric.Context{Region: inner, Rank: 2, Thread: i}, metric.ExecutionTime, v)
	}

	site := property.Site{
		Context:   metric.Context{Region: inner, Rank: 2},
		Phase:     metric.Context{Region: phase, Rank: 2},
		Threads:   4,
		Purpose:   property.Tuning,
		Scenarios: []int{7},
	}
	var ps []property.Property
	for _, id := range []property.ID{property.StallCycles, property.LoadImbalance, property.SerializationCriticalRegion, property.L2Misses, property.FineGrainedTasks} {
		ps = append(ps, property.New(id, site, property.Thresholds{property.L2Misses: 1}))
	}
	s := metric.NewSession(src)
	for _, p := range ps {
		p.RequestMetrics(s)
	}
	if err := s.TransferRequests(); err != nil {
		t.Fatal(err)
	}
	if err := s.RunExperiment(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, p := range ps {
		p.Evaluate(s)
	}

	var buf strings.Builder
	w := NewWriter(&buf)
	for _, p := range ps {
		if err := w.Write(p); err != nil {
			t.Fatal(err)
		}
	}

	r := NewReader(strings.NewReader(buf.String()), "roundtrip", g)
	i := 0
	for r.Scan() {
		res, ok := r.Result().(*Result)
		if !ok {
			t.Fatalf("unexpected record %v", r.Result())
		}
		want, got := ps[i], res.Property
		if got.ID() != want.ID() || got.Context() != want.Context() || got.PhaseContext() != want.PhaseContext() {
			t.Errorf("%s: read back %s at %v/%v", want.Name(), got.Name(), got.Context(), got.PhaseContext())
		}
		if got.Severity() != want.Severity() || got.Condition() != want.Condition() || res.Severity != want.Severity() {
			t.Errorf("%s: read back severity %v (recorded %v) condition %v, want %v %v",
				want.Name(), got.Severity(), res.Severity, got.Condition(), want.Severity(), want.Condition())
		}
		if want.ID() == property.FineGrainedTasks && got.Severity() != 15 {
			t.Errorf("%s: read back severity %v, want 15", want.Name(), got.Severity())
		}
		if got.Threshold() != want.Threshold() || got.Purpose() != property.Tuning {
			t.Errorf("%s: threshold %v purpose %v", want.Name(), got.Threshold(), got.Purpose())
		}
		if ids := got.ScenarioIDs(); len(ids) != 1 || ids[0] != 7 {
			t.Errorf("%s: scenarios %v", want.Name(), ids)
		}
		i++
	}
	if i != len(ps) {
		t.Errorf("read %d properties, want %d", i, len(ps))
	}
}

func TestSyntaxErrors(t *testing.T) {
	g := testRegistry()
	const input = `region: 1-20
phase-region: 1-10
PropertyNoSuchThing 0 1 1 threshold
PropertyHotRegion 0 1 5 threshold 3
PropertyHotRegion 0 1 5 threshold 3 region-time
PropertyHotRegion 0 x 5 threshold
region: 9-9
PropertyHotRegion 0 1 5 threshold 3 region-time 4 phase-time
`
	wantLines := []int{3, 4, 5, 6, 8}
	r := NewReader(strings.NewReader(input), "bad", g)
	var lines []int
	for r.Scan() {
		err, ok := r.Result().(*SyntaxError)
		if !ok {
			t.Errorf("unexpected record %v", r.Result())
			continue
		}
		_, line := err.Pos()
		lines = append(lines, line)
	}
	if len(lines) != len(wantLines) {
		t.Fatalf("errors on lines %v, want %v", lines, wantLines)
	}
	for i := range lines {
		if lines[i] != wantLines[i] {
			t.Errorf("errors on lines %v, want %v", lines, wantLines)
			break
		}
	}
}
