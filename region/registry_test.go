// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package region

import (
	"reflect"
	"strings"
	"testing"
)

func TestAddOrGetRegionDedup(t *testing.T) {
	g := NewRegistry(Options{})
	r1 := g.AddOrGetRegion("foo", "a.f90", 10, 20, LoopRegion)
	r2 := g.AddOrGetRegion("foo", "a.f90", 10, 25, LoopRegion)
	if r1 != r2 {
		t.Fatalf("AddOrGetRegion returned distinct regions %v and %v", r1, r2)
	}
	if n := len(g.Regions()); n != 1 {
		t.Fatalf("have %d regions, want 1", n)
	}
	for i := 0; i < 2; i++ {
		if got := g.RegionByDescr("foo", "a.f90", 10); got != r1 {
			t.Errorf("RegionByDescr = %v, want %v", got, r1)
		}
	}
	if got := g.RegionByKey(r1.Key()); got != r1 {
		t.Errorf("RegionByKey = %v, want %v", got, r1)
	}
	if got := g.RegionByDescr("foo", "a.f90", 11); got != nil {
		t.Errorf("RegionByDescr on other line = %v, want nil", got)
	}
}

func TestKey(t *testing.T) {
	g := NewRegistry(Options{})
	r := g.AddOrGetRegion("foo", "a.f90", 10, 20, LoopRegion)
	fileID, nameID := g.Intern("a.f90"), g.Intern("foo")
	if want := uint64(fileID)*10000000 + uint64(nameID)*10000 + 10; r.Key() != want {
		t.Errorf("Key = %d, want %d", r.Key(), want)
	}
	// The fixed-base encoding overlaps once lines exceed the field.
	if Key(1, 1, 10000) != Key(1, 2, 0) {
		t.Errorf("expected key collision for out-of-range first line")
	}
}

func TestDefaultName(t *testing.T) {
	g := NewRegistry(Options{})
	r := g.AddOrGetRegion("", "b.c", 7, 9, LoopRegion)
	if r.Name() != "LOOP_REGION@b.c:7" {
		t.Errorf("Name = %q", r.Name())
	}
	if got := g.AddOrGetRegion("", "b.c", 7, 9, LoopRegion); got != r {
		t.Errorf("second unnamed AddOrGetRegion = %v, want %v", got, r)
	}
	if got := g.RegionByDescr("", "b.c", 7); got != r {
		t.Errorf("RegionByDescr(\"\", b.c, 7) = %v, want %v", got, r)
	}
	if got := g.RegionByDescr(r.Name(), "b.c", 7); got != r {
		t.Errorf("RegionByDescr(%q) = %v, want %v", r.Name(), got, r)
	}
	if got := g.RegionByDescr("", "b.c", 8); got != nil {
		t.Errorf("RegionByDescr on other line = %v, want nil", got)
	}
}

func TestRegionIDs(t *testing.T) {
	g := NewRegistry(Options{})
	a := g.AddOrGetRegion("a", "x.c", 5, 6, LoopRegion)
	b := g.AddOrGetRegion("b", "x.c", 5, 6, CallRegion)
	if a.ID() == b.ID() {
		t.Fatalf("regions on the same line share ID %q", a.ID())
	}
	for _, r := range []*Region{a, b} {
		got, err := g.RegionByID(r.ID(), false)
		if err != nil || got != r {
			t.Errorf("RegionByID(%q) = %v, %v", r.ID(), got, err)
		}
	}
}

func TestRegionByIDMissing(t *testing.T) {
	g := NewRegistry(Options{})
	r := g.AddOrGetRegion("a", "x.c", 5, 6, LoopRegion)

	got, err := g.RegionByID("nope", true)
	if got != nil || err != nil {
		t.Errorf("RegionByID(allowMissing) = %v, %v, want nil, nil", got, err)
	}

	_, err = g.RegionByID("nope", false)
	if !IsFatal(err) {
		t.Fatalf("RegionByID = %v, want *FatalError", err)
	}
	if !strings.Contains(err.Error(), r.ID()) {
		t.Errorf("error %q does not list known region %s", err, r.ID())
	}
}

func TestMarkSignificant(t *testing.T) {
	g := NewRegistry(Options{})
	a := g.AddOrGetRegion("Solve", "x.c", 1, 2, SubRegion)
	b := g.AddOrGetRegion("init", "x.c", 3, 4, SubRegion)

	g.MarkSignificant([]string{"solve"})
	if !a.Significant() || b.Significant() {
		t.Errorf("after first mark: a=%v b=%v", a.Significant(), b.Significant())
	}
	g.MarkSignificant([]string{"INIT"})
	if a.Significant() || !b.Significant() {
		t.Errorf("after second mark: a=%v b=%v", a.Significant(), b.Significant())
	}
	if got := g.SignificantRegions(); !reflect.DeepEqual(got, []*Region{b}) {
		t.Errorf("SignificantRegions = %v", got)
	}
}

func TestSubroutineAmbiguous(t *testing.T) {
	g := NewRegistry(Options{})
	first := g.AddOrGetRegion("f", "x.c", 1, 9, SubRegion)
	g.AddOrGetRegion("f", "y.c", 1, 9, CallRegion)
	if got := g.Subroutine("f"); got != first {
		t.Errorf("Subroutine(f) = %v, want %v", got, first)
	}
	g.AddOrGetRegion("f", "z.c", 1, 9, SubRegion)
	if got := g.Subroutine("f"); got != nil {
		t.Errorf("Subroutine(f) with duplicates = %v, want nil", got)
	}
	if n := len(g.Subroutines()); n != 2 {
		t.Errorf("Subroutines has %d entries, want 2", n)
	}
}

func TestPhaseRegion(t *testing.T) {
	g := NewRegistry(Options{})
	if _, err := g.PhaseRegion(); !IsFatal(err) {
		t.Errorf("PhaseRegion on empty registry: %v, want fatal", err)
	}
	other := NewRegistry(Options{}).AddOrGetRegion("p", "x.c", 1, 2, LoopRegion)
	if err := g.SetPhaseRegion(other); !IsFatal(err) {
		t.Errorf("SetPhaseRegion(foreign) = %v, want fatal", err)
	}
	p := g.AddOrGetRegion("p", "x.c", 1, 2, LoopRegion)
	q := g.AddOrGetRegion("q", "x.c", 3, 4, LoopRegion)
	if err := g.SetPhaseRegion(p); err != nil {
		t.Fatal(err)
	}
	if err := g.SetPhaseRegion(p); err != nil {
		t.Errorf("re-setting the same phase region: %v", err)
	}
	if err := g.SetPhaseRegion(q); err == nil || IsFatal(err) {
		t.Errorf("SetPhaseRegion(other) = %v, want non-fatal error", err)
	}
	if got, _ := g.PhaseRegion(); got != p {
		t.Errorf("PhaseRegion = %v, want %v", got, p)
	}
}

// callGraph builds
//
//	main
//	  call a
//	sub a
//	  parallel
//	    call b
//	sub b
//	  loop
//	  call a
func callGraph() (*Registry, map[string]*Region) {
	g := NewRegistry(Options{OMPThreads: 4})
	rs := map[string]*Region{
		"main":     g.AddOrGetRegion("main", "m.c", 1, 100, SubRegion),
		"callA":    g.AddOrGetRegion("a", "m.c", 10, 10, CallRegion),
		"a":        g.AddOrGetRegion("a", "a.c", 1, 50, SubRegion),
		"parallel": g.AddOrGetRegion("", "a.c", 5, 40, ParallelRegion),
		"callB":    g.AddOrGetRegion("b", "a.c", 20, 20, CallRegion),
		"b":        g.AddOrGetRegion("b", "b.c", 1, 50, SubRegion),
		"loop":     g.AddOrGetRegion("", "b.c", 5, 30, LoopRegion),
		"callA2":   g.AddOrGetRegion("a", "b.c", 40, 40, CallRegion),
	}
	g.Link(rs["main"], rs["callA"])
	g.Link(rs["a"], rs["parallel"])
	g.Link(rs["parallel"], rs["callB"])
	g.Link(rs["b"], rs["loop"])
	g.Link(rs["b"], rs["callA2"])
	g.SetMainRegion(rs["main"])
	return g, rs
}

func TestPropagateThreadedness(t *testing.T) {
	g, rs := callGraph()
	g.PropagateThreadedness()

	want := map[string]RunsAs{
		"main":     Serial,
		"callA":    Serial,
		"a":        Threaded, // called from b, which runs threaded
		"parallel": Threaded,
		"callB":    Threaded,
		"b":        Threaded,
		"loop":     Threaded,
		"callA2":   Threaded,
	}
	check := func() {
		t.Helper()
		for name, w := range want {
			if got := rs[name].RunsAs(); got != w {
				t.Errorf("%s runs %v, want %v", name, got, w)
			}
		}
	}
	check()

	// Idempotent.
	g.PropagateThreadedness()
	check()
}

func TestAddChild(t *testing.T) {
	g := NewRegistry(Options{})
	p1 := g.AddOrGetRegion("p1", "x.c", 1, 10, SubRegion)
	p2 := g.AddOrGetRegion("p2", "x.c", 11, 20, SubRegion)
	c := g.AddOrGetRegion("c", "x.c", 2, 3, LoopRegion)

	p1.AddChild(c)
	p1.AddChild(c)
	if len(p1.Children()) != 1 || c.Parent() != p1 {
		t.Fatalf("after AddChild: children=%v parent=%v", p1.Children(), c.Parent())
	}
	p2.AddChild(c)
	if len(p1.Children()) != 0 || c.Parent() != p2 {
		t.Errorf("after re-parent: p1 children=%v parent=%v", p1.Children(), c.Parent())
	}
}

func TestParseType(t *testing.T) {
	for _, test := range []struct {
		in   string
		want Type
	}{
		{"CALL_REGION", CallRegion},
		{"call", CallRegion},
		{"critical_region", CriticalRegion},
		{"data_structure", DataStructure},
	} {
		got, err := ParseType(test.in)
		if err != nil || got != test.want {
			t.Errorf("ParseType(%q) = %v, %v, want %v", test.in, got, err, test.want)
		}
	}
	if _, err := ParseType("bogus"); err == nil {
		t.Errorf("ParseType(bogus) succeeded")
	}
	if n := len(Types()); n != 45 {
		t.Errorf("have %d region types, want 45", n)
	}
}
