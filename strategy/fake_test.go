// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"golang.org/x/propsearch/metric"
	"golang.org/x/propsearch/property"
	"golang.org/x/propsearch/region"
)

// fake is a property with a fixed outcome. It records every evaluation
// in visits.
type fake struct {
	property.Base

	name   string
	holds  bool
	sev    float64
	refine bool
	next   func(*fake) []property.Property
	visits map[metric.Context]int

	evaluated bool
}

func newFake(name string, ctx metric.Context) *fake {
	site := property.Site{Context: ctx, Phase: ctx}
	return &fake{
		Base:   property.NewBase(property.HotRegion, site, nil),
		name:   name,
		holds:  true,
		sev:    50,
		visits: make(map[metric.Context]int),
	}
}

func (f *fake) Name() string { return f.name }

func (f *fake) RequestMetrics(fa metric.Facade) {
	fa.Request(f.Context(), metric.ExecutionTime)
}

func (f *fake) Evaluate(fa metric.Facade) {
	fa.Get(f.Context(), metric.ExecutionTime)
	f.evaluated = true
	f.visits[f.Context()]++
}

func (f *fake) Condition() bool { return f.evaluated && f.holds }

func (f *fake) Severity() float64 {
	if !f.evaluated {
		return 0
	}
	return f.sev
}

func (f *fake) RefineNesting() bool { return f.refine }

func (f *fake) Next() []property.Property {
	if f.next == nil {
		return nil
	}
	return f.next(f)
}

func (f *fake) Clone() property.Property { return f.CloneAt(f.Context()) }

func (f *fake) CloneAt(ctx metric.Context) property.Property {
	c := *f
	c.Base = f.Copy()
	c.Anchor(ctx)
	c.evaluated = false
	return &c
}

func (f *fake) Fields() []property.Field { return []property.Field{{Name: "severity", Value: &f.sev}} }

// leaf returns a Next function yielding leaf fakes with the given names
// at the parent's context.
func leaves(names ...string) func(*fake) []property.Property {
	return func(p *fake) []property.Property {
		var out []property.Property
		for _, n := range names {
			c := newFake(n, p.Context())
			c.visits = p.visits
			out = append(out, c)
		}
		return out
	}
}

func names(ps []property.Property) []string {
	var out []string
	for _, p := range ps {
		out = append(out, p.Name())
	}
	return out
}

// world is a registry with a phase region and a session measuring it.
type world struct {
	g     *region.Registry
	phase *region.Region
	src   *metric.StaticSource
	sess  *metric.Session
}

func newWorld(t *testing.T, threads int) *world {
	t.Helper()
	g := region.NewRegistry(region.Options{OMPThreads: threads})
	main := g.AddOrGetRegion("main", "main.c", 1, 200, region.SubRegion)
	phase := g.AddOrGetRegion("step", "main.c", 10, 90, region.LoopRegion)
	g.Link(main, phase)
	require.NoError(t, g.SetMainRegion(main))
	require.NoError(t, g.SetPhaseRegion(phase))
	src := metric.NewStaticSource()
	return &world{g: g, phase: phase, src: src, sess: metric.NewSession(src)}
}

// run drives s to completion the way an agent does and returns the
// results of each EvaluateAndReqNextExperiment call.
func (w *world) run(t *testing.T, s Strategy) []bool {
	t.Helper()
	ok, err := s.ReqAndConfigureFirstExperiment(nil)
	require.NoError(t, err)
	require.True(t, ok)
	var results []bool
	for ok {
		require.NoError(t, w.sess.RunExperiment(context.Background()))
		ok, err = s.EvaluateAndReqNextExperiment()
		require.NoError(t, err)
		results = append(results, ok)
		if ok {
			require.NoError(t, s.ConfigureNextExperiment())
		}
		require.Less(t, len(results), 100, "search does not terminate")
	}
	return results
}
