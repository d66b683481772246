// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package strategy

import (
	"sort"

	"golang.org/x/propsearch/metric"
	"golang.org/x/propsearch/property"
	"golang.org/x/propsearch/region"
)

// ExpandByNext is property-driven refinement: the next candidates are
// the concatenated Next of every found property, in found order.
func ExpandByNext(found []property.Property) []property.Property {
	var out []property.Property
	for _, p := range found {
		out = append(out, p.Next()...)
	}
	return out
}

// A NestingWalker is region-driven refinement. It narrows properties
// from a region to the regions nested in it, and from call sites to the
// called subroutines.
//
// Subroutines are entered at most once per rank. This bounds the walk
// on recursive call graphs.
type NestingWalker struct {
	g       *region.Registry
	checked map[int]map[*region.Region]bool
}

// NewNestingWalker returns a walker over the regions of g.
func NewNestingWalker(g *region.Registry) *NestingWalker {
	return &NestingWalker{g: g, checked: make(map[int]map[*region.Region]bool)}
}

// Reset forgets which subroutines were entered.
func (w *NestingWalker) Reset() {
	w.checked = make(map[int]map[*region.Region]bool)
}

// Checked reports whether subroutine r was entered on rank.
func (w *NestingWalker) Checked(rank int, r *region.Region) bool {
	return w.checked[rank][r]
}

func (w *NestingWalker) mark(rank int, r *region.Region) {
	m := w.checked[rank]
	if m == nil {
		m = make(map[*region.Region]bool)
		w.checked[rank] = m
	}
	m[r] = true
}

// target returns the region a property moving to r lands on, or nil if
// the move is not allowed. Calls land on the called subroutine.
func (w *NestingWalker) target(rank int, r *region.Region) *region.Region {
	if r.Type() == region.CallRegion {
		callee := w.g.Subroutine(r.Name())
		if callee == nil {
			// Unknown or ambiguous callee.
			return nil
		}
		r = callee
	}
	if r.Type() == region.SubRegion {
		if w.Checked(rank, r) {
			return nil
		}
		w.mark(rank, r)
	}
	return r
}

// Refine drains frontier, most severe first, and returns the properties
// re-anchored one level deeper.
//
// A property at a call site moves to the called subroutine. A property
// at any other region moves to each of its children, except data
// structures; entering a thread team yields one property per thread.
func (w *NestingWalker) Refine(frontier []property.Property) []property.Property {
	frontier = append([]property.Property(nil), frontier...)
	sort.SliceStable(frontier, func(i, j int) bool {
		return frontier[i].Severity() > frontier[j].Severity()
	})

	var out []property.Property
	for _, p := range frontier {
		ctx := p.Context()
		r := ctx.Region
		if r == nil {
			continue
		}
		if r.Type() == region.CallRegion {
			if t := w.target(ctx.Rank, r); t != nil {
				out = append(out, p.CloneAt(metric.Context{Region: t, Rank: ctx.Rank, Thread: ctx.Thread}))
			}
			continue
		}
		if r.Type() == region.SubRegion {
			w.mark(ctx.Rank, r)
		}
		for _, c := range r.Children() {
			if c.Type() == region.DataStructure {
				continue
			}
			t := w.target(ctx.Rank, c)
			if t == nil {
				continue
			}
			if t.RunsAs() == region.Threaded && r.RunsAs() != region.Threaded {
				for th := 0; th < w.g.OMPThreads(); th++ {
					out = append(out, p.CloneAt(metric.Context{Region: t, Rank: ctx.Rank, Thread: th}))
				}
				continue
			}
			out = append(out, p.CloneAt(metric.Context{Region: t, Rank: ctx.Rank, Thread: ctx.Thread}))
		}
	}
	return out
}
