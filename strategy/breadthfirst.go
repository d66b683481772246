// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package strategy

import (
	"golang.org/x/propsearch/metric"
	"golang.org/x/propsearch/property"
	"golang.org/x/propsearch/region"
)

// BreadthFirstName is the name of the breadth-first strategy.
const BreadthFirstName = "BreadthFirstAnalysisStrategy"

// BreadthFirst seeds the properties that apply to every known region,
// plus StallCycles on the phase region, and refines findings through
// their Next properties. A round with missing measurements is retried
// with the candidates' requests re-issued.
type BreadthFirst struct {
	*engine
}

// NewBreadthFirst returns a breadth-first strategy.
func NewBreadthFirst(opts Options) (*BreadthFirst, error) {
	e, err := newEngine(BreadthFirstName, opts)
	if err != nil {
		return nil, err
	}
	s := &BreadthFirst{e}
	e.rerequest = true
	e.seed = s.seed
	e.refine = ExpandByNext
	return s, nil
}

func (s *BreadthFirst) seed(phase *region.Region) []property.Property {
	g := s.opts.Registry
	regions := g.Regions()
	var out []property.Property
	for _, rank := range s.opts.Ranks {
		site := property.Site{
			Phase:   metric.Context{Region: phase, Rank: rank},
			Threads: g.OMPThreads(),
		}
		for _, r := range regions {
			site.Context = metric.Context{Region: r, Rank: rank}
			out = append(out, property.ForRegion(r, site, s.opts.Thresholds)...)
		}
		site.Context = metric.Context{Region: phase, Rank: rank}
		out = append(out, property.New(property.StallCycles, site, s.opts.Thresholds))
	}
	return out
}
