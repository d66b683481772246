// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package strategy

import (
	"golang.org/x/propsearch/metric"
	"golang.org/x/propsearch/property"
	"golang.org/x/propsearch/region"
)

// StallCycleName is the name of the stall cycle strategy.
const StallCycleName = "StallCycleAnalysisStrategy"

// StallCycle starts from StallCycles on the phase region and follows
// stalls depth-first into the regions and subroutines where they
// occur, most severe first. Findings are also refined through their
// Next properties.
//
// A round with missing measurements is retried without re-issuing
// requests; the previous requests stay armed.
type StallCycle struct {
	*engine

	walker   *NestingWalker
	frontier []property.Property
}

// NewStallCycle returns a stall cycle strategy.
func NewStallCycle(opts Options) (*StallCycle, error) {
	e, err := newEngine(StallCycleName, opts)
	if err != nil {
		return nil, err
	}
	s := &StallCycle{engine: e, walker: NewNestingWalker(opts.Registry)}
	e.start = s.reset
	e.seed = s.seed
	e.refine = s.refine
	return s, nil
}

func (s *StallCycle) reset() {
	s.walker.Reset()
	s.frontier = nil
}

// Walker returns the region walker, for inspecting which subroutines
// were entered.
func (s *StallCycle) Walker() *NestingWalker { return s.walker }

func (s *StallCycle) seed(phase *region.Region) []property.Property {
	var out []property.Property
	for _, rank := range s.opts.Ranks {
		site := property.Site{
			Context: metric.Context{Region: phase, Rank: rank},
			Phase:   metric.Context{Region: phase, Rank: rank},
			Threads: s.opts.Registry.OMPThreads(),
		}
		out = append(out, property.New(property.StallCycles, site, s.opts.Thresholds))
	}
	return out
}

func (s *StallCycle) refine(found []property.Property) []property.Property {
	next := ExpandByNext(found)
	for _, p := range found {
		if property.RefinesNesting(p) {
			s.frontier = append(s.frontier, p)
		}
	}
	frontier := s.frontier
	s.frontier = nil
	return append(next, s.walker.Refine(frontier)...)
}
