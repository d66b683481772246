// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scenario describes which properties to look for, and which
// tuning variants to apply, on which ranks and regions. Scenarios are
// produced by one agent and consumed by another, so they have a compact
// binary encoding.
package scenario

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Ranks selects a set of MPI ranks. It is one of AllRanks, RankRange or
// RankList.
type Ranks interface {
	Contains(rank int) bool
	String() string
	isRanks()
}

// AllRanks selects every rank.
type AllRanks struct{}

// A RankRange selects the ranks Start through End inclusive.
type RankRange struct {
	Start, End int
}

// A RankList selects the listed ranks.
type RankList []int

func (AllRanks) Contains(int) bool { return true }
func (AllRanks) String() string    { return "all" }
func (AllRanks) isRanks()          {}

func (r RankRange) Contains(rank int) bool { return r.Start <= rank && rank <= r.End }
func (r RankRange) String() string         { return fmt.Sprintf("%d-%d", r.Start, r.End) }
func (RankRange) isRanks()                 {}

func (l RankList) Contains(rank int) bool {
	for _, r := range l {
		if r == rank {
			return true
		}
	}
	return false
}

func (l RankList) String() string {
	s := make([]string, len(l))
	for i, r := range l {
		s[i] = fmt.Sprint(r)
	}
	return strings.Join(s, ",")
}

func (RankList) isRanks() {}

// A VariantContext says where a tuning variant applies. It is a
// RegionVariant or an RTSVariant.
type VariantContext interface {
	String() string
	isVariantContext()
}

// A RegionVariant applies to the region with the given registry ID.
type RegionVariant struct {
	RegionID string
}

// An RTSVariant applies to a runtime call path.
type RTSVariant struct {
	CallPath string
}

func (v RegionVariant) String() string { return "region " + v.RegionID }
func (RegionVariant) isVariantContext() {}

func (v RTSVariant) String() string { return "rts " + v.CallPath }
func (RTSVariant) isVariantContext() {}

// A TuningSpecification assigns tuning parameter values.
type TuningSpecification struct {
	// Variant maps tuning parameter names to values.
	Variant map[string]int
	Context VariantContext
	Ranks   Ranks
}

func (t TuningSpecification) String() string {
	names := make([]string, 0, len(t.Variant))
	for k := range t.Variant {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	for i, k := range names {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%d", k, t.Variant[k])
	}
	fmt.Fprintf(&b, " @ %v ranks %v", t.Context, t.Ranks)
	return b.String()
}

// A PropertyRequest asks for properties. Empty fields match anything.
type PropertyRequest struct {
	// Properties are property names. Matching ignores case.
	Properties []string
	Ranks      Ranks
	// Regions are registry region IDs.
	Regions []string
}

// Matches reports whether a property called name, evaluated on rank at
// the region with ID regionID, is requested by r.
func (r PropertyRequest) Matches(name string, rank int, regionID string) bool {
	if len(r.Properties) > 0 {
		ok := false
		for _, p := range r.Properties {
			if strings.EqualFold(p, name) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if r.Ranks != nil && !r.Ranks.Contains(rank) {
		return false
	}
	if len(r.Regions) > 0 {
		for _, id := range r.Regions {
			if id == regionID {
				return true
			}
		}
		return false
	}
	return true
}

// AnyMatches reports whether any of reqs matches. An empty reqs matches
// everything.
func AnyMatches(reqs []PropertyRequest, name string, rank int, regionID string) bool {
	if len(reqs) == 0 {
		return true
	}
	for _, r := range reqs {
		if r.Matches(name, rank, regionID) {
			return true
		}
	}
	return false
}

// A Scenario is one unit of experimentation: the tuning to apply and
// the properties to evaluate under it.
type Scenario struct {
	ID          int
	Description string
	Tuning      []TuningSpecification
	Requests    []PropertyRequest
}

// A Pool is a FIFO queue of scenarios waiting for an experiment. It is
// safe for concurrent use.
type Pool struct {
	mu sync.Mutex
	q  []*Scenario
}

// Push appends scenarios to the pool.
func (p *Pool) Push(ss ...*Scenario) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.q = append(p.q, ss...)
}

// Pop removes and returns up to n scenarios, the batch for one
// experiment round. n <= 0 pops everything.
func (p *Pool) Pop(n int) []*Scenario {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n <= 0 || n > len(p.q) {
		n = len(p.q)
	}
	out := append([]*Scenario(nil), p.q[:n]...)
	p.q = p.q[n:]
	return out
}

// Len returns the number of queued scenarios.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.q)
}
