// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package property defines performance properties: named, quantified
// performance problems bound to a measurement context.
//
// A Property is driven through a fixed protocol. RequestMetrics
// declares the measurements it needs; once an experiment has delivered
// them, Evaluate reads them back; only then are Condition and Severity
// meaningful. Next proposes more specific properties to investigate in
// a later round.
//
// Severity is a percentage of the phase, clamped to [0, 100]. If a
// measurement a formula needs reads as metric.Unavailable, or a
// denominator is zero, the property is inapplicable: Severity is 0 and
// Condition is false.
package property

import (
	"fmt"
	"math"
	"strings"

	"github.com/aclements/go-moremath/mathx"

	"golang.org/x/propsearch/metric"
)

// A Property is one performance-problem detector bound to a Context.
type Property interface {
	ID() ID
	// SubID distinguishes instances of the same ID on one context.
	// It is "0" unless a kind has reason to differ.
	SubID() string
	Name() string

	Context() metric.Context
	// PhaseContext is the site of the whole-phase denominator.
	PhaseContext() metric.Context
	Purpose() Purpose
	Threshold() float64
	ScenarioIDs() []int

	// RequestMetrics declares every measurement Evaluate will read.
	// It may be called again for the same round and always declares
	// the full set.
	RequestMetrics(f metric.Facade)
	// Evaluate reads back the requested measurements.
	Evaluate(f metric.Facade)

	Condition() bool
	Severity() float64
	Confidence() float64

	// Next returns more specific properties to examine in a later
	// round. Leaf properties return nil.
	Next() []Property

	// Clone returns a fresh, unevaluated instance with the same
	// configuration.
	Clone() Property
	// CloneAt is Clone re-anchored at ctx. The phase context follows
	// ctx's rank.
	CloneAt(ctx metric.Context) Property

	// Fields returns the raw values Evaluate populates, in a fixed
	// order. The values can be overwritten through the pointers.
	Fields() []Field
}

// A NestingRefiner is implemented by properties that signal a general
// stall or overhead. When such a property holds, the search narrows it
// by walking region nesting and call edges.
type NestingRefiner interface {
	RefineNesting() bool
}

// RefinesNesting reports whether p asks for region-nesting refinement.
func RefinesNesting(p Property) bool {
	r, ok := p.(NestingRefiner)
	return ok && r.RefineNesting()
}

// A Field is one raw value of an evaluated property.
type Field struct {
	Name  string
	Value *float64
}

// Restore writes vals back into p's fields, so that Condition and
// Severity reproduce what they reported when the values were recorded.
// Every field of p must be present in vals.
func Restore(p Property, vals map[string]float64) error {
	for _, f := range p.Fields() {
		v, ok := vals[f.Name]
		if !ok {
			return fmt.Errorf("%s: missing field %q", p.Name(), f.Name)
		}
		*f.Value = v
	}
	return nil
}

// Purpose tells why a property is evaluated.
type Purpose int

const (
	Analysis Purpose = iota
	Tuning
)

func (p Purpose) String() string {
	switch p {
	case Analysis:
		return "analysis"
	case Tuning:
		return "tuning"
	}
	return fmt.Sprintf("Purpose(%d)", int(p))
}

// ParsePurpose parses the result of Purpose.String.
func ParsePurpose(s string) (Purpose, error) {
	switch strings.ToLower(s) {
	case "analysis":
		return Analysis, nil
	case "tuning":
		return Tuning, nil
	}
	return 0, fmt.Errorf("unknown purpose %q", s)
}

// A Site places a property.
type Site struct {
	Context metric.Context
	Phase   metric.Context

	// Threads is the size of the thread team for kinds that compare
	// threads. Values below 1 mean 1.
	Threads int

	SubID     string
	Purpose   Purpose
	Scenarios []int
}

// Base carries the configuration shared by all kinds. Kinds embed it.
type Base struct {
	id        ID
	site      Site
	threshold float64
	th        Thresholds
}

// NewBase returns the Base of a property of kind id at site, with its
// threshold taken from th.
func NewBase(id ID, site Site, th Thresholds) Base {
	if site.SubID == "" {
		site.SubID = "0"
	}
	if site.Threads < 1 {
		site.Threads = 1
	}
	site.Scenarios = append([]int(nil), site.Scenarios...)
	return Base{id: id, site: site, threshold: th.Lookup(id), th: th}
}

func (b *Base) ID() ID                       { return b.id }
func (b *Base) SubID() string                { return b.site.SubID }
func (b *Base) Name() string                 { return b.id.String() }
func (b *Base) Context() metric.Context      { return b.site.Context }
func (b *Base) PhaseContext() metric.Context { return b.site.Phase }
func (b *Base) Purpose() Purpose             { return b.site.Purpose }
func (b *Base) Threshold() float64           { return b.threshold }
func (b *Base) ScenarioIDs() []int           { return b.site.Scenarios }

// Site returns the placement of b.
func (b *Base) Site() Site { return b.site }

// Thresholds returns the thresholds children of b are built with.
func (b *Base) Thresholds() Thresholds { return b.th }

// Confidence is 1 unless a kind knows better.
func (b *Base) Confidence() float64 { return 1 }

// Next returns nil: by default a property is a leaf.
func (b *Base) Next() []Property { return nil }

// Copy returns a copy of b that does not share the scenario list.
func (b *Base) Copy() Base {
	c := *b
	c.site.Scenarios = append([]int(nil), b.site.Scenarios...)
	return c
}

// Anchor moves b to ctx. The phase context keeps its region and thread
// but takes ctx's rank.
func (b *Base) Anchor(ctx metric.Context) {
	b.site.Context = ctx
	b.site.Phase.Rank = ctx.Rank
}

// children builds the properties with the given IDs at b's site.
func (b *Base) children(ids ...ID) []Property {
	site := b.site
	site.SubID = ""
	out := make([]Property, 0, len(ids))
	for _, id := range ids {
		out = append(out, New(id, site, b.th))
	}
	return out
}

// available reports whether v is a delivered measurement.
func available(v float64) bool {
	return v != metric.Unavailable && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// positive reports whether v can serve as a denominator.
func positive(v float64) bool {
	return available(v) && mathx.Sign(v) > 0
}

// percent returns num/den as a clamped percentage. Measurement noise can
// push a part above its whole or a difference below zero.
func percent(num, den float64) float64 {
	if !positive(den) || !available(num) {
		return 0
	}
	v := num * 100 / den
	switch {
	case math.IsNaN(v) || mathx.Sign(v) <= 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
