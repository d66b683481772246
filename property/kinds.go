// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package property

import (
	"fmt"

	"github.com/aclements/go-moremath/stats"

	"golang.org/x/propsearch/metric"
)

// A ratioKind describes a property whose severity is the cost of one
// metric at the property's context relative to a whole-phase metric.
type ratioKind struct {
	num, den metric.ID

	// weight converts one num event to den units, for example the
	// cycles lost per cache miss.
	weight float64

	numField, denField string

	next   []ID
	refine bool
}

var ratioKinds = map[ID]*ratioKind{
	HotRegion: {
		num: metric.ExecutionTime, den: metric.ExecutionTime, weight: 1,
		numField: "region-time", denField: "phase-time",
	},
	StallCycles: {
		num: metric.StallCycles, den: metric.Cycles, weight: 1,
		numField: "stall-cycles", denField: "phase-cycles",
		next:   []ID{DataCacheStall, FPStall, BranchMispredicts},
		refine: true,
	},
	DataCacheStall: {
		num: metric.DataCacheStall, den: metric.Cycles, weight: 1,
		numField: "dcache-stall-cycles", denField: "phase-cycles",
		next: []ID{L2Misses, L3Misses, TLBMisses},
	},
	L2Misses: {
		num: metric.L2DataMisses, den: metric.Cycles, weight: 20,
		numField: "l2-misses", denField: "phase-cycles",
	},
	L3Misses: {
		num: metric.L3Misses, den: metric.Cycles, weight: 200,
		numField: "l3-misses", denField: "phase-cycles",
	},
	TLBMisses: {
		num: metric.TLBDataMisses, den: metric.Cycles, weight: 30,
		numField: "tlb-misses", denField: "phase-cycles",
	},
	FPStall: {
		num: metric.FPStall, den: metric.Cycles, weight: 1,
		numField: "fp-stall-cycles", denField: "phase-cycles",
	},
	BranchMispredicts: {
		num: metric.BranchMispredicts, den: metric.Cycles, weight: 15,
		numField: "mispredicts", denField: "phase-cycles",
	},
	CriticalRegionOverhead: {
		num: metric.OMPEnterTime, den: metric.ExecutionTime, weight: 1,
		numField: "enter-time", denField: "phase-time",
	},
	TaskCreationOverhead: {
		num: metric.TaskCreationTime, den: metric.ExecutionTime, weight: 1,
		numField: "creation-time", denField: "phase-time",
	},
	TaskWaitOverhead: {
		num: metric.TaskWaitTime, den: metric.ExecutionTime, weight: 1,
		numField: "wait-time", denField: "phase-time",
	},
	TaskSchedulingOverhead: {
		num: metric.TaskSchedulingTime, den: metric.ExecutionTime, weight: 1,
		numField: "scheduling-time", denField: "phase-time",
	},
	ImplicitBarrierWait: {
		num: metric.OMPBarrierTime, den: metric.ExecutionTime, weight: 1,
		numField: "barrier-time", denField: "phase-time",
	},
	MPITime: {
		num: metric.MPITime, den: metric.ExecutionTime, weight: 1,
		numField: "mpi-time", denField: "phase-time",
		next: []ID{LateSender},
	},
	LateSender: {
		num: metric.MPILateSender, den: metric.ExecutionTime, weight: 1,
		numField: "late-sender-time", denField: "phase-time",
	},
}

type ratio struct {
	Base
	kind         *ratioKind
	value, total float64
}

func newRatio(b Base, k *ratioKind) *ratio {
	return &ratio{Base: b, kind: k, value: metric.Unavailable, total: metric.Unavailable}
}

func (p *ratio) RequestMetrics(f metric.Facade) {
	f.Request(p.site.Context, p.kind.num)
	f.Request(p.site.Phase, p.kind.den)
}

func (p *ratio) Evaluate(f metric.Facade) {
	p.value = f.Get(p.site.Context, p.kind.num)
	p.total = f.Get(p.site.Phase, p.kind.den)
}

func (p *ratio) Severity() float64 {
	if !available(p.value) {
		return 0
	}
	return percent(p.value*p.kind.weight, p.total)
}

func (p *ratio) Condition() bool {
	s := p.Severity()
	return s > 0 && s > p.threshold
}

func (p *ratio) Next() []Property {
	if len(p.kind.next) == 0 {
		return nil
	}
	return p.children(p.kind.next...)
}

func (p *ratio) RefineNesting() bool { return p.kind.refine }

func (p *ratio) Clone() Property { return newRatio(p.Copy(), p.kind) }

func (p *ratio) CloneAt(ctx metric.Context) Property {
	c := newRatio(p.Copy(), p.kind)
	c.Anchor(ctx)
	return c
}

func (p *ratio) Fields() []Field {
	return []Field{{p.kind.numField, &p.value}, {p.kind.denField, &p.total}}
}

// serialization measures the time threads of a team spend queued behind
// a critical section body. With one thread nothing serializes.
type serialization struct {
	Base
	body, total float64
}

func newSerialization(b Base) *serialization {
	return &serialization{Base: b, body: metric.Unavailable, total: metric.Unavailable}
}

func (p *serialization) RequestMetrics(f metric.Facade) {
	f.Request(p.site.Context, metric.OMPBodyTime)
	f.Request(p.site.Phase, metric.ExecutionTime)
}

func (p *serialization) Evaluate(f metric.Facade) {
	p.body = f.Get(p.site.Context, metric.OMPBodyTime)
	p.total = f.Get(p.site.Phase, metric.ExecutionTime)
}

func (p *serialization) Severity() float64 {
	n := float64(p.site.Threads)
	if n < 2 || !available(p.body) {
		return 0
	}
	return percent(p.body*(n-1)/n, p.total)
}

func (p *serialization) Condition() bool {
	s := p.Severity()
	return s > 0 && s > p.threshold
}

func (p *serialization) Clone() Property { return newSerialization(p.Copy()) }

func (p *serialization) CloneAt(ctx metric.Context) Property {
	c := newSerialization(p.Copy())
	c.Anchor(ctx)
	return c
}

func (p *serialization) Fields() []Field {
	return []Field{{"body-time", &p.body}, {"phase-time", &p.total}}
}

// fineGrainFactor is how many times its creation cost a task must run
// to not count as fine-grained.
const fineGrainFactor = 10

// fineGrained reports task creation cost in regions whose tasks are too
// small to amortize it.
type fineGrained struct {
	Base
	creation, exec, count, total float64
}

func newFineGrained(b Base) *fineGrained {
	u := float64(metric.Unavailable)
	return &fineGrained{Base: b, creation: u, exec: u, count: u, total: u}
}

func (p *fineGrained) RequestMetrics(f metric.Facade) {
	f.Request(p.site.Context, metric.TaskCreationTime)
	f.Request(p.site.Context, metric.TaskExecutionTime)
	f.Request(p.site.Context, metric.TaskCount)
	f.Request(p.site.Phase, metric.ExecutionTime)
}

func (p *fineGrained) Evaluate(f metric.Facade) {
	p.creation = f.Get(p.site.Context, metric.TaskCreationTime)
	p.exec = f.Get(p.site.Context, metric.TaskExecutionTime)
	p.count = f.Get(p.site.Context, metric.TaskCount)
	p.total = f.Get(p.site.Phase, metric.ExecutionTime)
}

func (p *fineGrained) Severity() float64 {
	if !positive(p.count) || !available(p.exec) || !available(p.creation) {
		return 0
	}
	if p.exec >= fineGrainFactor*p.creation {
		return 0
	}
	return percent(p.creation, p.total)
}

func (p *fineGrained) Condition() bool {
	s := p.Severity()
	return s > 0 && s > p.threshold
}

func (p *fineGrained) Clone() Property { return newFineGrained(p.Copy()) }

func (p *fineGrained) CloneAt(ctx metric.Context) Property {
	c := newFineGrained(p.Copy())
	c.Anchor(ctx)
	return c
}

func (p *fineGrained) Fields() []Field {
	return []Field{
		{"creation-time", &p.creation},
		{"execution-time", &p.exec},
		{"task-count", &p.count},
		{"phase-time", &p.total},
	}
}

// An imbalanceKind describes a property comparing one metric across the
// threads of a team.
type imbalanceKind struct {
	m     metric.ID
	field string
}

var (
	loadImbalance = &imbalanceKind{metric.ExecutionTime, "time"}
	taskImbalance = &imbalanceKind{metric.TaskExecutionTime, "task-time"}
)

// imbalance reports the time the slowest thread exceeds the team mean,
// relative to the phase.
type imbalance struct {
	Base
	kind      *imbalanceKind
	perThread []float64
	total     float64
}

func newImbalance(b Base, k *imbalanceKind) *imbalance {
	p := &imbalance{Base: b, kind: k, perThread: make([]float64, b.site.Threads), total: metric.Unavailable}
	for i := range p.perThread {
		p.perThread[i] = metric.Unavailable
	}
	return p
}

func (p *imbalance) thread(i int) metric.Context {
	ctx := p.site.Context
	ctx.Thread = i
	return ctx
}

func (p *imbalance) RequestMetrics(f metric.Facade) {
	for i := range p.perThread {
		f.Request(p.thread(i), p.kind.m)
	}
	f.Request(p.site.Phase, metric.ExecutionTime)
}

func (p *imbalance) Evaluate(f metric.Facade) {
	for i := range p.perThread {
		p.perThread[i] = f.Get(p.thread(i), p.kind.m)
	}
	p.total = f.Get(p.site.Phase, metric.ExecutionTime)
}

func (p *imbalance) Severity() float64 {
	if len(p.perThread) < 2 {
		return 0
	}
	for _, v := range p.perThread {
		if !available(v) {
			return 0
		}
	}
	s := stats.Sample{Xs: p.perThread}
	_, max := s.Bounds()
	return percent(max-s.Mean(), p.total)
}

func (p *imbalance) Condition() bool {
	s := p.Severity()
	return s > 0 && s > p.threshold
}

func (p *imbalance) Clone() Property { return newImbalance(p.Copy(), p.kind) }

func (p *imbalance) CloneAt(ctx metric.Context) Property {
	c := newImbalance(p.Copy(), p.kind)
	c.Anchor(ctx)
	return c
}

func (p *imbalance) Fields() []Field {
	fs := make([]Field, 0, len(p.perThread)+1)
	for i := range p.perThread {
		fs = append(fs, Field{fmt.Sprintf("%s-t%d", p.kind.field, i), &p.perThread[i]})
	}
	return append(fs, Field{"phase-time", &p.total})
}
