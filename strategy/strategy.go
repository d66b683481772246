// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package strategy implements the property search.
//
// A Strategy runs a sequence of experiment rounds. Each round it asks
// its candidate properties for the measurements they need, waits for an
// experiment to deliver them, evaluates the candidates, and derives the
// next round's candidates from the properties that held. The search
// ends when a round yields no new candidates or the step budget is
// spent.
//
// The caller drives the rounds:
//
//	ok, err := s.ReqAndConfigureFirstExperiment(phase)
//	for ok && err == nil {
//		// run one experiment
//		if ok, err = s.EvaluateAndReqNextExperiment(); ok && err == nil {
//			err = s.ConfigureNextExperiment()
//		}
//	}
//
// A Strategy is not safe for concurrent use. Strategies running
// concurrently must each have their own metric.Facade.
package strategy

import (
	"sort"

	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"

	"golang.org/x/propsearch/metric"
	"golang.org/x/propsearch/property"
	"golang.org/x/propsearch/region"
	"golang.org/x/propsearch/scenario"
)

// A Strategy is a search over properties.
type Strategy interface {
	// Name identifies the strategy.
	Name() string

	// ReqAndConfigureFirstExperiment seeds the candidates for a search
	// of the given phase region, requests their measurements and
	// transfers the requests. A nil phase means the registry's phase
	// region. It reports whether the first experiment can run.
	ReqAndConfigureFirstExperiment(phase *region.Region) (bool, error)

	// ConfigureNextExperiment transfers the requests made for the next
	// experiment.
	ConfigureNextExperiment() error

	// EvaluateAndReqNextExperiment evaluates the experiment that just
	// ran and requests the measurements of the next round. It returns
	// false when the search is done.
	EvaluateAndReqNextExperiment() (bool, error)

	// FoundProperties returns every property that held so far.
	FoundProperties() []property.Property
	// FoundLastStep returns the properties that held in the last
	// evaluated round.
	FoundLastStep() []property.Property
	// Steps returns the number of evaluated rounds.
	Steps() int
}

// DefaultMaxSteps is the step budget used when Options.MaxSteps is not
// positive.
const DefaultMaxSteps = 10

// Options configures a Strategy.
type Options struct {
	Registry *region.Registry
	Facade   metric.Facade

	// Ranks are the controlled MPI ranks. Empty means rank 0.
	Ranks []int

	// MaxSteps bounds the number of evaluated rounds.
	MaxSteps int

	Thresholds property.Thresholds

	// Requests restricts the seeded properties to those some request
	// matches. Empty means no restriction.
	Requests []scenario.PropertyRequest

	// Seed, if set, replaces the strategy's own seeding.
	Seed func(phase *region.Region, ranks []int) []property.Property

	// Logger defaults to grip's default journaler.
	Logger  grip.Journaler
	Metrics *Metrics
}

// engine is the round machinery shared by all strategies.
type engine struct {
	name string
	opts Options
	log  grip.Journaler

	// rerequest makes an incomplete round re-request the candidates'
	// measurements.
	rerequest bool
	start     func()
	seed      func(phase *region.Region) []property.Property
	refine    func(found []property.Property) []property.Property

	phase      *region.Region
	candidates []property.Property
	found      []property.Property
	foundLast  []property.Property
	steps      int
	iterations int
}

func newEngine(name string, opts Options) (*engine, error) {
	if opts.Registry == nil {
		return nil, errors.Errorf("%s: no region registry", name)
	}
	if opts.Facade == nil {
		return nil, errors.Errorf("%s: no metric facade", name)
	}
	if len(opts.Ranks) == 0 {
		opts.Ranks = []int{0}
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	log := opts.Logger
	if log == nil {
		log = grip.GetDefaultJournaler()
	}
	return &engine{name: name, opts: opts, log: log}, nil
}

func (e *engine) Name() string { return e.name }

func (e *engine) fields(f message.Fields) message.Fields {
	f["strategy"] = e.name
	f["round"] = e.steps
	return f
}

func (e *engine) ReqAndConfigureFirstExperiment(phase *region.Region) (bool, error) {
	if phase == nil {
		p, err := e.opts.Registry.PhaseRegion()
		if err != nil {
			e.log.Critical(e.fields(message.Fields{"message": "no phase region", "error": err.Error()}))
			return false, err
		}
		phase = p
	}
	e.phase = phase
	e.candidates, e.found, e.foundLast = nil, nil, nil
	e.steps, e.iterations = 0, 0
	e.opts.Facade.Clean()
	if e.start != nil {
		e.start()
	}

	var seeds []property.Property
	if e.opts.Seed != nil {
		seeds = e.opts.Seed(phase, e.opts.Ranks)
	} else {
		seeds = e.seed(phase)
	}
	for _, p := range seeds {
		ctx := p.Context()
		if ctx.Region == nil {
			continue
		}
		if scenario.AnyMatches(e.opts.Requests, p.Name(), ctx.Rank, ctx.Region.ID()) {
			e.candidates = append(e.candidates, p)
		}
	}
	e.request(e.candidates)
	if err := e.ConfigureNextExperiment(); err != nil {
		return false, err
	}
	e.opts.Metrics.seeded(e.name, len(e.candidates))
	e.log.Info(e.fields(message.Fields{
		"message":    "seeded search",
		"phase":      phase.ID(),
		"candidates": len(e.candidates),
	}))
	return true, nil
}

func (e *engine) ConfigureNextExperiment() error {
	return errors.Wrap(e.opts.Facade.TransferRequests(), "transferring metric requests")
}

func (e *engine) request(ps []property.Property) {
	for _, p := range ps {
		p.RequestMetrics(e.opts.Facade)
	}
}

func (e *engine) EvaluateAndReqNextExperiment() (bool, error) {
	if e.phase == nil {
		return false, errors.Errorf("%s: no experiment configured", e.name)
	}
	e.iterations++
	f := e.opts.Facade
	if status := f.Results(); status != metric.AllInfoGathered {
		e.log.Notice(e.fields(message.Fields{
			"message":   "waiting for measurements",
			"status":    status.String(),
			"rerequest": e.rerequest,
		}))
		e.opts.Metrics.retry(e.name)
		if e.rerequest {
			e.request(e.candidates)
		}
		return true, nil
	}

	e.foundLast = nil
	for _, p := range e.candidates {
		p.Evaluate(f)
		if p.Condition() {
			e.foundLast = append(e.foundLast, p)
		}
	}
	e.found = append(e.found, e.foundLast...)
	e.steps++

	next := e.nextCandidates()
	e.candidates = next
	e.request(next)
	e.opts.Metrics.round(e.name, len(e.foundLast), len(next))
	e.log.Debug(e.fields(message.Fields{
		"message":    "evaluated round",
		"found":      len(e.foundLast),
		"candidates": len(next),
	}))
	if len(next) == 0 {
		e.log.Info(e.fields(message.Fields{
			"message":   "search done",
			"found":     len(e.found),
			"exhausted": e.steps >= e.opts.MaxSteps,
		}))
		return false, nil
	}
	return true, nil
}

// nextCandidates refines the last round's findings. Once the step
// budget is spent it returns nothing, whatever refinement work remains.
func (e *engine) nextCandidates() []property.Property {
	if e.steps >= e.opts.MaxSteps {
		return nil
	}
	return e.refine(e.foundLast)
}

func (e *engine) FoundProperties() []property.Property {
	return append([]property.Property(nil), e.found...)
}

func (e *engine) FoundLastStep() []property.Property {
	return append([]property.Property(nil), e.foundLast...)
}

func (e *engine) Steps() int { return e.steps }

// Iterations returns the number of EvaluateAndReqNextExperiment calls,
// including those that found the round incomplete.
func (e *engine) Iterations() int { return e.iterations }

// Candidates returns the properties awaiting the next experiment.
func (e *engine) Candidates() []property.Property {
	return append([]property.Property(nil), e.candidates...)
}

// Names returns the names New accepts.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var constructors = map[string]func(Options) (Strategy, error){
	BreadthFirstName: func(o Options) (Strategy, error) {
		s, err := NewBreadthFirst(o)
		if err != nil {
			return nil, err
		}
		return s, nil
	},
	StallCycleName: func(o Options) (Strategy, error) {
		s, err := NewStallCycle(o)
		if err != nil {
			return nil, err
		}
		return s, nil
	},
}

// New returns the strategy called name.
func New(name string, opts Options) (Strategy, error) {
	c, ok := constructors[name]
	if !ok {
		return nil, errors.Errorf("unknown strategy %q", name)
	}
	return c(opts)
}
