// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package agent runs property searches against a monitored application.
//
// An Agent owns one strategy and the metric session it measures
// through. Agents share nothing else, so RunAll can run any number of
// them at once, typically one per group of MPI ranks.
package agent

import (
	"context"

	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"golang.org/x/propsearch/metric"
	"golang.org/x/propsearch/property"
	"golang.org/x/propsearch/region"
	"golang.org/x/propsearch/store"
	"golang.org/x/propsearch/strategy"
)

// An Experiment is a metric facade that can run the experiments whose
// results it serves. *metric.Session is an Experiment.
type Experiment interface {
	metric.Facade
	RunExperiment(ctx context.Context) error
}

var _ Experiment = (*metric.Session)(nil)

// An Agent drives one search.
type Agent struct {
	Name string

	// Strategy must have been created with Experiment as its facade.
	Strategy   strategy.Strategy
	Experiment Experiment

	// Phase is the region to search. Nil means the registry's phase
	// region.
	Phase *region.Region

	// MaxExperiments bounds the number of experiments, counting the
	// ones that delivered incomplete data. Zero means no bound.
	MaxExperiments int

	Logger grip.Journaler

	// Store, if set, receives the found properties.
	Store *store.DB
}

// A Result summarizes a finished search.
type Result struct {
	Agent    string
	Strategy string

	Found []property.Property

	// Steps is the number of evaluated rounds; Experiments also counts
	// rounds repeated for missing data.
	Steps       int
	Experiments int

	// RunID identifies the stored run, if the agent has a store.
	RunID string
}

// Run runs the search to completion. Cancellation of ctx is noticed
// between experiments.
func (a *Agent) Run(ctx context.Context) (*Result, error) {
	log := a.Logger
	if log == nil {
		log = grip.GetDefaultJournaler()
	}
	if a.Strategy == nil || a.Experiment == nil {
		return nil, errors.Errorf("agent %s: no strategy or experiment", a.Name)
	}

	res := &Result{Agent: a.Name, Strategy: a.Strategy.Name()}
	ok, err := a.Strategy.ReqAndConfigureFirstExperiment(a.Phase)
	if err != nil {
		return nil, errors.Wrapf(err, "agent %s", a.Name)
	}
	for ok {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "agent %s", a.Name)
		}
		if a.MaxExperiments > 0 && res.Experiments >= a.MaxExperiments {
			return nil, errors.Errorf("agent %s: no result after %d experiments", a.Name, res.Experiments)
		}
		if err := a.Experiment.RunExperiment(ctx); err != nil {
			return nil, errors.Wrapf(err, "agent %s", a.Name)
		}
		res.Experiments++
		if ok, err = a.Strategy.EvaluateAndReqNextExperiment(); err != nil {
			return nil, errors.Wrapf(err, "agent %s", a.Name)
		}
		if ok {
			if err := a.Strategy.ConfigureNextExperiment(); err != nil {
				return nil, errors.Wrapf(err, "agent %s", a.Name)
			}
		}
	}
	res.Found = a.Strategy.FoundProperties()
	res.Steps = a.Strategy.Steps()

	if a.Store != nil {
		if err := a.save(ctx, res); err != nil {
			return nil, errors.Wrapf(err, "agent %s: saving results", a.Name)
		}
	}
	log.Info(message.Fields{
		"message":     "search finished",
		"agent":       a.Name,
		"strategy":    res.Strategy,
		"found":       len(res.Found),
		"steps":       res.Steps,
		"experiments": res.Experiments,
	})
	return res, nil
}

func (a *Agent) save(ctx context.Context, res *Result) error {
	run, err := a.Store.NewRun(ctx, a.Name, res.Strategy)
	if err != nil {
		return err
	}
	for _, p := range res.Found {
		if err := run.Insert(ctx, p); err != nil {
			return err
		}
	}
	if err := run.Finish(ctx, res.Steps); err != nil {
		return err
	}
	res.RunID = run.ID
	return nil
}

// RunAll runs agents concurrently, at most limit at a time if limit is
// positive. The results are in the order of agents. The first failure
// cancels the agents still running and is returned.
func RunAll(ctx context.Context, agents []*Agent, limit int) ([]*Result, error) {
	results := make([]*Result, len(agents))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, a := range agents {
		g.Go(func() error {
			res, err := a.Run(ctx)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
