// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config reads propsearch configuration files.
//
// A configuration file is TOML. Besides the search settings it
// describes the monitored application: its regions, and for replay,
// the measurements an experiment delivers. For example:
//
//	strategy = "StallCycleAnalysisStrategy"
//	ranks = [0, 1]
//	phase = "step"
//
//	[thresholds]
//	StallCycles = 15
//
//	[[region]]
//	name = "step"
//	type = "loop"
//	file = "main.c"
//	first = 10
//	last = 90
//
//	[[measurement]]
//	region = "step"
//	metric = "PAPI_TOT_CYC"
//	value = 1000
//
// Regions are referred to by name, or by "file:line" of their first
// line when names are missing or ambiguous.
package config

import (
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"golang.org/x/propsearch/metric"
	"golang.org/x/propsearch/property"
	"golang.org/x/propsearch/region"
	"golang.org/x/propsearch/scenario"
	"golang.org/x/propsearch/strategy"
)

// Config is a propsearch configuration.
type Config struct {
	Strategy   string `toml:"strategy"`
	MaxSteps   int    `toml:"max-strategy-steps"`
	OMPThreads int    `toml:"omp-threads"`
	MPIProcs   int    `toml:"mpi-procs"`

	// Ranks are the controlled ranks. They default to every rank of
	// MPIProcs.
	Ranks []int `toml:"ranks"`
	// Agents is the number of ranks each agent controls. Zero puts all
	// ranks in one agent.
	Agents int `toml:"agents"`

	Phase       string   `toml:"phase"`
	Main        string   `toml:"main"`
	Significant []string `toml:"significant"`

	Thresholds map[string]float64 `toml:"thresholds"`
	Requests   []Request          `toml:"request"`
	Store      Store              `toml:"store"`

	Regions      []Region      `toml:"region"`
	Measurements []Measurement `toml:"measurement"`
	// Lag is the number of experiments that deliver no measurements.
	Lag int `toml:"lag"`
}

// Store configures the result database.
type Store struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// A Region describes one region of the application.
type Region struct {
	Name   string `toml:"name"`
	Type   string `toml:"type"`
	File   string `toml:"file"`
	First  int    `toml:"first"`
	Last   int    `toml:"last"`
	Parent string `toml:"parent"`
}

// A Measurement is a value delivered for a region.
type Measurement struct {
	Region string  `toml:"region"`
	Rank   int     `toml:"rank"`
	Thread int     `toml:"thread"`
	Metric string  `toml:"metric"`
	Value  float64 `toml:"value"`
}

// A Request restricts the properties a search seeds.
type Request struct {
	Properties []string `toml:"properties"`
	// Ranks empty means every rank.
	Ranks   []int    `toml:"ranks"`
	Regions []string `toml:"regions"`
}

// Default returns the configuration used for unset keys.
func Default() *Config {
	return &Config{
		Strategy:   strategy.BreadthFirstName,
		MaxSteps:   strategy.DefaultMaxSteps,
		OMPThreads: 1,
		MPIProcs:   1,
		Ranks:      []int{0},
	}
}

// Load reads the configuration file at path on top of Default and
// validates it.
func Load(path string) (*Config, error) {
	c := Default()
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		return nil, errors.Errorf("%s: unknown key %s", path, keys[0])
	}
	if !md.IsDefined("ranks") {
		c.Ranks = make([]int, c.MPIProcs)
		for i := range c.Ranks {
			c.Ranks[i] = i
		}
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return c, nil
}

// Validate checks c for settings that cannot work.
func (c *Config) Validate() error {
	if !contains(strategy.Names(), c.Strategy) {
		return errors.Errorf("unknown strategy %q (have %s)", c.Strategy, strings.Join(strategy.Names(), ", "))
	}
	if c.MaxSteps <= 0 {
		return errors.Errorf("max-strategy-steps must be positive, not %d", c.MaxSteps)
	}
	if c.OMPThreads < 1 || c.MPIProcs < 1 {
		return errors.New("omp-threads and mpi-procs must be at least 1")
	}
	if c.Agents < 0 || c.Lag < 0 {
		return errors.New("agents and lag must not be negative")
	}
	if len(c.Ranks) == 0 {
		return errors.New("no ranks")
	}
	for _, r := range c.Ranks {
		if r < 0 || r >= c.MPIProcs {
			return errors.Errorf("rank %d out of range for %d processes", r, c.MPIProcs)
		}
	}
	if c.Phase == "" {
		return errors.New("no phase region")
	}
	for name := range c.Thresholds {
		if _, err := property.ParseID(name); err != nil {
			return errors.Wrap(err, "thresholds")
		}
	}
	for _, req := range c.Requests {
		for _, name := range req.Properties {
			if _, err := property.ParseID(name); err != nil {
				return errors.Wrap(err, "request")
			}
		}
	}
	for i, r := range c.Regions {
		if _, err := region.ParseType(r.Type); err != nil {
			return errors.Wrapf(err, "region %d", i+1)
		}
		if r.File == "" {
			return errors.Errorf("region %d: no file", i+1)
		}
	}
	for i, m := range c.Measurements {
		if _, err := metric.ParseID(m.Metric); err != nil {
			return errors.Wrapf(err, "measurement %d", i+1)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// Registry builds the region registry of the described application.
func (c *Config) Registry() (*region.Registry, error) {
	g := region.NewRegistry(region.Options{OMPThreads: c.OMPThreads, MPIProcs: c.MPIProcs})
	regions := make([]*region.Region, len(c.Regions))
	for i, rc := range c.Regions {
		typ, err := region.ParseType(rc.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "region %d", i+1)
		}
		last := rc.Last
		if last < rc.First {
			last = rc.First
		}
		regions[i] = g.AddOrGetRegion(rc.Name, rc.File, rc.First, last, typ)
	}
	for i, rc := range c.Regions {
		if rc.Parent == "" {
			continue
		}
		parent, err := Find(g, rc.Parent)
		if err != nil {
			return nil, errors.Wrapf(err, "parent of region %d", i+1)
		}
		g.Link(parent, regions[i])
	}
	g.MarkSignificant(c.Significant)

	if c.Main != "" {
		main, err := Find(g, c.Main)
		if err != nil {
			return nil, errors.Wrap(err, "main")
		}
		if err := g.SetMainRegion(main); err != nil {
			return nil, err
		}
	}
	phase, err := Find(g, c.Phase)
	if err != nil {
		return nil, errors.Wrap(err, "phase")
	}
	if err := g.SetPhaseRegion(phase); err != nil {
		return nil, err
	}
	g.PropagateThreadedness()
	return g, nil
}

// Find returns the region of g that ref refers to. A ref is a region
// name, a registry region ID, or "file:line" of the region's first
// line.
func Find(g *region.Registry, ref string) (*region.Region, error) {
	if r, _ := g.RegionByID(ref, true); r != nil {
		return r, nil
	}
	file, line := "", -1
	if i := strings.LastIndexByte(ref, ':'); i >= 0 {
		if n, err := strconv.Atoi(ref[i+1:]); err == nil {
			file, line = ref[:i], n
		}
	}
	var found []*region.Region
	for _, r := range g.Regions() {
		if line >= 0 {
			if r.FileName() == file && r.FirstLine() == line {
				found = append(found, r)
			}
		} else if r.Name() == ref {
			found = append(found, r)
		}
	}
	switch len(found) {
	case 0:
		return nil, errors.Errorf("no region %q", ref)
	case 1:
		return found[0], nil
	}
	// Prefer the one subroutine among same-named regions, the way call
	// sites resolve.
	if line < 0 {
		if sub := g.Subroutine(ref); sub != nil {
			return sub, nil
		}
	}
	return nil, errors.Errorf("region %q is ambiguous (%d matches)", ref, len(found))
}

// Source builds a metric source serving the configured measurements.
func (c *Config) Source(g *region.Registry) (*metric.StaticSource, error) {
	src := metric.NewStaticSource()
	src.Lag = c.Lag
	for i, m := range c.Measurements {
		r, err := Find(g, m.Region)
		if err != nil {
			return nil, errors.Wrapf(err, "measurement %d", i+1)
		}
		id, err := metric.ParseID(m.Metric)
		if err != nil {
			return nil, errors.Wrapf(err, "measurement %d", i+1)
		}
		src.Set(metric.Context{Region: r, Rank: m.Rank, Thread: m.Thread}, id, m.Value)
	}
	return src, nil
}

// PropertyThresholds returns the configured thresholds.
func (c *Config) PropertyThresholds() property.Thresholds {
	th := make(property.Thresholds)
	for name, v := range c.Thresholds {
		if id, err := property.ParseID(name); err == nil {
			th[id] = v
		}
	}
	return th
}

// PropertyRequests returns the configured requests with regions
// resolved in g.
func (c *Config) PropertyRequests(g *region.Registry) ([]scenario.PropertyRequest, error) {
	var out []scenario.PropertyRequest
	for i, rc := range c.Requests {
		req := scenario.PropertyRequest{Properties: rc.Properties}
		if len(rc.Ranks) > 0 {
			req.Ranks = scenario.RankList(rc.Ranks)
		}
		for _, ref := range rc.Regions {
			r, err := Find(g, ref)
			if err != nil {
				return nil, errors.Wrapf(err, "request %d", i+1)
			}
			req.Regions = append(req.Regions, r.ID())
		}
		out = append(out, req)
	}
	return out, nil
}

// AgentRanks splits the controlled ranks into the groups handled by
// one agent each.
func (c *Config) AgentRanks() [][]int {
	ranks := append([]int(nil), c.Ranks...)
	sort.Ints(ranks)
	n := c.Agents
	if n <= 0 || n > len(ranks) {
		n = len(ranks)
	}
	var out [][]int
	for len(ranks) > 0 {
		k := n
		if k > len(ranks) {
			k = len(ranks)
		}
		out = append(out, ranks[:k:k])
		ranks = ranks[k:]
	}
	return out
}
