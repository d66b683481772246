// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"

	"github.com/mongodb/grip"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"golang.org/x/propsearch/agent"
	"golang.org/x/propsearch/metric"
	"golang.org/x/propsearch/propfmt"
	"golang.org/x/propsearch/region"
	"golang.org/x/propsearch/scenario"
	"golang.org/x/propsearch/store"
	"golang.org/x/propsearch/strategy"
)

var (
	flagOut         string
	flagSave        bool
	flagParallel    int
	flagMaxExp      int
	flagMetricsAddr string
	flagScenarios   string

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the configured search and print the found properties",
		Args:  cobra.NoArgs,
		RunE:  runSearch,
	}
)

func init() {
	runCmd.Flags().StringVarP(&flagOut, "out", "o", "", "also write the found properties as records to `file`")
	runCmd.Flags().BoolVar(&flagSave, "save", false, "store the found properties in the configured database")
	runCmd.Flags().IntVarP(&flagParallel, "parallel", "j", 0, "run at most `n` agents at once (0 means all)")
	runCmd.Flags().IntVar(&flagMaxExp, "max-experiments", 1000, "give up on an agent after `n` experiments")
	runCmd.Flags().StringVar(&flagScenarios, "scenarios", "", "also restrict the search by the property requests of the scenario batch in `file`")
	runCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on `addr` while searching")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	g, err := cfg.Registry()
	if err != nil {
		return errors.Wrap(err, flagConfig)
	}
	reqs, err := cfg.PropertyRequests(g)
	if err != nil {
		return errors.Wrap(err, flagConfig)
	}
	if flagScenarios != "" {
		more, err := scenarioRequests(flagScenarios, g)
		if err != nil {
			return err
		}
		reqs = append(reqs, more...)
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics := strategy.NewMetrics(reg)
	if flagMetricsAddr != "" {
		go serveMetrics(flagMetricsAddr, reg, logger)
	}

	var db *store.DB
	if flagSave {
		if db, err = openStore(cfg); err != nil {
			return err
		}
		defer db.Close()
	}

	var agents []*agent.Agent
	for i, ranks := range cfg.AgentRanks() {
		src, err := cfg.Source(g)
		if err != nil {
			return errors.Wrap(err, flagConfig)
		}
		sess := metric.NewSession(src)
		s, err := strategy.New(cfg.Strategy, strategy.Options{
			Registry:   g,
			Facade:     sess,
			Ranks:      ranks,
			MaxSteps:   cfg.MaxSteps,
			Thresholds: cfg.PropertyThresholds(),
			Requests:   reqs,
			Logger:     logger,
			Metrics:    metrics,
		})
		if err != nil {
			return err
		}
		agents = append(agents, &agent.Agent{
			Name:           fmt.Sprintf("agent-%d", i),
			Strategy:       s,
			Experiment:     sess,
			MaxExperiments: flagMaxExp,
			Logger:         logger,
			Store:          db,
		})
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	results, err := agent.RunAll(ctx, agents, flagParallel)
	if err != nil {
		return err
	}

	var rows []row
	for _, res := range results {
		for _, p := range res.Found {
			rows = append(rows, row{agent: res.Agent, p: p})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].p.Severity() > rows[j].p.Severity()
	})
	if err := propertyTable(rows, true).Format(cmd.OutOrStdout()); err != nil {
		return err
	}
	for _, res := range results {
		if res.RunID != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: stored as run %s\n", res.Agent, res.RunID)
		}
	}

	if flagOut != "" {
		return writeRecords(flagOut, rows)
	}
	return nil
}

func writeRecords(path string, rows []row) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	w := propfmt.NewWriter(f)
	for _, r := range rows {
		if err := w.Write(r.p); err != nil {
			return errors.Wrap(err, path)
		}
	}
	return nil
}

// scenarioRequests reads a scenario batch written by the requests
// command and returns the property requests of its scenarios in queue
// order. Every region they name must be known to g.
func scenarioRequests(path string, g *region.Registry) ([]scenario.PropertyRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	batch, err := scenario.Decode(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}

	var pool scenario.Pool
	pool.Push(batch...)
	var reqs []scenario.PropertyRequest
	for _, s := range pool.Pop(pool.Len()) {
		for _, req := range s.Requests {
			for _, id := range req.Regions {
				if _, err := g.RegionByID(id, false); err != nil {
					return nil, errors.Wrapf(err, "%s: scenario %d", path, s.ID)
				}
			}
			reqs = append(reqs, req)
		}
	}
	return reqs, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger grip.Journaler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warning(errors.Wrap(err, "serving metrics"))
	}
}
