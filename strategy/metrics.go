// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package strategy

import "github.com/prometheus/client_golang/prometheus"

const (
	metricsNamespace = "propsearch"
	metricsSubsystem = "strategy"
)

// Metrics counts search progress per strategy. A nil *Metrics records
// nothing.
type Metrics struct {
	Rounds     *prometheus.CounterVec
	Retries    *prometheus.CounterVec
	Found      *prometheus.CounterVec
	Candidates *prometheus.GaugeVec
}

// NewMetrics creates the search collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Rounds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "rounds_total",
				Help:      "Evaluated experiment rounds with complete measurements",
			},
			[]string{"strategy"},
		),
		Retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "retries_total",
				Help:      "Rounds repeated because not all measurements arrived",
			},
			[]string{"strategy"},
		),
		Found: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "found_total",
				Help:      "Properties whose condition held",
			},
			[]string{"strategy"},
		),
		Candidates: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "candidates",
				Help:      "Candidate properties awaiting the next experiment",
			},
			[]string{"strategy"},
		),
	}
	reg.MustRegister(m.Rounds, m.Retries, m.Found, m.Candidates)
	return m
}

func (m *Metrics) round(name string, found, candidates int) {
	if m == nil {
		return
	}
	m.Rounds.WithLabelValues(name).Inc()
	m.Found.WithLabelValues(name).Add(float64(found))
	m.Candidates.WithLabelValues(name).Set(float64(candidates))
}

func (m *Metrics) retry(name string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(name).Inc()
}

func (m *Metrics) seeded(name string, candidates int) {
	if m == nil {
		return
	}
	m.Candidates.WithLabelValues(name).Set(float64(candidates))
}
