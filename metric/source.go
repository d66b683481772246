// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metric

import (
	"context"
	"sync"
)

// A StaticSource is a Source that serves fixed values, as if every
// phase iteration measured the same thing. It stands in for a running
// application in tests and in replay of recorded measurements.
type StaticSource struct {
	// Lag is the number of experiments that deliver nothing before
	// values start to appear.
	Lag int

	mu     sync.Mutex
	values map[Request]float64
	runs   int
}

// NewStaticSource returns an empty StaticSource.
func NewStaticSource() *StaticSource {
	return &StaticSource{values: make(map[Request]float64)}
}

// Set records the value of metric m at ctx.
func (s *StaticSource) Set(ctx Context, m ID, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[Request{ctx, m}] = v
}

// Measure implements Source. Requests without a recorded value are
// delivered as Unavailable.
func (s *StaticSource) Measure(ctx context.Context, reqs []Request) (map[Request]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	out := make(map[Request]float64, len(reqs))
	if s.runs <= s.Lag {
		return out, nil
	}
	for _, r := range reqs {
		v, ok := s.values[r]
		if !ok {
			v = Unavailable
		}
		out[r] = v
	}
	return out, nil
}

// Runs returns the number of experiments served.
func (s *StaticSource) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}
