// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metric

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// A Source performs experiments: one execution of the phase region of
// the monitored application, measuring the given requests.
//
// Measure returns a value for each request it could settle. A request
// that is absent from the result has not been delivered yet; a request
// mapped to Unavailable was delivered without a measurement.
type Source interface {
	Measure(ctx context.Context, reqs []Request) (map[Request]float64, error)
}

// A Session is an in-memory Facade backed by a Source. Each search
// instance needs its own Session.
//
// Requests accumulate in a pending set until they are transferred.
// Transferring replaces the active request set and drops the values of
// the previous experiment. Transferring with nothing pending keeps the
// previous active set, so the next experiment measures it again.
type Session struct {
	src Source

	mu          sync.Mutex
	pending     []Request
	pendingSet  map[Request]bool
	active      []Request
	values      map[Request]float64
	measured    bool
	complete    bool
	experiments int
	beginEnd    bool
}

// NewSession returns a Session measuring through src.
func NewSession(src Source) *Session {
	s := &Session{src: src}
	s.Clean()
	return s
}

// Request implements Facade.
func (s *Session) Request(ctx Context, m ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := Request{ctx, m}
	if s.pendingSet[r] {
		return
	}
	s.pendingSet[r] = true
	s.pending = append(s.pending, r)
}

// TransferRequests implements Facade.
func (s *Session) TransferRequests() error {
	return s.transfer(true)
}

// TransferRequestsNoBeginEnd implements Facade.
func (s *Session) TransferRequestsNoBeginEnd() error {
	return s.transfer(false)
}

func (s *Session) transfer(beginEnd bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.src == nil {
		return errors.New("metric session has no source")
	}
	if len(s.pending) > 0 {
		s.active = s.pending
		s.pending = nil
		s.pendingSet = make(map[Request]bool)
	}
	s.values = make(map[Request]float64)
	s.measured = false
	s.complete = false
	s.beginEnd = beginEnd
	return nil
}

// RunExperiment runs one experiment for the active requests.
func (s *Session) RunExperiment(ctx context.Context) error {
	s.mu.Lock()
	reqs := append([]Request(nil), s.active...)
	s.mu.Unlock()

	vals, err := s.src.Measure(ctx, reqs)
	if err != nil {
		return errors.Wrap(err, "running experiment")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.experiments++
	s.measured = true
	s.complete = true
	for _, r := range reqs {
		v, ok := vals[r]
		if !ok {
			s.complete = false
			continue
		}
		s.values[r] = v
	}
	return nil
}

// Experiments returns the number of experiments run so far.
func (s *Session) Experiments() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.experiments
}

// Active returns the transferred requests in the order they were
// first requested.
func (s *Session) Active() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.active...)
}

// BeginEnd reports whether the last transfer asked for begin/end
// markers around the phase region.
func (s *Session) BeginEnd() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginEnd
}

// Pending returns the number of queued, untransferred requests.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Results implements Facade.
func (s *Session) Results() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.measured && s.complete {
		return AllInfoGathered
	}
	return NotAllInfoGathered
}

// Get implements Facade.
func (s *Session) Get(ctx Context, m ID) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.measured || !s.complete {
		return Unavailable
	}
	v, ok := s.values[Request{ctx, m}]
	if !ok {
		return Unavailable
	}
	return v
}

// Clean implements Facade.
func (s *Session) Clean() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.pendingSet = make(map[Request]bool)
	s.active = nil
	s.values = make(map[Request]float64)
	s.measured = false
	s.complete = false
}

// Erase implements Facade.
func (s *Session) Erase(fileID, line, rank, thread int, m ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for r := range s.values {
		c := r.Context
		if r.Metric != m || c.Rank != rank || c.Thread != thread || c.Region == nil {
			continue
		}
		if id := c.Region.Ident(); id.FileID == fileID && id.FirstLine == line {
			delete(s.values, r)
		}
	}
}

var _ Facade = (*Session)(nil)
