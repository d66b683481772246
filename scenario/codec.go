// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scenario

import (
	"io"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// wireSchema is the version of the encoding. Increment it when the wire
// structs change.
const wireSchema uint16 = 1

const (
	ranksNone uint8 = iota
	ranksAll
	ranksRange
	ranksList
)

const (
	variantNone uint8 = iota
	variantRegion
	variantRTS
)

type wireRanks struct {
	Kind       uint8
	Start, End int
	List       []int
}

type wireVariant struct {
	Kind  uint8
	Value string
}

type wireTuning struct {
	Variant map[string]int
	Context wireVariant
	Ranks   wireRanks
}

type wireRequest struct {
	Properties []string
	Ranks      wireRanks
	Regions    []string
}

type wireScenario struct {
	ID          int
	Description string
	Tuning      []wireTuning
	Requests    []wireRequest
}

type wirePool struct {
	Schema    uint16
	Scenarios []wireScenario
}

// Marshal returns the binary encoding of s.
func Marshal(s *Scenario) ([]byte, error) {
	w, err := toWire(s)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(&wirePool{Schema: wireSchema, Scenarios: []wireScenario{w}})
}

// Unmarshal decodes a scenario encoded by Marshal.
func Unmarshal(data []byte) (*Scenario, error) {
	var p wirePool
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "decoding scenario")
	}
	ss, err := fromWirePool(&p)
	if err != nil {
		return nil, err
	}
	if len(ss) != 1 {
		return nil, errors.Errorf("decoding scenario: have %d scenarios, want 1", len(ss))
	}
	return ss[0], nil
}

// Encode writes the scenarios to w as one batch.
func Encode(w io.Writer, ss []*Scenario) error {
	p := wirePool{Schema: wireSchema}
	for _, s := range ss {
		ws, err := toWire(s)
		if err != nil {
			return err
		}
		p.Scenarios = append(p.Scenarios, ws)
	}
	return errors.Wrap(msgpack.NewEncoder(w).Encode(&p), "encoding scenarios")
}

// Decode reads a batch of scenarios written by Encode.
func Decode(r io.Reader) ([]*Scenario, error) {
	var p wirePool
	if err := msgpack.NewDecoder(r).Decode(&p); err != nil {
		return nil, errors.Wrap(err, "decoding scenarios")
	}
	return fromWirePool(&p)
}

func fromWirePool(p *wirePool) ([]*Scenario, error) {
	if p.Schema != wireSchema {
		return nil, errors.Errorf("scenario schema %d, want %d", p.Schema, wireSchema)
	}
	ss := make([]*Scenario, 0, len(p.Scenarios))
	for i := range p.Scenarios {
		s, err := fromWire(&p.Scenarios[i])
		if err != nil {
			return nil, errors.Wrapf(err, "scenario %d", p.Scenarios[i].ID)
		}
		ss = append(ss, s)
	}
	return ss, nil
}

func toWire(s *Scenario) (wireScenario, error) {
	w := wireScenario{ID: s.ID, Description: s.Description}
	for _, t := range s.Tuning {
		wt := wireTuning{Variant: t.Variant, Ranks: ranksToWire(t.Ranks)}
		switch c := t.Context.(type) {
		case nil:
		case RegionVariant:
			wt.Context = wireVariant{variantRegion, c.RegionID}
		case RTSVariant:
			wt.Context = wireVariant{variantRTS, c.CallPath}
		default:
			return w, errors.Errorf("scenario %d: unknown variant context %T", s.ID, c)
		}
		w.Tuning = append(w.Tuning, wt)
	}
	for _, r := range s.Requests {
		w.Requests = append(w.Requests, wireRequest{
			Properties: r.Properties,
			Ranks:      ranksToWire(r.Ranks),
			Regions:    r.Regions,
		})
	}
	return w, nil
}

func fromWire(w *wireScenario) (*Scenario, error) {
	s := &Scenario{ID: w.ID, Description: w.Description}
	for _, wt := range w.Tuning {
		t := TuningSpecification{Variant: wt.Variant}
		var err error
		if t.Ranks, err = ranksFromWire(wt.Ranks); err != nil {
			return nil, err
		}
		switch wt.Context.Kind {
		case variantNone:
		case variantRegion:
			t.Context = RegionVariant{wt.Context.Value}
		case variantRTS:
			t.Context = RTSVariant{wt.Context.Value}
		default:
			return nil, errors.Errorf("unknown variant context kind %d", wt.Context.Kind)
		}
		s.Tuning = append(s.Tuning, t)
	}
	for _, wr := range w.Requests {
		r := PropertyRequest{Properties: wr.Properties, Regions: wr.Regions}
		var err error
		if r.Ranks, err = ranksFromWire(wr.Ranks); err != nil {
			return nil, err
		}
		s.Requests = append(s.Requests, r)
	}
	return s, nil
}

func ranksToWire(r Ranks) wireRanks {
	switch r := r.(type) {
	case AllRanks:
		return wireRanks{Kind: ranksAll}
	case RankRange:
		return wireRanks{Kind: ranksRange, Start: r.Start, End: r.End}
	case RankList:
		return wireRanks{Kind: ranksList, List: r}
	}
	return wireRanks{Kind: ranksNone}
}

func ranksFromWire(w wireRanks) (Ranks, error) {
	switch w.Kind {
	case ranksNone:
		return nil, nil
	case ranksAll:
		return AllRanks{}, nil
	case ranksRange:
		return RankRange{w.Start, w.End}, nil
	case ranksList:
		return RankList(w.List), nil
	}
	return nil, errors.Errorf("unknown ranks kind %d", w.Kind)
}
