// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package property

import (
	"fmt"
	"strings"

	"golang.org/x/propsearch/region"
)

// An ID tags a property kind.
type ID int

const (
	HotRegion ID = iota
	StallCycles
	DataCacheStall
	L2Misses
	L3Misses
	TLBMisses
	FPStall
	BranchMispredicts
	CriticalRegionOverhead
	SerializationCriticalRegion
	TaskCreationOverhead
	TaskWaitOverhead
	TaskSchedulingOverhead
	FineGrainedTasks
	TaskExecutionImbalance
	ImplicitBarrierWait
	LoadImbalance
	MPITime
	LateSender

	numIDs
)

var idNames = [numIDs]string{
	HotRegion:                   "HotRegion",
	StallCycles:                 "StallCycles",
	DataCacheStall:              "DataCacheStall",
	L2Misses:                    "L2Misses",
	L3Misses:                    "L3Misses",
	TLBMisses:                   "TLBMisses",
	FPStall:                     "FPStall",
	BranchMispredicts:           "BranchMispredicts",
	CriticalRegionOverhead:      "CriticalRegionOverhead",
	SerializationCriticalRegion: "SerializationCriticalRegion",
	TaskCreationOverhead:        "TaskCreationOverhead",
	TaskWaitOverhead:            "TaskWaitOverhead",
	TaskSchedulingOverhead:      "TaskSchedulingOverhead",
	FineGrainedTasks:            "FineGrainedTasks",
	TaskExecutionImbalance:      "TaskExecutionImbalance",
	ImplicitBarrierWait:         "ImplicitBarrierWait",
	LoadImbalance:               "LoadImbalance",
	MPITime:                     "MPITime",
	LateSender:                  "LateSender",
}

func (id ID) String() string {
	if id < 0 || id >= numIDs {
		return fmt.Sprintf("ID(%d)", int(id))
	}
	return idNames[id]
}

// ParseID returns the kind named s, ignoring case.
func ParseID(s string) (ID, error) {
	for id, name := range idNames {
		if strings.EqualFold(s, name) {
			return ID(id), nil
		}
	}
	return 0, fmt.Errorf("unknown property %q", s)
}

// IDs returns every property kind.
func IDs() []ID {
	ids := make([]ID, numIDs)
	for i := range ids {
		ids[i] = ID(i)
	}
	return ids
}

// Thresholds maps property kinds to the severity above which they hold.
// Kinds missing from a Thresholds use DefaultThresholds.
type Thresholds map[ID]float64

// DefaultThresholds contains the default severity threshold of every
// kind, in percent of the phase.
var DefaultThresholds = Thresholds{
	HotRegion:                   10,
	StallCycles:                 20,
	DataCacheStall:              10,
	L2Misses:                    5,
	L3Misses:                    5,
	TLBMisses:                   5,
	FPStall:                     10,
	BranchMispredicts:           5,
	CriticalRegionOverhead:      5,
	SerializationCriticalRegion: 5,
	TaskCreationOverhead:        5,
	TaskWaitOverhead:            5,
	TaskSchedulingOverhead:      5,
	FineGrainedTasks:            5,
	TaskExecutionImbalance:      5,
	ImplicitBarrierWait:         5,
	LoadImbalance:               5,
	MPITime:                     10,
	LateSender:                  5,
}

// Lookup returns the threshold of id.
func (t Thresholds) Lookup(id ID) float64 {
	if v, ok := t[id]; ok {
		return v
	}
	return DefaultThresholds[id]
}

// New returns an unevaluated property of kind id at site. It returns nil
// if id is not a known kind.
func New(id ID, site Site, th Thresholds) Property {
	b := NewBase(id, site, th)
	if k, ok := ratioKinds[id]; ok {
		return newRatio(b, k)
	}
	switch id {
	case SerializationCriticalRegion:
		return newSerialization(b)
	case FineGrainedTasks:
		return newFineGrained(b)
	case LoadImbalance:
		return newImbalance(b, loadImbalance)
	case TaskExecutionImbalance:
		return newImbalance(b, taskImbalance)
	}
	return nil
}

// ForRegion returns the properties that apply to a region of r's type,
// anchored at r. The rank, thread and phase come from site.
func ForRegion(r *region.Region, site Site, th Thresholds) []Property {
	site.Context.Region = r
	var ids []ID
	switch r.Type() {
	case region.CriticalRegion:
		ids = []ID{CriticalRegionOverhead, SerializationCriticalRegion}
	case region.TaskRegion:
		ids = []ID{TaskCreationOverhead, TaskWaitOverhead, TaskSchedulingOverhead, FineGrainedTasks, TaskExecutionImbalance}
	case region.ParallelRegion:
		ids = []ID{LoadImbalance, ImplicitBarrierWait}
	case region.DoRegion, region.SectionsRegion, region.SingleRegion,
		region.WorkshareRegion, region.WorkshareDoRegion, region.WorkshareSectionsRegion:
		ids = []ID{ImplicitBarrierWait}
	case region.BarrierRegion:
		site.SubID = "explicit"
		ids = []ID{ImplicitBarrierWait}
	case region.MPIRegion, region.MPICallRegion:
		ids = []ID{MPITime}
	case region.SubRegion, region.CallRegion, region.LoopRegion,
		region.NestedLoopRegion, region.UserRegion:
		ids = []ID{HotRegion}
	}
	ps := make([]Property, 0, len(ids))
	for _, id := range ids {
		ps = append(ps, New(id, site, th))
	}
	return ps
}
