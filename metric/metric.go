// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metric is the access layer between the property search and
// the measurement subsystem.
//
// Properties declare the (Context, ID) pairs they need with
// Facade.Request. The search flushes those requests with
// TransferRequests, the monitored application runs one more phase
// iteration, and once Results reports AllInfoGathered the values can be
// read back with Get. A value that was requested but could not be
// measured reads as Unavailable.
package metric

import (
	"fmt"
	"strings"

	"golang.org/x/propsearch/region"
)

// Unavailable is the value Get returns for a metric that has no
// measurement.
const Unavailable = -1

// An ID identifies a measurable metric.
type ID int

const (
	ExecutionTime ID = iota
	Cycles
	Instructions
	StallCycles
	DataCacheStall
	FlushStall
	FPStall
	L2DataMisses
	L3Misses
	TLBDataMisses
	BranchMispredicts
	OMPEnterTime
	OMPBodyTime
	OMPBarrierTime
	TaskCreationTime
	TaskWaitTime
	TaskSchedulingTime
	TaskExecutionTime
	TaskCount
	MPITime
	MPILateSender

	numIDs
)

var idNames = [numIDs]string{
	ExecutionTime:      "PSC_EXECUTION_TIME",
	Cycles:             "PSC_PAPI_TOT_CYC",
	Instructions:       "PSC_PAPI_TOT_INS",
	StallCycles:        "PSC_BACK_END_BUBBLE_ALL",
	DataCacheStall:     "PSC_BE_L1D_FPU_BUBBLE",
	FlushStall:         "PSC_BE_FLUSH_BUBBLE",
	FPStall:            "PSC_FP_STALL",
	L2DataMisses:       "PSC_PAPI_L2_DCM",
	L3Misses:           "PSC_PAPI_L3_TCM",
	TLBDataMisses:      "PSC_PAPI_TLB_DM",
	BranchMispredicts:  "PSC_PAPI_BR_MSP",
	OMPEnterTime:       "PSC_OMP_ENTER_TIME",
	OMPBodyTime:        "PSC_OMP_BODY_TIME",
	OMPBarrierTime:     "PSC_OMP_BARRIER_TIME",
	TaskCreationTime:   "PSC_TASK_CREATION_TIME",
	TaskWaitTime:       "PSC_TASK_WAIT_TIME",
	TaskSchedulingTime: "PSC_TASK_SCHEDULING_TIME",
	TaskExecutionTime:  "PSC_TASK_EXECUTION_TIME",
	TaskCount:          "PSC_TASK_COUNT",
	MPITime:            "PSC_MPI_TIME",
	MPILateSender:      "PSC_MPI_LATE_SENDER",
}

func (m ID) String() string {
	if m < 0 || m >= numIDs {
		return fmt.Sprintf("ID(%d)", int(m))
	}
	return idNames[m]
}

// ParseID returns the metric named s. The "PSC_" prefix is optional and
// case is ignored.
func ParseID(s string) (ID, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	for m, name := range idNames {
		if u == name || "PSC_"+u == name {
			return ID(m), nil
		}
	}
	return 0, fmt.Errorf("unknown metric %q", s)
}

// A Context is the coordinate at which a metric is measured or a
// property is evaluated. Contexts with equal coordinates denote the same
// measurement point, so Context is usable as a map key.
type Context struct {
	Region *region.Region
	Rank   int
	Thread int
}

func (c Context) String() string {
	if c.Region == nil {
		return fmt.Sprintf("<nil>@%d.%d", c.Rank, c.Thread)
	}
	return fmt.Sprintf("%s@%d.%d", c.Region.ID(), c.Rank, c.Thread)
}

// Status reports whether the last experiment delivered every requested
// value.
type Status int

const (
	AllInfoGathered Status = iota
	NotAllInfoGathered
)

func (s Status) String() string {
	if s == AllInfoGathered {
		return "ALL_INFO_GATHERED"
	}
	return "NOT_ALL_INFO_GATHERED"
}

// A Request is one declared measurement need.
type Request struct {
	Context Context
	Metric  ID
}

// A Facade is the interface properties and strategies use to reach the
// measurement subsystem.
type Facade interface {
	// Request queues a measurement need. It may be called before any
	// experiment has run.
	Request(ctx Context, m ID)

	// TransferRequests flushes the queued requests so that the next
	// experiment collects them, and clears the values of the previous
	// experiment.
	TransferRequests() error

	// TransferRequestsNoBeginEnd is TransferRequests for measurement
	// passes that do not bracket the phase region with begin/end
	// markers.
	TransferRequestsNoBeginEnd() error

	// Results reports whether the last experiment delivered every
	// transferred request.
	Results() Status

	// Get returns the measured value, or Unavailable. It is only
	// meaningful once Results reports AllInfoGathered.
	Get(ctx Context, m ID) float64

	// Clean resets all request and measurement state.
	Clean()

	// Erase drops stored values of metric m measured in the region
	// starting at (fileID, line) on the given rank and thread.
	Erase(fileID, line, rank, thread int, m ID)
}
