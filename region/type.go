// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package region

import (
	"fmt"
	"strings"
)

// A Type identifies the kind of an instrumented code region.
type Type int

const (
	UnknownRegion Type = iota
	FileRegion
	SubRegion
	CallRegion
	LoopRegion
	NestedLoopRegion
	VectorRegion
	DataStructure
	UserRegion
	ParallelRegion
	DoRegion
	SectionsRegion
	SectionRegion
	SingleRegion
	SingleBodyRegion
	CriticalRegion
	CriticalBodyRegion
	AtomicRegion
	MasterRegion
	OrderedRegion
	OrderedBodyRegion
	BarrierRegion
	ImplicitBarrierRegion
	FlushRegion
	WorkshareRegion
	WorkshareDoRegion
	WorkshareSectionsRegion
	TaskRegion
	TaskCreationRegion
	TaskwaitRegion
	TaskExecutionRegion
	MPIRegion
	MPICallRegion
	CUDAKernelRegion
	CUDAMemTransferRegion
	OpenCLKernelRegion
	OpenCLMemTransferRegion
	OMPTargetRegion
	PipeRegion
	PipeStageRegion
	AllocRegion
	FreeRegion
	IORegion
	MiscRegion
	RTSRegion

	numTypes
)

var typeNames = [numTypes]string{
	UnknownRegion:           "UNKNOWN_REGION",
	FileRegion:              "FILE_REGION",
	SubRegion:               "SUB_REGION",
	CallRegion:              "CALL_REGION",
	LoopRegion:              "LOOP_REGION",
	NestedLoopRegion:        "NESTED_LOOP_REGION",
	VectorRegion:            "VECTOR_REGION",
	DataStructure:           "DATA_STRUCTURE",
	UserRegion:              "USER_REGION",
	ParallelRegion:          "PARALLEL_REGION",
	DoRegion:                "DO_REGION",
	SectionsRegion:          "SECTIONS_REGION",
	SectionRegion:           "SECTION_REGION",
	SingleRegion:            "SINGLE_REGION",
	SingleBodyRegion:        "SINGLE_REGION_BODY",
	CriticalRegion:          "CRITICAL_REGION",
	CriticalBodyRegion:      "CRITICAL_REGION_BODY",
	AtomicRegion:            "ATOMIC_REGION",
	MasterRegion:            "MASTER_REGION",
	OrderedRegion:           "ORDERED_REGION",
	OrderedBodyRegion:       "ORDERED_REGION_BODY",
	BarrierRegion:           "BARRIER_REGION",
	ImplicitBarrierRegion:   "IMPLICIT_BARRIER_REGION",
	FlushRegion:             "FLUSH_REGION",
	WorkshareRegion:         "WORKSHARE_REGION",
	WorkshareDoRegion:       "WORKSHARE_DO_REGION",
	WorkshareSectionsRegion: "WORKSHARE_SECTIONS_REGION",
	TaskRegion:              "TASK_REGION",
	TaskCreationRegion:      "TASK_CREATION_REGION",
	TaskwaitRegion:          "TASKWAIT_REGION",
	TaskExecutionRegion:     "TASK_EXECUTION_REGION",
	MPIRegion:               "MPI_REGION",
	MPICallRegion:           "MPI_CALL_REGION",
	CUDAKernelRegion:        "CUDA_KERNEL",
	CUDAMemTransferRegion:   "CUDA_MEM_TRANSFER",
	OpenCLKernelRegion:      "OPENCL_KERNEL",
	OpenCLMemTransferRegion: "OPENCL_MEM_TRANSFER",
	OMPTargetRegion:         "OMP_TARGET_REGION",
	PipeRegion:              "PIPE_REGION",
	PipeStageRegion:         "PIPE_STAGE_REGION",
	AllocRegion:             "ALLOC_REGION",
	FreeRegion:              "FREE_REGION",
	IORegion:                "IO_REGION",
	MiscRegion:              "MISC_REGION",
	RTSRegion:               "RTS_REGION",
}

func (t Type) String() string {
	if t < 0 || t >= numTypes {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

// ParseType returns the Type named s. Matching is case-insensitive and
// accepts names with or without the "_REGION" suffix.
func ParseType(s string) (Type, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	for t, name := range typeNames {
		if u == name || u+"_REGION" == name {
			return Type(t), nil
		}
	}
	return UnknownRegion, fmt.Errorf("unknown region type %q", s)
}

// Types returns all region types in declaration order.
func Types() []Type {
	ts := make([]Type, numTypes)
	for i := range ts {
		ts[i] = Type(i)
	}
	return ts
}

// IsParallel reports whether regions of type t execute on a thread team
// by themselves.
func (t Type) IsParallel() bool {
	switch t {
	case ParallelRegion, OMPTargetRegion:
		return true
	}
	return false
}

// RunsAs describes whether a region executes on one thread or on a team.
type RunsAs int

const (
	Serial RunsAs = iota
	Threaded
)

func (r RunsAs) String() string {
	if r == Threaded {
		return "threaded"
	}
	return "serial"
}
