// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package region models the instrumented code regions of a monitored
// application and the registry that owns them.
//
// Regions form a tree through parent/child links. Call regions add
// name-based edges to the subroutines they invoke, so walks over the
// region model are walks over a tree plus call edges, which may contain
// cycles.
//
// A Registry is constructed explicitly by the process that owns it and
// handed to everything that needs region lookups. Regions are never
// removed from a Registry, so *Region handles stay valid for its
// lifetime.
package region

import "fmt"

// An Ident is the content identity of a region.
type Ident struct {
	Type      Type
	FileID    int
	FirstLine int
	LastLine  int
	FileName  string

	// LocalID distinguishes regions inside one instrumentation unit.
	// It does not take part in equality.
	LocalID int
}

// Equal reports whether a and b describe the same region, ignoring
// LocalID.
func (a Ident) Equal(b Ident) bool {
	return a.Type == b.Type &&
		a.FileID == b.FileID &&
		a.FirstLine == b.FirstLine &&
		a.LastLine == b.LastLine &&
		a.FileName == b.FileName
}

// A Region is a single instrumented code region.
//
// Regions are owned by a Registry. Other values refer to them through
// *Region handles and never free them.
type Region struct {
	ident       Ident
	name        string
	nameID      int
	key         uint64
	id          string
	runsAs      RunsAs
	significant bool

	parent   *Region
	children []*Region
}

// Ident returns the identity fields of r.
func (r *Region) Ident() Ident { return r.ident }

// Type returns the region type.
func (r *Region) Type() Type { return r.ident.Type }

// Name returns the region name. For call regions, this is the name of
// the called subroutine.
func (r *Region) Name() string { return r.name }

// FileName returns the source file the region belongs to.
func (r *Region) FileName() string { return r.ident.FileName }

// FirstLine returns the first source line of the region.
func (r *Region) FirstLine() int { return r.ident.FirstLine }

// LastLine returns the last source line of the region.
func (r *Region) LastLine() int { return r.ident.LastLine }

// Key returns the 64-bit deduplication key of r.
func (r *Region) Key() uint64 { return r.key }

// ID returns the registry-unique string ID of r.
func (r *Region) ID() string { return r.id }

// RunsAs reports whether r executes serially or on a thread team.
func (r *Region) RunsAs() RunsAs { return r.runsAs }

// Significant reports whether r was marked significant.
func (r *Region) Significant() bool { return r.significant }

// Parent returns the enclosing region, or nil for a root.
func (r *Region) Parent() *Region { return r.parent }

// Children returns the nested regions of r in insertion order.
// The caller must not modify the returned slice.
func (r *Region) Children() []*Region { return r.children }

// AddChild makes c a child of r. Adding the same child twice has no
// effect. A region has at most one parent; re-parenting moves it.
func (r *Region) AddChild(c *Region) {
	if c.parent == r {
		return
	}
	if old := c.parent; old != nil {
		for i, x := range old.children {
			if x == c {
				old.children = append(old.children[:i], old.children[i+1:]...)
				break
			}
		}
	}
	c.parent = r
	r.children = append(r.children, c)
}

// markThreaded upgrades r to Threaded and reports whether it changed.
func (r *Region) markThreaded() bool {
	if r.runsAs == Threaded {
		return false
	}
	r.runsAs = Threaded
	return true
}

func (r *Region) String() string {
	return fmt.Sprintf("%s %s (%s:%d-%d)", r.ident.Type, r.name, r.ident.FileName, r.ident.FirstLine, r.ident.LastLine)
}
