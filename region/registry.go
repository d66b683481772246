// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package region

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Options configures a Registry. The counts are configuration inputs;
// the registry does not discover them.
type Options struct {
	OMPThreads int
	MPIProcs   int
}

// A Registry is the catalog of all regions of one monitored application.
// It interns names and file names, deduplicates regions by key and
// answers the lookups used by the search engine.
//
// A Registry is safe for concurrent use. It is read-mostly once the
// application description has been ingested.
type Registry struct {
	mu sync.RWMutex

	opts Options

	regions []*Region
	byID    map[string]*Region
	byKey   map[uint64]*Region

	strings []string
	strIDs  map[string]int
	files   map[int]string

	significant []*Region
	phase       *Region
	main        *Region
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts Options) *Registry {
	if opts.OMPThreads < 1 {
		opts.OMPThreads = 1
	}
	if opts.MPIProcs < 1 {
		opts.MPIProcs = 1
	}
	return &Registry{
		opts:   opts,
		byID:   make(map[string]*Region),
		byKey:  make(map[uint64]*Region),
		strIDs: make(map[string]int),
		files:  make(map[int]string),
	}
}

// OMPThreads returns the configured number of OpenMP threads.
func (g *Registry) OMPThreads() int { return g.opts.OMPThreads }

// MPIProcs returns the configured number of MPI processes.
func (g *Registry) MPIProcs() int { return g.opts.MPIProcs }

// Intern returns the ID of s, adding it to the string table if needed.
// IDs start at 1.
func (g *Registry) Intern(s string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.intern(s)
}

func (g *Registry) intern(s string) int {
	if id, ok := g.strIDs[s]; ok {
		return id
	}
	g.strings = append(g.strings, s)
	id := len(g.strings)
	g.strIDs[s] = id
	return id
}

// String returns the interned string with the given ID, or "" if there
// is none.
func (g *Registry) String(id int) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if id < 1 || id > len(g.strings) {
		return ""
	}
	return g.strings[id-1]
}

// FileName returns the name of the file with the given file ID.
func (g *Registry) FileName(fileID int) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.files[fileID]
}

// Key computes the deduplication key of a region.
//
// The encoding uses fixed decimal bases and is not collision-free: name
// IDs of 1000 or more, or first lines of 10000 or more, overlap the next
// field. Regions whose keys collide are treated as the same region.
func Key(fileID, nameID, firstLine int) uint64 {
	return uint64(fileID)*10000000 + uint64(nameID)*10000 + uint64(firstLine)
}

// AddOrGetRegion returns the region identified by (name, file,
// firstLine), creating and registering it if it does not exist yet.
// Calling it twice with the same triple returns the same *Region.
func (g *Registry) AddOrGetRegion(name, file string, firstLine, lastLine int, typ Type) *Region {
	g.mu.Lock()
	defer g.mu.Unlock()

	if name == "" {
		name = defaultName(typ, file, firstLine)
	}
	fileID := g.intern(file)
	nameID := g.intern(name)
	key := Key(fileID, nameID, firstLine)
	if r, ok := g.byKey[key]; ok {
		return r
	}
	g.files[fileID] = file

	r := &Region{
		ident: Ident{
			Type:      typ,
			FileID:    fileID,
			FirstLine: firstLine,
			LastLine:  lastLine,
			FileName:  file,
			LocalID:   len(g.regions),
		},
		name:   name,
		nameID: nameID,
		key:    key,
	}
	if typ.IsParallel() {
		r.runsAs = Threaded
	}
	r.id = fmt.Sprintf("%d-%d", fileID, firstLine)
	for n := 1; g.byID[r.id] != nil; n++ {
		r.id = fmt.Sprintf("%d-%d.%d", fileID, firstLine, n)
	}
	g.regions = append(g.regions, r)
	g.byID[r.id] = r
	g.byKey[key] = r
	return r
}

func defaultName(typ Type, file string, firstLine int) string {
	return fmt.Sprintf("%s@%s:%d", typ, file, firstLine)
}

// Link makes child a nested region of parent.
func (g *Registry) Link(parent, child *Region) {
	g.mu.Lock()
	defer g.mu.Unlock()
	parent.AddChild(child)
}

// Regions returns all regions in registration order.
func (g *Registry) Regions() []*Region {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]*Region(nil), g.regions...)
}

// RegionByID returns the region with the given ID.
//
// A missing ID means the analysis and the instrumentation disagree. If
// allowMissing is false, RegionByID returns a *FatalError listing every
// known ID. If allowMissing is true, it returns nil, nil.
func (g *Registry) RegionByID(id string, allowMissing bool) (*Region, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if r, ok := g.byID[id]; ok {
		return r, nil
	}
	if allowMissing {
		return nil, nil
	}
	return nil, g.fatalf("region %q not found", id)
}

// RegionByKey returns the region with the given key, or nil.
func (g *Registry) RegionByKey(key uint64) *Region {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.byKey[key]
}

// RegionByDescr returns the region registered for (name, file,
// firstLine), or nil. An empty name matches the unnamed region at that
// location, whatever its type; if several unnamed regions start there,
// the first registered one is returned.
func (g *Registry) RegionByDescr(name, file string, firstLine int) *Region {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if name == "" {
		for _, r := range g.regions {
			id := r.ident
			if id.FileName == file && id.FirstLine == firstLine && r.name == defaultName(id.Type, file, firstLine) {
				return r
			}
		}
		return nil
	}
	fileID, ok := g.strIDs[file]
	if !ok {
		return nil
	}
	nameID, ok := g.strIDs[name]
	if !ok {
		return nil
	}
	return g.byKey[Key(fileID, nameID, firstLine)]
}

// MarkSignificant marks every region whose name matches one of names,
// ignoring case. The significant region list is rebuilt from scratch.
func (g *Registry) MarkSignificant(names []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.significant = g.significant[:0]
	for _, r := range g.regions {
		r.significant = false
		for _, n := range names {
			if strings.EqualFold(r.name, n) {
				r.significant = true
				g.significant = append(g.significant, r)
				break
			}
		}
	}
}

// SignificantRegions returns the regions selected by the last call to
// MarkSignificant.
func (g *Registry) SignificantRegions() []*Region {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]*Region(nil), g.significant...)
}

// Subroutine returns the subroutine region called name.
//
// If no subroutine has that name, or if more than one does, Subroutine
// returns nil. The ambiguous case is not an error; callers treat it as
// an unresolved call.
func (g *Registry) Subroutine(name string) *Region {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.subroutine(name)
}

func (g *Registry) subroutine(name string) *Region {
	var found *Region
	for _, r := range g.regions {
		if r.ident.Type != SubRegion || r.name != name {
			continue
		}
		if found != nil {
			return nil
		}
		found = r
	}
	return found
}

// Subroutines returns all subroutine regions in registration order.
func (g *Registry) Subroutines() []*Region {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var subs []*Region
	for _, r := range g.regions {
		if r.ident.Type == SubRegion {
			subs = append(subs, r)
		}
	}
	return subs
}

// SetMainRegion records the program's main region.
func (g *Registry) SetMainRegion(r *Region) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.owns(r) {
		return g.fatalf("main region %v is not registered", r)
	}
	g.main = r
	return nil
}

// MainRegion returns the main region, or nil if none was set.
func (g *Registry) MainRegion() *Region {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.main
}

// SetPhaseRegion records the phase region. The phase region is set once;
// setting an unregistered region is a fatal error and setting a
// different region afterwards is an error.
func (g *Registry) SetPhaseRegion(r *Region) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.owns(r) {
		return g.fatalf("phase region %v is not registered", r)
	}
	if g.phase != nil && g.phase != r {
		return errors.Errorf("phase region already set to %s", g.phase.id)
	}
	g.phase = r
	return nil
}

// PhaseRegion returns the phase region. A missing phase region is a
// *FatalError.
func (g *Registry) PhaseRegion() (*Region, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.phase == nil {
		return nil, g.fatalf("no phase region")
	}
	return g.phase, nil
}

func (g *Registry) owns(r *Region) bool {
	return r != nil && g.byKey[r.key] == r
}

// PropagateThreadedness marks every region that can execute on a thread
// team as Threaded. It walks depth-first from the main region through
// nested regions and through call edges, resolving callees by name.
// Regions are never downgraded, so running it again has no effect.
func (g *Registry) PropagateThreadedness() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.main == nil {
		return
	}
	visited := make(map[*Region]bool)
	g.propagate(g.main, false, visited)
}

func (g *Registry) propagate(r *Region, threaded bool, visited map[*Region]bool) {
	visited[r] = true
	if threaded || r.ident.Type.IsParallel() {
		r.markThreaded()
	}
	threaded = r.runsAs == Threaded
	for _, c := range r.children {
		g.propagate(c, threaded, visited)
	}
	if r.ident.Type != CallRegion {
		return
	}
	callee := g.subroutine(r.name)
	if callee == nil {
		return
	}
	// A threaded walk only descends into callees that are not yet
	// threaded; a serial walk only into callees it has not seen. Either
	// way each callee is entered a bounded number of times, so recursive
	// call graphs terminate.
	if threaded && callee.runsAs != Threaded {
		g.propagate(callee, true, visited)
	} else if !visited[callee] {
		g.propagate(callee, threaded, visited)
	}
}

// A FatalError reports a structural inconsistency between the analysis
// and the instrumented application, such as a lookup of a region that
// the registry never handed out. It is not recoverable.
type FatalError struct {
	Msg   string
	Known []string // IDs of all known regions, sorted
}

func (e *FatalError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fatal: %s", e.Msg)
	if len(e.Known) > 0 {
		fmt.Fprintf(&b, "; known regions: %s", strings.Join(e.Known, ", "))
	} else {
		b.WriteString("; no regions known")
	}
	return b.String()
}

// IsFatal reports whether err is or wraps a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// fatalf builds a *FatalError. The caller must hold g.mu.
func (g *Registry) fatalf(format string, args ...interface{}) *FatalError {
	known := make([]string, 0, len(g.byID))
	for id := range g.byID {
		known = append(known, id)
	}
	sort.Strings(known)
	return &FatalError{Msg: fmt.Sprintf(format, args...), Known: known}
}
