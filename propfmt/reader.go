// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package propfmt reads and writes evaluated properties in a
// line-oriented text format.
//
// A file is a sequence of configuration lines and property lines.
// A configuration line has the form
//
//	key: value
//
// and applies to every following property line until the key is set
// again; an empty value deletes the key. The keys are region, rank and
// thread for the property's context, phase-region, phase-rank and
// phase-thread for its phase context, threads, purpose and scenarios.
// Regions are named by their registry ID.
//
// A property line has the form
//
//	Property<Name> <subid> <severity> <value> threshold <value> <field> ...
//
// The severity is the one reported when the line was written. The
// value/field pairs carry the threshold and the raw values the property
// evaluated, so that a reader can reconstruct the property and
// recompute its condition and severity.
package propfmt

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/propsearch/metric"
	"golang.org/x/propsearch/property"
	"golang.org/x/propsearch/region"
)

const propertyPrefix = "Property"

// A Record is a single record read from a property file. It is a
// *Result or a *SyntaxError.
type Record interface {
	Pos() (fileName string, line int)
}

var _ Record = (*Result)(nil)
var _ Record = (*SyntaxError)(nil)

// A Result is one property read back from a file.
type Result struct {
	Property property.Property

	// Severity is the severity recorded on the line.
	Severity float64

	fileName string
	line     int
}

// Pos returns the file name and line number of r.
func (r *Result) Pos() (fileName string, line int) {
	return r.fileName, r.line
}

// A SyntaxError represents a syntax error on a particular line of a
// property file.
type SyntaxError struct {
	FileName string
	Line     int
	Msg      string
}

func (e *SyntaxError) Pos() (fileName string, line int) {
	return e.FileName, e.Line
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.FileName, e.Line, e.Msg)
}

var noResult = &SyntaxError{"", 0, "Reader.Scan has not been called"}

// A Reader reads property files. Its API is modeled on bufio.Scanner.
type Reader struct {
	s   *bufio.Scanner
	g   *region.Registry
	err error

	fileName string
	line     int
	config   map[string]string

	rec Record
}

// NewReader returns a Reader that reads properties from r, resolving
// regions in g. fileName is only used in error messages.
func NewReader(r io.Reader, fileName string, g *region.Registry) *Reader {
	if fileName == "" {
		fileName = "<unknown>"
	}
	return &Reader{
		s:        bufio.NewScanner(r),
		g:        g,
		fileName: fileName,
		config:   make(map[string]string),
		rec:      noResult,
	}
}

// Scan advances to the next record and reports whether there was one.
// At EOF or on an I/O error it returns false; the caller should then
// check Err.
func (r *Reader) Scan() bool {
	if r.err != nil {
		return false
	}
	for r.s.Scan() {
		r.line++
		line := r.s.Text()
		if strings.HasPrefix(line, propertyPrefix) {
			res, err := r.parseProperty(line[len(propertyPrefix):])
			if err != nil {
				r.rec = err
			} else {
				r.rec = res
			}
			return true
		}
		if key, val, ok := parseKeyValueLine(line); ok {
			if val == "" {
				delete(r.config, key)
			} else {
				r.config[key] = val
			}
		}
		// Anything else is ignored.
	}
	if err := r.s.Err(); err != nil {
		r.err = fmt.Errorf("%s:%d: %w", r.fileName, r.line, err)
	}
	return false
}

// Result returns the record read by the last call to Scan. Syntax
// errors are non-fatal; the caller can keep calling Scan.
func (r *Reader) Result() Record {
	return r.rec
}

// Err returns the first I/O error encountered, if any.
func (r *Reader) Err() error {
	return r.err
}

// parseKeyValueLine parses a "key: value" line. Keys start with a lower
// case letter and contain no spaces or upper case letters.
func parseKeyValueLine(line string) (key, val string, ok bool) {
	i := strings.IndexByte(line, ':')
	if i <= 0 {
		return "", "", false
	}
	key = line[:i]
	for j, c := range key {
		if (j == 0 && !unicode.IsLower(c)) || unicode.IsSpace(c) || unicode.IsUpper(c) {
			return "", "", false
		}
	}
	return key, strings.TrimSpace(line[i+1:]), true
}

func (r *Reader) syntaxError(format string, args ...interface{}) *SyntaxError {
	return &SyntaxError{r.fileName, r.line, fmt.Sprintf(format, args...)}
}

func (r *Reader) parseProperty(line string) (*Result, *SyntaxError) {
	f := strings.Fields(line)
	if len(f) < 3 {
		return nil, r.syntaxError("short property line")
	}
	id, err := property.ParseID(f[0])
	if err != nil {
		return nil, r.syntaxError("%v", err)
	}
	subID := f[1]
	sev, err := strconv.ParseFloat(f[2], 64)
	if err != nil {
		return nil, r.syntaxError("parsing severity: %v", err)
	}
	pairs := f[3:]
	if len(pairs)%2 != 0 {
		return nil, r.syntaxError("missing field name")
	}
	vals := make(map[string]float64, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		v, err := strconv.ParseFloat(pairs[i], 64)
		if err != nil {
			return nil, r.syntaxError("parsing %s: %v", pairs[i+1], err)
		}
		vals[pairs[i+1]] = v
	}
	threshold, ok := vals["threshold"]
	if !ok {
		return nil, r.syntaxError("missing threshold")
	}
	delete(vals, "threshold")

	site, serr := r.site()
	if serr != nil {
		return nil, serr
	}
	site.SubID = subID
	p := property.New(id, site, property.Thresholds{id: threshold})
	if err := property.Restore(p, vals); err != nil {
		return nil, r.syntaxError("%v", err)
	}
	return &Result{Property: p, Severity: sev, fileName: r.fileName, line: r.line}, nil
}

// site builds a property site from the current configuration.
func (r *Reader) site() (property.Site, *SyntaxError) {
	var site property.Site
	var err *SyntaxError
	site.Context, err = r.context("region", "rank", "thread")
	if err != nil {
		return site, err
	}
	site.Phase, err = r.context("phase-region", "phase-rank", "phase-thread")
	if err != nil {
		return site, err
	}
	if site.Threads, err = r.intConfig("threads"); err != nil {
		return site, err
	}
	if s, ok := r.config["purpose"]; ok {
		p, perr := property.ParsePurpose(s)
		if perr != nil {
			return site, r.syntaxError("%v", perr)
		}
		site.Purpose = p
	}
	if s, ok := r.config["scenarios"]; ok {
		for _, f := range strings.Split(s, ",") {
			n, perr := strconv.Atoi(strings.TrimSpace(f))
			if perr != nil {
				return site, r.syntaxError("parsing scenarios: %v", perr)
			}
			site.Scenarios = append(site.Scenarios, n)
		}
	}
	return site, nil
}

func (r *Reader) context(regionKey, rankKey, threadKey string) (metric.Context, *SyntaxError) {
	var ctx metric.Context
	id, ok := r.config[regionKey]
	if !ok {
		return ctx, r.syntaxError("no %s configured", regionKey)
	}
	reg, err := r.g.RegionByID(id, true)
	if err != nil || reg == nil {
		return ctx, r.syntaxError("unknown region %q", id)
	}
	ctx.Region = reg
	var serr *SyntaxError
	if ctx.Rank, serr = r.intConfig(rankKey); serr != nil {
		return ctx, serr
	}
	if ctx.Thread, serr = r.intConfig(threadKey); serr != nil {
		return ctx, serr
	}
	return ctx, nil
}

// intConfig returns the integer value of key, or 0 if it is unset.
func (r *Reader) intConfig(key string) (int, *SyntaxError) {
	s, ok := r.config[key]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, r.syntaxError("parsing %s: %v", key, err)
	}
	return n, nil
}
