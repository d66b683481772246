// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package propfmt

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/propsearch/metric"
	"golang.org/x/propsearch/property"
)

// configKeys is the order configuration lines are written in.
var configKeys = []string{
	"region", "rank", "thread",
	"phase-region", "phase-rank", "phase-thread",
	"threads", "purpose", "scenarios",
}

// A Writer writes evaluated properties.
type Writer struct {
	w   io.Writer
	buf bytes.Buffer

	first  bool
	config map[string]string
}

// NewWriter returns a Writer that writes properties to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, first: true, config: make(map[string]string)}
}

// Write writes p. If p's configuration differs from the configuration
// in effect, it first emits the changed configuration lines.
func (w *Writer) Write(p property.Property) error {
	cfg := Config(p)
	changed := false
	for _, k := range configKeys {
		if w.config[k] != cfg[k] {
			changed = true
			break
		}
	}
	if changed {
		w.writeConfig(cfg)
	}

	fmt.Fprintf(&w.buf, "%s%s %s %v", propertyPrefix, p.Name(), p.SubID(), p.Severity())
	fmt.Fprintf(&w.buf, " %v threshold", p.Threshold())
	for _, f := range p.Fields() {
		fmt.Fprintf(&w.buf, " %v %s", *f.Value, f.Name)
	}
	w.buf.WriteByte('\n')
	w.first = false

	_, err := w.w.Write(w.buf.Bytes())
	w.buf.Reset()
	return err
}

func (w *Writer) writeConfig(cfg map[string]string) {
	if !w.first {
		// Configuration blocks after properties get an extra blank.
		w.buf.WriteByte('\n')
	}
	for _, k := range configKeys {
		have, ok := w.config[k]
		want := cfg[k]
		if ok && have == want {
			continue
		}
		if want == "" {
			if ok {
				fmt.Fprintf(&w.buf, "%s:\n", k)
				delete(w.config, k)
			}
			continue
		}
		fmt.Fprintf(&w.buf, "%s: %s\n", k, want)
		w.config[k] = want
	}
	w.buf.WriteByte('\n')
}

// Config returns the configuration lines that place p, keyed by
// configuration key. Unset keys are absent.
func Config(p property.Property) map[string]string {
	cfg := make(map[string]string)
	setContext(cfg, p.Context(), "region", "rank", "thread")
	setContext(cfg, p.PhaseContext(), "phase-region", "phase-rank", "phase-thread")
	if b, ok := p.(interface{ Site() property.Site }); ok {
		cfg["threads"] = strconv.Itoa(b.Site().Threads)
	}
	cfg["purpose"] = p.Purpose().String()
	if ids := p.ScenarioIDs(); len(ids) > 0 {
		s := make([]string, len(ids))
		for i, id := range ids {
			s[i] = strconv.Itoa(id)
		}
		cfg["scenarios"] = strings.Join(s, ",")
	}
	return cfg
}

func setContext(cfg map[string]string, ctx metric.Context, regionKey, rankKey, threadKey string) {
	if ctx.Region != nil {
		cfg[regionKey] = ctx.Region.ID()
	}
	cfg[rankKey] = strconv.Itoa(ctx.Rank)
	cfg[threadKey] = strconv.Itoa(ctx.Thread)
}
