// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"golang.org/x/propsearch/scenario"
)

const testConfig = `
strategy = "StallCycleAnalysisStrategy"
phase = "step"
main = "main"

[store]
driver = "sqlite3"
dsn = "DBPATH"

[[region]]
name = "main"
type = "sub"
file = "main.c"
first = 1
last = 100

[[region]]
name = "step"
type = "loop"
file = "main.c"
first = 10
last = 90
parent = "main"

[[region]]
name = "inner"
type = "loop"
file = "main.c"
first = 20
last = 30
parent = "step"

[[measurement]]
region = "step"
metric = "PAPI_TOT_CYC"
value = 1000

[[measurement]]
region = "step"
metric = "BACK_END_BUBBLE_ALL"
value = 600

[[measurement]]
region = "inner"
metric = "BACK_END_BUBBLE_ALL"
value = 400
`

func execute(t *testing.T, args ...string) string {
	t.Helper()
	flagOut, flagSave, flagRun, flagParallel = "", false, "", 0
	flagScenarios, flagRequestsOut = "", ""
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("propsearch %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "propsearch.toml")
	text := strings.Replace(testConfig, "DBPATH", filepath.ToSlash(filepath.Join(dir, "runs.db")), 1)
	if err := os.WriteFile(cfg, []byte(text), 0o666); err != nil {
		t.Fatal(err)
	}
	records := filepath.Join(dir, "found.txt")

	out := execute(t, "run", "-c", cfg, "-o", records, "--save")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	// Header, rule, two properties and the stored run.
	if len(lines) != 5 {
		t.Fatalf("run printed %d lines, want 5:\n%s", len(lines), out)
	}
	for i, want := range []string{"step", "inner"} {
		f := strings.Fields(lines[2+i])
		if len(f) != 7 || f[0] != "agent-0" || f[1] != "StallCycles" || f[2] != want || f[6] != "true" {
			t.Errorf("row %d = %q", i, lines[2+i])
		}
	}
	m := regexp.MustCompile(`stored as run (\S+)`).FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("no run ID in output:\n%s", out)
	}
	runID := m[1]

	data, err := os.ReadFile(records)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "PropertyStallCycles"); n != 2 {
		t.Errorf("records file has %d properties, want 2:\n%s", n, data)
	}

	fromFile := execute(t, "show", "-c", cfg, records)
	fromDB := execute(t, "show", "-c", cfg, "--run", runID)
	if fromFile != fromDB {
		t.Errorf("show of file and of stored run differ:\n%s\n%s", fromFile, fromDB)
	}
	if !strings.Contains(fromFile, "60.00") || !strings.Contains(fromFile, "40.00") {
		t.Errorf("show output lacks severities:\n%s", fromFile)
	}

	runs := execute(t, "runs", "-c", cfg)
	if !strings.Contains(runs, runID) || !strings.Contains(runs, "StallCycleAnalysisStrategy") {
		t.Errorf("runs output lacks the run:\n%s", runs)
	}
}

func TestScenarioRequests(t *testing.T) {
	dir := t.TempDir()
	writeFile := func(name, text string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(text), 0o666); err != nil {
			t.Fatal(err)
		}
		return path
	}
	cfg := writeFile("propsearch.toml", testConfig)
	withRequest := writeFile("hot.toml", testConfig+`
[[request]]
properties = ["HotRegion"]
regions = ["step"]
`)
	batch := filepath.Join(dir, "hot.msgpack")

	execute(t, "requests", "-c", withRequest, "-o", batch)
	f, err := os.Open(batch)
	if err != nil {
		t.Fatal(err)
	}
	ss, err := scenario.Decode(f)
	f.Close()
	if err != nil {
		t.Fatal(err)
	}
	if len(ss) != 1 || len(ss[0].Requests) != 1 {
		t.Fatalf("batch = %+v, want one scenario with one request", ss)
	}
	if req := ss[0].Requests[0]; len(req.Properties) != 1 || req.Properties[0] != "HotRegion" || len(req.Regions) != 1 {
		t.Errorf("request = %+v", req)
	}

	// The search seeds only StallCycles, which the batch excludes.
	out := execute(t, "run", "-c", cfg, "--scenarios", batch)
	if strings.Contains(out, "StallCycles") {
		t.Errorf("run with a HotRegion-only batch found StallCycles:\n%s", out)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 2 {
		t.Errorf("run printed %d lines, want header and rule:\n%s", len(lines), out)
	}

	bad := filepath.Join(dir, "bad.msgpack")
	f, err = os.Create(bad)
	if err != nil {
		t.Fatal(err)
	}
	err = scenario.Encode(f, []*scenario.Scenario{{ID: 3, Requests: []scenario.PropertyRequest{{Regions: []string{"99-99"}}}}})
	f.Close()
	if err != nil {
		t.Fatal(err)
	}
	flagScenarios = ""
	rootCmd.SetArgs([]string{"run", "-c", cfg, "--scenarios", bad})
	if err := rootCmd.Execute(); err == nil || !strings.Contains(err.Error(), "scenario 3") {
		t.Errorf("run with unknown region in batch: err = %v", err)
	}
}
