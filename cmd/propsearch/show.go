// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"golang.org/x/propsearch/config"
	"golang.org/x/propsearch/internal/texttab"
	"golang.org/x/propsearch/propfmt"
	"golang.org/x/propsearch/property"
	"golang.org/x/propsearch/region"
)

var (
	flagRun string

	showCmd = &cobra.Command{
		Use:   "show [file ...]",
		Short: "Print property records or a stored run",
		RunE:  showRecords,
	}

	runsCmd = &cobra.Command{
		Use:   "runs",
		Short: "List the stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}
)

func init() {
	showCmd.Flags().StringVar(&flagRun, "run", "", "print the properties of the stored run `id`")
}

// A row is one line of the property table.
type row struct {
	agent string
	p     property.Property
}

func propertyTable(rows []row, withAgent bool) *texttab.Table {
	t := new(texttab.Table)
	t.Row()
	if withAgent {
		t.Cell("agent")
	}
	t.Cell("property").Cell("region").Cell("rank").Cell("thread").Cell("severity").Cell("holds").Rule()
	for _, r := range rows {
		t.Row()
		if withAgent {
			t.Cell("%s", r.agent)
		}
		ctx := r.p.Context()
		name := "?"
		if ctx.Region != nil {
			name = ctx.Region.Name()
		}
		t.Cell("%s", r.p.Name()).Cell("%s", name).Cell("%d", ctx.Rank).Cell("%d", ctx.Thread)
		t.Cell("%.2f", r.p.Severity()).Cell("%v", r.p.Condition())
	}
	off := 0
	if withAgent {
		off = 1
	}
	for col := off + 2; col <= off+4; col++ {
		t.SetAlign(col, texttab.Right)
	}
	return t
}

func showRecords(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	g, err := cfg.Registry()
	if err != nil {
		return errors.Wrap(err, flagConfig)
	}

	var rows []row
	if flagRun != "" {
		if len(args) > 0 {
			return errors.New("show: -run and files are exclusive")
		}
		if rows, err = storedRows(cmd, cfg, g); err != nil {
			return err
		}
	} else if len(args) == 0 {
		rows = readRows(cmd, os.Stdin, "<stdin>", g)
	} else {
		for _, file := range args {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			rows = append(rows, readRows(cmd, f, file, g)...)
			f.Close()
		}
	}
	return propertyTable(rows, false).Format(cmd.OutOrStdout())
}

// readRows reads property records from r. Syntax errors are reported
// and skipped.
func readRows(cmd *cobra.Command, r io.Reader, name string, g *region.Registry) []row {
	var rows []row
	pr := propfmt.NewReader(r, name, g)
	for pr.Scan() {
		switch rec := pr.Result().(type) {
		case *propfmt.Result:
			rows = append(rows, row{p: rec.Property})
		case *propfmt.SyntaxError:
			fmt.Fprintln(cmd.ErrOrStderr(), rec)
		}
	}
	if err := pr.Err(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
	}
	return rows
}

func storedRows(cmd *cobra.Command, cfg *config.Config, g *region.Registry) ([]row, error) {
	db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	stored, err := db.Properties(cmd.Context(), flagRun)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, errors.Errorf("no properties stored for run %s", flagRun)
	}
	rows := make([]row, 0, len(stored))
	for _, s := range stored {
		p, err := s.Property(g)
		if err != nil {
			return nil, errors.Wrapf(err, "run %s", flagRun)
		}
		rows = append(rows, row{p: p})
	}
	return rows, nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	runs, err := db.Runs(cmd.Context())
	if err != nil {
		return err
	}
	t := new(texttab.Table)
	t.Row("run", "agent", "strategy", "started", "rounds", "finished").Rule()
	for _, r := range runs {
		t.Row(r.ID, r.Agent, r.Strategy, r.Started.Format(time.RFC3339), strconv.Itoa(r.Rounds), strconv.FormatBool(r.Finished))
	}
	t.SetAlign(4, texttab.Right)
	return t.Format(cmd.OutOrStdout())
}
