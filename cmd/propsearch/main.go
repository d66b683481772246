// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Propsearch searches a monitored application for performance
// properties.
//
// Usage:
//
//	propsearch run [-c config.toml] [-o out.txt] [-save] [-j n] [-scenarios batch.msgpack] [-v]
//	propsearch show [-c config.toml] [file.txt ...]
//	propsearch show [-c config.toml] -run id
//	propsearch runs [-c config.toml]
//	propsearch requests [-c config.toml] -o batch.msgpack
//
// The configuration file describes the application's regions, the
// search strategy and its settings, and the measurements experiments
// deliver; see package golang.org/x/propsearch/config.
//
// The run command runs one search agent per group of ranks and prints
// the properties they found, most severe first. With -o it also writes
// them as property records, and with -save it stores them in the
// database named by the [store] table of the configuration.
//
// The show command prints property records read from files, or the
// properties of a stored run, with their condition and severity
// recomputed from the recorded values.
//
// The runs command lists the stored runs.
//
// The requests command encodes the [[request]] tables of the
// configuration as a scenario batch. Passing such a batch to run with
// -scenarios restricts the search to the properties it requests.
package main

import (
	"log"

	_ "github.com/go-sql-driver/mysql"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/level"
	"github.com/mongodb/grip/logging"
	"github.com/mongodb/grip/send"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"golang.org/x/propsearch/config"
	"golang.org/x/propsearch/store"
	_ "golang.org/x/propsearch/store/sqlite3"
)

var (
	flagConfig  string
	flagVerbose bool

	rootCmd = &cobra.Command{
		Use:           "propsearch",
		Short:         "Search a monitored application for performance properties",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "propsearch.toml", "read configuration from `file`")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log every search round")
	rootCmd.AddCommand(runCmd, showCmd, runsCmd, requestsCmd)
}

func main() {
	log.SetPrefix("propsearch: ")
	log.SetFlags(0)
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// newLogger returns the journaler search components log to.
func newLogger() (grip.Journaler, error) {
	th := level.Info
	if flagVerbose {
		th = level.Debug
	}
	sender := send.MakeNative()
	sender.SetName("propsearch")
	if err := sender.SetLevel(send.LevelInfo{Default: level.Info, Threshold: th}); err != nil {
		return nil, err
	}
	return logging.MakeGrip(sender), nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(flagConfig)
}

func openStore(cfg *config.Config) (*store.DB, error) {
	if cfg.Store.Driver == "" {
		return nil, errors.Errorf("%s: no [store] driver configured", flagConfig)
	}
	return store.OpenSQL(cfg.Store.Driver, cfg.Store.DSN)
}
