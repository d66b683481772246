// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"golang.org/x/propsearch/scenario"
)

var (
	flagRequestsOut string

	requestsCmd = &cobra.Command{
		Use:   "requests -o file",
		Short: "Encode the configured property requests as a scenario batch",
		Args:  cobra.NoArgs,
		RunE:  writeRequests,
	}
)

func init() {
	requestsCmd.Flags().StringVarP(&flagRequestsOut, "out", "o", "", "write the scenario batch to `file`")
	requestsCmd.MarkFlagRequired("out")
}

func writeRequests(cmd *cobra.Command, args []string) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	g, err := cfg.Registry()
	if err != nil {
		return errors.Wrap(err, flagConfig)
	}
	reqs, err := cfg.PropertyRequests(g)
	if err != nil {
		return errors.Wrap(err, flagConfig)
	}
	if len(reqs) == 0 {
		return errors.Errorf("%s: no [[request]] tables", flagConfig)
	}

	f, err := os.Create(flagRequestsOut)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	batch := []*scenario.Scenario{{
		ID:          1,
		Description: "property requests of " + flagConfig,
		Requests:    reqs,
	}}
	return errors.Wrap(scenario.Encode(f, batch), flagRequestsOut)
}
