// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package storetest provides databases and run fixtures for tests that
// use the property store.
//
// Tests run against an in-memory SQLite database. With
// -store.cloudsql=<instance> they run against a scratch MySQL database
// created on that Cloud SQL instance and dropped when the test ends.
package storetest

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"strings"
	"testing"

	_ "github.com/GoogleCloudPlatform/cloudsql-proxy/proxy/dialers/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"golang.org/x/propsearch/property"
	"golang.org/x/propsearch/region"
	"golang.org/x/propsearch/store"
	_ "golang.org/x/propsearch/store/sqlite3"
)

var cloudSQL = flag.String("store.cloudsql", "", "run store tests on a scratch database of Cloud SQL `instance`")

// NewDB opens an empty database that is closed when t ends.
func NewDB(t testing.TB) *store.DB {
	t.Helper()
	driver, dsn := "sqlite3", ":memory:"
	if *cloudSQL != "" {
		driver, dsn = "mysql", scratchDatabase(t, *cloudSQL)
	}
	db, err := store.OpenSQL(driver, dsn)
	require.NoError(t, err, "open %s database", driver)
	t.Cleanup(func() { db.Close() })

	n, err := db.CountRuns()
	require.NoError(t, err)
	require.Zero(t, n, "runs in a new database")
	return db
}

// scratchDatabase creates a uniquely named database on instance and
// returns its DSN. The database is dropped when t ends.
func scratchDatabase(t testing.TB, instance string) string {
	t.Helper()
	prefix := fmt.Sprintf("root:@cloudsql(%s)/", instance)
	admin, err := sql.Open("mysql", prefix)
	require.NoError(t, err)

	name := "propsearch_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if _, err := admin.Exec("CREATE DATABASE `" + name + "`"); err != nil {
		admin.Close()
		t.Fatalf("create scratch database: %v", err)
	}
	t.Logf("using database %s on %s", name, instance)
	t.Cleanup(func() {
		if _, err := admin.Exec("DROP DATABASE `" + name + "`"); err != nil {
			t.Errorf("drop scratch database: %v", err)
		}
		admin.Close()
	})
	return prefix + name
}

// SaveRun stores ps as a finished run of agent after the given number
// of rounds.
func SaveRun(t testing.TB, db *store.DB, agent, strategy string, rounds int, ps ...property.Property) *store.Run {
	t.Helper()
	ctx := context.Background()
	run, err := db.NewRun(ctx, agent, strategy)
	require.NoError(t, err)
	for _, p := range ps {
		require.NoError(t, run.Insert(ctx, p), "insert %s", p.Name())
	}
	require.NoError(t, run.Finish(ctx, rounds))
	return run
}

// LoadRun reads back the properties stored for runID, in insertion
// order, resolving their regions in g.
func LoadRun(t testing.TB, db *store.DB, g *region.Registry, runID string) []property.Property {
	t.Helper()
	stored, err := db.Properties(context.Background(), runID)
	require.NoError(t, err)
	ps := make([]property.Property, 0, len(stored))
	for _, s := range stored {
		p, err := s.Property(g)
		require.NoError(t, err, "record %d of run %s", s.Seq, runID)
		ps = append(ps, p)
	}
	return ps
}
