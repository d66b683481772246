// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package store persists the properties found by search runs in a SQL
// database.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"golang.org/x/propsearch/propfmt"
	"golang.org/x/propsearch/property"
	"golang.org/x/propsearch/region"
)

// DB is a high-level interface to a property database. It's safe for
// concurrent use by multiple goroutines.
type DB struct {
	sql *sql.DB // underlying database connection
	// prepared statements
	insertRun      *sql.Stmt
	insertProperty *sql.Stmt
	finishRun      *sql.Stmt
}

// OpenSQL creates a DB backed by a SQL database. The parameters are
// the same as the parameters for sql.Open. Only mysql and sqlite3 are
// explicitly supported; other database engines will receive MySQL
// query syntax which may or may not be compatible.
func OpenSQL(driverName, dataSourceName string) (*DB, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s database", driverName)
	}
	if hook := openHooks[driverName]; hook != nil {
		if err := hook(db); err != nil {
			db.Close()
			return nil, err
		}
	}
	d := &DB{sql: db}
	if err := d.createTables(driverName); err != nil {
		db.Close()
		return nil, err
	}
	if err := d.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

var openHooks = make(map[string]func(*sql.DB) error)

// RegisterOpenHook registers a hook to be called after opening a connection to driverName.
// This is used by the sqlite3 package to configure its connections.
// It must be called from an init function.
func RegisterOpenHook(driverName string, hook func(*sql.DB) error) {
	openHooks[driverName] = hook
}

// createTmpl is the template used to prepare the CREATE statements
// for the database. It is evaluated with . as a map containing one
// entry whose key is the driver name.
var createTmpl = template.Must(template.New("create").Parse(`
CREATE TABLE IF NOT EXISTS Runs (
	RunID VARCHAR(36) PRIMARY KEY,
	Agent VARCHAR(255),
	Strategy VARCHAR(255),
	Started BIGINT,
	Rounds INTEGER,
	Finished {{if .sqlite3}}INTEGER{{else}}BOOLEAN{{end}} NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS Properties (
	RunID VARCHAR(36),
	Seq BIGINT UNSIGNED,
	Name VARCHAR(255),
	RegionID VARCHAR(255),
	MPIRank INTEGER,
	Severity DOUBLE,
	Content BLOB,
	PRIMARY KEY (RunID, Seq),
{{if not .sqlite3}}
	Index (Name(100)),
{{end}}
	FOREIGN KEY (RunID) REFERENCES Runs(RunID) ON UPDATE CASCADE ON DELETE CASCADE
);
{{if .sqlite3}}
CREATE INDEX IF NOT EXISTS PropertiesName ON Properties(Name);
{{end}}
`))

// createTables creates any missing tables on the connection in
// db.sql. driverName is the same driver name passed to sql.Open and
// is used to select the correct syntax.
func (db *DB) createTables(driverName string) error {
	var buf bytes.Buffer
	if err := createTmpl.Execute(&buf, map[string]bool{driverName: true}); err != nil {
		return err
	}
	for _, q := range strings.Split(buf.String(), ";") {
		if strings.TrimSpace(q) == "" {
			continue
		}
		if _, err := db.sql.Exec(q); err != nil {
			return errors.Wrap(err, "create table")
		}
	}
	return nil
}

// prepareStatements calls db.sql.Prepare on reusable SQL statements.
func (db *DB) prepareStatements() error {
	var err error
	db.insertRun, err = db.sql.Prepare("INSERT INTO Runs(RunID, Agent, Strategy, Started, Rounds) VALUES (?, ?, ?, ?, 0)")
	if err != nil {
		return err
	}
	db.insertProperty, err = db.sql.Prepare("INSERT INTO Properties(RunID, Seq, Name, RegionID, MPIRank, Severity, Content) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	db.finishRun, err = db.sql.Prepare("UPDATE Runs SET Rounds = ?, Finished = 1 WHERE RunID = ?")
	return err
}

// now is time.Now, replaced in tests.
var now = time.Now

// A Run is one search run of one agent.
type Run struct {
	// ID is a random UUID identifying the run.
	ID       string
	Agent    string
	Strategy string
	Started  time.Time
	// Rounds and Finished are set by Finish.
	Rounds   int
	Finished bool

	// seq is the sequence number of the next property to insert.
	seq int64
	// db is the underlying database that this run is stored in.
	db *DB
}

// NewRun records the start of a search run.
func (db *DB) NewRun(ctx context.Context, agent, strategy string) (*Run, error) {
	r := &Run{
		ID:       uuid.NewString(),
		Agent:    agent,
		Strategy: strategy,
		Started:  now().UTC().Truncate(time.Second),
		db:       db,
	}
	if _, err := db.insertRun.ExecContext(ctx, r.ID, agent, strategy, r.Started.Unix()); err != nil {
		return nil, errors.Wrap(err, "inserting run")
	}
	return r, nil
}

// Insert stores a found property of r. The property is stored as a
// self-contained property record.
func (r *Run) Insert(ctx context.Context, p property.Property) error {
	var buf bytes.Buffer
	if err := propfmt.NewWriter(&buf).Write(p); err != nil {
		return err
	}
	var regionID string
	c := p.Context()
	if c.Region != nil {
		regionID = c.Region.ID()
	}
	if _, err := r.db.insertProperty.ExecContext(ctx, r.ID, r.seq, p.Name(), regionID, c.Rank, p.Severity(), buf.Bytes()); err != nil {
		return errors.Wrapf(err, "inserting %s", p.Name())
	}
	r.seq++
	return nil
}

// Finish marks r as complete after the given number of rounds.
func (r *Run) Finish(ctx context.Context, rounds int) error {
	if _, err := r.db.finishRun.ExecContext(ctx, rounds, r.ID); err != nil {
		return errors.Wrapf(err, "finishing run %s", r.ID)
	}
	r.Rounds = rounds
	r.Finished = true
	return nil
}

// Runs returns all runs, oldest first.
func (db *DB) Runs(ctx context.Context) ([]*Run, error) {
	rows, err := db.sql.QueryContext(ctx, "SELECT RunID, Agent, Strategy, Started, Rounds, Finished FROM Runs ORDER BY Started, Agent, RunID")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		r := &Run{db: db}
		var started int64
		if err := rows.Scan(&r.ID, &r.Agent, &r.Strategy, &started, &r.Rounds, &r.Finished); err != nil {
			return nil, err
		}
		r.Started = time.Unix(started, 0).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CountRuns returns the number of runs stored in the database.
func (db *DB) CountRuns() (int, error) {
	var n int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM Runs").Scan(&n)
	return n, err
}

// A Stored is a property as stored for a run.
type Stored struct {
	Seq      int64
	Name     string
	RegionID string
	Rank     int
	Severity float64

	// Content is the property record.
	Content []byte
}

// Property reads the stored record back, resolving its regions in g.
func (s *Stored) Property(g *region.Registry) (property.Property, error) {
	r := propfmt.NewReader(bytes.NewReader(s.Content), s.Name, g)
	for r.Scan() {
		switch rec := r.Result().(type) {
		case *propfmt.Result:
			return rec.Property, nil
		case *propfmt.SyntaxError:
			return nil, rec
		}
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return nil, errors.Errorf("no property in stored record %d", s.Seq)
}

// Properties returns the properties stored for the run with the given
// ID, in insertion order.
func (db *DB) Properties(ctx context.Context, runID string) ([]*Stored, error) {
	rows, err := db.sql.QueryContext(ctx, "SELECT Seq, Name, RegionID, MPIRank, Severity, Content FROM Properties WHERE RunID = ? ORDER BY Seq", runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Stored
	for rows.Next() {
		s := new(Stored)
		if err := rows.Scan(&s.Seq, &s.Name, &s.RegionID, &s.Rank, &s.Severity, &s.Content); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its properties.
func (db *DB) DeleteRun(ctx context.Context, runID string) (err error) {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	if _, err = tx.ExecContext(ctx, "DELETE FROM Properties WHERE RunID = ?", runID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM Runs WHERE RunID = ?", runID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Errorf("no run %s", runID)
	}
	return nil
}

// Close closes the database connections, releasing any open resources.
func (db *DB) Close() error {
	for _, stmt := range []*sql.Stmt{db.insertRun, db.insertProperty, db.finishRun} {
		if err := stmt.Close(); err != nil {
			return err
		}
	}
	return db.sql.Close()
}
