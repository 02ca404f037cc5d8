// Package testutil provides a stub database/sql driver for postgres store tests.
// It understands the narrow statement shapes the store issues: INSERT with an
// optional ON CONFLICT upsert, SELECT/DELETE/UPDATE filtered by "col = $n"
// conjunctions. UPDATE statements only count matching rows; JSONB expressions
// are recorded, not evaluated.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// Statement is one recorded Exec or Query call.
type Statement struct {
	Query string
	Args  []any
}

// StubConn stores rows per table and records every statement.
type StubConn struct {
	mu         sync.Mutex
	Execs      []Statement
	Queries    []Statement
	Tables     map[string][]map[string]any
	FailExec   bool
	FailQuery  bool
	FailPing   bool
	RowsErr    error
	FailCommit bool
}

var stubSeq uint64

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg%d", atomic.AddUint64(&stubSeq, 1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(1)
	return db, conn
}

// Rows returns a copy of the rows stored for table.
func (c *StubConn) Rows(table string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, len(c.Tables[table]))
	copy(out, c.Tables[table])
	return out
}

// LastExec returns the most recent Exec statement.
func (c *StubConn) LastExec() (Statement, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Execs) == 0 {
		return Statement{}, false
	}
	return c.Execs[len(c.Execs)-1], true
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	return &stubTx{conn: c}, nil
}

func namedArgs(args []driver.NamedValue) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a.Value
	}
	return out
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	values := namedArgs(args)
	c.Execs = append(c.Execs, Statement{Query: query, Args: values})
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	upper := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(upper, "INSERT INTO"):
		table, cols, err := parseInsert(query)
		if err != nil {
			return nil, err
		}
		if len(cols) != len(values) {
			return nil, fmt.Errorf("column/arg mismatch for %s", table)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		if conflict := conflictColumns(query); len(conflict) > 0 {
			filtered := c.Tables[table][:0:0]
			for _, existing := range c.Tables[table] {
				if !sameKey(existing, row, conflict) {
					filtered = append(filtered, existing)
				}
			}
			c.Tables[table] = filtered
		}
		c.Tables[table] = append(c.Tables[table], row)
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(upper, "DELETE FROM"):
		table := tableAfter(query, "delete from ")
		preds := parseWhere(query)
		kept := c.Tables[table][:0:0]
		var n int64
		for _, row := range c.Tables[table] {
			if matches(row, preds, values) {
				n++
				continue
			}
			kept = append(kept, row)
		}
		c.Tables[table] = kept
		return driver.RowsAffected(n), nil
	case strings.HasPrefix(upper, "UPDATE "):
		table := tableAfter(query, "update ")
		preds := parseWhere(query)
		var n int64
		for _, row := range c.Tables[table] {
			if matches(row, preds, values) {
				n++
			}
		}
		return driver.RowsAffected(n), nil
	default:
		return driver.RowsAffected(0), nil
	}
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	values := namedArgs(args)
	c.Queries = append(c.Queries, Statement{Query: query, Args: values})
	if c.FailQuery {
		return nil, fmt.Errorf("query fail")
	}
	table, cols, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	preds := parseWhere(query)
	out := make([][]driver.Value, 0, len(c.Tables[table]))
	for _, row := range c.Tables[table] {
		if !matches(row, preds, values) {
			continue
		}
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		out = append(out, vals)
	}
	return &stubRows{cols: cols, rows: out, err: c.RowsErr}, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}
func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

type predicate struct {
	col string
	arg int
}

var (
	wherePredicate = regexp.MustCompile(`(?i)([a-z_]+)\s*=\s*\$(\d+)`)
	whereKeyword   = regexp.MustCompile(`(?i)\swhere\s`)
	orderKeyword   = regexp.MustCompile(`(?i)\sorder\s+by\s`)
)

// parseWhere extracts "col = $n" predicates following the first WHERE keyword.
func parseWhere(query string) []predicate {
	loc := whereKeyword.FindStringIndex(query)
	if loc == nil {
		return nil
	}
	where := query[loc[0]:]
	if cut := orderKeyword.FindStringIndex(where); cut != nil {
		where = where[:cut[0]]
	}
	var preds []predicate
	for _, m := range wherePredicate.FindAllStringSubmatch(where, -1) {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		preds = append(preds, predicate{col: strings.ToLower(m[1]), arg: n - 1})
	}
	return preds
}

func matches(row map[string]any, preds []predicate, args []any) bool {
	for _, p := range preds {
		if p.arg < 0 || p.arg >= len(args) {
			return false
		}
		if fmt.Sprint(row[p.col]) != fmt.Sprint(args[p.arg]) {
			return false
		}
	}
	return true
}

func sameKey(a, b map[string]any, cols []string) bool {
	for _, col := range cols {
		if fmt.Sprint(a[col]) != fmt.Sprint(b[col]) {
			return false
		}
	}
	return true
}

func conflictColumns(query string) []string {
	lower := strings.ToLower(query)
	idx := strings.Index(lower, "on conflict")
	if idx == -1 {
		return nil
	}
	rest := query[idx:]
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx <= open {
		return nil
	}
	return splitColumns(rest[open+1 : closeIdx])
}

func tableAfter(query, keyword string) string {
	lower := strings.ToLower(strings.TrimSpace(query))
	rest := strings.TrimSpace(lower[len(keyword):])
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func parseInsert(query string) (string, []string, error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	if intoIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[intoIdx+len("INTO "):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:open]))
	return table, splitColumns(rest[open+1 : closeIdx]), nil
}

func parseSelect(query string) (string, []string, error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(lower, "select ") {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	fromIdx := strings.Index(lower, " from ")
	if fromIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	cols := strings.TrimSpace(query)[len("select "):fromIdx]
	rest := strings.Fields(lower[fromIdx+len(" from "):])
	if len(rest) == 0 {
		return "", nil, fmt.Errorf("cannot parse select: %s", query)
	}
	return rest[0], splitColumns(cols), nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
