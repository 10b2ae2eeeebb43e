package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
)

type opKind int

const (
	opExec opKind = iota
	opQuery
	opBegin
	opCommit
	opRollback
)

func (k opKind) String() string {
	return [...]string{"exec", "query", "begin", "commit", "rollback"}[k]
}

// mockOperation is one scripted step; args records what the code under test sent.
type mockOperation struct {
	typ    opKind
	query  string
	result mockResult
	rows   mockRowsData
	err    error
	args   []driver.Value
}

type mockResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r mockResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r mockResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type mockRowsData struct {
	columns []string
	values  [][]driver.Value
}

func execOp(query string, result mockResult) mockOperation {
	return mockOperation{typ: opExec, query: query, result: result}
}

func queryOp(query string, rows mockRowsData) mockOperation {
	return mockOperation{typ: opQuery, query: query, rows: rows}
}

func failingOp(typ opKind, query string, err error) mockOperation {
	return mockOperation{typ: typ, query: query, err: err}
}

func beginOp() mockOperation    { return mockOperation{typ: opBegin} }
func commitOp() mockOperation   { return mockOperation{typ: opCommit} }
func rollbackOp() mockOperation { return mockOperation{typ: opRollback} }

// scriptedDriver replays ops in order and fails on any deviation.
type scriptedDriver struct {
	ops []mockOperation
	idx atomic.Int32
}

var driverSeq atomic.Int32

func newMockDB(t *testing.T, ops []mockOperation) (*sql.DB, *scriptedDriver) {
	t.Helper()

	drv := &scriptedDriver{ops: ops}
	name := fmt.Sprintf("scripted-mysql-%d", driverSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open mock db: %v", err)
	}
	db.SetMaxOpenConns(1)
	return db, drv
}

func (d *scriptedDriver) assertConsumed(t *testing.T) {
	t.Helper()
	if got := int(d.idx.Load()); got != len(d.ops) {
		t.Fatalf("consumed %d of %d scripted operations", got, len(d.ops))
	}
}

func (d *scriptedDriver) next(kind opKind, query string, args []driver.NamedValue) (*mockOperation, error) {
	i := int(d.idx.Load())
	if i >= len(d.ops) {
		return nil, fmt.Errorf("unexpected %s %q", kind, query)
	}
	op := &d.ops[i]
	if op.typ != kind {
		return nil, fmt.Errorf("step %d: want %s, got %s", i, op.typ, kind)
	}
	if op.query != "" && normalizeSQL(op.query) != normalizeSQL(query) {
		return nil, fmt.Errorf("step %d: want %q, got %q", i, normalizeSQL(op.query), normalizeSQL(query))
	}
	d.idx.Add(1)
	for _, a := range args {
		op.args = append(op.args, a.Value)
	}
	return op, op.err
}

func (d *scriptedDriver) Open(string) (driver.Conn, error) { return &mockConn{d: d}, nil }

type mockConn struct{ d *scriptedDriver }

func (c *mockConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *mockConn) Close() error { return nil }

func (c *mockConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *mockConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if _, err := c.d.next(opBegin, "", nil); err != nil {
		return nil, err
	}
	return mockTx{d: c.d}, nil
}

func (c *mockConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	op, err := c.d.next(opExec, query, args)
	if err != nil {
		return nil, err
	}
	return op.result, nil
}

func (c *mockConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	op, err := c.d.next(opQuery, query, args)
	if err != nil {
		return nil, err
	}
	return &mockRows{columns: op.rows.columns, values: op.rows.values}, nil
}

type mockTx struct{ d *scriptedDriver }

func (t mockTx) Commit() error {
	_, err := t.d.next(opCommit, "", nil)
	return err
}

func (t mockTx) Rollback() error {
	_, err := t.d.next(opRollback, "", nil)
	return err
}

type mockRows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *mockRows) Columns() []string { return r.columns }
func (r *mockRows) Close() error      { return nil }

func (r *mockRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func normalizeSQL(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
