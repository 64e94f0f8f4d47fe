package postgres

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Hand-rolled pgx fakes shared by the repo tests. Each records the SQL and
// arguments it saw and plays back scripted rows or errors.

type execCall struct {
	sql  string
	args []any
}

type fakePool struct {
	execCalls []execCall
	execErr   error

	rowCalls []execCall
	rowScan  func(dest ...any) error

	queryCalls []execCall
	queryRows  *fakeRows
	queryErr   error

	tx       *fakeTx
	beginErr error
}

func (p *fakePool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execCalls = append(p.execCalls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), p.execErr
}

func (p *fakePool) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	p.rowCalls = append(p.rowCalls, execCall{sql: sql, args: args})
	if p.rowScan == nil {
		return fakeRow{scan: func(...any) error { return errors.New("no row configured") }}
	}
	return fakeRow{scan: p.rowScan}
}

func (p *fakePool) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	p.queryCalls = append(p.queryCalls, execCall{sql: sql, args: args})
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	if p.queryRows == nil {
		return &fakeRows{}, nil
	}
	return p.queryRows, nil
}

func (p *fakePool) BeginTx(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	if p.tx == nil {
		p.tx = &fakeTx{}
	}
	return p.tx, nil
}

type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

// scanInto builds a scan function that copies the given column values into
// the scan destinations. A nil value leaves the destination at its zero value
// (NULL column).
func scanInto(values ...any) func(dest ...any) error {
	return func(dest ...any) error {
		if len(dest) != len(values) {
			return fmt.Errorf("scan: want %d destinations, got %d", len(values), len(dest))
		}
		for i, v := range values {
			dv := reflect.ValueOf(dest[i]).Elem()
			if v == nil {
				dv.Set(reflect.Zero(dv.Type()))
				continue
			}
			rv := reflect.ValueOf(v)
			if !rv.Type().AssignableTo(dv.Type()) {
				if !rv.Type().ConvertibleTo(dv.Type()) {
					return fmt.Errorf("scan: cannot assign %T to %s", v, dv.Type())
				}
				rv = rv.Convert(dv.Type())
			}
			dv.Set(rv)
		}
		return nil
	}
}

// fakeRows plays back one scan function per row.
type fakeRows struct {
	scans   []func(dest ...any) error
	idx     int
	rowsErr error
	closed  bool
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.scans) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error { return r.scans[r.idx-1](dest...) }

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.rowsErr }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, errors.New("not implemented") }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

// fakeTx satisfies pgx.Tx. Only Exec, Commit and Rollback carry behavior; the
// repos never touch the rest.
type fakeTx struct {
	execCalls []execCall
	failAt    int // 1-based Exec call index that fails
	execErr   error
	commitErr error

	committed  bool
	rolledBack bool
}

func (t *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.execCalls = append(t.execCalls, execCall{sql: sql, args: args})
	if t.failAt > 0 && len(t.execCalls) == t.failAt {
		if t.execErr != nil {
			return pgconn.CommandTag{}, t.execErr
		}
		return pgconn.CommandTag{}, errors.New("exec failed")
	}
	return pgconn.NewCommandTag("DELETE 2"), nil
}

func (t *fakeTx) Commit(_ context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error {
	t.rolledBack = true
	return nil
}

func (t *fakeTx) Begin(_ context.Context) (pgx.Tx, error) { return nil, errors.New("not implemented") }
func (t *fakeTx) Conn() *pgx.Conn                         { return nil }
func (t *fakeTx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (t *fakeTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }
func (t *fakeTx) Prepare(_ context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not implemented")
}
func (t *fakeTx) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (t *fakeTx) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return fakeRow{scan: func(...any) error { return errors.New("not implemented") }}
}
