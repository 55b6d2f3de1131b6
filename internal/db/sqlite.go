package db

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the default embedded Database backend (spec §4.F "typically
// backed by an embedded SQL store").
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (creating if necessary) a SQLite database file at path.
// path may be ":memory:" for an ephemeral, process-local database.
func OpenSQLite(path string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1) // sqlite only tolerates one writer at a time
	return &SQLite{conn: conn}, nil
}

func (s *SQLite) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlResult{res}, nil
}

func (s *SQLite) QueryRow(ctx context.Context, query string, args ...any) Row {
	return s.conn.QueryRowContext(ctx, query, args...)
}

func (s *SQLite) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (s *SQLite) BeginTx(ctx context.Context, opts *TxOptions) (Tx, error) {
	txOpts := &sql.TxOptions{}
	if opts != nil {
		txOpts.ReadOnly = opts.ReadOnly
	}
	tx, err := s.conn.BeginTx(ctx, txOpts)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx}, nil
}

func (s *SQLite) Ping(ctx context.Context) error { return s.conn.PingContext(ctx) }
func (s *SQLite) Close() error                   { return s.conn.Close() }
func (s *SQLite) DriverName() string             { return "sqlite" }

type sqlResult struct{ r sql.Result }

func (r sqlResult) RowsAffected() int64 {
	n, _ := r.r.RowsAffected()
	return n
}

type sqlRows struct{ r *sql.Rows }

func (r sqlRows) Next() bool             { return r.r.Next() }
func (r sqlRows) Scan(dest ...any) error { return r.r.Scan(dest...) }
func (r sqlRows) Err() error             { return r.r.Err() }
func (r sqlRows) Close()                 { _ = r.r.Close() }

type sqlTx struct{ tx *sql.Tx }

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlResult{res}, nil
}

func (t *sqlTx) QueryRow(ctx context.Context, query string, args ...any) Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

func (t *sqlTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (t *sqlTx) Commit(ctx context.Context) error   { return t.tx.Commit() }
func (t *sqlTx) Rollback(ctx context.Context) error { return t.tx.Rollback() }
