package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	sq "github.com/Masterminds/squirrel"
	model "github.com/hui2334387208/comic-sub000/internal/models"
	"go.uber.org/zap"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLite - для разработки и тестов; блокировка всей базы вместо FOR UPDATE
type sqliteDriver struct {
	db *sql.DB
}

// NewSQLiteDB открывает файл базы, BEGIN IMMEDIATE сериализует пишущие транзакции
func NewSQLiteDB(logger *zap.Logger, path string, retries uint) (*LedgerDB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	drv := &sqliteDriver{db}
	if err = applyMigrations(context.Background(), drv, "sqlite"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return newLedgerDB(drv, logger, retries), nil
}

func (d *sqliteDriver) begin(ctx context.Context) (txConn, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return sqlTx{tx}, nil
}

func (d *sqliteDriver) classify(err error) error {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	code := sqliteErr.Code()
	switch {
	case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT:
		return errUnique
	// расширенные коды BUSY_* и LOCKED_* в младшем байте
	case code&0xff == sqlite3.SQLITE_BUSY || code&0xff == sqlite3.SQLITE_LOCKED:
		return model.WrapError(model.CodeConcurrencyConflict, "database is busy, retry", err)
	}
	return err
}

func (d *sqliteDriver) placeholder() sq.PlaceholderFormat {
	return sq.Question
}

func (d *sqliteDriver) lockSuffix() string {
	return ""
}

func (d *sqliteDriver) ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *sqliteDriver) close() {
	_ = d.db.Close()
}

type sqlTx struct {
	tx *sql.Tx
}

func (t sqlTx) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t sqlTx) queryRow(ctx context.Context, query string, args ...any) row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

func (t sqlTx) query(ctx context.Context, query string, args ...any) (rows, error) {
	rs, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rs}, nil
}

func (t sqlTx) commit(ctx context.Context) error {
	return t.tx.Commit()
}

func (t sqlTx) rollback(ctx context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	_ = r.Rows.Close()
}
