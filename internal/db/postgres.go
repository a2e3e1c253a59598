package ledger

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	cfg "github.com/hui2334387208/comic-sub000/internal/config"
	model "github.com/hui2334387208/comic-sub000/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type pgDriver struct {
	pool *pgxpool.Pool
}

// NewLedgerDB подключается к PostgreSQL (или SQLite) и применяет миграции
func NewLedgerDB(ctx context.Context, logger *zap.Logger, conf cfg.DB) (*LedgerDB, error) {
	if conf.Driver == "sqlite" {
		return NewSQLiteDB(logger, conf.SQLitePath, conf.Retries)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, conf.DSN())
	if err != nil {
		return nil, err
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	drv := &pgDriver{pool}
	if err = applyMigrations(ctx, drv, "postgres"); err != nil {
		pool.Close()
		return nil, err
	}
	return newLedgerDB(drv, logger, conf.Retries), nil
}

func (d *pgDriver) begin(ctx context.Context) (txConn, error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, err
	}
	return pgTx{tx}, nil
}

func (d *pgDriver) classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505": // unique_violation
		return errUnique
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return model.WrapError(model.CodeConcurrencyConflict, "concurrent update, retry", err)
	}
	return err
}

func (d *pgDriver) placeholder() sq.PlaceholderFormat {
	return sq.Dollar
}

func (d *pgDriver) lockSuffix() string {
	return "FOR UPDATE"
}

func (d *pgDriver) ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

func (d *pgDriver) close() {
	d.pool.Close()
}

type pgTx struct {
	tx pgx.Tx
}

func (t pgTx) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t pgTx) queryRow(ctx context.Context, query string, args ...any) row {
	return t.tx.QueryRow(ctx, query, args...)
}

func (t pgTx) query(ctx context.Context, query string, args ...any) (rows, error) {
	return t.tx.Query(ctx, query, args...)
}

func (t pgTx) commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t pgTx) rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
