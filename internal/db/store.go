package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v5"
	interf "github.com/hui2334387208/comic-sub000/internal/interfaces"
	model "github.com/hui2334387208/comic-sub000/internal/models"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// нарушение уникального индекса, переводится в бизнес-ошибку на месте
var errUnique = errors.New("unique constraint violation")

// Общий интерфейс для pgx и database/sql
type querier interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	queryRow(ctx context.Context, query string, args ...any) row
	query(ctx context.Context, query string, args ...any) (rows, error)
}

type row interface {
	Scan(dest ...any) error
}

type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

type txConn interface {
	querier
	commit(ctx context.Context) error
	rollback(ctx context.Context) error
}

type driver interface {
	begin(ctx context.Context) (txConn, error)
	// classify переводит ошибку драйвера в errUnique / ErrConcurrencyConflict
	classify(err error) error
	placeholder() sq.PlaceholderFormat
	lockSuffix() string
	ping(ctx context.Context) error
	close()
}

type LedgerDB struct {
	drv     driver
	logger  *zap.Logger
	retries uint
	builder sq.StatementBuilderType
}

func newLedgerDB(drv driver, logger *zap.Logger, retries uint) *LedgerDB {
	if retries == 0 {
		retries = 1
	}
	return &LedgerDB{
		drv:     drv,
		logger:  logger,
		retries: retries,
		builder: sq.StatementBuilder.PlaceholderFormat(drv.placeholder()),
	}
}

var _ interf.Storage = (*LedgerDB)(nil)

// InTx - одна транзакция, конфликты повторяются с экспоненциальной задержкой
func (p *LedgerDB) InTx(ctx context.Context, fn func(tx interf.Tx) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := p.runTx(ctx, fn)
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, model.ErrConcurrencyConflict) {
			p.logger.Warn("tx conflict",
				zap.Int("attempt", attempt),
				zap.Error(err))
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.retries),
	)
	return err
}

func (p *LedgerDB) runTx(ctx context.Context, fn func(tx interf.Tx) error) (err error) {
	conn, err := p.drv.begin(ctx)
	if err != nil {
		return p.drv.classify(err)
	}
	defer func() {
		if err != nil {
			if rerr := conn.rollback(ctx); rerr != nil {
				p.logger.Error("rollback error", zap.Error(rerr))
			}
		}
	}()

	err = fn(&ledgerTx{conn: conn, drv: p.drv, b: p.builder, logger: p.logger})
	if err != nil {
		return err
	}
	err = conn.commit(ctx)
	if err != nil {
		return p.drv.classify(err)
	}
	return nil
}

func (p *LedgerDB) Ping(ctx context.Context) error {
	return p.drv.ping(ctx)
}

func (p *LedgerDB) Close() {
	p.drv.close()
}

// ledgerTx реализует interf.Tx поверх открытой транзакции
type ledgerTx struct {
	conn   txConn
	drv    driver
	b      sq.StatementBuilderType
	logger *zap.Logger
}

func (t *ledgerTx) exec(ctx context.Context, q sq.Sqlizer) (int64, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return 0, err
	}
	n, err := t.conn.exec(ctx, query, args...)
	if err != nil {
		return 0, t.fail(query, args, err)
	}
	return n, nil
}

func (t *ledgerTx) queryRow(ctx context.Context, q sq.Sqlizer, dest ...any) error {
	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	err = t.conn.queryRow(ctx, query, args...).Scan(dest...)
	if err != nil {
		if isNoRows(err) {
			return model.ErrNotFound
		}
		return t.fail(query, args, err)
	}
	return nil
}

func (t *ledgerTx) query(ctx context.Context, q sq.Sqlizer, scan func(r rows) error) error {
	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	rs, err := t.conn.query(ctx, query, args...)
	if err != nil {
		return t.fail(query, args, err)
	}
	defer rs.Close()
	for rs.Next() {
		if err := scan(rs); err != nil {
			return err
		}
	}
	if err := rs.Err(); err != nil {
		return t.fail(query, args, err)
	}
	return nil
}

// fail логирует ошибку SQL; конфликты и уникальность - ожидаемые, их не логируем
func (t *ledgerTx) fail(query string, args []any, err error) error {
	cerr := t.drv.classify(err)
	if cerr == errUnique || errors.Is(cerr, model.ErrConcurrencyConflict) {
		return cerr
	}
	t.logger.Error("SQL error",
		zap.Error(err),
		zap.String("query", query),
		zap.Any("args", args),
	)
	return cerr
}

func (t *ledgerTx) lock(q sq.SelectBuilder, lock bool) sq.SelectBuilder {
	if lock && t.drv.lockSuffix() != "" {
		return q.Suffix(t.drv.lockSuffix())
	}
	return q
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}
