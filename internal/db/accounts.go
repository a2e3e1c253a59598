package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	model "github.com/hui2334387208/comic-sub000/internal/models"
	"github.com/jackc/pgtype"
)

var accountColumns = []string{"user_id", "currency", "balance", "total_in", "total_out", "version", "updated_at"}

// Счет пользователя; создается с нулевым балансом при первом обращении.
// lock - блокировка строки до конца транзакции
func (t *ledgerTx) Account(ctx context.Context, user string, currency model.Currency, lock bool) (model.Account, error) {
	_, err := t.exec(ctx, t.b.Insert("accounts").
		Columns(accountColumns...).
		Values(user, string(currency), 0, 0, 0, 0, time.Now().UTC()).
		Suffix("ON CONFLICT (user_id, currency) DO NOTHING"))
	if err != nil {
		return model.Account{}, err
	}

	var acc model.Account
	var cur string
	q := t.lock(t.b.Select(accountColumns...).
		From("accounts").
		Where(sq.Eq{"user_id": user, "currency": string(currency)}), lock)
	err = t.queryRow(ctx, q, &acc.UserID, &cur, &acc.Balance, &acc.TotalIn, &acc.TotalOut, &acc.Version, &acc.UpdatedAt)
	if err != nil {
		return model.Account{}, err
	}
	acc.Currency = model.Currency(cur)
	return acc, nil
}

// Сохранение счета с проверкой версии
func (t *ledgerTx) SaveAccount(ctx context.Context, acc model.Account, prevVersion int64) error {
	n, err := t.exec(ctx, t.b.Update("accounts").
		Set("balance", acc.Balance).
		Set("total_in", acc.TotalIn).
		Set("total_out", acc.TotalOut).
		Set("version", acc.Version).
		Set("updated_at", acc.UpdatedAt.UTC()).
		Where(sq.Eq{"user_id": acc.UserID, "currency": string(acc.Currency), "version": prevVersion}))
	if err != nil {
		return err
	}
	if n == 0 {
		return model.WrapError(model.CodeConcurrencyConflict, "account version changed",
			fmt.Errorf("user %s %s version %d", acc.UserID, acc.Currency, prevVersion))
	}
	return nil
}

var tnxColumns = []string{"id", "user_id", "currency", "type", "amount", "balance_before", "balance_after",
	"seq", "related_id", "related_type", "description", "operator_id", "created_at"}

// Запись в журнал операций
func (t *ledgerTx) TnxCreate(ctx context.Context, tnx model.Transaction) error {
	_, err := t.exec(ctx, t.b.Insert("transactions").
		Columns(tnxColumns...).
		Values(tnx.ID.String(), tnx.UserID, string(tnx.Currency), string(tnx.Type), tnx.Amount,
			tnx.BalanceBefore, tnx.BalanceAfter, tnx.Seq,
			nullText(tnx.RelatedID), nullText(tnx.RelatedType), nullText(tnx.Description), nullText(tnx.OperatorID),
			tnx.CreatedAt.UTC()))
	if err == errUnique {
		// seq уже занят - счет изменился параллельно
		return model.WrapError(model.CodeConcurrencyConflict, "transaction seq taken", err)
	}
	return err
}

// Последние операции по счету, новые первыми
func (t *ledgerTx) GetTnx(ctx context.Context, user string, currency model.Currency, limit uint64) (tnxs []model.Transaction, err error) {
	q := t.b.Select(tnxColumns...).
		From("transactions").
		Where(sq.Eq{"user_id": user, "currency": string(currency)}).
		OrderBy("seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err = t.query(ctx, q, func(r rows) error {
		tnx, err := scanTnx(r)
		if err != nil {
			return err
		}
		tnxs = append(tnxs, tnx)
		return nil
	})
	return tnxs, err
}

// Операция по связанному объекту: повторная доставка сообщения не списывает дважды
func (t *ledgerTx) TnxByRelated(ctx context.Context, user string, currency model.Currency, relatedType string, relatedID string) (model.Transaction, error) {
	query, args, err := t.b.Select(tnxColumns...).
		From("transactions").
		Where(sq.Eq{"user_id": user, "currency": string(currency), "related_type": relatedType, "related_id": relatedID}).
		OrderBy("seq DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return model.Transaction{}, err
	}
	tnx, err := scanTnx(t.conn.queryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return model.Transaction{}, model.ErrNotFound
		}
		return model.Transaction{}, t.fail(query, args, err)
	}
	return tnx, nil
}

func scanTnx(r row) (model.Transaction, error) {
	var tnx model.Transaction
	var id, cur, typ string
	var relatedID, relatedType, description, operatorID pgtype.Text
	err := r.Scan(&id, &tnx.UserID, &cur, &typ, &tnx.Amount, &tnx.BalanceBefore, &tnx.BalanceAfter, &tnx.Seq,
		&relatedID, &relatedType, &description, &operatorID, &tnx.CreatedAt)
	if err != nil {
		return model.Transaction{}, err
	}
	if tnx.ID, err = uuid.Parse(id); err != nil {
		return model.Transaction{}, err
	}
	tnx.Currency = model.Currency(cur)
	tnx.Type = model.TxType(typ)
	tnx.RelatedID = relatedID.String
	tnx.RelatedType = relatedType.String
	tnx.Description = description.String
	tnx.OperatorID = operatorID.String
	return tnx, nil
}

// NULL для пустых строк; аргументы передаются простыми значениями, без driver.Valuer
func nullText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
