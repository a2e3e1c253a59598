package ledger

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	model "github.com/hui2334387208/comic-sub000/internal/models"
)

// Отметка пользователя за дату
func (t *ledgerTx) CheckInByDate(ctx context.Context, user string, date string) (model.CheckIn, error) {
	var c model.CheckIn
	var id string
	err := t.queryRow(ctx, t.b.Select("id", "user_id", "check_date", "points", "consecutive_days", "created_at").
		From("checkins").
		Where(sq.Eq{"user_id": user, "check_date": date}),
		&id, &c.UserID, &c.Date, &c.Points, &c.ConsecutiveDays, &c.CreatedAt)
	if err != nil {
		return model.CheckIn{}, err
	}
	c.ID, err = uuid.Parse(id)
	return c, err
}

// Уникальный индекс (user_id, check_date) - не более одной отметки в день
func (t *ledgerTx) CheckInCreate(ctx context.Context, c model.CheckIn) error {
	_, err := t.exec(ctx, t.b.Insert("checkins").
		Columns("id", "user_id", "check_date", "points", "consecutive_days", "created_at").
		Values(c.ID.String(), c.UserID, c.Date, c.Points, c.ConsecutiveDays, c.CreatedAt.UTC()))
	if err == errUnique {
		return model.ErrAlreadyCheckedIn
	}
	return err
}

func (t *ledgerTx) ExchangeCreate(ctx context.Context, ex model.ExchangeHistory) error {
	_, err := t.exec(ctx, t.b.Insert("exchange_history").
		Columns("id", "user_id", "points_spent", "credits_received", "rate", "created_at").
		Values(ex.ID.String(), ex.UserID, ex.PointsSpent, ex.CreditsReceived, ex.Rate, ex.CreatedAt.UTC()))
	return err
}

// История обменов, новые первыми
func (t *ledgerTx) GetExchanges(ctx context.Context, user string, limit uint64) (list []model.ExchangeHistory, err error) {
	q := t.b.Select("id", "user_id", "points_spent", "credits_received", "rate", "created_at").
		From("exchange_history").
		Where(sq.Eq{"user_id": user}).
		OrderBy("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err = t.query(ctx, q, func(r rows) error {
		var ex model.ExchangeHistory
		var id string
		if err := r.Scan(&id, &ex.UserID, &ex.PointsSpent, &ex.CreditsReceived, &ex.Rate, &ex.CreatedAt); err != nil {
			return err
		}
		var err error
		if ex.ID, err = uuid.Parse(id); err != nil {
			return err
		}
		list = append(list, ex)
		return nil
	})
	return list, err
}
