package ledger

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	model "github.com/hui2334387208/comic-sub000/internal/models"
)

var codeColumns = []string{"user_id", "code", "total_invites", "successful_invites", "total_rewards_issued", "created_at"}

func (t *ledgerTx) referralCode(ctx context.Context, where sq.Eq) (model.ReferralCode, error) {
	var c model.ReferralCode
	err := t.queryRow(ctx, t.b.Select(codeColumns...).From("referral_codes").Where(where),
		&c.UserID, &c.Code, &c.TotalInvites, &c.SuccessfulInvites, &c.TotalRewardsIssued, &c.CreatedAt)
	return c, err
}

func (t *ledgerTx) ReferralCodeByUser(ctx context.Context, user string) (model.ReferralCode, error) {
	return t.referralCode(ctx, sq.Eq{"user_id": user})
}

func (t *ledgerTx) ReferralCodeByCode(ctx context.Context, code string) (model.ReferralCode, error) {
	return t.referralCode(ctx, sq.Eq{"code": code})
}

// Создание кода; false - у пользователя уже есть код или такой код занят
func (t *ledgerTx) ReferralCodeCreate(ctx context.Context, c model.ReferralCode) (bool, error) {
	n, err := t.exec(ctx, t.b.Insert("referral_codes").
		Columns(codeColumns...).
		Values(c.UserID, c.Code, 0, 0, 0, c.CreatedAt.UTC()).
		Suffix("ON CONFLICT DO NOTHING"))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Счетчики кода увеличиваются на переданные значения
func (t *ledgerTx) ReferralCodeCount(ctx context.Context, user string, invites int64, successful int64, rewards int64) error {
	_, err := t.exec(ctx, t.b.Update("referral_codes").
		Set("total_invites", sq.Expr("total_invites + ?", invites)).
		Set("successful_invites", sq.Expr("successful_invites + ?", successful)).
		Set("total_rewards_issued", sq.Expr("total_rewards_issued + ?", rewards)).
		Where(sq.Eq{"user_id": user}))
	return err
}

// Кто пригласил пользователя
func (t *ledgerTx) Inviter(ctx context.Context, invitee string) (string, bool, error) {
	var inviter string
	err := t.queryRow(ctx, t.b.Select("inviter_id").From("referral_relations").Where(sq.Eq{"invitee_id": invitee}), &inviter)
	if err == model.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return inviter, true, nil
}

var relationColumns = []string{"id", "inviter_id", "invitee_id", "code", "status",
	"inviter_reward", "invitee_reward", "actual_inviter_reward", "actual_invitee_reward",
	"inviter_rewarded", "invitee_rewarded", "created_at", "expires_at", "completed_at"}

func (t *ledgerTx) RelationByInvitee(ctx context.Context, invitee string, lock bool) (model.ReferralRelation, error) {
	var rel model.ReferralRelation
	var id, status string
	var expiresAt, completedAt sql.NullTime
	q := t.lock(t.b.Select(relationColumns...).From("referral_relations").Where(sq.Eq{"invitee_id": invitee}), lock)
	err := t.queryRow(ctx, q, &id, &rel.InviterID, &rel.InviteeID, &rel.Code, &status,
		&rel.InviterReward, &rel.InviteeReward, &rel.ActualInviterReward, &rel.ActualInviteeReward,
		&rel.InviterRewarded, &rel.InviteeRewarded, &rel.CreatedAt, &expiresAt, &completedAt)
	if err != nil {
		return model.ReferralRelation{}, err
	}
	if rel.ID, err = uuid.Parse(id); err != nil {
		return model.ReferralRelation{}, err
	}
	rel.Status = model.RelationStatus(status)
	rel.ExpiresAt = timePtr(expiresAt)
	rel.CompletedAt = timePtr(completedAt)
	return rel, nil
}

func (t *ledgerTx) RelationCreate(ctx context.Context, rel model.ReferralRelation) error {
	_, err := t.exec(ctx, t.b.Insert("referral_relations").
		Columns(relationColumns...).
		Values(rel.ID.String(), rel.InviterID, rel.InviteeID, rel.Code, string(rel.Status),
			rel.InviterReward, rel.InviteeReward, rel.ActualInviterReward, rel.ActualInviteeReward,
			rel.InviterRewarded, rel.InviteeRewarded, rel.CreatedAt.UTC(), nullTime(rel.ExpiresAt), nullTime(rel.CompletedAt)))
	if err == errUnique {
		return model.WrapError(model.CodeDuplicateReferral, "user already referred", err)
	}
	return err
}

// Сохранение статуса, флагов и фактических сумм
func (t *ledgerTx) RelationSave(ctx context.Context, rel model.ReferralRelation) error {
	_, err := t.exec(ctx, t.b.Update("referral_relations").
		Set("status", string(rel.Status)).
		Set("actual_inviter_reward", rel.ActualInviterReward).
		Set("actual_invitee_reward", rel.ActualInviteeReward).
		Set("inviter_rewarded", rel.InviterRewarded).
		Set("invitee_rewarded", rel.InviteeRewarded).
		Set("completed_at", nullTime(rel.CompletedAt)).
		Where(sq.Eq{"id": rel.ID.String()}))
	return err
}

func (t *ledgerTx) RelationCountByInviter(ctx context.Context, inviter string) (int64, error) {
	var count int64
	err := t.queryRow(ctx, t.b.Select("COUNT(*)").From("referral_relations").Where(sq.Eq{"inviter_id": inviter}), &count)
	return count, err
}

// Истечение ожидающих связей без выплат. Сравнение времени в Go:
// SQLite хранит время строкой
func (t *ledgerTx) RelationsExpire(ctx context.Context, now time.Time) (int64, error) {
	var ids []string
	err := t.query(ctx, t.b.Select("id", "expires_at").
		From("referral_relations").
		Where(sq.Eq{"status": string(model.RelationPending), "inviter_rewarded": false, "invitee_rewarded": false}).
		Where(sq.NotEq{"expires_at": nil}),
		func(r rows) error {
			var id string
			var expiresAt sql.NullTime
			if err := r.Scan(&id, &expiresAt); err != nil {
				return err
			}
			if expiresAt.Valid && !expiresAt.Time.After(now) {
				ids = append(ids, id)
			}
			return nil
		})
	if err != nil || len(ids) == 0 {
		return 0, err
	}

	return t.exec(ctx, t.b.Update("referral_relations").
		Set("status", string(model.RelationExpired)).
		Where(sq.Eq{"id": ids, "status": string(model.RelationPending), "inviter_rewarded": false, "invitee_rewarded": false}))
}

func (t *ledgerTx) RewardExists(ctx context.Context, relation uuid.UUID, user string) (bool, error) {
	var count int64
	err := t.queryRow(ctx, t.b.Select("COUNT(*)").
		From("reward_records").
		Where(sq.Eq{"relation_id": relation.String(), "user_id": user}), &count)
	return count > 0, err
}

func (t *ledgerTx) RewardCreate(ctx context.Context, rec model.RewardRecord) error {
	_, err := t.exec(ctx, t.b.Insert("reward_records").
		Columns("id", "relation_id", "user_id", "role", "level", "currency", "amount", "status", "transaction_id", "issued_at").
		Values(rec.ID.String(), rec.RelationID.String(), rec.UserID, string(rec.Role), rec.Level, string(rec.Currency),
			rec.Amount, string(rec.Status), rec.TransactionID.String(), rec.IssuedAt.UTC()))
	if err == errUnique {
		return model.WrapError(model.CodeConcurrencyConflict, "reward already recorded", err)
	}
	return err
}
