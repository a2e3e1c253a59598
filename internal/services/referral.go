package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	interf "github.com/hui2334387208/comic-sub000/internal/interfaces"
	model "github.com/hui2334387208/comic-sub000/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	referralCodePrefix   = "REF-"
	referralCodeAttempts = 5
)

// ReferralService - коды, связи и выплаты за приглашения
type ReferralService struct {
	logger    *zap.Logger
	ledger    *LedgerService
	campaigns interf.CampaignProvider
}

func NewReferralService(logger *zap.Logger, ledger *LedgerService, campaigns interf.CampaignProvider) *ReferralService {
	return &ReferralService{logger, ledger, campaigns}
}

// Код пользователя, создается при первом запросе
func (s *ReferralService) GetReferralCode(ctx context.Context, user string) (result model.ReferralCodeResult) {
	ctx, span := tracer.Start(ctx, "Referral.GetReferralCode", trace.WithAttributes(attribute.String("user", user)))
	defer func() { s.ledger.finish(span, "referral_code", result.Status) }()

	if user == "" {
		result.Status = s.ledger.status("GetReferralCode", model.WrapError(model.CodeInvalidRequest, "user is required", nil))
		return
	}
	var code model.ReferralCode
	err := s.ledger.db.InTx(ctx, func(tx interf.Tx) (err error) {
		code, err = s.codeFor(ctx, tx, user)
		return err
	})
	result.Status = s.ledger.status("GetReferralCode", err)
	if err == nil {
		result.Referral = code
	}
	return
}

func (s *ReferralService) codeFor(ctx context.Context, tx interf.Tx, user string) (model.ReferralCode, error) {
	code, err := tx.ReferralCodeByUser(ctx, user)
	if !errors.Is(err, model.ErrNotFound) {
		return code, err
	}
	for range referralCodeAttempts {
		value, err := newReferralCode()
		if err != nil {
			return model.ReferralCode{}, err
		}
		created, err := tx.ReferralCodeCreate(ctx, model.ReferralCode{
			UserID:    user,
			Code:      value,
			CreatedAt: s.ledger.clock.Now(),
		})
		if err != nil {
			return model.ReferralCode{}, err
		}
		// код занят другим пользователем или уже создан параллельным запросом
		code, err = tx.ReferralCodeByUser(ctx, user)
		if created || err == nil {
			return code, err
		}
		if !errors.Is(err, model.ErrNotFound) {
			return model.ReferralCode{}, err
		}
	}
	return model.ReferralCode{}, fmt.Errorf("referral code for %s: too many collisions", user)
}

func newReferralCode() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return referralCodePrefix + strings.ToUpper(hex.EncodeToString(b)), nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Регистрация приглашенного по коду
func (s *ReferralService) CreateReferralRelation(ctx context.Context, invitee string, code string) (result model.Status) {
	ctx, span := tracer.Start(ctx, "Referral.CreateReferralRelation", trace.WithAttributes(attribute.String("user", invitee)))
	defer func() { s.ledger.finish(span, "create_relation", result) }()

	if invitee == "" {
		return s.ledger.status("CreateReferralRelation", model.WrapError(model.CodeInvalidRequest, "invitee is required", nil))
	}
	now := s.ledger.clock.Now()
	campaign, err := s.campaigns.Active(ctx)
	if err != nil {
		return s.ledger.status("CreateReferralRelation", err)
	}
	if !campaign.Running(now) {
		return s.ledger.status("CreateReferralRelation", model.ErrCampaignInactive)
	}

	var rel model.ReferralRelation
	err = s.ledger.db.InTx(ctx, func(tx interf.Tx) error {
		rc, err := tx.ReferralCodeByCode(ctx, normalizeCode(code))
		if errors.Is(err, model.ErrNotFound) {
			return model.ErrReferralCodeNotFound
		}
		if err != nil {
			return err
		}
		if rc.UserID == invitee {
			return model.WrapError(model.CodeDuplicateReferral, "cannot use own referral code", nil)
		}

		_, err = tx.RelationByInvitee(ctx, invitee, false)
		if err == nil {
			return model.WrapError(model.CodeDuplicateReferral, "user is already referred", nil)
		}
		if !errors.Is(err, model.ErrNotFound) {
			return err
		}

		// приглашенный не должен оказаться выше пригласившего
		chain, err := Upline(ctx, tx, rc.UserID, maxAncestorScan)
		if err != nil {
			return err
		}
		if slices.Contains(chain, invitee) {
			return model.WrapError(model.CodeDuplicateReferral, "referral would create a cycle", nil)
		}

		if campaign.MaxInvites > 0 {
			count, err := tx.RelationCountByInviter(ctx, rc.UserID)
			if err != nil {
				return err
			}
			if count >= campaign.MaxInvites {
				return model.ErrInviteLimitReached
			}
		}

		rel = model.ReferralRelation{
			ID:            uuid.New(),
			InviterID:     rc.UserID,
			InviteeID:     invitee,
			Code:          rc.Code,
			Status:        model.RelationPending,
			InviterReward: campaign.InviterReward,
			InviteeReward: campaign.InviteeReward,
			CreatedAt:     now,
		}
		if campaign.RelationTTL > 0 {
			expires := now.Add(campaign.RelationTTL)
			rel.ExpiresAt = &expires
		}
		if err = tx.RelationCreate(ctx, rel); err != nil {
			return err
		}
		return tx.ReferralCodeCount(ctx, rc.UserID, 1, 0, 0)
	})
	if err != nil {
		return s.ledger.status("CreateReferralRelation", err)
	}

	s.logger.Info("referral relation",
		zap.String("inviter", rel.InviterID),
		zap.String("invitee", rel.InviteeID),
		zap.String("campaign", campaign.ID))
	return s.ledger.status("CreateReferralRelation", nil)
}

// Участник выплаты по связи
type payee struct {
	user   string
	role   model.RewardRole
	level  int
	amount int64
}

// Получатели наград: приглашенный и цепочка пригласивших с затуханием
func payees(rel model.ReferralRelation, upline []string) []payee {
	list := []payee{{user: rel.InviteeID, role: model.RoleInvitee, amount: rel.InviteeReward}}
	for level, user := range upline {
		role := model.RoleUpline
		if level == 0 {
			role = model.RoleInviter
		}
		list = append(list, payee{user: user, role: role, level: level, amount: decayedReward(rel.InviterReward, level)})
	}
	return list
}

// Выплаты за выполненное задание. Повторный вызов доплачивает только тем,
// кому выплата не прошла
func (s *ReferralService) CompleteReferralTask(ctx context.Context, invitee string, task string) (result model.CompleteTaskResult) {
	ctx, span := tracer.Start(ctx, "Referral.CompleteReferralTask", trace.WithAttributes(
		attribute.String("user", invitee),
		attribute.String("task", task)))
	defer func() { s.ledger.finish(span, "complete_task", result.Status) }()

	now := s.ledger.clock.Now()
	var rel model.ReferralRelation
	var upline []string
	err := s.ledger.db.InTx(ctx, func(tx interf.Tx) (err error) {
		rel, err = tx.RelationByInvitee(ctx, invitee, false)
		if errors.Is(err, model.ErrNotFound) {
			return model.ErrRelationNotFound
		}
		if err != nil {
			return err
		}
		upline, err = Upline(ctx, tx, invitee, MaxInviteLevel)
		return err
	})
	if err != nil {
		result.Status = s.ledger.status("CompleteReferralTask", err)
		return
	}

	if rel.Status == model.RelationCompleted {
		result.Status = model.Status{Success: true, Message: "referral already completed"}
		return
	}
	if rel.Expired(now) {
		if err := s.expireRelation(ctx, invitee, now); err != nil {
			result.Status = s.ledger.status("CompleteReferralTask", err)
			return
		}
		result.Status = s.ledger.status("CompleteReferralTask", model.ErrRelationExpired)
		return
	}

	campaign, err := s.campaigns.Active(ctx)
	if err != nil {
		result.Status = s.ledger.status("CompleteReferralTask", err)
		return
	}
	if campaign.RequiredTask != task {
		result.Status = s.ledger.status("CompleteReferralTask", model.WrapError(model.CodeCampaignMismatch,
			fmt.Sprintf("campaign requires task %q", campaign.RequiredTask), nil))
		return
	}
	currency := campaign.Currency()

	var failed error
	for _, p := range payees(rel, upline) {
		if p.amount <= 0 {
			continue
		}
		paid, err := s.pay(ctx, rel.InviteeID, p, currency)
		if err != nil {
			s.logger.Error("referral reward",
				zap.String("invitee", rel.InviteeID),
				zap.String("user", p.user),
				zap.String("role", string(p.role)),
				zap.Error(err))
			if failed == nil {
				failed = err
			}
			continue
		}
		switch p.role {
		case model.RoleInvitee:
			result.InviteeReward = paid
		case model.RoleInviter:
			result.InviterReward = paid
		}
	}
	if failed != nil {
		result.Status = s.ledger.status("CompleteReferralTask", failed)
		return
	}

	err = s.ledger.db.InTx(ctx, func(tx interf.Tx) error {
		rel, err := tx.RelationByInvitee(ctx, invitee, true)
		if err != nil {
			return err
		}
		if rel.Status != model.RelationPending {
			return nil
		}
		rel.Status = model.RelationCompleted
		rel.CompletedAt = &now
		return tx.RelationSave(ctx, rel)
	})
	if err != nil {
		result.Status = s.ledger.status("CompleteReferralTask", err)
		return
	}

	s.logger.Info("referral completed",
		zap.String("invitee", invitee),
		zap.String("task", task),
		zap.Int64("inviterReward", result.InviterReward),
		zap.Int64("inviteeReward", result.InviteeReward))
	result.Status = s.ledger.status("CompleteReferralTask", nil)
	return
}

// pay - выплата одному участнику в отдельной транзакции. 0 - уже выплачено
func (s *ReferralService) pay(ctx context.Context, invitee string, p payee, currency model.Currency) (int64, error) {
	l, err := s.ledger.Ledger(currency)
	if err != nil {
		return 0, err
	}
	var paid int64
	var acc model.Account
	err = s.ledger.db.InTx(ctx, func(tx interf.Tx) error {
		paid = 0
		now := s.ledger.clock.Now()
		// блокировка связи упорядочивает параллельные выплаты по ней
		rel, err := tx.RelationByInvitee(ctx, invitee, true)
		if err != nil {
			return err
		}
		if rel.Status.Terminal() {
			return nil
		}
		switch p.role {
		case model.RoleInviter:
			if rel.InviterRewarded {
				return nil
			}
		case model.RoleInvitee:
			if rel.InviteeRewarded {
				return nil
			}
		default:
			exists, err := tx.RewardExists(ctx, rel.ID, p.user)
			if err != nil || exists {
				return err
			}
		}

		credited, tnx, err := l.Credit(ctx, tx, p.user, p.amount, model.Meta{
			Type:        model.TxGift,
			RelatedID:   rel.ID.String(),
			RelatedType: model.RelatedReferral,
			Description: fmt.Sprintf("referral reward (%s, level %d)", p.role, p.level),
		}, now)
		if err != nil {
			return err
		}

		switch p.role {
		case model.RoleInviter:
			rel.InviterRewarded = true
			rel.ActualInviterReward = p.amount
		case model.RoleInvitee:
			rel.InviteeRewarded = true
			rel.ActualInviteeReward = p.amount
		}
		if p.role != model.RoleUpline {
			if err = tx.RelationSave(ctx, rel); err != nil {
				return err
			}
		}

		err = tx.RewardCreate(ctx, model.RewardRecord{
			ID:            uuid.New(),
			RelationID:    rel.ID,
			UserID:        p.user,
			Role:          p.role,
			Level:         p.level,
			Currency:      currency,
			Amount:        p.amount,
			Status:        model.RewardIssued,
			TransactionID: tnx.ID,
			IssuedAt:      now,
		})
		if err != nil {
			return err
		}

		switch p.role {
		case model.RoleInviter:
			err = tx.ReferralCodeCount(ctx, p.user, 0, 1, p.amount)
		case model.RoleUpline:
			err = tx.ReferralCodeCount(ctx, p.user, 0, 0, p.amount)
		}
		if err != nil {
			return err
		}
		paid, acc = p.amount, credited
		return nil
	})
	if err != nil {
		return 0, err
	}
	if paid > 0 {
		s.ledger.refresh(ctx, acc)
		rewardsIssued.WithLabelValues(string(p.role), string(currency)).Add(float64(paid))
	}
	return paid, nil
}

func (s *ReferralService) expireRelation(ctx context.Context, invitee string, now time.Time) error {
	var expired bool
	err := s.ledger.db.InTx(ctx, func(tx interf.Tx) error {
		expired = false
		rel, err := tx.RelationByInvitee(ctx, invitee, true)
		if err != nil {
			return err
		}
		if rel.Status != model.RelationPending || !rel.Expired(now) {
			return nil
		}
		rel.Status = model.RelationExpired
		if err = tx.RelationSave(ctx, rel); err != nil {
			return err
		}
		expired = true
		return nil
	})
	// после коммита
	if err == nil && expired {
		relationsExpired.Inc()
	}
	return err
}

// Перевод просроченных неоплаченных связей в expired
func (s *ReferralService) ExpireRelations(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "Referral.ExpireRelations")
	defer span.End()

	now := s.ledger.clock.Now()
	var count int64
	err := s.ledger.db.InTx(ctx, func(tx interf.Tx) (err error) {
		count, err = tx.RelationsExpire(ctx, now)
		return err
	})
	if err != nil {
		s.logger.Error("expire relations",
			zap.Error(err))
		return 0, err
	}
	if count > 0 {
		relationsExpired.Add(float64(count))
		s.logger.Info("relations expired",
			zap.Int64("count", count))
	}
	return count, nil
}

// Уровень пользователя в цепочке приглашений
func (s *ReferralService) InviteLevel(ctx context.Context, user string) (level int, err error) {
	err = s.ledger.db.InTx(ctx, func(tx interf.Tx) (err error) {
		level, err = InviteLevel(ctx, tx, user)
		return err
	})
	return level, err
}
