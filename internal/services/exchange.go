package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	interf "github.com/hui2334387208/comic-sub000/internal/interfaces"
	model "github.com/hui2334387208/comic-sub000/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Курс по умолчанию: баллов за один кредит
const DefaultExchangeRate = 100

// ExchangeService - обмен баллов на кредиты
type ExchangeService struct {
	logger *zap.Logger
	ledger *LedgerService
	rate   int64
}

func NewExchangeService(logger *zap.Logger, ledger *LedgerService, rate int64) *ExchangeService {
	if rate <= 0 {
		rate = DefaultExchangeRate
	}
	return &ExchangeService{logger, ledger, rate}
}

// Списание баллов и зачисление кредитов в одной транзакции. rate 0 - курс по умолчанию
func (s *ExchangeService) ExchangePointsForCredits(ctx context.Context, user string, credits int64, rate int64) (result model.ExchangeResult) {
	ctx, span := tracer.Start(ctx, "Exchange.ExchangePointsForCredits", trace.WithAttributes(
		attribute.String("user", user),
		attribute.Int64("credits", credits)))
	defer func() { s.ledger.finish(span, "exchange", result.Status) }()

	if rate == 0 {
		rate = s.rate
	}
	if credits <= 0 || rate <= 0 {
		result.Status = s.ledger.status("ExchangePointsForCredits", model.ErrInvalidAmount)
		return
	}
	if credits > math.MaxInt64/rate {
		result.Status = s.ledger.status("ExchangePointsForCredits", model.WrapError(model.CodeInvalidAmount, "amount is too large", nil))
		return
	}
	needed := credits * rate

	pointsLedger, _ := s.ledger.Ledger(model.Points)
	creditsLedger, _ := s.ledger.Ledger(model.Credits)

	var pointsAcc, creditsAcc model.Account
	err := s.ledger.db.InTx(ctx, func(tx interf.Tx) (err error) {
		now := s.ledger.clock.Now()
		ex := model.ExchangeHistory{
			ID:              uuid.New(),
			UserID:          user,
			PointsSpent:     needed,
			CreditsReceived: credits,
			Rate:            rate,
			CreatedAt:       now,
		}
		meta := model.Meta{
			RelatedID:   ex.ID.String(),
			RelatedType: model.RelatedExchange,
			Description: fmt.Sprintf("exchange %d points for %d credits", needed, credits),
		}

		pointsAcc, _, err = pointsLedger.Debit(ctx, tx, user, needed, meta, now)
		if errors.Is(err, model.ErrInsufficientBalance) {
			return model.WrapError(model.CodeInsufficientPoints,
				fmt.Sprintf("insufficient points: need %d", needed), nil)
		}
		if err != nil {
			return err
		}
		meta.Type = model.TxRecharge
		creditsAcc, _, err = creditsLedger.Credit(ctx, tx, user, credits, meta, now)
		if err != nil {
			return err
		}
		return tx.ExchangeCreate(ctx, ex)
	})
	if err != nil {
		result.Status = s.ledger.status("ExchangePointsForCredits", err)
		return
	}
	s.ledger.refresh(ctx, pointsAcc)
	s.ledger.refresh(ctx, creditsAcc)

	s.logger.Info("exchange",
		zap.String("user", user),
		zap.Int64("points", needed),
		zap.Int64("credits", credits))
	result.Status = s.ledger.status("ExchangePointsForCredits", nil)
	result.PointsSpent = needed
	result.CreditsReceived = credits
	result.PointBalance = pointsAcc.Balance
	result.CreditBalance = creditsAcc.Balance
	return
}

// История обменов
func (s *ExchangeService) History(ctx context.Context, user string, limit uint64) (result model.ExchangeHistoryResult) {
	limit = clampLimit(limit)
	var list []model.ExchangeHistory
	err := s.ledger.db.InTx(ctx, func(tx interf.Tx) (err error) {
		list, err = tx.GetExchanges(ctx, user, limit)
		return err
	})
	result.Status = s.ledger.status("ExchangeHistory", err)
	if err == nil {
		if list == nil {
			list = []model.ExchangeHistory{}
		}
		result.Exchanges = list
	}
	return
}
