package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	interf "github.com/hui2334387208/comic-sub000/internal/interfaces"
	model "github.com/hui2334387208/comic-sub000/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Награда за отметку по длине серии, от большей к меньшей
var checkInTiers = []struct {
	days   int
	points int64
}{
	{30, 100},
	{14, 50},
	{7, 30},
	{3, 20},
	{1, 10},
}

func checkInReward(days int) int64 {
	for _, t := range checkInTiers {
		if days >= t.days {
			return t.points
		}
	}
	return checkInTiers[len(checkInTiers)-1].points
}

// CheckInService - ежедневные отметки
type CheckInService struct {
	logger *zap.Logger
	ledger *LedgerService
	loc    *time.Location
}

// loc - часовой пояс, в котором считается календарный день
func NewCheckInService(logger *zap.Logger, ledger *LedgerService, loc *time.Location) *CheckInService {
	if loc == nil {
		loc = time.UTC
	}
	return &CheckInService{logger, ledger, loc}
}

func (s *CheckInService) days(now time.Time) (today string, yesterday string) {
	local := now.In(s.loc)
	y, m, d := local.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	return day.Format(model.DateLayout), day.AddDate(0, 0, -1).Format(model.DateLayout)
}

// Отметка за сегодня и начисление баллов
func (s *CheckInService) DailyCheckIn(ctx context.Context, user string) (result model.CheckInResult) {
	ctx, span := tracer.Start(ctx, "CheckIn.DailyCheckIn", trace.WithAttributes(attribute.String("user", user)))
	defer func() { s.ledger.finish(span, "checkin", result.Status) }()

	if user == "" {
		result.Status = s.ledger.status("DailyCheckIn", model.WrapError(model.CodeInvalidRequest, "user is required", nil))
		return
	}
	pointsLedger, _ := s.ledger.Ledger(model.Points)

	var checkin model.CheckIn
	var acc model.Account
	err := s.ledger.db.InTx(ctx, func(tx interf.Tx) error {
		now := s.ledger.clock.Now()
		today, yesterday := s.days(now)

		_, err := tx.CheckInByDate(ctx, user, today)
		if err == nil {
			return model.ErrAlreadyCheckedIn
		}
		if !errors.Is(err, model.ErrNotFound) {
			return err
		}

		streak := 1
		prev, err := tx.CheckInByDate(ctx, user, yesterday)
		if err == nil {
			streak = prev.ConsecutiveDays + 1
		} else if !errors.Is(err, model.ErrNotFound) {
			return err
		}

		checkin = model.CheckIn{
			ID:              uuid.New(),
			UserID:          user,
			Date:            today,
			Points:          checkInReward(streak),
			ConsecutiveDays: streak,
			CreatedAt:       now,
		}
		if err = tx.CheckInCreate(ctx, checkin); err != nil {
			return err
		}
		acc, _, err = pointsLedger.Credit(ctx, tx, user, checkin.Points, model.Meta{
			Type:        model.TxGift,
			RelatedID:   checkin.ID.String(),
			RelatedType: model.RelatedCheckIn,
			Description: fmt.Sprintf("daily check-in, day %d", streak),
		}, now)
		return err
	})
	if err != nil {
		result.Status = s.ledger.status("DailyCheckIn", err)
		return
	}
	s.ledger.refresh(ctx, acc)

	s.logger.Info("checkin",
		zap.String("user", user),
		zap.String("date", checkin.Date),
		zap.Int("days", checkin.ConsecutiveDays))
	result.Status = s.ledger.status("DailyCheckIn", nil)
	result.Points = checkin.Points
	result.ConsecutiveDays = checkin.ConsecutiveDays
	result.Balance = acc.Balance
	return
}

// Отмечался ли пользователь сегодня и текущая серия
func (s *CheckInService) CheckInStatus(ctx context.Context, user string) (result model.CheckInStatusResult) {
	today, yesterday := s.days(s.ledger.clock.Now())
	err := s.ledger.db.InTx(ctx, func(tx interf.Tx) error {
		c, err := tx.CheckInByDate(ctx, user, today)
		if err == nil {
			result.CheckedInToday = true
			result.ConsecutiveDays = c.ConsecutiveDays
			return nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return err
		}
		// серия еще не прервана, если была вчерашняя отметка
		c, err = tx.CheckInByDate(ctx, user, yesterday)
		if err == nil {
			result.ConsecutiveDays = c.ConsecutiveDays
			return nil
		}
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return err
	})
	result.Status = s.ledger.status("CheckInStatus", err)
	return
}
