package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	interf "github.com/hui2334387208/comic-sub000/internal/interfaces"
	model "github.com/hui2334387208/comic-sub000/internal/models"
	"go.uber.org/zap"
)

// ChargeRequest - списание кредитов за генерацию из очереди
type ChargeRequest struct {
	ChargeID    string `json:"chargeId"`
	UserID      string `json:"userId"`
	Amount      int64  `json:"amount"`
	RelatedID   string `json:"relatedId,omitempty"`
	RelatedType string `json:"relatedType,omitempty"`
	Description string `json:"description,omitempty"`
}

func ParseCharge(body []byte) (ChargeRequest, error) {
	var req ChargeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return ChargeRequest{}, model.WrapError(model.CodeInvalidRequest, "malformed charge", err)
	}
	if req.ChargeID == "" {
		return ChargeRequest{}, model.WrapError(model.CodeInvalidRequest, "chargeId is required", nil)
	}
	return req, nil
}

// Charge списывает кредиты один раз на chargeId: повторная доставка
// того же сообщения возвращает текущий баланс без нового списания
func (s *LedgerService) Charge(ctx context.Context, req ChargeRequest) (result model.OperationResult) {
	ctx, span := s.start(ctx, "Charge", req.UserID, model.Credits)
	defer func() { s.finish(span, "charge", result.Status) }()

	if req.ChargeID == "" {
		result.Status = s.status("Charge", model.WrapError(model.CodeInvalidRequest, "chargeId is required", nil))
		return
	}
	l, _ := s.Ledger(model.Credits)

	description := req.Description
	if description == "" && req.RelatedType != "" {
		description = fmt.Sprintf("%s %s", req.RelatedType, req.RelatedID)
	}
	meta := model.Meta{
		RelatedID:   req.ChargeID,
		RelatedType: model.RelatedCharge,
		Description: description,
	}

	var (
		acc       model.Account
		duplicate bool
	)
	err := s.db.InTx(ctx, func(tx interf.Tx) (err error) {
		duplicate = false
		prev, err := tx.TnxByRelated(ctx, req.UserID, model.Credits, model.RelatedCharge, req.ChargeID)
		switch {
		case err == nil:
			duplicate = true
			acc, err = tx.Account(ctx, req.UserID, model.Credits, false)
			if err == nil && prev.Amount != -req.Amount {
				s.logger.Warn("charge replay with different amount",
					zap.String("charge", req.ChargeID),
					zap.Int64("charged", -prev.Amount),
					zap.Int64("amount", req.Amount))
			}
			return err
		case !errors.Is(err, model.ErrNotFound):
			return err
		}
		acc, _, err = l.Debit(ctx, tx, req.UserID, req.Amount, meta, s.clock.Now())
		return err
	})
	if err != nil {
		result.Status = s.status("Charge", err)
		return
	}
	if !duplicate {
		s.refresh(ctx, acc)
	}

	s.logger.Info("Charge",
		zap.String("charge", req.ChargeID),
		zap.String("user", req.UserID),
		zap.Int64("amount", req.Amount),
		zap.Bool("duplicate", duplicate),
		zap.Int64("balance", acc.Balance))
	result.Status = s.status("Charge", nil)
	result.Balance = acc.Balance
	return
}
