package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	interf "github.com/hui2334387208/comic-sub000/internal/interfaces"
	model "github.com/hui2334387208/comic-sub000/internal/models"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultTnxLimit = 50
	maxTnxLimit     = 500
	internalMessage = "internal error, please retry later"
)

var tracer = otel.Tracer("github.com/hui2334387208/comic-sub000/internal/services")

// Ledger - операции с балансом одной валюты внутри транзакции хранилища.
// Все изменения баланса проходят через apply
type Ledger struct {
	currency model.Currency
}

func (l *Ledger) Currency() model.Currency {
	return l.currency
}

// Зачисление: recharge, refund, gift
func (l *Ledger) Credit(ctx context.Context, tx interf.Tx, user string, amount int64, meta model.Meta, now time.Time) (model.Account, model.Transaction, error) {
	if amount <= 0 {
		return model.Account{}, model.Transaction{}, model.ErrInvalidAmount
	}
	if meta.Type == "" {
		meta.Type = model.TxRecharge
	}
	if !meta.Type.CreditType() {
		return model.Account{}, model.Transaction{}, model.WrapError(model.CodeInvalidRequest, "transaction type is not allowed for credit", fmt.Errorf("type %q", meta.Type))
	}
	return l.apply(ctx, tx, user, amount, meta, now, model.ErrInsufficientBalance)
}

// Списание, баланс не может стать отрицательным
func (l *Ledger) Debit(ctx context.Context, tx interf.Tx, user string, amount int64, meta model.Meta, now time.Time) (model.Account, model.Transaction, error) {
	if amount <= 0 {
		return model.Account{}, model.Transaction{}, model.ErrInvalidAmount
	}
	meta.Type = model.TxConsume
	return l.apply(ctx, tx, user, -amount, meta, now, model.ErrInsufficientBalance)
}

// Корректировка администратором, сумма со знаком
func (l *Ledger) Adjust(ctx context.Context, tx interf.Tx, user string, amount int64, meta model.Meta, now time.Time) (model.Account, model.Transaction, error) {
	if amount == 0 || amount == math.MinInt64 {
		return model.Account{}, model.Transaction{}, model.WrapError(model.CodeInvalidAmount, "amount must be non-zero", nil)
	}
	if meta.OperatorID == "" {
		return model.Account{}, model.Transaction{}, model.WrapError(model.CodeInvalidRequest, "operator is required", nil)
	}
	meta.Type = model.TxAdminAdjust
	return l.apply(ctx, tx, user, amount, meta, now, model.ErrNegativeResultingBalance)
}

// apply меняет баланс на delta и пишет транзакцию журнала.
// Счет блокируется до конца транзакции, версия проверяется при сохранении
func (l *Ledger) apply(ctx context.Context, tx interf.Tx, user string, delta int64, meta model.Meta, now time.Time, short *model.Error) (model.Account, model.Transaction, error) {
	if user == "" {
		return model.Account{}, model.Transaction{}, model.WrapError(model.CodeInvalidRequest, "user is required", nil)
	}
	acc, err := tx.Account(ctx, user, l.currency, true)
	if err != nil {
		return model.Account{}, model.Transaction{}, err
	}

	before := acc.Balance
	after := before + delta
	if delta > 0 && after < before {
		return model.Account{}, model.Transaction{}, model.WrapError(model.CodeInvalidAmount, "amount is too large", nil)
	}
	if after < 0 {
		return model.Account{}, model.Transaction{}, model.WrapError(short.Code,
			fmt.Sprintf("%s: balance %d, required %d", short.Message, before, -delta), nil)
	}

	prev := acc.Version
	acc.Balance = after
	if delta > 0 {
		acc.TotalIn += delta
	} else {
		acc.TotalOut += -delta
	}
	if acc.TotalIn < 0 || acc.TotalOut < 0 {
		return model.Account{}, model.Transaction{}, model.WrapError(model.CodeInvalidAmount, "account totals overflow", nil)
	}
	acc.Version++
	acc.UpdatedAt = now
	if err = tx.SaveAccount(ctx, acc, prev); err != nil {
		return model.Account{}, model.Transaction{}, err
	}

	tnx := model.Transaction{
		ID:            uuid.New(),
		UserID:        user,
		Currency:      l.currency,
		Type:          meta.Type,
		Amount:        delta,
		BalanceBefore: before,
		BalanceAfter:  after,
		Seq:           acc.Version,
		RelatedID:     meta.RelatedID,
		RelatedType:   meta.RelatedType,
		Description:   meta.Description,
		OperatorID:    meta.OperatorID,
		CreatedAt:     now,
	}
	if err = tx.TnxCreate(ctx, tnx); err != nil {
		return model.Account{}, model.Transaction{}, err
	}
	return acc, tnx, nil
}

// Запрос на изменение баланса
type OperationRequest struct {
	UserID      string         `json:"userId"`
	Currency    model.Currency `json:"currency"`
	Amount      int64          `json:"amount"`
	Type        model.TxType   `json:"type,omitempty"`
	RelatedID   string         `json:"relatedId,omitempty"`
	RelatedType string         `json:"relatedType,omitempty"`
	Description string         `json:"description,omitempty"`
	OperatorID  string         `json:"operatorId,omitempty"`
}

func (r OperationRequest) meta() model.Meta {
	return model.Meta{
		Type:        r.Type,
		RelatedID:   r.RelatedID,
		RelatedType: r.RelatedType,
		Description: r.Description,
		OperatorID:  r.OperatorID,
	}
}

// LedgerService - балансы и журнал для API и воркеров
type LedgerService struct {
	logger  *zap.Logger
	db      interf.Storage
	cache   interf.CacheStorage
	clock   clockwork.Clock
	ledgers map[model.Currency]*Ledger
}

// cache может быть nil
func NewLedgerService(logger *zap.Logger, db interf.Storage, cache interf.CacheStorage, clock clockwork.Clock) *LedgerService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LedgerService{
		logger: logger,
		db:     db,
		cache:  cache,
		clock:  clock,
		ledgers: map[model.Currency]*Ledger{
			model.Credits: {currency: model.Credits},
			model.Points:  {currency: model.Points},
		},
	}
}

func (s *LedgerService) Ledger(currency model.Currency) (*Ledger, error) {
	l, ok := s.ledgers[currency]
	if !ok {
		return nil, model.WrapError(model.CodeInvalidCurrency, "unknown currency", fmt.Errorf("currency %q", currency))
	}
	return l, nil
}

// Баланс: сначала кэш, затем хранилище
func (s *LedgerService) GetBalance(ctx context.Context, user string, currency model.Currency) (result model.BalanceResult) {
	ctx, span := s.start(ctx, "GetBalance", user, currency)
	defer func() { s.finish(span, "get_balance", result.Status) }()

	if _, err := s.Ledger(currency); err != nil {
		result.Status = s.status("GetBalance", err)
		return
	}
	if user == "" {
		result.Status = s.status("GetBalance", model.WrapError(model.CodeInvalidRequest, "user is required", nil))
		return
	}

	if s.cache != nil {
		balance, err := s.cache.GetBalance(ctx, user, currency)
		if err == nil {
			result.Status = s.status("GetBalance", nil)
			result.Balance = balance
			return
		}
		if !errors.Is(err, model.ErrNotFound) {
			s.logger.Warn("cache get",
				zap.String("user", user),
				zap.Error(err))
		}
	}

	var acc model.Account
	err := s.db.InTx(ctx, func(tx interf.Tx) (err error) {
		acc, err = tx.Account(ctx, user, currency, false)
		return err
	})
	if err != nil {
		result.Status = s.status("GetBalance", err)
		return
	}
	result.Status = s.status("GetBalance", nil)
	result.Balance = acc.Balances()

	if s.cache != nil {
		if err := s.cache.SetBalance(ctx, user, currency, result.Balance, acc.Version); err != nil {
			s.logger.Warn("cache set",
				zap.String("user", user),
				zap.Error(err))
		}
	}
	return
}

// Достаточно ли средств, баланс не меняется
func (s *LedgerService) CheckBalance(ctx context.Context, user string, currency model.Currency, required int64) (result model.CheckBalanceResult) {
	if required < 0 {
		result.Status = s.status("CheckBalance", model.ErrInvalidAmount)
		return
	}
	balance := s.GetBalance(ctx, user, currency)
	result.Status = balance.Status
	if !balance.Success {
		return
	}
	result.Balance = balance.Balance.Balance
	result.Required = required
	result.Sufficient = balance.Balance.Balance >= required
	if !result.Sufficient {
		result.Shortage = required - balance.Balance.Balance
	}
	return
}

func (s *LedgerService) Credit(ctx context.Context, req OperationRequest) model.OperationResult {
	return s.operation(ctx, "Credit", req, (*Ledger).Credit)
}

func (s *LedgerService) Debit(ctx context.Context, req OperationRequest) model.OperationResult {
	return s.operation(ctx, "Debit", req, (*Ledger).Debit)
}

func (s *LedgerService) Adjust(ctx context.Context, req OperationRequest) model.OperationResult {
	return s.operation(ctx, "Adjust", req, (*Ledger).Adjust)
}

type ledgerOp func(l *Ledger, ctx context.Context, tx interf.Tx, user string, amount int64, meta model.Meta, now time.Time) (model.Account, model.Transaction, error)

func (s *LedgerService) operation(ctx context.Context, name string, req OperationRequest, op ledgerOp) (result model.OperationResult) {
	ctx, span := s.start(ctx, name, req.UserID, req.Currency)
	defer func() { s.finish(span, name, result.Status) }()

	l, err := s.Ledger(req.Currency)
	if err != nil {
		result.Status = s.status(name, err)
		return
	}

	var acc model.Account
	err = s.db.InTx(ctx, func(tx interf.Tx) (err error) {
		acc, _, err = op(l, ctx, tx, req.UserID, req.Amount, req.meta(), s.clock.Now())
		return err
	})
	if err != nil {
		result.Status = s.status(name, err)
		return
	}
	s.refresh(ctx, acc)

	s.logger.Info(name,
		zap.String("user", req.UserID),
		zap.String("currency", string(req.Currency)),
		zap.Int64("amount", req.Amount),
		zap.Int64("balance", acc.Balance))
	result.Status = s.status(name, nil)
	result.Balance = acc.Balance
	return
}

// Журнал операций, новые первыми
func (s *LedgerService) Transactions(ctx context.Context, user string, currency model.Currency, limit uint64) (result model.TransactionsResult) {
	ctx, span := s.start(ctx, "Transactions", user, currency)
	defer func() { s.finish(span, "transactions", result.Status) }()

	if _, err := s.Ledger(currency); err != nil {
		result.Status = s.status("Transactions", err)
		return
	}
	limit = clampLimit(limit)

	var list []model.Transaction
	err := s.db.InTx(ctx, func(tx interf.Tx) (err error) {
		list, err = tx.GetTnx(ctx, user, currency, limit)
		return err
	})
	if err != nil {
		result.Status = s.status("Transactions", err)
		return
	}
	if list == nil {
		list = []model.Transaction{}
	}
	result.Status = s.status("Transactions", nil)
	result.Transactions = list
	return
}

// refresh записывает в кэш закоммиченный счет. Если запись не прошла,
// ключ удаляется, чтобы не отдавать старый баланс до истечения TTL
func (s *LedgerService) refresh(ctx context.Context, acc model.Account) {
	if s.cache == nil {
		return
	}
	err := s.cache.SetBalance(ctx, acc.UserID, acc.Currency, acc.Balances(), acc.Version)
	if err == nil {
		return
	}
	s.logger.Warn("cache refresh",
		zap.String("user", acc.UserID),
		zap.String("currency", string(acc.Currency)),
		zap.Error(err))
	if err = s.cache.InvalidateBalance(ctx, acc.UserID, acc.Currency); err != nil {
		s.logger.Error("cache invalidate",
			zap.String("user", acc.UserID),
			zap.String("currency", string(acc.Currency)),
			zap.Error(err))
	}
}

// status переводит ошибку в ответ. Непредвиденные ошибки логируются,
// клиенту уходит общее сообщение
func (s *LedgerService) status(op string, err error) model.Status {
	if err == nil {
		return model.Status{Success: true, Message: "ok"}
	}
	var e *model.Error
	if errors.As(err, &e) && e.Code != model.CodeInternal {
		return model.Status{Success: false, Message: e.Message, Code: e.Code}
	}
	s.logger.Error(op,
		zap.Error(err))
	return model.Status{Success: false, Message: internalMessage, Code: model.CodeInternal}
}

func (s *LedgerService) start(ctx context.Context, name string, user string, currency model.Currency) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Ledger."+name, trace.WithAttributes(
		attribute.String("user", user),
		attribute.String("currency", string(currency)),
	))
}

func (s *LedgerService) finish(span trace.Span, op string, st model.Status) {
	observeOperation(op, st)
	if !st.Success {
		span.SetAttributes(attribute.String("code", string(st.Code)))
	}
	span.End()
}

func clampLimit(limit uint64) uint64 {
	if limit == 0 {
		return defaultTnxLimit
	}
	if limit > maxTnxLimit {
		return maxTnxLimit
	}
	return limit
}
