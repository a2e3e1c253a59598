package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Вид валюты
type Currency string

const (
	Credits Currency = "credits" // расходуются на генерацию
	Points  Currency = "points"  // начисляются за активность
)

func (c Currency) Valid() bool {
	return c == Credits || c == Points
}

// Тип операции
type TxType string

const (
	TxRecharge    TxType = "recharge"
	TxConsume     TxType = "consume"
	TxRefund      TxType = "refund"
	TxGift        TxType = "gift"
	TxAdminAdjust TxType = "admin_adjust"
)

// Типы, допустимые для зачисления
func (t TxType) CreditType() bool {
	return t == TxRecharge || t == TxRefund || t == TxGift
}

// Счет пользователя в одной валюте
type Account struct {
	UserID    string
	Currency  Currency
	Balance   int64 // баланс, всегда >= 0
	TotalIn   int64 // сумма зачислений
	TotalOut  int64 // сумма списаний
	Version   int64 // номер последней операции
	UpdatedAt time.Time
}

func (a Account) Balances() Balance {
	return Balance{Balance: a.Balance, TotalIn: a.TotalIn, TotalOut: a.TotalOut}
}

type Balance struct {
	Balance  int64 `json:"balance"`
	TotalIn  int64 `json:"totalIn"`
	TotalOut int64 `json:"totalOut"`
}

// Транзакция - неизменяемая запись журнала
type Transaction struct {
	ID            uuid.UUID `json:"id"`
	UserID        string    `json:"userId"`
	Currency      Currency  `json:"currency"`
	Type          TxType    `json:"type"`
	Amount        int64     `json:"amount"` // со знаком
	BalanceBefore int64     `json:"balanceBefore"`
	BalanceAfter  int64     `json:"balanceAfter"`
	Seq           int64     `json:"seq"` // версия счета после операции
	RelatedID     string    `json:"relatedId,omitempty"`
	RelatedType   string    `json:"relatedType,omitempty"`
	Description   string    `json:"description,omitempty"`
	OperatorID    string    `json:"operatorId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Описание операции: кто и зачем меняет баланс
type Meta struct {
	Type        TxType
	RelatedID   string
	RelatedType string
	Description string
	OperatorID  string
}

// Обмен баллов на кредиты
type ExchangeHistory struct {
	ID              uuid.UUID `json:"id"`
	UserID          string    `json:"userId"`
	PointsSpent     int64     `json:"pointsSpent"`
	CreditsReceived int64     `json:"creditsReceived"`
	Rate            int64     `json:"rate"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Ежедневная отметка
type CheckIn struct {
	ID              uuid.UUID
	UserID          string
	Date            string // YYYY-MM-DD
	Points          int64
	ConsecutiveDays int
	CreatedAt       time.Time
}

const DateLayout = "2006-01-02"

// Related types, которыми помечаются транзакции
const (
	RelatedExchange = "exchange"
	RelatedCheckIn  = "checkin"
	RelatedReferral = "referral"
	RelatedCharge   = "charge"
)
