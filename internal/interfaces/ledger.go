package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	model "github.com/hui2334387208/comic-sub000/internal/models"
)

//go:generate mockgen -destination=./../services/mock_ledger_test.go -package=ledger . CacheStorage,CampaignProvider

// Хранилище: все операции выполняются в транзакции
type Storage interface {
	// InTx выполняет fn в транзакции, при конфликте повторяет ее целиком
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close()
}

// Tx - операции внутри одной транзакции хранилища
type Tx interface {
	// счета
	Account(ctx context.Context, user string, currency model.Currency, lock bool) (model.Account, error)
	SaveAccount(ctx context.Context, account model.Account, prevVersion int64) error
	TnxCreate(ctx context.Context, tnx model.Transaction) error
	GetTnx(ctx context.Context, user string, currency model.Currency, limit uint64) ([]model.Transaction, error)
	TnxByRelated(ctx context.Context, user string, currency model.Currency, relatedType string, relatedID string) (model.Transaction, error)

	// реферальные коды
	ReferralCodeByUser(ctx context.Context, user string) (model.ReferralCode, error)
	ReferralCodeByCode(ctx context.Context, code string) (model.ReferralCode, error)
	ReferralCodeCreate(ctx context.Context, code model.ReferralCode) (bool, error)
	ReferralCodeCount(ctx context.Context, user string, invites int64, successful int64, rewards int64) error

	// связи и выплаты
	Inviter(ctx context.Context, invitee string) (inviter string, found bool, err error)
	RelationByInvitee(ctx context.Context, invitee string, lock bool) (model.ReferralRelation, error)
	RelationCreate(ctx context.Context, rel model.ReferralRelation) error
	RelationSave(ctx context.Context, rel model.ReferralRelation) error
	RelationCountByInviter(ctx context.Context, inviter string) (int64, error)
	RelationsExpire(ctx context.Context, now time.Time) (int64, error)
	RewardExists(ctx context.Context, relation uuid.UUID, user string) (bool, error)
	RewardCreate(ctx context.Context, rec model.RewardRecord) error

	// отметки и обмен
	CheckInByDate(ctx context.Context, user string, date string) (model.CheckIn, error)
	CheckInCreate(ctx context.Context, checkin model.CheckIn) error
	ExchangeCreate(ctx context.Context, ex model.ExchangeHistory) error
	GetExchanges(ctx context.Context, user string, limit uint64) ([]model.ExchangeHistory, error)
}

type CacheStorage interface {
	GetBalance(ctx context.Context, user string, currency model.Currency) (balance model.Balance, err error)
	// SetBalance не перезаписывает значение с версией счета не меньше version
	SetBalance(ctx context.Context, user string, currency model.Currency, balance model.Balance, version int64) (err error)
	InvalidateBalance(ctx context.Context, user string, currency model.Currency) error
}

// Источник настроек кампании (только чтение)
type CampaignProvider interface {
	Active(ctx context.Context) (model.CampaignConfig, error)
}
