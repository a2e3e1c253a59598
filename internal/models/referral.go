package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Реферальный код пользователя
type ReferralCode struct {
	UserID             string    `json:"userId"`
	Code               string    `json:"code"`
	TotalInvites       int64     `json:"totalInvites"`
	SuccessfulInvites  int64     `json:"successfulInvites"`
	TotalRewardsIssued int64     `json:"totalRewardsIssued"`
	CreatedAt          time.Time `json:"createdAt"`
}

type RelationStatus string

const (
	RelationPending   RelationStatus = "pending"
	RelationCompleted RelationStatus = "completed"
	RelationExpired   RelationStatus = "expired"
)

// Terminal - из этих статусов переходов нет
func (s RelationStatus) Terminal() bool {
	return s == RelationCompleted || s == RelationExpired
}

// Связь пригласивший - приглашенный
type ReferralRelation struct {
	ID                  uuid.UUID
	InviterID           string
	InviteeID           string // уникален: пригласить можно только один раз
	Code                string
	Status              RelationStatus
	InviterReward       int64 // номинал
	InviteeReward       int64
	ActualInviterReward int64 // фактически начислено
	ActualInviteeReward int64
	InviterRewarded     bool
	InviteeRewarded     bool
	CreatedAt           time.Time
	ExpiresAt           *time.Time
	CompletedAt         *time.Time
}

// Expired - истек срок ожидания, а выплат еще не было
func (r ReferralRelation) Expired(now time.Time) bool {
	if r.Status == RelationExpired {
		return true
	}
	if r.Status != RelationPending || r.InviterRewarded || r.InviteeRewarded {
		return false
	}
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

type RewardRole string

const (
	RoleInviter RewardRole = "inviter"
	RoleInvitee RewardRole = "invitee"
	RoleUpline  RewardRole = "upline"
)

type RewardStatus string

const (
	RewardPending RewardStatus = "pending"
	RewardIssued  RewardStatus = "issued"
	RewardFailed  RewardStatus = "failed"
)

// Выплата одному участнику по одной связи
type RewardRecord struct {
	ID            uuid.UUID
	RelationID    uuid.UUID
	UserID        string
	Role          RewardRole
	Level         int
	Currency      Currency
	Amount        int64
	Status        RewardStatus
	TransactionID uuid.UUID
	IssuedAt      time.Time
}

// Настройки кампании - только чтение
type CampaignConfig struct {
	ID             string        `bson:"id" json:"id"`
	Name           string        `bson:"name" json:"name"`
	Active         bool          `bson:"active" json:"active"`
	InviterReward  int64         `bson:"inviterReward" json:"inviterReward"`
	InviteeReward  int64         `bson:"inviteeReward" json:"inviteeReward"`
	RequiredTask   string        `bson:"requiredTask" json:"requiredTask"`
	MaxInvites     int64         `bson:"maxInvites" json:"maxInvites"` // 0 - без ограничений
	StartsAt       time.Time     `bson:"startsAt" json:"startsAt"`
	EndsAt         time.Time     `bson:"endsAt" json:"endsAt"` // zero - бессрочно
	RewardCurrency Currency      `bson:"rewardCurrency" json:"rewardCurrency"`
	RelationTTL    time.Duration `bson:"relationTtl" json:"relationTtl"` // 0 - связь не истекает
}

// Running - кампания активна на момент now
func (c CampaignConfig) Running(now time.Time) bool {
	if !c.Active {
		return false
	}
	if !c.StartsAt.IsZero() && now.Before(c.StartsAt) {
		return false
	}
	if !c.EndsAt.IsZero() && !now.Before(c.EndsAt) {
		return false
	}
	return true
}

// Валюта выплат, по умолчанию баллы
func (c CampaignConfig) Currency() Currency {
	if c.RewardCurrency.Valid() {
		return c.RewardCurrency
	}
	return Points
}

// Типы заданий, которые сигнализирует приложение
const (
	TaskSignup        = "signup"
	TaskEmailVerify   = "email_verify"
	TaskFirstCreation = "first_creation"
)
