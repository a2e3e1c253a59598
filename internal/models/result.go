package ledger

// Ответы сервиса: бизнес-ошибки возвращаются в Success/Message/Code, а не через error

type Status struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    Code   `json:"code,omitempty"`
}

// Повтор имеет смысл только для внутренних ошибок и конфликтов
func (s Status) Retryable() bool {
	return !s.Success && (s.Code == CodeInternal || s.Code == CodeConcurrencyConflict)
}

type BalanceResult struct {
	Status
	Balance
}

type CheckBalanceResult struct {
	Status
	Sufficient bool  `json:"sufficient"`
	Balance    int64 `json:"balance"`
	Required   int64 `json:"required"`
	Shortage   int64 `json:"shortage"`
}

type OperationResult struct {
	Status
	Balance int64 `json:"balance"`
}

type TransactionsResult struct {
	Status
	Transactions []Transaction `json:"transactions"`
}

type ExchangeHistoryResult struct {
	Status
	Exchanges []ExchangeHistory `json:"exchanges"`
}

type ReferralCodeResult struct {
	Status
	Referral ReferralCode `json:"referral"`
}

type CompleteTaskResult struct {
	Status
	InviterReward int64 `json:"inviterReward"`
	InviteeReward int64 `json:"inviteeReward"`
}

type ExchangeResult struct {
	Status
	PointsSpent     int64 `json:"pointsSpent"`
	CreditsReceived int64 `json:"creditsReceived"`
	PointBalance    int64 `json:"pointBalance"`
	CreditBalance   int64 `json:"creditBalance"`
}

type CheckInResult struct {
	Status
	Points          int64 `json:"points"`
	ConsecutiveDays int   `json:"consecutiveDays"`
	Balance         int64 `json:"balance"`
}

type CheckInStatusResult struct {
	Status
	CheckedInToday  bool `json:"checkedInToday"`
	ConsecutiveDays int  `json:"consecutiveDays"`
}
