package ledger

import (
	"context"

	interf "github.com/hui2334387208/comic-sub000/internal/interfaces"
)

const (
	// Глубина цепочки приглашений, дальше уровни не считаются
	MaxInviteLevel = 3
	// Ограничение обхода при проверке на цикл
	maxAncestorScan = 1000
)

// Доля номинала пригласившего по расстоянию от приглашенного, в процентах.
// 0 - прямой пригласивший, 1 - его пригласивший, дальше не платим
var inviterDecay = []int64{100, 50, 0}

func decayedReward(nominal int64, level int) int64 {
	if level < 0 || level >= len(inviterDecay) {
		return 0
	}
	return nominal * inviterDecay[level] / 100
}

// Цепочка пригласивших пользователя снизу вверх, не длиннее maxHops.
// Повторный пользователь обрывает обход
func Upline(ctx context.Context, tx interf.Tx, user string, maxHops int) ([]string, error) {
	seen := map[string]bool{user: true}
	chain := make([]string, 0, MaxInviteLevel)
	current := user
	for hop := 0; hop < maxHops; hop++ {
		inviter, found, err := tx.Inviter(ctx, current)
		if err != nil {
			return nil, err
		}
		if !found || seen[inviter] {
			break
		}
		seen[inviter] = true
		chain = append(chain, inviter)
		current = inviter
	}
	return chain, nil
}

// Уровень пользователя: число шагов до корня цепочки, не больше MaxInviteLevel.
// 0 - пользователя никто не приглашал
func InviteLevel(ctx context.Context, tx interf.Tx, user string) (int, error) {
	chain, err := Upline(ctx, tx, user, MaxInviteLevel)
	if err != nil {
		return 0, err
	}
	return len(chain), nil
}
