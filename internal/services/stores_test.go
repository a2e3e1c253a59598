package ledger

import (
	"context"
	"fmt"
	"sync"

	interf "github.com/hui2334387208/comic-sub000/internal/interfaces"
	model "github.com/hui2334387208/comic-sub000/internal/models"
)

// hookStore вызывает after один раз после первой успешной транзакции
type hookStore struct {
	interf.Storage
	after func()
}

func (h *hookStore) InTx(ctx context.Context, fn func(tx interf.Tx) error) error {
	err := h.Storage.InTx(ctx, fn)
	if err == nil && h.after != nil {
		after := h.after
		h.after = nil
		after()
	}
	return err
}

// conflictStore откатывает первую попытку каждой транзакции конфликтом версий
type conflictStore struct {
	interf.Storage
}

func (c conflictStore) InTx(ctx context.Context, fn func(tx interf.Tx) error) error {
	attempt := 0
	return c.Storage.InTx(ctx, func(tx interf.Tx) error {
		attempt++
		if err := fn(tx); err != nil {
			return err
		}
		if attempt == 1 {
			return model.ErrConcurrencyConflict
		}
		return nil
	})
}

// failStore завершает транзакцию с номером failAt ошибкой err, не выполняя ее
type failStore struct {
	interf.Storage
	calls  int
	failAt int
	err    error
}

func (f *failStore) InTx(ctx context.Context, fn func(tx interf.Tx) error) error {
	f.calls++
	if f.calls == f.failAt {
		return f.err
	}
	return f.Storage.InTx(ctx, fn)
}

// memCache повторяет compare-and-set по версии из redis-кэша
type memCache struct {
	mu       sync.Mutex
	balances map[string]model.Balance
	versions map[string]int64
}

func newMemCache() *memCache {
	return &memCache{balances: map[string]model.Balance{}, versions: map[string]int64{}}
}

func memKey(user string, currency model.Currency) string {
	return string(currency) + ":" + user
}

func (m *memCache) GetBalance(ctx context.Context, user string, currency model.Currency) (model.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[memKey(user, currency)]
	if !ok {
		return model.Balance{}, fmt.Errorf("balance %w", model.ErrNotFound)
	}
	return balance, nil
}

func (m *memCache) SetBalance(ctx context.Context, user string, currency model.Currency, balance model.Balance, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey(user, currency)
	if v, ok := m.versions[key]; ok && v >= version {
		return nil
	}
	m.balances[key] = balance
	m.versions[key] = version
	return nil
}

func (m *memCache) InvalidateBalance(ctx context.Context, user string, currency model.Currency) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.balances, memKey(user, currency))
	delete(m.versions, memKey(user, currency))
	return nil
}
