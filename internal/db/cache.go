package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cfg "github.com/hui2334387208/comic-sub000/internal/config"
	model "github.com/hui2334387208/comic-sub000/internal/models"
	redis "github.com/redis/go-redis/v9"
)

// Кэш балансов в Redis
type CacheService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCacheService(conf cfg.Cache) (serv *CacheService, err error) {
	if conf.Addr == "" {
		return nil, fmt.Errorf("env LEDGER_CACHE_URL is not set")
	}
	db := redis.NewClient(&redis.Options{
		Addr:        conf.Addr,
		Password:    conf.Password,
		Username:    conf.User,
		DB:          0,
		MaxRetries:  5,
		DialTimeout: 10 * time.Second,
	})
	err = db.Ping(context.Background()).Err()
	if err != nil {
		return nil, err
	}
	ttl := conf.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CacheService{db, ttl}, nil
}

func balanceKey(user string, currency model.Currency) string {
	return "ledger:balance:" + string(currency) + ":" + user
}

// Баланс хранится в hash: data - JSON, version - версия счета
var setBalance = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], 'version')
if v and tonumber(v) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

func (c *CacheService) GetBalance(ctx context.Context, user string, currency model.Currency) (balance model.Balance, err error) {
	val, err := c.client.HGet(ctx, balanceKey(user, currency), "data").Result()
	if err == redis.Nil {
		return balance, fmt.Errorf("balance %w", model.ErrNotFound)
	} else if err != nil {
		return balance, err
	}

	err = json.Unmarshal([]byte(val), &balance)
	return balance, err
}

// SetBalance - compare-and-set по версии: запоздавшее чтение не затирает
// значение, записанное после более нового коммита
func (c *CacheService) SetBalance(ctx context.Context, user string, currency model.Currency, balance model.Balance, version int64) (err error) {
	val, err := json.Marshal(balance)
	if err != nil {
		return err
	}
	return setBalance.Run(ctx, c.client, []string{balanceKey(user, currency)},
		version, val, c.ttl.Milliseconds()).Err()
}

func (c *CacheService) InvalidateBalance(ctx context.Context, user string, currency model.Currency) error {
	return c.client.Del(ctx, balanceKey(user, currency)).Err()
}

func (c *CacheService) Close() error {
	return c.client.Close()
}
