// Job - обработка выполненных заданий
// Опрос Kafka -> начисление реферальных наград приглашенному и цепочке пригласивших
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	cfg "github.com/hui2334387208/comic-sub000/internal/config"
	db "github.com/hui2334387208/comic-sub000/internal/db"
	kafka "github.com/hui2334387208/comic-sub000/internal/external/kafka"
	interf "github.com/hui2334387208/comic-sub000/internal/interfaces"
	model "github.com/hui2334387208/comic-sub000/internal/models"
	services "github.com/hui2334387208/comic-sub000/internal/services"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

func main() {
	// config
	conf, err := cfg.Load()
	if err != nil {
		panic(err)
	}

	// log
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// kafka
	reader, err := kafka.NewReader(conf.Kafka)
	if err != nil {
		logger.Fatal("kafka", zap.Error(err))
	}
	defer reader.Close()

	// database
	storage, err := db.NewLedgerDB(ctx, logger, conf.DB)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer storage.Close()

	// cache
	var cache interf.CacheStorage
	redis, err := db.NewCacheService(conf.Cache)
	if err != nil {
		logger.Warn("cache is disabled", zap.Error(err))
	} else {
		defer redis.Close()
		cache = redis
	}

	// campaigns
	var campaigns interf.CampaignProvider
	if conf.Campaign.MongoURI != "" {
		mgo, err := db.NewCampaignsDB(conf.Campaign)
		if err != nil {
			logger.Fatal("campaigns", zap.Error(err))
		}
		defer mgo.Close(context.Background())
		campaigns = mgo
	} else {
		campaigns = db.NewStaticCampaign(conf.Campaign)
	}

	// services
	ledger := services.NewLedgerService(logger, storage, cache, clockwork.NewRealClock())
	serv := services.NewReferralService(logger, ledger, campaigns)

	wg := &sync.WaitGroup{}
	semaphore := make(chan struct{}, conf.Workers)

	// пауза между неудачными чтениями, пока брокер недоступен
	wait := backoff.NewExponentialBackOff()
	wait.MaxInterval = 30 * time.Second

	for {
		task, err := nextTask(ctx, reader, wait, logger)
		if err != nil {
			break
		}

		semaphore <- struct{}{}
		wg.Add(1)
		go func(task kafka.TaskEvent) {
			defer wg.Done()
			defer func() { <-semaphore }()
			complete(ctx, logger, serv, task)
		}(task)
	}
	wg.Wait()
}

type taskReader interface {
	GetNewTask(ctx context.Context) (kafka.TaskEvent, error)
}

// nextTask читает до первого корректного события. Битые сообщения
// пропускаются сразу, ошибки брокера ждут по wait. Ошибка - только отмена ctx
func nextTask(ctx context.Context, reader taskReader, wait backoff.BackOff, logger *zap.Logger) (kafka.TaskEvent, error) {
	for {
		task, err := reader.GetNewTask(ctx)
		if ctx.Err() != nil {
			return kafka.TaskEvent{}, ctx.Err()
		}
		if err == nil {
			wait.Reset()
			return task, nil
		}
		if errors.Is(err, kafka.ErrMalformedTask) {
			// offset уже зафиксирован
			logger.Error("malformed task", zap.Error(err))
			continue
		}

		pause := wait.NextBackOff()
		logger.Error("read task", zap.Error(err), zap.Duration("retryIn", pause))
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return kafka.TaskEvent{}, ctx.Err()
		case <-timer.C:
		}
	}
}

var errRetry = errors.New("retry")

// complete повторяет выплату при внутренних ошибках; бизнес-отказы не повторяются
func complete(ctx context.Context, logger *zap.Logger, serv *services.ReferralService, task kafka.TaskEvent) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	res, err := backoff.Retry(ctx, func() (model.CompleteTaskResult, error) {
		res := serv.CompleteReferralTask(ctx, task.InviteeID, task.TaskType)
		if res.Retryable() {
			return res, errRetry
		}
		return res, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(5),
	)
	if err != nil {
		logger.Error("referral task is not processed",
			zap.String("invitee", task.InviteeID),
			zap.String("task", task.TaskType),
			zap.String("message", res.Message))
		return
	}
	if !res.Success {
		logger.Info("referral task skipped",
			zap.String("invitee", task.InviteeID),
			zap.String("task", task.TaskType),
			zap.String("code", string(res.Code)))
	}
}
