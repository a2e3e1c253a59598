// Job - обработка списаний кредитов за генерацию
// RabbitMQ charges -> списание -> подтверждение в charge-confirms
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	cfg "github.com/hui2334387208/comic-sub000/internal/config"
	db "github.com/hui2334387208/comic-sub000/internal/db"
	rabbit "github.com/hui2334387208/comic-sub000/internal/external/rabbitmq"
	interf "github.com/hui2334387208/comic-sub000/internal/interfaces"
	model "github.com/hui2334387208/comic-sub000/internal/models"
	services "github.com/hui2334387208/comic-sub000/internal/services"
	"github.com/jonboulle/clockwork"
	amqp "github.com/rabbitmq/amqp091-go"
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

	// rabbitmq
	reader, err := rabbit.NewRabbitConsumer(conf.Rabbit, conf.Workers)
	if err != nil {
		logger.Fatal("rabbitmq", zap.Error(err))
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

	// services
	serv := services.NewLedgerService(logger, storage, cache, clockwork.NewRealClock())

	// workers
	wg := &sync.WaitGroup{}
	wg.Add(conf.Workers)
	for range conf.Workers {
		go worker(ctx, serv, wg, logger, reader)
	}
	wg.Wait()
}

// worker for rabbitmq messages
func worker(ctx context.Context, serv *services.LedgerService, wg *sync.WaitGroup, logger *zap.Logger, reader *rabbit.RabbitConsumer) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-reader.Msg:
			if !ok {
				return
			}
			process(ctx, serv, logger, reader, msg)
		}
	}
}

func process(ctx context.Context, serv *services.LedgerService, logger *zap.Logger, reader *rabbit.RabbitConsumer, msg amqp.Delivery) {
	req, err := services.ParseCharge(msg.Body)
	if err != nil {
		// без chargeId подтвердить некому
		logger.Error("malformed charge", zap.Error(err), zap.ByteString("body", msg.Body))
		_ = msg.Reject(false)
		return
	}

	res := serv.Charge(ctx, req)
	if res.Retryable() {
		// вернуть в очередь, списание идемпотентно по chargeId
		logger.Warn("charge requeued",
			zap.String("charge", req.ChargeID),
			zap.String("message", res.Message))
		_ = msg.Nack(false, true)
		return
	}

	err = reader.Processed(ctx, rabbit.ChargeConfirm{
		ChargeID: req.ChargeID,
		Success:  res.Success,
		Code:     string(res.Code),
		Message:  res.Message,
		Balance:  res.Balance,
	})
	if err != nil {
		logger.Error("charge confirm", zap.String("charge", req.ChargeID), zap.Error(err))
		_ = msg.Nack(false, true)
		return
	}
	if !res.Success && res.Code != model.CodeInsufficientBalance {
		logger.Warn("charge rejected",
			zap.String("charge", req.ChargeID),
			zap.String("code", string(res.Code)))
	}
	_ = msg.Ack(false)
}
