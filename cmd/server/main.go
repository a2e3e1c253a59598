// HTTP API балансов, рефералов и активностей + gRPC health.
// Фоновая задача: истечение неоплаченных реферальных связей
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	health "github.com/hui2334387208/comic-sub000/internal/api/grpc"
	api "github.com/hui2334387208/comic-sub000/internal/api/http"
	cfg "github.com/hui2334387208/comic-sub000/internal/config"
	db "github.com/hui2334387208/comic-sub000/internal/db"
	interf "github.com/hui2334387208/comic-sub000/internal/interfaces"
	services "github.com/hui2334387208/comic-sub000/internal/services"
	tracing "github.com/hui2334387208/comic-sub000/observability/otel"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func main() {
	// config
	conf, err := cfg.Load()
	if err != nil {
		panic(err)
	}
	loc, err := conf.Location()
	if err != nil {
		panic(err)
	}

	// log
	var logger *zap.Logger
	if conf.Production() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// tracing
	shutdown, err := tracing.InitTracer(ctx, logger, conf.OTLPEndpoint, "ledger")
	if err != nil {
		logger.Fatal("init tracer", zap.Error(err))
	}
	defer shutdown()

	// database
	storage, err := db.NewLedgerDB(ctx, logger, conf.DB)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer storage.Close()

	// cache, без кэша балансы читаются из базы
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
	clock := clockwork.NewRealClock()
	ledger := services.NewLedgerService(logger, storage, cache, clock)
	referral := services.NewReferralService(logger, ledger, campaigns)
	exchange := services.NewExchangeService(logger, ledger, conf.ExchangeRate)
	checkin := services.NewCheckInService(logger, ledger, loc)

	// http
	handler := api.NewHandler(logger, ledger, referral, exchange, checkin)
	srv := &http.Server{
		Handler:      otelhttp.NewHandler(handler, "ledger"),
		Addr:         ":" + conf.HTTPPort,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	// grpc health
	lis, err := net.Listen("tcp", ":"+conf.GRPCPort)
	if err != nil {
		logger.Fatal("grpc listen", zap.Error(err))
	}
	grpcServer := grpc.NewServer()
	probe := health.NewHealthServer(logger, storage)
	probe.Register(grpcServer)

	// expire referrals
	sched, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}
	_, err = sched.NewJob(
		gocron.DurationJob(conf.ExpireEvery),
		gocron.NewTask(func() {
			n, err := referral.ExpireRelations(ctx)
			if err != nil {
				logger.Error("expire referrals", zap.Error(err))
				return
			}
			if n > 0 {
				logger.Info("referrals expired", zap.Int64("count", n))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		logger.Fatal("scheduler job", zap.Error(err))
	}
	sched.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc server", zap.String("addr", lis.Addr().String()))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		probe.Watch(gctx, 10*time.Second)
		return nil
	})

	// shutdown
	g.Go(func() error {
		<-gctx.Done()
		timeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sched.Shutdown(); err != nil {
			logger.Error("scheduler shutdown", zap.Error(err))
		}
		grpcServer.GracefulStop()
		return srv.Shutdown(timeout)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
	}
}
