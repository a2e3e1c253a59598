// Job - истечение неоплаченных реферальных связей
// Связи с наступившим сроком переводятся в expired, выплаченные не трогаются
package main

import (
	"context"

	cfg "github.com/hui2334387208/comic-sub000/internal/config"
	db "github.com/hui2334387208/comic-sub000/internal/db"
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

	// database
	storage, err := db.NewLedgerDB(context.Background(), logger, conf.DB)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer storage.Close()

	ledger := services.NewLedgerService(logger, storage, nil, clockwork.NewRealClock())
	serv := services.NewReferralService(logger, ledger, db.NewStaticCampaign(conf.Campaign))
	n, err := serv.ExpireRelations(context.Background())
	if err != nil {
		logger.Error(err.Error())
		return
	}
	logger.Info("Job referral expiry is finished", zap.Int64("expired", n))
}
