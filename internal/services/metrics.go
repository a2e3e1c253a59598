package ledger

import (
	model "github.com/hui2334387208/comic-sub000/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// метрики

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Кол-во операций сервиса",
		},
		[]string{"operation", "code"},
	)

	rewardsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_referral_rewards_total",
			Help: "Сумма выплаченных реферальных наград",
		},
		[]string{"role", "currency"},
	)

	relationsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_referral_relations_expired_total",
			Help: "Кол-во истекших реферальных связей",
		},
	)
)

func observeOperation(op string, st model.Status) {
	code := string(st.Code)
	if st.Success {
		code = "OK"
	}
	operationsTotal.With(prometheus.Labels{"operation": op, "code": code}).Inc()
}
