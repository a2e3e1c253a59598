package ledger

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	model "github.com/hui2334387208/comic-sub000/internal/models"
	services "github.com/hui2334387208/comic-sub000/internal/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type LedgerHandler struct {
	router   *mux.Router
	logger   *zap.Logger
	ledger   *services.LedgerService
	referral *services.ReferralService
	exchange *services.ExchangeService
	checkin  *services.CheckInService
}

type OperationRequest struct {
	Amount      int64        `json:"amount"`
	Type        model.TxType `json:"type,omitempty"`
	RelatedID   string       `json:"relatedId,omitempty"`
	RelatedType string       `json:"relatedType,omitempty"`
	Description string       `json:"description,omitempty"`
}

type RedeemRequest struct {
	Code string `json:"code"`
}

type CompleteRequest struct {
	TaskType string `json:"taskType"`
}

// Курс задается конфигурацией; rate в запросе отклоняется
type ExchangeRequest struct {
	Credits int64 `json:"credits"`
	Rate    int64 `json:"rate,omitempty"`
}

func NewHandler(logger *zap.Logger, ledger *services.LedgerService, referral *services.ReferralService,
	exchange *services.ExchangeService, checkin *services.CheckInService) *LedgerHandler {
	router := mux.NewRouter()
	handler := &LedgerHandler{router, logger, ledger, referral, exchange, checkin}

	router.Use(MiddlewareMetrics())
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.NewRoute().Subrouter()
	api.Use(MiddlewareIdentity())
	api.HandleFunc("/balance/{currency}", handler.BalanceHandler).Methods(http.MethodGet)
	api.HandleFunc("/balance/{currency}/check", handler.CheckBalanceHandler).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{currency}", handler.TransactionsHandler).Methods(http.MethodGet)
	api.HandleFunc("/credit/{currency}", handler.CreditHandler).Methods(http.MethodPost)
	api.HandleFunc("/debit/{currency}", handler.DebitHandler).Methods(http.MethodPost)
	api.HandleFunc("/adjust/{currency}", handler.AdjustHandler).Methods(http.MethodPost)
	api.HandleFunc("/referral/code", handler.ReferralCodeHandler).Methods(http.MethodGet)
	api.HandleFunc("/referral/redeem", handler.RedeemHandler).Methods(http.MethodPost)
	api.HandleFunc("/referral/complete", handler.CompleteHandler).Methods(http.MethodPost)
	api.HandleFunc("/exchange", handler.ExchangeHandler).Methods(http.MethodPost)
	api.HandleFunc("/exchange", handler.ExchangeHistoryHandler).Methods(http.MethodGet)
	api.HandleFunc("/checkin", handler.CheckInHandler).Methods(http.MethodPost)
	api.HandleFunc("/checkin", handler.CheckInStatusHandler).Methods(http.MethodGet)

	return handler
}

func (h *LedgerHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.router.ServeHTTP(w, req)
}

func (h *LedgerHandler) Log(msg string, service string, err error) {
	h.logger.Error(msg,
		zap.String("service", service),
		zap.Error(err),
	)
}

// Ответ со статусом по коду ошибки
func (h *LedgerHandler) write(w http.ResponseWriter, status model.Status, body any) {
	j, err := json.Marshal(body)
	if err != nil {
		h.Log("Marshal", "write", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status.Code.HTTPStatus())
	w.Write(j)
}

func (h *LedgerHandler) badRequest(w http.ResponseWriter, message string) {
	status := model.Status{Success: false, Message: message, Code: model.CodeInvalidRequest}
	h.write(w, status, status)
}

// decode читает JSON тела запроса
func (h *LedgerHandler) decode(w http.ResponseWriter, req *http.Request, service string, dst any) bool {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		h.Log("Get request body", service, err)
		h.badRequest(w, "Body is empty")
		return false
	}
	defer req.Body.Close()
	if err = json.Unmarshal(body, dst); err != nil {
		h.badRequest(w, "Body is not correct")
		return false
	}
	return true
}

func queryInt(req *http.Request, name string) (int64, bool) {
	value := req.URL.Query().Get(name)
	if value == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func currencyFrom(req *http.Request) model.Currency {
	return model.Currency(mux.Vars(req)["currency"])
}

// Баланс
func (h *LedgerHandler) BalanceHandler(w http.ResponseWriter, req *http.Request) {
	res := h.ledger.GetBalance(req.Context(), userFrom(req.Context()), currencyFrom(req))
	h.write(w, res.Status, res)
}

// Проверка достаточности средств
func (h *LedgerHandler) CheckBalanceHandler(w http.ResponseWriter, req *http.Request) {
	required, ok := queryInt(req, "required")
	if !ok {
		h.badRequest(w, "required must be a number")
		return
	}
	res := h.ledger.CheckBalance(req.Context(), userFrom(req.Context()), currencyFrom(req), required)
	h.write(w, res.Status, res)
}

// Журнал операций
func (h *LedgerHandler) TransactionsHandler(w http.ResponseWriter, req *http.Request) {
	limit, ok := queryInt(req, "limit")
	if !ok || limit < 0 {
		h.badRequest(w, "limit must be a positive number")
		return
	}
	res := h.ledger.Transactions(req.Context(), userFrom(req.Context()), currencyFrom(req), uint64(limit))
	h.write(w, res.Status, res)
}

func (h *LedgerHandler) operationRequest(w http.ResponseWriter, req *http.Request, service string) (services.OperationRequest, bool) {
	var body OperationRequest
	if !h.decode(w, req, service, &body) {
		return services.OperationRequest{}, false
	}
	return services.OperationRequest{
		UserID:      userFrom(req.Context()),
		Currency:    currencyFrom(req),
		Amount:      body.Amount,
		Type:        body.Type,
		RelatedID:   body.RelatedID,
		RelatedType: body.RelatedType,
		Description: body.Description,
		OperatorID:  operatorFrom(req.Context()),
	}, true
}

// Зачисление
func (h *LedgerHandler) CreditHandler(w http.ResponseWriter, req *http.Request) {
	op, ok := h.operationRequest(w, req, "CreditHandler")
	if !ok {
		return
	}
	res := h.ledger.Credit(req.Context(), op)
	h.write(w, res.Status, res)
}

// Списание
func (h *LedgerHandler) DebitHandler(w http.ResponseWriter, req *http.Request) {
	op, ok := h.operationRequest(w, req, "DebitHandler")
	if !ok {
		return
	}
	res := h.ledger.Debit(req.Context(), op)
	h.write(w, res.Status, res)
}

// Корректировка, нужен X-Operator-ID
func (h *LedgerHandler) AdjustHandler(w http.ResponseWriter, req *http.Request) {
	op, ok := h.operationRequest(w, req, "AdjustHandler")
	if !ok {
		return
	}
	res := h.ledger.Adjust(req.Context(), op)
	h.write(w, res.Status, res)
}

// Реферальный код пользователя
func (h *LedgerHandler) ReferralCodeHandler(w http.ResponseWriter, req *http.Request) {
	res := h.referral.GetReferralCode(req.Context(), userFrom(req.Context()))
	h.write(w, res.Status, res)
}

// Регистрация по коду
func (h *LedgerHandler) RedeemHandler(w http.ResponseWriter, req *http.Request) {
	var body RedeemRequest
	if !h.decode(w, req, "RedeemHandler", &body) {
		return
	}
	res := h.referral.CreateReferralRelation(req.Context(), userFrom(req.Context()), body.Code)
	h.write(w, res, res)
}

// Выполнение задания приглашенным
func (h *LedgerHandler) CompleteHandler(w http.ResponseWriter, req *http.Request) {
	var body CompleteRequest
	if !h.decode(w, req, "CompleteHandler", &body) {
		return
	}
	res := h.referral.CompleteReferralTask(req.Context(), userFrom(req.Context()), body.TaskType)
	h.write(w, res.Status, res)
}

// Обмен баллов на кредиты
func (h *LedgerHandler) ExchangeHandler(w http.ResponseWriter, req *http.Request) {
	var body ExchangeRequest
	if !h.decode(w, req, "ExchangeHandler", &body) {
		return
	}
	if body.Rate != 0 {
		h.badRequest(w, "exchange rate is fixed")
		return
	}
	res := h.exchange.ExchangePointsForCredits(req.Context(), userFrom(req.Context()), body.Credits, 0)
	h.write(w, res.Status, res)
}

func (h *LedgerHandler) ExchangeHistoryHandler(w http.ResponseWriter, req *http.Request) {
	limit, ok := queryInt(req, "limit")
	if !ok || limit < 0 {
		h.badRequest(w, "limit must be a positive number")
		return
	}
	res := h.exchange.History(req.Context(), userFrom(req.Context()), uint64(limit))
	h.write(w, res.Status, res)
}

// Ежедневная отметка
func (h *LedgerHandler) CheckInHandler(w http.ResponseWriter, req *http.Request) {
	res := h.checkin.DailyCheckIn(req.Context(), userFrom(req.Context()))
	h.write(w, res.Status, res)
}

func (h *LedgerHandler) CheckInStatusHandler(w http.ResponseWriter, req *http.Request) {
	res := h.checkin.CheckInStatus(req.Context(), userFrom(req.Context()))
	h.write(w, res.Status, res)
}
