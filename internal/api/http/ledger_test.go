package ledger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cfg "github.com/hui2334387208/comic-sub000/internal/config"
	db "github.com/hui2334387208/comic-sub000/internal/db"
	model "github.com/hui2334387208/comic-sub000/internal/models"
	services "github.com/hui2334387208/comic-sub000/internal/services"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHandler(t *testing.T) *LedgerHandler {
	logger := zap.NewNop()
	store, err := db.NewSQLiteDB(logger, filepath.Join(t.TempDir(), "ledger.db"), 5)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	campaigns := db.NewStaticCampaign(cfg.Campaign{
		ID:            "default",
		InviterReward: 100,
		InviteeReward: 50,
		RequiredTask:  model.TaskFirstCreation,
	})
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	ledger := services.NewLedgerService(logger, store, nil, clock)
	return NewHandler(logger, ledger,
		services.NewReferralService(logger, ledger, campaigns),
		services.NewExchangeService(logger, ledger, 100),
		services.NewCheckInService(logger, ledger, time.UTC))
}

func call(t *testing.T, h http.Handler, method string, url string, user string, body string, out any) int {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	if strings.HasPrefix(url, "/adjust") {
		req.Header.Set(HeaderOperatorID, "admin")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestHandlerIdentity(t *testing.T) {
	h := newTestHandler(t)

	var res model.Status
	code := call(t, h, http.MethodGet, "/balance/credits", "", "", &res)
	require.Equal(t, http.StatusUnauthorized, code)
	require.False(t, res.Success)

	code = call(t, h, http.MethodGet, "/metrics", "", "", nil)
	require.Equal(t, http.StatusOK, code)
}

func TestHandlerLedger(t *testing.T) {
	h := newTestHandler(t)

	var op model.OperationResult
	code := call(t, h, http.MethodPost, "/adjust/credits", "u1", `{"amount":100,"description":"welcome"}`, &op)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 100, op.Balance)

	code = call(t, h, http.MethodPost, "/debit/credits", "u1", `{"amount":30,"relatedId":"job-1","relatedType":"generation"}`, &op)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 70, op.Balance)

	code = call(t, h, http.MethodPost, "/debit/credits", "u1", `{"amount":300}`, &op)
	require.Equal(t, http.StatusPaymentRequired, code)
	require.Equal(t, model.CodeInsufficientBalance, op.Code)

	code = call(t, h, http.MethodPost, "/credit/gold", "u1", `{"amount":1}`, &op)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, model.CodeInvalidCurrency, op.Code)

	code = call(t, h, http.MethodPost, "/credit/credits", "u1", `not json`, &op)
	require.Equal(t, http.StatusBadRequest, code)

	var bal model.BalanceResult
	code = call(t, h, http.MethodGet, "/balance/credits", "u1", "", &bal)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, model.Balance{Balance: 70, TotalIn: 100, TotalOut: 30}, bal.Balance)

	var check model.CheckBalanceResult
	code = call(t, h, http.MethodGet, "/balance/credits/check?required=100", "u1", "", &check)
	require.Equal(t, http.StatusOK, code)
	require.False(t, check.Sufficient)
	require.EqualValues(t, 30, check.Shortage)

	var list model.TransactionsResult
	code = call(t, h, http.MethodGet, "/transactions/credits?limit=1", "u1", "", &list)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list.Transactions, 1)
	require.Equal(t, "job-1", list.Transactions[0].RelatedID)
}

func TestHandlerReferralAndActivity(t *testing.T) {
	h := newTestHandler(t)

	var ref model.ReferralCodeResult
	code := call(t, h, http.MethodGet, "/referral/code", "a", "", &ref)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, ref.Referral.Code)

	var st model.Status
	code = call(t, h, http.MethodPost, "/referral/redeem", "b", `{"code":"`+ref.Referral.Code+`"}`, &st)
	require.Equal(t, http.StatusOK, code, st.Message)

	code = call(t, h, http.MethodPost, "/referral/redeem", "b", `{"code":"`+ref.Referral.Code+`"}`, &st)
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, model.CodeDuplicateReferral, st.Code)

	var done model.CompleteTaskResult
	code = call(t, h, http.MethodPost, "/referral/complete", "b", `{"taskType":"first_creation"}`, &done)
	require.Equal(t, http.StatusOK, code, done.Message)
	require.EqualValues(t, 100, done.InviterReward)
	require.EqualValues(t, 50, done.InviteeReward)

	var checkin model.CheckInResult
	code = call(t, h, http.MethodPost, "/checkin", "a", "", &checkin)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 10, checkin.Points)
	require.EqualValues(t, 110, checkin.Balance)

	code = call(t, h, http.MethodPost, "/checkin", "a", "", &checkin)
	require.Equal(t, http.StatusConflict, code)

	var status model.CheckInStatusResult
	code = call(t, h, http.MethodGet, "/checkin", "a", "", &status)
	require.Equal(t, http.StatusOK, code)
	require.True(t, status.CheckedInToday)

	// курс из запроса не принимается
	var rejected model.ExchangeResult
	code = call(t, h, http.MethodPost, "/exchange", "a", `{"credits":1,"rate":1}`, &rejected)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, model.CodeInvalidRequest, rejected.Code)

	var ex model.ExchangeResult
	code = call(t, h, http.MethodPost, "/exchange", "a", `{"credits":2}`, &ex)
	require.Equal(t, http.StatusPaymentRequired, code)
	require.Equal(t, model.CodeInsufficientPoints, ex.Code)

	code = call(t, h, http.MethodPost, "/exchange", "a", `{"credits":1}`, &ex)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 10, ex.PointBalance)
	require.EqualValues(t, 1, ex.CreditBalance)

	var history model.ExchangeHistoryResult
	code = call(t, h, http.MethodGet, "/exchange", "a", "", &history)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, history.Exchanges, 1)
}
