package ledger

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	interf "github.com/hui2334387208/comic-sub000/internal/interfaces"
	model "github.com/hui2334387208/comic-sub000/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func testCampaign() model.CampaignConfig {
	return model.CampaignConfig{
		ID:            "spring",
		Name:          "Spring referrals",
		Active:        true,
		InviterReward: 100,
		InviteeReward: 50,
		RequiredTask:  model.TaskFirstCreation,
		StartsAt:      testStart.Add(-24 * time.Hour),
	}
}

func newTestReferrals(t *testing.T, campaign model.CampaignConfig, clock clockwork.Clock) (*ReferralService, *LedgerService) {
	return newTestReferralsOn(t, newTestStore(t), campaign, clock)
}

func newTestReferralsOn(t *testing.T, store interf.Storage, campaign model.CampaignConfig, clock clockwork.Clock) (*ReferralService, *LedgerService) {
	cont := gomock.NewController(t)
	campaigns := NewMockCampaignProvider(cont)
	campaigns.EXPECT().Active(gomock.Any()).Return(campaign, nil).AnyTimes()

	ledger := NewLedgerService(zap.NewNop(), store, nil, clock)
	return NewReferralService(zap.NewNop(), ledger, campaigns), ledger
}

// invite - inviter выдает код, invitee регистрируется по нему
func invite(t *testing.T, s *ReferralService, inviter string, invitee string) {
	code := s.GetReferralCode(context.Background(), inviter)
	require.True(t, code.Success, code.Message)
	res := s.CreateReferralRelation(context.Background(), invitee, code.Referral.Code)
	require.True(t, res.Success, res.Message)
}

func points(t *testing.T, l *LedgerService, user string) int64 {
	res := l.GetBalance(context.Background(), user, model.Points)
	require.True(t, res.Success, res.Message)
	return res.Balance.Balance
}

func TestGetReferralCode(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestReferrals(t, testCampaign(), clockwork.NewFakeClockAt(testStart))

	first := s.GetReferralCode(ctx, "a")
	require.True(t, first.Success)
	require.True(t, strings.HasPrefix(first.Referral.Code, "REF-"))
	require.Len(t, first.Referral.Code, 12)

	second := s.GetReferralCode(ctx, "a")
	require.Equal(t, first.Referral.Code, second.Referral.Code)

	other := s.GetReferralCode(ctx, "b")
	require.NotEqual(t, first.Referral.Code, other.Referral.Code)
}

func TestCreateReferralRelationErrors(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestReferrals(t, testCampaign(), clockwork.NewFakeClockAt(testStart))

	code := s.GetReferralCode(ctx, "a").Referral.Code
	invite(t, s, "a", "b")

	tests := []struct {
		name    string
		invitee string
		code    string
		err     model.Code
	}{
		{"unknown code", "c", "REF-00000000", model.CodeReferralCodeNotFound},
		{"self referral", "a", code, model.CodeDuplicateReferral},
		{"already referred", "b", code, model.CodeDuplicateReferral},
		{"no invitee", "", code, model.CodeInvalidRequest},
	}
	for _, ts := range tests {
		res := s.CreateReferralRelation(ctx, ts.invitee, ts.code)
		require.False(t, res.Success, ts.name)
		require.Equal(t, ts.err, res.Code, ts.name)
	}

	// код нечувствителен к регистру и пробелам
	res := s.CreateReferralRelation(ctx, "c", "  "+strings.ToLower(code)+" ")
	require.True(t, res.Success, res.Message)

	count := s.GetReferralCode(ctx, "a")
	require.EqualValues(t, 2, count.Referral.TotalInvites)
}

func TestCreateReferralRelationCycle(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestReferrals(t, testCampaign(), clockwork.NewFakeClockAt(testStart))

	invite(t, s, "a", "b")
	invite(t, s, "b", "c")

	// a выше c в цепочке
	code := s.GetReferralCode(ctx, "c").Referral.Code
	res := s.CreateReferralRelation(ctx, "a", code)
	require.False(t, res.Success)
	require.Equal(t, model.CodeDuplicateReferral, res.Code)
}

func TestCreateReferralRelationCampaign(t *testing.T) {
	ctx := context.Background()

	inactive := testCampaign()
	inactive.Active = false
	s, _ := newTestReferrals(t, inactive, clockwork.NewFakeClockAt(testStart))
	code := s.GetReferralCode(ctx, "a").Referral.Code
	res := s.CreateReferralRelation(ctx, "b", code)
	require.Equal(t, model.CodeCampaignInactive, res.Code)

	ended := testCampaign()
	ended.EndsAt = testStart
	s, _ = newTestReferrals(t, ended, clockwork.NewFakeClockAt(testStart))
	code = s.GetReferralCode(ctx, "a").Referral.Code
	res = s.CreateReferralRelation(ctx, "b", code)
	require.Equal(t, model.CodeCampaignInactive, res.Code)

	limited := testCampaign()
	limited.MaxInvites = 1
	s, _ = newTestReferrals(t, limited, clockwork.NewFakeClockAt(testStart))
	invite(t, s, "a", "b")
	code = s.GetReferralCode(ctx, "a").Referral.Code
	res = s.CreateReferralRelation(ctx, "c", code)
	require.Equal(t, model.CodeInviteLimitReached, res.Code)
}

func TestInviteLevel(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestReferrals(t, testCampaign(), clockwork.NewFakeClockAt(testStart))

	invite(t, s, "a", "b")
	invite(t, s, "b", "c")
	invite(t, s, "c", "d")
	invite(t, s, "d", "e")

	for user, expected := range map[string]int{"a": 0, "b": 1, "c": 2, "d": 3, "e": 3, "nobody": 0} {
		level, err := s.InviteLevel(ctx, user)
		require.NoError(t, err)
		require.Equal(t, expected, level, user)
	}
}

// Цепочка A -> B -> C -> D: затухание наград вверх по цепочке
func TestCompleteReferralTaskDecay(t *testing.T) {
	ctx := context.Background()
	s, l := newTestReferrals(t, testCampaign(), clockwork.NewFakeClockAt(testStart))

	invite(t, s, "a", "b")
	invite(t, s, "b", "c")
	invite(t, s, "c", "d")

	res := s.CompleteReferralTask(ctx, "b", model.TaskFirstCreation)
	require.True(t, res.Success, res.Message)
	require.EqualValues(t, 100, res.InviterReward)
	require.EqualValues(t, 50, res.InviteeReward)

	res = s.CompleteReferralTask(ctx, "c", model.TaskFirstCreation)
	require.True(t, res.Success, res.Message)
	require.EqualValues(t, 100, res.InviterReward)
	require.EqualValues(t, 50, res.InviteeReward)

	res = s.CompleteReferralTask(ctx, "d", model.TaskFirstCreation)
	require.True(t, res.Success, res.Message)
	require.EqualValues(t, 100, res.InviterReward)
	require.EqualValues(t, 50, res.InviteeReward)

	// a: 100 за b, 50 за c, 0 за d
	require.EqualValues(t, 150, points(t, l, "a"))
	// b: 50 свои, 100 за c, 50 за d
	require.EqualValues(t, 200, points(t, l, "b"))
	require.EqualValues(t, 150, points(t, l, "c"))
	require.EqualValues(t, 50, points(t, l, "d"))

	code := s.GetReferralCode(ctx, "a")
	require.EqualValues(t, 1, code.Referral.TotalInvites)
	require.EqualValues(t, 1, code.Referral.SuccessfulInvites)
	require.EqualValues(t, 150, code.Referral.TotalRewardsIssued)

	for _, user := range []string{"a", "b", "c", "d"} {
		requireChain(t, l, user, model.Points)
	}
}

func TestCompleteReferralTaskIdempotent(t *testing.T) {
	ctx := context.Background()
	s, l := newTestReferrals(t, testCampaign(), clockwork.NewFakeClockAt(testStart))
	invite(t, s, "a", "b")

	res := s.CompleteReferralTask(ctx, "b", model.TaskFirstCreation)
	require.True(t, res.Success, res.Message)

	res = s.CompleteReferralTask(ctx, "b", model.TaskFirstCreation)
	require.True(t, res.Success)
	require.EqualValues(t, 0, res.InviterReward)
	require.EqualValues(t, 0, res.InviteeReward)

	require.EqualValues(t, 100, points(t, l, "a"))
	require.EqualValues(t, 50, points(t, l, "b"))
	require.Len(t, l.Transactions(ctx, "a", model.Points, 0).Transactions, 1)
}

func TestCompleteReferralTaskConcurrent(t *testing.T) {
	ctx := context.Background()
	s, l := newTestReferrals(t, testCampaign(), clockwork.NewFakeClockAt(testStart))
	invite(t, s, "a", "b")

	var wg sync.WaitGroup
	var mu sync.Mutex
	var inviter, invitee int64
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := s.CompleteReferralTask(ctx, "b", model.TaskFirstCreation)
			mu.Lock()
			inviter += res.InviterReward
			invitee += res.InviteeReward
			mu.Unlock()
		}()
	}
	wg.Wait()

	// каждая сторона получила награду ровно один раз
	require.EqualValues(t, 100, inviter)
	require.EqualValues(t, 50, invitee)
	require.EqualValues(t, 100, points(t, l, "a"))
	require.EqualValues(t, 50, points(t, l, "b"))
	require.Len(t, l.Transactions(ctx, "a", model.Points, 0).Transactions, 1)
	require.Len(t, l.Transactions(ctx, "b", model.Points, 0).Transactions, 1)

	code := s.GetReferralCode(ctx, "a")
	require.EqualValues(t, 1, code.Referral.SuccessfulInvites)
	require.EqualValues(t, 100, code.Referral.TotalRewardsIssued)
}

// Выплата пригласившему не прошла: повтор доплачивает только ему
func TestCompleteReferralTaskPartialRetry(t *testing.T) {
	ctx := context.Background()
	store := &failStore{Storage: newTestStore(t), err: errors.New("connection reset")}
	s, l := newTestReferralsOn(t, store, testCampaign(), clockwork.NewFakeClockAt(testStart))
	invite(t, s, "a", "b")

	// чтение связи, выплата приглашенному, выплата пригласившему
	store.failAt = store.calls + 3
	res := s.CompleteReferralTask(ctx, "b", model.TaskFirstCreation)
	require.False(t, res.Success)
	require.Equal(t, model.CodeInternal, res.Code)
	require.EqualValues(t, 50, res.InviteeReward)
	require.EqualValues(t, 0, res.InviterReward)
	require.EqualValues(t, 0, points(t, l, "a"))
	require.EqualValues(t, 50, points(t, l, "b"))

	res = s.CompleteReferralTask(ctx, "b", model.TaskFirstCreation)
	require.True(t, res.Success, res.Message)
	require.EqualValues(t, 100, res.InviterReward)
	require.EqualValues(t, 0, res.InviteeReward)

	res = s.CompleteReferralTask(ctx, "b", model.TaskFirstCreation)
	require.True(t, res.Success)
	require.EqualValues(t, 0, res.InviterReward)
	require.EqualValues(t, 0, res.InviteeReward)

	require.EqualValues(t, 100, points(t, l, "a"))
	require.EqualValues(t, 50, points(t, l, "b"))
	require.Len(t, l.Transactions(ctx, "a", model.Points, 0).Transactions, 1)
	require.Len(t, l.Transactions(ctx, "b", model.Points, 0).Transactions, 1)
}

// Переполнение баланса пригласившего: приглашенный получает награду,
// связь остается незавершенной
func TestCompleteReferralTaskInviterOverflow(t *testing.T) {
	ctx := context.Background()
	s, l := newTestReferrals(t, testCampaign(), clockwork.NewFakeClockAt(testStart))
	invite(t, s, "a", "b")
	credit(t, l, "a", model.Points, math.MaxInt64-50)

	res := s.CompleteReferralTask(ctx, "b", model.TaskFirstCreation)
	require.Equal(t, model.CodeInvalidAmount, res.Code)
	require.EqualValues(t, 50, res.InviteeReward)
	require.EqualValues(t, math.MaxInt64-50, points(t, l, "a"))

	// итоги счета тоже не переполняются
	adj := l.Adjust(ctx, OperationRequest{UserID: "a", Currency: model.Points, Amount: -(math.MaxInt64 - 50), OperatorID: "admin"})
	require.True(t, adj.Success, adj.Message)
	res = s.CompleteReferralTask(ctx, "b", model.TaskFirstCreation)
	require.Equal(t, model.CodeInvalidAmount, res.Code)
	require.EqualValues(t, 0, points(t, l, "a"))
	requireChain(t, l, "a", model.Points)
}

func TestCompleteReferralTaskErrors(t *testing.T) {
	ctx := context.Background()
	s, l := newTestReferrals(t, testCampaign(), clockwork.NewFakeClockAt(testStart))
	invite(t, s, "a", "b")

	res := s.CompleteReferralTask(ctx, "b", model.TaskSignup)
	require.False(t, res.Success)
	require.Equal(t, model.CodeCampaignMismatch, res.Code)
	require.EqualValues(t, 0, points(t, l, "a"))
	require.EqualValues(t, 0, points(t, l, "b"))

	res = s.CompleteReferralTask(ctx, "x", model.TaskFirstCreation)
	require.False(t, res.Success)
	require.Equal(t, model.CodeRelationNotFound, res.Code)
}

func TestReferralExpiry(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(testStart)
	campaign := testCampaign()
	campaign.RelationTTL = 24 * time.Hour
	s, l := newTestReferrals(t, campaign, clock)

	invite(t, s, "a", "b")
	invite(t, s, "a", "c")
	invite(t, s, "a", "d")

	// c получил награду до истечения срока
	res := s.CompleteReferralTask(ctx, "c", model.TaskFirstCreation)
	require.True(t, res.Success, res.Message)

	clock.Advance(25 * time.Hour)

	// d истекает при попытке выплаты, без обхода
	res = s.CompleteReferralTask(ctx, "d", model.TaskFirstCreation)
	require.False(t, res.Success)
	require.Equal(t, model.CodeRelationExpired, res.Code)

	count, err := s.ExpireRelations(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	res = s.CompleteReferralTask(ctx, "b", model.TaskFirstCreation)
	require.False(t, res.Success)
	require.Equal(t, model.CodeRelationExpired, res.Code)

	// выплаченная связь не истекает
	res = s.CompleteReferralTask(ctx, "c", model.TaskFirstCreation)
	require.True(t, res.Success)

	count, err = s.ExpireRelations(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, count)

	require.EqualValues(t, 100, points(t, l, "a"))
	require.EqualValues(t, 0, points(t, l, "b"))
}

// Конфликт версий повторяет транзакцию истечения, счетчик растет один раз
func TestExpireRelationCountedOnce(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(testStart)
	campaign := testCampaign()
	campaign.RelationTTL = time.Hour
	s, _ := newTestReferralsOn(t, conflictStore{newTestStore(t)}, campaign, clock)

	invite(t, s, "a", "b")
	clock.Advance(2 * time.Hour)

	before := testutil.ToFloat64(relationsExpired)
	res := s.CompleteReferralTask(ctx, "b", model.TaskFirstCreation)
	require.Equal(t, model.CodeRelationExpired, res.Code)
	require.Equal(t, before+1, testutil.ToFloat64(relationsExpired))
}

// Глубина ограничена тремя шагами вверх: приглашенный на любой глубине
// получает свою награду, выше прямого пригласившего платится по затуханию
func TestCompleteReferralTaskDeepChain(t *testing.T) {
	ctx := context.Background()
	s, l := newTestReferrals(t, testCampaign(), clockwork.NewFakeClockAt(testStart))
	invite(t, s, "a", "b")
	invite(t, s, "b", "c")
	invite(t, s, "c", "d")
	invite(t, s, "d", "e")

	res := s.CompleteReferralTask(ctx, "e", model.TaskFirstCreation)
	require.True(t, res.Success, res.Message)

	for user, expected := range map[string]int64{"a": 0, "b": 0, "c": 50, "d": 100, "e": 50} {
		require.Equal(t, expected, points(t, l, user), user)
	}
}

func TestPayees(t *testing.T) {
	rel := model.ReferralRelation{InviteeID: "d", InviterReward: 100, InviteeReward: 50}
	list := payees(rel, []string{"c", "b", "a"})

	require.Equal(t, []payee{
		{user: "d", role: model.RoleInvitee, level: 0, amount: 50},
		{user: "c", role: model.RoleInviter, level: 0, amount: 100},
		{user: "b", role: model.RoleUpline, level: 1, amount: 50},
		{user: "a", role: model.RoleUpline, level: 2, amount: 0},
	}, list)
}
