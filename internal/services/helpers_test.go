package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/honeynil/skillswap-timebank/internal/infrastructure/redis"
	"github.com/honeynil/skillswap-timebank/internal/ledger"
	"github.com/honeynil/skillswap-timebank/internal/models"
	"github.com/honeynil/skillswap-timebank/internal/repository"
	"github.com/honeynil/skillswap-timebank/internal/repository/memory"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testTopic = "skill-requests"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	db       *memory.DB
	store    repository.Store
	ledger   *ledger.Ledger
	workflow *workflowService
	accounts *accountService
	system   int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithCache(t, nil)
}

func newEnvWithCache(t *testing.T, client redis.RedisClient) *env {
	t.Helper()
	db := memory.NewDB()
	db.AddTags("go", "sql", "guitar")
	store := memory.NewStore(db)
	system := db.AddMember("system")
	l := ledger.New(store.Members, store.Transactions, system)

	wf := NewWorkflowService(store, l, client, time.Minute, testTopic)
	wf.now = func() time.Time { return testNow }
	return &env{
		db:       db,
		store:    store,
		ledger:   l,
		workflow: wf,
		accounts: NewAccountService(store, l, client, time.Minute),
		system:   system,
	}
}

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { c.Close() })
	return c, mr
}

// member registers a member and funds it through a top-up.
func (e *env) member(t *testing.T, name string, minutes int64, skills ...string) int64 {
	t.Helper()
	id := e.db.AddMember(name, skills...)
	if minutes > 0 {
		_, err := e.accounts.TopUp(context.Background(), id, minutes)
		require.NoError(t, err)
	}
	return id
}

func (e *env) balance(t *testing.T, id int64) models.Balance {
	t.Helper()
	m, err := e.store.Members.GetByID(context.Background(), id)
	require.NoError(t, err)
	return m.Balance()
}

func (e *env) draft(t *testing.T, owner, duration int64, tags ...string) *models.Request {
	t.Helper()
	req, err := e.workflow.CreateRequest(context.Background(), owner, models.NewRequest{
		Title:         "learn something",
		Duration:      duration,
		PreferredTime: testNow.Add(48 * time.Hour),
		Tags:          tags,
	})
	require.NoError(t, err)
	return req
}

func (e *env) published(t *testing.T, owner, duration int64, tags ...string) *models.Request {
	t.Helper()
	req := e.draft(t, owner, duration, tags...)
	req, err := e.workflow.Publish(context.Background(), req.ID, owner)
	require.NoError(t, err)
	return req
}

func (e *env) propose(t *testing.T, requestID, teacher int64) *models.Proposal {
	t.Helper()
	p, err := e.workflow.Propose(context.Background(), requestID, teacher, models.NewProposal{ScheduledTime: testNow.Add(24 * time.Hour)})
	require.NoError(t, err)
	return p
}

func (e *env) requestStatus(t *testing.T, id int64) models.RequestStatus {
	t.Helper()
	req, err := e.store.Requests.GetByID(context.Background(), id)
	require.NoError(t, err)
	return req.Status
}

func (e *env) proposalStatus(t *testing.T, id int64) models.ProposalStatus {
	t.Helper()
	p, err := e.store.Proposals.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.Status
}

func settlements(entries []models.TransactionEntry) []models.TransactionEntry {
	var out []models.TransactionEntry
	for _, e := range entries {
		if e.Kind == models.KindSettlement {
			out = append(out, e)
		}
	}
	return out
}

func repositoryFilter(owner int64, status models.RequestStatus) repository.RequestFilter {
	return repository.RequestFilter{OwnerID: owner, ViewerID: owner, Status: status, Limit: 1000}
}
