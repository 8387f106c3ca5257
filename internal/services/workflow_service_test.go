package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/honeynil/skillswap-timebank/internal/models"
	"github.com/honeynil/skillswap-timebank/internal/repository"
	pkgerrors "github.com/honeynil/skillswap-timebank/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflow_Scenarios(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.member(t, "student", 10)
	teacher := e.member(t, "teacher", 0)

	// A: publishing holds the whole duration.
	req := e.published(t, m, 10)
	assert.Equal(t, models.RequestPending, req.Status)
	assert.Equal(t, models.Balance{MemberID: m, Available: 0, Held: 10}, e.balance(t, m))

	// B: accepting leaves the ledger alone.
	p := e.propose(t, req.ID, teacher)
	accepted, err := e.workflow.AcceptProposal(ctx, p.ID, m)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalAccepted, accepted.Status)
	assert.Equal(t, models.RequestScheduled, e.requestStatus(t, req.ID))
	assert.Equal(t, models.Balance{MemberID: m, Available: 0, Held: 10}, e.balance(t, m))

	// C: a partial session pays the elapsed minutes and releases the rest.
	before := len(settlements(e.db.Entries()))
	out, err := e.workflow.Settle(ctx, req.ID, m, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), out.Entry.Amount)
	assert.Equal(t, int64(3), out.Released)
	assert.Equal(t, models.Balance{MemberID: m, Available: 3, Held: 0}, e.balance(t, m))
	assert.Equal(t, models.Balance{MemberID: teacher, Available: 7, Held: 0}, e.balance(t, teacher))
	assert.Len(t, settlements(e.db.Entries()), before+1)
	assert.Equal(t, models.RequestCompleted, e.requestStatus(t, req.ID))
	assert.Equal(t, models.ProposalCompleted, e.proposalStatus(t, p.ID))
}

func TestWorkflow_CancelPendingReleasesHold(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.member(t, "student", 10)
	teacher := e.member(t, "teacher", 0)
	req := e.published(t, m, 10)
	p := e.propose(t, req.ID, teacher)

	cancelled, err := e.workflow.CancelRequest(ctx, req.ID, m)
	require.NoError(t, err)
	assert.Equal(t, models.RequestCancelled, cancelled.Status)
	assert.Equal(t, models.Balance{MemberID: m, Available: 10, Held: 0}, e.balance(t, m))
	assert.Equal(t, models.ProposalCancelled, e.proposalStatus(t, p.ID))
}

func TestWorkflow_CancelDraftTouchesNoLedger(t *testing.T) {
	e := newEnv(t)
	m := e.member(t, "student", 10)
	req := e.draft(t, m, 10)
	entries := len(e.db.Entries())

	_, err := e.workflow.CancelRequest(context.Background(), req.ID, m)
	require.NoError(t, err)
	assert.Equal(t, models.Balance{MemberID: m, Available: 10}, e.balance(t, m))
	assert.Len(t, e.db.Entries(), entries)
}

func TestWorkflow_SecondAcceptFails(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.member(t, "student", 30)
	t1 := e.member(t, "t1", 0)
	t2 := e.member(t, "t2", 0)
	req := e.published(t, m, 10)
	p1 := e.propose(t, req.ID, t1)
	p2 := e.propose(t, req.ID, t2)

	_, err := e.workflow.AcceptProposal(ctx, p1.ID, m)
	require.NoError(t, err)
	_, err = e.workflow.AcceptProposal(ctx, p2.ID, m)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)

	assert.Equal(t, models.ProposalAccepted, e.proposalStatus(t, p1.ID))
	assert.Equal(t, models.ProposalRejected, e.proposalStatus(t, p2.ID))
}

func TestWorkflow_ConcurrentAcceptExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.member(t, "student", 60)
	req := e.published(t, m, 60)

	const n = 8
	proposals := make([]*models.Proposal, n)
	for i := range proposals {
		teacher := e.member(t, "teacher"+string(rune('a'+i)), 0)
		proposals[i] = e.propose(t, req.ID, teacher)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, p := range proposals {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := e.workflow.AcceptProposal(ctx, id, m)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
		}(p.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	accepted := 0
	for _, p := range proposals {
		switch e.proposalStatus(t, p.ID) {
		case models.ProposalAccepted:
			accepted++
		case models.ProposalRejected:
		default:
			t.Fatalf("proposal %d left in unexpected state", p.ID)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, models.Balance{MemberID: m, Held: 60}, e.balance(t, m))
}

func TestWorkflow_ConcurrentSettleOnlyOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.member(t, "student", 30)
	teacher := e.member(t, "teacher", 0)
	req := e.published(t, m, 30)
	p := e.propose(t, req.ID, teacher)
	_, err := e.workflow.AcceptProposal(ctx, p.ID, m)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.workflow.Settle(ctx, req.ID, teacher, 30)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, int64(30), e.balance(t, teacher).Available)
	assert.Len(t, settlements(e.db.Entries()), 1)
}

func TestWorkflow_SettleBound(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.member(t, "student", 10)
	teacher := e.member(t, "teacher", 0)
	req := e.published(t, m, 10)
	p := e.propose(t, req.ID, teacher)
	_, err := e.workflow.AcceptProposal(ctx, p.ID, m)
	require.NoError(t, err)

	out, err := e.workflow.Settle(ctx, req.ID, teacher, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(10), out.Entry.Amount)
	assert.Equal(t, int64(0), out.Released)
	assert.Equal(t, models.Balance{MemberID: m}, e.balance(t, m))
	assert.Equal(t, int64(10), e.balance(t, teacher).Available)
}

func TestWorkflow_SettleErrors(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.member(t, "student", 20)
	teacher := e.member(t, "teacher", 0)
	stranger := e.member(t, "stranger", 0)

	pending := e.published(t, m, 10)
	_, err := e.workflow.Settle(ctx, pending.ID, m, 5)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)

	_, err = e.workflow.Settle(ctx, pending.ID, m, 0)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	p := e.propose(t, pending.ID, teacher)
	_, err = e.workflow.AcceptProposal(ctx, p.ID, m)
	require.NoError(t, err)
	_, err = e.workflow.Settle(ctx, pending.ID, stranger, 5)
	assert.ErrorIs(t, err, pkgerrors.ErrForbidden)

	_, err = e.workflow.Settle(ctx, 999, m, 5)
	assert.ErrorIs(t, err, pkgerrors.ErrRequestNotFound)
	assert.Equal(t, models.Balance{MemberID: m, Available: 10, Held: 10}, e.balance(t, m))
}

// A corrupted hold must roll the whole settlement back.
func TestWorkflow_SettleInvariantViolationRollsBack(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.member(t, "student", 10)
	teacher := e.member(t, "teacher", 0)
	req := e.published(t, m, 10)
	p := e.propose(t, req.ID, teacher)
	_, err := e.workflow.AcceptProposal(ctx, p.ID, m)
	require.NoError(t, err)

	require.NoError(t, e.store.Members.UpdateBalance(ctx, models.Balance{MemberID: m, Available: 8, Held: 2}))

	_, err = e.workflow.Settle(ctx, req.ID, m, 5)
	assert.ErrorIs(t, err, pkgerrors.ErrInvariantViolation)
	assert.Equal(t, models.RequestScheduled, e.requestStatus(t, req.ID))
	assert.Equal(t, models.ProposalAccepted, e.proposalStatus(t, p.ID))
	assert.Equal(t, models.Balance{MemberID: m, Available: 8, Held: 2}, e.balance(t, m))
	assert.Empty(t, settlements(e.db.Entries()))
}

func TestWorkflow_TerminalRequestsRejectMutations(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.member(t, "student", 40)
	teacher := e.member(t, "teacher", 0)

	completed := e.published(t, m, 10)
	p := e.propose(t, completed.ID, teacher)
	_, err := e.workflow.AcceptProposal(ctx, p.ID, m)
	require.NoError(t, err)
	_, err = e.workflow.Settle(ctx, completed.ID, m, 10)
	require.NoError(t, err)

	cancelled := e.published(t, m, 10)
	_, err = e.workflow.CancelRequest(ctx, cancelled.ID, m)
	require.NoError(t, err)

	before := e.balance(t, m)
	entries := len(e.db.Entries())
	for _, req := range []*models.Request{completed, cancelled} {
		_, err = e.workflow.Publish(ctx, req.ID, m)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
		_, err = e.workflow.CancelRequest(ctx, req.ID, m)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
		_, err = e.workflow.Settle(ctx, req.ID, m, 5)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
		_, err = e.workflow.Propose(ctx, req.ID, teacher, models.NewProposal{ScheduledTime: testNow.Add(time.Hour)})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
		title := "renamed"
		_, err = e.workflow.UpdateRequest(ctx, req.ID, m, models.RequestPatch{Title: &title})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
	}
	_, err = e.workflow.CancelSession(ctx, p.ID, m)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)

	assert.Equal(t, before, e.balance(t, m))
	assert.Len(t, e.db.Entries(), entries)
	assert.Equal(t, models.RequestCompleted, e.requestStatus(t, completed.ID))
	assert.Equal(t, models.RequestCancelled, e.requestStatus(t, cancelled.ID))
}

func TestWorkflow_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("insufficient balance keeps draft", func(t *testing.T) {
		e := newEnv(t)
		m := e.member(t, "student", 5)
		req := e.draft(t, m, 10)

		_, err := e.workflow.Publish(ctx, req.ID, m)
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientBalance)
		assert.Equal(t, models.RequestDraft, e.requestStatus(t, req.ID))
		assert.Equal(t, models.Balance{MemberID: m, Available: 5}, e.balance(t, m))
		assert.Empty(t, e.db.Outbox())
	})

	t.Run("queues publication event", func(t *testing.T) {
		e := newEnv(t)
		m := e.member(t, "student", 10)
		req := e.published(t, m, 10, "go")

		events := e.db.Outbox()
		require.Len(t, events, 1)
		assert.Equal(t, testTopic, events[0].Topic)
		assert.Equal(t, models.OutboxPending, events[0].Status)
		var ev models.RequestPublishedEvent
		require.NoError(t, json.Unmarshal(events[0].Payload, &ev))
		assert.Equal(t, req.ID, ev.RequestID)
		assert.Equal(t, models.EventRequestPublished, ev.EventType)
	})

	t.Run("only owner", func(t *testing.T) {
		e := newEnv(t)
		m := e.member(t, "student", 10)
		other := e.member(t, "other", 10)
		req := e.draft(t, m, 10)

		_, err := e.workflow.Publish(ctx, req.ID, other)
		assert.ErrorIs(t, err, pkgerrors.ErrForbidden)
	})

	t.Run("auto publish on create", func(t *testing.T) {
		e := newEnv(t)
		m := e.member(t, "student", 10)
		req, err := e.workflow.CreateRequest(ctx, m, models.NewRequest{
			Title: "sql joins", Duration: 10, PreferredTime: testNow.Add(time.Hour), AutoPublish: true,
		})
		require.NoError(t, err)
		assert.Equal(t, models.RequestPending, req.Status)
		assert.Equal(t, int64(10), e.balance(t, m).Held)
	})

	t.Run("failed auto publish creates nothing", func(t *testing.T) {
		e := newEnv(t)
		m := e.member(t, "student", 5)
		_, err := e.workflow.CreateRequest(ctx, m, models.NewRequest{
			Title: "sql joins", Duration: 10, PreferredTime: testNow.Add(time.Hour), AutoPublish: true,
		})
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientBalance)
		list, err := e.workflow.ListRequests(ctx, repository.RequestFilter{OwnerID: m, ViewerID: m})
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestWorkflow_CreateRequestValidation(t *testing.T) {
	e := newEnv(t)
	m := e.member(t, "student", 10)
	future := testNow.Add(time.Hour)

	tests := []struct {
		name string
		in   models.NewRequest
		want error
	}{
		{name: "empty title", in: models.NewRequest{Title: " ", Duration: 10, PreferredTime: future}, want: pkgerrors.ErrInvalidInput},
		{name: "zero duration", in: models.NewRequest{Title: "go", Duration: 0, PreferredTime: future}, want: pkgerrors.ErrInvalidInput},
		{name: "past time", in: models.NewRequest{Title: "go", Duration: 10, PreferredTime: testNow.Add(-time.Hour)}, want: pkgerrors.ErrInvalidInput},
		{name: "unknown tag", in: models.NewRequest{Title: "go", Duration: 10, PreferredTime: future, Tags: []string{"go", "cobol"}}, want: pkgerrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.workflow.CreateRequest(context.Background(), m, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := e.workflow.CreateRequest(context.Background(), m, models.NewRequest{
		Title: "go", Duration: 10, PreferredTime: future, Tags: []string{"cobol"},
	})
	assert.ErrorIs(t, err, pkgerrors.ErrTagNotFound)
	assert.Contains(t, err.Error(), "cobol")

	req, err := e.workflow.CreateRequest(context.Background(), m, models.NewRequest{
		Title: "go", Duration: 10, PreferredTime: future, Tags: []string{"SQL", "go", "go"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "sql"}, req.Tags)
}

func TestWorkflow_Propose(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.member(t, "student", 20)
	teacher := e.member(t, "teacher", 0)
	req := e.published(t, m, 10)
	draft := e.draft(t, m, 10)
	future := models.NewProposal{ScheduledTime: testNow.Add(time.Hour)}

	_, err := e.workflow.Propose(ctx, req.ID, m, future)
	assert.ErrorIs(t, err, pkgerrors.ErrSelfProposal)

	_, err = e.workflow.Propose(ctx, req.ID, teacher, models.NewProposal{ScheduledTime: testNow.Add(-time.Hour)})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	_, err = e.workflow.Propose(ctx, draft.ID, teacher, future)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)

	p := e.propose(t, req.ID, teacher)
	assert.Equal(t, models.ProposalProposed, p.Status)

	_, err = e.workflow.Propose(ctx, req.ID, teacher, future)
	assert.ErrorIs(t, err, pkgerrors.ErrDuplicateProposal)

	// A withdrawn proposal is terminal, so the teacher may propose again.
	_, err = e.workflow.WithdrawProposal(ctx, p.ID, teacher)
	require.NoError(t, err)
	_, err = e.workflow.Propose(ctx, req.ID, teacher, future)
	assert.NoError(t, err)
	assert.Equal(t, models.Balance{MemberID: m, Available: 10, Held: 10}, e.balance(t, m))
}

func TestWorkflow_ProposalPermissions(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.member(t, "student", 10)
	teacher := e.member(t, "teacher", 0)
	other := e.member(t, "other", 0)
	req := e.published(t, m, 10)
	p := e.propose(t, req.ID, teacher)

	_, err := e.workflow.AcceptProposal(ctx, p.ID, teacher)
	assert.ErrorIs(t, err, pkgerrors.ErrForbidden)
	_, err = e.workflow.RejectProposal(ctx, p.ID, other)
	assert.ErrorIs(t, err, pkgerrors.ErrForbidden)
	_, err = e.workflow.WithdrawProposal(ctx, p.ID, m)
	assert.ErrorIs(t, err, pkgerrors.ErrForbidden)

	rejected, err := e.workflow.RejectProposal(ctx, p.ID, m)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalRejected, rejected.Status)

	_, err = e.workflow.RejectProposal(ctx, p.ID, m)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
	_, err = e.workflow.AcceptProposal(ctx, p.ID, m)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
	assert.Equal(t, models.RequestPending, e.requestStatus(t, req.ID))
}

func TestWorkflow_CancelSession(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.member(t, "student", 15)
	teacher := e.member(t, "teacher", 0)
	req := e.published(t, m, 10)
	p := e.propose(t, req.ID, teacher)
	_, err := e.workflow.AcceptProposal(ctx, p.ID, m)
	require.NoError(t, err)

	out, err := e.workflow.CancelSession(ctx, p.ID, teacher)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalCancelled, out.Status)
	assert.Equal(t, models.RequestCancelled, e.requestStatus(t, req.ID))
	assert.Equal(t, models.Balance{MemberID: m, Available: 15}, e.balance(t, m))

	_, err = e.workflow.CancelSession(ctx, p.ID, m)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)
}

func TestWorkflow_UpdateRequest(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.member(t, "student", 20)
	other := e.member(t, "other", 0)
	title := "window functions"
	duration := int64(15)

	draft := e.draft(t, m, 10)
	out, err := e.workflow.UpdateRequest(ctx, draft.ID, m, models.RequestPatch{Title: &title, Duration: &duration, Tags: []string{"sql"}})
	require.NoError(t, err)
	assert.Equal(t, title, out.Title)
	assert.Equal(t, duration, out.Duration)
	assert.Equal(t, []string{"sql"}, out.Tags)

	_, err = e.workflow.UpdateRequest(ctx, draft.ID, other, models.RequestPatch{Title: &title})
	assert.ErrorIs(t, err, pkgerrors.ErrForbidden)

	pending := e.published(t, m, 5)
	_, err = e.workflow.UpdateRequest(ctx, pending.ID, m, models.RequestPatch{Duration: &duration})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)

	out, err = e.workflow.UpdateRequest(ctx, pending.ID, m, models.RequestPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, out.Title)
	assert.Equal(t, models.Balance{MemberID: m, Available: 15, Held: 5}, e.balance(t, m))
}

func TestWorkflow_RateTeacher(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.member(t, "student", 20)
	teacher := e.member(t, "teacher", 0)

	session := func() *models.Proposal {
		req := e.published(t, m, 10)
		p := e.propose(t, req.ID, teacher)
		_, err := e.workflow.AcceptProposal(ctx, p.ID, m)
		require.NoError(t, err)
		return p
	}

	first := session()
	_, err := e.workflow.RateTeacher(ctx, first.ID, m, decimal.NewFromInt(4))
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransition)

	_, err = e.workflow.Settle(ctx, first.RequestID, m, 10)
	require.NoError(t, err)
	second := session()
	_, err = e.workflow.Settle(ctx, second.RequestID, m, 10)
	require.NoError(t, err)

	_, err = e.workflow.RateTeacher(ctx, first.ID, teacher, decimal.NewFromInt(5))
	assert.ErrorIs(t, err, pkgerrors.ErrForbidden)
	_, err = e.workflow.RateTeacher(ctx, first.ID, m, decimal.RequireFromString("5.5"))
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	_, err = e.workflow.RateTeacher(ctx, first.ID, m, decimal.NewFromInt(4))
	require.NoError(t, err)
	_, err = e.workflow.RateTeacher(ctx, first.ID, m, decimal.NewFromInt(4))
	assert.ErrorIs(t, err, pkgerrors.ErrAlreadyRated)
	_, err = e.workflow.RateTeacher(ctx, second.ID, m, decimal.RequireFromString("4.5"))
	require.NoError(t, err)

	member, err := e.store.Members.GetByID(ctx, teacher)
	require.NoError(t, err)
	require.True(t, member.Rating.Valid)
	assert.True(t, decimal.RequireFromString("4.25").Equal(member.Rating.Decimal))
}

func TestWorkflow_Queries(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.member(t, "student", 20)
	teacher := e.member(t, "teacher", 0)
	draft := e.draft(t, m, 10)
	open := e.published(t, m, 10, "go")
	p := e.propose(t, open.ID, teacher)

	_, err := e.workflow.GetRequest(ctx, draft.ID, teacher)
	assert.ErrorIs(t, err, pkgerrors.ErrRequestNotFound)
	got, err := e.workflow.GetRequest(ctx, draft.ID, m)
	require.NoError(t, err)
	assert.Equal(t, models.RequestDraft, got.Status)

	list, err := e.workflow.ListRequests(ctx, repository.RequestFilter{ViewerID: teacher})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, open.ID, list[0].ID)

	list, err = e.workflow.ListRequests(ctx, repository.RequestFilter{Tag: "go", ViewerID: m})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = e.workflow.ListRequests(ctx, repository.RequestFilter{Status: "archived"})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)

	received, err := e.workflow.ListProposals(ctx, repository.ProposalFilter{StudentID: m})
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, p.ID, received[0].ID)

	sent, err := e.workflow.ListProposals(ctx, repository.ProposalFilter{TeacherID: m})
	require.NoError(t, err)
	assert.Empty(t, sent)

	gotP, err := e.workflow.GetProposal(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, teacher, gotP.TeacherID)
}
