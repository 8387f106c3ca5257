package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/honeynil/skillswap-timebank/internal/models"
	"github.com/honeynil/skillswap-timebank/internal/repository"
	pkgerrors "github.com/honeynil/skillswap-timebank/pkg/errors"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
)

const proposalColumns = `id, request_id, teacher_id, scheduled_time, note, status, created_at, updated_at`

type ProposalRepository struct {
	base
	now func() time.Time
}

func NewProposalRepository(db *sqlx.DB) *ProposalRepository {
	return &ProposalRepository{base: base{db: db}, now: time.Now}
}

func (r *ProposalRepository) Create(ctx context.Context, p *models.Proposal) (err error) {
	ctx, finish := instrument(ctx, "proposal-repository", "CreateProposal")
	defer func() { finish(err) }()

	if p == nil {
		err = pkgerrors.ErrNilProposal
		return err
	}
	query := `
		INSERT INTO proposals (request_id, teacher_id, scheduled_time, note, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id`
	err = r.q(ctx).QueryRowxContext(ctx, query, p.RequestID, p.TeacherID, p.ScheduledTime, p.Note, p.Status, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		err = mapError(err, nil)
		slog.Error("failed to create proposal", "method", "Create", "request_id", p.RequestID, "teacher_id", p.TeacherID, "error", err)
		return fmt.Errorf("failed to create proposal: %w", err)
	}
	p.UpdatedAt = p.CreatedAt
	slog.Info("proposal created", "method", "Create", "proposal_id", p.ID, "request_id", p.RequestID)
	return nil
}

func (r *ProposalRepository) GetByID(ctx context.Context, id int64) (*models.Proposal, error) {
	return r.get(ctx, "GetProposalByID", `SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id)
}

func (r *ProposalRepository) LockByID(ctx context.Context, id int64) (*models.Proposal, error) {
	return r.get(ctx, "LockProposal", `SELECT `+proposalColumns+` FROM proposals WHERE id = $1 FOR UPDATE`, id)
}

func (r *ProposalRepository) FindAccepted(ctx context.Context, requestID int64) (*models.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE request_id = $1 AND status = 'accepted' FOR UPDATE`
	return r.get(ctx, "FindAcceptedProposal", query, requestID)
}

func (r *ProposalRepository) get(ctx context.Context, op, query string, id int64) (p *models.Proposal, err error) {
	ctx, finish := instrument(ctx, "proposal-repository", op, attribute.Int64("id", id))
	defer func() { finish(err) }()

	var out models.Proposal
	if err = r.q(ctx).GetContext(ctx, &out, query, id); err != nil {
		err = mapError(err, fmt.Errorf("%w: %d", pkgerrors.ErrProposalNotFound, id))
		slog.Error("failed to get proposal", "method", op, "id", id, "error", err)
		return nil, err
	}
	return &out, nil
}

func (r *ProposalRepository) ExistsOpen(ctx context.Context, requestID, teacherID int64) (exists bool, err error) {
	ctx, finish := instrument(ctx, "proposal-repository", "ProposalExistsOpen")
	defer func() { finish(err) }()

	query := `SELECT EXISTS (SELECT 1 FROM proposals WHERE request_id = $1 AND teacher_id = $2 AND status IN ('proposed', 'accepted'))`
	if err = r.q(ctx).GetContext(ctx, &exists, query, requestID, teacherID); err != nil {
		return false, fmt.Errorf("failed to check open proposals: %w", err)
	}
	return exists, nil
}

func (r *ProposalRepository) UpdateStatus(ctx context.Context, id int64, status models.ProposalStatus) (err error) {
	ctx, finish := instrument(ctx, "proposal-repository", "UpdateProposalStatus", attribute.Int64("proposal_id", id))
	defer func() { finish(err) }()

	res, err := r.q(ctx).ExecContext(ctx, `UPDATE proposals SET status = $1, updated_at = $2 WHERE id = $3`, status, r.now().UTC(), id)
	if err != nil {
		err = mapError(err, nil)
		slog.Error("failed to update proposal status", "method", "UpdateStatus", "proposal_id", id, "status", status, "error", err)
		return fmt.Errorf("failed to update proposal status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = fmt.Errorf("%w: %d", pkgerrors.ErrProposalNotFound, id)
		return err
	}
	return nil
}

func (r *ProposalRepository) TransitionOpen(ctx context.Context, requestID, exceptID int64, status models.ProposalStatus) (n int64, err error) {
	ctx, finish := instrument(ctx, "proposal-repository", "TransitionOpenProposals", attribute.Int64("request_id", requestID))
	defer func() { finish(err) }()

	query := `UPDATE proposals SET status = $1, updated_at = $2 WHERE request_id = $3 AND id <> $4 AND status = 'proposed'`
	res, err := r.q(ctx).ExecContext(ctx, query, status, r.now().UTC(), requestID, exceptID)
	if err != nil {
		slog.Error("failed to transition proposals", "method", "TransitionOpen", "request_id", requestID, "error", err)
		return 0, fmt.Errorf("failed to transition proposals: %w", err)
	}
	n, _ = res.RowsAffected()
	return n, nil
}

func (r *ProposalRepository) List(ctx context.Context, f repository.ProposalFilter) (out []models.Proposal, err error) {
	ctx, finish := instrument(ctx, "proposal-repository", "ListProposals")
	defer func() { finish(err) }()

	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.RequestID != 0 {
		where = append(where, "p.request_id = "+arg(f.RequestID))
	}
	if f.TeacherID != 0 {
		where = append(where, "p.teacher_id = "+arg(f.TeacherID))
	}
	if f.StudentID != 0 {
		where = append(where, "r.owner_id = "+arg(f.StudentID))
	}
	if f.Status != "" {
		where = append(where, "p.status = "+arg(f.Status))
	}

	query := `SELECT p.id, p.request_id, p.teacher_id, p.scheduled_time, p.note, p.status, p.created_at, p.updated_at
		FROM proposals p JOIN requests r ON r.id = p.request_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY p.id DESC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}

	if err = r.q(ctx).SelectContext(ctx, &out, query, args...); err != nil {
		slog.Error("failed to list proposals", "method", "List", "error", err)
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	return out, nil
}
