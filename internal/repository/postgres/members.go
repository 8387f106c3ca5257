package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/honeynil/skillswap-timebank/internal/models"
	pkgerrors "github.com/honeynil/skillswap-timebank/pkg/errors"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const memberColumns = `id, username, available, held, rating, created_at`

type MemberRepository struct {
	base
}

func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{base{db: db}}
}

func (r *MemberRepository) GetByID(ctx context.Context, id int64) (m *models.Member, err error) {
	ctx, finish := instrument(ctx, "member-repository", "GetMemberByID", attribute.Int64("member_id", id))
	defer func() { finish(err) }()

	var member models.Member
	err = r.q(ctx).GetContext(ctx, &member, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id)
	if err != nil {
		err = mapError(err, fmt.Errorf("%w: %d", pkgerrors.ErrMemberNotFound, id))
		slog.Error("failed to get member", "method", "GetByID", "member_id", id, "error", err)
		return nil, err
	}
	return &member, nil
}

// LockByIDs takes FOR UPDATE locks in ascending id order. Every code path that locks
// more than one member goes through here, which keeps lock acquisition deadlock-free.
func (r *MemberRepository) LockByIDs(ctx context.Context, ids ...int64) (out map[int64]*models.Member, err error) {
	ctx, finish := instrument(ctx, "member-repository", "LockMembers")
	defer func() { finish(err) }()

	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var members []models.Member
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	if err = r.q(ctx).SelectContext(ctx, &members, query, pq.Array(sorted)); err != nil {
		slog.Error("failed to lock members", "method", "LockByIDs", "member_ids", sorted, "error", err)
		return nil, fmt.Errorf("failed to lock members: %w", err)
	}

	out = make(map[int64]*models.Member, len(members))
	for i := range members {
		out[members[i].ID] = &members[i]
	}
	return out, nil
}

func (r *MemberRepository) UpdateBalance(ctx context.Context, b models.Balance) (err error) {
	ctx, finish := instrument(ctx, "member-repository", "UpdateBalance", attribute.Int64("member_id", b.MemberID))
	defer func() { finish(err) }()

	res, err := r.q(ctx).ExecContext(ctx, `UPDATE members SET available = $1, held = $2 WHERE id = $3`, b.Available, b.Held, b.MemberID)
	if err != nil {
		err = mapError(err, nil)
		slog.Error("failed to update balance", "method", "UpdateBalance", "member_id", b.MemberID, "error", err)
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = fmt.Errorf("%w: %d", pkgerrors.ErrMemberNotFound, b.MemberID)
		return err
	}
	return nil
}

func (r *MemberRepository) UpdateRating(ctx context.Context, memberID int64, rating decimal.Decimal) (err error) {
	ctx, finish := instrument(ctx, "member-repository", "UpdateRating", attribute.Int64("member_id", memberID))
	defer func() { finish(err) }()

	res, err := r.q(ctx).ExecContext(ctx, `UPDATE members SET rating = $1 WHERE id = $2`, rating, memberID)
	if err != nil {
		slog.Error("failed to update rating", "method", "UpdateRating", "member_id", memberID, "error", err)
		return fmt.Errorf("failed to update rating: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = fmt.Errorf("%w: %d", pkgerrors.ErrMemberNotFound, memberID)
		return err
	}
	return nil
}

func (r *MemberRepository) FindBySkills(ctx context.Context, tagIDs []int64, excludeID int64) (out []models.Member, err error) {
	ctx, finish := instrument(ctx, "member-repository", "FindMembersBySkills")
	defer func() { finish(err) }()

	query := `
		SELECT DISTINCT m.id, m.username, m.available, m.held, m.rating, m.created_at
		FROM members m
		JOIN member_skills s ON s.member_id = m.id
		WHERE s.tag_id = ANY($1) AND m.id <> $2
		ORDER BY m.id`
	if err = r.q(ctx).SelectContext(ctx, &out, query, pq.Array(tagIDs), excludeID); err != nil {
		slog.Error("failed to find members by skills", "method", "FindBySkills", "error", err)
		return nil, fmt.Errorf("failed to find members by skills: %w", err)
	}
	return out, nil
}
