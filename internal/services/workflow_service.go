package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	stderrors "errors"

	"github.com/honeynil/skillswap-timebank/internal/infrastructure/observability"
	"github.com/honeynil/skillswap-timebank/internal/infrastructure/redis"
	"github.com/honeynil/skillswap-timebank/internal/ledger"
	"github.com/honeynil/skillswap-timebank/internal/models"
	"github.com/honeynil/skillswap-timebank/internal/repository"
	pkgerrors "github.com/honeynil/skillswap-timebank/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// WorkflowService drives the request and proposal state machines. Every mutating
// method runs in one transaction that locks the request row before anything else.
type WorkflowService interface {
	CreateRequest(ctx context.Context, ownerID int64, in models.NewRequest) (*models.Request, error)
	UpdateRequest(ctx context.Context, requestID, actorID int64, patch models.RequestPatch) (*models.Request, error)
	Publish(ctx context.Context, requestID, actorID int64) (*models.Request, error)
	CancelRequest(ctx context.Context, requestID, actorID int64) (*models.Request, error)

	Propose(ctx context.Context, requestID, teacherID int64, in models.NewProposal) (*models.Proposal, error)
	AcceptProposal(ctx context.Context, proposalID, actorID int64) (*models.Proposal, error)
	RejectProposal(ctx context.Context, proposalID, actorID int64) (*models.Proposal, error)
	WithdrawProposal(ctx context.Context, proposalID, actorID int64) (*models.Proposal, error)
	CancelSession(ctx context.Context, proposalID, actorID int64) (*models.Proposal, error)

	Settle(ctx context.Context, requestID, actorID, elapsedMinutes int64) (*models.Settlement, error)
	RateTeacher(ctx context.Context, proposalID, studentID int64, score decimal.Decimal) (*models.Rating, error)

	GetRequest(ctx context.Context, requestID, viewerID int64) (*models.Request, error)
	GetProposal(ctx context.Context, proposalID int64) (*models.Proposal, error)
	ListRequests(ctx context.Context, f repository.RequestFilter) ([]models.Request, error)
	ListProposals(ctx context.Context, f repository.ProposalFilter) ([]models.Proposal, error)
}

type workflowService struct {
	store         repository.Store
	ledger        *ledger.Ledger
	cache         *balanceCache
	requestsTopic string
	now           func() time.Time
}

func NewWorkflowService(
	store repository.Store,
	l *ledger.Ledger,
	redisClient redis.RedisClient,
	cacheTTL time.Duration,
	requestsTopic string,
) *workflowService {
	return &workflowService{
		store:         store,
		ledger:        l,
		cache:         &balanceCache{client: redisClient, ttl: cacheTTL},
		requestsTopic: requestsTopic,
		now:           time.Now,
	}
}

func (s *workflowService) CreateRequest(ctx context.Context, ownerID int64, in models.NewRequest) (req *models.Request, err error) {
	ctx, span := otel.Tracer("workflow-service").Start(ctx, "CreateRequest")
	defer func() { s.finish(span, "create_request", err) }()

	now := s.now().UTC()
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", pkgerrors.ErrInvalidInput)
	}
	if in.Duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", pkgerrors.ErrInvalidInput)
	}
	if !in.PreferredTime.After(now) {
		return nil, fmt.Errorf("%w: preferred time must be in the future", pkgerrors.ErrInvalidInput)
	}

	err = s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.Members.GetByID(ctx, ownerID); err != nil {
			return err
		}
		tagIDs, err := s.resolveTags(ctx, in.Tags)
		if err != nil {
			return err
		}
		req = &models.Request{
			OwnerID:       ownerID,
			Title:         in.Title,
			Body:          in.Body,
			Duration:      in.Duration,
			PreferredTime: in.PreferredTime.UTC(),
			Status:        models.RequestDraft,
			Tags:          normalizeTags(in.Tags),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.store.Requests.Create(ctx, req); err != nil {
			return err
		}
		if err := s.store.Requests.SetTags(ctx, req.ID, tagIDs); err != nil {
			return err
		}
		if in.AutoPublish {
			return s.publishLocked(ctx, req)
		}
		return nil
	})
	if err != nil {
		slog.Error("failed to create request", "owner_id", ownerID, "error", err)
		return nil, err
	}
	if req.Status == models.RequestPending {
		s.cache.invalidate(ctx, ownerID)
	}

	slog.Info("request created", "request_id", req.ID, "owner_id", ownerID, "status", req.Status)
	return req, nil
}

func (s *workflowService) UpdateRequest(ctx context.Context, requestID, actorID int64, patch models.RequestPatch) (req *models.Request, err error) {
	ctx, span := otel.Tracer("workflow-service").Start(ctx, "UpdateRequest")
	span.SetAttributes(attribute.Int64("request_id", requestID))
	defer func() { s.finish(span, "update_request", err) }()

	err = s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if req, err = s.store.Requests.LockByID(ctx, requestID); err != nil {
			return err
		}
		if req.OwnerID != actorID {
			return fmt.Errorf("%w: only the owner can edit request %d", pkgerrors.ErrForbidden, requestID)
		}
		switch req.Status {
		case models.RequestDraft:
		case models.RequestPending:
			if patch.Duration != nil && *patch.Duration != req.Duration {
				return fmt.Errorf("%w: duration of a published request is fixed by its hold", pkgerrors.ErrInvalidTransition)
			}
		default:
			return fmt.Errorf("%w: request %d is %s", pkgerrors.ErrInvalidTransition, requestID, req.Status)
		}

		if patch.Title != nil {
			title := strings.TrimSpace(*patch.Title)
			if title == "" {
				return fmt.Errorf("%w: title is required", pkgerrors.ErrInvalidInput)
			}
			req.Title = title
		}
		if patch.Body != nil {
			req.Body = *patch.Body
		}
		if patch.Duration != nil {
			if *patch.Duration <= 0 {
				return fmt.Errorf("%w: duration must be positive", pkgerrors.ErrInvalidInput)
			}
			req.Duration = *patch.Duration
		}
		if patch.PreferredTime != nil {
			if !patch.PreferredTime.After(s.now()) {
				return fmt.Errorf("%w: preferred time must be in the future", pkgerrors.ErrInvalidInput)
			}
			req.PreferredTime = patch.PreferredTime.UTC()
		}
		if patch.Tags != nil {
			tagIDs, err := s.resolveTags(ctx, patch.Tags)
			if err != nil {
				return err
			}
			if err := s.store.Requests.SetTags(ctx, req.ID, tagIDs); err != nil {
				return err
			}
			req.Tags = normalizeTags(patch.Tags)
		}
		req.UpdatedAt = s.now().UTC()
		return s.store.Requests.Update(ctx, req)
	})
	if err != nil {
		slog.Error("failed to update request", "request_id", requestID, "actor_id", actorID, "error", err)
		return nil, err
	}
	return req, nil
}

func (s *workflowService) Publish(ctx context.Context, requestID, actorID int64) (req *models.Request, err error) {
	ctx, span := otel.Tracer("workflow-service").Start(ctx, "Publish")
	span.SetAttributes(attribute.Int64("request_id", requestID))
	defer func() { s.finish(span, "publish", err) }()

	err = s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if req, err = s.store.Requests.LockByID(ctx, requestID); err != nil {
			return err
		}
		if req.OwnerID != actorID {
			return fmt.Errorf("%w: only the owner can publish request %d", pkgerrors.ErrForbidden, requestID)
		}
		return s.publishLocked(ctx, req)
	})
	if err != nil {
		slog.Error("failed to publish request", "request_id", requestID, "error", err)
		return nil, err
	}
	s.cache.invalidate(ctx, req.OwnerID)

	slog.Info("request published", "request_id", req.ID, "owner_id", req.OwnerID, "held", req.Duration)
	return req, nil
}

// publishLocked moves a locked Draft request to Pending, holds its duration and queues
// the publication event in the same transaction.
func (s *workflowService) publishLocked(ctx context.Context, req *models.Request) error {
	if req.Status != models.RequestDraft {
		return fmt.Errorf("%w: cannot publish a %s request", pkgerrors.ErrInvalidTransition, req.Status)
	}
	if _, err := s.ledger.Hold(ctx, req.OwnerID, req.Duration); err != nil {
		return err
	}
	now := s.now().UTC()
	req.Status = models.RequestPending
	req.UpdatedAt = now
	if err := s.store.Requests.Update(ctx, req); err != nil {
		return err
	}

	payload, err := json.Marshal(models.RequestPublishedEvent{
		EventType:   models.EventRequestPublished,
		RequestID:   req.ID,
		OwnerID:     req.OwnerID,
		PublishedAt: now,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal publish event: %w", err)
	}
	return s.store.Outbox.Add(ctx, &models.OutboxEvent{
		Topic:   s.requestsTopic,
		Key:     strconv.FormatInt(req.ID, 10),
		Payload: payload,
	})
}

func (s *workflowService) CancelRequest(ctx context.Context, requestID, actorID int64) (req *models.Request, err error) {
	ctx, span := otel.Tracer("workflow-service").Start(ctx, "CancelRequest")
	span.SetAttributes(attribute.Int64("request_id", requestID))
	defer func() { s.finish(span, "cancel_request", err) }()

	var released bool
	err = s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		released = false
		var err error
		if req, err = s.store.Requests.LockByID(ctx, requestID); err != nil {
			return err
		}
		if req.OwnerID != actorID {
			return fmt.Errorf("%w: only the owner can cancel request %d", pkgerrors.ErrForbidden, requestID)
		}
		switch req.Status {
		case models.RequestDraft:
		case models.RequestPending:
			if _, err := s.store.Proposals.TransitionOpen(ctx, req.ID, 0, models.ProposalCancelled); err != nil {
				return err
			}
			if _, err := s.ledger.Release(ctx, req.OwnerID, req.Duration); err != nil {
				return err
			}
			released = true
		default:
			return fmt.Errorf("%w: cannot cancel a %s request", pkgerrors.ErrInvalidTransition, req.Status)
		}
		req.Status = models.RequestCancelled
		req.UpdatedAt = s.now().UTC()
		return s.store.Requests.Update(ctx, req)
	})
	if err != nil {
		slog.Error("failed to cancel request", "request_id", requestID, "error", err)
		return nil, err
	}
	if released {
		s.cache.invalidate(ctx, req.OwnerID)
	}

	slog.Info("request cancelled", "request_id", req.ID, "released", released)
	return req, nil
}

func (s *workflowService) Propose(ctx context.Context, requestID, teacherID int64, in models.NewProposal) (p *models.Proposal, err error) {
	ctx, span := otel.Tracer("workflow-service").Start(ctx, "Propose")
	span.SetAttributes(attribute.Int64("request_id", requestID), attribute.Int64("teacher_id", teacherID))
	defer func() { s.finish(span, "propose", err) }()

	now := s.now().UTC()
	if !in.ScheduledTime.After(now) {
		return nil, fmt.Errorf("%w: scheduled time must be in the future", pkgerrors.ErrInvalidInput)
	}

	err = s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		req, err := s.store.Requests.LockByID(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != models.RequestPending {
			return fmt.Errorf("%w: request %d is %s", pkgerrors.ErrInvalidTransition, requestID, req.Status)
		}
		if req.OwnerID == teacherID {
			return pkgerrors.ErrSelfProposal
		}
		if _, err := s.store.Members.GetByID(ctx, teacherID); err != nil {
			return err
		}
		exists, err := s.store.Proposals.ExistsOpen(ctx, requestID, teacherID)
		if err != nil {
			return err
		}
		if exists {
			return pkgerrors.ErrDuplicateProposal
		}
		p = &models.Proposal{
			RequestID:     requestID,
			TeacherID:     teacherID,
			ScheduledTime: in.ScheduledTime.UTC(),
			Note:          in.Note,
			Status:        models.ProposalProposed,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return s.store.Proposals.Create(ctx, p)
	})
	if err != nil {
		slog.Error("failed to create proposal", "request_id", requestID, "teacher_id", teacherID, "error", err)
		return nil, err
	}

	slog.Info("proposal created", "proposal_id", p.ID, "request_id", requestID, "teacher_id", teacherID)
	return p, nil
}

// AcceptProposal is the compare-and-swap on the request: the first accept to commit
// schedules the request and rejects every sibling still Proposed.
func (s *workflowService) AcceptProposal(ctx context.Context, proposalID, actorID int64) (p *models.Proposal, err error) {
	ctx, span := otel.Tracer("workflow-service").Start(ctx, "AcceptProposal")
	span.SetAttributes(attribute.Int64("proposal_id", proposalID))
	defer func() { s.finish(span, "accept", err) }()

	var rejected int64
	err = s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		req, prop, err := s.lockSession(ctx, proposalID)
		if err != nil {
			return err
		}
		if req.OwnerID != actorID {
			return fmt.Errorf("%w: only the request owner can accept proposal %d", pkgerrors.ErrForbidden, proposalID)
		}
		if prop.Status != models.ProposalProposed {
			return fmt.Errorf("%w: proposal %d is %s", pkgerrors.ErrInvalidTransition, proposalID, prop.Status)
		}
		if req.Status != models.RequestPending {
			return fmt.Errorf("%w: request %d is %s", pkgerrors.ErrInvalidTransition, req.ID, req.Status)
		}

		if rejected, err = s.store.Proposals.TransitionOpen(ctx, req.ID, prop.ID, models.ProposalRejected); err != nil {
			return err
		}
		if err = s.store.Proposals.UpdateStatus(ctx, prop.ID, models.ProposalAccepted); err != nil {
			return err
		}
		req.Status = models.RequestScheduled
		req.UpdatedAt = s.now().UTC()
		if err = s.store.Requests.Update(ctx, req); err != nil {
			return err
		}
		prop.Status = models.ProposalAccepted
		prop.UpdatedAt = req.UpdatedAt
		p = prop
		return nil
	})
	if err != nil {
		slog.Error("failed to accept proposal", "proposal_id", proposalID, "actor_id", actorID, "error", err)
		return nil, err
	}

	slog.Info("proposal accepted", "proposal_id", p.ID, "request_id", p.RequestID, "rejected_siblings", rejected)
	return p, nil
}

func (s *workflowService) RejectProposal(ctx context.Context, proposalID, actorID int64) (*models.Proposal, error) {
	return s.closeProposal(ctx, "reject", proposalID, actorID, models.ProposalRejected, func(req *models.Request, p *models.Proposal) bool {
		return req.OwnerID == actorID
	})
}

func (s *workflowService) WithdrawProposal(ctx context.Context, proposalID, actorID int64) (*models.Proposal, error) {
	return s.closeProposal(ctx, "withdraw", proposalID, actorID, models.ProposalCancelled, func(req *models.Request, p *models.Proposal) bool {
		return p.TeacherID == actorID
	})
}

// closeProposal ends a Proposed proposal without touching the ledger.
func (s *workflowService) closeProposal(
	ctx context.Context,
	op string,
	proposalID, actorID int64,
	to models.ProposalStatus,
	allowed func(req *models.Request, p *models.Proposal) bool,
) (p *models.Proposal, err error) {
	ctx, span := otel.Tracer("workflow-service").Start(ctx, "CloseProposal")
	span.SetAttributes(attribute.Int64("proposal_id", proposalID), attribute.String("operation", op))
	defer func() { s.finish(span, op, err) }()

	err = s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		req, prop, err := s.lockSession(ctx, proposalID)
		if err != nil {
			return err
		}
		if !allowed(req, prop) {
			return fmt.Errorf("%w: member %d cannot %s proposal %d", pkgerrors.ErrForbidden, actorID, op, proposalID)
		}
		if prop.Status != models.ProposalProposed {
			return fmt.Errorf("%w: proposal %d is %s", pkgerrors.ErrInvalidTransition, proposalID, prop.Status)
		}
		if err := s.store.Proposals.UpdateStatus(ctx, prop.ID, to); err != nil {
			return err
		}
		prop.Status = to
		prop.UpdatedAt = s.now().UTC()
		p = prop
		return nil
	})
	if err != nil {
		slog.Error("failed to close proposal", "operation", op, "proposal_id", proposalID, "actor_id", actorID, "error", err)
		return nil, err
	}

	slog.Info("proposal closed", "operation", op, "proposal_id", p.ID, "status", p.Status)
	return p, nil
}

// CancelSession calls off an accepted session before settlement. The request is
// cancelled and its full hold goes back to the owner.
func (s *workflowService) CancelSession(ctx context.Context, proposalID, actorID int64) (p *models.Proposal, err error) {
	ctx, span := otel.Tracer("workflow-service").Start(ctx, "CancelSession")
	span.SetAttributes(attribute.Int64("proposal_id", proposalID))
	defer func() { s.finish(span, "cancel_session", err) }()

	var ownerID int64
	err = s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		req, prop, err := s.lockSession(ctx, proposalID)
		if err != nil {
			return err
		}
		if req.OwnerID != actorID && prop.TeacherID != actorID {
			return fmt.Errorf("%w: member %d is not part of session %d", pkgerrors.ErrForbidden, actorID, proposalID)
		}
		if prop.Status != models.ProposalAccepted || req.Status != models.RequestScheduled {
			return fmt.Errorf("%w: proposal %d is %s", pkgerrors.ErrInvalidTransition, proposalID, prop.Status)
		}
		if _, err := s.ledger.Release(ctx, req.OwnerID, req.Duration); err != nil {
			return err
		}
		if err := s.store.Proposals.UpdateStatus(ctx, prop.ID, models.ProposalCancelled); err != nil {
			return err
		}
		now := s.now().UTC()
		req.Status = models.RequestCancelled
		req.UpdatedAt = now
		if err := s.store.Requests.Update(ctx, req); err != nil {
			return err
		}
		prop.Status = models.ProposalCancelled
		prop.UpdatedAt = now
		ownerID = req.OwnerID
		p = prop
		return nil
	})
	if err != nil {
		slog.Error("failed to cancel session", "proposal_id", proposalID, "actor_id", actorID, "error", err)
		return nil, err
	}
	s.cache.invalidate(ctx, ownerID)

	slog.Info("session cancelled", "proposal_id", p.ID, "request_id", p.RequestID, "actor_id", actorID)
	return p, nil
}

// Settle pays the teacher min(elapsed, duration) minutes out of the owner's hold and
// returns the rest of the hold to the owner.
func (s *workflowService) Settle(ctx context.Context, requestID, actorID, elapsedMinutes int64) (out *models.Settlement, err error) {
	ctx, span := otel.Tracer("workflow-service").Start(ctx, "Settle")
	span.SetAttributes(attribute.Int64("request_id", requestID), attribute.Int64("elapsed_minutes", elapsedMinutes))
	defer func() { s.finish(span, "settle", err) }()

	if elapsedMinutes <= 0 {
		return nil, fmt.Errorf("%w: elapsed minutes must be positive", pkgerrors.ErrInvalidInput)
	}

	err = s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		req, err := s.store.Requests.LockByID(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != models.RequestScheduled {
			return fmt.Errorf("%w: request %d is %s", pkgerrors.ErrInvalidTransition, requestID, req.Status)
		}
		prop, err := s.store.Proposals.FindAccepted(ctx, requestID)
		if err != nil {
			if pkgerrors.IsNotFound(err) {
				return fmt.Errorf("%w: request %d has no accepted proposal", pkgerrors.ErrInvalidTransition, requestID)
			}
			return err
		}
		if actorID != req.OwnerID && actorID != prop.TeacherID {
			return fmt.Errorf("%w: member %d is not part of session %d", pkgerrors.ErrForbidden, actorID, prop.ID)
		}

		transfer := min(elapsedMinutes, req.Duration)
		entry, err := s.ledger.Transfer(ctx, req.OwnerID, prop.TeacherID, transfer, models.Reference{
			RequestID:  &req.ID,
			ProposalID: &prop.ID,
		})
		if err != nil {
			return err
		}
		remainder := req.Duration - transfer
		if remainder > 0 {
			if _, err := s.ledger.Release(ctx, req.OwnerID, remainder); err != nil {
				return err
			}
		}

		if err := s.store.Proposals.UpdateStatus(ctx, prop.ID, models.ProposalCompleted); err != nil {
			return err
		}
		now := s.now().UTC()
		req.Status = models.RequestCompleted
		req.UpdatedAt = now
		if err := s.store.Requests.Update(ctx, req); err != nil {
			return err
		}
		prop.Status = models.ProposalCompleted
		prop.UpdatedAt = now
		out = &models.Settlement{Request: req, Proposal: prop, Entry: entry, Released: remainder}
		return nil
	})
	if err != nil {
		if stderrors.Is(err, pkgerrors.ErrInvariantViolation) {
			slog.Error("settlement rolled back", "severity", "critical", "request_id", requestID, "error", err)
		} else {
			slog.Error("failed to settle session", "request_id", requestID, "actor_id", actorID, "error", err)
		}
		return nil, err
	}
	s.cache.invalidate(ctx, out.Request.OwnerID, out.Proposal.TeacherID)

	slog.Info("session settled",
		"request_id", requestID,
		"proposal_id", out.Proposal.ID,
		"transferred", out.Entry.Amount,
		"released", out.Released)
	return out, nil
}

func (s *workflowService) RateTeacher(ctx context.Context, proposalID, studentID int64, score decimal.Decimal) (rating *models.Rating, err error) {
	ctx, span := otel.Tracer("workflow-service").Start(ctx, "RateTeacher")
	span.SetAttributes(attribute.Int64("proposal_id", proposalID))
	defer func() { s.finish(span, "rate", err) }()

	if score.LessThan(models.MinRating) || score.GreaterThan(models.MaxRating) {
		return nil, fmt.Errorf("%w: score must be between %s and %s", pkgerrors.ErrInvalidInput, models.MinRating, models.MaxRating)
	}

	err = s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		prop, err := s.store.Proposals.GetByID(ctx, proposalID)
		if err != nil {
			return err
		}
		req, err := s.store.Requests.GetByID(ctx, prop.RequestID)
		if err != nil {
			return err
		}
		if req.OwnerID != studentID {
			return fmt.Errorf("%w: only the student can rate session %d", pkgerrors.ErrForbidden, proposalID)
		}
		if prop.Status != models.ProposalCompleted {
			return fmt.Errorf("%w: proposal %d is %s", pkgerrors.ErrInvalidTransition, proposalID, prop.Status)
		}
		rating = &models.Rating{
			ProposalID: prop.ID,
			TeacherID:  prop.TeacherID,
			StudentID:  studentID,
			Score:      score.Round(2),
			CreatedAt:  s.now().UTC(),
		}
		if err := s.store.Ratings.Create(ctx, rating); err != nil {
			return err
		}
		avg, err := s.store.Ratings.AverageForTeacher(ctx, prop.TeacherID)
		if err != nil {
			return err
		}
		return s.store.Members.UpdateRating(ctx, prop.TeacherID, avg)
	})
	if err != nil {
		slog.Error("failed to rate teacher", "proposal_id", proposalID, "student_id", studentID, "error", err)
		return nil, err
	}

	slog.Info("teacher rated", "proposal_id", proposalID, "teacher_id", rating.TeacherID, "score", rating.Score.String())
	return rating, nil
}

// GetRequest hides drafts from everyone but their owner.
func (s *workflowService) GetRequest(ctx context.Context, requestID, viewerID int64) (*models.Request, error) {
	ctx, span := otel.Tracer("workflow-service").Start(ctx, "GetRequest")
	defer span.End()

	req, err := s.store.Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status == models.RequestDraft && req.OwnerID != viewerID {
		return nil, fmt.Errorf("%w: %d", pkgerrors.ErrRequestNotFound, requestID)
	}
	return req, nil
}

func (s *workflowService) GetProposal(ctx context.Context, proposalID int64) (*models.Proposal, error) {
	ctx, span := otel.Tracer("workflow-service").Start(ctx, "GetProposal")
	defer span.End()

	return s.store.Proposals.GetByID(ctx, proposalID)
}

func (s *workflowService) ListRequests(ctx context.Context, f repository.RequestFilter) ([]models.Request, error) {
	ctx, span := otel.Tracer("workflow-service").Start(ctx, "ListRequests")
	defer span.End()

	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", pkgerrors.ErrInvalidInput, f.Status)
	}
	f.Limit, f.Offset = pageBounds(f.Limit, f.Offset)
	out, err := s.store.Requests.List(ctx, f)
	if err != nil {
		slog.Error("failed to list requests", "error", err)
		return nil, err
	}
	if out == nil {
		out = []models.Request{}
	}
	return out, nil
}

func (s *workflowService) ListProposals(ctx context.Context, f repository.ProposalFilter) ([]models.Proposal, error) {
	ctx, span := otel.Tracer("workflow-service").Start(ctx, "ListProposals")
	defer span.End()

	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", pkgerrors.ErrInvalidInput, f.Status)
	}
	f.Limit, f.Offset = pageBounds(f.Limit, f.Offset)
	out, err := s.store.Proposals.List(ctx, f)
	if err != nil {
		slog.Error("failed to list proposals", "error", err)
		return nil, err
	}
	if out == nil {
		out = []models.Proposal{}
	}
	return out, nil
}

// lockSession locks the proposal's request and then the proposal itself.
func (s *workflowService) lockSession(ctx context.Context, proposalID int64) (*models.Request, *models.Proposal, error) {
	peek, err := s.store.Proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, nil, err
	}
	req, err := s.store.Requests.LockByID(ctx, peek.RequestID)
	if err != nil {
		return nil, nil, err
	}
	prop, err := s.store.Proposals.LockByID(ctx, proposalID)
	if err != nil {
		return nil, nil, err
	}
	return req, prop, nil
}

func (s *workflowService) resolveTags(ctx context.Context, names []string) ([]int64, error) {
	names = normalizeTags(names)
	if len(names) == 0 {
		return nil, nil
	}
	ids, unknown, err := s.store.Tags.Resolve(ctx, names)
	if err != nil {
		return nil, err
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %w: %s", pkgerrors.ErrInvalidInput, pkgerrors.ErrTagNotFound, strings.Join(unknown, ", "))
	}
	return ids, nil
}

func (s *workflowService) finish(span trace.Span, op string, err error) {
	defer span.End()
	observability.WorkflowTransitions.WithLabelValues(op, observability.Outcome(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func normalizeTags(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
