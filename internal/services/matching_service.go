package service

import (
	"context"
	"log/slog"

	"github.com/honeynil/skillswap-timebank/internal/models"
	"github.com/honeynil/skillswap-timebank/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Notifier delivers one notification to one member.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n models.Notification) error {
	slog.Info("member notified of matching request",
		"member_id", n.MemberID,
		"username", n.Username,
		"request_id", n.RequestID,
		"tags", n.Tags)
	return nil
}

// MatchingService reacts to published requests by notifying members whose skills
// overlap the request's tags. It never changes workflow or ledger state.
type MatchingService interface {
	HandleRequestPublished(ctx context.Context, ev models.RequestPublishedEvent) (int, error)
}

type matchingService struct {
	requests repository.RequestRepository
	members  repository.MemberRepository
	tags     repository.TagRepository
	notifier Notifier
}

func NewMatchingService(requests repository.RequestRepository, members repository.MemberRepository, tags repository.TagRepository, notifier Notifier) *matchingService {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &matchingService{requests: requests, members: members, tags: tags, notifier: notifier}
}

// HandleRequestPublished returns how many members were notified. Notifier failures are
// logged per member and do not stop the others.
func (s *matchingService) HandleRequestPublished(ctx context.Context, ev models.RequestPublishedEvent) (int, error) {
	ctx, span := otel.Tracer("matching-service").Start(ctx, "HandleRequestPublished")
	span.SetAttributes(attribute.Int64("request_id", ev.RequestID))
	defer span.End()

	req, err := s.requests.GetByID(ctx, ev.RequestID)
	if err != nil {
		slog.Error("failed to load published request", "request_id", ev.RequestID, "error", err)
		return 0, err
	}
	if req.Status != models.RequestPending {
		slog.Info("request no longer open, skipping matching", "request_id", req.ID, "status", req.Status)
		return 0, nil
	}
	tagIDs, err := s.requests.TagIDs(ctx, req.ID)
	if err != nil {
		return 0, err
	}
	if len(tagIDs) == 0 {
		return 0, nil
	}
	candidates, err := s.members.FindBySkills(ctx, tagIDs, req.OwnerID)
	if err != nil {
		slog.Error("failed to find matching members", "request_id", req.ID, "error", err)
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}
	names, err := s.tags.NamesByRequest(ctx, req.ID)
	if err != nil {
		slog.Error("failed to load request tag names", "request_id", req.ID, "error", err)
		return 0, err
	}

	notified := 0
	for _, m := range candidates {
		n := models.Notification{
			MemberID:  m.ID,
			Username:  m.Username,
			RequestID: req.ID,
			Title:     req.Title,
			Tags:      names,
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			slog.Error("failed to notify member", "member_id", m.ID, "request_id", req.ID, "error", err)
			continue
		}
		notified++
	}

	slog.Info("matching completed", "request_id", req.ID, "candidates", len(candidates), "notified", notified)
	return notified, nil
}
