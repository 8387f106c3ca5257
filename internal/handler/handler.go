package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/honeynil/skillswap-timebank/internal/infrastructure/auth"
	"github.com/honeynil/skillswap-timebank/internal/infrastructure/observability"
	"github.com/honeynil/skillswap-timebank/internal/models"
	"github.com/honeynil/skillswap-timebank/internal/repository"
	service "github.com/honeynil/skillswap-timebank/internal/services"
	pkgerrors "github.com/honeynil/skillswap-timebank/pkg/errors"
	"github.com/shopspring/decimal"
)

var errUnauthenticated = errors.New("member not authenticated")

type Handler struct {
	workflow       service.WorkflowService
	accounts       service.AccountService
	systemMemberID int64
}

func NewHandler(workflow service.WorkflowService, accounts service.AccountService, systemMemberID int64) *Handler {
	return &Handler{workflow: workflow, accounts: accounts, systemMemberID: systemMemberID}
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps error kinds to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pkgerrors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, pkgerrors.ErrForbidden):
		return http.StatusForbidden
	case pkgerrors.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, pkgerrors.ErrInvalidTransition),
		errors.Is(err, pkgerrors.ErrSelfProposal),
		errors.Is(err, pkgerrors.ErrDuplicateProposal),
		errors.Is(err, pkgerrors.ErrAlreadyRated):
		return http.StatusConflict
	case errors.Is(err, pkgerrors.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	logger := observability.WithContext(r.Context(), "method", r.Method, "path", r.URL.Path, "status", status)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		msg = "internal error"
	} else {
		logger.Debug("request rejected", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.Health).Methods("GET")
}

func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/requests", h.CreateRequest).Methods("POST")
	r.HandleFunc("/requests", h.ListRequests).Methods("GET")
	r.HandleFunc("/requests/{id:[0-9]+}", h.GetRequest).Methods("GET")
	r.HandleFunc("/requests/{id:[0-9]+}", h.UpdateRequest).Methods("PATCH")
	r.HandleFunc("/requests/{id:[0-9]+}/publish", h.Publish).Methods("POST")
	r.HandleFunc("/requests/{id:[0-9]+}/cancel", h.CancelRequest).Methods("POST")
	r.HandleFunc("/requests/{id:[0-9]+}/settle", h.Settle).Methods("POST")
	r.HandleFunc("/requests/{id:[0-9]+}/proposals", h.Propose).Methods("POST")
	r.HandleFunc("/requests/{id:[0-9]+}/proposals", h.ListRequestProposals).Methods("GET")

	r.HandleFunc("/proposals", h.ListProposals).Methods("GET")
	r.HandleFunc("/proposals/{id:[0-9]+}", h.GetProposal).Methods("GET")
	r.HandleFunc("/proposals/{id:[0-9]+}/accept", h.AcceptProposal).Methods("POST")
	r.HandleFunc("/proposals/{id:[0-9]+}/reject", h.RejectProposal).Methods("POST")
	r.HandleFunc("/proposals/{id:[0-9]+}/withdraw", h.WithdrawProposal).Methods("POST")
	r.HandleFunc("/proposals/{id:[0-9]+}/cancel", h.CancelSession).Methods("POST")
	r.HandleFunc("/proposals/{id:[0-9]+}/rating", h.RateTeacher).Methods("POST")

	r.HandleFunc("/balance", h.GetBalance).Methods("GET")
	r.HandleFunc("/history", h.GetTransactionHistory).Methods("GET")
	r.HandleFunc("/history/{id:[0-9]+}", h.GetTransaction).Methods("GET")
	r.HandleFunc("/reconcile", h.Reconcile).Methods("GET")
	r.HandleFunc("/internal/top-ups", h.TopUp).Methods("POST")
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.member(w, r)
	if !ok {
		return
	}
	var req models.NewRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := h.workflow.CreateRequest(r.Context(), memberID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.member(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := repository.RequestFilter{
		Status:   models.RequestStatus(q.Get("status")),
		Tag:      strings.ToLower(strings.TrimSpace(q.Get("tag"))),
		ViewerID: memberID,
	}
	var err error
	if f.OwnerID, err = queryInt64(q.Get("owner")); err != nil {
		h.writeError(w, r, err)
		return
	}
	if f.Limit, f.Offset, err = pagination(r); err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.workflow.ListRequests(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.member(w, r)
	if !ok {
		return
	}
	out, err := h.workflow.GetRequest(r.Context(), pathID(r), memberID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) UpdateRequest(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.member(w, r)
	if !ok {
		return
	}
	var patch models.RequestPatch
	if !decode(w, r, &patch) {
		return
	}
	out, err := h.workflow.UpdateRequest(r.Context(), pathID(r), memberID, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	h.requestAction(w, r, h.workflow.Publish)
}

func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	h.requestAction(w, r, h.workflow.CancelRequest)
}

func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.member(w, r)
	if !ok {
		return
	}
	var req struct {
		ElapsedMinutes int64 `json:"elapsed_minutes"`
	}
	if !decode(w, r, &req) {
		return
	}
	out, err := h.workflow.Settle(r.Context(), pathID(r), memberID, req.ElapsedMinutes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Propose(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.member(w, r)
	if !ok {
		return
	}
	var req models.NewProposal
	if !decode(w, r, &req) {
		return
	}
	out, err := h.workflow.Propose(r.Context(), pathID(r), memberID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// ListRequestProposals lists the proposals of a request the caller can see.
func (h *Handler) ListRequestProposals(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.member(w, r)
	if !ok {
		return
	}
	req, err := h.workflow.GetRequest(r.Context(), pathID(r), memberID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	f := repository.ProposalFilter{RequestID: req.ID, Status: models.ProposalStatus(r.URL.Query().Get("status"))}
	if f.Limit, f.Offset, err = pagination(r); err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.workflow.ListProposals(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ListProposals returns the caller's sent proposals (role=teacher, the default) or the
// proposals received on their requests (role=student).
func (h *Handler) ListProposals(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.member(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := repository.ProposalFilter{Status: models.ProposalStatus(q.Get("status"))}
	switch q.Get("role") {
	case "", "teacher":
		f.TeacherID = memberID
	case "student":
		f.StudentID = memberID
	default:
		h.writeError(w, r, fmt.Errorf("%w: role must be teacher or student", pkgerrors.ErrInvalidInput))
		return
	}
	var err error
	if f.Limit, f.Offset, err = pagination(r); err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.workflow.ListProposals(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetProposal(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.member(w, r); !ok {
		return
	}
	out, err := h.workflow.GetProposal(r.Context(), pathID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) AcceptProposal(w http.ResponseWriter, r *http.Request) {
	h.proposalAction(w, r, h.workflow.AcceptProposal)
}

func (h *Handler) RejectProposal(w http.ResponseWriter, r *http.Request) {
	h.proposalAction(w, r, h.workflow.RejectProposal)
}

func (h *Handler) WithdrawProposal(w http.ResponseWriter, r *http.Request) {
	h.proposalAction(w, r, h.workflow.WithdrawProposal)
}

func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	h.proposalAction(w, r, h.workflow.CancelSession)
}

func (h *Handler) RateTeacher(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.member(w, r)
	if !ok {
		return
	}
	var req struct {
		Score decimal.Decimal `json:"score"`
	}
	if !decode(w, r, &req) {
		return
	}
	out, err := h.workflow.RateTeacher(r.Context(), pathID(r), memberID, req.Score)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.member(w, r)
	if !ok {
		return
	}
	balance, err := h.accounts.GetBalance(r.Context(), memberID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (h *Handler) GetTransactionHistory(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.member(w, r)
	if !ok {
		return
	}
	limit, offset, err := pagination(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	transactions, err := h.accounts.GetTransactionHistory(r.Context(), memberID, limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transactions)
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.member(w, r)
	if !ok {
		return
	}
	entry, err := h.accounts.GetTransaction(r.Context(), pathID(r), memberID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Reconcile audits the caller; the system member may audit anyone with ?member=.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.member(w, r)
	if !ok {
		return
	}
	target := memberID
	if raw := r.URL.Query().Get("member"); raw != "" {
		id, err := queryInt64(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if id != memberID && memberID != h.systemMemberID {
			h.writeError(w, r, fmt.Errorf("%w: only the system member can audit other members", pkgerrors.ErrForbidden))
			return
		}
		target = id
	}
	out, err := h.accounts.Reconcile(r.Context(), target)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.member(w, r)
	if !ok {
		return
	}
	if memberID != h.systemMemberID {
		h.writeError(w, r, fmt.Errorf("%w: top-ups are issued by the system member", pkgerrors.ErrForbidden))
		return
	}
	var req struct {
		MemberID int64 `json:"member_id"`
		Minutes  int64 `json:"minutes"`
	}
	if !decode(w, r, &req) {
		return
	}
	entry, err := h.accounts.TopUp(r.Context(), req.MemberID, req.Minutes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) requestAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, requestID, actorID int64) (*models.Request, error)) {
	memberID, ok := h.member(w, r)
	if !ok {
		return
	}
	out, err := fn(r.Context(), pathID(r), memberID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) proposalAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, proposalID, actorID int64) (*models.Proposal, error)) {
	memberID, ok := h.member(w, r)
	if !ok {
		return
	}
	out, err := fn(r.Context(), pathID(r), memberID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) member(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := auth.MemberID(r.Context())
	if !ok {
		h.writeError(w, r, errUnauthenticated)
	}
	return id, ok
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("%v: malformed body: %v", pkgerrors.ErrInvalidInput, err)})
		return false
	}
	return true
}

// pathID reads the {id} route variable; the route pattern guarantees digits.
func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func queryInt64(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %q is not a valid id", pkgerrors.ErrInvalidInput, raw)
	}
	return v, nil
}

func pagination(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &limit}, {"offset", &offset}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, convErr := strconv.Atoi(raw)
		if convErr != nil || v < 0 {
			return 0, 0, fmt.Errorf("%w: %s must be a non-negative integer", pkgerrors.ErrInvalidInput, p.name)
		}
		*p.dst = v
	}
	return limit, offset, nil
}
