// Package handler exposes the contract lifecycle over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pact/internal/contract/models"
	"pact/internal/platform/metrics"
	"pact/internal/platform/middleware"
	id "pact/pkg/domain"
	dErrors "pact/pkg/domain-errors"
	"pact/pkg/platform/httputil"
)

// Service is the coordinator surface the handler depends on.
type Service interface {
	Create(ctx context.Context, req models.CreateContractRequest) (*models.Contract, error)
	Activate(ctx context.Context, contractID id.ContractID) (*models.Contract, error)
	Sign(ctx context.Context, contractID id.ContractID, req models.SignRequest) (*models.Contract, error)
	Cancel(ctx context.Context, contractID id.ContractID, requestedBy string) (*models.Contract, error)
	Get(ctx context.Context, contractID id.ContractID) (*models.Contract, error)
	List(ctx context.Context) ([]*models.Contract, error)
	Progress(ctx context.Context, contractID id.ContractID) (models.SigningProgress, error)
	AuditTrail(ctx context.Context, contractID id.ContractID) ([]models.AuditEntry, error)

	RaiseDispute(ctx context.Context, contractID id.ContractID, req models.RaiseDisputeRequest) (*models.Dispute, error)
	ReviewDispute(ctx context.Context, contractID id.ContractID, disputeID id.DisputeID, reviewedBy string) (*models.Dispute, error)
	ResolveDispute(ctx context.Context, contractID id.ContractID, disputeID id.DisputeID, req models.ResolveDisputeRequest) (*models.Dispute, error)
	RejectDispute(ctx context.Context, contractID id.ContractID, disputeID id.DisputeID, req models.ResolveDisputeRequest) (*models.Dispute, error)
	ListDisputes(ctx context.Context, contractID id.ContractID) ([]models.Dispute, error)
}

// Handler handles contract and dispute endpoints.
type Handler struct {
	contracts    Service
	logger       *slog.Logger
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a contract Handler.
func New(contracts Service, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		contracts:    contracts,
		logger:       logger,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register registers the contract routes with the chi router. Reads are
// open; mutations require a bearer token.
func (h *Handler) Register(r chi.Router) {
	cr := chi.NewRouter()
	cr.Use(middleware.Recovery(h.logger))
	cr.Use(middleware.RequestID)
	cr.Use(middleware.Logger(h.logger))
	cr.Use(middleware.Timeout(30 * time.Second))
	cr.Use(middleware.ContentTypeJSON)
	cr.Use(middleware.LatencyMiddleware(h.metrics))

	cr.Get("/", h.handleList)
	cr.Get("/{contractID}", h.handleGet)
	cr.Get("/{contractID}/progress", h.handleProgress)
	cr.Get("/{contractID}/audit", h.handleAuditTrail)
	cr.Get("/{contractID}/disputes", h.handleListDisputes)

	cr.Group(func(g chi.Router) {
		g.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		g.Post("/", h.handleCreate)
		g.Post("/{contractID}/activate", h.handleActivate)
		g.Post("/{contractID}/sign", h.handleSign)
		g.Post("/{contractID}/cancel", h.handleCancel)
		g.Post("/{contractID}/disputes", h.handleRaiseDispute)
		g.Post("/{contractID}/disputes/{disputeID}/review", h.handleReviewDispute)
		g.Post("/{contractID}/disputes/{disputeID}/resolve", h.handleResolveDispute)
		g.Post("/{contractID}/disputes/{disputeID}/reject", h.handleRejectDispute)
	})

	r.Mount("/api/contracts", cr)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.CreateContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	contract, err := h.contracts.Create(ctx, req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, contract)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contracts, err := h.contracts.List(ctx)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"contracts": contracts})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contractID, err := parseContractID(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	contract, err := h.contracts.Get(ctx, contractID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, contract)
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contractID, err := parseContractID(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	contract, err := h.contracts.Activate(ctx, contractID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, contract)
}

type signResponse struct {
	Contract *models.Contract       `json:"contract"`
	Progress models.SigningProgress `json:"progress"`
}

func (h *Handler) handleSign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contractID, err := parseContractID(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	var req models.SignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	contract, err := h.contracts.Sign(ctx, contractID, req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, signResponse{
		Contract: contract,
		Progress: contract.Progress(),
	})
}

type cancelRequest struct {
	RequestedBy string `json:"requested_by"`
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contractID, err := parseContractID(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	contract, err := h.contracts.Cancel(ctx, contractID, req.RequestedBy)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, contract)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contractID, err := parseContractID(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	progress, err := h.contracts.Progress(ctx, contractID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, progress)
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contractID, err := parseContractID(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	trail, err := h.contracts.AuditTrail(ctx, contractID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"audit_log": trail})
}

func (h *Handler) handleRaiseDispute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contractID, err := parseContractID(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	var req models.RaiseDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	dispute, err := h.contracts.RaiseDispute(ctx, contractID, req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, dispute)
}

func (h *Handler) handleListDisputes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contractID, err := parseContractID(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	disputes, err := h.contracts.ListDisputes(ctx, contractID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"disputes": disputes})
}

type reviewRequest struct {
	ReviewedBy string `json:"reviewed_by"`
}

func (h *Handler) handleReviewDispute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contractID, disputeID, err := parseDisputeIDs(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	dispute, err := h.contracts.ReviewDispute(ctx, contractID, disputeID, req.ReviewedBy)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, dispute)
}

func (h *Handler) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	h.closeDispute(w, r, h.contracts.ResolveDispute)
}

func (h *Handler) handleRejectDispute(w http.ResponseWriter, r *http.Request) {
	h.closeDispute(w, r, h.contracts.RejectDispute)
}

func (h *Handler) closeDispute(w http.ResponseWriter, r *http.Request,
	closeFn func(context.Context, id.ContractID, id.DisputeID, models.ResolveDisputeRequest) (*models.Dispute, error)) {
	ctx := r.Context()
	contractID, disputeID, err := parseDisputeIDs(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	var req models.ResolveDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	dispute, err := closeFn(ctx, contractID, disputeID, req)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, dispute)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "contract request failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, "contract request rejected",
			"request_id", middleware.GetRequestID(ctx),
			"code", string(code),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}

func parseContractID(r *http.Request) (id.ContractID, error) {
	return id.ParseContractID(chi.URLParam(r, "contractID"))
}

func parseDisputeIDs(r *http.Request) (id.ContractID, id.DisputeID, error) {
	contractID, err := id.ParseContractID(chi.URLParam(r, "contractID"))
	if err != nil {
		return id.ContractID{}, id.DisputeID{}, err
	}
	disputeID, err := id.ParseDisputeID(chi.URLParam(r, "disputeID"))
	if err != nil {
		return id.ContractID{}, id.DisputeID{}, err
	}
	return contractID, disputeID, nil
}
