// Package handler exposes chain connectivity over HTTP: balance reads, pool
// status for operators, and an explicit cache flush.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pact/internal/chain/pool"
	"pact/internal/platform/metrics"
	"pact/internal/platform/middleware"
	id "pact/pkg/domain"
	dErrors "pact/pkg/domain-errors"
	"pact/pkg/platform/httputil"
)

// ChainPool is the pool surface the handler depends on.
type ChainPool interface {
	GetBalance(ctx context.Context, identity string) (float64, error)
	GetTransaction(ctx context.Context, signature string) (json.RawMessage, error)
	Status() []pool.EndpointStatus
	ClearCache(ctx context.Context) error
}

// Subscriptions manages polling balance subscriptions.
type Subscriptions interface {
	Subscribe(identity, subscriber string)
	Unsubscribe(identity, subscriber string)
	UnsubscribeAll(subscriber string)
}

// Handler handles chain endpoints.
type Handler struct {
	pool         ChainPool
	subs         Subscriptions
	logger       *slog.Logger
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a chain Handler. subs may be nil when polling subscriptions
// are disabled.
func New(p ChainPool, subs Subscriptions, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		pool:         p,
		subs:         subs,
		logger:       logger,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register registers the chain routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	cr := chi.NewRouter()
	cr.Use(middleware.Recovery(h.logger))
	cr.Use(middleware.RequestID)
	cr.Use(middleware.Logger(h.logger))
	cr.Use(middleware.Timeout(60 * time.Second))
	cr.Use(middleware.LatencyMiddleware(h.metrics))

	cr.Get("/balance/{publicKey}", h.handleBalance)
	cr.Get("/transaction/{signature}", h.handleTransaction)
	cr.Get("/status", h.handleStatus)

	cr.Group(func(g chi.Router) {
		g.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		g.Post("/cache/clear", h.handleClearCache)
		g.Post("/subscriptions/{publicKey}", h.handleSubscribe)
		g.Delete("/subscriptions/{publicKey}", h.handleUnsubscribe)
	})

	r.Mount("/api/chain", cr)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, err := id.ParsePartyKey(chi.URLParam(r, "publicKey"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	balance, err := h.pool.GetBalance(ctx, key.String())
	if err != nil {
		h.logger.WarnContext(ctx, "balance read failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"public_key": key.String(),
		"balance":    balance,
	})
}

func (h *Handler) handleTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	signature := strings.TrimSpace(chi.URLParam(r, "signature"))
	if signature == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "transaction signature is required"))
		return
	}

	tx, err := h.pool.GetTransaction(ctx, signature)
	if err != nil {
		h.logger.WarnContext(ctx, "transaction read failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"signature":   signature,
		"transaction": tx,
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"endpoints": h.pool.Status(),
	})
}

func (h *Handler) handleClearCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.pool.ClearCache(ctx); err != nil {
		h.logger.ErrorContext(ctx, "cache clear failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "clear balance cache", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	key, err := id.ParsePartyKey(chi.URLParam(r, "publicKey"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if h.subs == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "subscriptions are not enabled"))
		return
	}
	h.subs.Subscribe(key.String(), middleware.GetSubject(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	key, err := id.ParsePartyKey(chi.URLParam(r, "publicKey"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if h.subs == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "subscriptions are not enabled"))
		return
	}
	h.subs.Unsubscribe(key.String(), middleware.GetSubject(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}
