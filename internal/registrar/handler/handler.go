package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"namehaus/internal/pricing"
	"namehaus/internal/registrar"
	"namehaus/pkg/domain"
	dErrors "namehaus/pkg/domain-errors"
	"namehaus/pkg/platform/httputil"
	"namehaus/pkg/requestcontext"
)

// Service defines the interface for registration operations.
type Service interface {
	Commit(ctx context.Context, hash registrar.CommitmentHash) error
	Register(ctx context.Context, payer domain.Address, req registrar.RegistrationRequest, payment *big.Int) error
	Renew(ctx context.Context, payer domain.Address, label string, duration time.Duration, referrer domain.Address, payment *big.Int) error
	RentPrice(label string, duration time.Duration) pricing.Quote
	Available(ctx context.Context, label string) (bool, error)
	SetReferrerFeePercentage(ctx context.Context, bps uint32) error
	EmergencyPause(ctx context.Context)
	EmergencyUnpause(ctx context.Context)
	Withdraw(ctx context.Context) error
}

// Handler wires registration endpoints to the registrar service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a registrar handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the public registration endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/registrar/commitment-hash", h.HandleCommitmentHash)
	r.Post("/registrar/commitments", h.HandleCommit)
	r.Post("/registrar/registrations", h.HandleRegister)
	r.Post("/registrar/renewals", h.HandleRenew)
	r.Get("/registrar/price", h.HandleRentPrice)
	r.Get("/registrar/available/{label}", h.HandleAvailable)
}

// RegisterAdmin mounts the operator-only endpoints; the caller wraps the
// router in the operator-token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Put("/registrar/referrer-fee", h.HandleSetReferrerFee)
	r.Post("/registrar/pause", h.HandlePause)
	r.Post("/registrar/unpause", h.HandleUnpause)
	r.Post("/registrar/withdraw", h.HandleWithdraw)
}

// HandleCommitmentHash computes the commitment hash for a registration
// request without touching state. Clients call it before the commit phase.
func (h *Handler) HandleCommitmentHash(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	hash := registrar.MakeCommitment(req.Parsed())
	httputil.WriteJSON(w, http.StatusOK, CommitmentHashResponse{Commitment: hash.Hex()})
}

// HandleCommit handles POST /registrar/commitments requests.
func (h *Handler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CommitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.Commit(ctx, req.ParsedCommitment()); err != nil {
		h.logger.ErrorContext(ctx, "commit failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, StatusResponse{Status: "committed"})
}

// HandleRegister handles POST /registrar/registrations requests.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := req.ValidatePayment(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Register(ctx, req.ParsedPayer(), req.Parsed(), req.ParsedPayment()); err != nil {
		h.logger.ErrorContext(ctx, "registration failed",
			"request_id", requestID,
			"label", req.Label,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "registration completed",
		"request_id", requestID,
		"label", req.Label,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, StatusResponse{Status: "registered"})
}

// HandleRenew handles POST /registrar/renewals requests.
func (h *Handler) HandleRenew(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RenewRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	err := h.service.Renew(ctx, req.ParsedPayer(), req.Label, req.ParsedDuration(), req.ParsedReferrer(), req.ParsedPayment())
	if err != nil {
		h.logger.ErrorContext(ctx, "renewal failed",
			"request_id", requestID,
			"label", req.Label,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "renewed"})
}

// HandleRentPrice handles GET /registrar/price?label=...&duration_seconds=...
func (h *Handler) HandleRentPrice(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")
	if label == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "label query parameter is required"))
		return
	}
	duration, err := parseDurationSeconds(r.URL.Query().Get("duration_seconds"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	quote := h.service.RentPrice(label, duration)
	httputil.WriteJSON(w, http.StatusOK, FromQuote(label, quote))
}

// HandleAvailable handles GET /registrar/available/{label} requests.
func (h *Handler) HandleAvailable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	label := chi.URLParam(r, "label")

	available, err := h.service.Available(ctx, label)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AvailableResponse{
		Label:     label,
		TokenID:   domain.NameHash(label).Hex(),
		Available: available,
	})
}

// HandleSetReferrerFee handles PUT /admin/registrar/referrer-fee requests.
func (h *Handler) HandleSetReferrerFee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[SetReferrerFeeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.SetReferrerFeePercentage(ctx, req.Bps); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "updated"})
}

// HandlePause handles POST /admin/registrar/pause requests.
func (h *Handler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.service.EmergencyPause(r.Context())
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "paused"})
}

// HandleUnpause handles POST /admin/registrar/unpause requests.
func (h *Handler) HandleUnpause(w http.ResponseWriter, r *http.Request) {
	h.service.EmergencyUnpause(r.Context())
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "unpaused"})
}

// HandleWithdraw handles POST /admin/registrar/withdraw requests.
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Withdraw(ctx); err != nil {
		h.logger.ErrorContext(ctx, "withdraw sweep failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "swept"})
}

func parseDurationSeconds(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "duration_seconds query parameter is required")
	}
	seconds, err := time.ParseDuration(raw + "s")
	if err != nil || seconds <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "duration_seconds must be a positive number")
	}
	return seconds, nil
}
