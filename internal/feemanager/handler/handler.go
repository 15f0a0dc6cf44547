package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"namehaus/internal/feemanager"
	"namehaus/pkg/domain"
	dErrors "namehaus/pkg/domain-errors"
	"namehaus/pkg/platform/httputil"
	"namehaus/pkg/requestcontext"
)

// Service defines the interface for fee manager operations.
type Service interface {
	Balance() *big.Int
	RequestWithdrawal(ctx context.Context, amount *big.Int, recipient domain.Address) (uint64, error)
	ExecuteWithdrawal(ctx context.Context, id uint64) error
	EmergencyWithdraw(ctx context.Context, amount *big.Int) error
	SetTreasury(ctx context.Context, treasury domain.Address) error
	Withdrawal(id uint64) (feemanager.WithdrawalRequest, error)
}

// Handler wires fee manager endpoints to the fee manager service. All routes
// are operator-only.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a fee manager handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterAdmin mounts the operator-only endpoints; the caller wraps the
// router in the operator-token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/fees/balance", h.HandleBalance)
	r.Post("/fees/withdrawals", h.HandleRequestWithdrawal)
	r.Get("/fees/withdrawals/{id}", h.HandleGetWithdrawal)
	r.Post("/fees/withdrawals/{id}/execute", h.HandleExecuteWithdrawal)
	r.Post("/fees/emergency-withdrawal", h.HandleEmergencyWithdraw)
	r.Put("/fees/treasury", h.HandleSetTreasury)
}

// RequestWithdrawalRequest is the HTTP request body for queuing a
// withdrawal.
type RequestWithdrawalRequest struct {
	AmountWei string `json:"amount_wei"`
	Recipient string `json:"recipient"`

	parsedAmount    *big.Int
	parsedRecipient domain.Address
}

func (r *RequestWithdrawalRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	amount, err := domain.ParseWei(r.AmountWei)
	if err != nil {
		return err
	}
	recipient, err := domain.ParseAddress(strings.TrimSpace(r.Recipient))
	if err != nil {
		return err
	}
	r.parsedAmount = amount
	r.parsedRecipient = recipient
	return nil
}

// EmergencyWithdrawRequest is the HTTP request body for the capped
// timelock-bypass path.
type EmergencyWithdrawRequest struct {
	AmountWei string `json:"amount_wei"`

	parsedAmount *big.Int
}

func (r *EmergencyWithdrawRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	amount, err := domain.ParseWei(r.AmountWei)
	if err != nil {
		return err
	}
	r.parsedAmount = amount
	return nil
}

// SetTreasuryRequest is the HTTP request body for pointing the emergency
// payout path at a new treasury.
type SetTreasuryRequest struct {
	Treasury string `json:"treasury"`

	parsedTreasury domain.Address
}

func (r *SetTreasuryRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	treasury, err := domain.ParseAddress(strings.TrimSpace(r.Treasury))
	if err != nil {
		return err
	}
	r.parsedTreasury = treasury
	return nil
}

// BalanceResponse is the JSON body for balance reads.
type BalanceResponse struct {
	BalanceWei string `json:"balance_wei"`
}

// WithdrawalResponse is the JSON body for withdrawal reads and creation.
type WithdrawalResponse struct {
	ID            uint64    `json:"id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	AmountWei     string    `json:"amount_wei,omitempty"`
	Recipient     string    `json:"recipient,omitempty"`
	RequestedAt   time.Time `json:"requested_at,omitempty"`
	Executed      bool      `json:"executed"`
}

// StatusResponse acknowledges a state transition.
type StatusResponse struct {
	Status string `json:"status"`
}

// HandleBalance handles GET /admin/fees/balance requests.
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{BalanceWei: h.service.Balance().String()})
}

// HandleRequestWithdrawal handles POST /admin/fees/withdrawals requests.
func (h *Handler) HandleRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RequestWithdrawalRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	id, err := h.service.RequestWithdrawal(ctx, req.parsedAmount, req.parsedRecipient)
	if err != nil {
		h.logger.ErrorContext(ctx, "withdrawal request failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, WithdrawalResponse{ID: id})
}

// HandleGetWithdrawal handles GET /admin/fees/withdrawals/{id} requests.
func (h *Handler) HandleGetWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := parseWithdrawalID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := h.service.Withdrawal(id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, WithdrawalResponse{
		ID:            req.ID,
		CorrelationID: req.CorrelationID,
		AmountWei:     req.Amount.String(),
		Recipient:     req.Recipient.Hex(),
		RequestedAt:   req.RequestedAt,
		Executed:      req.Executed,
	})
}

// HandleExecuteWithdrawal handles POST /admin/fees/withdrawals/{id}/execute.
func (h *Handler) HandleExecuteWithdrawal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := parseWithdrawalID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.ExecuteWithdrawal(ctx, id); err != nil {
		h.logger.ErrorContext(ctx, "withdrawal execution failed",
			"request_id", requestcontext.RequestID(ctx),
			"withdrawal_id", id,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "executed"})
}

// HandleEmergencyWithdraw handles POST /admin/fees/emergency-withdrawal.
func (h *Handler) HandleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[EmergencyWithdrawRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.EmergencyWithdraw(ctx, req.parsedAmount); err != nil {
		h.logger.ErrorContext(ctx, "emergency withdrawal failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "withdrawn"})
}

// HandleSetTreasury handles PUT /admin/fees/treasury requests.
func (h *Handler) HandleSetTreasury(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[SetTreasuryRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.SetTreasury(ctx, req.parsedTreasury); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "updated"})
}

func parseWithdrawalID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid withdrawal id")
	}
	return id, nil
}
