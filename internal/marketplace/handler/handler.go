package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"namehaus/internal/marketplace"
	"namehaus/pkg/domain"
	"namehaus/pkg/platform/httputil"
	"namehaus/pkg/requestcontext"
)

// Service defines the interface for marketplace operations.
type Service interface {
	CreateListing(ctx context.Context, caller domain.Address, tokenID domain.TokenID, price *big.Int) error
	CancelListing(ctx context.Context, caller domain.Address, tokenID domain.TokenID) error
	BuyListing(ctx context.Context, buyer domain.Address, tokenID domain.TokenID, payment *big.Int) error
	GetListing(tokenID domain.TokenID) (marketplace.Listing, error)
	CreateAuction(ctx context.Context, caller domain.Address, tokenID domain.TokenID, startPrice *big.Int, duration time.Duration) error
	PlaceBid(ctx context.Context, bidder domain.Address, tokenID domain.TokenID, payment *big.Int) error
	SettleAuction(ctx context.Context, tokenID domain.TokenID) error
	CancelAuction(ctx context.Context, caller domain.Address, tokenID domain.TokenID) error
	GetAuction(tokenID domain.TokenID) (marketplace.Auction, error)
	WithdrawPendingReturns(ctx context.Context, caller domain.Address) (*big.Int, error)
	PendingReturns(addr domain.Address) *big.Int
	SetFee(ctx context.Context, bps uint32) error
	SetMinBidIncrement(bps uint32) error
	Pause()
	Unpause()
	SweepFees(ctx context.Context) error
}

// Handler wires marketplace endpoints to the marketplace service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a marketplace handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the public marketplace endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/market/listings", h.HandleCreateListing)
	r.Get("/market/listings/{tokenID}", h.HandleGetListing)
	r.Post("/market/listings/{tokenID}/cancel", h.HandleCancelListing)
	r.Post("/market/listings/{tokenID}/buy", h.HandleBuyListing)

	r.Post("/market/auctions", h.HandleCreateAuction)
	r.Get("/market/auctions/{tokenID}", h.HandleGetAuction)
	r.Post("/market/auctions/{tokenID}/bids", h.HandlePlaceBid)
	r.Post("/market/auctions/{tokenID}/settle", h.HandleSettleAuction)
	r.Post("/market/auctions/{tokenID}/cancel", h.HandleCancelAuction)

	r.Post("/market/returns/withdraw", h.HandleWithdrawPendingReturns)
	r.Get("/market/returns/{address}", h.HandleGetPendingReturns)
}

// RegisterAdmin mounts the operator-only endpoints; the caller wraps the
// router in the operator-token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Put("/market/fee", h.HandleSetFee)
	r.Put("/market/min-bid-increment", h.HandleSetMinBidIncrement)
	r.Post("/market/pause", h.HandlePause)
	r.Post("/market/unpause", h.HandleUnpause)
	r.Post("/market/sweep-fees", h.HandleSweepFees)
}

// HandleCreateListing handles POST /market/listings requests.
func (h *Handler) HandleCreateListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateListingRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.CreateListing(ctx, req.ParsedSeller(), req.ParsedTokenID(), req.ParsedPrice()); err != nil {
		h.logger.ErrorContext(ctx, "create listing failed",
			"request_id", requestID,
			"token_id", req.TokenID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, StatusResponse{Status: "listed"})
}

// HandleGetListing handles GET /market/listings/{tokenID} requests.
func (h *Handler) HandleGetListing(w http.ResponseWriter, r *http.Request) {
	tokenID, err := domain.ParseTokenID(chi.URLParam(r, "tokenID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	listing, err := h.service.GetListing(tokenID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromListing(listing))
}

// HandleCancelListing handles POST /market/listings/{tokenID}/cancel.
func (h *Handler) HandleCancelListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	tokenID, err := domain.ParseTokenID(chi.URLParam(r, "tokenID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CallerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.CancelListing(ctx, req.ParsedCaller(), tokenID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "cancelled"})
}

// HandleBuyListing handles POST /market/listings/{tokenID}/buy requests.
func (h *Handler) HandleBuyListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	tokenID, err := domain.ParseTokenID(chi.URLParam(r, "tokenID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[PaymentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.BuyListing(ctx, req.ParsedCaller(), tokenID, req.ParsedPayment()); err != nil {
		h.logger.ErrorContext(ctx, "buy listing failed",
			"request_id", requestID,
			"token_id", tokenID.Hex(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "listing bought",
		"request_id", requestID,
		"token_id", tokenID.Hex(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "sold"})
}

// HandleCreateAuction handles POST /market/auctions requests.
func (h *Handler) HandleCreateAuction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateAuctionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	err := h.service.CreateAuction(ctx, req.ParsedSeller(), req.ParsedTokenID(), req.ParsedStartPrice(), req.ParsedDuration())
	if err != nil {
		h.logger.ErrorContext(ctx, "create auction failed",
			"request_id", requestID,
			"token_id", req.TokenID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, StatusResponse{Status: "auction_created"})
}

// HandleGetAuction handles GET /market/auctions/{tokenID} requests.
func (h *Handler) HandleGetAuction(w http.ResponseWriter, r *http.Request) {
	tokenID, err := domain.ParseTokenID(chi.URLParam(r, "tokenID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	auction, err := h.service.GetAuction(tokenID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAuction(auction))
}

// HandlePlaceBid handles POST /market/auctions/{tokenID}/bids requests.
func (h *Handler) HandlePlaceBid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	tokenID, err := domain.ParseTokenID(chi.URLParam(r, "tokenID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[PaymentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.PlaceBid(ctx, req.ParsedCaller(), tokenID, req.ParsedPayment()); err != nil {
		h.logger.ErrorContext(ctx, "bid failed",
			"request_id", requestID,
			"token_id", tokenID.Hex(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "bid_placed"})
}

// HandleSettleAuction handles POST /market/auctions/{tokenID}/settle.
func (h *Handler) HandleSettleAuction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tokenID, err := domain.ParseTokenID(chi.URLParam(r, "tokenID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.SettleAuction(ctx, tokenID); err != nil {
		h.logger.ErrorContext(ctx, "settle failed",
			"request_id", requestcontext.RequestID(ctx),
			"token_id", tokenID.Hex(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "settled"})
}

// HandleCancelAuction handles POST /market/auctions/{tokenID}/cancel.
func (h *Handler) HandleCancelAuction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	tokenID, err := domain.ParseTokenID(chi.URLParam(r, "tokenID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CallerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.CancelAuction(ctx, req.ParsedCaller(), tokenID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "cancelled"})
}

// HandleWithdrawPendingReturns handles POST /market/returns/withdraw.
func (h *Handler) HandleWithdrawPendingReturns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CallerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	amount, err := h.service.WithdrawPendingReturns(ctx, req.ParsedCaller())
	if err != nil {
		h.logger.ErrorContext(ctx, "pending-returns withdrawal failed",
			"request_id", requestID,
			"caller", req.Caller,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PendingReturnsResponse{
		Address:   req.ParsedCaller().Hex(),
		AmountWei: amount.String(),
	})
}

// HandleGetPendingReturns handles GET /market/returns/{address} requests.
func (h *Handler) HandleGetPendingReturns(w http.ResponseWriter, r *http.Request) {
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PendingReturnsResponse{
		Address:   addr.Hex(),
		AmountWei: h.service.PendingReturns(addr).String(),
	})
}

// HandleSetFee handles PUT /admin/market/fee requests.
func (h *Handler) HandleSetFee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[SetFeeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.SetFee(ctx, req.Bps); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "updated"})
}

// HandleSetMinBidIncrement handles PUT /admin/market/min-bid-increment.
func (h *Handler) HandleSetMinBidIncrement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[SetFeeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.SetMinBidIncrement(req.Bps); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "updated"})
}

// HandlePause handles POST /admin/market/pause requests.
func (h *Handler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.service.Pause()
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "paused"})
}

// HandleUnpause handles POST /admin/market/unpause requests.
func (h *Handler) HandleUnpause(w http.ResponseWriter, r *http.Request) {
	h.service.Unpause()
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "unpaused"})
}

// HandleSweepFees handles POST /admin/market/sweep-fees requests.
func (h *Handler) HandleSweepFees(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.SweepFees(ctx); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "swept"})
}
