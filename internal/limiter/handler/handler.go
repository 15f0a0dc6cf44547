package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"namehaus/pkg/domain"
	dErrors "namehaus/pkg/domain-errors"
	"namehaus/pkg/platform/httputil"
	"namehaus/pkg/requestcontext"
)

// Service defines the interface for limiter administration.
type Service interface {
	SetController(controller domain.Address)
	SetMaxRegistrations(max int) error
	SetTimeWindow(window time.Duration) error
	CurrentRegistrations(ctx context.Context, addr domain.Address) (int, error)
}

// Handler wires limiter admin endpoints to the limiter service. All mutating
// routes are operator-only; the registration count is a public read.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a limiter handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the public read endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/limiter/registrations/{address}", h.HandleCurrentRegistrations)
}

// RegisterAdmin mounts the operator-only endpoints; the caller wraps the
// router in the operator-token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Put("/limiter/controller", h.HandleSetController)
	r.Put("/limiter/max-registrations", h.HandleSetMaxRegistrations)
	r.Put("/limiter/time-window", h.HandleSetTimeWindow)
}

// SetControllerRequest is the HTTP request body for registering the
// controller address.
type SetControllerRequest struct {
	Controller string `json:"controller"`

	parsedController domain.Address
}

func (r *SetControllerRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	controller, err := domain.ParseAddress(strings.TrimSpace(r.Controller))
	if err != nil {
		return err
	}
	r.parsedController = controller
	return nil
}

// SetMaxRegistrationsRequest is the HTTP request body for the window cap.
type SetMaxRegistrationsRequest struct {
	Max int `json:"max"`
}

func (r *SetMaxRegistrationsRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	return nil
}

// SetTimeWindowRequest is the HTTP request body for the window span.
type SetTimeWindowRequest struct {
	Seconds int64 `json:"seconds"`
}

func (r *SetTimeWindowRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	return nil
}

// RegistrationsResponse is the JSON body for registration-count reads.
type RegistrationsResponse struct {
	Address string `json:"address"`
	Count   int    `json:"count"`
}

// StatusResponse acknowledges a state transition.
type StatusResponse struct {
	Status string `json:"status"`
}

// HandleCurrentRegistrations handles GET /limiter/registrations/{address}.
func (h *Handler) HandleCurrentRegistrations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	count, err := h.service.CurrentRegistrations(ctx, addr)
	if err != nil {
		h.logger.ErrorContext(ctx, "registration count read failed",
			"request_id", requestcontext.RequestID(ctx),
			"address", addr.Hex(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RegistrationsResponse{Address: addr.Hex(), Count: count})
}

// HandleSetController handles PUT /admin/limiter/controller requests.
func (h *Handler) HandleSetController(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[SetControllerRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	h.service.SetController(req.parsedController)
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "updated"})
}

// HandleSetMaxRegistrations handles PUT /admin/limiter/max-registrations.
func (h *Handler) HandleSetMaxRegistrations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[SetMaxRegistrationsRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.SetMaxRegistrations(req.Max); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "updated"})
}

// HandleSetTimeWindow handles PUT /admin/limiter/time-window requests.
func (h *Handler) HandleSetTimeWindow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[SetTimeWindowRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.SetTimeWindow(time.Duration(req.Seconds) * time.Second); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "updated"})
}
