package compliance

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cargodesk/cargodesk/internal/platform/httpx"
	"github.com/cargodesk/cargodesk/internal/rbac"
)

// Handler exposes monitor status and manual triggering.
type Handler struct {
	scheduler *Scheduler
	logger    *slog.Logger
	rbac      rbac.Middleware
}

// NewHandler constructs the HTTP handler.
func NewHandler(scheduler *Scheduler, logger *slog.Logger, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{scheduler: scheduler, logger: logger, rbac: rbac}
}

// MountRoutes registers compliance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(rbac.PermSupportRead)).Get("/status", h.status)
	r.With(h.rbac.RequireAny(rbac.PermSupportManage)).Post("/run", h.run)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.scheduler.Status())
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	summary, err := h.scheduler.Tick(r.Context())
	if err != nil {
		if errors.Is(err, ErrTickInProgress) {
			httpx.RespondError(w, httpx.ErrConflict)
			return
		}
		h.logger.Error("manual sla tick", slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUnavailable)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
