// Package health реализует проверку готовности сервиса.
package health

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/stablecoin-gateway/internal/http/response"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/lib/sl"
)

// ReadinessChecker описывает проверку готовности зависимостей сервиса.
type ReadinessChecker func() error

// Handler обрабатывает запросы проверки готовности.
type Handler struct {
	log   *slog.Logger
	check ReadinessChecker
}

// New создает новый Handler с переданными логгером и проверкой.
func New(log *slog.Logger, check ReadinessChecker) *Handler {
	return &Handler{
		log:   log,
		check: check,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.health"
	if err := h.check(); err != nil {
		h.log.Error("readiness check failed", slog.String("op", op), sl.Err(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error("service is not ready"))
		return
	}
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"status": "ok",
	}))
}
