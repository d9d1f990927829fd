package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/roboanalyzer-hub/internal/service"
)

type StatsHandler struct {
	svc    *service.StatsService
	logger *slog.Logger
}

func NewStatsHandler(svc *service.StatsService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{svc: svc, logger: logger}
}

// HandleStats → GET /api/stats. Admins get the system-wide counters too.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	stats, err := h.svc.Stats(r.Context(), user)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}

// HandleLiveness → GET /healthz
func HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
