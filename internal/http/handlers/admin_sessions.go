package handlers

import (
	"net/http"

	"github.com/wolfman30/wa-retell-relay/internal/http/middleware"
	"github.com/wolfman30/wa-retell-relay/internal/session"
	"github.com/wolfman30/wa-retell-relay/pkg/logging"
)

// AdminSessionsHandler exposes administrative operations on the session store.
type AdminSessionsHandler struct {
	store  session.Store
	logger *logging.Logger
}

func NewAdminSessionsHandler(store session.Store, logger *logging.Logger) *AdminSessionsHandler {
	if store == nil {
		panic("handlers: session store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminSessionsHandler{store: store, logger: logger}
}

// ClearSessions handles POST /clear-sessions. Senders start fresh conversations afterwards.
func (h *AdminSessionsHandler) ClearSessions(w http.ResponseWriter, r *http.Request) {
	cleared := h.store.Len()
	h.store.ClearAll()

	actor := "anonymous"
	if claims, ok := middleware.AdminClaimsFromContext(r.Context()); ok && claims.Subject != "" {
		actor = claims.Subject
	}
	h.logger.Info("sessions cleared", "cleared", cleared, "actor", actor)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "cleared": cleared})
}
