package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/polyshop/auth-service/internal/audit"
	"github.com/polyshop/auth-service/internal/token"
)

type banRequest struct {
	Key      string `json:"key"`
	Duration string `json:"duration"`
	Reason   string `json:"reason"`
}

// handleAdminBans manages the persistent ban list. POST adds or extends a
// ban, DELETE lifts one. Admin role required.
func (a *API) handleAdminBans(w http.ResponseWriter, r *http.Request) {
	if !token.HasRole(r.Context(), "admin") {
		writeError(w, r, http.StatusForbidden, "admin role required")
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req banRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		key := strings.TrimSpace(req.Key)
		if key == "" {
			writeError(w, r, http.StatusBadRequest, "key is required")
			return
		}
		d, err := time.ParseDuration(req.Duration)
		if err != nil || d <= 0 {
			writeError(w, r, http.StatusBadRequest, "duration must be a positive duration string")
			return
		}
		if err := a.bans.BanFor(r.Context(), key, d, req.Reason); err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		_ = audit.LogEvent(r.Context(), "admin.ban.added", map[string]any{"key": key, "duration": d.String()})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case http.MethodDelete:
		key := strings.TrimSpace(r.URL.Query().Get("key"))
		if key == "" {
			writeError(w, r, http.StatusBadRequest, "key is required")
			return
		}
		if err := a.bans.Unban(r.Context(), key); err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		_ = audit.LogEvent(r.Context(), "admin.ban.lifted", map[string]any{"key": key})
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}
