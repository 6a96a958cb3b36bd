package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/polyshop/auth-service/internal/obs"
)

// identifierFields is the loose shape the gate inspects for the strict
// per-identifier window. Unknown fields are ignored; the handler performs
// the real decode later.
type identifierFields struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// admission gates a credential-issuing endpoint: ban check, then the coarse
// per-IP window, then — when the payload carries an email or phone — the
// strict per-identifier window. The body is buffered and restored so the
// downstream handler can read it in full.
func (a *API) admission(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if ip == "" {
			ip = "unknown"
		}

		if a.bans.IsBanned(r.Context(), "IP:"+ip) {
			obs.AdmissionRejected.WithLabelValues("banned").Inc()
			writeError(w, r, http.StatusForbidden, "access denied")
			return
		}

		if !a.limiter.Allow("IP:"+ip, a.policy.IPMax, a.policy.IPWindowSec) {
			rejectRateLimited(w, r, "ip_window", a.policy.IPWindowSec)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		for _, key := range identifierKeys(body) {
			if a.bans.IsBanned(r.Context(), key) {
				obs.AdmissionRejected.WithLabelValues("banned").Inc()
				writeError(w, r, http.StatusForbidden, "access denied")
				return
			}
			if !a.limiter.Allow(key, a.policy.IdentMax, a.policy.IdentWindowSec) {
				rejectRateLimited(w, r, "identifier_window", a.policy.IdentWindowSec)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// identifierKeys extracts normalized admission keys from a JSON payload.
// Non-JSON or identifier-free payloads yield nothing; only the IP window
// applies to those requests.
func identifierKeys(body []byte) []string {
	var fields identifierFields
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil
	}
	var keys []string
	if email := strings.ToLower(strings.TrimSpace(fields.Email)); email != "" {
		keys = append(keys, "EMAIL:"+email)
	}
	if phone := strings.TrimSpace(fields.Phone); phone != "" {
		keys = append(keys, "PHONE:"+phone)
	}
	return keys
}

func rejectRateLimited(w http.ResponseWriter, r *http.Request, cause string, windowSeconds int) {
	obs.AdmissionRejected.WithLabelValues(cause).Inc()
	w.Header().Set("Retry-After", strconv.Itoa(windowSeconds))
	writeError(w, r, http.StatusTooManyRequests, "too many requests")
}
