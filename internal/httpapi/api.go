// Package httpapi is the HTTP layer: routing, middleware, and handlers for
// the credential endpoints, the public key set, and operational probes.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/polyshop/auth-service/internal/admission"
	"github.com/polyshop/auth-service/internal/keys"
	"github.com/polyshop/auth-service/internal/notify"
	"github.com/polyshop/auth-service/internal/obs"
	"github.com/polyshop/auth-service/internal/opaque"
	"github.com/polyshop/auth-service/internal/token"
	"github.com/polyshop/auth-service/internal/user"
)

// ReadyProbe checks readiness (for example a DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// AdmissionPolicy holds the window sizes applied by the admission gate.
type AdmissionPolicy struct {
	IPMax          int
	IPWindowSec    int
	IdentMax       int
	IdentWindowSec int
}

// DefaultAdmissionPolicy mirrors the production defaults: a coarse per-IP
// window and a strict per-identifier window.
func DefaultAdmissionPolicy() AdmissionPolicy {
	return AdmissionPolicy{IPMax: 30, IPWindowSec: 60, IdentMax: 5, IdentWindowSec: 3600}
}

// Deps carries everything the HTTP layer needs.
type Deps struct {
	Issuer  *token.Issuer
	Tokens  *opaque.Service
	Users   user.Directory
	Keyring *keys.Manager
	Limiter *admission.Limiter
	Bans    *admission.Banlist
	Sender  notify.Sender
	Policy  AdmissionPolicy
	Ready   ReadyProbe
	Version string
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	issuer     *token.Issuer
	tokens     *opaque.Service
	users      user.Directory
	keyring    *keys.Manager
	limiter    *admission.Limiter
	bans       *admission.Banlist
	sender     notify.Sender
	policy     AdmissionPolicy
	readyProbe ReadyProbe
	version    string
}

// New wires the routes. Credential-issuing endpoints go through the admission
// gate; session endpoints go through bearer authentication.
func New(d Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		issuer:     d.Issuer,
		tokens:     d.Tokens,
		users:      d.Users,
		keyring:    d.Keyring,
		limiter:    d.Limiter,
		bans:       d.Bans,
		sender:     d.Sender,
		policy:     d.Policy,
		readyProbe: d.Ready,
		version:    d.Version,
	}
	if a.sender == nil {
		a.sender = notify.LogSender{}
	}
	if a.policy == (AdmissionPolicy{}) {
		a.policy = DefaultAdmissionPolicy()
	}

	guarded := func(h http.HandlerFunc) http.Handler { return a.admission(h) }

	a.mux.Handle("/v1/auth/register", guarded(a.handleRegister))
	a.mux.Handle("/v1/auth/login", guarded(a.handleLogin))
	a.mux.Handle("/v1/auth/refresh", guarded(a.handleRefresh))
	a.mux.Handle("/v1/auth/password-reset/request", guarded(a.handlePasswordResetRequest))
	a.mux.Handle("/v1/auth/password-reset/confirm", guarded(a.handlePasswordResetConfirm))
	a.mux.Handle("/v1/auth/email/request", guarded(a.handleEmailVerifyRequest))
	a.mux.Handle("/v1/auth/email/confirm", guarded(a.handleEmailVerifyConfirm))
	a.mux.Handle("/v1/auth/phone/request", guarded(a.handlePhoneOTPRequest))
	a.mux.Handle("/v1/auth/phone/verify", guarded(a.handlePhoneOTPVerify))
	a.mux.Handle("/v1/auth/restore/request", guarded(a.handleRestoreRequest))
	a.mux.Handle("/v1/auth/restore/confirm", guarded(a.handleRestoreConfirm))

	a.mux.Handle("/v1/auth/logout", a.requireAuth(http.HandlerFunc(a.handleLogout)))
	a.mux.Handle("/v1/auth/me", a.requireAuth(http.HandlerFunc(a.handleMe)))
	a.mux.Handle("/v1/auth/totp/setup", a.requireAuth(http.HandlerFunc(a.handleTOTPSetup)))
	a.mux.Handle("/v1/auth/totp/enable", a.requireAuth(http.HandlerFunc(a.handleTOTPEnable)))

	a.mux.Handle("/v1/admin/bans", a.requireAuth(http.HandlerFunc(a.handleAdminBans)))

	a.mux.HandleFunc("/.well-known/jwks.json", a.handleJWKS)
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = RateLimit(h, 20, 10)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// Healthz reports liveness.
func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"name":    "auth-service",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// Ready reports readiness, including a DB ping when one is configured.
func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ok":    false,
			"error": "dependency not ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleJWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	doc, err := a.keyring.JWKS()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(doc)
}
