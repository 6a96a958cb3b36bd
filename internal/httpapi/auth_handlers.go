package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/polyshop/auth-service/internal/audit"
	"github.com/polyshop/auth-service/internal/opaque"
	"github.com/polyshop/auth-service/internal/token"
	"github.com/polyshop/auth-service/internal/totp"
	"github.com/polyshop/auth-service/internal/user"
)

const totpSkewWindows = 1

type registerRequest struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type sessionResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, r, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := user.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	u := &user.User{
		Email:        email,
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hash,
		Roles:        []string{"user"},
	}
	if err := a.users.Create(r.Context(), u); err != nil {
		if errors.Is(err, user.ErrAlreadyExists) {
			writeError(w, r, http.StatusConflict, "account already exists")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	secret, _, err := a.tokens.Issue(r.Context(), u.ID, opaque.KindEmailVerification, 0)
	if err == nil {
		_ = a.sender.Send(r.Context(), u.Email, "Verify your email", secret)
	}

	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{"user_id": u.ID})
	writeJSON(w, http.StatusCreated, map[string]any{"id": u.ID, "email": u.Email})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// Unknown account and wrong password produce the same answer so the
	// endpoint cannot be used to enumerate identifiers.
	u, err := a.users.FindByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := user.VerifyPassword(u.PasswordHash, req.Password); err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if u.Status != user.StatusActive {
		writeError(w, r, http.StatusForbidden, "account is not active")
		return
	}
	if u.TOTPEnabled {
		if req.TOTPCode == "" {
			writeError(w, r, http.StatusUnauthorized, "totp code required")
			return
		}
		if !totp.Verify(u.TOTPSecret, req.TOTPCode, totpSkewWindows) {
			writeError(w, r, http.StatusUnauthorized, "invalid totp code")
			return
		}
	}

	resp, err := a.openSession(r, u)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{"user_id": u.ID})
	writeJSON(w, http.StatusOK, resp)
}

// openSession mints the bearer + refresh pair and records the session row
// keyed by the bearer's jti.
func (a *API) openSession(r *http.Request, u *user.User) (*sessionResponse, error) {
	signed, claims, err := a.issuer.Issue(u.ID, u.Roles, "")
	if err != nil {
		return nil, err
	}
	if err := a.tokens.TrackAccess(r.Context(), u.ID, claims.ID, a.issuer.TTL()); err != nil {
		return nil, err
	}
	refresh, _, err := a.tokens.Issue(r.Context(), u.ID, opaque.KindRefresh, 0)
	if err != nil {
		return nil, err
	}
	return &sessionResponse{
		AccessToken:  signed,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	next, rotated, err := a.tokens.RotateRefresh(r.Context(), req.RefreshToken, 0)
	if err != nil {
		writeOpaqueError(w, r, err)
		return
	}
	u, err := a.users.Find(r.Context(), rotated.OwnerID)
	if err != nil || u.Status != user.StatusActive {
		writeError(w, r, http.StatusForbidden, "account is not active")
		return
	}

	signed, claims, err := a.issuer.Issue(u.ID, u.Roles, "")
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if err := a.tokens.TrackAccess(r.Context(), u.ID, claims.ID, a.issuer.TTL()); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		AccessToken:  signed,
		RefreshToken: next,
		TokenType:    "Bearer",
		ExpiresAt:    claims.ExpiresAt.Time,
	})
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	Everywhere   bool   `json:"everywhere"`
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	subject, _ := token.SubjectFromContext(r.Context())
	jti, _ := token.TokenIDFromContext(r.Context())

	var req logoutRequest
	// The body is optional: a bare logout kills only the current session.
	_ = decodeJSON(w, r, &req)

	if req.Everywhere {
		if err := a.tokens.RevokeAllForOwner(r.Context(), subject); err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
	} else {
		if err := a.tokens.RevokeAccess(r.Context(), jti); err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		if req.RefreshToken != "" {
			_ = a.tokens.Revoke(r.Context(), req.RefreshToken)
		}
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{"everywhere": req.Everywhere})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	subject, _ := token.SubjectFromContext(r.Context())
	u, err := a.users.Find(r.Context(), subject)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":             u.ID,
		"email":          u.Email,
		"phone":          u.Phone,
		"status":         u.Status,
		"roles":          u.Roles,
		"email_verified": u.EmailVerified,
		"phone_verified": u.PhoneVerified,
		"totp_enabled":   u.TOTPEnabled,
	})
}

type identifierRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (a *API) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	a.issueByEmail(w, r, opaque.KindPasswordReset, "Reset your password", "auth.password_reset.requested")
}

type confirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (a *API) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req confirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, r, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	tok, err := a.tokens.ValidateAndConsume(r.Context(), req.Token, opaque.KindPasswordReset)
	if err != nil {
		writeOpaqueError(w, r, err)
		return
	}
	hash, err := user.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if err := a.users.UpdatePassword(r.Context(), tok.OwnerID, hash); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	// A password change invalidates everything previously issued.
	if err := a.tokens.RevokeAllForOwner(r.Context(), tok.OwnerID); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password_reset.confirmed", map[string]any{"user_id": tok.OwnerID})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleEmailVerifyRequest(w http.ResponseWriter, r *http.Request) {
	a.issueByEmail(w, r, opaque.KindEmailVerification, "Verify your email", "auth.email_verification.requested")
}

type tokenOnlyRequest struct {
	Token string `json:"token"`
}

func (a *API) handleEmailVerifyConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req tokenOnlyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tok, err := a.tokens.ValidateAndConsume(r.Context(), req.Token, opaque.KindEmailVerification)
	if err != nil {
		writeOpaqueError(w, r, err)
		return
	}
	if err := a.users.SetEmailVerified(r.Context(), tok.OwnerID, true); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.email_verification.confirmed", map[string]any{"user_id": tok.OwnerID})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handlePhoneOTPRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req identifierRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		writeError(w, r, http.StatusBadRequest, "phone is required")
		return
	}

	// The response never reveals whether the phone is registered.
	if u, err := a.users.FindByPhone(r.Context(), phone); err == nil {
		if secret, _, err := a.tokens.Issue(r.Context(), u.ID, opaque.KindPhoneOTP, 0); err == nil {
			_ = a.sender.Send(r.Context(), phone, "Your verification code", secret)
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (a *API) handlePhoneOTPVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req tokenOnlyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tok, err := a.tokens.ValidateAndConsume(r.Context(), req.Token, opaque.KindPhoneOTP)
	if err != nil {
		writeOpaqueError(w, r, err)
		return
	}
	if err := a.users.SetPhoneVerified(r.Context(), tok.OwnerID, true); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.phone.verified", map[string]any{"user_id": tok.OwnerID})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleRestoreRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req identifierRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}

	if u, err := a.users.FindByEmail(r.Context(), email); err == nil && u.Status != user.StatusActive {
		if secret, _, err := a.tokens.Issue(r.Context(), u.ID, opaque.KindAccountRestore, 0); err == nil {
			_ = a.sender.Send(r.Context(), u.Email, "Restore your account", secret)
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (a *API) handleRestoreConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req tokenOnlyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tok, err := a.tokens.ValidateAndConsume(r.Context(), req.Token, opaque.KindAccountRestore)
	if err != nil {
		writeOpaqueError(w, r, err)
		return
	}
	if err := a.users.UpdateStatus(r.Context(), tok.OwnerID, user.StatusActive); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.account.restored", map[string]any{"user_id": tok.OwnerID})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleTOTPSetup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	subject, _ := token.SubjectFromContext(r.Context())
	u, err := a.users.Find(r.Context(), subject)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "account not found")
		return
	}
	secret, err := totp.GenerateSecret()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	// Stored disabled until the enable ceremony proves the authenticator
	// actually has the secret.
	if err := a.users.SetTOTP(r.Context(), u.ID, secret, false); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"secret": secret,
		"url":    totp.ProvisioningURL(a.issuer.Name(), u.Email, secret),
	})
}

type totpEnableRequest struct {
	Code string `json:"code"`
}

func (a *API) handleTOTPEnable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req totpEnableRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	subject, _ := token.SubjectFromContext(r.Context())
	u, err := a.users.Find(r.Context(), subject)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "account not found")
		return
	}
	if u.TOTPSecret == "" {
		writeError(w, r, http.StatusConflict, "totp setup has not been started")
		return
	}
	if !totp.Verify(u.TOTPSecret, req.Code, totpSkewWindows) {
		writeError(w, r, http.StatusUnauthorized, "invalid totp code")
		return
	}
	if err := a.users.SetTOTP(r.Context(), u.ID, u.TOTPSecret, true); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.totp.enabled", map[string]any{"user_id": u.ID})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// issueByEmail is the shared shape of the "request a token by email"
// endpoints: always answer 202 so the response carries no account-existence
// signal, and deliver the secret out of band when the account exists.
func (a *API) issueByEmail(w http.ResponseWriter, r *http.Request, kind opaque.Kind, subject, event string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req identifierRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}

	if u, err := a.users.FindByEmail(r.Context(), email); err == nil {
		if secret, _, err := a.tokens.Issue(r.Context(), u.ID, kind, 0); err == nil {
			_ = a.sender.Send(r.Context(), u.Email, subject, secret)
			_ = audit.LogEvent(r.Context(), event, map[string]any{"user_id": u.ID})
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

// writeOpaqueError maps store errors onto responses without distinguishing
// unknown from revoked or expired secrets beyond what callers need.
func writeOpaqueError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, opaque.ErrNotFound):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, opaque.ErrRevoked):
		writeError(w, r, http.StatusUnauthorized, "token already used")
	case errors.Is(err, opaque.ErrExpired):
		writeError(w, r, http.StatusUnauthorized, "token expired")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
