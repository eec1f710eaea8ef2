package server

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/jrsteele09/storefront-gatekeeper/auth"
	"github.com/jrsteele09/storefront-gatekeeper/gatekeeper"
	"github.com/jrsteele09/storefront-gatekeeper/internal/errors"
	"github.com/jrsteele09/storefront-gatekeeper/token"
	"github.com/jrsteele09/storefront-gatekeeper/users"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeJSON = "application/json"
	maxBodyBytes    = 1 << 20
	readyTimeout    = 2 * time.Second
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

// userResponse is the public view of an account
type userResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	Role      users.Role `json:"role"`
}

type sessionResponse struct {
	Success          bool         `json:"success"`
	User             userResponse `json:"user"`
	AccessExpiresAt  time.Time    `json:"access_expires_at"`
	RefreshExpiresAt time.Time    `json:"refresh_expires_at"`
}

// LoginHandler checks credentials and sets both token cookies
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := s.deps.Auth.Login(r.Context(), auth.LoginRequest{
			Email:    req.Email,
			Password: req.Password,
			Client:   s.clientOf(r),
		})
		switch {
		case err == nil:
		case errors.Is(err, errors.ErrInvalidInput):
			writeJSONError(w, "Invalid input", http.StatusBadRequest)
			return
		case errors.Is(err, errors.ErrInvalidCredentials), errors.Is(err, errors.ErrUserInactive):
			writeJSONError(w, "Invalid email or password", http.StatusUnauthorized)
			return
		case errors.Is(err, errors.ErrTooManyAttempts):
			if wait := s.deps.Auth.LockoutRemaining(r.Context(), req.Email); wait > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			}
			writeJSONError(w, "Too many failed login attempts. Please try again later.", http.StatusTooManyRequests)
			return
		default:
			log.Err(err).Msg("login failed")
			writeJSONError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		s.setTokenCookies(w, res.Tokens)
		writeJSON(w, http.StatusOK, newSessionResponse(res))
	}
}

// LogoutHandler revokes the caller's session and clears the cookies, whatever state they were in
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accessToken := ""
		if c, err := r.Cookie(gatekeeper.AccessTokenCookie); err == nil {
			accessToken = c.Value
		}
		if err := s.deps.Auth.Logout(r.Context(), accessToken, s.clientOf(r)); err != nil {
			log.Err(err).Msg("logout failed")
		}
		s.deps.Gatekeeper.ClearCookies(w)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// RefreshHandler rotates both token cookies
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(gatekeeper.RefreshTokenCookie)
		if err != nil || c.Value == "" {
			writeJSONError(w, "Refresh token required", http.StatusUnauthorized)
			return
		}

		accessToken := ""
		if ac, err := r.Cookie(gatekeeper.AccessTokenCookie); err == nil {
			accessToken = ac.Value
		}
		res, err := s.deps.Auth.Refresh(r.Context(), c.Value, accessToken, s.clientOf(r))
		if errors.Is(err, errors.ErrInvalidToken) {
			s.deps.Gatekeeper.ClearCookies(w)
			writeJSONError(w, "Invalid refresh token", http.StatusUnauthorized)
			return
		}
		if err != nil {
			log.Err(err).Msg("token refresh failed")
			writeJSONError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		s.setTokenCookies(w, res.Tokens)
		writeJSON(w, http.StatusOK, newSessionResponse(res))
	}
}

// MeHandler returns the identity the gatekeeper resolved for the request
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := gatekeeper.IdentityFromContext(r.Context())
		if !ok {
			writeJSONError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": id})
	}
}

// ValidatePasswordHandler runs the password policy, for registration and password change forms
func (s *Server) ValidatePasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req passwordRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, s.deps.Policy.Validate(req.Password))
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()
			if err := s.deps.Ready(ctx); err != nil {
				log.Err(err).Msg("readiness check failed")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) setTokenCookies(w http.ResponseWriter, pair token.Pair) {
	s.deps.Gatekeeper.SetAccessCookie(w, pair.AccessToken)
	s.deps.Gatekeeper.SetRefreshCookie(w, pair.RefreshToken)
}

func newSessionResponse(res *auth.Result) sessionResponse {
	return sessionResponse{
		Success: true,
		User: userResponse{
			ID:        res.Account.ID,
			Email:     res.Account.Email,
			FirstName: res.Account.FirstName,
			LastName:  res.Account.LastName,
			Role:      res.Account.Role,
		},
		AccessExpiresAt:  res.Tokens.AccessExpiresAt,
		RefreshExpiresAt: res.Tokens.RefreshExpiresAt,
	}
}

func (s *Server) clientOf(r *http.Request) auth.Client {
	return auth.Client{IP: s.deps.Gatekeeper.ClientIP(r), UserAgent: r.UserAgent()}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, "Invalid input", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("failed to write response")
	}
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
