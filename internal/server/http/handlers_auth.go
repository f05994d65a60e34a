package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/lostfound/internal/common"
	"github.com/dmitrijs2005/lostfound/internal/server/services"
)

const (
	federatedErrProvider = "google_auth_failed"
	federatedErrResolve  = "authentication_failed"
	federatedErrSigning  = "token_signing_failed"
)

// The state issued at login start is also set in this cookie; the callback
// accepts only a state that matches the browser's cookie.
const (
	stateCookieName = "lf_oauth_state"
	stateCookiePath = "/auth/federated"
	stateCookieTTL  = 10 * time.Minute
)

type signupRequest struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeMappedError(w, r, "signup", err)
		return
	}

	token, _, err := h.identity.Signup(r.Context(), services.SignupInput{
		DisplayName: req.DisplayName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
	})
	if err != nil {
		h.writeMappedError(w, r, "signup", err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeMappedError(w, r, "login", err)
		return
	}

	token, err := h.identity.Login(r.Context(), services.LoginInput{
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
	})
	if err != nil {
		h.writeMappedError(w, r, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		h.writeError(w, r, "me", http.StatusUnauthorized, msgNoToken, common.ErrUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, account.Public())
}

func (h *Handler) federatedStart(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		h.federatedFailure(w, r, federatedErrProvider, errors.New("federated login is not configured"))
		return
	}
	state, err := h.states.IssueState()
	if err != nil {
		h.federatedFailure(w, r, federatedErrProvider, err)
		return
	}
	h.setStateCookie(w, state, stateCookieTTL)
	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

func (h *Handler) federatedCallback(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		h.federatedFailure(w, r, federatedErrProvider, errors.New("federated login is not configured"))
		return
	}

	q := r.URL.Query()
	bound := stateCookieValue(r)
	h.setStateCookie(w, "", -1)

	if providerErr := q.Get("error"); providerErr != "" {
		h.federatedFailure(w, r, federatedErrProvider, errors.New("provider returned "+providerErr))
		return
	}
	state := q.Get("state")
	if bound == "" || subtle.ConstantTimeCompare([]byte(bound), []byte(state)) != 1 {
		h.federatedFailure(w, r, federatedErrProvider, errors.New("state does not match the browser's state cookie"))
		return
	}
	if err := h.states.VerifyState(state); err != nil {
		h.federatedFailure(w, r, federatedErrProvider, err)
		return
	}

	profile, err := h.provider.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		h.federatedFailure(w, r, federatedErrProvider, err)
		return
	}

	token, err := h.identity.FederatedCallback(r.Context(), profile)
	if err != nil {
		code := federatedErrResolve
		if errors.Is(err, common.ErrTokenSigningFailure) {
			code = federatedErrSigning
		}
		h.federatedFailure(w, r, code, err)
		return
	}

	http.Redirect(w, r, h.clientURL("/auth/callback#token="+token), http.StatusFound)
}

// setStateCookie sets the state cookie; a negative ttl clears it.
func (h *Handler) setStateCookie(w http.ResponseWriter, value string, ttl time.Duration) {
	maxAge := -1
	if ttl > 0 {
		maxAge = int(ttl / time.Second)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    value,
		Path:     stateCookiePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.opts.Production,
		SameSite: http.SameSiteLaxMode,
	})
}

func stateCookieValue(r *http.Request) string {
	c, err := r.Cookie(stateCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *Handler) federatedFailure(w http.ResponseWriter, r *http.Request, code string, err error) {
	h.logger.Warn(r.Context(), "federated login failed",
		"code", code,
		"error", err,
		"request_id", requestIDFromContext(r.Context()),
	)
	http.Redirect(w, r, h.clientURL("/login?error="+code), http.StatusFound)
}

func (h *Handler) clientURL(path string) string {
	return strings.TrimRight(h.opts.ClientURL, "/") + path
}
