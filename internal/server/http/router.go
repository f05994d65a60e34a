// Package http exposes the account, profile and item use-cases over a chi
// router. Every error leaves through one responder that renders
// {success, message}.
package http

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/lostfound/internal/logging"
	"github.com/dmitrijs2005/lostfound/internal/server/federated"
	"github.com/dmitrijs2005/lostfound/internal/server/models"
	"github.com/dmitrijs2005/lostfound/internal/server/services"
	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

// IdentityService is satisfied by *services.IdentityService.
type IdentityService interface {
	Signup(ctx context.Context, in services.SignupInput) (string, *models.Account, error)
	Login(ctx context.Context, in services.LoginInput) (string, error)
	FederatedCallback(ctx context.Context, profile models.FederatedProfile) (string, error)
	Authenticate(ctx context.Context, token string) (*models.Account, error)
}

// ProfileService is satisfied by *services.ProfileService.
type ProfileService interface {
	Update(ctx context.Context, accountID string, in services.ProfileUpdate) (*models.Account, error)
}

// ItemService is satisfied by *services.ItemService.
type ItemService interface {
	Create(ctx context.Context, ownerID string, in services.ItemChanges) (*models.Item, error)
	Get(ctx context.Context, id string) (*models.Item, error)
	List(ctx context.Context, filter models.ItemFilter) ([]*models.Item, error)
	Update(ctx context.Context, actorID, id string, in services.ItemChanges) (*models.Item, error)
	Delete(ctx context.Context, actorID, id string) error
}

// StateTokens is satisfied by *auth.TokenService.
type StateTokens interface {
	IssueState() (string, error)
	VerifyState(state string) error
}

// Options carries the transport settings taken from config.
type Options struct {
	// ClientURL is the frontend origin used for CORS and federated redirects.
	ClientURL      string
	Production     bool
	MaxUploadBytes int64
	// AuthRateLimit <= 0 disables per-IP limiting of signup and login.
	AuthRateLimit rate.Limit
	AuthRateBurst int
}

type Handler struct {
	identity IdentityService
	profiles ProfileService
	items    ItemService
	provider federated.Provider
	states   StateTokens
	logger   logging.Logger
	opts     Options
	limiter  *ipLimiter
}

// NewHandler wires the use-cases. provider may be nil when federated login is
// not configured; the federated routes then redirect with an error.
func NewHandler(identity IdentityService, profiles ProfileService, items ItemService, provider federated.Provider, states StateTokens, logger logging.Logger, opts Options) *Handler {
	h := &Handler{
		identity: identity,
		profiles: profiles,
		items:    items,
		provider: provider,
		states:   states,
		logger:   logger.With("module", "http"),
		opts:     opts,
	}
	if opts.AuthRateLimit > 0 {
		h.limiter = newIPLimiter(opts.AuthRateLimit, opts.AuthRateBurst)
	}
	return h
}

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.loggingMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(corsMiddleware(h.opts.ClientURL))

	r.Get("/healthz", h.healthz)

	r.Group(func(r chi.Router) {
		r.Use(h.rateLimitMiddleware)
		r.Post("/signup", h.signup)
		r.Post("/login", h.login)
	})

	r.Get("/auth/federated", h.federatedStart)
	r.Get("/auth/federated/callback", h.federatedCallback)

	r.Get("/items", h.listItems)
	r.Get("/items/{id}", h.getItem)

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware)
		r.Get("/me", h.me)
		r.Put("/users/profile", h.updateProfile)
		r.Post("/items", h.createItem)
		r.Put("/items/{id}", h.updateItem)
		r.Delete("/items/{id}", h.deleteItem)
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
}
