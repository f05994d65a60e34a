// Package federated talks to the external identity provider used for
// "Sign in with Google".
package federated

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	sc "github.com/dmitrijs2005/lostfound/internal/server/config"
	"github.com/dmitrijs2005/lostfound/internal/server/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// ErrExchange wraps every failure to turn an authorization code into a
// profile.
var ErrExchange = errors.New("federated exchange failed")

// Provider is the redirect half and the callback half of an OAuth2 login.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (models.FederatedProfile, error)
}

// OAuthProvider implements Provider for an OpenID Connect userinfo endpoint.
type OAuthProvider struct {
	conf        *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider configures the Google endpoints with the profile and
// email scopes.
func NewGoogleProvider(cfg *sc.Config) *OAuthProvider {
	return NewOAuthProvider(&oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleCallbackURL,
		Endpoint:     endpoints.Google,
		Scopes:       []string{"openid", "profile", "email"},
	}, googleUserInfoURL)
}

func NewOAuthProvider(conf *oauth2.Config, userInfoURL string) *OAuthProvider {
	return &OAuthProvider{conf: conf, userInfoURL: userInfoURL}
}

func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.conf.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

type userInfo struct {
	Subject       string `json:"sub"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Picture       string `json:"picture"`
}

// Exchange redeems code and fetches the signed-in user's profile. An email
// the provider has not verified is dropped so it can never be used to link
// onto an existing account.
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (models.FederatedProfile, error) {
	if code == "" {
		return models.FederatedProfile{}, fmt.Errorf("%w: missing code", ErrExchange)
	}

	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return models.FederatedProfile{}, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return models.FederatedProfile{}, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	resp, err := p.conf.Client(ctx, tok).Do(req)
	if err != nil {
		return models.FederatedProfile{}, fmt.Errorf("%w: userinfo: %v", ErrExchange, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return models.FederatedProfile{}, fmt.Errorf("%w: userinfo status %d", ErrExchange, resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return models.FederatedProfile{}, fmt.Errorf("%w: decode userinfo: %v", ErrExchange, err)
	}
	if info.Subject == "" {
		return models.FederatedProfile{}, fmt.Errorf("%w: userinfo without subject", ErrExchange)
	}

	profile := models.FederatedProfile{
		ProviderID:  info.Subject,
		DisplayName: info.Name,
		PhotoURL:    info.Picture,
	}
	if info.EmailVerified {
		profile.Email = info.Email
	}
	return profile, nil
}
