// Package salesforce adapts the Salesforce OAuth2 web server flow.
// Connections are keyed by instance URL: the org-specific host Salesforce
// reports alongside every grant.
package salesforce

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-credentials/core"
	"github.com/goliatone/go-credentials/providers"
)

const (
	DefaultLoginURL = "https://login.salesforce.com"

	authorizePath = "/services/oauth2/authorize"
	tokenPath     = "/services/oauth2/token"
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// LoginURL is the authorization host, usually login.salesforce.com or a
	// My Domain / sandbox host.
	LoginURL   string
	Timeout    time.Duration
	HTTPClient providers.HTTPDoer
}

type Provider struct {
	cfg    Config
	client *providers.TokenClient
}

func New(cfg Config) (*Provider, error) {
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.RedirectURI = strings.TrimSpace(cfg.RedirectURI)
	cfg.LoginURL = strings.TrimRight(strings.TrimSpace(cfg.LoginURL), "/")
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("salesforce: client id is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("salesforce: client secret is required")
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("salesforce: redirect uri is required")
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = DefaultLoginURL
	}

	// Salesforce expects the client secret in the form body, not basic auth.
	client := &providers.TokenClient{
		TokenURL:           cfg.LoginURL + tokenPath,
		ClientID:           cfg.ClientID,
		ClientSecret:       cfg.ClientSecret,
		ClientSecretInBody: true,
		Timeout:            cfg.Timeout,
		HTTPClient:         cfg.HTTPClient,
	}
	return &Provider{cfg: cfg, client: client}, nil
}

func (p *Provider) ID() core.ProviderID {
	return core.ProviderSalesforce
}

func (p *Provider) AuthorizationURL(state string) (string, error) {
	if p == nil {
		return "", fmt.Errorf("salesforce: provider is nil")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return "", fmt.Errorf("salesforce: state is required")
	}
	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", p.cfg.ClientID)
	query.Set("redirect_uri", p.cfg.RedirectURI)
	query.Set("state", state)
	return p.cfg.LoginURL + authorizePath + "?" + query.Encode(), nil
}

func (p *Provider) Exchange(ctx context.Context, code string, _ map[string]string) (core.Grant, error) {
	if p == nil {
		return core.Grant{}, fmt.Errorf("salesforce: provider is nil")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return core.Grant{}, fmt.Errorf("salesforce: authorization code is required")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", p.cfg.RedirectURI)

	payload, err := p.client.FetchToken(ctx, form)
	if err != nil {
		return core.Grant{}, err
	}
	if strings.TrimSpace(payload.InstanceURL) == "" {
		return core.Grant{}, fmt.Errorf("salesforce: token response missing instance_url")
	}
	return core.Grant{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresIn:    payload.ExpiresIn,
		InstanceURL:  payload.InstanceURL,
	}, nil
}

func (p *Provider) Refresh(ctx context.Context, record core.TokenRecord) (core.RefreshResult, error) {
	if p == nil {
		return core.RefreshResult{}, fmt.Errorf("salesforce: provider is nil")
	}
	refreshToken := strings.TrimSpace(record.RefreshToken)
	if refreshToken == "" {
		return core.RefreshResult{}, fmt.Errorf("salesforce: refresh token is required")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	payload, err := p.client.FetchToken(ctx, form)
	if err != nil {
		return core.RefreshResult{}, err
	}
	// Salesforce does not rotate refresh tokens on refresh; RefreshToken
	// stays empty so the stored one survives.
	return core.RefreshResult{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresIn:    payload.ExpiresIn,
		InstanceURL:  payload.InstanceURL,
	}, nil
}

var _ core.Provider = (*Provider)(nil)
