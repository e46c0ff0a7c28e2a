// Package quickbooks adapts the Intuit QuickBooks Online OAuth2 flow.
// Connections are keyed by realm id: the company identifier Intuit passes on
// the authorization callback rather than in the token response.
package quickbooks

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
	DefaultAuthorizeURL = "https://appcenter.intuit.com/connect/oauth2"
	DefaultTokenURL     = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	DefaultScope        = "com.intuit.quickbooks.accounting"

	// ExtraRealmID is the callback parameter carrying the company id.
	ExtraRealmID = "realmId"
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthorizeURL string
	TokenURL     string
	Scope        string
	Timeout      time.Duration
	HTTPClient   providers.HTTPDoer
}

type Provider struct {
	cfg    Config
	client *providers.TokenClient
}

func New(cfg Config) (*Provider, error) {
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.RedirectURI = strings.TrimSpace(cfg.RedirectURI)
	cfg.AuthorizeURL = strings.TrimSpace(cfg.AuthorizeURL)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.Scope = strings.TrimSpace(cfg.Scope)
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("quickbooks: client id is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("quickbooks: client secret is required")
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("quickbooks: redirect uri is required")
	}
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = DefaultAuthorizeURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.Scope == "" {
		cfg.Scope = DefaultScope
	}

	// Intuit requires client credentials as HTTP basic auth on the token
	// endpoint.
	client := &providers.TokenClient{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Timeout:      cfg.Timeout,
		HTTPClient:   cfg.HTTPClient,
	}
	return &Provider{cfg: cfg, client: client}, nil
}

func (p *Provider) ID() core.ProviderID {
	return core.ProviderQuickBooks
}

func (p *Provider) AuthorizationURL(state string) (string, error) {
	if p == nil {
		return "", fmt.Errorf("quickbooks: provider is nil")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return "", fmt.Errorf("quickbooks: state is required")
	}
	query := url.Values{}
	query.Set("client_id", p.cfg.ClientID)
	query.Set("response_type", "code")
	query.Set("scope", p.cfg.Scope)
	query.Set("redirect_uri", p.cfg.RedirectURI)
	query.Set("state", state)
	return p.cfg.AuthorizeURL + "?" + query.Encode(), nil
}

func (p *Provider) Exchange(ctx context.Context, code string, extras map[string]string) (core.Grant, error) {
	if p == nil {
		return core.Grant{}, fmt.Errorf("quickbooks: provider is nil")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return core.Grant{}, fmt.Errorf("quickbooks: authorization code is required")
	}
	realmID := strings.TrimSpace(extras[ExtraRealmID])
	if realmID == "" {
		return core.Grant{}, fmt.Errorf("quickbooks: %s callback parameter is required", ExtraRealmID)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", p.cfg.RedirectURI)

	payload, err := p.client.FetchToken(ctx, form)
	if err != nil {
		return core.Grant{}, err
	}
	return core.Grant{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresIn:    payload.ExpiresIn,
		RealmID:      realmID,
	}, nil
}

func (p *Provider) Refresh(ctx context.Context, record core.TokenRecord) (core.RefreshResult, error) {
	if p == nil {
		return core.RefreshResult{}, fmt.Errorf("quickbooks: provider is nil")
	}
	refreshToken := strings.TrimSpace(record.RefreshToken)
	if refreshToken == "" {
		return core.RefreshResult{}, fmt.Errorf("quickbooks: refresh token is required")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	payload, err := p.client.FetchToken(ctx, form)
	if err != nil {
		return core.RefreshResult{}, err
	}
	// Intuit rotates refresh tokens; the response carries the replacement.
	return core.RefreshResult{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresIn:    payload.ExpiresIn,
	}, nil
}

var _ core.Provider = (*Provider)(nil)
