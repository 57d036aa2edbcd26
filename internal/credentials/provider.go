// Package credentials resolves the sending account and OAuth tokens for an
// owner. Refreshed tokens are persisted immediately so later sends in the
// same loop, and later invocations, reuse the newest credentials.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/logger"
)

// ErrNoAccount is returned when an owner has no connected sending account.
// Callers treat this as the no-transport-configured condition and must not
// mutate campaign state.
var ErrNoAccount = errors.New("credentials: no mail account configured")

// Store is the persistence contract the provider needs.
type Store interface {
	// AccountForOwner returns the owner's sending account, or a not-found
	// error when none is connected.
	AccountForOwner(ctx context.Context, ownerID string) (*domain.MailAccount, error)

	// UpdateCredentials persists rotated credentials for an account.
	UpdateCredentials(ctx context.Context, accountID string, creds domain.Credentials) error
}

// OAuthApp is one OAuth application's client credential pair.
type OAuthApp struct {
	ClientID     string
	ClientSecret string
}

// Provider loads sending accounts and refreshes their OAuth tokens.
type Provider struct {
	store     Store
	google    *oauth2.Config
	microsoft *oauth2.Config
}

// New creates a credential provider.
func New(store Store, googleApp, microsoftApp OAuthApp) *Provider {
	return &Provider{
		store: store,
		google: &oauth2.Config{
			ClientID:     googleApp.ClientID,
			ClientSecret: googleApp.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"https://www.googleapis.com/auth/gmail.send"},
		},
		microsoft: &oauth2.Config{
			ClientID:     microsoftApp.ClientID,
			ClientSecret: microsoftApp.ClientSecret,
			Endpoint:     microsoft.AzureADEndpoint("common"),
			Scopes:       []string{"https://graph.microsoft.com/Mail.Send", "offline_access"},
		},
	}
}

// Resolve returns the owner's sending account with fresh credentials.
// OAuth accounts with an expired access token are refreshed; a rotated
// token is persisted fire-and-forget so a persistence failure never aborts
// the send that triggered the refresh.
func (p *Provider) Resolve(ctx context.Context, ownerID string) (*domain.MailAccount, error) {
	account, err := p.store.AccountForOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	cfg := p.oauthConfig(account.Provider)
	if cfg == nil {
		// ESP/SMTP accounts carry static secrets; nothing to refresh.
		return account, nil
	}

	fresh, err := p.refresh(ctx, cfg, &account.Credentials)
	if err != nil {
		return nil, fmt.Errorf("refresh %s token: %w", account.Provider, err)
	}
	if fresh != nil {
		account.Credentials = *fresh
		go p.persist(account.ID, *fresh)
	}
	return account, nil
}

func (p *Provider) oauthConfig(provider domain.ProviderType) *oauth2.Config {
	switch provider {
	case domain.ProviderGmail:
		return p.google
	case domain.ProviderMicrosoft:
		return p.microsoft
	default:
		return nil
	}
}

// refresh returns new credentials when the token was rotated, nil when the
// stored token is still current.
func (p *Provider) refresh(ctx context.Context, cfg *oauth2.Config, creds *domain.Credentials) (*domain.Credentials, error) {
	tok := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
	}
	if creds.Expiry != nil {
		tok.Expiry = *creds.Expiry
	}
	if tok.Valid() {
		return nil, nil
	}

	newTok, err := cfg.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, err
	}
	if newTok.AccessToken == creds.AccessToken {
		return nil, nil
	}

	out := *creds
	out.AccessToken = newTok.AccessToken
	if newTok.RefreshToken != "" {
		out.RefreshToken = newTok.RefreshToken
	}
	expiry := newTok.Expiry
	out.Expiry = &expiry
	return &out, nil
}

func (p *Provider) persist(accountID string, creds domain.Credentials) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.store.UpdateCredentials(ctx, accountID, creds); err != nil {
		logger.Warn("credentials: persist refreshed token failed",
			"account_id", accountID, "error", err.Error())
	}
}
