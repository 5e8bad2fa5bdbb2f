package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/homefuse/homefuse/pkg/log"
	"github.com/homefuse/homefuse/pkg/provider"
)

// DefaultExpiryMargin is how long before literal token expiry a session
// re-authenticates. The vendors never document a margin; 60 seconds avoids a
// valid-at-request-time/expired-at-use-time race.
const DefaultExpiryMargin = time.Minute

// ReauthFunc performs a login with long-lived credentials (service-account
// style) and returns a fresh token with its expiry. It runs under the
// session's lock; implementations must not call back into the session.
type ReauthFunc func(ctx context.Context) (token string, expiry time.Time, err error)

// Config describes one provider's OAuth2 endpoints and token policy.
type Config struct {
	ProviderID   string
	AuthURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string

	// TokenValidity is the fixed validity window applied to tokens obtained
	// via ExchangeCode. Vendors here do not return usable expiries with the
	// authorization-code grant.
	TokenValidity time.Duration

	// ExpiryMargin defaults to DefaultExpiryMargin when zero.
	ExpiryMargin time.Duration

	// Reauth, when set, lets EnsureAuthenticated mint tokens without user
	// interaction. When nil the session only holds tokens obtained through
	// ExchangeCode or SetToken.
	Reauth ReauthFunc

	// HTTPClient is used for the token-endpoint POST. Defaults to
	// http.DefaultClient when nil.
	HTTPClient *http.Client

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// Session owns one provider's access token and its expiry. All token state is
// mutated under a single mutex so concurrent requests observing an expired
// token refresh once, not racily.
type Session struct {
	cfg Config

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// New returns a Session for the given provider config.
func New(cfg Config) *Session {
	if cfg.ExpiryMargin == 0 {
		cfg.ExpiryMargin = DefaultExpiryMargin
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{cfg: cfg}
}

func (s *Session) oauthConfig(redirectURI string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   s.cfg.AuthURL,
			TokenURL:  s.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthorizationURL builds the vendor's authorize URL for the given redirect
// URI and scopes. No network call is made; the only failure mode is a
// malformed redirect URI, which is a configuration error.
func (s *Session) AuthorizationURL(redirectURI string, scopes []string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil || !u.IsAbs() {
		return "", fmt.Errorf("%w: malformed redirect uri %q", provider.ErrNotConfigured, redirectURI)
	}
	return s.oauthConfig(redirectURI, scopes).AuthCodeURL(""), nil
}

// ExchangeCode trades an authorization code for an access token with a single
// token-endpoint POST. On success it stores the token with the configured
// fixed validity window and returns true. On any failure it returns false and
// leaves prior credential state untouched, so an existing valid token
// survives a botched re-authorization.
func (s *Session) ExchangeCode(ctx context.Context, code, redirectURI string) bool {
	if s.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.cfg.HTTPClient)
	}
	tok, err := s.oauthConfig(redirectURI, nil).Exchange(ctx, code)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "code exchange failed",
			slog.String("provider", s.cfg.ProviderID), slog.Any("error", err))
		return false
	}
	if tok.AccessToken == "" {
		log.Ctx(ctx).WarnContext(ctx, "token endpoint returned no access token",
			slog.String("provider", s.cfg.ProviderID))
		return false
	}

	s.mu.Lock()
	s.token = tok.AccessToken
	s.expiry = s.cfg.Now().Add(s.cfg.TokenValidity)
	s.mu.Unlock()

	log.Ctx(ctx).InfoContext(ctx, "code exchange success", slog.String("provider", s.cfg.ProviderID))
	return true
}

// EnsureAuthenticated makes sure a usable token is held, re-authenticating
// with the configured long-lived credentials when the current one is absent
// or within the expiry margin. It never refreshes while
// now < expiry - margin.
func (s *Session) EnsureAuthenticated(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Now()
	if s.token != "" && now.Before(s.expiry.Add(-s.cfg.ExpiryMargin)) {
		return nil
	}

	if s.cfg.Reauth == nil {
		if s.token == "" {
			return fmt.Errorf("%w: %s has no token and no long-lived credentials", provider.ErrAuthentication, s.cfg.ProviderID)
		}
		return fmt.Errorf("%w: %s token expired and no long-lived credentials", provider.ErrAuthentication, s.cfg.ProviderID)
	}

	token, expiry, err := s.cfg.Reauth(ctx)
	if err != nil {
		return err
	}
	s.token = token
	s.expiry = expiry
	log.Ctx(ctx).DebugContext(ctx, "re-authenticated", slog.String("provider", s.cfg.ProviderID))
	return nil
}

// Token returns the held access token, or "" when unauthenticated.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Authenticated reports whether a token is held that is still outside the
// expiry margin.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != "" && s.cfg.Now().Before(s.expiry.Add(-s.cfg.ExpiryMargin))
}

// SetToken stores a token directly. Used by providers whose auth flow does
// not go through the code exchange, and by tests.
func (s *Session) SetToken(token string, expiry time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expiry = expiry
}

// Invalidate drops the held token so the next call re-authenticates. Called
// when a vendor rejects a token that should still be valid.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiry = time.Time{}
}
