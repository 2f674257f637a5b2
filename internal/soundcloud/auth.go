package soundcloud

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"scqueue/internal/core"
)

// FilePermission is the permission for token files
const FilePermission = 0600

// TokenData is the on-disk credential file.
type TokenData struct {
	Token    *oauth2.Token `json:"token"`
	ClientID string        `json:"client_id"`
}

// Credentials serves the oauth token and client id. Values set in the
// configuration win over the token file.
type Credentials struct {
	config core.SoundCloudConfig
	logger *zap.Logger

	mu     sync.Mutex
	cached *core.Auth
}

// NewCredentials creates a credential source backed by config and config.TokenPath.
func NewCredentials(config core.SoundCloudConfig, logger *zap.Logger) *Credentials {
	return &Credentials{config: config, logger: logger}
}

// Auth implements core.CredentialSource. Missing credentials return an empty
// Auth without error so callers can report ErrAuthMissing.
func (c *Credentials) Auth(_ context.Context) (core.Auth, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil {
		return *c.cached, nil
	}

	auth := core.Auth{OAuthToken: c.config.OAuthToken, ClientID: c.config.ClientID}
	if !auth.Valid() && c.config.TokenPath != "" {
		data, err := c.loadToken()
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return core.Auth{}, err
		default:
			if auth.OAuthToken == "" && data.Token != nil {
				auth.OAuthToken = data.Token.AccessToken
			}
			if auth.ClientID == "" {
				auth.ClientID = data.ClientID
			}
		}
	}

	if auth.Valid() {
		c.cached = &auth
	}
	return auth, nil
}

// Save writes auth to the token file and makes it the active credential pair.
func (c *Credentials) Save(auth core.Auth) error {
	if c.config.TokenPath == "" {
		return errors.New("no token path configured")
	}

	data := TokenData{
		Token:    &oauth2.Token{AccessToken: auth.OAuthToken, TokenType: oauthTokenType},
		ClientID: auth.ClientID,
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(c.config.TokenPath, raw, FilePermission); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	c.mu.Lock()
	c.cached = &auth
	c.mu.Unlock()

	c.logger.Info("Saved credentials", zap.String("path", c.config.TokenPath))
	return nil
}

// Invalidate drops the cached pair so the next Auth call reloads it.
func (c *Credentials) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

func (c *Credentials) loadToken() (*TokenData, error) {
	raw, err := os.ReadFile(c.config.TokenPath)
	if err != nil {
		return nil, err
	}

	var data TokenData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &data, nil
}
