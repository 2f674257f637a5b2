// Package soundcloud fetches the favorites and feed collections from the catalog API.
package soundcloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"scqueue/internal/core"
)

const (
	// oauthTokenType renders the Authorization header as "OAuth <token>"
	oauthTokenType = "OAuth"
	// acceptJSON is sent with every API request
	acceptJSON = "application/json; charset=utf-8"
	// maxPageBody bounds a single collection page
	maxPageBody = 32 << 20
	// requestTimeout bounds a single page request
	requestTimeout = 30 * time.Second
)

// ErrUserIDUnavailable is returned when the account id cannot be resolved.
var ErrUserIDUnavailable = errors.New("failed to resolve user id")

type meResponse struct {
	ID int64 `json:"id"`
}

// Client implements core.TrackSource against the catalog API.
type Client struct {
	config  core.SoundCloudConfig
	creds   core.CredentialSource
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	mu     sync.Mutex
	userID string
}

// NewClient creates an API client. Page requests are paced by config.RequestsPerSecond.
func NewClient(config core.SoundCloudConfig, creds core.CredentialSource, logger *zap.Logger) *Client {
	if config.APIBaseURL == "" {
		config.APIBaseURL = core.DefaultAPIBaseURL
	}
	if config.PageSize <= 0 {
		config.PageSize = core.DefaultPageSize
	}
	if config.FeedMaxItems <= 0 {
		config.FeedMaxItems = core.DefaultFeedMaxItems
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = core.DefaultRequestsPerSecond
	}

	return &Client{
		config:  config,
		creds:   creds,
		http:    &http.Client{Timeout: requestTimeout},
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		logger:  logger,
	}
}

// FetchFavorites returns every liked track of the authenticated account.
func (c *Client) FetchFavorites(ctx context.Context, progress core.ProgressFunc) ([]core.Track, error) {
	auth, err := c.auth(ctx)
	if err != nil {
		return nil, err
	}

	userID, err := c.resolveUserID(ctx, auth)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("client_id", auth.ClientID)
	query.Set("limit", strconv.Itoa(c.config.PageSize))
	query.Set("offset", "0")
	query.Set("linked_partitioning", "1")
	next := c.config.APIBaseURL + "/users/" + url.PathEscape(userID) + "/likes?" + query.Encode()

	var items []likeItem
	for pageNum := 1; next != ""; pageNum++ {
		report(progress, fmt.Sprintf("Fetching likes page %d...", pageNum))

		var p page[likeItem]
		if err := c.getJSON(ctx, next, auth, &p); err != nil {
			return nil, fmt.Errorf("failed to fetch likes page %d: %w", pageNum, err)
		}
		items = append(items, p.Collection...)
		next = withClientID(p.NextHref, auth.ClientID)
	}

	tracks := make([]core.Track, 0, len(items))
	for _, item := range items {
		if t, ok := NormalizeLike(item); ok {
			tracks = append(tracks, t)
		}
	}

	c.logger.Info("Fetched favorites", zap.Int("items", len(items)), zap.Int("tracks", len(tracks)))
	return tracks, nil
}

// FetchFeed returns track posts and reposts of the activity stream, capped at
// config.FeedMaxItems raw items.
func (c *Client) FetchFeed(ctx context.Context, progress core.ProgressFunc) ([]core.Track, error) {
	auth, err := c.auth(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("client_id", auth.ClientID)
	query.Set("limit", strconv.Itoa(c.config.PageSize))
	query.Set("linked_partitioning", "1")
	next := c.config.APIBaseURL + "/stream?" + query.Encode()

	var items []feedItem
	for pageNum := 1; next != "" && len(items) < c.config.FeedMaxItems; pageNum++ {
		report(progress, fmt.Sprintf("Fetching feed page %d...", pageNum))

		var p page[feedItem]
		if err := c.getJSON(ctx, next, auth, &p); err != nil {
			return nil, fmt.Errorf("failed to fetch feed page %d: %w", pageNum, err)
		}
		items = append(items, p.Collection...)
		next = withClientID(p.NextHref, auth.ClientID)
	}

	tracks := make([]core.Track, 0, len(items))
	for _, item := range items {
		if t, ok := NormalizeFeedItem(item); ok {
			tracks = append(tracks, t)
		}
	}

	c.logger.Info("Fetched feed", zap.Int("items", len(items)), zap.Int("tracks", len(tracks)))
	return tracks, nil
}

// ClearUserID forgets the cached account id.
func (c *Client) ClearUserID() {
	c.mu.Lock()
	c.userID = ""
	c.mu.Unlock()
}

func (c *Client) auth(ctx context.Context) (core.Auth, error) {
	auth, err := c.creds.Auth(ctx)
	if err != nil {
		return core.Auth{}, fmt.Errorf("failed to load credentials: %w", err)
	}
	if !auth.Valid() {
		return core.Auth{}, core.ErrAuthMissing
	}
	return auth, nil
}

func (c *Client) resolveUserID(ctx context.Context, auth core.Auth) (string, error) {
	c.mu.Lock()
	cached := c.userID
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	var me meResponse
	endpoint := c.config.APIBaseURL + "/me?client_id=" + url.QueryEscape(auth.ClientID)
	if err := c.getJSON(ctx, endpoint, auth, &me); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUserIDUnavailable, err)
	}
	if me.ID == 0 {
		return "", ErrUserIDUnavailable
	}

	id := strconv.FormatInt(me.ID, 10)
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()

	c.logger.Debug("Resolved user id", zap.String("user_id", id))
	return id, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, auth core.Auth, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", acceptJSON)
	(&oauth2.Token{AccessToken: auth.OAuthToken, TokenType: oauthTokenType}).SetAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusUnauthorized {
		return core.ErrAuthExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &core.APIError{Status: resp.StatusCode, Endpoint: req.URL.Path}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPageBody)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// withClientID makes sure a pagination link carries the client id.
func withClientID(href, clientID string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	q := u.Query()
	if q.Get("client_id") == "" {
		q.Set("client_id", clientID)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func report(progress core.ProgressFunc, msg string) {
	if progress != nil {
		progress(msg)
	}
}
