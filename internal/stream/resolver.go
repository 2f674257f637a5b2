package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"scqueue/internal/core"
)

const (
	// oauthTokenType renders the Authorization header as "OAuth <token>"
	oauthTokenType = "OAuth"
	// acceptJSON is sent with every resolve request
	acceptJSON = "application/json; charset=utf-8"
	// maxResolveBody bounds the resolve response read
	maxResolveBody = 64 << 10
	// maxHTTPRedirects is the maximum number of redirects followed per resolve
	maxHTTPRedirects = 3

	// defaultBreakerFailures opens the breaker after this many consecutive failures
	defaultBreakerFailures = 5
	// defaultBreakerCooldown is the time the breaker stays open before probing
	defaultBreakerCooldown = 30 * time.Second
)

// ErrTooManyRedirects is returned when a resolve request redirects too often.
var ErrTooManyRedirects = errors.New("too many redirects")

// Stream is a directly playable media URL.
type Stream struct {
	URL      string
	Protocol string
	MimeType string
}

// ResolverConfig tunes the resolver transport and circuit breaker.
type ResolverConfig struct {
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Resolver exchanges a transcoding descriptor for a short-lived stream URL.
type Resolver struct {
	client  *http.Client
	creds   core.CredentialSource
	breaker *gobreaker.CircuitBreaker[*Stream]
	metrics core.Metrics
	logger  *zap.Logger
}

type resolveResponse struct {
	URL string `json:"url"`
}

// NewResolver creates a resolver that authenticates through creds.
func NewResolver(cfg ResolverConfig, creds core.CredentialSource, metrics core.Metrics, logger *zap.Logger) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = core.DefaultResolveTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaultBreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = defaultBreakerCooldown
	}
	if metrics == nil {
		metrics = core.NopMetrics{}
	}

	r := &Resolver{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxHTTPRedirects {
					return ErrTooManyRedirects
				}
				return nil
			},
		},
		creds:   creds,
		metrics: metrics,
		logger:  logger,
	}

	r.breaker = gobreaker.NewCircuitBreaker[*Stream](gobreaker.Settings{
		Name:        "stream-resolver",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// Credential and client errors say nothing about upstream health
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, core.ErrAuthExpired) || errors.Is(err, core.ErrAuthMissing) {
				return true
			}
			var httpErr *core.ResolveHTTPError
			return errors.As(err, &httpErr) && httpErr.Status < http.StatusInternalServerError
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("Circuit breaker state transition",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return r
}

// Resolve selects the best transcoding of track and resolves it to a stream URL.
// Tracks without transcodings are rejected before credentials are touched.
func (r *Resolver) Resolve(ctx context.Context, track *core.Track) (*Stream, error) {
	if !track.Playable() {
		return nil, core.ErrNoPlayableVariant
	}

	variant, err := SelectTranscoding(track.Transcodings)
	if err != nil {
		return nil, err
	}

	auth, err := r.creds.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if !auth.Valid() {
		return nil, core.ErrAuthMissing
	}

	stream, err := r.breaker.Execute(func() (*Stream, error) {
		return r.fetch(ctx, variant, auth)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			r.metrics.RecordResolve("rejected")
			r.logger.Warn("Stream resolve rejected", zap.String("track_id", track.TrackID), zap.Error(err))
			return nil, fmt.Errorf("%w: %w", core.ErrResolverUnavailable, err)
		}
		r.metrics.RecordResolve(core.ErrorKind(err))
		return nil, err
	}

	r.metrics.RecordResolve("success")
	r.logger.Debug("Resolved stream",
		zap.String("track_id", track.TrackID),
		zap.String("protocol", stream.Protocol),
		zap.String("mime_type", stream.MimeType))

	return stream, nil
}

func (r *Resolver) fetch(ctx context.Context, variant core.TranscodingDescriptor, auth core.Auth) (*Stream, error) {
	reqURL := withClientID(variant.URL, auth.ClientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build resolve request: %w", err)
	}
	req.Header.Set("Accept", acceptJSON)
	(&oauth2.Token{AccessToken: auth.OAuthToken, TokenType: oauthTokenType}).SetAuthHeader(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolve request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, core.ErrAuthExpired
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &core.ResolveHTTPError{Status: resp.StatusCode, URL: variant.URL}
	}

	var body resolveResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResolveBody)).Decode(&body); err != nil {
		return nil, &core.ResolveHTTPError{Status: resp.StatusCode, URL: variant.URL, Cause: err}
	}
	if body.URL == "" {
		return nil, &core.ResolveHTTPError{Status: resp.StatusCode, URL: variant.URL, Cause: core.ErrEmptyStreamURL}
	}

	return &Stream{URL: body.URL, Protocol: variant.Protocol, MimeType: variant.MimeType}, nil
}

// withClientID appends the client_id query parameter, keeping any existing query intact.
func withClientID(rawURL, clientID string) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + "client_id=" + url.QueryEscape(clientID)
}
