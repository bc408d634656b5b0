package medos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/medos-booking/pkg/logging"
)

const (
	defaultBaseURL = "https://api.medos.one/v1"
	defaultTimeout = 15 * time.Second

	sessionPath = "/auth/session"

	// refreshLeeway refreshes API-key sessions this long before the token expires.
	refreshLeeway = 30 * time.Second
)

// ErrNoCredentials is returned when a client has neither an API key nor a session token.
var ErrNoCredentials = errors.New("medos: api key or session token required")

// RequestObserver receives one observation per API round trip.
type RequestObserver interface {
	ObserveAPIRequest(method, path string, status int, seconds float64)
}

// Config configures a Client.
type Config struct {
	BaseURL      string
	APIKey       string
	SessionToken string
	Timeout      time.Duration
	HTTPClient   *http.Client
	Logger       *logging.Logger
	Observer     RequestObserver
	Now          func() time.Time
}

// Client issues authenticated requests against the Medos REST API.
// Construct it with Init or InitWithSession; it is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logging.Logger
	observer   RequestObserver
	tracer     trace.Tracer
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// Init builds a client from an API key and exchanges it for a session token.
func Init(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoCredentials
	}
	c := newClient(cfg)
	if _, err := c.refresh(ctx, ""); err != nil {
		return nil, err
	}
	return c, nil
}

// InitWithSession builds a client around an existing session token. When an
// API key is also configured the client can refresh the session on 401.
func InitWithSession(cfg Config) (*Client, error) {
	token := strings.TrimSpace(cfg.SessionToken)
	if token == "" {
		return nil, ErrNoCredentials
	}
	c := newClient(cfg)
	c.token = token
	c.expiresAt = tokenExpiry(token)
	return c, nil
}

func newClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		logger:     logger,
		observer:   cfg.Observer,
		tracer:     otel.Tracer("medos.internal.medos"),
		now:        now,
	}
}

// Get issues an authenticated GET and decodes the (data-unwrapped) body into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	if len(query) > 0 {
		path = path + "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post issues an authenticated POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// SessionToken returns the token currently attached to requests.
func (c *Client) SessionToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	ctx, span := c.tracer.Start(ctx, "medos.request")
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("medos.path", routeLabel(path)),
	)

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("medos: marshal request: %w", err)
		}
	}

	token, err := c.currentToken(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}

	status, respBody, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if status == http.StatusUnauthorized && c.apiKey != "" {
		c.logger.Info("medos session rejected, refreshing", "path", routeLabel(path))
		token, err = c.refresh(ctx, token)
		if err != nil {
			span.RecordError(err)
			return err
		}
		status, respBody, err = c.send(ctx, method, path, payload, token)
		if err != nil {
			span.RecordError(err)
			return err
		}
	}

	span.SetAttributes(attribute.Int("http.status_code", status))
	if status < 200 || status > 299 {
		apiErr := newAPIError(status, path, respBody)
		c.logger.Warn("medos API non-2xx response", "status", status, "path", routeLabel(path), "message", apiErr.Message)
		span.RecordError(apiErr)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(unwrapData(respBody), out); err != nil {
		span.RecordError(err)
		return fmt.Errorf("medos: decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (int, []byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("medos: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(method, path, 0, start)
		return 0, nil, fmt.Errorf("medos: http request: %w", err)
	}
	defer resp.Body.Close()
	c.observe(method, path, resp.StatusCode, start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("medos: read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func (c *Client) observe(method, path string, status int, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveAPIRequest(method, routeLabel(path), status, c.now().Sub(start).Seconds())
}

// currentToken returns the session token, refreshing it first when it is about
// to expire and an API key is available.
func (c *Client) currentToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token, expiresAt := c.token, c.expiresAt
	c.mu.Unlock()

	if c.apiKey == "" {
		if token == "" {
			return "", ErrNoCredentials
		}
		return token, nil
	}
	if token != "" && (expiresAt.IsZero() || c.now().Add(refreshLeeway).Before(expiresAt)) {
		return token, nil
	}
	return c.refresh(ctx, token)
}

// refresh exchanges the API key for a new session token. stale is the token the
// caller saw rejected; if another goroutine already replaced it, that token is reused.
func (c *Client) refresh(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.token != stale && (c.expiresAt.IsZero() || c.now().Add(refreshLeeway).Before(c.expiresAt)) {
		return c.token, nil
	}
	if c.apiKey == "" {
		return "", ErrNoCredentials
	}

	payload, err := json.Marshal(map[string]string{"apiKey": c.apiKey})
	if err != nil {
		return "", fmt.Errorf("medos: marshal session request: %w", err)
	}
	status, body, err := c.send(ctx, http.MethodPost, sessionPath, payload, "")
	if err != nil {
		return "", err
	}
	if status < 200 || status > 299 {
		return "", newAPIError(status, sessionPath, body)
	}

	var session struct {
		SessionToken string `json:"sessionToken"`
		AccessToken  string `json:"accessToken"`
		Token        string `json:"token"`
	}
	if err := json.Unmarshal(unwrapData(body), &session); err != nil {
		return "", fmt.Errorf("medos: decode session: %w", err)
	}
	token := firstNonEmpty(session.SessionToken, session.AccessToken, session.Token)
	if token == "" {
		return "", errors.New("medos: session response missing token")
	}

	c.token = token
	c.expiresAt = tokenExpiry(token)
	c.logger.Debug("medos session established", "expires_at", c.expiresAt)
	return token, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the API
// remains the authority on validity. Opaque tokens yield the zero time.
func tokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// unwrapData returns the payload of a {"data": ...} envelope, or body unchanged.
func unwrapData(body []byte) []byte {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return body
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return body
	}
	return env.Data
}

func routeLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
