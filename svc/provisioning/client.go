package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrymomot/subledger/pkg/logger"
	"github.com/dmitrymomot/subledger/pkg/scheduler"
)

// PanelClient talks to the provisioning panel REST API with bearer token
// authentication. Read-only calls are retried with backoff; mutations are
// attempted once. A circuit breaker stops calls while the panel is down.
type PanelClient struct {
	baseURL  *url.URL
	username string
	password string

	client      *http.Client
	timeout     time.Duration
	readRetries int
	backoff     scheduler.Backoff
	breaker     *CircuitBreaker
	logger      *slog.Logger

	mu    sync.Mutex
	token string
}

// ClientOption configures a PanelClient.
type ClientOption func(*PanelClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(p *PanelClient) {
		if c != nil {
			p.client = c
		}
	}
}

// WithBackoff sets the delay between retries of read-only calls.
func WithBackoff(b scheduler.Backoff) ClientOption {
	return func(p *PanelClient) {
		if b != nil {
			p.backoff = b
		}
	}
}

// WithCircuitBreaker replaces the breaker built from Config.
func WithCircuitBreaker(cb *CircuitBreaker) ClientOption {
	return func(p *PanelClient) {
		if cb != nil {
			p.breaker = cb
		}
	}
}

// WithLogger sets the logger used for retries and re-authentication.
func WithLogger(l *slog.Logger) ClientOption {
	return func(p *PanelClient) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPanelClient validates cfg and builds a client.
func NewPanelClient(cfg Config, opts ...ClientOption) (*PanelClient, error) {
	if cfg.URL == "" {
		return nil, errors.Join(ErrInvalidConfig, errors.New("panel URL is required"))
	}
	u, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Join(ErrInvalidConfig, errors.New("only http and https schemes are supported"))
	}
	if u.Host == "" {
		return nil, errors.Join(ErrInvalidConfig, errors.New("host is required"))
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	p := &PanelClient{
		baseURL:     u,
		username:    cfg.Username,
		password:    cfg.Password,
		timeout:     timeout,
		readRetries: max(cfg.ReadRetries, 0),
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		backoff: scheduler.ExponentialBackoff{
			InitialInterval: interval,
			MaxInterval:     10 * interval,
			Multiplier:      2,
			JitterFactor:    0.1,
		},
		breaker: NewCircuitBreaker(cfg.CircuitFailureThreshold, cfg.CircuitRecoveryTimeout),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(logger.Component("panel"))
	return p, nil
}

type createUserRequest struct {
	Username  string `json:"username"`
	Expire    int64  `json:"expire"`
	DataLimit int64  `json:"data_limit"`
	InboundID int    `json:"inbound_id"`
	Status    string `json:"status"`
}

type createUserResponse struct {
	Username string `json:"username"`
}

func (p *PanelClient) CreateAccount(ctx context.Context, prof Profile) (Handle, error) {
	req := createUserRequest{
		Username:  prof.Username,
		Expire:    prof.ExpireAt.Unix(),
		DataLimit: prof.DataLimit,
		InboundID: prof.InboundID,
		Status:    "active",
	}
	var resp createUserResponse
	if err := p.do(ctx, http.MethodPost, "/api/user", req, &resp, false); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusConflict {
			return "", errors.Join(ErrAccountExists, err)
		}
		return "", err
	}
	if resp.Username == "" {
		resp.Username = prof.Username
	}
	return Handle(resp.Username), nil
}

func (p *PanelClient) DeleteAccount(ctx context.Context, h Handle) error {
	err := p.do(ctx, http.MethodDelete, "/api/user/"+url.PathEscape(string(h)), nil, nil, false)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil
	}
	return err
}

func (p *PanelClient) GetInbounds(ctx context.Context) ([]Inbound, error) {
	var inbounds []Inbound
	if err := p.do(ctx, http.MethodGet, "/api/inbounds", nil, &inbounds, true); err != nil {
		return nil, err
	}
	return inbounds, nil
}

func (p *PanelClient) SetInboundEnabled(ctx context.Context, id int, enabled bool) error {
	err := p.do(ctx, http.MethodPut, "/api/inbounds/"+strconv.Itoa(id), map[string]bool{"enable": enabled}, nil, false)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return errors.Join(ErrInboundNotFound, err)
	}
	return err
}

// CheckSession verifies that the panel accepts the current credentials.
func (p *PanelClient) CheckSession(ctx context.Context) error {
	return p.do(ctx, http.MethodGet, "/api/admin", nil, nil, true)
}

// StatusError is a non-2xx panel response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("panel returned status %d", e.Code)
	}
	return fmt.Sprintf("panel returned status %d: %s", e.Code, e.Body)
}

// do sends one API call. Idempotent calls are retried on temporary
// failures; every call re-authenticates once on 401.
func (p *PanelClient) do(ctx context.Context, method, path string, in, out any, idempotent bool) error {
	if !p.breaker.Allow() {
		return ErrCircuitOpen
	}

	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return errors.Join(ErrPermanentFailure, err)
		}
	}

	attempts := 1
	if idempotent {
		attempts += p.readRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := p.backoff.NextInterval(attempt)
			p.logger.DebugContext(ctx, "retrying panel call",
				slog.String("method", method),
				slog.String("path", path),
				logger.RetryCount(attempt),
				logger.Duration(delay))
			select {
			case <-ctx.Done():
				return errors.Join(ErrTimeout, ctx.Err())
			case <-time.After(delay):
			}
		}

		err := p.authorized(ctx, method, path, payload, out)
		if err == nil {
			p.breaker.RecordSuccess()
			return nil
		}
		lastErr = err

		if isPermanent(err) {
			// the panel answered, so it is reachable
			p.breaker.RecordSuccess()
			return err
		}
		p.breaker.RecordFailure()
	}
	return lastErr
}

func (p *PanelClient) authorized(ctx context.Context, method, path string, payload []byte, out any) error {
	token, err := p.currentToken(ctx)
	if err != nil {
		return err
	}

	err = p.send(ctx, method, path, token, payload, out)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		return err
	}

	p.logger.InfoContext(ctx, "panel session expired, logging in again")
	p.clearToken(token)
	if token, err = p.currentToken(ctx); err != nil {
		return err
	}
	return p.send(ctx, method, path, token, payload, out)
}

func (p *PanelClient) clearToken(stale string) {
	p.mu.Lock()
	if p.token == stale {
		p.token = ""
	}
	p.mu.Unlock()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// currentToken returns the cached token or logs in. The lock is held during
// login so concurrent callers share one session.
func (p *PanelClient) currentToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" {
		return p.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", p.username)
	form.Set("password", p.password)

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.endpoint("/api/admin/token"), strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Join(ErrPermanentFailure, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var tr tokenResponse
	if err := p.exchange(reqCtx, req, &tr); err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden) {
			return "", errors.Join(ErrUnauthorized, err)
		}
		return "", err
	}
	if tr.AccessToken == "" {
		return "", errors.Join(ErrUnauthorized, errors.New("empty access token"))
	}
	p.token = tr.AccessToken
	return p.token, nil
}

func (p *PanelClient) send(ctx context.Context, method, path, token string, payload []byte, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, p.endpoint(path), body)
	if err != nil {
		return errors.Join(ErrPermanentFailure, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	return p.exchange(reqCtx, req, out)
}

func (p *PanelClient) exchange(reqCtx context.Context, req *http.Request, out any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return errors.Join(ErrTimeout, err)
		}
		return errors.Join(ErrTemporaryFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// 1MB cap on panel responses
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Join(ErrTemporaryFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{Code: resp.StatusCode, Body: sanitizeBody(raw)}
		if permanentStatus(resp.StatusCode) {
			return errors.Join(ErrPermanentFailure, se)
		}
		return errors.Join(ErrTemporaryFailure, se)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Join(ErrPermanentFailure, fmt.Errorf("decode panel response: %w", err))
	}
	return nil
}

func (p *PanelClient) endpoint(path string) string {
	return p.baseURL.String() + path
}

func sanitizeBody(raw []byte) string {
	s := strings.ReplaceAll(strings.TrimSpace(string(raw)), "\n", " ")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// permanentStatus reports 4xx responses that a retry cannot fix.
func permanentStatus(code int) bool {
	if code < 400 || code >= 500 {
		return false
	}
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	default:
		return true
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrPermanentFailure) || errors.Is(err, ErrUnauthorized)
}
