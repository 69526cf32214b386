package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	ginapi "github.com/pilab-dev/shadow-auth/api/gin"
	"github.com/pilab-dev/shadow-auth/cmd/authctl/config"
	"github.com/pilab-dev/shadow-auth/domain"
	serrors "github.com/pilab-dev/shadow-auth/errors"
	"github.com/pilab-dev/shadow-auth/services"
)

// ErrNotLoggedIn is returned by calls that need a token when the context has none.
var ErrNotLoggedIn = errors.New("not logged in, run 'authctl login' first")

// Client calls the shadow-auth HTTP API.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// New returns a client for the endpoint and token of cfg.
func New(cfg *config.Context) (*Client, error) {
	if cfg == nil || cfg.ServerEndpoint == "" {
		return nil, errors.New("invalid context or server endpoint")
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.ServerEndpoint, "/"),
		token:    cfg.UserAuthToken,
		httpClient: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// Captcha requests a new challenge.
func (c *Client) Captcha(ctx context.Context) (*domain.IssuedChallenge, error) {
	var out domain.IssuedChallenge
	if err := c.do(ctx, http.MethodGet, "/api/auth/captcha", nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates a local account and returns its first token.
func (c *Client) Register(ctx context.Context, in services.RegisterInput) (*ginapi.TokenResponse, error) {
	var out ginapi.TokenResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", in, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login authenticates a local account.
func (c *Client) Login(ctx context.Context, in services.LoginInput) (*ginapi.TokenResponse, error) {
	var out ginapi.TokenResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", in, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the identity the stored token names.
func (c *Client) Me(ctx context.Context) (*domain.Identity, error) {
	var out domain.Identity
	if err := c.do(ctx, http.MethodGet, "/api/auth", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status reports server health.
func (c *Client) Status(ctx context.Context) (*ginapi.StatusResponse, error) {
	var out ginapi.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, authenticated bool) error {
	if authenticated && c.token == "" {
		return ErrNotLoggedIn
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeError turns an error response into an *errors.AuthError carrying the HTTP status.
func decodeError(resp *http.Response) error {
	apiErr := &serrors.AuthError{Status: resp.StatusCode}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = serrors.ServerError
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
