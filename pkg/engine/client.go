package engine

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/etcbridge/etcbridge/pkg/etc"
)

const (
	defaultTimeout = 30 * time.Second

	// Transient failures (network, 5xx) are retried a small number of
	// times with doubling delays before giving up.
	maxRetries   = 2
	retryInitial = 500 * time.Millisecond
)

// Config locates and authenticates against the external engine service.
type Config struct {
	// Endpoint is the engine's base URL, e.g. "https://etc.example.org".
	Endpoint string `yaml:"endpoint"`

	// Timeout bounds one engine call, including retries' individual attempts.
	Timeout time.Duration `yaml:"timeout"`

	// Auth configures how the bridge authenticates to the engine.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies the authentication mode for the engine endpoint.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// API key fields, used when Mode == "apikey".
	// Header is the HTTP header name to send the key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// Bearer token fields, used when Mode == "bearer".
	TokenEnv string `yaml:"token_env"`

	// Basic auth fields, used when Mode == "basic".
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds engine-endpoint TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Client is the HTTP implementation of Engine. It is safe for concurrent use.
type Client struct {
	cfg    Config
	client *http.Client
}

// calculateRequest is the engine's wire format: instrument configuration and
// scene configuration as two separate documents.
type calculateRequest struct {
	Instrument instrumentConfig `json:"instrument"`
	Scene      sceneConfig      `json:"scene"`
}

type instrumentConfig struct {
	Name           string  `json:"name"`
	Filter         string  `json:"filter"`
	ApertureArcsec float64 `json:"aperture_arcsec"`
	Background     string  `json:"background"`
	Groups         int     `json:"groups"`
	Exposures      int     `json:"exposures"`
}

type sceneConfig struct {
	MagAB float64 `json:"mag_ab"`
}

type engineErrorBody struct {
	Error string `json:"error"`
}

// NewClient builds an engine client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("engine: endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	hc, err := buildHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("engine: build http client: %w", err)
	}
	return &Client{cfg: cfg, client: hc}, nil
}

// Calculate sends one calculation to the engine and decodes its result.
// Engine-side validation failures come back as *Error; transport failures
// after retries come back wrapped.
func (c *Client) Calculate(ctx context.Context, p etc.ParamSet) (*etc.Result, error) {
	body, err := json.Marshal(calculateRequest{
		Instrument: instrumentConfig{
			Name:           p.Instrument,
			Filter:         p.Filter,
			ApertureArcsec: p.ApertureArcsec,
			Background:     p.Background,
			Groups:         p.Groups,
			Exposures:      p.Exposures,
		},
		Scene: sceneConfig{MagAB: p.MagAB},
	})
	if err != nil {
		return nil, fmt.Errorf("engine: encode request: %w", err)
	}

	delay := retryInitial
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			slog.Warn("engine: retrying calculation",
				"attempt", attempt, "err", lastErr, "retry_in", delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		res, retryable, err := c.attempt(ctx, body)
		if err == nil {
			return res, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("engine: calculation failed after %d attempts: %w", maxRetries+1, lastErr)
}

// attempt performs a single request. The second return reports whether the
// failure is worth retrying (network error or 5xx).
func (c *Client) attempt(ctx context.Context, body []byte) (*etc.Result, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.Endpoint+"/calculate", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("engine: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("engine: http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("engine: server error HTTP %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		// Engine validation failure: surface its own message verbatim.
		var eb engineErrorBody
		msg := fmt.Sprintf("request rejected with HTTP %d", resp.StatusCode)
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&eb); err == nil && eb.Error != "" {
			msg = eb.Error
		}
		return nil, false, &Error{Status: resp.StatusCode, Message: msg}
	}

	var out etc.Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("engine: decode result: %w", err)
	}
	return &out, false, nil
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		header := t.auth.Header
		if header == "" {
			header = "x-api-key"
		}
		req.Header.Set(header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the engine's auth and TLS settings.
func buildHTTPClient(cfg Config) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if cfg.Auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(cfg.Auth.CertFile, cfg.Auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}

		if cfg.Auth.CAFile != "" {
			caPEM, err := os.ReadFile(cfg.Auth.CAFile)
			if err != nil {
				return nil, fmt.Errorf("read ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("no valid certs found in ca file %q", cfg.Auth.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
	}

	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: cfg.Auth,
		},
		Timeout: cfg.Timeout,
	}, nil
}
