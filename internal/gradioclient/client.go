// Package gradioclient talks to a Gradio app hosted on Hugging Face Spaces
// using the HTTP "call" API: submit inputs, then follow the event stream.
package gradioclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/example/derma-check/internal/imageprocessor"
	"github.com/example/derma-check/internal/logging"
)

const maxErrorBody = 2048

// Options identify the space to talk to.
type Options struct {
	// Space is either "owner/name" or the full base URL of the app.
	Space  string
	HubURL string
	// Token is an optional Hugging Face access token.
	Token string
}

// Client connects to one Gradio space.
type Client struct {
	httpClient *http.Client
	opts       Options
	logger     *zap.Logger
}

// New returns a Client. A nil httpClient uses http.DefaultClient; timeouts
// come from the caller's context.
func New(httpClient *http.Client, opts Options, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts.HubURL = strings.TrimRight(opts.HubURL, "/")
	return &Client{httpClient: httpClient, opts: opts, logger: logger.Named("gradio_client")}
}

// StatusError is a non-2xx answer from the space or the hub.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

// Error leaves out Body so upstream text never reaches failure classification.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Code)
}

type spaceHost struct {
	Subdomain string `json:"subdomain"`
	Host      string `json:"host"`
}

type appConfig struct {
	Version   string `json:"version"`
	APIPrefix string `json:"api_prefix"`
	Protocol  string `json:"protocol"`
}

// Connect resolves the space's host and reads its config.
func (c *Client) Connect(ctx context.Context) (imageprocessor.Session, error) {
	root, err := c.resolveRoot(ctx)
	if err != nil {
		wrapped := logging.NewOperationError("gradio.resolve_space", "", err)
		c.logger.Error("failed to resolve space", zap.Error(wrapped), zap.String("space", c.opts.Space))
		return nil, wrapped
	}

	var cfg appConfig
	if err := c.getJSON(ctx, root+"/config", &cfg); err != nil {
		wrapped := logging.NewOperationError("gradio.connect", "", err)
		c.logger.Error("failed to read space config", zap.Error(wrapped), zap.String("root", root))
		return nil, wrapped
	}

	c.logger.Debug("connected to space",
		zap.String("root", root),
		zap.String("version", cfg.Version),
		zap.String("api_prefix", cfg.APIPrefix),
		zap.String("protocol", cfg.Protocol),
	)
	return &session{client: c, root: root, prefix: strings.TrimRight(cfg.APIPrefix, "/"), version: cfg.Version}, nil
}

func (c *Client) resolveRoot(ctx context.Context) (string, error) {
	space := strings.TrimSpace(c.opts.Space)
	if strings.HasPrefix(space, "http://") || strings.HasPrefix(space, "https://") {
		return strings.TrimRight(space, "/"), nil
	}
	if strings.Count(space, "/") != 1 {
		return "", fmt.Errorf("invalid space id %q", space)
	}

	var host spaceHost
	if err := c.getJSON(ctx, c.opts.HubURL+"/api/spaces/"+space+"/host", &host); err != nil {
		return "", err
	}
	if host.Host == "" {
		return "", fmt.Errorf("space %s reported no host", space)
	}
	return strings.TrimRight(host.Host, "/"), nil
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	return req, nil
}

// do executes req and returns the body of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.newStatusError(req, resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

func (c *Client) newStatusError(req *http.Request, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	statusErr := &StatusError{
		Method: req.Method,
		URL:    req.URL.Redacted(),
		Code:   resp.StatusCode,
		Body:   strings.TrimSpace(string(body)),
	}
	c.logger.Warn("upstream returned non-2xx status",
		zap.String("method", statusErr.Method),
		zap.String("url", statusErr.URL),
		zap.Int("status", statusErr.Code),
		zap.String("body", statusErr.Body),
	)
	return statusErr
}

func isQueueFull(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.Code == http.StatusTooManyRequests || statusErr.Code == http.StatusServiceUnavailable
}
