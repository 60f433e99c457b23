package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/adstack/adsync/internal/ads"
)

// Retry and backoff constants. Terminal kinds (auth, bad request, not
// found) propagate immediately; only rate-limit, server, and network
// errors are retried.
const (
	maxAttempts    = 4
	baseBackoff    = 1 * time.Second
	maxBackoff     = 30 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "adsync/0.1"
)

// TokenFunc returns a currently-valid bearer token for the request
// being built. The token lifecycle manager provides the real
// implementation; static-key adapters use a closure over the key.
type TokenFunc func(ctx context.Context) (string, error)

// SignFunc lets an adapter add platform-specific authentication
// headers (HMAC signatures, login-customer-id, API key headers) to each
// outgoing request. Called after the bearer token is set.
type SignFunc func(req *http.Request) error

// Client is the shared HTTP client platform adapters build on. It
// injects authentication, retries retryable failures with capped
// exponential backoff and jitter, honors Retry-After, and classifies
// every error before it leaves the adapter boundary.
type Client struct {
	platform   ads.Platform
	baseURL    string
	httpClient *http.Client
	token      TokenFunc
	sign       SignFunc
	logger     *slog.Logger

	// sleepFunc is called to wait between retries. Tests override it
	// to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a platform HTTP client. token may be nil for
// adapters that authenticate purely through sign (API-key platforms).
func NewClient(p ads.Platform, baseURL string, httpClient *http.Client, token TokenFunc, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		platform:   p,
		baseURL:    baseURL,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		sleepFunc:  sleepCtx,
	}
}

// WithSigner returns a copy of the client that applies sign to every
// request.
func (c *Client) WithSigner(sign SignFunc) *Client {
	clone := *c
	clone.sign = sign

	return &clone
}

// nativeError is the least common denominator of the error bodies the
// supported platforms return. Each field is probed in order.
type nativeError struct {
	Error struct {
		Code    json.Number `json:"code"`
		Message string      `json:"message"`
	} `json:"error"`
	Code    json.Number `json:"code"`
	Message string      `json:"message"`
	Title   string      `json:"title"`
}

// nativeCode extracts the platform error code from a response body,
// returning "" when none is recognizable.
func nativeCode(body []byte) (code, message string) {
	var ne nativeError
	if err := json.Unmarshal(body, &ne); err != nil {
		return "", ""
	}

	if ne.Error.Code.String() != "" {
		return ne.Error.Code.String(), ne.Error.Message
	}

	msg := ne.Message
	if msg == "" {
		msg = ne.Title
	}

	return ne.Code.String(), msg
}

// GetJSON issues a GET and decodes the response body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

// PostJSON issues a POST with a JSON body and decodes the response into
// out. out may be nil when the response body is irrelevant.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, in, out)
}

// PutJSON issues a PUT with a JSON body.
func (c *Client) PutJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, in, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte

	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return NewError(c.platform, KindUnknown, "encoding request", err)
		}

		body = b
	}

	respBody, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return NewError(c.platform, KindUnknown, "decoding response", err)
	}

	return nil
}

// Do executes an HTTP request against the platform API, retrying
// retryable failures. On success it returns the response body; on
// failure a classified *Error.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	url := c.baseURL + path

	var attempt int
	for {
		respBody, status, header, err := c.doOnce(ctx, method, url, body)
		if err != nil {
			// Context cancellation is never retried.
			if ctx.Err() != nil {
				return nil, NewError(c.platform, KindNetwork, "request canceled", ctx.Err())
			}

			if attempt+1 < maxAttempts {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("platform", c.platform.String()),
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, NewError(c.platform, KindNetwork, "request canceled", sleepErr)
				}

				attempt++

				continue
			}

			return nil, NewError(c.platform, KindNetwork,
				fmt.Sprintf("%s %s failed after %d attempts", method, path, maxAttempts), err)
		}

		if status >= http.StatusOK && status < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("platform", c.platform.String()),
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", status),
			)

			return respBody, nil
		}

		code, message := nativeCode(respBody)
		kind := Classify(c.platform, status, code)

		if kind.Retryable() && attempt+1 < maxAttempts {
			backoff := c.retryBackoff(header, attempt)
			c.logger.Warn("retrying after platform error",
				slog.String("platform", c.platform.String()),
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", status),
				slog.String("kind", string(kind)),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil, NewError(c.platform, KindNetwork, "request canceled", sleepErr)
			}

			attempt++

			continue
		}

		if message == "" {
			message = fmt.Sprintf("HTTP %d", status)
		}

		return nil, NewError(c.platform, kind, message, nil)
	}
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, method, url string, body []byte) ([]byte, int, http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("creating request: %w", err)
	}

	if c.token != nil {
		tok, tokenErr := c.token(ctx)
		if tokenErr != nil {
			return nil, 0, nil, fmt.Errorf("obtaining token: %w", tokenErr)
		}

		req.Header.Set("Authorization", "Bearer "+tok)
	}

	req.Header.Set("User-Agent", userAgent)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.sign != nil {
		if signErr := c.sign(req); signErr != nil {
			return nil, 0, nil, fmt.Errorf("signing request: %w", signErr)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}

	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, 0, nil, fmt.Errorf("reading response: %w", readErr)
	}

	return respBody, resp.StatusCode, resp.Header, nil
}

// retryBackoff returns the backoff for a retryable response, preferring
// a Retry-After header when the platform supplies one.
func (c *Client) retryBackoff(header http.Header, attempt int) time.Duration {
	if ra := header.Get("Retry-After"); ra != "" {
		if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
			d := time.Duration(seconds) * time.Second
			if d > maxBackoff {
				return maxBackoff
			}

			return d
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// sleepCtx waits for the given duration or until the context is
// canceled. It is the default sleepFunc for Client.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
