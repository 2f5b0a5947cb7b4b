package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/alejandrodnm/squadbid/internal/ports"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client es el HTTP client del feed de precios con rate limiting y retries.
//
// Endpoint: GET {base}/price?token=<id>&at=<RFC3339> → {"token": "...", "price": "123.45"}
type Client struct {
	http      *http.Client
	base      string
	limiter   *rate.Limiter
	retryWait time.Duration
}

var _ ports.PriceOracle = (*Client)(nil)

// NewClient crea un Client contra base con rps peticiones por segundo.
func NewClient(base string, rps float64, burst int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		base:      base,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		retryWait: baseRetryWait,
	}
}

// WithRetryWait cambia la espera base del backoff.
func (c *Client) WithRetryWait(d time.Duration) *Client {
	c.retryWait = d
	return c
}

type priceResponse struct {
	Token string          `json:"token"`
	Price decimal.Decimal `json:"price"`
}

// PriceAt devuelve el precio de tokenID en el instante at.
func (c *Client) PriceAt(ctx context.Context, tokenID string, at time.Time) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("token", tokenID)
	q.Set("at", at.UTC().Format(time.RFC3339))
	endpoint := c.base + "/price?" + q.Encode()

	var resp priceResponse
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("oracle.PriceAt %s: %w", tokenID, err)
	}
	if resp.Token != "" && resp.Token != tokenID {
		return decimal.Zero, fmt.Errorf("oracle.PriceAt %s: response is for token %s", tokenID, resp.Token)
	}
	return resp.Price, nil
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, url string, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by price feed", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
