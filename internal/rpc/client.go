package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

// Client reads vault balances and pool accounts from a Solana JSON-RPC node,
// retrying rate limits and server errors with exponential backoff.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	maxRetries   int
	retryBackoff time.Duration
	commitment   string
	logger       *logrus.Logger

	nextID atomic.Uint64
}

type ClientConfig struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	// Commitment defaults to "confirmed".
	Commitment string
	Logger     *logrus.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:      cfg.BaseURL,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		commitment:   cfg.Commitment,
		logger:       cfg.Logger,
	}
}

// Call sends one JSON-RPC request and decodes the whole response into
// result. Transport failures, 429 and 5xx are retried up to MaxRetries times.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	data, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	var lastErr error
	wait := c.retryBackoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(logrus.Fields{
				"method":  method,
				"attempt": attempt,
				"wait":    wait,
			}).WithError(lastErr).Debug("retrying rpc call")

			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
			wait *= 2
		}

		body, err := c.post(ctx, data)
		if err == nil {
			if err := json.Unmarshal(body, result); err != nil {
				return fmt.Errorf("decode %s: %w", method, err)
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return fmt.Errorf("%s: %w", method, err)
		}
		lastErr = err
	}
	return fmt.Errorf("%s: max retries exceeded: %w", method, lastErr)
}

func (c *Client) post(ctx context.Context, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Code: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// value runs a {context, value} method and returns the value.
func value[V any](ctx context.Context, c *Client, method string, account solana.PublicKey, opts map[string]any) (V, error) {
	var zero V
	opts["commitment"] = c.commitment

	var env envelope[V]
	if err := c.Call(ctx, method, []any{account.String(), opts}, &env); err != nil {
		return zero, err
	}
	if env.Error != nil {
		return zero, fmt.Errorf("%s %s: %w", method, account, env.Error)
	}
	if env.Result == nil {
		return zero, fmt.Errorf("%s %s: empty result", method, account)
	}
	return env.Result.Value, nil
}

// GetTokenAccountBalance returns the raw amount held by a token account.
func (c *Client) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	amt, err := value[TokenAmount](ctx, c, "getTokenAccountBalance", account, map[string]any{})
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(amt.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", account, err)
	}
	return n, nil
}

// GetAccountData returns the raw data of an account. A missing account is
// ErrAccountNotFound.
func (c *Client) GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	info, err := value[*AccountInfo](ctx, c, "getAccountInfo", account, map[string]any{"encoding": "base64"})
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("%s: %w", account, ErrAccountNotFound)
	}
	return info.Data.Content, nil
}
