// Package gateway talks to canisters through an HTTP canister gateway. Every
// call is a JSON POST to {baseURL}/canister/{id}/{method}; the gateway holds
// the caller identity and answers with an {"ok": ...} or {"err": ...} body.
package gateway

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

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/hxuan190/dex-aggregator/internal/rpc"
)

const defaultTimeout = 30 * time.Second

// numbers stay json.Number so ledger metadata keeps full nat precision
var codec = sonic.Config{UseNumber: true}.Froze()

var ErrRejected = errors.New("canister rejected call")

// CallError is a failed canister call. Status is zero when the gateway
// answered 2xx with an err variant.
type CallError struct {
	Canister string
	Method   string
	Status   int
	Message  string
}

func (e *CallError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s.%s: gateway status %d: %s", e.Canister, e.Method, e.Status, e.Message)
	}
	return fmt.Sprintf("%s.%s: %s", e.Canister, e.Method, e.Message)
}

func (e *CallError) Unwrap() error {
	if e.Status == 0 {
		return ErrRejected
	}
	return nil
}

type Config struct {
	BaseURL string
	APIKey  string
	// Caller is the principal the gateway signs as.
	Caller  string
	Timeout time.Duration
	// RequestsPerSecond caps outgoing calls. Zero disables the limit.
	RequestsPerSecond float64
	Burst             int
}

type Client struct {
	baseURL string
	apiKey  string
	caller  string
	http    *http.Client
	limiter *rate.Limiter
}

var (
	_ rpc.LedgerProvider = (*Client)(nil)
	_ rpc.PoolProvider   = (*Client)(nil)
)

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		caller:  cfg.Caller,
		http:    &http.Client{Timeout: timeout},
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// Caller is the principal whose funds the gateway moves.
func (c *Client) Caller() string {
	return c.caller
}

type envelope struct {
	Ok  json.RawMessage `json:"ok"`
	Err *string         `json:"err"`
}

// call posts args and decodes the ok variant into out. A null ok leaves out
// untouched and reports found=false.
func (c *Client) call(ctx context.Context, canister, method string, args, out any) (bool, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, err
		}
	}
	if args == nil {
		args = struct{}{}
	}
	body, err := codec.Marshal(args)
	if err != nil {
		return false, fmt.Errorf("failed to encode %s args: %w", method, err)
	}

	url := fmt.Sprintf("%s/canister/%s/%s", c.baseURL, canister, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.caller != "" {
		req.Header.Set("X-Caller", c.caller)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("%s.%s: %w", canister, method, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("%s.%s: failed to read response: %w", canister, method, err)
	}
	log.Debug().
		Str("canister", canister).
		Str("method", method).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("[Gateway] call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, &CallError{Canister: canister, Method: method, Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	var env envelope
	if err := codec.Unmarshal(raw, &env); err != nil {
		return false, fmt.Errorf("%s.%s: malformed response: %w", canister, method, err)
	}
	if env.Err != nil {
		return false, &CallError{Canister: canister, Method: method, Message: *env.Err}
	}
	if len(env.Ok) == 0 || string(env.Ok) == "null" {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := codec.Unmarshal(env.Ok, out); err != nil {
		return false, fmt.Errorf("%s.%s: failed to decode result: %w", canister, method, err)
	}
	return true, nil
}

func (c *Client) Ledger(ledgerID string) rpc.Ledger {
	return &Ledger{client: c, id: ledgerID}
}

func (c *Client) Pool(canisterID string) rpc.Pool {
	return &Pool{client: c, id: canisterID}
}

func (c *Client) Factory(canisterID string) *Factory {
	return &Factory{client: c, id: canisterID}
}

func (c *Client) Routed(canisterID string) *Routed {
	return &Routed{client: c, id: canisterID}
}
