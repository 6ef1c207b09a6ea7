package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"momentum/internal/engineerr"
	"momentum/pkg/ratelimit"
	"momentum/pkg/retry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HTTPClientConfig mirrors the pooling/timeout knobs a low-latency trading
// client needs: bounded connect/read/write/total timeouts and a pooled
// keep-alive transport, so every REST call pays connection-setup cost once.
type HTTPClientConfig struct {
	ConnectTimeout      time.Duration
	TotalTimeout        time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	TLSHandshakeTimeout time.Duration
}

func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		ConnectTimeout:      5 * time.Second,
		TotalTimeout:        10 * time.Second,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
}

func newPooledClient(cfg HTTPClientConfig) *http.Client {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: cfg.TotalTimeout}
}

// Client is the concrete REST implementation. Requests are signed the way
// Kalshi's trade API requires: RSA-PSS over "<unix_ms><METHOD><path>",
// base64-encoded into the KALSHI-ACCESS-SIGNATURE header.
type Client struct {
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	http       *http.Client
	limiter    *ratelimit.MultiLimiter
	retryCfg   retry.Config
}

func NewClient(baseURL, apiKeyID string, privateKeyPEM []byte, cfg HTTPClientConfig) (*Client, error) {
	key, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse kalshi private key: %w", err)
	}

	limiter := ratelimit.NewMultiLimiter()
	limiter.Add("read", 20, 40)
	limiter.Add("write", 10, 20)

	return &Client{
		baseURL:    baseURL,
		apiKeyID:   apiKeyID,
		privateKey: key,
		http:       newPooledClient(cfg),
		limiter:    limiter,
		retryCfg:   retry.NetworkConfig(),
	}, nil
}

func parsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return key, nil
}

func (c *Client) sign(method, path string) (string, string, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	msg := ts + method + path
	digest := sha256.Sum256([]byte(msg))
	sig, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", "", err
	}
	return ts, base64.StdEncoding.EncodeToString(sig), nil
}

// authError marks a response Kalshi rejected as unauthorized, so do() can
// classify it as Unrecoverable rather than Transient once retries give up.
type authError struct {
	statusCode int
	err        error
}

func (e *authError) Error() string { return e.err.Error() }
func (e *authError) Unwrap() error { return e.err }

func (c *Client) do(ctx context.Context, category, method, path string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx, category); err != nil {
		return engineerr.Transientf("kalshi.do", "", err)
	}

	var bodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return engineerr.Unrecoverablef("kalshi.do", "", err)
		}
		bodyBytes = b
	}

	op := func() error {
		ts, sig, err := c.sign(method, path)
		if err != nil {
			return retry.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(bodyBytes))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
		req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
		req.Header.Set("KALSHI-ACCESS-SIGNATURE", sig)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("kalshi %s %s: status %d", method, path, resp.StatusCode)
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return retry.Permanent(&authError{
				statusCode: resp.StatusCode,
				err:        fmt.Errorf("kalshi %s %s: status %d", method, path, resp.StatusCode),
			})
		}
		if resp.StatusCode >= 400 {
			return retry.Permanent(fmt.Errorf("kalshi %s %s: status %d", method, path, resp.StatusCode))
		}
		if out != nil {
			return json.NewDecoder(resp.Body).Decode(out)
		}
		return nil
	}

	if err := retry.Do(ctx, op, c.retryCfg); err != nil {
		var authErr *authError
		if errors.As(err, &authErr) {
			return engineerr.Unrecoverablef(fmt.Sprintf("kalshi.%s %s", method, path), "", err)
		}
		return engineerr.Transientf(fmt.Sprintf("kalshi.%s %s", method, path), "", err)
	}
	return nil
}

func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (OrderResult, error) {
	var resp struct {
		Order struct {
			OrderID      string `json:"order_id"`
			Status       string `json:"status"`
			FilledCount  int    `json:"filled_count"`
			AvgFillPrice int    `json:"avg_fill_price_cents"`
		} `json:"order"`
	}
	payload := map[string]interface{}{
		"ticker":         req.Ticker,
		"side":           req.Side,
		"action":         req.Action,
		"count":          req.Count,
		"type":           "limit",
		"price_cents":    req.PriceCents,
		"client_order_id": req.ClientID,
	}
	if err := c.do(ctx, "write", http.MethodPost, "/trade-api/v2/portfolio/orders", payload, &resp); err != nil {
		return OrderResult{}, err
	}
	return OrderResult{
		OrderID:      resp.Order.OrderID,
		Status:       resp.Order.Status,
		FilledCount:  resp.Order.FilledCount,
		AvgFillPrice: resp.Order.AvgFillPrice,
	}, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, "write", http.MethodDelete, "/trade-api/v2/portfolio/orders/"+orderID, nil, nil)
}

func (c *Client) ListOpenMarkets(ctx context.Context) ([]MarketSummary, error) {
	var resp struct {
		Markets []struct {
			Ticker       string `json:"ticker"`
			Volume24h    int    `json:"volume_24h"`
			OpenInterest int    `json:"open_interest"`
			YesBid       int    `json:"yes_bid"`
			YesAsk       int    `json:"yes_ask"`
			NoBid        int    `json:"no_bid"`
			NoAsk        int    `json:"no_ask"`
			CloseTime    time.Time `json:"close_time"`
		} `json:"markets"`
	}
	if err := c.do(ctx, "read", http.MethodGet, "/trade-api/v2/markets?status=open", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]MarketSummary, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		out = append(out, MarketSummary{
			Ticker:       m.Ticker,
			Volume24h:    m.Volume24h,
			OpenInterest: m.OpenInterest,
			YesBid:       m.YesBid,
			YesAsk:       m.YesAsk,
			NoBid:        m.NoBid,
			NoAsk:        m.NoAsk,
			CloseTime:    m.CloseTime,
		})
	}
	return out, nil
}

func (c *Client) GetBalance(ctx context.Context) (int64, error) {
	var resp struct {
		BalanceCents int64 `json:"balance"`
	}
	if err := c.do(ctx, "read", http.MethodGet, "/trade-api/v2/portfolio/balance", nil, &resp); err != nil {
		return 0, err
	}
	return resp.BalanceCents, nil
}
