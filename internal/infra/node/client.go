// Package node implements the full node RPC client.
//
// The node serves a JSON API over HTTPS with mutual TLS: every endpoint is a
// POST of a JSON object to https://host:port/<endpoint>, answered with a JSON
// object carrying "success" and, on failure, "error".
package node

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/ratelimit"

	"github.com/vietddude/bpxfeeder/internal/indexing/metrics"
)

// Config holds the node connection settings.
type Config struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	Cert               string        `yaml:"cert"`
	Key                string        `yaml:"key"`
	CA                 string        `yaml:"ca"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	Timeout            time.Duration `yaml:"timeout"`
	RateLimit          int           `yaml:"rate_limit"` // requests per second, 0 = unlimited
	RetryAttempts      int           `yaml:"retry_attempts"`
}

// Client talks to a single full node.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	limiter      ratelimit.Limiter
	maxRetries   uint64
	retryBackoff time.Duration
}

// NewClient creates a client authenticating with the configured TLS key pair.
func NewClient(cfg Config) (*Client, error) {
	tlsCfg, err := tlsConfig(cfg)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			TLSClientConfig:     tlsCfg,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return newClient(fmt.Sprintf("https://%s:%d", cfg.Host, cfg.Port), httpClient, cfg), nil
}

func newClient(baseURL string, httpClient *http.Client, cfg Config) *Client {
	limiter := ratelimit.NewUnlimited()
	if cfg.RateLimit > 0 {
		limiter = ratelimit.New(cfg.RateLimit)
	}

	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &Client{
		baseURL:      baseURL,
		httpClient:   httpClient,
		limiter:      limiter,
		maxRetries:   uint64(attempts - 1),
		retryBackoff: 500 * time.Millisecond,
	}
}

func tlsConfig(cfg Config) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // node certificates are signed by a private CA
	}

	if cfg.Cert != "" || cfg.Key != "" {
		pair, err := tls.LoadX509KeyPair(cfg.Cert, cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to load node key pair: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{pair}
	}

	if cfg.CA != "" {
		pem, err := os.ReadFile(cfg.CA)
		if err != nil {
			return nil, fmt.Errorf("failed to read node CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CA)
		}
		tlsCfg.RootCAs = pool
	}

	return tlsCfg, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// GetNetworkInfo returns the network the node is connected to.
func (c *Client) GetNetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	var info NetworkInfo
	if err := c.call(ctx, "get_network_info", struct{}{}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetChainState returns netspace, peak height and difficulty.
func (c *Client) GetChainState(ctx context.Context) (*ChainState, error) {
	var resp struct {
		BlockchainState blockchainState `json:"blockchain_state"`
	}
	if err := c.call(ctx, "get_blockchain_state", struct{}{}, &resp); err != nil {
		return nil, err
	}

	bs := resp.BlockchainState
	state := &ChainState{
		Netspace:   bs.Space,
		PeakHeight: -1,
		Difficulty: bs.Difficulty,
		Synced:     bs.Sync.Synced,
	}
	if bs.Peak != nil {
		state.PeakHeight = bs.Peak.Height
	}
	if state.Netspace == nil {
		return nil, errors.New("node get_blockchain_state: missing space")
	}
	return state, nil
}

// GetBlockRecordByHeight returns the canonical block record at height. It
// fails with ErrNotFound when height is beyond the node's peak.
func (c *Client) GetBlockRecordByHeight(ctx context.Context, height int64) (*BlockRecord, error) {
	var resp struct {
		BlockRecord *BlockRecord `json:"block_record"`
	}
	req := map[string]int64{"height": height}
	if err := c.call(ctx, "get_block_record_by_height", req, &resp); err != nil {
		return nil, err
	}
	if resp.BlockRecord == nil {
		return nil, &APIError{Endpoint: "get_block_record_by_height", Message: fmt.Sprintf("block record at height %d not found", height)}
	}
	return resp.BlockRecord, nil
}

// GetBlock returns the full block with the given header hash.
func (c *Client) GetBlock(ctx context.Context, headerHash string) (*FullBlock, error) {
	var resp struct {
		Block json.RawMessage `json:"block"`
	}
	req := map[string]string{"header_hash": headerHash}
	if err := c.call(ctx, "get_block", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Block) == 0 || string(resp.Block) == "null" {
		return nil, &APIError{Endpoint: "get_block", Message: fmt.Sprintf("block %s not found", headerHash)}
	}

	var block FullBlock
	if err := json.Unmarshal(resp.Block, &block); err != nil {
		return nil, fmt.Errorf("parse block %s: %w", headerHash, err)
	}
	block.Raw = resp.Block
	return &block, nil
}

// call posts req to endpoint and decodes a successful response into out.
// Transport failures and 5xx responses are retried; success=false never is.
func (c *Client) call(ctx context.Context, endpoint string, req, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBackoff))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		c.limiter.Take()

		start := time.Now()
		payload, err := c.post(ctx, endpoint, body)
		metrics.NodeLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		metrics.NodeCallsTotal.WithLabelValues(endpoint).Inc()
		if err != nil {
			metrics.NodeErrorsTotal.WithLabelValues(endpoint, "transport").Inc()
			return err
		}

		var envelope struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal(payload, &envelope); err != nil {
			metrics.NodeErrorsTotal.WithLabelValues(endpoint, "decode").Inc()
			return fmt.Errorf("parse response: %w", err)
		}
		if !envelope.Success {
			metrics.NodeErrorsTotal.WithLabelValues(endpoint, "api").Inc()
			msg := envelope.Error
			if msg == "" {
				msg = "request failed"
			}
			return &APIError{Endpoint: endpoint, Message: msg}
		}

		if err := json.Unmarshal(payload, out); err != nil {
			metrics.NodeErrorsTotal.WithLabelValues(endpoint, "decode").Inc()
			return fmt.Errorf("parse %s response: %w", endpoint, err)
		}
		return nil
	})
}

// post returns the response body. Errors worth retrying are marked retryable.
func (c *Client) post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("node %s: %w", endpoint, err)
		}
		return nil, retry.RetryableError(fmt.Errorf("node %s: %w", endpoint, err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError, resp.StatusCode == http.StatusTooManyRequests:
		return nil, retry.RetryableError(fmt.Errorf("node %s: http %d: %s", endpoint, resp.StatusCode, string(payload)))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("node %s: http %d: %s", endpoint, resp.StatusCode, string(payload))
	}

	return payload, nil
}
