// Package distributorClient is a Go client for the distributor HTTP API.
package distributorClient

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

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/vaultlabs/merkle-distributor-go/pkg/types"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides default retry settings
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     5,
	InitialBackoff:  100 * time.Millisecond,
	MaxBackoff:      5 * time.Second,
	BackoffMultiple: 2.0,
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("distributor api: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// retryable reports whether the request may succeed if sent again.
func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ClientConfig holds the configuration for the distributor client
type ClientConfig struct {
	BaseURL    string
	AdminToken string // optional, sent on admin endpoints
	HTTPClient *http.Client
	Retry      *RetryConfig
	Logger     *zap.Logger
}

// Client calls a distributor node.
type Client struct {
	baseURL     string
	adminToken  string
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *zap.Logger
}

// NewClient creates a client for the node at config.BaseURL.
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	c := &Client{
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		adminToken:  config.AdminToken,
		httpClient:  config.HTTPClient,
		retryConfig: DefaultRetryConfig,
		logger:      config.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if config.Retry != nil {
		c.retryConfig = *config.Retry
	}
	if c.retryConfig.MaxAttempts < 1 {
		c.retryConfig.MaxAttempts = 1
	}
	return c, nil
}

func (c *Client) CreateEvent(ctx context.Context, req *types.CreateEventRequest) (*types.DistributionEvent, error) {
	var event types.DistributionEvent
	if err := c.do(ctx, http.MethodPost, "/events", req, &event, c.adminToken); err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *Client) SetEventStatus(ctx context.Context, eventID common.Hash, active bool) (*types.DistributionEvent, error) {
	var event types.DistributionEvent
	path := fmt.Sprintf("/events/%s/status", eventID.Hex())
	if err := c.do(ctx, http.MethodPost, path, &types.SetEventStatusRequest{Active: active}, &event, c.adminToken); err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *Client) GetEvent(ctx context.Context, eventID common.Hash) (*types.DistributionEvent, error) {
	var event types.DistributionEvent
	if err := c.do(ctx, http.MethodGet, "/events/"+eventID.Hex(), nil, &event, ""); err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *Client) ListEvents(ctx context.Context) ([]*types.DistributionEvent, error) {
	var events []*types.DistributionEvent
	if err := c.do(ctx, http.MethodGet, "/events", nil, &events, ""); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) RedeemFlat(ctx context.Context, req *types.RedeemFlatRequest) (*types.Receipt, error) {
	return c.redeem(ctx, "/redeem/flat", req)
}

func (c *Client) RedeemCompact(ctx context.Context, req *types.RedeemCompactRequest) (*types.Receipt, error) {
	return c.redeem(ctx, "/redeem/compact", req)
}

func (c *Client) RedeemForSpecificTokenHolder(ctx context.Context, req *types.RedeemHolderRequest) (*types.Receipt, error) {
	return c.redeem(ctx, "/redeem/specific", req)
}

func (c *Client) RedeemForCollectionHolder(ctx context.Context, req *types.RedeemHolderRequest) (*types.Receipt, error) {
	return c.redeem(ctx, "/redeem/collection", req)
}

func (c *Client) redeem(ctx context.Context, path string, req any) (*types.Receipt, error) {
	var receipt types.Receipt
	if err := c.do(ctx, http.MethodPost, path, req, &receipt, ""); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *Client) MintAllocation(ctx context.Context, req *types.MintAllocationRequest) (*types.AllocationUnit, error) {
	var unit types.AllocationUnit
	if err := c.do(ctx, http.MethodPost, "/allocations/mint", req, &unit, ""); err != nil {
		return nil, err
	}
	return &unit, nil
}

// ClaimAllocation claims one slot of a unit. callerToken is a caller token whose
// subject owns the unit.
func (c *Client) ClaimAllocation(ctx context.Context, unitID, callerToken string, slot int) (*types.Receipt, error) {
	var receipt types.Receipt
	body := &types.ClaimAllocationRequest{Slot: slot}
	if err := c.do(ctx, http.MethodPost, "/allocations/"+unitID+"/claim", body, &receipt, callerToken); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *Client) SplitAllocation(ctx context.Context, unitID, callerToken string, rateBasisPoints uint64) (*types.AllocationUnit, *types.AllocationUnit, error) {
	var resp types.SplitAllocationResponse
	body := &types.SplitAllocationRequest{RateBasisPoints: rateBasisPoints}
	if err := c.do(ctx, http.MethodPost, "/allocations/"+unitID+"/split", body, &resp, callerToken); err != nil {
		return nil, nil, err
	}
	return resp.Children[0], resp.Children[1], nil
}

func (c *Client) GetAllocation(ctx context.Context, unitID string) (*types.AllocationUnit, error) {
	var unit types.AllocationUnit
	if err := c.do(ctx, http.MethodGet, "/allocations/"+unitID, nil, &unit, ""); err != nil {
		return nil, err
	}
	return &unit, nil
}

func (c *Client) VerifyProof(ctx context.Context, req *types.VerifyProofRequest) (*types.VerifyProofResponse, error) {
	var resp types.VerifyProofResponse
	if err := c.do(ctx, http.MethodPost, "/proofs/verify", req, &resp, ""); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Health(ctx context.Context) error {
	var resp types.HealthResponse
	return c.do(ctx, http.MethodGet, "/health", nil, &resp, "")
}

// do sends a request, retrying transport failures, 429 and 5xx answers with
// exponential backoff. Other API errors are returned immediately. A non-empty
// token is sent as the bearer credential.
func (c *Client) do(ctx context.Context, method, path string, body, out any, token string) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = data
	}

	var lastErr error
	backoff := c.retryConfig.InitialBackoff
	for attempt := 0; attempt < c.retryConfig.MaxAttempts; attempt++ {
		lastErr = c.send(ctx, method, path, payload, out, token)
		if lastErr == nil {
			return nil
		}

		var apiErr *APIError
		if errors.As(lastErr, &apiErr) && !apiErr.retryable() {
			return lastErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Sugar().Debugw("Request failed, retrying",
			"method", method,
			"path", path,
			"attempt", attempt+1,
			"error", lastErr,
		)

		if attempt < c.retryConfig.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * c.retryConfig.BackoffMultiple)
			if backoff > c.retryConfig.MaxBackoff {
				backoff = c.retryConfig.MaxBackoff
			}
		}
	}

	return fmt.Errorf("%s %s failed after %d attempts: %w", method, path, c.retryConfig.MaxAttempts, lastErr)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, out any, token string) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var errResp types.ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Code != "" {
			apiErr.Code = errResp.Code
			apiErr.Message = errResp.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
