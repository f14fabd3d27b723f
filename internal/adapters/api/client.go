package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/andrescamacho/farmtown-go/internal/domain/production"
	"github.com/andrescamacho/farmtown-go/internal/domain/shared"
	"github.com/andrescamacho/farmtown-go/internal/infrastructure/ports"
)

const (
	defaultBaseURL     = "https://farmtown-backend.example.com/rpc"
	defaultTimeout     = 30 * time.Second
	defaultMaxRetries  = 3
	defaultBackoffBase = 100 * time.Millisecond
)

// Ledger error codes returned by the hosted stored procedures. Codes in
// the benign set mean another actor already applied the effect; they
// resolve silently per the idempotence contract.
const (
	codeNothingToCollect      = "NOTHING_TO_COLLECT"
	codeAlreadyHarvested      = "ALREADY_HARVESTED"
	codeSlotAlreadyOccupied   = "SLOT_OCCUPIED"
	codeInsufficientResources = "INSUFFICIENT_RESOURCES"
	codeCapacityReached       = "CAPACITY_REACHED"
	codeInvalidParams         = "INVALID_PARAMS"
)

// FarmLedgerClient implements the LedgerClient interface over the
// backend's HTTP RPC surface (one POST per stored procedure).
type FarmLedgerClient struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	baseURL     string
	maxRetries  int
	backoffBase time.Duration
	clock       shared.Clock
}

// NewFarmLedgerClient creates a ledger client with default settings
// Rate limit: 4 requests per second with burst of 4
// Retry: max 3 attempts with 100ms backoff + jitter
func NewFarmLedgerClient() *FarmLedgerClient {
	return NewFarmLedgerClientWithConfig(defaultBaseURL, defaultMaxRetries, defaultBackoffBase, nil)
}

// NewFarmLedgerClientWithConfig creates a ledger client with custom configuration
// If clock is nil, uses RealClock for production
func NewFarmLedgerClientWithConfig(
	baseURL string,
	maxRetries int,
	backoffBase time.Duration,
	clock shared.Clock,
) *FarmLedgerClient {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &FarmLedgerClient{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(4), 4),
		baseURL:     baseURL,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		clock:       clock,
	}
}

// SetRateLimit overrides the default request rate (used by config wiring)
func (c *FarmLedgerClient) SetRateLimit(requestsPerSecond, burst int) {
	c.rateLimiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// SetTimeout overrides the per-request HTTP timeout
func (c *FarmLedgerClient) SetTimeout(d time.Duration) {
	if d > 0 {
		c.httpClient.Timeout = d
	}
}

// StartWork calls the start procedure for the slot's kind and returns the
// server-assigned completion timestamp
func (c *FarmLedgerClient) StartWork(ctx context.Context, key production.Key, params map[string]interface{}, idempotencyKey, token string) (*ports.StartWorkResult, error) {
	actionType, err := production.StartActionType(key.Kind)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"slot_id":         key.ID,
		"idempotency_key": idempotencyKey,
	}
	for k, v := range params {
		body[k] = v
	}

	var response struct {
		Data struct {
			SlotID      string                 `json:"slot_id"`
			StartedAt   time.Time              `json:"started_at"`
			CompletesAt time.Time              `json:"completes_at"`
			Payload     map[string]interface{} `json:"payload"`
		} `json:"data"`
	}

	if err := c.request(ctx, "/"+actionType, key, token, body, &response); err != nil {
		return nil, err
	}

	slot, err := production.NewOccupiedSlot(
		response.Data.SlotID,
		key.Kind,
		response.Data.StartedAt,
		response.Data.CompletesAt,
		response.Data.Payload,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger returned inconsistent slot: %w", err)
	}

	return &ports.StartWorkResult{
		Slot:        slot,
		StartedAt:   response.Data.StartedAt,
		CompletesAt: response.Data.CompletesAt,
	}, nil
}

// Collect calls the collect procedure for the slot's kind. An
// already-emptied slot surfaces as a BenignRaceError.
func (c *FarmLedgerClient) Collect(ctx context.Context, key production.Key, idempotencyKey, token string) (*ports.CollectResult, error) {
	actionType, err := production.CollectActionType(key.Kind)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"slot_id":         key.ID,
		"idempotency_key": idempotencyKey,
	}

	var response struct {
		Data struct {
			SlotID string `json:"slot_id"`
			Awards []struct {
				Item     string `json:"item"`
				Quantity int    `json:"quantity"`
			} `json:"awards"`
		} `json:"data"`
	}

	if err := c.request(ctx, "/"+actionType, key, token, body, &response); err != nil {
		return nil, err
	}

	awards := make([]ports.Award, len(response.Data.Awards))
	for i, a := range response.Data.Awards {
		awards[i] = ports.Award{Item: a.Item, Quantity: a.Quantity}
	}

	return &ports.CollectResult{
		SlotID: response.Data.SlotID,
		Kind:   key.Kind,
		Awards: awards,
	}, nil
}

// QueryState retrieves the full current slot set for the session
func (c *FarmLedgerClient) QueryState(ctx context.Context, token string) ([]*production.Slot, error) {
	var response struct {
		Data []struct {
			SlotID      string                 `json:"slot_id"`
			Kind        string                 `json:"kind"`
			StartedAt   *time.Time             `json:"started_at"`
			CompletesAt *time.Time             `json:"completes_at"`
			Payload     map[string]interface{} `json:"payload"`
		} `json:"data"`
	}

	if err := c.request(ctx, "/query_state", production.Key{}, token, map[string]interface{}{}, &response); err != nil {
		return nil, fmt.Errorf("failed to query slot state: %w", err)
	}

	slots := make([]*production.Slot, 0, len(response.Data))
	for _, raw := range response.Data {
		kind, err := production.ParseKind(raw.Kind)
		if err != nil {
			return nil, fmt.Errorf("malformed slot %s: %w", raw.SlotID, err)
		}

		slot := &production.Slot{
			ID:          raw.SlotID,
			Kind:        kind,
			StartedAt:   raw.StartedAt,
			CompletesAt: raw.CompletesAt,
			Payload:     raw.Payload,
		}
		if err := slot.Validate(); err != nil {
			return nil, fmt.Errorf("malformed slot %s: %w", raw.SlotID, err)
		}
		slots = append(slots, slot)
	}

	return slots, nil
}

// apiError is the error envelope returned by the backend
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details struct {
		Resource  string `json:"resource"`
		Required  int    `json:"required"`
		Available int    `json:"available"`
	} `json:"details"`
}

// classifyAPIError maps a 4xx error envelope into the domain taxonomy
func classifyAPIError(key production.Key, status int, envelope *apiError) error {
	if envelope == nil {
		return fmt.Errorf("ledger error (status %d)", status)
	}

	switch envelope.Code {
	case codeNothingToCollect, codeAlreadyHarvested:
		return shared.NewBenignRaceError("collect", key.ID)
	case codeSlotAlreadyOccupied:
		// Occupied on start-work is a race with another device, not a
		// user mistake: another actor already planted this slot.
		return shared.NewBenignRaceError("start_work", key.ID)
	case codeInsufficientResources:
		return shared.NewInsufficientResourcesError(
			envelope.Details.Resource,
			envelope.Details.Required,
			envelope.Details.Available,
		)
	case codeCapacityReached:
		return shared.NewValidationError("capacity", envelope.Message)
	case codeInvalidParams:
		return shared.NewValidationError("params", envelope.Message)
	default:
		return fmt.Errorf("ledger rejected request (status %d, code %s): %s", status, envelope.Code, envelope.Message)
	}
}

// addJitter adds random jitter to a duration to avoid thundering herd
// Returns a duration between 50% and 150% of the original value
func addJitter(d time.Duration) time.Duration {
	jitter := 0.5 + rand.Float64() // 0.5 to 1.5
	return time.Duration(float64(d) * jitter)
}

// request makes an HTTP request with rate limiting and backoff retries.
// Retryable: network errors, 429, 503 and other 5xx. Not retryable: 4xx,
// which are classified into the domain error taxonomy instead.
func (c *FarmLedgerClient) request(ctx context.Context, path string, key production.Key, token string, body interface{}, result interface{}) error {
	url := c.baseURL + path

	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter error: %w", err)
		}

		var reqBody io.Reader
		if body != nil {
			jsonData, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("failed to marshal request body: %w", err)
			}
			reqBody = bytes.NewBuffer(jsonData)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reqBody)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Network error or transport timeout - retryable. An ambiguous
			// timeout may have succeeded server-side; the idempotency key in
			// the body makes the replay resolve as a benign race.
			lastErr = shared.NewTransientError("network error", err)

			if attempt >= c.maxRetries {
				break
			}
			if ctx.Err() != nil {
				return fmt.Errorf("context cancelled: %w", ctx.Err())
			}

			c.clock.Sleep(addJitter(c.backoffBase * time.Duration(attempt+1)))
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("failed to read response: %w", readErr)
		}

		// 429: honor Retry-After when the server provides one
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = shared.NewTransientError("rate limited (429)", nil)

			if attempt >= c.maxRetries {
				break
			}
			if ctx.Err() != nil {
				return fmt.Errorf("context cancelled: %w", ctx.Err())
			}

			backoffDelay := addJitter(c.backoffBase * time.Duration(attempt+1))
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if seconds, err := strconv.Atoi(retryAfter); err == nil {
					backoffDelay = time.Duration(seconds) * time.Second
				}
			}

			c.clock.Sleep(backoffDelay)
			continue
		}

		// 5xx server errors - retryable
		if resp.StatusCode >= 500 {
			lastErr = shared.NewTransientError(fmt.Sprintf("server error (%d)", resp.StatusCode), nil)

			if attempt >= c.maxRetries {
				break
			}
			if ctx.Err() != nil {
				return fmt.Errorf("context cancelled: %w", ctx.Err())
			}

			c.clock.Sleep(addJitter(c.backoffBase * time.Duration(attempt+1)))
			continue
		}

		// 4xx - classified, never retried
		if resp.StatusCode >= 400 {
			var envelope struct {
				Error *apiError `json:"error"`
			}
			if err := json.Unmarshal(respBody, &envelope); err != nil || envelope.Error == nil {
				return fmt.Errorf("ledger error (status %d): %s", resp.StatusCode, string(respBody))
			}
			return classifyAPIError(key, resp.StatusCode, envelope.Error)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("ledger error (status %d): %s", resp.StatusCode, string(respBody))
		}

		if result != nil {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("failed to unmarshal response: %w", err)
			}
		}

		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("max retries exceeded: %w", lastErr)
	}
	return fmt.Errorf("max retries exceeded")
}
