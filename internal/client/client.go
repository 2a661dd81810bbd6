// Package client talks to the ledger server on behalf of a kiosk.
package client

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

	"github.com/crucial707/keykiosk/internal/models"
)

// ErrUnavailable wraps every failure to reach the server at all.
var ErrUnavailable = errors.New("server unavailable")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// IsTransient reports whether retrying err later may succeed: the server
// could not be reached, timed out, or failed internally.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
	}
	return false
}

// IsConflict reports a 409 answer.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	kioskID string
	http    *http.Client
}

// New returns a client for baseURL. Every request is bounded by timeout.
func New(baseURL, token, kioskID string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		kioskID: kioskID,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s body: %w", path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.kioskID != "" {
		req.Header.Set("X-Kiosk-ID", c.kioskID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &payload) != nil || payload.Error == "" {
			payload.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: payload.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", ErrUnavailable, path, err)
	}
	return nil
}

// Health probes the server and its database.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

// Checkout writes a live checkout stamped with the server's clock. It
// closes another holder's record in the same server transaction.
func (c *Client) Checkout(ctx context.Context, req models.OfflineCheckout) (models.ApplyResult, error) {
	req.OccurredAt = nil
	var res models.ApplyResult
	err := c.do(ctx, http.MethodPost, "/api/checkouts", req, &res)
	return res, err
}

// Checkin writes a live checkin.
func (c *Client) Checkin(ctx context.Context, req models.OfflineCheckin) (models.ApplyResult, error) {
	req.OccurredAt = nil
	var res models.ApplyResult
	err := c.do(ctx, http.MethodPost, "/api/checkins", req, &res)
	return res, err
}

// SubmitOfflineCheckout replays a queued checkout with its original
// timestamp. Replaying it twice is harmless.
func (c *Client) SubmitOfflineCheckout(ctx context.Context, req models.OfflineCheckout) (models.ApplyResult, error) {
	if req.OccurredAt == nil {
		return models.ApplyResult{}, errors.New("offline checkout without timestamp")
	}
	var res models.ApplyResult
	err := c.do(ctx, http.MethodPost, "/api/offline_sync/checkout", req, &res)
	return res, err
}

// SubmitOfflineCheckin replays a queued checkin with its original timestamp.
func (c *Client) SubmitOfflineCheckin(ctx context.Context, req models.OfflineCheckin) (models.ApplyResult, error) {
	if req.OccurredAt == nil {
		return models.ApplyResult{}, errors.New("offline checkin without timestamp")
	}
	var res models.ApplyResult
	err := c.do(ctx, http.MethodPost, "/api/offline_sync/checkin", req, &res)
	return res, err
}

// Notify tells the server that the ledger changed so displays refresh.
func (c *Client) Notify(ctx context.Context, event string) error {
	return c.do(ctx, http.MethodPost, "/api/notify", map[string]string{
		"kiosk_id": c.kioskID,
		"event":    event,
	}, nil)
}

// Mirror fetches the state a kiosk keeps locally.
func (c *Client) Mirror(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/mirror", nil, &snap)
	return snap, err
}

// Status fetches the server's asset status board.
func (c *Client) Status(ctx context.Context) ([]models.AssetStatus, error) {
	var list []models.AssetStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &list)
	return list, err
}

// ReplaceCard moves the holder of oldCard onto newCard. A newCard that
// belongs to someone else comes back as a 409 APIError.
func (c *Client) ReplaceCard(ctx context.Context, oldCard, newCard string) (models.User, error) {
	var u models.User
	err := c.do(ctx, http.MethodPost, "/api/users/replace_card", map[string]string{
		"old_card_id": oldCard,
		"new_card_id": newCard,
	}, &u)
	return u, err
}
