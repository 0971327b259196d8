// Package history fetches room metadata and paginated message history over
// plain request/response calls, independent of the duplex connection. All
// GETs are idempotent and safe to retry; retry policy belongs to the session
// controller.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tradepost/chatkit/internal/domain"
)

// FetchErrorKind classifies history fetch failures so the controller can
// decide between retrying and terminating the room-open flow.
type FetchErrorKind string

const (
	FetchNetwork   FetchErrorKind = "network"
	FetchNotFound  FetchErrorKind = "not_found"
	FetchForbidden FetchErrorKind = "forbidden"
)

// FetchError reports a failed history call.
type FetchError struct {
	Kind FetchErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("history fetch failed (%s): %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client is the REST history loader for the marketplace chat API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a history client for the given API base URL and bearer
// token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default().With("service", "history"),
	}
}

// messagesPage is the wire shape of a history page.
type messagesPage struct {
	Messages []domain.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// FetchRoom retrieves room and participant metadata.
func (c *Client) FetchRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	var room domain.Room
	if err := c.get(ctx, "/chats/"+url.PathEscape(roomID), &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// FetchMessages retrieves one page of history, oldest-first within the page.
func (c *Client) FetchMessages(ctx context.Context, roomID string, page, perPage int) ([]domain.Message, bool, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	var resp messagesPage
	if err := c.get(ctx, "/chats/"+url.PathEscape(roomID)+"/messages?"+q.Encode(), &resp); err != nil {
		return nil, false, err
	}
	return markDelivered(resp.Messages), resp.HasMore, nil
}

// FetchMessagesSince retrieves only messages newer than the given message,
// oldest-first. Used for the bounded catch-up after a reconnect.
func (c *Client) FetchMessagesSince(ctx context.Context, roomID, afterID string, afterTS time.Time) ([]domain.Message, error) {
	q := url.Values{}
	q.Set("after_id", afterID)
	q.Set("after_ts", strconv.FormatInt(afterTS.UnixMilli(), 10))

	var resp messagesPage
	if err := c.get(ctx, "/chats/"+url.PathEscape(roomID)+"/messages?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return markDelivered(resp.Messages), nil
}

// PostMessage sends a message over REST. The response echoes the
// authoritative Message with its server-assigned id.
func (c *Client) PostMessage(ctx context.Context, roomID string, out domain.OutboundMessage) (*domain.Message, error) {
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPayloadRejected, err)
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, &FetchError{Kind: FetchNetwork, Err: err}
	}

	var msg domain.Message
	if err := c.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(roomID)+"/messages", bytes.NewReader(body), &msg); err != nil {
		return nil, err
	}
	msg.Delivery = domain.DeliveryDelivered
	return &msg, nil
}

func (c *Client) get(ctx context.Context, path string, into any) error {
	return c.do(ctx, http.MethodGet, path, nil, into)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, into any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &FetchError{Kind: FetchNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &FetchError{Kind: FetchNetwork, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &FetchError{Kind: FetchNetwork, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &FetchError{Kind: FetchNotFound, Err: domain.ErrRoomNotFound}
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return &FetchError{Kind: FetchForbidden, Err: domain.ErrRoomForbidden}
	case resp.StatusCode >= 400:
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		c.logger.Warn("History call failed", "method", method, "path", path, "status", resp.StatusCode, "error", errResp.Error)
		return &FetchError{Kind: FetchNetwork, Err: fmt.Errorf("status %d: %s", resp.StatusCode, errResp.Error)}
	}

	if into == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, into); err != nil {
		return &FetchError{Kind: FetchNetwork, Err: err}
	}
	return nil
}

func markDelivered(msgs []domain.Message) []domain.Message {
	for i := range msgs {
		msgs[i].Delivery = domain.DeliveryDelivered
	}
	return msgs
}
