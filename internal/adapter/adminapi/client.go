// Package adminapi provides an HTTP client for the chat server's admin REST API.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xiaot623/livedesk/internal/domain"
)

var (
	// ErrUnauthorized is returned when the upstream rejects the operator token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnavailable is returned when the upstream cannot be reached or the
	// response cannot be read.
	ErrUnavailable = errors.New("admin api unavailable")
	// ErrInvalidResponse is returned for a 2xx response that does not decode.
	ErrInvalidResponse = errors.New("invalid admin api response")
)

// APIError is a non-2xx upstream response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("admin api error: status %d", e.Status)
	}
	return fmt.Sprintf("admin api error: status %d: %s", e.Status, e.Message)
}

// Client is an HTTP client for the admin REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new admin API client. baseURL includes the /api prefix.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ListChatsParams filters the conversation list.
type ListChatsParams struct {
	Page   int
	Limit  int
	Status string // all, active or inactive
}

// ChatList is one page of the conversation list.
type ChatList struct {
	Chats      []domain.Chat     `json:"chats"`
	Pagination domain.Pagination `json:"pagination"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// ListChats calls GET /admin/chats.
func (c *Client) ListChats(ctx context.Context, params ListChatsParams) (*ChatList, error) {
	q := url.Values{}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Status != "" {
		q.Set("status", params.Status)
	}

	var out ChatList
	if err := c.do(ctx, http.MethodGet, "/admin/chats", q, &out); err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	if out.Chats == nil {
		out.Chats = []domain.Chat{}
	}
	return &out, nil
}

// GetChatDetails calls GET /admin/chats/:id. Page 1 holds the newest messages.
func (c *Client) GetChatDetails(ctx context.Context, chatID string, page, limit int) (*domain.ChatDetails, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var out domain.ChatDetails
	if err := c.do(ctx, http.MethodGet, "/admin/chats/"+url.PathEscape(chatID), q, &out); err != nil {
		return nil, fmt.Errorf("failed to get chat %s: %w", chatID, err)
	}
	if out.Messages == nil {
		out.Messages = []domain.Message{}
	}
	return &out, nil
}

// CloseChat calls PATCH /admin/chats/:id/close.
func (c *Client) CloseChat(ctx context.Context, chatID string) error {
	if err := c.do(ctx, http.MethodPatch, "/admin/chats/"+url.PathEscape(chatID)+"/close", nil, nil); err != nil {
		return fmt.Errorf("failed to close chat %s: %w", chatID, err)
	}
	return nil
}

// GetDashboardStats calls GET /admin/dashboard/stats.
func (c *Client) GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	var out domain.DashboardStats
	if err := c.do(ctx, http.MethodGet, "/admin/dashboard/stats", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get dashboard stats: %w", err)
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %w", ErrUnavailable, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var env envelope
		if json.Unmarshal(respBody, &env) == nil {
			apiErr.Message = env.Error
			if apiErr.Message == "" {
				apiErr.Message = env.Message
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: data: %w", ErrInvalidResponse, err)
	}
	return nil
}
