package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/livedesk/internal/console"
	"github.com/xiaot623/livedesk/internal/domain"
)

// Console is the operator session served by the API.
type Console interface {
	View() console.Snapshot
	Connected() bool
	RefreshChats(ctx context.Context) error
	FocusChat(ctx context.Context, chatID string) (domain.ChatDetails, error)
	LoadOlder(ctx context.Context) (bool, error)
	ClearFocus()
	SendReply(ctx context.Context, chatID, content string) error
	SetTyping(ctx context.Context, chatID string, typing bool) error
	ToggleAI(ctx context.Context, chatID string, enabled bool) error
	CloseChat(ctx context.Context, chatID string) error
	Activity(ctx context.Context, limit int) ([]domain.ActivityEntry, error)
	Notices(since int64) []console.Notice
	Stats(ctx context.Context) (*domain.DashboardStats, error)
}

// Handler handles HTTP requests.
type Handler struct {
	console Console
}

// NewHandler creates a new handler.
func NewHandler(c Console) *Handler {
	return &Handler{console: c}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	// Reads
	e.GET("/v1/state", h.GetState)
	e.GET("/v1/chats", h.ListChats)
	e.GET("/v1/presence", h.GetPresence)
	e.GET("/v1/focus", h.GetFocus)
	e.GET("/v1/activity", h.ListActivity)
	e.GET("/v1/notices", h.ListNotices)
	e.GET("/v1/stats", h.GetStats)

	// Seeds
	e.POST("/v1/chats/refresh", h.RefreshChats)
	e.POST("/v1/focus/older", h.LoadOlder)
	e.POST("/v1/focus/:chat_id", h.FocusChat)
	e.DELETE("/v1/focus", h.ClearFocus)

	// Commands
	e.POST("/v1/chats/:chat_id/reply", h.SendReply)
	e.POST("/v1/chats/:chat_id/typing", h.SetTyping)
	e.POST("/v1/chats/:chat_id/ai", h.ToggleAI)
	e.POST("/v1/chats/:chat_id/close", h.CloseChat)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"connected": h.console.Connected(),
	})
}

// GetState returns presence, list and focus in one consistent snapshot.
// GET /v1/state
func (h *Handler) GetState(c echo.Context) error {
	return c.JSON(http.StatusOK, h.console.View())
}

// ListChats returns the conversation list.
// GET /v1/chats
func (h *Handler) ListChats(c echo.Context) error {
	v := h.console.View()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"chats": v.Chats,
	})
}

// GetPresence returns the online and typing sessions.
// GET /v1/presence
func (h *Handler) GetPresence(c echo.Context) error {
	v := h.console.View()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"online": v.Online,
		"typing": v.Typing,
	})
}

// GetFocus returns the focused transcript.
// GET /v1/focus
func (h *Handler) GetFocus(c echo.Context) error {
	v := h.console.View()
	if v.Focused == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": console.ErrNoFocus.Error()})
	}
	return c.JSON(http.StatusOK, v.Focused)
}

// ListActivity returns recently journaled events.
// GET /v1/activity
func (h *Handler) ListActivity(c echo.Context) error {
	limit := 20
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			limit = val
		}
	}

	entries, err := h.console.Activity(c.Request().Context(), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": entries,
	})
}

// ListNotices returns operator notifications.
// GET /v1/notices
func (h *Handler) ListNotices(c echo.Context) error {
	var since int64
	if s := c.QueryParam("since"); s != "" {
		if val, err := strconv.ParseInt(s, 10, 64); err == nil {
			since = val
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"notices": h.console.Notices(since),
	})
}

// GetStats returns upstream dashboard totals.
// GET /v1/stats
func (h *Handler) GetStats(c echo.Context) error {
	stats, err := h.console.Stats(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// RefreshChats re-fetches the conversation list.
// POST /v1/chats/refresh
func (h *Handler) RefreshChats(c echo.Context) error {
	if err := h.console.RefreshChats(c.Request().Context()); err != nil {
		return writeError(c, err)
	}
	return h.ListChats(c)
}

// FocusChat focuses a chat and returns its transcript.
// POST /v1/focus/:chat_id
func (h *Handler) FocusChat(c echo.Context) error {
	details, err := h.console.FocusChat(c.Request().Context(), c.Param("chat_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, details)
}

// LoadOlder prepends the next older page to the focused transcript.
// POST /v1/focus/older
func (h *Handler) LoadOlder(c echo.Context) error {
	loaded, err := h.console.LoadOlder(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"loaded": loaded,
		"focus":  h.console.View().Focused,
	})
}

// ClearFocus drops the focused transcript.
// DELETE /v1/focus
func (h *Handler) ClearFocus(c echo.Context) error {
	h.console.ClearFocus()
	return c.NoContent(http.StatusNoContent)
}
