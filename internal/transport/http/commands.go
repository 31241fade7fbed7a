package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ReplyRequest is the body of POST /v1/chats/:chat_id/reply.
type ReplyRequest struct {
	Content string `json:"content"`
}

// TypingRequest is the body of POST /v1/chats/:chat_id/typing.
type TypingRequest struct {
	Typing *bool `json:"typing"`
}

// ToggleAIRequest is the body of POST /v1/chats/:chat_id/ai.
type ToggleAIRequest struct {
	Enabled *bool `json:"enabled"`
}

// accepted is returned for forwarded commands. Their effect shows up once the
// server echoes the resulting event.
var accepted = map[string]bool{"accepted": true}

// SendReply forwards an operator reply.
// POST /v1/chats/:chat_id/reply
func (h *Handler) SendReply(c echo.Context) error {
	var req ReplyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if err := h.console.SendReply(c.Request().Context(), c.Param("chat_id"), req.Content); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, accepted)
}

// SetTyping starts or stops the operator typing indicator.
// POST /v1/chats/:chat_id/typing
func (h *Handler) SetTyping(c echo.Context) error {
	var req TypingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Typing == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "typing is required"})
	}

	if err := h.console.SetTyping(c.Request().Context(), c.Param("chat_id"), *req.Typing); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, accepted)
}

// ToggleAI switches automated replies for a chat.
// POST /v1/chats/:chat_id/ai
func (h *Handler) ToggleAI(c echo.Context) error {
	var req ToggleAIRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Enabled == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "enabled is required"})
	}

	if err := h.console.ToggleAI(c.Request().Context(), c.Param("chat_id"), *req.Enabled); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, accepted)
}

// CloseChat closes a chat upstream.
// POST /v1/chats/:chat_id/close
func (h *Handler) CloseChat(c echo.Context) error {
	if err := h.console.CloseChat(c.Request().Context(), c.Param("chat_id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
