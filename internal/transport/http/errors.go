package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/livedesk/internal/adapter/adminapi"
	"github.com/xiaot623/livedesk/internal/console"
	"github.com/xiaot623/livedesk/internal/dispatch"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	var apiErr *adminapi.APIError
	switch {
	case errors.Is(err, dispatch.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, console.ErrCommandBlocked):
		return http.StatusUnprocessableEntity
	case errors.Is(err, console.ErrUnknownChat):
		return http.StatusNotFound
	case errors.Is(err, console.ErrNoFocus):
		return http.StatusConflict
	case errors.Is(err, adminapi.ErrUnauthorized),
		errors.Is(err, adminapi.ErrUnavailable),
		errors.Is(err, adminapi.ErrInvalidResponse),
		errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, err error) error {
	return c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
}
