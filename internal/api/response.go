package api

import (
	"errors"
	"net/http"
	"time"

	"crypto-chat-assistant/internal/market"
	"crypto-chat-assistant/internal/portfolio"

	"github.com/cloudwego/hertz/pkg/app"
)

const (
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeNotFound           = "NOT_FOUND"
	CodeBadRequest         = "BAD_REQUEST"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

const rateLimitMessage = "API rate limit reached. Please wait a moment and try again."

type Envelope struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message,omitempty"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
	Timestamp string     `json:"timestamp"`
}

type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details"`
}

func timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

func writeOK(c *app.RequestContext, data any) {
	c.JSON(http.StatusOK, Envelope{
		Success:   true,
		Message:   "Success",
		Data:      data,
		Timestamp: timestamp(),
	})
}

func writeFail(c *app.RequestContext, status int, code, message string) {
	c.JSON(status, Envelope{
		Error:     &ErrorBody{Message: message, Code: code},
		Timestamp: timestamp(),
	})
}

// writeError maps domain errors onto status codes.
func writeError(c *app.RequestContext, err error) {
	switch {
	case errors.Is(err, market.ErrRateLimitExceeded):
		writeFail(c, http.StatusTooManyRequests, CodeRateLimitExceeded, rateLimitMessage)
	case errors.Is(err, market.ErrNotFound), errors.Is(err, portfolio.ErrHoldingNotFound):
		writeFail(c, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, portfolio.ErrInvalidAmount), errors.Is(err, portfolio.ErrInvalidSymbol):
		writeFail(c, http.StatusBadRequest, CodeBadRequest, err.Error())
	default:
		writeFail(c, http.StatusInternalServerError, CodeInternal, err.Error())
	}
}
