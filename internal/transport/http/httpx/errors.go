// Package httpx holds the echo glue shared by the public and internal servers.
package httpx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gensart-projs/openai-like-api/internal/apperr"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// ErrorHandler renders every error returned by a handler or middleware as
// the OpenAI-style error envelope. Internal causes are only exposed when
// devMode is set.
func ErrorHandler(devMode bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			err = fromHTTPError(he, c)
		}

		status, body := apperr.Envelope(err, devMode)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", status).
				Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Warn().Err(err).Msg("failed to write error response")
		}
	}
}

// fromHTTPError maps errors raised by echo itself (router, binder and
// middleware) onto the taxonomy.
func fromHTTPError(he *echo.HTTPError, c echo.Context) *apperr.Error {
	msg := fmt.Sprint(he.Message)
	switch he.Code {
	case http.StatusNotFound:
		return apperr.NotFound("route_not_found",
			fmt.Sprintf("Route %s %s not found", c.Request().Method, c.Request().URL.Path))
	case http.StatusMethodNotAllowed:
		e := apperr.New(apperr.KindValidation, "method_not_allowed", msg)
		e.Status = http.StatusMethodNotAllowed
		return e
	case http.StatusRequestEntityTooLarge:
		return apperr.PayloadTooLarge("Request body exceeds the configured limit")
	case http.StatusTooManyRequests:
		return apperr.RateLimited("Too many requests, please retry later")
	case http.StatusUnauthorized:
		return apperr.Unauthorized("", msg)
	case http.StatusForbidden:
		return apperr.Forbidden("", msg)
	case http.StatusServiceUnavailable:
		return apperr.ServiceUnavailable("", msg)
	}
	if he.Code >= 400 && he.Code < 500 {
		return apperr.Validation("", msg)
	}
	return apperr.Internal(he, msg)
}

// Bind decodes the request body into v. Decoding failures become
// validation errors, an oversized body becomes payload_too_large.
func Bind(c echo.Context, v interface{}) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, v); err != nil {
		if errors.Is(err, echo.ErrStatusRequestEntityTooLarge) {
			return apperr.PayloadTooLarge("Request body exceeds the configured limit")
		}
		return apperr.Validation("invalid_request_body", "Request body must be valid JSON").WithCause(err)
	}
	return nil
}
