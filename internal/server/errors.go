package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aman-zulfiqar/token2022-amm/internal/amm"
	"github.com/aman-zulfiqar/token2022-amm/internal/service"
	"github.com/aman-zulfiqar/token2022-amm/internal/storage"
)

// statusOf maps a pool operation failure to an HTTP status and a public
// message. Anything unrecognised is a 500.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "pool not found"
	case errors.Is(err, storage.ErrPoolExists):
		return http.StatusConflict, "pool already exists"
	case errors.Is(err, service.ErrPaused):
		return http.StatusServiceUnavailable, "operation paused"
	case errors.Is(err, service.ErrReentrant):
		return http.StatusConflict, "pool busy"
	case errors.Is(err, service.ErrPriceImpact):
		return http.StatusUnprocessableEntity, "price impact too high"
	}
	if k := amm.Kind(err); k != nil {
		return http.StatusUnprocessableEntity, k.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}

// opErr writes the JSON error for a failed pool operation.
func (h *Handlers) opErr(c echo.Context, err error) error {
	code, msg := statusOf(err)
	if code == http.StatusInternalServerError {
		h.Logger.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	return h.err(c, code, msg, map[string]any{"err": err.Error()})
}

// jsonErrors renders every error that reaches echo, including router 404s
// and middleware rejections, in the ErrorResponse shape.
func (h *Handlers) jsonErrors() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg := http.StatusText(he.Code)
			if m, ok := he.Message.(string); ok && m != "" {
				msg = m
			}
			_ = c.JSON(he.Code, ErrorResponse{Error: msg, Code: he.Code})
			return
		}
		_ = h.opErr(c, err)
	}
}
