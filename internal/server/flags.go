package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/token2022-amm/internal/flags"
)

const flagTimeout = 3 * time.Second

func (h *Handlers) noFlags(c echo.Context) error {
	return h.err(c, http.StatusNotFound, "flags are not configured", nil)
}

func (h *Handlers) badFlagKey(c echo.Context, key string) error {
	return h.err(c, http.StatusBadRequest, "invalid key", map[string]any{"key": key})
}

// switchScope tells a global kill switch from a per-pool one, for logs.
func switchScope(key string) string {
	switch {
	case strings.HasPrefix(key, flags.GlobalKey("")):
		return "global"
	case strings.HasPrefix(key, "pool."):
		return "pool"
	}
	return "other"
}

// setFlag writes key and tells FlagChanged, so cached switch reads in the
// service see the new value on the next operation.
func (h *Handlers) setFlag(c echo.Context, key string, value bool) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), flagTimeout)
	defer cancel()

	out, err := h.Flags.Upsert(ctx, key, value)
	if err != nil {
		h.Logger.WithError(err).WithField("key", key).Error("flag write failed")
		return h.err(c, http.StatusInternalServerError, "failed to store flag", nil)
	}
	if h.FlagChanged != nil {
		h.FlagChanged(key)
	}
	h.Logger.WithFields(logrus.Fields{
		"key":   key,
		"value": value,
		"scope": switchScope(key),
	}).Info("kill switch set")
	return c.JSON(http.StatusOK, out)
}

// FlagsUpsert handles POST /v1/flags with {"key": ..., "value": ...}.
func (h *Handlers) FlagsUpsert(c echo.Context) error {
	if h.Flags == nil {
		return h.noFlags(c)
	}
	var req FlagUpsertRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	if flags.ValidateKey(req.Key) != nil {
		return h.badFlagKey(c, req.Key)
	}
	return h.setFlag(c, req.Key, req.Value)
}

// FlagsUpdate handles PUT /v1/flags/:key.
func (h *Handlers) FlagsUpdate(c echo.Context) error {
	if h.Flags == nil {
		return h.noFlags(c)
	}
	key := c.Param("key")
	if flags.ValidateKey(key) != nil {
		return h.badFlagKey(c, key)
	}
	var req FlagUpdateRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	return h.setFlag(c, key, req.Value)
}

func (h *Handlers) FlagsGet(c echo.Context) error {
	if h.Flags == nil {
		return h.noFlags(c)
	}
	key := c.Param("key")
	if flags.ValidateKey(key) != nil {
		return h.badFlagKey(c, key)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), flagTimeout)
	defer cancel()

	out, err := h.Flags.Get(ctx, key)
	switch {
	case errors.Is(err, flags.ErrNotFound):
		return h.err(c, http.StatusNotFound, "flag not found", nil)
	case err != nil:
		return h.err(c, http.StatusInternalServerError, "failed to get flag", nil)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handlers) FlagsList(c echo.Context) error {
	if h.Flags == nil {
		return h.noFlags(c)
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Flags.List(ctx)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to list flags", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// FlagsDelete removes a switch; a removed switch reads as off.
func (h *Handlers) FlagsDelete(c echo.Context) error {
	if h.Flags == nil {
		return h.noFlags(c)
	}
	key := c.Param("key")
	if flags.ValidateKey(key) != nil {
		return h.badFlagKey(c, key)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), flagTimeout)
	defer cancel()

	err := h.Flags.Delete(ctx, key)
	switch {
	case errors.Is(err, flags.ErrNotFound):
		return h.err(c, http.StatusNotFound, "flag not found", nil)
	case err != nil:
		return h.err(c, http.StatusInternalServerError, "failed to delete flag", nil)
	}
	if h.FlagChanged != nil {
		h.FlagChanged(key)
	}
	h.Logger.WithField("key", key).Info("kill switch removed")
	return c.NoContent(http.StatusNoContent)
}
