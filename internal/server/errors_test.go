package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aman-zulfiqar/token2022-amm/internal/amm"
	"github.com/aman-zulfiqar/token2022-amm/internal/service"
	"github.com/aman-zulfiqar/token2022-amm/internal/storage"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{storage.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("create: %w", storage.ErrPoolExists), http.StatusConflict},
		{service.ErrPaused, http.StatusServiceUnavailable},
		{service.ErrReentrant, http.StatusConflict},
		{service.ErrPriceImpact, http.StatusUnprocessableEntity},
		{fmt.Errorf("pool op: %w", &amm.Error{Op: "swap", Kind: amm.ErrInsufficientOutputAmount}), http.StatusUnprocessableEntity},
		{errors.New("redis: connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		code, msg := statusOf(tc.err)
		assert.Equal(t, tc.code, code, tc.err.Error())
		assert.NotEmpty(t, msg)
	}
}

func TestSwitchScope(t *testing.T) {
	assert.Equal(t, "global", switchScope("amm.swaps_paused"))
	assert.Equal(t, "pool", switchScope("pool.P1.swaps_paused"))
	assert.Equal(t, "other", switchScope("beta_ui"))
}
