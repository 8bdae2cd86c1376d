package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/token2022-amm/internal/amm"
	"github.com/aman-zulfiqar/token2022-amm/internal/constants"
	"github.com/aman-zulfiqar/token2022-amm/internal/flags"
	"github.com/aman-zulfiqar/token2022-amm/internal/hook"
	"github.com/aman-zulfiqar/token2022-amm/internal/program"
	"github.com/aman-zulfiqar/token2022-amm/internal/service"
)

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Pools   *service.Service // Pool operations
	Flags   *flags.Store     // Redis-backed kill switches (optional)
	DevMode bool             // Enable detailed error responses in development
	Logger  *logrus.Logger   // Structured logger

	// FlagChanged, if set, is called after a switch is written or removed.
	FlagChanged func(key string)
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

func parseKey(s string) (solana.PublicKey, error) {
	return solana.PublicKeyFromBase58(strings.TrimSpace(s))
}

func (h *Handlers) badKey(c echo.Context, name string) error {
	return h.err(c, http.StatusBadRequest, "invalid "+name, map[string]any{name: "must be a base58 public key"})
}

// Health reports whether the pool store is reachable
func (h *Handlers) Health(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		OK:          true,
		ProgramID:   h.Pools.ProgramID().String(),
		Arithmetic:  h.Pools.Mode().String(),
		StoreStatus: "ok",
	}
	if err := h.Pools.Ping(ctx); err != nil {
		resp.OK = false
		resp.StoreStatus = err.Error()
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// ListPools returns every pool
func (h *Handlers) ListPools(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Pools.List(ctx)
	if err != nil {
		return h.opErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// GetPool returns one pool by address
func (h *Handlers) GetPool(c echo.Context) error {
	addr, err := parseKey(c.Param("pool"))
	if err != nil {
		return h.badKey(c, "pool")
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	pool, err := h.Pools.Get(ctx, addr)
	if err != nil {
		return h.opErr(c, err)
	}
	return c.JSON(http.StatusOK, pool)
}

// CreatePool initializes an empty pool for a mint pair
func (h *Handlers) CreatePool(c echo.Context) error {
	var req CreatePoolRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	mintA, errA := parseKey(req.MintA)
	mintB, errB := parseKey(req.MintB)
	if errA != nil || errB != nil {
		return h.err(c, http.StatusBadRequest, "invalid mint", map[string]any{"mint_a": req.MintA, "mint_b": req.MintB})
	}
	var authority solana.PublicKey
	if req.Authority != "" {
		var err error
		if authority, err = parseKey(req.Authority); err != nil {
			return h.err(c, http.StatusBadRequest, "invalid authority", nil)
		}
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	pool, err := h.Pools.CreatePool(ctx, service.CreateParams{
		MintA:      mintA,
		MintB:      mintB,
		FeeRateBps: req.FeeRateBps,
		Authority:  authority,
	})
	if err != nil {
		return h.opErr(c, err)
	}
	return c.JSON(http.StatusCreated, pool)
}

// Deposit adds liquidity to a pool
func (h *Handlers) Deposit(c echo.Context) error {
	addr, err := parseKey(c.Param("pool"))
	if err != nil {
		return h.badKey(c, "pool")
	}
	var req DepositRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	user, err := parseKey(req.User)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid user", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, pool, err := h.Pools.Deposit(ctx, addr, user, req.DepositRequest)
	if err != nil {
		return h.opErr(c, err)
	}
	return c.JSON(http.StatusOK, DepositResponse{Result: res, Pool: pool})
}

// Withdraw removes liquidity from a pool
func (h *Handlers) Withdraw(c echo.Context) error {
	addr, err := parseKey(c.Param("pool"))
	if err != nil {
		return h.badKey(c, "pool")
	}
	var req WithdrawRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	user, err := parseKey(req.User)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid user", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, pool, err := h.Pools.Withdraw(ctx, addr, user, req.WithdrawRequest)
	if err != nil {
		return h.opErr(c, err)
	}
	return c.JSON(http.StatusOK, WithdrawResponse{Result: res, Pool: pool})
}

// Swap trades against a pool
func (h *Handlers) Swap(c echo.Context) error {
	addr, err := parseKey(c.Param("pool"))
	if err != nil {
		return h.badKey(c, "pool")
	}
	var req SwapRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	user, err := parseKey(req.User)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid user", nil)
	}
	dir, err := amm.ParseDirection(req.Direction)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid direction", map[string]any{"direction": "a_to_b or b_to_a"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, pool, err := h.Pools.Swap(ctx, addr, user, amm.SwapRequest{
		AmountIn:     req.AmountIn,
		AmountOutMin: req.AmountOutMin,
		Direction:    dir,
	})
	if err != nil {
		return h.opErr(c, err)
	}
	return c.JSON(http.StatusOK, SwapResponse{Result: res, Pool: pool})
}

// Quote previews a swap. Query: amount_in, direction, slippage_bps and an
// optional user for whom the matching swap instruction is encoded.
func (h *Handlers) Quote(c echo.Context) error {
	addr, err := parseKey(c.Param("pool"))
	if err != nil {
		return h.badKey(c, "pool")
	}
	amountIn, err := strconv.ParseUint(c.QueryParam("amount_in"), 10, 64)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid amount_in", map[string]any{"amount_in": "must be an unsigned integer"})
	}
	dir, err := amm.ParseDirection(c.QueryParam("direction"))
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid direction", map[string]any{"direction": "a_to_b or b_to_a"})
	}
	slippage := uint64(constants.DefaultSlippageBps)
	if s := c.QueryParam("slippage_bps"); s != "" {
		if slippage, err = strconv.ParseUint(s, 10, 16); err != nil || slippage > 10000 {
			return h.err(c, http.StatusBadRequest, "invalid slippage_bps", map[string]any{"slippage_bps": "min 0 max 10000"})
		}
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	q, err := h.Pools.Quote(ctx, addr, amm.SwapRequest{AmountIn: amountIn, Direction: dir}, uint16(slippage))
	if err != nil {
		return h.opErr(c, err)
	}
	resp := QuoteResponse{Quote: q}

	if u := c.QueryParam("user"); u != "" {
		user, err := parseKey(u)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid user", nil)
		}
		pool, err := h.Pools.Get(ctx, addr)
		if err != nil {
			return h.opErr(c, err)
		}
		ix, err := h.swapInstruction(user, pool, amm.SwapRequest{AmountIn: amountIn, AmountOutMin: q.MinAmountOut, Direction: dir})
		if err != nil {
			return h.err(c, http.StatusInternalServerError, "failed to encode instruction", map[string]any{"err": err.Error()})
		}
		resp.Instruction = ix
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handlers) swapInstruction(user solana.PublicKey, pool *amm.Pool, req amm.SwapRequest) (*InstructionResponse, error) {
	addrs, err := program.DerivePool(h.Pools.ProgramID(), pool.AssetA, pool.AssetB)
	if err != nil {
		return nil, err
	}
	ix, err := program.NewBuilder(h.Pools.ProgramID()).Swap(user, addrs, program.SwapArgs{
		AmountIn:     req.AmountIn,
		AmountOutMin: req.AmountOutMin,
		AToB:         req.Direction == amm.AToB,
	})
	if err != nil {
		return nil, err
	}
	data, err := ix.Data()
	if err != nil {
		return nil, err
	}

	out := &InstructionResponse{
		ProgramID: ix.ProgramID().String(),
		Data:      base64.StdEncoding.EncodeToString(data),
	}
	for _, m := range ix.Accounts() {
		out.Accounts = append(out.Accounts, AccountMeta{
			Pubkey:     m.PublicKey.String(),
			IsSigner:   m.IsSigner,
			IsWritable: m.IsWritable,
		})
	}
	return out, nil
}

// Events returns the most recent events of a pool with optional limit parameter
// Accepts limit query parameter (default: 50, range: 1-100)
func (h *Handlers) Events(c echo.Context) error {
	addr, err := parseKey(c.Param("pool"))
	if err != nil {
		return h.badKey(c, "pool")
	}
	limit := constants.DefaultEventsLimit
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be an integer"})
		}
		limit = n
	}
	if limit < 1 || limit > constants.MaxRecentEvents {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max " + strconv.Itoa(constants.MaxRecentEvents)})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Pools.Events(ctx, addr, int64(limit))
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get events", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// Balance returns an owner's ledger balance of an asset
func (h *Handlers) Balance(c echo.Context) error {
	asset, err := parseKey(c.Param("asset"))
	if err != nil {
		return h.badKey(c, "asset")
	}
	owner, err := parseKey(c.Param("owner"))
	if err != nil {
		return h.badKey(c, "owner")
	}
	return c.JSON(http.StatusOK, BalanceResponse{
		Asset:   asset.String(),
		Owner:   owner.String(),
		Balance: h.Pools.Balance(asset, owner),
	})
}

// Faucet credits test funds. Only routed in dev mode.
func (h *Handlers) Faucet(c echo.Context) error {
	var req FaucetRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	asset, errA := parseKey(req.Asset)
	owner, errO := parseKey(req.Owner)
	if errA != nil || errO != nil {
		return h.err(c, http.StatusBadRequest, "invalid asset or owner", nil)
	}
	if req.Amount == 0 {
		return h.err(c, http.StatusBadRequest, "amount is required", map[string]any{"amount": "must be > 0"})
	}

	if err := h.Pools.Faucet(c.Request().Context(), asset, owner, req.Amount); err != nil {
		return h.err(c, http.StatusUnprocessableEntity, "faucet failed", map[string]any{"err": err.Error()})
	}
	return c.JSON(http.StatusOK, BalanceResponse{
		Asset:   asset.String(),
		Owner:   owner.String(),
		Balance: h.Pools.Balance(asset, owner),
	})
}

func (h *Handlers) noWhitelist(c echo.Context) error {
	return h.err(c, http.StatusNotFound, "whitelist is not configured", nil)
}

// WhitelistList returns the whitelist of an asset
func (h *Handlers) WhitelistList(c echo.Context) error {
	wl := h.Pools.Whitelist()
	if wl == nil {
		return h.noWhitelist(c)
	}
	asset, err := parseKey(c.Param("asset"))
	if err != nil {
		return h.badKey(c, "asset")
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	members, err := wl.Members().List(ctx, asset)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to list whitelist", nil)
	}
	resp := WhitelistResponse{Asset: asset.String(), Enforced: wl.Enforcing(), Accounts: make([]string, 0, len(members))}
	for _, m := range members {
		resp.Accounts = append(resp.Accounts, m.String())
	}
	return c.JSON(http.StatusOK, resp)
}

// WhitelistAdd adds an account to an asset's whitelist
func (h *Handlers) WhitelistAdd(c echo.Context) error {
	wl := h.Pools.Whitelist()
	if wl == nil {
		return h.noWhitelist(c)
	}
	asset, err := parseKey(c.Param("asset"))
	if err != nil {
		return h.badKey(c, "asset")
	}
	var req WhitelistRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	account, err := parseKey(req.Account)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid account", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	switch err := wl.Members().Add(ctx, asset, account); {
	case errors.Is(err, hook.ErrAlreadyWhitelisted), errors.Is(err, hook.ErrWhitelistFull):
		return h.err(c, http.StatusConflict, err.Error(), nil)
	case err != nil:
		return h.err(c, http.StatusInternalServerError, "failed to update whitelist", nil)
	}
	return c.NoContent(http.StatusNoContent)
}

// WhitelistRemove removes an account from an asset's whitelist
func (h *Handlers) WhitelistRemove(c echo.Context) error {
	wl := h.Pools.Whitelist()
	if wl == nil {
		return h.noWhitelist(c)
	}
	asset, err := parseKey(c.Param("asset"))
	if err != nil {
		return h.badKey(c, "asset")
	}
	account, err := parseKey(c.Param("account"))
	if err != nil {
		return h.badKey(c, "account")
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	switch err := wl.Members().Remove(ctx, asset, account); {
	case errors.Is(err, hook.ErrNotWhitelisted):
		return h.err(c, http.StatusNotFound, err.Error(), nil)
	case err != nil:
		return h.err(c, http.StatusInternalServerError, "failed to update whitelist", nil)
	}
	return c.NoContent(http.StatusNoContent)
}
