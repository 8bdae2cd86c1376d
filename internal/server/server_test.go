package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/token2022-amm/internal/amm"
	"github.com/aman-zulfiqar/token2022-amm/internal/hook"
	"github.com/aman-zulfiqar/token2022-amm/internal/ledger"
	"github.com/aman-zulfiqar/token2022-amm/internal/service"
	"github.com/aman-zulfiqar/token2022-amm/internal/storage"
)

func newKey() solana.PublicKey { return solana.NewWallet().PublicKey() }

type testAPI struct {
	handler http.Handler
	svc     *service.Service
}

func newTestAPI(t *testing.T, cfg ServerConfig, wl *hook.Whitelist) *testAPI {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := storage.NewMemoryStore()
	svc, err := service.New(service.Config{
		Engine:    amm.NewEngine(amm.EngineConfig{Logger: logger}),
		Ledger:    ledger.New(ledger.Config{Logger: logger}),
		Store:     store,
		Sinks:     []storage.EventSink{store},
		Whitelist: wl,
		Logger:    logger,
	})
	require.NoError(t, err)

	srv, err := NewServer(ServerDeps{
		Handlers: &Handlers{Pools: svc, DevMode: cfg.DevMode, Logger: logger},
		Config:   cfg,
	})
	require.NoError(t, err)
	return &testAPI{handler: srv.Handler(), svc: svc}
}

func (a *testAPI) do(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func (a *testAPI) createPool(t *testing.T, fee uint64) *amm.Pool {
	t.Helper()
	var pool amm.Pool
	body := `{"mint_a":"` + newKey().String() + `","mint_b":"` + newKey().String() + `","fee_rate_bps":` + jsonUint(fee) + `}`
	require.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/v1/pools", body, &pool))
	return &pool
}

func (a *testAPI) fund(t *testing.T, asset, owner solana.PublicKey, amount uint64) {
	t.Helper()
	body := `{"asset":"` + asset.String() + `","owner":"` + owner.String() + `","amount":"` + jsonUint(amount) + `"}`
	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/v1/faucet", body, nil))
}

func jsonUint(v uint64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, ServerConfig{}, nil)
	var resp HealthResponse
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/v1/health", "", &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "wide", resp.Arithmetic)
}

func TestPoolLifecycle(t *testing.T) {
	api := newTestAPI(t, ServerConfig{DevMode: true}, nil)
	pool := api.createPool(t, 30)
	base := "/v1/pools/" + pool.Address.String()

	lp, trader := newKey(), newKey()
	api.fund(t, pool.AssetA, lp, 1_000_000)
	api.fund(t, pool.AssetB, lp, 2_000_000)
	api.fund(t, pool.AssetA, trader, 10_000)

	var dep DepositResponse
	code := api.do(t, http.MethodPost, base+"/deposit",
		`{"user":"`+lp.String()+`","amount_a_desired":"1000000","amount_b_desired":"2000000"}`, &dep)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, dep.Result.Seeded)
	assert.Equal(t, uint64(1413213), dep.Result.ClaimMinted)

	var q QuoteResponse
	code = api.do(t, http.MethodGet, base+"/quote?amount_in=10000&direction=a_to_b&slippage_bps=100&user="+trader.String(), "", &q)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, uint64(19743), q.AmountOut)
	assert.Equal(t, uint64(19545), q.MinAmountOut)
	require.NotNil(t, q.Instruction)
	assert.Len(t, q.Instruction.Accounts, 15)
	assert.Equal(t, trader.String(), q.Instruction.Accounts[0].Pubkey)

	var swap SwapResponse
	code = api.do(t, http.MethodPost, base+"/swap",
		`{"user":"`+trader.String()+`","direction":"a_to_b","amount_in":"10000","amount_out_min":"19545"}`, &swap)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, uint64(19743), swap.Result.AmountOut)
	assert.Equal(t, uint64(1_010_000), swap.Pool.ReserveA)

	var bal BalanceResponse
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/v1/balances/"+pool.AssetB.String()+"/"+trader.String(), "", &bal))
	assert.Equal(t, uint64(19743), bal.Balance)

	var wd WithdrawResponse
	code = api.do(t, http.MethodPost, base+"/withdraw",
		`{"user":"`+lp.String()+`","claim_amount":"1413213"}`, &wd)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, wd.Pool.Empty())

	var events struct {
		Items []map[string]any `json:"items"`
	}
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, base+"/events?limit=10", "", &events))
	require.Len(t, events.Items, 4)
	assert.Equal(t, "withdraw", events.Items[0]["kind"])
	assert.Equal(t, "initialize", events.Items[3]["kind"])

	var list struct {
		Items []amm.Pool `json:"items"`
	}
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/v1/pools", "", &list))
	assert.Len(t, list.Items, 1)
}

func TestOperationErrors(t *testing.T) {
	api := newTestAPI(t, ServerConfig{DevMode: true}, nil)
	pool := api.createPool(t, 30)
	base := "/v1/pools/" + pool.Address.String()
	user := newKey()

	var e ErrorResponse
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/v1/pools/"+newKey().String(), "", &e))
	assert.Equal(t, "pool not found", e.Error)

	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/v1/pools/not-a-key", "", &e))
	assert.Equal(t, "invalid pool", e.Error)

	code := api.do(t, http.MethodPost, base+"/deposit", `{"user":"`+user.String()+`","amount_a_desired":"1000","amount_b_desired":"1000"}`, &e)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, amm.ErrInsufficientLiquidity.Error(), e.Error)

	code = api.do(t, http.MethodPost, base+"/deposit", `{"user":"`+user.String()+`","amount_a_desired":"10000","amount_b_desired":"10000"}`, &e)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, amm.ErrTransferFailed.Error(), e.Error)
	assert.NotNil(t, e.Details)

	code = api.do(t, http.MethodPost, base+"/swap", `{"user":"`+user.String()+`","direction":"sideways","amount_in":"1"}`, &e)
	assert.Equal(t, http.StatusBadRequest, code)

	code = api.do(t, http.MethodPost, "/v1/pools", `{"mint_a":"`+pool.AssetB.String()+`","mint_b":"`+pool.AssetA.String()+`"}`, &e)
	assert.Equal(t, http.StatusConflict, code)

	code = api.do(t, http.MethodPost, "/v1/pools", `{"mint_a":"`+newKey().String()+`","mint_b":"`+newKey().String()+`","fee_rate_bps":5000}`, &e)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, amm.ErrInvalidFeeRate.Error(), e.Error)

	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, base+"/quote?amount_in=x&direction=a_to_b", "", &e))
	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, base+"/events?limit=0", "", &e))
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/v1/nope", "", &e))
}

func TestFaucetOnlyInDevMode(t *testing.T) {
	api := newTestAPI(t, ServerConfig{}, nil)
	body := `{"asset":"` + newKey().String() + `","owner":"` + newKey().String() + `","amount":"5"}`
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, "/v1/faucet", body, nil))
}

func TestAPIKey(t *testing.T) {
	api := newTestAPI(t, ServerConfig{APIKey: "secret"}, nil)

	assert.Equal(t, http.StatusBadRequest, api.do(t, http.MethodGet, "/v1/health", "", nil))

	withKey := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
		req.Header.Set("X-API-Key", key)
		rec := httptest.NewRecorder()
		api.handler.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusUnauthorized, withKey("wrong"))
	assert.Equal(t, http.StatusOK, withKey("secret"))
}

func TestWhitelistRoutes(t *testing.T) {
	wl := hook.NewWhitelist(hook.WhitelistConfig{Enforce: true, Logger: logrus.New()})
	api := newTestAPI(t, ServerConfig{}, wl)
	asset, account := newKey(), newKey()
	path := "/v1/whitelist/" + asset.String()

	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodPost, path, `{"account":"`+account.String()+`"}`, nil))
	assert.Equal(t, http.StatusConflict, api.do(t, http.MethodPost, path, `{"account":"`+account.String()+`"}`, nil))

	var resp WhitelistResponse
	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, path, "", &resp))
	assert.True(t, resp.Enforced)
	assert.Equal(t, []string{account.String()}, resp.Accounts)

	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodDelete, path+"/"+account.String(), "", nil))
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodDelete, path+"/"+account.String(), "", nil))

	ok, err := wl.Members().Contains(context.Background(), asset, account)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnconfiguredWhitelistAndFlags(t *testing.T) {
	api := newTestAPI(t, ServerConfig{}, nil)
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/v1/whitelist/"+newKey().String(), "", nil))
	assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/v1/flags", "", nil))
}
