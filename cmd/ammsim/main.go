package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/token2022-amm/internal/amm"
	"github.com/aman-zulfiqar/token2022-amm/internal/constants"
	"github.com/aman-zulfiqar/token2022-amm/internal/hook"
	"github.com/aman-zulfiqar/token2022-amm/internal/ledger"
	"github.com/aman-zulfiqar/token2022-amm/internal/program"
	"github.com/aman-zulfiqar/token2022-amm/internal/quote"
	"github.com/aman-zulfiqar/token2022-amm/internal/service"
	"github.com/aman-zulfiqar/token2022-amm/internal/storage"
)

func loadEnv() {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	_ = godotenv.Load(filepath.Join(projectRoot, ".env"))
}

// step is one line of a simulation script.
type step struct {
	Op        string `json:"op"` // deposit | withdraw | swap | quote
	AmountA   uint64 `json:"amount_a,string,omitempty"`
	AmountB   uint64 `json:"amount_b,string,omitempty"`
	Claim     uint64 `json:"claim_amount,string,omitempty"`
	AmountIn  uint64 `json:"amount_in,string,omitempty"`
	MinOut    uint64 `json:"amount_out_min,string,omitempty"`
	Direction string `json:"direction,omitempty"`
}

type sim struct {
	svc     *service.Service
	pool    *amm.Pool
	addrs   *program.PoolAddresses
	user    solana.PublicKey
	builder *program.Builder
	out     io.Writer
}

func main() {
	loadEnv()

	mode := flag.String("mode", "swap", "seed | deposit | withdraw | swap | script")
	fee := flag.Uint64("fee-bps", 30, "pool fee in bps")
	seedA := flag.Uint64("seed-a", 1_000_000, "initial reserve A")
	seedB := flag.Uint64("seed-b", 2_000_000, "initial reserve B")
	amtA := flag.Uint64("a", 0, "deposit amount of A")
	amtB := flag.Uint64("b", 0, "deposit amount of B")
	claim := flag.Uint64("claim", 0, "claim units to withdraw")
	amtIn := flag.Uint64("in", 10_000, "swap amount in")
	minOut := flag.Uint64("min-out", 0, "minimum swap output")
	dir := flag.String("dir", "a_to_b", "swap direction: a_to_b | b_to_a")
	script := flag.String("script", "", "JSON array of steps (for -mode script)")
	arith := flag.String("arith", "wide", "arithmetic mode: wide | strict64")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	logger.SetLevel(logrus.WarnLevel)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	arithMode, err := amm.ParseArithmeticMode(*arith)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	s, err := newSim(ctx, arithMode, *fee, logger)
	if err != nil {
		fmt.Println("failed to init simulator:", err)
		os.Exit(1)
	}

	if err := s.deposit(ctx, *seedA, *seedB); err != nil {
		fmt.Println("seed failed:", err)
		os.Exit(1)
	}

	var steps []step
	switch *mode {
	case "seed":
	case "deposit":
		steps = []step{{Op: "deposit", AmountA: *amtA, AmountB: *amtB}}
	case "withdraw":
		steps = []step{{Op: "withdraw", Claim: *claim}}
	case "swap":
		steps = []step{{Op: "quote", AmountIn: *amtIn, Direction: *dir}, {Op: "swap", AmountIn: *amtIn, MinOut: *minOut, Direction: *dir}}
	case "script":
		steps, err = loadScript(*script)
		if err != nil {
			fmt.Println("failed to load script:", err)
			os.Exit(2)
		}
	default:
		fmt.Printf("unknown mode %q\n", *mode)
		os.Exit(2)
	}

	for i, st := range steps {
		if ctx.Err() != nil {
			return
		}
		if err := s.run(ctx, st); err != nil {
			fmt.Printf("step %d (%s) failed: %v\n", i, st.Op, err)
			os.Exit(1)
		}
	}
}

func loadScript(path string) ([]step, error) {
	if path == "" {
		return nil, fmt.Errorf("missing -script")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var steps []step
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return steps, nil
}

// newSim creates one pool over two fresh assets and a funded user.
func newSim(ctx context.Context, mode amm.ArithmeticMode, feeBps uint64, logger *logrus.Logger) (*sim, error) {
	led := ledger.New(ledger.Config{Logger: logger})
	svc, err := service.New(service.Config{
		Engine:    amm.NewEngine(amm.EngineConfig{Mode: mode, Logger: logger}),
		Ledger:    led,
		Store:     storage.NewMemoryStore(),
		Whitelist: hook.NewWhitelist(hook.WhitelistConfig{Logger: logger}),
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	user := solana.NewWallet().PublicKey()
	pool, err := svc.CreatePool(ctx, service.CreateParams{
		MintA:      solana.NewWallet().PublicKey(),
		MintB:      solana.NewWallet().PublicKey(),
		FeeRateBps: feeBps,
		Authority:  user,
	})
	if err != nil {
		return nil, err
	}
	addrs, err := program.DerivePool(svc.ProgramID(), pool.AssetA, pool.AssetB)
	if err != nil {
		return nil, err
	}

	const funding = ^uint64(0) >> 1
	if err := svc.Faucet(ctx, pool.AssetA, user, funding); err != nil {
		return nil, err
	}
	if err := svc.Faucet(ctx, pool.AssetB, user, funding); err != nil {
		return nil, err
	}

	s := &sim{
		svc:     svc,
		pool:    pool,
		addrs:   addrs,
		user:    user,
		builder: program.NewBuilder(svc.ProgramID()),
		out:     os.Stdout,
	}
	fmt.Fprintf(s.out, "pool=%s asset_a=%s asset_b=%s fee_bps=%d arithmetic=%s\n",
		pool.Address, pool.AssetA, pool.AssetB, pool.FeeRateBps, mode)
	return s, nil
}

func (s *sim) run(ctx context.Context, st step) error {
	switch st.Op {
	case "deposit":
		return s.deposit(ctx, st.AmountA, st.AmountB)
	case "withdraw":
		return s.withdraw(ctx, st.Claim)
	case "swap":
		return s.swap(ctx, st)
	case "quote":
		return s.quote(ctx, st)
	default:
		return fmt.Errorf("unknown op %q", st.Op)
	}
}

func (s *sim) deposit(ctx context.Context, a, b uint64) error {
	req := amm.DepositRequest{AmountADesired: a, AmountBDesired: b}
	res, pool, err := s.svc.Deposit(ctx, s.pool.Address, s.user, req)
	if err != nil {
		return err
	}
	s.pool = pool
	fmt.Fprintf(s.out, "deposit amount_a=%d amount_b=%d claim_minted=%d seeded=%v\n",
		res.AmountA, res.AmountB, res.ClaimMinted, res.Seeded)
	s.state()
	return s.instruction(s.builder.AddLiquidity(s.user, s.addrs, program.AddLiquidityArgs{
		AmountADesired: a,
		AmountBDesired: b,
	}))
}

func (s *sim) withdraw(ctx context.Context, claim uint64) error {
	req := amm.WithdrawRequest{ClaimAmount: claim}
	res, pool, err := s.svc.Withdraw(ctx, s.pool.Address, s.user, req)
	if err != nil {
		return err
	}
	s.pool = pool
	fmt.Fprintf(s.out, "withdraw claim=%d amount_a=%d amount_b=%d\n", claim, res.AmountA, res.AmountB)
	s.state()
	return s.instruction(s.builder.RemoveLiquidity(s.user, s.addrs, program.RemoveLiquidityArgs{LpTokenAmount: claim}))
}

func (s *sim) swapRequest(st step) (amm.SwapRequest, error) {
	dir := amm.AToB
	if st.Direction != "" {
		d, err := amm.ParseDirection(st.Direction)
		if err != nil {
			return amm.SwapRequest{}, err
		}
		dir = d
	}
	return amm.SwapRequest{AmountIn: st.AmountIn, AmountOutMin: st.MinOut, Direction: dir}, nil
}

func (s *sim) quote(ctx context.Context, st step) error {
	req, err := s.swapRequest(st)
	if err != nil {
		return err
	}
	q, err := s.svc.Quote(ctx, s.pool.Address, req, constants.DefaultSlippageBps)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "quote %s amount_in=%d amount_out=%d fee=%d min_out=%d price_impact=%.4f spot=%.6f\n",
		q.Direction, q.AmountIn, q.AmountOut, q.Fee, q.MinAmountOut, q.PriceImpact, q.SpotPrice)
	return nil
}

func (s *sim) swap(ctx context.Context, st step) error {
	req, err := s.swapRequest(st)
	if err != nil {
		return err
	}
	res, pool, err := s.svc.Swap(ctx, s.pool.Address, s.user, req)
	if err != nil {
		return err
	}
	s.pool = pool
	fmt.Fprintf(s.out, "swap %s amount_in=%d amount_out=%d fee=%d\n", req.Direction, res.AmountIn, res.AmountOut, res.FeeTaken)
	s.state()
	return s.instruction(s.builder.Swap(s.user, s.addrs, program.SwapArgs{
		AmountIn:     req.AmountIn,
		AmountOutMin: req.AmountOutMin,
		AToB:         req.Direction == amm.AToB,
	}))
}

func (s *sim) state() {
	p := s.pool
	fmt.Fprintf(s.out, "  reserves a=%d b=%d claim_supply=%d seq=%d spot=%.6f user_claim=%d\n",
		p.ReserveA, p.ReserveB, p.ClaimSupply, p.Sequence,
		quote.SpotPrice(p.ReserveA, p.ReserveB), s.svc.Balance(p.ClaimAsset, s.user))
}

// instruction prints the program instruction equivalent to the last step.
func (s *sim) instruction(ix solana.Instruction, err error) error {
	if err != nil {
		return err
	}
	data, err := ix.Data()
	if err != nil {
		return err
	}
	dec, err := program.DecodeInstruction(data)
	if err != nil {
		return err
	}
	args, _ := json.Marshal(dec.Args)
	fmt.Fprintf(s.out, "  ix=%s accounts=%d data=%s args=%s\n", dec.Name, len(ix.Accounts()), hex.EncodeToString(data), args)
	return nil
}
