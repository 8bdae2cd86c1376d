package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnauthorized      = errors.New("missing required signature")
	ErrOverflow          = errors.New("balance overflow")
	ErrTxClosed          = errors.New("transaction already closed")
)

// Transfer describes one movement of an asset between two owners.
type Transfer struct {
	Asset  solana.PublicKey `json:"asset"`
	From   solana.PublicKey `json:"from"`
	To     solana.PublicKey `json:"to"`
	Amount uint64           `json:"amount,string"`
}

// Hook validates a transfer of the asset it is registered for. Returning an
// error rejects the transfer and the enclosing transaction. A hook that
// touches the ledger must do so with the ctx it was given, which carries the
// open transaction.
type Hook interface {
	OnTransfer(ctx context.Context, t Transfer) error
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, t Transfer) error

func (f HookFunc) OnTransfer(ctx context.Context, t Transfer) error { return f(ctx, t) }

type balanceKey struct {
	asset solana.PublicKey
	owner solana.PublicKey
}

// Config holds configuration for the ledger
type Config struct {
	Logger *logrus.Logger
}

// Ledger is an in-process custodial ledger. Balances are keyed by
// (asset, owner). All changes happen inside a transaction opened with
// Atomic; a failed transaction leaves no trace.
type Ledger struct {
	txMu sync.Mutex // one open transaction at a time

	mu       sync.RWMutex
	balances map[balanceKey]uint64
	supply   map[solana.PublicKey]uint64
	hooks    map[solana.PublicKey]Hook
	issuers  map[solana.PublicKey]solana.PublicKey // asset -> mint authority
	vaults   map[solana.PublicKey]solana.PublicKey // vault -> controlling authority

	logger *logrus.Logger
}

// New creates an empty ledger
func New(cfg Config) *Ledger {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Ledger{
		balances: make(map[balanceKey]uint64),
		supply:   make(map[solana.PublicKey]uint64),
		hooks:    make(map[solana.PublicKey]Hook),
		issuers:  make(map[solana.PublicKey]solana.PublicKey),
		vaults:   make(map[solana.PublicKey]solana.PublicKey),
		logger:   cfg.Logger,
	}
}

// RegisterHook installs the transfer validation callback for an asset,
// replacing any previous one. A nil hook removes it.
func (l *Ledger) RegisterHook(asset solana.PublicKey, h Hook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h == nil {
		delete(l.hooks, asset)
		return
	}
	l.hooks[asset] = h
}

// RegisterIssuer makes authority the only signer allowed to mint and burn asset.
func (l *Ledger) RegisterIssuer(asset, authority solana.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.issuers[asset] = authority
}

// RegisterVault makes authority the only signer allowed to move funds out
// of vault.
func (l *Ledger) RegisterVault(vault, authority solana.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.vaults[vault] = authority
}

// Balance returns the committed balance of owner in asset.
func (l *Ledger) Balance(asset, owner solana.PublicKey) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[balanceKey{asset, owner}]
}

// Supply returns the outstanding supply of asset.
func (l *Ledger) Supply(asset solana.PublicKey) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply[asset]
}

// Credit issues amount of an external asset to owner. It is the faucet used
// by tests and the simulator and does not run transfer hooks.
func (l *Ledger) Credit(ctx context.Context, asset, owner solana.PublicKey, amount uint64) error {
	return l.Atomic(ctx, func(ctx context.Context, tx *Tx) error {
		if err := tx.add(asset, owner, amount); err != nil {
			return err
		}
		return tx.addSupply(asset, amount)
	})
}

type txKey struct{}

// FromContext returns the transaction bound to ctx, if any.
func FromContext(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	return tx, ok && !tx.closed
}

// Atomic runs fn in a transaction. If fn returns an error every change it
// made is rolled back. When ctx already carries an open transaction of this
// ledger, fn joins it and only its own changes are rolled back on error.
func (l *Ledger) Atomic(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	if tx, ok := FromContext(ctx); ok && tx.l == l {
		mark := len(tx.journal)
		if err := fn(ctx, tx); err != nil {
			tx.rollbackTo(mark)
			return err
		}
		return nil
	}

	l.txMu.Lock()
	defer l.txMu.Unlock()

	tx := &Tx{l: l}
	err := fn(context.WithValue(ctx, txKey{}, tx), tx)
	if err != nil {
		tx.rollbackTo(0)
		l.logger.WithFields(logrus.Fields{
			"changes": len(tx.journal),
		}).WithError(err).Debug("ledger transaction rolled back")
	}
	tx.closed = true
	return err
}

// View runs fn while no transaction of this ledger is open, so balances
// read by fn are committed and stay put until it returns. Called with a ctx
// that already carries an open transaction, fn runs inside it.
func (l *Ledger) View(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := FromContext(ctx); ok && tx.l == l {
		return fn(ctx)
	}
	l.txMu.Lock()
	defer l.txMu.Unlock()
	return fn(ctx)
}

type entryKind int

const (
	entryBalance entryKind = iota
	entrySupply
)

type entry struct {
	kind  entryKind
	key   balanceKey
	prev  uint64
	exist bool
}

// Tx is an open ledger transaction.
type Tx struct {
	l       *Ledger
	journal []entry
	closed  bool
}

func (tx *Tx) rollbackTo(mark int) {
	tx.l.mu.Lock()
	defer tx.l.mu.Unlock()
	for i := len(tx.journal) - 1; i >= mark; i-- {
		e := tx.journal[i]
		switch e.kind {
		case entryBalance:
			if e.exist {
				tx.l.balances[e.key] = e.prev
			} else {
				delete(tx.l.balances, e.key)
			}
		case entrySupply:
			if e.exist {
				tx.l.supply[e.key.asset] = e.prev
			} else {
				delete(tx.l.supply, e.key.asset)
			}
		}
	}
	tx.journal = tx.journal[:mark]
}

func (tx *Tx) setBalance(k balanceKey, v uint64) {
	tx.l.mu.Lock()
	defer tx.l.mu.Unlock()
	prev, ok := tx.l.balances[k]
	tx.journal = append(tx.journal, entry{kind: entryBalance, key: k, prev: prev, exist: ok})
	tx.l.balances[k] = v
}

func (tx *Tx) add(asset, owner solana.PublicKey, amount uint64) error {
	if tx.closed {
		return ErrTxClosed
	}
	k := balanceKey{asset, owner}
	sum, carry := bits.Add64(tx.l.Balance(asset, owner), amount, 0)
	if carry != 0 {
		return fmt.Errorf("credit %s: %w", owner, ErrOverflow)
	}
	tx.setBalance(k, sum)
	return nil
}

func (tx *Tx) sub(asset, owner solana.PublicKey, amount uint64) error {
	if tx.closed {
		return ErrTxClosed
	}
	k := balanceKey{asset, owner}
	bal := tx.l.Balance(asset, owner)
	if bal < amount {
		return fmt.Errorf("debit %s: have %d need %d: %w", owner, bal, amount, ErrInsufficientFunds)
	}
	tx.setBalance(k, bal-amount)
	return nil
}

func (tx *Tx) addSupply(asset solana.PublicKey, amount uint64) error {
	tx.l.mu.Lock()
	defer tx.l.mu.Unlock()
	prev, ok := tx.l.supply[asset]
	sum, carry := bits.Add64(prev, amount, 0)
	if carry != 0 {
		return fmt.Errorf("supply of %s: %w", asset, ErrOverflow)
	}
	tx.journal = append(tx.journal, entry{kind: entrySupply, key: balanceKey{asset: asset}, prev: prev, exist: ok})
	tx.l.supply[asset] = sum
	return nil
}

func (tx *Tx) subSupply(asset solana.PublicKey, amount uint64) error {
	tx.l.mu.Lock()
	defer tx.l.mu.Unlock()
	prev, ok := tx.l.supply[asset]
	if prev < amount {
		return fmt.Errorf("supply of %s: %w", asset, ErrInsufficientFunds)
	}
	tx.journal = append(tx.journal, entry{kind: entrySupply, key: balanceKey{asset: asset}, prev: prev, exist: ok})
	tx.l.supply[asset] = prev - amount
	return nil
}

// As returns a view of the transaction that acts with the given signatures.
func (tx *Tx) As(signers ...solana.PublicKey) *Signed {
	return &Signed{tx: tx, signers: signers}
}

// Signed is a transaction view carrying a set of signatures. It implements
// the asset transfer and issuance operations the pool engine needs.
type Signed struct {
	tx      *Tx
	signers []solana.PublicKey
}

func (s *Signed) signed(key solana.PublicKey) bool {
	for _, k := range s.signers {
		if k.Equals(key) {
			return true
		}
	}
	return false
}

// mayDebit reports whether the view can move funds out of owner: either
// owner signed, or owner is a vault whose authority signed.
func (s *Signed) mayDebit(owner solana.PublicKey) bool {
	if s.signed(owner) {
		return true
	}
	s.tx.l.mu.RLock()
	auth, ok := s.tx.l.vaults[owner]
	s.tx.l.mu.RUnlock()
	return ok && s.signed(auth)
}

func (s *Signed) mayIssue(asset solana.PublicKey) bool {
	s.tx.l.mu.RLock()
	auth, ok := s.tx.l.issuers[asset]
	s.tx.l.mu.RUnlock()
	return ok && s.signed(auth)
}

// Transfer moves amount of asset from one owner to another and then runs
// the asset's transfer hook. A rejected transfer is undone.
func (s *Signed) Transfer(ctx context.Context, asset, from, to solana.PublicKey, amount uint64) error {
	if !s.mayDebit(from) {
		return fmt.Errorf("transfer from %s: %w", from, ErrUnauthorized)
	}

	tx := s.tx
	mark := len(tx.journal)
	if err := tx.sub(asset, from, amount); err != nil {
		return err
	}
	if err := tx.add(asset, to, amount); err != nil {
		tx.rollbackTo(mark)
		return err
	}

	tx.l.mu.RLock()
	hook := tx.l.hooks[asset]
	tx.l.mu.RUnlock()
	if hook != nil {
		if err := hook.OnTransfer(ctx, Transfer{Asset: asset, From: from, To: to, Amount: amount}); err != nil {
			tx.rollbackTo(mark)
			return fmt.Errorf("transfer hook rejected %s: %w", asset, err)
		}
	}
	return nil
}

// Mint issues amount of asset to owner. Requires the issuer's signature.
func (s *Signed) Mint(_ context.Context, asset, to solana.PublicKey, amount uint64) error {
	if !s.mayIssue(asset) {
		return fmt.Errorf("mint %s: %w", asset, ErrUnauthorized)
	}
	mark := len(s.tx.journal)
	if err := s.tx.addSupply(asset, amount); err != nil {
		return err
	}
	if err := s.tx.add(asset, to, amount); err != nil {
		s.tx.rollbackTo(mark)
		return err
	}
	return nil
}

// Burn destroys amount of asset held by from. Requires the issuer's
// signature and the holder's.
func (s *Signed) Burn(_ context.Context, asset, from solana.PublicKey, amount uint64) error {
	if !s.mayIssue(asset) || !s.signed(from) {
		return fmt.Errorf("burn %s: %w", asset, ErrUnauthorized)
	}
	mark := len(s.tx.journal)
	if err := s.tx.sub(asset, from, amount); err != nil {
		return err
	}
	if err := s.tx.subSupply(asset, amount); err != nil {
		s.tx.rollbackTo(mark)
		return err
	}
	return nil
}
