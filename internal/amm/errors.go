package amm

import (
	"errors"
	"fmt"
)

// Error kinds returned by the engine. Every failure returned from an Engine
// operation matches exactly one of these with errors.Is.
var (
	ErrInvalidFeeRate           = errors.New("invalid fee rate")
	ErrInvalidPair              = errors.New("invalid asset pair")
	ErrInsufficientAmount       = errors.New("insufficient amount")
	ErrInsufficientLiquidity    = errors.New("insufficient liquidity")
	ErrInsufficientOutputAmount = errors.New("insufficient output amount")
	ErrArithmetic               = errors.New("arithmetic error")
	ErrTransferFailed           = errors.New("transfer failed")
)

// Error describes a rejected pool operation.
type Error struct {
	Op   string // initialize, deposit, withdraw, swap
	Kind error  // one of the Err* kinds above
	Msg  string
	Err  error // underlying cause, if any (transfer or ledger error)
}

func (e *Error) Error() string {
	s := e.Op + ": " + e.Kind.Error()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opErr(op string, kind error, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Kind returns the engine error kind carried by err, or nil if err did not
// come from the engine.
func Kind(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}
