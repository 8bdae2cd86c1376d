package flags

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("flag not found")

// Checker answers whether a flag is set.
type Checker interface {
	Enabled(ctx context.Context, key string) (bool, error)
}

type Flag struct {
	Key       string    `json:"key"`
	Value     bool      `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
