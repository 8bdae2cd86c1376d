// Package registry loads the pool definitions a deployment starts with.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/aman-zulfiqar/token2022-amm/internal/amm"
)

var ErrUnknownPool = errors.New("pool not registered")

// PoolConfig represents a pool entry in the JSON config
type PoolConfig struct {
	Name       string `json:"name"`
	MintA      string `json:"mint_a"`
	MintB      string `json:"mint_b"`
	FeeRateBps uint64 `json:"fee_rate_bps"`
	Authority  string `json:"authority,omitempty"`
}

// PoolDef is a parsed, validated pool definition.
type PoolDef struct {
	Name       string
	MintA      solana.PublicKey
	MintB      solana.PublicKey
	FeeRateBps uint64
	Authority  solana.PublicKey
}

// Registry holds all configured pools
type Registry struct {
	pools []PoolDef
}

// Load reads a registry from a JSON file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pool config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a JSON list of pool definitions.
func Parse(data []byte) (*Registry, error) {
	var configs []PoolConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	r := &Registry{pools: make([]PoolDef, 0, len(configs))}
	for i, cfg := range configs {
		def, err := parsePoolConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("pool %d (%s): %w", i, cfg.Name, err)
		}
		if _, err := r.ByName(def.Name); err == nil {
			return nil, fmt.Errorf("pool %d: duplicate name %q", i, def.Name)
		}
		if _, err := r.ByMints(def.MintA, def.MintB); err == nil {
			return nil, fmt.Errorf("pool %d (%s): pair already registered", i, def.Name)
		}
		r.pools = append(r.pools, def)
	}
	return r, nil
}

func parseKey(field, s string) (solana.PublicKey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s: invalid base58: %w", field, err)
	}
	if len(raw) != solana.PublicKeyLength {
		return solana.PublicKey{}, fmt.Errorf("%s: expected %d bytes, got %d", field, solana.PublicKeyLength, len(raw))
	}
	return solana.PublicKeyFromBytes(raw), nil
}

func parsePoolConfig(cfg PoolConfig) (PoolDef, error) {
	if cfg.Name == "" {
		return PoolDef{}, fmt.Errorf("name is required")
	}
	if cfg.FeeRateBps > amm.MaxFeeRateBps {
		return PoolDef{}, fmt.Errorf("fee_rate_bps %d exceeds %d", cfg.FeeRateBps, amm.MaxFeeRateBps)
	}
	mintA, err := parseKey("mint_a", cfg.MintA)
	if err != nil {
		return PoolDef{}, err
	}
	mintB, err := parseKey("mint_b", cfg.MintB)
	if err != nil {
		return PoolDef{}, err
	}
	if mintA.Equals(mintB) {
		return PoolDef{}, fmt.Errorf("mint_a and mint_b must differ")
	}

	def := PoolDef{
		Name:       cfg.Name,
		MintA:      mintA,
		MintB:      mintB,
		FeeRateBps: cfg.FeeRateBps,
	}
	if cfg.Authority != "" {
		if def.Authority, err = parseKey("authority", cfg.Authority); err != nil {
			return PoolDef{}, err
		}
	}
	return def, nil
}

// ByMints finds the pool for a pair in either order.
func (r *Registry) ByMints(mintA, mintB solana.PublicKey) (*PoolDef, error) {
	for i := range r.pools {
		p := &r.pools[i]
		if (p.MintA.Equals(mintA) && p.MintB.Equals(mintB)) ||
			(p.MintA.Equals(mintB) && p.MintB.Equals(mintA)) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%s / %s: %w", mintA, mintB, ErrUnknownPool)
}

func (r *Registry) ByName(name string) (*PoolDef, error) {
	for i := range r.pools {
		if r.pools[i].Name == name {
			return &r.pools[i], nil
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrUnknownPool)
}

func (r *Registry) All() []PoolDef {
	return r.pools
}

func (r *Registry) Len() int {
	return len(r.pools)
}
