package program

import (
	"bytes"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	// DefaultProgramID is the deployed AMM program.
	DefaultProgramID = solana.MustPublicKeyFromBase58("BXkgQBaKiJS7AunZPYAHGqQ5qKz6gJ7vTjedNYM1FUkU")
	// TransferHookProgramID is the whitelist transfer hook program.
	TransferHookProgramID = solana.MustPublicKeyFromBase58("E24fiZAUbQNAwEkCcyzm9b4UFi4hhPdqMJgN9ZqntJgq")

	// Token2022ProgramID owns every mint and vault the pool touches.
	Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	// SPL Associated Token Account program
	associatedTokenProgramID = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

// PDA seed prefixes
const (
	seedPool          = "pool"
	seedVaultA        = "token_a_vault"
	seedVaultB        = "token_b_vault"
	seedClaimMint     = "lp_token_mint"
	seedExtraMetas    = "extra-account-metas"
	seedWhitelist     = "whitelist"
	seedHookAuthority = "hook_authority"
)

// PoolAddresses are the program-derived identifiers bound to one pool.
type PoolAddresses struct {
	Pool      solana.PublicKey
	Bump      uint8
	MintA     solana.PublicKey
	MintB     solana.PublicKey
	VaultA    solana.PublicKey
	VaultB    solana.PublicKey
	ClaimMint solana.PublicKey
}

// SortMints returns the pair in canonical (byte-wise ascending) order, so
// that (A,B) and (B,A) name the same pool.
func SortMints(x, y solana.PublicKey) (solana.PublicKey, solana.PublicKey) {
	if bytes.Compare(x[:], y[:]) > 0 {
		return y, x
	}
	return x, y
}

// PairKey is an order-insensitive identifier for a mint pair.
func PairKey(x, y solana.PublicKey) string {
	a, b := SortMints(x, y)
	return a.String() + ":" + b.String()
}

// DerivePool derives the pool PDA for a mint pair. Mints are sorted first.
func DerivePool(programID, mint1, mint2 solana.PublicKey) (*PoolAddresses, error) {
	if mint1.IsZero() || mint2.IsZero() {
		return nil, fmt.Errorf("mint is zero")
	}
	if mint1.Equals(mint2) {
		return nil, fmt.Errorf("mints must differ")
	}
	mintA, mintB := SortMints(mint1, mint2)

	pool, bump, err := solana.FindProgramAddress(
		[][]byte{[]byte(seedPool), mintA.Bytes(), mintB.Bytes()},
		programID,
	)
	if err != nil {
		return nil, fmt.Errorf("derive pool: %w", err)
	}

	out := &PoolAddresses{Pool: pool, Bump: bump, MintA: mintA, MintB: mintB}
	if out.VaultA, err = derive(programID, seedVaultA, pool); err != nil {
		return nil, err
	}
	if out.VaultB, err = derive(programID, seedVaultB, pool); err != nil {
		return nil, err
	}
	if out.ClaimMint, err = derive(programID, seedClaimMint, pool); err != nil {
		return nil, err
	}
	return out, nil
}

func derive(programID solana.PublicKey, prefix string, key solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(prefix), key.Bytes()}, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive %s: %w", prefix, err)
	}
	return addr, nil
}

// ExtraAccountMetaList derives the transfer hook's extra account list for a mint.
func ExtraAccountMetaList(hookProgramID, mint solana.PublicKey) (solana.PublicKey, error) {
	return derive(hookProgramID, seedExtraMetas, mint)
}

// WhitelistAddress derives the hook program's whitelist account.
func WhitelistAddress(hookProgramID solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(seedWhitelist)}, hookProgramID)
	return addr, err
}

// HookAuthority derives the hook program's authority account.
func HookAuthority(hookProgramID solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(seedHookAuthority)}, hookProgramID)
	return addr, err
}

// FindAssociatedTokenAddress derives the Token-2022 ATA for (owner, mint).
func FindAssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	// Seeds: [owner, token_program, mint]
	ata, _, err := solana.FindProgramAddress(
		[][]byte{
			owner.Bytes(),
			Token2022ProgramID.Bytes(),
			mint.Bytes(),
		},
		associatedTokenProgramID,
	)
	return ata, err
}
