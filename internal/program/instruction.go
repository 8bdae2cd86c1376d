package program

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Instruction names as declared by the program.
const (
	InstructionInitializePool      = "initialize_pool"
	InstructionAddLiquidity        = "add_liquidity"
	InstructionRemoveLiquidity     = "remove_liquidity"
	InstructionSwap                = "swap"
	InstructionAddToWhitelist      = "add_to_whitelist"
	InstructionRemoveFromWhitelist = "remove_from_whitelist"
)

// Discriminator returns the 8-byte instruction tag: sha256("global:<name>")[:8].
func Discriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

type InitializePoolArgs struct {
	FeeRate uint64 `json:"fee_rate"`
}

type AddLiquidityArgs struct {
	AmountADesired uint64 `json:"amount_a_desired"`
	AmountBDesired uint64 `json:"amount_b_desired"`
	AmountAMin     uint64 `json:"amount_a_min"`
	AmountBMin     uint64 `json:"amount_b_min"`
}

type RemoveLiquidityArgs struct {
	LpTokenAmount uint64 `json:"lp_token_amount"`
	AmountAMin    uint64 `json:"amount_a_min"`
	AmountBMin    uint64 `json:"amount_b_min"`
}

type SwapArgs struct {
	AmountIn     uint64 `json:"amount_in"`
	AmountOutMin uint64 `json:"amount_out_min"`
	AToB         bool   `json:"a_to_b"`
}

type WhitelistArgs struct {
	Account solana.PublicKey `json:"account"`
}

// Decoded is an instruction parsed back from its data bytes.
type Decoded struct {
	Name string `json:"name"`
	Args any    `json:"args"`
}

func encode(name string, args any) ([]byte, error) {
	body, err := bin.MarshalBorsh(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s args: %w", name, err)
	}
	d := Discriminator(name)
	return append(d[:], body...), nil
}

// DecodeInstruction parses instruction data produced by this package.
func DecodeInstruction(data []byte) (*Decoded, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("instruction data too short: %d bytes", len(data))
	}
	tag, body := data[:8], data[8:]

	var args any
	var name string
	switch {
	case matches(tag, InstructionInitializePool):
		name, args = InstructionInitializePool, new(InitializePoolArgs)
	case matches(tag, InstructionAddLiquidity):
		name, args = InstructionAddLiquidity, new(AddLiquidityArgs)
	case matches(tag, InstructionRemoveLiquidity):
		name, args = InstructionRemoveLiquidity, new(RemoveLiquidityArgs)
	case matches(tag, InstructionSwap):
		name, args = InstructionSwap, new(SwapArgs)
	case matches(tag, InstructionAddToWhitelist):
		name, args = InstructionAddToWhitelist, new(WhitelistArgs)
	case matches(tag, InstructionRemoveFromWhitelist):
		name, args = InstructionRemoveFromWhitelist, new(WhitelistArgs)
	default:
		return nil, fmt.Errorf("unknown instruction discriminator %x", tag)
	}

	if err := bin.UnmarshalBorsh(args, body); err != nil {
		return nil, fmt.Errorf("decode %s args: %w", name, err)
	}
	return &Decoded{Name: name, Args: args}, nil
}

func matches(tag []byte, name string) bool {
	d := Discriminator(name)
	return bytes.Equal(tag, d[:])
}

// Builder constructs instructions for one deployment of the program.
type Builder struct {
	ProgramID solana.PublicKey
}

// NewBuilder returns a builder for programID, or DefaultProgramID if zero.
func NewBuilder(programID solana.PublicKey) *Builder {
	if programID.IsZero() {
		programID = DefaultProgramID
	}
	return &Builder{ProgramID: programID}
}

// InitializePool builds initialize_pool. Account order:
// 0. authority (signer, writable)
// 1. pool (writable)
// 2. token_a_mint
// 3. token_b_mint
// 4. token_a_vault (writable)
// 5. token_b_vault (writable)
// 6. lp_token_mint (writable)
// 7. token_program
// 8. system_program
func (b *Builder) InitializePool(authority solana.PublicKey, addrs *PoolAddresses, feeRate uint64) (solana.Instruction, error) {
	if addrs == nil {
		return nil, fmt.Errorf("pool addresses cannot be nil")
	}
	data, err := encode(InstructionInitializePool, InitializePoolArgs{FeeRate: feeRate})
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		{PublicKey: authority, IsSigner: true, IsWritable: true},
		{PublicKey: addrs.Pool, IsWritable: true},
		{PublicKey: addrs.MintA},
		{PublicKey: addrs.MintB},
		{PublicKey: addrs.VaultA, IsWritable: true},
		{PublicKey: addrs.VaultB, IsWritable: true},
		{PublicKey: addrs.ClaimMint, IsWritable: true},
		{PublicKey: Token2022ProgramID},
		{PublicKey: solana.SystemProgramID},
	}
	return solana.NewInstruction(b.ProgramID, accounts, data), nil
}

// liquidityAccounts is shared by add_liquidity and remove_liquidity.
func (b *Builder) liquidityAccounts(user solana.PublicKey, addrs *PoolAddresses) ([]*solana.AccountMeta, error) {
	userA, err := FindAssociatedTokenAddress(user, addrs.MintA)
	if err != nil {
		return nil, err
	}
	userB, err := FindAssociatedTokenAddress(user, addrs.MintB)
	if err != nil {
		return nil, err
	}
	userLP, err := FindAssociatedTokenAddress(user, addrs.ClaimMint)
	if err != nil {
		return nil, err
	}
	return []*solana.AccountMeta{
		{PublicKey: user, IsSigner: true, IsWritable: true},
		{PublicKey: addrs.Pool, IsWritable: true},
		{PublicKey: addrs.MintA},
		{PublicKey: addrs.MintB},
		{PublicKey: userA, IsWritable: true},
		{PublicKey: userB, IsWritable: true},
		{PublicKey: userLP, IsWritable: true},
		{PublicKey: addrs.VaultA, IsWritable: true},
		{PublicKey: addrs.VaultB, IsWritable: true},
		{PublicKey: addrs.ClaimMint, IsWritable: true},
		{PublicKey: Token2022ProgramID},
	}, nil
}

func (b *Builder) AddLiquidity(user solana.PublicKey, addrs *PoolAddresses, args AddLiquidityArgs) (solana.Instruction, error) {
	if addrs == nil {
		return nil, fmt.Errorf("pool addresses cannot be nil")
	}
	accounts, err := b.liquidityAccounts(user, addrs)
	if err != nil {
		return nil, err
	}
	data, err := encode(InstructionAddLiquidity, args)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(b.ProgramID, accounts, data), nil
}

func (b *Builder) RemoveLiquidity(user solana.PublicKey, addrs *PoolAddresses, args RemoveLiquidityArgs) (solana.Instruction, error) {
	if addrs == nil {
		return nil, fmt.Errorf("pool addresses cannot be nil")
	}
	accounts, err := b.liquidityAccounts(user, addrs)
	if err != nil {
		return nil, err
	}
	data, err := encode(InstructionRemoveLiquidity, args)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(b.ProgramID, accounts, data), nil
}

// Swap builds swap. After the user and vault accounts it passes the
// transfer hook accounts for both mints, so Token-2022 can run the hook
// during transfer_checked.
func (b *Builder) Swap(user solana.PublicKey, addrs *PoolAddresses, args SwapArgs) (solana.Instruction, error) {
	if addrs == nil {
		return nil, fmt.Errorf("pool addresses cannot be nil")
	}
	userA, err := FindAssociatedTokenAddress(user, addrs.MintA)
	if err != nil {
		return nil, err
	}
	userB, err := FindAssociatedTokenAddress(user, addrs.MintB)
	if err != nil {
		return nil, err
	}
	metasA, err := ExtraAccountMetaList(b.ProgramID, addrs.MintA)
	if err != nil {
		return nil, err
	}
	metasB, err := ExtraAccountMetaList(b.ProgramID, addrs.MintB)
	if err != nil {
		return nil, err
	}
	whitelist, err := WhitelistAddress(b.ProgramID)
	if err != nil {
		return nil, err
	}
	hookAuth, err := HookAuthority(b.ProgramID)
	if err != nil {
		return nil, err
	}

	data, err := encode(InstructionSwap, args)
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		{PublicKey: user, IsSigner: true, IsWritable: true},
		{PublicKey: addrs.Pool, IsWritable: true},
		{PublicKey: addrs.MintA},
		{PublicKey: addrs.MintB},
		{PublicKey: userA, IsWritable: true},
		{PublicKey: userB, IsWritable: true},
		{PublicKey: addrs.VaultA, IsWritable: true},
		{PublicKey: addrs.VaultB, IsWritable: true},
		{PublicKey: metasA},
		{PublicKey: metasB},
		{PublicKey: whitelist},
		{PublicKey: whitelist},
		{PublicKey: hookAuth},
		{PublicKey: hookAuth},
		{PublicKey: Token2022ProgramID},
	}
	return solana.NewInstruction(b.ProgramID, accounts, data), nil
}

// Whitelist builds add_to_whitelist or remove_from_whitelist.
func (b *Builder) Whitelist(authority, hookProgram, account solana.PublicKey, add bool) (solana.Instruction, error) {
	name := InstructionRemoveFromWhitelist
	if add {
		name = InstructionAddToWhitelist
	}
	whitelist, err := WhitelistAddress(b.ProgramID)
	if err != nil {
		return nil, err
	}
	data, err := encode(name, WhitelistArgs{Account: account})
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		{PublicKey: authority, IsSigner: true, IsWritable: true},
		{PublicKey: hookProgram},
		{PublicKey: whitelist},
	}
	return solana.NewInstruction(b.ProgramID, accounts, data), nil
}
