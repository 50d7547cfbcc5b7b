// Package wallet defines the capability set that wallet implementations expose
// to plugins. The base Client is chain agnostic; chain families add extension
// interfaces on top of it.
package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"AgentWallet-Kit/pkg/chain"
)

// Signature is the result of signing an arbitrary message.
type Signature struct {
	SignedMessage string `json:"signedMessage"`
}

// Balance describes a native or token balance.
type Balance struct {
	Decimals    int    `json:"decimals"`
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Value       string `json:"value"`
	InBaseUnits string `json:"inBaseUnits"`
}

// Client is the chain agnostic capability baseline.
type Client interface {
	// Address returns the address controlled by the wallet.
	Address(ctx context.Context) (string, error)
	// Chain returns the chain the wallet is connected to.
	Chain() chain.Chain
	// SignMessage signs an arbitrary message with the wallet key.
	SignMessage(ctx context.Context, message string) (Signature, error)
	// BalanceOf returns the native balance held by address.
	BalanceOf(ctx context.Context, address string) (Balance, error)
}

// SmartWallet is implemented by wallets that can report whether they are a
// contract based account.
type SmartWallet interface {
	IsSmartWallet() bool
}

// IsSmart reports whether w is a smart wallet variant.
func IsSmart(w Client) bool {
	sw, ok := w.(SmartWallet)
	return ok && sw.IsSmartWallet()
}

// TransactionResult identifies a submitted transaction.
type TransactionResult struct {
	Hash string `json:"hash"`
}

// EVMTransaction is a transaction request. When ABI and FunctionName are set the
// call data is packed from Args, otherwise Data is sent verbatim.
type EVMTransaction struct {
	To           string
	Value        *big.Int
	Data         []byte
	ABI          *abi.ABI
	FunctionName string
	Args         []any
}

// EVMReadRequest is a read-only contract call.
type EVMReadRequest struct {
	Address      string
	ABI          *abi.ABI
	FunctionName string
	Args         []any
}

// EVMReadResult carries the unpacked outputs of a contract call. Value is the
// first output, Values holds all of them.
type EVMReadResult struct {
	Value  any
	Values []any
}

// EVMTransactor submits transactions on EVM chains.
type EVMTransactor interface {
	SendTransaction(ctx context.Context, tx EVMTransaction) (TransactionResult, error)
}

// EVMReader performs read-only contract calls on EVM chains.
type EVMReader interface {
	Read(ctx context.Context, req EVMReadRequest) (EVMReadResult, error)
}

// EVMClient is the full EVM wallet capability set.
type EVMClient interface {
	Client
	EVMTransactor
	EVMReader
}

// SolanaAccountMeta references an account used by an instruction.
type SolanaAccountMeta struct {
	PublicKey  string
	IsSigner   bool
	IsWritable bool
}

// SolanaInstruction is a single program instruction.
type SolanaInstruction struct {
	ProgramID string
	Accounts  []SolanaAccountMeta
	Data      []byte
}

// SolanaTransaction groups instructions submitted atomically.
type SolanaTransaction struct {
	Instructions        []SolanaInstruction
	AddressLookupTables []string
}

// SolanaTransactor submits transactions on Solana.
type SolanaTransactor interface {
	SendTransaction(ctx context.Context, tx SolanaTransaction) (TransactionResult, error)
}

// SolanaClient is the full Solana wallet capability set.
type SolanaClient interface {
	Client
	SolanaTransactor
}
