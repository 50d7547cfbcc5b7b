// Package wallettest provides in-memory wallet doubles for plugin tests.
package wallettest

import (
	"context"
	"fmt"
	"sync"

	"AgentWallet-Kit/pkg/chain"
	"AgentWallet-Kit/pkg/wallet"
)

// Wallet implements only the base wallet.Client capability set.
type Wallet struct {
	Addr     string
	On       chain.Chain
	Smart    bool
	SignFunc func(message string) (string, error)
	Balances map[string]wallet.Balance

	mu     sync.Mutex
	signed []string
}

var (
	_ wallet.Client      = (*Wallet)(nil)
	_ wallet.SmartWallet = (*Wallet)(nil)
)

// New returns a base wallet on c whose signatures are "SIG(<message>)".
func New(c chain.Chain) *Wallet {
	return &Wallet{
		Addr: "0x00000000000000000000000000000000000000a1",
		On:   c,
		SignFunc: func(message string) (string, error) {
			return "SIG(" + message + ")", nil
		},
	}
}

func (w *Wallet) Address(context.Context) (string, error) { return w.Addr, nil }

func (w *Wallet) Chain() chain.Chain { return w.On }

func (w *Wallet) IsSmartWallet() bool { return w.Smart }

func (w *Wallet) SignMessage(_ context.Context, message string) (wallet.Signature, error) {
	w.mu.Lock()
	w.signed = append(w.signed, message)
	w.mu.Unlock()
	if w.SignFunc == nil {
		return wallet.Signature{}, fmt.Errorf("signing not configured")
	}
	sig, err := w.SignFunc(message)
	if err != nil {
		return wallet.Signature{}, err
	}
	return wallet.Signature{SignedMessage: sig}, nil
}

func (w *Wallet) BalanceOf(_ context.Context, address string) (wallet.Balance, error) {
	if b, ok := w.Balances[address]; ok {
		return b, nil
	}
	return wallet.Balance{Decimals: 18, Symbol: "ETH", Name: "Ether", Value: "0", InBaseUnits: "0"}, nil
}

// Signed returns the messages passed to SignMessage in call order.
func (w *Wallet) Signed() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.signed...)
}

// EVMWallet extends Wallet with scripted EVM reads and recorded transactions.
type EVMWallet struct {
	*Wallet

	// ReadFunc answers contract reads, keyed by the caller.
	ReadFunc func(req wallet.EVMReadRequest) (wallet.EVMReadResult, error)

	mu  sync.Mutex
	txs []wallet.EVMTransaction
}

var _ wallet.EVMClient = (*EVMWallet)(nil)

// NewEVM returns an EVM wallet on the given chain id.
func NewEVM(chainID uint64) *EVMWallet {
	return &EVMWallet{Wallet: New(chain.EVM(chainID))}
}

func (w *EVMWallet) SendTransaction(_ context.Context, tx wallet.EVMTransaction) (wallet.TransactionResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.txs = append(w.txs, tx)
	return wallet.TransactionResult{Hash: fmt.Sprintf("0x%064x", len(w.txs))}, nil
}

func (w *EVMWallet) Read(_ context.Context, req wallet.EVMReadRequest) (wallet.EVMReadResult, error) {
	if w.ReadFunc == nil {
		return wallet.EVMReadResult{}, fmt.Errorf("no read handler for %s", req.FunctionName)
	}
	return w.ReadFunc(req)
}

// Transactions returns the submitted transactions in order.
func (w *EVMWallet) Transactions() []wallet.EVMTransaction {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]wallet.EVMTransaction(nil), w.txs...)
}

// SolanaWallet extends Wallet with recorded Solana transactions.
type SolanaWallet struct {
	*Wallet

	mu  sync.Mutex
	txs []wallet.SolanaTransaction
}

var _ wallet.SolanaClient = (*SolanaWallet)(nil)

// NewSolana returns a Solana wallet.
func NewSolana() *SolanaWallet {
	w := New(chain.Solana())
	w.Addr = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	return &SolanaWallet{Wallet: w}
}

func (w *SolanaWallet) SendTransaction(_ context.Context, tx wallet.SolanaTransaction) (wallet.TransactionResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.txs = append(w.txs, tx)
	return wallet.TransactionResult{Hash: fmt.Sprintf("sol-%d", len(w.txs))}, nil
}
