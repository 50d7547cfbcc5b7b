// Package evm 提供基于 go-ethereum 的宿主钱包实现，满足 wallet.EVMClient 能力集。
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	xerrors "AgentWallet-Kit/internal/errors"
	"AgentWallet-Kit/internal/web3"
	"AgentWallet-Kit/pkg/chain"
	"AgentWallet-Kit/pkg/wallet"
)

// Config describes how to construct an EVM wallet.
type Config struct {
	Name       string
	RPCURL     string
	ChainID    uint64
	PrivateKey *ecdsa.PrivateKey
	Smart      bool
	Native     web3.NativeCurrency
	Notes      string
}

// Wallet 使用单一私钥在一条 EVM 链上签名和发送交易。交易提交在钱包内部串行化，
// nonce 由钱包自己维护，调用方无需额外加锁。
type Wallet struct {
	name    string
	notes   string
	chain   chain.Chain
	chainID *big.Int
	key     *ecdsa.PrivateKey
	address common.Address
	backend web3.Backend
	native  web3.NativeCurrency
	smart   bool
	closer  func()

	mu        sync.Mutex
	nextNonce *uint64
}

var (
	_ wallet.EVMClient   = (*Wallet)(nil)
	_ wallet.SmartWallet = (*Wallet)(nil)
)

// Dial 连接 RPC 节点并创建钱包。配置了 ChainID 时会与节点返回值比对。
func Dial(ctx context.Context, cfg Config) (*Wallet, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置以太坊 RPC 地址")
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接以太坊节点失败")
	}
	remote, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "获取链 ID 失败")
	}
	if cfg.ChainID != 0 && remote.Uint64() != cfg.ChainID {
		client.Close()
		return nil, xerrors.New(xerrors.CodeInitializationFailure,
			fmt.Sprintf("链 %s 的节点返回链 ID %s，与配置 %d 不一致", cfg.Name, remote, cfg.ChainID))
	}
	cfg.ChainID = remote.Uint64()
	w, err := New(client, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}
	w.closer = client.Close
	return w, nil
}

// New 使用已有的后端创建钱包，主要用于测试或自定义传输层。
func New(backend web3.Backend, cfg Config) (*Wallet, error) {
	if backend == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "钱包缺少链访问后端")
	}
	if cfg.PrivateKey == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "钱包缺少私钥")
	}
	if cfg.ChainID == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "EVM 钱包必须指定链 ID")
	}
	native := cfg.Native
	if native.Symbol == "" {
		native = web3.DefaultNativeCurrency
	}
	return &Wallet{
		name:    cfg.Name,
		notes:   cfg.Notes,
		chain:   chain.EVM(cfg.ChainID),
		chainID: new(big.Int).SetUint64(cfg.ChainID),
		key:     cfg.PrivateKey,
		address: crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey),
		backend: backend,
		native:  native,
		smart:   cfg.Smart,
	}, nil
}

// ParsePrivateKey 解析十六进制私钥，允许 0x 前缀。
func ParsePrivateKey(raw string) (*ecdsa.PrivateKey, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if raw == "" {
		return nil, errors.New("私钥为空")
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("解析私钥失败: %w", err)
	}
	return key, nil
}

// Name 返回链配置名称。
func (w *Wallet) Name() string { return w.name }

func (w *Wallet) Address(context.Context) (string, error) { return w.address.Hex(), nil }

func (w *Wallet) Chain() chain.Chain { return w.chain }

func (w *Wallet) IsSmartWallet() bool { return w.smart }

// SignMessage 按 EIP-191 personal_sign 规则签名，返回 65 字节签名（v 为 27/28）。
func (w *Wallet) SignMessage(_ context.Context, message string) (wallet.Signature, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.key)
	if err != nil {
		return wallet.Signature{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "签名消息失败")
	}
	sig[crypto.RecoveryIDOffset] += 27
	return wallet.Signature{SignedMessage: hexutil.Encode(sig)}, nil
}

// BalanceOf 查询原生代币余额。
func (w *Wallet) BalanceOf(ctx context.Context, address string) (wallet.Balance, error) {
	if !common.IsHexAddress(address) {
		return wallet.Balance{}, xerrors.New(xerrors.CodeInvalidParameters, fmt.Sprintf("地址格式无效: %s", address))
	}
	balance, err := w.backend.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return wallet.Balance{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "查询余额失败")
	}
	return wallet.Balance{
		Decimals:    w.native.Decimals,
		Symbol:      w.native.Symbol,
		Name:        w.native.Name,
		Value:       formatUnits(balance, w.native.Decimals),
		InBaseUnits: balance.String(),
	}, nil
}

// SendTransaction 构造、签名并广播 EIP-1559 交易。同一钱包的提交按顺序进行。
func (w *Wallet) SendTransaction(ctx context.Context, req wallet.EVMTransaction) (wallet.TransactionResult, error) {
	if !common.IsHexAddress(req.To) {
		return wallet.TransactionResult{}, xerrors.New(xerrors.CodeInvalidParameters, fmt.Sprintf("接收地址格式无效: %s", req.To))
	}
	to := common.HexToAddress(req.To)
	data := req.Data
	if req.ABI != nil && req.FunctionName != "" {
		packed, err := req.ABI.Pack(req.FunctionName, req.Args...)
		if err != nil {
			return wallet.TransactionResult{}, xerrors.Wrap(xerrors.CodeInvalidParameters, err, fmt.Sprintf("编码 %s 调用失败", req.FunctionName))
		}
		data = packed
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	nonce, err := w.nonce(ctx)
	if err != nil {
		return wallet.TransactionResult{}, err
	}
	tip, err := w.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return wallet.TransactionResult{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "获取 gas tip 失败")
	}
	head, err := w.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return wallet.TransactionResult{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "获取最新区块失败")
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}
	gas, err := w.backend.EstimateGas(ctx, gethcore.CallMsg{
		From:      w.address,
		To:        &to,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Value:     value,
		Data:      data,
	})
	if err != nil {
		return wallet.TransactionResult{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "估算 gas 失败")
	}

	signed, err := types.SignNewTx(w.key, types.LatestSignerForChainID(w.chainID), &types.DynamicFeeTx{
		ChainID:   w.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	if err != nil {
		return wallet.TransactionResult{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "签名交易失败")
	}
	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		// 提交失败时放弃本地 nonce，下次重新向节点查询。
		w.nextNonce = nil
		return wallet.TransactionResult{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "发送交易失败")
	}
	next := nonce + 1
	w.nextNonce = &next
	return wallet.TransactionResult{Hash: signed.Hash().Hex()}, nil
}

func (w *Wallet) nonce(ctx context.Context) (uint64, error) {
	pending, err := w.backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeWalletFailure, err, "查询交易计数失败")
	}
	if w.nextNonce != nil && *w.nextNonce > pending {
		return *w.nextNonce, nil
	}
	return pending, nil
}

// Read 执行只读合约调用并按 ABI 解码输出。
func (w *Wallet) Read(ctx context.Context, req wallet.EVMReadRequest) (wallet.EVMReadResult, error) {
	if req.ABI == nil || req.FunctionName == "" {
		return wallet.EVMReadResult{}, xerrors.New(xerrors.CodeInvalidParameters, "只读调用缺少 ABI 或方法名")
	}
	if !common.IsHexAddress(req.Address) {
		return wallet.EVMReadResult{}, xerrors.New(xerrors.CodeInvalidParameters, fmt.Sprintf("合约地址格式无效: %s", req.Address))
	}
	data, err := req.ABI.Pack(req.FunctionName, req.Args...)
	if err != nil {
		return wallet.EVMReadResult{}, xerrors.Wrap(xerrors.CodeInvalidParameters, err, fmt.Sprintf("编码 %s 调用失败", req.FunctionName))
	}
	contract := common.HexToAddress(req.Address)
	out, err := w.backend.CallContract(ctx, gethcore.CallMsg{From: w.address, To: &contract, Data: data}, nil)
	if err != nil {
		return wallet.EVMReadResult{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, fmt.Sprintf("调用 %s 失败", req.FunctionName))
	}
	values, err := req.ABI.Unpack(req.FunctionName, out)
	if err != nil {
		return wallet.EVMReadResult{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, fmt.Sprintf("解码 %s 返回值失败", req.FunctionName))
	}
	res := wallet.EVMReadResult{Values: values}
	if len(values) > 0 {
		res.Value = values[0]
	}
	return res, nil
}

// Snapshot 返回节点当前的链 ID 与区块高度。
func (w *Wallet) Snapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	id, err := w.backend.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "获取链 ID 失败")
	}
	head, err := w.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return web3.ChainSnapshot{}, xerrors.Wrap(xerrors.CodeWalletFailure, err, "获取最新区块失败")
	}
	return web3.ChainSnapshot{
		Name:        w.name,
		ChainID:     web3.ToHexBig(id),
		BlockNumber: web3.ToHexBig(head.Number),
		Notes:       w.notes,
	}, nil
}

// Close 释放底层 RPC 连接。
func (w *Wallet) Close() {
	if w != nil && w.closer != nil {
		w.closer()
		w.closer = nil
	}
}

func formatUnits(v *big.Int, decimals int) string {
	if v == nil {
		return "0"
	}
	if decimals <= 0 {
		return v.String()
	}
	digits := new(big.Int).Abs(v).String()
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	point := len(digits) - decimals
	out := digits[:point]
	if frac := strings.TrimRight(digits[point:], "0"); frac != "" {
		out += "." + frac
	}
	if v.Sign() < 0 {
		out = "-" + out
	}
	return out
}
