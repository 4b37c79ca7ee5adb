// Package gateway adapts the remote ledger RPC into the narrow, typed
// surface the aggregation layer consumes. All read failures resolve to a
// ReadError rather than a crash, including calls against contracts that do
// not exist or revert.
package gateway

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EVMClient is the subset of the Ethereum RPC the gateway consumes.
// *ethclient.Client satisfies it.
type EVMClient interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]gethtypes.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// Dial initialises an EVM RPC client for the provided endpoint.
func Dial(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("gateway: rpc endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// Client wraps an EVMClient with bounded timeouts and the lending protocol's
// read helpers.
type Client struct {
	evm         EVMClient
	pool        common.Address
	callTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithCallTimeout bounds each RPC call.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// New constructs a gateway over the given client and lending pool contract.
func New(evm EVMClient, pool common.Address, opts ...Option) *Client {
	c := &Client{
		evm:         evm,
		pool:        pool,
		callTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Pool returns the lending pool contract address.
func (c *Client) Pool() common.Address {
	if c == nil {
		return common.Address{}
	}
	return c.pool
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.callTimeout)
}

// NativeBalance reads the account's native-asset balance at head.
func (c *Client) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	if c == nil || c.evm == nil {
		return nil, errNotConfigured
	}
	var balance *big.Int
	err := c.read(ctx, "balance", func(ctx context.Context) error {
		var inner error
		balance, inner = c.evm.BalanceAt(ctx, account, nil)
		return inner
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// HeadBlock returns the current head block number.
func (c *Client) HeadBlock(ctx context.Context) (uint64, error) {
	if c == nil || c.evm == nil {
		return 0, errNotConfigured
	}
	var head uint64
	err := c.read(ctx, "head", func(ctx context.Context) error {
		header, inner := c.evm.HeaderByNumber(ctx, nil)
		if inner != nil {
			return inner
		}
		if header == nil || header.Number == nil {
			return fmt.Errorf("header missing number")
		}
		head = header.Number.Uint64()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return head, nil
}

// BlockTimestamp resolves the timestamp of the given block.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (time.Time, error) {
	if c == nil || c.evm == nil {
		return time.Time{}, errNotConfigured
	}
	var ts time.Time
	err := c.read(ctx, "block", func(ctx context.Context) error {
		header, inner := c.evm.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		if inner != nil {
			return inner
		}
		if header == nil {
			return ethereum.NotFound
		}
		ts = time.Unix(int64(header.Time), 0).UTC()
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return ts, nil
}

// Logs queries raw logs by address, topics, and block range.
func (c *Client) Logs(ctx context.Context, address common.Address, topics [][]common.Hash, fromBlock, toBlock uint64) ([]gethtypes.Log, error) {
	if c == nil || c.evm == nil {
		return nil, errNotConfigured
	}
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{address},
		Topics:    topics,
	}
	var logs []gethtypes.Log
	err := c.read(ctx, "logs", func(ctx context.Context) error {
		var inner error
		logs, inner = c.evm.FilterLogs(ctx, query)
		return inner
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// Submit sends a pre-signed transaction and returns its hash. Submissions
// are user-triggered only; nothing in the core retries them.
func (c *Client) Submit(ctx context.Context, tx *gethtypes.Transaction) (common.Hash, error) {
	if c == nil || c.evm == nil {
		return common.Hash{}, errNotConfigured
	}
	if tx == nil {
		return common.Hash{}, fmt.Errorf("gateway: nil transaction")
	}
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.evm.SendTransaction(callCtx, tx); err != nil {
		return common.Hash{}, fmt.Errorf("gateway: send transaction: %w", err)
	}
	return tx.Hash(), nil
}

// WaitForTransaction polls for the receipt of txHash until it appears or the
// context is cancelled. It reports whether the transaction succeeded.
func (c *Client) WaitForTransaction(ctx context.Context, txHash common.Hash) (bool, error) {
	if c == nil || c.evm == nil {
		return false, errNotConfigured
	}
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		callCtx, cancel := c.withTimeout(ctx)
		receipt, err := c.evm.TransactionReceipt(callCtx, txHash)
		cancel()
		if err == nil && receipt != nil {
			return receipt.Status == gethtypes.ReceiptStatusSuccessful, nil
		}
		if err != nil && !errorsIsNotFound(err) {
			return false, fmt.Errorf("gateway: fetch receipt: %w", err)
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}
