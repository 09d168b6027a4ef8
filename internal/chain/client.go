package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	rpcAttempts      = 3
	rpcRetryBaseWait = 500 * time.Millisecond
	blockTimeCache   = 4096
)

// Client wraps an ethclient connection to a single chain. All RPC calls are
// bounded by the configured timeout and retried on transient failure.
type Client struct {
	ChainID int64
	ec      *ethclient.Client
	timeout time.Duration
	times   *lru.Cache[uint64, time.Time]
}

// Dial connects to the chain RPC endpoint. The connection itself is lazy;
// the first call surfaces connectivity errors.
func Dial(rpcURL string, chainID int64, timeout time.Duration) (*Client, error) {
	ec, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cache, err := lru.New[uint64, time.Time](blockTimeCache)
	if err != nil {
		return nil, err
	}
	return &Client{ChainID: chainID, ec: ec, timeout: timeout, times: cache}, nil
}

func (c *Client) Close() { c.ec.Close() }

// HeadBlock returns the latest block number seen by the RPC node.
func (c *Client) HeadBlock(ctx context.Context) (uint64, error) {
	var head uint64
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		head, err = c.ec.BlockNumber(ctx)
		return err
	})
	return head, err
}

// FilterLogs fetches all logs emitted by contract in [from, to] inclusive.
func (c *Client) FilterLogs(ctx context.Context, contract common.Address, from, to uint64) ([]types.Log, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{contract},
	}
	var logs []types.Log
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		logs, err = c.ec.FilterLogs(ctx, q)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs [%d,%d]: %w", from, to, err)
	}
	return logs, nil
}

// BlockTime returns the timestamp of a block, cached across batches.
func (c *Client) BlockTime(ctx context.Context, number uint64) (time.Time, error) {
	if ts, ok := c.times.Get(number); ok {
		return ts, nil
	}
	var hdr *types.Header
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		hdr, err = c.ec.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		return err
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("header %d: %w", number, err)
	}
	ts := time.Unix(int64(hdr.Time), 0).UTC()
	c.times.Add(number, ts)
	return ts, nil
}

// Call executes a read-only eth_call against contract at the latest block.
func (c *Client) Call(ctx context.Context, contract common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &contract, Data: data}
	var out []byte
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.ec.CallContract(ctx, msg, nil)
		return err
	})
	return out, err
}

func (c *Client) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < rpcAttempts; attempt++ {
		if attempt > 0 {
			wait := rpcRetryBaseWait << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err = fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}
