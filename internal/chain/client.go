// Package chain adapts a go-ethereum RPC connection to the log polling and token metadata
// lookups of the chain feed.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

const defaultTimestampWindow = 4096

// Client implements feed.LogSource and decode.ContractCaller. It is safe for concurrent use.
type Client struct {
	conn *rpc.Client
	eth  *ethclient.Client

	chainMu sync.Mutex
	chainID *big.Int

	timestamps *timestampCache
}

// NewClient dials rpcURL. The chain ID is fetched lazily on first use.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	conn, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", redactURL(rpcURL), err)
	}
	return &Client{
		conn:       conn,
		eth:        ethclient.NewClient(conn),
		timestamps: newTimestampCache(defaultTimestampWindow),
	}, nil
}

func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// GetChainID asks the node until one lookup succeeds, then serves the cached value.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	c.chainMu.Lock()
	defer c.chainMu.Unlock()
	if c.chainID == nil {
		id, err := c.eth.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("chain id: %w", err)
		}
		c.chainID = id
	}
	return new(big.Int).Set(c.chainID), nil
}

func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	if ts, ok := c.timestamps.get(number); ok {
		return ts, nil
	}
	header, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, fmt.Errorf("header %d: %w", number, err)
	}
	c.timestamps.put(number, header.Time)
	return header.Time, nil
}

// FilterLogs fetches logs in [fromBlock, toBlock]. No topic0 filter means every event.
func (c *Client) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		q.Topics = [][]common.Hash{topic0}
	}
	return c.eth.FilterLogs(ctx, q)
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, blockNumber)
}
