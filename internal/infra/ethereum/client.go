// Package ethereum exposes the typed L1 surface the fetcher needs on top of
// the raw JSON-RPC client: SystemConfig reads, log queries, the filter
// lifecycle, safe-head lookups and batched block-timestamp resolution.
package ethereum

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/opwatcher/internal/core/domain"
	"github.com/vietddude/opwatcher/internal/infra/rpc"
	"github.com/vietddude/opwatcher/internal/infra/rpc/provider"
)

const timestampChunkSize = 20

// Client is a typed L1 JSON-RPC client.
type Client struct {
	rpc *rpc.Client
	log *slog.Logger
}

// NewClient wraps an rpc client.
func NewClient(rpcClient *rpc.Client) *Client {
	return &Client{rpc: rpcClient, log: slog.Default()}
}

// SafeBlockNumber returns the current L1 safe head.
func (c *Client) SafeBlockNumber(ctx context.Context) (uint64, error) {
	result, err := c.rpc.Call(ctx, "eth_getBlockByNumber", []any{"safe", false})
	if err != nil {
		return 0, fmt.Errorf("eth_getBlockByNumber(safe) failed: %w", err)
	}
	block, ok := result.(map[string]any)
	if !ok {
		return 0, fmt.Errorf("no safe block returned")
	}
	return parseHexUint64(getString(block["number"]))
}

// LatestBlockNumber returns the chain head block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	result, err := c.rpc.Call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}
	hex, ok := result.(string)
	if !ok {
		return 0, fmt.Errorf("invalid block number response")
	}
	return parseHexUint64(hex)
}

// FilterLogs fetches logs for address/topic0 in [from, to]. A zero `to`
// queries up to "latest".
func (c *Client) FilterLogs(ctx context.Context, address common.Address, topic0 common.Hash, from, to uint64) ([]domain.Log, error) {
	toBlock := "latest"
	if to != 0 {
		toBlock = hexutil.EncodeUint64(to)
	}
	query := map[string]any{
		"fromBlock": hexutil.EncodeUint64(from),
		"toBlock":   toBlock,
		"address":   strings.ToLower(address.Hex()),
		"topics":    []any{topic0.Hex()},
	}
	result, err := c.rpc.Call(ctx, "eth_getLogs", []any{query})
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs failed: %w", err)
	}
	return parseLogs(result)
}

// NewFilter installs a server-side log filter from `from` to "latest" and
// returns its id.
func (c *Client) NewFilter(ctx context.Context, address common.Address, topic0 common.Hash, from uint64) (string, error) {
	query := map[string]any{
		"fromBlock": hexutil.EncodeUint64(from),
		"toBlock":   "latest",
		"address":   strings.ToLower(address.Hex()),
		"topics":    []any{topic0.Hex()},
	}
	result, err := c.rpc.Call(ctx, "eth_newFilter", []any{query})
	if err != nil {
		return "", fmt.Errorf("eth_newFilter failed: %w", err)
	}
	id, ok := result.(string)
	if !ok || id == "" {
		return "", fmt.Errorf("invalid filter id response")
	}
	return id, nil
}

// FilterChanges polls an installed filter. Lost filters surface as an error
// for which rpc.IsFilterNotFound is true.
func (c *Client) FilterChanges(ctx context.Context, filterID string) ([]domain.Log, error) {
	result, err := c.rpc.Call(ctx, "eth_getFilterChanges", []any{filterID})
	if err != nil {
		return nil, fmt.Errorf("eth_getFilterChanges failed: %w", err)
	}
	return parseLogs(result)
}

// UninstallFilter removes a server-side filter.
func (c *Client) UninstallFilter(ctx context.Context, filterID string) (bool, error) {
	result, err := c.rpc.Call(ctx, "eth_uninstallFilter", []any{filterID})
	if err != nil {
		return false, fmt.Errorf("eth_uninstallFilter failed: %w", err)
	}
	ok, _ := result.(bool)
	return ok, nil
}

// TransactionExists checks whether the node still knows a transaction.
func (c *Client) TransactionExists(ctx context.Context, txHash string) (bool, error) {
	result, err := c.rpc.Call(ctx, "eth_getTransactionByHash", []any{txHash})
	if err != nil {
		return false, fmt.Errorf("eth_getTransactionByHash failed: %w", err)
	}
	return result != nil, nil
}

// BlockTimestamps resolves unique block numbers to their timestamps with
// chunked batch requests. Blocks the node cannot resolve are absent from the
// returned map; callers persist null timestamps for those.
func (c *Client) BlockTimestamps(ctx context.Context, numbers []uint64) (map[uint64]uint64, error) {
	if len(numbers) == 0 {
		return map[uint64]uint64{}, nil
	}

	unique := make([]uint64, 0, len(numbers))
	seen := make(map[uint64]struct{}, len(numbers))
	for _, n := range numbers {
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			unique = append(unique, n)
		}
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })

	out := make(map[uint64]uint64, len(unique))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(3)

	for start := 0; start < len(unique); start += timestampChunkSize {
		chunk := unique[start:min(start+timestampChunkSize, len(unique))]
		g.Go(func() error {
			requests := make([]provider.BatchRequest, len(chunk))
			for i, n := range chunk {
				requests[i] = provider.BatchRequest{
					Method: "eth_getBlockByNumber",
					Params: []any{hexutil.EncodeUint64(n), false},
				}
			}
			responses, err := c.rpc.BatchCall(ctx, requests)
			if err != nil {
				return err
			}
			for i, resp := range responses {
				if resp.Error != nil {
					c.log.Warn("block timestamp lookup failed", "block", chunk[i], "error", resp.Error)
					continue
				}
				block, ok := resp.Result.(map[string]any)
				if !ok {
					continue
				}
				ts, err := parseHexUint64(getString(block["timestamp"]))
				if err != nil {
					continue
				}
				mu.Lock()
				out[chunk[i]] = ts
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch timestamp lookup failed: %w", err)
	}
	return out, nil
}

// BlockCadence estimates the L1 block interval from the two most recent
// headers, clamped to [1s, 30s].
func (c *Client) BlockCadence(ctx context.Context) (time.Duration, error) {
	latest, err := c.LatestBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	if latest == 0 {
		return 12 * time.Second, nil
	}
	timestamps, err := c.BlockTimestamps(ctx, []uint64{latest - 1, latest})
	if err != nil {
		return 0, err
	}
	prev, okPrev := timestamps[latest-1]
	cur, okCur := timestamps[latest]
	if !okPrev || !okCur || cur <= prev {
		return 12 * time.Second, nil
	}
	cadence := time.Duration(cur-prev) * time.Second
	if cadence < time.Second {
		cadence = time.Second
	}
	if cadence > 30*time.Second {
		cadence = 30 * time.Second
	}
	return cadence, nil
}

func parseLogs(result any) ([]domain.Log, error) {
	if result == nil {
		return nil, nil
	}
	raw, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("invalid logs response")
	}
	logs := make([]domain.Log, 0, len(raw))
	for _, entry := range raw {
		obj, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid log entry")
		}
		l, err := parseLog(obj)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, nil
}

func parseLog(raw map[string]any) (domain.Log, error) {
	var l domain.Log

	blockNumber, err := parseHexUint64(getString(raw["blockNumber"]))
	if err != nil {
		return l, fmt.Errorf("log blockNumber: %w", err)
	}
	index, err := parseHexUint64(getString(raw["logIndex"]))
	if err != nil {
		return l, fmt.Errorf("log logIndex: %w", err)
	}
	data, err := hexutil.Decode(getString(raw["data"]))
	if err != nil {
		return l, fmt.Errorf("log data: %w", err)
	}

	rawTopics, _ := raw["topics"].([]any)
	topics := make([]common.Hash, 0, len(rawTopics))
	for _, t := range rawTopics {
		topics = append(topics, common.HexToHash(getString(t)))
	}

	removed, _ := raw["removed"].(bool)

	l = domain.Log{
		Address:     common.HexToAddress(getString(raw["address"])),
		Topics:      topics,
		Data:        data,
		BlockNumber: blockNumber,
		BlockHash:   common.HexToHash(getString(raw["blockHash"])),
		TxHash:      common.HexToHash(getString(raw["transactionHash"])),
		Index:       index,
		Removed:     removed,
	}
	return l, nil
}

func parseHexUint64(hexStr string) (uint64, error) {
	n := new(big.Int)
	if _, ok := n.SetString(strings.TrimPrefix(hexStr, "0x"), 16); !ok {
		return 0, fmt.Errorf("invalid hex: %q", hexStr)
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("hex out of uint64 range: %q", hexStr)
	}
	return n.Uint64(), nil
}

func getString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
