package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	optimismPortalSelector = crypto.Keccak256([]byte("optimismPortal()"))[:4]
	startBlockSelector     = crypto.Keccak256([]byte("startBlock()"))[:4]
)

// SystemConfig is the subset of the L1 SystemConfig contract the fetcher
// bootstraps from.
type SystemConfig struct {
	OptimismPortal common.Address
	StartBlock     uint64
}

// SystemConfig reads the portal address and deposit start block from the
// SystemConfig contract.
func (c *Client) SystemConfig(ctx context.Context, contract common.Address) (*SystemConfig, error) {
	portalWord, err := c.contractCall(ctx, contract, optimismPortalSelector)
	if err != nil {
		return nil, fmt.Errorf("read optimismPortal(): %w", err)
	}
	if len(portalWord) != 32 {
		return nil, fmt.Errorf("optimismPortal() returned %d bytes, want 32", len(portalWord))
	}

	startWord, err := c.contractCall(ctx, contract, startBlockSelector)
	if err != nil {
		return nil, fmt.Errorf("read startBlock(): %w", err)
	}
	if len(startWord) != 32 {
		return nil, fmt.Errorf("startBlock() returned %d bytes, want 32", len(startWord))
	}
	start := new(big.Int).SetBytes(startWord)
	if !start.IsUint64() {
		return nil, fmt.Errorf("startBlock() out of range: %s", start)
	}

	return &SystemConfig{
		OptimismPortal: common.BytesToAddress(portalWord[12:]),
		StartBlock:     start.Uint64(),
	}, nil
}

func (c *Client) contractCall(ctx context.Context, to common.Address, selector []byte) ([]byte, error) {
	callObj := map[string]any{
		"to":   strings.ToLower(to.Hex()),
		"data": hexutil.Encode(selector),
	}
	result, err := c.rpc.Call(ctx, "eth_call", []any{callObj, "latest"})
	if err != nil {
		return nil, fmt.Errorf("eth_call failed: %w", err)
	}
	hex, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("invalid eth_call response")
	}
	return hexutil.Decode(hex)
}
