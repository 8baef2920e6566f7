package ethereum

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/opwatcher/internal/infra/rpc"
	"github.com/vietddude/opwatcher/internal/infra/rpc/provider"
)

type scriptedProvider struct {
	call  func(method string, params []any) (any, error)
	batch func(reqs []provider.BatchRequest) ([]provider.BatchResponse, error)
}

func (s *scriptedProvider) GetName() string                  { return "scripted" }
func (s *scriptedProvider) GetHealth() provider.HealthStatus { return provider.HealthStatus{} }
func (s *scriptedProvider) Close() error                     { return nil }

func (s *scriptedProvider) Call(ctx context.Context, method string, params []any) (any, error) {
	return s.call(method, params)
}

func (s *scriptedProvider) BatchCall(ctx context.Context, reqs []provider.BatchRequest) ([]provider.BatchResponse, error) {
	return s.batch(reqs)
}

func newTestClient(p provider.Provider) *Client {
	return NewClient(rpc.NewClient(p, rpc.RetryConfig{
		MaxAttempts:  1,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
	}))
}

func TestSafeBlockNumber(t *testing.T) {
	p := &scriptedProvider{
		call: func(method string, params []any) (any, error) {
			if method != "eth_getBlockByNumber" {
				t.Fatalf("unexpected method %s", method)
			}
			if params[0] != "safe" {
				t.Fatalf("expected safe tag, got %v", params[0])
			}
			return map[string]any{"number": "0x6a4"}, nil
		},
	}

	got, err := newTestClient(p).SafeBlockNumber(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != 1700 {
		t.Errorf("safe head = %d, want 1700", got)
	}
}

func TestFilterChangesParsesLogs(t *testing.T) {
	p := &scriptedProvider{
		call: func(method string, params []any) (any, error) {
			return []any{
				map[string]any{
					"address":         "0xbeb5fc579115071764c7423a4f12edde41f106ed",
					"topics":          []any{"0xb3813568d9991fc951961fcb4c784893574240a28925604d09fc577c55bb7c32"},
					"data":            "0x",
					"blockNumber":     "0x5dc",
					"blockHash":       "0x1111111111111111111111111111111111111111111111111111111111111111",
					"transactionHash": "0x2222222222222222222222222222222222222222222222222222222222222222",
					"logIndex":        "0x5",
					"removed":         true,
				},
			}, nil
		},
	}

	logs, err := newTestClient(p).FilterChanges(context.Background(), "0x1")
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	l := logs[0]
	if l.BlockNumber != 1500 || l.Index != 5 || !l.Removed {
		t.Errorf("unexpected log: %+v", l)
	}
	if l.BlockHash != common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111") {
		t.Errorf("unexpected block hash: %s", l.BlockHash)
	}
}

func TestSystemConfigRead(t *testing.T) {
	portal := "0x000000000000000000000000beb5fc579115071764c7423a4f12edde41f106ed"
	start := "0x0000000000000000000000000000000000000000000000000000000000000064"

	var calls int
	p := &scriptedProvider{
		call: func(method string, params []any) (any, error) {
			if method != "eth_call" {
				t.Fatalf("unexpected method %s", method)
			}
			calls++
			if calls == 1 {
				return portal, nil
			}
			return start, nil
		},
	}

	cfg, err := newTestClient(p).SystemConfig(context.Background(), common.HexToAddress("0x229047fed2591dbec1eF1118d64F7aF3dB9EB290"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OptimismPortal != common.HexToAddress("0xbEb5Fc579115071764c7423A4f12eDde41f106Ed") {
		t.Errorf("unexpected portal: %s", cfg.OptimismPortal)
	}
	if cfg.StartBlock != 100 {
		t.Errorf("unexpected start block: %d", cfg.StartBlock)
	}
}

func TestBlockTimestampsMergesAndSkipsFailures(t *testing.T) {
	p := &scriptedProvider{
		batch: func(reqs []provider.BatchRequest) ([]provider.BatchResponse, error) {
			out := make([]provider.BatchResponse, len(reqs))
			for i, req := range reqs {
				blockHex := req.Params[0].(string)
				if blockHex == "0x65" {
					out[i] = provider.BatchResponse{Error: &provider.RPCError{Code: -32000, Message: "header not found"}}
					continue
				}
				out[i] = provider.BatchResponse{Result: map[string]any{
					"number":    blockHex,
					"timestamp": "0x64b8c0f0",
				}}
			}
			return out, nil
		},
	}

	// 100 duplicated on purpose: lookups are deduplicated.
	got, err := newTestClient(p).BlockTimestamps(context.Background(), []uint64{100, 101, 100, 102})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 resolved timestamps, got %d", len(got))
	}
	if _, ok := got[101]; ok {
		t.Error("failed block 101 must be absent")
	}
	if got[100] != 0x64b8c0f0 {
		t.Errorf("unexpected timestamp: %d", got[100])
	}
}
