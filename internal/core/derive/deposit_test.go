package derive

import (
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/opwatcher/internal/core/domain"
)

// abiBytes wraps raw bytes the way the event data field carries opaqueData:
// a single ABI-encoded `bytes` value (offset word, length word, padded payload).
func abiBytes(b []byte) []byte {
	out := make([]byte, 64)
	out[31] = 0x20
	binary.BigEndian.PutUint64(out[56:64], uint64(len(b)))
	padded := make([]byte, (len(b)+31)/32*32)
	copy(padded, b)
	return append(out, padded...)
}

func opaqueData(mint, value *big.Int, gas uint64, isCreation byte, data []byte) []byte {
	out := make([]byte, 73, 73+len(data))
	mint.FillBytes(out[0:32])
	value.FillBytes(out[32:64])
	binary.BigEndian.PutUint64(out[64:72], gas)
	out[72] = isCreation
	return append(out, data...)
}

func addressTopic(addr common.Address) common.Hash {
	var h common.Hash
	copy(h[12:], addr[:])
	return h
}

func depositLog(from, to common.Address, opaque []byte) *domain.Log {
	return &domain.Log{
		Address: common.HexToAddress("0xbEb5Fc579115071764c7423A4f12eDde41f106Ed"),
		Topics: []common.Hash{
			DepositEventABIHash,
			addressTopic(from),
			addressTopic(to),
			DepositEventVersion0,
		},
		Data:        abiBytes(opaque),
		BlockNumber: 17419590,
		BlockHash:   common.HexToHash("0x2222222222222222222222222222222222222222222222222222222222222222"),
		TxHash:      common.HexToHash("0x3333333333333333333333333333333333333333333333333333333333333333"),
		Index:       7,
	}
}

func TestUnmarshalDepositLogEvent(t *testing.T) {
	from := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	to := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	l := depositLog(from, to, opaqueData(big.NewInt(1), big.NewInt(1), 21000, 0, nil))

	tx, err := UnmarshalDepositLogEvent(l)
	require.NoError(t, err)

	assert.Equal(t, from, tx.From)
	assert.Equal(t, to, tx.To)
	assert.Equal(t, int64(1), tx.Mint.Int64())
	assert.Equal(t, int64(1), tx.Value.Int64())
	assert.Equal(t, uint64(21000), tx.Gas)
	assert.False(t, tx.IsSystemTransaction)
	assert.Empty(t, tx.Data)

	wantSource := UserDepositSource{L1BlockHash: l.BlockHash, LogIndex: l.Index}.SourceHash()
	assert.Equal(t, wantSource, tx.SourceHash)
}

// TestDepositTxHashMinimal pins the full wire layout for a minimal deposit:
// rlp([sourceHash, from, to, 0x01, 0x01, 0x5208, "", ""]) prefixed with the
// 0x7E type byte. The expected encoding is spelled out byte by byte so a
// regression in the RLP field order or in minimal integer encoding fails
// loudly.
func TestDepositTxHashMinimal(t *testing.T) {
	from := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	to := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	l := depositLog(from, to, opaqueData(big.NewInt(1), big.NewInt(1), 21000, 0, nil))

	tx, err := UnmarshalDepositLogEvent(l)
	require.NoError(t, err)

	// payload: 33 (source hash) + 21 (from) + 21 (to) + 1 + 1 + 3 (gas) + 1 + 1 = 82
	raw := []byte{0xf8, 0x52}
	raw = append(raw, 0xa0)
	raw = append(raw, tx.SourceHash[:]...)
	raw = append(raw, 0x94)
	raw = append(raw, from[:]...)
	raw = append(raw, 0x94)
	raw = append(raw, to[:]...)
	raw = append(raw, 0x01)             // mint
	raw = append(raw, 0x01)             // value
	raw = append(raw, 0x82, 0x52, 0x08) // gas 21000
	raw = append(raw, 0x80)             // is-system byte, minimally encoded
	raw = append(raw, 0x80)             // empty data

	want := crypto.Keccak256Hash(append([]byte{0x7e}, raw...))

	got, err := tx.Hash(0x7e)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// Zero mint, value and gas must all encode to the empty byte string.
func TestDepositTxHashZeroFields(t *testing.T) {
	from := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	to := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	l := depositLog(from, to, opaqueData(big.NewInt(0), big.NewInt(0), 0, 0, []byte{0xde, 0xad}))

	tx, err := UnmarshalDepositLogEvent(l)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad}, tx.Data)

	// payload: 33 + 21 + 21 + 1 + 1 + 1 + 1 + 3 = 82; 0x80 for mint, value,
	// gas and is-system; 0x82 0xde 0xad for data.
	raw := []byte{0xf8, 0x52}
	raw = append(raw, 0xa0)
	raw = append(raw, tx.SourceHash[:]...)
	raw = append(raw, 0x94)
	raw = append(raw, from[:]...)
	raw = append(raw, 0x94)
	raw = append(raw, to[:]...)
	raw = append(raw, 0x80, 0x80, 0x80, 0x80)
	raw = append(raw, 0x82, 0xde, 0xad)

	want := crypto.Keccak256Hash(append([]byte{0x7e}, raw...))

	got, err := tx.Hash(0x7e)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDepositTxHashTypeByte(t *testing.T) {
	from := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	to := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	l := depositLog(from, to, opaqueData(big.NewInt(1), big.NewInt(1), 21000, 0, nil))

	tx, err := UnmarshalDepositLogEvent(l)
	require.NoError(t, err)

	h1, err := tx.Hash(0x7e)
	require.NoError(t, err)
	h2, err := tx.Hash(0x7f)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2, "type byte must be part of the hash preimage")
}

func TestDepositFromLog(t *testing.T) {
	from := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	to := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	l := depositLog(from, to, opaqueData(big.NewInt(1), big.NewInt(1), 21000, 0, nil))

	dep, err := DepositFromLog(l, 0x7e)
	require.NoError(t, err)

	assert.Equal(t, uint64(17419590), dep.L1BlockNumber)
	assert.Equal(t, l.TxHash.Hex(), dep.L1TransactionHash)
	assert.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", dep.L1TransactionOrigin)
	assert.Nil(t, dep.L1BlockTimestamp)

	// Pure function: re-deriving the same log yields the same record.
	again, err := DepositFromLog(l, 0x7e)
	require.NoError(t, err)
	assert.Equal(t, dep, again)
}

func TestUnmarshalDepositLogEventErrors(t *testing.T) {
	from := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	to := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	t.Run("wrong topic count", func(t *testing.T) {
		l := depositLog(from, to, opaqueData(big.NewInt(0), big.NewInt(0), 0, 0, nil))
		l.Topics = l.Topics[:3]
		_, err := UnmarshalDepositLogEvent(l)
		assert.ErrorIs(t, err, ErrMalformedDeposit)
	})

	t.Run("wrong signature", func(t *testing.T) {
		l := depositLog(from, to, opaqueData(big.NewInt(0), big.NewInt(0), 0, 0, nil))
		l.Topics[0] = common.Hash{0x01}
		_, err := UnmarshalDepositLogEvent(l)
		assert.ErrorIs(t, err, ErrNotDepositEvent)
	})

	t.Run("unsupported version", func(t *testing.T) {
		l := depositLog(from, to, opaqueData(big.NewInt(0), big.NewInt(0), 0, 0, nil))
		l.Topics[3] = common.Hash{0x01}
		_, err := UnmarshalDepositLogEvent(l)
		assert.ErrorIs(t, err, ErrMalformedDeposit)
	})

	t.Run("short opaque data", func(t *testing.T) {
		l := depositLog(from, to, make([]byte, 72))
		_, err := UnmarshalDepositLogEvent(l)
		assert.ErrorIs(t, err, ErrMalformedDeposit)
	})

	t.Run("garbage data field", func(t *testing.T) {
		l := depositLog(from, to, nil)
		l.Data = []byte{0x01, 0x02}
		_, err := UnmarshalDepositLogEvent(l)
		assert.ErrorIs(t, err, ErrMalformedDeposit)
	})
}
