package derive

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/vietddude/opwatcher/internal/core/domain"
)

// DepositEventABI is the canonical OptimismPortal deposit event.
const DepositEventABI = "TransactionDeposited(address,address,uint256,bytes)"

var (
	// DepositEventABIHash is topic0 of every TransactionDeposited log.
	DepositEventABIHash = crypto.Keccak256Hash([]byte(DepositEventABI))

	// DepositEventVersion0 is the only opaque-data version understood here.
	DepositEventVersion0 = common.Hash{}

	ErrNotDepositEvent  = errors.New("log is not a TransactionDeposited event")
	ErrMalformedDeposit = errors.New("malformed deposit event")
)

var opaqueDataArgs = abi.Arguments{
	{Name: "opaqueData", Type: mustNewType("bytes")},
}

func mustNewType(t string) abi.Type {
	ty, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return ty
}

// DepositTx is the L2 deposit transaction body. Field order is the RLP
// encoding order; numeric fields encode minimally, so a zero mint or value
// becomes the empty byte string on the wire.
type DepositTx struct {
	SourceHash          common.Hash
	From                common.Address
	To                  common.Address
	Mint                *big.Int
	Value               *big.Int
	Gas                 uint64
	IsSystemTransaction bool
	Data                []byte
}

// Hash returns the L2 transaction hash: keccak256(txType ++ rlp(body)).
func (tx *DepositTx) Hash(txType byte) (common.Hash, error) {
	body, err := rlp.EncodeToBytes(tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("rlp encode deposit: %w", err)
	}
	return crypto.Keccak256Hash(append([]byte{txType}, body...)), nil
}

// UnmarshalDepositLogEvent decodes a TransactionDeposited log into the
// deposit transaction body it derives.
//
// Topics: [event signature, from, to, version]; the address topics carry the
// address in their lower 20 bytes. The data field is a single ABI-encoded
// `bytes` value with the fixed layout
//
//	uint256 mint ++ uint256 value ++ uint64 gas ++ uint8 isCreation ++ bytes data
func UnmarshalDepositLogEvent(l *domain.Log) (*DepositTx, error) {
	if len(l.Topics) != 4 {
		return nil, fmt.Errorf("%w: expected 4 topics, got %d", ErrMalformedDeposit, len(l.Topics))
	}
	if l.Topics[0] != DepositEventABIHash {
		return nil, ErrNotDepositEvent
	}
	if l.Topics[3] != DepositEventVersion0 {
		return nil, fmt.Errorf("%w: unsupported deposit version %s", ErrMalformedDeposit, l.Topics[3])
	}

	from := common.BytesToAddress(l.Topics[1][12:])
	to := common.BytesToAddress(l.Topics[2][12:])

	unpacked, err := opaqueDataArgs.Unpack(l.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack opaque data: %v", ErrMalformedDeposit, err)
	}
	opaque, ok := unpacked[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: opaque data is not bytes", ErrMalformedDeposit)
	}
	if len(opaque) < 73 {
		return nil, fmt.Errorf("%w: opaque data too short (%d bytes)", ErrMalformedDeposit, len(opaque))
	}

	mint := new(big.Int).SetBytes(opaque[0:32])
	value := new(big.Int).SetBytes(opaque[32:64])
	gas := new(big.Int).SetBytes(opaque[64:72])
	if !gas.IsUint64() {
		return nil, fmt.Errorf("%w: gas limit overflows uint64", ErrMalformedDeposit)
	}
	// opaque[72] is the isCreation flag. It is carried by the event but takes
	// no part in the hashed transaction body; the creation address still
	// comes from the to-topic.
	_ = opaque[72]
	data := opaque[73:]

	source := UserDepositSource{L1BlockHash: l.BlockHash, LogIndex: l.Index}

	return &DepositTx{
		SourceHash:          source.SourceHash(),
		From:                from,
		To:                  to,
		Mint:                mint,
		Value:               value,
		Gas:                 gas.Uint64(),
		IsSystemTransaction: false,
		Data:                data,
	}, nil
}

// DepositFromLog derives the persisted deposit record for one log.
func DepositFromLog(l *domain.Log, txType byte) (*domain.Deposit, error) {
	tx, err := UnmarshalDepositLogEvent(l)
	if err != nil {
		return nil, err
	}
	l2Hash, err := tx.Hash(txType)
	if err != nil {
		return nil, err
	}
	return &domain.Deposit{
		L1BlockNumber:       l.BlockNumber,
		L1TransactionHash:   l.TxHash.Hex(),
		L1TransactionOrigin: hexutil.Encode(tx.From[:]),
		L2TransactionHash:   l2Hash.Hex(),
	}, nil
}
