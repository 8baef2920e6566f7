package derive

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// UserDepositSourceDomain is the source-hash domain for user deposits.
const UserDepositSourceDomain = 0

// UserDepositSource identifies a deposit by its L1 origin. The source hash
// binds the derived L2 transaction to the (block hash, log index) pair that
// emitted it.
type UserDepositSource struct {
	L1BlockHash common.Hash
	LogIndex    uint64
}

// SourceHash computes keccak256(domain ++ keccak256(l1BlockHash ++ logIndex)),
// all operands left-padded to 32 bytes big-endian.
func (src UserDepositSource) SourceHash() common.Hash {
	var input [32 * 2]byte
	copy(input[:32], src.L1BlockHash[:])
	binary.BigEndian.PutUint64(input[32*2-8:], src.LogIndex)
	depositIDHash := crypto.Keccak256Hash(input[:])

	var domainInput [32 * 2]byte
	binary.BigEndian.PutUint64(domainInput[32-8:], UserDepositSourceDomain)
	copy(domainInput[32:], depositIDHash[:])
	return crypto.Keccak256Hash(domainInput[:])
}
