package domain

import "github.com/ethereum/go-ethereum/common"

// Log is an L1 event log as returned by eth_getLogs / eth_getFilterChanges.
// Removed is only ever true on filter-based polling, when the block the log
// belonged to was reorged out.
type Log struct {
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	BlockNumber uint64
	BlockHash   common.Hash
	TxHash      common.Hash
	Index       uint64
	Removed     bool
}
