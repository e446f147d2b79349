package evm

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidAddress marks a watched contract entry that is not a valid address.
	ErrInvalidAddress = errors.New("invalid contract address")
	// ErrRetrieval wraps any failure fetching logs from an endpoint.
	ErrRetrieval = errors.New("log retrieval failed")
)

// WatchedContract is a Safe address plus an optional display alias.
type WatchedContract struct {
	Address common.Address
	Alias   string
}

// ParseContract validates a raw address. Mixed-case input must carry a valid EIP-55 checksum.
func ParseContract(addr, alias string) (WatchedContract, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return WatchedContract{}, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	parsed := common.HexToAddress(addr)
	hexPart := strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X")
	if hexPart != strings.ToLower(hexPart) && hexPart != strings.ToUpper(hexPart) && parsed.Hex() != "0x"+hexPart {
		return WatchedContract{}, fmt.Errorf("%w: bad checksum %q", ErrInvalidAddress, addr)
	}
	return WatchedContract{Address: parsed, Alias: strings.TrimSpace(alias)}, nil
}

// Label is the alias when configured, else the checksummed address.
func (c WatchedContract) Label() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Address.Hex()
}

// SafeTx holds the decoded SafeMultiSigTransaction fields.
type SafeTx struct {
	To             common.Address
	Value          *big.Int
	Data           []byte
	Operation      uint8
	SafeTxGas      *big.Int
	BaseGas        *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Signatures     []byte
	AdditionalInfo []byte
}

// DecodedEvent is a SafeMultiSigTransaction log found on a watched contract.
type DecodedEvent struct {
	Contract    WatchedContract
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
	Tx          SafeTx
}
