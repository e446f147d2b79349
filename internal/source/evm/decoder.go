package evm

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EventName is the only event the decoder understands.
const EventName = "SafeMultiSigTransaction"

//go:embed safe_abi.json
var safeABIJSON string

// Decoder matches raw logs against the SafeMultiSigTransaction schema.
type Decoder struct {
	abi   abi.ABI
	topic common.Hash
}

// NewDecoder parses the embedded Safe event ABI.
func NewDecoder() (*Decoder, error) {
	a, err := abi.JSON(strings.NewReader(safeABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse safe abi: %w", err)
	}
	ev, ok := a.Events[EventName]
	if !ok {
		return nil, fmt.Errorf("safe abi: event %s missing", EventName)
	}
	return &Decoder{abi: a, topic: ev.ID}, nil
}

// Topic returns the event signature hash (topic0).
func (d *Decoder) Topic() common.Hash { return d.topic }

// Decode unpacks lg when it is a SafeMultiSigTransaction. Logs of any other shape
// report ok=false; they are other events on the same contract, not errors.
func (d *Decoder) Decode(lg types.Log) (SafeTx, bool) {
	if len(lg.Topics) == 0 || lg.Topics[0] != d.topic {
		return SafeTx{}, false
	}
	var tx SafeTx
	if err := d.abi.UnpackIntoInterface(&tx, EventName, lg.Data); err != nil {
		return SafeTx{}, false
	}
	return tx, true
}
