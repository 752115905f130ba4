package provider

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Endpoint is a named RPC backend. Its position in the provider's list is its
// failover priority.
type Endpoint struct {
	Name string
	URL  string
}

// ReadCallData is the target and calldata of an eth_call.
type ReadCallData struct {
	ContractAddress string
	Data            string
}

// FeeData carries a legacy gas price alongside EIP-1559 fee caps, in wei.
type FeeData struct {
	GasPrice             uint64
	MaxFeePerGas         uint64
	MaxPriorityFeePerGas uint64
}

// HeightInfo is one endpoint's answer to eth_blockNumber.
type HeightInfo struct {
	Index   int
	Name    string
	Height  uint64
	Success bool
}

// Result is the value-or-error delivered to an async callback. A failed
// request carries the zero Value and a non-nil Err.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the request produced a value.
func (r Result[T]) OK() bool { return r.Err == nil }

// Callback receives the outcome of an async request on the provider's
// dispatch goroutine, exactly once.
type Callback[T any] func(Result[T])

// LogEntry is a decoded eth_getLogs element. Fields the node omitted are nil.
type LogEntry struct {
	Address          string
	Topics           []string
	Data             string
	BlockNumber      *uint64
	TransactionHash  *string
	TransactionIndex *uint64
	BlockHash        *string
	LogIndex         *uint32
	Removed          bool
}

type rpcLog struct {
	Address          string   `json:"address"`
	Topics           []string `json:"topics"`
	Data             string   `json:"data"`
	BlockNumber      *string  `json:"blockNumber"`
	TransactionHash  *string  `json:"transactionHash"`
	TransactionIndex *string  `json:"transactionIndex"`
	BlockHash        *string  `json:"blockHash"`
	LogIndex         *string  `json:"logIndex"`
	Removed          bool     `json:"removed"`
}

// UnmarshalJSON decodes the node's hex-quantity representation.
func (l *LogEntry) UnmarshalJSON(input []byte) error {
	var dec rpcLog
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	entry := LogEntry{
		Address:         dec.Address,
		Topics:          dec.Topics,
		Data:            dec.Data,
		TransactionHash: dec.TransactionHash,
		BlockHash:       dec.BlockHash,
		Removed:         dec.Removed,
	}
	if dec.BlockNumber != nil {
		n, err := parseQuantity(*dec.BlockNumber)
		if err != nil {
			return fmt.Errorf("blockNumber: %w", err)
		}
		entry.BlockNumber = &n
	}
	if dec.TransactionIndex != nil {
		n, err := parseQuantity(*dec.TransactionIndex)
		if err != nil {
			return fmt.Errorf("transactionIndex: %w", err)
		}
		entry.TransactionIndex = &n
	}
	if dec.LogIndex != nil {
		n, err := parseQuantity(*dec.LogIndex)
		if err != nil {
			return fmt.Errorf("logIndex: %w", err)
		}
		if n > math.MaxUint32 {
			return fmt.Errorf("logIndex %d exceeds uint32", n)
		}
		idx := uint32(n)
		entry.LogIndex = &idx
	}
	*l = entry
	return nil
}

// Receipt is the subset of eth_getTransactionReceipt the provider inspects.
// Quantities are kept in their wire form; Raw holds the full reply.
type Receipt struct {
	TransactionHash   string          `json:"transactionHash"`
	BlockHash         string          `json:"blockHash"`
	BlockNumber       string          `json:"blockNumber"`
	From              string          `json:"from"`
	To                *string         `json:"to"`
	ContractAddress   *string         `json:"contractAddress"`
	Status            string          `json:"status"`
	GasUsed           string          `json:"gasUsed"`
	EffectiveGasPrice string          `json:"effectiveGasPrice"`
	Logs              []LogEntry      `json:"logs"`
	Raw               json.RawMessage `json:"-"`
}

// Succeeded reports whether the receipt status is the canonical "0x1".
func (r *Receipt) Succeeded() bool {
	return strings.EqualFold(r.Status, "0x1")
}

// GasUsedValue decodes the gasUsed quantity.
func (r *Receipt) GasUsedValue() (uint64, error) {
	return parseQuantity(r.GasUsed)
}

// BlockNumberValue decodes the inclusion height.
func (r *Receipt) BlockNumberValue() (uint64, error) {
	return parseQuantity(r.BlockNumber)
}
