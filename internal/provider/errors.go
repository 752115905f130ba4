package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrNoEndpoints is returned by every network operation when no endpoint
	// has been added. It is a configuration failure, never retried.
	ErrNoEndpoints = errors.New("no RPC endpoints configured")

	// ErrEmptyURL is returned by AddClient for an empty endpoint URL.
	ErrEmptyURL = errors.New("endpoint URL is empty")

	// ErrInvalidClientOrder is returned by SetClientOrder.
	ErrInvalidClientOrder = errors.New("invalid client order")

	// ErrTransport wraps network, timeout and non-2xx HTTP failures of a single attempt.
	ErrTransport = errors.New("rpc transport failure")

	// ErrProtocol marks malformed replies: invalid JSON, a missing or
	// unexpected result, a mismatched id, or a populated error object.
	ErrProtocol = errors.New("rpc protocol error")

	// ErrAllEndpointsFailed is returned after one full pass over the endpoint
	// list without a usable reply. The per-endpoint causes are joined into it.
	ErrAllEndpointsFailed = errors.New("all RPC endpoints failed")

	// ErrTxWaitTimeout means the polling deadline passed before the node
	// reported the transaction. The transaction may still be pending.
	ErrTxWaitTimeout = errors.New("transaction wait timed out")

	// ErrProviderClosed is returned by async submissions after shutdown.
	ErrProviderClosed = errors.New("provider is shut down")

	// ErrNilCallback is returned by async submissions without a callback.
	ErrNilCallback = errors.New("nil callback")

	// ErrNoContractDeployed is returned when the latest block created no contract.
	ErrNoContractDeployed = errors.New("no contracts deployed in latest block")
)

// RPCError is the error object of a JSON-RPC 2.0 reply.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

// Is lets errors.Is(err, ErrProtocol) match node-reported errors.
func (e *RPCError) Is(target error) bool {
	return target == ErrProtocol
}

func protocolError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}
