package provider

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// LatestBlock is the default block tag.
const LatestBlock = "latest"

func callObject(data ReadCallData) map[string]string {
	return map[string]string{"to": data.ContractAddress, "data": data.Data}
}

func orLatest(tag string) string {
	if tag == "" {
		return LatestBlock
	}
	return tag
}

// CallReadFunctionJSON runs eth_call at blockTag ("" means latest) and
// returns the raw result.
func (p *Provider) CallReadFunctionJSON(ctx context.Context, data ReadCallData, blockTag string) (json.RawMessage, error) {
	return request(ctx, p, "eth_call", []any{callObject(data), orLatest(blockTag)}, decodeRaw)
}

// CallReadFunctionJSONAsync is the async form of CallReadFunctionJSON.
func (p *Provider) CallReadFunctionJSONAsync(data ReadCallData, blockTag string, cb Callback[json.RawMessage]) error {
	return requestAsync(p, "eth_call", []any{callObject(data), orLatest(blockTag)}, decodeRaw, cb)
}

// CallReadFunction runs eth_call and returns the result as lowercase 0x hex.
func (p *Provider) CallReadFunction(ctx context.Context, data ReadCallData, blockTag string) (string, error) {
	return request(ctx, p, "eth_call", []any{callObject(data), orLatest(blockTag)}, decodeHexData)
}

// CallReadFunctionAt runs eth_call against a block height.
func (p *Provider) CallReadFunctionAt(ctx context.Context, data ReadCallData, blockNumber uint64) (string, error) {
	return p.CallReadFunction(ctx, data, BlockTag(blockNumber))
}

// GetTransactionCount returns the account nonce at blockTag.
func (p *Provider) GetTransactionCount(ctx context.Context, address, blockTag string) (uint64, error) {
	return request(ctx, p, "eth_getTransactionCount", []any{address, orLatest(blockTag)}, decodeUint64)
}

func (p *Provider) GetTransactionCountAsync(address, blockTag string, cb Callback[uint64]) error {
	return requestAsync(p, "eth_getTransactionCount", []any{address, orLatest(blockTag)}, decodeUint64, cb)
}

// GetBalance returns the latest balance of address in wei.
func (p *Provider) GetBalance(ctx context.Context, address string) (*uint256.Int, error) {
	return request(ctx, p, "eth_getBalance", []any{address, LatestBlock}, decodeUint256)
}

func (p *Provider) GetBalanceAsync(address string, cb Callback[*uint256.Int]) error {
	return requestAsync(p, "eth_getBalance", []any{address, LatestBlock}, decodeUint256, cb)
}

type accountProof struct {
	StorageHash *common.Hash `json:"storageHash"`
}

func decodeStorageRoot(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", protocolError("unexpected null proof")
	}
	var proof accountProof
	if err := json.Unmarshal(raw, &proof); err != nil {
		return "", protocolError("invalid eth_getProof result: %v", err)
	}
	if proof.StorageHash == nil {
		return "", protocolError("eth_getProof result has no storageHash")
	}
	return proof.StorageHash.Hex(), nil
}

// GetContractStorageRoot returns the storage trie root of address at blockTag.
func (p *Provider) GetContractStorageRoot(ctx context.Context, address, blockTag string) (string, error) {
	return request(ctx, p, "eth_getProof", []any{address, []string{}, orLatest(blockTag)}, decodeStorageRoot)
}

func (p *Provider) GetContractStorageRootAt(ctx context.Context, address string, blockNumber uint64) (string, error) {
	return p.GetContractStorageRoot(ctx, address, BlockTag(blockNumber))
}

func (p *Provider) GetContractStorageRootAsync(address, blockTag string, cb Callback[string]) error {
	return requestAsync(p, "eth_getProof", []any{address, []string{}, orLatest(blockTag)}, decodeStorageRoot, cb)
}
