package provider

import (
	"context"
	"encoding/json"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func TestCallReadFunction(t *testing.T) {
	n := newFakeNode(t).result("eth_call", "0xABCDEF")
	p := newTestProvider(t, n)
	data := ReadCallData{ContractAddress: testAddress, Data: "0x70a08231"}

	out, err := p.CallReadFunction(context.Background(), data, "")
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef", out)

	_, err = p.CallReadFunctionAt(context.Background(), data, 16)
	require.NoError(t, err)

	calls := n.Calls()
	require.Len(t, calls, 2)
	var obj map[string]string
	require.NoError(t, json.Unmarshal(calls[0].Params[0], &obj))
	assert.Equal(t, testAddress, obj["to"])
	assert.Equal(t, "0x70a08231", obj["data"])
	assert.Equal(t, "latest", paramString(t, calls[0].Params[1]))
	assert.Equal(t, "0x10", paramString(t, calls[1].Params[1]))

	raw, err := p.CallReadFunctionJSON(context.Background(), data, "pending")
	require.NoError(t, err)
	assert.JSONEq(t, `"0xABCDEF"`, string(raw))

	got := make(chan Result[json.RawMessage], 1)
	require.NoError(t, p.CallReadFunctionJSONAsync(data, "", func(r Result[json.RawMessage]) { got <- r }))
	assert.JSONEq(t, `"0xABCDEF"`, string((<-got).Value))
}

func TestCallReadFunction_InvalidHex(t *testing.T) {
	n := newFakeNode(t).result("eth_call", "0xzz")
	p := newTestProvider(t, n)

	_, err := p.CallReadFunction(context.Background(), ReadCallData{ContractAddress: testAddress}, "")
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestGetTransactionCount(t *testing.T) {
	n := newFakeNode(t).result("eth_getTransactionCount", "0x1f")
	p := newTestProvider(t, n)

	nonce, err := p.GetTransactionCount(context.Background(), testAddress, "pending")
	require.NoError(t, err)
	assert.Equal(t, uint64(31), nonce)
	assert.Equal(t, "pending", paramString(t, n.Calls()[0].Params[1]))

	got := make(chan Result[uint64], 1)
	require.NoError(t, p.GetTransactionCountAsync(testAddress, "", func(r Result[uint64]) { got <- r }))
	assert.Equal(t, uint64(31), (<-got).Value)
}

func TestGetNetworkChainId(t *testing.T) {
	tests := []struct {
		name    string
		result  any
		want    uint32
		wantErr bool
	}{
		{"hex", "0xaa36a7", 11155111, false},
		{"decimal string", "421614", 421614, false},
		{"json number", 31337, 31337, false},
		{"max uint32", "0xffffffff", 4294967295, false},
		{"overflow", "0x100000000", 0, true},
		{"garbage", "0xnope", 0, true},
		{"null", nil, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newFakeNode(t).result("eth_chainId", tt.result)
			p := newTestProvider(t, n)

			id, err := p.GetNetworkChainId(context.Background())
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrProtocol)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestGetBalance(t *testing.T) {
	n := newFakeNode(t).result("eth_getBalance", "0x1bc16d674ec80000")
	p := newTestProvider(t, n)

	bal, err := p.GetBalance(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, "2000000000000000000", bal.Dec())

	got := make(chan Result[*uint256.Int], 1)
	require.NoError(t, p.GetBalanceAsync(testAddress, func(r Result[*uint256.Int]) { got <- r }))
	assert.Equal(t, "2000000000000000000", (<-got).Value.Dec())
}

func TestGetContractStorageRoot(t *testing.T) {
	root := "0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421"
	n := newFakeNode(t).result("eth_getProof", map[string]any{
		"address":      testAddress,
		"storageHash":  root,
		"storageProof": []any{},
	})
	p := newTestProvider(t, n)

	got, err := p.GetContractStorageRootAt(context.Background(), testAddress, 255)
	require.NoError(t, err)
	assert.Equal(t, root, got)

	params := n.Calls()[0].Params
	require.Len(t, params, 3)
	assert.JSONEq(t, `[]`, string(params[1]))
	assert.Equal(t, "0xff", paramString(t, params[2]))

	missing := newFakeNode(t).result("eth_getProof", map[string]any{"address": testAddress})
	p = newTestProvider(t, missing)
	_, err = p.GetContractStorageRoot(context.Background(), testAddress, "")
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestGetAllHeights_NoFailover(t *testing.T) {
	a := newFakeNode(t).result("eth_blockNumber", "0x64")
	b := newFakeNode(t).failWith(500)
	c := newFakeNode(t).result("eth_blockNumber", "0x62")
	p := newTestProvider(t, a, b, c)

	heights, err := p.GetAllHeights(context.Background())
	require.NoError(t, err)
	require.Len(t, heights, 3)
	assert.Equal(t, HeightInfo{Index: 0, Name: "a", Height: 100, Success: true}, heights[0])
	assert.Equal(t, HeightInfo{Index: 1, Name: "b"}, heights[1])
	assert.Equal(t, HeightInfo{Index: 2, Name: "c", Height: 98, Success: true}, heights[2])

	for _, n := range []*fakeNode{a, b, c} {
		assert.Len(t, n.Calls(), 1)
	}
}

func TestEvmHelpers(t *testing.T) {
	var mined atomic.Int32
	n := newFakeNode(t).
		result("evm_snapshot", "0x3").
		result("evm_revert", true).
		result("evm_increaseTime", 3600).
		on("evm_mine", func(context.Context, []json.RawMessage) (any, *RPCError) {
			mined.Add(1)
			return "0x0", nil
		})
	p := newTestProvider(t, n)
	ctx := context.Background()

	id, err := p.EvmSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0x3", id)

	ok, err := p.EvmRevert(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	offset, err := p.EvmIncreaseTime(ctx, 3600)
	require.NoError(t, err)
	assert.Equal(t, uint64(3600), offset)
	assert.Equal(t, int32(1), mined.Load())

	calls := n.Calls()
	assert.Equal(t, "0x3", paramString(t, calls[1].Params[0]))
	assert.JSONEq(t, `3600`, string(calls[2].Params[0]))
	assert.Equal(t, "evm_mine", calls[3].Method)

	got := make(chan Result[string], 1)
	require.NoError(t, p.EvmSnapshotAsync(func(r Result[string]) { got <- r }))
	assert.Equal(t, "0x3", (<-got).Value)
}

func TestEvmSnapshot_OpaqueIDs(t *testing.T) {
	for _, snapshot := range []string{"0x01", "snap-abc", "12"} {
		t.Run(snapshot, func(t *testing.T) {
			n := newFakeNode(t).
				result("evm_snapshot", snapshot).
				result("evm_revert", true)
			p := newTestProvider(t, n)
			ctx := context.Background()

			id, err := p.EvmSnapshot(ctx)
			require.NoError(t, err)
			assert.Equal(t, snapshot, id)

			ok, err := p.EvmRevert(ctx, id)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, snapshot, paramString(t, n.Calls()[1].Params[0]))
		})
	}
}

func receiptJSON(status, gasUsed string) map[string]any {
	return map[string]any{
		"transactionHash":   "0x01",
		"blockHash":         "0x02",
		"blockNumber":       "0x10",
		"from":              testAddress,
		"to":                nil,
		"contractAddress":   nil,
		"status":            status,
		"gasUsed":           gasUsed,
		"effectiveGasPrice": "0x3b9aca00",
		"logs":              []any{},
	}
}

func TestGetTransactionReceipt(t *testing.T) {
	pending := newFakeNode(t).result("eth_getTransactionReceipt", nil)
	p := newTestProvider(t, pending)
	r, err := p.GetTransactionReceipt(context.Background(), "0x01")
	require.NoError(t, err)
	assert.Nil(t, r)

	mined := newFakeNode(t).result("eth_getTransactionReceipt", receiptJSON("0x1", "0x5208"))
	p = newTestProvider(t, mined)
	r, err = p.GetTransactionReceipt(context.Background(), "0x01")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.True(t, r.Succeeded())
	bn, err := r.BlockNumberValue()
	require.NoError(t, err)
	assert.Equal(t, uint64(16), bn)
	assert.NotEmpty(t, r.Raw)

	got := make(chan Result[*Receipt], 1)
	require.NoError(t, p.GetTransactionReceiptAsync("0x01", func(r Result[*Receipt]) { got <- r }))
	assert.Equal(t, "0x5208", (<-got).Value.GasUsed)
}

func TestGetTransactionByHash(t *testing.T) {
	n := newFakeNode(t).result("eth_getTransactionByHash", nil)
	p := newTestProvider(t, n)
	tx, err := p.GetTransactionByHash(context.Background(), "0x01")
	require.NoError(t, err)
	assert.Nil(t, tx)

	n.result("eth_getTransactionByHash", map[string]any{"hash": "0x01"})
	got := make(chan Result[json.RawMessage], 1)
	require.NoError(t, p.GetTransactionByHashAsync("0x01", func(r Result[json.RawMessage]) { got <- r }))
	assert.JSONEq(t, `{"hash":"0x01"}`, string((<-got).Value))
}

// receiptAfter serves null receipts until d has elapsed since the first poll.
func receiptAfter(d time.Duration, receipt any) handlerFunc {
	var first atomic.Int64
	return func(context.Context, []json.RawMessage) (any, *RPCError) {
		now := time.Now().UnixNano()
		first.CompareAndSwap(0, now)
		if time.Duration(now-first.Load()) < d {
			return nil, nil
		}
		return receipt, nil
	}
}

func TestWaitForTransaction(t *testing.T) {
	t.Run("included before deadline", func(t *testing.T) {
		n := newFakeNode(t).on("eth_getTransactionReceipt", receiptAfter(time.Second, receiptJSON("0x1", "0x5208")))
		p := newTestProvider(t, n)

		r, err := p.WaitForTransaction(context.Background(), "0x01", 5*time.Second)
		require.NoError(t, err)
		assert.True(t, r.Succeeded())
		assert.Greater(t, n.CallCount("eth_getTransactionReceipt"), 1)
	})

	t.Run("deadline", func(t *testing.T) {
		n := newFakeNode(t).result("eth_getTransactionReceipt", nil)
		p := newTestProvider(t, n)
		timeouts := testutil.ToFloat64(GetMetrics().TxWaitTimeouts)

		start := time.Now()
		_, err := p.WaitForTransaction(context.Background(), "0x01", time.Second)
		assert.ErrorIs(t, err, ErrTxWaitTimeout)
		assert.NotErrorIs(t, err, ErrAllEndpointsFailed)
		assert.GreaterOrEqual(t, time.Since(start), time.Second)
		assert.Less(t, time.Since(start), 3*time.Second)
		assert.Equal(t, timeouts+1, testutil.ToFloat64(GetMetrics().TxWaitTimeouts))
	})

	t.Run("failing endpoints until deadline", func(t *testing.T) {
		n := newFakeNode(t).failWith(500)
		p := newTestProvider(t, n)

		_, err := p.WaitForTransaction(context.Background(), "0x01", 200*time.Millisecond)
		assert.ErrorIs(t, err, ErrTxWaitTimeout)
		assert.ErrorIs(t, err, ErrAllEndpointsFailed, "last poll failure is kept")
	})

	t.Run("no endpoints", func(t *testing.T) {
		p := New(WithLogger(testLogger()))
		defer p.Close()

		start := time.Now()
		_, err := p.WaitForTransaction(context.Background(), "0x01", 5*time.Second)
		assert.ErrorIs(t, err, ErrNoEndpoints)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("caller cancels", func(t *testing.T) {
		n := newFakeNode(t).result("eth_getTransactionReceipt", nil)
		p := newTestProvider(t, n)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_, err := p.WaitForTransaction(ctx, "0x01", 5*time.Second)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, ErrTxWaitTimeout)
	})
}

func TestTransactionSuccessfulAndGasUsed(t *testing.T) {
	ok := newFakeNode(t).result("eth_getTransactionReceipt", receiptJSON("0x1", "0x5208"))
	p := newTestProvider(t, ok)
	success, err := p.TransactionSuccessful(context.Background(), "0x01", time.Second)
	require.NoError(t, err)
	assert.True(t, success)

	gas, err := p.GasUsed(context.Background(), "0x01", time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(21000), gas)

	reverted := newFakeNode(t).result("eth_getTransactionReceipt", receiptJSON("0x0", "0x7a120"))
	p = newTestProvider(t, reverted)
	success, err = p.TransactionSuccessful(context.Background(), "0x01", time.Second)
	require.NoError(t, err)
	assert.False(t, success)
}

func signedTestTx(t *testing.T, nonce uint64) *types.Transaction {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	to := common.HexToAddress(testAddress)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(31337),
		Nonce:     nonce,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: big.NewInt(2_000_000_000),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1_000),
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(31337)), key)
	require.NoError(t, err)
	return signed
}

func TestSendTransaction(t *testing.T) {
	tx := signedTestTx(t, 7)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	var lookups atomic.Int32
	n := newFakeNode(t).
		on("eth_sendRawTransaction", func(_ context.Context, params []json.RawMessage) (any, *RPCError) {
			var s string
			if err := json.Unmarshal(params[0], &s); err != nil || s != hexutil.Encode(raw) {
				return nil, &RPCError{Code: -32602, Message: "bad raw tx"}
			}
			return tx.Hash().Hex(), nil
		}).
		on("eth_getTransactionByHash", func(context.Context, []json.RawMessage) (any, *RPCError) {
			if lookups.Add(1) < 3 {
				return nil, nil
			}
			return map[string]any{"hash": tx.Hash().Hex()}, nil
		})
	p := newTestProvider(t, n)

	hash, err := p.SendTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash().Hex(), hash)
	assert.Equal(t, int32(3), lookups.Load())
}

func TestSendTransaction_NotInMempool(t *testing.T) {
	tx := signedTestTx(t, 0)
	n := newFakeNode(t).
		result("eth_sendRawTransaction", tx.Hash().Hex()).
		result("eth_getTransactionByHash", nil)
	p := newTestProvider(t, n)
	p.mempoolTimeout = 200 * time.Millisecond

	_, err := p.SendTransaction(context.Background(), tx)
	assert.ErrorIs(t, err, ErrTxWaitTimeout)
	assert.Contains(t, err.Error(), tx.Hash().Hex())
}

func TestSendUncheckedTransaction(t *testing.T) {
	tx := signedTestTx(t, 1)
	n := newFakeNode(t).result("eth_sendRawTransaction", tx.Hash().Hex())
	p := newTestProvider(t, n)

	hash, err := p.SendUncheckedTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash().Hex(), hash)
	assert.Zero(t, n.CallCount("eth_getTransactionByHash"))

	got := make(chan Result[string], 1)
	require.NoError(t, p.SendUncheckedTransactionAsync(tx, func(r Result[string]) { got <- r }))
	assert.Equal(t, tx.Hash().Hex(), (<-got).Value)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	hash, err = p.SendRawTransaction(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash().Hex(), hash)
}

func TestGetContractDeployedInLatestBlock(t *testing.T) {
	deployed := "0x9fe46736679d2d9a65f0992f2272de9f3c7fa6e0"
	n := newFakeNode(t).
		result("eth_getBlockByNumber", map[string]any{
			"number":       "0x5",
			"transactions": []any{map[string]any{"hash": "0xaa"}, map[string]any{"hash": "0xbb"}},
		}).
		on("eth_getTransactionReceipt", func(_ context.Context, params []json.RawMessage) (any, *RPCError) {
			var hash string
			_ = json.Unmarshal(params[0], &hash)
			r := receiptJSON("0x1", "0x5208")
			if hash == "0xbb" {
				r["contractAddress"] = deployed
			}
			return r, nil
		})
	p := newTestProvider(t, n)

	addr, err := p.GetContractDeployedInLatestBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, deployed, addr)

	empty := newFakeNode(t).result("eth_getBlockByNumber", map[string]any{"transactions": []any{}})
	p = newTestProvider(t, empty)
	_, err = p.GetContractDeployedInLatestBlock(context.Background())
	assert.ErrorIs(t, err, ErrNoContractDeployed)
}

func TestGetLogs(t *testing.T) {
	logs := []any{map[string]any{
		"address":          testAddress,
		"topics":           []string{"0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"},
		"data":             "0x01",
		"blockNumber":      "0x5",
		"transactionHash":  "0xaa",
		"transactionIndex": "0x0",
		"blockHash":        "0xbb",
		"logIndex":         "0x2",
		"removed":          false,
	}}
	n := newFakeNode(t).result("eth_getLogs", logs)
	p := newTestProvider(t, n)

	got, err := p.GetLogs(context.Background(), 5, 5, testAddress)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, testAddress, got[0].Address)
	require.NotNil(t, got[0].BlockNumber)
	assert.Equal(t, uint64(5), *got[0].BlockNumber)
	require.NotNil(t, got[0].LogIndex)
	assert.Equal(t, uint32(2), *got[0].LogIndex)

	at, err := p.GetLogsAt(context.Background(), 5, testAddress)
	require.NoError(t, err)
	assert.Equal(t, got, at)

	calls := n.Calls()
	assert.JSONEq(t, string(calls[0].Params[0]), string(calls[1].Params[0]))
	assert.JSONEq(t, `{"fromBlock":"0x5","toBlock":"0x5","address":"`+testAddress+`"}`, string(calls[0].Params[0]))

	done := make(chan Result[[]LogEntry], 1)
	require.NoError(t, p.GetLogsAtAsync(5, testAddress, func(r Result[[]LogEntry]) { done <- r }))
	assert.Equal(t, got, (<-done).Value)
}

func TestGetLogs_OptionalFieldsAndRange(t *testing.T) {
	n := newFakeNode(t).result("eth_getLogs", []any{
		map[string]any{"address": testAddress, "topics": []string{}, "data": "0x"},
	})
	p := newTestProvider(t, n)
	got, err := p.GetLogs(context.Background(), 0, 10, testAddress)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].BlockNumber)
	assert.Nil(t, got[0].LogIndex)
	assert.Nil(t, got[0].TransactionHash)

	bad := newFakeNode(t).result("eth_getLogs", []any{
		map[string]any{"address": testAddress, "logIndex": "0x100000000"},
	})
	p = newTestProvider(t, bad)
	_, err = p.GetLogs(context.Background(), 0, 10, testAddress)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestGetFeeData(t *testing.T) {
	tests := []struct {
		name     string
		block    map[string]any
		priority any // nil means unsupported
		want     FeeData
	}{
		{
			name:     "london",
			block:    map[string]any{"baseFeePerGas": "0x64"},
			priority: "0x2",
			want:     FeeData{GasPrice: 3, MaxFeePerGas: 202, MaxPriorityFeePerGas: 2},
		},
		{
			name:  "priority unsupported",
			block: map[string]any{"baseFeePerGas": "0x64"},
			want:  FeeData{GasPrice: 3, MaxFeePerGas: 200 + DefaultPriorityFee, MaxPriorityFeePerGas: DefaultPriorityFee},
		},
		{
			name:     "pre-london",
			block:    map[string]any{"number": "0x1"},
			priority: "0x2",
			want:     FeeData{GasPrice: 3, MaxFeePerGas: 5, MaxPriorityFeePerGas: 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newFakeNode(t).
				result("eth_gasPrice", "0x3").
				result("eth_getBlockByNumber", tt.block)
			if tt.priority != nil {
				n.result("eth_maxPriorityFeePerGas", tt.priority)
			}
			p := newTestProvider(t, n)

			fees, err := p.GetFeeData(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, fees)
		})
	}
}

func TestGetFeeData_Overflow(t *testing.T) {
	n := newFakeNode(t).
		result("eth_gasPrice", "0x3").
		result("eth_getBlockByNumber", map[string]any{"baseFeePerGas": "0xffffffffffffffff"}).
		result("eth_maxPriorityFeePerGas", "0x1")
	p := newTestProvider(t, n)

	_, err := p.GetFeeData(context.Background())
	assert.ErrorContains(t, err, "overflows")
}
