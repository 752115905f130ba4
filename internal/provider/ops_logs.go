package provider

import (
	"context"
	"encoding/json"
)

type logFilter struct {
	FromBlock string `json:"fromBlock"`
	ToBlock   string `json:"toBlock"`
	Address   string `json:"address"`
}

func decodeLogs(raw json.RawMessage) ([]LogEntry, error) {
	if isNull(raw) {
		return nil, protocolError("unexpected null logs")
	}
	var logs []LogEntry
	if err := json.Unmarshal(raw, &logs); err != nil {
		return nil, protocolError("invalid logs: %v", err)
	}
	return logs, nil
}

func logsParams(from, to uint64, address string) []any {
	return []any{logFilter{FromBlock: BlockTag(from), ToBlock: BlockTag(to), Address: address}}
}

// GetLogs returns the logs emitted by address in blocks [from, to].
func (p *Provider) GetLogs(ctx context.Context, from, to uint64, address string) ([]LogEntry, error) {
	return request(ctx, p, "eth_getLogs", logsParams(from, to, address), decodeLogs)
}

func (p *Provider) GetLogsAsync(from, to uint64, address string, cb Callback[[]LogEntry]) error {
	return requestAsync(p, "eth_getLogs", logsParams(from, to, address), decodeLogs, cb)
}

// GetLogsAt is GetLogs over the single block height.
func (p *Provider) GetLogsAt(ctx context.Context, height uint64, address string) ([]LogEntry, error) {
	return p.GetLogs(ctx, height, height, address)
}

func (p *Provider) GetLogsAtAsync(height uint64, address string, cb Callback[[]LogEntry]) error {
	return p.GetLogsAsync(height, height, address, cb)
}
