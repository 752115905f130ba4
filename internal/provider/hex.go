package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// BlockTag renders a block height as a canonical hex block reference.
func BlockTag(n uint64) string {
	return hexutil.EncodeUint64(n)
}

// parseQuantity accepts canonical hex quantities ("0x1a") and the decimal
// strings some nodes return for net_version-style queries.
func parseQuantity(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if has0xPrefix(s) {
		return hexutil.DecodeUint64(strings.ToLower(s))
	}
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}
	return strconv.ParseUint(s, 10, 64)
}

func parseUint256(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if has0xPrefix(s) {
		digits := strings.TrimLeft(strings.ToLower(s[2:]), "0")
		if digits == "" && len(s) > 2 {
			digits = "0"
		}
		return uint256.FromHex("0x" + digits)
	}
	return uint256.FromDecimal(s)
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

type decoder[T any] func(json.RawMessage) (T, error)

func decodeRaw(raw json.RawMessage) (json.RawMessage, error) {
	return raw, nil
}

// decodeNullable maps a JSON null result to nil, for lookups where null means "not found".
func decodeNullable(raw json.RawMessage) (json.RawMessage, error) {
	if isNull(raw) {
		return nil, nil
	}
	return raw, nil
}

func decodeString(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", protocolError("unexpected null result")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", protocolError("expected string result: %v", err)
	}
	return s, nil
}

// decodeHexData normalises a hex data result to lowercase 0x form.
func decodeHexData(raw json.RawMessage) (string, error) {
	s, err := decodeString(raw)
	if err != nil {
		return "", err
	}
	s = strings.ToLower(s)
	if !has0xPrefix(s) {
		s = "0x" + s
	}
	if _, err := hexutil.Decode(s); err != nil {
		return "", protocolError("invalid hex data %q: %v", s, err)
	}
	return s, nil
}

// decodeUint64 accepts a quantity string or a bare JSON number.
func decodeUint64(raw json.RawMessage) (uint64, error) {
	if isNull(raw) {
		return 0, protocolError("unexpected null result")
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		n, err := strconv.ParseUint(num.String(), 10, 64)
		if err != nil {
			return 0, protocolError("invalid numeric result %s: %v", num, err)
		}
		return n, nil
	}
	s, err := decodeString(raw)
	if err != nil {
		return 0, err
	}
	n, err := parseQuantity(s)
	if err != nil {
		return 0, protocolError("invalid quantity %q: %v", s, err)
	}
	return n, nil
}

func decodeUint256(raw json.RawMessage) (*uint256.Int, error) {
	s, err := decodeString(raw)
	if err != nil {
		return nil, err
	}
	v, err := parseUint256(s)
	if err != nil {
		return nil, protocolError("invalid big quantity %q: %v", s, err)
	}
	return v, nil
}

func decodeBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, protocolError("expected boolean result: %v", err)
	}
	return b, nil
}
