package models

import (
	"database/sql"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint256_Value(t *testing.T) {
	v, err := NewUint256(1000).Value()
	require.NoError(t, err)
	assert.Equal(t, "1000", v)

	v, err = Uint256{}.Value()
	require.NoError(t, err)
	assert.Equal(t, "0", v)
}

func TestUint256_Scan(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    string
		wantErr bool
	}{
		{"bytes", []byte("115792089237316195423570985008687907853269984665640564039457584007913129639935"), "115792089237316195423570985008687907853269984665640564039457584007913129639935", false},
		{"string", "42", "42", false},
		{"scientific", "1e18", "1000000000000000000", false},
		{"nil", nil, "0", false},
		{"fraction", "1.5e0", "", true},
		{"negative", "-1", "", true},
		{"unsupported", 3.14, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u Uint256
			err := u.Scan(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.String())
		})
	}
}

func TestNewUint256FromString(t *testing.T) {
	u, ok := NewUint256FromString("123456789012345678901234567890")
	require.True(t, ok)
	assert.Equal(t, "123456789012345678901234567890", u.String())

	_, ok = NewUint256FromString("0x10")
	assert.False(t, ok)
}

func TestUint256FromInt(t *testing.T) {
	assert.Equal(t, "0", Uint256FromInt(nil).String())
	assert.Equal(t, "7", Uint256FromInt(uint256.NewInt(7)).String())
}

func TestJournalTx_Succeeded(t *testing.T) {
	tx := JournalTx{}
	assert.False(t, tx.Succeeded())
	tx.Status = sql.NullString{String: "0x1", Valid: true}
	assert.True(t, tx.Succeeded())
	tx.Status.String = "0x0"
	assert.False(t, tx.Succeeded())
}
