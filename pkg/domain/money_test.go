package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyBps(t *testing.T) {
	ether := func(s string) *big.Int {
		v, err := ParseEther(s)
		require.NoError(t, err)
		return v
	}

	t.Run("250 bps of one ether is 0.025 ether", func(t *testing.T) {
		assert.Equal(t, ether("0.025"), ApplyBps(ether("1"), 250))
	})

	t.Run("seller share after 250 bps fee is 0.975 ether", func(t *testing.T) {
		price := ether("1")
		fee := ApplyBps(price, 250)
		assert.Equal(t, ether("0.975"), new(big.Int).Sub(price, fee))
	})

	t.Run("division truncates toward zero", func(t *testing.T) {
		// 1 wei at 9999 bps truncates to 0. Compare via String: DeepEqual
		// distinguishes big.Int zero values with nil vs empty abs slices.
		assert.Equal(t, "0", ApplyBps(big.NewInt(1), 9999).String())
		// 10001 wei at 1 bps is 1 wei, remainder dropped.
		assert.Equal(t, big.NewInt(1), ApplyBps(big.NewInt(10001), 1))
	})

	t.Run("full bps returns the amount", func(t *testing.T) {
		assert.Equal(t, big.NewInt(12345), ApplyBps(big.NewInt(12345), MaxBps))
	})
}

func TestParseEther(t *testing.T) {
	t.Run("converts decimal ETH to wei", func(t *testing.T) {
		wei, err := ParseEther("0.05")
		require.NoError(t, err)
		expected, ok := new(big.Int).SetString("50000000000000000", 10)
		require.True(t, ok)
		assert.Equal(t, expected, wei)
	})

	t.Run("rejects negative amounts", func(t *testing.T) {
		_, err := ParseEther("-1")
		assert.Error(t, err)
	})

	t.Run("rejects sub-wei precision", func(t *testing.T) {
		_, err := ParseEther("0.0000000000000000001")
		assert.Error(t, err)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := ParseEther("one ether")
		assert.Error(t, err)
	})
}

func TestParseWei(t *testing.T) {
	t.Run("parses decimal wei strings", func(t *testing.T) {
		v, err := ParseWei("1000000000000000000")
		require.NoError(t, err)
		assert.Equal(t, "1000000000000000000", v.String())
	})

	t.Run("rejects empty, negative, and non-numeric input", func(t *testing.T) {
		for _, raw := range []string{"", "-5", "0x10", "ten"} {
			_, err := ParseWei(raw)
			assert.Error(t, err, raw)
		}
	})
}
