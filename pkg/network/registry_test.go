package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameFor(t *testing.T) {
	tests := []struct {
		chainID  string
		expected string
	}{
		{"0x1", "Ethereum Mainnet"},
		{"0xaa36a7", "Sepolia Testnet"},
		{"0xAA36A7", "Sepolia Testnet"},
		{"0xa4b1", "Arbitrum One"},
		{"0x999", "Network 0x999"},
		{"", "Network "},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NameFor(tt.chainID), tt.chainID)
	}
}

func TestRegisterCustomNetwork(t *testing.T) {
	r := NewRegistry()
	r.Register(Info{ChainID: "0x2105", Name: "Base", ExplorerURL: "https://basescan.org/"})

	assert.Equal(t, "Base", r.NameFor("0x2105"))
	assert.Equal(t, "https://basescan.org/tx/0xabc", r.ExplorerTxURL("Base", "0xabc"))
	// The package-level table is untouched.
	assert.Equal(t, "Network 0x2105", NameFor("0x2105"))
}

func TestExplorerTxURL(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, "https://polygonscan.com/tx/0x1", r.ExplorerTxURL("Polygon Mainnet", "0x1"))
	assert.Equal(t, "https://etherscan.io/tx/0x1", r.ExplorerTxURL("Goerli Testnet", "0x1"))
	assert.Equal(t, "https://etherscan.io/tx/0x1", r.ExplorerTxURL("Network 0x999", "0x1"))
}
