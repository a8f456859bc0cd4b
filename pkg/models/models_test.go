package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidAddress(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"0x1111111111111111111111111111111111111111", true},
		{"0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B", true},
		{"0x" + strings.Repeat("Z", 40), false},
		{"1111111111111111111111111111111111111111", false},
		{"0x111", false},
		{"", false},
		{"0X1111111111111111111111111111111111111111", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ValidAddress(tt.input), tt.input)
	}
}

func TestEmptySession(t *testing.T) {
	s := EmptySession()
	assert.False(t, s.Connected)
	assert.Empty(t, s.Address)
	assert.Equal(t, UnknownBalance, s.Balance)
}

func TestReceiveURI(t *testing.T) {
	addr := "0x1111111111111111111111111111111111111111"
	assert.Equal(t, "ethereum:"+addr, ReceiveURI(addr))
}
