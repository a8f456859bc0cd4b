package network

import (
	"strings"
	"sync"
)

const defaultExplorer = "https://etherscan.io"

// Info describes a known chain.
type Info struct {
	ChainID     string
	Name        string
	ExplorerURL string
}

var builtin = []Info{
	{"0x1", "Ethereum Mainnet", "https://etherscan.io"},
	{"0x3", "Ropsten Testnet", ""},
	{"0x4", "Rinkeby Testnet", ""},
	{"0x5", "Goerli Testnet", ""},
	{"0xaa36a7", "Sepolia Testnet", ""},
	{"0x89", "Polygon Mainnet", "https://polygonscan.com"},
	{"0x13881", "Polygon Mumbai", ""},
	{"0xa", "Optimism", "https://optimistic.etherscan.io"},
	{"0xa4b1", "Arbitrum One", "https://arbiscan.io"},
	{"0x38", "BSC Mainnet", "https://bscscan.com"},
	{"0x61", "BSC Testnet", ""},
}

// Registry maps chain identifiers to display names and block explorers.
// The zero value is not usable; call NewRegistry.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]Info
	byName map[string]Info
}

// NewRegistry returns a registry seeded with the built-in networks.
func NewRegistry() *Registry {
	r := &Registry{
		byID:   make(map[string]Info),
		byName: make(map[string]Info),
	}
	for _, n := range builtin {
		r.Register(n)
	}
	return r
}

// Register adds or replaces a network entry.
func (r *Registry) Register(n Info) {
	n.ChainID = normalize(n.ChainID)
	n.ExplorerURL = strings.TrimRight(n.ExplorerURL, "/")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[n.ChainID] = n
	r.byName[n.Name] = n
}

// NameFor never fails: unknown chain ids yield "Network <id>".
func (r *Registry) NameFor(chainID string) string {
	r.mu.RLock()
	n, ok := r.byID[normalize(chainID)]
	r.mu.RUnlock()
	if ok {
		return n.Name
	}
	return "Network " + chainID
}

// ExplorerTxURL returns the block explorer link for hash on the named network.
func (r *Registry) ExplorerTxURL(networkName, hash string) string {
	r.mu.RLock()
	n, ok := r.byName[networkName]
	r.mu.RUnlock()
	base := defaultExplorer
	if ok && n.ExplorerURL != "" {
		base = n.ExplorerURL
	}
	return base + "/tx/" + hash
}

var defaultRegistry = NewRegistry()

// NameFor resolves chainID against the built-in table.
func NameFor(chainID string) string {
	return defaultRegistry.NameFor(chainID)
}

func normalize(chainID string) string {
	return strings.ToLower(strings.TrimSpace(chainID))
}
