package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"walletd/pkg/config"
	"walletd/pkg/ledger"
	"walletd/pkg/models"
	"walletd/pkg/network"
	"walletd/pkg/store"
)

func newMockRPC(t *testing.T, handler func(method string) (interface{}, bool)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if result, ok := handler(req.Method); ok {
			resp["result"] = result
		} else {
			resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found"}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"rpc_url": "http://file:8545", "port": 9000}`), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WALLETD_RPC_URL", "http://env:8545")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.RPCURL != "http://env:8545" {
		t.Errorf("RPCURL = %q; want env override", cfg.RPCURL)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d; want 9000", cfg.Port)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"port": 70000}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Error("expected validation error for out of range port")
	}
}

func TestNewRegistry_CustomNetworks(t *testing.T) {
	cfg := config.Default()
	cfg.Networks = []config.NetworkConfig{
		{ChainID: "0x539", Name: "Local Devnet", ExplorerURL: "http://localhost:4000/"},
	}
	r := newRegistry(cfg)

	if got := r.NameFor("0x539"); got != "Local Devnet" {
		t.Errorf("NameFor(0x539) = %q", got)
	}
	if got := r.ExplorerTxURL("Local Devnet", "0xabc"); got != "http://localhost:4000/tx/0xabc" {
		t.Errorf("ExplorerTxURL = %q", got)
	}
	if got := r.NameFor("0x1"); got != "Ethereum Mainnet" {
		t.Errorf("built-in network lost: %q", got)
	}
}

func TestOpenBackend_Sim(t *testing.T) {
	b, err := openBackend(context.Background(), config.Default(), t.TempDir(), true)
	if err != nil {
		t.Fatalf("openBackend failed: %v", err)
	}
	defer b.Close()

	if b.sim == nil || b.provider == nil {
		t.Fatal("sim backend should expose the simulated provider")
	}
	bal, err := b.provider.Balance(context.Background(), simAccount)
	if err != nil {
		t.Fatal(err)
	}
	if bal.Cmp(simBalance) != 0 {
		t.Errorf("sim balance = %s; want %s", bal, simBalance)
	}
}

func TestOpenBackend_NoProvider(t *testing.T) {
	cfg := config.Default()
	cfg.RPCURL = ""

	b, err := openBackend(context.Background(), cfg, t.TempDir(), false)
	if err != nil {
		t.Fatalf("openBackend failed: %v", err)
	}
	defer b.Close()

	if b.provider != nil {
		t.Error("expected no provider when the RPC URL is empty")
	}
	if b.store == nil {
		t.Fatal("expected a persistent store")
	}
	if err := b.store.Set("k", "v"); err != nil {
		t.Errorf("store not writable: %v", err)
	}
}

func TestRunSelfTest(t *testing.T) {
	server := newMockRPC(t, func(method string) (interface{}, bool) {
		switch method {
		case "eth_chainId":
			return "0x89", true
		case "eth_accounts":
			return []string{"0x1111111111111111111111111111111111111111", "not-an-address"}, true
		}
		return nil, false
	})

	cfg := config.Default()
	cfg.RPCURL = server.URL
	var out bytes.Buffer
	report := runSelfTest(context.Background(), cfg, "/tmp/cfg.json", network.NewRegistry(), false, &out)

	if !report.Reachable {
		t.Fatalf("expected reachable, errors: %v", report.Errors)
	}
	if report.ChainID != "0x89" || report.Network != "Polygon Mainnet" {
		t.Errorf("unexpected chain %q / %q", report.ChainID, report.Network)
	}
	if len(report.Accounts) != 1 {
		t.Errorf("Accounts = %v; want only the valid address", report.Accounts)
	}
	if len(report.Errors) != 1 {
		t.Errorf("Errors = %v; want one invalid address error", report.Errors)
	}
	if !strings.Contains(out.String(), "Polygon Mainnet") {
		t.Errorf("output missing network name: %s", out.String())
	}
}

func TestRunSelfTest_Unreachable(t *testing.T) {
	server := newMockRPC(t, func(method string) (interface{}, bool) { return nil, false })

	cfg := config.Default()
	cfg.RPCURL = server.URL
	var out bytes.Buffer
	report := runSelfTest(context.Background(), cfg, "/tmp/cfg.json", network.NewRegistry(), true, &out)

	if report.Reachable {
		t.Error("expected unreachable when eth_chainId fails")
	}
	if len(report.Errors) == 0 {
		t.Error("expected an error entry")
	}
	if out.Len() != 0 {
		t.Errorf("quiet mode wrote output: %s", out.String())
	}
}

func TestSetupLogging_InvalidLevel(t *testing.T) {
	var buf bytes.Buffer
	setupLogging("verbose", &buf)
	defer setupLogging("info", os.Stderr)

	// falls back to info
	slog.Debug("debug line")
	slog.Info("info line")
	if strings.Contains(buf.String(), "debug line") {
		t.Error("debug line should be filtered at info level")
	}
	if !strings.Contains(buf.String(), "info line") {
		t.Error("info line missing")
	}
}

func TestInspectStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), storeDir)
	ls, err := store.OpenLevelStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	addr := "0x1111111111111111111111111111111111111111"
	if err := ls.Set(ledger.Key(addr), "[]"); err != nil {
		t.Fatal(err)
	}
	if err := ls.Set("wallet_connected", "true"); err != nil {
		t.Fatal(err)
	}
	if err := ls.Close(); err != nil {
		t.Fatal(err)
	}

	var report models.TestReport
	var out bytes.Buffer
	inspectStore(dir, &report, false, &out)

	if len(report.Ledgers) != 1 || report.Ledgers[0] != addr {
		t.Errorf("Ledgers = %v; want [%s]", report.Ledgers, addr)
	}
	if !strings.Contains(out.String(), "Stored ledgers: 1") {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestInspectStore_Missing(t *testing.T) {
	var report models.TestReport
	inspectStore(filepath.Join(t.TempDir(), "absent"), &report, true, io.Discard)
	if len(report.Ledgers) != 0 || len(report.Errors) != 0 {
		t.Errorf("missing store should be silent, got %+v", report)
	}
}
