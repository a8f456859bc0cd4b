package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"walletd/pkg/config"
	"walletd/pkg/ledger"
	"walletd/pkg/metrics"
	"walletd/pkg/models"
	"walletd/pkg/network"
	"walletd/pkg/provider"
	"walletd/pkg/server"
	"walletd/pkg/session"
	"walletd/pkg/store"
	"walletd/pkg/tui"
)

// Version should be set during build
var Version = "dev"

const (
	simAccount = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
	simChainID = "0xaa36a7"
	logFile    = "walletd.log"
	storeDir   = "store"
)

// simBalance is the starting balance of the simulated account, 10 ETH.
var simBalance = new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18))

func main() {
	testFlag := flag.Bool("t", false, "Test provider connectivity and exit")
	testLongFlag := flag.Bool("test", false, "Test provider connectivity and exit")
	jsonFlag := flag.Bool("json", false, "Output test results as JSON")
	configFlag := flag.String("config", "", "Path to configuration file")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	serverFlag := flag.Bool("server", false, "Run in headless server mode")
	portFlag := flag.Int("port", 0, "Port for API server (overrides config)")
	simFlag := flag.Bool("sim", false, "Use an in-memory simulated wallet")
	restoreFlag := flag.Bool("restore-config", false, "Restore the last configuration backup and exit")
	logLevelFlag := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("walletd version %s\n", Version)
		os.Exit(0)
	}

	path, err := config.GetConfigPath(*configFlag)
	if err != nil {
		fmt.Printf("Error determining config path: %v\n", err)
		os.Exit(1)
	}

	if *restoreFlag {
		if err := config.RestoreLastBackup(path); err != nil {
			fmt.Printf("Failed to restore backup: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Restored configuration at %s\n", path)
		os.Exit(0)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		fmt.Printf("Error loading config from %s: %v\n", path, err)
		os.Exit(1)
	}
	if *portFlag != 0 {
		cfg.Port = *portFlag
	}
	registry := newRegistry(cfg)

	if *testFlag || *testLongFlag {
		setupLogging(*logLevelFlag, os.Stderr)
		report := runSelfTest(context.Background(), cfg, path, registry, *jsonFlag, os.Stdout)
		if dataDir, err := cfg.ResolveDataDir(); err == nil {
			inspectStore(filepath.Join(dataDir, storeDir), &report, *jsonFlag, os.Stdout)
		}
		if *jsonFlag {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(report)
		}
		if !report.Reachable {
			os.Exit(1)
		}
		os.Exit(0)
	}

	dataDir, err := cfg.ResolveDataDir()
	if err != nil {
		fmt.Printf("Error resolving data directory: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		fmt.Printf("Error creating data directory: %v\n", err)
		os.Exit(1)
	}

	// The TUI owns the terminal, so logs go to a file there.
	if *serverFlag {
		setupLogging(*logLevelFlag, os.Stderr)
	} else {
		f, err := os.OpenFile(filepath.Join(dataDir, logFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			fmt.Printf("Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		setupLogging(*logLevelFlag, f)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, dataDir, *simFlag)
	if err != nil {
		fmt.Printf("Error opening wallet backend: %v\n", err)
		os.Exit(1)
	}
	defer b.Close()

	met := metrics.New()
	m := session.New(b.provider, b.store, session.Options{
		Registry:          registry,
		Metrics:           met,
		RefreshDelay:      cfg.RefreshDelay(),
		ReconcileInterval: cfg.ReconcileInterval(),
	})
	defer m.Close()
	go m.Run(ctx)

	srv := server.NewServer(m, met)
	go func() {
		if err := srv.Start(cfg.Port); err != nil {
			slog.Error("API server stopped", "error", err)
		}
	}()

	if *serverFlag {
		fmt.Printf("Running in server mode on port %d...\n", cfg.Port)
		<-ctx.Done()
		return
	}

	var sim tui.Simulator
	if b.sim != nil {
		sim = b.sim
	}
	tui.Start(m, sim, Version)
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		return cfg, err
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func newRegistry(cfg config.Config) *network.Registry {
	r := network.NewRegistry()
	for _, n := range cfg.Networks {
		r.Register(network.Info{ChainID: n.ChainID, Name: n.Name, ExplorerURL: n.ExplorerURL})
	}
	return r
}

func setupLogging(level string, w io.Writer) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
}

type backend struct {
	provider provider.Provider
	store    store.Store
	sim      *provider.SimProvider
	closers  []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackend selects the signing provider and the store. A provider that
// cannot be dialed leaves the session manager without one.
func openBackend(ctx context.Context, cfg config.Config, dataDir string, sim bool) (*backend, error) {
	if sim {
		p := provider.NewSimProvider(simChainID, simAccount)
		p.SetBalance(simAccount, simBalance)
		return &backend{provider: p, store: store.NewMemoryStore(), sim: p}, nil
	}

	b := &backend{}
	ls, err := store.OpenLevelStore(filepath.Join(dataDir, storeDir))
	if err != nil {
		return nil, err
	}
	b.store = ls
	b.closers = append(b.closers, func() { _ = ls.Close() })

	rp, err := provider.DialRPC(ctx, cfg.RPCURL, cfg.EventPollInterval())
	if err != nil {
		slog.Warn("signing provider unavailable", "url", cfg.RPCURL, "error", err)
		return b, nil
	}
	b.provider = rp
	b.closers = append(b.closers, rp.Close)
	return b, nil
}

// runSelfTest checks that the configured provider answers and reports what it exposes.
func runSelfTest(ctx context.Context, cfg config.Config, path string, registry *network.Registry, quiet bool, out io.Writer) models.TestReport {
	report := models.TestReport{ConfigPath: path, RPCURL: cfg.RPCURL}
	say := func(format string, args ...interface{}) {
		if !quiet {
			fmt.Fprintf(out, format, args...)
		}
	}

	say("Testing configuration at: %s\n", path)
	say("Provider: %s ... ", cfg.RPCURL)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	p, err := provider.DialRPC(ctx, cfg.RPCURL, cfg.EventPollInterval())
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		say("Failed: %v\n", err)
		return report
	}
	defer p.Close()

	id, err := p.ChainID(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("Failed to get ChainID: %v", err))
		say("Failed to get ChainID: %v\n", err)
		return report
	}
	report.Reachable = true
	report.ChainID = id
	report.Network = registry.NameFor(id)
	say("OK (%s, %s)\n", id, report.Network)

	accounts, err := p.Accounts(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("Failed to list accounts: %v", err))
		say("Failed to list accounts: %v\n", err)
		return report
	}
	for _, a := range accounts {
		if !models.ValidAddress(a) {
			report.Errors = append(report.Errors, fmt.Sprintf("Provider returned invalid address %q", a))
			continue
		}
		report.Accounts = append(report.Accounts, a)
	}
	if len(report.Accounts) == 0 {
		say("No accounts exposed; connecting will prompt the wallet.\n")
	} else {
		say("Accounts: %s\n", strings.Join(report.Accounts, ", "))
	}
	return report
}

// inspectStore lists the persisted ledgers. A store held open by a running
// instance is reported, not treated as fatal.
func inspectStore(dir string, report *models.TestReport, quiet bool, out io.Writer) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return
	}
	ls, err := store.OpenLevelStore(dir)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return
	}
	defer ls.Close()

	keys, err := ls.Keys(ledger.KeyPrefix)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return
	}
	for _, k := range keys {
		report.Ledgers = append(report.Ledgers, strings.TrimPrefix(k, ledger.KeyPrefix))
	}
	if !quiet {
		fmt.Fprintf(out, "Stored ledgers: %d\n", len(report.Ledgers))
	}
}
