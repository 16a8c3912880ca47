// Command maskwatch is an operator-assist mask-matching and enforcement
// agent: it connects to a single chat network as an IRC operator, watches
// client connect/exit/nick-change server notices, matches them against a
// durable catalog of masks, and issues WARN/KLINE/KILL/RESV actions on
// hits. Operators drive the catalog through private-message commands and
// a read-only loopback management API.
//
// Usage:
//
//	./maskwatch -config maskwatch.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"maskwatch/internal/config"
	"maskwatch/internal/engine"
	"maskwatch/internal/ircclient"
	"maskwatch/internal/logger"
	"maskwatch/internal/management"
	"maskwatch/internal/mask"
	"maskwatch/internal/maskset"
	"maskwatch/internal/metrics"
	"maskwatch/internal/store"
)

func main() {
	configPath := flag.String("config", "maskwatch.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[CONFIG] Fatal: %v", err)
	}

	log := logger.New("engine", cfg.LogLevel)
	printBanner(cfg)

	catalog, err := store.Open(cfg.Database)
	if err != nil {
		log.Errorf("startup", "open catalog %s: %v", cfg.Database, err)
		os.Exit(1)
	}
	defer func() {
		if err := catalog.Close(); err != nil {
			log.Errorf("shutdown", "close catalog: %v", err)
		}
	}()

	m := metrics.New()
	// set is shared across reconnects and with the management API: it
	// survives a dropped connection and is simply rebuilt from the
	// catalog on the next WELCOME.
	set := maskset.New(mask.Compile)

	ctx, cancel := context.WithCancel(context.Background())
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalCh
		log.Infof("shutdown", "signal received, disconnecting")
		cancel()
	}()

	// Management API is read-only and has no dependency on the live
	// connection, so it starts before dial and keeps running across
	// reconnect attempts. Fatal is intentional: the agent should not run
	// unmonitored.
	if cfg.Management.MetricsAddr != "" {
		mgmt := management.New(cfg, set, m)
		go func() {
			if err := mgmt.ListenAndServe(); err != nil {
				log.Errorf("management", "fatal: %v", err)
				os.Exit(1)
			}
		}()
	}

	for {
		if ctx.Err() != nil {
			return
		}
		if err := runOnce(ctx, cfg, catalog, set, m, log); err != nil {
			log.Errorf("connection", "%v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Second):
		}
	}
}

// runOnce dials, registers, opers up and runs the engine loop for one
// connection lifetime; it returns when the connection drops or ctx is
// canceled.
func runOnce(ctx context.Context, cfg *config.Config, catalog *store.Catalog, set *maskset.Set, m *metrics.Metrics, log *logger.Logger) error {
	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	client, err := ircclient.Dial(dialCtx, cfg)
	cancel()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer client.Close()

	regCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	err = client.Register(regCtx, cfg)
	cancel()
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	log.Infof("connection", "registered as %s on %s", client.Nickname(), cfg.Server)

	e, err := engine.New(cfg, client, catalog, set, m, log)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	return e.Run(ctx)
}

func printBanner(cfg *config.Config) {
	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║                     maskwatch                         ║
╚══════════════════════════════════════════════════════╝
  Server          : %s
  Nickname        : %s
  Operator channel: %s
  Verbose channel : %s
  Catalog         : %s
  Management addr : %s

`, cfg.Server, cfg.Nickname, cfg.Channel, cfg.Verbose, cfg.Database, cfg.Management.MetricsAddr)
}
