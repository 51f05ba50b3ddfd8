// Command tspcheck verifies that the portal backend is reachable with
// the configured credentials: it loads the client configuration, then
// probes each core table with a minimal read.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tsp-sistema/client/internal/config"
	"github.com/tsp-sistema/client/internal/logging"
	"github.com/tsp-sistema/client/internal/rest"
)

var coreTables = []string{
	"usuarios",
	"lecturas",
	"vocabulario",
	"preguntas_lectura",
	"resultados_mlc",
}

func main() {
	configDir := flag.String("config", ".", "directory containing config.yaml")
	timeout := flag.Duration("timeout", 30*time.Second, "overall probe timeout")
	flag.Parse()

	if err := run(*configDir, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "tspcheck:", err)
		os.Exit(1)
	}
}

func run(configDir string, timeout time.Duration) error {
	cfg, _, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.Init(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer log.Sync()

	client, err := rest.New(rest.Config{
		BaseURL: cfg.Portal.URL,
		Key:     cfg.Portal.Key,
		Timeout: cfg.HTTP.Timeout,
		Retry: rest.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
	}, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	checks := client.Health(ctx, coreTables)
	tables := make([]string, 0, len(checks))
	for table := range checks {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	failed := 0
	for _, table := range tables {
		status := "ok"
		if !checks[table] {
			status = "FAIL"
			failed++
		}
		fmt.Printf("%-20s %s\n", table, status)
	}

	if failed > 0 {
		log.Error("health check failed", zap.Int("failed_tables", failed))
		return fmt.Errorf("%d of %d tables unreachable", failed, len(tables))
	}
	log.Info("health check passed", zap.Int("tables", len(tables)))
	return nil
}
