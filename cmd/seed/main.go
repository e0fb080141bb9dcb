// Seeds an owner balance, for local development and e2e setups.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"media-generation-jobs/internal/config"
	"media-generation-jobs/internal/domain/ports/repository"
	pg "media-generation-jobs/internal/infra/db/postgres"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	ownerID := flag.String("owner", "", "owner id to credit")
	amount := flag.Int64("amount", 1000, "amount to credit")
	flag.Parse()

	if *ownerID == "" {
		log.Fatal("-owner is required")
	}

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	ledger := pg.NewLedgerRepo(pool)
	if err := ledger.Credit(ctx, repository.NoTX, *ownerID, *amount); err != nil {
		log.Fatalf("credit: %v", err)
	}
	balance, err := ledger.Balance(ctx, repository.NoTX, *ownerID)
	if err != nil {
		log.Fatalf("balance: %v", err)
	}
	fmt.Printf("owner %s credited %d, balance now %d\n", *ownerID, *amount, balance)
}
