package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/agora-hq/agora/syncer/clients/evm"
	"github.com/agora-hq/agora/syncer/config"
	"github.com/agora-hq/agora/syncer/db"
	"github.com/agora-hq/agora/syncer/handlers"
	httpx "github.com/agora-hq/agora/syncer/http"
	"github.com/agora-hq/agora/syncer/logging"
	"github.com/agora-hq/agora/syncer/services"
	"github.com/agora-hq/agora/syncer/utils"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := logging.New(os.Stderr, level, cfg.LogJSON)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Syncer exited with error")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info().Msg("Initializing database connection")
	database, err := db.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.InitDB(ctx); err != nil {
		return err
	}

	client, err := evm.Dial(ctx, cfg.RPCURL, evm.Options{
		MaxBlockRange:  cfg.ChunkSize,
		MaxRetries:     cfg.MaxRetries,
		RetryBaseDelay: cfg.RetryBaseDelay,
	}, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	metrics := services.NewMetrics()
	router := services.NewRouter(database, cfg.RouterRefresh, logger)
	engine := services.NewSyncEngine(client, database, router, metrics, services.EngineOptions{
		GenesisBlock: cfg.GenesisBlock,
		ChunkSize:    cfg.ChunkSize,
		PollInterval: cfg.PollInterval,
		ErrorBackoff: cfg.ErrorBackoff,
	}, logger)

	registry, err := services.NewRegistryProcessor(database, logger)
	if err != nil {
		return err
	}
	shares, err := services.NewSharesProcessor(database, client, logger)
	if err != nil {
		return err
	}
	taskAuction, err := services.NewTaskAuctionProcessor(database, logger)
	if err != nil {
		return err
	}
	serviceAuction, err := services.NewServiceAuctionProcessor(database, logger)
	if err != nil {
		return err
	}
	partnership, err := services.NewPartnershipProcessor(database, logger)
	if err != nil {
		return err
	}
	treasury, err := services.NewTreasuryProcessor(database, logger)
	if err != nil {
		return err
	}

	engine.AddContract(config.AgentRegistryContract, common.HexToAddress(cfg.Contracts.AgentRegistry), registry)
	engine.AddContract(config.TaskAuctionContract, common.HexToAddress(cfg.Contracts.TaskAuction), taskAuction)
	engine.AddContract(config.ServiceAuctionContract, common.HexToAddress(cfg.Contracts.ServiceAuction), serviceAuction)
	engine.AddContract(config.PartnershipContract, common.HexToAddress(cfg.Contracts.Partnership), partnership)
	engine.AddContract(config.TreasuryContract, common.HexToAddress(cfg.Contracts.Treasury), treasury)
	engine.SetSharesProcessor(shares)

	reconciliation := services.NewReconciliationService(client, database, metrics, services.ReconciliationOptions{
		MinInterval:         cfg.ReconcileMinGap,
		AddressListInterval: cfg.AddressListGap,
		Epsilon:             utils.ParseBig(cfg.BalanceEpsilon),
	}, logger)

	// Serve status while the backfill runs so health checks pass during
	// long catch-ups.
	server := handlers.NewServer(database, metrics, logger)
	shutdownHTTP := httpx.StartAsync(&http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Router(),
	}, logger)

	if err := engine.CatchUp(ctx); err != nil {
		if ctx.Err() != nil {
			shutdownHTTP(context.Background())
			return err
		}
		// Stalled cursors carry the error; the live loop retries them.
		logger.Error().Err(err).Msg("Catch-up incomplete, live sync will retry failed contracts")
	}

	engine.Start(ctx)
	reconciliation.Start(ctx)

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	engine.Stop()
	reconciliation.Stop()
	shutdownHTTP(context.Background())

	logger.Info().Msg("Shutdown complete")
	return nil
}
