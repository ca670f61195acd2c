package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the sync engine.
type Config struct {
	// Server configuration
	Port string

	// Database configuration
	DatabaseURL string

	// Ledger RPC configuration
	RPCURL string

	// Contract addresses (hex strings)
	Contracts ContractAddresses

	// Sync tuning
	GenesisBlock     uint64
	ChunkSize        uint64
	PollInterval     time.Duration
	ErrorBackoff     time.Duration
	RouterRefresh    time.Duration
	ReconcileMinGap  time.Duration
	AddressListGap   time.Duration
	BalanceEpsilon   string // in wei, decimal string
	MaxRetries       int
	RetryBaseDelay   time.Duration
	LogJSON          bool
	LogLevel         string
}

// ContractAddresses holds the statically watched contract addresses.
type ContractAddresses struct {
	AgentRegistry  string
	TaskAuction    string
	ServiceAuction string
	Partnership    string
	Treasury       string
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	chunkSize, err := getEnvUint("SYNC_CHUNK_SIZE", 5000)
	if err != nil {
		return nil, err
	}
	genesis, err := getEnvUint("SYNC_GENESIS_BLOCK", 0)
	if err != nil {
		return nil, err
	}
	maxRetries, err := getEnvInt("RPC_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		DatabaseURL: getEnvOrDefault("DATABASE_URL", "postgresql://localhost:5432/agora?sslmode=disable"),
		RPCURL:      getEnvOrDefault("RPC_URL", "http://localhost:8545"),
		Contracts: ContractAddresses{
			AgentRegistry:  getEnvOrDefault("AGENT_REGISTRY_ADDRESS", DefaultAgentRegistryAddress),
			TaskAuction:    getEnvOrDefault("TASK_AUCTION_ADDRESS", DefaultTaskAuctionAddress),
			ServiceAuction: getEnvOrDefault("SERVICE_AUCTION_ADDRESS", DefaultServiceAuctionAddress),
			Partnership:    getEnvOrDefault("PARTNERSHIP_ADDRESS", DefaultPartnershipAddress),
			Treasury:       getEnvOrDefault("TREASURY_ADDRESS", DefaultTreasuryAddress),
		},
		GenesisBlock:    genesis,
		ChunkSize:       chunkSize,
		PollInterval:    getEnvDuration("SYNC_POLL_INTERVAL", 15*time.Second),
		ErrorBackoff:    getEnvDuration("SYNC_ERROR_BACKOFF", 1*time.Minute),
		RouterRefresh:   getEnvDuration("ROUTER_REFRESH_INTERVAL", 2*time.Minute),
		ReconcileMinGap: getEnvDuration("RECONCILE_MIN_INTERVAL", 10*time.Minute),
		AddressListGap:  getEnvDuration("RECONCILE_ADDRESS_REFRESH", 30*time.Minute),
		BalanceEpsilon:  getEnvOrDefault("BALANCE_EPSILON_WEI", "1000000000000"),
		MaxRetries:      maxRetries,
		RetryBaseDelay:  getEnvDuration("RPC_RETRY_BASE_DELAY", 500*time.Millisecond),
		LogJSON:         getEnvOrDefault("LOG_JSON", "true") == "true",
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if cfg.ChunkSize == 0 {
		return nil, fmt.Errorf("SYNC_CHUNK_SIZE must be greater than zero")
	}

	return cfg, nil
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvUint(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return parsed, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
