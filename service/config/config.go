package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment
// variables. All required fields are validated at startup to ensure
// fail-fast behavior; the struct is constructed once and passed into every
// component at construction time, never mutated afterwards.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// NATS configuration (permission message store)
	NATSURL       string
	GrantsChannel string

	// Dataset catalog (content-addressed message store read API)
	CatalogURL string

	// Solana configuration
	SolanaRPCURL    string
	USDCMintAddress string
	MintDecimals    int

	// AppReferenceSeed is the fixed seed for the application reference
	// address appended to every transfer.
	AppReferenceSeed string

	// Broadcast/confirm loop tuning
	ConfirmTimeout      time.Duration // confirmation race window before a resubmit
	ConfirmPollInterval time.Duration // status poll cadence inside the window
	SendDeadline        time.Duration // bound on the whole send pipeline

	// Settled-transaction fetch retry tuning
	SettlementFetchInterval time.Duration
	SettlementFetchAttempts int

	// Fee/compute fallbacks when the oracle or simulation is unavailable
	DefaultPriorityFeeRate  uint64 // micro-lamports per compute unit
	DefaultComputeUnitLimit uint32
}

// Load reads configuration from environment variables and validates all
// required fields. Returns an error if any required configuration is missing
// or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")
	cfg.GrantsChannel = getEnvOrDefault("GRANTS_CHANNEL", "FISHNET_TEST_V1.1")

	cfg.CatalogURL = getEnvOrDefault("CATALOG_URL", "https://api2.aleph.im")

	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}

	cfg.USDCMintAddress = getEnvOrDefault("USDC_MINT_ADDRESS", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	decimals, err := parseInt("MINT_DECIMALS", 6)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MintDecimals = decimals
	}

	cfg.AppReferenceSeed = getEnvOrDefault("APP_REFERENCE_SEED", "fishnet")

	confirmTimeout, err := parseDuration("CONFIRM_TIMEOUT", "2s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmTimeout = confirmTimeout
	}

	pollInterval, err := parseDuration("CONFIRM_POLL_INTERVAL", "500ms")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmPollInterval = pollInterval
	}

	sendDeadline, err := parseDuration("SEND_DEADLINE", "120s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SendDeadline = sendDeadline
	}

	fetchInterval, err := parseDuration("SETTLEMENT_FETCH_INTERVAL", "2s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SettlementFetchInterval = fetchInterval
	}

	fetchAttempts, err := parseInt("SETTLEMENT_FETCH_ATTEMPTS", 30)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SettlementFetchAttempts = fetchAttempts
	}

	feeRate, err := parseInt("DEFAULT_PRIORITY_FEE_RATE", 5000)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.DefaultPriorityFeeRate = uint64(feeRate)
	}

	unitLimit, err := parseInt("DEFAULT_COMPUTE_UNIT_LIMIT", 1400000)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.DefaultComputeUnitLimit = uint32(unitLimit)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.USDCMintAddress == "" {
		errs = append(errs, fmt.Errorf("USDCMintAddress is required"))
	}

	if c.CatalogURL == "" {
		errs = append(errs, fmt.Errorf("CatalogURL is required"))
	}

	if c.AppReferenceSeed == "" {
		errs = append(errs, fmt.Errorf("AppReferenceSeed is required"))
	}

	if c.MintDecimals < 0 || c.MintDecimals > 18 {
		errs = append(errs, fmt.Errorf("MintDecimals must be between 0 and 18"))
	}

	if c.ConfirmTimeout < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("ConfirmTimeout must be at least 100ms"))
	}

	if c.ConfirmPollInterval <= 0 || c.ConfirmPollInterval > c.ConfirmTimeout {
		errs = append(errs, fmt.Errorf("ConfirmPollInterval must be positive and no greater than ConfirmTimeout"))
	}

	if c.SendDeadline < c.ConfirmTimeout {
		errs = append(errs, fmt.Errorf("SendDeadline (%v) cannot be less than ConfirmTimeout (%v)",
			c.SendDeadline, c.ConfirmTimeout))
	}

	if c.SettlementFetchAttempts < 1 {
		errs = append(errs, fmt.Errorf("SettlementFetchAttempts must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
