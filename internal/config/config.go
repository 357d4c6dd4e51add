package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Linking     LinkingConfig
	HotWallet   HotWalletConfig
	Marketplace MarketplaceConfig
	Security    SecurityConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URL returns the database connection URL
func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	PASSWORD string
}

// LinkingConfig holds pairing-code and token lifetimes
type LinkingConfig struct {
	CodeTTL           time.Duration
	ClientTokenExpiry time.Duration
	NotifyToken       string
	MailboxMaxAge     time.Duration
	MailboxMaxCount   int
}

// HotWalletConfig holds the operator co-signing key
type HotWalletConfig struct {
	PrivateKey string
}

// MarketplaceConfig holds the blockchain collaborator endpoints
type MarketplaceConfig struct {
	RPCURL           string
	ContractAddress  string
	ContractVersion  string
	NetworkID        string
	IPFSGateway      string
	WebrtcAuthWindow time.Duration
}

// SecurityConfig holds signing and encryption keys
type SecurityConfig struct {
	ClientTokenSecret string
	CodeEncryptionKey string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "3008"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "walletlink"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			PASSWORD: getEnv("REDIS_PASSWORD", ""),
		},
		Linking: LinkingConfig{
			CodeTTL:           getEnvAsDuration("LINK_CODE_TTL", 5*time.Minute),
			ClientTokenExpiry: getEnvAsDuration("CLIENT_TOKEN_EXPIRY", 15*24*time.Hour),
			NotifyToken:       getEnv("NOTIFY_TOKEN", ""),
			MailboxMaxAge:     getEnvAsDuration("MAILBOX_MAX_AGE", 30*time.Minute),
			MailboxMaxCount:   getEnvAsInt("MAILBOX_MAX_COUNT", 1000),
		},
		HotWallet: HotWalletConfig{
			PrivateKey: getEnv("HOT_WALLET_PK", ""),
		},
		Marketplace: MarketplaceConfig{
			RPCURL:           getEnv("MARKETPLACE_RPC_URL", "http://localhost:8545"),
			ContractAddress:  getEnv("MARKETPLACE_ADDRESS", ""),
			ContractVersion:  getEnv("MARKETPLACE_VERSION", "VB_Marketplace"),
			NetworkID:        getEnv("MARKETPLACE_NETWORK_ID", "1"),
			IPFSGateway:      getEnv("IPFS_GATEWAY", "http://localhost:5001"),
			WebrtcAuthWindow: getEnvAsDuration("WEBRTC_AUTH_WINDOW", 5*time.Minute),
		},
		Security: SecurityConfig{
			ClientTokenSecret: getEnv("CLIENT_TOKEN_SECRET", "change-this-in-production"),
			CodeEncryptionKey: getEnv("CODE_ENCRYPTION_KEY", "0000000000000000000000000000000000000000000000000000000000000000"), // 32-bytes hex string
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
