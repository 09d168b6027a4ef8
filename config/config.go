package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the indexer and read API.
type Config struct {
	General GeneralConfig `mapstructure:"general"`
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Indexer IndexerConfig `mapstructure:"indexer"`
	Chains  []ChainConfig `mapstructure:"chains"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address  string        `mapstructure:"address"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// IndexerConfig contains the polling engine settings shared by all chains.
type IndexerConfig struct {
	Enabled        bool           `mapstructure:"enabled"`
	PollInterval   time.Duration  `mapstructure:"poll_interval"`
	MaxBatchBlocks uint64         `mapstructure:"max_batch_blocks"`
	Confirmations  uint64         `mapstructure:"confirmations"`
	RPCTimeout     time.Duration  `mapstructure:"rpc_timeout"`
	ConfigSyncCron string         `mapstructure:"config_sync_cron"`
	Metadata       MetadataConfig `mapstructure:"metadata"`
}

func (i IndexerConfig) Validate() error {
	if i.PollInterval <= 0 {
		return fmt.Errorf("indexer.poll_interval must be > 0")
	}
	if i.MaxBatchBlocks == 0 {
		return fmt.Errorf("indexer.max_batch_blocks must be > 0")
	}
	return nil
}

// MetadataConfig controls the async agent-card enrichment workers.
type MetadataConfig struct {
	Workers      int           `mapstructure:"workers"`
	QueueSize    int           `mapstructure:"queue_size"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// ChainConfig describes one chain to index. The marketplace contract is
// optional; chains without one only index identity and reputation.
type ChainConfig struct {
	ChainID               int64  `mapstructure:"chain_id"`
	Name                  string `mapstructure:"name"`
	RPCURL                string `mapstructure:"rpc_url"`
	Enabled               bool   `mapstructure:"enabled"`
	IdentityAddress       string `mapstructure:"identity_address"`
	ReputationAddress     string `mapstructure:"reputation_address"`
	MarketplaceAddress    string `mapstructure:"marketplace_address"`
	StartBlock            uint64 `mapstructure:"start_block"`
	MarketplaceStartBlock uint64 `mapstructure:"marketplace_start_block"`
}

// MarketplaceStart returns the marketplace deployment block, falling back
// to the registry start block when unset.
func (c ChainConfig) MarketplaceStart() int64 {
	if c.MarketplaceStartBlock > 0 {
		return int64(c.MarketplaceStartBlock)
	}
	return int64(c.StartBlock)
}

func (c ChainConfig) Validate() error {
	if c.ChainID == 0 {
		return fmt.Errorf("chains[].chain_id required")
	}
	if strings.TrimSpace(c.RPCURL) == "" {
		return fmt.Errorf("chains[%d].rpc_url required", c.ChainID)
	}
	if strings.TrimSpace(c.IdentityAddress) == "" {
		return fmt.Errorf("chains[%d].identity_address required", c.ChainID)
	}
	if strings.TrimSpace(c.ReputationAddress) == "" {
		return fmt.Errorf("chains[%d].reputation_address required", c.ChainID)
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN assembles a postgres:// connection string from the individual fields
// unless an explicit url is configured.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings. Redis is optional; when
// host is empty the API runs without a response cache.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return nil
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required when host is set")
	}
	return nil
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":10002")
	viper.SetDefault("server.cache_ttl", 30*time.Second)
	viper.SetDefault("indexer.enabled", true)
	viper.SetDefault("indexer.poll_interval", 2*time.Second)
	viper.SetDefault("indexer.max_batch_blocks", 100)
	viper.SetDefault("indexer.confirmations", 5)
	viper.SetDefault("indexer.rpc_timeout", 30*time.Second)
	viper.SetDefault("indexer.config_sync_cron", "0 * * * *")
	viper.SetDefault("indexer.metadata.workers", 4)
	viper.SetDefault("indexer.metadata.queue_size", 256)
	viper.SetDefault("indexer.metadata.fetch_timeout", 10*time.Second)
	viper.SetDefault("indexer.metadata.max_body_bytes", 1<<20)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("MOLT")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	if len(config.Chains) == 0 {
		config.Chains = DefaultChains()
	}

	if err := config.Indexer.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Redis.Validate(); err != nil {
		panic(err)
	}
	for _, ch := range config.Chains {
		if !ch.Enabled {
			continue
		}
		if err := ch.Validate(); err != nil {
			panic(err)
		}
	}
	return &config
}

// DefaultChains returns the built-in Monad chain set with the canonical
// ERC-8004 registry deployments. RPC URLs honor the MONAD_MAINNET_RPC and
// MONAD_TESTNET_RPC environment variables.
func DefaultChains() []ChainConfig {
	mainnetRPC := os.Getenv("MONAD_MAINNET_RPC")
	if mainnetRPC == "" {
		mainnetRPC = "https://rpc.monad.xyz"
	}
	testnetRPC := os.Getenv("MONAD_TESTNET_RPC")
	if testnetRPC == "" {
		testnetRPC = "https://testnet-rpc.monad.xyz"
	}
	return []ChainConfig{
		{
			ChainID:            143,
			Name:               "monad",
			RPCURL:             mainnetRPC,
			Enabled:            os.Getenv("INDEX_MAINNET") != "false",
			IdentityAddress:    "0x8004A169FB4a3325136EB29fA0ceB6D2e539a432",
			ReputationAddress:  "0x8004BAa17C55a88189AE136b182e5fdA19dE9b63",
			MarketplaceAddress: os.Getenv("MONAD_MAINNET_MARKETPLACE"),
			StartBlock:         52952790,
		},
		{
			ChainID:            10143,
			Name:               "monad-testnet",
			RPCURL:             testnetRPC,
			Enabled:            os.Getenv("INDEX_TESTNET") != "false",
			IdentityAddress:    "0x8004A818BFB912233c491871b3d84c89A494BD9e",
			ReputationAddress:  "0x8004B663056A597Dffe9eCcC1965A193B7388713",
			MarketplaceAddress: os.Getenv("MONAD_TESTNET_MARKETPLACE"),
			StartBlock:         10391697,
		},
	}
}
