// Package config loads the relayer YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/marko911/arbitration-relayer/internal/adapter/evm"
)

// Job names accepted in Config.Jobs.
const (
	JobNotified  = "notified"
	JobRejected  = "rejected"
	JobRuled     = "ruled"
	JobRequested = "requested"
)

// AllJobs is the default job set, in scheduling order.
var AllJobs = []string{JobNotified, JobRejected, JobRuled, JobRequested}

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Home    HomeConfig  `yaml:"home"`
	Foreign ChainConfig `yaml:"foreign"`

	Interval time.Duration `yaml:"interval"`
	Jobs     []string      `yaml:"jobs"`

	// RequestStore is memory or postgres.
	RequestStore string `yaml:"request_store"`
	// CheckpointStore is memory, postgres or redis.
	CheckpointStore string `yaml:"checkpoint_store"`

	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`

	Sender SenderConfig `yaml:"sender"`

	NATS  NATSConfig  `yaml:"nats"`
	Kafka KafkaConfig `yaml:"kafka"`
	MinIO MinIOConfig `yaml:"minio"`
}

// ChainConfig locates one proxy contract and the RPC endpoint serving it.
type ChainConfig struct {
	RPC           evm.RPCConfig `yaml:"rpc"`
	Proxy         string        `yaml:"proxy"`
	StartBlock    uint64        `yaml:"start_block"`
	MaxBlockRange uint64        `yaml:"max_block_range"`
}

type HomeConfig struct {
	ChainConfig `yaml:",inline"`

	Realitio           string `yaml:"realitio"`
	RealitioStartBlock uint64 `yaml:"realitio_start_block"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type SenderConfig struct {
	GasMultiplier  uint64        `yaml:"gas_multiplier"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	ReceiptTimeout time.Duration `yaml:"receipt_timeout"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type KafkaConfig struct {
	Enabled bool   `yaml:"enabled"`
	Brokers string `yaml:"brokers"`
	Topic   string `yaml:"topic"`
}

type MinIOConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

// Default returns a configuration that runs every job against in-memory
// stores with no report sinks.
func Default() Config {
	return Config{
		Interval:        time.Minute,
		Jobs:            append([]string(nil), AllJobs...),
		RequestStore:    BackendMemory,
		CheckpointStore: BackendMemory,
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "relayer",
			Database: "relayer",
			SSLMode:  "disable",
			MaxConns: 10,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "relayer:",
		},
		NATS:  NATSConfig{URL: "nats://localhost:4222"},
		Kafka: KafkaConfig{Brokers: "localhost:9092", Topic: "relayer-reports"},
		MinIO: MinIOConfig{Endpoint: "localhost:9000", Bucket: "relayer-reports"},
	}
}

// Load reads path over Default and validates the result. An empty path
// yields the defaults, which do not validate without chain settings.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Home.RPC = cfg.Home.RPC.WithDefaults()
	cfg.Foreign.RPC = cfg.Foreign.RPC.WithDefaults()
	return cfg, cfg.Validate()
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	errs = append(errs, c.Home.ChainConfig.validate("home")...)
	if c.Home.Realitio != "" && !common.IsHexAddress(c.Home.Realitio) {
		errs = append(errs, fmt.Errorf("home.realitio: invalid address %q", c.Home.Realitio))
	}
	errs = append(errs, c.Foreign.validate("foreign")...)

	if c.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}
	if len(c.Jobs) == 0 {
		errs = append(errs, errors.New("jobs: at least one job is required"))
	}
	for _, job := range c.Jobs {
		if !KnownJob(job) {
			errs = append(errs, fmt.Errorf("jobs: unknown job %q", job))
		}
	}

	switch c.RequestStore {
	case BackendMemory, BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("request_store: unsupported backend %q", c.RequestStore))
	}
	switch c.CheckpointStore {
	case BackendMemory, BackendPostgres, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("checkpoint_store: unsupported backend %q", c.CheckpointStore))
	}

	if c.Kafka.Enabled && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when kafka is enabled"))
	}
	if c.MinIO.Enabled && c.MinIO.Bucket == "" {
		errs = append(errs, errors.New("minio.bucket is required when minio is enabled"))
	}

	return errors.Join(errs...)
}

func (c ChainConfig) validate(name string) []error {
	var errs []error
	if c.RPC.URL == "" {
		errs = append(errs, fmt.Errorf("%s.rpc.url is required", name))
	}
	if !common.IsHexAddress(c.Proxy) {
		errs = append(errs, fmt.Errorf("%s.proxy: invalid address %q", name, c.Proxy))
	}
	return errs
}

// ProxyAddress returns the parsed proxy address. Validate first.
func (c ChainConfig) ProxyAddress() common.Address {
	return common.HexToAddress(c.Proxy)
}

// RealitioAddress returns the Realitio address, zero when unset.
func (c HomeConfig) RealitioAddress() common.Address {
	if c.Realitio == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.Realitio)
}

// KnownJob reports whether name is a job the relayer can run.
func KnownJob(name string) bool {
	for _, j := range AllJobs {
		if j == name {
			return true
		}
	}
	return false
}
