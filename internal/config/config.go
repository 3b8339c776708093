// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"

	"github.com/fossr-labs/fossr/internal/program"
	"github.com/fossr-labs/fossr/internal/program/curve"
	"github.com/fossr-labs/fossr/internal/program/schema"
	"github.com/fossr-labs/fossr/internal/scheduler"
	"github.com/fossr-labs/fossr/internal/utils/logger"
	"github.com/fossr-labs/fossr/internal/wallet"
)

// EnvPrefix prefixes every environment override, e.g. FOSSR_RPC_URL.
const EnvPrefix = "FOSSR"

type RetryConfig struct {
	MaxTries        uint          `mapstructure:"max_tries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

type Config struct {
	RPCURL           string `mapstructure:"rpc_url"`
	ProgramID        string `mapstructure:"program_id"`
	TokenMint        string `mapstructure:"token_mint"`
	AuthorityKey     string `mapstructure:"authority_key"`
	AuthorityKeyFile string `mapstructure:"authority_key_file"`

	PollInterval    time.Duration `mapstructure:"poll_interval"`
	AirdropInterval time.Duration `mapstructure:"airdrop_interval"`
	// MinAirdropEligible is in whole tokens.
	MinAirdropEligible uint64      `mapstructure:"min_airdrop_eligible"`
	PotFunding         string      `mapstructure:"pot_funding"`
	Retry              RetryConfig `mapstructure:"retry"`

	MetricsAddr string        `mapstructure:"metrics_addr"`
	NATSURL     string        `mapstructure:"nats_url"`
	DatabaseDSN string        `mapstructure:"database_dsn"`
	Log         logger.Config `mapstructure:"log"`
}

const (
	DefaultPollInterval    = 30 * time.Second
	DefaultAirdropInterval = 5 * time.Minute
	DefaultMinEligible     = 10_000
	DefaultRetries         = 5
)

// Load reads path (yaml, json or toml) when given, then applies FOSSR_*
// environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()

	log := logger.DefaultConfig()
	defaults := map[string]interface{}{
		"rpc_url":                "",
		"program_id":             schema.DefaultProgramID.String(),
		"token_mint":             "",
		"authority_key":          "",
		"authority_key_file":     "",
		"poll_interval":          DefaultPollInterval,
		"airdrop_interval":       DefaultAirdropInterval,
		"min_airdrop_eligible":   DefaultMinEligible,
		"pot_funding":            string(program.PotAccumulate),
		"retry.max_tries":        DefaultRetries,
		"retry.initial_interval": 500 * time.Millisecond,
		"retry.max_interval":     10 * time.Second,
		"metrics_addr":           "",
		"nats_url":               "",
		"database_dsn":           "",
		"log.file":               log.LogFile,
		"log.level":              log.Level,
		"log.max_size":           log.MaxSize,
		"log.max_age":            log.MaxAge,
		"log.max_backups":        log.MaxBackups,
		"log.compress":           log.Compress,
		"log.development":        log.Development,
		"log.pretty":             log.Pretty,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.RPCURL != "" {
		if err := validateURL(c.RPCURL, "http"); err != nil {
			return fmt.Errorf("rpc_url: %w", err)
		}
	}
	if c.NATSURL != "" {
		if err := validateURL(c.NATSURL, "nats", "tls"); err != nil {
			return fmt.Errorf("nats_url: %w", err)
		}
	}
	if _, err := solana.PublicKeyFromBase58(c.ProgramID); err != nil {
		return fmt.Errorf("invalid program_id: %w", err)
	}
	if c.TokenMint != "" {
		if _, err := solana.PublicKeyFromBase58(c.TokenMint); err != nil {
			return fmt.Errorf("invalid token_mint: %w", err)
		}
	}
	if c.AuthorityKey != "" && c.AuthorityKeyFile != "" {
		return errors.New("set only one of authority_key and authority_key_file")
	}
	if _, err := program.ParsePotFunding(c.PotFunding); err != nil {
		return err
	}
	return validateNumericParams(c)
}

func validateNumericParams(c *Config) error {
	if c.PollInterval <= 0 {
		return errors.New("invalid poll_interval")
	}
	if c.AirdropInterval < time.Second {
		return errors.New("invalid airdrop_interval")
	}
	if c.Retry.MaxTries == 0 {
		return errors.New("invalid retry.max_tries")
	}
	if c.Retry.InitialInterval <= 0 || c.Retry.MaxInterval < c.Retry.InitialInterval {
		return errors.New("invalid retry intervals")
	}
	return nil
}

func validateURL(rawURL string, schemes ...string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	for _, s := range schemes {
		if strings.HasPrefix(parsed.Scheme, s) {
			return nil
		}
	}
	return fmt.Errorf("invalid URL protocol %q", parsed.Scheme)
}

// RequireRPC is checked by commands that talk to a deployed program.
func (c *Config) RequireRPC() error {
	if c.RPCURL == "" {
		return errors.New("rpc_url is required")
	}
	return nil
}

func (c *Config) ProgramKey() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.ProgramID)
}

// Mint returns the configured mint, or the zero key when unset.
func (c *Config) Mint() solana.PublicKey {
	if c.TokenMint == "" {
		return solana.PublicKey{}
	}
	return solana.MustPublicKeyFromBase58(c.TokenMint)
}

func (c *Config) Authority() (*wallet.Wallet, error) {
	return wallet.Load(c.AuthorityKey, c.AuthorityKeyFile)
}

func (c *Config) ProgramParams() program.Params {
	p := program.DefaultParams()
	p.AirdropInterval = c.AirdropInterval
	p.MinAirdropEligible = c.MinAirdropEligible * curve.UnitsPerToken
	p.PotFunding, _ = program.ParsePotFunding(c.PotFunding)
	return p
}

func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		PollInterval: c.PollInterval,
		MinEligible:  c.MinAirdropEligible * curve.UnitsPerToken,
		TokenMint:    c.Mint(),
		Retry: scheduler.RetryConfig{
			MaxTries:        c.Retry.MaxTries,
			InitialInterval: c.Retry.InitialInterval,
			MaxInterval:     c.Retry.MaxInterval,
		},
	}
}
