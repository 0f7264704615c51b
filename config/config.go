package config

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"fydai/chain"
	"fydai/chain/evm"
	"fydai/native/fixedpoint"
	"fydai/services/authz"
	"fydai/services/series"
)

const (
	defaultListen      = ":8080"
	defaultSchedule    = "@every 30s"
	defaultTimeout     = 20 * time.Second
	defaultPoll        = 2 * time.Second
	defaultSlippage    = "0.005"
	defaultParallelism = 8
	defaultRateLimit   = 5
	defaultBurst       = 10
)

// Duration wraps time.Duration to support YAML and TOML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// UnmarshalText parses the TOML form.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime settings for fydaid and fydaictl.
type Config struct {
	Service     string          `yaml:"service" toml:"service"`
	Environment string          `yaml:"environment" toml:"environment"`
	LogLevel    string          `yaml:"log_level" toml:"log_level"`
	Listen      string          `yaml:"listen" toml:"listen"`
	Chain       ChainConfig     `yaml:"chain" toml:"chain"`
	Contracts   ContractsConfig `yaml:"contracts" toml:"contracts"`
	Series      []SeriesConfig  `yaml:"series" toml:"series"`
	Refresh     RefreshConfig   `yaml:"refresh" toml:"refresh"`
	Execution   ExecutionConfig `yaml:"execution" toml:"execution"`
	Store       StoreConfig     `yaml:"store" toml:"store"`
	HTTP        HTTPConfig      `yaml:"http" toml:"http"`
	Journal     JournalConfig   `yaml:"journal" toml:"journal"`
	Telemetry   TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
}

// ChainConfig locates the RPC endpoint and the account.
type ChainConfig struct {
	RPCURL        string `yaml:"rpc_url" toml:"rpc_url"`
	ChainID       int64  `yaml:"chain_id" toml:"chain_id"`
	Account       string `yaml:"account" toml:"account"`
	SignerKeyEnv  string `yaml:"signer_key_env" toml:"signer_key_env"`
	SignerKeyFile string `yaml:"signer_key_file" toml:"signer_key_file"`
	// KeystoreFile is an encrypted JSON keystore, unlocked with the passphrase
	// in KeystorePassEnv or from an interactive prompt.
	KeystoreFile    string   `yaml:"keystore_file" toml:"keystore_file"`
	KeystorePassEnv string   `yaml:"keystore_pass_env" toml:"keystore_pass_env"`
	PollInterval    Duration `yaml:"poll_interval" toml:"poll_interval"`
}

// ContractsConfig lists the protocol deployment.
type ContractsConfig struct {
	Controller string `yaml:"controller" toml:"controller"`
	Treasury   string `yaml:"treasury" toml:"treasury"`
	Dai        string `yaml:"dai" toml:"dai"`
	Proxy      string `yaml:"proxy" toml:"proxy"`
	Vat        string `yaml:"vat" toml:"vat"`
}

// SeriesConfig is one catalog entry.
type SeriesConfig struct {
	Maturity    int64  `yaml:"maturity" toml:"maturity"`
	DisplayName string `yaml:"display_name" toml:"display_name"`
	Pool        string `yaml:"pool" toml:"pool"`
	FYDai       string `yaml:"fydai" toml:"fydai"`
}

// RefreshConfig drives scheduled snapshot refreshes.
type RefreshConfig struct {
	Schedule    string   `yaml:"schedule" toml:"schedule"`
	Timeout     Duration `yaml:"timeout" toml:"timeout"`
	Parallelism int      `yaml:"parallelism" toml:"parallelism"`
	Collateral  string   `yaml:"collateral" toml:"collateral"`
}

// ExecutionConfig tunes the pipeline.
type ExecutionConfig struct {
	Slippage string `yaml:"slippage" toml:"slippage"`
	Strategy string `yaml:"strategy" toml:"strategy"`
}

// StoreConfig locates the snapshot cache. An empty path disables it.
type StoreConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// HTTPConfig bounds the query API.
type HTTPConfig struct {
	RateLimit     float64  `yaml:"rate_limit" toml:"rate_limit"`
	Burst         int      `yaml:"burst" toml:"burst"`
	AuthSecretEnv string   `yaml:"auth_secret_env" toml:"auth_secret_env"`
	AuthIssuer    string   `yaml:"auth_issuer" toml:"auth_issuer"`
	AuthAudience  string   `yaml:"auth_audience" toml:"auth_audience"`
	WSOrigins     []string `yaml:"ws_origins" toml:"ws_origins"`
}

// JournalConfig locates the action journal. A postgres:// DSN selects
// Postgres, anything else SQLite. Empty disables journaling.
type JournalConfig struct {
	DSN string `yaml:"dsn" toml:"dsn"`
}

// TelemetryConfig selects OTLP exporters.
type TelemetryConfig struct {
	Endpoint    string  `yaml:"otlp_endpoint" toml:"otlp_endpoint"`
	Insecure    bool    `yaml:"insecure" toml:"insecure"`
	Headers     string  `yaml:"headers" toml:"headers"`
	Traces      bool    `yaml:"traces" toml:"traces"`
	Metrics     bool    `yaml:"metrics" toml:"metrics"`
	SampleRatio float64 `yaml:"sample_ratio" toml:"sample_ratio"`
}

// Load reads the configuration from disk and validates the result. Paths
// ending in .toml are decoded as TOML, everything else as YAML.
func Load(path string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(path) == "" {
		return cfg, fmt.Errorf("config path required")
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	} else {
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.Service = strings.TrimSpace(cfg.Service)
	if cfg.Service == "" {
		cfg.Service = "fydaid"
	}
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.LogLevel = strings.TrimSpace(cfg.LogLevel)
	cfg.Listen = strings.TrimSpace(cfg.Listen)
	if cfg.Listen == "" {
		cfg.Listen = defaultListen
	}

	cfg.Chain.RPCURL = strings.TrimSpace(cfg.Chain.RPCURL)
	cfg.Chain.Account = strings.TrimSpace(cfg.Chain.Account)
	cfg.Chain.SignerKeyEnv = strings.TrimSpace(cfg.Chain.SignerKeyEnv)
	cfg.Chain.SignerKeyFile = strings.TrimSpace(cfg.Chain.SignerKeyFile)
	cfg.Chain.KeystoreFile = strings.TrimSpace(cfg.Chain.KeystoreFile)
	cfg.Chain.KeystorePassEnv = strings.TrimSpace(cfg.Chain.KeystorePassEnv)
	if cfg.Chain.PollInterval.Duration <= 0 {
		cfg.Chain.PollInterval.Duration = defaultPoll
	}

	for _, addr := range []*string{&cfg.Contracts.Controller, &cfg.Contracts.Treasury, &cfg.Contracts.Dai, &cfg.Contracts.Proxy, &cfg.Contracts.Vat} {
		*addr = strings.TrimSpace(*addr)
	}
	for i := range cfg.Series {
		s := &cfg.Series[i]
		s.DisplayName = strings.TrimSpace(s.DisplayName)
		s.Pool = strings.TrimSpace(s.Pool)
		s.FYDai = strings.TrimSpace(s.FYDai)
		if s.DisplayName == "" {
			s.DisplayName = time.Unix(s.Maturity, 0).UTC().Format("Jan 2006")
		}
	}

	cfg.Refresh.Schedule = strings.TrimSpace(cfg.Refresh.Schedule)
	if cfg.Refresh.Schedule == "" {
		cfg.Refresh.Schedule = defaultSchedule
	}
	if cfg.Refresh.Timeout.Duration <= 0 {
		cfg.Refresh.Timeout.Duration = defaultTimeout
	}
	if cfg.Refresh.Parallelism <= 0 {
		cfg.Refresh.Parallelism = defaultParallelism
	}
	cfg.Refresh.Collateral = strings.TrimSpace(cfg.Refresh.Collateral)
	if cfg.Refresh.Collateral == "" {
		cfg.Refresh.Collateral = series.DefaultCollateral
	}

	cfg.Execution.Slippage = strings.TrimSpace(cfg.Execution.Slippage)
	if cfg.Execution.Slippage == "" {
		cfg.Execution.Slippage = defaultSlippage
	}
	cfg.Execution.Strategy = strings.ToLower(strings.TrimSpace(cfg.Execution.Strategy))
	if cfg.Execution.Strategy == "" {
		cfg.Execution.Strategy = authz.SignFirst.String()
	}

	cfg.Store.Path = strings.TrimSpace(cfg.Store.Path)
	cfg.Journal.DSN = strings.TrimSpace(cfg.Journal.DSN)
	cfg.HTTP.AuthSecretEnv = strings.TrimSpace(cfg.HTTP.AuthSecretEnv)
	cfg.HTTP.AuthIssuer = strings.TrimSpace(cfg.HTTP.AuthIssuer)
	cfg.HTTP.AuthAudience = strings.TrimSpace(cfg.HTTP.AuthAudience)
	if cfg.HTTP.RateLimit <= 0 {
		cfg.HTTP.RateLimit = defaultRateLimit
	}
	if cfg.HTTP.Burst <= 0 {
		cfg.HTTP.Burst = defaultBurst
	}
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
}

func (cfg *Config) validate() error {
	if cfg.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if cfg.Chain.ChainID <= 0 {
		return fmt.Errorf("chain.chain_id must be positive")
	}
	if cfg.Chain.Account != "" && !common.IsHexAddress(cfg.Chain.Account) {
		return fmt.Errorf("chain.account: invalid address %q", cfg.Chain.Account)
	}
	if cfg.Chain.KeystoreFile != "" && (cfg.Chain.SignerKeyEnv != "" || cfg.Chain.SignerKeyFile != "") {
		return fmt.Errorf("chain.keystore_file cannot be combined with a raw signer key")
	}
	if err := cfg.Contracts.validate(); err != nil {
		return fmt.Errorf("contracts: %w", err)
	}
	if len(cfg.Series) == 0 {
		return fmt.Errorf("at least one series must be configured")
	}
	seen := make(map[int64]struct{}, len(cfg.Series))
	for i, s := range cfg.Series {
		if s.Maturity <= 0 {
			return fmt.Errorf("series[%d]: maturity must be a unix timestamp", i)
		}
		if _, dup := seen[s.Maturity]; dup {
			return fmt.Errorf("series[%d]: duplicate maturity %d", i, s.Maturity)
		}
		seen[s.Maturity] = struct{}{}
		if !common.IsHexAddress(s.Pool) || !common.IsHexAddress(s.FYDai) {
			return fmt.Errorf("series[%d]: pool and fydai must be addresses", i)
		}
	}
	if _, err := cron.ParseStandard(cfg.Refresh.Schedule); err != nil {
		return fmt.Errorf("refresh.schedule: %w", err)
	}
	tolerance, err := fixedpoint.ToRay(cfg.Execution.Slippage)
	if err != nil {
		return fmt.Errorf("execution.slippage: %w", err)
	}
	if tolerance.Cmp(fixedpoint.One(fixedpoint.Ray)) >= 0 {
		return fmt.Errorf("execution.slippage must be below 1")
	}
	if _, err := authz.ParseStrategy(cfg.Execution.Strategy); err != nil {
		return fmt.Errorf("execution.strategy: %w", err)
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	return nil
}

func (cfg ContractsConfig) validate() error {
	required := map[string]string{
		"controller": cfg.Controller,
		"treasury":   cfg.Treasury,
		"dai":        cfg.Dai,
		"proxy":      cfg.Proxy,
	}
	for name, value := range required {
		if !common.IsHexAddress(value) {
			return fmt.Errorf("%s: invalid address %q", name, value)
		}
	}
	if cfg.Vat != "" && !common.IsHexAddress(cfg.Vat) {
		return fmt.Errorf("vat: invalid address %q", cfg.Vat)
	}
	return nil
}

// ChainID returns the configured chain id.
func (cfg Config) ChainID() *big.Int {
	return big.NewInt(cfg.Chain.ChainID)
}

// Deployment returns the contract addresses.
func (cfg Config) Deployment() chain.Contracts {
	c := cfg.Contracts
	out := chain.Contracts{
		Controller: common.HexToAddress(c.Controller),
		Treasury:   common.HexToAddress(c.Treasury),
		BaseToken:  common.HexToAddress(c.Dai),
		Proxy:      common.HexToAddress(c.Proxy),
	}
	if c.Vat != "" {
		out.Vat = common.HexToAddress(c.Vat)
	}
	return out
}

// Catalog returns the series descriptors in configuration order.
func (cfg Config) Catalog() []series.Descriptor {
	out := make([]series.Descriptor, 0, len(cfg.Series))
	for _, s := range cfg.Series {
		out = append(out, series.Descriptor{
			Maturity:    s.Maturity,
			DisplayName: s.DisplayName,
			Pool:        common.HexToAddress(s.Pool),
			Bond:        common.HexToAddress(s.FYDai),
		})
	}
	return out
}

// Slippage returns the tolerance as a RAY.
func (cfg Config) Slippage() fixedpoint.Value {
	return fixedpoint.MustRay(cfg.Execution.Slippage)
}

// Strategy returns the authorization strategy.
func (cfg Config) Strategy() authz.Strategy {
	strategy, _ := authz.ParseStrategy(cfg.Execution.Strategy)
	return strategy
}

// HasSigner reports whether a signer key source is configured.
func (cfg Config) HasSigner() bool {
	return cfg.Chain.SignerKeyEnv != "" || cfg.Chain.SignerKeyFile != "" || cfg.Chain.KeystoreFile != ""
}

// SignerKey loads the signing key. Keystores are unlocked with the
// passphrase returned by pass, which is only called for keystore_file.
func (cfg Config) SignerKey(pass func() (string, error)) (*ecdsa.PrivateKey, error) {
	if cfg.Chain.KeystoreFile != "" {
		if pass == nil {
			return nil, fmt.Errorf("keystore passphrase source required")
		}
		passphrase, err := pass()
		if err != nil {
			return nil, err
		}
		return evm.DecryptKeystore(cfg.Chain.KeystoreFile, passphrase)
	}
	return evm.LoadKey(cfg.Chain.SignerKeyEnv, cfg.Chain.SignerKeyFile)
}

// AuthSecret returns the HMAC secret guarding mutating API calls, or "".
func (cfg Config) AuthSecret() string {
	if cfg.HTTP.AuthSecretEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(cfg.HTTP.AuthSecretEnv))
}

// Account returns the read-only account, or nil when none is configured.
func (cfg Config) Account() *common.Address {
	if cfg.Chain.Account == "" {
		return nil
	}
	addr := common.HexToAddress(cfg.Chain.Account)
	return &addr
}
