// Package config loads ledger server configuration from a YAML file, a .env
// file and PERMIT_* environment variables, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/x402-foundation/permitledger"
	"github.com/x402-foundation/permitledger/logging"
	"github.com/x402-foundation/permitledger/mechanisms/evm"
)

// EnvPrefix is prepended to every environment override
const EnvPrefix = "PERMIT_"

// Config is the full server configuration
type Config struct {
	Token   TokenConfig    `yaml:"token"`
	Chain   ChainConfig    `yaml:"chain"`
	Server  ServerConfig   `yaml:"server"`
	Log     logging.Config `yaml:"log"`
	Journal JournalConfig  `yaml:"journal"`
	Relayer RelayerConfig  `yaml:"relayer"`
}

// TokenConfig describes the token deployed at startup
type TokenConfig struct {
	Name     string `yaml:"name" default:"Token"`
	Symbol   string `yaml:"symbol" default:"TKN"`
	Decimals int    `yaml:"decimals" default:"18"`
	Version  string `yaml:"version" default:"1"`

	// InitialSupply is a decimal amount in whole tokens ("10", "2.5")
	InitialSupply string `yaml:"initialSupply" default:"10"`

	Deployer          string `yaml:"deployer"`
	VerifyingContract string `yaml:"verifyingContract"`
}

type ChainConfig struct {
	Network string `yaml:"network" default:"eip155:31337"`
}

type ServerConfig struct {
	Addr      string  `yaml:"addr" default:":8080"`
	RateLimit float64 `yaml:"rateLimit" default:"10"`
	Burst     int     `yaml:"burst" default:"20"`
	MCP       bool    `yaml:"mcp" default:"true"`
}

// JournalConfig selects the operation journal. An empty DSN keeps the journal
// in memory.
type JournalConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table" default:"ledger_journal"`
}

// RelayerConfig holds the relayer identity. The key is optional; without it
// the relay endpoint is disabled. The relayer only relays permits that name
// this account as spender.
type RelayerConfig struct {
	PrivateKey string `yaml:"privateKey"`
}

// Default returns a configuration populated from struct defaults only
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("invalid config defaults: %v", err))
	}
	return cfg
}

// Load reads the optional .env file, the YAML file at path (skipped when
// empty), then applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := Parse(raw, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Fields absent from the document keep their
// current values.
func Parse(raw []byte, cfg *Config) error {
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from PERMIT_* variables resolved through lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"TOKEN_NAME":         &c.Token.Name,
		"TOKEN_SYMBOL":       &c.Token.Symbol,
		"TOKEN_SUPPLY":       &c.Token.InitialSupply,
		"DEPLOYER":           &c.Token.Deployer,
		"VERIFYING_CONTRACT": &c.Token.VerifyingContract,
		"NETWORK":            &c.Chain.Network,
		"SERVER_ADDR":        &c.Server.Addr,
		"LOG_LEVEL":          &c.Log.Level,
		"LOG_STAGE":          &c.Log.Stage,
		"JOURNAL_DSN":        &c.Journal.DSN,
		"RELAYER_KEY":        &c.Relayer.PrivateKey,
	}
	for name, field := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*field = v
		}
	}

	if v, ok := lookup(EnvPrefix + "TOKEN_DECIMALS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sTOKEN_DECIMALS: %w", EnvPrefix, err)
		}
		c.Token.Decimals = n
	}
	if v, ok := lookup(EnvPrefix + "RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %sRATE_LIMIT: %w", EnvPrefix, err)
		}
		c.Server.RateLimit = f
	}
	if v, ok := lookup(EnvPrefix + "LOG_JSON"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sLOG_JSON: %w", EnvPrefix, err)
		}
		c.Log.JSON = b
	}
	return nil
}

// Validate checks that the configuration can build a ledger
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Token.Name) == "" {
		problems = append(problems, "token.name is required")
	}
	if c.Token.Decimals < 1 || c.Token.Decimals > 77 {
		problems = append(problems, "token.decimals must be between 1 and 77")
	}
	if !evm.IsValidAddress(c.Token.Deployer) {
		problems = append(problems, "token.deployer must be a hex address")
	}
	if c.Token.VerifyingContract != "" && !evm.IsValidAddress(c.Token.VerifyingContract) {
		problems = append(problems, "token.verifyingContract must be a hex address")
	}
	if _, err := c.Supply(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := evm.ParseChainID(c.Chain.Network); err != nil {
		problems = append(problems, fmt.Sprintf("chain.network: %v", err))
	}
	if c.Server.RateLimit <= 0 || c.Server.Burst <= 0 {
		problems = append(problems, "server.rateLimit and server.burst must be positive")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, fmt.Sprintf("log.level: %v", err))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Supply returns the initial supply in base units
func (c *Config) Supply() (*big.Int, error) {
	supply, err := evm.ParseAmount(c.Token.InitialSupply, c.Token.Decimals)
	if err != nil {
		return nil, fmt.Errorf("token.initialSupply: %w", err)
	}
	if !evm.IsUint256(supply) {
		return nil, fmt.Errorf("token.initialSupply exceeds uint256")
	}
	return supply, nil
}

// ChainID resolves the configured network. Call Validate first.
func (c *Config) ChainID() *big.Int {
	id, err := evm.ParseChainID(c.Chain.Network)
	if err != nil {
		return new(big.Int).Set(evm.ChainIDHardhat)
	}
	return id
}

// LedgerConfig converts the token section into a ledger configuration
func (c *Config) LedgerConfig() (permitledger.LedgerConfig, error) {
	supply, err := c.Supply()
	if err != nil {
		return permitledger.LedgerConfig{}, err
	}

	cfg := permitledger.LedgerConfig{
		Name:          c.Token.Name,
		Symbol:        c.Token.Symbol,
		Decimals:      uint8(c.Token.Decimals),
		Version:       c.Token.Version,
		InitialSupply: supply,
		Deployer:      common.HexToAddress(c.Token.Deployer),
	}
	if c.Token.VerifyingContract != "" {
		cfg.VerifyingContract = common.HexToAddress(c.Token.VerifyingContract)
	}
	return cfg, nil
}
