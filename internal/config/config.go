// Package config centralizes runtime configuration for kvsd. It loads a JSON
// or YAML file (chosen by extension) and exposes a process-wide configuration
// with sensible defaults. Tests and development builds use defaults when the
// file is not present. Operators place a file at /etc/kvs/config.yaml or name
// one via the CONFIG_FILE env var; KVS_* variables override single fields.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds configurable options for the kvs node. With RunTendermint set
// kvsd initializes and supervises a local `tendermint node` wired to
// ABCIAddress; GenesisState names a JSON file copied into the app_state of a
// freshly initialized genesis.
type Config struct {
	Home           string  `json:"home" yaml:"home"`
	DBFile         string  `json:"db_file" yaml:"db_file"`
	KeyFile        string  `json:"key_file" yaml:"key_file"`
	ABCIAddress    string  `json:"abci_address" yaml:"abci_address"`
	RPCAddress     string  `json:"rpc_address" yaml:"rpc_address"`
	APIPort        int     `json:"api_port" yaml:"api_port"`
	DocsDir        string  `json:"docs_dir" yaml:"docs_dir"`
	LogLevel       string  `json:"log_level" yaml:"log_level"`
	DefaultBaseFee string  `json:"default_base_fee" yaml:"default_base_fee"`
	BackupInterval int64   `json:"backup_interval" yaml:"backup_interval"`
	MaxBackups     int     `json:"max_backups" yaml:"max_backups"`
	APIRateLimit   float64 `json:"api_rate_limit" yaml:"api_rate_limit"`
	APIRateBurst   int     `json:"api_rate_burst" yaml:"api_rate_burst"`
	ChainID        string  `json:"chain_id" yaml:"chain_id"`
	RunTendermint  bool    `json:"run_tendermint" yaml:"run_tendermint"`
	TendermintHome string  `json:"tendermint_home" yaml:"tendermint_home"`
	GenesisState   string  `json:"genesis_state" yaml:"genesis_state"`
}

var cfg *Config

// Defaults returns the configuration used for any field a file leaves unset.
func Defaults() *Config {
	return &Config{
		Home:           ".kvs",
		DBFile:         "kvs.db",
		KeyFile:        "kvs_key.pem",
		ABCIAddress:    "tcp://127.0.0.1:26658",
		RPCAddress:     "http://127.0.0.1:26657",
		APIPort:        8080,
		DocsDir:        "docs",
		LogLevel:       "info",
		DefaultBaseFee: "",
		BackupInterval: 100,
		MaxBackups:     20,
		APIRateLimit:   20,
		APIRateBurst:   40,
		ChainID:        "kvs-local",
	}
}

// LoadConfig reads the file at path. A missing file yields defaults without
// error; a file that cannot be parsed yields defaults and the parse error so
// the caller can report it.
func LoadConfig(path string) (*Config, error) {
	def := Defaults()

	if path == "" {
		applyEnv(def)
		cfg = def
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		applyEnv(def)
		cfg = def
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	var c Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &c)
	default:
		err = json.Unmarshal(b, &c)
	}
	if err != nil {
		applyEnv(def)
		cfg = def
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	merge(&c, def)
	applyEnv(&c)
	cfg = &c
	return cfg, nil
}

// merge fills zero-value fields of c from def.
func merge(c, def *Config) {
	if c.Home == "" {
		c.Home = def.Home
	}
	if c.DBFile == "" {
		c.DBFile = def.DBFile
	}
	if c.KeyFile == "" {
		c.KeyFile = def.KeyFile
	}
	if c.ABCIAddress == "" {
		c.ABCIAddress = def.ABCIAddress
	}
	if c.RPCAddress == "" {
		c.RPCAddress = def.RPCAddress
	}
	if c.APIPort == 0 {
		c.APIPort = def.APIPort
	}
	if c.DocsDir == "" {
		c.DocsDir = def.DocsDir
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.BackupInterval == 0 {
		c.BackupInterval = def.BackupInterval
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = def.MaxBackups
	}
	if c.APIRateLimit == 0 {
		c.APIRateLimit = def.APIRateLimit
	}
	if c.APIRateBurst == 0 {
		c.APIRateBurst = def.APIRateBurst
	}
	if c.ChainID == "" {
		c.ChainID = def.ChainID
	}
}

func applyEnv(c *Config) {
	setString := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}
	setString("KVS_HOME", &c.Home)
	setString("KVS_DB_FILE", &c.DBFile)
	setString("KVS_KEY_FILE", &c.KeyFile)
	setString("KVS_ABCI_ADDRESS", &c.ABCIAddress)
	setString("KVS_RPC_ADDRESS", &c.RPCAddress)
	setString("KVS_LOG_LEVEL", &c.LogLevel)
	setString("KVS_DEFAULT_BASE_FEE", &c.DefaultBaseFee)
	setString("KVS_CHAIN_ID", &c.ChainID)
	setString("KVS_TENDERMINT_HOME", &c.TendermintHome)
	setString("KVS_GENESIS_STATE", &c.GenesisState)

	if v, err := strconv.ParseBool(os.Getenv("KVS_RUN_TENDERMINT")); err == nil {
		c.RunTendermint = v
	}

	if v, err := strconv.Atoi(os.Getenv("KVS_API_PORT")); err == nil && v > 0 {
		c.APIPort = v
	}
}

// Get returns the loaded configuration. If LoadConfig hasn't been called
// yet, it returns defaults.
func Get() *Config {
	if cfg == nil {
		LoadConfig("")
	}
	return cfg
}

// Path resolves the config file location from CONFIG_FILE, falling back to
// /etc/kvs/config.yaml.
func Path() string {
	if p := strings.TrimSpace(os.Getenv("CONFIG_FILE")); p != "" {
		return p
	}
	return "/etc/kvs/config.yaml"
}
