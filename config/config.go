package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nftledger/crypto"

	"github.com/BurntSushi/toml"
)

const (
	defaultNetworkName = "nftledger-local"
	defaultDataDir     = "./nftledger-data"
)

type Config struct {
	ListenAddress      string `toml:"ListenAddress"`
	AllowedOrigin      string `toml:"AllowedOrigin"`
	DataDir            string `toml:"DataDir"`
	NetworkName        string `toml:"NetworkName"`
	Environment        string `toml:"Environment"`
	SignerKeystorePath string `toml:"SignerKeystorePath"`

	LogLevel      string `toml:"LogLevel"`
	LogFile       string `toml:"LogFile"`
	LogMaxSizeMB  int    `toml:"LogMaxSizeMB"`
	LogMaxBackups int    `toml:"LogMaxBackups"`

	Indexer   Indexer   `toml:"indexer"`
	RateLimit RateLimit `toml:"rate_limit"`
	Telemetry Telemetry `toml:"telemetry"`
}

// PassphraseSource supplies the passphrase protecting a newly created
// signer keystore.
type PassphraseSource func() (string, error)

type loadOptions struct {
	passphrase PassphraseSource
}

// Option customises Load.
type Option func(*loadOptions)

// WithKeystorePassphraseSource sets the passphrase used when Load has to
// create the signer keystore. Without it the keystore is unprotected.
func WithKeystorePassphraseSource(src PassphraseSource) Option {
	return func(o *loadOptions) {
		if src != nil {
			o.passphrase = src
		}
	}
}

// Load loads the configuration from the given path, writing a default file
// and signer keystore when none exists yet.
func Load(path string, opts ...Option) (*Config, error) {
	options := loadOptions{passphrase: func() (string, error) { return "", nil }}
	for _, opt := range opts {
		opt(&options)
	}
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, options.passphrase)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
	}

	if err := ensureKeystore(path, cfg, options.passphrase); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = defaultNetworkName
	}
	if strings.TrimSpace(cfg.Indexer.Driver) == "" {
		cfg.Indexer.Driver = DriverSQLite
	}
	if cfg.Indexer.BatchSize == 0 {
		cfg.Indexer.BatchSize = 256
	}
	if cfg.Indexer.IntervalSeconds == 0 {
		cfg.Indexer.IntervalSeconds = 5
	}
	if cfg.LogMaxSizeMB == 0 {
		cfg.LogMaxSizeMB = 100
	}
}

func ensureKeystore(configPath string, cfg *Config, passphrase PassphraseSource) error {
	keystorePath := cfg.SignerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		if err := writeKeystore(keystorePath, passphrase); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.SignerKeystorePath != keystorePath {
		cfg.SignerKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// keystoreCost is lowered by tests.
var keystoreCost = crypto.StandardKeystore

// Default returns the configuration written for a fresh install.
func Default() *Config {
	return &Config{
		ListenAddress: ":8080",
		DataDir:       defaultDataDir,
		NetworkName:   defaultNetworkName,
		Environment:   "local",
		LogLevel:      "info",
		LogMaxSizeMB:  100,
		LogMaxBackups: 3,
		Indexer: Indexer{
			Driver:          DriverSQLite,
			DSN:             filepath.Join(defaultDataDir, "index.db"),
			BatchSize:       256,
			IntervalSeconds: 5,
		},
		RateLimit: RateLimit{RequestsPerMinute: 600, Burst: 50},
		Telemetry: Telemetry{Endpoint: "localhost:4318", Insecure: true},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string, passphrase PassphraseSource) (*Config, error) {
	keystorePath := defaultKeystorePath(path)
	if err := writeKeystore(keystorePath, passphrase); err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.SignerKeystorePath = keystorePath
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func writeKeystore(path string, passphrase PassphraseSource) error {
	pass, err := passphrase()
	if err != nil {
		return fmt.Errorf("signer keystore passphrase: %w", err)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	return crypto.SaveToKeystore(path, key, pass, keystoreCost)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "signer.keystore")
}
