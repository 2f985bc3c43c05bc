package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/absfs/sealbackup"
)

// cliConfig is the on-disk CLI configuration
type cliConfig struct {
	BackupDir  string `toml:"backup_dir"`
	KeyFile    string `toml:"key_file"`
	MaxBackups *int   `toml:"max_backups"`
	Compress   *bool  `toml:"compress"`
	Cipher     string `toml:"cipher"`
	KDF        string `toml:"kdf"`
	Codec      string `toml:"codec"`
	KeyPolicy  string `toml:"key_policy"`
	Workers    int    `toml:"workers,omitempty"`
}

// defaultConfigPath returns the per-user config file location
func defaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sealbackup", "config.toml"), nil
}

// loadCLIConfig reads path. A missing file at the default location is not
// an error; a missing file the user named explicitly is.
func loadCLIConfig(path string, explicit bool) (*cliConfig, error) {
	cfg := &cliConfig{}
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

// saveCLIConfig writes cfg as TOML with mode 0600
func saveCLIConfig(path string, cfg *cliConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// storeConfig maps the file values onto a library Config rooted at "/"
func (c *cliConfig) storeConfig() (*sealbackup.Config, error) {
	cfg := sealbackup.DefaultConfig("/")
	if c.MaxBackups != nil {
		cfg.MaxBackups = *c.MaxBackups
	}
	cfg.Compress = true
	if c.Compress != nil {
		cfg.Compress = *c.Compress
	}
	if c.Cipher != "" {
		suite, err := sealbackup.ParseCipherSuite(c.Cipher)
		if err != nil {
			return nil, err
		}
		cfg.Cipher = suite
	}
	kdf, err := sealbackup.ParseKDF(c.KDF)
	if err != nil {
		return nil, err
	}
	cfg.KDF = kdf
	if c.Codec != "" {
		cfg.Codec = c.Codec
	}
	if c.Workers > 0 {
		cfg.Parallel.MaxWorkers = c.Workers
	}
	return cfg, nil
}

func (c *cliConfig) keyPolicy() (sealbackup.KeyLoadPolicy, error) {
	switch c.KeyPolicy {
	case "", "lenient":
		return sealbackup.KeyLoadLenient, nil
	case "strict":
		return sealbackup.KeyLoadStrict, nil
	default:
		return 0, fmt.Errorf("unknown key_policy %q (want lenient or strict)", c.KeyPolicy)
	}
}
