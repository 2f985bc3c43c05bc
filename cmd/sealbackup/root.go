package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/absfs/sealbackup"
)

// app holds the state shared by every command
type app struct {
	configPath string
	dir        string
	keyFile    string
	password   string
	verbose    bool
	debug      bool

	cfg    *cliConfig
	logger *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "sealbackup",
		Short: "Encrypted configuration backups and path obfuscation",
		Long: `sealbackup writes password-encrypted backups of JSON settings, restores
and verifies them, prunes old backups, and encrypts individual path strings
under a per-user system key.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/sealbackup/config.toml)")
	rootCmd.PersistentFlags().StringVar(&a.dir, "dir", "", "backup directory")
	rootCmd.PersistentFlags().StringVar(&a.keyFile, "key-file", "", "system key file")
	rootCmd.PersistentFlags().StringVar(&a.password, "password", "", "backup password (else "+passwordEnv+" or a prompt)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&a.debug, "debug", "d", false, "enable debug output")

	rootCmd.AddCommand(newBackupCmd(a), newPathCmd(a), newKeyCmd(a), newConfigCmd(a))
	return rootCmd
}

func (a *app) init(logOut io.Writer) error {
	a.logger = logrus.New()
	a.logger.SetOutput(logOut)
	a.logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	switch {
	case a.debug:
		a.logger.SetLevel(logrus.DebugLevel)
	case a.verbose:
		a.logger.SetLevel(logrus.InfoLevel)
	default:
		a.logger.SetLevel(logrus.WarnLevel)
	}

	path, explicit := a.configPath, a.configPath != ""
	if !explicit {
		if p, err := defaultConfigPath(); err == nil {
			path = p
		}
	}
	cfg, err := loadCLIConfig(path, explicit)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.configPath = path

	a.logger.WithFields(logrus.Fields{
		"event":  "config_loaded",
		"config": path,
	}).Debug("configuration loaded")
	return nil
}

// backupDir resolves the backup directory: flag, then config file, then
// the per-user default
func (a *app) backupDir() (string, error) {
	if a.dir != "" {
		return a.dir, nil
	}
	if a.cfg.BackupDir != "" {
		return a.cfg.BackupDir, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("no backup directory: use --dir or backup_dir: %w", err)
	}
	return filepath.Join(dir, "sealbackup", "backups"), nil
}

func (a *app) keyPath() (string, error) {
	if a.keyFile != "" {
		return a.keyFile, nil
	}
	if a.cfg.KeyFile != "" {
		return a.cfg.KeyFile, nil
	}
	return sealbackup.DefaultKeyStorePath()
}

func (a *app) store() (*sealbackup.BackupStore, error) {
	dir, err := a.backupDir()
	if err != nil {
		return nil, err
	}
	// TODO: root this on basefs over osfs once both can be pinned in go.mod
	fsys, err := sealbackup.NewDirFS(dir)
	if err != nil {
		return nil, err
	}
	config, err := a.cfg.storeConfig()
	if err != nil {
		return nil, err
	}
	config.Logger = a.logger
	return sealbackup.NewBackupStore(fsys, config)
}

// keyStore roots a DirFS at the key file's directory
func (a *app) keyStore() (*sealbackup.KeyStore, error) {
	path, err := a.keyPath()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsys, err := sealbackup.NewDirFS(filepath.Dir(abs))
	if err != nil {
		return nil, err
	}
	policy, err := a.cfg.keyPolicy()
	if err != nil {
		return nil, err
	}
	return sealbackup.NewKeyStore(fsys, sealbackup.KeyStoreConfig{
		Path:   "/" + filepath.Base(abs),
		Policy: policy,
		Logger: a.logger,
	})
}

func (a *app) pathService() (*sealbackup.PathService, error) {
	ks, err := a.keyStore()
	if err != nil {
		return nil, err
	}
	config, err := a.cfg.storeConfig()
	if err != nil {
		return nil, err
	}
	return sealbackup.NewPathService(ks, sealbackup.PathConfig{
		Cipher: config.Cipher,
		Logger: a.logger,
	})
}

// quiet reports whether spinners should be suppressed
func (a *app) quiet() bool {
	return a.verbose || a.debug
}
