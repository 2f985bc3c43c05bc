package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialise the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.configPath == "" {
				return fmt.Errorf("no config path: use --config")
			}
			if _, err := os.Stat(a.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", a.configPath)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			dir, err := a.backupDir()
			if err != nil {
				return err
			}
			keyFile, err := a.keyPath()
			if err != nil {
				return err
			}
			maxBackups, compress := 10, true
			cfg := &cliConfig{
				BackupDir:  dir,
				KeyFile:    keyFile,
				MaxBackups: &maxBackups,
				Compress:   &compress,
				Cipher:     "aes-256-gcm",
				KDF:        "pbkdf2-sha256",
				Codec:      "json",
				KeyPolicy:  "lenient",
			}
			if err := saveCLIConfig(a.configPath, cfg); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s Wrote %s\n", successMark, highlight.Sprint(a.configPath))
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := a.cfg.storeConfig()
			if err != nil {
				return err
			}
			policy, err := a.cfg.keyPolicy()
			if err != nil {
				return err
			}
			dir, err := a.backupDir()
			if err != nil {
				return err
			}

			effective := cliConfig{
				BackupDir:  dir,
				KeyFile:    a.mustKeyPath(),
				MaxBackups: &config.MaxBackups,
				Compress:   &config.Compress,
				Cipher:     config.Cipher.String(),
				KDF:        config.KDF.String(),
				Codec:      config.Codec,
				KeyPolicy:  policy.String(),
				Workers:    config.Parallel.MaxWorkers,
			}
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(effective)
		},
	}

	cmd.AddCommand(initCmd, show)
	return cmd
}
