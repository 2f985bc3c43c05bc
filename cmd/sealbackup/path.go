package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/absfs/sealbackup"
)

func newPathCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Encrypt and inspect path strings under the system key",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "encrypt <path>",
			Short: "Encrypt a path into a JSON envelope",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := a.pathService()
				if err != nil {
					return err
				}
				value, err := svc.EncryptPath(args[0], nil)
				if err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "%s\n", value)
				return nil
			},
		},
		&cobra.Command{
			Use:   "decrypt <value>",
			Short: "Decrypt a path envelope",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := a.pathService()
				if err != nil {
					return err
				}
				p, err := svc.DecryptPath(args[0], nil)
				if err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "%s\n", p)
				return nil
			},
		},
		&cobra.Command{
			Use:   "info <value>",
			Short: "Describe a stored path without revealing its directory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, err := a.pathService()
				if err != nil {
					return err
				}
				info := svc.PathInfo(args[0])
				out := cmd.OutOrStdout()
				printf(out, "encrypted: %t\n", info.IsEncrypted)
				printf(out, "path:      %s\n", info.Path)
				printf(out, "basename:  %s\n", info.Basename)
				printf(out, "dirname:   %s\n", info.Dirname)
				printf(out, "ext:       %s\n", info.Ext)
				printf(out, "absolute:  %t\n", info.IsAbsolute)
				return nil
			},
		},
		&cobra.Command{
			Use:   "is-encrypted <value>",
			Short: "Exit non-zero unless the value is a path envelope",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if !sealbackup.IsEncryptedPath(args[0]) {
					printf(cmd.OutOrStdout(), "false\n")
					return fmt.Errorf("not an encrypted path")
				}
				printf(cmd.OutOrStdout(), "true\n")
				return nil
			},
		},
	)
	return cmd
}
