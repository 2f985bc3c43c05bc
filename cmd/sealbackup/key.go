package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
)

func newKeyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Inspect and rotate the system key",
	}

	var force bool
	rotate := &cobra.Command{
		Use:   "rotate",
		Short: "Replace the system key; existing path envelopes become unreadable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := a.keyStore()
			if err != nil {
				return err
			}
			if !force {
				printf(cmd.ErrOrStderr(), "%s Rotating makes every encrypted path unreadable. Re-run with --force.\n", highlight.Sprint("!"))
				return nil
			}
			key, err := ks.Rotate()
			if err != nil {
				return err
			}
			clear(key)
			printf(cmd.OutOrStdout(), "%s Rotated key at %s\n", successMark, highlight.Sprint(a.mustKeyPath()))
			return nil
		},
	}
	rotate.Flags().BoolVar(&force, "force", false, "confirm the rotation")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show where the system key lives and whether it loads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := a.keyStore()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			path := a.mustKeyPath()
			printf(out, "file:   %s\n", path)
			printf(out, "policy: %s\n", ks.Policy())

			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				printf(out, "state:  %s\n", muted.Sprint("not created (generated on first use)"))
				return nil
			}

			key, err := ks.Key()
			if err != nil {
				return err
			}
			clear(key)
			printf(out, "state:  %s\n", successMark+" loaded")
			return nil
		},
	}

	cmd.AddCommand(status, rotate)
	return cmd
}

func (a *app) mustKeyPath() string {
	p, err := a.keyPath()
	if err != nil {
		return "?"
	}
	return p
}
