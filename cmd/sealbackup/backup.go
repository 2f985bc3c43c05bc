package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/absfs/sealbackup"
	"github.com/absfs/sealbackup/internal/codec"
)

func newBackupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, restore and manage encrypted backups",
	}
	cmd.AddCommand(
		newBackupCreateCmd(a),
		newBackupListCmd(a),
		newBackupVerifyCmd(a),
		newBackupVerifyAllCmd(a),
		newBackupRestoreCmd(a),
		newBackupPruneCmd(a),
		newBackupRekeyCmd(a),
	)
	return cmd
}

func newBackupCreateCmd(a *app) *cobra.Command {
	var raw, noCompress bool

	cmd := &cobra.Command{
		Use:   "create <file|->",
		Short: "Encrypt a JSON document into a new backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			var data any = input
			if !raw {
				if err := codec.Default.Unmarshal(input, &data); err != nil {
					return fmt.Errorf("input is not valid JSON (use --raw to store it verbatim): %w", err)
				}
			}

			store, err := a.store()
			if err != nil {
				return err
			}
			password, err := a.readPassword("Backup password: ")
			if err != nil {
				return err
			}

			var opts *sealbackup.BackupOptions
			if noCompress {
				off := false
				opts = &sealbackup.BackupOptions{Compress: &off}
			}

			stop := startSpinner("Encrypting backup...", a.quiet())
			res, err := store.Create(data, password, opts)
			stop()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printf(out, "%s Created %s (%s)\n", successMark, highlight.Sprint(res.BackupName), formatSize(res.Size))
			for _, name := range res.Pruned {
				printf(out, "%s Pruned %s\n", infoMark, muted.Sprint(name))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "store the input bytes verbatim instead of parsing JSON")
	cmd.Flags().BoolVar(&noCompress, "no-compress", false, "skip gzip compression for this backup")
	return cmd
}

func newBackupListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			metas, err := store.List()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(metas) == 0 {
				printf(out, "%s No backups found\n", infoMark)
				return nil
			}
			for _, m := range metas {
				printf(out, "%s  %s  %s\n", m.Name, m.CreatedAt.Format(time.RFC3339), muted.Sprint(formatSize(m.Size)))
			}
			return nil
		},
	}
}

func newBackupVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <name>",
		Short: "Check that a backup decrypts with the password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			password, err := a.readPassword("Backup password: ")
			if err != nil {
				return err
			}

			stop := startSpinner("Verifying backup...", a.quiet())
			res, err := store.Verify(args[0], password)
			stop()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !res.Valid {
				printf(out, "%s %s: %s\n", errorMark, args[0], res.Reason)
				return fmt.Errorf("backup %s is not valid", args[0])
			}
			printf(out, "%s %s is valid (id %s, created %s, compressed %t)\n",
				successMark, args[0], res.ID, res.Timestamp.Format(time.RFC3339), res.Compressed)
			return nil
		},
	}
}

func newBackupVerifyAllCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-all",
		Short: "Verify every backup in parallel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			password, err := a.readPassword("Backup password: ")
			if err != nil {
				return err
			}

			stop := startSpinner("Verifying backups...", a.quiet())
			reports, err := store.VerifyAll(password)
			stop()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var bad int
			for _, r := range reports {
				switch {
				case r.Err != nil:
					bad++
					printf(out, "%s %s: %v\n", errorMark, r.Name, r.Err)
				case !r.Result.Valid:
					bad++
					printf(out, "%s %s: %s\n", errorMark, r.Name, r.Result.Reason)
				default:
					printf(out, "%s %s\n", successMark, r.Name)
				}
			}
			if bad > 0 {
				return fmt.Errorf("%d of %d backups failed verification", bad, len(reports))
			}
			return nil
		},
	}
}

func newBackupRestoreCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "restore <name>",
		Short: "Decrypt a backup to stdout or a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			password, err := a.readPassword("Backup password: ")
			if err != nil {
				return err
			}

			stop := startSpinner("Restoring backup...", a.quiet())
			data, err := store.Restore(args[0], password)
			stop()
			if err != nil {
				return err
			}

			body, err := renderPayload(data)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			if err := os.WriteFile(output, body, 0600); err != nil {
				return sealbackup.NewIOError("write", output, err)
			}
			printf(cmd.ErrOrStderr(), "%s Restored %s to %s\n", successMark, args[0], highlight.Sprint(output))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the restored document to this file")
	return cmd
}

func newBackupPruneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete the oldest backups beyond the retention limit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			removed, err := store.Cleanup()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(removed) == 0 {
				printf(out, "%s Nothing to prune (limit %d)\n", infoMark, store.Config().MaxBackups)
				return nil
			}
			for _, name := range removed {
				printf(out, "%s Pruned %s\n", successMark, name)
			}
			return nil
		},
	}
}

func newBackupRekeyCmd(a *app) *cobra.Command {
	var newPassword string
	var all, removeOriginals, dryRun bool

	cmd := &cobra.Command{
		Use:   "rekey [name]",
		Short: "Re-encrypt backups under a new password",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("give either a backup name or --all")
			}

			store, err := a.store()
			if err != nil {
				return err
			}
			oldPassword, err := a.readPassword("Current password: ")
			if err != nil {
				return err
			}
			// a dry run never writes, so the current password stands in
			next := oldPassword
			if !dryRun {
				next, err = a.readNewPassword("New password: ", newPassword)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if !all {
				stop := startSpinner("Re-encrypting backup...", a.quiet())
				res, err := store.Rekey(args[0], oldPassword, next)
				stop()
				if err != nil {
					return err
				}
				printf(out, "%s Re-encrypted %s as %s\n", successMark, args[0], highlight.Sprint(res.BackupName))
				return nil
			}

			stop := startSpinner("Re-encrypting backups...", a.quiet())
			report, err := store.RekeyAll(oldPassword, next, sealbackup.RekeyOptions{
				RemoveOriginals: removeOriginals,
				DryRun:          dryRun,
			})
			stop()
			if report != nil {
				for _, name := range report.Rekeyed {
					printf(out, "%s %s\n", successMark, name)
				}
				for name, ferr := range report.Failed {
					printf(out, "%s %s: %v\n", errorMark, name, ferr)
				}
				for _, name := range report.Removed {
					printf(out, "%s Removed %s\n", infoMark, muted.Sprint(name))
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&newPassword, "new-password", "", "new password (else a prompt)")
	cmd.Flags().BoolVar(&all, "all", false, "re-encrypt every backup")
	cmd.Flags().BoolVar(&removeOriginals, "remove-originals", false, "delete each original after it is re-encrypted")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only check that every backup opens with the current password")
	return cmd
}

func readInput(stdin io.Reader, arg string) ([]byte, error) {
	if arg == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, sealbackup.NewIOError("read", arg, err)
	}
	return data, nil
}

// renderPayload turns a restored value back into bytes. Strings come back
// verbatim; everything else is printed as indented JSON.
func renderPayload(v any) ([]byte, error) {
	if s, ok := v.(string); ok {
		return []byte(s), nil
	}
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render restored data: %w", err)
	}
	return append(body, '\n'), nil
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
