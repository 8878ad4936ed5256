package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/subledger/svc/ledger"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create and list ledger backups",
	}
	cmd.AddCommand(newBackupCreateCmd(), newBackupListCmd())
	return cmd
}

func newBackupCreateCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Export a backup now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			row, err := a.exporter.Create(cmd.Context(), ledger.BackupKind(kind))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d bytes\n", row.ID, row.Filename, row.Size)
			return err
		},
	}
	cmd.Flags().StringVar(&kind, "type", string(ledger.BackupFull), "backup type")
	return cmd
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded backups, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rows, err := a.exporter.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tFILE\tTYPE\tSTATUS\tSIZE")
			for _, r := range rows {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", r.ID, r.Filename, r.Kind, r.Status, r.Size)
			}
			return w.Flush()
		},
	}
}
