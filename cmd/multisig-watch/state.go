package main

import (
	"fmt"

	"github.com/devblac/multisig-watch/internal/config"
	"github.com/devblac/multisig-watch/internal/storage"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the persisted checkpoint and its age",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		store, err := storage.Open(cfg.Global.Checkpoint.Backend, cfg.Global.Checkpoint.Path)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		cp, ok, err := store.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("read checkpoint: %w", err)
		}
		fmt.Fprintf(out, "backend:    %s (%s)\n", cfg.Global.Checkpoint.Backend, cfg.Global.Checkpoint.Path)
		if !ok {
			fmt.Fprintln(out, "checkpoint: none (next run starts at the trusted head)")
			return nil
		}
		fmt.Fprintf(out, "next block: %s\n", humanize.Comma(int64(cp.NextBlock)))
		if !cp.UpdatedAt.IsZero() {
			fmt.Fprintf(out, "updated:    %s (%s)\n", cp.UpdatedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(cp.UpdatedAt))
		}
		return nil
	},
}
