package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aak-rpa/henstilling-sync/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "henstilling-sync",
	Short: "Sync parking-violation cases into the billing record store",
	Long:  "Reads exported portal cases, validates owners, corrects depot-placeholder coordinates, resolves company names, and upserts billable violation records without touching records already taken over by invoicing.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
