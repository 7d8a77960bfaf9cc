package app

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/GoVPN-Admin/GoVPN-Admin/internal/config"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/daemon"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/logger"
)

func init() { //nolint: gochecknoinits
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single directory sync and exit",
	PreRun: func(_ *cobra.Command, _ []string) {
		if cfg, err = config.ReadConfig(configPath); err != nil {
			panic(err)
		}

		if err = logger.Init(cfg.Log); err != nil {
			panic(err)
		}
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		if !cfg.Directory.Enabled {
			return errors.New("directory sync is not enabled in the configuration")
		}

		return daemon.New(&cfg).SyncDirectory()
	},
}
