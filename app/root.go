// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"

	"github.com/GoVPN-Admin/GoVPN-Admin/internal/config"
)

var (
	configPath string // Path to the configuration file

	cfg config.Config
	err error
)

var rootCmd = &cobra.Command{
	Use:   "go-vpn-admin",
	Short: "GoVPN-Admin is a self-service VPN account portal",
	Long: `GoVPN-Admin is a self-service portal for VPN accounts on an iKuai
gateway, keeping the local database, the corporate directory and the
gateway itself in sync.`,
	Args: cobra.OnlyValidArgs,
}

func init() { //nolint: gochecknoinits
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
