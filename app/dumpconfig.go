package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoVPN-Admin/GoVPN-Admin/internal/config"
)

func init() { //nolint: gochecknoinits
	dumpConfigCmd.Flags().BoolVar(&dumpJSON, "json", false, "Dump the configuration as JSON")

	rootCmd.AddCommand(dumpConfigCmd)
}

var (
	dumpJSON bool

	dumpConfigCmd = &cobra.Command{
		Use:   "dumpconfig",
		Short: "Print the effective configuration and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			if cfg, err = config.ReadConfig(configPath); err != nil {
				return err
			}

			var out string
			if dumpJSON {
				out, err = config.DumpConfigJSON(cfg)
			} else {
				out, err = config.DumpConfig(cfg)
			}

			if err != nil {
				return err
			}

			fmt.Println(out)

			return nil
		},
	}
)
