package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "Personal life tracker with recurring entries and reminders",
	Long:  "Cadence tracks recurring life entries: templates materialize into dated entries over a sliding horizon, and opted-in entries drive local reminders. Single Go binary, local SQLite.",
}

var flagConfig string

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default ~/.cadence/config.yaml)")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(exportCmd)
}
