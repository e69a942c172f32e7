package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tidemark/cadence/internal/export"
	"github.com/tidemark/cadence/internal/store"
)

var (
	flagExportFrom string
	flagExportTo   string
	flagExportOut  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export materialized entries as an iCalendar feed",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&flagExportFrom, "from", "", "start date YYYY-MM-DD (default one week back)")
	exportCmd.Flags().StringVar(&flagExportTo, "to", "", "end date YYYY-MM-DD (default three months ahead)")
	exportCmd.Flags().StringVarP(&flagExportOut, "out", "o", "", "write to file instead of stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	now := time.Now().In(a.loc)
	from := flagExportFrom
	if from == "" {
		from = now.AddDate(0, 0, -7).Format(store.DateFormat)
	}
	to := flagExportTo
	if to == "" {
		to = now.AddDate(0, 3, 0).Format(store.DateFormat)
	}

	entries, err := a.db.EntriesBetween(from, to)
	if err != nil {
		return err
	}

	feed := export.Calendar(entries, a.loc)
	if flagExportOut == "" {
		fmt.Print(feed)
		return nil
	}
	if err := os.WriteFile(flagExportOut, []byte(feed), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", flagExportOut, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %d entries to %s\n", len(entries), flagExportOut)
	return nil
}
