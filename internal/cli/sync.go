package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconcile + notification resync pass and exit",
	RunE:  runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res, err := a.eng.OnActivate(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("reconciled %d groups\n", len(res.Applied))
	for _, g := range res.Applied {
		fmt.Printf("  %s\n", g)
	}
	fmt.Printf("notifications: %d scheduled, %d cancelled\n",
		len(res.Notify.Scheduled), len(res.Notify.Cancelled))
	if res.Notify.PermissionDenied {
		fmt.Println("notification permission denied; reminders deferred")
	}
	return nil
}
