package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tidemark/cadence/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	// Initial pass plus periodic reconciliation keep the horizon sliding
	// even when no client ever posts an activation event.
	if err := a.eng.StartCron(a.cfg.Recur.Cron); err != nil {
		return fmt.Errorf("start reconcile cron %q: %w", a.cfg.Recur.Cron, err)
	}
	defer a.eng.Stop()

	srv := server.New(a.db, a.eng, a.loc, VersionString())
	addr := a.cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "cadence serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", a.db.Path)
		fmt.Fprintf(os.Stderr, "  reconcile: %s (horizon %dd)\n", a.cfg.Recur.Cron, a.cfg.Recur.HorizonDays)
		fmt.Fprintf(os.Stderr, "  notify: lead %dm, horizon %dd\n", a.cfg.Notify.LeadMinutes, a.cfg.Notify.HorizonDays)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
