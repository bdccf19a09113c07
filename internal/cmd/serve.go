package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/thumbcache/internal/capture"
	"github.com/Iron-Ham/thumbcache/internal/event"
	"github.com/Iron-Ham/thumbcache/internal/lifecycle"
	"github.com/Iron-Ham/thumbcache/internal/sweep"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the cache watcher and scheduled retry sweeps",
	Long: `Run in the foreground until interrupted. While serving, thumbcache:

- watches the cache directory and evicts images removed by other processes
- retries failed renders on the sweep.schedule cron schedule
- cancels in-flight renders on SIGUSR1 (background) and logs them on
  SIGUSR2 (foreground)`,
	RunE: runServe,
}

var serveSweepNow bool

func init() {
	serveCmd.Flags().BoolVar(&serveSweepNow, "sweep-now", false, "Run one sweep immediately on start")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.serve(ctx, cmd.OutOrStdout(), manifestPath, serveSweepNow)
}

// serve blocks until ctx is done.
func (a *app) serve(ctx context.Context, out io.Writer, manifest string, sweepNow bool) error {
	var outMu sync.Mutex
	printf := func(format string, args ...any) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	subs := []string{
		a.bus.Subscribe(event.TypeCaptureSucceeded, func(e event.Event) {
			ce := e.(event.CaptureEvent)
			printf("rendered %s (%s, %d bytes)\n", ce.EntityID, ce.Variant, ce.Bytes)
		}),
		a.bus.Subscribe(event.TypeCaptureFailed, func(e event.Event) {
			ce := e.(event.CaptureEvent)
			printf("failed   %s (%s, attempt %d)\n", ce.EntityID, ce.Reason, ce.Attempts)
		}),
		a.bus.Subscribe(event.TypeBackground, func(event.Event) {
			printf("background: in-flight renders cancelled\n")
		}),
	}
	defer func() {
		for _, id := range subs {
			a.bus.Unsubscribe(id)
		}
	}()

	if a.cfg.Cache.Watch {
		w, err := a.cache.Watch(ctx)
		if err != nil {
			return fmt.Errorf("failed to watch cache: %w", err)
		}
		defer w.Close()
	}

	signals := lifecycle.NewSignalSource(a.bus, a.logger)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		signals.Run(ctx)
	}()
	defer wg.Wait()

	if a.cfg.Sweep.Enabled {
		if manifest == "" {
			manifest = a.cfg.Sweep.Manifest
		}
		if manifest == "" {
			a.logger.Warn("sweep enabled but no manifest configured, not scheduling")
		} else {
			source := func() ([]capture.Entity, error) {
				m, err := a.loadManifest(manifest)
				if err != nil {
					return nil, err
				}
				return m.Entities(), nil
			}
			sched, err := sweep.New(a.cfg.Sweep.Schedule, sweep.RetryJob(source, a.coord, a.logger), a.logger)
			if err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()

			if sweepNow {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = sched.RunNow(ctx)
				}()
			}
		}
	}

	printf("Serving cache at %s\n", a.cache.Dir())
	<-ctx.Done()
	a.coord.CancelAllTasks()
	printf("Shutting down\n")
	return nil
}
