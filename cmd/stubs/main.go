// stubs serves an in-memory trading backend for running the dashboard locally.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Arushi221/got-trading-bot/internal/observ"
	"github.com/Arushi221/got-trading-bot/internal/stubs"
)

func main() {
	var (
		addr      string
		seed      int64
		tick      time.Duration
		heartbeat time.Duration
		noEcho    bool
		fail      []string
	)

	cmd := &cobra.Command{
		Use:           "stubs",
		Short:         "Serve a simulated trading backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := stubs.NewServer(stubs.Options{
				Seed:             seed,
				TickInterval:     tick,
				Heartbeat:        heartbeat,
				OmitToggleStatus: noEcho,
			})
			for _, endpoint := range fail {
				s.Fail(endpoint, true)
			}

			mux := http.NewServeMux()
			mux.Handle("/metrics", observ.Handler())
			mux.Handle("/", s.Handler())
			srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go func() { _ = s.Run(ctx) }()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			observ.Log("stub_listening", map[string]any{"addr": addr, "tick": tick.String(), "failing": fail})
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":5000", "listen address")
	cmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "random walk seed")
	cmd.Flags().DurationVar(&tick, "tick", 5*time.Second, "price update interval")
	cmd.Flags().DurationVar(&heartbeat, "heartbeat", 10*time.Second, "stream heartbeat interval")
	cmd.Flags().BoolVar(&noEcho, "no-toggle-echo", false, "omit the status echo from toggle answers")
	cmd.Flags().StringSliceVar(&fail, "fail", nil, "endpoints answering 503 (prices, portfolio, trade, signals, bot_status, toggle_bot, strategies)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
