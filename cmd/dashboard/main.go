// dashboard is a terminal client for the trading backend: it keeps prices,
// portfolio, signals and bot status in sync and submits manual trades.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Arushi221/got-trading-bot/internal/config"
	"github.com/Arushi221/got-trading-bot/internal/dashboard"
	"github.com/Arushi221/got-trading-bot/internal/observ"
	"github.com/Arushi221/got-trading-bot/internal/scheduler"
	"github.com/Arushi221/got-trading-bot/internal/trade"
	"github.com/Arushi221/got-trading-bot/internal/view"
)

var (
	version = "0.1.0"
	cfgPath string
	baseURL string
	userID  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "dashboard",
		Short:         "Trading dashboard sync client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config path (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "backend base URL (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user id (overrides config)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(pricesCmd())
	rootCmd.AddCommand(portfolioCmd())
	rootCmd.AddCommand(signalsCmd())
	rootCmd.AddCommand(strategiesCmd())
	rootCmd.AddCommand(tradeCmd())
	rootCmd.AddCommand(botCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Root, error) {
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.Load(cfgPath); err != nil {
			return cfg, fmt.Errorf("load config %s: %w", cfgPath, err)
		}
	}
	if baseURL != "" {
		cfg.Backend.BaseURL = baseURL
	}
	if userID != "" {
		cfg.UserID = userID
	}
	return cfg, cfg.Validate()
}

func newSession() (*dashboard.Session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return dashboard.New(cfg, dashboard.Options{})
}

func runCmd() *cobra.Command {
	var metricsAddr, initial string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Keep every view in sync and redraw on change",
		Long: `Keep every view in sync and redraw on change. Input lines:
  1-4                   dashboard, portfolio, signals, automation
  buy|sell SYMBOL QTY   submit a manual trade
  bot on|off            toggle the trading bot
  q                     quit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if initial != "" {
				cfg.View.Initial = initial
			}
			s, err := dashboard.New(cfg, dashboard.Options{})
			if err != nil {
				return err
			}
			defer s.Close()

			if metricsAddr != "" {
				observ.SetVersion(version)
				mux := http.NewServeMux()
				mux.Handle("/metrics", observ.Handler())
				mux.Handle("/healthz", observ.HealthHandler())
				srv := &http.Server{Addr: metricsAddr, Handler: mux}
				observ.Log("metrics_listen", map[string]any{"addr": metricsAddr})
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						observ.LogError("metrics_listen_failed", err, map[string]any{"addr": metricsAddr})
					}
				}()
				defer srv.Close()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			redraw := make(chan struct{}, 1)
			s.OnChange(func(scheduler.Source) {
				select {
				case redraw <- struct{}{}:
				default:
				}
			})
			if err := s.Start(ctx); err != nil {
				return err
			}

			input := make(chan string)
			go func() {
				sc := bufio.NewScanner(cmd.InOrStdin())
				for sc.Scan() {
					select {
					case input <- sc.Text():
					case <-ctx.Done():
						return
					}
				}
			}()

			out := cmd.OutOrStdout()
			for {
				select {
				case <-ctx.Done():
					return nil
				case line := <-input:
					err := s.HandleCommand(ctx, line)
					if errors.Is(err, dashboard.ErrQuit) {
						return nil
					}
					if err != nil {
						observ.LogError("input_failed", err, map[string]any{"input": line})
					}
					select {
					case redraw <- struct{}{}:
					default:
					}
				case <-redraw:
					fmt.Fprint(out, "\033[H\033[2J")
					fmt.Fprintf(out, "== %s ==  %s\n\n", s.Scheduler.Active(), time.Now().Format("15:04:05"))
					fmt.Fprint(out, s.Render())
				}
			}
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address")
	cmd.Flags().StringVar(&initial, "view", "", "initial view: dashboard, portfolio, signals or automation")
	return cmd
}

func pricesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prices",
		Short: "Print current prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()
			snap, err := s.Feed.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), view.RenderPrices(snap))
			return nil
		},
	}
}

func portfolioCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Print portfolio valuation and recent history",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := cmd.Context()
			// Valuation tolerates missing prices, so a feed failure is not fatal here.
			if _, err := s.Feed.Refresh(ctx); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			p, err := s.Portfolio.Refresh(ctx)
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = s.Config().View.HistoryLimit
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, view.RenderPortfolio(p, s.Prices.Snapshot(), true))
			fmt.Fprintln(out)
			fmt.Fprint(out, view.RenderHistory(p.History, limit))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "history", 0, "number of transactions to show (default from config)")
	return cmd
}

func signalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signals",
		Short: "Print consensus signals with strategy breakdowns",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()
			sigs, err := s.Signals.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), view.RenderSignals(sigs))
			return nil
		},
	}
}

func strategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "Describe the backend's trading strategies",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()
			st, err := s.Signals.RefreshStrategies(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), view.RenderStrategies(st))
			return nil
		},
	}
}

func tradeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trade <BUY|SELL> <symbol> <quantity>",
		Short: "Submit a manual trade",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()

			req, err := trade.ParseRequest(args[1], args[0], args[2])
			if err != nil {
				return err
			}
			out := s.Trades.Submit(cmd.Context(), req)
			if !out.Success {
				return errors.New(out.Message)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, out.Message)
			fmt.Fprint(w, view.RenderPortfolio(out.Portfolio, s.Prices.Snapshot(), s.Portfolio.Loaded()))
			return nil
		},
	}
}

func botCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Show the automated trading bot status",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()
			st, err := s.Automation.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), view.RenderBotStatus(st, true))
			return nil
		},
	}

	toggle := func(use string, enabled bool) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: "Set the bot enabled=" + strconv.FormatBool(enabled),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := newSession()
				if err != nil {
					return err
				}
				defer s.Close()
				st, err := s.Automation.Toggle(cmd.Context(), enabled)
				fmt.Fprint(cmd.OutOrStdout(), view.RenderBotStatus(st, s.Automation.Confirmed()))
				return err
			},
		}
	}
	cmd.AddCommand(toggle("enable", true), toggle("disable", false))
	return cmd
}
