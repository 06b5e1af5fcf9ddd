package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"AutoTrade/internal/di"
	"AutoTrade/internal/domain/models"
	"AutoTrade/pkg/config"
	"AutoTrade/pkg/server"
	"AutoTrade/pkg/util"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "autotrade",
		Short:         "Reservation-order trading engine for KIS accounts",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")

	rootCmd.AddCommand(newRunCmd(&configPath))
	rootCmd.AddCommand(newReconcileCmd(&configPath))
	rootCmd.AddCommand(newAssignCmd(&configPath))
	rootCmd.AddCommand(newHolidayCmd(&configPath))
	rootCmd.AddCommand(newServeCmd(&configPath))
	return rootCmd
}

// withApp loads the config, wires the engine and hands it to fn with a
// context that is cancelled on SIGINT/SIGTERM.
func withApp(configPath string, fn func(ctx context.Context, app *server.App) error) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return fn(ctx, app)
}

func marketFlag(cmd *cobra.Command) (models.Country, error) {
	m, _ := cmd.Flags().GetString("market")
	return models.ParseCountry(strings.ToUpper(m))
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRunCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one trading session for a market",
		Long: `Run one full session: holiday gate, sell-ladder reconciliation, screening,
then buy and sell reservation orders.
Example: autotrade run --market KOR --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			market, err := marketFlag(cmd)
			if err != nil {
				return err
			}
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			return withApp(*configPath, func(ctx context.Context, app *server.App) error {
				sum, err := app.Dispatcher.Execute(ctx, models.SessionCommand{Market: market, DryRun: dryRun})
				if sum != nil {
					if perr := printJSON(sum); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().String("market", "", "market to trade (KOR, USA, JPN, CHN, HKG, VNM)")
	cmd.Flags().Bool("dry-run", false, "journal orders without sending them")
	_ = cmd.MarkFlagRequired("market")
	return cmd
}

func newReconcileCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile persisted sell ladders against broker holdings",
		RunE: func(cmd *cobra.Command, args []string) error {
			market, err := marketFlag(cmd)
			if err != nil {
				return err
			}
			return withApp(*configPath, func(ctx context.Context, app *server.App) error {
				_, rep, err := app.Reconciler.Run(ctx, market)
				if err != nil {
					return err
				}
				return printJSON(rep)
			})
		},
	}
	cmd.Flags().String("market", "", "market to reconcile")
	_ = cmd.MarkFlagRequired("market")
	return cmd
}

func newAssignCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "assign",
		Short: "Rebuild symbol to category assignments from the candidate lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(ctx context.Context, app *server.App) error {
				assigned, err := app.Merger.Rebuild(ctx)
				if err != nil {
					return err
				}
				return printJSON(assigned)
			})
		},
	}
}

func newHolidayCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "holiday",
		Short: "Print a market's open status today and its n-th next open day",
		RunE: func(cmd *cobra.Command, args []string) error {
			market, err := marketFlag(cmd)
			if err != nil {
				return err
			}
			n, _ := cmd.Flags().GetInt("nth")
			return withApp(*configPath, func(ctx context.Context, app *server.App) error {
				today := util.DateOf(time.Now(), app.Cfg.Location())
				closed, err := app.Holidays.IsHoliday(ctx, market, today)
				if err != nil {
					return err
				}
				day, err := app.Holidays.NthOpenDay(ctx, market, n)
				if err != nil {
					return err
				}
				fmt.Printf("market=%s today=%s closed=%t open_day[%d]=%s\n",
					market, util.FormatYMD(today), closed, n, util.FormatYMD(day))
				return nil
			})
		},
	}
	cmd.Flags().String("market", "KOR", "market calendar to query")
	cmd.Flags().Int("nth", 1, "which upcoming open day to resolve")
	return cmd
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and consume session commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(ctx context.Context, app *server.App) error {
				log.Printf("env=%s port=%d kafka=%v", app.Cfg.Environment, app.Cfg.Server.Port, app.Cfg.Kafka.Brokers)
				return app.Serve(ctx)
			})
		},
	}
}
