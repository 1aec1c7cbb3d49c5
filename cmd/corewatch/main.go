package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rivalscope/corewatch/internal/app"
	"github.com/rivalscope/corewatch/internal/config"
	"github.com/rivalscope/corewatch/internal/coordinator"
	"github.com/rivalscope/corewatch/internal/domain"
	"github.com/rivalscope/corewatch/internal/scheduler"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "corewatch",
		Short: "CoreWatch — competitive intelligence snapshot & report pipeline",
		Long: `CoreWatch captures competitor web pages, scores data completeness,
runs LLM-backed comparative analysis, and composes versioned reports
on demand or on a cron schedule, with bounded concurrency and a
queue-backed fallback for overloaded projects.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(createProjectCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(triggerCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadApp() (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := config.NewLogger(cfg.Logging)
	return app.New(cfg, logger)
}

// serveCmd runs the scheduler and queue workers as a long-lived daemon,
// plus a Prometheus metrics endpoint (§4.12, §6).
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, queue workers, and metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if a.Config.Metrics.Enabled {
				mux := http.NewServeMux()
				mux.Handle(a.Config.Metrics.Path, a.Metrics.Handler())
				srv := &http.Server{Addr: fmt.Sprintf(":%d", a.Config.Metrics.Port), Handler: mux}
				go func() {
					a.Logger.Info("metrics server listening", "addr", srv.Addr, "path", a.Config.Metrics.Path)
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						a.Logger.Error("metrics server failed", "error", err)
					}
				}()
				go func() {
					<-ctx.Done()
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			a.Scheduler.Start()
			defer a.Scheduler.Stop()

			go a.Coordinator.StartQueueWorkers(ctx, a.Config.Queue.Workers)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			a.Logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		},
	}
}

// createProjectCmd registers a new project, serialized through the
// project_creation:{userId}:{name} lock (§5) so a duplicate name for the
// same user fails fast instead of racing into storage twice.
func createProjectCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "create-project [name]",
		Short: "Create a project, rejecting duplicate {user, name} pairs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.Projects.Create(context.Background(), domain.Project{UserID: userID, Name: args[0]})
			if err != nil {
				return err
			}
			fmt.Printf("project created: %s\n", p.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// reportCmd generates a single report immediately via the coordinator's
// two-path strategy (§4.10) and prints the AsyncResult.
func reportCmd() *cobra.Command {
	var timeout time.Duration
	var fallback bool

	cmd := &cobra.Command{
		Use:   "report [projectID]",
		Short: "Generate a competitive intelligence report for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			result := a.Coordinator.ProcessInitialReport(context.Background(), args[0], coordinator.Options{
				Timeout:         timeout,
				FallbackToQueue: fallback,
			})

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "immediate-path timeout override (0 = config default)")
	cmd.Flags().BoolVar(&fallback, "fallback-to-queue", true, "queue the report if the immediate path fails or times out")
	return cmd
}

// scheduleCmd registers a recurring schedule for a project (§4.5).
func scheduleCmd() *cobra.Command {
	var customCron string

	cmd := &cobra.Command{
		Use:   "schedule [projectID] [DAILY|WEEKLY|BIWEEKLY|MONTHLY|CUSTOM]",
		Short: "Register a recurring report schedule for a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			freq, err := scheduler.ParseFrequency(args[1])
			if err != nil {
				return err
			}

			scheduleID, err := a.Scheduler.Schedule(context.Background(), args[0], freq, customCron)
			if err != nil {
				return err
			}
			fmt.Printf("schedule registered: %s\n", scheduleID)
			return nil
		},
	}

	cmd.Flags().StringVar(&customCron, "cron", "", "custom cron expression, required when frequency is CUSTOM")
	return cmd
}

// triggerCmd fires a registered schedule immediately, outside its cron
// cadence (manual override named in §4.5).
func triggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger [scheduleID]",
		Short: "Manually fire a registered report schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Scheduler.Trigger(context.Background(), args[0])
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("corewatch %s\n", config.Version)
		},
	}
}
