package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/example/shift-roster/internal/application"
	"github.com/example/shift-roster/internal/clock"
	"github.com/example/shift-roster/internal/config"
	"github.com/example/shift-roster/internal/logging"
	"github.com/example/shift-roster/internal/persistence/sqlite"
)

const shutdownTimeout = 10 * time.Second

// systemPrincipal is used by maintenance commands that act on the roster
// outside an HTTP session.
var systemPrincipal = application.Principal{Profile: string(application.RoleInspetoria), Role: application.RoleInspetoria}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(nil).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app carries what every subcommand needs once the root command has loaded
// the configuration.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	// environ replaces the process environment when set.
	environ map[string]string
}

func newRootCommand(environ map[string]string) *cobra.Command {
	a := &app{environ: environ}

	root := &cobra.Command{
		Use:           "roster",
		Short:         "Shift roster service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}

	root.AddCommand(
		a.serveCommand(),
		a.migrateCommand(),
		a.snapshotCommand(),
		a.setPasswordCommand(),
	)
	return root
}

func (a *app) init(logOut io.Writer) error {
	var (
		cfg config.Config
		err error
	)
	if a.environ != nil {
		cfg, err = config.LoadFrom(a.environ)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.NewWithWriter(logOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// open builds the injector and resolves storage first, so migration errors
// surface before any other component is built.
func (a *app) open() (do.Injector, *sqlite.Storage, error) {
	injector := setupDI(a.cfg, a.logger)
	storage, err := do.Invoke[*sqlite.Storage](injector)
	if err != nil {
		return nil, nil, err
	}
	return injector, storage, nil
}

func (a *app) closeStorage(storage *sqlite.Storage) {
	if err := storage.Close(); err != nil {
		a.logger.Error("failed to close storage", "error", err)
	}
}

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			injector, storage, err := a.open()
			if err != nil {
				return err
			}
			defer a.closeStorage(storage)

			auth := do.MustInvoke[*application.AuthService](injector)
			created, err := auth.SeedProfiles(cmd.Context(), a.cfg.InitialPassword)
			if err != nil {
				return fmt.Errorf("failed to seed profiles: %w", err)
			}
			if len(created) > 0 {
				a.logger.Warn("profiles created with the initial password; change them with set-password", "profiles", created)
			}
			a.logServeSettings(do.MustInvoke[*clock.Zoned](injector))

			server := &http.Server{
				Addr:              a.cfg.Addr(),
				Handler:           do.MustInvoke[http.Handler](injector),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			return a.run(cmd.Context(), server)
		},
	}
}

func (a *app) logServeSettings(zone *clock.Zoned) {
	a.logger.Info("roster clock ready", "zone", zone.Location().String())
	if !a.cfg.PasswordResetEnabled() {
		a.logger.Info("password reset disabled; set ROSTER_RESET_TOKEN to enable it")
	}
}

// run serves until ctx is cancelled, then drains in-flight requests.
func (a *app) run(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("roster API listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server encountered error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	a.logger.Info("roster API stopped")
	return nil
}

func (a *app) migrateCommand() *cobra.Command {
	var statusOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			storage, err := sqlite.Open(a.cfg.SQLitePath)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer a.closeStorage(storage)

			if !statusOnly {
				if err := storage.Migrate(cmd.Context(), a.logger); err != nil {
					return err
				}
			}
			status, err := storage.MigrationStatus(cmd.Context(), a.logger)
			if err != nil {
				return err
			}
			version := status.CurrentVersion
			if version == "" {
				version = "none"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %s, %d applied, %d pending\n",
				version, len(status.AppliedMigrations), status.PendingCount)
			return err
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "report the schema version without migrating")
	return cmd
}

type snapshotOutput struct {
	Saved    bool   `json:"saved"`
	Reason   string `json:"reason,omitempty"`
	Day      string `json:"day"`
	Pending  int    `json:"pending,omitempty"`
	Existing int    `json:"existing,omitempty"`
	Count    int    `json:"count,omitempty"`
}

func (a *app) snapshotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Refresh statuses and record today's snapshot if it is due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			injector, storage, err := a.open()
			if err != nil {
				return err
			}
			defer a.closeStorage(storage)

			roster := do.MustInvoke[*application.RosterService](injector)
			if _, err := roster.GetRoster(cmd.Context(), systemPrincipal); err != nil {
				return fmt.Errorf("failed to refresh roster: %w", err)
			}

			result := do.MustInvoke[*application.SnapshotRecorder](injector).Record(cmd.Context())
			if result.Err != nil {
				return result.Err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(snapshotOutput{
				Saved:    result.Saved,
				Reason:   result.Reason,
				Day:      result.Day,
				Pending:  result.Pending,
				Existing: result.Existing,
				Count:    result.Count,
			})
		},
	}
}

func (a *app) setPasswordCommand() *cobra.Command {
	var profile, password string
	cmd := &cobra.Command{
		Use:   "set-password",
		Short: "Set a profile password, creating the profile if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			injector, storage, err := a.open()
			if err != nil {
				return err
			}
			defer a.closeStorage(storage)

			auth := do.MustInvoke[*application.AuthService](injector)
			if err := auth.SetPassword(cmd.Context(), profile, password); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", profile)
			return err
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "profile name (inspetoria, ccp or turma)")
	cmd.Flags().StringVar(&password, "password", "", "new password")
	_ = cmd.MarkFlagRequired("profile")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
