package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/samber/do/v2"

	"github.com/example/shift-roster/internal/application"
	"github.com/example/shift-roster/internal/clock"
	"github.com/example/shift-roster/internal/config"
	httptransport "github.com/example/shift-roster/internal/http"
	"github.com/example/shift-roster/internal/metrics"
	"github.com/example/shift-roster/internal/notify"
	"github.com/example/shift-roster/internal/persistence/sqlite"
	"github.com/example/shift-roster/internal/report"
)

const storageInitTimeout = 30 * time.Second

// setupDI registers one provider per component. Providers are lazy, so a
// command only opens what it resolves.
func setupDI(cfg config.Config, logger *slog.Logger) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, logger)

	do.Provide(injector, func(i do.Injector) (*clock.Zoned, error) {
		c := do.MustInvoke[config.Config](i)
		return clock.Load(c.Timezone)
	})

	do.Provide(injector, func(i do.Injector) (*sqlite.Storage, error) {
		c := do.MustInvoke[config.Config](i)
		log := do.MustInvoke[*slog.Logger](i)

		storage, err := sqlite.Open(c.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), storageInitTimeout)
		defer cancel()
		if err := storage.Migrate(ctx, log); err != nil {
			_ = storage.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		return storage, nil
	})

	do.Provide(injector, func(i do.Injector) (*metrics.Metrics, error) {
		return metrics.New(nil)
	})

	do.Provide(injector, func(i do.Injector) (*notify.WebhookSender, error) {
		c := do.MustInvoke[config.Config](i)
		return notify.NewWebhookSender(c.WebhookURL, c.WebhookTimeout), nil
	})

	do.Provide(injector, func(i do.Injector) (*application.SnapshotRecorder, error) {
		storage := do.MustInvoke[*sqlite.Storage](i)
		zone := do.MustInvoke[*clock.Zoned](i)
		return application.NewSnapshotRecorder(
			newHistoryRepositoryAdapter(storage.History),
			zone.NowFunc(),
			do.MustInvoke[*slog.Logger](i),
		).
			WithNotifier(do.MustInvoke[*notify.WebhookSender](i)).
			WithObserver(do.MustInvoke[*metrics.Metrics](i)), nil
	})

	do.Provide(injector, func(i do.Injector) (*application.RosterService, error) {
		c := do.MustInvoke[config.Config](i)
		storage := do.MustInvoke[*sqlite.Storage](i)
		zone := do.MustInvoke[*clock.Zoned](i)
		return application.NewRosterServiceWithLogger(
			newPersonRepositoryAdapter(storage.People),
			do.MustInvoke[*application.SnapshotRecorder](i),
			zone.NowFunc(),
			do.MustInvoke[*slog.Logger](i),
		).
			WithShiftDuration(c.ShiftDuration).
			WithTransitionObserver(do.MustInvoke[*metrics.Metrics](i)), nil
	})

	do.Provide(injector, func(i do.Injector) (*application.HistoryService, error) {
		c := do.MustInvoke[config.Config](i)
		storage := do.MustInvoke[*sqlite.Storage](i)
		zone := do.MustInvoke[*clock.Zoned](i)
		return application.NewHistoryService(
			newHistoryRepositoryAdapter(storage.History),
			newPersonRepositoryAdapter(storage.People),
			report.NewXLSXWriter(),
			cache.New(c.HistoryCacheTTL, 2*c.HistoryCacheTTL),
			zone.NowFunc(),
			do.MustInvoke[*slog.Logger](i),
		), nil
	})

	do.Provide(injector, func(i do.Injector) (*application.AuthService, error) {
		c := do.MustInvoke[config.Config](i)
		storage := do.MustInvoke[*sqlite.Storage](i)
		zone := do.MustInvoke[*clock.Zoned](i)
		return application.NewAuthServiceWithLogger(
			newProfileRepositoryAdapter(storage.Profiles),
			newSessionRepositoryAdapter(storage.Sessions),
			nil,
			uuid.NewString,
			zone.NowFunc(),
			c.SessionTTL,
			do.MustInvoke[*slog.Logger](i),
		).WithResetToken(c.ResetToken), nil
	})

	do.Provide(injector, func(i do.Injector) (http.Handler, error) {
		c := do.MustInvoke[config.Config](i)
		log := do.MustInvoke[*slog.Logger](i)
		auth := do.MustInvoke[*application.AuthService](i)
		m := do.MustInvoke[*metrics.Metrics](i)

		return httptransport.NewRouter(httptransport.RouterConfig{
			Auth:         httptransport.NewAuthHandler(auth, log).WithSecureCookies(c.SecureCookies),
			Roster:       httptransport.NewRosterHandler(do.MustInvoke[*application.RosterService](i), log),
			History:      httptransport.NewHistoryHandler(do.MustInvoke[*application.HistoryService](i), log),
			Sessions:     auth,
			LoginLimiter: httptransport.NewClientRateLimiter(c.LoginRate, c.LoginBurst, log),
			Metrics:      m.Handler(),
			Health:       do.MustInvoke[*sqlite.Storage](i),
			Logger:       log,
			Middleware: []func(http.Handler) http.Handler{
				httptransport.RequestLogger(log),
				httptransport.Instrument(m),
			},
		}), nil
	})

	return injector
}
