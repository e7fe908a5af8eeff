package http

import (
	"context"
	"log/slog"
	"net/http"
)

// HealthChecker reports whether storage answers.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Auth     *AuthHandler
	Roster   *RosterHandler
	History  *HistoryHandler
	Sessions SessionValidator
	// LoginLimiter throttles the unauthenticated endpoints when set.
	LoginLimiter *ClientRateLimiter
	Metrics      http.Handler
	Health       HealthChecker
	Logger       *slog.Logger
	Middleware   []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	logger := defaultLogger(cfg.Logger)

	public := func(h http.HandlerFunc) http.Handler {
		if cfg.LoginLimiter != nil {
			return cfg.LoginLimiter.Middleware(h)
		}
		return h
	}
	authed := func(h http.HandlerFunc) http.Handler {
		if cfg.Sessions == nil {
			return h
		}
		return RequireSession(cfg.Sessions, logger)(h)
	}
	operator := func(h http.HandlerFunc) http.Handler {
		return authed(RequireOperator(logger)(h).ServeHTTP)
	}

	if cfg.Auth != nil {
		mux.Handle("POST /login", public(cfg.Auth.Login))
		mux.Handle("POST /password-reset", public(cfg.Auth.ResetPassword))
		mux.Handle("POST /logout", authed(cfg.Auth.Logout))
	}

	if cfg.Roster != nil {
		mux.Handle("GET /people", authed(cfg.Roster.List))
		mux.Handle("GET /people/raw", authed(cfg.Roster.ListRaw))
		mux.Handle("GET /people/count", authed(cfg.Roster.Count))
		mux.Handle("POST /people", operator(cfg.Roster.Create))
		mux.Handle("DELETE /people/{id}", operator(cfg.Roster.Delete))
		mux.Handle("POST /people/{id}/start", operator(cfg.Roster.Start))
		mux.Handle("POST /people/{id}/schedule", operator(cfg.Roster.EditSchedule))
		mux.Handle("POST /people/{id}/end-time", authed(cfg.Roster.SetEndTime))
		mux.Handle("PATCH /people/{id}", authed(cfg.Roster.UpdateField))
		mux.Handle("POST /people/{id}/reset", operator(cfg.Roster.Reset))
		mux.Handle("POST /system/reset", operator(cfg.Roster.ResetAll))
	}

	if cfg.History != nil {
		mux.Handle("GET /history", authed(cfg.History.ForDate))
		mux.Handle("GET /history/recent/{days}", authed(cfg.History.Recent))
		mux.Handle("GET /reports/{date}", authed(cfg.History.Report))
		mux.Handle("GET /reports/{date}/xlsx", authed(cfg.History.Export))
	}

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health.Ping(r.Context()); err != nil {
				handlerLogger(r.Context(), logger, "Router", "Health").ErrorContext(r.Context(), "health check failed", "error", err)
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}
