package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"storedash/internal/api"
	"storedash/internal/cache"
	"storedash/internal/catalog"
	"storedash/internal/config"
	"storedash/internal/logsink"
	"storedash/internal/media"
	"storedash/internal/session"
	"storedash/internal/telemetry"
)

type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	session *session.Store
	api     *api.Client
	catalog *catalog.Client
	details *catalog.DetailsLoader
	media   *media.Client

	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, level slog.Level) (*app, error) {
	a := &app{cfg: cfg}

	handlers := []slog.Handler{slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})}
	if cfg.Logs.Enabled() {
		sink, err := logsink.New(ctx, cfg.Logs, level)
		if err != nil {
			return nil, fmt.Errorf("log sink: %w", err)
		}
		handlers = append(handlers, sink)
		a.closers = append(a.closers, func(context.Context) error { return sink.Close() })
	}
	tel, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.closers = append(a.closers, tel.Shutdown)
	if tel.Handler != nil {
		handlers = append(handlers, tel.Handler)
	}
	a.logger = slog.New(fanout(handlers))
	slog.SetDefault(a.logger)

	a.session = session.NewStore(cfg.Session.Path, cfg.Session.Passphrase)
	if token := strings.TrimSpace(cfg.API.Token); token != "" {
		if err := a.session.Save(token); err != nil {
			return nil, fmt.Errorf("store token from environment: %w", err)
		}
	} else if _, err := a.session.Load(); err != nil && !errors.Is(err, session.ErrNoToken) {
		return nil, err
	}

	a.api, err = api.New(cfg.API, api.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.catalog = catalog.New(a.api, catalog.Options{
		TokenSource:    a.session.Token,
		OnUnauthorized: a.session.Logout,
	})

	details, err := cache.New[string, json.RawMessage](cfg.Cache.Capacity)
	if err != nil {
		return nil, err
	}
	a.details = catalog.NewDetailsLoader(a.catalog, details)

	blobs, err := cache.New[string, *api.Blob](cfg.Cache.Capacity)
	if err != nil {
		return nil, err
	}
	a.media = media.New(a.api, media.Options{
		AdminKey:       cfg.Media.AdminKey,
		TokenSource:    a.session.Token,
		OnUnauthorized: a.session.Logout,
		BlobCache:      blobs,
	})
	return a, nil
}

func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}

// multiHandler sends each record to every handler that accepts its level.
type multiHandler []slog.Handler

func fanout(handlers []slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return multiHandler(handlers)
}

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(multiHandler, len(m))
	for i, h := range m {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	next := make(multiHandler, len(m))
	for i, h := range m {
		next[i] = h.WithGroup(name)
	}
	return next
}
