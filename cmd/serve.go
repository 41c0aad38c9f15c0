package main

import (
	"context"
	"fmt"

	"github.com/nagiyu/niconico-mylist-assistant/internal/notify"
	"github.com/nagiyu/niconico-mylist-assistant/internal/repositories"
	"github.com/nagiyu/niconico-mylist-assistant/internal/server"
	"github.com/nagiyu/niconico-mylist-assistant/internal/services"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
	"github.com/nagiyu/niconico-mylist-assistant/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// Serve runs the music API, the notification hub and the redis relay until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.Validate(); err != nil {
		return err
	}

	google, err := services.NewGoogleService(r.config.Credentials.Google, r.httpClient)
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, r.config, r.logger)
	if err != nil {
		return err
	}
	defer st.Close()

	var rdb *redis.Client
	if r.config.Redis.URL != "" {
		opts, err := redis.ParseURL(r.config.Redis.URL)
		if err != nil {
			return fmt.Errorf("%w: redis.url: %v", shared.ErrInvalidConfig, err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	hub := notify.NewHub(r.logger)
	notifier := notify.NewNotifier(hub, rdb, r.config.Redis, r.logger)

	cfg := server.APIConfig{
		Repo:           repositories.NewMusicRepository(st, r.logger),
		Identity:       server.NewIdentityCache(google),
		Lookup:         services.NewNiconicoService(r.config.Niconico, r.httpClient, r.logger),
		Notifier:       notifier,
		Streams:        hub,
		AllowedOrigins: []string{r.config.Server.PublicURL},
		Logger:         r.logger,
	}

	if r.config.Register.Endpoint != "" {
		reg, err := services.NewRegisterService(r.config.Register, r.config.Server, nil, r.logger)
		if err != nil {
			return err
		}
		cfg.Jobs = reg
		cfg.Callbacks = reg
	} else {
		r.logger.Warn("register.endpoint is not set, auto registration is disabled")
	}

	api, err := server.NewAPI(cfg)
	if err != nil {
		return err
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return notifier.RunSubscriber(gctx)
	})
	g.Go(func() error {
		return server.ListenAndServe(gctx, addr, api.Handler(), r.logger)
	})

	return g.Wait()
}
