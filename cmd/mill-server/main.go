package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/mill-arena/internal/api"
	"github.com/park285/mill-arena/internal/challenge"
	appcfg "github.com/park285/mill-arena/internal/config"
	"github.com/park285/mill-arena/internal/match"
	"github.com/park285/mill-arena/internal/msgcat"
	"github.com/park285/mill-arena/internal/obslog"
	"github.com/park285/mill-arena/internal/pairing"
	"github.com/park285/mill-arena/internal/persist"
	"github.com/park285/mill-arena/internal/presence"
	"github.com/park285/mill-arena/internal/registry"
	"github.com/park285/mill-arena/internal/relay"
	"github.com/park285/mill-arena/internal/seek"
	"github.com/park285/mill-arena/internal/tournament"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = obslog.L().Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := run(cfg); err != nil {
		obslog.L().Error("server_exit", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *appcfg.AppConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return err
	}

	ropts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return err
	}
	rdb := redis.NewClient(ropts)
	defer rdb.Close()
	pctx, pcancel := context.WithTimeout(ctx, 5*time.Second)
	err = rdb.Ping(pctx).Err()
	pcancel()
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	hubOpts := []presence.Option{presence.WithPendingQueue(presence.NewPendingQueue(rdb))}
	if cfg.RelayMode == "http" {
		rc := relay.NewClient(cfg.RelayBaseURL,
			relay.WithDryRun(cfg.RelayDryRun),
			relay.WithTopics(tournament.TopicAll, "all"),
		)
		hubOpts = append(hubOpts, presence.WithForwarder(rc))
		obslog.L().Info("relay_enabled", zap.String("base_url", cfg.RelayBaseURL), zap.Bool("dryrun", cfg.RelayDryRun))
	}
	hub := presence.NewHub(hubOpts...)

	reg := registry.New(registry.WithMenuTimeout(cfg.MenuTimeout))
	if bans, err := store.LoadBans(ctx); err != nil {
		obslog.L().Warn("ban_load_failed", zap.Error(err))
	} else {
		for _, id := range bans {
			reg.Ban(id)
		}
		obslog.L().Info("bans_loaded", zap.Int("count", len(bans)))
	}
	mgr := match.NewManager(reg, store, hub,
		match.WithSnapshotStore(match.NewSnapshotStore(rdb)),
		match.WithCatalog(msgs),
		match.WithFirstMoveGrace(cfg.FirstMoveGrace),
	)
	seeks := seek.New(mgr, reg, hub, nil)
	tours := tournament.NewScheduler(store, hub, tournament.WithCatalog(msgs))
	engine := pairing.New(tours, mgr, reg, store, hub,
		pairing.WithCatalog(msgs),
		pairing.WithDelays(0, cfg.RequeueDelay),
	)
	challenges := challenge.New(mgr, reg, hub,
		challenge.WithPresence(hub),
		challenge.WithCatalog(msgs),
		challenge.WithTTL(cfg.ChallengeTTL),
		challenge.WithRematchWindow(cfg.RematchWindow),
	)
	mgr.OnFinish(engine.HandleMatchFinished)
	mgr.OnFinish(challenges.HandleMatchFinished)

	if err := tours.Start(ctx, cfg.CalendarInterval, cfg.LifecycleInterval); err != nil {
		return err
	}
	if err := engine.Start(ctx, cfg.PairingInterval); err != nil {
		_ = tours.Stop()
		return err
	}

	gateway := api.New(api.Deps{
		Hub:        hub,
		Matches:    mgr,
		Seeks:      seeks,
		Challenges: challenges,
		Pairing:    engine,
		Tours:      tours,
		Registry:   reg,
		Store:      store,
		Msgs:       msgs,
	}, api.WithOrigins(cfg.AllowedOrigins...), api.WithCreators(cfg.CreatorIDs...))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           gateway.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		obslog.L().Info("http_listen", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		obslog.L().Info("shutdown_begin")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// stop producing games before closing the ones in flight
		if err := engine.Stop(); err != nil {
			obslog.L().Warn("pairing_stop_failed", zap.Error(err))
		}
		if err := tours.Stop(); err != nil {
			obslog.L().Warn("scheduler_stop_failed", zap.Error(err))
		}
		if err := mgr.Shutdown(sctx); err != nil {
			obslog.L().Warn("match_shutdown_failed", zap.Error(err))
		}
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// openStore picks Postgres when configured, otherwise memory, and layers the
// S3 archive on top when a bucket is set.
func openStore(ctx context.Context, cfg *appcfg.AppConfig) (persist.Store, func(), error) {
	var store persist.Store = persist.NewMemory()
	closer := func() {}
	if cfg.DatabaseURL != "" {
		pg, err := persist.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store = pg
		closer = func() { _ = pg.Close() }
		obslog.L().Info("store_postgres")
	} else {
		obslog.L().Warn("store_memory", zap.String("hint", "set DATABASE_URL to keep players across restarts"))
	}
	if cfg.ArchiveBucket != "" {
		archive, err := persist.NewS3Archive(ctx, store, cfg.ArchiveBucket)
		if err != nil {
			closer()
			return nil, nil, err
		}
		store = archive
		obslog.L().Info("archive_s3", zap.String("bucket", cfg.ArchiveBucket))
	}
	return store, closer, nil
}
