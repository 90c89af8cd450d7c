// Command driftwatch runs the identity drift and impersonation detection bot:
// a Telegram long-poll worker, the admin HTTP API, and the background warmup
// job, over PostgreSQL.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	migrations "github.com/driftwatch/driftwatch/db"
	"github.com/driftwatch/driftwatch/internal/admincache"
	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/db"
	"github.com/driftwatch/driftwatch/internal/detector"
	"github.com/driftwatch/driftwatch/internal/groups"
	"github.com/driftwatch/driftwatch/internal/handlers"
	"github.com/driftwatch/driftwatch/internal/handles"
	"github.com/driftwatch/driftwatch/internal/identity"
	"github.com/driftwatch/driftwatch/internal/logger"
	"github.com/driftwatch/driftwatch/internal/ratelimit"
	"github.com/driftwatch/driftwatch/internal/schedule"
	"github.com/driftwatch/driftwatch/internal/server"
	"github.com/driftwatch/driftwatch/internal/telegram"
	"github.com/driftwatch/driftwatch/internal/version"
)

func main() {
	root := &cobra.Command{
		Use:     "driftwatch",
		Short:   "Identity drift and impersonation detection for group chats",
		Version: version.GetInfo(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the bot, HTTP API, and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate [up|down|version|force N]",
		Short: "Apply or roll back database migrations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(args[0], args[1:])
		},
	})
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMigrate(command string, args []string) error {
	cfg, err := provideConfig()
	if err != nil {
		return err
	}
	log := provideLogger(cfg)
	migrationsFS, err := fs.Sub(migrations.MigrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations subtree: %w", err)
	}
	return db.RunMigrate(log, cfg.Postgres, migrationsFS, command, args)
}

func runServe() error {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideBotAPI,
			provideTelegramClient,
			provideGroupService,
			identity.NewStore,
			handles.NewRegistry,
			ratelimit.NewLimiter,
			provideAdminCache,
			provideDetector,
			provideBot,
			provideWarmup,

			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(handlers.NewGroupsHandler),
			provideServerHandler(handlers.NewHistoryHandler),
			provideServer,
		),
		fx.Invoke(
			startBot,
			startWarmup,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
	return nil
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			conn.Close()
			return nil
		},
	})
	return conn, nil
}

func provideBotAPI(cfg config.Config) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return api, nil
}

func provideTelegramClient(log *slog.Logger, api *tgbotapi.BotAPI, cfg config.Config) *telegram.Client {
	return telegram.NewClient(log, api, time.Duration(cfg.Detector.FetchTimeoutSeconds)*time.Second)
}

func provideGroupService(log *slog.Logger, pool *pgxpool.Pool, cfg config.Config) *groups.Service {
	defaults := groups.Defaults{
		NameThreshold:   cfg.Detector.NameThreshold,
		CheckPhoto:      cfg.Detector.CheckPhoto,
		CooldownSeconds: cfg.Detector.CooldownSeconds,
		PhotoDistance:   cfg.Detector.PhotoDistance,
	}.Clamped()
	return groups.NewService(log, pool, defaults)
}

func provideAdminCache(log *slog.Logger, client *telegram.Client, cfg config.Config) *admincache.Cache {
	ttl := time.Duration(cfg.Detector.AdminCacheTTLSeconds) * time.Second
	return admincache.New(log, client, client, ttl)
}

func provideDetector(
	log *slog.Logger,
	groupService *groups.Service,
	store *identity.Store,
	registry *handles.Registry,
	limiter *ratelimit.Limiter,
	admins *admincache.Cache,
	client *telegram.Client,
	bot *telegram.Bot,
) *detector.Service {
	return detector.NewService(log, groupService, store, registry, limiter, admins, client, bot)
}

func provideBot(
	log *slog.Logger,
	api *tgbotapi.BotAPI,
	groupService *groups.Service,
	store *identity.Store,
	registry *handles.Registry,
	admins *admincache.Cache,
	cfg config.Config,
) *telegram.Bot {
	return telegram.New(log, api, groupService, store, registry, admins, cfg.Telegram.PollTimeout)
}

func provideWarmup(log *slog.Logger, groupService *groups.Service, det *detector.Service, cfg config.Config) *schedule.Service {
	return schedule.NewService(log, groupService, det, cfg.Detector.WarmupPattern)
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Server.APIToken, params.ServerHandlers...)
}

func startBot(lc fx.Lifecycle, bot *telegram.Bot, det *detector.Service, logger *slog.Logger, shutdowner fx.Shutdowner) {
	bot.SetDetector(det)
	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := bot.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("bot stopped", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
}

func startWarmup(lc fx.Lifecycle, warmup *schedule.Service) {
	lc.Append(fx.Hook{
		OnStart: warmup.Start,
		OnStop:  warmup.Stop,
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting driftwatch %s\n", version.GetInfo())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
