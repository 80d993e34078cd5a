package cli

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/botkit/internal/api"
	"github.com/soyeahso/botkit/internal/app"
	"github.com/soyeahso/botkit/internal/channel/irc"
	"github.com/soyeahso/botkit/internal/config"
	"github.com/soyeahso/botkit/internal/gateway"
	"github.com/soyeahso/botkit/internal/logging"
	"github.com/soyeahso/botkit/internal/metrics"
	"github.com/soyeahso/botkit/internal/plugin"
	"github.com/soyeahso/botkit/internal/routing"
	"github.com/soyeahso/botkit/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			if issues := config.Validate(&cfg); len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if logLevel == "" {
				log = logging.NewStyled(nil, cfg.Logging.Level, cfg.Logging.ConsoleStyle)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}

// openStorage returns the configured storage and, for sqlite, the activity
// log backed by the same database.
func openStorage(cfg config.StorageConfig) (store.Storage, *store.ActivityLog, func(), error) {
	if cfg.Driver != "sqlite" {
		log.Info().Msg("using in-memory storage")
		return store.NewMemoryStorage(), nil, func() {}, nil
	}

	path := cfg.Path
	if path == "" {
		path = paths.Database()
	}
	db, err := store.Open(path, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return db, store.NewActivityLog(db), func() { db.Close() }, nil
}

func streamConfig(cfg config.StreamConfig) routing.StreamConfig {
	retry := routing.DefaultRetryConfig()
	retry.MaxRetries = cfg.Retries()
	return routing.StreamConfig{
		Debounce:  cfg.Debounce(),
		BatchSize: cfg.BatchSize,
		Retry:     retry,
	}
}

// serve wires every component from cfg and blocks until ctx is done.
func serve(ctx context.Context, cfg config.Config) error {
	if err := paths.EnsureDirs(); err != nil {
		return err
	}

	storage, activityLog, closeStorage, err := openStorage(cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStorage()

	m := metrics.New(nil)

	creds := api.Credentials{
		ClientID:     cfg.Bot.AppID,
		ClientSecret: cfg.Bot.AppPassword,
		TenantID:     cfg.Bot.TenantID,
	}
	if creds.Empty() {
		log.Warn().Msg("no bot credentials configured; proactive sends are disabled")
	}
	client := api.NewClient(creds.HTTPClient(ctx, &http.Client{Timeout: 30 * time.Second}), log)
	convs := api.NewConversations(client)

	var bot *app.App
	gw := gateway.New(cfg.Gateway, convs, log,
		gateway.WithMetrics(m),
		gateway.WithAppName(cfg.Bot.Name),
		gateway.WithPlugins(func() []plugin.PluginInfo { return bot.Plugins().Info() }),
	)
	plugins := []plugin.Plugin{gw}
	if cfg.Channels.IRC != nil {
		plugins = append(plugins, irc.New(*cfg.Channels.IRC, log))
	}

	bot, err = app.New(app.Options{
		Name:          cfg.Bot.Name,
		Logger:        log,
		Storage:       storage,
		Tokens:        api.NewUserTokens(client, cfg.Bot.TokenServiceURL),
		SignIn:        api.NewBotSignIn(client, cfg.Bot.TokenServiceURL),
		Conversations: convs,
		Credentials:   creds,
		Plugins:       plugins,
		OAuth:         app.OAuthSettings{DefaultConnectionName: cfg.Bot.OAuthConnection},
		Stream:        streamConfig(cfg.Stream),
		Metrics:       m,
		ServiceURL:    cfg.Bot.ServiceURL,
	})
	if err != nil {
		return err
	}
	if activityLog != nil {
		activityLog.Subscribe(bot.Events())
	}
	if err := registerRoutes(bot, cfg.Bot.OAuthConnection); err != nil {
		return err
	}

	if err := bot.Start(ctx); err != nil {
		return fmt.Errorf("starting bot: %w", err)
	}
	defer bot.Stop(context.Background())

	log.Info().
		Str("addr", gw.Addr()).
		Int("plugins", bot.Plugins().Count()).
		Strs("routes", bot.Routes()).
		Msg("botkit running")

	<-ctx.Done()
	log.Info().Msg("shutting down")
	return nil
}
