package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"taskflow/internal/api"
	"taskflow/internal/config"
	"taskflow/internal/logging"
	"taskflow/internal/session"
	"taskflow/internal/storage"
	"taskflow/internal/ui"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "taskflow",
		Short:         "Personal task manager",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			notifier := &ui.Notifier{}
			app, err := openApp(configPath, io.Discard, session.WithNotifier(notifier))
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return ui.Run(ctx, app.session, app.cfg, notifier)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (default: $TASKFLOW_CONFIG or the user config dir)")
	root.AddCommand(newServeCmd(&configPath))
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logOutcome := session.NotifierFunc(func(o session.Outcome) {
				entry := log.WithFields(log.Fields{"op": o.Op, "id": o.ID})
				if o.Err != nil {
					entry.WithError(o.Err).Warn("operation failed")
					return
				}
				entry.Debug("operation done")
			})
			app, err := openApp(*configPath, os.Stderr, session.WithNotifier(logOutcome))
			if err != nil {
				return err
			}
			defer app.Close()
			if addr == "" {
				addr = app.cfg.Server.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := app.session.Load(ctx); err != nil {
				log.WithError(err).Warn("initial load failed; POST /api/reload to retry")
			}

			e := echo.New()
			e.HideBanner = true
			e.Use(middleware.Recover())
			e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
				AllowOrigins: []string{"*"},
				AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
			}))
			api.Register(e, app.session, log.StandardLogger())

			errc := make(chan error, 1)
			go func() {
				log.WithField("addr", addr).Info("listening")
				errc <- e.Start(addr)
			}()
			select {
			case err := <-errc:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return e.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

type app struct {
	cfg     config.Config
	session *session.Session
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.WithError(err).Warn("close")
		}
	}
}

// openApp loads config, sets up logging and opens the store, wrapping it in
// the redis cache when one is configured.
func openApp(configPath string, logFallback io.Writer, opts ...session.Option) (*app, error) {
	if configPath == "" {
		p, err := config.ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}
	cfg, err := config.LoadOrCreate(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	a := &app{cfg: cfg}
	closeLog, err := logging.Setup(cfg, logFallback)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeLog)

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	var backend session.Store = store
	if cfg.Redis.URL != "" {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis url: %w", err)
		}
		ttl, err := cfg.RedisTTL()
		if err != nil {
			a.Close()
			return nil, err
		}
		client := redis.NewClient(redisOpts)
		a.closers = append(a.closers, client.Close)
		backend = storage.NewCache(store, client, ttl, cfg.Redis.Namespace)
		log.WithField("namespace", cfg.Redis.Namespace).Info("redis cache enabled")
	}

	opts = append([]session.Option{
		session.WithCategoryDefaults(cfg.Category.Color, cfg.Category.Icon),
		session.WithCriteria(cfg.InitialCriteria()),
	}, opts...)
	a.session = session.New(backend, opts...)
	log.WithFields(log.Fields{"config": configPath, "db": cfg.DBPath}).Info("taskflow started")
	return a, nil
}
