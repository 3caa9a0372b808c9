package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/Skotchmaster/usersvc/internal/config"
	"github.com/Skotchmaster/usersvc/internal/db"
	"github.com/Skotchmaster/usersvc/internal/events"
	"github.com/Skotchmaster/usersvc/internal/handlers"
	"github.com/Skotchmaster/usersvc/internal/logging"
	mwauth "github.com/Skotchmaster/usersvc/internal/middleware/auth"
	"github.com/Skotchmaster/usersvc/internal/middleware/csrf"
	loggingmw "github.com/Skotchmaster/usersvc/internal/middleware/logging"
	"github.com/Skotchmaster/usersvc/internal/repo"
	"github.com/Skotchmaster/usersvc/internal/search"
	"github.com/Skotchmaster/usersvc/internal/service"
	"github.com/Skotchmaster/usersvc/internal/session"
	"github.com/Skotchmaster/usersvc/internal/tokens"
	httpserver "github.com/Skotchmaster/usersvc/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(gdb); err != nil {
			log.Error("db close error", "error", err)
		}
	}()
	if err := db.Migrate(ctx, gdb); err != nil {
		return err
	}

	sessions, closeSessions, err := newSessionStore(ctx, cfg, gdb)
	if err != nil {
		return err
	}
	defer closeSessions()

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled() {
		kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.UserTopic)
		if err != nil {
			return err
		}
		defer func() {
			if err := kp.Close(); err != nil {
				log.Error("kafka close error", "error", err)
			}
		}()
		publisher = kp
		log.Info("kafka_enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.UserTopic)
	}

	var index service.UserIndex
	if cfg.ES.Enabled() {
		client, err := search.NewClient(ctx, search.ClientConfig{
			URL:      cfg.ES.URL,
			Username: cfg.ES.User,
			Password: cfg.ES.Password,
		}, log)
		if err != nil {
			return err
		}
		index = search.NewUserIndex(client, cfg.ES.UserIndex)
	}

	users := repo.NewUserRepo(gdb)
	authSvc, err := service.NewAuthService(service.AuthServiceOptions{
		Users:      users,
		Sessions:   sessions,
		Access:     tokens.NewCodec(tokens.Access, []byte(cfg.AccessSecret), nil),
		Refresh:    tokens.NewCodec(tokens.Refresh, []byte(cfg.RefreshSecret), nil),
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		Events:     publisher,
	})
	if err != nil {
		return err
	}
	userSvc := service.NewUserService(service.UserServiceOptions{
		Users:  users,
		Index:  index,
		Events: publisher,
	})

	cookies := mwauth.Cookies{Secure: cfg.CookieSecure}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), loggingmw.RequestLogger(log))
	if cfg.CSRFEnabled {
		cc := csrf.DefaultConfig()
		cc.Secure = cfg.CookieSecure
		cc.AuthCookie = mwauth.AccessCookie
		cc.SkipPaths = []string{"/api/login", "/api/refresh"}
		e.Use(csrf.Middleware(cc))
	}

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler:   &handlers.AuthHandler{Svc: authSvc, Cookies: cookies},
		UserHandler:   &handlers.UserHandler{Svc: userSvc},
		HealthHandler: &handlers.HealthHandler{DB: gdb},
		Guard:         mwauth.NewGuard(authSvc, cookies),
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "addr", srv.Addr, "session_backend", cfg.SessionBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

func newSessionStore(ctx context.Context, cfg *config.Config, gdb *gorm.DB) (session.Store, func(), error) {
	if cfg.SessionBackend != config.SessionBackendRedis {
		return session.NewGormStore(gdb), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}
	return session.NewRedisStore(client), closeFn, nil
}
