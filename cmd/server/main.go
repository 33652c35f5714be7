package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"chatcore/internal/blob"
	"chatcore/internal/config"
	"chatcore/internal/domain"
	"chatcore/internal/httpserver"
	"chatcore/internal/logger"
	"chatcore/internal/security"
	"chatcore/internal/service"
	"chatcore/internal/store/postgres"
	"chatcore/internal/store/sqlite"
	"chatcore/internal/ws"
)

type stores struct {
	db            *sql.DB
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	users         domain.UserDirectory
}

func openStores(cfg *config.Config) (*stores, error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := postgres.Open(cfg.PostgresURL())
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return &stores{
			db:            db,
			conversations: postgres.NewConversationRepo(db),
			messages:      postgres.NewMessageRepo(db),
			users:         postgres.NewUserRepo(db),
		}, nil
	default:
		db, err := sqlite.Open(sqlite.DSN(cfg.SQLitePath))
		if err != nil {
			return nil, err
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return &stores{
			db:            db,
			conversations: sqlite.NewConversationRepo(db),
			messages:      sqlite.NewMessageRepo(db),
			users:         sqlite.NewUserRepo(db),
		}, nil
	}
}

// openBlobs returns the attachment store and, for local storage, the handler
// serving its files.
func openBlobs(ctx context.Context, cfg *config.Config, log zerolog.Logger) (blob.Store, http.Handler, error) {
	if cfg.StorageBackend == "s3" {
		s3, err := blob.NewS3Storage(ctx, blob.S3Options{
			Endpoint:       cfg.S3Endpoint,
			PublicEndpoint: cfg.S3PublicEndpoint,
			Region:         cfg.S3Region,
			Bucket:         cfg.S3Bucket,
			AccessKeyID:    cfg.S3AccessKeyID,
			SecretKey:      cfg.S3SecretKey,
			UsePathStyle:   cfg.S3UsePathStyle,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return s3, nil, nil
	}
	local, err := blob.NewLocalStorage(cfg.UploadDir, cfg.PublicBaseURL+"/uploads", log)
	if err != nil {
		return nil, nil, err
	}
	return local, local.Handler(), nil
}

func run() error {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.db.Close()
	log.Info().Str("driver", cfg.DBDriver).Msg("store ready")

	blobs, uploads, err := openBlobs(ctx, cfg, log)
	if err != nil {
		return err
	}

	tokens := security.NewTokenService(cfg.JWTSecret, 24*time.Hour)

	convSvc := service.NewConversationService(st.conversations, st.users, log)
	msgSvc := service.NewMessageService(st.conversations, st.messages, blobs, service.MessageOptions{
		DefaultPageSize:    cfg.DefaultPageSize,
		MaxPageSize:        cfg.MaxPageSize,
		MaxAttachmentBytes: cfg.MaxAttachmentBytes,
	}, log)
	userSvc := service.NewUserService(st.conversations, st.users, log)

	hub := ws.NewHub(log)
	var fanout ws.Fanout = ws.NewLocalFanout(hub)
	var redisFanout *ws.RedisFanout
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		redisFanout = ws.NewRedisFanout(client, cfg.RedisChannel, hub, log)
		if err := redisFanout.Ping(ctx); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		fanout = redisFanout
	}

	gateway := ws.NewGateway(hub, fanout, tokens, convSvc, msgSvc, userSvc, ws.GatewayOptions{
		AllowedOrigins: cfg.CORSOrigins,
		Client: ws.ClientOptions{
			SendBuffer:   cfg.WSSendBuffer,
			WriteTimeout: cfg.WSWriteTimeout,
			PongTimeout:  cfg.WSPongTimeout,
			MaxFrameSize: cfg.WSMaxFrameSize,
		},
	}, log)

	router := httpserver.NewRouter(httpserver.Deps{
		Config:        cfg,
		Log:           log,
		Verifier:      tokens,
		Conversations: convSvc,
		Messages:      msgSvc,
		Users:         userSvc,
		Realtime:      gateway,
		Events:        gateway,
		Uploads:       uploads,
		Health: func(ctx context.Context) error {
			if err := st.db.PingContext(ctx); err != nil {
				return err
			}
			return blob.Health(ctx, blobs)
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	if redisFanout != nil {
		g.Go(func() error {
			return redisFanout.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chatcore: %v\n", err)
		os.Exit(1)
	}
}
