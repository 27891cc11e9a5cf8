package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/digkill/genstudio/internal/alert"
	"github.com/digkill/genstudio/internal/api"
	"github.com/digkill/genstudio/internal/auth"
	"github.com/digkill/genstudio/internal/billing"
	"github.com/digkill/genstudio/internal/cache"
	"github.com/digkill/genstudio/internal/config"
	"github.com/digkill/genstudio/internal/database"
	"github.com/digkill/genstudio/internal/ledger"
	"github.com/digkill/genstudio/internal/models"
	"github.com/digkill/genstudio/internal/notify"
	"github.com/digkill/genstudio/internal/observability/metrics"
	"github.com/digkill/genstudio/internal/provider"
	"github.com/digkill/genstudio/internal/ratelimit"
	"github.com/digkill/genstudio/internal/repository"
	"github.com/digkill/genstudio/internal/service"
	"github.com/digkill/genstudio/internal/storage"
	"github.com/digkill/genstudio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel, "genstudio", cfg.Env)
	metrics.MustRegister()

	db, err := database.Connect(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logr.Warn("redis unavailable, rate limiting and caching degraded", "err", err)
	}

	openai := provider.NewOpenAIClient(provider.OpenAIConfig{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		ImageModel:  cfg.OpenAIImageModel,
		SpeechModel: cfg.OpenAISpeechModel,
		Timeout:     cfg.RequestTimeout,
	}, logr)
	var images provider.ImageGenerator = openai
	if cfg.ImageBackend == "gemini" {
		gemini, err := provider.NewGeminiImageClient(ctx, cfg.GeminiAPIKey, cfg.GeminiImageModel, logr)
		if err != nil {
			log.Fatalf("gemini client: %v", err)
		}
		images = gemini
	}

	var store service.ArtifactStore
	switch cfg.StorageBackend {
	case "gcs":
		gcs, err := storage.NewGCSUploader(ctx, cfg.GCSBucket, cfg.GCSPublicBaseURL, cfg.GCSPrefix)
		if err != nil {
			log.Fatalf("gcs uploader: %v", err)
		}
		defer gcs.Close()
		store = gcs
	default:
		s3, err := storage.NewS3Uploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("s3 uploader: %v", err)
		}
		store = s3
	}

	alerts, err := alert.NewTelegram(cfg.TelegramBotToken, cfg.TelegramAlertChatID, logr)
	if err != nil {
		log.Fatalf("telegram alerts: %v", err)
	}
	defer alerts.Flush()

	userRepo := repository.NewUserRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	artifactRepo := repository.NewArtifactRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	eventRepo := repository.NewWebhookEventRepository(db)

	credits := ledger.New(db, logr)
	reaper := ledger.NewReaper(credits, cfg.ReservationReapInterval, cfg.ReservationStaleAfter, logr)

	payments := billing.NewBilling(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	catalog := billing.NewCatalog(
		billing.PlanInfo{Plan: models.PlanBasic, Credits: cfg.PlanBasicCredits, PriceID: cfg.StripeBasicPriceID},
		billing.PlanInfo{Plan: models.PlanMedium, Credits: cfg.PlanMediumCredits, PriceID: cfg.StripeMediumPriceID},
		billing.PlanInfo{Plan: models.PlanPro, Credits: cfg.PlanProCredits, PriceID: cfg.StripeProPriceID},
	)
	mailer := notify.NewMailer(cfg.ResendAPIKey, cfg.EmailFrom, logr)
	validator := service.NewValidator()

	gallery := service.NewGalleryService(artifactRepo, cache.New(rdb, logr), cfg.GalleryCacheTTL, logr)
	generation := service.NewGenerationService(service.GenerationConfig{
		ImageCost:  cfg.ImageCreditCost,
		SpeechCost: cfg.SpeechCreditCost,
		Timeout:    cfg.GenerationTimeout,
	}, service.GenerationDeps{
		Ledger:    credits,
		Gate:      ratelimit.NewGate(rdb, cfg.RateLimitRequests, cfg.RateLimitWindow, logr),
		Images:    images,
		Speeches:  openai,
		Store:     store,
		Gallery:   gallery,
		Alerts:    alerts,
		Validator: validator,
	}, logr)
	fulfillment := service.NewFulfillmentService(service.FulfillmentDeps{
		Verifier: payments,
		Orders:   orderRepo,
		Users:    userRepo,
		Ledger:   credits,
		Plans:    catalog,
		Mailer:   mailer,
		Events:   eventRepo,
		Alerts:   alerts,
	}, logr)
	checkout := service.NewCheckoutService(payments, catalog, orderRepo, userRepo, cfg.BaseURL, logr)
	accounts := service.NewUserService(service.UserDeps{
		Users:     userRepo,
		Tokens:    tokenRepo,
		Hasher:    auth.NewPasswordHasher(auth.DefaultArgon2Params),
		Mailer:    mailer,
		Customers: payments,
		Credits:   credits,
		Validator: validator,
	}, cfg.BaseURL, logr)

	server := api.NewServer(api.Options{
		Addr:          cfg.HTTPListenAddr,
		BaseURL:       cfg.BaseURL,
		CORSOrigins:   cfg.CORSOrigins,
		IPRateLimit:   cfg.GlobalRateLimit,
		WriteTimeout:  cfg.GenerationTimeout + 30*time.Second,
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
		SecureCookies: cfg.Production(),
	}, api.Deps{
		Sessions:    auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL, cfg.Production()),
		Google:      auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.BaseURL+"/api/auth/google/callback"),
		Users:       userRepo,
		Accounts:    accounts,
		Generator:   generation,
		Fulfillment: fulfillment,
		Checkout:    checkout,
		Gallery:     gallery,
		Orders:      orderRepo,
		Reaper:      reaper,
	}, logr)

	go reaper.Run(ctx)

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("api server stopped", "err", err)
	}
}
