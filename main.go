package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"sjsage522/discountworker/config"
	"sjsage522/discountworker/internal/crawler"
	"sjsage522/discountworker/internal/filter"
	"sjsage522/discountworker/internal/ledger"
	"sjsage522/discountworker/internal/page"
	"sjsage522/discountworker/logger"
	"sjsage522/discountworker/pkg/errors"
	"sjsage522/discountworker/services/cache"
	"sjsage522/discountworker/services/notifier"
	"sjsage522/discountworker/services/publisher"
	"sjsage522/discountworker/services/status"
	"sjsage522/discountworker/services/worker"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()

	// run returns instead of exiting so its deferred cleanup always happens
	if err := run(); err != nil {
		logger.Default.Fatal().Err(err).Msg("Worker stopped with error")
	}
}

func run() error {
	log := logger.Default

	// Load and validate configuration
	cfg, err := config.LoadConfig()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		return errors.NewConfiguration("invalid configuration", err)
	}

	log.Info().
		Str("environment", cfg.Environment).
		Dur("work_duration", cfg.WorkDuration).
		Dur("pass_interval", cfg.PassInterval).
		Int("min_discount", cfg.MinDiscount).
		Int("min_price", cfg.MinPrice).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize services
	services, err := initializeServices(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer services.Cleanup()

	// Create crawlers
	crawlers, err := crawler.CreateCrawlers(cfg, services.Cache)
	if err != nil {
		return fmt.Errorf("failed to create crawlers: %w", err)
	}
	if len(crawlers) == 0 {
		return errors.NewConfiguration("no crawlers were created", nil)
	}

	// Load the dedup ledger
	store, err := newLedgerStore(ctx, cfg, services.Redis)
	if err != nil {
		return errors.NewConfiguration("ledger store", err)
	}
	history := ledger.Load(ctx, store, cfg.LedgerLimit)

	p, err := newPage(cfg)
	if err != nil {
		return fmt.Errorf("failed to open page source: %w", err)
	}
	services.Page = p

	n := notifier.New(cfg.AlertDelay, newTransports(cfg, services.Publisher)...)
	log.Info().Strs("transports", n.Transports()).Msg("Notifier ready")

	w := worker.NewWorker(crawlers, p, history, n, worker.Config{
		WorkDuration: cfg.WorkDuration,
		PassInterval: cfg.PassInterval,
		Criteria: filter.Criteria{
			MinDiscountPercent: cfg.MinDiscount,
			MinPrice:           cfg.MinPrice,
			MinRating:          cfg.MinRating,
			MinReviewCount:     cfg.MinReviewCount,
			ExcludedKeywords:   cfg.ExcludedKeywords,
		},
	})
	if services.Publisher != nil {
		w.WithPublisher(services.Publisher)
	}

	if cfg.StatusAddr != "" {
		services.Status = status.NewServer(cfg.StatusAddr, w)
		services.Status.Start()
	}

	// Start worker in a goroutine
	workerDone := make(chan error, 1)
	go func() {
		log.Info().Msg("Starting discount worker")
		workerDone <- w.Run(ctx)
	}()

	// Wait for shutdown signal or worker completion
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
		// Run flushes the ledger before returning
		<-workerDone
	case err := <-workerDone:
		if err != nil {
			return err
		}
		log.Info().Msg("Worker exited normally")
	}

	log.Info().Interface("status", w.Status()).Msg("Shutting down gracefully...")
	return nil
}

// Services holds all the initialized services
type Services struct {
	Cache     cache.CacheService
	Redis     *redis.Client
	Publisher publisher.Publisher
	Page      page.Page
	Status    *status.Server
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	log := logger.Default

	if s.Status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Status.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Status server forced to shutdown")
		}
	}
	if s.Page != nil {
		if err := s.Page.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close page")
		}
	}
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Redis != nil {
		s.Redis.Close()
	}
}

// initializeServices initializes the optional backing services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Block backoff needs memcache
	if cfg.MemcacheAddr != "" {
		memcacheService := cache.NewMemcacheService(cfg.MemcacheAddr)
		if err := memcacheService.Ping(); err != nil {
			logger.Warn("Memcache at %s unreachable, block backoff disabled: %v", cfg.MemcacheAddr, err)
		} else {
			services.Cache = memcacheService
			logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
		}
	}

	// Redis backs the ledger and the alert stream
	if cfg.LedgerBackend == "redis" || cfg.RedisStream != "" {
		client := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		services.Redis = client
		logger.Info("Connected to Redis at %s (DB: %d)", cfg.RedisAddr, cfg.RedisDB)

		if cfg.RedisStream != "" {
			services.Publisher = publisher.NewRedisPublisherWithClient(
				client,
				cfg.RedisStream,
				cfg.RedisStreamCount,
				cfg.RedisStreamMaxLength,
			)
			logger.Info("Publishing alerts to stream %s (%d shards)", cfg.RedisStream, cfg.RedisStreamCount)
		}
	}

	return services, nil
}

func newLedgerStore(ctx context.Context, cfg *config.Config, client *redis.Client) (ledger.Store, error) {
	switch cfg.LedgerBackend {
	case "redis":
		return ledger.NewRedisStore(client, cfg.RedisLedgerKey), nil
	case "azure":
		if cfg.AzureConnectionString != "" {
			return ledger.NewBlobStoreFromConnectionString(ctx, cfg.AzureConnectionString, cfg.AzureStorageContainer, cfg.AzureLedgerBlob)
		}
		return ledger.NewBlobStore(ctx, cfg.AzureStorageAccount, cfg.AzureStorageContainer, cfg.AzureLedgerBlob)
	default:
		return ledger.NewFileStore(cfg.HistoryFile), nil
	}
}

func newPage(cfg *config.Config) (page.Page, error) {
	if cfg.PageDriver == "http" {
		return page.NewHTTPPage(), nil
	}

	// The browser outlives signal cancellation so an in-flight scan can finish
	return page.NewChromePage(context.Background(), page.ChromeOptions{
		ExecPath:          cfg.ChromeBin,
		NavigationTimeout: cfg.NavigationTimeout,
		Settle:            cfg.PageSettle,
	})
}

func newTransports(cfg *config.Config, pub publisher.Publisher) []notifier.Transport {
	var transports []notifier.Transport

	if cfg.TelegramEnabled() {
		transports = append(transports, notifier.NewTelegram(cfg.TelegramAPIURL, cfg.TelegramToken, cfg.TelegramChannel))
	} else {
		logger.Warn("TG_TOKEN or TG_CHANNEL not set, alerts are only logged")
	}

	if pub != nil {
		transports = append(transports, notifier.NewStream(pub))
	}

	if cfg.EmailEnabled() {
		transports = append(transports, notifier.NewEmail(
			cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom, cfg.AlertEmail,
		))
	}

	return transports
}
