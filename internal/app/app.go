package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/bonyankop-api/internal/repository"
	"github.com/noah-isme/bonyankop-api/internal/service"
	"github.com/noah-isme/bonyankop-api/pkg/cache"
	"github.com/noah-isme/bonyankop-api/pkg/config"
	"github.com/noah-isme/bonyankop-api/pkg/database"
	"github.com/noah-isme/bonyankop-api/pkg/export"
	"github.com/noah-isme/bonyankop-api/pkg/jobs"
	"github.com/noah-isme/bonyankop-api/pkg/realtime"
	"github.com/noah-isme/bonyankop-api/pkg/storage"
)

// Repositories groups the postgres-backed stores.
type Repositories struct {
	Users       *repository.UserRepository
	Audit       *repository.AuditRepository
	Providers   *repository.ProviderProfileRepository
	Diagnostics *repository.DiagnosticRepository
	Requests    *repository.ServiceRequestRepository
	Quotes      *repository.QuoteRepository
	Projects    *repository.ProjectRepository
	Ratings     *repository.RatingRepository
}

// Services groups the marketplace services.
type Services struct {
	Metrics      *service.MetricsService
	Auth         *service.AuthService
	Policy       *service.AccessPolicy
	Diagnostics  *service.DiagnosticService
	Requests     *service.RequestService
	Quotes       *service.QuoteService
	Projects     *service.ProjectService
	Ratings      *service.RatingService
	Reputation   *service.ReputationService
	Providers    *service.ProviderProfileService
	Certificates *service.CertificateService
	Maintenance  *service.MaintenanceService
}

// App owns every long-lived resource of one process.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *sqlx.DB
	Redis    *redis.Client
	Hub      *realtime.Hub
	Repos    Repositories
	Services Services
}

// New connects to postgres (and redis when reachable) and wires the services.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, DB: db}

	if cfg.Reputation.CacheEnabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, reputation cache disabled", zap.Error(err))
		} else {
			a.Redis = client
		}
	}

	if cfg.Realtime.Enabled {
		a.Hub = realtime.NewHub(logger.Named("realtime"), cfg.CORS.AllowedOrigins)
	}

	a.Repos = Repositories{
		Users:       repository.NewUserRepository(db),
		Audit:       repository.NewAuditRepository(db),
		Providers:   repository.NewProviderProfileRepository(db),
		Diagnostics: repository.NewDiagnosticRepository(db),
		Requests:    repository.NewServiceRequestRepository(db),
		Quotes:      repository.NewQuoteRepository(db),
		Projects:    repository.NewProjectRepository(db),
		Ratings:     repository.NewRatingRepository(db),
	}

	if err := a.wireServices(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wireServices() error {
	cfg := a.Config
	logger := a.Logger
	validate := validator.New()
	metrics := service.NewMetricsService()

	var store service.CacheStore
	if a.Redis != nil {
		store = repository.NewCacheRepository(a.Redis, "bonyankop")
	}
	cacheSvc := service.NewCacheService(store, metrics, cfg.Reputation.CacheTTL, logger.Named("cache"))

	auth := service.NewAuthService(service.AuthServiceParams{
		Users:     a.Repos.Users,
		Audit:     a.Repos.Audit,
		Validator: validate,
		Logger:    logger.Named("auth"),
		Config: service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			AccessTokenExpiry: cfg.JWT.Expiration,
			Issuer:            "bonyankop-api",
		},
	})
	policy := service.NewAccessPolicy(auth, a.Repos.Providers, logger)

	reputation := service.NewReputationService(service.ReputationServiceParams{
		Profiles: a.Repos.Providers,
		Ratings:  a.Repos.Ratings,
		Projects: a.Repos.Projects,
		Tx:       a.DB,
		Cache:    cacheSvc,
		Logger:   logger,
		Config:   service.ReputationServiceConfig{CacheTTL: cfg.Reputation.CacheTTL},
	})

	certificates, err := a.certificateService(metrics)
	if err != nil {
		return err
	}

	var events interface {
		Publish(userID string, payload interface{})
	}
	if a.Hub != nil {
		events = a.Hub
	}

	projectParams := service.ProjectServiceParams{
		Projects:   a.Repos.Projects,
		Reputation: reputation,
		Tx:         a.DB,
		Policy:     policy,
		Events:     events,
		Validator:  validate,
		Metrics:    metrics,
		Logger:     logger,
	}
	if certificates != nil {
		projectParams.Certificates = certificates
	}

	requests := service.NewRequestService(service.RequestServiceParams{
		Repo:        a.Repos.Requests,
		Diagnostics: a.Repos.Diagnostics,
		Policy:      policy,
		Validator:   validate,
		Metrics:     metrics,
		Logger:      logger,
		Config:      service.RequestServiceConfig{ExpiringSoonWindow: cfg.Marketplace.ExpiringSoonWindow},
	})
	quotes := service.NewQuoteService(service.QuoteServiceParams{
		Quotes:    a.Repos.Quotes,
		Requests:  a.Repos.Requests,
		Lifecycle: requests,
		Projects:  a.Repos.Projects,
		Tx:        a.DB,
		Policy:    policy,
		Events:    events,
		Validator: validate,
		Metrics:   metrics,
		Logger:    logger,
	})

	a.Services = Services{
		Metrics:     metrics,
		Auth:        auth,
		Policy:      policy,
		Diagnostics: service.NewDiagnosticService(a.Repos.Diagnostics, nil, policy, validate, logger),
		Requests:    requests,
		Quotes:      quotes,
		Projects:    service.NewProjectService(projectParams),
		Ratings: service.NewRatingService(service.RatingServiceParams{
			Ratings:    a.Repos.Ratings,
			Projects:   a.Repos.Projects,
			Reputation: reputation,
			Tx:         a.DB,
			Policy:     policy,
			Events:     events,
			Validator:  validate,
			Logger:     logger,
		}),
		Reputation: reputation,
		Providers: service.NewProviderProfileService(service.ProviderProfileServiceParams{
			Profiles:   a.Repos.Providers,
			Reputation: reputation,
			Policy:     policy,
			Validator:  validate,
			Logger:     logger,
		}),
		Certificates: certificates,
		Maintenance: service.NewMaintenanceService(quotes, requests, logger.Named("maintenance"), service.MaintenanceConfig{
			Interval: cfg.Marketplace.SweepInterval,
			Timeout:  cfg.Marketplace.SweepTimeout,
		}),
	}
	return nil
}

// certificateService returns nil when certificates are disabled.
func (a *App) certificateService(metrics *service.MetricsService) (*service.CertificateService, error) {
	cfg := a.Config.Certificates
	if !cfg.Enabled {
		return nil, nil
	}
	store, err := openCertificateStore(cfg)
	if err != nil {
		return nil, err
	}
	secret := cfg.SignedURLSecret
	if secret == "" {
		secret = a.Config.JWT.Secret
	}
	return service.NewCertificateService(service.CertificateServiceParams{
		Projects:  a.Repos.Projects,
		Providers: a.Repos.Providers,
		Storage:   store,
		Signer:    storage.NewSignedURLSigner(secret, cfg.SignedURLTTL),
		Renderer:  export.NewPDFExporter(),
		Metrics:   metrics,
		Logger:    a.Logger.Named("certificates"),
		Config: service.CertificateServiceConfig{
			DownloadBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
			Queue: jobs.QueueConfig{
				Workers:    cfg.Workers,
				MaxRetries: cfg.Retries,
			},
		},
	}), nil
}

type certificateStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

func openCertificateStore(cfg config.CertificatesConfig) (certificateStore, error) {
	if cfg.Driver == config.StorageDriverS3 {
		store, err := storage.NewS3Storage(storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
			PublicBaseURL:   cfg.S3.PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("open s3 certificate store: %w", err)
		}
		return store, nil
	}
	store, err := storage.NewLocalStorage(cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("open local certificate store: %w", err)
	}
	return store, nil
}

// Start launches the background workers bound to ctx.
func (a *App) Start(ctx context.Context) {
	if a.Services.Certificates != nil {
		a.Services.Certificates.Start(ctx)
	}
	a.Services.Maintenance.Start(ctx)
}

// Close stops workers and releases connections. The context passed to Start
// must already be cancelled.
func (a *App) Close() {
	if a.Services.Maintenance != nil {
		a.Services.Maintenance.Wait()
	}
	if a.Services.Certificates != nil {
		a.Services.Certificates.Stop()
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn("close postgres", zap.Error(err))
		}
	}
}
