package app

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/bonyankop-api/internal/handler"
	"github.com/noah-isme/bonyankop-api/internal/middleware"
	"github.com/noah-isme/bonyankop-api/internal/models"
	"github.com/noah-isme/bonyankop-api/pkg/config"
	"github.com/noah-isme/bonyankop-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/bonyankop-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/bonyankop-api/pkg/middleware/requestid"
)

// Router builds the HTTP surface.
func (a *App) Router() *gin.Engine {
	cfg := a.Config
	svc := a.Services

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(svc.Metrics))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(svc.Metrics, a.DB)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(svc.Auth)
	diagnosticHandler := handler.NewDiagnosticHandler(svc.Diagnostics)
	requestHandler := handler.NewRequestHandler(svc.Requests)
	quoteHandler := handler.NewQuoteHandler(svc.Quotes)
	projectHandler := handler.NewProjectHandler(svc.Projects)
	ratingHandler := handler.NewRatingHandler(svc.Ratings)
	providerHandler := handler.NewProviderHandler(svc.Reputation, svc.Ratings)
	profileHandler := handler.NewProviderProfileHandler(svc.Providers)

	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(a.Repos.Audit, a.Logger, action, resource)
	}
	citizen := middleware.RequireRoles(models.RoleCitizen)
	provider := middleware.RequireProvider()
	admin := middleware.RequireRoles(models.RoleAdmin)

	api := r.Group(cfg.APIPrefix)

	// Public routes.
	api.POST("/auth/login", authHandler.Login)
	api.GET("/ratings/featured", ratingHandler.Featured)
	api.GET("/ratings/:id", ratingHandler.Get)
	api.POST("/ratings/:id/helpful", ratingHandler.Helpful)
	api.GET("/providers/search", profileHandler.Search)
	api.GET("/providers/verified", profileHandler.Verified)
	api.GET("/providers/featured", profileHandler.Featured)
	api.GET("/providers/by-type/:type", profileHandler.ByType)
	api.GET("/providers/:id", profileHandler.Get)
	api.GET("/providers/:id/reputation", providerHandler.Reputation)
	api.GET("/providers/:id/ratings", providerHandler.Ratings)
	if svc.Certificates != nil {
		api.GET("/certificates/:token", handler.NewCertificateHandler(svc.Certificates).Download)
	}
	if a.Hub != nil {
		realtimeHandler := handler.NewRealtimeHandler(a.Hub, svc.Auth)
		api.GET("/ws", middleware.OptionalJWT(svc.Auth), realtimeHandler.Connect)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(svc.Auth))

	secured.GET("/auth/me", authHandler.Me)

	secured.POST("/diagnostics", citizen, diagnosticHandler.Analyze)
	secured.GET("/diagnostics/mine", diagnosticHandler.Mine)
	secured.GET("/diagnostics/statistics", diagnosticHandler.Statistics)
	secured.GET("/diagnostics/by-risk/:level", diagnosticHandler.ByRisk)
	secured.GET("/diagnostics/:id", diagnosticHandler.Get)

	secured.POST("/requests", citizen, requestHandler.Create)
	secured.GET("/requests", requestHandler.List)
	secured.GET("/requests/expiring", requestHandler.Expiring)
	secured.GET("/requests/:id", requestHandler.Get)
	secured.PUT("/requests/:id", citizen, requestHandler.Update)
	secured.POST("/requests/:id/cancel", audit(models.AuditActionRequestCancel, "service_request"), requestHandler.Cancel)
	secured.GET("/requests/:id/quotes", quoteHandler.ListByRequest)

	secured.POST("/quotes", provider, quoteHandler.Submit)
	secured.GET("/quotes/mine", provider, quoteHandler.ListMine)
	secured.GET("/quotes/:id", quoteHandler.Get)
	secured.PUT("/quotes/:id", provider, quoteHandler.Update)
	secured.POST("/quotes/:id/withdraw", provider, quoteHandler.Withdraw)
	secured.POST("/quotes/:id/accept", citizen, audit(models.AuditActionQuoteAccept, "quote"), quoteHandler.Accept)
	secured.POST("/quotes/:id/reject", citizen, audit(models.AuditActionQuoteReject, "quote"), quoteHandler.Reject)

	secured.GET("/projects", projectHandler.List)
	secured.GET("/projects/overdue", admin, projectHandler.Overdue)
	secured.GET("/projects/:id", projectHandler.Get)
	secured.PUT("/projects/:id", projectHandler.Update)
	secured.POST("/projects/:id/start", provider, projectHandler.Start)
	secured.POST("/projects/:id/complete", provider, projectHandler.Complete)
	secured.POST("/projects/:id/cancel", audit(models.AuditActionProjectCancel, "project"), projectHandler.Cancel)
	secured.POST("/projects/:id/work-notes", projectHandler.AppendWorkNote)
	secured.POST("/projects/:id/images", projectHandler.AttachImages)

	secured.POST("/ratings", citizen, ratingHandler.Create)
	secured.GET("/ratings/mine", citizen, ratingHandler.Mine)
	secured.GET("/ratings/project/:id", ratingHandler.ByProject)
	secured.PUT("/ratings/:id", citizen, ratingHandler.Update)
	secured.POST("/ratings/:id/response", provider, ratingHandler.Respond)
	secured.POST("/ratings/:id/verify", admin, audit(models.AuditActionRatingModerate, "rating"), ratingHandler.Verify)
	secured.POST("/ratings/:id/feature", admin, audit(models.AuditActionRatingModerate, "rating"), ratingHandler.Feature)

	secured.POST("/providers", provider, profileHandler.Create)
	secured.GET("/providers/me", provider, profileHandler.Mine)
	secured.PUT("/providers/me", provider, profileHandler.UpdateMine)
	secured.POST("/providers/:id/verify", admin, audit(models.AuditActionProviderModerate, "provider_profile"), profileHandler.Verify)
	secured.POST("/providers/:id/feature", admin, audit(models.AuditActionProviderModerate, "provider_profile"), profileHandler.Feature)
	secured.GET("/providers/:id/ratings/export", providerHandler.ExportRatings)

	return r
}
