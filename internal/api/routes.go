package api

import (
	"strings"

	"match-connect/internal/api/handlers"
	"match-connect/internal/api/interfaces"
	"match-connect/internal/api/middlewares"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// EmploymentTypes are the accepted values of a posting's type
var EmploymentTypes = []string{"full-time", "part-time", "contract", "internship", "remote"}

// SetupRoutes configures all API routes with proper middleware. The returned
// func stops the rate limiter's background cleanup.
func SetupRoutes(router *gin.Engine, services interfaces.Services) func() {
	registerValidators()

	cfg := services.GetConfig()
	limiter := middlewares.NewRateLimiter(cfg.Server.RateLimit, 0)

	// Global middleware
	router.Use(middlewares.Recovery(services.GetLogger()))
	router.Use(middlewares.CORS(cfg.Server.CORS.AllowedOrigins))
	router.Use(middlewares.Security())
	router.Use(middlewares.RequestLogging(services.GetLogger()))
	router.Use(limiter.Middleware())
	router.Use(middlewares.AuthMetrics(services.GetMetrics()))

	// Health check (no auth required)
	router.GET("/health", handlers.HealthCheck(services))
	router.GET("/ping", handlers.HealthCheck(services))
	router.GET("/metrics", handlers.Metrics(services))
	router.GET("/ws/storage", handlers.StorageSync(services))

	v1 := router.Group("/api/v1")
	{
		setupAuthRoutes(v1, services)
		setupMarketplaceRoutes(v1, services)
		setupAdminRoutes(v1, services)
		v1.GET("/ws/storage", handlers.StorageSync(services))
	}

	return limiter.Stop
}

func registerValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterValidation("employment_type", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		for _, t := range EmploymentTypes {
			if strings.EqualFold(value, t) {
				return true
			}
		}
		return false
	})
}

// setupAuthRoutes configures token issue, rotation and account routes
func setupAuthRoutes(rg *gin.RouterGroup, services interfaces.Services) {
	auth := rg.Group("/auth")
	{
		auth.POST("/token", handlers.Login(services))
		auth.POST("/token/refresh", handlers.RefreshToken(services))
		auth.POST("/register", handlers.Register(services))
	}

	users := rg.Group("/users")
	users.Use(middlewares.AuthRequired(services))
	{
		users.GET("/me", handlers.GetCurrentUser(services))
	}
}

// setupMarketplaceRoutes configures postings, applications and resumes
func setupMarketplaceRoutes(rg *gin.RouterGroup, services interfaces.Services) {
	authenticated := rg.Group("")
	authenticated.Use(middlewares.AuthRequired(services))

	postings := authenticated.Group("/job-postings")
	{
		postings.GET("/", handlers.ListJobPostings(services))
		postings.GET("/:id", handlers.GetJobPosting(services))

		recruiter := postings.Group("")
		recruiter.Use(middlewares.RoleRequired("recruiter", "admin"))
		{
			recruiter.POST("/", handlers.CreateJobPosting(services))
			recruiter.GET("/by-recruiter/me", handlers.ListMyJobPostings(services))
			recruiter.PUT("/:id", handlers.UpdateJobPosting(services))
			recruiter.PATCH("/:id", handlers.UpdateJobPosting(services))
			recruiter.DELETE("/:id", handlers.DeleteJobPosting(services))
		}
	}

	candidate := authenticated.Group("")
	candidate.Use(middlewares.RoleRequired("candidate", "admin"))
	{
		candidate.POST("/job-applications/", handlers.SubmitApplication(services))
		candidate.POST("/resumes/", handlers.UploadResume(services))
	}
}

// setupAdminRoutes configures admin-only routes
func setupAdminRoutes(rg *gin.RouterGroup, services interfaces.Services) {
	admin := rg.Group("/admin")
	admin.Use(middlewares.AuthRequired(services))
	admin.Use(middlewares.AdminRequired())
	{
		admin.GET("/audit", handlers.GetAuditLogs(services))
		admin.GET("/stats", handlers.GetSystemStats(services))
	}
}
