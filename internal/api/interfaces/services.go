package interfaces

import (
	"context"
	"net/http"

	"match-connect/internal/database/repositories"
	"match-connect/internal/metrics"
	"match-connect/internal/synchub"
	"match-connect/pkg/config"
	"match-connect/pkg/logger"
)

// Services defines the interface for API services
type Services interface {
	GetLogger() *logger.Logger
	GetConfig() *config.Config
	GetMetrics() *metrics.Metrics
	MetricsHandler() http.Handler
	StorageHub() *synchub.Hub
	AuthService() AuthServiceInterface
	UserRepository() *repositories.UserRepository
	JobPostingRepository() *repositories.JobPostingRepository
	ApplicationRepository() *repositories.ApplicationRepository
	AuditLogRepository() *repositories.AuditLogRepository
	PingDatabase(ctx context.Context) error
}
