package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"match-connect/internal/api/interfaces"
	"match-connect/internal/database"
	"match-connect/internal/database/repositories"
	"match-connect/internal/metrics"
	"match-connect/internal/synchub"
	"match-connect/pkg/config"
	"match-connect/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

const purgeInterval = time.Hour

// Services contains all the dependencies for API handlers
type Services struct {
	// Core dependencies
	DB       *database.DB
	Logger   *logger.Logger
	Config   *config.Config
	Metrics  *metrics.Metrics
	Registry prometheus.Gatherer
	Hub      *synchub.Hub

	// Auth service interface
	authService interfaces.AuthServiceInterface

	// Repositories
	userRepository        *repositories.UserRepository
	jobPostingRepository  *repositories.JobPostingRepository
	applicationRepository *repositories.ApplicationRepository
	revokedTokens         *repositories.RevokedTokenRepository
	auditLogRepository    *repositories.AuditLogRepository

	mutex     sync.Mutex
	isRunning bool
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewServices creates a new services container
func NewServices(db *database.DB, log *logger.Logger, cfg *config.Config, registry *prometheus.Registry, m *metrics.Metrics) *Services {
	services := &Services{
		DB:       db,
		Logger:   log,
		Config:   cfg,
		Metrics:  m,
		Registry: registry,
		Hub:      synchub.NewHub(log, m),
	}

	// Initialize auth service
	services.authService = services

	// Initialize repositories
	services.userRepository = repositories.NewUserRepository(db)
	services.jobPostingRepository = repositories.NewJobPostingRepository(db)
	services.applicationRepository = repositories.NewApplicationRepository(db)
	services.revokedTokens = repositories.NewRevokedTokenRepository(db)
	services.auditLogRepository = repositories.NewAuditLogRepository(db)

	return services
}

// Start seeds the admin account and starts the revoked token purge loop
func (s *Services) Start(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.isRunning {
		return errors.New("services already running")
	}
	s.Logger.Info("Starting API services...")

	if err := s.ensureAdmin(ctx); err != nil {
		s.Logger.Error("Failed to seed admin account: %v", err)
		return err
	}

	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	s.isRunning = true
	go s.purgeLoop(s.stopChan, s.doneChan)

	s.Logger.Info("All API services started successfully")
	return nil
}

// Stop stops the background loop and disconnects hub clients
func (s *Services) Stop() {
	s.mutex.Lock()
	if !s.isRunning {
		s.mutex.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.doneChan
	s.mutex.Unlock()

	<-done
	s.Hub.Close()
	s.Logger.Info("All API services stopped")
}

// IsRunning reports whether Start has been called without Stop
func (s *Services) IsRunning() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.isRunning
}

func (s *Services) purgeLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.purgeRevokedTokens()
		}
	}
}

func (s *Services) purgeRevokedTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.revokedTokens.PurgeExpired(ctx, time.Now())
	if err != nil {
		s.Logger.Error("Failed to purge revoked tokens: %v", err)
		return
	}
	if n > 0 {
		s.Logger.Info("Purged expired revoked tokens", "count", n)
	}
}

// ensureAdmin creates the configured admin account when it does not exist
func (s *Services) ensureAdmin(ctx context.Context) error {
	email, password := s.Config.Security.AdminEmail, s.Config.Security.AdminPassword
	if email == "" || password == "" {
		return nil
	}

	_, err := s.userRepository.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return err
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return err
	}
	admin := &database.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Admin",
		LastName:     "User",
		Role:         "admin",
	}
	if err := s.userRepository.Create(ctx, admin); err != nil {
		return err
	}
	s.Logger.AuditLogger("admin_seeded", email, "users", "admin account created from configuration")
	return nil
}

// Interface implementation methods
func (s *Services) GetLogger() *logger.Logger {
	return s.Logger
}

func (s *Services) GetConfig() *config.Config {
	return s.Config
}

func (s *Services) GetMetrics() *metrics.Metrics {
	return s.Metrics
}

func (s *Services) MetricsHandler() http.Handler {
	return metrics.HandlerFor(s.Registry)
}

func (s *Services) StorageHub() *synchub.Hub {
	return s.Hub
}

func (s *Services) AuthService() interfaces.AuthServiceInterface {
	return s.authService
}

func (s *Services) UserRepository() *repositories.UserRepository {
	return s.userRepository
}

func (s *Services) JobPostingRepository() *repositories.JobPostingRepository {
	return s.jobPostingRepository
}

func (s *Services) ApplicationRepository() *repositories.ApplicationRepository {
	return s.applicationRepository
}

func (s *Services) AuditLogRepository() *repositories.AuditLogRepository {
	return s.auditLogRepository
}

// PingDatabase checks the database connection
func (s *Services) PingDatabase(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}
