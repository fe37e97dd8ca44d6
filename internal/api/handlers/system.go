package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"match-connect/internal/api/interfaces"
	"match-connect/internal/api/models"

	"github.com/gin-gonic/gin"
)

const version = "1.0.0"

var startTime = time.Now()

// HealthCheck reports liveness along with a database check
func HealthCheck(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := map[string]models.HealthCheck{
			"database": databaseCheck(c.Request.Context(), services),
		}

		status, code := "healthy", http.StatusOK
		for _, check := range checks {
			if check.Status != "healthy" {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}

		c.JSON(code, models.HealthCheckResponse{
			Status:    status,
			Timestamp: time.Now().Unix(),
			Version:   version,
			Uptime:    int64(time.Since(startTime).Seconds()),
			Checks:    checks,
		})
	}
}

func databaseCheck(ctx context.Context, services interfaces.Services) models.HealthCheck {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := services.PingDatabase(ctx); err != nil {
		return models.HealthCheck{Status: "unhealthy", Message: err.Error()}
	}
	return models.HealthCheck{Status: "healthy", Latency: time.Since(start).String()}
}

// Metrics exposes the Prometheus registry
func Metrics(services interfaces.Services) gin.HandlerFunc {
	return gin.WrapH(services.MetricsHandler())
}

// GetSystemStats returns runtime and storage hub statistics
func GetSystemStats(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		c.JSON(http.StatusOK, models.BaseResponse{
			Success: true,
			Data: gin.H{
				"server": gin.H{
					"uptime":       time.Since(startTime).Seconds(),
					"goroutines":   runtime.NumGoroutine(),
					"memory_alloc": bToMb(m.Alloc),
					"memory_sys":   bToMb(m.Sys),
					"gc_runs":      m.NumGC,
				},
				"storage_hub": gin.H{
					"rooms": services.StorageHub().Rooms(),
				},
			},
			Timestamp: time.Now().Unix(),
			RequestID: c.GetString("request_id"),
		})
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
