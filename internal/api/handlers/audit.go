package handlers

import (
	"net/http"
	"time"

	"match-connect/internal/api/interfaces"
	"match-connect/internal/api/models"

	"github.com/gin-gonic/gin"
)

const defaultAuditLimit = 50

// GetAuditLogs retrieves audit logs with filtering and pagination
func GetAuditLogs(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.AuditLogFilterRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			respondError(c, bindingError(err))
			return
		}
		if req.Limit == 0 {
			req.Limit = defaultAuditLimit
		}

		startTime, ok := parseTimeParam(c, "start_time", req.StartTime)
		if !ok {
			return
		}
		endTime, ok := parseTimeParam(c, "end_time", req.EndTime)
		if !ok {
			return
		}

		ctx := c.Request.Context()
		logs, err := services.AuditLogRepository().GetAuditLogs(ctx, req.Limit, req.Offset, req.Action, startTime, endTime)
		if err != nil {
			respondInternal(c, services, "Failed to retrieve audit logs", err)
			return
		}
		counts, err := services.AuditLogRepository().CountByAction(ctx)
		if err != nil {
			respondInternal(c, services, "Failed to retrieve audit logs", err)
			return
		}

		c.JSON(http.StatusOK, models.BaseResponse{
			Success: true,
			Message: "Audit logs retrieved successfully",
			Data: models.AuditLogPage{
				Logs:     logs,
				Limit:    req.Limit,
				Offset:   req.Offset,
				Count:    len(logs),
				ByAction: counts,
			},
			Timestamp: time.Now().Unix(),
			RequestID: c.GetString("request_id"),
		})
	}
}

func parseTimeParam(c *gin.Context, name, value string) (*time.Time, bool) {
	if value == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		respondError(c, models.BadRequest("Invalid "+name+", expected RFC3339").WithField(name, "rfc3339"))
		return nil, false
	}
	return &t, true
}
