package handlers

import (
	"match-connect/internal/api/interfaces"

	"github.com/gin-gonic/gin"
)

// StorageSync upgrades to the storage hub. Clients join the room named by
// the room query parameter.
func StorageSync(services interfaces.Services) gin.HandlerFunc {
	return services.StorageHub().Handler()
}
