package adminapi

import "github.com/gin-gonic/gin"

// registerRoutes wires the fixed, unauthenticated endpoint set. There is no
// API key middleware here (unlike the teacher's management API) — this
// surface is read-only and loopback-bound, not a management plane.
func registerRoutes(r *gin.Engine, h *Handler) {
	r.GET("/healthz", h.Health)
	r.GET("/stats", h.Stats)
	r.GET("/cache/stats", h.CacheStats)
}
